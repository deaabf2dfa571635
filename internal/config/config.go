package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Search   SearchConfig   `mapstructure:"search"`
	Database DatabaseConfig `mapstructure:"database"`
	Editor   EditorConfig   `mapstructure:"editor"`
	UI       UIConfig       `mapstructure:"ui"`
	Keys     KeyConfig      `mapstructure:"keys"`
	Log      LogConfig      `mapstructure:"log"`
}

type SearchConfig struct {
	Root              string        `mapstructure:"root"`
	ThrottleThreshold int           `mapstructure:"throttle_threshold"`
	ThrottleWait      time.Duration `mapstructure:"throttle_wait"`
	ProgressDelay     time.Duration `mapstructure:"progress_delay"`
	ShowPanelIfOne    bool          `mapstructure:"show_panel_if_one"`
	ShowNotFound      bool          `mapstructure:"show_not_found"`
	IgnoreCase        bool          `mapstructure:"ignore_case"`
	Workers           int           `mapstructure:"workers"`
	MaxFileSize       int64         `mapstructure:"max_file_size"`
	Exclude           []string      `mapstructure:"exclude"`
	UseIndex          bool          `mapstructure:"use_index"`
}

type DatabaseConfig struct {
	Path         string        `mapstructure:"path"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SearchIndex  string        `mapstructure:"search_index"`
	HistoryLimit int           `mapstructure:"history_limit"`
}

type EditorConfig struct {
	Preferred []string `mapstructure:"preferred"`
	Default   string   `mapstructure:"default"`
}

type UIConfig struct {
	Colors  UIColors      `mapstructure:"colors"`
	Preview PreviewConfig `mapstructure:"preview"`
}

type UIColors struct {
	Primary   string `mapstructure:"primary"`
	Secondary string `mapstructure:"secondary"`
	Accent    string `mapstructure:"accent"`
	Text      string `mapstructure:"text"`
	Muted     string `mapstructure:"muted"`
	Error     string `mapstructure:"error"`
	Success   string `mapstructure:"success"`
}

type PreviewConfig struct {
	ContextLines int    `mapstructure:"context_lines"`
	Style        string `mapstructure:"style"`
	WordWrap     int    `mapstructure:"word_wrap"`
}

type KeyConfig struct {
	Modifier string      `mapstructure:"modifier"`
	Bindings KeyBindings `mapstructure:"bindings"`
}

type KeyBindings struct {
	Quit    string `mapstructure:"quit"`
	Search  string `mapstructure:"search"`
	Open    string `mapstructure:"open"`
	Cancel  string `mapstructure:"cancel"`
	History string `mapstructure:"history"`
	Back    string `mapstructure:"back"`
	Help    string `mapstructure:"help"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".usages")

	return &Config{
		Search: SearchConfig{
			Root:              ".",
			ThrottleThreshold: 1000,
			ThrottleWait:      1 * time.Second,
			ProgressDelay:     300 * time.Millisecond,
			ShowPanelIfOne:    false,
			ShowNotFound:      true,
			Workers:           8,
			MaxFileSize:       10 * 1024 * 1024,
			Exclude:           []string{"vendor", "dist", "build"},
		},
		Database: DatabaseConfig{
			Path:         filepath.Join(dataDir, "history.db"),
			Timeout:      1 * time.Second,
			SearchIndex:  filepath.Join(dataDir, "index.bleve"),
			HistoryLimit: 200,
		},
		Editor: EditorConfig{
			Preferred: []string{"nvim", "vim", "hx", "code", "nano"},
		},
		UI: UIConfig{
			Colors: UIColors{
				Primary:   "#FF6B6B",
				Secondary: "#4ECDC4",
				Accent:    "#95E1D3",
				Text:      "#EAEAEA",
				Muted:     "#94A3B8",
				Error:     "#F87171",
				Success:   "#4ADE80",
			},
			Preview: PreviewConfig{
				ContextLines: 6,
				Style:        "dark",
				WordWrap:     100,
			},
		},
		Keys: KeyConfig{
			Modifier: "ctrl",
			Bindings: KeyBindings{
				Quit:    "q",
				Search:  "f",
				Open:    "o",
				Cancel:  "x",
				History: "r",
				Back:    "esc",
				Help:    "?",
			},
		},
		Log: LogConfig{
			Level: "off",
			File:  filepath.Join(dataDir, "usages.log"),
		},
	}
}

// setDefaults registers every leaf key so environment overrides such as
// USAGES_SEARCH_WORKERS are picked up.
func setDefaults(v *viper.Viper, cfg *Config) {
	s := cfg.Search
	v.SetDefault("search.root", s.Root)
	v.SetDefault("search.throttle_threshold", s.ThrottleThreshold)
	v.SetDefault("search.throttle_wait", s.ThrottleWait)
	v.SetDefault("search.progress_delay", s.ProgressDelay)
	v.SetDefault("search.show_panel_if_one", s.ShowPanelIfOne)
	v.SetDefault("search.show_not_found", s.ShowNotFound)
	v.SetDefault("search.ignore_case", s.IgnoreCase)
	v.SetDefault("search.workers", s.Workers)
	v.SetDefault("search.max_file_size", s.MaxFileSize)
	v.SetDefault("search.exclude", s.Exclude)
	v.SetDefault("search.use_index", s.UseIndex)

	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.timeout", cfg.Database.Timeout)
	v.SetDefault("database.search_index", cfg.Database.SearchIndex)
	v.SetDefault("database.history_limit", cfg.Database.HistoryLimit)

	v.SetDefault("editor.preferred", cfg.Editor.Preferred)
	v.SetDefault("editor.default", cfg.Editor.Default)

	c := cfg.UI.Colors
	v.SetDefault("ui.colors.primary", c.Primary)
	v.SetDefault("ui.colors.secondary", c.Secondary)
	v.SetDefault("ui.colors.accent", c.Accent)
	v.SetDefault("ui.colors.text", c.Text)
	v.SetDefault("ui.colors.muted", c.Muted)
	v.SetDefault("ui.colors.error", c.Error)
	v.SetDefault("ui.colors.success", c.Success)
	v.SetDefault("ui.preview.context_lines", cfg.UI.Preview.ContextLines)
	v.SetDefault("ui.preview.style", cfg.UI.Preview.Style)
	v.SetDefault("ui.preview.word_wrap", cfg.UI.Preview.WordWrap)

	k := cfg.Keys.Bindings
	v.SetDefault("keys.modifier", cfg.Keys.Modifier)
	v.SetDefault("keys.bindings.quit", k.Quit)
	v.SetDefault("keys.bindings.search", k.Search)
	v.SetDefault("keys.bindings.open", k.Open)
	v.SetDefault("keys.bindings.cancel", k.Cancel)
	v.SetDefault("keys.bindings.history", k.History)
	v.SetDefault("keys.bindings.back", k.Back)
	v.SetDefault("keys.bindings.help", k.Help)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "usages", "config.toml")
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Dir(DefaultPath()))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("USAGES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)
	return &config, nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.SearchIndex = expandPath(cfg.Database.SearchIndex)
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.Search.Root = expandPath(cfg.Search.Root)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Durations as strings for TOML readability
	searchCfg := map[string]any{
		"root":               config.Search.Root,
		"throttle_threshold": config.Search.ThrottleThreshold,
		"throttle_wait":      config.Search.ThrottleWait.String(),
		"progress_delay":     config.Search.ProgressDelay.String(),
		"show_panel_if_one":  config.Search.ShowPanelIfOne,
		"show_not_found":     config.Search.ShowNotFound,
		"ignore_case":        config.Search.IgnoreCase,
		"workers":            config.Search.Workers,
		"max_file_size":      config.Search.MaxFileSize,
		"exclude":            config.Search.Exclude,
		"use_index":          config.Search.UseIndex,
	}

	dbCfg := map[string]any{
		"path":          config.Database.Path,
		"timeout":       config.Database.Timeout.String(),
		"search_index":  config.Database.SearchIndex,
		"history_limit": config.Database.HistoryLimit,
	}

	v.Set("search", searchCfg)
	v.Set("database", dbCfg)
	v.Set("editor", config.Editor)
	v.Set("ui", config.UI)
	v.Set("keys", config.Keys)
	v.Set("log", config.Log)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
