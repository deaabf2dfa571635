package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Search.Root = "."
	cfg.Search.ThrottleWait = 100 * time.Millisecond
	cfg.Search.ProgressDelay = time.Hour
	cfg.Search.Workers = 2
	cfg.Database.Path = ""
	cfg.Database.SearchIndex = ""
	cfg.Log.Level = "off"
	cfg.Log.File = ""
	return cfg
}
