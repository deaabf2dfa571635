// Package source produces usages by scanning a source tree, optionally
// narrowed down by a bleve index of the identifiers each file contains.
package source

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed filetypes.toml
var fileTypesTOML []byte

type LanguageConfig struct {
	Extensions []string `toml:"extensions"`
	Names      []string `toml:"names,omitempty"`
}

type ExcludeConfig struct {
	Dirs []string `toml:"dirs"`
}

type FileTypesConfig struct {
	Languages map[string]LanguageConfig `toml:"languages"`
	Exclude   ExcludeConfig             `toml:"exclude"`
}

// Predicate decides which files count as source files and which
// directories are never descended into.
type Predicate struct {
	byExt   map[string]string
	byName  map[string]string
	exclude map[string]bool
}

// NewPredicate loads the built-in file types. extraExcludes adds directory
// names to skip.
func NewPredicate(extraExcludes ...string) (*Predicate, error) {
	var cfg FileTypesConfig
	if err := toml.Unmarshal(fileTypesTOML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing filetypes.toml: %w", err)
	}
	return newPredicate(cfg, extraExcludes), nil
}

func newPredicate(cfg FileTypesConfig, extraExcludes []string) *Predicate {
	p := &Predicate{
		byExt:   make(map[string]string),
		byName:  make(map[string]string),
		exclude: make(map[string]bool),
	}
	for lang, lc := range cfg.Languages {
		for _, ext := range lc.Extensions {
			p.byExt[strings.ToLower(ext)] = lang
		}
		for _, name := range lc.Names {
			p.byName[name] = lang
		}
	}
	for _, dir := range append(cfg.Exclude.Dirs, extraExcludes...) {
		if dir = strings.TrimSpace(dir); dir != "" {
			p.exclude[dir] = true
		}
	}
	return p
}

// Language returns the language of path, or "" for non-source files.
func (p *Predicate) Language(path string) string {
	base := filepath.Base(path)
	if lang, ok := p.byName[base]; ok {
		return lang
	}
	return p.byExt[strings.ToLower(filepath.Ext(base))]
}

func (p *Predicate) IsSourceFile(path string) bool {
	return p.Language(path) != ""
}

// SkipDir reports whether a directory with this base name is excluded.
func (p *Predicate) SkipDir(name string) bool {
	return p.exclude[name]
}

// Languages lists the known languages, sorted.
func (p *Predicate) Languages() []string {
	seen := make(map[string]bool)
	for _, lang := range p.byExt {
		seen[lang] = true
	}
	for _, lang := range p.byName {
		seen[lang] = true
	}
	out := make([]string, 0, len(seen))
	for lang := range seen {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
