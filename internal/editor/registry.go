// Package editor opens usages in the user's editor at the right position.
package editor

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/pders01/usages/internal/usage"
)

//go:embed editors.toml
var editorsTOML []byte

// Definition describes how an editor is invoked.
type Definition struct {
	Description string   `toml:"description"`
	Args        []string `toml:"args"`
	Terminal    bool     `toml:"terminal"`
}

// EditorsConfig holds all editor definitions
type EditorsConfig struct {
	Editors map[string]Definition `toml:"editors"`
}

// Registry manages editor definitions
type Registry struct {
	editors map[string]Definition
}

// fallbackDefinition is used for editors without a definition.
var fallbackDefinition = Definition{Args: []string{"{file}"}, Terminal: true}

// NewRegistry creates a registry from the embedded TOML, overridden by any
// user definitions.
func NewRegistry() (*Registry, error) {
	var cfg EditorsConfig
	if err := toml.Unmarshal(editorsTOML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing editors.toml: %w", err)
	}
	r := &Registry{editors: cfg.Editors}
	r.loadUserConfig(userConfigPaths()...)
	return r, nil
}

func userConfigPaths() []string {
	paths := []string{"./editors.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append([]string{filepath.Join(home, ".config", "usages", "editors.toml")}, paths...)
	}
	return paths
}

// loadUserConfig merges user definitions over the built-in ones.
func (r *Registry) loadUserConfig(paths ...string) {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var userCfg EditorsConfig
		if err := toml.Unmarshal(data, &userCfg); err != nil {
			continue
		}
		for name, def := range userCfg.Editors {
			r.editors[name] = def
		}
	}
}

// Lookup returns the definition for name, keyed by the command's base name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.editors[filepath.Base(name)]
	return def, ok
}

func (r *Registry) Definition(name string) Definition {
	if def, ok := r.Lookup(name); ok {
		return def
	}
	return fallbackDefinition
}

// Expand fills in the definition's argument template for u.
func (d Definition) Expand(u *usage.Usage) []string {
	col := u.Column
	if col < 1 {
		col = 1
	}
	repl := strings.NewReplacer(
		"{file}", u.Path,
		"{line}", strconv.Itoa(u.Line),
		"{column}", strconv.Itoa(col),
	)
	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i] = repl.Replace(a)
	}
	return args
}
