// Package actions holds the alternative searches offered when a search finds
// nothing.
package actions

import (
	"context"
	"sort"

	"github.com/pders01/usages/internal/usage"
)

// Options are the search settings an alternative may widen.
type Options struct {
	Root       string
	AllFiles   bool
	IgnoreCase bool
}

// Alternative proposes a broader search after an empty one.
type Alternative interface {
	// Name is the label shown to the user.
	Name() string

	// Applies reports whether the alternative changes anything for o.
	Applies(o Options) bool

	// Widen returns the options for the new search.
	Widen(o Options) Options

	// Priority orders alternatives (higher comes first).
	Priority() int
}

// Rerun starts a new search with the given options.
type Rerun func(ctx context.Context, o Options) error

// Registry manages all registered alternatives
type Registry struct {
	alternatives []Alternative
}

func NewRegistry() *Registry {
	return &Registry{alternatives: make([]Alternative, 0)}
}

// DefaultRegistry holds the built-in alternatives.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(AllFiles{})
	r.Register(IgnoreCase{})
	return r
}

// Register adds an alternative to the registry
func (r *Registry) Register(a Alternative) {
	r.alternatives = append(r.alternatives, a)
}

// Applicable returns the alternatives that apply to o, highest priority
// first. Ties keep registration order.
func (r *Registry) Applicable(o Options) []Alternative {
	var out []Alternative
	for _, a := range r.alternatives {
		if a.Applies(o) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}

// Actions turns the applicable alternatives into presenter actions that call
// rerun with the widened options.
func (r *Registry) Actions(o Options, rerun Rerun) []usage.Action {
	alts := r.Applicable(o)
	if len(alts) == 0 || rerun == nil {
		return nil
	}
	acts := make([]usage.Action, len(alts))
	for i, a := range alts {
		widened := a.Widen(o)
		acts[i] = usage.Action{
			Name: a.Name(),
			Run: func(ctx context.Context) error {
				return rerun(ctx, widened)
			},
		}
	}
	return acts
}

// List returns all registered alternatives
func (r *Registry) List() []Alternative {
	return append([]Alternative(nil), r.alternatives...)
}

// AllFiles searches every file instead of recognized source files only.
type AllFiles struct{}

func (AllFiles) Name() string { return "Search all files" }

func (AllFiles) Applies(o Options) bool { return !o.AllFiles }

func (AllFiles) Priority() int { return 100 }

func (AllFiles) Widen(o Options) Options {
	o.AllFiles = true
	return o
}

// IgnoreCase matches the identifier case-insensitively.
type IgnoreCase struct{}

func (IgnoreCase) Name() string { return "Ignore case" }

func (IgnoreCase) Applies(o Options) bool { return !o.IgnoreCase }

func (IgnoreCase) Priority() int { return 50 }

func (IgnoreCase) Widen(o Options) Options {
	o.IgnoreCase = true
	return o
}
