// Package finder turns a user query into a running usage search: it resolves
// the targets, picks the source and builds the presentation.
package finder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pders01/usages/internal/actions"
	"github.com/pders01/usages/internal/config"
	"github.com/pders01/usages/internal/debuglog"
	"github.com/pders01/usages/internal/source"
	"github.com/pders01/usages/internal/usage"
	"github.com/pders01/usages/internal/validation"
)

// Query is one find-usages request.
type Query struct {
	Name string
	actions.Options
	UseIndex       bool
	ShowPanelIfOne bool
}

// Finder starts searches through a usage.Manager.
type Finder struct {
	cfg          config.SearchConfig
	manager      *usage.Manager
	pred         *source.Predicate
	index        *source.Index
	alternatives *actions.Registry
	onFinished   func(usage.Result)
	onRerun      func(origin, s *usage.Session)

	paths *validation.PathValidator
	names *validation.IdentifierValidator
}

// Option configures a Finder.
type Option func(*Finder)

// WithIndex lets queries with UseIndex set scan only indexed candidates.
func WithIndex(index *source.Index) Option {
	return func(f *Finder) { f.index = index }
}

// WithAlternatives replaces the alternatives offered when nothing is found.
func WithAlternatives(r *actions.Registry) Option {
	return func(f *Finder) { f.alternatives = r }
}

// WithFinishedHook calls fn after every search started by the finder.
func WithFinishedHook(fn func(usage.Result)) Option {
	return func(f *Finder) { f.onFinished = fn }
}

// WithRerunHook calls fn with each search a not-found alternative starts and
// the search it replaces.
func WithRerunHook(fn func(origin, s *usage.Session)) Option {
	return func(f *Finder) { f.onRerun = fn }
}

func New(cfg config.SearchConfig, manager *usage.Manager, opts ...Option) (*Finder, error) {
	pred, err := source.NewPredicate(cfg.Exclude...)
	if err != nil {
		return nil, fmt.Errorf("loading file types: %w", err)
	}
	f := &Finder{
		cfg:          cfg,
		manager:      manager,
		pred:         pred,
		alternatives: actions.DefaultRegistry(),
		paths:        validation.NewPathValidator(),
		names:        validation.NewIdentifierValidator(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Query returns a query for name with the configured defaults.
func (f *Finder) Query(name string) Query {
	return Query{
		Name: name,
		Options: actions.Options{
			Root:       f.cfg.Root,
			IgnoreCase: f.cfg.IgnoreCase,
		},
		UseIndex:       f.cfg.UseIndex,
		ShowPanelIfOne: f.cfg.ShowPanelIfOne,
	}
}

// Predicate is the source-file predicate searches use.
func (f *Finder) Predicate() *source.Predicate {
	return f.pred
}

// Find validates q, resolves its targets and starts the search.
func (f *Finder) Find(ctx context.Context, q Query) (*usage.Session, error) {
	name, err := f.names.ValidateAndNormalize(q.Name)
	if err != nil {
		return nil, err
	}
	root := q.Root
	if root == "" {
		root = "."
	}
	if root, err = f.paths.ValidateRoot(root); err != nil {
		return nil, err
	}
	q.Name, q.Root = name, root

	targets, err := source.ResolveTargets(ctx, root, name, f.pred)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", name, err)
	}
	debuglog.WithFields(map[string]any{
		"name":    name,
		"root":    root,
		"targets": len(targets),
	}).Debugf("resolved targets")

	return f.manager.Search(ctx, usage.Request{
		Targets:      targets,
		Factory:      f.factory(q, targets),
		Presentation: f.Presentation(q),
	})
}

func (f *Finder) factory(q Query, targets []usage.Target) usage.SourceFactory {
	opts := source.Options{
		Root:        q.Root,
		Names:       targetNames(targets),
		IgnoreCase:  q.IgnoreCase,
		AllFiles:    q.AllFiles,
		Workers:     f.cfg.Workers,
		MaxFileSize: f.cfg.MaxFileSize,
	}
	return func() (usage.Source, error) {
		// The index only holds source files.
		if q.UseIndex && f.index != nil && !q.AllFiles {
			return source.NewIndexedSource(f.index, f.pred, opts), nil
		}
		return source.NewScanner(f.pred, opts)
	}
}

func targetNames(targets []usage.Target) []string {
	seen := make(map[string]bool, len(targets))
	var names []string
	for _, t := range targets {
		if !seen[t.Name] {
			seen[t.Name] = true
			names = append(names, t.Name)
		}
	}
	return names
}

// Presentation builds the presentation for q from the search settings.
func (f *Finder) Presentation(q Query) *usage.Presentation {
	p := usage.DefaultPresentation()
	p.UsagesWord = "usages of " + q.Name
	p.ScopeText = DisplayPath(q.Root)
	p.ShowPanelIfOne = q.ShowPanelIfOne
	p.ShowNotFoundMessage = f.cfg.ShowNotFound
	if f.cfg.ThrottleThreshold > 0 {
		p.ThrottleThreshold = f.cfg.ThrottleThreshold
	}
	if f.cfg.ThrottleWait > 0 {
		p.ThrottleWait = f.cfg.ThrottleWait
	}
	if f.cfg.ProgressDelay > 0 {
		p.ProgressDelay = f.cfg.ProgressDelay
	}
	p.OnFinished = f.onFinished

	if f.alternatives != nil {
		p.NotFoundActions = f.alternatives.Actions(q.Options, func(ctx context.Context, o actions.Options) error {
			next := q
			next.Options = o
			s, err := f.Find(ctx, next)
			if err != nil {
				return err
			}
			if f.onRerun != nil {
				f.onRerun(usage.Origin(ctx), s)
			}
			return nil
		})
	}
	return p
}

// DisplayPath shortens paths under the home directory to "~/...".
func DisplayPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if rel, ok := strings.CutPrefix(path, home+string(filepath.Separator)); ok {
		return "~" + string(filepath.Separator) + rel
	}
	return path
}
