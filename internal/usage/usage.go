// Package usage coordinates find-usages searches: a Source streams usages
// from worker goroutines into a Session, which counts them, materialises a
// Sink once a results view is warranted, throttles runaway searches and
// finally picks how the outcome is presented.
package usage

import (
	"context"
	"fmt"
	"strings"
)

// Usage is a single located occurrence of a searched-for name.
// A Usage is immutable once produced; identity is the pointer.
type Usage struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Text   string `json:"text"`
}

func (u *Usage) String() string {
	return fmt.Sprintf("%s:%d:%d", u.Path, u.Line, u.Column)
}

// CanNavigate reports whether the usage points at a concrete file position.
func (u *Usage) CanNavigate() bool {
	return u != nil && u.Path != "" && u.Line > 0
}

// Target is one subject being searched for. When the declaration position
// is known, usages at that position are classified as self usages.
type Target struct {
	Name   string `json:"name"`
	Kind   string `json:"kind,omitempty"`
	Path   string `json:"path,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// HasDeclaration reports whether the target carries a declaration position.
func (t Target) HasDeclaration() bool {
	return t.Path != "" && t.Line > 0
}

// Declares reports whether u is the target's own declaration.
func (t Target) Declares(u *Usage) bool {
	if u == nil || !t.HasDeclaration() {
		return false
	}
	if u.Path != t.Path || u.Line != t.Line {
		return false
	}
	return t.Column == 0 || u.Column == t.Column
}

// SelfFunc classifies a usage as the searched-for subject itself.
type SelfFunc func(u *Usage, targets []Target) bool

// IsDeclaration is the default SelfFunc.
func IsDeclaration(u *Usage, targets []Target) bool {
	for _, t := range targets {
		if t.Declares(u) {
			return true
		}
	}
	return false
}

// TargetNames joins the distinct target names for display.
func TargetNames(targets []Target) string {
	seen := make(map[string]bool, len(targets))
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		if t.Name == "" || seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		names = append(names, t.Name)
	}
	return strings.Join(names, ", ")
}

// Consumer receives usages from a Source. Returning false asks the source
// to stop producing.
type Consumer func(u *Usage) bool

// Source lazily produces usages. Generate calls consume once per usage, may
// do so from several goroutines at once, stops early when consume returns
// false and honours ctx cancellation.
type Source interface {
	Generate(ctx context.Context, consume Consumer) error
}

// SourceFactory creates the Source for one search.
type SourceFactory func() (Source, error)

// SkippedFile is a file a source refused to scan because of its size.
type SkippedFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// LargeFileReporter is implemented by sources that skip oversized files.
type LargeFileReporter interface {
	LargeFiles() []SkippedFile
}
