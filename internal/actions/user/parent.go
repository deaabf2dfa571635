// Package user holds optional alternatives that are not registered by
// default.
package user

import (
	"path/filepath"

	"github.com/pders01/usages/internal/actions"
)

// ParentDirectory repeats the search from the parent of the current root.
type ParentDirectory struct{}

func NewParentDirectory() *ParentDirectory {
	return &ParentDirectory{}
}

func (p *ParentDirectory) Name() string {
	return "Search parent directory"
}

// Applies is false at the file system root.
func (p *ParentDirectory) Applies(o actions.Options) bool {
	if o.Root == "" {
		return false
	}
	return filepath.Dir(o.Root) != o.Root
}

func (p *ParentDirectory) Widen(o actions.Options) actions.Options {
	o.Root = filepath.Dir(o.Root)
	return o
}

func (p *ParentDirectory) Priority() int {
	return 10
}
