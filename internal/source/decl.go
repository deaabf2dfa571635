package source

import (
	"bytes"
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pders01/usages/internal/debuglog"
	"github.com/pders01/usages/internal/usage"
)

// ResolveTargets finds the top-level Go declarations of name under root so
// the declaration sites can be told apart from real usages. A name with no
// Go declaration resolves to a single name-only target.
func ResolveTargets(ctx context.Context, root, name string, pred *Predicate) ([]usage.Target, error) {
	if pred == nil {
		var err error
		if pred, err = NewPredicate(); err != nil {
			return nil, err
		}
	}

	var targets []usage.Target
	needle := []byte(name)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && pred.SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil || !bytes.Contains(src, needle) {
			return nil
		}
		found, err := goDeclarations(path, src, name)
		if err != nil {
			debuglog.Debugf("resolve %s: %v", path, err)
			return nil
		}
		targets = append(targets, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(targets) == 0 {
		return []usage.Target{{Name: name}}, nil
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Path != targets[j].Path {
			return targets[i].Path < targets[j].Path
		}
		return targets[i].Line < targets[j].Line
	})
	return targets, nil
}

func goDeclarations(path string, src []byte, name string) ([]usage.Target, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}

	var out []usage.Target
	add := func(ident *ast.Ident, kind string) {
		if ident == nil || ident.Name != name {
			return
		}
		pos := fset.Position(ident.Pos())
		out = append(out, usage.Target{
			Name:   name,
			Kind:   kind,
			Path:   path,
			Line:   pos.Line,
			Column: pos.Column,
		})
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			kind := "func"
			if d.Recv != nil {
				kind = "method"
			}
			add(d.Name, kind)
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					add(s.Name, "type")
				case *ast.ValueSpec:
					kind := "var"
					if d.Tok == token.CONST {
						kind = "const"
					}
					for _, n := range s.Names {
						add(n, kind)
					}
				}
			}
		}
	}
	return out, nil
}
