package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/usages/internal/usage"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

type collector struct {
	mu     sync.Mutex
	usages []*usage.Usage
}

func (c *collector) consume(u *usage.Usage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usages = append(c.usages, u)
	return true
}

func (c *collector) positions(root string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.usages))
	for _, u := range c.usages {
		rel, _ := filepath.Rel(root, u.Path)
		out = append(out, (&usage.Usage{Path: filepath.ToSlash(rel), Line: u.Line, Column: u.Column}).String())
	}
	sort.Strings(out)
	return out
}

var sampleTree = map[string]string{
	"main.go":             "package main\n\nfunc main() {\n\tFoo()\n\tFooBar()\n\tx := Foo\n}\n",
	"lib/foo.go":          "package lib\n\nfunc Foo() {}\n",
	"lib/notes.txt":       "Foo is mentioned here\n",
	"web/app.ts":          "export const foo = Foo();\r\n",
	".git/config":         "Foo\n",
	"node_modules/x/a.js": "Foo()\n",
}

func TestScannerFindsWholeWordsInSourceFiles(t *testing.T) {
	root := writeTree(t, sampleTree)
	sc, err := NewScanner(nil, Options{Root: root, Names: []string{"Foo"}, Workers: 3})
	require.NoError(t, err)

	var c collector
	require.NoError(t, sc.Generate(context.Background(), c.consume))

	assert.Equal(t, []string{
		"lib/foo.go:3:6",
		"main.go:4:2",
		"main.go:6:7",
		"web/app.ts:1:20",
	}, c.positions(root))
	for _, u := range c.usages {
		assert.NotContains(t, u.Text, "\r")
	}
}

func TestScannerOptions(t *testing.T) {
	root := writeTree(t, sampleTree)

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "all files",
			opts: Options{Names: []string{"Foo"}, AllFiles: true},
			want: []string{"lib/foo.go:3:6", "lib/notes.txt:1:1", "main.go:4:2", "main.go:6:7", "web/app.ts:1:20"},
		},
		{
			name: "ignore case",
			opts: Options{Names: []string{"foo"}, IgnoreCase: true},
			want: []string{"lib/foo.go:3:6", "main.go:4:2", "main.go:6:7", "web/app.ts:1:14", "web/app.ts:1:20"},
		},
		{
			name: "several names",
			opts: Options{Names: []string{"main", "FooBar"}},
			want: []string{"main.go:1:9", "main.go:3:6", "main.go:5:2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.Root = root
			sc, err := NewScanner(nil, opts)
			require.NoError(t, err)

			var c collector
			require.NoError(t, sc.Generate(context.Background(), c.consume))
			assert.Equal(t, tt.want, c.positions(root))
		})
	}
}

func TestScannerSkipsLargeAndBinaryFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"small.go": "Foo\n",
		"big.go":   "// Foo\n" + strings.Repeat("x ", 100),
		"bin.go":   "Foo\x00\x01\n",
	})

	sc, err := NewScanner(nil, Options{Root: root, Names: []string{"Foo"}, MaxFileSize: 100})
	require.NoError(t, err)

	var c collector
	require.NoError(t, sc.Generate(context.Background(), c.consume))
	assert.Equal(t, []string{"small.go:1:1"}, c.positions(root))

	large := sc.LargeFiles()
	require.Len(t, large, 1)
	assert.Equal(t, filepath.Join(root, "big.go"), large[0].Path)
	assert.Greater(t, large[0].Size, int64(100))
}

func TestScannerStopsWhenConsumerDeclines(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 50; i++ {
		files[filepath.Join("pkg", string(rune('a'+i%26))+string(rune('a'+i/26))+".go")] = "Foo Foo Foo\n"
	}
	root := writeTree(t, files)

	sc, err := NewScanner(nil, Options{Root: root, Names: []string{"Foo"}, Workers: 4})
	require.NoError(t, err)

	var calls atomic.Int32
	err = sc.Generate(context.Background(), func(*usage.Usage) bool {
		return calls.Add(1) < 5
	})
	require.NoError(t, err)
	assert.Less(t, int(calls.Load()), 150, "scanning must stop early")
}

func TestScannerHonoursCancellation(t *testing.T) {
	root := writeTree(t, sampleTree)
	sc, err := NewScanner(nil, Options{Root: root, Names: []string{"Foo"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var c collector
	assert.ErrorIs(t, sc.Generate(ctx, c.consume), context.Canceled)
}

func TestScannerFileList(t *testing.T) {
	root := writeTree(t, sampleTree)
	sc, err := NewScanner(nil, Options{
		Names: []string{"Foo"},
		Files: []string{filepath.Join(root, "lib/foo.go"), filepath.Join(root, "missing.go")},
	})
	require.NoError(t, err)

	var c collector
	require.NoError(t, sc.Generate(context.Background(), c.consume))
	assert.Equal(t, []string{"lib/foo.go:3:6"}, c.positions(root))
}

func TestNewScannerValidation(t *testing.T) {
	_, err := NewScanner(nil, Options{Names: []string{"Foo"}})
	assert.Error(t, err)

	_, err = NewScanner(nil, Options{Root: t.TempDir(), Names: []string{" "}})
	assert.Error(t, err)
}

func TestScannerMissingRoot(t *testing.T) {
	sc, err := NewScanner(nil, Options{Root: filepath.Join(t.TempDir(), "nope"), Names: []string{"Foo"}})
	require.NoError(t, err)
	var c collector
	assert.Error(t, sc.Generate(context.Background(), c.consume))
}
