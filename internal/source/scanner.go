package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pders01/usages/internal/debuglog"
	"github.com/pders01/usages/internal/usage"
)

const (
	DefaultMaxFileSize = 10 * 1024 * 1024
	sniffLen           = 512
)

// errStopped unwinds the worker group once the consumer asks to stop.
var errStopped = errors.New("consumer stopped")

// Options configures a Scanner.
type Options struct {
	Root  string
	Names []string

	IgnoreCase bool
	// AllFiles scans every non-binary file, not only source files.
	AllFiles bool

	Workers     int
	MaxFileSize int64

	// Files restricts the scan to these paths instead of walking Root.
	Files []string
}

// Scanner finds identifier occurrences on word boundaries. Files are read
// by Workers goroutines, each of which calls the consumer directly.
type Scanner struct {
	opts Options
	pred *Predicate
	re   *regexp.Regexp

	mu    sync.Mutex
	large []usage.SkippedFile
}

var (
	_ usage.Source            = (*Scanner)(nil)
	_ usage.LargeFileReporter = (*Scanner)(nil)
)

func NewScanner(pred *Predicate, opts Options) (*Scanner, error) {
	if opts.Root == "" && len(opts.Files) == 0 {
		return nil, errors.New("scanner needs a root or a file list")
	}
	re, err := identifierPattern(opts.Names, opts.IgnoreCase)
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if pred == nil {
		if pred, err = NewPredicate(); err != nil {
			return nil, err
		}
	}
	return &Scanner{opts: opts, pred: pred, re: re}, nil
}

func identifierPattern(names []string, ignoreCase bool) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			quoted = append(quoted, regexp.QuoteMeta(n))
		}
	}
	if len(quoted) == 0 {
		return nil, errors.New("no identifier to search for")
	}
	expr := `\b(?:` + strings.Join(quoted, "|") + `)\b`
	if ignoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling identifier pattern: %w", err)
	}
	return re, nil
}

// LargeFiles lists files skipped for exceeding MaxFileSize.
func (s *Scanner) LargeFiles() []usage.SkippedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]usage.SkippedFile(nil), s.large...)
}

func (s *Scanner) Generate(ctx context.Context, consume usage.Consumer) error {
	g, gctx := errgroup.WithContext(ctx)
	paths := make(chan string, s.opts.Workers*4)

	g.Go(func() error {
		defer close(paths)
		return s.walk(gctx, paths)
	})
	for i := 0; i < s.opts.Workers; i++ {
		g.Go(func() error {
			for path := range paths {
				if err := s.scanFile(gctx, path, consume); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, errStopped) {
		return nil
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}

func (s *Scanner) walk(ctx context.Context, paths chan<- string) error {
	send := func(path string) error {
		select {
		case paths <- path:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if len(s.opts.Files) > 0 {
		for _, path := range s.opts.Files {
			if err := send(path); err != nil {
				return err
			}
		}
		return nil
	}

	return filepath.WalkDir(s.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.opts.Root {
				return err
			}
			debuglog.Warnf("scanner: skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if path != s.opts.Root && s.pred.SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !s.opts.AllFiles && !s.pred.IsSourceFile(path) {
			return nil
		}
		return send(path)
	})
}

func (s *Scanner) scanFile(ctx context.Context, path string, consume usage.Consumer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		debuglog.Debugf("scanner: stat %s: %v", path, err)
		return nil
	}
	if info.Size() > s.opts.MaxFileSize {
		s.mu.Lock()
		s.large = append(s.large, usage.SkippedFile{Path: path, Size: info.Size()})
		s.mu.Unlock()
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		debuglog.Debugf("scanner: read %s: %v", path, err)
		return nil
	}
	if isBinary(data) {
		return nil
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		for _, loc := range s.re.FindAllStringIndex(text, -1) {
			u := &usage.Usage{Path: path, Line: line, Column: loc[0] + 1, Text: text}
			if !consume(u) {
				return errStopped
			}
		}
	}
	return sc.Err()
}

func isBinary(data []byte) bool {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}
