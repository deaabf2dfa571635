package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/usages/internal/debuglog"
	"github.com/pders01/usages/internal/usage"
)

const (
	indexBatchSize = 500
	indexPageSize  = 1000
)

var identRe = regexp.MustCompile(`[\p{L}_][\p{L}\p{N}_]*`)

// Index maps every source file under an indexed root to the lowercased
// identifiers it contains, so a search only has to scan candidate files.
type Index struct {
	mu  sync.Mutex
	idx bleve.Index
}

// IndexStats summarises a Rebuild.
type IndexStats struct {
	Indexed int
	Removed int
	Skipped int
}

// OpenIndex opens the index at path, creating it if needed.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	idx, err := bleve.Open(path)
	if err != nil {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating index %s: %w", path, err)
		}
	}
	return &Index{idx: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = keyword.Name

	dm := bleve.NewDocumentMapping()

	root := bleve.NewTextFieldMapping()
	root.Analyzer = keyword.Name
	root.Store = true

	path := bleve.NewTextFieldMapping()
	path.Analyzer = keyword.Name
	path.Store = true

	lang := bleve.NewTextFieldMapping()
	lang.Analyzer = keyword.Name
	lang.Store = true

	idents := bleve.NewTextFieldMapping()
	idents.Analyzer = keyword.Name
	idents.Store = false
	idents.IncludeTermVectors = false
	idents.IncludeInAll = false

	dm.AddFieldMappingsAt("root", root)
	dm.AddFieldMappingsAt("path", path)
	dm.AddFieldMappingsAt("lang", lang)
	dm.AddFieldMappingsAt("idents", idents)

	im.DefaultMapping = dm
	return im
}

func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.idx.Close()
}

// DocCount reports the number of indexed files.
func (x *Index) DocCount() (int, error) {
	n, err := x.idx.DocCount()
	return int(n), err
}

// Rebuild re-indexes every source file under root and drops documents of
// files that no longer qualify.
func (x *Index) Rebuild(ctx context.Context, root string, pred *Predicate, maxSize int64) (IndexStats, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	var stats IndexStats
	stale, err := x.docsUnder(root)
	if err != nil {
		return stats, err
	}

	batch := x.idx.NewBatch()
	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		if err := x.idx.Batch(batch); err != nil {
			return fmt.Errorf("indexing batch: %w", err)
		}
		batch.Reset()
		return nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
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
		if !d.Type().IsRegular() || !pred.IsSourceFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxSize {
			stats.Skipped++
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || isBinary(data) {
			stats.Skipped++
			return nil
		}

		delete(stale, path)
		if err := batch.Index(path, map[string]any{
			"root":   root,
			"path":   path,
			"lang":   pred.Language(path),
			"idents": identifiers(data),
		}); err != nil {
			return err
		}
		stats.Indexed++
		if batch.Size() >= indexBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	for id := range stale {
		batch.Delete(id)
		stats.Removed++
	}
	if err := flush(); err != nil {
		return stats, err
	}
	debuglog.Infof("index: %s indexed=%d removed=%d skipped=%d", root, stats.Indexed, stats.Removed, stats.Skipped)
	return stats, nil
}

// identifiers returns the distinct lowercased identifiers in data.
func identifiers(data []byte) []string {
	seen := make(map[string]struct{})
	for _, m := range identRe.FindAll(data, -1) {
		seen[strings.ToLower(string(m))] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func rootQuery(root string) bleveQuery.Query {
	q := bleve.NewTermQuery(root)
	q.SetField("root")
	return q
}

// docsUnder collects the ids of all documents indexed for root.
func (x *Index) docsUnder(root string) (map[string]struct{}, error) {
	return x.collect(rootQuery(root))
}

func (x *Index) collect(q bleveQuery.Query) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	from := 0
	for {
		req := bleve.NewSearchRequestOptions(q, indexPageSize, from, false)
		req.Fields = []string{}
		res, err := x.idx.Search(req)
		if err != nil {
			return nil, fmt.Errorf("searching index: %w", err)
		}
		for _, h := range res.Hits {
			ids[h.ID] = struct{}{}
		}
		if len(res.Hits) < indexPageSize {
			return ids, nil
		}
		from += indexPageSize
	}
}

// Candidates returns the files under root that may contain any of names,
// compared case-insensitively.
func (x *Index) Candidates(root string, names []string) ([]string, error) {
	var terms []bleveQuery.Query
	for _, n := range names {
		if n = strings.TrimSpace(n); n == "" {
			continue
		}
		tq := bleve.NewTermQuery(strings.ToLower(n))
		tq.SetField("idents")
		terms = append(terms, tq)
	}
	if len(terms) == 0 {
		return nil, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	ids, err := x.collect(bleve.NewConjunctionQuery(rootQuery(root), bleve.NewDisjunctionQuery(terms...)))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// IndexedSource scans only the files the index names as candidates.
type IndexedSource struct {
	index *Index
	pred  *Predicate
	opts  Options

	mu      sync.Mutex
	scanner *Scanner
}

var (
	_ usage.Source            = (*IndexedSource)(nil)
	_ usage.LargeFileReporter = (*IndexedSource)(nil)
)

func NewIndexedSource(index *Index, pred *Predicate, opts Options) *IndexedSource {
	return &IndexedSource{index: index, pred: pred, opts: opts}
}

func (s *IndexedSource) Generate(ctx context.Context, consume usage.Consumer) error {
	files, err := s.index.Candidates(s.opts.Root, s.opts.Names)
	if err != nil {
		return err
	}
	debuglog.Debugf("index: %d candidate files for %v", len(files), s.opts.Names)
	if len(files) == 0 {
		return nil
	}

	opts := s.opts
	opts.Files = files
	sc, err := NewScanner(s.pred, opts)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.scanner = sc
	s.mu.Unlock()
	return sc.Generate(ctx, consume)
}

func (s *IndexedSource) LargeFiles() []usage.SkippedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanner == nil {
		return nil
	}
	return s.scanner.LargeFiles()
}
