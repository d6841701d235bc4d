// Package catalog holds the set of detector files an analysis run works on.
//
// A Catalog owns one FileRecord per path. Records are registered from file
// names alone; payloads load lazily, at most once per record, and a failed
// load only marks that record invalid. Grouping and statistics operate on
// Valid records; Invalid ones stay enumerable for the excluded-files report.
package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/esa.report/internal/detector"
	"github.com/banshee-data/esa.report/internal/fsutil"
	"github.com/banshee-data/esa.report/internal/monitoring"
	"github.com/banshee-data/esa.report/internal/params"
)

// Catalog is the registry of FileRecords for one run.
type Catalog struct {
	loader     detector.Loader
	minNonZero int

	mu      sync.RWMutex
	records []*FileRecord
	byPath  map[string]*FileRecord
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithMinNonZero sets the non-zero sample count below which a record is
// invalid. The default is 1.
func WithMinNonZero(n int) Option {
	return func(c *Catalog) { c.minNonZero = n }
}

// New returns an empty catalog reading payloads through loader.
func New(loader detector.Loader, opts ...Option) *Catalog {
	c := &Catalog{
		loader:     loader,
		minNonZero: 1,
		byPath:     make(map[string]*FileRecord),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register parses path and adds it to the catalog. Registering a path twice
// returns the existing record.
func (c *Catalog) Register(path string) *FileRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.byPath[path]; ok {
		return r
	}
	r := &FileRecord{
		Record:     params.Parse(path),
		index:      len(c.records),
		loader:     c.loader,
		minNonZero: c.minNonZero,
	}
	c.records = append(c.records, r)
	c.byPath[path] = r
	return r
}

// Lookup returns the record registered for path.
func (c *Catalog) Lookup(path string) (*FileRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byPath[path]
	return r, ok
}

// Len returns the number of registered records.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// All returns every record in discovery order.
func (c *Catalog) All() []*FileRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*FileRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Filter returns the records matching pred in discovery order. It does not
// load payloads unless pred does.
func (c *Catalog) Filter(pred func(*FileRecord) bool) []*FileRecord {
	var out []*FileRecord
	for _, r := range c.All() {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Valid returns the records that loaded and passed the quality check.
func (c *Catalog) Valid() []*FileRecord {
	return c.Filter((*FileRecord).Valid)
}

// Invalid returns the records excluded from analysis.
func (c *Catalog) Invalid() []*FileRecord {
	return c.Filter(func(r *FileRecord) bool { return !r.Valid() })
}

// Discover registers every detector file directly inside dir, in name
// order. It returns the number of files found.
func (c *Catalog) Discover(fsys fsutil.FileSystem, dir string) (int, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() || params.FileTypeOf(e.Name()) == params.FileTypeUnknown {
			continue
		}
		c.Register(filepath.Join(dir, e.Name()))
		n++
	}
	monitoring.Logf("Discovered %d data files in %s", n, dir)
	return n, nil
}

// LoadAll loads every record's payload using up to workers goroutines.
// done, if non-nil, is called once per record after it loads and must be
// safe for concurrent use. Load failures are recorded on the records; only
// context cancellation is returned.
func (c *Catalog) LoadAll(ctx context.Context, workers int, done func(*FileRecord)) error {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, r := range c.All() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := r.LoadError(); err != nil {
				monitoring.Logf("Excluding %s: %v", filepath.Base(r.Path()), err)
			}
			if done != nil {
				done(r)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
