// Package catalog implements the process-wide table registry:
// restoring every table with a materialized schema from catalog.json
// on startup, and creating tables on demand thereafter.
package catalog

import (
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pagedb/internal/config"
	"pagedb/internal/errkind"
	"pagedb/internal/heap"
	"pagedb/internal/storage"
	"pagedb/internal/table"
	"pagedb/pkg/types"
)

const defaultIndexType = "sequential"

// Catalog is the process-wide singleton that owns every open Table,
// grounded on original_source/sql/executor.py's Catalog class.
type Catalog struct {
	dir string
	cfg config.Config
	log *logrus.Logger

	heap *heap.Heap

	mu     sync.RWMutex
	tables map[string]*table.Table
}

// Open constructs the disk manager, buffer pool, and heap rooted at
// dir, then restores every table whose catalog.json entry already
// carries a materialized schema, reopening each with
// rebuild_indexes=true in parallel (errgroup).
func Open(dir string, cfg config.Config, log *logrus.Logger) (*Catalog, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	disk, err := storage.NewDiskManager(dir)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: opening disk manager")
	}
	pool := storage.NewBufferPool(disk, cfg.PoolSize)
	h, err := heap.New(disk, pool, filepath.Join(dir, "catalog.json"), cfg.RecordsPerPage)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: opening heap")
	}

	c := &Catalog{
		dir:    dir,
		cfg:    cfg,
		log:    log,
		heap:   h,
		tables: make(map[string]*table.Table),
	}
	if err := c.restore(); err != nil {
		return nil, err
	}
	return c, nil
}

// restore reopens every catalog entry with a non-null schema
// concurrently, one goroutine per table: on construction, re-materialize
// the TableSchema and instantiate a Table with rebuild_indexes=true.
func (c *Catalog) restore() error {
	names := c.heap.Catalog().Names()

	var g errgroup.Group
	var mu sync.Mutex
	for _, name := range names {
		name := name
		meta, ok := c.heap.Catalog().Get(name)
		if !ok || meta.Schema == nil {
			continue
		}
		indexType := meta.IndexType
		if indexType == "" {
			indexType = defaultIndexType
		}
		g.Go(func() error {
			tb, err := table.New(meta.Schema, c.heap, c.dir, indexType, c.cfg, true, c.log)
			if err != nil {
				return errors.Wrapf(err, "catalog: restoring table %s", name)
			}
			mu.Lock()
			c.tables[name] = tb
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// Get returns the open table named name, if any.
func (c *Catalog) Get(name string) (*table.Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tb, ok := c.tables[name]
	return tb, ok
}

// Names returns every currently open table's name.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}

// DeclareIndexType records index_type for name in catalog.json without
// instantiating a Table — the CreateTableUsing path only records the
// chosen index in the catalog; the actual schema arrives with the next
// LOAD.
func (c *Catalog) DeclareIndexType(name, indexType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tb, ok := c.tables[name]; ok {
		_ = tb // a schema already exists; index_type is fixed at first construction.
		return nil
	}
	if err := c.heap.CreateTable(name); err != nil {
		return errors.Wrapf(err, "catalog: declaring table %s", name)
	}
	return c.heap.SetIndexType(name, indexType)
}

// Ensure creates table name on demand with a default TEXT-typed schema
// (columns named by `columns`, keyed by `key`) if it does not already
// exist, and returns the open Table either way.
func (c *Catalog) Ensure(name, key string, columns []string) (*table.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tb, ok := c.tables[name]; ok {
		return tb, nil
	}

	if err := c.heap.CreateTable(name); err != nil {
		return nil, errors.Wrapf(err, "catalog: ensuring table %s", name)
	}
	cols := make([]types.Column, len(columns))
	for i, col := range columns {
		cols[i] = types.Column{Name: col, Type: types.ValueTypeText}
	}
	schema := &types.TableSchema{Name: name, KeyColumn: key, Columns: cols}
	if err := c.heap.SetSchema(name, schema); err != nil {
		return nil, errors.Wrapf(err, "catalog: setting schema for %s", name)
	}

	meta, _ := c.heap.Catalog().Get(name)
	indexType := meta.IndexType
	if indexType == "" {
		indexType = defaultIndexType
	}

	tb, err := table.New(schema, c.heap, c.dir, indexType, c.cfg, false, c.log)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog: constructing table %s", name)
	}
	c.tables[name] = tb
	return tb, nil
}

// ResetIOStats zeroes the heap's disk-manager counters and every open
// table's index counters, called at statement entry so the next
// IOSnapshot reflects exactly one statement's work.
func (c *Catalog) ResetIOStats() {
	c.heap.ResetDiskIOStats()
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, tb := range c.tables {
		tb.ResetIndexIOStats()
	}
}

// IOSnapshot aggregates the heap's disk-manager counters with every
// open table's index counters, the sum of per-index counters and
// per-heap counters.
func (c *Catalog) IOSnapshot() (reads, writes uint64) {
	snap := c.heap.DiskIOStats()
	reads, writes = snap.Reads, snap.Writes
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, tb := range c.tables {
		r, w := tb.IndexIOSnapshot()
		reads += r
		writes += w
	}
	return reads, writes
}

// Lookup returns the open table named name, or UnknownTable.
func (c *Catalog) Lookup(name string) (*table.Table, error) {
	tb, ok := c.Get(name)
	if !ok {
		return nil, errors.Wrapf(errkind.ErrUnknownTable, "table %q", name)
	}
	return tb, nil
}
