// Package table implements the façade binding a schema, a heap, and a
// single primary-key index: insert/delete/select dispatch, index
// persistence, and rebuild-on-open.
package table

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"pagedb/internal/config"
	"pagedb/internal/heap"
	"pagedb/internal/index"
	"pagedb/pkg/types"
)

// Table binds one schema to its heap storage and its single
// primary-key index, grounded on original_source/core/table.py.
type Table struct {
	name      string
	schema    *types.TableSchema
	heap      *heap.Heap
	index     index.Index
	indexType string
	log       *logrus.Entry
}

// New constructs or attaches the index named by indexType for schema,
// then, if rebuildIndexes is set (the catalog-restore path), attempts
// to recover the index's on-disk state before falling back to a full
// heap rebuild.
func New(schema *types.TableSchema, h *heap.Heap, dataDir string, indexType string, cfg config.Config, rebuildIndexes bool, log *logrus.Logger) (*Table, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	idx, err := newIndex(schema, dataDir, schema.Name, indexType, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "table %s: constructing %s index", schema.Name, indexType)
	}
	t := &Table{
		name:      schema.Name,
		schema:    schema,
		heap:      h,
		index:     idx,
		indexType: indexType,
		log:       log.WithFields(logrus.Fields{"table": schema.Name, "index_type": indexType}),
	}
	if rebuildIndexes {
		if err := t.rebuildIndex(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// newIndex is the (schema, dir, table, index_type, config) -> Index
// factory the index-type switch names.
func newIndex(schema *types.TableSchema, dir, table, indexType string, cfg config.Config) (index.Index, error) {
	switch indexType {
	case "isam":
		return index.NewISAM(schema, dir, table, cfg.Fanout, cfg.FanoutL2)
	case "ext_hash":
		return index.NewExtendibleHash(schema, dir, table, cfg.GlobalDepth, cfg.BucketSize)
	case "bplustree":
		return index.NewBPlusTree(schema, dir, table, cfg.Order)
	default:
		return index.NewSequential(schema, dir, table, cfg.BlockSize, cfg.ReorganizeThreshold)
	}
}

// rebuildIndex implements the recovery order: Load() from
// the index's own files first, and only on failure fall back to
// scanning the heap and rebuilding.
func (t *Table) rebuildIndex() error {
	if err := t.index.Load(); err == nil {
		return nil
	} else {
		t.log.WithField("reason", err.Error()).Debug("index load failed, rebuilding from heap")
	}

	rows, err := t.heap.ReadAll(t.name)
	if err != nil {
		return errors.Wrapf(err, "table %s: reading heap for index rebuild", t.name)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := t.index.Build(rows); err != nil {
		return errors.Wrapf(err, "table %s: rebuilding index from heap", t.name)
	}
	return t.index.Save()
}

// Load appends rows to the heap, (re)builds the index from exactly
// this batch (mirroring original_source/core/table.py's load: build()
// is called with the batch being loaded, not the full accumulated
// table), and persists the index.
func (t *Table) Load(rows []types.Row) error {
	if err := t.heap.Load(t.name, t.schema, rows); err != nil {
		return errors.Wrapf(err, "table %s: loading rows into heap", t.name)
	}
	if err := t.index.Build(rows); err != nil {
		return errors.Wrapf(err, "table %s: building index", t.name)
	}
	if err := t.index.Save(); err != nil {
		return errors.Wrapf(err, "table %s: persisting index", t.name)
	}
	t.log.WithField("rows", len(rows)).Info("loaded rows")
	return nil
}

// Insert appends a single row to the heap and to the index, then
// persists the index.
func (t *Table) Insert(row types.Row) error {
	if err := t.heap.Load(t.name, t.schema, []types.Row{row}); err != nil {
		return errors.Wrapf(err, "table %s: inserting row", t.name)
	}
	if err := t.index.Add(row); err != nil {
		return errors.Wrapf(err, "table %s: indexing inserted row", t.name)
	}
	return t.index.Save()
}

// Delete removes every row whose key equals key, via the index. The
// index is authoritative for presence; the heap is not rewritten here.
func (t *Table) Delete(key types.Value) (int, error) {
	deleted, err := t.index.Remove(key)
	if err != nil {
		return 0, errors.Wrapf(err, "table %s: deleting key %v", t.name, key)
	}
	return deleted, nil
}

// SelectEq returns every row whose column equals value. If column is
// the schema's key column, the primary index serves the lookup;
// otherwise this falls back to a full heap scan.
func (t *Table) SelectEq(column string, value types.Value) ([]types.Row, error) {
	if t.isKeyColumn(column) {
		rows, err := t.index.Search(value)
		if err != nil {
			return nil, errors.Wrapf(err, "table %s: select_eq(%s)", t.name, column)
		}
		return rows, nil
	}
	rows, err := t.heap.ReadAll(t.name)
	if err != nil {
		return nil, errors.Wrapf(err, "table %s: heap scan for select_eq(%s)", t.name, column)
	}
	out := make([]types.Row, 0)
	for _, row := range rows {
		v, ok := matchColumn(row, column)
		if ok && types.Compare(v, value) == 0 {
			out = append(out, row)
		}
	}
	return out, nil
}

// SelectRange returns every row whose column lies within [lo, hi],
// ascending by column. If column is the schema's key column, the
// primary index's range_search serves the lookup; otherwise this
// falls back to a full heap scan plus a stable sort.
func (t *Table) SelectRange(column string, lo, hi types.Value) ([]types.Row, error) {
	if t.isKeyColumn(column) {
		rows, err := t.index.RangeSearch(lo, hi)
		if err != nil {
			return nil, errors.Wrapf(err, "table %s: select_range(%s)", t.name, column)
		}
		return rows, nil
	}
	rows, err := t.heap.ReadAll(t.name)
	if err != nil {
		return nil, errors.Wrapf(err, "table %s: heap scan for select_range(%s)", t.name, column)
	}
	out := make([]types.Row, 0)
	for _, row := range rows {
		v, ok := matchColumn(row, column)
		if ok && types.Compare(v, lo) >= 0 && types.Compare(v, hi) <= 0 {
			out = append(out, row)
		}
	}
	return sortRowsByColumn(column, out), nil
}

// Schema returns the table's schema.
func (t *Table) Schema() *types.TableSchema { return t.schema }

// IndexType returns the configured index type.
func (t *Table) IndexType() string { return t.indexType }

// IOStats returns the index's own I/O counters.
func (t *Table) IOStats() map[string]any {
	snap := t.index.IOStats()
	return map[string]any{"reads": snap.Reads, "writes": snap.Writes}
}

// IndexIOSnapshot returns the primary index's raw read/write counters.
func (t *Table) IndexIOSnapshot() (reads, writes uint64) {
	snap := t.index.IOStats()
	return snap.Reads, snap.Writes
}

// ResetIndexIOStats zeroes the primary index's own read/write counters.
func (t *Table) ResetIndexIOStats() { t.index.ResetIOStats() }

// StructureInfo exposes the index's internal shape (for a `structure`
// diagnostic command).
func (t *Table) StructureInfo() map[string]any { return t.index.StructureInfo() }

func (t *Table) isKeyColumn(column string) bool {
	return index.NormalizeColumnName(column) == index.NormalizeColumnName(t.schema.KeyColumn)
}

// matchColumn looks up column in row, tolerating the same name
// normalization the primary index applies to its key column.
func matchColumn(row types.Row, column string) (types.Value, bool) {
	if v, ok := row[column]; ok {
		return v, true
	}
	target := index.NormalizeColumnName(column)
	for k, v := range row {
		if index.NormalizeColumnName(k) == target {
			return v, true
		}
	}
	return types.Value{}, false
}

// sortRowsByColumn returns a stable ascending-by-column copy of rows,
// used by the non-indexed select_range fallback: results must come
// back ordered ascending by column, same as an indexed range_search.
func sortRowsByColumn(column string, rows []types.Row) []types.Row {
	sorted := make([]types.Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		vi, _ := matchColumn(sorted[i], column)
		vj, _ := matchColumn(sorted[j], column)
		return types.Compare(vi, vj) < 0
	})
	return sorted
}
