// Package heap implements records-in-pages heap storage on top of
// internal/storage, plus the catalog.json metadata document describing
// every table (spec §4.3).
package heap

import (
	"github.com/pkg/errors"

	"pagedb/internal/metrics"
	"pagedb/internal/record"
	"pagedb/internal/storage"
	"pagedb/pkg/types"
)

// Heap is the heap-storage layer shared by every table: it chunks rows
// into records_per_page pages and tracks per-table metadata in a
// Catalog document.
type Heap struct {
	disk            *storage.DiskManager
	pool            *storage.BufferPool
	catalog         *Catalog
	recordsPerPage  int
}

// New constructs a Heap over disk/pool, persisting metadata at
// catalogPath.
func New(disk *storage.DiskManager, pool *storage.BufferPool, catalogPath string, recordsPerPage int) (*Heap, error) {
	cat, err := OpenCatalog(catalogPath)
	if err != nil {
		return nil, err
	}
	return &Heap{disk: disk, pool: pool, catalog: cat, recordsPerPage: recordsPerPage}, nil
}

// Catalog exposes the underlying metadata store.
func (h *Heap) Catalog() *Catalog { return h.catalog }

// DiskIOStats returns the underlying disk manager's physical read/write
// counters, aggregated by request handlers alongside each index's own
// counters (the response's `io` field).
func (h *Heap) DiskIOStats() metrics.Snapshot { return h.disk.Counters() }

// ResetDiskIOStats zeroes the underlying disk manager's counters,
// called at statement entry so `io` reflects one statement's work.
func (h *Heap) ResetDiskIOStats() { h.disk.ResetCounters() }

// CreateTable idempotently registers an empty table with index_type
// "sequential" and a nil schema.
func (h *Heap) CreateTable(name string) error {
	if _, ok := h.catalog.Get(name); ok {
		return nil
	}
	return h.catalog.Set(name, TableMeta{IndexType: "sequential"})
}

// SetSchema records name's schema, preserving its other metadata.
func (h *Heap) SetSchema(name string, schema *types.TableSchema) error {
	meta, _ := h.catalog.Get(name)
	meta.Schema = schema
	return h.catalog.Set(name, meta)
}

// SetIndexType records name's chosen index type, preserving other
// metadata (spec §9: CreateTableUsing precedes any schema).
func (h *Heap) SetIndexType(name, indexType string) error {
	meta, _ := h.catalog.Get(name)
	meta.IndexType = indexType
	return h.catalog.Set(name, meta)
}

// Load splits rows into records_per_page chunks and appends them as
// successive pages, writing each through the buffer pool with
// write-through semantics, then updates and saves metadata.
func (h *Heap) Load(name string, schema *types.TableSchema, rows []types.Row) error {
	meta, _ := h.catalog.Get(name)
	if meta.Schema == nil {
		meta.Schema = schema
	}

	for start := 0; start < len(rows); start += h.recordsPerPage {
		end := start + h.recordsPerPage
		if end > len(rows) {
			end = len(rows)
		}
		if err := h.writeChunk(name, meta.Schema, rows[start:end]); err != nil {
			return err
		}
	}

	meta.NumRecords += len(rows)
	meta.NumPages = int(h.disk.GetNumPages(name))
	return h.catalog.Set(name, meta)
}

func (h *Heap) writeChunk(name string, schema *types.TableSchema, rows []types.Row) error {
	page, err := h.disk.AllocatePage(name)
	if err != nil {
		return err
	}
	payload, err := encodeRows(schema, rows)
	if err != nil {
		return err
	}
	if err := page.SetPayload(payload); err != nil {
		return err
	}
	return h.pool.PutPage(name, page, true)
}

// ReadAll concatenates every page's rows in page order (insertion
// order).
func (h *Heap) ReadAll(name string) ([]types.Row, error) {
	meta, ok := h.catalog.Get(name)
	if !ok || meta.Schema == nil {
		return nil, nil
	}
	var out []types.Row
	n := h.disk.GetNumPages(name)
	for id := uint32(0); id < n; id++ {
		rows, err := h.ReadPage(name, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// ReadPage returns the decoded rows of one page.
func (h *Heap) ReadPage(name string, pageID uint32) ([]types.Row, error) {
	meta, ok := h.catalog.Get(name)
	if !ok || meta.Schema == nil {
		return nil, nil
	}
	page, err := h.pool.GetPage(name, pageID)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, nil
	}
	buf := make([]byte, storage.PageSize)
	copy(buf, page.Payload)
	return decodeRows(meta.Schema, buf)
}

// WritePage overwrites one page's contents in place.
func (h *Heap) WritePage(name string, pageID uint32, rows []types.Row) error {
	meta, ok := h.catalog.Get(name)
	if !ok || meta.Schema == nil {
		return errors.New("heap: WritePage on table with no schema")
	}
	payload, err := encodeRows(meta.Schema, rows)
	if err != nil {
		return err
	}
	page := storage.NewPage(pageID)
	if err := page.SetPayload(payload); err != nil {
		return err
	}
	return h.pool.PutPage(name, page, true)
}

// ClearTable flushes the table's pages out of the pool, truncates the
// heap file, and zeroes its record/page counts.
func (h *Heap) ClearTable(name string) error {
	if err := h.pool.ClearTable(name); err != nil {
		return err
	}
	if err := h.disk.Truncate(name); err != nil {
		return err
	}
	meta, _ := h.catalog.Get(name)
	meta.NumRecords = 0
	meta.NumPages = 0
	return h.catalog.Set(name, meta)
}

// DeleteTable clears the table then removes its file and catalog
// entry entirely.
func (h *Heap) DeleteTable(name string) error {
	if err := h.ClearTable(name); err != nil {
		return err
	}
	if err := h.disk.DeleteTable(name); err != nil {
		return err
	}
	return h.catalog.Delete(name)
}

func encodeRows(schema *types.TableSchema, rows []types.Row) ([]byte, error) {
	payloads := make([][]byte, 0, len(rows))
	for _, row := range rows {
		p, err := record.EncodeRow(schema, row)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}
	return record.EncodeFrames(payloads), nil
}

func decodeRows(schema *types.TableSchema, payload []byte) ([]types.Row, error) {
	frames := record.DecodeFrames(payload)
	rows := make([]types.Row, 0, len(frames))
	for _, f := range frames {
		row, err := record.DecodeRow(schema, f)
		if err != nil {
			// A corrupt record within an otherwise-valid page is treated
			// like a truncated trailing page: stop, keep what decoded.
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}
