package storage

import (
	"container/list"
	"sync"

	"github.com/pkg/errors"
)

// pageKey identifies a cached page uniquely across all tables.
type pageKey struct {
	table string
	id    uint32
}

// BufferPool is a fixed-capacity LRU cache of pages keyed by
// (table, page_id), shared by every table's heap accesses. Eviction
// writes dirty pages back through the disk manager before removing
// them.
type BufferPool struct {
	mu       sync.Mutex
	disk     *DiskManager
	capacity int

	pages map[pageKey]*Page
	lru   *list.List
	elems map[pageKey]*list.Element

	hits   uint64
	misses uint64
}

// NewBufferPool creates a buffer pool of the given page capacity backed
// by disk.
func NewBufferPool(disk *DiskManager, capacity int) *BufferPool {
	return &BufferPool{
		disk:     disk,
		capacity: capacity,
		pages:    make(map[pageKey]*Page),
		lru:      list.New(),
		elems:    make(map[pageKey]*list.Element),
	}
}

// GetPage returns the page for (table, id), reading through to disk on
// a miss. Moves the entry to the MRU end either way.
func (bp *BufferPool) GetPage(table string, id uint32) (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	key := pageKey{table, id}
	if p, ok := bp.pages[key]; ok {
		bp.hits++
		bp.touch(key)
		return p, nil
	}

	bp.misses++
	p, err := bp.disk.ReadPage(table, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	if err := bp.insertLocked(key, p); err != nil {
		return nil, err
	}
	return p, nil
}

// PutPage installs page into the pool as dirty (or flushes it
// immediately if writeThrough is set), evicting the LRU entry if the
// pool is at capacity.
func (bp *BufferPool) PutPage(table string, page *Page, writeThrough bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	key := pageKey{table, page.ID}
	page.Dirty = true
	if err := bp.insertLocked(key, page); err != nil {
		return err
	}
	if writeThrough {
		if err := bp.disk.WritePage(table, page); err != nil {
			return err
		}
		page.Dirty = false
	}
	return nil
}

// insertLocked inserts or refreshes key->page at the MRU end, evicting
// if necessary. Caller must hold bp.mu.
func (bp *BufferPool) insertLocked(key pageKey, page *Page) error {
	if _, exists := bp.pages[key]; !exists && len(bp.pages) >= bp.capacity {
		if err := bp.evictOneLocked(); err != nil {
			return err
		}
	}
	bp.pages[key] = page
	bp.touch(key)
	return nil
}

// evictOneLocked writes back and removes the least-recently-used page.
// Caller must hold bp.mu.
func (bp *BufferPool) evictOneLocked() error {
	e := bp.lru.Back()
	if e == nil {
		return nil
	}
	key := e.Value.(pageKey)
	page := bp.pages[key]
	if page.Dirty {
		if err := bp.disk.WritePage(key.table, page); err != nil {
			return errors.Wrapf(err, "buffer pool: evicting %s/%d", key.table, key.id)
		}
	}
	bp.lru.Remove(e)
	delete(bp.elems, key)
	delete(bp.pages, key)
	return nil
}

func (bp *BufferPool) touch(key pageKey) {
	if e, ok := bp.elems[key]; ok {
		bp.lru.MoveToFront(e)
		return
	}
	bp.elems[key] = bp.lru.PushFront(key)
}

// FlushPage writes back one page if it is dirty and resident, without
// evicting it.
func (bp *BufferPool) FlushPage(table string, id uint32) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	key := pageKey{table, id}
	page, ok := bp.pages[key]
	if !ok || !page.Dirty {
		return nil
	}
	if err := bp.disk.WritePage(table, page); err != nil {
		return err
	}
	page.Dirty = false
	return nil
}

// FlushTable writes back every dirty page belonging to table.
func (bp *BufferPool) FlushTable(table string) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for key, page := range bp.pages {
		if key.table == table && page.Dirty {
			if err := bp.disk.WritePage(table, page); err != nil {
				return err
			}
			page.Dirty = false
		}
	}
	return nil
}

// FlushAll writes back every dirty page in the pool.
func (bp *BufferPool) FlushAll() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for key, page := range bp.pages {
		if page.Dirty {
			if err := bp.disk.WritePage(key.table, page); err != nil {
				return err
			}
			page.Dirty = false
		}
	}
	return nil
}

// ClearTable flushes then evicts every page belonging to table.
func (bp *BufferPool) ClearTable(table string) error {
	if err := bp.FlushTable(table); err != nil {
		return err
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for key := range bp.pages {
		if key.table == table {
			if e, ok := bp.elems[key]; ok {
				bp.lru.Remove(e)
				delete(bp.elems, key)
			}
			delete(bp.pages, key)
		}
	}
	return nil
}

// Stats reports hit/miss counts and current residency.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Resident int
	Capacity int
}

// Stats returns current buffer pool statistics.
func (bp *BufferPool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return Stats{Hits: bp.hits, Misses: bp.misses, Resident: len(bp.pages), Capacity: bp.capacity}
}

// ResetStats zeroes hit/miss counters (does not evict anything).
func (bp *BufferPool) ResetStats() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.hits = 0
	bp.misses = 0
}
