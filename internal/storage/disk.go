package storage

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"pagedb/internal/metrics"
)

// DiskManager owns a directory of per-table heap files and performs all
// physical reads/writes by (table, page_id). Each table's file holds
// `num_pages * PageSize` bytes exactly, with no header (Invariant 1).
type DiskManager struct {
	mu       sync.Mutex
	dir      string
	files    map[string]*os.File
	numPages map[string]uint32
	counters metrics.Counters
}

// NewDiskManager opens (creating if absent) the given storage directory.
func NewDiskManager(dir string) (*DiskManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "disk manager: creating directory %s", dir)
	}
	return &DiskManager{
		dir:      dir,
		files:    make(map[string]*os.File),
		numPages: make(map[string]uint32),
	}, nil
}

func (dm *DiskManager) path(table string) string {
	return filepath.Join(dm.dir, table+".dat")
}

// openLocked returns the open file handle for table, creating it if
// necessary, and computes its current page count from file size. Caller
// must hold dm.mu.
func (dm *DiskManager) openLocked(table string) (*os.File, error) {
	if f, ok := dm.files[table]; ok {
		return f, nil
	}
	f, err := os.OpenFile(dm.path(table), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "disk manager: opening %s", dm.path(table))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "disk manager: stat %s", dm.path(table))
	}
	dm.files[table] = f
	dm.numPages[table] = uint32(info.Size() / PageSize)
	return f, nil
}

// ReadPage reads one page. It returns (nil, nil) if the table file does
// not exist or page_id is past the current end of file — never an
// error, per spec §4.1.
func (dm *DiskManager) ReadPage(table string, pageID uint32) (*Page, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	f, err := dm.openLocked(table)
	if err != nil {
		return nil, err
	}
	if pageID >= dm.numPages[table] {
		return nil, nil
	}

	buf := make([]byte, PageSize)
	if _, err := f.ReadAt(buf, int64(pageID)*PageSize); err != nil {
		return nil, errors.Wrapf(err, "disk manager: reading page %d of %s", pageID, table)
	}
	dm.counters.AddRead()
	return &Page{ID: pageID, Payload: fromDiskBytes(buf)}, nil
}

// WritePage serializes page.Payload (zero-padding the tail) and writes
// it at its page-aligned offset. Clears Dirty and increments writes.
func (dm *DiskManager) WritePage(table string, page *Page) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	f, err := dm.openLocked(table)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(page.toDiskBytes(), int64(page.ID)*PageSize); err != nil {
		return errors.Wrapf(err, "disk manager: writing page %d of %s", page.ID, table)
	}
	if page.ID >= dm.numPages[table] {
		dm.numPages[table] = page.ID + 1
	}
	page.Dirty = false
	dm.counters.AddWrite()
	return nil
}

// AllocatePage returns a new empty page whose id is the table's current
// page count; it does not write anything to disk until WritePage.
func (dm *DiskManager) AllocatePage(table string) (*Page, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if _, err := dm.openLocked(table); err != nil {
		return nil, err
	}
	id := dm.numPages[table]
	return NewPage(id), nil
}

// ReadAllPages scans page 0..n-1 of table, each counted as one read.
func (dm *DiskManager) ReadAllPages(table string) ([]*Page, error) {
	dm.mu.Lock()
	f, err := dm.openLocked(table)
	if err != nil {
		dm.mu.Unlock()
		return nil, err
	}
	n := dm.numPages[table]
	dm.mu.Unlock()

	pages := make([]*Page, 0, n)
	for id := uint32(0); id < n; id++ {
		buf := make([]byte, PageSize)
		if _, err := f.ReadAt(buf, int64(id)*PageSize); err != nil {
			// A corrupt trailing page terminates the scan rather than
			// failing the whole read (spec §7 recovery policy).
			break
		}
		dm.mu.Lock()
		dm.counters.AddRead()
		dm.mu.Unlock()
		pages = append(pages, &Page{ID: id, Payload: fromDiskBytes(buf)})
	}
	return pages, nil
}

// GetNumPages returns the table's current page count.
func (dm *DiskManager) GetNumPages(table string) uint32 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if _, err := dm.openLocked(table); err != nil {
		return 0
	}
	return dm.numPages[table]
}

// GetTableSize returns the table file's size in bytes.
func (dm *DiskManager) GetTableSize(table string) (int64, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	f, err := dm.openLocked(table)
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "disk manager: stat %s", table)
	}
	return info.Size(), nil
}

// Truncate resets a table's file to zero length and its page count to
// zero, used by clear_table.
func (dm *DiskManager) Truncate(table string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	f, err := dm.openLocked(table)
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return errors.Wrapf(err, "disk manager: truncating %s", table)
	}
	dm.numPages[table] = 0
	return nil
}

// DeleteTable truncates, closes, and removes a table's file entirely.
func (dm *DiskManager) DeleteTable(table string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if f, ok := dm.files[table]; ok {
		f.Close()
		delete(dm.files, table)
	}
	delete(dm.numPages, table)
	if err := os.Remove(dm.path(table)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "disk manager: removing %s", dm.path(table))
	}
	return nil
}

// ResetCounters zeroes the read/write counters.
func (dm *DiskManager) ResetCounters() { dm.counters.Reset() }

// Counters returns a snapshot of the read/write counters.
func (dm *DiskManager) Counters() metrics.Snapshot { return dm.counters.Snapshot() }

// Sync flushes every open table file to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for table, f := range dm.files {
		if err := f.Sync(); err != nil {
			return errors.Wrapf(err, "disk manager: syncing %s", table)
		}
	}
	return nil
}

// Close closes every open table file.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, f := range dm.files {
		f.Close()
	}
	dm.files = make(map[string]*os.File)
	return nil
}
