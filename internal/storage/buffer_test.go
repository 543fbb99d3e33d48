package storage

import "testing"

func newTestPool(t *testing.T, capacity int) *BufferPool {
	t.Helper()
	dm, err := NewDiskManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskManager() error = %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	return NewBufferPool(dm, capacity)
}

func loadPages(t *testing.T, bp *BufferPool, table string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		page, err := bp.disk.AllocatePage(table)
		if err != nil {
			t.Fatalf("AllocatePage() error = %v", err)
		}
		page.SetPayload([]byte{byte(i)})
		if err := bp.PutPage(table, page, true); err != nil {
			t.Fatalf("PutPage() error = %v", err)
		}
	}
	if err := bp.ClearTable(table); err != nil {
		t.Fatalf("ClearTable() error = %v", err)
	}
}

// TestLRUEvictionScenario matches spec scenario S5: records_per_page=5,
// pool_size=3; load 5 pages, reset stats, read pages 0..4 sequentially
// (5 misses, 0 hits, 3 resident), then re-read page 0 (1 more miss).
func TestLRUEvictionScenario(t *testing.T) {
	bp := newTestPool(t, 3)
	loadPages(t, bp, "t", 5)
	bp.ResetStats()

	for i := uint32(0); i < 5; i++ {
		if _, err := bp.GetPage("t", i); err != nil {
			t.Fatalf("GetPage(%d) error = %v", i, err)
		}
	}
	stats := bp.Stats()
	if stats.Misses != 5 {
		t.Errorf("Misses = %d, want 5", stats.Misses)
	}
	if stats.Hits != 0 {
		t.Errorf("Hits = %d, want 0", stats.Hits)
	}
	if stats.Resident != 3 {
		t.Errorf("Resident = %d, want 3", stats.Resident)
	}

	if _, err := bp.GetPage("t", 0); err != nil {
		t.Fatalf("GetPage(0) again error = %v", err)
	}
	stats = bp.Stats()
	if stats.Misses != 6 {
		t.Errorf("Misses after re-read = %d, want 6", stats.Misses)
	}
}

func TestEvictionWritesBackDirtyPage(t *testing.T) {
	bp := newTestPool(t, 1)

	p0, err := bp.disk.AllocatePage("t")
	if err != nil {
		t.Fatalf("AllocatePage() error = %v", err)
	}
	p0.SetPayload([]byte("first"))
	if err := bp.PutPage("t", p0, false); err != nil {
		t.Fatalf("PutPage() error = %v", err)
	}

	p1, err := bp.disk.AllocatePage("u")
	if err != nil {
		t.Fatalf("AllocatePage() error = %v", err)
	}
	p1.SetPayload([]byte("second"))
	if err := bp.PutPage("u", p1, false); err != nil {
		t.Fatalf("PutPage() error = %v", err)
	}

	got, err := bp.disk.ReadPage("t", 0)
	if err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	if got == nil || string(got.Payload) != "first" {
		t.Errorf("evicted dirty page not written back: got %v", got)
	}
}

func TestFlushTableDoesNotEvict(t *testing.T) {
	bp := newTestPool(t, 10)
	p, _ := bp.disk.AllocatePage("t")
	p.SetPayload([]byte("x"))
	bp.PutPage("t", p, false)

	if err := bp.FlushTable("t"); err != nil {
		t.Fatalf("FlushTable() error = %v", err)
	}
	if bp.Stats().Resident != 1 {
		t.Errorf("Resident after flush = %d, want 1 (flush must not evict)", bp.Stats().Resident)
	}

	got, err := bp.GetPage("t", 0)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if got.Dirty {
		t.Error("page should be clean after flush")
	}
}

func TestClearTableRemovesResidentPages(t *testing.T) {
	bp := newTestPool(t, 10)
	loadPages(t, bp, "a", 2)
	loadPages(t, bp, "b", 2)

	if _, err := bp.GetPage("a", 0); err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if _, err := bp.GetPage("b", 0); err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}

	if err := bp.ClearTable("a"); err != nil {
		t.Fatalf("ClearTable() error = %v", err)
	}
	stats := bp.Stats()
	if stats.Resident != 1 {
		t.Errorf("Resident after ClearTable(a) = %d, want 1 (only b/0 left)", stats.Resident)
	}
}
