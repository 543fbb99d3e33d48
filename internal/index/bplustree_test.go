package index

import (
	"testing"

	"pagedb/pkg/types"
)

func newTestBPlusTree(t *testing.T, order int) *BPlusTree {
	t.Helper()
	dir := t.TempDir()
	bt, err := NewBPlusTree(seqTestSchema(), dir, "t", order)
	if err != nil {
		t.Fatalf("NewBPlusTree() error = %v", err)
	}
	return bt
}

func TestBPlusTreeBuildAndSearch(t *testing.T) {
	bt := newTestBPlusTree(t, 5)
	ids := make([]int, 0, 30)
	for i := 0; i < 30; i++ {
		ids = append(ids, i)
	}
	if err := bt.Build(seqTestRows(ids...)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	bt.ResetIOStats()

	got, err := bt.Search(types.NewInt(22))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0]["id"].IntVal != 22 {
		t.Fatalf("Search(22) = %+v, want one row with id 22", got)
	}
	if stats := bt.IOStats(); stats.Reads != 1 {
		t.Errorf("Search() disk_reads = %d, want 1", stats.Reads)
	}
}

func TestBPlusTreeRangeSearchScenarioS4(t *testing.T) {
	bt := newTestBPlusTree(t, 5)
	ids := make([]int, 0, 30)
	for i := 0; i < 30; i++ {
		ids = append(ids, i)
	}
	if err := bt.Build(seqTestRows(ids...)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	bt.ResetIOStats()

	got, err := bt.RangeSearch(types.NewInt(18), types.NewInt(23))
	if err != nil {
		t.Fatalf("RangeSearch() error = %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("RangeSearch(18,23) returned %d rows, want 6", len(got))
	}
	for i, row := range got {
		if row["id"].IntVal != int64(18+i) {
			t.Errorf("result[%d] id = %d, want %d", i, row["id"].IntVal, 18+i)
		}
	}
	stats := bt.IOStats()
	if stats.Reads > 2 {
		t.Errorf("RangeSearch(18,23) disk_reads = %d, want <= 2 (order 5 leaves span [15-19],[20-24])", stats.Reads)
	}
}

func TestBPlusTreeAddGoesToOverflow(t *testing.T) {
	bt := newTestBPlusTree(t, 5)
	if err := bt.Build(seqTestRows(1, 2, 3, 4, 5)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := bt.Add(types.Row{"id": types.NewInt(999), "name": types.NewText("x")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	got, err := bt.Search(types.NewInt(999))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Search(999) = %d rows, want 1", len(got))
	}
}

func TestBPlusTreeRemoveSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	bt, err := NewBPlusTree(seqTestSchema(), dir, "t", 4)
	if err != nil {
		t.Fatalf("NewBPlusTree() error = %v", err)
	}
	if err := bt.Build(seqTestRows(1, 2, 3, 4, 5, 6, 7, 8)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	deleted, err := bt.Remove(types.NewInt(3))
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("Remove(3) deleted = %d, want 1", deleted)
	}

	reopened, err := NewBPlusTree(seqTestSchema(), dir, "t", 4)
	if err != nil {
		t.Fatalf("NewBPlusTree() (reopen) error = %v", err)
	}
	if err := reopened.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, err := reopened.Search(types.NewInt(3))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Search(3) after Remove+reload = %+v, want none", got)
	}
	got, err = reopened.Search(types.NewInt(7))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Search(7) after reload = %d rows, want 1", len(got))
	}
}

func TestBPlusTreeEmptiedLeafStaysInPlace(t *testing.T) {
	bt := newTestBPlusTree(t, 2)
	if err := bt.Build(seqTestRows(1, 2, 3, 4, 5, 6)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	numLeavesBefore := len(bt.leafIndex)

	if _, err := bt.Remove(types.NewInt(3)); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := bt.Remove(types.NewInt(4)); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(bt.leafIndex) != numLeavesBefore {
		t.Errorf("leafIndex len changed from %d to %d after emptying a leaf; leaves must stay in place", numLeavesBefore, len(bt.leafIndex))
	}

	got, err := bt.Search(types.NewInt(5))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Search(5) after neighboring leaf emptied = %d rows, want 1", len(got))
	}
}
