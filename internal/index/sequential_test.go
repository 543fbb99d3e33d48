package index

import (
	"testing"

	"pagedb/pkg/types"
)

func seqTestSchema() *types.TableSchema {
	return &types.TableSchema{
		Name:      "t",
		KeyColumn: "id",
		Columns: []types.Column{
			{Name: "id", Type: types.ValueTypeInt},
			{Name: "name", Type: types.ValueTypeText},
		},
	}
}

func seqTestRows(ids ...int) []types.Row {
	rows := make([]types.Row, len(ids))
	for i, id := range ids {
		rows[i] = types.Row{"id": types.NewInt(int64(id)), "name": types.NewText("r")}
	}
	return rows
}

func newTestSequential(t *testing.T, blockSize int, threshold float64) *Sequential {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSequential(seqTestSchema(), dir, "t", blockSize, threshold)
	if err != nil {
		t.Fatalf("NewSequential() error = %v", err)
	}
	return s
}

func TestSequentialBuildAndSearch(t *testing.T) {
	s := newTestSequential(t, 3, 0.1)
	rows := seqTestRows(5, 1, 9, 3, 7, 2, 8, 4, 6, 0)
	if err := s.Build(rows); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	got, err := s.Search(types.NewInt(7))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0]["id"].IntVal != 7 {
		t.Fatalf("Search(7) = %+v, want one row with id 7", got)
	}

	if _, err := s.Search(types.NewInt(999)); err != nil {
		t.Fatalf("Search(missing) error = %v", err)
	}

	stats := s.IOStats()
	if stats.Reads != 2 {
		t.Errorf("Search() disk_reads = %d, want 2 (one block read per Search call)", stats.Reads)
	}
}

func TestSequentialRangeSearchScenarioS1(t *testing.T) {
	s := newTestSequential(t, 3, 0.1)
	ids := make([]int, 0, 30)
	for i := 0; i < 30; i++ {
		ids = append(ids, i)
	}
	if err := s.Build(seqTestRows(ids...)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	s.ResetIOStats()

	got, err := s.RangeSearch(types.NewInt(10), types.NewInt(15))
	if err != nil {
		t.Fatalf("RangeSearch() error = %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("RangeSearch(10,15) returned %d rows, want 6", len(got))
	}
	for i, row := range got {
		if row["id"].IntVal != int64(10+i) {
			t.Errorf("result[%d] id = %d, want %d", i, row["id"].IntVal, 10+i)
		}
	}
}

func TestSequentialAddGoesToOverflowThenReorganizes(t *testing.T) {
	s := newTestSequential(t, 5, 0.2)
	if err := s.Build(seqTestRows(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := s.Add(types.Row{"id": types.NewInt(100), "name": types.NewText("new")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(s.overflow) != 1 {
		t.Fatalf("after one Add, overflow len = %d, want 1 (below reorganize threshold)", len(s.overflow))
	}

	if err := s.Add(types.Row{"id": types.NewInt(101), "name": types.NewText("new")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Add(types.Row{"id": types.NewInt(102), "name": types.NewText("new")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(s.overflow) != 0 {
		t.Errorf("after crossing threshold, overflow should have been reorganized away, got len %d", len(s.overflow))
	}

	got, err := s.Search(types.NewInt(101))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Search(101) after reorganize = %d rows, want 1", len(got))
	}
}

func TestSequentialRemoveDeletesFromBlocksAndPersists(t *testing.T) {
	s := newTestSequential(t, 3, 0.5)
	if err := s.Build(seqTestRows(1, 2, 3, 4, 5, 6)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	deleted, err := s.Remove(types.NewInt(4))
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("Remove(4) deleted = %d, want 1", deleted)
	}

	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, err := s.Search(types.NewInt(4))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Search(4) after Remove+Load = %+v, want none (deletion must survive reload)", got)
	}
}

func TestSequentialLoadRebuildsBlockIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSequential(seqTestSchema(), dir, "t", 4, 0.1)
	if err != nil {
		t.Fatalf("NewSequential() error = %v", err)
	}
	if err := s.Build(seqTestRows(1, 2, 3, 4, 5, 6, 7, 8, 9)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	reopened, err := NewSequential(seqTestSchema(), dir, "t", 4, 0.1)
	if err != nil {
		t.Fatalf("NewSequential() (reopen) error = %v", err)
	}
	if err := reopened.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(reopened.blockIndex) != len(s.blockIndex) {
		t.Fatalf("reopened blockIndex has %d entries, want %d", len(reopened.blockIndex), len(s.blockIndex))
	}
	got, err := reopened.Search(types.NewInt(7))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Search(7) after reload = %d rows, want 1", len(got))
	}
}

func TestSequentialClearRemovesData(t *testing.T) {
	s := newTestSequential(t, 3, 0.1)
	if err := s.Build(seqTestRows(1, 2, 3)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	got, err := s.Search(types.NewInt(1))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Search() after Clear() = %+v, want none", got)
	}
}
