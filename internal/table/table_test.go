package table

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagedb/internal/config"
	"pagedb/internal/heap"
	"pagedb/internal/storage"
	"pagedb/pkg/types"
)

func testSchema() *types.TableSchema {
	return &types.TableSchema{
		Name:      "people",
		KeyColumn: "id",
		Columns: []types.Column{
			{Name: "id", Type: types.ValueTypeInt},
			{Name: "name", Type: types.ValueTypeText},
		},
	}
}

func testRows(ids ...int) []types.Row {
	rows := make([]types.Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, types.Row{
			"id":   types.NewInt(int64(id)),
			"name": types.NewText("name"),
		})
	}
	return rows
}

func newTestHeap(t *testing.T, dir string) *heap.Heap {
	t.Helper()
	disk, err := storage.NewDiskManager(dir)
	require.NoError(t, err)
	pool := storage.NewBufferPool(disk, 50)
	h, err := heap.New(disk, pool, filepath.Join(dir, "catalog.json"), 10)
	require.NoError(t, err)
	return h
}

func newTestTable(t *testing.T, dir, indexType string) *Table {
	t.Helper()
	h := newTestHeap(t, dir)
	schema := testSchema()
	require.NoError(t, h.SetSchema(schema.Name, schema))
	tb, err := New(schema, h, dir, indexType, config.Default(), false, nil)
	require.NoError(t, err)
	return tb
}

func TestTableLoadAndSelectEqUsesIndex(t *testing.T) {
	dir := t.TempDir()
	tb := newTestTable(t, dir, "sequential")

	require.NoError(t, tb.Load(testRows(1, 2, 3, 4, 5)))

	rows, err := tb.SelectEq("id", types.NewInt(3))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0]["id"].IntVal)
}

func TestTableSelectEqNonKeyColumnScansHeap(t *testing.T) {
	dir := t.TempDir()
	tb := newTestTable(t, dir, "sequential")
	require.NoError(t, tb.Load(testRows(1, 2, 3)))

	rows, err := tb.SelectEq("name", types.NewText("name"))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestTableInsertThenSelect(t *testing.T) {
	dir := t.TempDir()
	tb := newTestTable(t, dir, "isam")
	require.NoError(t, tb.Load(testRows(1, 2, 3)))

	require.NoError(t, tb.Insert(types.Row{"id": types.NewInt(999), "name": types.NewText("new")}))

	rows, err := tb.SelectEq("id", types.NewInt(999))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0]["name"].TextVal)
}

func TestTableDeleteIsIndexAuthoritative(t *testing.T) {
	dir := t.TempDir()
	tb := newTestTable(t, dir, "bplustree")
	require.NoError(t, tb.Load(testRows(1, 2, 3, 4, 5)))

	deleted, err := tb.Delete(types.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	rows, err := tb.SelectEq("id", types.NewInt(3))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTableSelectRangeUsesIndex(t *testing.T) {
	dir := t.TempDir()
	tb := newTestTable(t, dir, "bplustree")
	ids := make([]int, 0, 20)
	for i := 0; i < 20; i++ {
		ids = append(ids, i)
	}
	require.NoError(t, tb.Load(testRows(ids...)))

	rows, err := tb.SelectRange("id", types.NewInt(5), types.NewInt(9))
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, int64(5+i), row["id"].IntVal)
	}
}

func TestTableRebuildFromHeapWhenIndexFilesMissing(t *testing.T) {
	dir := t.TempDir()
	h := newTestHeap(t, dir)
	schema := testSchema()
	require.NoError(t, h.SetSchema(schema.Name, schema))
	require.NoError(t, h.Load(schema.Name, schema, testRows(1, 2, 3, 4, 5)))

	// No index was ever built/saved for this heap data; rebuild_indexes
	// must fall back to scanning the heap.
	tb, err := New(schema, h, dir, "sequential", config.Default(), true, nil)
	require.NoError(t, err)

	rows, err := tb.SelectEq("id", types.NewInt(4))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestTableRebuildLoadsPersistedIndex(t *testing.T) {
	dir := t.TempDir()
	h := newTestHeap(t, dir)
	schema := testSchema()
	require.NoError(t, h.SetSchema(schema.Name, schema))

	tb, err := New(schema, h, dir, "isam", config.Default(), false, nil)
	require.NoError(t, err)
	require.NoError(t, tb.Load(testRows(1, 2, 3)))

	reopened, err := New(schema, h, dir, "isam", config.Default(), true, nil)
	require.NoError(t, err)
	rows, err := reopened.SelectEq("id", types.NewInt(2))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
