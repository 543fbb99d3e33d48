package index

import (
	"pagedb/internal/metrics"
	"pagedb/pkg/types"
)

// leafRange is one leaf's (first_key, last_key) pair.
type leafRange struct {
	First types.Value
	Last  types.Value
}

// BPlusTree is a simplified two-level B+-tree: leaves hold full rows on
// disk in ascending-key order, and the "internal tree" is a single RAM
// array of leaf_index (first/last key per leaf) plus a root key list
// (the first key of every leaf but the first) — enough to route a
// search or range scan to the minimal set of leaves without a real
// multi-level internal node structure. Grounded on
// original_source/indexes/bplustree.py.
type BPlusTree struct {
	schema *types.TableSchema
	order  int

	leavesFile   *slottedFile
	overflowPath string

	root      []types.Value // first key of every leaf but the first
	leafIndex []leafRange
	overflow  []types.Row

	counters metrics.Counters
}

// NewBPlusTree constructs a BPlusTree index whose files live under dir,
// named after table.
func NewBPlusTree(schema *types.TableSchema, dir, table string, order int) (*BPlusTree, error) {
	leavesPath := indexFilePath(dir, table, "bplustree", "leaves", "dat")
	lf, err := openSlottedFile(leavesPath)
	if err != nil {
		return nil, err
	}
	return &BPlusTree{
		schema:       schema,
		order:        order,
		leavesFile:   lf,
		overflowPath: indexFilePath(dir, table, "bplustree", "overflow", "dat"),
	}, nil
}

// Build sorts rows, partitions into leaves of `order` records each,
// writes the leaves, and derives leaf_index + root.
func (bt *BPlusTree) Build(rows []types.Row) error {
	sorted, err := sortRowsByKey(bt.schema, rows)
	if err != nil {
		return err
	}

	var slots [][]byte
	var index []leafRange
	for start := 0; start < len(sorted); start += bt.order {
		end := start + bt.order
		if end > len(sorted) {
			end = len(sorted)
		}
		leaf := sorted[start:end]
		blob, err := encodeSlot(bt.schema, leaf)
		if err != nil {
			return err
		}
		slots = append(slots, blob)

		first, err := extractKey(bt.schema, leaf[0])
		if err != nil {
			return err
		}
		last, err := extractKey(bt.schema, leaf[len(leaf)-1])
		if err != nil {
			return err
		}
		index = append(index, leafRange{First: first, Last: last})
	}

	if err := bt.leavesFile.WriteAllSlots(slots); err != nil {
		return err
	}
	bt.counters.AddWrite()

	bt.leafIndex = index
	bt.root = make([]types.Value, 0, len(index))
	for _, lr := range index[minInt(1, len(index)):] {
		bt.root = append(bt.root, lr.First)
	}
	bt.overflow = nil
	return bt.persistOverflow()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (bt *BPlusTree) persistOverflow() error {
	blob, err := encodeSlot(bt.schema, bt.overflow)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(bt.overflowPath, blob); err != nil {
		return err
	}
	bt.counters.AddWrite()
	return nil
}

// findLeaf binary-searches leaf_index for the leaf whose range
// contains value, or the nearest leaf if none does. Emptied leaves
// (see unreachableLeafRange) are left out of the search.
func (bt *BPlusTree) findLeaf(value types.Value) int {
	live := make([]int, 0, len(bt.leafIndex))
	for i, lr := range bt.leafIndex {
		if types.Compare(lr.First, lr.Last) <= 0 {
			live = append(live, i)
		}
	}
	if len(live) == 0 {
		return 0
	}
	left, right := 0, len(live)-1
	for left <= right {
		mid := (left + right) / 2
		lr := bt.leafIndex[live[mid]]
		if types.Compare(value, lr.First) < 0 {
			right = mid - 1
		} else if types.Compare(value, lr.Last) > 0 {
			left = mid + 1
		} else {
			return live[mid]
		}
	}
	idx := left
	if idx < 0 {
		idx = 0
	}
	if idx > len(live)-1 {
		idx = len(live) - 1
	}
	return live[idx]
}

func (bt *BPlusTree) readLeaf(i int) ([]types.Row, error) {
	blob, err := bt.leavesFile.ReadSlot(i)
	if err != nil {
		return nil, err
	}
	bt.counters.AddRead()
	return decodeSlot(bt.schema, blob)
}

// Search navigates the RAM index to the one leaf that could hold key,
// reads it, scans it, then scans RAM overflow.
func (bt *BPlusTree) Search(key types.Value) ([]types.Row, error) {
	var results []types.Row
	if len(bt.leafIndex) > 0 {
		idx := bt.findLeaf(key)
		leaf, err := bt.readLeaf(idx)
		if err != nil {
			return nil, err
		}
		for _, row := range leaf {
			k, err := extractKey(bt.schema, row)
			if err != nil {
				return nil, err
			}
			if types.Compare(k, key) == 0 {
				results = append(results, row)
			}
		}
	}
	for _, row := range bt.overflow {
		k, err := extractKey(bt.schema, row)
		if err != nil {
			return nil, err
		}
		if types.Compare(k, key) == 0 {
			results = append(results, row)
		}
	}
	return results, nil
}

// RangeSearch reads only the leaves whose range intersects [lo, hi]:
// skip leaves entirely below lo, stop once a leaf's first key exceeds
// hi (spec scenario S4: a 2-leaf range reads at most 2 leaves).
func (bt *BPlusTree) RangeSearch(lo, hi types.Value) ([]types.Row, error) {
	var results []types.Row
	for i, lr := range bt.leafIndex {
		if types.Compare(lr.First, lr.Last) > 0 {
			continue // emptied leaf
		}
		if types.Compare(lr.Last, lo) < 0 {
			continue
		}
		if types.Compare(lr.First, hi) > 0 {
			break
		}
		leaf, err := bt.readLeaf(i)
		if err != nil {
			return nil, err
		}
		for _, row := range leaf {
			k, err := extractKey(bt.schema, row)
			if err != nil {
				return nil, err
			}
			if types.Compare(k, lo) >= 0 && types.Compare(k, hi) <= 0 {
				results = append(results, row)
			}
		}
	}
	for _, row := range bt.overflow {
		k, err := extractKey(bt.schema, row)
		if err != nil {
			return nil, err
		}
		if types.Compare(k, lo) >= 0 && types.Compare(k, hi) <= 0 {
			results = append(results, row)
		}
	}
	sorted, err := sortRowsByKey(bt.schema, results)
	if err != nil {
		return nil, err
	}
	return sorted, nil
}

// Add appends row to RAM overflow and persists it; this simplified
// B+-tree has no dynamic insert/rebalance, a static build from sorted
// data instead.
func (bt *BPlusTree) Add(row types.Row) error {
	if _, err := extractKey(bt.schema, row); err != nil {
		return err
	}
	bt.overflow = append(bt.overflow, row)
	return bt.persistOverflow()
}

// Remove deletes from overflow, then from the one leaf the key could
// be in, rewriting the whole leaves file if that leaf changed. An
// emptied leaf is kept in place with an unreachable key-range sentinel
// rather than removed, so leaf indices stay stable.
func (bt *BPlusTree) Remove(key types.Value) (int, error) {
	deleted := 0
	kept := bt.overflow[:0:0]
	for _, row := range bt.overflow {
		k, err := extractKey(bt.schema, row)
		if err != nil {
			return 0, err
		}
		if types.Compare(k, key) == 0 {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	bt.overflow = kept

	if len(bt.leafIndex) == 0 {
		if deleted > 0 {
			if err := bt.persistOverflow(); err != nil {
				return deleted, err
			}
		}
		return deleted, nil
	}

	leafIdx := bt.findLeaf(key)
	leaf, err := bt.readLeaf(leafIdx)
	if err != nil {
		return deleted, err
	}
	var filtered []types.Row
	removedHere := 0
	for _, row := range leaf {
		k, err := extractKey(bt.schema, row)
		if err != nil {
			return deleted, err
		}
		if types.Compare(k, key) == 0 {
			removedHere++
			continue
		}
		filtered = append(filtered, row)
	}

	if removedHere > 0 {
		overflowChanged := deleted > 0
		deleted += removedHere
		if err := bt.rewriteLeaf(leafIdx, filtered); err != nil {
			return deleted, err
		}
		if overflowChanged {
			if err := bt.persistOverflow(); err != nil {
				return deleted, err
			}
		}
		if len(filtered) > 0 {
			first, err := extractKey(bt.schema, filtered[0])
			if err != nil {
				return deleted, err
			}
			last, err := extractKey(bt.schema, filtered[len(filtered)-1])
			if err != nil {
				return deleted, err
			}
			bt.leafIndex[leafIdx] = leafRange{First: first, Last: last}
		} else {
			bt.leafIndex[leafIdx] = unreachableLeafRange(bt.schema)
		}
	} else if deleted > 0 {
		if err := bt.persistOverflow(); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// unreachableLeafRange produces a (first, last) pair that no real key
// will ever fall within, marking a leaf as emptied without removing its
// slot (which would shift every later leaf's index).
func unreachableLeafRange(schema *types.TableSchema) leafRange {
	switch schema.KeyColumnType() {
	case types.ValueTypeInt:
		return leafRange{First: types.NewInt(1<<62 - 1), Last: types.NewInt(1<<62 - 2)}
	case types.ValueTypeFloat:
		return leafRange{First: types.NewFloat(1e308), Last: types.NewFloat(-1e308)}
	default:
		return leafRange{First: types.NewText("￿￿"), Last: types.NewText("")}
	}
}

func (bt *BPlusTree) rewriteLeaf(leafIdx int, newLeaf []types.Row) error {
	slots := make([][]byte, len(bt.leafIndex))
	for i := range bt.leafIndex {
		var leaf []types.Row
		var err error
		if i == leafIdx {
			leaf = newLeaf
		} else {
			leaf, err = bt.readLeaf(i)
			if err != nil {
				return err
			}
		}
		blob, err := encodeSlot(bt.schema, leaf)
		if err != nil {
			return err
		}
		slots[i] = blob
	}
	if err := bt.leavesFile.WriteAllSlots(slots); err != nil {
		return err
	}
	bt.counters.AddWrite()
	return nil
}

// Save is a no-op: Build/Add/Remove already persist leaves and
// overflow as they mutate.
func (bt *BPlusTree) Save() error { return nil }

// Load rebuilds leaf_index and root by scanning the leaves file (spec
// §6.3 lists no separate navigation-array file for the B+-tree) and
// restores overflow from its file.
func (bt *BPlusTree) Load() error {
	lf, err := openSlottedFile(bt.leavesFile.path)
	if err != nil {
		return err
	}
	bt.leavesFile = lf

	slots, err := lf.ReadAllSlots()
	if err != nil {
		return err
	}
	bt.counters.AddRead()

	var index []leafRange
	for _, blob := range slots {
		leaf, err := decodeSlot(bt.schema, blob)
		if err != nil {
			return err
		}
		if len(leaf) == 0 {
			index = append(index, unreachableLeafRange(bt.schema))
			continue
		}
		first, err := extractKey(bt.schema, leaf[0])
		if err != nil {
			return err
		}
		last, err := extractKey(bt.schema, leaf[len(leaf)-1])
		if err != nil {
			return err
		}
		index = append(index, leafRange{First: first, Last: last})
	}
	bt.leafIndex = index
	bt.root = make([]types.Value, 0, len(index))
	for _, lr := range index[minInt(1, len(index)):] {
		bt.root = append(bt.root, lr.First)
	}

	data, err := readFile(bt.overflowPath)
	if err != nil {
		return err
	}
	bt.counters.AddRead()
	rows, err := decodeSlot(bt.schema, data)
	if err != nil {
		return err
	}
	bt.overflow = rows
	return nil
}

// Clear empties the index and rewrites its files empty.
func (bt *BPlusTree) Clear() error {
	bt.leafIndex = nil
	bt.root = nil
	bt.overflow = nil
	if err := bt.leavesFile.WriteAllSlots(nil); err != nil {
		return err
	}
	return bt.persistOverflow()
}

func (bt *BPlusTree) IOStats() metrics.Snapshot { return bt.counters.Snapshot() }
func (bt *BPlusTree) ResetIOStats()             { bt.counters.Reset() }

func (bt *BPlusTree) StructureInfo() map[string]any {
	height := 0
	if len(bt.leafIndex) > 0 {
		height = 2
	}
	return map[string]any{
		"type":                 "bplustree",
		"order":                bt.order,
		"num_leaves":           len(bt.leafIndex),
		"records_in_overflow":  len(bt.overflow),
		"height":               height,
	}
}
