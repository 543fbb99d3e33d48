package index

import (
	"pagedb/internal/errkind"
	"pagedb/internal/metrics"
	"pagedb/pkg/types"

	"github.com/pkg/errors"
)

// blockRange is one block's (first_key, last_key) pair, the RAM
// navigation structure used to binary-search straight to the one block
// a search needs (spec §4.4.1).
type blockRange struct {
	First types.Value
	Last  types.Value
}

// Sequential is the sorted sequential-file primary index: data blocks
// live on disk in ascending-key order, insertions land in a RAM
// overflow list that periodically triggers a full reorganize, grounded
// on original_source/indexes/sequential.py.
type Sequential struct {
	schema              *types.TableSchema
	blockSize           int
	reorganizeThreshold float64

	blocksFile   *slottedFile
	overflowPath string

	blockIndex []blockRange
	overflow   []types.Row

	counters metrics.Counters
}

// NewSequential constructs a Sequential index whose files live under
// dir, named after table.
func NewSequential(schema *types.TableSchema, dir, table string, blockSize int, reorganizeThreshold float64) (*Sequential, error) {
	blocksPath := indexFilePath(dir, table, "sequential", "blocks", "dat")
	overflowPath := indexFilePath(dir, table, "sequential", "overflow", "dat")
	bf, err := openSlottedFile(blocksPath)
	if err != nil {
		return nil, err
	}
	return &Sequential{
		schema:              schema,
		blockSize:           blockSize,
		reorganizeThreshold: reorganizeThreshold,
		blocksFile:          bf,
		overflowPath:        overflowPath,
	}, nil
}

// Build sorts rows by key, partitions them into blocks of blockSize,
// writes the blocks, and derives block_index. Any prior overflow is
// discarded.
func (s *Sequential) Build(rows []types.Row) error {
	sorted, err := sortRowsByKey(s.schema, rows)
	if err != nil {
		return err
	}

	var slots [][]byte
	var index []blockRange
	for start := 0; start < len(sorted); start += s.blockSize {
		end := start + s.blockSize
		if end > len(sorted) {
			end = len(sorted)
		}
		block := sorted[start:end]
		blob, err := encodeSlot(s.schema, block)
		if err != nil {
			return err
		}
		slots = append(slots, blob)

		first, _ := extractKey(s.schema, block[0])
		last, _ := extractKey(s.schema, block[len(block)-1])
		index = append(index, blockRange{First: first, Last: last})
	}

	if err := s.blocksFile.WriteAllSlots(slots); err != nil {
		return err
	}
	s.counters.AddWrite()
	s.blockIndex = index
	s.overflow = nil
	return s.persistOverflow()
}

func (s *Sequential) persistOverflow() error {
	blob, err := encodeSlot(s.schema, s.overflow)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.overflowPath, blob); err != nil {
		return err
	}
	s.counters.AddWrite()
	return nil
}

// binarySearchBlock returns the block whose range contains value, or
// the nearest insertion point if none does.
func (s *Sequential) binarySearchBlock(value types.Value) int {
	if len(s.blockIndex) == 0 {
		return 0
	}
	left, right := 0, len(s.blockIndex)-1
	result := 0
	for left <= right {
		mid := (left + right) / 2
		br := s.blockIndex[mid]
		if types.Compare(br.First, value) <= 0 && types.Compare(value, br.Last) <= 0 {
			return mid
		} else if types.Compare(value, br.First) < 0 {
			right = mid - 1
			result = mid
		} else {
			left = mid + 1
			result = mid + 1
			if result > len(s.blockIndex)-1 {
				result = len(s.blockIndex) - 1
			}
		}
	}
	return result
}

func (s *Sequential) readBlock(i int) ([]types.Row, error) {
	blob, err := s.blocksFile.ReadSlot(i)
	if err != nil {
		return nil, err
	}
	s.counters.AddRead()
	return decodeSlot(s.schema, blob)
}

// Search returns every row whose key equals key: one block read plus a
// scan of RAM overflow.
func (s *Sequential) Search(key types.Value) ([]types.Row, error) {
	var results []types.Row
	if len(s.blockIndex) > 0 {
		idx := s.binarySearchBlock(key)
		block, err := s.readBlock(idx)
		if err != nil {
			return nil, err
		}
		for _, row := range block {
			k, err := extractKey(s.schema, row)
			if err != nil {
				return nil, err
			}
			if types.Compare(k, key) == 0 {
				results = append(results, row)
			}
		}
	}
	for _, row := range s.overflow {
		k, err := extractKey(s.schema, row)
		if err != nil {
			return nil, err
		}
		if types.Compare(k, key) == 0 {
			results = append(results, row)
		}
	}
	return results, nil
}

// RangeSearch returns every row with key in [lo, hi], ascending.
func (s *Sequential) RangeSearch(lo, hi types.Value) ([]types.Row, error) {
	var results []types.Row
	if len(s.blockIndex) > 0 {
		start := s.binarySearchBlock(lo)
		for i := start; i < len(s.blockIndex); i++ {
			br := s.blockIndex[i]
			if types.Compare(br.First, hi) > 0 {
				break
			}
			block, err := s.readBlock(i)
			if err != nil {
				return nil, err
			}
			for _, row := range block {
				k, err := extractKey(s.schema, row)
				if err != nil {
					return nil, err
				}
				if types.Compare(k, lo) >= 0 && types.Compare(k, hi) <= 0 {
					results = append(results, row)
				} else if types.Compare(k, hi) > 0 {
					break
				}
			}
		}
	}
	for _, row := range s.overflow {
		k, err := extractKey(s.schema, row)
		if err != nil {
			return nil, err
		}
		if types.Compare(k, lo) >= 0 && types.Compare(k, hi) <= 0 {
			results = append(results, row)
		}
	}
	sorted, err := sortRowsByKey(s.schema, results)
	if err != nil {
		return nil, err
	}
	return sorted, nil
}

// Add appends row to the RAM overflow list, persists it, and triggers a
// reorganization once overflow exceeds reorganizeThreshold of the
// capacity held in blocks.
func (s *Sequential) Add(row types.Row) error {
	if _, err := extractKey(s.schema, row); err != nil {
		return err
	}
	s.overflow = append(s.overflow, row)
	if err := s.persistOverflow(); err != nil {
		return err
	}

	capacity := float64(len(s.blockIndex) * s.blockSize)
	if float64(len(s.overflow)) > capacity*s.reorganizeThreshold {
		return s.reorganize()
	}
	return nil
}

func (s *Sequential) reorganize() error {
	var all []types.Row
	for i := range s.blockIndex {
		block, err := s.readBlock(i)
		if err != nil {
			return err
		}
		all = append(all, block...)
	}
	all = append(all, s.overflow...)
	return s.Build(all)
}

// Remove deletes every row with the given key from both overflow and
// the on-disk blocks, rewriting the whole file when any block is
// touched.
func (s *Sequential) Remove(key types.Value) (int, error) {
	deleted := 0

	keep := s.overflow[:0:0]
	for _, row := range s.overflow {
		k, err := extractKey(s.schema, row)
		if err != nil {
			return 0, err
		}
		if types.Compare(k, key) == 0 {
			deleted++
			continue
		}
		keep = append(keep, row)
	}
	s.overflow = keep

	if len(s.blockIndex) == 0 {
		if deleted > 0 {
			if err := s.persistOverflow(); err != nil {
				return deleted, err
			}
		}
		return deleted, nil
	}

	foundInDisk := false
	var survivors []types.Row
	for i := range s.blockIndex {
		block, err := s.readBlock(i)
		if err != nil {
			return deleted, err
		}
		for _, row := range block {
			k, err := extractKey(s.schema, row)
			if err != nil {
				return deleted, err
			}
			if types.Compare(k, key) == 0 {
				deleted++
				foundInDisk = true
				continue
			}
			survivors = append(survivors, row)
		}
	}

	if foundInDisk {
		survivors = append(survivors, s.overflow...)
		if err := s.Build(survivors); err != nil {
			return deleted, err
		}
	} else if deleted > 0 {
		if err := s.persistOverflow(); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// Save is a no-op beyond what Build/Add/Remove already persisted: every
// mutating call writes its own files immediately, matching the
// teacher's "every index operation is durable" posture.
func (s *Sequential) Save() error {
	return nil
}

// Load rebuilds block_index by scanning the blocks file (spec §6.3
// lists no separate navigation-array file for sequential) and restores
// overflow from its file.
func (s *Sequential) Load() error {
	bf, err := openSlottedFile(s.blocksFile.path)
	if err != nil {
		return err
	}
	s.blocksFile = bf

	slots, err := bf.ReadAllSlots()
	if err != nil {
		return err
	}
	s.counters.AddRead()

	index := make([]blockRange, 0, len(slots))
	for _, blob := range slots {
		block, err := decodeSlot(s.schema, blob)
		if err != nil {
			return err
		}
		if len(block) == 0 {
			continue
		}
		first, err := extractKey(s.schema, block[0])
		if err != nil {
			return err
		}
		last, err := extractKey(s.schema, block[len(block)-1])
		if err != nil {
			return err
		}
		index = append(index, blockRange{First: first, Last: last})
	}
	s.blockIndex = index

	data, err := readFile(s.overflowPath)
	if err != nil {
		if errors.Is(err, errkind.ErrFileNotFound) {
			s.overflow = nil
			return nil
		}
		return err
	}
	s.counters.AddRead()
	rows, err := decodeSlot(s.schema, data)
	if err != nil {
		return err
	}
	s.overflow = rows
	return nil
}

// Clear empties the index and rewrites its files empty.
func (s *Sequential) Clear() error {
	s.blockIndex = nil
	s.overflow = nil
	if err := s.blocksFile.WriteAllSlots(nil); err != nil {
		return err
	}
	return s.persistOverflow()
}

func (s *Sequential) IOStats() metrics.Snapshot { return s.counters.Snapshot() }
func (s *Sequential) ResetIOStats()             { s.counters.Reset() }

func (s *Sequential) StructureInfo() map[string]any {
	return map[string]any{
		"type":         "sequential",
		"num_blocks":   len(s.blockIndex),
		"block_size":   s.blockSize,
		"overflow_len": len(s.overflow),
	}
}
