package index

import (
	"pagedb/internal/metrics"
	"pagedb/internal/record"
	"pagedb/pkg/types"
)

// ISAM is the three-level indexed sequential access method: buckets on
// disk, two RAM navigation levels (L1 per-bucket first keys, L2 one
// entry per fanoutL2 buckets), and a per-bucket overflow list that never
// splits — density growth degrades overflow-probe cost instead, grounded
// on original_source/indexes/isam.py.
type ISAM struct {
	schema   *types.TableSchema
	fanout   int
	fanoutL2 int

	bucketsFile  *slottedFile
	overflowPath string
	l1Path       string
	l2Path       string

	indexL1  []types.Value
	indexL2  []types.Value
	overflow map[int][]types.Row

	counters metrics.Counters
}

// NewISAM constructs an ISAM index whose files live under dir, named
// after table.
func NewISAM(schema *types.TableSchema, dir, table string, fanout, fanoutL2 int) (*ISAM, error) {
	bucketsPath := indexFilePath(dir, table, "isam", "buckets", "dat")
	bf, err := openSlottedFile(bucketsPath)
	if err != nil {
		return nil, err
	}
	return &ISAM{
		schema:       schema,
		fanout:       fanout,
		fanoutL2:     fanoutL2,
		bucketsFile:  bf,
		overflowPath: indexFilePath(dir, table, "isam", "overflow", "dat"),
		l1Path:       indexFilePath(dir, table, "isam", "l1", "idx"),
		l2Path:       indexFilePath(dir, table, "isam", "l2", "idx"),
		overflow:     make(map[int][]types.Row),
	}, nil
}

// Build sorts rows, partitions into buckets of fanout records, writes
// them, and derives L1/L2.
func (ix *ISAM) Build(rows []types.Row) error {
	sorted, err := sortRowsByKey(ix.schema, rows)
	if err != nil {
		return err
	}

	var slots [][]byte
	var l1 []types.Value
	for start := 0; start < len(sorted); start += ix.fanout {
		end := start + ix.fanout
		if end > len(sorted) {
			end = len(sorted)
		}
		bucket := sorted[start:end]
		blob, err := encodeSlot(ix.schema, bucket)
		if err != nil {
			return err
		}
		slots = append(slots, blob)

		first, err := extractKey(ix.schema, bucket[0])
		if err != nil {
			return err
		}
		l1 = append(l1, first)
	}

	if err := ix.bucketsFile.WriteAllSlots(slots); err != nil {
		return err
	}
	ix.counters.AddWrite()

	ix.indexL1 = l1
	ix.indexL2 = deriveL2(l1, ix.fanoutL2)
	ix.overflow = make(map[int][]types.Row, len(slots))
	return ix.persistOverflowAndNav()
}

// deriveL2 takes one entry per fanoutL2 buckets from l1; if that
// collapses to a single entry while L1 has more than one bucket, L2 is
// expanded to [first, last] to keep two-level navigation meaningful.
func deriveL2(l1 []types.Value, fanoutL2 int) []types.Value {
	var l2 []types.Value
	for i := 0; i < len(l1); i += fanoutL2 {
		l2 = append(l2, l1[i])
	}
	if len(l2) == 1 && len(l1) > 1 {
		l2 = []types.Value{l1[0], l1[len(l1)-1]}
	}
	return l2
}

func (ix *ISAM) persistOverflowAndNav() error {
	if err := ix.persistNav(); err != nil {
		return err
	}
	return ix.persistOverflow()
}

func (ix *ISAM) persistNav() error {
	l1Payloads := make([][]byte, len(ix.indexL1))
	for i, v := range ix.indexL1 {
		l1Payloads[i] = record.EncodeValue(v)
	}
	if err := writeFileAtomic(ix.l1Path, record.EncodeFrames(l1Payloads)); err != nil {
		return err
	}
	ix.counters.AddWrite()

	l2Payloads := make([][]byte, len(ix.indexL2))
	for i, v := range ix.indexL2 {
		l2Payloads[i] = record.EncodeValue(v)
	}
	if err := writeFileAtomic(ix.l2Path, record.EncodeFrames(l2Payloads)); err != nil {
		return err
	}
	ix.counters.AddWrite()
	return nil
}

func (ix *ISAM) persistOverflow() error {
	buckets := len(ix.indexL1)
	slots := make([][]byte, buckets)
	for i := 0; i < buckets; i++ {
		blob, err := encodeSlot(ix.schema, ix.overflow[i])
		if err != nil {
			return err
		}
		slots[i] = blob
	}
	if err := writeFileAtomic(ix.overflowPath, record.EncodeFrames(slots)); err != nil {
		return err
	}
	ix.counters.AddWrite()
	return nil
}

// findBucket locates the bucket whose range should contain value using
// L2-then-L1 binary search, clamped into [0, num_buckets-1].
func (ix *ISAM) findBucket(value types.Value) int {
	if len(ix.indexL1) == 0 {
		return 0
	}

	var idx int
	if len(ix.indexL2) > 1 {
		l2Idx := bisectRight(ix.indexL2, value) - 1
		if l2Idx < 0 {
			l2Idx = 0
		}
		start := l2Idx * ix.fanoutL2
		if start > len(ix.indexL1) {
			start = len(ix.indexL1)
		}
		end := start + ix.fanoutL2
		if end > len(ix.indexL1) {
			end = len(ix.indexL1)
		}
		slice := ix.indexL1[start:end]
		if len(slice) == 0 {
			return maxInt(0, len(ix.indexL1)-1)
		}
		rel := bisectRight(slice, value) - 1
		if rel < 0 {
			rel = 0
		}
		idx = start + rel
	} else {
		idx = bisectRight(ix.indexL1, value) - 1
		if idx < 0 {
			idx = 0
		}
	}

	if idx > len(ix.indexL1)-1 {
		idx = len(ix.indexL1) - 1
	}
	return idx
}

// bisectRight returns the insertion point for value in an
// ascending-sorted slice such that all entries before it are <= value.
func bisectRight(values []types.Value, value types.Value) int {
	lo, hi := 0, len(values)
	for lo < hi {
		mid := (lo + hi) / 2
		if types.Compare(value, values[mid]) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (ix *ISAM) readBucket(i int) ([]types.Row, error) {
	blob, err := ix.bucketsFile.ReadSlot(i)
	if err != nil {
		return nil, err
	}
	ix.counters.AddRead()
	return decodeSlot(ix.schema, blob)
}

// Search returns one bucket read plus a linear scan, followed by the
// per-bucket RAM overflow.
func (ix *ISAM) Search(key types.Value) ([]types.Row, error) {
	if len(ix.indexL1) == 0 {
		return nil, nil
	}
	bucketIdx := ix.findBucket(key)
	bucket, err := ix.readBucket(bucketIdx)
	if err != nil {
		return nil, err
	}

	var results []types.Row
	for _, row := range bucket {
		k, err := extractKey(ix.schema, row)
		if err != nil {
			return nil, err
		}
		if types.Compare(k, key) == 0 {
			results = append(results, row)
		}
	}
	for _, row := range ix.overflow[bucketIdx] {
		k, err := extractKey(ix.schema, row)
		if err != nil {
			return nil, err
		}
		if types.Compare(k, key) == 0 {
			results = append(results, row)
		}
	}
	return results, nil
}

// RangeSearch locates the starting bucket, then iterates forward,
// consulting L1 before each disk read to skip buckets entirely past hi.
func (ix *ISAM) RangeSearch(lo, hi types.Value) ([]types.Row, error) {
	if len(ix.indexL1) == 0 {
		return nil, nil
	}
	var results []types.Row
	start := ix.findBucket(lo)
	for i := start; i < len(ix.indexL1); i++ {
		if types.Compare(ix.indexL1[i], hi) > 0 {
			break
		}
		bucket, err := ix.readBucket(i)
		if err != nil {
			return nil, err
		}
		for _, row := range bucket {
			k, err := extractKey(ix.schema, row)
			if err != nil {
				return nil, err
			}
			if types.Compare(k, lo) >= 0 && types.Compare(k, hi) <= 0 {
				results = append(results, row)
			} else if types.Compare(k, hi) > 0 {
				break
			}
		}
		for _, row := range ix.overflow[i] {
			k, err := extractKey(ix.schema, row)
			if err != nil {
				return nil, err
			}
			if types.Compare(k, lo) >= 0 && types.Compare(k, hi) <= 0 {
				results = append(results, row)
			}
		}
	}
	sorted, err := sortRowsByKey(ix.schema, results)
	if err != nil {
		return nil, err
	}
	return sorted, nil
}

// Add inserts row into its target bucket's overflow list, keeping the
// list sorted by key; no per-bucket split ever happens. On an index with
// no buckets yet, Add builds a single bucket holding row instead.
func (ix *ISAM) Add(row types.Row) error {
	key, err := extractKey(ix.schema, row)
	if err != nil {
		return err
	}
	if len(ix.indexL1) == 0 {
		return ix.Build([]types.Row{row})
	}

	bucketIdx := ix.findBucket(key)
	list := ix.overflow[bucketIdx]
	pos := len(list)
	for i, r := range list {
		k, err := extractKey(ix.schema, r)
		if err != nil {
			return err
		}
		if types.Compare(key, k) < 0 {
			pos = i
			break
		}
	}
	list = append(list, types.Row{})
	copy(list[pos+1:], list[pos:])
	list[pos] = row
	ix.overflow[bucketIdx] = list

	return ix.persistOverflow()
}

// Remove deletes from every overflow list, then from the target bucket
// on disk, rewriting the whole buckets file if anything there changed.
func (ix *ISAM) Remove(key types.Value) (int, error) {
	deleted := 0
	for idx, list := range ix.overflow {
		kept := list[:0:0]
		for _, row := range list {
			k, err := extractKey(ix.schema, row)
			if err != nil {
				return 0, err
			}
			if types.Compare(k, key) == 0 {
				deleted++
				continue
			}
			kept = append(kept, row)
		}
		ix.overflow[idx] = kept
	}

	if len(ix.indexL1) == 0 {
		if deleted > 0 {
			if err := ix.persistOverflow(); err != nil {
				return deleted, err
			}
		}
		return deleted, nil
	}

	bucketIdx := ix.findBucket(key)
	bucket, err := ix.readBucket(bucketIdx)
	if err != nil {
		return deleted, err
	}
	var filtered []types.Row
	removedHere := 0
	for _, row := range bucket {
		k, err := extractKey(ix.schema, row)
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
		deleted += removedHere
		if err := ix.rewriteBucket(bucketIdx, filtered); err != nil {
			return deleted, err
		}
	} else if deleted > 0 {
		if err := ix.persistOverflow(); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// rewriteBucket replaces one bucket's contents; since buckets have
// variable serialized length, the whole file is rewritten.
func (ix *ISAM) rewriteBucket(bucketIdx int, newBucket []types.Row) error {
	slots := make([][]byte, len(ix.indexL1))
	for i := range ix.indexL1 {
		var bucket []types.Row
		var err error
		if i == bucketIdx {
			bucket = newBucket
		} else {
			bucket, err = ix.readBucket(i)
			if err != nil {
				return err
			}
		}
		blob, err := encodeSlot(ix.schema, bucket)
		if err != nil {
			return err
		}
		slots[i] = blob
	}
	if err := ix.bucketsFile.WriteAllSlots(slots); err != nil {
		return err
	}
	ix.counters.AddWrite()
	return ix.persistOverflow()
}

// Save is a no-op: Build/Add/Remove already persist buckets, overflow,
// and navigation arrays as they mutate.
func (ix *ISAM) Save() error { return nil }

// Load restores L1/L2 from their persisted .idx files and overflow from
// its file; buckets themselves stay on disk, read on demand.
func (ix *ISAM) Load() error {
	bf, err := openSlottedFile(ix.bucketsFile.path)
	if err != nil {
		return err
	}
	ix.bucketsFile = bf
	ix.counters.AddRead()

	l1Data, err := readFile(ix.l1Path)
	if err != nil {
		return err
	}
	ix.counters.AddRead()
	ix.indexL1 = decodeValues(record.DecodeFrames(l1Data))

	l2Data, err := readFile(ix.l2Path)
	if err != nil {
		return err
	}
	ix.counters.AddRead()
	ix.indexL2 = decodeValues(record.DecodeFrames(l2Data))

	overflowData, err := readFile(ix.overflowPath)
	if err != nil {
		return err
	}
	ix.counters.AddRead()
	overflowSlots := record.DecodeFrames(overflowData)
	ix.overflow = make(map[int][]types.Row, len(overflowSlots))
	for i, blob := range overflowSlots {
		rows, err := decodeSlot(ix.schema, blob)
		if err != nil {
			return err
		}
		ix.overflow[i] = rows
	}
	return nil
}

func decodeValues(payloads [][]byte) []types.Value {
	values := make([]types.Value, 0, len(payloads))
	for _, p := range payloads {
		v, _, err := record.DecodeValue(p)
		if err != nil {
			break
		}
		values = append(values, v)
	}
	return values
}

// Clear empties the index and rewrites its files empty.
func (ix *ISAM) Clear() error {
	ix.indexL1 = nil
	ix.indexL2 = nil
	ix.overflow = make(map[int][]types.Row)
	if err := ix.bucketsFile.WriteAllSlots(nil); err != nil {
		return err
	}
	return ix.persistOverflowAndNav()
}

func (ix *ISAM) IOStats() metrics.Snapshot { return ix.counters.Snapshot() }
func (ix *ISAM) ResetIOStats()             { ix.counters.Reset() }

func (ix *ISAM) StructureInfo() map[string]any {
	total := 0
	for _, list := range ix.overflow {
		total += len(list)
	}
	return map[string]any{
		"type":                 "isam",
		"levels":               3,
		"l2_entries":           len(ix.indexL2),
		"l1_entries":           len(ix.indexL1),
		"num_buckets":          len(ix.indexL1),
		"records_in_overflow":  total,
		"fanout":               ix.fanout,
		"fanout_l2":            ix.fanoutL2,
	}
}
