// Package index implements the four interchangeable primary index
// structures (sequential file, ISAM, extendible hash, B+-tree with
// on-disk leaves) sharing a common contract: build/add/search/
// range_search/remove/save/load/clear, each with its own I/O counters
// independent of the buffer pool (spec §4.4).
package index

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"pagedb/internal/errkind"
	"pagedb/internal/metrics"
	"pagedb/internal/record"
	"pagedb/pkg/types"
)

// Index is the common contract every primary index implementation
// satisfies.
type Index interface {
	Build(rows []types.Row) error
	Add(row types.Row) error
	Search(key types.Value) ([]types.Row, error)
	RangeSearch(lo, hi types.Value) ([]types.Row, error)
	Remove(key types.Value) (int, error)
	Save() error
	Load() error
	Clear() error
	IOStats() metrics.Snapshot
	ResetIOStats()
	StructureInfo() map[string]any
}

// normalizeColumnName strips quotes, spaces, and underscores and
// lower-cases, so `"Restaurant ID"` and `Restaurant_ID` compare equal
// (spec §4.4).
func normalizeColumnName(s string) string {
	s = strings.ToLower(s)
	replacer := strings.NewReplacer(`"`, "", `'`, "", " ", "", "_", "")
	return replacer.Replace(s)
}

// NormalizeColumnName exports normalizeColumnName for callers outside
// this package (internal/table's column-predicate scan) that need the
// same case/quote/space/underscore-insensitive comparison spec §4.4
// requires of key extraction.
func NormalizeColumnName(s string) string { return normalizeColumnName(s) }

// extractKey returns row's value for schema's key column, tolerating
// column-name variations. Fails with errkind.ErrKeyNotFound if no
// normalized match exists.
func extractKey(schema *types.TableSchema, row types.Row) (types.Value, error) {
	if v, ok := row[schema.KeyColumn]; ok {
		return v, nil
	}
	target := normalizeColumnName(schema.KeyColumn)
	for k, v := range row {
		if normalizeColumnName(k) == target {
			return v, nil
		}
	}
	return types.Value{}, errors.Wrapf(errkind.ErrKeyNotFound, "column %q", schema.KeyColumn)
}

// sortRowsByKey returns a stable ascending-by-key copy of rows.
func sortRowsByKey(schema *types.TableSchema, rows []types.Row) ([]types.Row, error) {
	keyed := make([]types.Row, len(rows))
	copy(keyed, rows)
	for _, r := range keyed {
		if _, err := extractKey(schema, r); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		ki, _ := extractKey(schema, keyed[i])
		kj, _ := extractKey(schema, keyed[j])
		return types.Compare(ki, kj) < 0
	})
	return keyed, nil
}

// writeFileAtomic writes data to path by first writing to a uuid-
// suffixed temp file in the same directory, fsyncing it, then renaming
// over path. A crash mid-write leaves the previous path intact rather
// than a torn file (spec §5).
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, filepath.Base(path)+".tmp-"+uuid.NewString())

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(errkind.ErrPersistenceFailure, "creating %s: %v", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(errkind.ErrPersistenceFailure, "writing %s: %v", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(errkind.ErrPersistenceFailure, "syncing %s: %v", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(errkind.ErrPersistenceFailure, "closing %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(errkind.ErrPersistenceFailure, "renaming %s to %s: %v", tmp, path, err)
	}
	return nil
}

// readFile reads path in full. A missing file is reported as
// errkind.ErrFileNotFound so callers can distinguish it from other I/O
// errors and fall back to rebuilding (spec §7 recovery policy).
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errkind.ErrFileNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return data, nil
}

// encodeSlot frames a group of rows (a block/bucket/leaf) into one
// chunk payload: each row is itself length-framed, then the whole
// group is returned as a single blob ready to be one top-level frame.
func encodeSlot(schema *types.TableSchema, rows []types.Row) ([]byte, error) {
	payloads := make([][]byte, 0, len(rows))
	for _, r := range rows {
		p, err := record.EncodeRow(schema, r)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}
	return record.EncodeFrames(payloads), nil
}

// decodeSlot reverses encodeSlot.
func decodeSlot(schema *types.TableSchema, blob []byte) ([]types.Row, error) {
	frames := record.DecodeFrames(blob)
	rows := make([]types.Row, 0, len(frames))
	for _, f := range frames {
		row, err := record.DecodeRow(schema, f)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// indexFilePath derives `<dir>/<table>_<indexType>_<role>.<ext>` per the
// deterministic naming convention of spec §4.5/§6.3.
func indexFilePath(dir, table, indexType, role, ext string) string {
	return filepath.Join(dir, table+"_"+indexType+"_"+role+"."+ext)
}

// slottedFile is a length-framed file whose individual slots (a
// block/bucket/leaf's bytes) can be fetched one at a time given a
// precomputed byte offset, so a point search costs exactly one physical
// read regardless of how many slots the file holds.
type slottedFile struct {
	path   string
	frames []record.Frame
}

// openSlottedFile indexes path's frame boundaries without holding the
// file open. A missing file yields a valid, empty slottedFile; callers
// distinguish "never built" from "corrupt" via their own Load logic.
func openSlottedFile(path string) (*slottedFile, error) {
	sf := &slottedFile{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sf, nil
		}
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	sf.frames = record.FrameOffsets(data)
	return sf, nil
}

// Count returns the number of slots.
func (sf *slottedFile) Count() int { return len(sf.frames) }

// ReadSlot fetches slot i's raw payload with exactly one physical file
// read.
func (sf *slottedFile) ReadSlot(i int) ([]byte, error) {
	if i < 0 || i >= len(sf.frames) {
		return nil, errors.Errorf("slot %d out of range (%d slots)", i, len(sf.frames))
	}
	fr := sf.frames[i]
	f, err := os.Open(sf.path)
	if err != nil {
		return nil, errors.Wrapf(errkind.ErrFileNotFound, "%s", sf.path)
	}
	defer f.Close()
	buf := make([]byte, fr.Total)
	if _, err := f.ReadAt(buf, int64(fr.Offset)); err != nil {
		return nil, errors.Wrapf(errkind.ErrCorruptIndex, "reading slot %d of %s: %v", i, sf.path, err)
	}
	frames := record.DecodeFrames(buf)
	if len(frames) != 1 {
		return nil, errors.Wrapf(errkind.ErrCorruptIndex, "slot %d of %s: malformed frame", i, sf.path)
	}
	return frames[0], nil
}

// ReadAllSlots reads and decodes every slot's payload with a single file
// read, used by Load to rebuild RAM navigation structures.
func (sf *slottedFile) ReadAllSlots() ([][]byte, error) {
	data, err := readFile(sf.path)
	if err != nil {
		return nil, err
	}
	return record.DecodeFrames(data), nil
}

// WriteAllSlots atomically rewrites the whole file from payloads and
// recomputes frame offsets for subsequent ReadSlot calls.
func (sf *slottedFile) WriteAllSlots(payloads [][]byte) error {
	data := record.EncodeFrames(payloads)
	if err := writeFileAtomic(sf.path, data); err != nil {
		return err
	}
	sf.frames = record.FrameOffsets(data)
	return nil
}
