// Package record implements the length-framed binary format shared by
// heap pages and every index's *.dat/*.idx files: a sequence of chunks,
// each `[u32 little-endian length][payload bytes]`, concatenated in
// id/position order. It also encodes Row values into a deterministic
// field-by-field binary payload (key column first) so that byte-for-byte
// stability across runs holds for the restart scenario (S6).
package record

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"pagedb/internal/errkind"
	"pagedb/pkg/types"
)

// FrameLenSize is the width of the length prefix on every chunk.
const FrameLenSize = 4

// EncodeFrames concatenates payloads into `[u32 LE length][payload]`
// chunks, in the given order.
func EncodeFrames(payloads [][]byte) []byte {
	total := 0
	for _, p := range payloads {
		total += FrameLenSize + len(p)
	}
	buf := make([]byte, 0, total)
	var lenBuf [FrameLenSize]byte
	for _, p := range payloads {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(p)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, p...)
	}
	return buf
}

// DecodeFrames splits a length-framed byte sequence back into payloads.
// A truncated trailing chunk (fewer bytes remaining than its declared
// length) stops decoding at the last good chunk rather than failing —
// this is the "corrupt trailing page" tolerance required of
// heap scans, and index files benefit from the same leniency.
func DecodeFrames(data []byte) [][]byte {
	var out [][]byte
	pos := 0
	for pos+FrameLenSize <= len(data) {
		length := int(binary.LittleEndian.Uint32(data[pos : pos+FrameLenSize]))
		pos += FrameLenSize
		if length < 0 || pos+length > len(data) {
			break
		}
		payload := make([]byte, length)
		copy(payload, data[pos:pos+length])
		out = append(out, payload)
		pos += length
	}
	return out
}

// EncodeRow serializes a row into a deterministic binary payload: the
// key column's value first, then every remaining column in schema
// order. Each field is `[type byte][value bytes]`: INT is 8 bytes
// little-endian signed, FLOAT is 8 bytes IEEE-754 bit pattern,
// TEXT is `[u32 LE length][utf8 bytes]`.
func EncodeRow(schema *types.TableSchema, row types.Row) ([]byte, error) {
	key, ok := row[schema.KeyColumn]
	if !ok {
		return nil, errors.Wrapf(errkind.ErrKeyNotFound, "column %q", schema.KeyColumn)
	}

	buf := make([]byte, 0, 64)
	buf = appendField(buf, key)

	for _, col := range schema.Columns {
		if col.Name == schema.KeyColumn {
			continue
		}
		v, ok := row[col.Name]
		if !ok {
			v = types.Value{Type: col.Type}
		}
		buf = appendField(buf, v)
	}
	return buf, nil
}

func appendField(buf []byte, v types.Value) []byte {
	var tmp [8]byte
	switch v.Type {
	case types.ValueTypeInt:
		buf = append(buf, byte(types.ValueTypeInt))
		binary.LittleEndian.PutUint64(tmp[:], uint64(v.IntVal))
		buf = append(buf, tmp[:]...)
	case types.ValueTypeFloat:
		buf = append(buf, byte(types.ValueTypeFloat))
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.FloatVal))
		buf = append(buf, tmp[:]...)
	default: // ValueTypeText
		buf = append(buf, byte(types.ValueTypeText))
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(v.TextVal)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, v.TextVal...)
	}
	return buf
}

// Frame describes one chunk's position within a length-framed byte
// sequence: Offset points at the chunk's length prefix; Total is
// FrameLenSize+payload length, i.e. the number of bytes spanning the
// whole chunk. Indexes use this to compute once, on build/load, the
// byte offset of each block/bucket/leaf so that a later single read
// fetches exactly one slot (spec's "1 physical read" per search).
type Frame struct {
	Offset int
	Total  int
}

// FrameOffsets returns the position of every well-formed chunk in data,
// stopping at the first truncated trailing chunk.
func FrameOffsets(data []byte) []Frame {
	var out []Frame
	pos := 0
	for pos+FrameLenSize <= len(data) {
		length := int(binary.LittleEndian.Uint32(data[pos : pos+FrameLenSize]))
		total := FrameLenSize + length
		if length < 0 || pos+total > len(data) {
			break
		}
		out = append(out, Frame{Offset: pos, Total: total})
		pos += total
	}
	return out
}

// EncodeValue serializes a single scalar using the same [type][bytes]
// layout as a row field, used to persist RAM navigation arrays
// (ISAM's L1/L2 index files) without going through a full schema.
func EncodeValue(v types.Value) []byte {
	return appendField(nil, v)
}

// DecodeValue reverses EncodeValue, returning the value and the number
// of bytes consumed.
func DecodeValue(data []byte) (types.Value, int, error) {
	if len(data) == 0 {
		return types.Value{}, 0, errors.Wrap(errkind.ErrCorruptIndex, "empty value")
	}
	vt := types.ValueType(data[0])
	pos := 1
	switch vt {
	case types.ValueTypeInt:
		if pos+8 > len(data) {
			return types.Value{}, 0, errors.Wrap(errkind.ErrCorruptIndex, "truncated int value")
		}
		return types.NewInt(int64(binary.LittleEndian.Uint64(data[pos : pos+8]))), pos + 8, nil
	case types.ValueTypeFloat:
		if pos+8 > len(data) {
			return types.Value{}, 0, errors.Wrap(errkind.ErrCorruptIndex, "truncated float value")
		}
		return types.NewFloat(math.Float64frombits(binary.LittleEndian.Uint64(data[pos : pos+8]))), pos + 8, nil
	case types.ValueTypeText:
		if pos+4 > len(data) {
			return types.Value{}, 0, errors.Wrap(errkind.ErrCorruptIndex, "truncated text length")
		}
		n := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+n > len(data) {
			return types.Value{}, 0, errors.Wrap(errkind.ErrCorruptIndex, "truncated text value")
		}
		return types.NewText(string(data[pos : pos+n])), pos + n, nil
	default:
		return types.Value{}, 0, errors.Wrapf(errkind.ErrCorruptIndex, "unknown value type tag %d", vt)
	}
}

// DecodeRow reverses EncodeRow given the same schema.
func DecodeRow(schema *types.TableSchema, data []byte) (types.Row, error) {
	row := make(types.Row, len(schema.Columns))
	pos := 0

	readField := func() (types.Value, error) {
		if pos >= len(data) {
			return types.Value{}, errors.Wrap(errkind.ErrCorruptIndex, "truncated record: missing type tag")
		}
		vt := types.ValueType(data[pos])
		pos++
		switch vt {
		case types.ValueTypeInt:
			if pos+8 > len(data) {
				return types.Value{}, errors.Wrap(errkind.ErrCorruptIndex, "truncated record: int field")
			}
			v := types.NewInt(int64(binary.LittleEndian.Uint64(data[pos : pos+8])))
			pos += 8
			return v, nil
		case types.ValueTypeFloat:
			if pos+8 > len(data) {
				return types.Value{}, errors.Wrap(errkind.ErrCorruptIndex, "truncated record: float field")
			}
			v := types.NewFloat(math.Float64frombits(binary.LittleEndian.Uint64(data[pos : pos+8])))
			pos += 8
			return v, nil
		case types.ValueTypeText:
			if pos+4 > len(data) {
				return types.Value{}, errors.Wrap(errkind.ErrCorruptIndex, "truncated record: text length")
			}
			n := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
			pos += 4
			if pos+n > len(data) {
				return types.Value{}, errors.Wrap(errkind.ErrCorruptIndex, "truncated record: text body")
			}
			v := types.NewText(string(data[pos : pos+n]))
			pos += n
			return v, nil
		default:
			return types.Value{}, errors.Wrapf(errkind.ErrCorruptIndex, "unknown value type tag %d", vt)
		}
	}

	key, err := readField()
	if err != nil {
		return nil, err
	}
	row[schema.KeyColumn] = key

	for _, col := range schema.Columns {
		if col.Name == schema.KeyColumn {
			continue
		}
		v, err := readField()
		if err != nil {
			return nil, err
		}
		row[col.Name] = v
	}
	return row, nil
}
