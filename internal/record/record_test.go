package record

import (
	"reflect"
	"testing"

	"pagedb/pkg/types"
)

func TestEncodeDecodeFramesRoundTrip(t *testing.T) {
	payloads := [][]byte{[]byte("abc"), []byte(""), []byte("a longer payload here")}
	data := EncodeFrames(payloads)
	got := DecodeFrames(data)
	if len(got) != len(payloads) {
		t.Fatalf("got %d frames, want %d", len(got), len(payloads))
	}
	for i := range payloads {
		if !reflect.DeepEqual(got[i], payloads[i]) {
			t.Errorf("frame %d = %v, want %v", i, got[i], payloads[i])
		}
	}
}

func TestDecodeFramesTruncatedTail(t *testing.T) {
	data := EncodeFrames([][]byte{[]byte("one"), []byte("two")})
	// Truncate mid-way through the second frame's declared length.
	truncated := data[:len(data)-2]
	got := DecodeFrames(truncated)
	if len(got) != 1 {
		t.Fatalf("expected only the first good frame, got %d", len(got))
	}
	if string(got[0]) != "one" {
		t.Errorf("first frame = %q, want one", got[0])
	}
}

func TestDecodeFramesEmpty(t *testing.T) {
	if got := DecodeFrames(nil); len(got) != 0 {
		t.Errorf("expected no frames from empty input, got %d", len(got))
	}
}

func schemaForTest() *types.TableSchema {
	return &types.TableSchema{
		Name:      "t",
		KeyColumn: "id",
		Columns: []types.Column{
			{Name: "id", Type: types.ValueTypeInt},
			{Name: "name", Type: types.ValueTypeText},
			{Name: "score", Type: types.ValueTypeFloat},
		},
	}
}

func TestEncodeDecodeRowRoundTrip(t *testing.T) {
	schema := schemaForTest()
	row := types.Row{
		"id":    types.NewInt(7),
		"name":  types.NewText("alice"),
		"score": types.NewFloat(98.5),
	}
	data, err := EncodeRow(schema, row)
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	got, err := DecodeRow(schema, data)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if !got.Equal(row) {
		t.Errorf("DecodeRow = %+v, want %+v", got, row)
	}
}

func TestEncodeRowMissingKey(t *testing.T) {
	schema := schemaForTest()
	row := types.Row{"name": types.NewText("no id")}
	if _, err := EncodeRow(schema, row); err == nil {
		t.Error("expected error for missing key column")
	}
}

func TestEncodeRowMissingOptionalColumnDefaults(t *testing.T) {
	schema := schemaForTest()
	row := types.Row{"id": types.NewInt(1)}
	data, err := EncodeRow(schema, row)
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	got, err := DecodeRow(schema, data)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if got["name"].TextVal != "" {
		t.Errorf("expected default empty text, got %q", got["name"].TextVal)
	}
}

func TestDecodeRowTruncated(t *testing.T) {
	schema := schemaForTest()
	row := types.Row{"id": types.NewInt(1), "name": types.NewText("x"), "score": types.NewFloat(1.0)}
	data, err := EncodeRow(schema, row)
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	if _, err := DecodeRow(schema, data[:len(data)-1]); err == nil {
		t.Error("expected error decoding truncated row data")
	}
}

func TestEncodeRowNegativeInt(t *testing.T) {
	schema := &types.TableSchema{Name: "t", KeyColumn: "id", Columns: []types.Column{{Name: "id", Type: types.ValueTypeInt}}}
	row := types.Row{"id": types.NewInt(-42)}
	data, err := EncodeRow(schema, row)
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	got, err := DecodeRow(schema, data)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if got["id"].IntVal != -42 {
		t.Errorf("id = %d, want -42", got["id"].IntVal)
	}
}
