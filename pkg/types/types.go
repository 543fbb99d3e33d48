// Package types provides the scalar and schema definitions shared by
// storage, the four index implementations, and the table façade.
package types

import "fmt"

// ValueType is the declared type of a column: one of INT, FLOAT, or TEXT.
type ValueType int

const (
	ValueTypeInt ValueType = iota
	ValueTypeFloat
	ValueTypeText
)

func (t ValueType) String() string {
	switch t {
	case ValueTypeInt:
		return "INT"
	case ValueTypeFloat:
		return "FLOAT"
	case ValueTypeText:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// ParseValueType maps a schema string to a ValueType, defaulting to TEXT
// for anything unrecognized — the CSV-bootstrap path (spec §6.1) always
// produces TEXT columns regardless of what a header name looks like.
func ParseValueType(s string) ValueType {
	switch s {
	case "INT", "int":
		return ValueTypeInt
	case "FLOAT", "float":
		return ValueTypeFloat
	default:
		return ValueTypeText
	}
}

// Value is a scalar value: exactly one of IntVal/FloatVal/TextVal is
// meaningful, selected by Type.
type Value struct {
	Type     ValueType
	IntVal   int64
	FloatVal float64
	TextVal  string
}

func NewInt(v int64) Value     { return Value{Type: ValueTypeInt, IntVal: v} }
func NewFloat(v float64) Value { return Value{Type: ValueTypeFloat, FloatVal: v} }
func NewText(v string) Value   { return Value{Type: ValueTypeText, TextVal: v} }

func (v Value) String() string {
	switch v.Type {
	case ValueTypeInt:
		return fmt.Sprintf("%d", v.IntVal)
	case ValueTypeFloat:
		return fmt.Sprintf("%g", v.FloatVal)
	case ValueTypeText:
		return v.TextVal
	default:
		return ""
	}
}

// Compare orders two values, numerically for INT/FLOAT and byte-wise for
// TEXT. Every index in this repo relies on Compare for key ordering.
func Compare(a, b Value) int {
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	switch a.Type {
	case ValueTypeInt:
		switch {
		case a.IntVal < b.IntVal:
			return -1
		case a.IntVal > b.IntVal:
			return 1
		default:
			return 0
		}
	case ValueTypeFloat:
		switch {
		case a.FloatVal < b.FloatVal:
			return -1
		case a.FloatVal > b.FloatVal:
			return 1
		default:
			return 0
		}
	default: // ValueTypeText
		switch {
		case a.TextVal < b.TextVal:
			return -1
		case a.TextVal > b.TextVal:
			return 1
		default:
			return 0
		}
	}
}

// Column is a single named, typed field of a TableSchema.
type Column struct {
	Name string    `json:"name"`
	Type ValueType `json:"type"`
}

// TableSchema describes a table: its name, its ordered column list, and
// which column is the (non-unique) primary key.
type TableSchema struct {
	Name      string   `json:"name"`
	KeyColumn string   `json:"key_column"`
	Columns   []Column `json:"columns"`
}

// KeyColumnType returns the declared type of the key column. Falls back
// to TEXT if the schema somehow doesn't name the column.
func (s *TableSchema) KeyColumnType() ValueType {
	for _, c := range s.Columns {
		if c.Name == s.KeyColumn {
			return c.Type
		}
	}
	return ValueTypeText
}

// ColumnNames returns the schema's column names in declared order.
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Row is a record: a mapping from column name to scalar value.
type Row map[string]Value

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Equal reports whether two rows hold identical fields, used by tests
// checking membership parity (spec P1).
func (r Row) Equal(other Row) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		ov, ok := other[k]
		if !ok || v.Type != ov.Type || Compare(v, ov) != 0 {
			return false
		}
	}
	return true
}
