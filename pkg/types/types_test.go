package types

import "testing"

func TestValueTypeString(t *testing.T) {
	cases := []struct {
		vt   ValueType
		want string
	}{
		{ValueTypeInt, "INT"},
		{ValueTypeFloat, "FLOAT"},
		{ValueTypeText, "TEXT"},
		{ValueType(99), "UNKNOWN"},
	}
	for _, c := range cases {
		if got := c.vt.String(); got != c.want {
			t.Errorf("ValueType(%d).String() = %q, want %q", c.vt, got, c.want)
		}
	}
}

func TestParseValueType(t *testing.T) {
	cases := map[string]ValueType{
		"INT":      ValueTypeInt,
		"FLOAT":    ValueTypeFloat,
		"TEXT":     ValueTypeText,
		"anything": ValueTypeText,
		"":         ValueTypeText,
	}
	for in, want := range cases {
		if got := ParseValueType(in); got != want {
			t.Errorf("ParseValueType(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValueString(t *testing.T) {
	if got := NewInt(42).String(); got != "42" {
		t.Errorf("NewInt(42).String() = %q, want 42", got)
	}
	if got := NewText("hello").String(); got != "hello" {
		t.Errorf("NewText.String() = %q, want hello", got)
	}
	if got := NewFloat(3.5).String(); got != "3.5" {
		t.Errorf("NewFloat(3.5).String() = %q, want 3.5", got)
	}
}

func TestCompareInt(t *testing.T) {
	a, b := NewInt(1), NewInt(2)
	if Compare(a, b) >= 0 {
		t.Errorf("Compare(1, 2) should be negative")
	}
	if Compare(b, a) <= 0 {
		t.Errorf("Compare(2, 1) should be positive")
	}
	if Compare(a, a) != 0 {
		t.Errorf("Compare(1, 1) should be zero")
	}
}

func TestCompareNegativeInt(t *testing.T) {
	a, b := NewInt(-5), NewInt(3)
	if Compare(a, b) >= 0 {
		t.Errorf("Compare(-5, 3) should be negative")
	}
}

func TestCompareText(t *testing.T) {
	if Compare(NewText("apple"), NewText("banana")) >= 0 {
		t.Errorf("Compare(apple, banana) should be negative")
	}
	if Compare(NewText("same"), NewText("same")) != 0 {
		t.Errorf("Compare(same, same) should be zero")
	}
}

func TestCompareFloat(t *testing.T) {
	if Compare(NewFloat(1.5), NewFloat(2.5)) >= 0 {
		t.Errorf("Compare(1.5, 2.5) should be negative")
	}
}

func TestTableSchemaKeyColumnType(t *testing.T) {
	s := &TableSchema{
		Name:      "users",
		KeyColumn: "id",
		Columns: []Column{
			{Name: "id", Type: ValueTypeInt},
			{Name: "name", Type: ValueTypeText},
		},
	}
	if got := s.KeyColumnType(); got != ValueTypeInt {
		t.Errorf("KeyColumnType() = %v, want INT", got)
	}
}

func TestTableSchemaKeyColumnTypeMissing(t *testing.T) {
	s := &TableSchema{Name: "t", KeyColumn: "missing", Columns: []Column{{Name: "id", Type: ValueTypeInt}}}
	if got := s.KeyColumnType(); got != ValueTypeText {
		t.Errorf("KeyColumnType() with missing key column = %v, want TEXT default", got)
	}
}

func TestTableSchemaColumnNames(t *testing.T) {
	s := &TableSchema{Columns: []Column{{Name: "a"}, {Name: "b"}, {Name: "c"}}}
	names := s.ColumnNames()
	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("ColumnNames() len = %d, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ColumnNames()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRowCloneIndependence(t *testing.T) {
	r := Row{"id": NewInt(1), "name": NewText("a")}
	c := r.Clone()
	c["name"] = NewText("b")
	if r["name"].TextVal != "a" {
		t.Errorf("Clone mutated original row")
	}
}

func TestRowEqual(t *testing.T) {
	a := Row{"id": NewInt(1), "name": NewText("x")}
	b := Row{"id": NewInt(1), "name": NewText("x")}
	c := Row{"id": NewInt(2), "name": NewText("x")}
	if !a.Equal(b) {
		t.Errorf("expected equal rows to be Equal")
	}
	if a.Equal(c) {
		t.Errorf("expected different rows to not be Equal")
	}
	if a.Equal(Row{"id": NewInt(1)}) {
		t.Errorf("expected rows of different length to not be Equal")
	}
}
