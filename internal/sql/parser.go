package sql

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"pagedb/internal/errkind"
	"pagedb/pkg/types"
)

// The regex table below is a direct translation of
// original_source/sql/parser.py's dialect: same seven shapes, same
// case-insensitive keywords, same tolerance for quoted or bare column
// names and paths. Go's regexp (RE2) has no backreferences, which the
// original never used either, so the patterns carry over verbatim.
const (
	wsReq  = `\s+`
	wsOpt  = `\s*`
	colPat = `"[^"]+"|'[^']+'|[\w\s]+`
)

var (
	reCreateUsing  = regexp.MustCompile(`(?i)^CREATE` + wsReq + `TABLE` + wsReq + `(\w+)` + wsReq + `USING` + wsReq + `(\w+)` + wsOpt + `$`)
	reCreate       = regexp.MustCompile(`(?i)^CREATE` + wsReq + `TABLE` + wsReq + `(\w+)` + wsOpt + `\(([^)]+)\)` + wsOpt + `KEY` + wsOpt + `\((\w+)\)` + wsOpt + `$`)
	reLoadFrom     = regexp.MustCompile(`(?i)^LOAD` + wsReq + `FROM` + wsReq + `(?:'([^']+)'|"([^"]+)"|([\w/. _-]+))` + wsReq + `INTO` + wsReq + `(\w+)` + wsOpt + `$`)
	reSelectRange  = regexp.MustCompile(`(?i)^SELECT\s+\*\s+FROM` + wsReq + `(\w+)` + wsReq + `WHERE` + wsReq + `(` + colPat + `)` + wsReq + `BETWEEN` + wsReq + `(.+)` + wsReq + `AND` + wsReq + `(.+)$`)
	reSelectEq     = regexp.MustCompile(`(?i)^SELECT\s+\*\s+FROM` + wsReq + `(\w+)` + wsReq + `WHERE` + wsReq + `(` + colPat + `)` + wsOpt + `=` + wsOpt + `(.+)$`)
	reInsert       = regexp.MustCompile(`(?i)^INSERT` + wsReq + `INTO` + wsReq + `(\w+)` + wsOpt + `\(([^)]+)\)` + wsOpt + `VALUES` + wsOpt + `\(([^)]+)\)` + wsOpt + `$`)
	reDelete       = regexp.MustCompile(`(?i)^DELETE` + wsReq + `FROM` + wsReq + `(\w+)` + wsReq + `WHERE` + wsReq + `(` + colPat + `)` + wsOpt + `=` + wsOpt + `(.+)$`)
)

// Parse turns one SQL statement into its typed Request, or
// UnsupportedSQL if it matches none of the seven shapes.
func Parse(stmt string) (Request, error) {
	s := strings.TrimSuffix(strings.TrimSpace(stmt), ";")

	if m := reCreateUsing.FindStringSubmatch(s); m != nil {
		return CreateTableUsing{Name: m[1], IndexType: strings.ToLower(m[2])}, nil
	}
	if m := reCreate.FindStringSubmatch(s); m != nil {
		return CreateTable{Name: m[1], Columns: splitCSV(m[2]), Key: m[3]}, nil
	}
	if m := reLoadFrom.FindStringSubmatch(s); m != nil {
		path := m[1]
		if path == "" {
			path = m[2]
		}
		if path == "" {
			path = m[3]
		}
		return LoadCSV{Table: m[4], Path: unquote(strings.TrimSpace(path))}, nil
	}
	if m := reSelectRange.FindStringSubmatch(s); m != nil {
		lo, err := parseLiteral(m[3])
		if err != nil {
			return nil, err
		}
		hi, err := parseLiteral(m[4])
		if err != nil {
			return nil, err
		}
		return SelectRange{Table: m[1], Column: cleanColumn(m[2]), Lo: lo, Hi: hi}, nil
	}
	if m := reSelectEq.FindStringSubmatch(s); m != nil {
		val, err := parseLiteral(m[3])
		if err != nil {
			return nil, err
		}
		return SelectEq{Table: m[1], Column: cleanColumn(m[2]), Value: val}, nil
	}
	if m := reInsert.FindStringSubmatch(s); m != nil {
		cols := splitCSV(m[2])
		rawVals := splitCSV(m[3])
		if len(cols) != len(rawVals) {
			return nil, errors.Wrapf(errkind.ErrUnsupportedSQL, "column/value count mismatch: %q", stmt)
		}
		values := make(map[string]types.Value, len(cols))
		for i, col := range cols {
			v, err := parseLiteral(rawVals[i])
			if err != nil {
				return nil, err
			}
			values[col] = v
		}
		return InsertRow{Table: m[1], Values: values}, nil
	}
	if m := reDelete.FindStringSubmatch(s); m != nil {
		val, err := parseLiteral(m[3])
		if err != nil {
			return nil, err
		}
		return DeleteEq{Table: m[1], Column: cleanColumn(m[2]), Value: val}, nil
	}

	return nil, errors.Wrapf(errkind.ErrUnsupportedSQL, "%q", stmt)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// cleanColumn strips a single layer of matching quotes, mirroring
// original_source/sql/ast.py's _clean_column_name.
func cleanColumn(col string) string {
	col = strings.TrimSpace(col)
	if len(col) >= 2 {
		if (col[0] == '"' && col[len(col)-1] == '"') || (col[0] == '\'' && col[len(col)-1] == '\'') {
			return col[1 : len(col)-1]
		}
	}
	return col
}

func unquote(s string) string {
	return strings.Trim(s, `"'`)
}

// parseLiteral parses one literal operand as int, float, or string
// (single- or double-quoted) — a stand-in for the original's `eval()`.
func parseLiteral(raw string) (types.Value, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return types.NewText(s[1 : len(s)-1]), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.NewInt(n), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return types.NewFloat(f), nil
	}
	return types.NewText(s), nil
}
