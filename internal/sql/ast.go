// Package sql parses the seven-statement dialect into
// typed request variants. It is an external collaborator by design:
// it never touches a table, index, or heap directly — it only turns
// text into data.
package sql

import "pagedb/pkg/types"

// Request is the common marker every parsed statement satisfies.
type Request interface {
	requestNode()
}

// CreateTable is `CREATE TABLE t(c1, c2, ...) KEY(k)`.
type CreateTable struct {
	Name    string
	Key     string
	Columns []string
}

func (CreateTable) requestNode() {}

// CreateTableUsing is `CREATE TABLE t USING <index_type>`; it only
// records the chosen index type, the schema arrives with the next
// LoadCSV.
type CreateTableUsing struct {
	Name      string
	IndexType string
}

func (CreateTableUsing) requestNode() {}

// LoadCSV is `LOAD FROM <path> INTO <table>`.
type LoadCSV struct {
	Table string
	Path  string
}

func (LoadCSV) requestNode() {}

// SelectEq is `SELECT * FROM t WHERE "col" = <literal>`.
type SelectEq struct {
	Table  string
	Column string
	Value  types.Value
}

func (SelectEq) requestNode() {}

// SelectRange is `SELECT * FROM t WHERE "col" BETWEEN <lo> AND <hi>`.
type SelectRange struct {
	Table  string
	Column string
	Lo     types.Value
	Hi     types.Value
}

func (SelectRange) requestNode() {}

// InsertRow is `INSERT INTO t(c, ...) VALUES(v, ...)`.
type InsertRow struct {
	Table  string
	Values map[string]types.Value
}

func (InsertRow) requestNode() {}

// DeleteEq is `DELETE FROM t WHERE "col" = <literal>`.
type DeleteEq struct {
	Table  string
	Column string
	Value  types.Value
}

func (DeleteEq) requestNode() {}
