// Package dbapi implements the request handler: parse one SQL
// statement, dispatch it against the catalog, and return a uniform
// response (ok/rows+count, io, execution_time_ms, error).
package dbapi

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"pagedb/internal/catalog"
	"pagedb/internal/errkind"
	"pagedb/internal/sql"
	"pagedb/pkg/types"
)

// IOStats is the `io` field of a Response.
type IOStats struct {
	DiskReads  uint64 `json:"disk_reads"`
	DiskWrites uint64 `json:"disk_writes"`
}

// Response is the uniform shape every executed statement returns.
type Response struct {
	OK    bool        `json:"ok,omitempty"`
	Rows  []types.Row `json:"rows,omitempty"`
	Count int         `json:"count,omitempty"`

	IO              IOStats `json:"io"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`

	Error string `json:"error,omitempty"`
}

// Handler executes statements against one catalog.
type Handler struct {
	cat *catalog.Catalog
	log *logrus.Logger
}

// New constructs a Handler over cat.
func New(cat *catalog.Catalog, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{cat: cat, log: log}
}

// Execute parses and runs one SQL statement, measuring execution time
// and aggregating I/O counters around the full parse->plan->execute
// pipeline, resetting them at statement entry.
func (h *Handler) Execute(stmt string) Response {
	start := time.Now()
	h.cat.ResetIOStats()

	req, err := sql.Parse(stmt)
	if err != nil {
		return errorResponse(err, start)
	}

	var resp Response
	switch r := req.(type) {
	case sql.CreateTable:
		resp, err = h.execCreateTable(r)
	case sql.CreateTableUsing:
		resp, err = h.execCreateTableUsing(r)
	case sql.LoadCSV:
		resp, err = h.execLoadCSV(r)
	case sql.SelectEq:
		resp, err = h.execSelectEq(r)
	case sql.SelectRange:
		resp, err = h.execSelectRange(r)
	case sql.InsertRow:
		resp, err = h.execInsertRow(r)
	case sql.DeleteEq:
		resp, err = h.execDeleteEq(r)
	default:
		err = errkind.ErrUnsupportedSQL
	}
	if err != nil {
		return errorResponse(err, start)
	}

	reads, writes := h.cat.IOSnapshot()
	resp.IO = IOStats{DiskReads: reads, DiskWrites: writes}
	resp.ExecutionTimeMs = elapsedMs(start)
	return resp
}

func errorResponse(err error, start time.Time) Response {
	return Response{Error: err.Error(), ExecutionTimeMs: elapsedMs(start)}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func (h *Handler) execCreateTable(r sql.CreateTable) (Response, error) {
	if _, err := h.cat.Ensure(r.Name, r.Key, r.Columns); err != nil {
		return Response{}, err
	}
	return Response{OK: true}, nil
}

func (h *Handler) execCreateTableUsing(r sql.CreateTableUsing) (Response, error) {
	if err := h.cat.DeclareIndexType(r.Name, r.IndexType); err != nil {
		return Response{}, err
	}
	return Response{OK: true}, nil
}

// execLoadCSV reads path, and if table does not yet exist, creates it
// with the CSV's first column as key and every column TEXT-default
// — though cell values are themselves type-inferred
// (int/float/text), matching original_source/core/utils.py's
// per-cell `_convert_value`.
func (h *Handler) execLoadCSV(r sql.LoadCSV) (Response, error) {
	rows, headers, err := loadCSV(r.Path)
	if err != nil {
		return Response{}, err
	}

	tb, ok := h.cat.Get(r.Table)
	if !ok {
		key := r.Table
		if len(headers) > 0 {
			key = headers[0]
		}
		tb, err = h.cat.Ensure(r.Table, key, headers)
		if err != nil {
			return Response{}, err
		}
	}

	if err := tb.Load(rows); err != nil {
		return Response{}, err
	}
	return Response{OK: true, Count: len(rows)}, nil
}

func (h *Handler) execInsertRow(r sql.InsertRow) (Response, error) {
	tb, err := h.cat.Lookup(r.Table)
	if err != nil {
		return Response{}, err
	}
	if err := tb.Insert(types.Row(r.Values)); err != nil {
		return Response{}, err
	}
	return Response{OK: true, Count: 1}, nil
}

func (h *Handler) execDeleteEq(r sql.DeleteEq) (Response, error) {
	tb, err := h.cat.Lookup(r.Table)
	if err != nil {
		return Response{}, err
	}
	n, err := tb.Delete(r.Value)
	if err != nil {
		return Response{}, err
	}
	return Response{OK: true, Count: n}, nil
}

func (h *Handler) execSelectEq(r sql.SelectEq) (Response, error) {
	tb, err := h.cat.Lookup(r.Table)
	if err != nil {
		return Response{}, err
	}
	rows, err := tb.SelectEq(r.Column, r.Value)
	if err != nil {
		return Response{}, err
	}
	return Response{Rows: rows, Count: len(rows)}, nil
}

func (h *Handler) execSelectRange(r sql.SelectRange) (Response, error) {
	tb, err := h.cat.Lookup(r.Table)
	if err != nil {
		return Response{}, err
	}
	rows, err := tb.SelectRange(r.Column, r.Lo, r.Hi)
	if err != nil {
		return Response{}, err
	}
	return Response{Rows: rows, Count: len(rows)}, nil
}

// loadCSV reads path as a header-first CSV and converts every cell
// with the original loader's int/float/text inference, grounded on
// original_source/core/utils.py's load_csv/_convert_value.
func loadCSV(path string) ([]types.Row, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errkind.ErrFileNotFound
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var rows []types.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		row := make(types.Row, len(headers))
		for i, h := range headers {
			if i >= len(record) {
				row[h] = types.NewText("")
				continue
			}
			row[h] = convertCSVValue(record[i])
		}
		rows = append(rows, row)
	}
	return rows, headers, nil
}

func convertCSVValue(s string) types.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.NewInt(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return types.NewFloat(f)
	}
	return types.NewText(s)
}
