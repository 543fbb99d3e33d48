// Package errkind defines the sentinel error kinds surfaced across the
// storage, index, and table layers. Call sites wrap these with
// github.com/pkg/errors so a stack trace and context travel with them;
// callers test for a kind with errors.Is against these values.
package errkind

import "github.com/pkg/errors"

var (
	// ErrUnknownTable is returned when a referenced table is absent
	// from the catalog.
	ErrUnknownTable = errors.New("unknown table")

	// ErrUnsupportedSQL is returned when input matched no parser
	// variant.
	ErrUnsupportedSQL = errors.New("unsupported SQL statement")

	// ErrKeyNotFound is returned when a row lacks the configured key
	// column, even after name normalization.
	ErrKeyNotFound = errors.New("key column not found in row")

	// ErrPageOverflow is returned when a serialized page would exceed
	// PAGE_SIZE.
	ErrPageOverflow = errors.New("page data exceeds page size")

	// ErrFileNotFound is returned when an expected *.dat/*.idx file is
	// missing.
	ErrFileNotFound = errors.New("expected index file not found")

	// ErrCorruptIndex is returned when an index file's framing cannot
	// be decoded.
	ErrCorruptIndex = errors.New("index file is corrupt")

	// ErrPersistenceFailure is returned when a catalog or index save
	// could not commit.
	ErrPersistenceFailure = errors.New("persistence failure")
)
