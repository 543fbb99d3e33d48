// Package storage implements the paged on-disk substrate: one file per
// table, a fixed-size Page abstraction, and an LRU buffer pool shared by
// every table's heap accesses.
package storage

import (
	"pagedb/internal/errkind"

	"github.com/pkg/errors"
)

// PageSize is the fixed page size in bytes (spec §3).
const PageSize = 4096

// Page is one fixed-size unit of heap I/O. Payload holds the page's
// content without the zero padding; toDiskBytes produces the padded
// on-disk representation used by the disk manager.
type Page struct {
	ID      uint32
	Dirty   bool
	Payload []byte
}

// NewPage returns an empty page with the given id.
func NewPage(id uint32) *Page {
	return &Page{ID: id, Payload: nil}
}

// SetPayload replaces the page's content. It fails with
// errkind.ErrPageOverflow if payload is longer than PageSize.
func (p *Page) SetPayload(payload []byte) error {
	if len(payload) > PageSize {
		return errors.Wrapf(errkind.ErrPageOverflow, "page %d: %d bytes exceeds page size %d", p.ID, len(payload), PageSize)
	}
	p.Payload = payload
	p.Dirty = true
	return nil
}

// toDiskBytes returns the page's PageSize-byte, zero-padded on-disk form.
func (p *Page) toDiskBytes() []byte {
	buf := make([]byte, PageSize)
	copy(buf, p.Payload)
	return buf
}

// fromDiskBytes trims every trailing zero byte from a raw PageSize-byte
// block. A payload whose own last bytes are zero loses them as well, so
// the heap re-pads a page before decoding its length-framed records.
func fromDiskBytes(data []byte) []byte {
	end := len(data)
	for end > 0 && data[end-1] == 0 {
		end--
	}
	out := make([]byte, end)
	copy(out, data[:end])
	return out
}
