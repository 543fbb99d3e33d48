// Package metrics provides the small resettable read/write counter pair
// used by the disk manager and by each index's own file layer.
package metrics

import "sync/atomic"

// Counters tracks physical reads and writes for one component. It is
// safe for concurrent use; the engine itself is single-writer, but
// catalog restore fans table reopen out across goroutines
// (golang.org/x/sync/errgroup), so counters used during restore must
// tolerate concurrent Add.
type Counters struct {
	reads  atomic.Uint64
	writes atomic.Uint64
}

// AddRead increments the read counter by one.
func (c *Counters) AddRead() { c.reads.Add(1) }

// AddWrite increments the write counter by one.
func (c *Counters) AddWrite() { c.writes.Add(1) }

// Reset zeroes both counters.
func (c *Counters) Reset() {
	c.reads.Store(0)
	c.writes.Store(0)
}

// Snapshot is a point-in-time, immutable copy of a Counters value.
type Snapshot struct {
	Reads  uint64 `json:"disk_reads"`
	Writes uint64 `json:"disk_writes"`
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{Reads: c.reads.Load(), Writes: c.writes.Load()}
}

// Add merges another snapshot's counts into this one, used to aggregate
// per-index and per-heap counters into a statement-level total (spec
// §6.2's `io` field).
func (s Snapshot) Add(other Snapshot) Snapshot {
	return Snapshot{Reads: s.Reads + other.Reads, Writes: s.Writes + other.Writes}
}
