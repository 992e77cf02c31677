// Package sketch implements MemSketch, a count-min-style hot-address
// tracker used by reserve-style load balancers to decide which
// addresses are worth migrating. Grounded on the reference reserve
// load balancer's MemSketch: NUM_BUCKET rows each holding BUCKET_SIZE
// cells, hashed bucketing, and one-shot hot-item consumption.
package sketch

import (
	"encoding/binary"
	"sort"

	"github.com/OneOfOne/xxhash"

	"github.com/systems-nuts/pimbridge/core"
)

type cell struct {
	addr  core.LbPageAddr
	count int
	used  bool
}

// MemSketch is a bucketed count-min-style sketch: NumBuckets rows of
// BucketSize cells apiece.
type MemSketch struct {
	numBuckets int
	bucketSize int
	rows       [][]cell
}

// New allocates a MemSketch with the given dimensions.
func New(numBuckets, bucketSize int) *MemSketch {
	rows := make([][]cell, numBuckets)
	for i := range rows {
		rows[i] = make([]cell, bucketSize)
	}
	return &MemSketch{numBuckets: numBuckets, bucketSize: bucketSize, rows: rows}
}

func hashForBucket(addr core.LbPageAddr, numBuckets int) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(addr))
	h := xxhash.Checksum64(buf[:])
	return int(h % uint64(numBuckets))
}

// Enter records one access to addr, per the original algorithm: if addr
// already occupies a cell in its bucket, increment it; otherwise find
// the minimum-count cell in the bucket and decrement it, replacing it
// with (addr, 1) once its count reaches zero.
func (s *MemSketch) Enter(addr core.LbPageAddr) {
	row := s.rows[hashForBucket(addr, s.numBuckets)]
	for i := range row {
		if row[i].used && row[i].addr == addr {
			row[i].count++
			return
		}
	}
	minIdx := 0
	for i := range row {
		if !row[i].used {
			minIdx = i
			break
		}
		if row[i].count < row[minIdx].count {
			minIdx = i
		}
	}
	if !row[minIdx].used {
		row[minIdx] = cell{addr: addr, count: 1, used: true}
		return
	}
	row[minIdx].count--
	if row[minIdx].count <= 0 {
		row[minIdx] = cell{addr: addr, count: 1, used: true}
	}
}

// Exit decrements addr's cell if present, clearing it on reaching zero.
func (s *MemSketch) Exit(addr core.LbPageAddr) {
	row := s.rows[hashForBucket(addr, s.numBuckets)]
	for i := range row {
		if row[i].used && row[i].addr == addr {
			row[i].count--
			if row[i].count <= 0 {
				row[i] = cell{}
			}
			return
		}
	}
}

// IsHot reports whether any cell in addr's hash bucket currently holds
// addr.
func (s *MemSketch) IsHot(addr core.LbPageAddr) bool {
	row := s.rows[hashForBucket(addr, s.numBuckets)]
	for i := range row {
		if row[i].used && row[i].addr == addr {
			return true
		}
	}
	return false
}

// topHot is the sorted, one-shot-consumable snapshot produced by
// PrepareForAccess.
type topHot struct {
	entries []core.DataHotness
	next    int
	// cellOf maps an entry index back to its (row, col) so FetchHotItem
	// can clear the underlying cell atomically with consumption.
	cellOf [][2]int
	owner  *MemSketch
}

// PrepareForAccess produces a sorted snapshot of non-empty cells by
// descending count, ready for repeated FetchHotItem calls.
func (s *MemSketch) PrepareForAccess() *Snapshot {
	type indexed struct {
		core.DataHotness
		row, col int
	}
	var all []indexed
	for r, row := range s.rows {
		for c, cl := range row {
			if cl.used && cl.count > 0 {
				all = append(all, indexed{
					DataHotness: core.DataHotness{Addr: cl.addr, Count: cl.count},
					row:         r, col: c,
				})
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Count > all[j].Count })

	snap := &Snapshot{owner: s}
	for _, e := range all {
		snap.entries = append(snap.entries, e.DataHotness)
		snap.cells = append(snap.cells, [2]int{e.row, e.col})
	}
	return snap
}

// Snapshot is the sorted, one-shot-consumable view returned by
// PrepareForAccess.
type Snapshot struct {
	entries []core.DataHotness
	cells   [][2]int
	next    int
	owner   *MemSketch
}

// FetchHotItem returns the next snapshot entry and atomically clears
// the underlying cell (one-shot consumption: the caller is responsible
// for migrating away that hotness). Returns a zero-count sentinel and
// false once the snapshot is exhausted or was empty to begin with.
func (snap *Snapshot) FetchHotItem() (core.DataHotness, bool) {
	if snap.next >= len(snap.entries) {
		return core.DataHotness{}, false
	}
	e := snap.entries[snap.next]
	rc := snap.cells[snap.next]
	snap.next++
	snap.owner.rows[rc[0]][rc[1]] = cell{}
	return e, true
}

// GetHotItemInfo appends up to n hot items from the snapshot into out,
// without further mutating the sketch (used by ReserveLoadBalancer to
// build childDataHotness without consuming the items outright).
func (snap *Snapshot) GetHotItemInfo(out []core.DataHotness, n int) []core.DataHotness {
	for i := 0; i < n && i < len(snap.entries); i++ {
		out = append(out, snap.entries[i])
	}
	return out
}
