package packet

import (
	"container/heap"

	"github.com/systems-nuts/pimbridge/internal/errs"
)

// heapSlice is the container/heap backing store, ordered by
// (timeStamp asc, readyCycle asc, priority desc, addr asc, innerType
// asc, signature asc, idx asc) per the reference comparator.
type heapSlice []*Packet

func (h heapSlice) Len() int { return len(h) }

func (h heapSlice) Less(i, j int) bool {
	a, b := h[i], h[j]
	switch {
	case a.TimeStamp != b.TimeStamp:
		return a.TimeStamp < b.TimeStamp
	case a.ReadyCycle != b.ReadyCycle:
		return a.ReadyCycle < b.ReadyCycle
	case a.Priority != b.Priority:
		// Descending: the numerically larger priority (PriorityNormal=3)
		// sorts ahead of the smaller (PriorityLoadBalance=2), matching
		// the reference max-heap's "normal task first" comparator.
		return a.Priority > b.Priority
	case a.Addr != b.Addr:
		return a.Addr < b.Addr
	case a.Type != b.Type:
		return a.Type < b.Type
	case a.Signature != b.Signature:
		return a.Signature < b.Signature
	default:
		return a.Idx < b.Idx
	}
}

func (h heapSlice) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *heapSlice) Push(x any) { *h = append(*h, x.(*Packet)) }

func (h *heapSlice) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// sameOrderingKey reports whether two packets tie on every ordering key,
// the condition CommPacketQueue.Push must reject outright.
func sameOrderingKey(a, b *Packet) bool {
	return a.TimeStamp == b.TimeStamp &&
		a.ReadyCycle == b.ReadyCycle &&
		a.Priority == b.Priority &&
		a.Addr == b.Addr &&
		a.Type == b.Type &&
		a.Signature == b.Signature &&
		a.Idx == b.Idx
}

// Queue is CommPacketQueue: a priority queue of CommPackets, splitting
// oversize packets into Sub fragments on Push and tracking total queued
// bytes.
type Queue struct {
	h         heapSlice
	sizeBytes int
}

// NewQueue allocates an empty CommPacketQueue.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.h)
	return q
}

// Push enqueues p, splitting it into ceil(size/MaxSize) Sub fragments
// first if it exceeds MaxSize. Panics with an InvariantViolation if the
// new packet's ordering key fully ties with an existing one (the
// anti-duplication check).
func (q *Queue) Push(p *Packet) {
	if p.Size > MaxSize {
		for _, frag := range split(p) {
			q.pushOne(frag)
		}
		return
	}
	q.pushOne(p)
}

func (q *Queue) pushOne(p *Packet) {
	for _, existing := range q.h {
		if sameOrderingKey(existing, p) {
			panic(errs.NewInvariantViolation("packet queue: two totally same packets (addr=%d ts=%d sig=%s)", p.Addr, p.TimeStamp, p.Signature))
		}
	}
	heap.Push(&q.h, p)
	q.sizeBytes += p.Size
}

// Front returns the top packet without removing it, or nil if empty.
func (q *Queue) Front() *Packet {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}

// Pop removes and returns the top packet, or nil if empty. Ownership of
// the returned packet transfers to the caller, which must either
// consume it or re-enqueue it — never hold it unowned between Pop and
// the receiver's handling.
func (q *Queue) Pop() *Packet {
	if len(q.h) == 0 {
		return nil
	}
	p := heap.Pop(&q.h).(*Packet)
	q.sizeBytes -= p.Size
	return p
}

// Empty reports whether the queue is empty, or (with ts given) whether
// there is nothing eligible for timestamp ts (the top entry's TimeStamp
// exceeds ts).
func (q *Queue) Empty(ts uint64) bool {
	if len(q.h) == 0 {
		return true
	}
	return q.h[0].TimeStamp > ts
}

// EmptyNow reports whether the queue holds no packets at all.
func (q *Queue) EmptyNow() bool {
	return len(q.h) == 0
}

// GetSize returns the total queued byte size.
func (q *Queue) GetSize() int {
	return q.sizeBytes
}

// Len returns the number of packets currently queued.
func (q *Queue) Len() int {
	return len(q.h)
}
