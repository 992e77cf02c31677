package remap

import (
	"container/list"
	"encoding/binary"

	"github.com/OneOfOne/xxhash"

	"github.com/systems-nuts/pimbridge/core"
)

// Limited is the LRU-bounded AddressRemapTable variant: childRemap is
// capped at numBucket*bucketSize entries, bucketed by hash(addr) mod
// numBucket, with per-bucket LRU eviction back to the origin via an
// Evictor callback.
type Limited struct {
	*Table
	numBucket  int
	bucketSize int
	level      int
	commID     core.CommID
	evictor    Evictor

	buckets []*list.List                         // one LRU list per bucket
	entries map[core.LbPageAddr]*list.Element     // addr -> element in its bucket's list
}

// NewLimited allocates a Limited remap table. level and commID identify
// this module for ReturnReplacedAddr calls on eviction; evictor performs
// the actual return.
func NewLimited(level int, commID core.CommID, numBucket, bucketSize int, evictor Evictor) *Limited {
	buckets := make([]*list.List, numBucket)
	for i := range buckets {
		buckets[i] = list.New()
	}
	return &Limited{
		Table:      New(level),
		numBucket:  numBucket,
		bucketSize: bucketSize,
		level:      level,
		commID:     commID,
		evictor:    evictor,
		buckets:    buckets,
		entries:    make(map[core.LbPageAddr]*list.Element),
	}
}

func (l *Limited) getBucket(addr core.LbPageAddr) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(addr))
	h := xxhash.Checksum64(buf[:])
	return int(h % uint64(l.numBucket))
}

// SetChildRemap records addr -> commID, pushing it to the front of its
// bucket's LRU list. If the bucket now exceeds bucketSize, the oldest
// entry is evicted: its childRemap entry is cleared and the evictor is
// notified so the page can be returned home.
func (l *Limited) SetChildRemap(addr core.LbPageAddr, commID core.CommID) {
	if commID == noChild {
		l.Table.SetChildRemap(addr, commID)
		if el, ok := l.entries[addr]; ok {
			b := l.getBucket(addr)
			l.buckets[b].Remove(el)
			delete(l.entries, addr)
		}
		return
	}

	b := l.getBucket(addr)
	if el, ok := l.entries[addr]; ok {
		l.buckets[b].MoveToFront(el)
	} else {
		l.entries[addr] = l.buckets[b].PushFront(addr)
	}
	l.Table.SetChildRemap(addr, commID)

	for l.buckets[b].Len() > l.bucketSize {
		back := l.buckets[b].Back()
		evictAddr := back.Value.(core.LbPageAddr)
		l.buckets[b].Remove(back)
		delete(l.entries, evictAddr)
		l.Table.SetChildRemap(evictAddr, noChild)
		if l.evictor != nil {
			l.evictor.ReturnReplacedAddr(evictAddr, l.level, l.commID)
		}
	}
}
