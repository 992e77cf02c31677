package remap

import (
	"testing"

	"github.com/systems-nuts/pimbridge/core"
)

func TestSetLendPanicsOnDoubleLend(t *testing.T) {
	tbl := New(0)
	tbl.SetLend(5)
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic on double SetLend")
		}
	}()
	tbl.SetLend(5)
}

func TestChildRemapRoundTrip(t *testing.T) {
	tbl := New(1)
	tbl.SetChildRemap(10, 3)
	c, ok := tbl.ChildRemap(10)
	if !ok || c != 3 {
		t.Fatalf("expected child 3, got %v ok=%v", c, ok)
	}
	tbl.SetChildRemap(10, noChild)
	if _, ok := tbl.ChildRemap(10); ok {
		t.Fatalf("expected remap cleared")
	}
}

func TestCheckContradictionDetectsLendAndRemapTogether(t *testing.T) {
	tbl := New(1)
	tbl.childRemap[7] = 2 // bypass SetChildRemap/SetLend's mutual exclusion on purpose
	tbl.addrLend[7] = struct{}{}
	if err := tbl.CheckContradiction(7); err == nil {
		t.Fatalf("expected contradiction error")
	}
}

type recordingEvictor struct {
	returned []core.LbPageAddr
}

func (r *recordingEvictor) ReturnReplacedAddr(addr core.LbPageAddr, level int, commID core.CommID) {
	r.returned = append(r.returned, addr)
}

// TestLimitedEvictsOldestOnOverflow reproduces spec.md scenario S3: a
// module acquires pages A, B, C in that order under NumBucket=1,
// BucketSize=2; inserting C evicts A.
func TestLimitedEvictsOldestOnOverflow(t *testing.T) {
	ev := &recordingEvictor{}
	lim := NewLimited(1, 0, 1, 2, ev)

	const a, b, c core.LbPageAddr = 1, 2, 3
	lim.SetChildRemap(a, 9)
	lim.SetChildRemap(b, 9)
	if len(ev.returned) != 0 {
		t.Fatalf("expected no eviction yet, got %v", ev.returned)
	}
	lim.SetChildRemap(c, 9)

	if len(ev.returned) != 1 || ev.returned[0] != a {
		t.Fatalf("expected A evicted, got %v", ev.returned)
	}
	if _, ok := lim.ChildRemap(a); ok {
		t.Fatalf("expected A's remap cleared after eviction")
	}
	if _, ok := lim.ChildRemap(c); !ok {
		t.Fatalf("expected C present after insert")
	}
}
