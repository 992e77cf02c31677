package sketch

import (
	"testing"

	"github.com/systems-nuts/pimbridge/core"
)

func TestEnterIncrementsExistingCell(t *testing.T) {
	s := New(4, 2)
	s.Enter(100)
	s.Enter(100)
	s.Enter(100)
	if !s.IsHot(100) {
		t.Fatalf("expected 100 to be hot after repeated Enter")
	}
}

func TestExitClearsCellAtZero(t *testing.T) {
	s := New(4, 2)
	s.Enter(7)
	s.Exit(7)
	if s.IsHot(7) {
		t.Fatalf("expected 7 to be cleared after Exit")
	}
}

func TestPrepareForAccessSortsDescending(t *testing.T) {
	s := New(1, 4)
	s.Enter(1)
	for i := 0; i < 3; i++ {
		s.Enter(2)
	}
	for i := 0; i < 5; i++ {
		s.Enter(3)
	}
	snap := s.PrepareForAccess()
	first, ok := snap.FetchHotItem()
	if !ok || first.Addr != 3 {
		t.Fatalf("expected addr 3 (count 5) first, got %+v ok=%v", first, ok)
	}
}

func TestFetchHotItemOneShotAndEmptySentinel(t *testing.T) {
	s := New(2, 2)
	snap := s.PrepareForAccess()
	item, ok := snap.FetchHotItem()
	if ok {
		t.Fatalf("expected no items from an empty sketch, got %+v", item)
	}
	if item != (core.DataHotness{}) {
		t.Fatalf("expected zero-value sentinel, got %+v", item)
	}
}

func TestFetchHotItemClearsCellAfterConsumption(t *testing.T) {
	s := New(4, 2)
	s.Enter(42)
	snap := s.PrepareForAccess()
	if _, ok := snap.FetchHotItem(); !ok {
		t.Fatalf("expected one hot item")
	}
	if s.IsHot(42) {
		t.Fatalf("expected cell to be cleared after one-shot fetch")
	}
}
