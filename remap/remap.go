// Package remap implements AddressRemapTable, the per-module
// data-residency ledger, and its LRU-bounded Limited variant. Grounded
// on the reference address_remap.h/limited_address_remap.h.
package remap

import (
	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/internal/errs"
)

// noChild is the "not remapped" sentinel for childRemap entries,
// matching the reference's use of -1.
const noChild core.CommID = -1

// Evictor is the narrow callback a Limited table uses to notify the
// rest of the system when it evicts a page, avoiding an import of
// package comm (which would otherwise own the concrete
// CommModuleManager implementing this).
type Evictor interface {
	ReturnReplacedAddr(addr core.LbPageAddr, level int, commID core.CommID)
}

// Table is the unlimited AddressRemapTable: three logical maps keyed by
// lbPageAddr, with no eviction.
type Table struct {
	level          int
	isLevelZero    bool
	addrLend       map[core.LbPageAddr]struct{}
	borrowMidState map[core.LbPageAddr]struct{} // level-0 only
	childRemap     map[core.LbPageAddr]core.CommID
}

// New allocates an unlimited remap table for the given tree level.
func New(level int) *Table {
	return &Table{
		level:          level,
		isLevelZero:    level == 0,
		addrLend:       make(map[core.LbPageAddr]struct{}),
		borrowMidState: make(map[core.LbPageAddr]struct{}),
		childRemap:     make(map[core.LbPageAddr]core.CommID),
	}
}

// IsLend reports whether addr has been lent out of this module.
func (t *Table) IsLend(addr core.LbPageAddr) bool {
	_, ok := t.addrLend[addr]
	return ok
}

// IsBorrowMidState reports whether a DataLend notice arrived for addr
// but data packets have not all landed (level-0 only).
func (t *Table) IsBorrowMidState(addr core.LbPageAddr) bool {
	if !t.isLevelZero {
		return false
	}
	_, ok := t.borrowMidState[addr]
	return ok
}

// ChildRemap returns the child CommID currently hosting addr within
// this module's subtree, and whether addr is remapped at all.
func (t *Table) ChildRemap(addr core.LbPageAddr) (core.CommID, bool) {
	c, ok := t.childRemap[addr]
	if !ok || c == noChild {
		return noChild, false
	}
	return c, true
}

// SetLend marks addr as lent (sent out of this module's subtree).
// Panics (InvariantViolation) if addr is already lent or mid-state,
// matching the reference assert in newAddrLend.
func (t *Table) SetLend(addr core.LbPageAddr) {
	if t.IsLend(addr) || t.IsBorrowMidState(addr) {
		panic(errs.NewInvariantViolation("remap: SetLend on addr %d already lend=%v midState=%v", addr, t.IsLend(addr), t.IsBorrowMidState(addr)))
	}
	t.addrLend[addr] = struct{}{}
	delete(t.childRemap, addr)
}

// ClearLend removes addr from the lend set.
func (t *Table) ClearLend(addr core.LbPageAddr) {
	delete(t.addrLend, addr)
}

// SetBorrowMidState marks addr as having an in-flight DataLend notice
// (level-0 only).
func (t *Table) SetBorrowMidState(addr core.LbPageAddr) {
	if !t.isLevelZero {
		return
	}
	t.borrowMidState[addr] = struct{}{}
}

// ClearBorrowMidState clears the mid-state flag for addr.
func (t *Table) ClearBorrowMidState(addr core.LbPageAddr) {
	delete(t.borrowMidState, addr)
}

// SetChildRemap records that addr is currently hosted by child commID.
// commID == noChild collapses the entry back to "not remapped".
func (t *Table) SetChildRemap(addr core.LbPageAddr, commID core.CommID) {
	if commID == noChild {
		delete(t.childRemap, addr)
		return
	}
	t.childRemap[addr] = commID
}

// CheckContradiction verifies the per-page invariant: at most one of
// {addrLend, childRemap != -1, (level-0) borrowMidState} holds for addr.
// Returns an InvariantViolation error if violated.
func (t *Table) CheckContradiction(addr core.LbPageAddr) error {
	n := 0
	if t.IsLend(addr) {
		n++
	}
	if _, ok := t.ChildRemap(addr); ok {
		n++
	}
	if t.IsBorrowMidState(addr) {
		n++
	}
	if n > 1 {
		return errs.NewInvariantViolation("remap: contradictory state for addr %d (lend=%v remap=%v midState=%v)",
			addr, t.IsLend(addr), t.childRemap[addr], t.IsBorrowMidState(addr))
	}
	return nil
}
