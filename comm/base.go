// Package comm implements the hierarchical communication fabric:
// CommModuleBase's shared transport plumbing, BottomCommModule (one per
// bank), CommModule (inner, grouping children up to the root), the
// gather/scatter trigger policies, and CommModuleManager. Grounded on
// the reference comm_module_base.cpp, bottom_comm_module.cpp,
// comm_module.cpp, comm_module_manager.cpp/.h, gather_scheme.h/.cpp,
// and scatter_scheme.h/.cpp.
package comm

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/internal/errs"
	"github.com/systems-nuts/pimbridge/packet"
)

// Node is the common interface every tree member (BottomCommModule or
// CommModule) satisfies, letting a CommModule treat its children
// uniformly regardless of whether they are leaves or further inner
// modules.
type Node interface {
	Level() int
	CommID() core.CommID
	BankRange() (begin, end core.BankID)
	NextPacket(fromLevel int, fromCommID core.CommID, sizeLimit int) *packet.Packet
	ReceivePackets(src Node, messageSize int, readyCycle uint64) (numPackets, totalSize int)
	HandleInPacket(p *packet.Packet)
	IsEmpty(ts uint64) bool
	StateLocalTaskQueueSize() int
	StateToStealSize() int
}

// Base is CommModuleBase: the transport plumbing shared by
// BottomCommModule and CommModule. A module's "up" queue
// (parentPackets) and optional sibling queues are owned here; the
// owning module still implements HandleInPacket/NextPacket itself since
// routing differs between the bottom and inner levels.
type Base struct {
	mu sync.Mutex // commLock

	level  int
	commID core.CommID

	bankBegin, bankEnd core.BankID

	parent Node // nil at the root
	parentPackets *packet.Queue

	siblings       map[core.CommID]Node
	siblingQueues  map[core.CommID]*packet.Queue
	interflowOn    bool

	remapTable remapTable

	genCounter atomic.Int64
	conCounter atomic.Int64
}

// remapTable is satisfied by both *remap.Table and *remap.Limited.
type remapTable interface {
	IsLend(addr core.LbPageAddr) bool
	IsBorrowMidState(addr core.LbPageAddr) bool
	ChildRemap(addr core.LbPageAddr) (core.CommID, bool)
	SetLend(addr core.LbPageAddr)
	ClearLend(addr core.LbPageAddr)
	SetBorrowMidState(addr core.LbPageAddr)
	ClearBorrowMidState(addr core.LbPageAddr)
	SetChildRemap(addr core.LbPageAddr, commID core.CommID)
	CheckContradiction(addr core.LbPageAddr) error
}

// NewBase allocates a Base at the given level/commID, covering
// [bankBegin, bankEnd). table is either an unlimited remap.Table or a
// remap.Limited, per config (spec.md §6's remapTableType key).
func NewBase(level int, commID core.CommID, bankBegin, bankEnd core.BankID, table remapTable, interflowOn bool) *Base {
	return &Base{
		level:         level,
		commID:        commID,
		bankBegin:     bankBegin,
		bankEnd:       bankEnd,
		parentPackets: packet.NewQueue(),
		siblings:      make(map[core.CommID]Node),
		siblingQueues: make(map[core.CommID]*packet.Queue),
		remapTable:    table,
		interflowOn:   interflowOn,
	}
}

func (b *Base) Level() int                        { return b.level }
func (b *Base) CommID() core.CommID                { return b.commID }
func (b *Base) BankRange() (core.BankID, core.BankID) { return b.bankBegin, b.bankEnd }

// SetParent wires the module's parent, used once the tree is fully
// constructed bottom-up.
func (b *Base) SetParent(p Node) { b.parent = p }

// InitSiblings registers this module's siblings (other modules at the
// same level under the same parent) for interflow routing.
func (b *Base) InitSiblings(siblings map[core.CommID]Node) {
	b.siblings = siblings
	for id := range siblings {
		if id != b.commID {
			b.siblingQueues[id] = packet.NewQueue()
		}
	}
}

func (b *Base) isSibling(id core.CommID) bool {
	if id == b.commID {
		return false
	}
	_, ok := b.siblings[id]
	return ok
}

func (b *Base) isChild(bank core.BankID) bool {
	return bank >= b.bankBegin && bank < b.bankEnd
}

// HandleOutPacket sets p's From fields and routes it: to a sibling queue
// when interflow is enabled and ToCommID names a sibling, otherwise to
// the parent queue with ToLevel = level+1, ToCommID = NoTarget.
func (b *Base) HandleOutPacket(p *packet.Packet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handleOutPacketLocked(p)
}

func (b *Base) handleOutPacketLocked(p *packet.Packet) {
	p.FromLevel = b.level
	p.FromCommID = b.commID

	if b.interflowOn && b.isSibling(p.ToCommID) {
		q := b.siblingQueues[p.ToCommID]
		q.Push(p)
		return
	}
	p.ToLevel = b.level + 1
	p.ToCommID = packet.NoTarget
	b.parentPackets.Push(p)
	b.genCounter.Inc()
}

// ParentPacketsQueue exposes the upward queue so a parent module can
// pull from it via NextPacket/ReceivePackets.
func (b *Base) ParentPacketsQueue() *packet.Queue { return b.parentPackets }

// SiblingQueue exposes the queue destined for a given sibling.
func (b *Base) SiblingQueue(id core.CommID) *packet.Queue { return b.siblingQueues[id] }

// StateTransferRegionSize reports the bytes sitting in the up-bound
// parent-packet queue, per spec.md §3's bank-level counters.
func (b *Base) StateTransferRegionSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parentPackets.GetSize()
}

// NewAddrLend marks addr as lent out of this module's subtree. Per the
// reference, it asserts the page wasn't already lent or mid-state, and
// only actually sets addrLend when the home bank is a descendant of
// this module (nodeID identifies the home bank).
func (b *Base) NewAddrLend(addr core.LbPageAddr, homeIsDescendant bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remapTable.SetChildRemap(addr, -1)
	if homeIsDescendant {
		if b.remapTable.IsLend(addr) || b.remapTable.IsBorrowMidState(addr) {
			panic(errs.NewInvariantViolation("comm: NewAddrLend on addr %d already lend/mid-state at level %d commID %d", addr, b.level, b.commID))
		}
		b.remapTable.SetLend(addr)
	}
}

// NewAddrRemap records that addr now resides at dst (a child CommID),
// or clears the remap if dst collapses back to the home child. This
// implements the asymmetry flagged in spec.md §9 Open Question #1,
// confirmed intentional against the reference comm_module_base.cpp:
// at level>0, when the home bank is a descendant and the destination
// child equals the home's own child, the remap collapses back to
// "not remapped" rather than pointing a child at itself.
func (b *Base) NewAddrRemap(addr core.LbPageAddr, dst core.CommID, midState bool, homeIsDescendant bool, homeChild core.CommID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.level == 0 {
		if midState {
			b.remapTable.SetBorrowMidState(addr)
			return
		}
		b.remapTable.ClearBorrowMidState(addr)
		b.remapTable.ClearLend(addr)
		return
	}

	if homeIsDescendant && homeChild == dst {
		b.remapTable.SetChildRemap(addr, -1)
		return
	}
	b.remapTable.SetChildRemap(addr, dst)
}

// CheckAvailable inspects the remap table only; BottomCommModule wraps
// this with the home-bank special case (spec.md §4.3), CommModule uses
// it for inner routing checks directly (spec.md §4.4).
func (b *Base) checkAvailableViaRemap(addr core.LbPageAddr) int {
	if b.remapTable.IsBorrowMidState(addr) {
		return -2
	}
	if _, ok := b.remapTable.ChildRemap(addr); ok {
		return 0
	}
	if b.remapTable.IsLend(addr) {
		return -1
	}
	return 0
}

// ReceivePackets is the single mechanism through which a packet changes
// module: repeatedly pull from src until it yields nil or the window
// (messageSize) is exhausted, stamping each with readyCycle and handing
// it to sink for HandleInPacket.
func ReceivePackets(sink interface {
	Level() int
	CommID() core.CommID
	HandleInPacket(p *packet.Packet)
}, src Node, messageSize int, readyCycle uint64) (numPackets, totalSize int) {
	for totalSize < messageSize {
		p := src.NextPacket(sink.Level(), sink.CommID(), messageSize-totalSize)
		if p == nil {
			break
		}
		p.ReadyCycle = readyCycle
		totalSize += p.Size
		numPackets++
		sink.HandleInPacket(p)
	}
	return numPackets, totalSize
}
