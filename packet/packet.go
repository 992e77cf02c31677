// Package packet implements CommPacket, the tagged-union wire value the
// communication fabric moves between modules, and CommPacketQueue, the
// priority queue that orders them. Grounded on the reference
// comm_packet.h and comm_packet_queue.h.
package packet

import (
	"github.com/teris-io/shortid"

	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/internal/errs"
)

// Type tags the three CommPacket variants.
type Type int

const (
	TypeTask Type = iota
	TypeDataLend
	TypeSub
)

// Priority values, in the direction the queue orders descending: an
// ordinary forwarded task outranks a load-balance-tagged one so normal
// traffic is never starved behind balancer churn.
const (
	PriorityLoadBalance = 2
	PriorityNormal      = 3
)

// NoTarget is the sentinel CommPacket.ToCommID meaning "route to
// parent" rather than a specific child/sibling.
const NoTarget core.CommID = -1

// MaxSize is the byte threshold above which Push splits a packet into
// Sub fragments.
const MaxSize = 256

// Packet is the common envelope for all three variants. Task and
// DataLend payloads are carried via optional fields; Sub packets wrap a
// wire-serialized parent (Parent) along with the fragmentation index.
type Packet struct {
	Type Type

	FromLevel  int
	FromCommID core.CommID
	ToLevel    int
	ToCommID   core.CommID // NoTarget means "parent"

	TimeStamp  uint64
	ReadyCycle uint64
	Priority   int
	Size       int
	Signature  string
	Addr       core.LbPageAddr

	Task *core.Task // set when Type == TypeTask

	// Sub-fragment fields (set when Type == TypeSub).
	Parent *Packet
	Idx    int
	Total  int
}

var sidGen *shortid.Shortid

func init() {
	sidGen = shortid.MustNew(1, shortid.DefaultABC, 1)
}

func newSignature() string {
	s, err := sidGen.Generate()
	if err != nil {
		// shortid only fails on generator exhaustion after an enormous
		// number of IDs in one tick; fall back to an empty signature
		// rather than panicking the scheduler over id generation.
		return ""
	}
	return s
}

// NewTask builds a Task-typed packet ready for Push.
func NewTask(t *core.Task, addr core.LbPageAddr, timeStamp uint64, priority int) *Packet {
	return &Packet{
		Type:      TypeTask,
		TimeStamp: timeStamp,
		Priority:  priority,
		Size:      t.TaskSize(),
		Signature: newSignature(),
		Addr:      addr,
		Task:      t,
		ToCommID:  NoTarget,
	}
}

// NewDataLend builds a DataLend-typed packet for addr.
func NewDataLend(addr core.LbPageAddr, timeStamp uint64) *Packet {
	return &Packet{
		Type:      TypeDataLend,
		TimeStamp: timeStamp,
		Priority:  PriorityNormal,
		Size:      8,
		Signature: newSignature(),
		Addr:      addr,
		ToCommID:  NoTarget,
	}
}

// split breaks an oversize packet into ceil(size/MaxSize) Sub fragments,
// 0-indexed: idx ranges [0, total-1], and only the last fragment
// (idx == total-1) is meant to trigger handling of the wrapped parent.
func split(p *Packet) []*Packet {
	total := (p.Size + MaxSize - 1) / MaxSize
	if total < 1 {
		total = 1
	}
	frags := make([]*Packet, total)
	for i := 0; i < total; i++ {
		frags[i] = &Packet{
			Type:       TypeSub,
			FromLevel:  p.FromLevel,
			FromCommID: p.FromCommID,
			ToLevel:    p.ToLevel,
			ToCommID:   p.ToCommID,
			TimeStamp:  p.TimeStamp,
			Priority:   p.Priority,
			Size:       MaxSize,
			Signature:  newSignature(),
			Addr:       p.Addr,
			Parent:     p,
			Idx:        i,
			Total:      total,
		}
	}
	return frags
}

// IsLast reports whether this Sub fragment is the last of its parent's
// fragmentation (the one whose arrival triggers handling of Parent).
func (p *Packet) IsLast() bool {
	return p.Type == TypeSub && p.Idx == p.Total-1
}

// ForLb reports whether this packet is a task forwarded as part of a
// load-balance command rather than an ordinary re-route.
func (p *Packet) ForLb() bool {
	return p.Type == TypeTask && p.Priority == PriorityLoadBalance
}

// ValidatePriority returns an InvariantViolation if Priority is outside
// the two recognized values, catching a malformed packet before it ever
// reaches the queue's comparator.
func (p *Packet) ValidatePriority() error {
	if p.Priority != PriorityLoadBalance && p.Priority != PriorityNormal {
		return errs.NewInvariantViolation("packet: unrecognized priority %d", p.Priority)
	}
	return nil
}
