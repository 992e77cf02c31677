package comm

import (
	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/internal/nlog"
	"github.com/systems-nuts/pimbridge/lb"
	"github.com/systems-nuts/pimbridge/packet"
	"github.com/systems-nuts/pimbridge/taskunit"
)

// CommModule is an inner tree module grouping children up to the root.
// Grounded on the reference comm_module.cpp.
type CommModule struct {
	*Base

	children    []Node
	childBegin  int // first child's local index offset, for ViewChildState bookkeeping
	scatterBufs []*packet.Queue // one per child, indexed identically to children

	gatherScheme  GatherScheme
	scatterScheme ScatterScheme

	balancer          lb.Balancer
	enableLoadBalance bool
	lbConfig          lb.Config

	readyLens, queueLens, transferSizes []int

	phaseCount int
}

// NewCommModule allocates an inner module over children, which must
// already be constructed (bottom-up). bankBegin/bankEnd are derived
// from the children's own ranges.
func NewCommModule(level int, commID core.CommID, children []Node, table remapTable, interflowOn bool, gather GatherScheme, scatter ScatterScheme, balancer lb.Balancer, enableLb bool, lbCfg lb.Config) *CommModule {
	bankBegin, _ := children[0].BankRange()
	_, bankEnd := children[len(children)-1].BankRange()

	m := &CommModule{
		Base:              NewBase(level, commID, bankBegin, bankEnd, table, interflowOn),
		children:          children,
		gatherScheme:      gather,
		scatterScheme:     scatter,
		balancer:          balancer,
		enableLoadBalance: enableLb,
		lbConfig:          lbCfg,
		readyLens:         make([]int, len(children)),
		queueLens:         make([]int, len(children)),
		transferSizes:     make([]int, len(children)),
	}
	m.scatterBufs = make([]*packet.Queue, len(children))
	for i := range m.scatterBufs {
		m.scatterBufs[i] = packet.NewQueue()
	}
	for _, c := range children {
		if setter, ok := c.(interface{ SetParent(Node) }); ok {
			setter.SetParent(m)
		}
	}
	return m
}

// ChildCount implements lb.ModuleView.
func (m *CommModule) ChildCount() int { return len(m.children) }

func (m *CommModule) childIndex(commID core.CommID) int {
	for i, c := range m.children {
		if c.CommID() == commID {
			return i
		}
	}
	return -1
}

// SetChildRemap implements lb.ModuleView by delegating to the remap
// table.
func (m *CommModule) SetChildRemap(addr core.LbPageAddr, child int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remapTable.SetChildRemap(addr, m.children[child].CommID())
}

// AddToStealAt implements lb.ModuleView; only meaningful when the child
// is a BottomCommModule (a bank), matching the reference's assumption
// that assignLbTarget's targets are ultimately banks.
func (m *CommModule) AddToStealAt(child int, n int) {
	if bcm, ok := m.children[child].(*BottomCommModule); ok && bcm.taskUnit != nil {
		bcm.taskUnit.AddToSteal(n)
	}
}

// ViewChildState implements lb.ModuleView, returning the three vectors
// computed by the last GatherState call.
func (m *CommModule) ViewChildState() (readyLens, queueLens, transferSizes []int) {
	return m.readyLens, m.queueLens, m.transferSizes
}

// ApplyBalance implements lb.ModuleView; CommandLoadBalance drives the
// actual per-child execute calls, so ApplyBalance here is a bookkeeping
// no-op reserved for future use (e.g. metrics).
func (m *CommModule) ApplyBalance(commands, needs []int) {}

// Communicate runs one phase: gather if the gather scheme fires, then
// scatter if the scatter scheme fires. Returns whether either ran.
func (m *CommModule) Communicate(curCycle uint64) (gathered, scattered bool) {
	m.phaseCount++
	if m.gatherScheme.ShouldTrigger(m, m.phaseCount) {
		m.gather(curCycle)
		gathered = true
	}
	if m.scatterScheme.ShouldTrigger(m, m.phaseCount, gathered) {
		m.scatter(curCycle)
		scattered = true
	}
	return gathered, scattered
}

func (m *CommModule) gather(curCycle uint64) {
	for _, c := range m.children {
		m.ReceivePackets(c, m.gatherScheme.PacketSize(), curCycle)
	}
	m.gatherState()
	if m.enableLoadBalance {
		m.commandLoadBalance()
	}
}

func (m *CommModule) scatter(curCycle uint64) {
	for i, c := range m.children {
		c.ReceivePackets(scatterSource{m, i}, m.scatterScheme.PacketSize(), curCycle)
	}
}

// scatterSource adapts one of this module's per-child scatter buffers
// into the Node surface a child's ReceivePackets pulls from.
type scatterSource struct {
	m   *CommModule
	idx int
}

func (s scatterSource) Level() int               { return s.m.level }
func (s scatterSource) CommID() core.CommID      { return s.m.commID }
func (s scatterSource) BankRange() (core.BankID, core.BankID) { return s.m.BankRange() }
func (s scatterSource) IsEmpty(ts uint64) bool   { return s.m.scatterBufs[s.idx].Empty(ts) }
func (s scatterSource) StateLocalTaskQueueSize() int { return 0 }
func (s scatterSource) StateToStealSize() int        { return 0 }
func (s scatterSource) HandleInPacket(p *packet.Packet) {}
func (s scatterSource) ReceivePackets(src Node, messageSize int, readyCycle uint64) (int, int) {
	return 0, 0
}
func (s scatterSource) NextPacket(fromLevel int, fromCommID core.CommID, sizeLimit int) *packet.Packet {
	q := s.m.scatterBufs[s.idx]
	top := q.Front()
	if top == nil || top.Size > sizeLimit {
		return nil
	}
	return q.Pop()
}

// NextPacket routes by fromLevel relative to this module's level:
// sibling queue if fromLevel == this level (a sibling pulling across),
// parent queue if fromLevel == this level+1 (the parent pulling up).
func (m *CommModule) NextPacket(fromLevel int, fromCommID core.CommID, sizeLimit int) *packet.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()

	var q *packet.Queue
	switch {
	case fromLevel == m.level:
		q = m.siblingQueues[fromCommID]
	default:
		q = m.parentPackets
	}
	if q == nil {
		return nil
	}
	top := q.Front()
	if top == nil || top.Size > sizeLimit {
		return nil
	}
	return q.Pop()
}

// ReceivePackets pulls packets from src into this module.
func (m *CommModule) ReceivePackets(src Node, messageSize int, readyCycle uint64) (int, int) {
	return ReceivePackets(m, src, messageSize, readyCycle)
}

// HandleInPacket consults the local remap table to retarget p, then
// either drops it into the appropriate child's scatter buffer (if the
// retargeted destination is a descendant bank) or forwards it out via
// HandleOutPacket.
func (m *CommModule) HandleInPacket(p *packet.Packet) {
	m.mu.Lock()
	if m.remapTable.IsLend(p.Addr) {
		p.ToCommID = packet.NoTarget
	} else if child, ok := m.remapTable.ChildRemap(p.Addr); ok {
		p.ToCommID = child
	}
	m.mu.Unlock()

	if p.ToCommID != packet.NoTarget {
		if idx := m.childIndex(p.ToCommID); idx >= 0 {
			m.scatterBufs[idx].Push(p)
			return
		}
	}
	m.HandleOutPacket(p)
}

// IsEmpty reports whether every child subtree is empty for ts.
func (m *CommModule) IsEmpty(ts uint64) bool {
	for _, c := range m.children {
		if !c.IsEmpty(ts) {
			return false
		}
	}
	return true
}

// StateLocalTaskQueueSize sums children's local queue sizes, per the
// reference's recursive stateLocalTaskQueueSize.
func (m *CommModule) StateLocalTaskQueueSize() int {
	total := 0
	for _, c := range m.children {
		total += c.StateLocalTaskQueueSize()
	}
	return total
}

// StateToStealSize sums children's toStealSize reservations.
func (m *CommModule) StateToStealSize() int {
	total := 0
	for _, c := range m.children {
		total += c.StateToStealSize()
	}
	return total
}

func (m *CommModule) gatherState() {
	for i, c := range m.children {
		m.readyLens[i] = readyLenOf(c)
		m.queueLens[i] = c.StateLocalTaskQueueSize() + c.StateToStealSize()
		m.transferSizes[i] = transferSizeOf(c)
	}
	if m.balancer != nil {
		m.balancer.UpdateChildStateForLB(m)
	}
}

func readyLenOf(c Node) int {
	if bcm, ok := c.(*BottomCommModule); ok && bcm.taskUnit != nil {
		return bcm.taskUnit.ReadyLength()
	}
	return 0
}

func transferSizeOf(c Node) int {
	if base, ok := c.(interface{ StateTransferRegionSize() int }); ok {
		return base.StateTransferRegionSize()
	}
	return 0
}

// ShouldCommandLoadBalance is true iff at least one child is below
// IdleThreshold and at least one other is at or above it, per
// spec.md §4.7.
func (m *CommModule) ShouldCommandLoadBalance() bool {
	return lb.ShouldCommandLoadBalance(m.readyLens, m.lbConfig.IdleThreshold)
}

func (m *CommModule) commandLoadBalance() {
	if m.balancer == nil || !m.ShouldCommandLoadBalance() {
		return
	}
	commands, needs := m.balancer.GenerateCommand(m)

	outInfo := &taskunit.OutInfo{}
	for i, cnt := range commands {
		if cnt <= 0 {
			continue
		}
		if bcm, ok := m.children[i].(*BottomCommModule); ok {
			childOut := bcm.ExecuteLoadBalance(taskunit.LbCommand{Count: cnt}, bcm.bankID)
			outInfo.Hotness = append(outInfo.Hotness, childOut.Hotness...)
		}
	}
	lb.AssignLbTarget(m, needs, outInfo.Hotness)

	for _, c := range m.children {
		if bcm, ok := c.(*BottomCommModule); ok {
			bcm.PushDataLendPackets(0)
		}
	}
}

var _ = nlog.Infoln
