package comm

import (
	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/packet"
	"github.com/systems-nuts/pimbridge/taskunit"
)

// BottomCommModule is the level-0 module tied 1-to-1 to a bank's
// TaskUnit. Grounded on the reference bottom_comm_module.cpp.
type BottomCommModule struct {
	*Base

	bankID  core.BankID
	numaMap core.NumaMap

	taskUnit *taskunit.TaskUnit

	toLendMap map[core.LbPageAddr]struct{}

	lastGatherPhase, lastScatterPhase int
}

// NewBottomCommModule allocates a BottomCommModule for bankID. The
// owning TaskUnit must have its SetCommModule called with this module
// once construction completes, per spec.md §9's constructor-ordering
// note (the kernel and its module are mutually referential at
// construction time).
func NewBottomCommModule(bankID core.BankID, commID core.CommID, numaMap core.NumaMap, table remapTable, interflowOn bool) *BottomCommModule {
	return &BottomCommModule{
		Base:      NewBase(0, commID, bankID, bankID+1, table, interflowOn),
		bankID:    bankID,
		numaMap:   numaMap,
		toLendMap: make(map[core.LbPageAddr]struct{}),
	}
}

// AttachTaskUnit wires the owning TaskUnit, completing the mutual
// reference between module and kernel.
func (m *BottomCommModule) AttachTaskUnit(tu *taskunit.TaskUnit) {
	m.taskUnit = tu
	tu.SetCommModule(m)
}

// TaskUnit exposes the attached TaskUnit to callers outside the package
// (the engine's phase driver and task submission entry point).
func (m *BottomCommModule) TaskUnit() *taskunit.TaskUnit { return m.taskUnit }

// BankID reports this module's bank.
func (m *BottomCommModule) BankID() core.BankID { return m.bankID }

// GetNodeOfPage delegates to the injected NumaMap, exposed so TaskUnit's
// AssignNewTask can resolve a task's home bank via this module.
func (m *BottomCommModule) GetNodeOfPage(addr core.Address) core.BankID {
	return m.numaMap.GetNodeOfPage(addr)
}

// CheckAvailable returns 0 when the page is usable (remapped here, or
// home and not lent out), -1 when not here and not expected, -2 when a
// borrow is mid-flight. Implements taskunit.AvailabilityChecker.
func (m *BottomCommModule) CheckAvailable(addr core.LbPageAddr) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remapTable.IsBorrowMidState(addr) {
		return taskunit.AvailableMid
	}
	if _, ok := m.remapTable.ChildRemap(addr); ok {
		return taskunit.AvailableHere
	}
	home := m.numaMap.GetNodeOfPage(m.numaMap.GetPageAddressFromLbPageAddress(addr))
	isHome := home == m.bankID
	if isHome && !m.remapTable.IsLend(addr) {
		return taskunit.AvailableHere
	}
	return taskunit.AvailableMissing
}

// NextPacket selects the outgoing queue (sibling if fromLevel==0,
// parent if fromLevel==1) and returns the top packet iff it fits within
// sizeLimit, without popping otherwise.
func (m *BottomCommModule) NextPacket(fromLevel int, fromCommID core.CommID, sizeLimit int) *packet.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()

	var q *packet.Queue
	switch fromLevel {
	case 0:
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
func (m *BottomCommModule) ReceivePackets(src Node, messageSize int, readyCycle uint64) (int, int) {
	return ReceivePackets(m, src, messageSize, readyCycle)
}

// IsEmpty reports whether this bank's current kernel has no work left
// for timestamp ts.
func (m *BottomCommModule) IsEmpty(ts uint64) bool {
	if m.taskUnit == nil {
		return true
	}
	return m.taskUnit.IsFinishedForCurrentTimestamp()
}

// StateLocalTaskQueueSize reports the bank's local ready-queue length.
func (m *BottomCommModule) StateLocalTaskQueueSize() int {
	if m.taskUnit == nil {
		return 0
	}
	return m.taskUnit.QueueLength()
}

// StateToStealSize reports the bank's current toStealSize reservation.
func (m *BottomCommModule) StateToStealSize() int {
	if m.taskUnit == nil {
		return 0
	}
	return m.taskUnit.ToStealSize()
}

// HandleInPacket dispatches by type, per spec.md §4.3.
func (m *BottomCommModule) HandleInPacket(p *packet.Packet) {
	switch p.Type {
	case packet.TypeDataLend:
		m.handleDataLend(p)
	case packet.TypeSub:
		m.handleSub(p)
	case packet.TypeTask:
		m.handleTask(p)
	}
}

// handleDataLend receives the DataLend metadata notice: it marks the
// page mid-transfer so any task dequeued for it defers into
// notReadyLbTasks until the trailing Sub fragments (the actual data)
// finish arriving. A duplicate notice while already mid-state is
// dropped.
func (m *BottomCommModule) handleDataLend(p *packet.Packet) {
	if m.CheckAvailable(p.Addr) == taskunit.AvailableMid {
		return
	}
	m.mu.Lock()
	m.remapTable.SetBorrowMidState(p.Addr)
	m.mu.Unlock()
}

// handleSub accumulates Sub fragments of a DataLend's payload; only the
// last fragment completes the transfer: the page is remapped here and
// every task deferred on it in notReadyLbTasks is moved back onto the
// ready queue.
func (m *BottomCommModule) handleSub(p *packet.Packet) {
	if !p.IsLast() || p.Parent.Type != packet.TypeDataLend {
		return
	}
	home := m.numaMap.GetNodeOfPage(m.numaMap.GetPageAddressFromLbPageAddress(p.Addr))
	m.Base.NewAddrRemap(p.Addr, core.CommID(m.commID), false, home == m.bankID, core.CommID(m.commID))
	m.taskUnit.NewAddrBorrow(p.Addr)
}

func (m *BottomCommModule) handleTask(p *packet.Packet) {
	avail := m.CheckAvailable(p.Addr)
	if avail == taskunit.AvailableMissing {
		m.HandleOutPacket(p)
		return
	}
	m.taskUnit.CurKernel().TaskEnqueueKernel(p.Task, avail)
	if p.ForLb() {
		m.taskUnit.DecrementToSteal(1)
	}
}

// ExecuteLoadBalance forwards command to the current task-unit kernel.
// Per the reference, targetBankID must equal this module's own bank.
func (m *BottomCommModule) ExecuteLoadBalance(command taskunit.LbCommand, targetBankID core.BankID) *taskunit.OutInfo {
	outInfo := m.taskUnit.ExecuteLoadBalanceCommand(command)
	for _, h := range outInfo.Hotness {
		m.Base.NewAddrLend(h.Addr, true)
		m.toLendMap[h.Addr] = struct{}{}
	}
	return outInfo
}

// PushDataLendPackets drains toLendMap into HandleOutPacket, clearing
// the map once done. A no-op when toLendMap is empty.
func (m *BottomCommModule) PushDataLendPackets(timeStamp uint64) {
	for addr := range m.toLendMap {
		m.HandleOutPacket(packet.NewDataLend(addr, timeStamp))
	}
	m.toLendMap = make(map[core.LbPageAddr]struct{})
}

// GatherState computes this bank's executeSpeed moving average input,
// called once per phase by the parent's gatherState walk.
func (m *BottomCommModule) GatherState(tasksExecutedThisPhase int) {
	if m.taskUnit != nil {
		m.taskUnit.RecordExecuted(tasksExecutedThisPhase)
	}
}
