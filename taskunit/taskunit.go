package taskunit

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/systems-nuts/pimbridge/core"
)

// HomeRouter resolves a task's placement at its first round (home bank)
// and lets a TaskUnit forward a task it cannot host locally.
type HomeRouter interface {
	AvailabilityChecker
	GetNodeOfPage(addr core.Address) core.BankID
}

// TaskUnit is the per-bank dual-kernel task queue: curTaskUnit and
// nxtTaskUnit are swapped at every timestamp barrier, so a task produced
// for T+1 while the bank runs T lands safely in the next kernel.
type TaskUnit struct {
	Name   string
	BankID core.BankID

	mu sync.Mutex

	kernel1, kernel2     kernelLike
	curTaskUnit, nxtTaskUnit *kernelLike
	useQ1                bool

	minTimeStamp uint64
	isFinished   bool

	hasBeenVictim     atomic.Bool
	hasReceiveLbTask  atomic.Bool
	toStealSize       atomic.Int64

	sEnqueueTasks atomic.Int64
	sDequeueTasks atomic.Int64
	sFinishTasks  atomic.Int64

	executeSpeed *movingAverage
}

// kernelLike is satisfied by both *Kernel and *ReserveKernel.
type kernelLike interface {
	IsEmpty() bool
	TaskEnqueueKernel(task *core.Task, available int)
	TaskDequeueKernel() *core.Task
	ExecuteLoadBalanceCommand(cmd LbCommand, outInfo *OutInfo) bool
	NewAddrBorrowKernel(addr core.LbPageAddr)
	NewAddrReturnKernel(addr core.LbPageAddr)
	SetCurTs(ts uint64)
	SetCommModule(comm AvailabilityChecker)
	ReadyLength() int
	NotReadyCount() int
}

// NewTaskUnit builds a TaskUnit with two plain Kernels.
func NewTaskUnit(name string, bankID core.BankID, comm AvailabilityChecker) *TaskUnit {
	k1 := NewKernel(bankID, comm)
	k2 := NewKernel(bankID, comm)
	return newTaskUnit(name, bankID, k1, k2)
}

// NewReserveTaskUnit builds a TaskUnit with two ReserveKernels sharing
// the given sketch dimensions.
func NewReserveTaskUnit(name string, bankID core.BankID, comm AvailabilityChecker, sketchBuckets, sketchBucketSize int) *TaskUnit {
	k1 := NewReserveKernel(bankID, comm, sketchBuckets, sketchBucketSize)
	k2 := NewReserveKernel(bankID, comm, sketchBuckets, sketchBucketSize)
	return newTaskUnit(name, bankID, k1, k2)
}

func newTaskUnit(name string, bankID core.BankID, k1, k2 kernelLike) *TaskUnit {
	tu := &TaskUnit{
		Name:         name,
		BankID:       bankID,
		kernel1:      k1,
		kernel2:      k2,
		useQ1:        true,
		executeSpeed: newMovingAverage(8),
	}
	tu.curTaskUnit = &tu.kernel1
	tu.nxtTaskUnit = &tu.kernel2
	return tu
}

// SetCommModule rewires both kernels' availability checker, used once
// the owning BottomCommModule exists (it is constructed after the
// TaskUnit it wraps).
func (tu *TaskUnit) SetCommModule(comm AvailabilityChecker) {
	tu.mu.Lock()
	defer tu.mu.Unlock()
	tu.kernel1.SetCommModule(comm)
	tu.kernel2.SetCommModule(comm)
}

// CurKernel returns the kernel presently serving the current timestamp.
func (tu *TaskUnit) CurKernel() kernelLike {
	tu.mu.Lock()
	defer tu.mu.Unlock()
	return *tu.curTaskUnit
}

// AssignNewTask routes task to its home bank on first round, or to
// wherever the page currently lives on a subsequent round, honoring an
// explicit Hint.Location pin ahead of either. router resolves the home
// bank; self is this bank's own id so AssignNewTask can tell whether the
// task belongs here or must be forwarded.
func (tu *TaskUnit) AssignNewTask(task *core.Task, self core.BankID, router HomeRouter, forward func(core.BankID, *core.Task)) {
	addr := task.Hint.DataPtr

	if task.Hint.Location != core.NoExplicitLocation {
		target := core.BankID(task.Hint.Location)
		if target == self {
			tu.enqueueLocally(task)
		} else {
			forward(target, task)
		}
		return
	}

	if task.Hint.FirstRound {
		home := router.GetNodeOfPage(core.Address(addr))
		if home == self {
			tu.enqueueLocally(task)
		} else {
			forward(home, task)
		}
		return
	}

	available := router.CheckAvailable(addr)
	if available == AvailableMissing {
		forward(self, task) // caller resolves via handleOutPacket; see comm package
		return
	}
	tu.enqueueLocally(task)
}

func (tu *TaskUnit) enqueueLocally(task *core.Task) {
	tu.mu.Lock()
	defer tu.mu.Unlock()
	tu.sEnqueueTasks.Inc()
	(*tu.curTaskUnit).TaskEnqueueKernel(task, AvailableHere)
}

// TaskDequeue pops the next runnable task from the current kernel.
func (tu *TaskUnit) TaskDequeue() *core.Task {
	tu.mu.Lock()
	defer tu.mu.Unlock()
	t := (*tu.curTaskUnit).TaskDequeueKernel()
	if t != EndTask {
		tu.sDequeueTasks.Inc()
	}
	return t
}

// NewAddrBorrow notifies both kernels that addr has landed, per the
// reference's delegation to both curTaskUnit and nxtTaskUnit.
func (tu *TaskUnit) NewAddrBorrow(addr core.LbPageAddr) {
	tu.mu.Lock()
	defer tu.mu.Unlock()
	tu.kernel1.NewAddrBorrowKernel(addr)
	tu.kernel2.NewAddrBorrowKernel(addr)
}

// NewAddrReturn notifies both kernels that addr has returned home.
func (tu *TaskUnit) NewAddrReturn(addr core.LbPageAddr) {
	tu.mu.Lock()
	defer tu.mu.Unlock()
	tu.kernel1.NewAddrReturnKernel(addr)
	tu.kernel2.NewAddrReturnKernel(addr)
}

// ExecuteLoadBalanceCommand runs cmd against the current kernel.
func (tu *TaskUnit) ExecuteLoadBalanceCommand(cmd LbCommand) *OutInfo {
	tu.mu.Lock()
	defer tu.mu.Unlock()
	outInfo := &OutInfo{}
	victim := (*tu.curTaskUnit).ExecuteLoadBalanceCommand(cmd, outInfo)
	if victim {
		tu.hasBeenVictim.Store(true)
	}
	return outInfo
}

// AddToSteal increments the toStealSize reservation by n, called by the
// balancer's assignLbTarget when this bank becomes a migration target.
func (tu *TaskUnit) AddToSteal(n int) {
	tu.toStealSize.Add(int64(n))
	tu.hasReceiveLbTask.Store(true)
}

// ToStealSize reports the current reservation.
func (tu *TaskUnit) ToStealSize() int {
	return int(tu.toStealSize.Load())
}

// ClearToSteal resets the reservation, used by CommModuleManager when
// it is found stale.
func (tu *TaskUnit) ClearToSteal() {
	tu.toStealSize.Store(0)
}

// DecrementToSteal reduces the reservation by n (saturating at zero)
// without touching hasReceiveLbTask, used when a load-balance-tagged
// task actually lands.
func (tu *TaskUnit) DecrementToSteal(n int) {
	if tu.toStealSize.Sub(int64(n)) < 0 {
		tu.toStealSize.Store(0)
	}
}

// HasBeenVictim, HasReceiveLbTask, and their reset are used by
// CommModuleManager.clearStaleToSteal.
func (tu *TaskUnit) HasBeenVictim() bool    { return tu.hasBeenVictim.Load() }
func (tu *TaskUnit) HasReceiveLbTask() bool { return tu.hasReceiveLbTask.Load() }
func (tu *TaskUnit) ResetLbFlags() {
	tu.hasBeenVictim.Store(false)
	tu.hasReceiveLbTask.Store(false)
}

// IsFinishedForCurrentTimestamp reports whether the current kernel has
// no ready and no not-ready tasks left.
func (tu *TaskUnit) IsFinishedForCurrentTimestamp() bool {
	tu.mu.Lock()
	defer tu.mu.Unlock()
	return (*tu.curTaskUnit).IsEmpty()
}

// ReadyLength and QueueLength feed CommModule.gatherState's per-bank
// counters (spec.md §3's bank-level counters).
func (tu *TaskUnit) ReadyLength() int {
	tu.mu.Lock()
	defer tu.mu.Unlock()
	return (*tu.curTaskUnit).ReadyLength()
}

func (tu *TaskUnit) QueueLength() int {
	tu.mu.Lock()
	k := *tu.curTaskUnit
	tu.mu.Unlock()
	return k.ReadyLength() + k.NotReadyCount() + tu.ToStealSize()
}

// RecordExecuted feeds the moving average behind executeSpeedPerPhase.
func (tu *TaskUnit) RecordExecuted(n int) {
	tu.executeSpeed.Add(float64(n))
}

// ExecuteSpeedPerPhase returns the moving average of tasks executed per
// phase on this bank (Open Question #2's resolution: a fixed 8-phase
// simple moving average).
func (tu *TaskUnit) ExecuteSpeedPerPhase() float64 {
	return tu.executeSpeed.Value()
}

// SwapKernels exchanges curTaskUnit and nxtTaskUnit at the timestamp
// barrier and updates both kernels' notion of curTs.
func (tu *TaskUnit) SwapKernels(newTs uint64) {
	tu.mu.Lock()
	defer tu.mu.Unlock()
	tu.curTaskUnit, tu.nxtTaskUnit = tu.nxtTaskUnit, tu.curTaskUnit
	tu.useQ1 = !tu.useQ1
	(*tu.curTaskUnit).SetCurTs(newTs)
}
