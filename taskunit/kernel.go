// Package taskunit implements the per-bank TaskUnit, its dual-queue
// kernel (current/next timestamp), the Reserve variant backed by a
// MemSketch, and the global TaskUnitManager barrier. Grounded on the
// reference task_unit.h/.cpp, pim_bridge_task_unit.h/.cpp, and
// reserve_lb_task_unit.h/.cpp.
package taskunit

import (
	"container/heap"

	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/internal/errs"
	"github.com/systems-nuts/pimbridge/packet"
)

// AvailabilityChecker is the narrow view a kernel needs of its owning
// BottomCommModule, avoiding an import of package comm.
type AvailabilityChecker interface {
	CheckAvailable(addr core.LbPageAddr) int
	HandleOutPacket(p *packet.Packet)
}

// Availability codes returned by CheckAvailable, matching spec.md §4.3.
const (
	AvailableHere    = 0
	AvailableMissing = -1
	AvailableMid     = -2
)

// EndTask is the sentinel task signaling an empty queue to
// taskDequeueKernel callers.
var EndTask = &core.Task{IsEndTask: true}

type taskHeap []*core.Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].ReadyCycle != h[j].ReadyCycle {
		return h[i].ReadyCycle < h[j].ReadyCycle
	}
	return h[i].TaskID < h[j].TaskID
}
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)         { *h = append(*h, x.(*core.Task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Kernel is PimBridgeTaskUnitKernel: the priority task queue plus the
// not-ready bookkeeping for one timestamp's worth of work on one bank.
type Kernel struct {
	bankID core.BankID
	comm   AvailabilityChecker

	queue taskHeap

	notReadyLbTasks    map[core.LbPageAddr][]*core.Task
	notReadyTaskNumber int

	curTs uint64
}

// NewKernel allocates an empty kernel bound to comm, the owning bank's
// availability checker.
func NewKernel(bankID core.BankID, comm AvailabilityChecker) *Kernel {
	k := &Kernel{
		bankID:          bankID,
		comm:            comm,
		notReadyLbTasks: make(map[core.LbPageAddr]([]*core.Task)),
	}
	heap.Init(&k.queue)
	return k
}

// SetCommModule rewires the kernel's availability checker, used when a
// TaskUnit's two kernels are attached to their owning BottomCommModule
// after construction.
func (k *Kernel) SetCommModule(comm AvailabilityChecker) {
	k.comm = comm
}

// IsEmpty reports whether both the ready queue and the not-ready map
// are empty, i.e. the bank is finished for the current timestamp.
func (k *Kernel) IsEmpty() bool {
	return len(k.queue) == 0 && k.notReadyTaskNumber == 0
}

// TaskEnqueueKernel enqueues task according to its availability code:
// AvailableMid defers it into notReadyLbTasks; anything else goes
// straight onto the ready priority queue.
func (k *Kernel) TaskEnqueueKernel(task *core.Task, available int) {
	if available == AvailableMid {
		addr := task.Hint.DataPtr
		k.notReadyLbTasks[addr] = append(k.notReadyLbTasks[addr], task)
		k.notReadyTaskNumber++
		return
	}
	heap.Push(&k.queue, task)
}

// TaskDequeueKernel pops the next runnable task, bouncing stale or
// mid-transfer entries out of the way first. Returns EndTask when the
// queue is empty.
func (k *Kernel) TaskDequeueKernel() *core.Task {
	for {
		if len(k.queue) == 0 {
			return EndTask
		}
		t := heap.Pop(&k.queue).(*core.Task)
		if t.TimeStamp != k.curTs {
			panic(errs.NewInvariantViolation("taskunit: dequeued task %d at timestamp %d, kernel at %d", t.TaskID, t.TimeStamp, k.curTs))
		}
		addr := t.Hint.DataPtr
		switch k.comm.CheckAvailable(addr) {
		case AvailableMissing:
			k.comm.HandleOutPacket(packet.NewTask(t, addr, t.TimeStamp, packet.PriorityNormal))
			continue
		case AvailableMid:
			k.notReadyLbTasks[addr] = append(k.notReadyLbTasks[addr], t)
			k.notReadyTaskNumber++
			continue
		default:
			return t
		}
	}
}

// LbCommand is a load-balance instruction: send up to Count tasks away.
type LbCommand struct {
	Count int
}

// OutInfo collects the DataHotness records produced by one
// ExecuteLoadBalanceCommand call, for the balancer's assignLbTarget.
type OutInfo struct {
	Hotness []core.DataHotness
}

// ExecuteLoadBalanceCommand dequeues up to cmd.Count tasks from the top
// of the ready queue, re-checking availability for each: mid-transfer
// tasks are deferred, missing-page tasks are forwarded as ordinary
// traffic, and locally-available tasks are forwarded as load-balance
// traffic and tallied per address into outInfo. It marks hasBeenVictim
// via the returned bool.
func (k *Kernel) ExecuteLoadBalanceCommand(cmd LbCommand, outInfo *OutInfo) (hasBeenVictim bool) {
	counts := make(map[core.LbPageAddr]int)
	for i := 0; i < cmd.Count; i++ {
		if len(k.queue) == 0 {
			break
		}
		t := heap.Pop(&k.queue).(*core.Task)
		addr := t.Hint.DataPtr
		switch k.comm.CheckAvailable(addr) {
		case AvailableMid:
			k.notReadyLbTasks[addr] = append(k.notReadyLbTasks[addr], t)
			k.notReadyTaskNumber++
		case AvailableMissing:
			k.comm.HandleOutPacket(packet.NewTask(t, addr, t.TimeStamp, packet.PriorityNormal))
		default:
			k.comm.HandleOutPacket(packet.NewTask(t, addr, t.TimeStamp, packet.PriorityLoadBalance))
			counts[addr]++
		}
	}
	for addr, cnt := range counts {
		outInfo.Hotness = append(outInfo.Hotness, core.DataHotness{Addr: addr, SrcBank: k.bankID, Count: cnt})
		hasBeenVictim = true
	}
	return hasBeenVictim
}

// NewAddrBorrowKernel re-injects every task deferred on addr back onto
// the ready queue, called once the page has actually landed.
func (k *Kernel) NewAddrBorrowKernel(addr core.LbPageAddr) {
	deferred := k.notReadyLbTasks[addr]
	delete(k.notReadyLbTasks, addr)
	k.notReadyTaskNumber -= len(deferred)
	for _, t := range deferred {
		k.TaskEnqueueKernel(t, AvailableHere)
	}
}

// NewAddrReturnKernel forwards every task deferred on addr as ordinary
// traffic, called when the page is returned home while tasks were
// waiting on it.
func (k *Kernel) NewAddrReturnKernel(addr core.LbPageAddr) {
	deferred := k.notReadyLbTasks[addr]
	delete(k.notReadyLbTasks, addr)
	k.notReadyTaskNumber -= len(deferred)
	for _, t := range deferred {
		k.comm.HandleOutPacket(packet.NewTask(t, addr, t.TimeStamp, packet.PriorityNormal))
	}
}

// SetCurTs updates the kernel's notion of the current timestamp,
// invoked by TaskUnit on barrier swap.
func (k *Kernel) SetCurTs(ts uint64) {
	k.curTs = ts
}

// ReadyLength reports the number of immediately-runnable tasks, used
// for gatherState's childQueueReadyLength.
func (k *Kernel) ReadyLength() int {
	return len(k.queue)
}

// NotReadyCount reports the number of tasks deferred on mid-transfer
// pages.
func (k *Kernel) NotReadyCount() int {
	return k.notReadyTaskNumber
}
