package taskunit

import (
	"container/heap"

	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/packet"
	"github.com/systems-nuts/pimbridge/sketch"
)

func taskPacketForLb(t *core.Task, addr core.LbPageAddr) *packet.Packet {
	return packet.NewTask(t, addr, t.TimeStamp, packet.PriorityLoadBalance)
}

// ReserveKernel is ReserveLbPimBridgeTaskUnitKernel: a Kernel augmented
// with a MemSketch-driven reserve region. Hot addresses route to a
// dedicated per-address queue that the main ready queue drains before,
// and which a load-balance command evacuates wholesale per hot address.
type ReserveKernel struct {
	*Kernel

	Sketch *sketch.MemSketch

	reserveRegion map[core.LbPageAddr]*taskHeap
}

// NewReserveKernel allocates a ReserveKernel with the given sketch
// dimensions.
func NewReserveKernel(bankID core.BankID, comm AvailabilityChecker, sketchBuckets, sketchBucketSize int) *ReserveKernel {
	return &ReserveKernel{
		Kernel:        NewKernel(bankID, comm),
		Sketch:        sketch.New(sketchBuckets, sketchBucketSize),
		reserveRegion: make(map[core.LbPageAddr]*taskHeap),
	}
}

// TaskEnqueueKernel overrides Kernel's: hot addresses (per the sketch)
// route to the reserve region instead of the main queue, mirroring the
// reference's shouldReserve gate. Mid-transfer tasks still defer exactly
// as the base Kernel does.
func (rk *ReserveKernel) TaskEnqueueKernel(task *core.Task, available int) {
	addr := task.Hint.DataPtr
	rk.Sketch.Enter(addr)
	if available != AvailableMid && rk.Sketch.IsHot(addr) {
		rk.reservedTaskEnqueue(addr, task)
		return
	}
	rk.Kernel.TaskEnqueueKernel(task, available)
}

func (rk *ReserveKernel) reservedTaskEnqueue(addr core.LbPageAddr, t *core.Task) {
	h, ok := rk.reserveRegion[addr]
	if !ok {
		nh := &taskHeap{}
		heap.Init(nh)
		rk.reserveRegion[addr] = nh
		h = nh
	}
	heap.Push(h, t)
}

func (rk *ReserveKernel) reservedTaskDequeue(addr core.LbPageAddr) *core.Task {
	h, ok := rk.reserveRegion[addr]
	if !ok || h.Len() == 0 {
		return nil
	}
	t := heap.Pop(h).(*core.Task)
	if h.Len() == 0 {
		delete(rk.reserveRegion, addr)
	}
	return t
}

// TaskDequeueKernel drains the main queue first, then the reserve
// region (any bucket, oldest-inserted-address-first by map iteration is
// unspecified in Go; callers needing a specific address pop it via
// GetTopItemLength/direct access instead).
func (rk *ReserveKernel) TaskDequeueKernel() *core.Task {
	if rk.Kernel.ReadyLength() > 0 {
		return rk.Kernel.TaskDequeueKernel()
	}
	for addr := range rk.reserveRegion {
		if t := rk.reservedTaskDequeue(addr); t != nil {
			return t
		}
	}
	return EndTask
}

// IsEmpty extends Kernel.IsEmpty with the reserve region.
func (rk *ReserveKernel) IsEmpty() bool {
	return rk.Kernel.IsEmpty() && len(rk.reserveRegion) == 0
}

// GetTopItemLength returns the queue length for the reserve bucket
// holding addr, 0 if absent.
func (rk *ReserveKernel) GetTopItemLength(addr core.LbPageAddr) int {
	if h, ok := rk.reserveRegion[addr]; ok {
		return h.Len()
	}
	return 0
}

// TopHotItems implements lb.HotnessSource without consuming the
// underlying sketch cells.
func (rk *ReserveKernel) TopHotItems(n int) []core.DataHotness {
	snap := rk.Sketch.PrepareForAccess()
	return snap.GetHotItemInfo(nil, n)
}

// ExecuteLoadBalanceCommand overrides Kernel's for the reserve variant:
// fetch hot items from the sketch in descending count order and
// evacuate the entire reserve bucket for each, forwarding every task
// therein as load-balance traffic, before falling back to the base
// Kernel behavior for any remaining command count.
func (rk *ReserveKernel) ExecuteLoadBalanceCommand(cmd LbCommand, outInfo *OutInfo) (hasBeenVictim bool) {
	remaining := cmd.Count
	snap := rk.Sketch.PrepareForAccess()
	for remaining > 0 {
		item, ok := snap.FetchHotItem()
		if !ok || item.Count == 0 {
			break
		}
		h, exists := rk.reserveRegion[item.Addr]
		if !exists {
			continue
		}
		n := h.Len()
		for h.Len() > 0 {
			t := heap.Pop(h).(*core.Task)
			rk.comm.HandleOutPacket(taskPacketForLb(t, item.Addr))
		}
		delete(rk.reserveRegion, item.Addr)
		outInfo.Hotness = append(outInfo.Hotness, core.DataHotness{Addr: item.Addr, SrcBank: rk.bankID, Count: n})
		hasBeenVictim = true
		remaining -= n
	}
	if remaining > 0 {
		baseVictim := rk.Kernel.ExecuteLoadBalanceCommand(LbCommand{Count: remaining}, outInfo)
		hasBeenVictim = hasBeenVictim || baseVictim
	}
	return hasBeenVictim
}
