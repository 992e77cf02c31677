package taskunit

import (
	"testing"

	"github.com/systems-nuts/pimbridge/core"
)

func TestReserveKernelRoutesHotAddressToReserveRegion(t *testing.T) {
	c := newFakeChecker()
	rk := NewReserveKernel(0, c, 4, 2)

	addr := core.LbPageAddr(7)
	for i := 0; i < 3; i++ {
		task := &core.Task{TaskID: core.TaskID(i), Hint: core.Hint{DataPtr: addr}}
		rk.TaskEnqueueKernel(task, AvailableHere)
	}

	if rk.GetTopItemLength(addr) == 0 {
		t.Fatalf("expected repeated-access address to land in the reserve region")
	}
}

func TestReserveKernelDequeueDrainsMainQueueBeforeReserve(t *testing.T) {
	c := newFakeChecker()
	// A single bucket with one cell forces coldAddr to contend with an
	// already-resident hotAddr and lose (the decrement path), so it
	// never displaces hotAddr and is never treated as hot.
	rk := NewReserveKernel(0, c, 1, 1)

	hotAddr := core.LbPageAddr(1)
	for i := 0; i < 3; i++ {
		rk.TaskEnqueueKernel(&core.Task{TaskID: core.TaskID(i), Hint: core.Hint{DataPtr: hotAddr}}, AvailableHere)
	}
	coldAddr := core.LbPageAddr(2)
	rk.TaskEnqueueKernel(&core.Task{TaskID: 100, Hint: core.Hint{DataPtr: coldAddr}}, AvailableHere)

	first := rk.TaskDequeueKernel()
	if first.Hint.DataPtr != coldAddr {
		t.Fatalf("expected main-queue task dequeued before reserve region, got addr %d", first.Hint.DataPtr)
	}
}

func TestReserveKernelExecuteLoadBalanceEvacuatesEntireBucket(t *testing.T) {
	c := newFakeChecker()
	rk := NewReserveKernel(0, c, 4, 2)
	hotAddr := core.LbPageAddr(3)
	for i := 0; i < 4; i++ {
		rk.TaskEnqueueKernel(&core.Task{TaskID: core.TaskID(i), Hint: core.Hint{DataPtr: hotAddr}}, AvailableHere)
	}

	outInfo := &OutInfo{}
	victim := rk.ExecuteLoadBalanceCommand(LbCommand{Count: 4}, outInfo)
	if !victim {
		t.Fatalf("expected hasBeenVictim true")
	}
	if rk.GetTopItemLength(hotAddr) != 0 {
		t.Fatalf("expected reserve bucket fully evacuated")
	}
}
