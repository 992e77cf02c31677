package taskunit

import (
	"testing"

	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/packet"
)

// fakeChecker is a minimal AvailabilityChecker for kernel-level tests.
type fakeChecker struct {
	available map[core.LbPageAddr]int
	outbound  []*packet.Packet
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{available: make(map[core.LbPageAddr]int)}
}

func (f *fakeChecker) CheckAvailable(addr core.LbPageAddr) int {
	if v, ok := f.available[addr]; ok {
		return v
	}
	return AvailableHere
}

func (f *fakeChecker) HandleOutPacket(p *packet.Packet) {
	f.outbound = append(f.outbound, p)
}

func TestTaskEnqueueKernelDefersMidStateTasks(t *testing.T) {
	c := newFakeChecker()
	k := NewKernel(0, c)
	task := &core.Task{TaskID: 1, TimeStamp: 0, Hint: core.Hint{DataPtr: 5}}
	k.TaskEnqueueKernel(task, AvailableMid)

	if k.IsEmpty() {
		t.Fatalf("expected kernel non-empty with a deferred task")
	}
	if k.NotReadyCount() != 1 {
		t.Fatalf("expected 1 not-ready task, got %d", k.NotReadyCount())
	}
	if k.ReadyLength() != 0 {
		t.Fatalf("expected 0 ready tasks, got %d", k.ReadyLength())
	}
}

func TestTaskDequeueKernelBouncesMissingPage(t *testing.T) {
	c := newFakeChecker()
	k := NewKernel(0, c)
	task := &core.Task{TaskID: 1, TimeStamp: 0, Hint: core.Hint{DataPtr: 5}}
	k.TaskEnqueueKernel(task, AvailableHere)

	c.available[5] = AvailableMissing
	got := k.TaskDequeueKernel()
	if got != EndTask {
		t.Fatalf("expected EndTask once the only task bounces out, got %+v", got)
	}
	if len(c.outbound) != 1 {
		t.Fatalf("expected 1 bounced packet, got %d", len(c.outbound))
	}
	if c.outbound[0].Priority != packet.PriorityNormal {
		t.Fatalf("expected bounced packet at normal priority")
	}
}

func TestTaskDequeueKernelPanicsOnTimestampMismatch(t *testing.T) {
	c := newFakeChecker()
	k := NewKernel(0, c)
	k.SetCurTs(5)
	task := &core.Task{TaskID: 1, TimeStamp: 1, Hint: core.Hint{DataPtr: 5}}
	k.TaskEnqueueKernel(task, AvailableHere)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic on timestamp mismatch")
		}
	}()
	k.TaskDequeueKernel()
}

func TestNewAddrBorrowKernelReinjectsDeferredTasks(t *testing.T) {
	c := newFakeChecker()
	k := NewKernel(0, c)
	task := &core.Task{TaskID: 1, TimeStamp: 0, Hint: core.Hint{DataPtr: 5}}
	k.TaskEnqueueKernel(task, AvailableMid)

	k.NewAddrBorrowKernel(5)
	if k.NotReadyCount() != 0 {
		t.Fatalf("expected not-ready count cleared, got %d", k.NotReadyCount())
	}
	if k.ReadyLength() != 1 {
		t.Fatalf("expected task reinjected into ready queue, got %d", k.ReadyLength())
	}
}

func TestExecuteLoadBalanceCommandTagsLoadBalancePriority(t *testing.T) {
	c := newFakeChecker()
	k := NewKernel(0, c)
	for i := 0; i < 5; i++ {
		task := &core.Task{TaskID: core.TaskID(i), TimeStamp: 0, Hint: core.Hint{DataPtr: core.LbPageAddr(i)}}
		k.TaskEnqueueKernel(task, AvailableHere)
	}
	outInfo := &OutInfo{}
	victim := k.ExecuteLoadBalanceCommand(LbCommand{Count: 3}, outInfo)
	if !victim {
		t.Fatalf("expected hasBeenVictim true")
	}
	if len(c.outbound) != 3 {
		t.Fatalf("expected 3 forwarded packets, got %d", len(c.outbound))
	}
	for _, p := range c.outbound {
		if p.Priority != packet.PriorityLoadBalance {
			t.Fatalf("expected load-balance priority on forwarded packet")
		}
	}
	if len(outInfo.Hotness) != 3 {
		t.Fatalf("expected 3 distinct-address hotness records, got %d", len(outInfo.Hotness))
	}
}
