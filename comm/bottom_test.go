package comm

import (
	"testing"

	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/packet"
	"github.com/systems-nuts/pimbridge/remap"
	"github.com/systems-nuts/pimbridge/taskunit"
)

// modNuma is a trivial NumaMap for tests: lbPageAddr N is homed at bank
// N % numBanks, and GetLbPageAddress/GetPageAddressFromLbPageAddress are
// the identity.
type modNuma struct{ numBanks int }

func (n modNuma) GetLbPageAddress(addr core.Address) core.LbPageAddr { return core.LbPageAddr(addr) }
func (n modNuma) GetPageAddressFromLbPageAddress(p core.LbPageAddr) core.Address {
	return core.Address(p)
}
func (n modNuma) GetNodeOfPage(addr core.Address) core.BankID {
	return core.BankID(uint64(addr) % uint64(n.numBanks))
}

func newTestBank(bankID core.BankID, numBanks int) *BottomCommModule {
	numaMap := modNuma{numBanks: numBanks}
	table := remap.New(0)
	bcm := NewBottomCommModule(bankID, core.CommID(bankID), numaMap, table, false)
	tu := taskunit.NewTaskUnit("bank", bankID, bcm)
	bcm.AttachTaskUnit(tu)
	return bcm
}

// TestHandleDataLendThenSubPromotesDeferredTask exercises S4: a Sub
// fragment with isLast=false puts a later-dequeued task for the same
// page into notReadyLbTasks; the last Sub arriving triggers
// newAddrBorrow and the task becomes runnable again.
func TestHandleDataLendThenSubPromotesDeferredTask(t *testing.T) {
	bank1 := newTestBank(1, 2) // page 0 is homed at bank 0, borrowed here
	const page core.LbPageAddr = 0

	dataLend := packet.NewDataLend(page, 1)
	bank1.HandleInPacket(dataLend)
	if !bank1.remapTable.IsBorrowMidState(page) {
		t.Fatal("expected borrow mid-state after DataLend notice")
	}

	task := &core.Task{TaskID: 1, TimeStamp: 1, Hint: core.Hint{DataPtr: page}}
	avail := bank1.CheckAvailable(page)
	if avail != taskunit.AvailableMid {
		t.Fatalf("expected AvailableMid, got %d", avail)
	}
	bank1.taskUnit.CurKernel().TaskEnqueueKernel(task, avail)
	if bank1.taskUnit.IsFinishedForCurrentTimestamp() {
		t.Fatal("expected a deferred task to keep the bank unfinished")
	}

	sub := &packet.Packet{Type: packet.TypeSub, Addr: page, Parent: dataLend, Idx: 0, Total: 1}
	bank1.HandleInPacket(sub)

	if bank1.remapTable.IsBorrowMidState(page) {
		t.Fatal("expected borrow mid-state cleared once the last Sub arrived")
	}
	got := bank1.taskUnit.TaskDequeue()
	if got.TaskID != task.TaskID {
		t.Fatalf("expected the deferred task to be runnable, got %+v", got)
	}
}

// TestHandleTaskMissingForwardsOut exercises the CheckAvailable ==
// AvailableMissing branch of handleTask: a task for a page neither
// remapped here nor home here is forwarded onward via HandleOutPacket
// rather than enqueued.
func TestHandleTaskMissingForwardsOut(t *testing.T) {
	bank1 := newTestBank(1, 2)
	const page core.LbPageAddr = 0 // homed at bank 0, not borrowed here

	task := &core.Task{TaskID: 5, TimeStamp: 1, Hint: core.Hint{DataPtr: page}}
	p := packet.NewTask(task, page, 1, packet.PriorityNormal)
	bank1.HandleInPacket(p)

	if !bank1.taskUnit.IsFinishedForCurrentTimestamp() {
		t.Fatal("expected task to be forwarded, not enqueued locally")
	}
	out := bank1.ParentPacketsQueue()
	if out.EmptyNow() {
		t.Fatal("expected the forwarded task to land in the parent queue")
	}
}

// TestExecuteLoadBalanceMarksLendAndQueuesDataLend exercises
// ExecuteLoadBalance's handoff into toLendMap and PushDataLendPackets.
func TestExecuteLoadBalanceMarksLendAndQueuesDataLend(t *testing.T) {
	bank0 := newTestBank(0, 2)
	const page core.LbPageAddr = 0 // homed here

	for i := 0; i < 5; i++ {
		task := &core.Task{TaskID: core.TaskID(i), TimeStamp: 1, Hint: core.Hint{DataPtr: page}}
		bank0.taskUnit.CurKernel().TaskEnqueueKernel(task, taskunit.AvailableHere)
	}

	out := bank0.ExecuteLoadBalance(taskunit.LbCommand{Count: 3}, bank0.BankID())
	if len(out.Hotness) == 0 {
		t.Fatal("expected at least one DataHotness record")
	}
	if !bank0.remapTable.IsLend(page) {
		t.Fatal("expected addrLend set on the home bank after ExecuteLoadBalance")
	}
	if len(bank0.toLendMap) == 0 {
		t.Fatal("expected toLendMap populated ahead of PushDataLendPackets")
	}

	bank0.PushDataLendPackets(1)
	if len(bank0.toLendMap) != 0 {
		t.Fatal("expected PushDataLendPackets to drain toLendMap")
	}
	if bank0.ParentPacketsQueue().EmptyNow() {
		t.Fatal("expected a DataLend packet queued to the parent")
	}
}

// TestPushDataLendPacketsNoopWhenEmpty covers the boundary behavior:
// an empty toLendMap makes PushDataLendPackets a no-op.
func TestPushDataLendPacketsNoopWhenEmpty(t *testing.T) {
	bank0 := newTestBank(0, 2)
	bank0.PushDataLendPackets(1)
	if !bank0.ParentPacketsQueue().EmptyNow() {
		t.Fatal("expected no packet queued when toLendMap was empty")
	}
}
