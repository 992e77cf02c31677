package taskunit

import (
	"testing"

	"github.com/systems-nuts/pimbridge/core"
)

type fakeRouter struct {
	*fakeChecker
	home map[core.Address]core.BankID
}

func (r *fakeRouter) GetNodeOfPage(addr core.Address) core.BankID {
	return r.home[addr]
}

func TestAssignNewTaskRoutesFirstRoundHome(t *testing.T) {
	router := &fakeRouter{fakeChecker: newFakeChecker(), home: map[core.Address]core.BankID{100: 2}}
	tu := NewTaskUnit("bank2", 2, router)

	var forwardedTo core.BankID
	forwarded := false
	task := &core.Task{TaskID: 1, Hint: core.Hint{DataPtr: 100, FirstRound: true, Location: core.NoExplicitLocation}}

	tu.AssignNewTask(task, 2, router, func(bank core.BankID, tk *core.Task) {
		forwarded = true
		forwardedTo = bank
	})

	if forwarded {
		t.Fatalf("expected task to be enqueued locally, not forwarded to %d", forwardedTo)
	}
	if tu.ReadyLength() != 1 {
		t.Fatalf("expected 1 ready task after local enqueue, got %d", tu.ReadyLength())
	}
}

func TestAssignNewTaskForwardsFirstRoundAwayFromHome(t *testing.T) {
	router := &fakeRouter{fakeChecker: newFakeChecker(), home: map[core.Address]core.BankID{100: 3}}
	tu := NewTaskUnit("bank2", 2, router)

	var forwardedTo core.BankID
	forwarded := false
	task := &core.Task{TaskID: 1, Hint: core.Hint{DataPtr: 100, FirstRound: true, Location: core.NoExplicitLocation}}

	tu.AssignNewTask(task, 2, router, func(bank core.BankID, tk *core.Task) {
		forwarded = true
		forwardedTo = bank
	})

	if !forwarded || forwardedTo != 3 {
		t.Fatalf("expected forward to home bank 3, forwarded=%v to=%d", forwarded, forwardedTo)
	}
}

func TestAssignNewTaskHonorsExplicitLocationPin(t *testing.T) {
	router := &fakeRouter{fakeChecker: newFakeChecker(), home: map[core.Address]core.BankID{100: 9}}
	tu := NewTaskUnit("bank5", 5, router)

	forwarded := false
	task := &core.Task{TaskID: 1, Hint: core.Hint{DataPtr: 100, FirstRound: true, Location: 5}}

	tu.AssignNewTask(task, 5, router, func(bank core.BankID, tk *core.Task) {
		forwarded = true
	})

	if forwarded {
		t.Fatalf("expected explicit pin to bank 5 to enqueue locally despite home bank 9")
	}
	if tu.ReadyLength() != 1 {
		t.Fatalf("expected 1 ready task, got %d", tu.ReadyLength())
	}
}

func TestSwapKernelsExchangesCurrentAndNext(t *testing.T) {
	c := newFakeChecker()
	tu := NewTaskUnit("bank0", 0, c)
	before := tu.CurKernel()

	tu.SwapKernels(1)
	after := tu.CurKernel()

	if before == after {
		t.Fatalf("expected kernel swap to change the current kernel")
	}
}

func TestAddToStealAndClearToSteal(t *testing.T) {
	c := newFakeChecker()
	tu := NewTaskUnit("bank0", 0, c)
	tu.AddToSteal(3)
	if tu.ToStealSize() != 3 {
		t.Fatalf("expected toStealSize 3, got %d", tu.ToStealSize())
	}
	if !tu.HasReceiveLbTask() {
		t.Fatalf("expected hasReceiveLbTask true after AddToSteal")
	}
	tu.ClearToSteal()
	if tu.ToStealSize() != 0 {
		t.Fatalf("expected toStealSize reset to 0")
	}
}
