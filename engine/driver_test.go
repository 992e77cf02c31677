package engine

import (
	"context"
	"testing"

	"github.com/systems-nuts/pimbridge/config"
	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/taskunit"
)

type modNuma struct{ numBanks int }

func (n modNuma) GetLbPageAddress(addr core.Address) core.LbPageAddr { return core.LbPageAddr(addr) }
func (n modNuma) GetPageAddressFromLbPageAddress(p core.LbPageAddr) core.Address {
	return core.Address(p)
}
func (n modNuma) GetNodeOfPage(addr core.Address) core.BankID {
	return core.BankID(uint64(addr) % uint64(n.numBanks))
}

func newTestDriver(t *testing.T, cfg *config.Config, numBanks, branching int) *Driver {
	t.Helper()
	mgr, units, err := BuildTree(cfg, numBanks, branching, modNuma{numBanks: numBanks})
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	return NewDriver(mgr, units, cfg, nil)
}

// TestS1SingleBankNoMigration: 4 banks, all tasks hint to pages homed at
// bank 0. Bank 0 executes everything; banks 1-3 finish immediately; the
// barrier advances only after bank 0 drains.
func TestS1SingleBankNoMigration(t *testing.T) {
	cfg := config.Default()
	cfg.EnableLoadBalance = false
	d := newTestDriver(t, cfg, 4, 4)

	for i := 0; i < 5; i++ {
		task := &core.Task{TaskID: core.TaskID(i), TimeStamp: 0, Hint: core.Hint{FirstRound: true, DataPtr: 0}}
		d.SubmitTask(0, task)
	}

	ctx := context.Background()
	if err := d.Phase(ctx); err != nil {
		t.Fatalf("Phase: %v", err)
	}
	if d.TaskManager.AllFinish() {
		t.Fatal("expected bank 0 to still have work, barrier should not advance yet")
	}

	drained := d.DrainBank(0)
	if len(drained) != 5 {
		t.Fatalf("expected 5 tasks drained from bank 0, got %d", len(drained))
	}

	if err := d.Phase(ctx); err != nil {
		t.Fatalf("Phase: %v", err)
	}
	if d.TaskManager.AllowedTimestamp() != 1 {
		t.Fatalf("expected barrier to advance to 1 once bank 0 drained, got %d", d.TaskManager.AllowedTimestamp())
	}
}

// TestS2StealingGeneratesChunkSizedCommand: 2 banks, bank 0 holds 1000
// ready tasks for its own home page, bank 1 holds none. With
// IdleThreshold=10, ChunkSize=50, one gather round should command bank
// 0 to send at least 50 tasks and mark bank 1 as the remap target.
func TestS2StealingGeneratesChunkSizedCommand(t *testing.T) {
	cfg := config.Default()
	cfg.LoadBalancer.Kind = config.LbStealing
	cfg.LoadBalancer.IdleThreshold = 10
	cfg.LoadBalancer.ChunkSize = 50
	cfg.EnableLoadBalance = true

	d := newTestDriver(t, cfg, 2, 2)
	bank0 := d.Manager.Bank(0)
	bank1 := d.Manager.Bank(1)

	for i := 0; i < 1000; i++ {
		task := &core.Task{TaskID: core.TaskID(i), TimeStamp: 0, Hint: core.Hint{DataPtr: 0}}
		bank0.TaskUnit().CurKernel().TaskEnqueueKernel(task, taskunit.AvailableHere)
	}

	if err := d.Phase(context.Background()); err != nil {
		t.Fatalf("Phase: %v", err)
	}

	if bank0.ParentPacketsQueue().EmptyNow() {
		t.Fatal("expected a DataLend packet in transit from bank 0 after the balance command")
	}
	if bank1.TaskUnit().ToStealSize() < 50 {
		t.Fatalf("expected bank 1's toStealSize >= 50, got %d", bank1.TaskUnit().ToStealSize())
	}
}

// TestS5StaleToStealCleanup: bank 1's toStealSize persists across
// CleanStealInterval phases with neither hasBeenVictim nor
// hasReceiveLbTask set; the manager resets it to 0.
func TestS5StaleToStealCleanup(t *testing.T) {
	cfg := config.Default()
	cfg.EnableLoadBalance = false
	cfg.CleanStealInterval = 3

	d := newTestDriver(t, cfg, 2, 2)
	bank1 := d.Manager.Bank(1)
	bank1.TaskUnit().AddToSteal(3)
	bank1.TaskUnit().ResetLbFlags()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := d.Phase(ctx); err != nil {
			t.Fatalf("Phase: %v", err)
		}
	}
	if bank1.TaskUnit().ToStealSize() != 0 {
		t.Fatalf("expected stale toStealSize reset to 0, got %d", bank1.TaskUnit().ToStealSize())
	}
}

// TestS6TimestampBarrierAdvancesWhenAllFinish: with no submitted work,
// every bank is trivially finished and the very first phase should
// advance the barrier from 0 to 1.
func TestS6TimestampBarrierAdvancesWhenAllFinish(t *testing.T) {
	cfg := config.Default()
	d := newTestDriver(t, cfg, 2, 2)

	if err := d.Phase(context.Background()); err != nil {
		t.Fatalf("Phase: %v", err)
	}
	if d.TaskManager.AllowedTimestamp() != 1 {
		t.Fatalf("expected barrier at 1, got %d", d.TaskManager.AllowedTimestamp())
	}
}
