package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/systems-nuts/pimbridge/comm"
	"github.com/systems-nuts/pimbridge/config"
	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/internal/metrics"
	"github.com/systems-nuts/pimbridge/internal/nlog"
	"github.com/systems-nuts/pimbridge/packet"
	"github.com/systems-nuts/pimbridge/taskunit"
)

// Driver is the phase driver: it walks the tree bottom-up each cycle,
// running every inner CommModule's Communicate, fanning out across
// siblings at the same level with errgroup since their gather/scatter
// touch disjoint child ranges and therefore disjoint locks. It then
// checks the barrier and advances the timestamp once every bank has
// reported finished.
type Driver struct {
	Manager     *comm.CommModuleManager
	TaskManager *taskunit.Manager
	Units       []*taskunit.TaskUnit
	cfg         *config.Config
	metrics     *metrics.Registry

	cycle      uint64
	phaseCount int
}

// NewDriver wires a Driver over an already-built tree.
func NewDriver(mgr *comm.CommModuleManager, units []*taskunit.TaskUnit, cfg *config.Config, reg *metrics.Registry) *Driver {
	return &Driver{
		Manager:     mgr,
		TaskManager: taskunit.NewManager(units),
		Units:       units,
		cfg:         cfg,
		metrics:     reg,
	}
}

// Phase runs one bottom-up walk of the tree: every level's CommModules
// communicate concurrently (siblings only), then bank completion is
// checked and the barrier is advanced if every bank has finished.
func (d *Driver) Phase(ctx context.Context) error {
	d.cycle++
	d.phaseCount++

	for _, level := range d.Manager.Levels {
		g, _ := errgroup.WithContext(ctx)
		for _, m := range level {
			m := m
			g.Go(func() error {
				m.Communicate(d.cycle)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	if d.cfg.CleanStealInterval > 0 && d.phaseCount%d.cfg.CleanStealInterval == 0 {
		d.Manager.ClearStaleToSteal()
	}

	d.checkFinish()
	return nil
}

// checkFinish reports every freshly-drained bank to the barrier manager
// and advances the timestamp once all have reported.
func (d *Driver) checkFinish() {
	for i, bank := range d.Manager.Banks() {
		if bank.IsEmpty(d.TaskManager.AllowedTimestamp()) {
			d.TaskManager.ReportFinish(i)
		}
	}
	if d.TaskManager.AllFinish() {
		d.TaskManager.FinishTimeStamp()
		if d.metrics != nil {
			d.metrics.LoadBalanceRuns.Inc()
		}
		nlog.Infof("engine: all banks finished, barrier advanced")
	}
}

// SubmitTask routes task into the tree from originBank, honoring an
// explicit Hint.Location pin, first-round home routing, or
// subsequent-round current-residence routing, per
// taskunit.TaskUnit.AssignNewTask.
func (d *Driver) SubmitTask(originBank core.BankID, task *core.Task) {
	bank := d.Manager.Bank(originBank)
	if bank == nil {
		return
	}
	forward := func(_ core.BankID, t *core.Task) {
		bank.HandleOutPacket(packet.NewTask(t, t.Hint.DataPtr, t.TimeStamp, packet.PriorityNormal))
	}
	bank.TaskUnit().AssignNewTask(task, originBank, bank, forward)
	d.TaskManager.ReportRestart(int(originBank))
}

// DrainBank pops every immediately-runnable task off bank's current
// kernel, stopping at the EndTask sentinel. Standing in for the
// simulator's actual task execution callback, which the core does not
// own (core.Task.TaskFn is opaque).
func (d *Driver) DrainBank(bankIdx core.BankID) []*core.Task {
	bank := d.Manager.Bank(bankIdx)
	if bank == nil {
		return nil
	}
	var out []*core.Task
	for {
		t := bank.TaskUnit().TaskDequeue()
		if t == taskunit.EndTask {
			break
		}
		out = append(out, t)
	}
	if len(out) > 0 {
		bank.GatherState(len(out))
	}
	return out
}

// Cycle returns the current phase's cycle counter, used for ReadyCycle
// stamping on submitted tasks.
func (d *Driver) Cycle() uint64 { return d.cycle }
