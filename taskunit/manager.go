package taskunit

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/systems-nuts/pimbridge/internal/debug"
	"github.com/systems-nuts/pimbridge/internal/nlog"
)

// Manager is TaskUnitManager: tracks the global allowedTimestamp barrier
// and the count of banks that have reported finished for it. Grounded
// on the reference task_unit_manager.cpp's reportFinish/reportRestart/
// allFinish/finishTimeStamp.
type Manager struct {
	mu sync.Mutex

	taskUnits []*TaskUnit

	allowedTimestamp atomic.Uint64
	finishUnitNumber int
	finished         map[int]bool
}

// NewManager allocates a Manager over the given task units, indexed by
// their position (bank id).
func NewManager(units []*TaskUnit) *Manager {
	return &Manager{
		taskUnits: units,
		finished:  make(map[int]bool, len(units)),
	}
}

// AllowedTimestamp returns the current barrier timestamp.
func (m *Manager) AllowedTimestamp() uint64 {
	return m.allowedTimestamp.Load()
}

// ReportFinish records that unit idx has drained its current kernel. A
// unit that reports twice without an intervening ReportRestart is an
// invariant violation caught in debug builds.
func (m *Manager) ReportFinish(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished[idx] {
		debug.Assert(false, "taskunit: duplicate ReportFinish for bank ", idx)
		return
	}
	m.finished[idx] = true
	m.finishUnitNumber++
}

// ReportRestart reverts a prior ReportFinish, called when a task is
// re-enqueued onto a unit that had already reported finished.
func (m *Manager) ReportRestart(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished[idx] {
		delete(m.finished, idx)
		m.finishUnitNumber--
	}
}

// AllFinish reports whether every tracked unit has reported finished.
func (m *Manager) AllFinish() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finishUnitNumber == len(m.taskUnits)
}

// FinishTimeStamp advances allowedTimestamp and swaps every unit's
// kernels, per spec.md §4.9's state machine: Running -> Finished ->
// (wait) -> Running(T+1).
func (m *Manager) FinishTimeStamp() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	newTs := m.allowedTimestamp.Add(1)
	for _, tu := range m.taskUnits {
		tu.SwapKernels(newTs)
	}
	m.finished = make(map[int]bool, len(m.taskUnits))
	m.finishUnitNumber = 0
	nlog.Infof("timestamp barrier advanced to %d", newTs)
	return newTs
}
