package taskunit

import "testing"

func TestManagerAllFinishRequiresEveryUnit(t *testing.T) {
	units := []*TaskUnit{
		NewTaskUnit("bank0", 0, newFakeChecker()),
		NewTaskUnit("bank1", 1, newFakeChecker()),
	}
	m := NewManager(units)

	if m.AllFinish() {
		t.Fatalf("expected AllFinish false before any report")
	}
	m.ReportFinish(0)
	if m.AllFinish() {
		t.Fatalf("expected AllFinish false with one unit outstanding")
	}
	m.ReportFinish(1)
	if !m.AllFinish() {
		t.Fatalf("expected AllFinish true once every unit reported")
	}
}

func TestManagerReportRestartRevertsFinish(t *testing.T) {
	units := []*TaskUnit{NewTaskUnit("bank0", 0, newFakeChecker())}
	m := NewManager(units)
	m.ReportFinish(0)
	m.ReportRestart(0)
	if m.AllFinish() {
		t.Fatalf("expected AllFinish false after restart reverted the only finish")
	}
}

// TestFinishTimeStampAdvancesAndSwapsKernels covers spec.md scenario S6:
// once every bank reports Finished at T, FinishTimeStamp advances the
// barrier and swaps every bank's kernels so tasks enqueued for T+1
// become visible.
func TestFinishTimeStampAdvancesAndSwapsKernels(t *testing.T) {
	units := []*TaskUnit{NewTaskUnit("bank0", 0, newFakeChecker())}
	m := NewManager(units)
	m.ReportFinish(0)

	newTs := m.FinishTimeStamp()
	if newTs != 1 {
		t.Fatalf("expected barrier to advance to 1, got %d", newTs)
	}
	if m.AllowedTimestamp() != 1 {
		t.Fatalf("expected AllowedTimestamp() == 1, got %d", m.AllowedTimestamp())
	}
	if m.AllFinish() {
		t.Fatalf("expected finish-set cleared after barrier advance")
	}
}
