package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageGenerate, 500)
	w.Observe(StageGenerate, 700)
	w.Observe(StageGenerate, 900)
	w.Count("action:CHAT_REPLY")
	w.Count("action:CHAT_REPLY")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageGenerate {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageGenerate)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 6000 {
		t.Fatalf("TargetP95MS = %.2f, want 6000", s.TargetP95MS)
	}
	if len(snap.Counters) != 1 || snap.Counters[0].Count != 2 {
		t.Fatalf("Counters = %+v, want one counter with count 2", snap.Counters)
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := newStageWindow(4)
	for i := 1; i <= 10; i++ {
		w.Observe(StageLookup, float64(i))
	}
	snap := w.Snapshot()
	s := snap.Stages[0]
	if s.Samples != 4 {
		t.Fatalf("Samples = %d, want 4", s.Samples)
	}
	if s.AvgMS != 8.5 {
		t.Fatalf("AvgMS = %.2f, want 8.5 (last four samples)", s.AvgMS)
	}
}

func TestMetricsObserveStage(t *testing.T) {
	m := NewMetrics("test_obs_" + time.Now().Format("150405") + "_" + time.Now().Format("000000000"))
	m.ObserveStage(StageTurnTotal, 1500*time.Millisecond)
	m.ObserveGeneration("reply", "ok", time.Second)
	m.ObserveMessage("rest", "CHAT_REPLY")

	snap := m.SnapshotStages()
	if len(snap.Stages) != 1 || snap.Stages[0].LastMS != 1500 {
		t.Fatalf("snapshot = %+v, want one turn_total sample of 1500ms", snap)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage(StageLookup, time.Millisecond)
	m.ObserveFallback("safety")
	m.ObserveGeneration("reply", "ok", time.Millisecond)
	if snap := m.SnapshotStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot should be empty")
	}
}
