package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartRound()
		pc.StartPhase(PhasePlay)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseMigrate)
		time.Sleep(200 * time.Microsecond)
		pc.EndRound()
	}

	stats := pc.Stats()

	if stats.AvgRoundDuration <= 0 {
		t.Error("expected positive average round duration")
	}
	if _, ok := stats.PhasePct[PhasePlay]; !ok {
		t.Error("expected play phase to be tracked")
	}
	if _, ok := stats.PhasePct[PhaseMigrate]; !ok {
		t.Error("expected migrate phase to be tracked")
	}
	if stats.MinRoundDuration > stats.MaxRoundDuration {
		t.Errorf("min %v > max %v", stats.MinRoundDuration, stats.MaxRoundDuration)
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartRound()
		pc.StartPhase(PhaseRecord)
		pc.EndRound()
	}

	stats := pc.Stats()
	if stats.AvgRoundDuration <= 0 {
		t.Error("expected positive average round duration after window filled")
	}
	if stats.RoundsPerSecond <= 0 {
		t.Error("expected positive rounds per second")
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartRound()
		pc.StartPhase(PhaseSupplant)
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase(PhasePlay)
		time.Sleep(500 * time.Microsecond)
		pc.EndRound()
	}

	stats := pc.Stats()
	if stats.PhasePct[PhasePlay] <= stats.PhasePct[PhaseSupplant] {
		t.Errorf("expected play (%v%%) > supplant (%v%%)", stats.PhasePct[PhasePlay], stats.PhasePct[PhaseSupplant])
	}

	row := stats.ToCSV(7)
	if row.Round != 7 || row.PlayPct != stats.PhasePct[PhasePlay] {
		t.Errorf("ToCSV = %+v", row)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	stats := NewPerfCollector(10).Stats()

	if stats.AvgRoundDuration != 0 {
		t.Error("expected zero avg round duration for empty collector")
	}
	if stats.PhasePct == nil {
		t.Error("expected non-nil PhasePct map")
	}
}
