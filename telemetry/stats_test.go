package telemetry

import (
	"math"
	"testing"

	"github.com/pthm-cable/multilevel/components"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeRoundStats(t *testing.T) {
	tests := []struct {
		name       string
		tallies    []GroupTally
		population int
		groups     int
		empty      int
		proportion float64
		stddev     float64
	}{
		{
			name:       "no groups",
			tallies:    nil,
			proportion: components.ExtinctProportion,
			stddev:     NoSpread,
		},
		{
			name:       "all groups empty",
			tallies:    []GroupTally{{0, 0}, {0, 0}},
			groups:     2,
			empty:      2,
			proportion: components.ExtinctProportion,
			stddev:     NoSpread,
		},
		{
			name:       "identical groups",
			tallies:    []GroupTally{{10, 6}, {10, 6}},
			population: 20,
			groups:     2,
			proportion: 0.6,
			stddev:     0,
		},
		{
			name:       "stratified groups",
			tallies:    []GroupTally{{10, 10}, {10, 0}},
			population: 20,
			groups:     2,
			proportion: 0.5,
			stddev:     0.5,
		},
		{
			name:       "empty group excluded from spread",
			tallies:    []GroupTally{{4, 2}, {0, 0}, {4, 2}},
			population: 8,
			groups:     3,
			empty:      1,
			proportion: 0.5,
			stddev:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ComputeRoundStats(3, tt.tallies)
			if s.Round != 3 {
				t.Errorf("Round = %d, want 3", s.Round)
			}
			if s.Population != tt.population || s.Groups != tt.groups || s.EmptyGroups != tt.empty {
				t.Errorf("population/groups/empty = %d/%d/%d, want %d/%d/%d",
					s.Population, s.Groups, s.EmptyGroups, tt.population, tt.groups, tt.empty)
			}
			if s.Prosocial+s.Selfish != s.Population {
				t.Errorf("prosocial %d + selfish %d != population %d", s.Prosocial, s.Selfish, s.Population)
			}
			if math.Abs(s.ProsocialProportion-tt.proportion) > 1e-9 {
				t.Errorf("ProsocialProportion = %v, want %v", s.ProsocialProportion, tt.proportion)
			}
			if math.Abs(s.ProsocialStdDev-tt.stddev) > 1e-9 {
				t.Errorf("ProsocialStdDev = %v, want %v", s.ProsocialStdDev, tt.stddev)
			}
		})
	}
}

func TestSentinelsDistinct(t *testing.T) {
	if components.ExtinctProportion == NoSpread {
		t.Fatal("extinction and no-spread sentinels must differ")
	}
	if components.ExtinctProportion >= 0 || NoSpread >= 0 {
		t.Fatal("sentinels must lie outside the valid range")
	}
}

func TestCollectorFlush(t *testing.T) {
	c := NewCollector()

	c.RecordGroup(10, 6)
	c.RecordGroup(10, 6)
	first := c.Flush()
	if first.Round != 0 || first.Population != 20 || first.Births != 0 {
		t.Errorf("first flush = %+v, want round 0 with 20 agents", first)
	}

	c.RecordDeaths(20)
	c.RecordBirths(40)
	c.RecordGroup(20, 12)
	c.RecordGroup(20, 12)
	second := c.Flush()
	if second.Round != 1 || second.Population != 40 {
		t.Errorf("second flush round/pop = %d/%d, want 1/40", second.Round, second.Population)
	}
	if second.Births != 40 || second.Deaths != 20 {
		t.Errorf("births/deaths = %d/%d, want 40/20", second.Births, second.Deaths)
	}

	third := c.Flush()
	if third.Groups != 0 || third.Births != 0 || third.Deaths != 0 {
		t.Errorf("counters not reset: %+v", third)
	}
}

type failingRecorder struct{ err error }

func (f failingRecorder) Record(RoundStats) error { return f.err }

func TestRecorders(t *testing.T) {
	h := &History{}
	if _, ok := h.Final(); ok {
		t.Error("empty history has a final round")
	}

	rs := Recorders{h, LogRecorder{}, &ExtinctionWatch{}}
	for i := range 3 {
		if err := rs.Record(RoundStats{Round: i, Population: 5 - i}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if len(h.Rounds()) != 3 {
		t.Fatalf("history has %d rounds, want 3", len(h.Rounds()))
	}
	if final, _ := h.Final(); final.Round != 2 {
		t.Errorf("final round = %d, want 2", final.Round)
	}

	boom := failingRecorder{err: ErrNothingToPlot}
	if err := (Recorders{boom, h}).Record(RoundStats{}); err == nil {
		t.Error("expected joined error")
	}
	if len(h.Rounds()) != 4 {
		t.Error("later recorders skipped after an error")
	}
}
