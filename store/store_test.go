package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/multilevel/config"
	"github.com/pthm-cable/multilevel/telemetry"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadRun(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	cfg := config.Default()
	cfg.Run.Seed = math.MaxUint64 // high bit set survives the int64 column
	rounds := []telemetry.RoundStats{
		telemetry.ComputeRoundStats(0, []telemetry.GroupTally{{10, 6}, {10, 6}}),
		telemetry.ComputeRoundStats(1, []telemetry.GroupTally{{20, 10}, {0, 0}}),
		telemetry.ComputeRoundStats(2, nil),
	}

	run, err := NewRun("baseline", cfg, rounds)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("NewRun produced an empty ID")
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.Rounds(ctx, run.ID)
	if err != nil {
		t.Fatalf("Rounds: %v", err)
	}
	if len(got) != len(rounds) {
		t.Fatalf("loaded %d rounds, want %d", len(got), len(rounds))
	}
	for i := range rounds {
		if got[i] != rounds[i] {
			t.Errorf("round %d:\n got %+v\nwant %+v", i, got[i], rounds[i])
		}
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID || runs[0].Label != "baseline" {
		t.Fatalf("Runs() = %+v", runs)
	}
	if runs[0].Seed != math.MaxUint64 {
		t.Errorf("seed = %d, want MaxUint64", runs[0].Seed)
	}
	if runs[0].Rounds != nil {
		t.Error("Runs() should not load rounds")
	}
}

func TestSaveRunDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	run, _ := NewRun("a", config.Default(), nil)
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun(ctx, run); err == nil {
		t.Error("expected error saving a duplicate run ID")
	}
}

func TestRoundsUnknownRun(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Rounds(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("expected error for empty path")
	}
}
