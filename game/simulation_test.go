package game

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pthm-cable/multilevel/components"
	"github.com/pthm-cable/multilevel/config"
	"github.com/pthm-cable/multilevel/telemetry"
)

func newSim(t *testing.T, cfg *config.Config) *Simulation {
	t.Helper()
	sim, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(sim.Close)
	return sim
}

// checkInvariants verifies group tallies against each other and the arena.
func checkInvariants(t *testing.T, sim *Simulation) {
	t.Helper()
	total, prosocial := 0, 0
	for i, g := range sim.Groups() {
		if g.ProsocialCount()+g.SelfishCount() != g.Size() {
			t.Fatalf("round %d group %d: tally %d+%d != size %d",
				sim.Round(), i, g.ProsocialCount(), g.SelfishCount(), g.Size())
		}
		total += g.Size()
		prosocial += g.ProsocialCount()
	}
	if total != sim.Population() {
		t.Fatalf("round %d: group sizes sum to %d, population %d", sim.Round(), total, sim.Population())
	}
	arenaPro, arenaSelf := sim.Arena().CountPhenotypes()
	if arenaPro != prosocial || arenaPro+arenaSelf != total {
		t.Fatalf("round %d: arena counts %d/%d, groups %d/%d", sim.Round(), arenaPro, arenaSelf, prosocial, total-prosocial)
	}
}

func TestFoundingAssignment(t *testing.T) {
	cfg := config.Default()
	cfg.Population.NumGroups = 0
	cfg.Population.InitialSize = 20
	cfg.Population.TargetGroupSize = 10
	cfg.Population.SeedProportionProsocial = 0.6
	cfg.Run.Rounds = 0

	sim := newSim(t, cfg)
	checkInvariants(t, sim)

	if len(sim.Groups()) != 2 {
		t.Fatalf("groups = %d, want 2", len(sim.Groups()))
	}
	for i, g := range sim.Groups() {
		if g.Size() != 10 {
			t.Errorf("group %d size = %d, want 10", i, g.Size())
		}
	}

	start := sim.History()[0]
	if start.Round != 0 || start.Prosocial != 12 || start.Selfish != 8 {
		t.Errorf("round 0 = %+v, want 12 prosocial 8 selfish", start)
	}
}

func TestSeedingCount(t *testing.T) {
	tests := []struct {
		proportion float64
		size       int
		want       int
	}{
		{0.6, 20, 12},
		{0.07, 100, 7},
		{0.55, 10, 6}, // rounds up
		{0, 10, 0},
		{1, 10, 10},
	}
	for _, tt := range tests {
		cfg := config.Default()
		cfg.Population.NumGroups = 0
		cfg.Population.InitialSize = tt.size
		cfg.Population.SeedProportionProsocial = tt.proportion

		sim := newSim(t, cfg)
		if got := sim.History()[0].Prosocial; got != tt.want {
			t.Errorf("seed %v of %d: prosocial = %d, want %d", tt.proportion, tt.size, got, tt.want)
		}
	}
}

func TestReplacementRound(t *testing.T) {
	cfg := config.Default()
	cfg.Population.NumGroups = 0
	cfg.Population.InitialSize = 20
	cfg.Population.TargetGroupSize = 10
	cfg.Population.SeedProportionProsocial = 0.6
	cfg.Game.CostOfProsociality = 0
	cfg.Reproduction.BaseChances = 1
	cfg.Reproduction.BaseProbability = 1
	cfg.Reproduction.ExtraProbability = 0
	cfg.Population.MutationRate = 0
	cfg.Run.Rounds = 1

	sim := newSim(t, cfg)
	if err := sim.Run(nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariants(t, sim)

	// One certain offspring per parent, and every parent is supplanted
	final := sim.History()[1]
	if final.Population != 20 || final.Prosocial != 12 || final.Selfish != 8 {
		t.Errorf("round 1 = %+v, want 20 agents with 12 prosocial", final)
	}
	if final.Births != 20 || final.Deaths != 20 {
		t.Errorf("births/deaths = %d/%d, want 20/20", final.Births, final.Deaths)
	}
	if final.Groups != 2 {
		t.Errorf("groups = %d, want 2", final.Groups)
	}
}

// useCPUs raises GOMAXPROCS for the test so the worker pool is not capped
// to one worker on small machines.
func useCPUs(t *testing.T, n int) {
	t.Helper()
	prev := runtime.GOMAXPROCS(n)
	t.Cleanup(func() { runtime.GOMAXPROCS(prev) })
}

// growthConfig returns a config whose population drifts slowly.
func growthConfig(policy string, parallel bool) *config.Config {
	cfg := config.Default()
	cfg.Population.NumGroups = 6
	cfg.Population.TargetGroupSize = 8
	cfg.Population.MutationRate = 0.05
	cfg.Reproduction.BaseChances = 2
	cfg.Reproduction.BaseProbability = 0.5
	cfg.Reproduction.ExtraProbability = 0.3
	cfg.MetaSelection.Coefficient = 0.1
	cfg.MetaSelection.Participation = 0.2
	cfg.Migration.Policy = policy
	cfg.Parallel.Enabled = parallel
	cfg.Parallel.Threshold = 1
	cfg.Run.Rounds = 10
	cfg.Run.Seed = 99
	return cfg
}

func TestInvariantsEveryRound(t *testing.T) {
	for _, policy := range []string{"random", "biased", "isolation"} {
		for _, parallel := range []bool{false, true} {
			name := policy + "/serial"
			if parallel {
				name = policy + "/parallel"
			}
			t.Run(name, func(t *testing.T) {
				useCPUs(t, 4)
				cfg := growthConfig(policy, parallel)
				sim := newSim(t, cfg)
				if parallel && sim.parallel.numWorkers < 2 {
					t.Fatalf("numWorkers = %d, want fan-out", sim.parallel.numWorkers)
				}
				founding := len(sim.Groups())

				for sim.Round() < cfg.Run.Rounds {
					stats, err := sim.Step()
					if err != nil {
						t.Fatalf("Step: %v", err)
					}
					checkInvariants(t, sim)

					want := groupCount(stats.Population, cfg.Population.TargetGroupSize)
					if policy == "isolation" {
						want = founding
					}
					if stats.Groups != want {
						t.Fatalf("round %d: %d groups for %d agents, want %d", stats.Round, stats.Groups, stats.Population, want)
					}
				}
				if got := len(sim.History()); got != cfg.Run.Rounds+1 {
					t.Errorf("history has %d rounds, want %d", got, cfg.Run.Rounds+1)
				}
			})
		}
	}
}

func TestDeterministicAcrossWorkers(t *testing.T) {
	useCPUs(t, 4)

	run := func(workers int, parallel bool) []telemetry.RoundStats {
		cfg := growthConfig("biased", parallel)
		cfg.Parallel.Workers = workers
		sim := newSim(t, cfg)
		if err := sim.Run(nil); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if parallel {
			if sim.parallel.numWorkers < 2 || !sim.parallel.running {
				t.Fatalf("workers=%d: pool not used (numWorkers=%d running=%v)",
					workers, sim.parallel.numWorkers, sim.parallel.running)
			}
		}
		return sim.History()
	}

	serial := run(1, false)
	for _, workers := range []int{2, 4, 0} {
		got := run(workers, true)
		for i := range serial {
			if got[i] != serial[i] {
				t.Fatalf("workers=%d round %d:\n got %+v\nwant %+v", workers, i, got[i], serial[i])
			}
		}
	}
}

func TestExtinctionContinues(t *testing.T) {
	cfg := config.Default()
	cfg.Reproduction.BaseProbability = 0
	cfg.Reproduction.ExtraProbability = 0
	cfg.Run.Rounds = 3

	sim := newSim(t, cfg)
	if err := sim.Run(nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	hist := sim.History()
	if len(hist) != 4 {
		t.Fatalf("history has %d rounds, want 4 (extinction must not stop the run)", len(hist))
	}
	for _, s := range hist[1:] {
		if s.Population != 0 || s.Groups != 0 {
			t.Errorf("round %d: population %d groups %d, want 0/0", s.Round, s.Population, s.Groups)
		}
		if s.ProsocialProportion != components.ExtinctProportion {
			t.Errorf("round %d proportion = %v, want extinction sentinel", s.Round, s.ProsocialProportion)
		}
		if s.ProsocialStdDev != telemetry.NoSpread {
			t.Errorf("round %d stddev = %v, want no-spread sentinel", s.Round, s.ProsocialStdDev)
		}
	}
}

func TestIsolationKeepsGroups(t *testing.T) {
	cfg := config.Default()
	cfg.Population.NumGroups = 3
	cfg.Population.TargetGroupSize = 10
	cfg.Population.SeedProportionProsocial = 1
	cfg.Game.CostOfProsociality = 0
	cfg.Reproduction.BaseChances = 2
	cfg.Reproduction.BaseProbability = 1
	cfg.Reproduction.ExtraProbability = 0
	cfg.Migration.Policy = "isolation"
	cfg.Run.Rounds = 2

	sim := newSim(t, cfg)
	before := append(sim.Groups()[:0:0], sim.Groups()...)
	if err := sim.Run(nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sim.Groups()) != 3 {
		t.Fatalf("groups = %d, want founding 3", len(sim.Groups()))
	}
	for i, g := range sim.Groups() {
		if g != before[i] {
			t.Errorf("group %d replaced under isolation", i)
		}
		if g.Size() != 40 {
			t.Errorf("group %d size = %d, want 40 after two doublings", i, g.Size())
		}
	}
}

func TestRunStopCallback(t *testing.T) {
	cfg := config.Default()
	cfg.Run.Rounds = 10

	sim := newSim(t, cfg)
	err := sim.Run(func(s telemetry.RoundStats) bool { return s.Round == 2 })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sim.Round() != 2 {
		t.Errorf("Round() = %d, want 2", sim.Round())
	}
}

func TestNewRejectsSexual(t *testing.T) {
	cfg := config.Default()
	cfg.Population.Reproduction = "sexual"

	if _, err := New(cfg, Options{}); !errors.Is(err, components.ErrUnsupported) {
		t.Errorf("New err = %v, want ErrUnsupported", err)
	}
}

func TestSnapshotMatchesGroups(t *testing.T) {
	sim := newSim(t, config.Default())

	snap := sim.Snapshot()
	if len(snap.Groups) != len(sim.Groups()) {
		t.Fatalf("snapshot has %d groups, want %d", len(snap.Groups), len(sim.Groups()))
	}
	for i, gs := range snap.Groups {
		n := 0
		for _, c := range gs.Genotypes {
			n += c
		}
		if n != gs.Size || gs.Size != sim.Groups()[i].Size() {
			t.Errorf("group %d: genotype total %d, size %d", i, n, gs.Size)
		}
	}
}

func TestOutputWritten(t *testing.T) {
	cfg := config.Default()
	cfg.Run.Rounds = 3
	dir := t.TempDir()

	om, err := telemetry.NewOutputManager(dir, telemetry.ParamsFromConfig(cfg))
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}
	history := &telemetry.History{}
	sim, err := New(cfg, Options{Output: om, Recorders: telemetry.Recorders{history}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sim.Run(nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	sim.Close()
	if err := om.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(history.Rounds()) != 4 {
		t.Errorf("extra recorder saw %d rounds, want 4", len(history.Rounds()))
	}
	for _, name := range []string{"rounds.csv", "perf.csv"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || info.Size() == 0 {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestGroupCount(t *testing.T) {
	tests := []struct{ n, target, want int }{
		{0, 10, 0},
		{5, 10, 1},
		{20, 10, 2},
		{29, 10, 2},
		{30, 10, 3},
	}
	for _, tt := range tests {
		if got := groupCount(tt.n, tt.target); got != tt.want {
			t.Errorf("groupCount(%d, %d) = %d, want %d", tt.n, tt.target, got, tt.want)
		}
	}
}
