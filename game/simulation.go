// Package game drives the generational life cycle of a grouped population.
package game

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/multilevel/config"
	"github.com/pthm-cable/multilevel/systems"
	"github.com/pthm-cable/multilevel/telemetry"
)

// coordinatorStream separates the coordinator's generator from per-group ones.
const coordinatorStream = 0x6d756c7469

// Options holds optional collaborators for a Simulation.
type Options struct {
	// Output receives rounds.csv and perf.csv rows. May be nil.
	Output *telemetry.OutputManager
	// Recorders receive every round in addition to the internal history.
	Recorders telemetry.Recorders
	// LogStats logs every round with slog.
	LogStats bool
	// PerfWindow is the number of rounds averaged for timing stats.
	PerfWindow int
}

// Simulation runs SEED and ASSIGN on construction, then one
// PLAY, REPRODUCE, MIGRATE, RECORD cycle per Step.
type Simulation struct {
	cfg       *config.Config
	arena     *systems.Arena
	groups    []*systems.Group
	migration systems.Migration

	// Coordinator generator: seeding, assignment, migration
	rng *rand.Rand

	// Per-group generators, reseeded every round from (seed, round, index)
	groupSrc []*rand.PCG
	groupRNG []*rand.Rand

	parallel *parallelState
	pool     []ecs.Entity

	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	history   *telemetry.History
	recorders telemetry.Recorders
	output    *telemetry.OutputManager
}

// New validates cfg, seeds the founding population and assigns it to groups.
// The founding state is recorded as round 0.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		cfg:       cfg,
		arena:     systems.NewArena(),
		migration: systems.NewMigration(cfg.Derived.Migration),
		rng:       rand.New(rand.NewPCG(cfg.Run.Seed, coordinatorStream)),
		parallel:  newParallelState(cfg.Parallel.Workers, cfg.Parallel.Threshold),
		collector: telemetry.NewCollector(),
		perf:      telemetry.NewPerfCollector(opts.PerfWindow),
		history:   &telemetry.History{},
		output:    opts.Output,
	}

	s.recorders = telemetry.Recorders{s.history, &telemetry.ExtinctionWatch{}}
	if opts.Output != nil {
		s.recorders = append(s.recorders, opts.Output)
	}
	if opts.LogStats {
		s.recorders = append(s.recorders, telemetry.LogRecorder{})
	}
	s.recorders = append(s.recorders, opts.Recorders...)

	founders := s.seedPopulation()
	if err := s.assign(founders); err != nil {
		s.Close()
		return nil, fmt.Errorf("assigning founders: %w", err)
	}

	slog.Info("simulation created",
		"population", s.arena.Len(),
		"groups", len(s.groups),
		"migration", s.migration.Name(),
		"prosociality", cfg.Derived.Prosociality,
		"rounds", cfg.Run.Rounds,
		"workers", s.parallel.numWorkers,
		"parallel", cfg.Parallel.Enabled,
	)

	if err := s.record(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Step runs one full round and returns its statistics.
func (s *Simulation) Step() (telemetry.RoundStats, error) {
	s.perf.StartRound()

	s.perf.StartPhase(telemetry.PhasePlay)
	s.playAndBreed()

	s.perf.StartPhase(telemetry.PhaseSupplant)
	s.supplant()

	s.perf.StartPhase(telemetry.PhaseMigrate)
	if err := s.migrate(); err != nil {
		return telemetry.RoundStats{}, fmt.Errorf("round %d: migrating: %w", s.collector.Round(), err)
	}

	s.perf.StartPhase(telemetry.PhaseRecord)
	err := s.record()
	s.perf.EndRound()

	stats, _ := s.history.Final()
	if err != nil {
		return stats, err
	}
	if s.output != nil {
		if err := s.output.WritePerf(s.perf.Stats(), stats.Round); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// Run steps until the configured number of rounds has completed or stop
// returns true. A nil stop runs to completion. Extinction does not end a run.
func (s *Simulation) Run(stop func(telemetry.RoundStats) bool) error {
	for s.Round() < s.cfg.Run.Rounds {
		stats, err := s.Step()
		if err != nil {
			return err
		}
		if stop != nil && stop(stats) {
			slog.Info("run stopped early", "round", stats.Round)
			break
		}
	}
	s.perf.Stats().LogStats()
	return nil
}

// record flushes the current composition to every recorder.
func (s *Simulation) record() error {
	for _, g := range s.groups {
		s.collector.RecordGroup(g.Size(), g.ProsocialCount())
	}
	stats := s.collector.Flush()
	if err := s.recorders.Record(stats); err != nil {
		return fmt.Errorf("recording round %d: %w", stats.Round, err)
	}
	return nil
}

// Close stops the worker pool. It does not close the output manager.
func (s *Simulation) Close() {
	s.parallel.stopWorkers()
}

// Round returns the number of completed rounds.
func (s *Simulation) Round() int {
	return s.collector.Round() - 1
}

// Population returns the number of live agents.
func (s *Simulation) Population() int {
	return s.arena.Len()
}

// Groups returns the current groups. The slice is owned by the simulation.
func (s *Simulation) Groups() []*systems.Group {
	return s.groups
}

// Arena returns the agent store.
func (s *Simulation) Arena() *systems.Arena {
	return s.arena
}

// History returns every recorded round, starting with round 0.
func (s *Simulation) History() []telemetry.RoundStats {
	return s.history.Rounds()
}

// Config returns the configuration the simulation was built with.
func (s *Simulation) Config() *config.Config {
	return s.cfg
}

// Snapshot captures the current group composition.
func (s *Simulation) Snapshot() *telemetry.Snapshot {
	snap := &telemetry.Snapshot{
		Version: telemetry.SnapshotVersion,
		Seed:    s.cfg.Run.Seed,
		Round:   s.Round(),
		Params:  telemetry.ParamsFromConfig(s.cfg),
		Groups:  make([]telemetry.GroupState, len(s.groups)),
	}
	for i, g := range s.groups {
		genotypes := make(map[string]int)
		for _, e := range g.Members() {
			genotypes[s.arena.Genome(e).Genotype.String()]++
		}
		snap.Groups[i] = telemetry.GroupState{
			Index:     i,
			Size:      g.Size(),
			Prosocial: g.ProsocialCount(),
			Genotypes: genotypes,
		}
	}
	return snap
}
