package main

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/multilevel/config"
	"github.com/pthm-cable/multilevel/game"
	"github.com/pthm-cable/multilevel/telemetry"
)

// FitnessEvaluator runs simulations and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	seeds      []uint64
	baseConfig *config.Config

	mu          sync.Mutex
	lastMeanPop float64 // mean final population from most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, seeds []uint64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		seeds:      seeds,
		baseConfig: baseCfg,
	}
}

// LastMeanPopulation returns the mean final population from the most recent
// evaluation.
func (fe *FitnessEvaluator) LastMeanPopulation() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastMeanPop
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	proportion float64
	population float64
	err        error
}

// Evaluate computes fitness for a parameter vector (lower = better).
// Fitness is the negated mean final prosocial proportion across seeds; an
// extinct run counts as zero. A configuration that fails to run scores 0.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.baseConfig.Clone()
	if err := fe.params.ApplyToConfig(cfg, x); err != nil {
		return 0
	}

	// Run all seeds in parallel; each simulation stays single-threaded
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s uint64) {
			defer wg.Done()
			results[idx] = fe.runSimulation(cfg, s)
		}(i, seed)
	}
	wg.Wait()

	proportions := make([]float64, 0, len(results))
	populations := make([]float64, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			return 0
		}
		proportions = append(proportions, r.proportion)
		populations = append(populations, r.population)
	}

	fitness := -stat.Mean(proportions, nil)

	fe.mu.Lock()
	fe.lastMeanPop = stat.Mean(populations, nil)
	fe.mu.Unlock()

	return fitness
}

// runSimulation executes a single run with the given seed.
func (fe *FitnessEvaluator) runSimulation(base *config.Config, seed uint64) seedResult {
	cfg := base.Clone()
	cfg.Run.Seed = seed
	cfg.Parallel.Enabled = false
	cfg.Telemetry.LogStats = false

	sim, err := game.New(cfg, game.Options{})
	if err != nil {
		return seedResult{err: err}
	}
	defer sim.Close()

	if err := sim.Run(nil); err != nil {
		return seedResult{err: fmt.Errorf("seed %d: %w", seed, err)}
	}
	return finalScore(sim.History())
}

// finalScore reads the last recorded round.
func finalScore(rounds []telemetry.RoundStats) seedResult {
	if len(rounds) == 0 {
		return seedResult{}
	}
	final := rounds[len(rounds)-1]
	if final.Extinct() {
		return seedResult{}
	}
	return seedResult{
		proportion: final.ProsocialProportion,
		population: float64(final.Population),
	}
}
