// Package main provides CMA-ES optimization for finding parameters under
// which prosocial behavior persists.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/multilevel/config"
)

// formatDuration formats a duration as 1h02m03s, or 2m03s when under an hour.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

type options struct {
	configPath string
	rounds     int
	seeds      int
	maxEvals   int
	population int
	outputDir  string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Base config YAML file (empty = use defaults)")
	flag.IntVar(&opts.rounds, "rounds", 0, "Rounds per run (0 = use config)")
	flag.IntVar(&opts.seeds, "seeds", 3, "Number of seeds per evaluation")
	flag.IntVar(&opts.maxEvals, "max-evals", 200, "Maximum number of evaluations")
	flag.IntVar(&opts.population, "population", 0, "CMA-ES population size (0 = auto)")
	flag.StringVar(&opts.outputDir, "output", "", "Output directory for results")
	flag.Parse()

	// Per-run simulation logs would drown the progress lines
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

// tracker logs every evaluation to optimize_log.csv and keeps the best one.
type tracker struct {
	params    *ParamVector
	evaluator *FitnessEvaluator
	w         *csv.Writer
	maxEvals  int

	evals       int
	start       time.Time
	bestFitness float64
	bestParams  []float64
}

func newTracker(path string, params *ParamVector, evaluator *FitnessEvaluator, maxEvals int) (*tracker, *os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create log file: %w", err)
	}
	t := &tracker{
		params:      params,
		evaluator:   evaluator,
		w:           csv.NewWriter(f),
		maxEvals:    maxEvals,
		start:       time.Now(),
		bestFitness: 1,
	}

	header := []string{"eval", "fitness", "mean_population"}
	for _, spec := range params.Specs {
		header = append(header, spec.Name)
	}
	t.w.Write(header)
	return t, f, nil
}

// evaluate is the CMA-ES objective over normalized coordinates.
func (t *tracker) evaluate(x []float64) float64 {
	applied := t.params.Clamp(t.params.Denormalize(x))
	fitness := t.evaluator.Evaluate(applied)
	meanPop := t.evaluator.LastMeanPopulation()
	t.evals++

	if fitness < t.bestFitness || t.bestParams == nil {
		t.bestFitness = fitness
		t.bestParams = applied
	}

	row := make([]string, 0, 3+len(applied))
	row = append(row, strconv.Itoa(t.evals), strconv.FormatFloat(fitness, 'f', 6, 64), strconv.FormatFloat(meanPop, 'f', 1, 64))
	for _, v := range applied {
		row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
	}
	t.w.Write(row)
	t.w.Flush()

	elapsed := time.Since(t.start)
	eta := time.Duration(t.maxEvals-t.evals) * (elapsed / time.Duration(t.evals))
	fmt.Printf("Eval %d/%d: prosocial=%.3f population=%.0f (best=%.3f) | elapsed: %s, ETA: %s\n",
		t.evals, t.maxEvals, -fitness, meanPop, -t.bestFitness, formatDuration(elapsed), formatDuration(eta))

	return fitness
}

func run(opts options) error {
	if opts.outputDir == "" {
		return errors.New("--output is required")
	}
	if opts.seeds < 1 {
		return errors.New("--seeds must be at least 1")
	}
	if err := os.MkdirAll(opts.outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if err := config.Init(opts.configPath); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	base := config.Cfg()
	if opts.rounds > 0 {
		base.Run.Rounds = opts.rounds
	}

	params, err := NewParamVector(base)
	if err != nil {
		return err
	}

	seeds := make([]uint64, opts.seeds)
	for i := range seeds {
		seeds[i] = uint64(i*1000 + 42)
	}
	evaluator := NewFitnessEvaluator(params, seeds, base)

	tr, logFile, err := newTracker(filepath.Join(opts.outputDir, "optimize_log.csv"), params, evaluator, opts.maxEvals)
	if err != nil {
		return err
	}
	defer logFile.Close()
	defer tr.w.Flush()

	popSize := opts.population
	if popSize == 0 {
		popSize = 4 + 3*params.Dim()/2
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: opts.maxEvals,
		Concurrent:      0, // Sequential evaluation; seeds already run in parallel
	}

	fmt.Printf("Starting CMA-ES optimization with %d parameters, population=%d, max_evals=%d\n",
		params.Dim(), popSize, opts.maxEvals)
	fmt.Printf("Seeds per evaluation: %d, rounds per run: %d\n", opts.seeds, base.Run.Rounds)

	problem := optimize.Problem{Func: tr.evaluate}
	if _, err := optimize.Minimize(problem, params.Normalize(params.DefaultVector()), settings, method); err != nil {
		log.Printf("optimization ended: %v", err)
	}
	if tr.bestParams == nil {
		return errors.New("no evaluations completed")
	}

	fmt.Printf("\nOptimization complete after %d evaluations in %s\n", tr.evals, formatDuration(time.Since(tr.start)))
	fmt.Printf("Best mean prosocial proportion: %.4f\n", -tr.bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Name, tr.bestParams[i])
	}

	best := base.Clone()
	if err := params.ApplyToConfig(best, tr.bestParams); err != nil {
		return fmt.Errorf("best parameters do not validate: %w", err)
	}
	path := filepath.Join(opts.outputDir, "best_config.yaml")
	if err := best.WriteYAML(path); err != nil {
		return err
	}
	fmt.Printf("\nBest config saved to: %s\n", path)
	return nil
}
