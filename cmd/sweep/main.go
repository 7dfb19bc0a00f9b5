// Package main sweeps one or two named parameters over a grid, running
// several seeded replicates per cell.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gocarina/gocsv"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/multilevel/config"
	"github.com/pthm-cable/multilevel/game"
	"github.com/pthm-cable/multilevel/store"
	"github.com/pthm-cable/multilevel/telemetry"
)

// SummaryRow is one summary.csv row: a cell's parameters and its outcome
// across replicates.
type SummaryRow struct {
	telemetry.RunParams

	XName  string  `csv:"x_name"`
	XValue float64 `csv:"x_value"`
	YName  string  `csv:"y_name"`
	YValue float64 `csv:"y_value"`

	Replicates       int     `csv:"replicates"`
	ExtinctRuns      int     `csv:"extinct_runs"`
	MeanProportion   float64 `csv:"mean_final_proportion"` // Extinct runs count as 0
	StdDevProportion float64 `csv:"stddev_final_proportion"`
	MeanPopulation   float64 `csv:"mean_final_population"`
	MeanFinalGroups  float64 `csv:"mean_final_groups"`
}

// sweep holds everything shared by the cells of one sweep.
type sweep struct {
	base       *config.Config
	x          Axis
	y          *Axis
	replicates int
	seed       uint64
	label      string
	db         *store.Store // nil = runs are not stored
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	xFlag := flag.String("x", "", "First axis as name:from:to:steps (required)")
	yFlag := flag.String("y", "", "Optional second axis as name:from:to:steps")
	replicates := flag.Int("replicates", 5, "Seeded runs per cell")
	seed := flag.Uint64("seed", 1, "Seed of the first replicate; replicate i uses seed+i")
	rounds := flag.Int("rounds", 0, "Rounds per run (0 = use config)")
	workers := flag.Int("workers", 0, "Cells run at once (0 = GOMAXPROCS)")
	outputDir := flag.String("output", "", "Output directory for summary.csv (required)")
	dbPath := flag.String("db", "", "SQLite file to store every run (empty = disabled)")
	label := flag.String("label", "sweep", "Label stored with each run")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, *configPath, *xFlag, *yFlag, *replicates, *seed, *rounds, *workers, *outputDir, *dbPath, *label)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, xFlag, yFlag string, replicates int, seed uint64,
	rounds, workers int, outputDir, dbPath, label string) error {
	if xFlag == "" || outputDir == "" {
		return errors.New("-x and -output are required")
	}
	if replicates < 1 {
		return errors.New("-replicates must be at least 1")
	}

	if err := config.Init(configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	base := config.Cfg()
	if rounds > 0 {
		base.Run.Rounds = rounds
	}

	s := &sweep{base: base, replicates: replicates, seed: seed, label: label}
	var err error
	if s.x, err = parseAxis(xFlag); err != nil {
		return err
	}
	if yFlag != "" {
		y, err := parseAxis(yFlag)
		if err != nil {
			return err
		}
		s.y = &y
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := base.WriteYAML(filepath.Join(outputDir, "base_config.yaml")); err != nil {
		return err
	}

	if dbPath != "" {
		db, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		s.db = db
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	cells := grid(s.x, s.y)
	rows := make([]SummaryRow, len(cells))
	start := time.Now()
	fmt.Printf("Sweeping %d cells x %d replicates, %d rounds each, %d workers\n",
		len(cells), replicates, base.Run.Rounds, workers)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, cell := range cells {
		g.Go(func() error {
			row, err := s.runCell(gCtx, cell)
			if err != nil {
				return fmt.Errorf("cell %s=%v: %w", s.x.Param.Name, cell.X, err)
			}
			rows[i] = row
			fmt.Printf("  %s=%.4g %s: proportion=%.3f population=%.0f extinct=%d/%d\n",
				s.x.Param.Name, cell.X, s.yLabel(cell), row.MeanProportion, row.MeanPopulation,
				row.ExtinctRuns, row.Replicates)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	path := filepath.Join(outputDir, "summary.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary: %w", err)
	}
	defer f.Close()
	if err := gocsv.Marshal(rows, f); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	fmt.Printf("Sweep complete in %s, summary saved to: %s\n", time.Since(start).Round(time.Second), path)
	return nil
}

func (s *sweep) yLabel(cell Cell) string {
	if s.y == nil {
		return ""
	}
	return fmt.Sprintf("%s=%.4g", s.y.Param.Name, cell.Y)
}

// cellConfig applies the cell's coordinates to a copy of the base config.
func (s *sweep) cellConfig(cell Cell) (*config.Config, error) {
	cfg := s.base.Clone()
	s.x.Param.Set(cfg, cell.X)
	if s.y != nil {
		s.y.Param.Set(cfg, cell.Y)
	}
	// Cells already run concurrently
	cfg.Parallel.Enabled = false
	cfg.Telemetry.LogStats = false
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runCell runs every replicate of one cell and summarizes the final rounds.
func (s *sweep) runCell(ctx context.Context, cell Cell) (SummaryRow, error) {
	cfg, err := s.cellConfig(cell)
	if err != nil {
		return SummaryRow{}, err
	}

	row := SummaryRow{
		RunParams:  telemetry.ParamsFromConfig(cfg),
		XName:      s.x.Param.Name,
		XValue:     s.x.Param.Get(cfg),
		Replicates: s.replicates,
	}
	if s.y != nil {
		row.YName = s.y.Param.Name
		row.YValue = s.y.Param.Get(cfg)
	}

	proportions := make([]float64, 0, s.replicates)
	populations := make([]float64, 0, s.replicates)
	groups := make([]float64, 0, s.replicates)
	for rep := 0; rep < s.replicates; rep++ {
		if err := ctx.Err(); err != nil {
			return SummaryRow{}, err
		}

		runCfg := cfg.Clone()
		runCfg.Run.Seed = s.seed + uint64(rep)
		final, err := s.runReplicate(ctx, runCfg)
		if err != nil {
			return SummaryRow{}, fmt.Errorf("seed %d: %w", runCfg.Run.Seed, err)
		}

		p := final.ProsocialProportion
		if final.Extinct() {
			row.ExtinctRuns++
			p = 0
		}
		proportions = append(proportions, p)
		populations = append(populations, float64(final.Population))
		groups = append(groups, float64(final.Groups))
	}

	row.MeanProportion, row.StdDevProportion = stat.PopMeanStdDev(proportions, nil)
	row.MeanPopulation = stat.Mean(populations, nil)
	row.MeanFinalGroups = stat.Mean(groups, nil)
	return row, nil
}

// runReplicate runs one seeded simulation, stores it when a database is
// configured and returns its final round.
func (s *sweep) runReplicate(ctx context.Context, cfg *config.Config) (telemetry.RoundStats, error) {
	sim, err := game.New(cfg, game.Options{})
	if err != nil {
		return telemetry.RoundStats{}, err
	}
	defer sim.Close()

	if err := sim.Run(func(telemetry.RoundStats) bool { return ctx.Err() != nil }); err != nil {
		return telemetry.RoundStats{}, err
	}
	if err := ctx.Err(); err != nil {
		return telemetry.RoundStats{}, err
	}

	hist := sim.History()
	if s.db != nil {
		r, err := store.NewRun(s.label, cfg, hist)
		if err != nil {
			return telemetry.RoundStats{}, err
		}
		if err := s.db.SaveRun(ctx, r); err != nil {
			return telemetry.RoundStats{}, err
		}
	}
	return hist[len(hist)-1], nil
}
