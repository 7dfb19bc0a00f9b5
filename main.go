package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/multilevel/config"
	"github.com/pthm-cable/multilevel/game"
	"github.com/pthm-cable/multilevel/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, plot and config snapshot")
	seed := flag.Uint64("seed", 0, "RNG seed (0 = use config, then time-based)")
	rounds := flag.Int("rounds", -1, "Number of rounds (-1 = use config)")
	logStats := flag.Bool("log-stats", false, "Output per-round stats via slog")
	snapshot := flag.Bool("snapshot", false, "Write the final group composition to the output directory")
	perfWindow := flag.Int("perf-window", 0, "Rounds averaged for timing stats (0 = default)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, *outputDir, *seed, *rounds, *logStats, *snapshot, *perfWindow); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, outputDir string, seed uint64, rounds int, logStats, snapshot bool, perfWindow int) error {
	// Initialize config before anything else
	if err := config.Init(configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := config.Cfg()

	if seed != 0 {
		cfg.Run.Seed = seed
	}
	if cfg.Run.Seed == 0 {
		cfg.Run.Seed = uint64(time.Now().UnixNano())
	}
	if rounds >= 0 {
		cfg.Run.Rounds = rounds
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	om, err := telemetry.NewOutputManager(outputDir, telemetry.ParamsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		return err
	}

	runID := uuid.NewString()
	slog.Info("starting run",
		"run_id", runID,
		"seed", cfg.Run.Seed,
		"rounds", cfg.Run.Rounds,
		"output_dir", outputDir,
	)

	bookmarks := telemetry.NewBookmarkDetector(10, true)
	sim, err := game.New(cfg, game.Options{
		Output:     om,
		Recorders:  telemetry.Recorders{bookmarks},
		LogStats:   logStats || cfg.Telemetry.LogStats,
		PerfWindow: perfWindow,
	})
	if err != nil {
		return err
	}
	defer sim.Close()

	start := time.Now()
	if err := sim.Run(nil); err != nil {
		return err
	}

	hist := sim.History()
	final := hist[len(hist)-1]
	slog.Info("run complete",
		"run_id", runID,
		"round", final.Round,
		"population", final.Population,
		"prosocial_proportion", final.ProsocialProportion,
		"bookmarks", len(bookmarks.Bookmarks()),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)

	if outputDir == "" {
		return nil
	}

	if cfg.Telemetry.Plot {
		path := filepath.Join(outputDir, "prosocial.png")
		title := fmt.Sprintf("%s migration, cost %.2f", cfg.Derived.Migration, cfg.Game.CostOfProsociality)
		if err := telemetry.PlotProsocial(hist, title, path); err != nil {
			slog.Warn("plot skipped", "error", err)
		} else {
			slog.Info("plot written", "path", path)
		}
	}

	if snapshot {
		snap := sim.Snapshot()
		snap.RunID = runID
		path, err := telemetry.SaveSnapshot(snap, outputDir)
		if err != nil {
			return err
		}
		slog.Info("snapshot written", "path", path)
	}
	return nil
}
