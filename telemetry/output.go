package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/multilevel/config"
)

// RunParams is the parameter prefix carried by every output row, so rows
// from different runs can be concatenated and still be told apart.
type RunParams struct {
	TargetGroupSize    int     `csv:"target_group_size"`
	ExtraProbability   float64 `csv:"extra_probability"`
	CostOfProsociality float64 `csv:"cost_of_prosociality"`
	Rounds             int     `csv:"rounds"`
	BaseChances        int     `csv:"base_chances"`
	BaseProbability    float64 `csv:"base_probability"`
	Prosociality       string  `csv:"prosociality"`
	ProsocialPhenotype string  `csv:"prosocial_phenotype"`
	Migration          string  `csv:"migration"`
	SeedProportion     float64 `csv:"seed_proportion_prosocial"`
	MutationRate       float64 `csv:"mutation_rate"`
	MetaCoefficient    float64 `csv:"meta_coefficient"`
}

// ParamsFromConfig extracts the run parameters from cfg.
func ParamsFromConfig(cfg *config.Config) RunParams {
	return RunParams{
		TargetGroupSize:    cfg.Population.TargetGroupSize,
		ExtraProbability:   cfg.Reproduction.ExtraProbability,
		CostOfProsociality: cfg.Game.CostOfProsociality,
		Rounds:             cfg.Run.Rounds,
		BaseChances:        cfg.Reproduction.BaseChances,
		BaseProbability:    cfg.Reproduction.BaseProbability,
		Prosociality:       cfg.Derived.Prosociality.String(),
		ProsocialPhenotype: cfg.Game.ProsocialPhenotype,
		Migration:          cfg.Derived.Migration.String(),
		SeedProportion:     cfg.Population.SeedProportionProsocial,
		MutationRate:       cfg.Population.MutationRate,
		MetaCoefficient:    cfg.MetaSelection.Coefficient,
	}
}

// RoundRecord is one rounds.csv row.
type RoundRecord struct {
	RunParams
	RoundStats
}

// OutputManager handles structured experiment output with CSV logging.
// A nil *OutputManager is valid and discards everything.
type OutputManager struct {
	dir        string
	params     RunParams
	roundsFile *os.File
	perfFile   *os.File

	// Track if headers have been written
	roundsHeaderWritten bool
	perfHeaderWritten   bool
}

// NewOutputManager creates the output directory and opens rounds.csv and
// perf.csv. Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string, params RunParams) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir, params: params}

	f, err := os.Create(filepath.Join(dir, "rounds.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating rounds.csv: %w", err)
	}
	om.roundsFile = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.roundsFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// Record writes one round to rounds.csv, prefixed with the run parameters.
func (om *OutputManager) Record(stats RoundStats) error {
	if om == nil {
		return nil
	}
	records := []RoundRecord{{RunParams: om.params, RoundStats: stats}}
	if err := writeRows(records, om.roundsFile, &om.roundsHeaderWritten); err != nil {
		return fmt.Errorf("writing rounds: %w", err)
	}
	return nil
}

// WritePerf writes a timing record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, round int) error {
	if om == nil {
		return nil
	}
	records := []PerfStatsCSV{stats.ToCSV(round)}
	if err := writeRows(records, om.perfFile, &om.perfHeaderWritten); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// writeRows marshals records with a header on the first call only.
func writeRows(records any, f *os.File, headerWritten *bool) error {
	if *headerWritten {
		return gocsv.MarshalWithoutHeaders(records, f)
	}
	if err := gocsv.Marshal(records, f); err != nil {
		return err
	}
	*headerWritten = true
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, f := range []*os.File{om.roundsFile, om.perfFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
