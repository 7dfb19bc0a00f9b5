// Package telemetry provides round statistics, output, bookmarks and snapshots.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/multilevel/components"
)

// NoSpread is reported as the std-dev of group proportions when no group has
// members. It is distinct from components.ExtinctProportion.
const NoSpread = -1.0

// RoundStats holds population statistics observed at the end of a round.
// Round 0 is the state right after the founding assignment.
type RoundStats struct {
	Round      int `csv:"round"`
	Population int `csv:"population"`
	Groups     int `csv:"groups"`

	// Phenotype classes
	Prosocial int `csv:"prosocial"`
	Selfish   int `csv:"selfish"`

	// Events during the round
	Births int `csv:"births"`
	Deaths int `csv:"deaths"`

	// Population-wide proportion, ExtinctProportion when nobody is alive
	ProsocialProportion float64 `csv:"prosocial_proportion"`

	// Spread of per-group proportions over non-empty groups, NoSpread if none
	ProsocialStdDev float64 `csv:"prosocial_stddev"`
	GroupPropP10    float64 `csv:"group_prop_p10"`
	GroupPropP50    float64 `csv:"group_prop_p50"`
	GroupPropP90    float64 `csv:"group_prop_p90"`

	// Group sizes
	EmptyGroups   int     `csv:"empty_groups"`
	MeanGroupSize float64 `csv:"mean_group_size"`
}

// Extinct reports whether nobody was alive at the end of the round.
func (s RoundStats) Extinct() bool {
	return s.Population == 0
}

// GroupTally is one group's phenotype counts.
type GroupTally struct {
	Size      int
	Prosocial int
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeProportionStats returns the population std-dev and percentiles of
// per-group proportions. An empty input yields NoSpread and zero percentiles.
func ComputeProportionStats(values []float64) (std, p10, p50, p90 float64) {
	if len(values) == 0 {
		return NoSpread, 0, 0, 0
	}

	std = stat.PopStdDev(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return std, p10, p50, p90
}

// ComputeRoundStats aggregates group tallies. Empty groups count toward
// Groups and EmptyGroups but are left out of every proportion statistic.
func ComputeRoundStats(round int, tallies []GroupTally) RoundStats {
	s := RoundStats{Round: round, Groups: len(tallies)}

	proportions := make([]float64, 0, len(tallies))
	for _, t := range tallies {
		s.Population += t.Size
		s.Prosocial += t.Prosocial
		if t.Size == 0 {
			s.EmptyGroups++
			continue
		}
		proportions = append(proportions, float64(t.Prosocial)/float64(t.Size))
	}
	s.Selfish = s.Population - s.Prosocial

	if s.Population == 0 {
		s.ProsocialProportion = components.ExtinctProportion
	} else {
		s.ProsocialProportion = float64(s.Prosocial) / float64(s.Population)
	}
	if s.Groups > 0 {
		s.MeanGroupSize = float64(s.Population) / float64(s.Groups)
	}

	s.ProsocialStdDev, s.GroupPropP10, s.GroupPropP50, s.GroupPropP90 = ComputeProportionStats(proportions)
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s RoundStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("round", s.Round),
		slog.Int("population", s.Population),
		slog.Int("groups", s.Groups),
		slog.Int("prosocial", s.Prosocial),
		slog.Int("selfish", s.Selfish),
		slog.Int("births", s.Births),
		slog.Int("deaths", s.Deaths),
		slog.Float64("prosocial_proportion", s.ProsocialProportion),
		slog.Float64("prosocial_stddev", s.ProsocialStdDev),
		slog.Int("empty_groups", s.EmptyGroups),
	)
}

// LogStats logs the round stats using slog.
func (s RoundStats) LogStats() {
	slog.Info("stats",
		"round", s.Round,
		"population", s.Population,
		"groups", s.Groups,
		"prosocial", s.Prosocial,
		"selfish", s.Selfish,
		"births", s.Births,
		"deaths", s.Deaths,
		"prosocial_proportion", s.ProsocialProportion,
		"prosocial_stddev", s.ProsocialStdDev,
		"group_prop_p50", s.GroupPropP50,
		"empty_groups", s.EmptyGroups,
		"mean_group_size", s.MeanGroupSize,
	)
}
