package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one round.
const (
	PhasePlay     = "play"     // social game and breeding, fanned out across groups
	PhaseSupplant = "supplant" // parents despawned, progeny spawned
	PhaseMigrate  = "migrate"
	PhaseRecord   = "record"
)

var phases = []string{PhasePlay, PhaseSupplant, PhaseMigrate, PhaseRecord}

// PerfSample holds timing data for a single round.
type PerfSample struct {
	RoundDuration time.Duration
	Phases        map[string]time.Duration
}

// PerfCollector tracks round timing over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	roundStart    time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a collector averaging over windowSize rounds.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 10
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartRound begins timing a new round.
func (p *PerfCollector) StartRound() {
	p.roundStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase ends the previous phase, if any, and begins timing phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndRound finishes timing the current round and records the sample.
func (p *PerfCollector) EndRound() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		RoundDuration: now.Sub(p.roundStart),
		Phases:        p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated timing statistics.
type PerfStats struct {
	AvgRoundDuration time.Duration
	MinRoundDuration time.Duration
	MaxRoundDuration time.Duration

	// Phase percentages of total round time
	PhasePct map[string]float64

	RoundsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{PhasePct: make(map[string]float64)}
	}

	var total, minRound, maxRound time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.RoundDuration
		if i == 0 || s.RoundDuration < minRound {
			minRound = s.RoundDuration
		}
		if s.RoundDuration > maxRound {
			maxRound = s.RoundDuration
		}
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)
	pct := make(map[string]float64, len(phaseSum))
	for phase, sum := range phaseSum {
		if total > 0 {
			pct[phase] = float64(sum) / float64(total) * 100
		}
	}

	var perSec float64
	if avg > 0 {
		perSec = float64(time.Second) / float64(avg)
	}

	return PerfStats{
		AvgRoundDuration: avg,
		MinRoundDuration: minRound,
		MaxRoundDuration: maxRound,
		PhasePct:         pct,
		RoundsPerSecond:  perSec,
	}
}

// LogStats logs timing statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_round_us", s.AvgRoundDuration.Microseconds(),
		"min_round_us", s.MinRoundDuration.Microseconds(),
		"max_round_us", s.MaxRoundDuration.Microseconds(),
		"rounds_per_sec", int(s.RoundsPerSecond),
	}
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of timing stats.
type PerfStatsCSV struct {
	Round        int     `csv:"round"`
	AvgRoundUS   int64   `csv:"avg_round_us"`
	MinRoundUS   int64   `csv:"min_round_us"`
	MaxRoundUS   int64   `csv:"max_round_us"`
	RoundsPerSec float64 `csv:"rounds_per_sec"`
	PlayPct      float64 `csv:"play_pct"`
	SupplantPct  float64 `csv:"supplant_pct"`
	MigratePct   float64 `csv:"migrate_pct"`
	RecordPct    float64 `csv:"record_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(round int) PerfStatsCSV {
	return PerfStatsCSV{
		Round:        round,
		AvgRoundUS:   s.AvgRoundDuration.Microseconds(),
		MinRoundUS:   s.MinRoundDuration.Microseconds(),
		MaxRoundUS:   s.MaxRoundDuration.Microseconds(),
		RoundsPerSec: s.RoundsPerSecond,
		PlayPct:      s.PhasePct[PhasePlay],
		SupplantPct:  s.PhasePct[PhaseSupplant],
		MigratePct:   s.PhasePct[PhaseMigrate],
		RecordPct:    s.PhasePct[PhaseRecord],
	}
}
