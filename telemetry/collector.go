package telemetry

import (
	"errors"
	"log/slog"
)

// Collector accumulates group tallies and events within a round and produces
// RoundStats.
type Collector struct {
	round   int
	tallies []GroupTally

	// Event counters for the current round
	births int
	deaths int
}

// NewCollector creates a collector whose first flush is round 0.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordGroup records one group's end-of-round composition.
func (c *Collector) RecordGroup(size, prosocial int) {
	c.tallies = append(c.tallies, GroupTally{Size: size, Prosocial: prosocial})
}

// RecordBirths records offspring produced this round.
func (c *Collector) RecordBirths(n int) {
	c.births += n
}

// RecordDeaths records parents replaced this round.
func (c *Collector) RecordDeaths(n int) {
	c.deaths += n
}

// Round returns the round the next Flush will report.
func (c *Collector) Round() int {
	return c.round
}

// Flush produces RoundStats for the current round and resets counters for
// the next one.
func (c *Collector) Flush() RoundStats {
	stats := ComputeRoundStats(c.round, c.tallies)
	stats.Births = c.births
	stats.Deaths = c.deaths

	c.round++
	c.tallies = c.tallies[:0]
	c.births = 0
	c.deaths = 0

	return stats
}

// Recorder receives every flushed round.
type Recorder interface {
	Record(RoundStats) error
}

// Recorders fans a round out to several recorders.
type Recorders []Recorder

// Record calls every recorder, joining their errors.
func (rs Recorders) Record(s RoundStats) error {
	var errs []error
	for _, r := range rs {
		if err := r.Record(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// History keeps every round in memory.
type History struct {
	rounds []RoundStats
}

// Record appends s.
func (h *History) Record(s RoundStats) error {
	h.rounds = append(h.rounds, s)
	return nil
}

// Rounds returns all recorded rounds in order.
func (h *History) Rounds() []RoundStats {
	return h.rounds
}

// Final returns the last recorded round.
func (h *History) Final() (RoundStats, bool) {
	if len(h.rounds) == 0 {
		return RoundStats{}, false
	}
	return h.rounds[len(h.rounds)-1], true
}

// LogRecorder logs every round with slog.
type LogRecorder struct{}

// Record logs s.
func (LogRecorder) Record(s RoundStats) error {
	s.LogStats()
	return nil
}

// ExtinctionWatch logs once when the population first dies out.
type ExtinctionWatch struct {
	logged bool
}

// Record logs the round at which the population went extinct.
func (w *ExtinctionWatch) Record(s RoundStats) error {
	if s.Extinct() && !w.logged {
		slog.Warn("population extinct", "round", s.Round, "groups", s.Groups)
		w.logged = true
	}
	return nil
}
