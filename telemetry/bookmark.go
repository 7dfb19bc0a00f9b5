package telemetry

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkProsocialFixation BookmarkType = "prosocial_fixation"
	BookmarkProsocialLoss     BookmarkType = "prosocial_loss"
	BookmarkMajorityShift     BookmarkType = "majority_shift"
	BookmarkPopulationCrash   BookmarkType = "population_crash"
	BookmarkStableComposition BookmarkType = "stable_composition"
)

// Bookmark marks a notable round.
type Bookmark struct {
	Type        BookmarkType
	Round       int
	Description string
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"round", b.Round,
		"description", b.Description,
	)
}

const (
	crashFraction   = 0.30 // Drop from recent peak that counts as a crash
	stableRounds    = 5    // Consecutive low-spread rounds before stable triggers
	stableMaxSpread = 0.02 // Std dev of the population proportion over the window
)

// BookmarkDetector detects notable rounds. It implements Recorder.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []RoundStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	recentPeak   int  // peak population since the last crash
	fixated      bool // all agents prosocial last round
	lost         bool // prosocial genotype absent last round
	majority     bool // prosocial majority last round
	seenFirst    bool
	stableRounds int

	bookmarks []Bookmark
	log       bool
}

// NewBookmarkDetector creates a detector with the given history size. When
// log is set every bookmark is logged as it triggers.
func NewBookmarkDetector(historySize int, log bool) *BookmarkDetector {
	if historySize < stableRounds {
		historySize = stableRounds // minimum for stable composition detection
	}
	return &BookmarkDetector{
		history:     make([]RoundStats, historySize),
		historySize: historySize,
		log:         log,
	}
}

// Record checks a round and keeps any bookmarks it triggers.
func (bd *BookmarkDetector) Record(s RoundStats) error {
	for _, b := range bd.Check(s) {
		if bd.log {
			b.LogBookmark()
		}
		bd.bookmarks = append(bd.bookmarks, b)
	}
	return nil
}

// Bookmarks returns every bookmark triggered so far.
func (bd *BookmarkDetector) Bookmarks() []Bookmark {
	return bd.bookmarks
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats RoundStats) []Bookmark {
	var bookmarks []Bookmark

	if !stats.Extinct() {
		if b := bd.checkFixation(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkLoss(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkMajorityShift(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}
	if b := bd.checkCrash(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)

	if b := bd.checkStable(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	if stats.Population > bd.recentPeak {
		bd.recentPeak = stats.Population
	}
	bd.seenFirst = true

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats RoundStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// recent returns the last n rounds in order, or nil if fewer were recorded.
func (bd *BookmarkDetector) recent(n int) []RoundStats {
	count := bd.historyIdx
	if bd.historyFull {
		count = bd.historySize
	}
	if count < n {
		return nil
	}
	out := make([]RoundStats, n)
	for i := 0; i < n; i++ {
		idx := (bd.historyIdx - n + i + bd.historySize) % bd.historySize
		out[i] = bd.history[idx]
	}
	return out
}

func (bd *BookmarkDetector) checkFixation(stats RoundStats) *Bookmark {
	fixated := stats.Selfish == 0
	defer func() { bd.fixated = fixated }()
	if !fixated || bd.fixated {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkProsocialFixation,
		Round:       stats.Round,
		Description: fmt.Sprintf("All %d agents prosocial", stats.Population),
	}
}

func (bd *BookmarkDetector) checkLoss(stats RoundStats) *Bookmark {
	lost := stats.Prosocial == 0
	defer func() { bd.lost = lost }()
	if !lost || bd.lost {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkProsocialLoss,
		Round:       stats.Round,
		Description: fmt.Sprintf("Prosocial phenotype lost from %d agents", stats.Population),
	}
}

func (bd *BookmarkDetector) checkMajorityShift(stats RoundStats) *Bookmark {
	majority := stats.ProsocialProportion > 0.5
	defer func() { bd.majority = majority }()
	if !bd.seenFirst || majority == bd.majority {
		return nil
	}
	side := "selfish"
	if majority {
		side = "prosocial"
	}
	return &Bookmark{
		Type:        BookmarkMajorityShift,
		Round:       stats.Round,
		Description: fmt.Sprintf("Majority turned %s at proportion %.2f", side, stats.ProsocialProportion),
	}
}

func (bd *BookmarkDetector) checkCrash(stats RoundStats) *Bookmark {
	if bd.recentPeak == 0 {
		return nil
	}

	drop := 1.0 - float64(stats.Population)/float64(bd.recentPeak)
	if drop <= crashFraction {
		return nil
	}

	// Reset peak after crash
	oldPeak := bd.recentPeak
	bd.recentPeak = stats.Population

	return &Bookmark{
		Type:        BookmarkPopulationCrash,
		Round:       stats.Round,
		Description: fmt.Sprintf("Population crashed %.0f%% from peak %d to %d", drop*100, oldPeak, stats.Population),
	}
}

func (bd *BookmarkDetector) checkStable(stats RoundStats) *Bookmark {
	window := bd.recent(stableRounds)
	if stats.Extinct() || window == nil {
		bd.stableRounds = 0
		return nil
	}

	proportions := make([]float64, len(window))
	for i, r := range window {
		if r.Extinct() {
			bd.stableRounds = 0
			return nil
		}
		proportions[i] = r.ProsocialProportion
	}

	_, spread := stat.PopMeanStdDev(proportions, nil)
	if spread < stableMaxSpread {
		bd.stableRounds++
	} else {
		bd.stableRounds = 0
	}

	if bd.stableRounds == 1 { // trigger once per stable stretch
		return &Bookmark{
			Type:        BookmarkStableComposition,
			Round:       stats.Round,
			Description: fmt.Sprintf("Prosocial proportion held at %.2f over %d rounds", stats.ProsocialProportion, stableRounds),
		}
	}

	return nil
}
