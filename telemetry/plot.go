package telemetry

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNothingToPlot is returned when every round is extinct.
var ErrNothingToPlot = errors.New("no living rounds to plot")

// PlotProsocial draws the prosocial proportion and the between-group std-dev
// per round and saves it as an image at path. Extinct rounds are skipped.
func PlotProsocial(rounds []RoundStats, title, path string) error {
	proportion := make(plotter.XYs, 0, len(rounds))
	spread := make(plotter.XYs, 0, len(rounds))
	for _, r := range rounds {
		if r.Extinct() {
			continue
		}
		proportion = append(proportion, plotter.XY{X: float64(r.Round), Y: r.ProsocialProportion})
		if r.ProsocialStdDev != NoSpread {
			spread = append(spread, plotter.XY{X: float64(r.Round), Y: r.ProsocialStdDev})
		}
	}
	if len(proportion) == 0 {
		return ErrNothingToPlot
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Round"
	p.Y.Label.Text = "Proportion"
	p.Y.Min = 0
	p.Y.Max = 1

	propLine, err := plotter.NewLine(proportion)
	if err != nil {
		return fmt.Errorf("proportion line: %w", err)
	}
	spreadLine, err := plotter.NewLine(spread)
	if err != nil {
		return fmt.Errorf("spread line: %w", err)
	}
	spreadLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(propLine, spreadLine)
	p.Legend.Add("prosocial", propLine)
	p.Legend.Add("group std-dev", spreadLine)
	p.Legend.Top = true

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	return nil
}
