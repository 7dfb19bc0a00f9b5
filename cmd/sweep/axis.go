package main

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/multilevel/config"
)

// Axis is one swept parameter and the values it takes.
type Axis struct {
	Param  config.Param
	Values []float64
}

// parseAxis parses "name:from:to:steps". A single step sweeps only from.
func parseAxis(s string) (Axis, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return Axis{}, fmt.Errorf("axis %q: want name:from:to:steps", s)
	}

	p, err := config.LookupParam(parts[0])
	if err != nil {
		return Axis{}, err
	}
	from, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Axis{}, fmt.Errorf("axis %q: from: %w", s, err)
	}
	to, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Axis{}, fmt.Errorf("axis %q: to: %w", s, err)
	}
	steps, err := strconv.Atoi(parts[3])
	if err != nil || steps < 1 {
		return Axis{}, fmt.Errorf("axis %q: steps must be a positive integer", s)
	}
	if from < p.Min || to > p.Max || from > p.Max || to < p.Min {
		return Axis{}, fmt.Errorf("axis %q: outside [%v, %v]", s, p.Min, p.Max)
	}

	values := []float64{from}
	if steps > 1 {
		values = floats.Span(make([]float64, steps), from, to)
	}
	return Axis{Param: p, Values: values}, nil
}

// Cell is one grid point.
type Cell struct {
	X, Y float64
}

// grid returns the cells of x by y in row-major order. A nil y sweeps x only.
func grid(x Axis, y *Axis) []Cell {
	ys := []float64{0}
	if y != nil {
		ys = y.Values
	}
	cells := make([]Cell, 0, len(x.Values)*len(ys))
	for _, yv := range ys {
		for _, xv := range x.Values {
			cells = append(cells, Cell{X: xv, Y: yv})
		}
	}
	return cells
}
