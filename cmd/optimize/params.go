package main

import (
	"fmt"

	"github.com/pthm-cable/multilevel/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	config.Param
	Default float64 // Starting point for the search
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// searchDim names a registry parameter and the range searched over.
type searchDim struct {
	name     string
	min, max float64
}

// defaultSearch is the standard search space. Bounds are narrower than the
// registry's so the normalized step size stays meaningful.
var defaultSearch = []searchDim{
	{"game.cost_of_prosociality", 0, 0.5},
	{"reproduction.extra_probability", 0, 1},
	{"population.target_group_size", 2, 60},
	{"meta_selection.coefficient", 0, 0.5},
	{"meta_selection.participation", 0, 1},
}

// NewParamVector creates the standard set of optimizable parameters, with
// defaults taken from base.
func NewParamVector(base *config.Config) (*ParamVector, error) {
	return newParamVector(base, defaultSearch)
}

func newParamVector(base *config.Config, search []searchDim) (*ParamVector, error) {
	pv := &ParamVector{}
	for _, s := range search {
		p, err := config.LookupParam(s.name)
		if err != nil {
			return nil, err
		}
		if s.min >= s.max {
			return nil, fmt.Errorf("param %s: empty range [%v, %v]", s.name, s.min, s.max)
		}
		p.Min, p.Max = s.min, s.max
		def := min(max(p.Get(base), p.Min), p.Max)
		pv.Specs = append(pv.Specs, ParamSpec{Param: p, Default: def})
	}
	return pv, nil
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// each maps f over the specs and the matching values.
func (pv *ParamVector) each(v []float64, f func(ParamSpec, float64) float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		out[i] = f(spec, v[i])
	}
	return out
}

// DefaultVector returns the starting point in raw units.
func (pv *ParamVector) DefaultVector() []float64 {
	return pv.each(make([]float64, len(pv.Specs)), func(s ParamSpec, _ float64) float64 { return s.Default })
}

// Normalize maps raw values onto [0,1] per parameter range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	return pv.each(raw, func(s ParamSpec, x float64) float64 { return (x - s.Min) / (s.Max - s.Min) })
}

// Denormalize is the inverse of Normalize.
func (pv *ParamVector) Denormalize(unit []float64) []float64 {
	return pv.each(unit, func(s ParamSpec, u float64) float64 { return s.Min + u*(s.Max-s.Min) })
}

// Clamp returns the values a config would actually hold: bounded, and
// rounded for integer parameters.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	cfg := config.Default()
	return pv.each(v, func(s ParamSpec, x float64) float64 {
		s.Set(cfg, x)
		return s.Get(cfg)
	})
}

// ApplyToConfig applies parameter values to cfg and refreshes derived values.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) error {
	for i, spec := range pv.Specs {
		spec.Set(cfg, values[i])
	}
	return cfg.Validate()
}

// ExtractFromConfig reads the current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return pv.each(make([]float64, len(pv.Specs)), func(s ParamSpec, _ float64) float64 { return s.Get(cfg) })
}
