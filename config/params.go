package config

import (
	"fmt"
	"math"
	"sort"
)

// Param is a numeric configuration field addressable by name, used by the
// sweep and optimize commands to vary one value across runs.
type Param struct {
	Name    string  // Matches the YAML path, e.g. "game.cost_of_prosociality"
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Integer bool    // Rounded before being applied

	get func(*Config) float64
	set func(*Config, float64)
}

// Get reads the parameter from cfg.
func (p Param) Get(cfg *Config) float64 {
	return p.get(cfg)
}

// Set writes v into cfg, clamped to [Min, Max] and rounded for integer params.
// Callers must call cfg.Validate afterwards to refresh derived values.
func (p Param) Set(cfg *Config, v float64) {
	v = math.Max(p.Min, math.Min(p.Max, v))
	if p.Integer {
		v = math.Round(v)
	}
	p.set(cfg, v)
}

var params = map[string]Param{
	"population.target_group_size": {
		Min: 1, Max: 1000, Integer: true,
		get: func(c *Config) float64 { return float64(c.Population.TargetGroupSize) },
		set: func(c *Config, v float64) { c.Population.TargetGroupSize = int(v) },
	},
	"population.num_groups": {
		Min: 1, Max: 10000, Integer: true,
		get: func(c *Config) float64 { return float64(c.Population.NumGroups) },
		set: func(c *Config, v float64) { c.Population.NumGroups = int(v) },
	},
	"population.seed_proportion_prosocial": {
		Min: 0, Max: 1,
		get: func(c *Config) float64 { return c.Population.SeedProportionProsocial },
		set: func(c *Config, v float64) { c.Population.SeedProportionProsocial = v },
	},
	"population.mutation_rate": {
		Min: 0, Max: 1,
		get: func(c *Config) float64 { return c.Population.MutationRate },
		set: func(c *Config, v float64) { c.Population.MutationRate = v },
	},
	"game.cost_of_prosociality": {
		Min: 0, Max: 1,
		get: func(c *Config) float64 { return c.Game.CostOfProsociality },
		set: func(c *Config, v float64) { c.Game.CostOfProsociality = v },
	},
	"reproduction.base_chances": {
		Min: 0, Max: 10, Integer: true,
		get: func(c *Config) float64 { return float64(c.Reproduction.BaseChances) },
		set: func(c *Config, v float64) { c.Reproduction.BaseChances = int(v) },
	},
	"reproduction.base_probability": {
		Min: 0, Max: 1,
		get: func(c *Config) float64 { return c.Reproduction.BaseProbability },
		set: func(c *Config, v float64) { c.Reproduction.BaseProbability = v },
	},
	"reproduction.extra_probability": {
		Min: 0, Max: 1,
		get: func(c *Config) float64 { return c.Reproduction.ExtraProbability },
		set: func(c *Config, v float64) { c.Reproduction.ExtraProbability = v },
	},
	"meta_selection.coefficient": {
		Min: 0, Max: 1,
		get: func(c *Config) float64 { return c.MetaSelection.Coefficient },
		set: func(c *Config, v float64) { c.MetaSelection.Coefficient = v },
	},
	"meta_selection.participation": {
		Min: 0, Max: 1,
		get: func(c *Config) float64 { return c.MetaSelection.Participation },
		set: func(c *Config, v float64) { c.MetaSelection.Participation = v },
	},
}

func init() {
	for name, p := range params {
		p.Name = name
		params[name] = p
	}
}

// LookupParam returns the named parameter.
func LookupParam(name string) (Param, error) {
	p, ok := params[name]
	if !ok {
		return Param{}, fmt.Errorf("%w: unknown parameter %q", ErrInvalid, name)
	}
	return p, nil
}

// ParamNames returns all parameter names in sorted order.
func ParamNames() []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
