// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/multilevel/components"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is returned when a configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all simulation configuration parameters.
// A loaded Config is treated as read-only by the engine.
type Config struct {
	Population    PopulationConfig    `yaml:"population"`
	Game          GameConfig          `yaml:"game"`
	Reproduction  ReproductionConfig  `yaml:"reproduction"`
	MetaSelection MetaSelectionConfig `yaml:"meta_selection"`
	Migration     MigrationConfig     `yaml:"migration"`
	Run           RunConfig           `yaml:"run"`
	Parallel      ParallelConfig      `yaml:"parallel"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-" validate:"-"`
}

// PopulationConfig holds seeding and group sizing parameters.
type PopulationConfig struct {
	NumGroups               int     `yaml:"num_groups" validate:"gte=0"`
	InitialSize             int     `yaml:"initial_size" validate:"gte=0"`
	TargetGroupSize         int     `yaml:"target_group_size" validate:"gte=1"`
	SeedProportionProsocial float64 `yaml:"seed_proportion_prosocial" validate:"gte=0,lte=1"`
	Reproduction            string  `yaml:"reproduction" validate:"oneof=asexual sexual"`
	MutationRate            float64 `yaml:"mutation_rate" validate:"gte=0,lte=1"`
}

// GameConfig holds social game parameters.
type GameConfig struct {
	Prosociality       string  `yaml:"prosociality" validate:"oneof=strong weak"`
	ProsocialPhenotype string  `yaml:"prosocial_phenotype" validate:"oneof=altruistic reciprocating"`
	CostOfProsociality float64 `yaml:"cost_of_prosociality" validate:"gte=0"`
}

// ReproductionConfig holds death-and-reproduction parameters.
type ReproductionConfig struct {
	BaseChances      int     `yaml:"base_chances" validate:"gte=0"`
	BaseProbability  float64 `yaml:"base_probability"`  // Reduced per agent by accrued cost
	ExtraProbability float64 `yaml:"extra_probability"` // Per bonus chance
}

// MetaSelectionConfig holds group-level extra reproduction parameters.
// A zero coefficient disables meta-selection.
type MetaSelectionConfig struct {
	Coefficient   float64 `yaml:"coefficient" validate:"gte=0"`
	Participation float64 `yaml:"participation" validate:"gte=0,lte=1"`
}

// MigrationConfig selects the between-round redistribution policy.
type MigrationConfig struct {
	Policy string `yaml:"policy" validate:"oneof=random biased isolation"`
}

// RunConfig holds run length and seeding.
type RunConfig struct {
	Rounds int    `yaml:"rounds" validate:"gte=0"`
	Seed   uint64 `yaml:"seed"`
}

// ParallelConfig holds worker pool parameters for the play/reproduce phase.
type ParallelConfig struct {
	Enabled   bool `yaml:"enabled"`
	Workers   int  `yaml:"workers" validate:"gte=0"`   // 0 = GOMAXPROCS
	Threshold int  `yaml:"threshold" validate:"gte=0"` // Minimum group count for fan-out
}

// TelemetryConfig holds output parameters.
type TelemetryConfig struct {
	LogStats bool `yaml:"log_stats"`
	Plot     bool `yaml:"plot"`
}

// Prosociality controls whether a prosocial actor may benefit itself.
type Prosociality uint8

const (
	// Weak lets the actor be drawn as its own beneficiary.
	Weak Prosociality = iota
	// Strong excludes the actor from the candidate set.
	Strong
)

func (p Prosociality) String() string {
	if p == Strong {
		return "strong"
	}
	return "weak"
}

// MigrationPolicy identifies a migration strategy.
type MigrationPolicy uint8

const (
	MigrationRandom MigrationPolicy = iota
	MigrationBiased
	MigrationIsolation
)

func (m MigrationPolicy) String() string {
	switch m {
	case MigrationBiased:
		return "biased"
	case MigrationIsolation:
		return "isolation"
	default:
		return "random"
	}
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Mode              components.Mode
	Prosociality      Prosociality
	ProsocialGenotype components.Genotype
	Migration         MigrationPolicy
	InitialSize       int // Population.InitialSize, or NumGroups*TargetGroupSize
	InitialGroups     int // Population.NumGroups, or derived from InitialSize
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults. Panics if they do not parse, which
// would be a build defect.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field ranges and enum values, then recomputes derived values.
// Sexual reproduction is reported as components.ErrUnsupported so callers can
// tell an unbuilt variant apart from a misconfiguration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Population.NumGroups == 0 && c.Population.InitialSize == 0 {
		return fmt.Errorf("%w: one of population.num_groups or population.initial_size must be set", ErrInvalid)
	}
	return c.computeDerived()
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	mode, err := components.ParseMode(c.Population.Reproduction)
	if err != nil {
		return fmt.Errorf("population.reproduction: %w", err)
	}
	if err := mode.Supported(); err != nil {
		return fmt.Errorf("population.reproduction: %w", err)
	}
	c.Derived.Mode = mode

	switch c.Game.Prosociality {
	case "strong":
		c.Derived.Prosociality = Strong
	case "weak":
		c.Derived.Prosociality = Weak
	default:
		return fmt.Errorf("%w: unknown prosociality %q", ErrInvalid, c.Game.Prosociality)
	}

	switch c.Game.ProsocialPhenotype {
	case "altruistic":
		c.Derived.ProsocialGenotype = components.GenotypeA
	case "reciprocating":
		c.Derived.ProsocialGenotype = components.GenotypeR
	default:
		return fmt.Errorf("%w: unknown prosocial phenotype %q", ErrInvalid, c.Game.ProsocialPhenotype)
	}

	switch c.Migration.Policy {
	case "random":
		c.Derived.Migration = MigrationRandom
	case "biased":
		c.Derived.Migration = MigrationBiased
	case "isolation":
		c.Derived.Migration = MigrationIsolation
	default:
		return fmt.Errorf("%w: unknown migration policy %q", ErrInvalid, c.Migration.Policy)
	}

	size := c.Population.InitialSize
	if size == 0 {
		size = c.Population.NumGroups * c.Population.TargetGroupSize
	}
	c.Derived.InitialSize = size

	groups := c.Population.NumGroups
	if groups == 0 {
		groups = max(1, size/c.Population.TargetGroupSize)
	}
	if size == 0 {
		groups = 0
	}
	c.Derived.InitialGroups = groups
	return nil
}

// Clone returns a copy that can be modified without affecting c.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
