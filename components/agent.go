// Package components defines the ECS components carried by each agent.
package components

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrUnsupported marks variants that are modelled but not built, currently
// sexual reproduction. It is distinct from configuration errors.
var ErrUnsupported = errors.New("unsupported: sexual reproduction is not implemented")

// ExtinctProportion is reported in place of a prosocial proportion when there
// is nobody to count.
const ExtinctProportion = -0.1

// Genotype is the heritable label of an agent.
type Genotype uint8

const (
	GenotypeA Genotype = iota // altruist
	GenotypeS                 // selfish
	GenotypeR                 // reciprocator
)

func (g Genotype) String() string {
	switch g {
	case GenotypeA:
		return "A"
	case GenotypeS:
		return "S"
	case GenotypeR:
		return "R"
	default:
		return fmt.Sprintf("Genotype(%d)", uint8(g))
	}
}

// Phenotype is the behavioral category a genotype maps to.
type Phenotype uint8

const (
	Altruistic Phenotype = iota
	Selfish
	Reciprocating
)

func (p Phenotype) String() string {
	switch p {
	case Altruistic:
		return "altruistic"
	case Selfish:
		return "selfish"
	case Reciprocating:
		return "reciprocating"
	default:
		return fmt.Sprintf("Phenotype(%d)", uint8(p))
	}
}

// Prosocial reports whether p is anything other than Selfish.
func (p Phenotype) Prosocial() bool {
	return p != Selfish
}

// Phenotype maps the genotype to its fixed phenotype.
func (g Genotype) Phenotype() Phenotype {
	switch g {
	case GenotypeA:
		return Altruistic
	case GenotypeR:
		return Reciprocating
	default:
		return Selfish
	}
}

// Mode is the reproduction mode of an agent or group.
type Mode uint8

const (
	Asexual Mode = iota
	Sexual
)

func (m Mode) String() string {
	if m == Sexual {
		return "sexual"
	}
	return "asexual"
}

// ParseMode parses "asexual" or "sexual".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "asexual":
		return Asexual, nil
	case "sexual":
		return Sexual, nil
	default:
		return 0, fmt.Errorf("unknown reproduction mode %q", s)
	}
}

// Supported returns ErrUnsupported for modes the engine cannot run.
func (m Mode) Supported() error {
	if m == Sexual {
		return ErrUnsupported
	}
	return nil
}

// Genome is the heritable component of an agent.
type Genome struct {
	Genotype     Genotype
	Opposite     Genotype // The lineage's paired genotype, received on mutation
	Mode         Mode
	MutationRate float64
}

// NewLineage returns a founder genome for genotype g in a population that
// pairs the prosocial genotype with S.
func NewLineage(g, prosocial Genotype, rate float64) Genome {
	opposite := GenotypeS
	if g == GenotypeS {
		opposite = prosocial
	}
	return Genome{Genotype: g, Opposite: opposite, Mode: Asexual, MutationRate: rate}
}

// Phenotype returns the phenotype of the genome's genotype.
func (g Genome) Phenotype() Phenotype {
	return g.Genotype.Phenotype()
}

// AttemptReproduction draws once and produces an offspring when the draw is
// below probability. Out-of-range probabilities are not rejected: anything
// >= 1 always succeeds and anything <= 0 never does.
func (g Genome) AttemptReproduction(rng *rand.Rand, probability float64) (Genome, bool) {
	if rng.Float64() >= probability {
		return Genome{}, false
	}
	return g.offspring(rng), true
}

// Mate is the sexual counterpart of AttemptReproduction.
func (g Genome) Mate(rng *rand.Rand, probability float64, mate Genome) (Genome, bool, error) {
	return Genome{}, false, ErrUnsupported
}

func (g Genome) offspring(rng *rand.Rand) Genome {
	if rng.Float64() < 1.0-g.MutationRate {
		return g
	}
	return Genome{
		Genotype:     g.Opposite,
		Opposite:     g.Genotype,
		Mode:         g.Mode,
		MutationRate: g.MutationRate,
	}
}

// Ledger holds per-generation social game state. Both fields are zero at birth.
type Ledger struct {
	Cost  float64 // Subtracted from the base reproduction probability
	Bonus int     // Extra reproduction attempts granted by others
}
