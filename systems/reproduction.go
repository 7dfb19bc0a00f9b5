package systems

import (
	"math"
	"math/rand/v2"

	"github.com/pthm-cable/multilevel/components"
	"github.com/pthm-cable/multilevel/config"
)

// Breed runs every member's reproduction attempts and appends the offspring
// genomes to dst[:0]. It reads the arena but never changes it, so distinct
// groups may breed concurrently.
//
// Per member: base_chances attempts at base_probability minus accrued cost,
// then one attempt per bonus chance at extra_probability. Meta-selection
// attempts follow once every member has bred.
func (g *Group) Breed(cfg *config.Config, rng *rand.Rand, dst []components.Genome) []components.Genome {
	dst = dst[:0]
	rc := cfg.Reproduction

	for _, e := range g.members {
		genome := *g.arena.Genome(e)
		ledger := g.arena.Ledger(e)

		p := rc.BaseProbability - ledger.Cost
		for range rc.BaseChances {
			if child, ok := genome.AttemptReproduction(rng, p); ok {
				dst = append(dst, child)
			}
		}
		for range ledger.Bonus {
			if child, ok := genome.AttemptReproduction(rng, rc.ExtraProbability); ok {
				dst = append(dst, child)
			}
		}
	}

	return g.metaSelect(cfg, rng, dst)
}

// metaSelect grants a successful group extra attempts. The probability scales
// with the group's growth so far; each chance goes to a random former member.
func (g *Group) metaSelect(cfg *config.Config, rng *rand.Rand, dst []components.Genome) []components.Genome {
	ms := cfg.MetaSelection
	start := len(g.members)
	if ms.Coefficient <= 0 || start == 0 {
		return dst
	}

	growth := float64(len(dst)) / float64(start)
	p := growth * ms.Coefficient
	chances := int(math.Floor(ms.Participation * float64(start)))

	for range chances {
		parent := *g.arena.Genome(g.members[rng.IntN(start)])
		if child, ok := parent.AttemptReproduction(rng, p); ok {
			dst = append(dst, child)
		}
	}
	return dst
}

// Supplant replaces the member set with progeny: every current member is
// despawned and each genome becomes a fresh agent with a zero ledger.
// Structural arena change, coordinator only.
func (g *Group) Supplant(progeny []components.Genome) {
	for _, e := range g.members {
		g.arena.Despawn(e)
	}
	g.Reset()
	for _, genome := range progeny {
		g.add(g.arena.Spawn(genome), genome.Phenotype())
	}
}

// DeathAndReproduction breeds and supplants in one call.
func (g *Group) DeathAndReproduction(cfg *config.Config, rng *rand.Rand) {
	g.Supplant(g.Breed(cfg, rng, nil))
}
