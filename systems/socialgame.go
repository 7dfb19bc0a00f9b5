package systems

import (
	"math/rand/v2"

	"github.com/pthm-cable/multilevel/components"
	"github.com/pthm-cable/multilevel/config"
)

// PlaySocialGame makes one pass over the members in order. Altruists grant a
// bonus chance to a drawn beneficiary and always pay the cost. Reciprocators
// only act, and only pay, when the drawn candidate is also a reciprocator.
// Writes go to ledgers only, never to the member list.
func (g *Group) PlaySocialGame(cfg *config.Config, rng *rand.Rand) {
	n := len(g.members)
	if n < 2 {
		return
	}
	strong := cfg.Derived.Prosociality == config.Strong
	cost := cfg.Game.CostOfProsociality

	for i, actor := range g.members {
		switch g.arena.Genome(actor).Phenotype() {
		case components.Altruistic:
			beneficiary := g.members[drawPartner(rng, i, n, strong)]
			g.arena.Ledger(beneficiary).Bonus++
			g.arena.Ledger(actor).Cost += cost

		case components.Reciprocating:
			candidate := g.members[drawPartner(rng, i, n, strong)]
			if g.arena.Genome(candidate).Phenotype() != components.Reciprocating {
				continue
			}
			g.arena.Ledger(candidate).Bonus++
			g.arena.Ledger(actor).Cost += cost
		}
	}
}

// drawPartner returns a member index for actor self. Strong prosociality
// draws from the other n-1 members by shifting past self.
func drawPartner(rng *rand.Rand, self, n int, strong bool) int {
	if !strong {
		return rng.IntN(n)
	}
	j := rng.IntN(n - 1)
	if j >= self {
		j++
	}
	return j
}
