package systems

import (
	"math/rand/v2"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/multilevel/config"
)

// Migration redistributes a merged population across groups between rounds.
type Migration interface {
	// Name identifies the policy in logs and output.
	Name() string
	// Regroups reports whether the engine should merge all members into one
	// pool and rebuild the group set before calling Redistribute.
	Regroups() bool
	// Redistribute places every agent into one of groups. The agents slice
	// may be reordered.
	Redistribute(rng *rand.Rand, agents []ecs.Entity, groups []*Group) error
}

// NewMigration returns the policy for p.
func NewMigration(p config.MigrationPolicy) Migration {
	switch p {
	case config.MigrationBiased:
		return BiasedMigration{}
	case config.MigrationIsolation:
		return Isolation{}
	default:
		return RandomMigration{}
	}
}

// RandomMigration shuffles and deals agents round-robin, giving floor/ceil
// balanced group sizes.
type RandomMigration struct{}

func (RandomMigration) Name() string   { return "random" }
func (RandomMigration) Regroups() bool { return true }

func (RandomMigration) Redistribute(rng *rand.Rand, agents []ecs.Entity, groups []*Group) error {
	if len(agents) == 0 {
		return nil
	}
	if len(groups) == 0 {
		return ErrNoGroups
	}
	shuffle(rng, agents)
	for i, e := range agents {
		if err := groups[i%len(groups)].AddMember(e); err != nil {
			return err
		}
	}
	return nil
}

// BiasedMigration stratifies by phenotype. Agents are taken in pairs and
// groups in pairs; a mixed pair sends its prosocial agent to the group that is
// already more prosocial.
type BiasedMigration struct{}

func (BiasedMigration) Name() string   { return "biased" }
func (BiasedMigration) Regroups() bool { return true }

func (BiasedMigration) Redistribute(rng *rand.Rand, agents []ecs.Entity, groups []*Group) error {
	if len(agents) == 0 {
		return nil
	}
	if len(groups) == 0 {
		return ErrNoGroups
	}
	shuffle(rng, agents)

	next := len(agents)
	pop := func() ecs.Entity {
		next--
		return agents[next]
	}

	for next > 0 {
		for gi := 0; gi < len(groups) && next > 0; gi += 2 {
			// Trailing group or last agent: assign directly
			if gi+1 == len(groups) || next == 1 {
				if err := groups[gi].AddMember(pop()); err != nil {
					return err
				}
				continue
			}
			a, b := pop(), pop()
			if err := placePair(groups[gi], groups[gi+1], a, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func placePair(g1, g2 *Group, a, b ecs.Entity) error {
	aPro := g1.arena.Genome(a).Phenotype().Prosocial()
	bPro := g1.arena.Genome(b).Phenotype().Prosocial()

	to1, to2 := a, b
	if aPro != bPro {
		pro, self := a, b
		if bPro {
			pro, self = b, a
		}
		r1, err1 := g1.ProportionProsocial()
		r2, err2 := g2.ProportionProsocial()
		switch {
		case err1 != nil:
			to1, to2 = self, pro
		case err2 != nil:
			to1, to2 = pro, self
		case r1 > r2:
			to1, to2 = pro, self
		default:
			to1, to2 = self, pro
		}
	}

	if err := g1.AddMember(to1); err != nil {
		return err
	}
	return g2.AddMember(to2)
}

// Isolation never moves anyone. Groups keep their identity across rounds,
// including groups that die out.
type Isolation struct{}

func (Isolation) Name() string   { return "isolation" }
func (Isolation) Regroups() bool { return false }

func (Isolation) Redistribute(*rand.Rand, []ecs.Entity, []*Group) error {
	return nil
}

func shuffle(rng *rand.Rand, agents []ecs.Entity) {
	rng.Shuffle(len(agents), func(i, j int) {
		agents[i], agents[j] = agents[j], agents[i]
	})
}
