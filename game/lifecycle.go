package game

import (
	"math"
	"math/rand/v2"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/multilevel/components"
	"github.com/pthm-cable/multilevel/systems"
)

// seedEpsilon absorbs float error in p*N, so 0.07*100 seeds 7 and not 8.
const seedEpsilon = 1e-9

// seedPopulation spawns the founders: ceil(p*N) carry the prosocial
// genotype, the rest are selfish.
func (s *Simulation) seedPopulation() []ecs.Entity {
	cfg := s.cfg
	n := cfg.Derived.InitialSize
	prosocial := int(math.Ceil(cfg.Population.SeedProportionProsocial*float64(n) - seedEpsilon))
	prosocial = min(prosocial, n)

	pro := cfg.Derived.ProsocialGenotype
	founders := make([]ecs.Entity, 0, n)
	for i := 0; i < n; i++ {
		genotype := components.GenotypeS
		if i < prosocial {
			genotype = pro
		}
		genome := components.NewLineage(genotype, pro, cfg.Population.MutationRate)
		genome.Mode = cfg.Derived.Mode
		founders = append(founders, s.arena.Spawn(genome))
	}
	return founders
}

// assign deals the founders into the founding groups with a shuffled
// round-robin, whatever the migration policy.
func (s *Simulation) assign(founders []ecs.Entity) error {
	if err := s.resizeGroups(s.cfg.Derived.InitialGroups); err != nil {
		return err
	}
	return systems.RandomMigration{}.Redistribute(s.rng, founders, s.groups)
}

// supplant replaces every group's members with the progeny bred this round.
// Coordinator only: this is the only place agents are created or destroyed
// after seeding.
func (s *Simulation) supplant() {
	for i, g := range s.groups {
		progeny := s.parallel.progeny[i]
		s.collector.RecordDeaths(g.Size())
		s.collector.RecordBirths(len(progeny))
		g.Supplant(progeny)
	}
}

// migrate merges every member into one pool, rebuilds the group set at
// max(1, N/target) groups (none when N is 0) and hands the pool to the
// migration policy. Policies that keep groups intact skip the rebuild.
func (s *Simulation) migrate() error {
	if !s.migration.Regroups() {
		return s.migration.Redistribute(s.rng, nil, s.groups)
	}

	s.pool = s.pool[:0]
	for _, g := range s.groups {
		s.pool = append(s.pool, g.Members()...)
		g.Reset()
	}

	if err := s.resizeGroups(groupCount(len(s.pool), s.cfg.Population.TargetGroupSize)); err != nil {
		return err
	}
	return s.migration.Redistribute(s.rng, s.pool, s.groups)
}

// groupCount is the number of groups for a population of n.
func groupCount(n, target int) int {
	if n == 0 {
		return 0
	}
	return max(1, n/target)
}

// resizeGroups sets the group count to n, reusing existing empty groups.
func (s *Simulation) resizeGroups(n int) error {
	for len(s.groups) < n {
		g, err := systems.NewGroup(s.arena, s.cfg.Derived.Mode)
		if err != nil {
			return err
		}
		s.groups = append(s.groups, g)
	}
	s.groups = s.groups[:n]
	return nil
}

// reseedGroups gives group i a generator derived from (seed, round, i), so
// results do not depend on how groups are spread over workers.
func (s *Simulation) reseedGroups(round int) {
	for len(s.groupSrc) < len(s.groups) {
		src := rand.NewPCG(0, 0)
		s.groupSrc = append(s.groupSrc, src)
		s.groupRNG = append(s.groupRNG, rand.New(src))
	}
	base := mix(s.cfg.Run.Seed ^ mix(uint64(round)))
	for i := range s.groups {
		s.groupSrc[i].Seed(base, mix(base+uint64(i)))
	}
}

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
