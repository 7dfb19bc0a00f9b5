// Package systems contains the per-group rules of the life cycle: the agent
// arena, social game, reproduction and migration policies.
package systems

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/multilevel/components"
)

// Arena stores every live agent as an ECS entity. Groups address agents by
// entity handle, so regrouping moves handles rather than agent data.
//
// Structural changes (Spawn, Despawn) are coordinator-only. While none are in
// progress, Genome and Ledger lookups for distinct entities may run
// concurrently.
type Arena struct {
	world   *ecs.World
	agents  *ecs.Map2[components.Genome, components.Ledger]
	genomes *ecs.Map1[components.Genome]
	ledgers *ecs.Map1[components.Ledger]
	filter  *ecs.Filter1[components.Genome]

	count int
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	world := ecs.NewWorld()
	return &Arena{
		world:   world,
		agents:  ecs.NewMap2[components.Genome, components.Ledger](world),
		genomes: ecs.NewMap1[components.Genome](world),
		ledgers: ecs.NewMap1[components.Ledger](world),
		filter:  ecs.NewFilter1[components.Genome](world),
	}
}

// Spawn creates an agent with the given genome and a zero ledger.
func (a *Arena) Spawn(g components.Genome) ecs.Entity {
	ledger := components.Ledger{}
	e := a.agents.NewEntity(&g, &ledger)
	a.count++
	return e
}

// Despawn removes an agent.
func (a *Arena) Despawn(e ecs.Entity) {
	a.world.RemoveEntity(e)
	a.count--
}

// Genome returns the agent's genome.
func (a *Arena) Genome(e ecs.Entity) *components.Genome {
	return a.genomes.Get(e)
}

// Ledger returns the agent's social game ledger.
func (a *Arena) Ledger(e ecs.Entity) *components.Ledger {
	return a.ledgers.Get(e)
}

// Alive reports whether e is a live agent.
func (a *Arena) Alive(e ecs.Entity) bool {
	return a.world.Alive(e)
}

// Len returns the number of live agents.
func (a *Arena) Len() int {
	return a.count
}

// CountPhenotypes tallies live agents by phenotype class with a full world
// query. Used to cross-check the incremental group tallies.
func (a *Arena) CountPhenotypes() (prosocial, selfish int) {
	query := a.filter.Query()
	for query.Next() {
		g := query.Get()
		if g.Phenotype().Prosocial() {
			prosocial++
		} else {
			selfish++
		}
	}
	return prosocial, selfish
}
