package systems

import (
	"errors"
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/multilevel/components"
)

var (
	// ErrModeMismatch is returned when an agent's reproduction mode differs
	// from its target group's. The group is left unchanged.
	ErrModeMismatch = errors.New("agent reproduction mode does not match group")

	// ErrEmptyGroup is returned for proportions of a group with no members.
	ErrEmptyGroup = errors.New("group has no members")

	// ErrNoGroups is returned when agents must be placed but no group exists.
	ErrNoGroups = errors.New("no groups to assign agents to")
)

// Group is an independent life-cycle engine over a set of agents. It never
// reads or writes another group's agents, which is what makes running
// distinct groups concurrently safe.
type Group struct {
	arena   *Arena
	mode    components.Mode
	members []ecs.Entity

	prosocial int
	selfish   int
}

// NewGroup creates an empty group in arena.
func NewGroup(arena *Arena, mode components.Mode) (*Group, error) {
	if err := mode.Supported(); err != nil {
		return nil, err
	}
	return &Group{arena: arena, mode: mode}, nil
}

// Size returns the number of members.
func (g *Group) Size() int {
	return len(g.members)
}

// Members returns the member handles. The slice is owned by the group.
func (g *Group) Members() []ecs.Entity {
	return g.members
}

// Mode returns the group's reproduction mode.
func (g *Group) Mode() components.Mode {
	return g.mode
}

// ProsocialCount returns the number of prosocial members.
func (g *Group) ProsocialCount() int {
	return g.prosocial
}

// SelfishCount returns the number of selfish members.
func (g *Group) SelfishCount() int {
	return g.selfish
}

// AddMember appends e to the group and updates the phenotype tally.
func (g *Group) AddMember(e ecs.Entity) error {
	genome := g.arena.Genome(e)
	if genome.Mode != g.mode {
		return fmt.Errorf("%w: agent is %v, group is %v", ErrModeMismatch, genome.Mode, g.mode)
	}
	g.add(e, genome.Phenotype())
	return nil
}

func (g *Group) add(e ecs.Entity, p components.Phenotype) {
	g.members = append(g.members, e)
	if p.Prosocial() {
		g.prosocial++
	} else {
		g.selfish++
	}
}

// ProportionProsocial returns the fraction of prosocial members. An empty
// group yields components.ExtinctProportion and ErrEmptyGroup.
func (g *Group) ProportionProsocial() (float64, error) {
	if len(g.members) == 0 {
		return components.ExtinctProportion, ErrEmptyGroup
	}
	return float64(g.prosocial) / float64(len(g.members)), nil
}

// Reset empties the group without touching the arena, keeping capacity.
func (g *Group) Reset() {
	g.members = g.members[:0]
	g.prosocial = 0
	g.selfish = 0
}
