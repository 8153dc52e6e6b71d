package cognition

import (
	"sort"

	"driftmoor.ai/internal/sim/simerr"
)

// RaidGroup is a set of agents sharing one objective and one decision authority.
type RaidGroup struct {
	ID              string
	Objective       string
	ThinkEveryTicks int

	members       map[string]bool
	nextThinkTick uint64
	backoffUntil  uint64
}

// Members returns the member ids in sorted order.
func (g *RaidGroup) Members() []string {
	out := make([]string, 0, len(g.members))
	for id := range g.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (g *RaidGroup) Size() int { return len(g.members) }

func (g *RaidGroup) key() string { return "raid:" + g.ID }

// Coordinator tracks raid membership. An agent belongs to at most one group at a time; groups
// reference agents by id only.
type Coordinator struct {
	maxMembers int
	groups     map[string]*RaidGroup
	memberOf   map[string]string
}

func NewCoordinator(maxMembers int) *Coordinator {
	return &Coordinator{
		maxMembers: maxMembers,
		groups:     map[string]*RaidGroup{},
		memberOf:   map[string]string{},
	}
}

// Define registers a group. Redefining an existing group updates its objective and cadence and
// keeps its members.
func (c *Coordinator) Define(def RaidDef) *RaidGroup {
	if g, ok := c.groups[def.ID]; ok {
		g.Objective = def.Objective
		g.ThinkEveryTicks = def.ThinkEveryTicks
		return g
	}
	g := &RaidGroup{
		ID:              def.ID,
		Objective:       def.Objective,
		ThinkEveryTicks: def.ThinkEveryTicks,
		members:         map[string]bool{},
	}
	c.groups[def.ID] = g
	return g
}

func (c *Coordinator) Join(groupID, agentID string) error {
	g, ok := c.groups[groupID]
	if !ok {
		return simerr.New(simerr.NotFound, "raid %s", groupID)
	}
	if cur, ok := c.memberOf[agentID]; ok {
		if cur == groupID {
			return nil
		}
		return simerr.New(simerr.Busy, "%s already in raid %s", agentID, cur)
	}
	if c.maxMembers > 0 && len(g.members) >= c.maxMembers {
		return simerr.New(simerr.CapacityExceeded, "raid %s is full", groupID)
	}
	g.members[agentID] = true
	c.memberOf[agentID] = groupID
	return nil
}

// Leave removes agentID from its group and returns the group it left.
func (c *Coordinator) Leave(agentID string) (*RaidGroup, bool) {
	gid, ok := c.memberOf[agentID]
	if !ok {
		return nil, false
	}
	delete(c.memberOf, agentID)
	g := c.groups[gid]
	delete(g.members, agentID)
	return g, true
}

func (c *Coordinator) GroupOf(agentID string) (*RaidGroup, bool) {
	gid, ok := c.memberOf[agentID]
	if !ok {
		return nil, false
	}
	return c.groups[gid], true
}

func (c *Coordinator) Group(id string) (*RaidGroup, bool) {
	g, ok := c.groups[id]
	return g, ok
}

// Groups returns every defined group sorted by id.
func (c *Coordinator) Groups() []*RaidGroup {
	out := make([]*RaidGroup, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
