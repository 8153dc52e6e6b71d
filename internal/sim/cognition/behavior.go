package cognition

import (
	"sort"

	"driftmoor.ai/internal/sim/geom"
)

// Status is the outcome of ticking a behavior tree node.
type Status int

const (
	Failure Status = iota
	Success
)

// Blackboard is the per-evaluation scratch space shared by tree nodes.
type Blackboard struct {
	Tick    uint64
	Self    AgentState
	Around  Surroundings
	Profile Profile
	Memory  []MemoryEntry

	Decision *Decision
}

// Node is a behavior tree node. Evaluation is synchronous and side-effect free apart from
// writing bb.Decision.
type Node interface {
	Tick(bb *Blackboard) Status
}

// Selector succeeds on the first child that succeeds.
type Selector []Node

func (s Selector) Tick(bb *Blackboard) Status {
	for _, n := range s {
		if n.Tick(bb) == Success {
			return Success
		}
	}
	return Failure
}

// Sequence succeeds only if every child succeeds, in order.
type Sequence []Node

func (s Sequence) Tick(bb *Blackboard) Status {
	for _, n := range s {
		if n.Tick(bb) != Success {
			return Failure
		}
	}
	return Success
}

// Condition is a leaf that tests the blackboard.
type Condition func(bb *Blackboard) bool

func (c Condition) Tick(bb *Blackboard) Status {
	if c(bb) {
		return Success
	}
	return Failure
}

// Action is a leaf that proposes a decision; returning false means it could not act.
type Action func(bb *Blackboard) (Decision, bool)

func (a Action) Tick(bb *Blackboard) Status {
	d, ok := a(bb)
	if !ok {
		return Failure
	}
	d.AgentID = bb.Self.ID
	bb.Decision = &d
	return Success
}

// Evaluate runs tree against bb and returns the proposed decision, if any.
func Evaluate(tree Node, bb *Blackboard) (Decision, bool) {
	bb.Decision = nil
	if tree.Tick(bb) != Success || bb.Decision == nil {
		return Decision{}, false
	}
	return *bb.Decision, true
}

const (
	retaliateWindowTicks = 20
	huntRadius           = 5
	gatherSearchRadius   = 12
	homeRadius           = 3
)

// DefaultTree is the fallback policy used whenever an agent is idle and no cognitive decision
// was applied this tick: flee when hurt, retaliate, hunt when aggressive, work the preferred
// skill, otherwise drift home.
func DefaultTree() Node {
	return Selector{
		Sequence{Condition(isDead), Action(idle)},
		Sequence{Condition(lowHealth), Condition(threatened), Action(fleeHome)},
		Sequence{Condition(attackedRecently), Action(retaliate)},
		Sequence{Condition(aggressive), Action(huntNearest)},
		Action(workSkill),
		Sequence{Condition(awayFromHome), Action(goHome)},
	}
}

func isDead(bb *Blackboard) bool { return bb.Self.Dead }

func idle(bb *Blackboard) (Decision, bool) { return Decision{Kind: DecisionIdle}, true }

func lowHealth(bb *Blackboard) bool {
	if bb.Self.MaxHP <= 0 {
		return false
	}
	return float64(bb.Self.HP)/float64(bb.Self.MaxHP) < bb.Profile.FleeBelow
}

func threatened(bb *Blackboard) bool {
	_, ok := recentAttacker(bb)
	return ok
}

func fleeHome(bb *Blackboard) (Decision, bool) {
	home := homeOf(bb)
	if bb.Self.Pos == home {
		return Decision{}, false
	}
	return Decision{Kind: DecisionMove, Dest: &home}, true
}

func attackedRecently(bb *Blackboard) bool {
	_, ok := recentAttacker(bb)
	return ok
}

func retaliate(bb *Blackboard) (Decision, bool) {
	id, ok := recentAttacker(bb)
	if !ok {
		return Decision{}, false
	}
	return Decision{Kind: DecisionAttack, TargetID: id}, true
}

// recentAttacker returns the newest attacker from memory that is still alive and visible.
func recentAttacker(bb *Blackboard) (string, bool) {
	for i := len(bb.Memory) - 1; i >= 0; i-- {
		e := bb.Memory[i]
		if e.Kind != MemoryAttacked && e.Kind != MemoryHitTaken {
			continue
		}
		if bb.Tick > e.Tick+retaliateWindowTicks {
			return "", false
		}
		for _, n := range bb.Around.Entities {
			if n.ID == e.Subject && !n.Dead {
				return n.ID, true
			}
		}
	}
	return "", false
}

func aggressive(bb *Blackboard) bool { return bb.Profile.Aggression >= 0.5 }

func huntNearest(bb *Blackboard) (Decision, bool) {
	best := ""
	bestD := huntRadius + 1
	for _, n := range bb.Around.Entities {
		if !n.Hostile || n.Dead {
			continue
		}
		if d := geom.Distance(bb.Self.Pos, n.Pos); d < bestD || (d == bestD && n.ID < best) {
			best, bestD = n.ID, d
		}
	}
	if best == "" {
		return Decision{}, false
	}
	return Decision{Kind: DecisionAttack, TargetID: best}, true
}

func workSkill(bb *Blackboard) (Decision, bool) {
	if bb.Profile.Skill == "" || bb.Self.FreeSlots <= 0 {
		return Decision{}, false
	}
	level := bb.Self.Skills[bb.Profile.Skill]
	if level < 1 {
		level = 1
	}
	nodes := make([]NodeInfo, 0, len(bb.Around.Nodes))
	for _, n := range bb.Around.Nodes {
		if n.Skill != bb.Profile.Skill || !n.Available || n.Level > level {
			continue
		}
		if geom.Distance(bb.Self.Pos, n.Pos) > gatherSearchRadius {
			continue
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return Decision{}, false
	}
	sort.Slice(nodes, func(i, j int) bool {
		di, dj := geom.Distance(bb.Self.Pos, nodes[i].Pos), geom.Distance(bb.Self.Pos, nodes[j].Pos)
		if di != dj {
			return di < dj
		}
		return nodes[i].ID < nodes[j].ID
	})
	n := nodes[0]
	if geom.Distance(bb.Self.Pos, n.Pos) <= 1 {
		return Decision{Kind: DecisionGather, NodeID: n.ID}, true
	}
	// Stop on the tile next to the node.
	path := geom.Path(bb.Self.Pos, n.Pos)
	dest := path[len(path)-2]
	return Decision{Kind: DecisionMove, Dest: &dest}, true
}

func awayFromHome(bb *Blackboard) bool {
	return geom.Distance(bb.Self.Pos, homeOf(bb)) > homeRadius
}

func goHome(bb *Blackboard) (Decision, bool) {
	home := homeOf(bb)
	return Decision{Kind: DecisionMove, Dest: &home}, true
}

func homeOf(bb *Blackboard) geom.Pos {
	if bb.Profile.Home.Area == "" {
		return bb.Self.Pos
	}
	return bb.Profile.Home
}
