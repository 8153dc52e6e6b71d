package world

import (
	"github.com/sirupsen/logrus"

	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/catalogs"
	"driftmoor.ai/internal/sim/geom"
)

// ResourceNode is a depletable, respawning resource. Nodes are created at world load and never
// destroyed.
type ResourceNode struct {
	ID          string
	Pos         geom.Pos
	Def         catalogs.NodeDef
	Remaining   int
	Depleted    bool
	RespawnTick uint64

	// Gatherers is the contention set: entities currently gathering here.
	Gatherers map[string]bool
}

func (n *ResourceNode) State() protocol.NodeState {
	s := protocol.NodeState{
		ID:        n.ID,
		Type:      n.Def.Type,
		Pos:       toPosition(n.Pos),
		Remaining: n.Remaining,
		Capacity:  n.Def.Capacity,
		Depleted:  n.Depleted,
	}
	if n.Depleted {
		s.RespawnTick = n.RespawnTick
	}
	return s
}

func (w *World) loadNodes() {
	for _, p := range w.catalogs.World.Nodes {
		def := w.catalogs.Nodes.ByType[p.Type]
		w.nodes[p.ID] = &ResourceNode{
			ID:        p.ID,
			Pos:       p.Pos,
			Def:       def,
			Remaining: def.Capacity,
			Gatherers: map[string]bool{},
		}
	}
}

func (w *World) Node(id string) (*ResourceNode, bool) {
	n, ok := w.nodes[id]
	return n, ok
}

func (w *World) nodeStates() []protocol.NodeState {
	out := make([]protocol.NodeState, 0, len(w.nodes))
	for _, id := range sortedKeys(w.nodes) {
		out = append(out, w.nodes[id].State())
	}
	return out
}

func (w *World) emitNode(n *ResourceNode, nowTick uint64) {
	st := n.State()
	w.emit(protocol.Event{Tick: nowTick, Type: protocol.EventNodeUpdate, Area: n.Pos.Area, Node: &st})
}

// deplete takes one unit from n. Remaining never goes below zero; an attempt to do so is a bug,
// logged with the node state and clamped.
func (w *World) deplete(n *ResourceNode, nowTick uint64) bool {
	if n.Depleted || n.Remaining <= 0 {
		if n.Remaining < 0 {
			w.log.WithFields(logrus.Fields{
				"node": n.ID, "remaining": n.Remaining, "depleted": n.Depleted, "tick": nowTick,
			}).Error("negative node capacity, clamping")
			n.Remaining = 0
		}
		return false
	}
	n.Remaining--
	if n.Remaining == 0 {
		n.Depleted = true
		n.RespawnTick = nowTick + uint64(n.Def.RespawnTicks)
	}
	return true
}

// systemNodeRespawn restores depleted nodes on their own schedule, whether or not anyone is
// gathering or watching.
func (w *World) systemNodeRespawn(nowTick uint64) {
	for _, id := range sortedKeys(w.nodes) {
		n := w.nodes[id]
		if n.Remaining < 0 {
			w.log.WithFields(logrus.Fields{"node": n.ID, "remaining": n.Remaining, "tick": nowTick}).Error("negative node capacity, clamping")
			n.Remaining = 0
		}
		if !n.Depleted || nowTick < n.RespawnTick {
			continue
		}
		n.Remaining = n.Def.Capacity
		n.Depleted = false
		n.RespawnTick = 0
		w.emitNode(n, nowTick)
	}
}
