package world

import (
	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/cognition"
	"driftmoor.ai/internal/sim/geom"
	"driftmoor.ai/internal/sim/simerr"
	"driftmoor.ai/internal/sim/world/logic/rolls"
	"driftmoor.ai/internal/sim/world/logic/xp"
)

// startGathering fails with InvalidTarget for a missing, depleted or distant node or a too-low
// level, CapacityExceeded for a full inventory, Busy if an interrupting action runs.
func (w *World) startGathering(e *Entity, nodeID string, nowTick uint64) error {
	a, err := w.gatherAction(e, nodeID)
	if err != nil {
		return err
	}
	return w.startAction(e, a, nowTick)
}

func (w *World) gatherAction(e *Entity, nodeID string) (Action, error) {
	n, ok := w.nodes[nodeID]
	if !ok {
		return Action{}, simerr.New(simerr.InvalidTarget, "unknown node %s", nodeID)
	}
	if n.Depleted {
		return Action{}, simerr.New(simerr.InvalidTarget, "node %s is depleted", nodeID)
	}
	if !geom.Within(e.Pos, n.Pos, w.cfg.GatherRange) {
		return Action{}, simerr.New(simerr.InvalidTarget, "node %s is out of reach", nodeID)
	}
	if e.Level(n.Def.Skill) < n.Def.Level {
		return Action{}, simerr.New(simerr.InvalidTarget, "%s level %d required", n.Def.Skill, n.Def.Level)
	}
	if !e.Inventory.CanAdd(n.Def.Item, 1, w.catalogs.Stackable(n.Def.Item)) {
		return Action{}, simerr.New(simerr.CapacityExceeded, "inventory full")
	}
	return Action{Kind: ActionGathering, NodeID: nodeID, Cooldown: n.Def.CooldownTicks}, nil
}

// systemSkilling advances gather cooldowns and timed crafts. Each gatherer that finishes its
// cooldown gets an independent roll against the node's shared remaining yield; entities are
// processed in id order so a node with one unit left pays out exactly once.
func (w *World) systemSkilling(nowTick uint64) {
	for _, id := range w.store.IDs() {
		e, _ := w.store.Get(id)
		if e.Dead {
			continue
		}
		switch e.Action.Kind {
		case ActionGathering:
			w.tickGather(e, nowTick)
		case ActionCrafting:
			w.tickCraft(e, nowTick)
		}
	}
}

func (w *World) tickGather(e *Entity, nowTick uint64) {
	n, ok := w.nodes[e.Action.NodeID]
	if !ok {
		w.cancelAction(e, "node missing", nowTick)
		return
	}
	if n.Depleted {
		w.cancelAction(e, "node depleted", nowTick)
		return
	}
	stackable := w.catalogs.Stackable(n.Def.Item)
	if !e.Inventory.CanAdd(n.Def.Item, 1, stackable) {
		w.cancelAction(e, "inventory full", nowTick)
		return
	}

	e = w.store.edit(e.ID)
	e.Action.Cooldown--
	if e.Action.Cooldown > 0 {
		return
	}
	e.Action.Cooldown = n.Def.CooldownTicks

	chance := rolls.GatherChance(n.Def.SuccessPermille, e.Level(n.Def.Skill), n.Def.Level)
	if !rolls.Permille(w.cfg.Seed, nowTick, e.ID, hashSalt("gather:"+n.ID), chance) {
		return
	}
	if !w.deplete(n, nowTick) {
		return
	}
	_ = e.Inventory.Add(n.Def.Item, 1, stackable)
	w.awardXP(e, n.Def.Skill, n.Def.XP, nowTick)
	w.remember(e.ID, nowTick, cognition.MemoryItemReceived, n.ID, "gathered "+n.Def.Item)
	w.emitNode(n, nowTick)
	if n.Depleted {
		w.finishAction(e)
	}
}

// awardXP adds XP and emits level_up when the level changes.
func (w *World) awardXP(e *Entity, skill string, amount int64, nowTick uint64) {
	if amount <= 0 || skill == "" {
		return
	}
	e = w.store.edit(e.ID)
	before := xp.Level(e.Skills[skill])
	e.Skills[skill] += amount
	if after := xp.Level(e.Skills[skill]); after > before {
		w.emit(protocol.Event{
			Tick: nowTick, Type: protocol.EventLevelUp, Area: e.Pos.Area, EntityID: e.ID, Skill: skill, Level: after,
		})
	}
}

func hashSalt(s string) uint64 { return rolls.Hash(0, 0, s, 0) }
