package world

import (
	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/cognition"
	"driftmoor.ai/internal/sim/simerr"
)

func (w *World) interrupting(k ActionKind) bool { return w.cfg.Interrupting[string(k)] }

// startAction is the only way an entity's action changes. Callers validate the new action first;
// startAction itself fails only with Busy, before touching anything.
//
// Rules: the same action again is a no-op; an interrupting action cancels whatever runs; a
// non-interrupting action cannot replace an interrupting one; otherwise the current action is
// cancelled and replaced. Idle always cancels.
func (w *World) startAction(e *Entity, next Action, nowTick uint64) error {
	if e.Dead {
		return simerr.New(simerr.InvalidTarget, "%s is dead", e.ID)
	}
	if next.Kind == ActionIdle {
		w.cancelAction(e, "stopped", nowTick)
		return nil
	}
	cur := e.Action
	if cur.Active() {
		if cur.Same(next) {
			return nil
		}
		if !w.interrupting(next.Kind) && w.interrupting(cur.Kind) {
			return simerr.New(simerr.Busy, "%s is %s", e.ID, cur.Kind)
		}
		w.cancelAction(e, "replaced by "+string(next.Kind), nowTick)
	}
	e = w.store.edit(e.ID)
	e.Action = next
	w.onActionStart(e, nowTick)
	return nil
}

// supersede cancels whatever the entity is doing and then starts next. Cognition decisions use it:
// an agent's own plan always yields to its newer plan.
func (w *World) supersede(e *Entity, next Action, nowTick uint64) error {
	if e.Dead {
		return simerr.New(simerr.InvalidTarget, "%s is dead", e.ID)
	}
	if e.Action.Active() && !e.Action.Same(next) {
		w.cancelAction(e, "replaced by "+string(next.Kind), nowTick)
	}
	return w.startAction(e, next, nowTick)
}

// cancelAction runs the current action's cancellation hooks and leaves the entity idle.
func (w *World) cancelAction(e *Entity, reason string, nowTick uint64) {
	if !e.Action.Active() {
		return
	}
	e = w.store.edit(e.ID)
	prev := e.Action
	switch prev.Kind {
	case ActionGathering:
		if n := w.nodes[prev.NodeID]; n != nil {
			delete(n.Gatherers, e.ID)
		}
	case ActionCrafting:
		// Inputs are only consumed on completion, so there is nothing to refund.
	}
	e.Action = Action{Kind: ActionIdle}
	w.emit(protocol.Event{
		Tick:     nowTick,
		Type:     protocol.EventActionStopped,
		Area:     e.Pos.Area,
		EntityID: e.ID,
		Ref:      string(prev.Kind),
		Message:  reason,
	})
}

func (w *World) onActionStart(e *Entity, nowTick uint64) {
	switch e.Action.Kind {
	case ActionGathering:
		if n := w.nodes[e.Action.NodeID]; n != nil {
			n.Gatherers[e.ID] = true
		}
	case ActionCombat:
		t, ok := w.store.Get(e.Action.TargetID)
		if !ok {
			return
		}
		if t.NPC != nil {
			w.store.edit(t.ID).NPC.LastAttacker = e.ID
		}
		w.remember(t.ID, nowTick, cognition.MemoryAttacked, e.ID, e.Name+" attacked")
	}
}

// finishAction ends an action that ran to completion. No hooks or events: the diff shows it.
func (w *World) finishAction(e *Entity) {
	e = w.store.edit(e.ID)
	if e.Action.Kind == ActionGathering {
		if n := w.nodes[e.Action.NodeID]; n != nil {
			delete(n.Gatherers, e.ID)
		}
	}
	e.Action = Action{Kind: ActionIdle}
}
