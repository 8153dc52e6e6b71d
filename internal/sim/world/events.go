package world

import (
	"encoding/json"

	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/cognition"
	"driftmoor.ai/internal/sim/geom"
)

func (w *World) emit(ev protocol.Event) { w.events = append(w.events, ev) }

// speak broadcasts text and lets every agent within hearing range remember it.
func (w *World) speak(e *Entity, text string, nowTick uint64) {
	w.emit(protocol.Event{Tick: nowTick, Type: protocol.EventSpeak, Area: e.Pos.Area, EntityID: e.ID, Text: text})
	for _, id := range w.store.IDs() {
		if id == e.ID {
			continue
		}
		l, _ := w.store.Get(id)
		if l.Kind != KindAgent || l.Dead || !geom.Within(l.Pos, e.Pos, w.cfg.HearingRange) {
			continue
		}
		w.remember(id, nowTick, cognition.MemoryHeard, e.ID, e.Name+": "+text)
	}
}

func (w *World) remember(id string, nowTick uint64, kind, subject, text string) {
	if w.cog == nil {
		return
	}
	w.cog.Remember(id, cognition.MemoryEntry{Tick: nowTick, Kind: kind, Subject: subject, Text: text})
}

// diffEntity returns the fields of cur that differ from prev. ok is false when nothing changed.
func diffEntity(prev, cur protocol.EntityState, known bool) (protocol.EntityDelta, bool) {
	d := protocol.EntityDelta{ID: cur.ID, Generation: cur.Generation}
	if !known {
		d.Kind = cur.Kind
		pos, hp, dead, act, inv := cur.Pos, cur.HP, cur.Dead, cur.Action, cur.Inventory
		d.Pos, d.HP, d.Dead, d.Action, d.Inventory = &pos, &hp, &dead, &act, &inv
		d.Skills = cur.Skills
		return d, true
	}
	changed := prev.Generation != cur.Generation
	if prev.Pos != cur.Pos {
		pos := cur.Pos
		d.Pos = &pos
		changed = true
	}
	if prev.HP != cur.HP {
		hp := cur.HP
		d.HP = &hp
		changed = true
	}
	if prev.Dead != cur.Dead {
		dead := cur.Dead
		d.Dead = &dead
		changed = true
	}
	if !sameAction(prev.Action, cur.Action) {
		act := cur.Action
		d.Action = &act
		changed = true
	}
	for s, v := range cur.Skills {
		if prev.Skills[s] != v {
			if d.Skills == nil {
				d.Skills = map[string]protocol.SkillView{}
			}
			d.Skills[s] = v
			changed = true
		}
	}
	if !sameStacks(prev.Inventory, cur.Inventory) {
		inv := cur.Inventory
		d.Inventory = &inv
		changed = true
	}
	return d, changed
}

func sameAction(a, b protocol.ActionView) bool {
	if a.Kind != b.Kind || a.NodeID != b.NodeID || a.RecipeID != b.RecipeID || a.TargetID != b.TargetID {
		return false
	}
	if (a.Dest == nil) != (b.Dest == nil) {
		return false
	}
	return a.Dest == nil || *a.Dest == *b.Dest
}

func sameStacks(a, b []protocol.ItemStack) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// emitBatch turns this tick's dirty entities into diffs, appends them to the queued events and
// delivers one EVENT_BATCH per session with the events of its area plus those addressed to it.
func (w *World) emitBatch(nowTick uint64) {
	dirty, removed := w.store.takeDirty()
	for _, r := range removed {
		w.emit(protocol.Event{Tick: nowTick, Type: protocol.EventEntityRemoved, Area: r.Area, EntityID: r.ID})
	}
	for _, id := range dirty {
		e, ok := w.store.Get(id)
		if !ok {
			continue
		}
		cur := e.State()
		prev, known := w.lastSent[id]
		d, changed := diffEntity(prev, cur, known)
		w.lastSent[id] = cur
		if !changed {
			continue
		}
		w.emit(protocol.Event{Tick: nowTick, Type: protocol.EventEntityDiff, Area: e.Pos.Area, EntityID: id, Diff: &d})
	}

	if len(w.clients) == 0 || len(w.events) == 0 {
		return
	}
	for _, id := range sortedKeys(w.clients) {
		cl := w.clients[id]
		e, ok := w.store.Get(id)
		if !ok {
			continue
		}
		var mine []protocol.Event
		for _, ev := range w.events {
			if ev.To != "" {
				if ev.To == id {
					mine = append(mine, ev)
				}
				continue
			}
			if ev.Area == e.Pos.Area {
				mine = append(mine, ev)
			}
		}
		if len(mine) == 0 {
			continue
		}
		b, err := json.Marshal(protocol.EventBatchMsg{
			Type: protocol.TypeEventBatch, ProtocolVersion: protocol.Version, Tick: nowTick, Events: mine,
		})
		if err != nil {
			w.log.WithError(err).Error("encode event batch")
			continue
		}
		select {
		case cl.Out <- b:
		default:
			w.log.WithField("entity", id).Warn("session outbox full, dropping event batch")
		}
	}
}

// Events returns the events emitted during the last tick.
func (w *World) Events() []protocol.Event {
	return append([]protocol.Event(nil), w.events...)
}
