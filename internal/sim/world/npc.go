package world

import (
	"driftmoor.ai/internal/sim/geom"
	"driftmoor.ai/internal/sim/world/logic/rolls"
)

const (
	saltWanderX = 11
	saltWanderY = 12
)

func (w *World) loadNPCs() error {
	for _, p := range w.catalogs.World.NPCs {
		def := w.catalogs.NPCs.ByType[p.Type]
		e := w.newEntity("npc:"+p.ID, KindNPC, def.Name, p.Pos)
		e.HP, e.MaxHP = def.HP, def.HP
		e.Attack, e.Defence, e.MaxHit = def.Attack, def.Defence, def.MaxHit
		e.NPC = &NPCState{Type: p.Type}
		if err := w.store.Create(e); err != nil {
			return err
		}
	}
	return nil
}

// systemNPC runs the fixed mob rules for every NPC not already walking: drop a chase that left
// the leash, retaliate, aggro on nearby non-NPCs, otherwise wander around home now and then.
// It never touches the cognition layer.
func (w *World) systemNPC(nowTick uint64) {
	for _, id := range w.store.IDs() {
		e, _ := w.store.Get(id)
		if e.NPC == nil || e.Dead || e.Action.Kind == ActionMoving {
			continue
		}
		def := w.catalogs.NPCs.ByType[e.NPC.Type]

		if e.Action.Kind == ActionCombat {
			t, ok := w.store.Get(e.Action.TargetID)
			if !ok || t.Dead || !w.inLeash(e, t.Pos) {
				_ = w.startMove(e, e.Home, nowTick)
			}
			continue
		}

		if target := w.npcTarget(e, def.Aggressive, def.AggroRadius); target != "" {
			_ = w.startCombat(e, target, nowTick)
			continue
		}

		every := w.cfg.NPC.WanderEveryTicks
		if every <= 0 || def.WanderRadius <= 0 || e.Action.Active() {
			continue
		}
		if (nowTick+rolls.Hash(w.cfg.Seed, 0, id, 0))%uint64(every) != 0 {
			continue
		}
		r := def.WanderRadius
		dest := geom.Pos{
			Area: e.Home.Area,
			X:    e.Home.X + rolls.Intn(w.cfg.Seed, nowTick, id, saltWanderX, 2*r+1) - r,
			Y:    e.Home.Y + rolls.Intn(w.cfg.Seed, nowTick, id, saltWanderY, 2*r+1) - r,
		}
		if b, ok := w.catalogs.Area(dest.Area); ok {
			dest = b.Clamp(dest)
		}
		if dest != e.Pos {
			_ = w.startMove(e, dest, nowTick)
		}
	}
}

// npcTarget picks who an NPC should fight: its last attacker first, then, for aggressive NPCs,
// the nearest living non-NPC inside the aggro radius.
func (w *World) npcTarget(e *Entity, aggressive bool, radius int) string {
	if id := e.NPC.LastAttacker; id != "" {
		if t, ok := w.store.Get(id); ok && !t.Dead && t.Pos.Area == e.Pos.Area && w.inLeash(e, t.Pos) {
			return id
		}
	}
	if !aggressive || radius <= 0 {
		return ""
	}
	best, bestD := "", radius+1
	for _, id := range w.store.IDs() {
		t, _ := w.store.Get(id)
		if t.NPC != nil || t.Dead || t.Pos.Area != e.Pos.Area || !w.inLeash(e, t.Pos) {
			continue
		}
		if d := geom.Distance(e.Pos, t.Pos); d < bestD {
			best, bestD = id, d
		}
	}
	return best
}

func (w *World) inLeash(e *Entity, p geom.Pos) bool {
	leash := w.cfg.NPC.LeashRadius
	return leash <= 0 || geom.Within(e.Home, p, leash)
}
