package world

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/cognition"
	"driftmoor.ai/internal/sim/geom"
	"driftmoor.ai/internal/sim/simerr"
	"driftmoor.ai/internal/sim/world/logic/rolls"
)

const (
	skillAttack  = "attack"
	skillDefence = "defence"

	attackXPPerDamage = 4
	defenceXPPerBlock = 1
)

// startCombat engages targetID. The defender's own action is never changed by being attacked.
func (w *World) startCombat(e *Entity, targetID string, nowTick uint64) error {
	t, err := w.validateTarget(e, targetID)
	if err != nil {
		return err
	}
	return w.startAction(e, Action{Kind: ActionCombat, TargetID: t.ID}, nowTick)
}

func (w *World) validateTarget(e *Entity, targetID string) (*Entity, error) {
	if targetID == e.ID {
		return nil, simerr.New(simerr.InvalidTarget, "cannot attack yourself")
	}
	t, ok := w.store.Get(targetID)
	if !ok {
		return nil, simerr.New(simerr.NotFound, "entity %s", targetID)
	}
	if t.Dead {
		return nil, simerr.New(simerr.InvalidTarget, "%s is dead", targetID)
	}
	if t.Pos.Area != e.Pos.Area {
		return nil, simerr.New(simerr.InvalidTarget, "%s is in another area", targetID)
	}
	return t, nil
}

// systemCombat resolves one swing per engaged attacker. Attackers out of range close in by one
// tile instead of swinging.
func (w *World) systemCombat(nowTick uint64) {
	for _, id := range w.store.IDs() {
		e, ok := w.store.Get(id)
		if !ok || e.Dead || e.Action.Kind != ActionCombat {
			continue
		}
		t, ok := w.store.Get(e.Action.TargetID)
		if !ok || t.Dead || t.Pos.Area != e.Pos.Area {
			w.cancelAction(e, "target lost", nowTick)
			continue
		}
		if !geom.Within(e.Pos, t.Pos, w.cfg.AttackRange) {
			w.stepToward(e, t.Pos)
			continue
		}
		w.swing(e, t, nowTick)
	}
}

func (w *World) swing(a, d *Entity, nowTick uint64) {
	attack := a.Attack + a.Level(skillAttack)
	defence := d.Defence + d.Level(skillDefence)
	maxHit := a.MaxHit + a.Level(skillAttack)/5
	hit, dmg := rolls.Swing(w.cfg.Seed, nowTick, a.ID, d.ID, attack, defence, maxHit)
	if !hit {
		w.awardXP(d, skillDefence, defenceXPPerBlock, nowTick)
		return
	}

	d = w.store.edit(d.ID)
	if dmg > d.HP {
		dmg = d.HP
	}
	d.HP -= dmg
	d.Generation++
	if d.NPC != nil {
		d.NPC.LastAttacker = a.ID
	}
	w.awardXP(a, skillAttack, int64(dmg)*attackXPPerDamage, nowTick)
	w.remember(d.ID, nowTick, cognition.MemoryHitTaken, a.ID, fmt.Sprintf("took %d from %s", dmg, a.Name))
	w.remember(a.ID, nowTick, cognition.MemoryHitDealt, d.ID, fmt.Sprintf("hit %s for %d", d.Name, dmg))

	if d.HP < 0 {
		w.log.WithFields(logrus.Fields{"entity": d.ID, "hp": d.HP, "tick": nowTick}).Error("negative hp, clamping")
		d.HP = 0
	}
	if d.HP == 0 {
		w.kill(d, a, nowTick)
	}
}

// kill resolves a death: the victim stops acting, the killer's combat ends and NPC loot goes to
// the killer.
func (w *World) kill(victim, killer *Entity, nowTick uint64) {
	victim = w.store.edit(victim.ID)
	w.cancelAction(victim, "died", nowTick)
	victim.Dead = true
	victim.Generation++
	victim.RespawnAt = nowTick + uint64(w.cfg.RespawnTicks)
	w.emit(protocol.Event{Tick: nowTick, Type: protocol.EventDeath, Area: victim.Pos.Area, EntityID: victim.ID, Ref: killer.ID})
	w.remember(victim.ID, nowTick, cognition.MemoryDied, killer.ID, "killed by "+killer.Name)
	w.remember(killer.ID, nowTick, cognition.MemoryKilled, victim.ID, "killed "+victim.Name)

	if killer.Action.Kind == ActionCombat && killer.Action.TargetID == victim.ID {
		w.finishAction(killer)
	}
	if victim.NPC != nil {
		w.dropLoot(victim, killer, nowTick)
	}
}

func (w *World) dropLoot(victim, killer *Entity, nowTick uint64) {
	def := w.catalogs.NPCs.ByType[victim.NPC.Type]
	var got, lost []protocol.ItemStack
	killer = w.store.edit(killer.ID)
	for _, it := range def.Loot {
		stack := protocol.ItemStack{Item: it.Item, Count: it.Count}
		if err := killer.Inventory.Add(it.Item, it.Count, w.catalogs.Stackable(it.Item)); err != nil {
			lost = append(lost, stack)
			continue
		}
		got = append(got, stack)
	}
	if len(got) > 0 {
		w.emit(protocol.Event{Tick: nowTick, Type: protocol.EventLoot, Area: killer.Pos.Area, EntityID: killer.ID, Ref: victim.ID, Items: got})
		w.remember(killer.ID, nowTick, cognition.MemoryItemReceived, victim.ID, "looted "+victim.Name)
	}
	if len(lost) > 0 {
		w.emit(protocol.Event{Tick: nowTick, Type: protocol.EventLootLost, Area: killer.Pos.Area, EntityID: killer.ID, Ref: victim.ID, Items: lost})
	}
}

// systemEntityRespawn brings dead entities back at home with full health.
func (w *World) systemEntityRespawn(nowTick uint64) {
	for _, id := range w.store.IDs() {
		e, _ := w.store.Get(id)
		if !e.Dead || nowTick < e.RespawnAt {
			continue
		}
		e = w.store.edit(id)
		e.Dead = false
		e.HP = e.MaxHP
		e.Pos = e.Home
		e.RespawnAt = 0
		e.Action = Action{Kind: ActionIdle}
		if e.NPC != nil {
			e.NPC.LastAttacker = ""
		}
	}
}
