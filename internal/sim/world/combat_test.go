package world

import (
	"testing"

	"driftmoor.ai/internal/protocol"
)

func TestCombat_KillLootAndRespawn(t *testing.T) {
	w := testWorld(t, nil)
	p := joinAll(t, w, "ada")[0]
	chicken := "npc:chicken1"
	c := mustEntity(t, w, chicken)
	place(w, p, valley(c.Pos.X+1, c.Pos.Y))
	gen := c.Generation

	send(w, p, protocol.IntentMsg{Intent: protocol.IntentAttack, TargetID: chicken})
	w.StepOnce()
	if c.Generation <= gen {
		t.Fatalf("target generation not advanced by player attack")
	}
	if c.NPC.LastAttacker != p {
		t.Fatalf("last attacker=%q", c.NPC.LastAttacker)
	}

	var diedAt uint64
	for i := 0; i < 200 && !c.Dead; i++ {
		diedAt = w.CurrentTick()
		w.StepOnce()
	}
	if !c.Dead {
		t.Fatalf("chicken survived 200 ticks")
	}
	if !hasEvent(w, protocol.EventDeath, chicken) || !hasEvent(w, protocol.EventLoot, p) {
		t.Fatalf("expected death and loot events")
	}
	e := mustEntity(t, w, p)
	if e.Inventory.Count("bones") != 1 || e.Inventory.Count("feather") != 3 {
		t.Fatalf("loot: %+v", e.Inventory.Slots)
	}
	if e.Action.Kind != ActionIdle || c.Action.Kind != ActionIdle {
		t.Fatalf("actions after death: killer=%s victim=%s", e.Action.Kind, c.Action.Kind)
	}
	if e.Skills["attack"] != int64(4*c.MaxHP) {
		t.Fatalf("attack xp=%d want %d", e.Skills["attack"], 4*c.MaxHP)
	}

	send(w, p, protocol.IntentMsg{Intent: protocol.IntentAttack, TargetID: chicken})
	w.StepOnce()
	if code := rejection(w, p); code != protocol.ErrInvalidTarget {
		t.Fatalf("attacking a corpse: %q", code)
	}

	respawn := diedAt + uint64(w.cfg.RespawnTicks)
	for w.CurrentTick() <= respawn {
		w.StepOnce()
	}
	if c.Dead || c.HP != c.MaxHP || c.Pos != c.Home {
		t.Fatalf("chicken not respawned: dead=%v hp=%d pos=%v", c.Dead, c.HP, c.Pos)
	}
}

func TestCombat_TargetRejections(t *testing.T) {
	w := testWorld(t, nil)
	p := joinAll(t, w, "ada")[0]

	send(w, p, protocol.IntentMsg{Intent: protocol.IntentAttack, TargetID: p})
	w.StepOnce()
	if c := rejection(w, p); c != protocol.ErrInvalidTarget {
		t.Fatalf("self: %q", c)
	}
	send(w, p, protocol.IntentMsg{Intent: protocol.IntentAttack, TargetID: "npc:dragon"})
	w.StepOnce()
	if c := rejection(w, p); c != protocol.ErrNotFound {
		t.Fatalf("missing: %q", c)
	}
}

func TestCombat_DoesNotInterruptGatheringAttacker(t *testing.T) {
	w := testWorld(t, nil)
	ids := joinAll(t, w, "ada", "bo")
	place(w, ids[0], valley(11, 10))
	place(w, ids[1], valley(11, 11))
	send(w, ids[0], protocol.IntentMsg{Intent: protocol.IntentGatherResource, NodeID: "oreVein1"})
	w.StepOnce()

	send(w, ids[1], protocol.IntentMsg{Intent: protocol.IntentAttack, TargetID: ids[0]})
	w.StepOnce()
	if e := mustEntity(t, w, ids[0]); e.Action.Kind != ActionGathering {
		t.Fatalf("defender action=%s, being attacked must not change it", e.Action.Kind)
	}
}

func TestNPC_AggroOnNearbyPlayer(t *testing.T) {
	w := testWorld(t, nil)
	p := joinAll(t, w, "ada")[0]
	g := mustEntity(t, w, "npc:goblin1")
	place(w, p, valley(g.Home.X-2, g.Home.Y))
	edit(w, "npc:goblin1", func(e *Entity) { e.Pos, e.Action = e.Home, Action{Kind: ActionIdle} })

	w.StepOnce()
	if g.Action.Kind != ActionCombat || g.Action.TargetID != p {
		t.Fatalf("goblin action=%s target=%s", g.Action.Kind, g.Action.TargetID)
	}
}

func TestNPC_PassiveIgnoresNearbyPlayer(t *testing.T) {
	w := testWorld(t, nil)
	p := joinAll(t, w, "ada")[0]
	c := mustEntity(t, w, "npc:chicken1")
	place(w, p, valley(c.Pos.X+1, c.Pos.Y))
	for i := 0; i < 5; i++ {
		w.StepOnce()
		if c.Action.Kind == ActionCombat {
			t.Fatalf("passive npc engaged")
		}
	}
}
