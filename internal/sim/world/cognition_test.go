package world

import (
	"context"
	"sync"
	"testing"

	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/cognition"
	"driftmoor.ai/internal/sim/geom"
)

// heldReasoner answers immediately with no decisions, except for requests made at holdTick, which
// block until release and then answer with answer.
type heldReasoner struct {
	holdTick uint64
	answer   func(cognition.Request) cognition.Response
	release  chan struct{}

	mu   sync.Mutex
	held []cognition.Request
}

func newHeld(tick uint64, answer func(cognition.Request) cognition.Response) *heldReasoner {
	return &heldReasoner{holdTick: tick, answer: answer, release: make(chan struct{})}
}

func (h *heldReasoner) Reason(ctx context.Context, req cognition.Request) (cognition.Response, error) {
	if req.Kind != cognition.RequestDecide || req.Tick != h.holdTick {
		return cognition.Response{RequestID: req.ID}, nil
	}
	h.mu.Lock()
	h.held = append(h.held, req)
	h.mu.Unlock()
	select {
	case <-h.release:
	case <-ctx.Done():
		return cognition.Response{}, ctx.Err()
	}
	return h.answer(req), nil
}

func (h *heldReasoner) Held() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.held)
}

func loneAgent(home geom.Pos) cognition.Notecards {
	return cognition.Notecards{Agents: []cognition.Profile{{
		Name:            "Wren",
		Persona:         "keeps to the valley",
		ThinkEveryTicks: 10,
		FleeBelow:       0.1,
		Home:            home,
	}}}
}

// stepUntil steps the world up to (not including) tick, waiting after every tick until each
// outstanding request has either answered or is being held.
func stepUntil(t *testing.T, w *World, r *heldReasoner, tick uint64) {
	t.Helper()
	for w.CurrentTick() < tick {
		w.StepOnce()
		waitFor(t, func() bool { return w.cog.Inflight() <= w.cog.Ready()+r.Held() })
	}
}

func TestCognition_StaleDecisionDiscardedAndTreeGoverns(t *testing.T) {
	home := valley(11, 11)
	r := newHeld(10, func(req cognition.Request) cognition.Response {
		dest := valley(30, 2)
		return cognition.Response{RequestID: req.ID, Decisions: []cognition.Decision{
			{AgentID: "agent:wren", Kind: cognition.DecisionMove, Dest: &dest},
		}}
	})
	w := testWorld(t, func(cfg *WorldConfig) {
		cfg.Reasoner = r
		cfg.Agents = loneAgent(home)
	})
	p := joinAll(t, w, "ada")[0]
	a := mustEntity(t, w, "agent:wren")

	stepUntil(t, w, r, 10)
	w.StepOnce() // tick 10: request submitted and held
	waitFor(t, func() bool { return r.Held() == 1 })
	pending, ok := w.cog.Pending(a.ID)
	if !ok || pending.Tick != 10 {
		t.Fatalf("expected a pending request from tick 10, got %+v ok=%v", pending, ok)
	}
	gen := a.Generation

	send(w, p, protocol.IntentMsg{Intent: protocol.IntentAttack, TargetID: a.ID})
	w.StepOnce() // tick 11: player attack lands
	if a.Generation == gen {
		t.Fatalf("generation not advanced by player attack")
	}

	close(r.release)
	waitFor(t, func() bool { return w.cog.Ready() > 0 })
	w.StepOnce() // tick 12: stale response discarded
	if m := w.Metrics(); m.Cognition.Stale != 1 || m.Cognition.Applied != 0 {
		t.Fatalf("cognition stats: %+v", m.Cognition)
	}
	if a.Action.Kind == ActionMoving && a.Action.Dest == valley(30, 2) {
		t.Fatalf("stale move decision applied")
	}
	if a.Action.Kind != ActionCombat || a.Action.TargetID != p {
		t.Fatalf("behavior tree should retaliate: action=%s target=%s", a.Action.Kind, a.Action.TargetID)
	}
}

func TestCognition_StaleDecisionInterruptsGatheringAgent(t *testing.T) {
	r := newHeld(10, func(req cognition.Request) cognition.Response {
		dest := valley(30, 2)
		return cognition.Response{RequestID: req.ID, Decisions: []cognition.Decision{
			{AgentID: "agent:wren", Kind: cognition.DecisionMove, Dest: &dest},
		}}
	})
	w := testWorld(t, func(cfg *WorldConfig) {
		cfg.Reasoner = r
		cfg.Agents = loneAgent(valley(11, 11))
	})
	p := joinAll(t, w, "ada")[0]
	a := mustEntity(t, w, "agent:wren")

	stepUntil(t, w, r, 10)
	w.StepOnce() // tick 10: request submitted and held
	waitFor(t, func() bool { return r.Held() == 1 })

	w.store.begin()
	err := w.startGathering(a, "oreVein1", w.CurrentTick())
	w.store.end()
	if err != nil {
		t.Fatalf("start gathering: %v", err)
	}

	send(w, p, protocol.IntentMsg{Intent: protocol.IntentAttack, TargetID: a.ID})
	w.StepOnce() // tick 11: attacked while the request is still out
	if a.Action.Kind != ActionGathering {
		t.Fatalf("agent should keep gathering while its request is pending: %s", a.Action.Kind)
	}

	close(r.release)
	waitFor(t, func() bool { return w.cog.Ready() > 0 })
	w.StepOnce() // tick 12
	m := w.Metrics().Cognition
	if m.Stale != 1 || m.Fallbacks == 0 {
		t.Fatalf("cognition stats: %+v", m)
	}
	if a.Action.Kind != ActionCombat || a.Action.TargetID != p {
		t.Fatalf("behavior tree should retaliate: action=%s target=%s", a.Action.Kind, a.Action.TargetID)
	}
	if w.nodes["oreVein1"].Gatherers[a.ID] {
		t.Fatalf("gather contention not released")
	}
}

func TestCognition_FreshDecisionApplied(t *testing.T) {
	r := newHeld(10, func(req cognition.Request) cognition.Response {
		dest := valley(20, 11)
		return cognition.Response{RequestID: req.ID, Decisions: []cognition.Decision{
			{AgentID: "agent:wren", Kind: cognition.DecisionMove, Dest: &dest},
		}}
	})
	w := testWorld(t, func(cfg *WorldConfig) {
		cfg.Reasoner = r
		cfg.Agents = loneAgent(valley(11, 11))
	})
	a := mustEntity(t, w, "agent:wren")

	stepUntil(t, w, r, 11)
	waitFor(t, func() bool { return r.Held() == 1 })
	close(r.release)
	waitFor(t, func() bool { return w.cog.Ready() > 0 })
	w.StepOnce()
	if a.Action.Kind != ActionMoving || a.Action.Dest != valley(20, 11) {
		t.Fatalf("decision not applied: %+v", a.Action)
	}
	if w.Metrics().Cognition.Applied != 1 {
		t.Fatalf("applied=%d", w.Metrics().Cognition.Applied)
	}
}

func TestCognition_RemovalCancelsPendingRequest(t *testing.T) {
	r := newHeld(10, func(req cognition.Request) cognition.Response {
		return cognition.Response{RequestID: req.ID, Decisions: []cognition.Decision{
			{AgentID: "agent:wren", Kind: cognition.DecisionSpeak, Text: "too late"},
		}}
	})
	w := testWorld(t, func(cfg *WorldConfig) {
		cfg.Reasoner = r
		cfg.Agents = loneAgent(valley(11, 11))
	})

	stepUntil(t, w, r, 11)
	waitFor(t, func() bool { return r.Held() == 1 })
	if _, ok := w.cog.Pending("agent:wren"); !ok {
		t.Fatalf("expected pending request")
	}

	w.Leave() <- "agent:wren"
	w.StepOnce()
	if _, ok := w.store.Get("agent:wren"); ok {
		t.Fatalf("agent not removed")
	}
	if _, ok := w.cog.Pending("agent:wren"); ok || w.cog.Inflight() != 0 {
		t.Fatalf("request not cancelled")
	}
	if _, ok := w.cog.Context("agent:wren"); ok {
		t.Fatalf("agent context survived removal")
	}

	close(r.release)
	steps(w, 3)
	for _, ev := range w.Events() {
		if ev.Type == protocol.EventSpeak && ev.EntityID == "agent:wren" {
			t.Fatalf("late response applied to removed agent")
		}
	}
	if m := w.Metrics(); m.Cognition.Applied != 0 || m.Cognition.Stale != 0 {
		t.Fatalf("cognition stats: %+v", m.Cognition)
	}
}

func TestCognition_SpeechIsHeardByNearbyAgents(t *testing.T) {
	r := newHeld(1<<62, nil)
	w := testWorld(t, func(cfg *WorldConfig) {
		cfg.Reasoner = r
		cfg.Agents = loneAgent(valley(11, 11))
	})
	p := joinAll(t, w, "ada")[0]

	send(w, p, protocol.IntentMsg{Intent: protocol.IntentSay, Text: "goblins to the east"})
	w.StepOnce()
	if !hasEvent(w, protocol.EventSpeak, p) {
		t.Fatalf("expected speak event")
	}
	c, _ := w.cog.Context("agent:wren")
	var heard bool
	for _, m := range c.Memory.Entries() {
		if m.Kind == cognition.MemoryHeard && m.Subject == p {
			heard = true
		}
	}
	if !heard {
		t.Fatalf("agent did not remember the speech: %+v", c.Memory.Entries())
	}
}

func TestCognition_AgentsSpawnFromNotecards(t *testing.T) {
	cards, err := cognition.LoadNotecards(configDir + "/agents.yaml")
	if err != nil {
		t.Fatalf("notecards: %v", err)
	}
	w := testWorld(t, func(cfg *WorldConfig) {
		cfg.Reasoner = newHeld(1<<62, nil)
		cfg.Agents = cards
	})
	for _, id := range []string{"agent:bryn", "agent:orrin", "agent:tamsin"} {
		e := mustEntity(t, w, id)
		if e.Kind != KindAgent {
			t.Fatalf("%s kind=%s", id, e.Kind)
		}
		if _, ok := w.cog.Context(id); !ok {
			t.Fatalf("%s has no context", id)
		}
	}
	if g, ok := w.cog.Raid("agent:orrin"); !ok || g.ID != "goblin_hunt" {
		t.Fatalf("orrin not in raid")
	}
}
