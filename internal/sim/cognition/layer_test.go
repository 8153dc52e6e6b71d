package cognition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Workers:             2,
		QueueSize:           8,
		DecisionTimeout:     time.Minute,
		DeadlineTicks:       20,
		ThinkEveryTicks:     10,
		FailureBackoffTicks: 5,
		MemorySize:          16,
		RaidMaxMembers:      4,
	}
}

func moveTo(p Request, agent string) Response {
	dest := valley(3, 3)
	return Response{RequestID: p.ID, Decisions: []Decision{{AgentID: agent, Kind: DecisionMove, Dest: &dest}}}
}

func idleAgent(id string, gen uint64) AgentState {
	return AgentState{ID: id, Pos: valley(10, 10), HP: 10, MaxHP: 10, Action: "idle", Generation: gen}
}

func waitReady(t *testing.T, l *Layer, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return l.Ready() >= n }, 2*time.Second, 2*time.Millisecond)
}

func TestLayer_AppliesFreshDecision(t *testing.T) {
	g := newGate(func(r Request) (Response, error) { return moveTo(r, "a"), nil })
	l := NewLayer(testConfig(), g, quietLog())
	defer l.Close()

	w := newFakeWorld()
	w.agents["a"] = idleAgent("a", 1)
	act := &recordingActuator{}
	require.NoError(t, l.Attach("a", Profile{Name: "A"}, 10))

	st := l.Step(10, w, act)
	require.Equal(t, 1, st.Submitted)
	g.open()
	waitReady(t, l, 1)

	st = l.Step(11, w, act)
	require.Equal(t, 1, st.Applied)
	require.Equal(t, []call{{Kind: DecisionMove, Agent: "a", Dest: valley(3, 3)}}, act.calls)

	c, _ := l.Context("a")
	require.Equal(t, uint64(11), c.LastDecisionTick)
}

// A request made at tick 10 whose agent is attacked at tick 11 must not be applied at tick 12;
// the behavior tree decides instead.
func TestLayer_StaleDecisionFallsBackToBehaviorTree(t *testing.T) {
	g := newGate(func(r Request) (Response, error) { return moveTo(r, "a"), nil })
	l := NewLayer(testConfig(), g, quietLog())
	defer l.Close()

	w := newFakeWorld()
	w.agents["a"] = idleAgent("a", 1)
	act := &recordingActuator{}
	require.NoError(t, l.Attach("a", Profile{Name: "A"}, 10))

	l.Step(10, w, act)
	require.Empty(t, act.calls)

	// Tick 11: a player attack lands.
	s := w.agents["a"]
	s.Generation++
	w.agents["a"] = s
	w.around.Entities = []Nearby{{ID: "player:1", Kind: "player", Pos: valley(11, 10), HP: 10}}
	l.Remember("a", MemoryEntry{Tick: 11, Kind: MemoryAttacked, Subject: "player:1"})
	l.Step(11, w, act)
	act.calls = nil

	g.open()
	waitReady(t, l, 1)
	st := l.Step(12, w, act)
	require.Equal(t, 1, st.Stale)
	require.Equal(t, 0, st.Applied)
	require.Equal(t, []call{{Kind: DecisionAttack, Agent: "a", Target: "player:1"}}, act.calls)
}

// A busy agent is left alone while its request is outstanding, but once that request goes stale
// the tree takes over from the current action.
func TestLayer_StaleDecisionOverridesBusyAgent(t *testing.T) {
	g := newGate(func(r Request) (Response, error) { return moveTo(r, "a"), nil })
	l := NewLayer(testConfig(), g, quietLog())
	defer l.Close()

	w := newFakeWorld()
	s := idleAgent("a", 1)
	s.Action = "gathering"
	s.ActionTarget = "oreVein1"
	w.agents["a"] = s
	w.around.Entities = []Nearby{{ID: "player:1", Kind: "player", Pos: valley(11, 10), HP: 10}}
	act := &recordingActuator{}
	require.NoError(t, l.Attach("a", Profile{Name: "A"}, 10))

	require.Equal(t, 1, l.Step(10, w, act).Submitted)

	s.Generation++
	w.agents["a"] = s
	l.Remember("a", MemoryEntry{Tick: 11, Kind: MemoryAttacked, Subject: "player:1"})
	st := l.Step(11, w, act)
	require.Equal(t, 0, st.Fallbacks, "request still outstanding")
	require.Empty(t, act.calls)

	g.open()
	waitReady(t, l, 1)
	st = l.Step(12, w, act)
	require.Equal(t, 1, st.Stale)
	require.Equal(t, 1, st.Fallbacks)
	require.Equal(t, []call{{Kind: DecisionAttack, Agent: "a", Target: "player:1"}}, act.calls)
}

// With no request outstanding and no recent decision, a busy agent is driven by the tree.
func TestLayer_UnattendedBusyAgentFollowsTree(t *testing.T) {
	g := newGate(func(r Request) (Response, error) { return Response{}, nil })
	cfg := testConfig()
	cfg.DeadlineTicks = 1
	l := NewLayer(cfg, g, quietLog())
	defer func() {
		g.open()
		l.Close()
	}()

	w := newFakeWorld()
	s := idleAgent("a", 1)
	s.Action = "gathering"
	w.agents["a"] = s
	act := &recordingActuator{}
	home := valley(30, 30)
	require.NoError(t, l.Attach("a", Profile{Name: "A", Home: home}, 10))

	l.Step(10, w, act)
	require.Empty(t, act.calls)

	// Tick 11: the request expires and the agent backs off; the tree walks it home.
	st := l.Step(11, w, act)
	require.Equal(t, 1, st.Timeouts)
	require.Equal(t, []call{{Kind: DecisionMove, Agent: "a", Dest: home}}, act.calls)
	act.calls = nil

	st = l.Step(12, w, act)
	require.Equal(t, 1, st.Fallbacks, "still unattended during backoff")
}

func TestLayer_DetachCancelsOutstandingRequest(t *testing.T) {
	g := newGate(func(r Request) (Response, error) { return moveTo(r, "a"), nil })
	l := NewLayer(testConfig(), g, quietLog())
	defer l.Close()

	w := newFakeWorld()
	w.agents["a"] = idleAgent("a", 1)
	act := &recordingActuator{}
	require.NoError(t, l.Attach("a", Profile{Name: "A"}, 0))
	l.Step(0, w, act)
	require.Equal(t, 1, l.Inflight())

	delete(w.agents, "a")
	require.True(t, l.Detach("a"))
	require.Equal(t, 0, l.Inflight())

	g.open()
	time.Sleep(20 * time.Millisecond)
	st := l.Step(1, w, act)
	require.Equal(t, 0, st.Applied)
	require.Empty(t, act.calls)
	_, ok := l.Context("a")
	require.False(t, ok)
}

func TestLayer_DetachesContextsOfRemovedEntities(t *testing.T) {
	g := newGate(func(r Request) (Response, error) { return Response{}, nil })
	l := NewLayer(testConfig(), g, quietLog())
	defer l.Close()

	w := newFakeWorld()
	require.NoError(t, l.Attach("ghost", Profile{Name: "Ghost"}, 0))
	st := l.Step(0, w, &recordingActuator{})
	require.Equal(t, 1, st.Detached)
	require.Empty(t, l.Agents())
}

func TestLayer_ExpiredRequestBacksOff(t *testing.T) {
	g := newGate(func(r Request) (Response, error) { return Response{}, nil })
	cfg := testConfig()
	cfg.DeadlineTicks = 2
	l := NewLayer(cfg, g, quietLog())
	defer func() {
		g.open()
		l.Close()
	}()

	w := newFakeWorld()
	w.agents["a"] = idleAgent("a", 1)
	act := &recordingActuator{}
	require.NoError(t, l.Attach("a", Profile{Name: "A", ThinkEveryTicks: 1}, 10))

	require.Equal(t, 1, l.Step(10, w, act).Submitted)
	require.Equal(t, 0, l.Step(11, w, act).Timeouts)

	st := l.Step(12, w, act)
	require.Equal(t, 1, st.Timeouts)
	require.Equal(t, 0, st.Submitted, "backing off after a timeout")
	_, pending := l.Pending("a")
	require.False(t, pending)

	require.Equal(t, 0, l.Step(16, w, act).Submitted)
	require.Equal(t, 1, l.Step(17, w, act).Submitted)
}

func TestLayer_RaidDecidesForMembers(t *testing.T) {
	g := newGate(func(r Request) (Response, error) {
		dest := valley(30, 30)
		return Response{Decisions: []Decision{
			{AgentID: "a", Kind: DecisionMove, Dest: &dest},
			{AgentID: "b", Kind: DecisionMove, Dest: &dest},
			{AgentID: "outsider", Kind: DecisionIdle},
		}}, nil
	})
	l := NewLayer(testConfig(), g, quietLog())
	defer l.Close()

	w := newFakeWorld()
	w.agents["a"] = idleAgent("a", 1)
	w.agents["b"] = idleAgent("b", 1)
	w.agents["outsider"] = idleAgent("outsider", 1)
	act := &recordingActuator{}

	l.DefineRaid(RaidDef{ID: "hunt", Objective: "goblins"})
	require.NoError(t, l.Attach("a", Profile{Name: "A"}, 0))
	require.NoError(t, l.Attach("b", Profile{Name: "B"}, 0))
	require.NoError(t, l.JoinRaid("hunt", "a"))
	require.NoError(t, l.JoinRaid("hunt", "b"))

	st := l.Step(0, w, act)
	require.Equal(t, 1, st.Submitted, "one group request replaces two individual ones")
	req, ok := l.Pending("a")
	require.True(t, ok)
	require.Equal(t, "raid:hunt", req.Key)
	require.Equal(t, map[string]uint64{"a": 1, "b": 1}, req.Generations)

	s := w.agents["b"]
	s.Generation = 2
	w.agents["b"] = s

	g.open()
	waitReady(t, l, 1)
	st = l.Step(1, w, act)
	require.Equal(t, 1, st.Applied)
	require.Equal(t, 1, st.Stale)
	require.Equal(t, []call{{Kind: DecisionMove, Agent: "a", Dest: valley(30, 30)}}, act.calls)
}

func TestLayer_ReflectionCondensesMemory(t *testing.T) {
	g := newGate(func(r Request) (Response, error) {
		if r.Kind == RequestReflect {
			return Response{Summary: "quiet day at the vein"}, nil
		}
		return Response{}, nil
	})
	cfg := testConfig()
	cfg.ReflectEveryTicks = 5
	cfg.ReflectMinEntries = 3
	l := NewLayer(cfg, g, quietLog())
	defer l.Close()

	w := newFakeWorld()
	w.agents["a"] = idleAgent("a", 1)
	act := &recordingActuator{}
	require.NoError(t, l.Attach("a", Profile{Name: "A"}, 0))
	for i := 0; i < 4; i++ {
		l.Remember("a", MemoryEntry{Tick: uint64(i), Kind: MemoryHeard, Text: "hello"})
	}

	st := l.Step(5, w, act)
	require.Equal(t, 2, st.Submitted, "decision and reflection")
	g.open()
	waitReady(t, l, 2)

	st = l.Step(6, w, act)
	require.Equal(t, 1, st.Reflections)
	c, _ := l.Context("a")
	entries := c.Memory.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, MemoryReflection, entries[0].Kind)
	require.Equal(t, "quiet day at the vein", entries[0].Text)
}

func TestLayer_IdleDecisionSuppressesFallbackUntilNextThink(t *testing.T) {
	g := newGate(func(r Request) (Response, error) {
		return Response{Decisions: []Decision{{AgentID: "a", Kind: DecisionIdle}}}, nil
	})
	l := NewLayer(testConfig(), g, quietLog())
	defer l.Close()

	w := newFakeWorld()
	w.agents["a"] = idleAgent("a", 1)
	act := &recordingActuator{}
	home := valley(30, 30)
	require.NoError(t, l.Attach("a", Profile{Name: "A", Home: home}, 0))

	l.Step(0, w, act)
	require.Equal(t, []call{{Kind: DecisionMove, Agent: "a", Dest: home}}, act.calls, "tree walks home meanwhile")
	act.calls = nil

	g.open()
	waitReady(t, l, 1)
	l.Step(1, w, act)
	require.Equal(t, []call{{Kind: DecisionIdle, Agent: "a"}}, act.calls)
	act.calls = nil

	l.Step(2, w, act)
	require.Empty(t, act.calls)
}
