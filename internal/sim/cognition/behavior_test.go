package cognition

import (
	"testing"

	"github.com/stretchr/testify/require"

	"driftmoor.ai/internal/sim/geom"
)

func valley(x, y int) geom.Pos { return geom.Pos{Area: "valley", X: x, Y: y} }

func baseBoard() *Blackboard {
	return &Blackboard{
		Tick: 100,
		Self: AgentState{ID: "agent:bryn", Pos: valley(10, 10), HP: 10, MaxHP: 10, Action: "idle",
			Skills: map[string]int{"mining": 1}, FreeSlots: 28},
		Profile: Profile{Name: "Bryn", Skill: "mining", FleeBelow: 0.3, Home: valley(10, 10)},
	}
}

func TestDefaultTree_MovesNextToPreferredNode(t *testing.T) {
	bb := baseBoard()
	bb.Around.Nodes = []NodeInfo{
		{ID: "oak1", Skill: "woodcutting", Pos: valley(11, 10), Available: true, Level: 1},
		{ID: "oreVein1", Skill: "mining", Pos: valley(14, 10), Available: true, Level: 1},
	}
	d, ok := Evaluate(DefaultTree(), bb)
	require.True(t, ok)
	require.Equal(t, DecisionMove, d.Kind)
	require.Equal(t, valley(13, 10), *d.Dest)
	require.Equal(t, "agent:bryn", d.AgentID)

	bb.Self.Pos = valley(13, 10)
	d, ok = Evaluate(DefaultTree(), bb)
	require.True(t, ok)
	require.Equal(t, DecisionGather, d.Kind)
	require.Equal(t, "oreVein1", d.NodeID)
}

func TestDefaultTree_SkipsDepletedAndHighLevelNodes(t *testing.T) {
	bb := baseBoard()
	bb.Self.Pos = valley(20, 20)
	bb.Around.Nodes = []NodeInfo{
		{ID: "deep", Skill: "mining", Pos: valley(21, 20), Available: true, Level: 10},
		{ID: "empty", Skill: "mining", Pos: valley(21, 21), Available: false, Level: 1},
	}
	d, ok := Evaluate(DefaultTree(), bb)
	require.True(t, ok)
	require.Equal(t, DecisionMove, d.Kind, "nothing to gather, so head home")
	require.Equal(t, valley(10, 10), *d.Dest)
}

func TestDefaultTree_RetaliatesAgainstRecentAttacker(t *testing.T) {
	bb := baseBoard()
	bb.Memory = []MemoryEntry{{Tick: 95, Kind: MemoryAttacked, Subject: "player:1"}}
	bb.Around.Entities = []Nearby{{ID: "player:1", Kind: "player", Pos: valley(11, 10), HP: 10}}

	d, ok := Evaluate(DefaultTree(), bb)
	require.True(t, ok)
	require.Equal(t, DecisionAttack, d.Kind)
	require.Equal(t, "player:1", d.TargetID)

	bb.Tick = 200
	d, _ = Evaluate(DefaultTree(), bb)
	require.NotEqual(t, DecisionAttack, d.Kind, "old attacks are forgotten")
}

func TestDefaultTree_FleesWhenHurtAndThreatened(t *testing.T) {
	bb := baseBoard()
	bb.Self.Pos = valley(15, 15)
	bb.Self.HP = 2
	bb.Memory = []MemoryEntry{{Tick: 99, Kind: MemoryHitTaken, Subject: "npc:goblin1"}}
	bb.Around.Entities = []Nearby{{ID: "npc:goblin1", Kind: "npc", Pos: valley(16, 15), HP: 5, Hostile: true}}

	d, ok := Evaluate(DefaultTree(), bb)
	require.True(t, ok)
	require.Equal(t, DecisionMove, d.Kind)
	require.Equal(t, valley(10, 10), *d.Dest)
}

func TestDefaultTree_AggressiveAgentsHunt(t *testing.T) {
	bb := baseBoard()
	bb.Profile.Aggression = 0.8
	bb.Around.Entities = []Nearby{
		{ID: "npc:chicken1", Kind: "npc", Pos: valley(11, 11)},
		{ID: "npc:goblin1", Kind: "npc", Pos: valley(13, 13), Hostile: true},
	}
	d, ok := Evaluate(DefaultTree(), bb)
	require.True(t, ok)
	require.Equal(t, DecisionAttack, d.Kind)
	require.Equal(t, "npc:goblin1", d.TargetID)
}

func TestDefaultTree_DeadAgentsIdle(t *testing.T) {
	bb := baseBoard()
	bb.Self.Dead = true
	d, ok := Evaluate(DefaultTree(), bb)
	require.True(t, ok)
	require.Equal(t, DecisionIdle, d.Kind)
}
