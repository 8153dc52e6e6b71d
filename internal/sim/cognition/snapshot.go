package cognition

import "encoding/json"

// AgentSnapshot is the decision-relevant state of one agent at request time.
type AgentSnapshot struct {
	Tick         uint64        `json:"tick"`
	Self         AgentState    `json:"self"`
	Profile      Profile       `json:"profile"`
	Memory       []MemoryEntry `json:"memory"`
	Surroundings Surroundings  `json:"surroundings"`
}

type RaidSnapshot struct {
	Tick      uint64          `json:"tick"`
	RaidID    string          `json:"raid_id"`
	Objective string          `json:"objective"`
	Members   []AgentSnapshot `json:"members"`
}

type ReflectSnapshot struct {
	Tick    uint64        `json:"tick"`
	AgentID string        `json:"agent_id"`
	Profile Profile       `json:"profile"`
	Entries []MemoryEntry `json:"entries"`
}

// SnapshotEnvelope is the serialized form carried in Request.Snapshot. Exactly one of the
// pointers is set, matching the request kind.
type SnapshotEnvelope struct {
	Agent   *AgentSnapshot   `json:"agent,omitempty"`
	Raid    *RaidSnapshot    `json:"raid,omitempty"`
	Reflect *ReflectSnapshot `json:"reflect,omitempty"`
}

func DecodeSnapshot(raw json.RawMessage) (SnapshotEnvelope, error) {
	var env SnapshotEnvelope
	err := json.Unmarshal(raw, &env)
	return env, err
}

// Blackboard rebuilds a behavior tree blackboard from an agent snapshot.
func (s AgentSnapshot) Blackboard() *Blackboard {
	return &Blackboard{
		Tick:    s.Tick,
		Self:    s.Self,
		Around:  s.Surroundings,
		Profile: s.Profile,
		Memory:  s.Memory,
	}
}

func agentSnapshot(tick uint64, st AgentState, c *AgentContext, around Surroundings, recent int) AgentSnapshot {
	return AgentSnapshot{
		Tick:         tick,
		Self:         st,
		Profile:      c.Profile,
		Memory:       c.Memory.Recent(recent),
		Surroundings: around,
	}
}
