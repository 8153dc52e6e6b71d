package cognition

import "driftmoor.ai/internal/sim/geom"

// AgentState is the read-only view of an agent's entity.
type AgentState struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Pos          geom.Pos       `json:"pos"`
	HP           int            `json:"hp"`
	MaxHP        int            `json:"max_hp"`
	Dead         bool           `json:"dead,omitempty"`
	Action       string         `json:"action"`
	ActionTarget string         `json:"action_target,omitempty"`
	Generation   uint64         `json:"generation"`
	Skills       map[string]int `json:"skills"`
	FreeSlots    int            `json:"free_slots"`
}

type Nearby struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	Pos     geom.Pos `json:"pos"`
	HP      int      `json:"hp"`
	MaxHP   int      `json:"max_hp"`
	Dead    bool     `json:"dead,omitempty"`
	Hostile bool     `json:"hostile,omitempty"`
}

type NodeInfo struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Skill     string   `json:"skill"`
	Item      string   `json:"item"`
	Pos       geom.Pos `json:"pos"`
	Level     int      `json:"level"`
	Available bool     `json:"available"`
}

type Surroundings struct {
	Entities []Nearby   `json:"entities"`
	Nodes    []NodeInfo `json:"nodes"`
}

// WorldView is the read side the layer needs from the simulation.
type WorldView interface {
	Agent(id string) (AgentState, bool)
	Surroundings(id string) Surroundings
}
