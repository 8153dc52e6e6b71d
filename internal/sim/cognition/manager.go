package cognition

import (
	"sort"

	"driftmoor.ai/internal/sim/simerr"
)

// AgentContext is the cognition-side state of one agent. It refers to its entity by id only.
type AgentContext struct {
	EntityID string
	Profile  Profile
	Memory   *Memory

	// LastDecisionTick is the tick the newest cognitive decision was applied.
	LastDecisionTick uint64
	lastDecision     DecisionKind

	nextThinkTick   uint64
	backoffUntil    uint64
	nextReflectTick uint64
}

func (c *AgentContext) key() string        { return c.EntityID }
func (c *AgentContext) reflectKey() string { return "reflect:" + c.EntityID }

// Manager creates and destroys AgentContexts in lockstep with entity lifecycle.
type Manager struct {
	memorySize int
	byID       map[string]*AgentContext
}

func NewManager(memorySize int) *Manager {
	return &Manager{memorySize: memorySize, byID: map[string]*AgentContext{}}
}

func (m *Manager) Attach(entityID string, p Profile, tick uint64) (*AgentContext, error) {
	if _, ok := m.byID[entityID]; ok {
		return nil, simerr.New(simerr.Busy, "agent %s already attached", entityID)
	}
	c := &AgentContext{
		EntityID:      entityID,
		Profile:       p,
		Memory:        NewMemory(m.memorySize),
		nextThinkTick: tick,
	}
	m.byID[entityID] = c
	return c, nil
}

func (m *Manager) Detach(entityID string) (*AgentContext, bool) {
	c, ok := m.byID[entityID]
	if ok {
		delete(m.byID, entityID)
	}
	return c, ok
}

func (m *Manager) Get(entityID string) (*AgentContext, bool) {
	c, ok := m.byID[entityID]
	return c, ok
}

func (m *Manager) Len() int { return len(m.byID) }

// IDs returns attached agent ids in sorted order.
func (m *Manager) IDs() []string {
	out := make([]string, 0, len(m.byID))
	for id := range m.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
