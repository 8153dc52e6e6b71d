package world

import (
	"strings"

	"driftmoor.ai/internal/sim/cognition"
	"driftmoor.ai/internal/sim/geom"
	"driftmoor.ai/internal/sim/simerr"
)

// perceptionRadius bounds what an agent sees of its surroundings.
const perceptionRadius = 12

// bridge exposes the world to the cognition layer. It is only valid on the tick goroutine
// inside a write window.
type bridge struct{ w *World }

func (w *World) bridge() bridge { return bridge{w: w} }

func (b bridge) Agent(id string) (cognition.AgentState, bool) {
	e, ok := b.w.store.Get(id)
	if !ok || e.Kind != KindAgent {
		return cognition.AgentState{}, false
	}
	return cognition.AgentState{
		ID:           e.ID,
		Name:         e.Name,
		Pos:          e.Pos,
		HP:           e.HP,
		MaxHP:        e.MaxHP,
		Dead:         e.Dead,
		Action:       string(e.Action.Kind),
		ActionTarget: e.Action.Target(),
		Generation:   e.Generation,
		Skills:       e.skillLevels(),
		FreeSlots:    e.Inventory.Free(),
	}, true
}

func (b bridge) Surroundings(id string) cognition.Surroundings {
	var out cognition.Surroundings
	self, ok := b.w.store.Get(id)
	if !ok {
		return out
	}
	for _, oid := range b.w.store.IDs() {
		if oid == id {
			continue
		}
		o, _ := b.w.store.Get(oid)
		if !geom.Within(self.Pos, o.Pos, perceptionRadius) {
			continue
		}
		out.Entities = append(out.Entities, cognition.Nearby{
			ID:      o.ID,
			Kind:    string(o.Kind),
			Name:    o.Name,
			Pos:     o.Pos,
			HP:      o.HP,
			MaxHP:   o.MaxHP,
			Dead:    o.Dead,
			Hostile: o.Kind == KindNPC,
		})
	}
	for _, nid := range sortedKeys(b.w.nodes) {
		n := b.w.nodes[nid]
		if !geom.Within(self.Pos, n.Pos, perceptionRadius) {
			continue
		}
		out.Nodes = append(out.Nodes, cognition.NodeInfo{
			ID:        n.ID,
			Type:      n.Def.Type,
			Skill:     n.Def.Skill,
			Item:      n.Def.Item,
			Pos:       n.Pos,
			Level:     n.Def.Level,
			Available: !n.Depleted && n.Remaining > 0,
		})
	}
	return out
}

func (b bridge) agent(id string) (*Entity, error) {
	e, ok := b.w.store.Get(id)
	if !ok || e.Kind != KindAgent {
		return nil, simerr.New(simerr.NotFound, "agent %s", id)
	}
	return e, nil
}

func (b bridge) Move(agentID string, dest geom.Pos) error {
	e, err := b.agent(agentID)
	if err != nil {
		return err
	}
	if dest == e.Pos {
		return b.Idle(agentID)
	}
	dest, err = b.w.validateDest(e, dest)
	if err != nil {
		return err
	}
	return b.w.supersede(e, moveAction(e, dest), b.w.CurrentTick())
}

func (b bridge) Gather(agentID, nodeID string) error {
	e, err := b.agent(agentID)
	if err != nil {
		return err
	}
	a, err := b.w.gatherAction(e, nodeID)
	if err != nil {
		return err
	}
	return b.w.supersede(e, a, b.w.CurrentTick())
}

func (b bridge) Attack(agentID, targetID string) error {
	e, err := b.agent(agentID)
	if err != nil {
		return err
	}
	if _, err := b.w.validateTarget(e, targetID); err != nil {
		return err
	}
	return b.w.supersede(e, Action{Kind: ActionCombat, TargetID: targetID}, b.w.CurrentTick())
}

func (b bridge) Idle(agentID string) error {
	e, err := b.agent(agentID)
	if err != nil {
		return err
	}
	return b.w.supersede(e, Action{Kind: ActionIdle}, b.w.CurrentTick())
}

func (b bridge) Speak(agentID, text string) error {
	e, err := b.agent(agentID)
	if err != nil {
		return err
	}
	return b.w.say(e, text, b.w.CurrentTick())
}

// SpawnAgent creates an agent entity. A profile without a home area spawns at the world spawn.
func (b bridge) SpawnAgent(name string, at geom.Pos) (string, error) {
	if at.Area == "" {
		at = b.w.catalogs.World.Spawn
	}
	if _, ok := b.w.catalogs.Area(at.Area); !ok {
		return "", simerr.New(simerr.InvalidTarget, "agent %s: unknown area %q", name, at.Area)
	}
	id := "agent:" + strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
	e := b.w.newEntity(id, KindAgent, name, at)
	if err := b.w.store.Create(e); err != nil {
		return "", err
	}
	return id, nil
}
