package world

import (
	"sort"

	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/geom"
	"driftmoor.ai/internal/sim/world/logic/xp"
)

type Kind string

const (
	KindPlayer Kind = "player"
	KindNPC    Kind = "npc"
	KindAgent  Kind = "agent"
)

// ActionKind values double as keys of the tuning interrupt table.
type ActionKind string

const (
	ActionIdle      ActionKind = "idle"
	ActionMoving    ActionKind = "moving"
	ActionGathering ActionKind = "gathering"
	ActionCrafting  ActionKind = "crafting"
	ActionCombat    ActionKind = "combat"
)

// Action is the entity's single active action. Only the fields matching Kind are meaningful.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Moving
	Dest geom.Pos   `json:"dest,omitempty"`
	Path []geom.Pos `json:"path,omitempty"`

	// Gathering
	NodeID   string `json:"node_id,omitempty"`
	Cooldown int    `json:"cooldown,omitempty"`

	// Crafting
	RecipeID string `json:"recipe_id,omitempty"`
	Progress int    `json:"progress,omitempty"`

	// Combat
	TargetID string `json:"target_id,omitempty"`
}

func (a Action) Active() bool { return a.Kind != "" && a.Kind != ActionIdle }

// Same reports whether b would restart exactly what a is already doing.
func (a Action) Same(b Action) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ActionMoving:
		return a.Dest == b.Dest
	case ActionGathering:
		return a.NodeID == b.NodeID
	case ActionCrafting:
		return a.RecipeID == b.RecipeID
	case ActionCombat:
		return a.TargetID == b.TargetID
	default:
		return true
	}
}

// Target is the id an action refers to, if any.
func (a Action) Target() string {
	switch a.Kind {
	case ActionGathering:
		return a.NodeID
	case ActionCrafting:
		return a.RecipeID
	case ActionCombat:
		return a.TargetID
	}
	return ""
}

func (a Action) view() protocol.ActionView {
	kind := a.Kind
	if kind == "" {
		kind = ActionIdle
	}
	v := protocol.ActionView{Kind: string(kind), NodeID: a.NodeID, RecipeID: a.RecipeID, TargetID: a.TargetID}
	if a.Kind == ActionMoving {
		d := toPosition(a.Dest)
		v.Dest = &d
	}
	return v
}

type QuestState struct {
	Stage int  `json:"stage"`
	Done  bool `json:"done,omitempty"`
}

// NPCState is carried by npc entities only.
type NPCState struct {
	Type         string `json:"type"`
	LastAttacker string `json:"last_attacker,omitempty"`
}

type Entity struct {
	ID   string
	Kind Kind
	Name string

	Pos  geom.Pos
	Home geom.Pos

	HP      int
	MaxHP   int
	Attack  int
	Defence int
	MaxHit  int

	Dead      bool
	RespawnAt uint64

	// Skills holds total XP per skill; levels derive from xp.Level.
	Skills    map[string]int64
	Inventory Inventory
	Bank      Inventory
	Quests    map[string]QuestState

	Action Action

	// Generation advances on every externally forced change: player intents, being targeted by a
	// player attack, damage and death.
	Generation uint64

	NPC *NPCState
}

func (e *Entity) Level(skill string) int { return xp.Level(e.Skills[skill]) }

func (e *Entity) skillLevels() map[string]int {
	out := make(map[string]int, len(e.Skills))
	for s, v := range e.Skills {
		out[s] = xp.Level(v)
	}
	return out
}

func (e *Entity) State() protocol.EntityState {
	return protocol.EntityState{
		ID:         e.ID,
		Kind:       string(e.Kind),
		Name:       e.Name,
		Pos:        toPosition(e.Pos),
		HP:         e.HP,
		MaxHP:      e.MaxHP,
		Dead:       e.Dead,
		Action:     e.Action.view(),
		Skills:     skillViews(e.Skills),
		Inventory:  e.Inventory.Stacks(),
		Generation: e.Generation,
	}
}

func skillViews(m map[string]int64) map[string]protocol.SkillView {
	out := make(map[string]protocol.SkillView, len(m))
	for s, v := range m {
		out[s] = protocol.SkillView{Level: xp.Level(v), XP: v}
	}
	return out
}

func toPosition(p geom.Pos) protocol.Position {
	return protocol.Position{Area: p.Area, X: p.X, Y: p.Y}
}

func fromPosition(p protocol.Position) geom.Pos {
	return geom.Pos{Area: p.Area, X: p.X, Y: p.Y}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
