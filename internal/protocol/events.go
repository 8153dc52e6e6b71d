package protocol

// Event types emitted in per-tick batches.
const (
	EventEntityDiff     = "entity_diff"
	EventEntityRemoved  = "entity_removed"
	EventNodeUpdate     = "node_update"
	EventSpeak          = "speak"
	EventIntentRejected = "intent_rejected"
	EventDeath          = "death"
	EventLoot           = "loot"
	EventLootLost       = "loot_lost"
	EventLevelUp        = "level_up"
	EventQuestUpdate    = "quest_update"
	EventActionStopped  = "action_stopped"
)

// Event is one entry of a batch. Events with To set are addressed to a single session;
// all others are delivered to sessions observing Area.
type Event struct {
	Tick     uint64 `json:"tick"`
	Type     string `json:"type"`
	Area     string `json:"area,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
	To       string `json:"to,omitempty"`

	Ref     string `json:"ref,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	Diff  *EntityDelta `json:"diff,omitempty"`
	Node  *NodeState   `json:"node,omitempty"`
	Text  string       `json:"text,omitempty"`
	Items []ItemStack  `json:"items,omitempty"`

	Skill   string `json:"skill,omitempty"`
	Level   int    `json:"level,omitempty"`
	QuestID string `json:"quest_id,omitempty"`
	Stage   int    `json:"stage,omitempty"`
}

// EVENT_BATCH (server -> client)
type EventBatchMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Events          []Event `json:"events"`
}

type ActionView struct {
	Kind     string    `json:"kind"`
	Dest     *Position `json:"dest,omitempty"`
	NodeID   string    `json:"node_id,omitempty"`
	RecipeID string    `json:"recipe_id,omitempty"`
	TargetID string    `json:"target_id,omitempty"`
}

type SkillView struct {
	Level int   `json:"level"`
	XP    int64 `json:"xp"`
}

// EntityState is the full view sent on join.
type EntityState struct {
	ID         string               `json:"id"`
	Kind       string               `json:"kind"`
	Name       string               `json:"name"`
	Pos        Position             `json:"pos"`
	HP         int                  `json:"hp"`
	MaxHP      int                  `json:"max_hp"`
	Dead       bool                 `json:"dead,omitempty"`
	Action     ActionView           `json:"action"`
	Skills     map[string]SkillView `json:"skills"`
	Inventory  []ItemStack          `json:"inventory"`
	Generation uint64               `json:"generation"`
}

// EntityDelta carries only the fields that changed since the last batch.
type EntityDelta struct {
	ID         string               `json:"id"`
	Kind       string               `json:"kind,omitempty"`
	Pos        *Position            `json:"pos,omitempty"`
	HP         *int                 `json:"hp,omitempty"`
	Dead       *bool                `json:"dead,omitempty"`
	Action     *ActionView          `json:"action,omitempty"`
	Skills     map[string]SkillView `json:"skills,omitempty"`
	Inventory  *[]ItemStack         `json:"inventory,omitempty"`
	Generation uint64               `json:"generation"`
}

type NodeState struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Pos         Position `json:"pos"`
	Remaining   int      `json:"remaining"`
	Capacity    int      `json:"capacity"`
	Depleted    bool     `json:"depleted"`
	RespawnTick uint64   `json:"respawn_tick,omitempty"`
}
