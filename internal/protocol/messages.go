package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Name            string            `json:"name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client). Carries everything a joining session needs to render the
// world without waiting for the next batch.
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	EntityID        string         `json:"entity_id"`
	Tick            uint64         `json:"tick"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
	Self            EntityState    `json:"self"`
	Nodes           []NodeState    `json:"nodes"`
}

type WorldParams struct {
	WorldID    string `json:"world_id"`
	TickRateHz int    `json:"tick_rate_hz"`
	Seed       int64  `json:"seed"`
}

type CatalogDigests struct {
	Items   string `json:"items"`
	Recipes string `json:"recipes"`
	Nodes   string `json:"nodes"`
	NPCs    string `json:"npcs"`
	Shops   string `json:"shops"`
	Quests  string `json:"quests"`
	World   string `json:"world"`
}

// Intent names accepted from sessions.
const (
	IntentMoveTo         = "move_to"
	IntentGatherResource = "gather_resource"
	IntentAttack         = "attack"
	IntentCraft          = "craft"
	IntentQuestAction    = "quest_action"
	IntentShopBuy        = "shop_buy"
	IntentShopSell       = "shop_sell"
	IntentBankDeposit    = "bank_deposit"
	IntentBankWithdraw   = "bank_withdraw"
	IntentSay            = "say"
	IntentStop           = "stop"
)

// INTENT (client -> server). Only the fields relevant to Intent are read.
type IntentMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Intent          string `json:"intent"`

	Dest     *Position `json:"dest,omitempty"`
	NodeID   string    `json:"node_id,omitempty"`
	TargetID string    `json:"target_id,omitempty"`
	RecipeID string    `json:"recipe_id,omitempty"`
	QuestID  string    `json:"quest_id,omitempty"`
	Stage    int       `json:"stage"`
	ShopID   string    `json:"shop_id,omitempty"`
	Item     string    `json:"item,omitempty"`
	Count    int       `json:"count,omitempty"`
	Text     string    `json:"text,omitempty"`
}
