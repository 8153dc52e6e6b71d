package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"driftmoor.ai/internal/sim/geom"
)

// Catalogs is the static content the simulation reads. It is never mutated after Load.
type Catalogs struct {
	Items   ItemCatalog
	Recipes RecipeCatalog
	Nodes   NodeCatalog
	NPCs    NPCCatalog
	Shops   ShopCatalog
	Quests  QuestCatalog
	World   WorldLayout

	WorldDigest string
}

type ItemCatalog struct {
	ByID   map[string]ItemDef
	Digest string
}

type ItemDef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Stackable bool   `json:"stackable"`
	Value     int    `json:"value"`
}

type ItemCount struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type SkillXP struct {
	Skill string `json:"skill"`
	XP    int64  `json:"xp"`
}

type SkillReq struct {
	Skill string `json:"skill"`
	Level int    `json:"level"`
}

type RecipeCatalog struct {
	ByID   map[string]RecipeDef
	Digest string
}

type RecipeDef struct {
	ID      string      `json:"id"`
	Skill   string      `json:"skill"`
	Level   int         `json:"level"`
	Inputs  []ItemCount `json:"inputs"`
	Outputs []ItemCount `json:"outputs"`
	Ticks   int         `json:"ticks"`
	XP      int64       `json:"xp"`
}

type NodeCatalog struct {
	ByType map[string]NodeDef
	Digest string
}

// NodeDef describes a kind of resource node (ore vein, tree, fishing spot).
type NodeDef struct {
	Type            string `json:"type"`
	Skill           string `json:"skill"`
	Item            string `json:"item"`
	XP              int64  `json:"xp"`
	Level           int    `json:"level"`
	Capacity        int    `json:"capacity"`
	CooldownTicks   int    `json:"cooldown_ticks"`
	RespawnTicks    int    `json:"respawn_ticks"`
	SuccessPermille int    `json:"success_permille"`
}

type NPCCatalog struct {
	ByType map[string]NPCDef
	Digest string
}

type NPCDef struct {
	Type         string      `json:"type"`
	Name         string      `json:"name"`
	HP           int         `json:"hp"`
	Attack       int         `json:"attack"`
	Defence      int         `json:"defence"`
	MaxHit       int         `json:"max_hit"`
	Aggressive   bool        `json:"aggressive"`
	AggroRadius  int         `json:"aggro_radius"`
	WanderRadius int         `json:"wander_radius"`
	Loot         []ItemCount `json:"loot"`
}

type ShopCatalog struct {
	ByID   map[string]ShopDef
	Digest string
}

type ShopDef struct {
	ID    string      `json:"id"`
	Area  string      `json:"area"`
	Stock []ShopEntry `json:"stock"`
}

type ShopEntry struct {
	Item      string `json:"item"`
	BuyPrice  int    `json:"buy_price"`
	SellPrice int    `json:"sell_price"`
	Stock     int    `json:"stock"`
}

type QuestCatalog struct {
	ByID   map[string]QuestDef
	Digest string
}

type QuestDef struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Stages []QuestStage `json:"stages"`
}

type QuestStage struct {
	Description string      `json:"description"`
	NeedItems   []ItemCount `json:"need_items,omitempty"`
	NeedSkills  []SkillReq  `json:"need_skills,omitempty"`
	RewardItems []ItemCount `json:"reward_items,omitempty"`
	RewardXP    []SkillXP   `json:"reward_xp,omitempty"`
}

type WorldLayout struct {
	Areas        []AreaDef       `json:"areas"`
	Spawn        geom.Pos        `json:"spawn"`
	StarterItems []ItemCount     `json:"starter_items"`
	Nodes        []NodePlacement `json:"nodes"`
	NPCs         []NPCPlacement  `json:"npcs"`
	Stats        StartingStats   `json:"starting_stats"`
}

type AreaDef struct {
	ID     string      `json:"id"`
	Bounds geom.Bounds `json:"bounds"`
}

type NodePlacement struct {
	ID   string   `json:"id"`
	Type string   `json:"type"`
	Pos  geom.Pos `json:"pos"`
}

type NPCPlacement struct {
	ID   string   `json:"id"`
	Type string   `json:"type"`
	Pos  geom.Pos `json:"pos"`
}

type StartingStats struct {
	HP      int `json:"hp"`
	Attack  int `json:"attack"`
	Defence int `json:"defence"`
	MaxHit  int `json:"max_hit"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	var err error

	if c.Items.ByID, c.Items.Digest, err = loadList(configDir, "items.json", func(d ItemDef) string { return d.ID }); err != nil {
		return nil, err
	}
	if c.Recipes.ByID, c.Recipes.Digest, err = loadList(configDir, "recipes.json", func(d RecipeDef) string { return d.ID }); err != nil {
		return nil, err
	}
	if c.Nodes.ByType, c.Nodes.Digest, err = loadList(configDir, "nodes.json", func(d NodeDef) string { return d.Type }); err != nil {
		return nil, err
	}
	if c.NPCs.ByType, c.NPCs.Digest, err = loadList(configDir, "npcs.json", func(d NPCDef) string { return d.Type }); err != nil {
		return nil, err
	}
	if c.Shops.ByID, c.Shops.Digest, err = loadList(configDir, "shops.json", func(d ShopDef) string { return d.ID }); err != nil {
		return nil, err
	}
	if c.Quests.ByID, c.Quests.Digest, err = loadList(configDir, "quests.json", func(d QuestDef) string { return d.ID }); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(configDir, "world.json"))
	if err != nil {
		return nil, oops.In("catalogs").With("file", "world.json").Wrap(err)
	}
	c.WorldDigest = sha256Hex(raw)
	if err := json.Unmarshal(raw, &c.World); err != nil {
		return nil, oops.In("catalogs").With("file", "world.json").Wrap(err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func loadList[T any](dir, name string, key func(T) string) (map[string]T, string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, "", oops.In("catalogs").With("file", name).Wrap(err)
	}
	var defs []T
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, "", oops.In("catalogs").With("file", name).Wrap(err)
	}
	out := make(map[string]T, len(defs))
	for i, d := range defs {
		k := key(d)
		if k == "" {
			return nil, "", oops.In("catalogs").With("file", name).With("index", i).Errorf("empty id")
		}
		if _, dup := out[k]; dup {
			return nil, "", oops.In("catalogs").With("file", name).With("id", k).Errorf("duplicate id")
		}
		out[k] = d
	}
	return out, sha256Hex(raw), nil
}

// validate checks cross references so the simulation can index catalogs without guards.
func (c *Catalogs) validate() error {
	item := func(where, id string) error {
		if _, ok := c.Items.ByID[id]; !ok {
			return oops.In("catalogs").With("where", where).With("item", id).Errorf("unknown item")
		}
		return nil
	}
	counts := func(where string, xs []ItemCount) error {
		for _, x := range xs {
			if err := item(where, x.Item); err != nil {
				return err
			}
			if x.Count <= 0 {
				return oops.In("catalogs").With("where", where).With("item", x.Item).Errorf("non-positive count")
			}
		}
		return nil
	}
	for id, r := range c.Recipes.ByID {
		if err := counts("recipe "+id, r.Inputs); err != nil {
			return err
		}
		if err := counts("recipe "+id, r.Outputs); err != nil {
			return err
		}
	}
	for t, n := range c.Nodes.ByType {
		if err := item("node "+t, n.Item); err != nil {
			return err
		}
		if n.Capacity <= 0 || n.CooldownTicks <= 0 {
			return oops.In("catalogs").With("node", t).Errorf("capacity and cooldown_ticks must be positive")
		}
	}
	for t, n := range c.NPCs.ByType {
		if err := counts("npc "+t, n.Loot); err != nil {
			return err
		}
	}
	for id, s := range c.Shops.ByID {
		for _, e := range s.Stock {
			if err := item("shop "+id, e.Item); err != nil {
				return err
			}
		}
	}
	for id, q := range c.Quests.ByID {
		if len(q.Stages) == 0 {
			return oops.In("catalogs").With("quest", id).Errorf("quest without stages")
		}
		for _, st := range q.Stages {
			if err := counts("quest "+id, st.NeedItems); err != nil {
				return err
			}
			if err := counts("quest "+id, st.RewardItems); err != nil {
				return err
			}
		}
	}
	if err := counts("starter_items", c.World.StarterItems); err != nil {
		return err
	}

	areas := map[string]geom.Bounds{}
	for _, a := range c.World.Areas {
		areas[a.ID] = a.Bounds
	}
	inArea := func(where string, p geom.Pos) error {
		b, ok := areas[p.Area]
		if !ok || !b.Contains(p) {
			return oops.In("catalogs").With("where", where).With("pos", p.String()).Errorf("position outside any area")
		}
		return nil
	}
	if err := inArea("spawn", c.World.Spawn); err != nil {
		return err
	}
	for _, n := range c.World.Nodes {
		if _, ok := c.Nodes.ByType[n.Type]; !ok {
			return oops.In("catalogs").With("node", n.ID).With("type", n.Type).Errorf("unknown node type")
		}
		if err := inArea("node "+n.ID, n.Pos); err != nil {
			return err
		}
	}
	for _, n := range c.World.NPCs {
		if _, ok := c.NPCs.ByType[n.Type]; !ok {
			return oops.In("catalogs").With("npc", n.ID).With("type", n.Type).Errorf("unknown npc type")
		}
		if err := inArea("npc "+n.ID, n.Pos); err != nil {
			return err
		}
	}
	return nil
}

// Area returns the bounds of an area.
func (c *Catalogs) Area(id string) (geom.Bounds, bool) {
	for _, a := range c.World.Areas {
		if a.ID == id {
			return a.Bounds, true
		}
	}
	return geom.Bounds{}, false
}

func (c *Catalogs) Stackable(item string) bool {
	return c.Items.ByID[item].Stackable
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
