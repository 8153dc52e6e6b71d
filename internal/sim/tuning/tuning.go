package tuning

import (
	"os"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	WorldID            string `yaml:"world_id"`
	TickRateHz         int    `yaml:"tick_rate_hz"`
	Seed               int64  `yaml:"seed"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`

	InventorySlots int `yaml:"inventory_slots"`
	BankSlots      int `yaml:"bank_slots"`

	GatherRange  int `yaml:"gather_range"`
	AttackRange  int `yaml:"attack_range"`
	HearingRange int `yaml:"hearing_range"`
	RespawnTicks int `yaml:"respawn_ticks"`

	// At most SayMax say intents per entity in any SayWindowTicks window. Zero disables the limit.
	SayWindowTicks int `yaml:"say_window_ticks"`
	SayMax         int `yaml:"say_max"`

	// Interrupting lists, per action kind, whether starting it cancels the current action.
	// Keys: moving, gathering, crafting, combat.
	Interrupting map[string]bool `yaml:"interrupting"`

	NPC       NPC       `yaml:"npc"`
	Cognition Cognition `yaml:"cognition"`
}

type NPC struct {
	WanderEveryTicks int `yaml:"wander_every_ticks"`
	LeashRadius      int `yaml:"leash_radius"`
}

type Cognition struct {
	Workers             int `yaml:"workers"`
	QueueSize           int `yaml:"queue_size"`
	DecisionTimeoutMs   int `yaml:"decision_timeout_ms"`
	DeadlineTicks       int `yaml:"deadline_ticks"`
	ThinkEveryTicks     int `yaml:"think_every_ticks"`
	FailureBackoffTicks int `yaml:"failure_backoff_ticks"`
	MemorySize          int `yaml:"memory_size"`
	ReflectEveryTicks   int `yaml:"reflect_every_ticks"`
	ReflectMinEntries   int `yaml:"reflect_min_entries"`
	RaidMaxMembers      int `yaml:"raid_max_members"`
}

func Defaults() Tuning {
	return Tuning{
		WorldID:            "world_1",
		TickRateHz:         2,
		Seed:               1337,
		SnapshotEveryTicks: 3000,
		InventorySlots:     28,
		BankSlots:          100,
		GatherRange:        1,
		AttackRange:        1,
		HearingRange:       8,
		RespawnTicks:       20,
		SayWindowTicks:     10,
		SayMax:             3,
		Interrupting: map[string]bool{
			"moving":    true,
			"gathering": false,
			"crafting":  false,
			"combat":    false,
		},
		NPC: NPC{
			WanderEveryTicks: 8,
			LeashRadius:      10,
		},
		Cognition: Cognition{
			Workers:             4,
			QueueSize:           64,
			DecisionTimeoutMs:   8000,
			DeadlineTicks:       20,
			ThinkEveryTicks:     10,
			FailureBackoffTicks: 20,
			MemorySize:          64,
			ReflectEveryTicks:   600,
			ReflectMinEntries:   32,
			RaidMaxMembers:      5,
		},
	}
}

// Load reads a tuning file on top of Defaults(); fields absent from the file keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	defaults := t.Interrupting
	t.Interrupting = nil
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Defaults(), oops.In("tuning").Wrapf(err, "tuning.yaml")
	}
	if t.Interrupting == nil {
		t.Interrupting = map[string]bool{}
	}
	for k, v := range defaults {
		if _, ok := t.Interrupting[k]; !ok {
			t.Interrupting[k] = v
		}
	}
	if err := t.Validate(); err != nil {
		return Defaults(), err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return oops.In("tuning").With("tick_rate_hz", t.TickRateHz).Errorf("tick_rate_hz must be positive")
	case t.InventorySlots <= 0:
		return oops.In("tuning").With("inventory_slots", t.InventorySlots).Errorf("inventory_slots must be positive")
	case t.SayWindowTicks < 0 || t.SayMax < 0:
		return oops.In("tuning").With("say_window_ticks", t.SayWindowTicks).With("say_max", t.SayMax).Errorf("say limits must not be negative")
	case t.Cognition.Workers <= 0:
		return oops.In("tuning").With("workers", t.Cognition.Workers).Errorf("cognition.workers must be positive")
	case t.Cognition.MemorySize <= 0:
		return oops.In("tuning").With("memory_size", t.Cognition.MemorySize).Errorf("cognition.memory_size must be positive")
	}
	for k := range t.Interrupting {
		switch k {
		case "moving", "gathering", "crafting", "combat":
		default:
			return oops.In("tuning").With("key", k).Errorf("unknown interrupting action kind")
		}
	}
	return nil
}
