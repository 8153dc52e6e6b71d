package cognition

import (
	"os"
	"strings"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"driftmoor.ai/internal/sim/geom"
)

// Profile is an agent's notecard: persona text plus behavioral parameters.
// It is copied into the AgentContext and never mutated afterwards.
type Profile struct {
	Name            string   `yaml:"name" json:"name"`
	Persona         string   `yaml:"persona" json:"persona"`
	Skill           string   `yaml:"skill" json:"skill"`
	Aggression      float64  `yaml:"aggression" json:"aggression"`
	FleeBelow       float64  `yaml:"flee_below" json:"flee_below"`
	ThinkEveryTicks int      `yaml:"think_every_ticks" json:"think_every_ticks"`
	Home            geom.Pos `yaml:"home" json:"home"`
	Raid            string   `yaml:"raid,omitempty" json:"raid,omitempty"`
}

type RaidDef struct {
	ID              string `yaml:"id"`
	Objective       string `yaml:"objective"`
	ThinkEveryTicks int    `yaml:"think_every_ticks"`
}

type Notecards struct {
	Agents []Profile `yaml:"agents"`
	Raids  []RaidDef `yaml:"raids"`
}

func LoadNotecards(path string) (Notecards, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Notecards{}, oops.In("notecards").With("path", path).Wrap(err)
	}
	return ParseNotecards(raw)
}

func ParseNotecards(raw []byte) (Notecards, error) {
	var n Notecards
	if err := yaml.Unmarshal(raw, &n); err != nil {
		return Notecards{}, oops.In("notecards").Wrapf(err, "agents.yaml")
	}
	raids := map[string]bool{}
	for _, r := range n.Raids {
		if strings.TrimSpace(r.ID) == "" {
			return Notecards{}, oops.In("notecards").Errorf("raid without id")
		}
		raids[r.ID] = true
	}
	names := map[string]bool{}
	for i := range n.Agents {
		p := &n.Agents[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Persona = strings.TrimSpace(p.Persona)
		if p.Name == "" {
			return Notecards{}, oops.In("notecards").With("index", i).Errorf("agent without name")
		}
		if names[p.Name] {
			return Notecards{}, oops.In("notecards").With("name", p.Name).Errorf("duplicate agent name")
		}
		names[p.Name] = true
		if p.Raid != "" && !raids[p.Raid] {
			return Notecards{}, oops.In("notecards").With("name", p.Name).With("raid", p.Raid).Errorf("unknown raid")
		}
		if p.Aggression < 0 || p.Aggression > 1 || p.FleeBelow < 0 || p.FleeBelow > 1 {
			return Notecards{}, oops.In("notecards").With("name", p.Name).Errorf("aggression and flee_below must be within [0,1]")
		}
	}
	return n, nil
}
