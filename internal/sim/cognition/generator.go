package cognition

import (
	"sort"

	"github.com/samber/oops"

	"driftmoor.ai/internal/sim/geom"
)

// Spawner creates the entity backing an agent. The world implements it.
type Spawner interface {
	SpawnAgent(name string, at geom.Pos) (entityID string, err error)
}

// Generate instantiates every agent in cards: it spawns the entity, attaches the agent context and
// enrolls the agent in its raid. Raids are defined first. Agents are spawned in name order.
func Generate(sp Spawner, l *Layer, cards Notecards, tick uint64) ([]string, error) {
	for _, r := range cards.Raids {
		l.DefineRaid(r)
	}
	profiles := append([]Profile(nil), cards.Agents...)
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		id, err := sp.SpawnAgent(p.Name, p.Home)
		if err != nil {
			return ids, oops.In("generator").With("agent", p.Name).Wrapf(err, "spawn")
		}
		if err := l.Attach(id, p, tick); err != nil {
			return ids, oops.In("generator").With("agent", p.Name).Wrapf(err, "attach")
		}
		if p.Raid != "" {
			if err := l.JoinRaid(p.Raid, id); err != nil {
				return ids, oops.In("generator").With("agent", p.Name).With("raid", p.Raid).Wrapf(err, "join raid")
			}
		}
		ids = append(ids, id)
	}
	return ids, nil
}
