package world

import (
	"github.com/samber/oops"

	"driftmoor.ai/internal/persistence/snapshot"
	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/geom"
)

func posV1(p geom.Pos) snapshot.PosV1     { return snapshot.PosV1{Area: p.Area, X: p.X, Y: p.Y} }
func posFromV1(p snapshot.PosV1) geom.Pos { return geom.Pos{Area: p.Area, X: p.X, Y: p.Y} }

func stacksV1(inv Inventory) []snapshot.StackV1 {
	out := make([]snapshot.StackV1, 0, len(inv.Slots))
	for _, s := range inv.Slots {
		out = append(out, snapshot.StackV1{Item: s.Item, Count: s.Count})
	}
	return out
}

func inventoryFromV1(stacks []snapshot.StackV1, capacity int) Inventory {
	inv := NewInventory(capacity)
	for _, s := range stacks {
		inv.Slots = append(inv.Slots, Slot{Item: s.Item, Count: s.Count})
	}
	return inv
}

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header:   snapshot.Header{Version: snapshot.Version, WorldID: w.cfg.WorldID, Tick: nowTick},
		Seed:     w.cfg.Seed,
		TickRate: w.cfg.TickRateHz,
		Counters: snapshot.CountersV1{NextPlayer: w.nextPlayerNum},
	}
	for _, id := range w.store.IDs() {
		e, _ := w.store.Get(id)
		snap.Entities = append(snap.Entities, entityV1(e))
	}
	for _, id := range sortedKeys(w.nodes) {
		n := w.nodes[id]
		snap.Nodes = append(snap.Nodes, snapshot.NodeV1{
			ID:          n.ID,
			Remaining:   n.Remaining,
			Depleted:    n.Depleted,
			RespawnTick: n.RespawnTick,
			Gatherers:   sortedKeys(n.Gatherers),
		})
	}
	for _, id := range sortedKeys(w.shopStock) {
		stock := make(map[string]int, len(w.shopStock[id]))
		for k, v := range w.shopStock[id] {
			stock[k] = v
		}
		snap.Shops = append(snap.Shops, snapshot.ShopStockV1{ShopID: id, Stock: stock})
	}
	return snap
}

func entityV1(e *Entity) snapshot.EntityV1 {
	out := snapshot.EntityV1{
		ID: e.ID, Kind: string(e.Kind), Name: e.Name,
		Pos: posV1(e.Pos), Home: posV1(e.Home),
		HP: e.HP, MaxHP: e.MaxHP, Attack: e.Attack, Defence: e.Defence, MaxHit: e.MaxHit,
		Dead: e.Dead, RespawnAt: e.RespawnAt,
		Skills:    make(map[string]int64, len(e.Skills)),
		Inventory: stacksV1(e.Inventory), InvCap: e.Inventory.Cap,
		Bank: stacksV1(e.Bank), BankCap: e.Bank.Cap,
		Generation: e.Generation,
	}
	for k, v := range e.Skills {
		out.Skills[k] = v
	}
	for _, q := range sortedKeys(e.Quests) {
		st := e.Quests[q]
		out.Quests = append(out.Quests, snapshot.QuestV1{ID: q, Stage: st.Stage, Done: st.Done})
	}
	a := e.Action
	out.Action = snapshot.ActionV1{
		Kind: string(a.Kind), Dest: posV1(a.Dest), NodeID: a.NodeID, Cooldown: a.Cooldown,
		RecipeID: a.RecipeID, Progress: a.Progress, TargetID: a.TargetID,
	}
	for _, p := range a.Path {
		out.Action.Path = append(out.Action.Path, posV1(p))
	}
	if e.NPC != nil {
		out.NPCType = e.NPC.Type
		out.LastAttacker = e.NPC.LastAttacker
	}
	return out
}

func entityFromV1(v snapshot.EntityV1) *Entity {
	e := &Entity{
		ID: v.ID, Kind: Kind(v.Kind), Name: v.Name,
		Pos: posFromV1(v.Pos), Home: posFromV1(v.Home),
		HP: v.HP, MaxHP: v.MaxHP, Attack: v.Attack, Defence: v.Defence, MaxHit: v.MaxHit,
		Dead: v.Dead, RespawnAt: v.RespawnAt,
		Skills:     map[string]int64{},
		Inventory:  inventoryFromV1(v.Inventory, v.InvCap),
		Bank:       inventoryFromV1(v.Bank, v.BankCap),
		Quests:     map[string]QuestState{},
		Generation: v.Generation,
	}
	for k, x := range v.Skills {
		e.Skills[k] = x
	}
	for _, q := range v.Quests {
		e.Quests[q.ID] = QuestState{Stage: q.Stage, Done: q.Done}
	}
	e.Action = Action{
		Kind: ActionKind(v.Action.Kind), Dest: posFromV1(v.Action.Dest), NodeID: v.Action.NodeID,
		Cooldown: v.Action.Cooldown, RecipeID: v.Action.RecipeID, Progress: v.Action.Progress,
		TargetID: v.Action.TargetID,
	}
	if e.Action.Kind == "" {
		e.Action.Kind = ActionIdle
	}
	for _, p := range v.Action.Path {
		e.Action.Path = append(e.Action.Path, posFromV1(p))
	}
	if v.NPCType != "" {
		e.NPC = &NPCState{Type: v.NPCType, LastAttacker: v.LastAttacker}
	}
	return e
}

// ImportSnapshot replaces the world state with snap. It must be called before Run and before any
// session joins. Players have no session after a restart, so they are not recreated; their progress
// goes to the profile sink as if they had left. Agents are reattached to their notecards by name;
// agents whose notecard is gone are removed, and notecard agents missing from the snapshot are
// spawned fresh.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.WorldID != "" && snap.Header.WorldID != w.cfg.WorldID {
		return oops.In("world").With("snapshot_world", snap.Header.WorldID).With("world", w.cfg.WorldID).
			Errorf("snapshot belongs to another world")
	}
	for _, n := range snap.Nodes {
		if _, ok := w.nodes[n.ID]; !ok {
			return oops.In("world").With("node", n.ID).Errorf("snapshot node not in layout")
		}
	}

	w.store.begin()
	defer w.store.end()

	for _, id := range w.store.IDs() {
		w.removeEntity(id)
	}
	for _, v := range snap.Entities {
		e := entityFromV1(v)
		if e.Kind == KindNPC {
			if e.NPC == nil {
				return oops.In("world").With("entity", e.ID).Errorf("npc without type")
			}
			if _, ok := w.catalogs.NPCs.ByType[e.NPC.Type]; !ok {
				return oops.In("world").With("entity", e.ID).With("type", e.NPC.Type).Errorf("unknown npc type")
			}
		}
		if e.Kind == KindPlayer {
			w.parkPlayer(e, snap.Header.Tick)
			continue
		}
		if e.Kind == KindAgent {
			if _, ok := w.profiles[e.Name]; !ok || w.cog == nil {
				continue
			}
		}
		if err := w.store.Create(e); err != nil {
			return err
		}
	}
	for _, n := range snap.Nodes {
		node := w.nodes[n.ID]
		node.Remaining, node.Depleted, node.RespawnTick = n.Remaining, n.Depleted, n.RespawnTick
		node.Gatherers = map[string]bool{}
		for _, g := range n.Gatherers {
			if e, ok := w.store.Get(g); ok && e.Action.Kind == ActionGathering && e.Action.NodeID == n.ID {
				node.Gatherers[g] = true
			}
		}
	}
	for _, s := range snap.Shops {
		if _, ok := w.shopStock[s.ShopID]; !ok {
			continue
		}
		for item, n := range s.Stock {
			w.shopStock[s.ShopID][item] = n
		}
	}
	w.nextPlayerNum = snap.Counters.NextPlayer
	w.tick.Store(snap.Header.Tick + 1)

	if w.cog != nil {
		if err := w.reattachAgents(snap.Header.Tick); err != nil {
			return err
		}
	}
	w.store.takeDirty()
	w.lastSent = map[string]protocol.EntityState{}
	return nil
}

// parkPlayer hands a snapshotted player's progress to the profile sink so a rejoin by name restores it.
func (w *World) parkPlayer(e *Entity, tick uint64) {
	if w.profileSink == nil {
		return
	}
	rec, err := w.profileRecord(e, tick)
	if err != nil {
		w.log.WithError(err).WithField("entity", e.ID).Error("serialize profile")
		return
	}
	select {
	case w.profileSink <- rec:
	default:
		w.log.WithField("entity", e.ID).Warn("profile sink backed up, dropping save")
	}
}

func (w *World) reattachAgents(nowTick uint64) error {
	b := w.bridge()
	for _, name := range sortedKeys(w.profiles) {
		p := w.profiles[name]
		var id string
		for _, eid := range w.store.IDs() {
			if e, _ := w.store.Get(eid); e.Kind == KindAgent && e.Name == name {
				id = eid
				break
			}
		}
		if id == "" {
			var err error
			if id, err = b.SpawnAgent(name, p.Home); err != nil {
				return oops.In("world").With("agent", name).Wrapf(err, "respawn agent")
			}
		}
		if err := w.cog.Attach(id, p, nowTick); err != nil {
			return oops.In("world").With("agent", name).Wrapf(err, "attach agent")
		}
		if p.Raid != "" {
			if err := w.cog.JoinRaid(p.Raid, id); err != nil {
				return oops.In("world").With("agent", name).Wrapf(err, "join raid")
			}
		}
	}
	return nil
}
