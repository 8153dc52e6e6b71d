package world

import (
	"encoding/json"

	"github.com/samber/oops"

	"driftmoor.ai/internal/sim/simerr"
)

// SavedProfile is what a returning player brings back on join. The blobs are produced by the
// Serialize* functions.
type SavedProfile struct {
	Name      string          `json:"name"`
	Skills    json.RawMessage `json:"skills,omitempty"`
	Inventory json.RawMessage `json:"inventory,omitempty"`
	Bank      json.RawMessage `json:"bank,omitempty"`
	Quests    json.RawMessage `json:"quests,omitempty"`
}

// ProfileRecord is emitted when a player leaves.
type ProfileRecord struct {
	Name     string
	EntityID string
	Tick     uint64
	Profile  SavedProfile
}

func SerializeSkills(e *Entity) ([]byte, error) {
	return json.Marshal(e.Skills)
}

// RestoreSkills replaces e's skill XP. Negative XP and unknown-shaped blobs are rejected without
// touching e.
func RestoreSkills(e *Entity, blob []byte) error {
	var m map[string]int64
	if err := json.Unmarshal(blob, &m); err != nil {
		return oops.In("persist").Wrapf(err, "skills blob")
	}
	for s, v := range m {
		if v < 0 {
			return simerr.New(simerr.InvalidTarget, "skill %s has negative xp", s)
		}
	}
	if m == nil {
		m = map[string]int64{}
	}
	e.Skills = m
	return nil
}

func SerializeInventory(inv Inventory) ([]byte, error) {
	return json.Marshal(inv.Slots)
}

// RestoreInventory replaces inv's slots. The blob must fit inv's capacity.
func RestoreInventory(inv *Inventory, blob []byte) error {
	var slots []Slot
	if err := json.Unmarshal(blob, &slots); err != nil {
		return oops.In("persist").Wrapf(err, "inventory blob")
	}
	if len(slots) > inv.Cap {
		return simerr.New(simerr.CapacityExceeded, "%d slots saved, %d available", len(slots), inv.Cap)
	}
	for _, s := range slots {
		if s.Item == "" || s.Count <= 0 {
			return simerr.New(simerr.InvalidTarget, "bad slot %+v", s)
		}
	}
	inv.Slots = slots
	return nil
}

func SerializeQuests(e *Entity) ([]byte, error) {
	return json.Marshal(e.Quests)
}

func RestoreQuests(e *Entity, blob []byte) error {
	var m map[string]QuestState
	if err := json.Unmarshal(blob, &m); err != nil {
		return oops.In("persist").Wrapf(err, "quests blob")
	}
	for id, st := range m {
		if st.Stage < 0 {
			return simerr.New(simerr.InvalidTarget, "quest %s has negative stage", id)
		}
	}
	if m == nil {
		m = map[string]QuestState{}
	}
	e.Quests = m
	return nil
}

// restoreProfile applies every blob of p to e, or none of them. Items and quests the catalogs no
// longer know are rejected.
func (w *World) restoreProfile(e *Entity, p SavedProfile) error {
	next := *e
	next.Inventory = e.Inventory.Clone()
	next.Bank = e.Bank.Clone()
	if len(p.Skills) > 0 {
		if err := RestoreSkills(&next, p.Skills); err != nil {
			return err
		}
	}
	if len(p.Inventory) > 0 {
		if err := RestoreInventory(&next.Inventory, p.Inventory); err != nil {
			return err
		}
	}
	if len(p.Bank) > 0 {
		if err := RestoreInventory(&next.Bank, p.Bank); err != nil {
			return err
		}
	}
	if len(p.Quests) > 0 {
		if err := RestoreQuests(&next, p.Quests); err != nil {
			return err
		}
	}
	for _, inv := range []Inventory{next.Inventory, next.Bank} {
		if err := w.checkSlots(inv); err != nil {
			return err
		}
	}
	for id, st := range next.Quests {
		def, ok := w.catalogs.Quests.ByID[id]
		if !ok {
			return simerr.New(simerr.NotFound, "quest %s", id)
		}
		if st.Stage > len(def.Stages) {
			return simerr.New(simerr.InvalidTarget, "quest %s stage %d past its %d stages", id, st.Stage, len(def.Stages))
		}
	}
	*e = next
	return nil
}

// checkSlots holds restored slots to the shape Add produces: known items, one slot per stackable
// item, one unit per slot otherwise.
func (w *World) checkSlots(inv Inventory) error {
	seen := map[string]bool{}
	for _, s := range inv.Slots {
		if _, ok := w.catalogs.Items.ByID[s.Item]; !ok {
			return simerr.New(simerr.NotFound, "item %s", s.Item)
		}
		if !w.catalogs.Stackable(s.Item) {
			if s.Count != 1 {
				return simerr.New(simerr.InvalidTarget, "%d %s in one slot, item does not stack", s.Count, s.Item)
			}
			continue
		}
		if seen[s.Item] {
			return simerr.New(simerr.InvalidTarget, "%s split across slots", s.Item)
		}
		seen[s.Item] = true
	}
	return nil
}

func (w *World) profileRecord(e *Entity, nowTick uint64) (ProfileRecord, error) {
	skills, err := SerializeSkills(e)
	if err != nil {
		return ProfileRecord{}, err
	}
	inv, err := SerializeInventory(e.Inventory)
	if err != nil {
		return ProfileRecord{}, err
	}
	bank, err := SerializeInventory(e.Bank)
	if err != nil {
		return ProfileRecord{}, err
	}
	quests, err := SerializeQuests(e)
	if err != nil {
		return ProfileRecord{}, err
	}
	return ProfileRecord{
		Name:     e.Name,
		EntityID: e.ID,
		Tick:     nowTick,
		Profile: SavedProfile{
			Name: e.Name, Skills: skills, Inventory: inv, Bank: bank, Quests: quests,
		},
	}, nil
}
