package world

import (
	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/simerr"
)

// questAction completes `stage` of a quest. The stage must be the one the entity is on; its item
// hand-ins, skill checks and rewards apply together or not at all.
func (w *World) questAction(e *Entity, questID string, stage int, nowTick uint64) error {
	def, ok := w.catalogs.Quests.ByID[questID]
	if !ok {
		return simerr.New(simerr.NotFound, "quest %s", questID)
	}
	st := e.Quests[questID]
	if st.Done {
		return simerr.New(simerr.InvalidTarget, "quest %s is complete", questID)
	}
	if stage < 0 || stage != st.Stage || stage >= len(def.Stages) {
		return simerr.New(simerr.InvalidTarget, "quest %s is at stage %d", questID, st.Stage)
	}
	s := def.Stages[stage]
	for _, req := range s.NeedSkills {
		if e.Level(req.Skill) < req.Level {
			return simerr.New(simerr.InsufficientResources, "%s level %d required", req.Skill, req.Level)
		}
	}
	inv := e.Inventory.Clone()
	for _, it := range s.NeedItems {
		if err := inv.Remove(it.Item, it.Count); err != nil {
			return err
		}
	}
	for _, it := range s.RewardItems {
		if err := inv.Add(it.Item, it.Count, w.catalogs.Stackable(it.Item)); err != nil {
			return err
		}
	}

	e = w.store.edit(e.ID)
	e.Inventory = inv
	for _, r := range s.RewardXP {
		w.awardXP(e, r.Skill, r.XP, nowTick)
	}
	st.Stage++
	st.Done = st.Stage >= len(def.Stages)
	e.Quests[questID] = st
	w.emit(protocol.Event{
		Tick: nowTick, Type: protocol.EventQuestUpdate, To: e.ID, EntityID: e.ID, QuestID: questID, Stage: st.Stage,
	})
	return nil
}
