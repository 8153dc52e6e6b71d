package world

import (
	"driftmoor.ai/internal/sim/catalogs"
	"driftmoor.ai/internal/sim/cognition"
	"driftmoor.ai/internal/sim/simerr"
)

// craft verifies the recipe against the entity's inventory and skills. Instant recipes apply at
// once; timed ones start a Crafting action and apply on completion. Nothing is consumed unless the
// whole recipe applies.
func (w *World) craft(e *Entity, recipeID string, nowTick uint64) error {
	r, ok := w.catalogs.Recipes.ByID[recipeID]
	if !ok {
		return simerr.New(simerr.NotFound, "recipe %s", recipeID)
	}
	if r.Skill != "" && e.Level(r.Skill) < r.Level {
		return simerr.New(simerr.InsufficientResources, "%s level %d required", r.Skill, r.Level)
	}
	inv, err := w.craftedInventory(e, r)
	if err != nil {
		return err
	}
	if r.Ticks <= 0 {
		w.completeCraft(e, r, inv, nowTick)
		return nil
	}
	return w.startAction(e, Action{Kind: ActionCrafting, RecipeID: recipeID}, nowTick)
}

func (w *World) craftedInventory(e *Entity, r catalogs.RecipeDef) (Inventory, error) {
	inv := e.Inventory.Clone()
	for _, in := range r.Inputs {
		if err := inv.Remove(in.Item, in.Count); err != nil {
			return Inventory{}, err
		}
	}
	for _, out := range r.Outputs {
		if err := inv.Add(out.Item, out.Count, w.catalogs.Stackable(out.Item)); err != nil {
			return Inventory{}, err
		}
	}
	return inv, nil
}

func (w *World) completeCraft(e *Entity, r catalogs.RecipeDef, inv Inventory, nowTick uint64) {
	w.store.edit(e.ID).Inventory = inv
	w.awardXP(e, r.Skill, r.XP, nowTick)
	w.remember(e.ID, nowTick, cognition.MemoryItemReceived, r.ID, "crafted "+r.ID)
}

// tickCraft advances a timed craft. Preconditions are checked again on completion because the
// inventory may have changed meanwhile.
func (w *World) tickCraft(e *Entity, nowTick uint64) {
	r, ok := w.catalogs.Recipes.ByID[e.Action.RecipeID]
	if !ok {
		w.cancelAction(e, "recipe missing", nowTick)
		return
	}
	e = w.store.edit(e.ID)
	e.Action.Progress++
	if e.Action.Progress < r.Ticks {
		return
	}
	inv, err := w.craftedInventory(e, r)
	if err != nil {
		w.cancelAction(e, err.Error(), nowTick)
		return
	}
	w.completeCraft(e, r, inv, nowTick)
	w.finishAction(e)
}
