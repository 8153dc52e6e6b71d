package world

import (
	"driftmoor.ai/internal/sim/geom"
	"driftmoor.ai/internal/sim/simerr"
)

// startMove begins walking to dest. An empty dest area means the entity's current area.
func (w *World) startMove(e *Entity, dest geom.Pos, nowTick uint64) error {
	dest, err := w.validateDest(e, dest)
	if err != nil {
		return err
	}
	return w.startAction(e, moveAction(e, dest), nowTick)
}

func (w *World) validateDest(e *Entity, dest geom.Pos) (geom.Pos, error) {
	if dest.Area == "" {
		dest.Area = e.Pos.Area
	}
	if dest.Area != e.Pos.Area {
		return dest, simerr.New(simerr.InvalidTarget, "%s is in another area", dest)
	}
	b, ok := w.catalogs.Area(dest.Area)
	if !ok || !b.Contains(dest) {
		return dest, simerr.New(simerr.InvalidTarget, "%s is out of bounds", dest)
	}
	return dest, nil
}

func moveAction(e *Entity, dest geom.Pos) Action {
	return Action{Kind: ActionMoving, Dest: dest, Path: geom.Path(e.Pos, dest)}
}

// systemMovement advances every moving entity one tile and idles it on arrival.
func (w *World) systemMovement(nowTick uint64) {
	for _, id := range w.store.IDs() {
		e, _ := w.store.Get(id)
		if e.Dead || e.Action.Kind != ActionMoving {
			continue
		}
		e = w.store.edit(id)
		if len(e.Action.Path) > 0 {
			e.Pos = e.Action.Path[0]
			e.Action.Path = e.Action.Path[1:]
		}
		if len(e.Action.Path) == 0 {
			w.finishAction(e)
		}
	}
}

// stepToward moves e one tile toward target without changing its action (combat chase).
func (w *World) stepToward(e *Entity, target geom.Pos) {
	next := geom.Step(e.Pos, target)
	if next == target {
		return
	}
	w.store.edit(e.ID).Pos = next
}
