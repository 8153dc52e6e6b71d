package world

import (
	"path/filepath"
	"testing"
	"time"

	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/catalogs"
	"driftmoor.ai/internal/sim/geom"
	"driftmoor.ai/internal/sim/tuning"
)

const configDir = "../../../configs"

func testWorld(t *testing.T, mod func(cfg *WorldConfig)) *World {
	t.Helper()
	cats, err := catalogs.Load(configDir)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	tun, err := tuning.Load(filepath.Join(configDir, "tuning.yaml"))
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	cfg := WorldConfig{Tuning: tun}
	if mod != nil {
		mod(&cfg)
	}
	w, err := New(cfg, cats)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

// joinAll queues a join per name, runs one tick and returns the entity ids in order.
func joinAll(t *testing.T, w *World, names ...string) []string {
	t.Helper()
	resps := make([]chan JoinResponse, len(names))
	for i, n := range names {
		resps[i] = make(chan JoinResponse, 1)
		w.Join() <- JoinRequest{Name: n, Resp: resps[i]}
	}
	w.StepOnce()
	ids := make([]string, len(names))
	for i, ch := range resps {
		r := <-ch
		if r.Err != nil {
			t.Fatalf("join %s: %v", names[i], r.Err)
		}
		ids[i] = r.Welcome.EntityID
	}
	return ids
}

func send(w *World, id string, in protocol.IntentMsg) {
	in.Type = protocol.TypeIntent
	in.ProtocolVersion = protocol.Version
	w.Inbox() <- IntentEnvelope{EntityID: id, Intent: in}
}

func steps(w *World, n int) {
	for i := 0; i < n; i++ {
		w.StepOnce()
	}
}

func mustEntity(t *testing.T, w *World, id string) *Entity {
	t.Helper()
	e, ok := w.store.Get(id)
	if !ok {
		t.Fatalf("entity %s missing", id)
	}
	return e
}

// edit mutates an entity between ticks, the way a test fixture would.
func edit(w *World, id string, fn func(e *Entity)) {
	w.store.begin()
	defer w.store.end()
	_ = w.store.Mutate(id, fn)
}

func place(w *World, id string, p geom.Pos) {
	edit(w, id, func(e *Entity) { e.Pos = p })
}

func give(t *testing.T, w *World, id, item string, n int) {
	t.Helper()
	edit(w, id, func(e *Entity) {
		if err := e.Inventory.Add(item, n, w.catalogs.Stackable(item)); err != nil {
			t.Fatalf("give %s: %v", item, err)
		}
	})
}

func valley(x, y int) geom.Pos { return geom.Pos{Area: "valley", X: x, Y: y} }

func pos(p geom.Pos) *protocol.Position {
	v := toPosition(p)
	return &v
}

// rejection returns the code of the intent_rejected event addressed to id in the last tick.
func rejection(w *World, id string) string {
	for _, ev := range w.Events() {
		if ev.Type == protocol.EventIntentRejected && ev.To == id {
			return ev.Code
		}
	}
	return ""
}

func hasEvent(w *World, typ, entity string) bool {
	for _, ev := range w.Events() {
		if ev.Type == typ && ev.EntityID == entity {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func pos2(area string, x, y int) geom.Pos { return geom.Pos{Area: area, X: x, Y: y} }
