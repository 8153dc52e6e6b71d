package world

import (
	"path/filepath"
	"testing"

	"driftmoor.ai/internal/persistence/snapshot"
	"driftmoor.ai/internal/protocol"
)

func TestSnapshot_ExportImportResumesDeterministically(t *testing.T) {
	w := testWorld(t, nil)
	ids := joinAll(t, w, "ada", "bo")
	place(w, ids[0], valley(19, 20))
	send(w, ids[0], protocol.IntentMsg{Intent: protocol.IntentGatherResource, NodeID: "lonelyRock"})
	send(w, ids[1], protocol.IntentMsg{Intent: protocol.IntentShopBuy, ShopID: "general_store", Item: "bread", Count: 1})
	steps(w, 3)

	tick := w.CurrentTick() - 1
	snap := w.ExportSnapshot(tick)
	path := snapshot.Path(filepath.Join(t.TempDir(), "snapshots"), tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	w2, w3 := testWorld(t, nil), testWorld(t, nil)
	for _, x := range []*World{w2, w3} {
		if err := x.ImportSnapshot(loaded); err != nil {
			t.Fatalf("import: %v", err)
		}
	}
	if w2.CurrentTick() != w.CurrentTick() {
		t.Fatalf("tick=%d want %d", w2.CurrentTick(), w.CurrentTick())
	}
	if got, want := w2.nodes["lonelyRock"].Remaining, w.nodes["lonelyRock"].Remaining; got != want {
		t.Fatalf("node remaining=%d want %d", got, want)
	}
	if got, want := w2.shopStock["general_store"]["bread"], w.shopStock["general_store"]["bread"]; got != want {
		t.Fatalf("bread stock=%d want %d", got, want)
	}
	if w2.stateDigest(tick) != w3.stateDigest(tick) {
		t.Fatalf("imports of the same snapshot differ")
	}

	w2.StepOnce()
	w3.StepOnce()
	if w2.Metrics().Digest != w3.Metrics().Digest {
		t.Fatalf("worlds diverged after resume")
	}

	resp := make(chan JoinResponse, 1)
	w2.Join() <- JoinRequest{Name: "cy", Resp: resp}
	w2.StepOnce()
	if id := (<-resp).Welcome.EntityID; id != "player:3" {
		t.Fatalf("player counter not restored: %s", id)
	}
}

func TestSnapshot_ImportParksPlayersForRejoin(t *testing.T) {
	w := testWorld(t, nil)
	id := joinAll(t, w, "ada")[0]
	give(t, w, id, coins, 40)
	w.StepOnce()
	want := mustEntity(t, w, id).Inventory.Count(coins)
	snap := w.ExportSnapshot(w.CurrentTick() - 1)

	w2 := testWorld(t, nil)
	sink := make(chan ProfileRecord, 4)
	w2.SetProfileSink(sink)
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	for _, eid := range w2.store.IDs() {
		if e, _ := w2.store.Get(eid); e.Kind == KindPlayer {
			t.Fatalf("sessionless player %s survived import", eid)
		}
	}
	if _, ok := w2.clients[id]; ok {
		t.Fatalf("session for %s after import", id)
	}

	var rec ProfileRecord
	select {
	case rec = <-sink:
	default:
		t.Fatalf("no profile record for snapshotted player")
	}
	if rec.Name != "ada" || rec.EntityID != id {
		t.Fatalf("record: %+v", rec)
	}

	resp := make(chan JoinResponse, 1)
	w2.Join() <- JoinRequest{Name: "ada", Profile: &rec.Profile, Resp: resp}
	w2.StepOnce()
	back := mustEntity(t, w2, (<-resp).Welcome.EntityID)
	if got := back.Inventory.Count(coins); got != want || got < 40 {
		t.Fatalf("coins=%d after rejoin, want %d", got, want)
	}
	named := 0
	for _, eid := range w2.store.IDs() {
		if e, _ := w2.store.Get(eid); e.Name == "ada" {
			named++
		}
	}
	if named != 1 {
		t.Fatalf("%d entities named ada", named)
	}
}

func TestSnapshot_ImportRejectsOtherWorld(t *testing.T) {
	w := testWorld(t, nil)
	snap := w.ExportSnapshot(0)
	snap.Header.WorldID = "elsewhere"
	if err := testWorld(t, nil).ImportSnapshot(snap); err == nil {
		t.Fatalf("expected error")
	}
}
