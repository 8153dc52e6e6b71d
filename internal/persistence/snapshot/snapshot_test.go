package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	snap := SnapshotV1{
		Header: Header{WorldID: "w", Tick: 42},
		Seed:   7,
		Entities: []EntityV1{{
			ID: "player:1", Kind: "player", Name: "ada",
			Pos: PosV1{Area: "meadow", X: 3, Y: 4}, HP: 10, MaxHP: 10,
			Skills:    map[string]int64{"mining": 35},
			Inventory: []StackV1{{Item: "iron_ore", Count: 1}}, InvCap: 28,
		}},
		Nodes:    []NodeV1{{ID: "oreVein1", Remaining: 3}},
		Counters: CountersV1{NextPlayer: 1},
	}
	path := Path(dir, 42)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.Version != Version || got.Header.Tick != 42 {
		t.Fatalf("header: %+v", got.Header)
	}
	if len(got.Entities) != 1 || got.Entities[0].Skills["mining"] != 35 || got.Entities[0].Pos.X != 3 {
		t.Fatalf("entities: %+v", got.Entities)
	}
	if got.Nodes[0].Remaining != 3 || got.Counters.NextPlayer != 1 {
		t.Fatalf("nodes/counters: %+v %+v", got.Nodes, got.Counters)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if _, ok, err := Latest(filepath.Join(dir, "missing")); err != nil || ok {
		t.Fatalf("missing dir: ok=%v err=%v", ok, err)
	}
	for _, tick := range []uint64{3000, 900, 12000} {
		if err := WriteSnapshot(Path(dir, tick), SnapshotV1{Header: Header{Tick: tick}}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, ok, err := Latest(dir)
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if p != Path(dir, 12000) {
		t.Fatalf("latest = %s", p)
	}
}
