package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/samber/oops"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is the full authoritative state at the end of a tick. Sessions and in-flight
// cognition requests are not part of it.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed     int64 `json:"seed"`
	TickRate int   `json:"tick_rate_hz"`

	Entities []EntityV1    `json:"entities"`
	Nodes    []NodeV1      `json:"nodes"`
	Shops    []ShopStockV1 `json:"shops"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextPlayer uint64 `json:"next_player"`
}

type PosV1 struct {
	Area string `json:"area"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

type StackV1 struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type QuestV1 struct {
	ID    string `json:"id"`
	Stage int    `json:"stage"`
	Done  bool   `json:"done,omitempty"`
}

type ActionV1 struct {
	Kind     string  `json:"kind"`
	Dest     PosV1   `json:"dest,omitempty"`
	Path     []PosV1 `json:"path,omitempty"`
	NodeID   string  `json:"node_id,omitempty"`
	Cooldown int     `json:"cooldown,omitempty"`
	RecipeID string  `json:"recipe_id,omitempty"`
	Progress int     `json:"progress,omitempty"`
	TargetID string  `json:"target_id,omitempty"`
}

type EntityV1 struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
	Pos  PosV1  `json:"pos"`
	Home PosV1  `json:"home"`

	HP      int `json:"hp"`
	MaxHP   int `json:"max_hp"`
	Attack  int `json:"attack"`
	Defence int `json:"defence"`
	MaxHit  int `json:"max_hit"`

	Dead      bool   `json:"dead,omitempty"`
	RespawnAt uint64 `json:"respawn_at,omitempty"`

	Skills     map[string]int64 `json:"skills"`
	Inventory  []StackV1        `json:"inventory"`
	InvCap     int              `json:"inv_cap"`
	Bank       []StackV1        `json:"bank"`
	BankCap    int              `json:"bank_cap"`
	Quests     []QuestV1        `json:"quests,omitempty"`
	Action     ActionV1         `json:"action"`
	Generation uint64           `json:"generation"`

	NPCType      string `json:"npc_type,omitempty"`
	LastAttacker string `json:"last_attacker,omitempty"`
}

type NodeV1 struct {
	ID          string   `json:"id"`
	Remaining   int      `json:"remaining"`
	Depleted    bool     `json:"depleted,omitempty"`
	RespawnTick uint64   `json:"respawn_tick,omitempty"`
	Gatherers   []string `json:"gatherers,omitempty"`
}

type ShopStockV1 struct {
	ShopID string         `json:"shop_id"`
	Stock  map[string]int `json:"stock"`
}

// Path returns the canonical file name for a snapshot taken at tick.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, strconv.FormatUint(tick, 10)+".snap.zst")
}

// Latest returns the snapshot file with the highest tick in dir.
func Latest(dir string) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, oops.In("snapshot").With("dir", dir).Wrapf(err, "list snapshots")
	}
	var ticks []uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		t, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, t)
	}
	if len(ticks) == 0 {
		return "", false, nil
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	return Path(dir, ticks[len(ticks)-1]), true, nil
}

// WriteSnapshot writes a zstd stream holding a JSON header line followed by the gob-encoded
// snapshot. The file is written beside path and renamed into place.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return oops.In("snapshot").With("path", path).Wrapf(err, "mkdir")
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return oops.In("snapshot").With("path", path).Wrapf(err, "create")
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return oops.In("snapshot").With("path", path).Wrapf(err, "encode")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return oops.In("snapshot").With("path", path).Wrapf(err, "close")
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	snap.Header.Version = Version
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, oops.In("snapshot").With("path", path).Wrapf(err, "open")
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, oops.In("snapshot").With("path", path).Wrapf(err, "read header")
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, oops.In("snapshot").With("path", path).Wrapf(err, "decode header")
	}
	if h.Version != Version {
		return snap, oops.In("snapshot").With("path", path).With("version", h.Version).Errorf("unsupported snapshot version")
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, oops.In("snapshot").With("path", path).Wrapf(err, "gob decode")
	}
	return snap, nil
}
