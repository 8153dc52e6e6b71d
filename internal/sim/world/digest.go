package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// stateDigest hashes every entity and node in id order. Two worlds fed the same intents from the
// same seed produce the same digest at every tick.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteI64(h, &tmp, w.cfg.Seed)
	for _, id := range w.store.IDs() {
		e, _ := w.store.Get(id)
		digestEntity(h, &tmp, e)
	}
	for _, id := range sortedKeys(w.nodes) {
		n := w.nodes[id]
		digestString(h, &tmp, n.ID)
		digestWriteI64(h, &tmp, int64(n.Remaining))
		h.Write([]byte{boolByte(n.Depleted)})
		digestWriteU64(h, &tmp, n.RespawnTick)
		for _, g := range sortedKeys(n.Gatherers) {
			digestString(h, &tmp, g)
		}
	}
	for _, shop := range sortedKeys(w.shopStock) {
		digestString(h, &tmp, shop)
		for _, item := range sortedKeys(w.shopStock[shop]) {
			digestString(h, &tmp, item)
			digestWriteI64(h, &tmp, int64(w.shopStock[shop][item]))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestEntity(h hashWriter, tmp *[8]byte, e *Entity) {
	digestString(h, tmp, e.ID)
	digestString(h, tmp, e.Pos.Area)
	digestWriteI64(h, tmp, int64(e.Pos.X))
	digestWriteI64(h, tmp, int64(e.Pos.Y))
	digestWriteI64(h, tmp, int64(e.HP))
	h.Write([]byte{boolByte(e.Dead)})
	digestWriteU64(h, tmp, e.RespawnAt)
	digestWriteU64(h, tmp, e.Generation)

	a := e.Action
	digestString(h, tmp, string(a.Kind))
	digestString(h, tmp, a.Target())
	digestWriteI64(h, tmp, int64(a.Cooldown))
	digestWriteI64(h, tmp, int64(a.Progress))
	digestWriteI64(h, tmp, int64(len(a.Path)))

	for _, s := range sortedKeys(e.Skills) {
		digestString(h, tmp, s)
		digestWriteI64(h, tmp, e.Skills[s])
	}
	for _, inv := range []Inventory{e.Inventory, e.Bank} {
		digestWriteI64(h, tmp, int64(len(inv.Slots)))
		for _, s := range inv.Slots {
			digestString(h, tmp, s.Item)
			digestWriteI64(h, tmp, int64(s.Count))
		}
	}
	for _, q := range sortedKeys(e.Quests) {
		digestString(h, tmp, q)
		digestWriteI64(h, tmp, int64(e.Quests[q].Stage))
		h.Write([]byte{boolByte(e.Quests[q].Done)})
	}
}

func digestString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
