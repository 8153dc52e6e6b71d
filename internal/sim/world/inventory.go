package world

import (
	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/simerr"
)

type Slot struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// Inventory is an ordered, bounded list of slots. Stackable items share one slot; every
// non-stackable unit takes its own slot.
type Inventory struct {
	Slots []Slot `json:"slots"`
	Cap   int    `json:"cap"`
}

func NewInventory(capacity int) Inventory { return Inventory{Cap: capacity} }

func (inv Inventory) Clone() Inventory {
	return Inventory{Slots: append([]Slot(nil), inv.Slots...), Cap: inv.Cap}
}

func (inv Inventory) Count(item string) int {
	n := 0
	for _, s := range inv.Slots {
		if s.Item == item {
			n += s.Count
		}
	}
	return n
}

func (inv Inventory) Free() int { return inv.Cap - len(inv.Slots) }

// slotsNeeded is how many new slots adding n units of item would take.
func (inv Inventory) slotsNeeded(item string, n int, stackable bool) int {
	if n <= 0 {
		return 0
	}
	if !stackable {
		return n
	}
	for _, s := range inv.Slots {
		if s.Item == item {
			return 0
		}
	}
	return 1
}

func (inv Inventory) CanAdd(item string, n int, stackable bool) bool {
	return inv.slotsNeeded(item, n, stackable) <= inv.Free()
}

// Add inserts n units or nothing.
func (inv *Inventory) Add(item string, n int, stackable bool) error {
	if n <= 0 {
		return nil
	}
	if !inv.CanAdd(item, n, stackable) {
		return simerr.New(simerr.CapacityExceeded, "no room for %d %s", n, item)
	}
	if stackable {
		for i := range inv.Slots {
			if inv.Slots[i].Item == item {
				inv.Slots[i].Count += n
				return nil
			}
		}
		inv.Slots = append(inv.Slots, Slot{Item: item, Count: n})
		return nil
	}
	for i := 0; i < n; i++ {
		inv.Slots = append(inv.Slots, Slot{Item: item, Count: 1})
	}
	return nil
}

// Remove takes n units or nothing.
func (inv *Inventory) Remove(item string, n int) error {
	if n <= 0 {
		return nil
	}
	if inv.Count(item) < n {
		return simerr.New(simerr.InsufficientResources, "need %d %s", n, item)
	}
	out := inv.Slots[:0]
	for _, s := range inv.Slots {
		if s.Item == item && n > 0 {
			take := s.Count
			if take > n {
				take = n
			}
			s.Count -= take
			n -= take
		}
		if s.Count > 0 {
			out = append(out, s)
		}
	}
	inv.Slots = out
	return nil
}

func (inv Inventory) Stacks() []protocol.ItemStack {
	out := make([]protocol.ItemStack, 0, len(inv.Slots))
	for _, s := range inv.Slots {
		out = append(out, protocol.ItemStack{Item: s.Item, Count: s.Count})
	}
	return out
}

func (inv Inventory) equal(o Inventory) bool {
	if len(inv.Slots) != len(o.Slots) {
		return false
	}
	for i := range inv.Slots {
		if inv.Slots[i] != o.Slots[i] {
			return false
		}
	}
	return true
}
