package world

import (
	"driftmoor.ai/internal/sim/catalogs"
	"driftmoor.ai/internal/sim/simerr"
)

const coins = "coins"

func (w *World) loadShops() {
	for id, s := range w.catalogs.Shops.ByID {
		stock := map[string]int{}
		for _, e := range s.Stock {
			stock[e.Item] = e.Stock
		}
		w.shopStock[id] = stock
	}
}

// ShopStock returns the current stock of item in shop.
func (w *World) ShopStock(shopID, item string) int { return w.shopStock[shopID][item] }

func positive(count int) error {
	if count <= 0 {
		return simerr.New(simerr.InvalidTarget, "count must be positive")
	}
	return nil
}

func (w *World) bankDeposit(e *Entity, item string, count int) error {
	if err := positive(count); err != nil {
		return err
	}
	inv, bank := e.Inventory.Clone(), e.Bank.Clone()
	if err := inv.Remove(item, count); err != nil {
		return err
	}
	if err := bank.Add(item, count, true); err != nil {
		return err
	}
	e = w.store.edit(e.ID)
	e.Inventory, e.Bank = inv, bank
	return nil
}

func (w *World) bankWithdraw(e *Entity, item string, count int) error {
	if err := positive(count); err != nil {
		return err
	}
	inv, bank := e.Inventory.Clone(), e.Bank.Clone()
	if err := bank.Remove(item, count); err != nil {
		return err
	}
	if err := inv.Add(item, count, w.catalogs.Stackable(item)); err != nil {
		return err
	}
	e = w.store.edit(e.ID)
	e.Inventory, e.Bank = inv, bank
	return nil
}

func (w *World) shopEntry(e *Entity, shopID, item string) (catalogs.ShopEntry, error) {
	s, ok := w.catalogs.Shops.ByID[shopID]
	if !ok {
		return catalogs.ShopEntry{}, simerr.New(simerr.NotFound, "shop %s", shopID)
	}
	if s.Area != e.Pos.Area {
		return catalogs.ShopEntry{}, simerr.New(simerr.InvalidTarget, "shop %s is in %s", shopID, s.Area)
	}
	for _, entry := range s.Stock {
		if entry.Item == item {
			return entry, nil
		}
	}
	return catalogs.ShopEntry{}, simerr.New(simerr.NotFound, "shop %s does not trade %s", shopID, item)
}

func (w *World) shopBuy(e *Entity, shopID, item string, count int) error {
	if err := positive(count); err != nil {
		return err
	}
	entry, err := w.shopEntry(e, shopID, item)
	if err != nil {
		return err
	}
	if entry.BuyPrice <= 0 {
		return simerr.New(simerr.InvalidTarget, "%s is not for sale", item)
	}
	if w.shopStock[shopID][item] < count {
		return simerr.New(simerr.InsufficientResources, "shop has %d %s", w.shopStock[shopID][item], item)
	}
	inv := e.Inventory.Clone()
	if err := inv.Remove(coins, entry.BuyPrice*count); err != nil {
		return err
	}
	if err := inv.Add(item, count, w.catalogs.Stackable(item)); err != nil {
		return err
	}
	w.store.edit(e.ID).Inventory = inv
	w.shopStock[shopID][item] -= count
	return nil
}

func (w *World) shopSell(e *Entity, shopID, item string, count int) error {
	if err := positive(count); err != nil {
		return err
	}
	entry, err := w.shopEntry(e, shopID, item)
	if err != nil {
		return err
	}
	if entry.SellPrice <= 0 {
		return simerr.New(simerr.InvalidTarget, "shop %s does not buy %s", shopID, item)
	}
	inv := e.Inventory.Clone()
	if err := inv.Remove(item, count); err != nil {
		return err
	}
	if err := inv.Add(coins, entry.SellPrice*count, true); err != nil {
		return err
	}
	w.store.edit(e.ID).Inventory = inv
	w.shopStock[shopID][item] += count
	return nil
}
