package main

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/matheusmosca/orders-tpc/internal/apperr"
)

// ItemRequest é uma quantidade pedida de um item do estoque
type ItemRequest struct {
	ItemID string
	Amount int64
}

// ItemReservation é o resultado da reserva de um item. Quando Reserved é
// false, Remainder é o estoque livre encontrado e Shortfall o que faltou.
type ItemReservation struct {
	ItemID    string
	Reserved  bool
	Remainder int64
	Shortfall int64
}

// InventoryLedger aplica as primitivas de estoque dentro da transação do
// chamador, travando cada linha de warehouse_item com SELECT ... FOR UPDATE.
type InventoryLedger struct {
	items ItemRepository
}

func NewInventoryLedger(items ItemRepository) *InventoryLedger {
	return &InventoryLedger{items: items}
}

// Reserve reserva cada item de forma independente: itens sem estoque ficam
// intactos e reportam a falta, sem desfazer os demais. As linhas são
// travadas em ordem de id para que lotes concorrentes não entrem em deadlock.
// O resultado segue a ordem de items.
func (l *InventoryLedger) Reserve(ctx context.Context, tx pgx.Tx, items []ItemRequest) ([]ItemReservation, error) {
	if err := validate(items); err != nil {
		return nil, err
	}

	byID := make(map[string]ItemReservation, len(items))
	for _, req := range lockOrder(items) {
		item, err := l.items.GetItemForUpdate(ctx, tx, req.ItemID)
		if err != nil {
			return nil, err
		}

		available := item.Available()
		if available < req.Amount {
			byID[req.ItemID] = ItemReservation{ItemID: req.ItemID, Remainder: available, Shortfall: req.Amount - available}
			continue
		}

		item.Reserved += req.Amount
		if err := l.items.UpdateItem(ctx, tx, item); err != nil {
			return nil, err
		}
		byID[req.ItemID] = ItemReservation{ItemID: req.ItemID, Reserved: true, Remainder: item.Available()}
	}

	out := make([]ItemReservation, 0, len(items))
	for _, req := range items {
		out = append(out, byID[req.ItemID])
	}
	return out, nil
}

// CancelReserve libera a reserva de cada item, sem deixar reserved negativo
func (l *InventoryLedger) CancelReserve(ctx context.Context, tx pgx.Tx, items []ItemRequest) error {
	return l.apply(ctx, tx, items, func(item *WarehouseItem, amount int64) {
		item.Reserved = max(item.Reserved-amount, 0)
	})
}

// Release consome o estoque reservado: baixa amount e reserved, ambos limitados a zero
func (l *InventoryLedger) Release(ctx context.Context, tx pgx.Tx, items []ItemRequest) error {
	return l.apply(ctx, tx, items, func(item *WarehouseItem, amount int64) {
		item.Amount = max(item.Amount-amount, 0)
		item.Reserved = max(item.Reserved-amount, 0)
	})
}

// TopUp soma amount ao estoque, criando o item se necessário
func (l *InventoryLedger) TopUp(ctx context.Context, tx pgx.Tx, itemID string, amount int64) (*WarehouseItem, error) {
	if itemID == "" {
		return nil, apperr.InvalidInput("item_id is required")
	}
	if amount <= 0 {
		return nil, apperr.InvalidInput("amount must be greater than 0, got %d", amount)
	}
	return l.items.AddAmount(ctx, tx, itemID, amount)
}

func (l *InventoryLedger) apply(ctx context.Context, tx pgx.Tx, items []ItemRequest, change func(item *WarehouseItem, amount int64)) error {
	if err := validate(items); err != nil {
		return err
	}
	for _, req := range lockOrder(items) {
		item, err := l.items.GetItemForUpdate(ctx, tx, req.ItemID)
		if err != nil {
			return err
		}
		change(item, req.Amount)
		if err := l.items.UpdateItem(ctx, tx, item); err != nil {
			return err
		}
	}
	return nil
}

func validate(items []ItemRequest) error {
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.Amount <= 0 {
			return apperr.InvalidInput("amount of item %s must be greater than 0, got %d", it.ItemID, it.Amount)
		}
		if seen[it.ItemID] {
			return apperr.InvalidInput("item %s requested twice", it.ItemID)
		}
		seen[it.ItemID] = true
	}
	return nil
}

func lockOrder(items []ItemRequest) []ItemRequest {
	sorted := append([]ItemRequest(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ItemID < sorted[j].ItemID })
	return sorted
}
