package main

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/orders-tpc/internal/logging"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
)

// WarehouseUseCase expõe consulta de custo, listagem e reposição de estoque
type WarehouseUseCase struct {
	participant tpc.Participant
	reader      postgres.Querier
	items       ItemRepository
	ledger      *InventoryLedger
}

func NewWarehouseUseCase(participant tpc.Participant, reader postgres.Querier, items ItemRepository, ledger *InventoryLedger) *WarehouseUseCase {
	return &WarehouseUseCase{participant: participant, reader: reader, items: items, ledger: ledger}
}

// GetItemCost retorna o custo unitário de um item existente
func (uc *WarehouseUseCase) GetItemCost(ctx context.Context, id string) (decimal.Decimal, error) {
	item, err := uc.items.GetItem(ctx, uc.reader, id)
	if err != nil {
		return decimal.Zero, err
	}
	return item.UnitCost, nil
}

func (uc *WarehouseUseCase) List(ctx context.Context, page postgres.Page) ([]WarehouseItem, error) {
	return uc.items.ListItems(ctx, uc.reader, page)
}

// TopUp repõe o estoque de um item e retorna a nova quantidade
func (uc *WarehouseUseCase) TopUp(ctx context.Context, itemID string, amount int64) (*WarehouseItem, error) {
	item, err := tpc.Execute(ctx, uc.participant, nil, func(ctx context.Context, tx pgx.Tx) (*WarehouseItem, error) {
		return uc.ledger.TopUp(ctx, tx, itemID, amount)
	})
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().Str("item_id", itemID).Int64("amount", item.Amount).Msg("📥 [TOP-UP] stock replenished")
	return item, nil
}
