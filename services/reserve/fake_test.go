package main

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
	"github.com/matheusmosca/orders-tpc/internal/tpc/tpctest"
)

type memRepository struct {
	items    *tpctest.Table[WarehouseItem]
	reserves *tpctest.Table[Reserve]
}

func newMemRepository() *memRepository {
	return &memRepository{
		items:    tpctest.NewTable[WarehouseItem](),
		reserves: tpctest.NewTable[Reserve](),
	}
}

func (r *memRepository) seedItem(id string, amount, reserved int64) {
	r.items.Seed(id, WarehouseItem{ID: id, Amount: amount, Reserved: reserved, UnitCost: decimal.NewFromInt(10)})
}

func (r *memRepository) item(id string) WarehouseItem {
	it, _ := r.items.Get(id)
	return it
}

func (r *memRepository) reserve(id string) Reserve {
	res, _ := r.reserves.Get(id)
	return res
}

func (r *memRepository) GetItemForUpdate(ctx context.Context, tx pgx.Tx, id string) (*WarehouseItem, error) {
	r.items.Lock(tx, id)
	return r.GetItem(ctx, tx, id)
}

func (r *memRepository) UpdateItem(_ context.Context, tx pgx.Tx, item *WarehouseItem) error {
	item.UpdatedAt = time.Now().UTC()
	r.items.Put(tx, item.ID, *item)
	return nil
}

func (r *memRepository) AddAmount(_ context.Context, tx pgx.Tx, id string, amount int64) (*WarehouseItem, error) {
	r.items.Lock(tx, id)
	it, ok := r.items.Get(id)
	if !ok {
		it = WarehouseItem{ID: id, UnitCost: decimal.NewFromInt(10)}
	}
	it.Amount += amount
	it.UpdatedAt = time.Now().UTC()
	r.items.Put(tx, id, it)
	return &it, nil
}

func (r *memRepository) GetItem(_ context.Context, _ postgres.Querier, id string) (*WarehouseItem, error) {
	it, ok := r.items.Get(id)
	if !ok {
		return nil, apperr.NotFound("warehouse item %s not found", id)
	}
	return &it, nil
}

func (r *memRepository) ListItems(_ context.Context, _ postgres.Querier, page postgres.Page) ([]WarehouseItem, error) {
	all := r.items.Values()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, page), nil
}

// Save copia os itens para que a reserva gravada não compartilhe o slice do chamador
func (r *memRepository) Save(_ context.Context, q postgres.Querier, res *Reserve) error {
	stored := *res
	stored.Items = append([]ReserveItem(nil), res.Items...)
	r.reserves.Put(q.(pgx.Tx), res.ID, stored)
	return nil
}

func (r *memRepository) GetByID(_ context.Context, _ postgres.Querier, id string) (*Reserve, error) {
	res, ok := r.reserves.Get(id)
	if !ok {
		return nil, apperr.NotFound("reserve %s not found", id)
	}
	res.Items = append([]ReserveItem(nil), res.Items...)
	return &res, nil
}

func (r *memRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Reserve, error) {
	r.reserves.Lock(tx, id)
	return r.GetByID(ctx, tx, id)
}

func (r *memRepository) GetByExternalRef(ctx context.Context, q postgres.Querier, externalRef string) (*Reserve, error) {
	for _, res := range r.reserves.Values() {
		if res.ExternalRef == externalRef {
			return r.GetByID(ctx, q, res.ID)
		}
	}
	return nil, apperr.NotFound("reserve %s not found", externalRef)
}

func (r *memRepository) FindAll(_ context.Context, _ postgres.Querier, page postgres.Page) ([]Reserve, error) {
	all := r.reserves.Values()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	for i := range all {
		all[i].Items = nil
	}
	return paginate(all, page), nil
}

func paginate[T any](all []T, page postgres.Page) []T {
	if page.Offset >= len(all) {
		return []T{}
	}
	all = all[page.Offset:]
	if page.Limit > 0 && page.Limit < len(all) {
		all = all[:page.Limit]
	}
	return all
}

var (
	_ ItemRepository    = (*memRepository)(nil)
	_ ReserveRepository = (*memRepository)(nil)
)
