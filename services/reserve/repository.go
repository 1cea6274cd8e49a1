package main

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/matheusmosca/orders-tpc/internal/postgres"
)

//go:embed schema.sql
var schema string

// ItemRepository define as operações de banco de dados sobre o estoque
type ItemRepository interface {
	GetItemForUpdate(ctx context.Context, tx pgx.Tx, id string) (*WarehouseItem, error)
	UpdateItem(ctx context.Context, tx pgx.Tx, item *WarehouseItem) error
	AddAmount(ctx context.Context, tx pgx.Tx, id string, amount int64) (*WarehouseItem, error)
	GetItem(ctx context.Context, q postgres.Querier, id string) (*WarehouseItem, error)
	ListItems(ctx context.Context, q postgres.Querier, page postgres.Page) ([]WarehouseItem, error)
}

// ReserveRepository define as operações de banco de dados sobre reservas
type ReserveRepository interface {
	postgres.Repository[Reserve, string]
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Reserve, error)
	GetByExternalRef(ctx context.Context, q postgres.Querier, externalRef string) (*Reserve, error)
}

type PostgresRepository struct{}

func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

const itemColumns = `id, amount, reserved, unit_cost, updated_at`

func scanItem(row pgx.Row, id string) (*WarehouseItem, error) {
	var item WarehouseItem
	if err := row.Scan(&item.ID, &item.Amount, &item.Reserved, &item.UnitCost, &item.UpdatedAt); err != nil {
		return nil, postgres.Error(err, "warehouse item %s not found", id)
	}
	return &item, nil
}

// GetItemForUpdate obtém o item com lock pessimista (FOR UPDATE)
func (r *PostgresRepository) GetItemForUpdate(ctx context.Context, tx pgx.Tx, id string) (*WarehouseItem, error) {
	return scanItem(tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM warehouse_item WHERE id = $1 FOR UPDATE`, id), id)
}

func (r *PostgresRepository) GetItem(ctx context.Context, q postgres.Querier, id string) (*WarehouseItem, error) {
	return scanItem(q.QueryRow(ctx, `SELECT `+itemColumns+` FROM warehouse_item WHERE id = $1`, id), id)
}

func (r *PostgresRepository) UpdateItem(ctx context.Context, tx pgx.Tx, item *WarehouseItem) error {
	err := tx.QueryRow(ctx, `
		UPDATE warehouse_item
		SET amount = $1, reserved = $2, updated_at = now()
		WHERE id = $3
		RETURNING updated_at
	`, item.Amount, item.Reserved, item.ID).Scan(&item.UpdatedAt)
	return postgres.Error(err, "failed to update warehouse item %s", item.ID)
}

// AddAmount soma ao estoque, criando o item se necessário (upsert)
func (r *PostgresRepository) AddAmount(ctx context.Context, tx pgx.Tx, id string, amount int64) (*WarehouseItem, error) {
	return scanItem(tx.QueryRow(ctx, `
		INSERT INTO warehouse_item (id, amount, reserved, updated_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (id) DO UPDATE
		SET amount = warehouse_item.amount + EXCLUDED.amount, updated_at = now()
		RETURNING `+itemColumns, id, amount), id)
}

func (r *PostgresRepository) ListItems(ctx context.Context, q postgres.Querier, page postgres.Page) ([]WarehouseItem, error) {
	rows, err := q.Query(ctx, `
		SELECT `+itemColumns+`
		FROM warehouse_item
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, page.LimitArg(), page.Offset)
	if err != nil {
		return nil, postgres.Error(err, "failed to list warehouse items")
	}
	defer rows.Close()

	items := make([]WarehouseItem, 0)
	for rows.Next() {
		item, err := scanItem(rows, "")
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, postgres.Error(rows.Err(), "failed to list warehouse items")
}

// Save grava a reserva e substitui integralmente seus itens (delete + insert)
func (r *PostgresRepository) Save(ctx context.Context, q postgres.Querier, res *Reserve) error {
	_, err := q.Exec(ctx, `
		INSERT INTO reserve (id, external_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`, res.ID, res.ExternalRef, string(res.Status), res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return postgres.Error(err, "failed to save reserve %s", res.ID)
	}

	if _, err := q.Exec(ctx, `DELETE FROM reserve_item WHERE reserve_id = $1`, res.ID); err != nil {
		return postgres.Error(err, "failed to replace items of reserve %s", res.ID)
	}
	for _, it := range res.Items {
		_, err := q.Exec(ctx, `
			INSERT INTO reserve_item (reserve_id, item_id, amount, insufficient, reserved)
			VALUES ($1, $2, $3, $4, $5)
		`, res.ID, it.ItemID, it.Amount, it.Insufficient, it.Reserved)
		if err != nil {
			return postgres.Error(err, "failed to save item %s of reserve %s", it.ItemID, res.ID)
		}
	}
	return nil
}

const reserveColumns = `id, external_ref, status, created_at, updated_at`

func (r *PostgresRepository) GetByID(ctx context.Context, q postgres.Querier, id string) (*Reserve, error) {
	return r.load(ctx, q, `SELECT `+reserveColumns+` FROM reserve WHERE id = $1`, id)
}

// GetForUpdate obtém a reserva com lock pessimista (FOR UPDATE)
func (r *PostgresRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Reserve, error) {
	return r.load(ctx, tx, `SELECT `+reserveColumns+` FROM reserve WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) GetByExternalRef(ctx context.Context, q postgres.Querier, externalRef string) (*Reserve, error) {
	return r.load(ctx, q, `SELECT `+reserveColumns+` FROM reserve WHERE external_ref = $1`, externalRef)
}

// FindAll lista reservas sem os itens
func (r *PostgresRepository) FindAll(ctx context.Context, q postgres.Querier, page postgres.Page) ([]Reserve, error) {
	rows, err := q.Query(ctx, `
		SELECT `+reserveColumns+`
		FROM reserve
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, page.LimitArg(), page.Offset)
	if err != nil {
		return nil, postgres.Error(err, "failed to list reserves")
	}
	defer rows.Close()

	reserves := make([]Reserve, 0)
	for rows.Next() {
		res, err := scanReserve(rows, "")
		if err != nil {
			return nil, err
		}
		reserves = append(reserves, *res)
	}
	return reserves, postgres.Error(rows.Err(), "failed to list reserves")
}

func (r *PostgresRepository) load(ctx context.Context, q postgres.Querier, query, key string) (*Reserve, error) {
	res, err := scanReserve(q.QueryRow(ctx, query, key), key)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT item_id, amount, insufficient, reserved
		FROM reserve_item
		WHERE reserve_id = $1
		ORDER BY item_id
	`, res.ID)
	if err != nil {
		return nil, postgres.Error(err, "failed to load items of reserve %s", res.ID)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it           ReserveItem
			insufficient pgtype.Int8
		)
		if err := rows.Scan(&it.ItemID, &it.Amount, &insufficient, &it.Reserved); err != nil {
			return nil, postgres.Error(err, "failed to scan item of reserve %s", res.ID)
		}
		if insufficient.Valid {
			v := insufficient.Int64
			it.Insufficient = &v
		}
		res.Items = append(res.Items, it)
	}
	return res, postgres.Error(rows.Err(), "failed to load items of reserve %s", res.ID)
}

func scanReserve(row pgx.Row, key string) (*Reserve, error) {
	var (
		res    Reserve
		status string
	)
	if err := row.Scan(&res.ID, &res.ExternalRef, &status, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, postgres.Error(err, "reserve %s not found", key)
	}
	res.Status = ReserveStatus(status)
	return &res, nil
}
