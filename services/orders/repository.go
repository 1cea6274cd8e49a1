package main

import (
	"context"
	_ "embed"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/matheusmosca/orders-tpc/internal/postgres"
)

//go:embed schema.sql
var schema string

// OrderRepository define as operações de banco de dados sobre pedidos
type OrderRepository interface {
	postgres.Repository[Order, string]
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Order, error)
	FindByFilter(ctx context.Context, q postgres.Querier, filter OrderFilter, page postgres.Page) ([]Order, error)
}

type PostgresOrderRepository struct{}

func NewPostgresOrderRepository() *PostgresOrderRepository {
	return &PostgresOrderRepository{}
}

const orderColumns = `id, customer_id, payment_id, reserve_id, status, payment_status, cost,
	delivery_address, delivery_type, delivery_date, payment_transaction_id, reserve_transaction_id,
	order_transaction_id, created_at, updated_at`

// Save grava o pedido e substitui integralmente seus itens (delete + insert)
func (r *PostgresOrderRepository) Save(ctx context.Context, q postgres.Querier, o *Order) error {
	var deliveryDate *time.Time
	if !o.Delivery.DateTime.IsZero() {
		deliveryDate = &o.Delivery.DateTime
	}

	_, err := q.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, NULLIF($3::text, ''), NULLIF($4::text, ''), $5, NULLIF($6::text, ''), $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE
		SET payment_id = EXCLUDED.payment_id,
		    reserve_id = EXCLUDED.reserve_id,
		    status = EXCLUDED.status,
		    payment_status = EXCLUDED.payment_status,
		    cost = EXCLUDED.cost,
		    payment_transaction_id = EXCLUDED.payment_transaction_id,
		    reserve_transaction_id = EXCLUDED.reserve_transaction_id,
		    order_transaction_id = EXCLUDED.order_transaction_id,
		    updated_at = EXCLUDED.updated_at
	`, o.ID, o.CustomerID, o.PaymentID, o.ReserveID, string(o.Status), o.PaymentStatus, o.Cost,
		o.Delivery.Address, string(o.Delivery.Type), deliveryDate, o.PaymentTransactionID, o.ReserveTransactionID,
		o.OrderTransactionID, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return postgres.Error(err, "failed to save order %s", o.ID)
	}

	if _, err := q.Exec(ctx, `DELETE FROM order_item WHERE order_id = $1`, o.ID); err != nil {
		return postgres.Error(err, "failed to replace items of order %s", o.ID)
	}
	for _, it := range o.Items {
		_, err := q.Exec(ctx, `
			INSERT INTO order_item (order_id, item_id, amount, insufficient, reserved)
			VALUES ($1, $2, $3, $4, $5)
		`, o.ID, it.ItemID, it.Amount, it.Insufficient, it.Reserved)
		if err != nil {
			return postgres.Error(err, "failed to save item %s of order %s", it.ItemID, o.ID)
		}
	}
	return nil
}

func (r *PostgresOrderRepository) GetByID(ctx context.Context, q postgres.Querier, id string) (*Order, error) {
	return r.load(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetForUpdate obtém o pedido com lock pessimista (FOR UPDATE)
func (r *PostgresOrderRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Order, error) {
	return r.load(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresOrderRepository) FindAll(ctx context.Context, q postgres.Querier, page postgres.Page) ([]Order, error) {
	return r.FindByFilter(ctx, q, OrderFilter{}, page)
}

// FindByFilter lista pedidos sem os itens
func (r *PostgresOrderRepository) FindByFilter(ctx context.Context, q postgres.Querier, filter OrderFilter, page postgres.Page) ([]Order, error) {
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	rows, err := q.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text = '' OR customer_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, status, filter.CustomerID, page.LimitArg(), page.Offset)
	if err != nil {
		return nil, postgres.Error(err, "failed to list orders")
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows, "")
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, postgres.Error(rows.Err(), "failed to list orders")
}

func (r *PostgresOrderRepository) load(ctx context.Context, q postgres.Querier, query, id string) (*Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, query, id), id)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT item_id, amount, insufficient, reserved
		FROM order_item
		WHERE order_id = $1
		ORDER BY item_id
	`, id)
	if err != nil {
		return nil, postgres.Error(err, "failed to load items of order %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it           OrderItem
			insufficient pgtype.Int8
		)
		if err := rows.Scan(&it.ItemID, &it.Amount, &insufficient, &it.Reserved); err != nil {
			return nil, postgres.Error(err, "failed to scan item of order %s", id)
		}
		if insufficient.Valid {
			v := insufficient.Int64
			it.Insufficient = &v
		}
		o.Items = append(o.Items, it)
	}
	return o, postgres.Error(rows.Err(), "failed to load items of order %s", id)
}

func scanOrder(row pgx.Row, id string) (*Order, error) {
	var (
		o                                          Order
		status, deliveryType                       string
		paymentID, reserveID, paymentStatus        pgtype.Text
		deliveryDate                               pgtype.Timestamptz
		paymentTransactionID, reserveTransactionID pgtype.Text
		orderTransactionID                         pgtype.Text
	)
	err := row.Scan(&o.ID, &o.CustomerID, &paymentID, &reserveID, &status, &paymentStatus, &o.Cost,
		&o.Delivery.Address, &deliveryType, &deliveryDate, &paymentTransactionID, &reserveTransactionID,
		&orderTransactionID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, postgres.Error(err, "order %s not found", id)
	}

	o.Status = OrderStatus(status)
	o.Delivery.Type = DeliveryType(deliveryType)
	o.PaymentID = paymentID.String
	o.ReserveID = reserveID.String
	o.PaymentStatus = paymentStatus.String
	if deliveryDate.Valid {
		o.Delivery.DateTime = deliveryDate.Time
	}
	if paymentTransactionID.Valid {
		o.PaymentTransactionID = &paymentTransactionID.String
	}
	if reserveTransactionID.Valid {
		o.ReserveTransactionID = &reserveTransactionID.String
	}
	if orderTransactionID.Valid {
		o.OrderTransactionID = &orderTransactionID.String
	}
	return &o, nil
}
