package main

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/orders-tpc/internal/postgres"
)

//go:embed schema.sql
var schema string

// AccountRepository define as operações de banco de dados sobre contas
type AccountRepository interface {
	GetAccountForUpdate(ctx context.Context, tx pgx.Tx, clientID string) (*Account, error)
	UpdateAccount(ctx context.Context, tx pgx.Tx, acct *Account) error
	AddAmount(ctx context.Context, tx pgx.Tx, clientID string, amount decimal.Decimal) (*Account, error)
	ListAccounts(ctx context.Context, q postgres.Querier, page postgres.Page) ([]Account, error)
}

// PaymentRepository define as operações de banco de dados sobre pagamentos
type PaymentRepository interface {
	postgres.Repository[Payment, string]
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Payment, error)
	GetByExternalRef(ctx context.Context, q postgres.Querier, externalRef string) (*Payment, error)
}

// PostgresRepository implementa AccountRepository e PaymentRepository usando PostgreSQL
type PostgresRepository struct{}

// NewPostgresRepository cria uma nova instância de PostgresRepository
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

// GetAccountForUpdate obtém a conta com lock pessimista (FOR UPDATE)
func (r *PostgresRepository) GetAccountForUpdate(ctx context.Context, tx pgx.Tx, clientID string) (*Account, error) {
	var acct Account
	err := tx.QueryRow(ctx, `
		SELECT client_id, amount, locked, updated_at
		FROM account
		WHERE client_id = $1
		FOR UPDATE
	`, clientID).Scan(&acct.ClientID, &acct.Amount, &acct.Locked, &acct.UpdatedAt)
	if err != nil {
		return nil, postgres.Error(err, "account %s not found", clientID)
	}
	return &acct, nil
}

func (r *PostgresRepository) UpdateAccount(ctx context.Context, tx pgx.Tx, acct *Account) error {
	err := tx.QueryRow(ctx, `
		UPDATE account
		SET amount = $1, locked = $2, updated_at = now()
		WHERE client_id = $3
		RETURNING updated_at
	`, acct.Amount, acct.Locked, acct.ClientID).Scan(&acct.UpdatedAt)
	return postgres.Error(err, "failed to update account %s", acct.ClientID)
}

// AddAmount credita a conta, criando-a se necessário (upsert)
func (r *PostgresRepository) AddAmount(ctx context.Context, tx pgx.Tx, clientID string, amount decimal.Decimal) (*Account, error) {
	acct := Account{ClientID: clientID}
	err := tx.QueryRow(ctx, `
		INSERT INTO account (client_id, amount, locked, updated_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (client_id) DO UPDATE
		SET amount = account.amount + EXCLUDED.amount, updated_at = now()
		RETURNING amount, locked, updated_at
	`, clientID, amount).Scan(&acct.Amount, &acct.Locked, &acct.UpdatedAt)
	if err != nil {
		return nil, postgres.Error(err, "failed to top up account %s", clientID)
	}
	return &acct, nil
}

func (r *PostgresRepository) ListAccounts(ctx context.Context, q postgres.Querier, page postgres.Page) ([]Account, error) {
	rows, err := q.Query(ctx, `
		SELECT client_id, amount, locked, updated_at
		FROM account
		ORDER BY client_id
		LIMIT $1 OFFSET $2
	`, page.LimitArg(), page.Offset)
	if err != nil {
		return nil, postgres.Error(err, "failed to list accounts")
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		var acct Account
		if err := rows.Scan(&acct.ClientID, &acct.Amount, &acct.Locked, &acct.UpdatedAt); err != nil {
			return nil, postgres.Error(err, "failed to scan account")
		}
		accounts = append(accounts, acct)
	}
	return accounts, postgres.Error(rows.Err(), "failed to list accounts")
}

const paymentColumns = `id, external_ref, client_id, amount, insufficient, status, created_at, updated_at`

// Save grava o pagamento (insert ou update)
func (r *PostgresRepository) Save(ctx context.Context, q postgres.Querier, p *Payment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO payment (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET insufficient = EXCLUDED.insufficient,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at
	`, p.ID, p.ExternalRef, p.ClientID, p.Amount, p.Insufficient, string(p.Status), p.CreatedAt, p.UpdatedAt)
	return postgres.Error(err, "failed to save payment %s", p.ID)
}

func (r *PostgresRepository) GetByID(ctx context.Context, q postgres.Querier, id string) (*Payment, error) {
	return scanPayment(q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment WHERE id = $1`, id), id)
}

// GetForUpdate obtém o pagamento com lock pessimista (FOR UPDATE)
func (r *PostgresRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Payment, error) {
	return scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment WHERE id = $1 FOR UPDATE`, id), id)
}

func (r *PostgresRepository) GetByExternalRef(ctx context.Context, q postgres.Querier, externalRef string) (*Payment, error) {
	return scanPayment(q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment WHERE external_ref = $1`, externalRef), externalRef)
}

func (r *PostgresRepository) FindAll(ctx context.Context, q postgres.Querier, page postgres.Page) ([]Payment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payment
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, page.LimitArg(), page.Offset)
	if err != nil {
		return nil, postgres.Error(err, "failed to list payments")
	}
	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]Payment, error) {
	defer rows.Close()
	payments := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows, "")
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, postgres.Error(rows.Err(), "failed to list payments")
}

func scanPayment(row pgx.Row, key string) (*Payment, error) {
	var (
		p            Payment
		status       string
		insufficient decimal.NullDecimal
	)
	err := row.Scan(&p.ID, &p.ExternalRef, &p.ClientID, &p.Amount, &insufficient, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, postgres.Error(err, "payment %s not found", key)
	}
	p.Status = PaymentStatus(status)
	if insufficient.Valid {
		p.Insufficient = &insufficient.Decimal
	}
	return &p, nil
}
