// Package tpc implements the participant and coordinator halves of two-phase
// commit over PostgreSQL prepared transactions.
package tpc

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
)

// Status is the lifecycle of a prepared transaction record.
type Status string

const (
	StatusPrepared   Status = "PREPARED"
	StatusCommitted  Status = "COMMITTED"
	StatusRolledBack Status = "ROLLED_BACK"
)

// Record is the durable trace of one prepared transaction, stored next to the
// data it prepared.
type Record struct {
	ID         string
	Status     Status
	CreatedAt  time.Time
	FinishedAt *time.Time
}

func (r Record) ToAPI() api.PreparedTransactionRecord {
	return api.PreparedTransactionRecord{
		ID:         r.ID,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		FinishedAt: r.FinishedAt,
	}
}

// Schema creates the registry table. Every service applies it on startup.
const Schema = `
CREATE TABLE IF NOT EXISTS prepared_transaction (
	id          VARCHAR(200) PRIMARY KEY,
	status      VARCHAR(16)  NOT NULL,
	created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);`

// Prepared transaction ids are interpolated into PREPARE/COMMIT PREPARED
// statements, which take no bind parameters.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,200}$`)

// ValidateID rejects ids that cannot be safely embedded in SQL.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return apperr.InvalidInput("invalid prepared transaction id %q", id)
	}
	return nil
}

// NewID mints a prepared transaction id.
func NewID() string {
	return uuid.NewString()
}

// Registrar stores the record of a freshly prepared transaction.
type Registrar interface {
	Register(ctx context.Context, id string) error
}

// PostgresRegistry writes records through pgx.
type PostgresRegistry struct {
	db postgres.Querier
}

func NewRegistry(db postgres.Querier) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// Register inserts a PREPARED record. Registering the same id twice is a
// no-op.
func (r *PostgresRegistry) Register(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO prepared_transaction (id, status, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO NOTHING
	`, id, string(StatusPrepared))
	return postgres.Error(err, "failed to register prepared transaction %s", id)
}
