// Package postgres holds the pgx plumbing shared by the service repositories.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/config"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so repositories can
// read outside a transaction and write inside one with the same code.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Page bounds a listing. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// NewPage converts 1-based page/size query parameters into a Page.
func NewPage(page, size int) Page {
	if size <= 0 {
		return Page{}
	}
	if page <= 0 {
		page = 1
	}
	return Page{Limit: size, Offset: (page - 1) * size}
}

// LimitArg renders the limit as a query argument; NULL means LIMIT ALL.
func (p Page) LimitArg() *int {
	if p.Limit <= 0 {
		return nil
	}
	limit := p.Limit
	return &limit
}

// Repository is the storage shape every entity repository exposes.
type Repository[E any, K comparable] interface {
	Save(ctx context.Context, q Querier, entity *E) error
	GetByID(ctx context.Context, q Querier, id K) (*E, error)
	FindAll(ctx context.Context, q Querier, page Page) ([]E, error)
}

// Connect opens a pool and waits for the database to accept connections.
func Connect(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse database config")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection pool")
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err = pool.Ping(ctx); err == nil {
			zlog.Info().Str("database", cfg.Name).Msg("✅ connected to database")
			return pool, nil
		}
		zlog.Warn().Err(err).Msgf("⏳ waiting for database... (%d/%d)", i+1, attempts)
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	pool.Close()
	return nil, errors.Wrapf(err, "failed to connect to database after %d attempts", attempts)
}

// Migrate applies an idempotent schema script.
func Migrate(ctx context.Context, q Querier, schema string) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}

// invalidTextRepresentation is raised when a parameter does not parse as the
// column type, e.g. a malformed id against a UUID column.
const invalidTextRepresentation = "22P02"

// Error classifies a driver error: missing rows become NotFound, values the
// column type rejects become InvalidInput, already classified errors pass
// through, anything else is a DatabaseError.
func Error(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(err, apperr.KindNotFound, format, args...)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation {
		return apperr.Wrap(err, apperr.KindInvalidInput, format, args...)
	}
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}
	return apperr.Wrap(err, apperr.KindDatabase, format, args...)
}
