package tpc

import (
	"context"
	"database/sql"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/dtm-labs/client/dtmcli/dtmimp"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/logging"
)

// undefinedObject is returned by COMMIT/ROLLBACK PREPARED for an unknown id.
const undefinedObject = "42704"

// Finalizer commits or rolls back prepared transactions of one store.
type Finalizer interface {
	Commit(ctx context.Context, id string) error
	Rollback(ctx context.Context, id string) error
}

// Service is the coordinator surface exposed over HTTP.
type Service interface {
	Finalizer
	ListActive(ctx context.Context) ([]api.PreparedTransaction, error)
	Record(ctx context.Context, id string) (*Record, error)
}

// Coordinator finalizes the prepared transactions of the store it is
// connected to.
type Coordinator struct {
	db        *sql.DB
	finalized metric.Int64Counter
}

// NewCoordinator wraps an open database/sql handle.
func NewCoordinator(db *sql.DB) *Coordinator {
	counter, _ := otel.Meter("tpc").Int64Counter("tpc.finalize",
		metric.WithDescription("prepared transactions finalized by action and result"))
	return &Coordinator{db: db, finalized: counter}
}

// OpenCoordinator opens a pooled lib/pq connection for conf.
func OpenCoordinator(conf dtmcli.DBConf) (*Coordinator, error) {
	db, err := dtmimp.PooledDB(conf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open coordinator database")
	}
	return NewCoordinator(db), nil
}

// Commit finalizes id. An unknown id is already finalized and succeeds.
func (c *Coordinator) Commit(ctx context.Context, id string) error {
	return c.finalize(ctx, id, "COMMIT PREPARED", StatusCommitted)
}

// Rollback aborts id. An unknown id is already finalized and succeeds.
func (c *Coordinator) Rollback(ctx context.Context, id string) error {
	return c.finalize(ctx, id, "ROLLBACK PREPARED", StatusRolledBack)
}

func (c *Coordinator) finalize(ctx context.Context, id, statement string, next Status) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	ctx, span := otel.Tracer("tpc").Start(ctx, "tpc."+string(next))
	defer span.End()
	span.SetAttributes(attribute.String("tpc.prepared_id", id))

	result := "ok"
	defer func() {
		c.finalized.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", string(next)),
			attribute.String("result", result),
		))
	}()

	if _, err := c.db.ExecContext(ctx, statement+" '"+id+"'"); err != nil {
		if !isUndefinedObject(err) {
			result = "error"
			span.RecordError(err)
			return apperr.Wrap(err, apperr.KindTransaction, "failed to finalize prepared transaction %s", id)
		}
		// Already finalized elsewhere. The record keeps whatever status that
		// caller wrote.
		result = "not_found"
		logging.Ctx(ctx).Info().Str("prepared_id", id).Msg("ℹ️ prepared transaction already finalized")
		return nil
	}

	if _, err := c.db.ExecContext(ctx, `
		UPDATE prepared_transaction
		SET status = $1, finished_at = now()
		WHERE id = $2 AND status = $3
	`, string(next), id, string(StatusPrepared)); err != nil {
		result = "error"
		return apperr.Wrap(err, apperr.KindDatabase, "failed to mark prepared transaction %s as %s", id, next)
	}

	logging.Ctx(ctx).Info().Str("prepared_id", id).Str("status", string(next)).Msg("✅ prepared transaction finalized")
	return nil
}

// ListActive returns the transactions prepared in this database and not yet
// finalized, oldest first.
func (c *Coordinator) ListActive(ctx context.Context) ([]api.PreparedTransaction, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT gid, prepared
		FROM pg_prepared_xacts
		WHERE database = current_database()
		ORDER BY prepared
	`)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindDatabase, "failed to list prepared transactions")
	}
	defer rows.Close()

	active := make([]api.PreparedTransaction, 0)
	for rows.Next() {
		var tx api.PreparedTransaction
		if err := rows.Scan(&tx.ID, &tx.PreparedAt); err != nil {
			return nil, apperr.Wrap(err, apperr.KindDatabase, "failed to scan prepared transaction")
		}
		active = append(active, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindDatabase, "failed to list prepared transactions")
	}
	return active, nil
}

// Record returns the registry entry of id.
func (c *Coordinator) Record(ctx context.Context, id string) (*Record, error) {
	var (
		rec      Record
		status   string
		finished sql.NullTime
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT id, status, created_at, finished_at
		FROM prepared_transaction
		WHERE id = $1
	`, id).Scan(&rec.ID, &status, &rec.CreatedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("prepared transaction %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindDatabase, "failed to get prepared transaction %s", id)
	}

	rec.Status = Status(status)
	if finished.Valid {
		t := finished.Time.UTC()
		rec.FinishedAt = &t
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func (c *Coordinator) Close() error {
	return c.db.Close()
}

func isUndefinedObject(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == undefinedObject
}

var _ Service = (*Coordinator)(nil)
