package tpc

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/logging"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
)

// DB begins local transactions. *pgxpool.Pool satisfies it.
type DB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Participant is a local store taking part in a distributed operation.
type Participant struct {
	DB       DB
	Registry Registrar
}

// Execute runs op inside a local transaction. Without preparedID the
// transaction is committed. With preparedID it is prepared under that id and
// a PREPARED record is registered; a coordinator finalizes it later. When op
// fails the transaction is rolled back and no record is created.
func Execute[T any](ctx context.Context, p Participant, preparedID *string, op func(ctx context.Context, tx pgx.Tx) (T, error)) (T, error) {
	var zero T

	if preparedID != nil {
		if err := ValidateID(*preparedID); err != nil {
			return zero, err
		}
	}

	ctx, span := otel.Tracer("tpc").Start(ctx, "tpc.Execute")
	defer span.End()
	if preparedID != nil {
		span.SetAttributes(attribute.String("tpc.prepared_id", *preparedID))
	}

	tx, err := p.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		span.RecordError(err)
		return zero, postgres.Error(err, "failed to begin transaction")
	}

	result, err := op(ctx, tx)
	if err != nil {
		rollback(ctx, tx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
		return zero, err
	}

	if preparedID == nil {
		if err := tx.Commit(ctx); err != nil {
			span.RecordError(err)
			return zero, apperr.Wrap(err, apperr.KindTransaction, "failed to commit transaction")
		}
		return result, nil
	}

	id := *preparedID
	if _, err := tx.Exec(ctx, "PREPARE TRANSACTION '"+id+"'"); err != nil {
		rollback(ctx, tx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "prepare failed")
		return zero, apperr.Wrap(err, apperr.KindTransaction, "failed to prepare transaction %s", id)
	}

	// After PREPARE the session has no open transaction; ending the handle
	// only hands the connection back to the pool.
	if err := tx.Commit(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("prepared_id", id).Msg("release connection after prepare")
	}

	if err := p.Registry.Register(ctx, id); err != nil {
		span.RecordError(err)
		return zero, apperr.Wrap(err, apperr.KindTransaction, "failed to record prepared transaction %s", id)
	}

	logging.Ctx(ctx).Debug().Str("prepared_id", id).Msg("🔒 transaction prepared")
	return result, nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logging.Ctx(ctx).Warn().Err(err).Msg("rollback failed")
	}
}
