package tpc_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
	"github.com/matheusmosca/orders-tpc/internal/tpc/tpctest"
)

func ptr(s string) *string { return &s }

func succeed(_ context.Context, tx pgx.Tx) (string, error) {
	_, err := tx.Exec(context.Background(), "UPDATE payment SET status = 'HOLD'")
	return "done", err
}

func TestExecute_CommitsWithoutPreparedID(t *testing.T) {
	// Arrange
	p, db, reg := tpctest.Participant()

	// Act
	result, err := tpc.Execute(context.Background(), p, nil, succeed)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	require.Len(t, db.Txs(), 1)
	assert.True(t, db.Txs()[0].Committed())
	assert.Empty(t, db.Prepared())
	assert.Empty(t, reg.IDs())
}

func TestExecute_PreparesAndRegisters(t *testing.T) {
	// Arrange
	p, db, reg := tpctest.Participant()

	// Act
	result, err := tpc.Execute(context.Background(), p, ptr("order-1:payment"), succeed)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, []string{"order-1:payment"}, db.Prepared())
	assert.Equal(t, []string{"order-1:payment"}, reg.IDs())
	// the handle is released after PREPARE
	assert.True(t, db.Txs()[0].Committed())
}

func TestExecute_OperationFailureRollsBack(t *testing.T) {
	// Arrange
	p, db, reg := tpctest.Participant()
	boom := apperr.InvalidState("payment is PAID")

	// Act
	_, err := tpc.Execute(context.Background(), p, ptr("tx-1"), func(context.Context, pgx.Tx) (int, error) {
		return 0, boom
	})

	// Assert
	assert.ErrorIs(t, err, boom)
	assert.True(t, db.Txs()[0].RolledBack())
	assert.Empty(t, db.Prepared())
	assert.Empty(t, reg.IDs())
}

func TestExecute_InvalidIDNeverBegins(t *testing.T) {
	p, db, _ := tpctest.Participant()

	_, err := tpc.Execute(context.Background(), p, ptr("x'; DROP TABLE account; --"), succeed)

	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	assert.Empty(t, db.Txs())
}

func TestExecute_PrepareFailureIsTransactionError(t *testing.T) {
	// Arrange
	p, db, reg := tpctest.Participant()
	db.PrepareErr = errors.New("prepared transactions are disabled")

	// Act
	_, err := tpc.Execute(context.Background(), p, ptr("tx-1"), succeed)

	// Assert
	assert.Equal(t, apperr.KindTransaction, apperr.KindOf(err))
	assert.True(t, db.Txs()[0].RolledBack())
	assert.Empty(t, reg.IDs())
}

func TestExecute_RegisterFailureIsTransactionError(t *testing.T) {
	p, _, reg := tpctest.Participant()
	reg.Err = errors.New("insert failed")

	_, err := tpc.Execute(context.Background(), p, ptr("tx-1"), succeed)

	assert.Equal(t, apperr.KindTransaction, apperr.KindOf(err))
}

func TestExecute_BeginFailureIsDatabaseError(t *testing.T) {
	p, db, _ := tpctest.Participant()
	db.BeginErr = errors.New("pool closed")

	_, err := tpc.Execute(context.Background(), p, nil, succeed)

	assert.Equal(t, apperr.KindDatabase, apperr.KindOf(err))
}
