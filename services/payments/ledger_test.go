package main

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
	"github.com/matheusmosca/orders-tpc/internal/tpc/tpctest"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func inTx[T any](t *testing.T, p tpc.Participant, op func(ctx context.Context, tx pgx.Tx) (T, error)) (T, error) {
	t.Helper()
	return tpc.Execute(context.Background(), p, nil, op)
}

func TestAccountLedger_Lock(t *testing.T) {
	tests := []struct {
		name          string
		amount        string
		wantSuccess   bool
		wantShortfall string
		wantLocked    string
	}{
		{name: "fits", amount: "60", wantSuccess: true, wantShortfall: "0", wantLocked: "80"},
		{name: "exactly available", amount: "80", wantSuccess: true, wantShortfall: "0", wantLocked: "100"},
		{name: "short", amount: "100", wantSuccess: false, wantShortfall: "20", wantLocked: "20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			repo := newMemRepository()
			repo.seedAccount("client-1", "100", "20")
			ledger := NewAccountLedger(repo)
			p, _, _ := tpctest.Participant()

			// Act
			res, err := inTx(t, p, func(ctx context.Context, tx pgx.Tx) (LockResult, error) {
				return ledger.Lock(ctx, tx, "client-1", dec(tt.amount))
			})

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.True(t, dec(tt.wantShortfall).Equal(res.Shortfall), "shortfall %s", res.Shortfall)
			assert.True(t, dec(tt.wantLocked).Equal(repo.account("client-1").Locked))
		})
	}
}

func TestAccountLedger_RejectsNonPositiveAmounts(t *testing.T) {
	repo := newMemRepository()
	repo.seedAccount("client-1", "100", "0")
	ledger := NewAccountLedger(repo)
	p, _, _ := tpctest.Participant()

	for _, amount := range []string{"0", "-5"} {
		_, err := inTx(t, p, func(ctx context.Context, tx pgx.Tx) (LockResult, error) {
			return ledger.Lock(ctx, tx, "client-1", dec(amount))
		})
		assert.True(t, apperr.Is(err, apperr.KindInvalidInput), "amount %s", amount)

		_, err = inTx(t, p, func(ctx context.Context, tx pgx.Tx) (*Account, error) {
			return ledger.TopUp(ctx, tx, "client-1", dec(amount))
		})
		assert.True(t, apperr.Is(err, apperr.KindInvalidInput), "amount %s", amount)
	}
}

func TestAccountLedger_UnknownAccount(t *testing.T) {
	ledger := NewAccountLedger(newMemRepository())
	p, _, _ := tpctest.Participant()

	_, err := inTx(t, p, func(ctx context.Context, tx pgx.Tx) (LockResult, error) {
		return ledger.Lock(ctx, tx, "ghost", dec("1"))
	})

	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAccountLedger_UnlockClampsAtZero(t *testing.T) {
	repo := newMemRepository()
	repo.seedAccount("client-1", "100", "30")
	ledger := NewAccountLedger(repo)
	p, _, _ := tpctest.Participant()

	acct, err := inTx(t, p, func(ctx context.Context, tx pgx.Tx) (*Account, error) {
		return ledger.Unlock(ctx, tx, "client-1", dec("50"))
	})

	require.NoError(t, err)
	assert.True(t, acct.Locked.IsZero())
	assert.True(t, dec("100").Equal(acct.Amount))
}

func TestAccountLedger_WriteOff(t *testing.T) {
	repo := newMemRepository()
	repo.seedAccount("client-1", "100", "30")
	ledger := NewAccountLedger(repo)
	p, _, _ := tpctest.Participant()

	acct, err := inTx(t, p, func(ctx context.Context, tx pgx.Tx) (*Account, error) {
		return ledger.WriteOff(ctx, tx, "client-1", dec("30"))
	})

	require.NoError(t, err)
	assert.True(t, dec("70").Equal(acct.Amount))
	assert.True(t, acct.Locked.IsZero())
	assert.True(t, dec("70").Equal(acct.Available()))
}

func TestAccountLedger_WriteOffMoreThanLocked(t *testing.T) {
	repo := newMemRepository()
	repo.seedAccount("client-1", "100", "10")
	ledger := NewAccountLedger(repo)
	p, _, _ := tpctest.Participant()

	_, err := inTx(t, p, func(ctx context.Context, tx pgx.Tx) (*Account, error) {
		return ledger.WriteOff(ctx, tx, "client-1", dec("30"))
	})

	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
	assert.True(t, dec("100").Equal(repo.account("client-1").Amount))
}

func TestAccountLedger_TopUpCreatesAccount(t *testing.T) {
	repo := newMemRepository()
	ledger := NewAccountLedger(repo)
	p, _, _ := tpctest.Participant()

	acct, err := inTx(t, p, func(ctx context.Context, tx pgx.Tx) (*Account, error) {
		if _, err := ledger.TopUp(ctx, tx, "client-1", dec("40")); err != nil {
			return nil, err
		}
		return ledger.TopUp(ctx, tx, "client-1", dec("2.5"))
	})

	require.NoError(t, err)
	assert.True(t, dec("42.5").Equal(acct.Amount))
	assert.True(t, dec("42.5").Equal(repo.account("client-1").Amount))
}

func TestAccountLedger_ConcurrentLocksNeverOverdraw(t *testing.T) {
	// Arrange
	repo := newMemRepository()
	repo.seedAccount("client-1", "100", "0")
	ledger := NewAccountLedger(repo)
	p, _, _ := tpctest.Participant()

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	// Act
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := tpc.Execute(context.Background(), p, nil, func(ctx context.Context, tx pgx.Tx) (LockResult, error) {
				return ledger.Lock(ctx, tx, "client-1", dec("15"))
			})
			if err == nil && res.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Assert
	acct := repo.account("client-1")
	assert.Equal(t, 6, successes)
	assert.True(t, dec("90").Equal(acct.Locked))
	assert.False(t, acct.Available().IsNegative())
}

func TestAccountLedger_FailedOperationLeavesBalance(t *testing.T) {
	repo := newMemRepository()
	repo.seedAccount("client-1", "100", "0")
	ledger := NewAccountLedger(repo)
	p, _, _ := tpctest.Participant()

	_, err := inTx(t, p, func(ctx context.Context, tx pgx.Tx) (*Account, error) {
		if _, err := ledger.Lock(ctx, tx, "client-1", dec("40")); err != nil {
			return nil, err
		}
		return ledger.WriteOff(ctx, tx, "client-1", dec("50"))
	})

	require.Error(t, err)
	assert.True(t, repo.account("client-1").Locked.IsZero())
}
