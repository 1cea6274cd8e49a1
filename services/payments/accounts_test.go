package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/tpc/tpctest"
)

// MockBalanceNotifier simula o publicador de eventos de saldo
type MockBalanceNotifier struct {
	mock.Mock
}

func (m *MockBalanceNotifier) BalanceChanged(ctx context.Context, acct Account) {
	m.Called(ctx, acct)
}

func newAccountUseCase(repo *memRepository, notifier BalanceNotifier) *AccountUseCase {
	participant, _, _ := tpctest.Participant()
	return NewAccountUseCase(participant, nil, repo, NewAccountLedger(repo), notifier)
}

func TestAccountUseCase_TopUpPublishesNewBalance(t *testing.T) {
	// Arrange
	repo := newMemRepository()
	repo.seedAccount("client-1", "40", "15")
	notifier := new(MockBalanceNotifier)
	notifier.On("BalanceChanged", mock.Anything, mock.MatchedBy(func(acct Account) bool {
		return acct.ClientID == "client-1" && acct.Available().Equal(dec("75"))
	})).Once()
	uc := newAccountUseCase(repo, notifier)

	// Act
	acct, err := uc.TopUp(context.Background(), "client-1", dec("50"))

	// Assert
	require.NoError(t, err)
	assert.True(t, dec("90").Equal(acct.Amount))
	notifier.AssertExpectations(t)
}

func TestAccountUseCase_RejectedTopUpPublishesNothing(t *testing.T) {
	repo := newMemRepository()
	notifier := new(MockBalanceNotifier)
	uc := newAccountUseCase(repo, notifier)

	_, err := uc.TopUp(context.Background(), "client-1", dec("-5"))

	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
	notifier.AssertNotCalled(t, "BalanceChanged", mock.Anything, mock.Anything)
}
