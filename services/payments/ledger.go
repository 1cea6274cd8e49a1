package main

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/orders-tpc/internal/apperr"
)

// LockResult é o resultado de uma tentativa de bloqueio de saldo
type LockResult struct {
	Success   bool
	Shortfall decimal.Decimal
}

// AccountLedger aplica as primitivas de saldo dentro da transação do chamador.
// Cada primitiva lê a conta com SELECT ... FOR UPDATE, serializando chamadas
// concorrentes sobre o mesmo cliente.
type AccountLedger struct {
	accounts AccountRepository
}

// NewAccountLedger cria uma nova instância de AccountLedger
func NewAccountLedger(accounts AccountRepository) *AccountLedger {
	return &AccountLedger{accounts: accounts}
}

// Lock reserva amount do saldo livre. Saldo insuficiente não é erro: a conta
// fica intacta e o resultado traz o valor faltante.
func (l *AccountLedger) Lock(ctx context.Context, tx pgx.Tx, clientID string, amount decimal.Decimal) (LockResult, error) {
	if err := positive(amount); err != nil {
		return LockResult{}, err
	}

	acct, err := l.accounts.GetAccountForUpdate(ctx, tx, clientID)
	if err != nil {
		return LockResult{}, err
	}

	available := acct.Available()
	if available.LessThan(amount) {
		return LockResult{Shortfall: amount.Sub(available)}, nil
	}

	acct.Locked = acct.Locked.Add(amount)
	if err := l.accounts.UpdateAccount(ctx, tx, acct); err != nil {
		return LockResult{}, err
	}
	return LockResult{Success: true}, nil
}

// Unlock libera amount do saldo bloqueado, sem nunca deixá-lo negativo
func (l *AccountLedger) Unlock(ctx context.Context, tx pgx.Tx, clientID string, amount decimal.Decimal) (*Account, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}

	acct, err := l.accounts.GetAccountForUpdate(ctx, tx, clientID)
	if err != nil {
		return nil, err
	}

	acct.Locked = decimal.Max(acct.Locked.Sub(amount), decimal.Zero)
	if err := l.accounts.UpdateAccount(ctx, tx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// WriteOff debita definitivamente um valor previamente bloqueado
func (l *AccountLedger) WriteOff(ctx context.Context, tx pgx.Tx, clientID string, amount decimal.Decimal) (*Account, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}

	acct, err := l.accounts.GetAccountForUpdate(ctx, tx, clientID)
	if err != nil {
		return nil, err
	}

	if acct.Locked.LessThan(amount) {
		return nil, apperr.InvalidState("account %s has %s locked, cannot write off %s", clientID, acct.Locked, amount)
	}

	acct.Amount = acct.Amount.Sub(amount)
	acct.Locked = acct.Locked.Sub(amount)
	if err := l.accounts.UpdateAccount(ctx, tx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// TopUp credita amount, criando a conta se ainda não existir
func (l *AccountLedger) TopUp(ctx context.Context, tx pgx.Tx, clientID string, amount decimal.Decimal) (*Account, error) {
	if clientID == "" {
		return nil, apperr.InvalidInput("client_id is required")
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	return l.accounts.AddAmount(ctx, tx, clientID, amount)
}

func positive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.InvalidInput("amount must be greater than 0, got %s", amount)
	}
	return nil
}
