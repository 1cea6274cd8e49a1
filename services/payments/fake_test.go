package main

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
	"github.com/matheusmosca/orders-tpc/internal/tpc/tpctest"
)

// memRepository keeps accounts and payments in memory with row locks that
// behave like SELECT ... FOR UPDATE.
type memRepository struct {
	accounts *tpctest.Table[Account]
	payments *tpctest.Table[Payment]
}

func newMemRepository() *memRepository {
	return &memRepository{
		accounts: tpctest.NewTable[Account](),
		payments: tpctest.NewTable[Payment](),
	}
}

func (r *memRepository) seedAccount(clientID string, amount, locked string) {
	r.accounts.Seed(clientID, Account{
		ClientID: clientID,
		Amount:   decimal.RequireFromString(amount),
		Locked:   decimal.RequireFromString(locked),
	})
}

func (r *memRepository) seedPayment(p Payment) {
	r.payments.Seed(p.ID, p)
}

func (r *memRepository) account(clientID string) Account {
	a, _ := r.accounts.Get(clientID)
	return a
}

func (r *memRepository) payment(id string) Payment {
	p, _ := r.payments.Get(id)
	return p
}

func (r *memRepository) GetAccountForUpdate(_ context.Context, tx pgx.Tx, clientID string) (*Account, error) {
	r.accounts.Lock(tx, clientID)
	a, ok := r.accounts.Get(clientID)
	if !ok {
		return nil, apperr.NotFound("account %s not found", clientID)
	}
	return &a, nil
}

func (r *memRepository) UpdateAccount(_ context.Context, tx pgx.Tx, acct *Account) error {
	acct.UpdatedAt = time.Now().UTC()
	r.accounts.Put(tx, acct.ClientID, *acct)
	return nil
}

func (r *memRepository) AddAmount(_ context.Context, tx pgx.Tx, clientID string, amount decimal.Decimal) (*Account, error) {
	r.accounts.Lock(tx, clientID)
	a, ok := r.accounts.Get(clientID)
	if !ok {
		a = Account{ClientID: clientID}
	}
	a.Amount = a.Amount.Add(amount)
	a.UpdatedAt = time.Now().UTC()
	r.accounts.Put(tx, clientID, a)
	return &a, nil
}

func (r *memRepository) ListAccounts(_ context.Context, _ postgres.Querier, page postgres.Page) ([]Account, error) {
	all := r.accounts.Values()
	sort.Slice(all, func(i, j int) bool { return all[i].ClientID < all[j].ClientID })
	return paginate(all, page), nil
}

func (r *memRepository) Save(_ context.Context, q postgres.Querier, p *Payment) error {
	r.payments.Put(q.(pgx.Tx), p.ID, *p)
	return nil
}

func (r *memRepository) GetByID(_ context.Context, _ postgres.Querier, id string) (*Payment, error) {
	p, ok := r.payments.Get(id)
	if !ok {
		return nil, apperr.NotFound("payment %s not found", id)
	}
	return &p, nil
}

func (r *memRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Payment, error) {
	r.payments.Lock(tx, id)
	return r.GetByID(ctx, tx, id)
}

func (r *memRepository) GetByExternalRef(_ context.Context, _ postgres.Querier, externalRef string) (*Payment, error) {
	for _, p := range r.payments.Values() {
		if p.ExternalRef == externalRef {
			return &p, nil
		}
	}
	return nil, apperr.NotFound("payment %s not found", externalRef)
}

func (r *memRepository) FindAll(_ context.Context, _ postgres.Querier, page postgres.Page) ([]Payment, error) {
	all := r.payments.Values()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, page), nil
}

func paginate[T any](all []T, page postgres.Page) []T {
	if page.Offset >= len(all) {
		return []T{}
	}
	all = all[page.Offset:]
	if page.Limit > 0 && page.Limit < len(all) {
		all = all[:page.Limit]
	}
	return all
}

type recordingNotifier struct {
	events []Account
}

func (n *recordingNotifier) BalanceChanged(_ context.Context, acct Account) {
	n.events = append(n.events, acct)
}

var (
	_ AccountRepository = (*memRepository)(nil)
	_ PaymentRepository = (*memRepository)(nil)
)
