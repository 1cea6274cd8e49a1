package main

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
	"github.com/matheusmosca/orders-tpc/internal/tpc/tpctest"
)

// memOrderRepository keeps orders in memory with FOR UPDATE style row locks.
type memOrderRepository struct {
	orders *tpctest.Table[Order]
}

func newMemOrderRepository() *memOrderRepository {
	return &memOrderRepository{orders: tpctest.NewTable[Order]()}
}

func cloneOrder(o Order) Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

func (r *memOrderRepository) order(id string) Order {
	o, _ := r.orders.Get(id)
	return cloneOrder(o)
}

func (r *memOrderRepository) Save(_ context.Context, q postgres.Querier, o *Order) error {
	r.orders.Put(q.(pgx.Tx), o.ID, cloneOrder(*o))
	return nil
}

func (r *memOrderRepository) GetByID(_ context.Context, _ postgres.Querier, id string) (*Order, error) {
	o, ok := r.orders.Get(id)
	if !ok {
		return nil, apperr.NotFound("order %s not found", id)
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r *memOrderRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Order, error) {
	r.orders.Lock(tx, id)
	return r.GetByID(ctx, tx, id)
}

func (r *memOrderRepository) FindAll(ctx context.Context, q postgres.Querier, page postgres.Page) ([]Order, error) {
	return r.FindByFilter(ctx, q, OrderFilter{}, page)
}

func (r *memOrderRepository) FindByFilter(_ context.Context, _ postgres.Querier, filter OrderFilter, page postgres.Page) ([]Order, error) {
	var out []Order
	for _, o := range r.orders.Values() {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		o.Items = nil
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if page.Offset >= len(out) {
		return []Order{}, nil
	}
	out = out[page.Offset:]
	if page.Limit > 0 && page.Limit < len(out) {
		out = out[:page.Limit]
	}
	return out, nil
}

// fakePayments mimics the payments service: balances are free funds, and an
// approved payment moves its amount out of them until cancel.
type fakePayments struct {
	mu       sync.Mutex
	coord    *tpctest.Coordinator
	balances map[string]decimal.Decimal
	payments map[string]*api.Payment
	calls    map[string]int
	errs     map[string]error
}

func newFakePayments(coord *tpctest.Coordinator) *fakePayments {
	return &fakePayments{
		coord:    coord,
		balances: map[string]decimal.Decimal{},
		payments: map[string]*api.Payment{},
		calls:    map[string]int{},
		errs:     map[string]error{},
	}
}

func (f *fakePayments) setBalance(clientID, amount string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[clientID] = decimal.RequireFromString(amount)
}

func (f *fakePayments) balance(clientID string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[clientID]
}

func (f *fakePayments) failOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

func (f *fakePayments) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// enter records the call and returns the injected failure. Callers hold mu.
func (f *fakePayments) enter(method string, preparedID *string) error {
	f.calls[method]++
	if err := f.errs[method]; err != nil {
		return err
	}
	if preparedID != nil {
		f.coord.Prepare(*preparedID)
	}
	return nil
}

func (f *fakePayments) find(id string) (*api.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, apperr.New(apperr.KindExternalService, "payments-service responded 404 NOT_FOUND: payment %s not found", id)
	}
	return p, nil
}

func (f *fakePayments) Create(_ context.Context, req api.CreatePaymentRequest) (*api.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create", req.PreparedTransactionID); err != nil {
		return nil, err
	}
	id := "pay-" + req.ExternalRef
	if p, ok := f.payments[id]; ok {
		out := *p
		return &out, nil
	}
	p := &api.Payment{ID: id, ExternalRef: req.ExternalRef, ClientID: req.ClientID, Amount: req.Amount, Status: "CREATED"}
	f.payments[id] = p
	out := *p
	return &out, nil
}

func (f *fakePayments) Approve(_ context.Context, id string, preparedID *string) (*api.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("approve", preparedID); err != nil {
		return nil, err
	}
	p, err := f.find(id)
	if err != nil {
		return nil, err
	}
	if p.Status != "CREATED" && p.Status != PaymentInsufficient {
		return nil, apperr.New(apperr.KindExternalService, "payments-service responded 409 INVALID_STATE")
	}
	free := f.balances[p.ClientID]
	if free.GreaterThanOrEqual(p.Amount) {
		f.balances[p.ClientID] = free.Sub(p.Amount)
		p.Status, p.Insufficient = PaymentHold, nil
	} else {
		shortfall := p.Amount.Sub(free)
		p.Status, p.Insufficient = PaymentInsufficient, &shortfall
	}
	out := *p
	return &out, nil
}

func (f *fakePayments) Cancel(_ context.Context, id string, preparedID *string) (*api.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("cancel", preparedID); err != nil {
		return nil, err
	}
	p, err := f.find(id)
	if err != nil {
		return nil, err
	}
	if p.Status == PaymentHold {
		f.balances[p.ClientID] = f.balances[p.ClientID].Add(p.Amount)
	}
	p.Status = PaymentCancelled
	out := *p
	return &out, nil
}

func (f *fakePayments) Pay(_ context.Context, id string, preparedID *string) (*api.PayResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("pay", preparedID); err != nil {
		return nil, err
	}
	p, err := f.find(id)
	if err != nil {
		return nil, err
	}
	if p.Status != PaymentHold {
		return nil, apperr.New(apperr.KindExternalService, "payments-service responded 409 INVALID_STATE")
	}
	p.Status = PaymentPaid
	return &api.PayResponse{Payment: *p, Balance: f.balances[p.ClientID]}, nil
}

func (f *fakePayments) Get(_ context.Context, id string) (*api.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get", nil); err != nil {
		return nil, err
	}
	p, err := f.find(id)
	if err != nil {
		return nil, err
	}
	out := *p
	return &out, nil
}

// fakeReserves mimics the reserve service over a map of free stock.
type fakeReserves struct {
	mu       sync.Mutex
	coord    *tpctest.Coordinator
	stock    map[string]int64
	reserves map[string]*api.Reserve
	calls    map[string]int
	errs     map[string]error
}

func newFakeReserves(coord *tpctest.Coordinator) *fakeReserves {
	return &fakeReserves{
		coord:    coord,
		stock:    map[string]int64{},
		reserves: map[string]*api.Reserve{},
		calls:    map[string]int{},
		errs:     map[string]error{},
	}
}

func (f *fakeReserves) setStock(itemID string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[itemID] = amount
}

func (f *fakeReserves) available(itemID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[itemID]
}

func (f *fakeReserves) failOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

func (f *fakeReserves) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeReserves) enter(method string, preparedID *string) error {
	f.calls[method]++
	if err := f.errs[method]; err != nil {
		return err
	}
	if preparedID != nil {
		f.coord.Prepare(*preparedID)
	}
	return nil
}

func (f *fakeReserves) find(id string) (*api.Reserve, error) {
	r, ok := f.reserves[id]
	if !ok {
		return nil, apperr.New(apperr.KindExternalService, "reserve-service responded 404 NOT_FOUND: reserve %s not found", id)
	}
	return r, nil
}

func copyReserve(r *api.Reserve) *api.Reserve {
	out := *r
	out.Items = append([]api.ReserveItem(nil), r.Items...)
	return &out
}

func (f *fakeReserves) Create(_ context.Context, req api.CreateReserveRequest) (*api.Reserve, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create", req.PreparedTransactionID); err != nil {
		return nil, err
	}
	id := "res-" + req.ExternalRef
	if r, ok := f.reserves[id]; ok {
		return copyReserve(r), nil
	}
	r := &api.Reserve{ID: id, ExternalRef: req.ExternalRef, Status: "CREATED"}
	for _, it := range req.Items {
		r.Items = append(r.Items, api.ReserveItem{ItemID: it.ItemID, Amount: it.Amount})
	}
	f.reserves[id] = r
	return copyReserve(r), nil
}

func (f *fakeReserves) Approve(_ context.Context, id string, preparedID *string) (*api.Reserve, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("approve", preparedID); err != nil {
		return nil, err
	}
	r, err := f.find(id)
	if err != nil {
		return nil, err
	}
	if r.Status != "CREATED" && r.Status != "INSUFFICIENT" {
		return nil, apperr.New(apperr.KindExternalService, "reserve-service responded 409 INVALID_STATE")
	}
	all := true
	for i := range r.Items {
		it := &r.Items[i]
		if it.Reserved {
			continue
		}
		if free := f.stock[it.ItemID]; free >= it.Amount {
			f.stock[it.ItemID] = free - it.Amount
			it.Reserved, it.Insufficient = true, nil
		} else {
			shortfall := it.Amount - free
			it.Insufficient = &shortfall
			all = false
		}
	}
	r.Status = "INSUFFICIENT"
	if all {
		r.Status = ReserveApproved
	}
	return copyReserve(r), nil
}

func (f *fakeReserves) Cancel(_ context.Context, id string, preparedID *string) (*api.Reserve, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("cancel", preparedID); err != nil {
		return nil, err
	}
	r, err := f.find(id)
	if err != nil {
		return nil, err
	}
	for i := range r.Items {
		if r.Items[i].Reserved {
			f.stock[r.Items[i].ItemID] += r.Items[i].Amount
			r.Items[i].Reserved = false
		}
	}
	r.Status = ReserveCancelled
	return copyReserve(r), nil
}

func (f *fakeReserves) Release(_ context.Context, id string, preparedID *string) (*api.Reserve, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("release", preparedID); err != nil {
		return nil, err
	}
	r, err := f.find(id)
	if err != nil {
		return nil, err
	}
	if r.Status != ReserveApproved {
		return nil, apperr.New(apperr.KindExternalService, "reserve-service responded 409 INVALID_STATE")
	}
	r.Status = ReserveReleased
	return copyReserve(r), nil
}

func (f *fakeReserves) Get(_ context.Context, id string) (*api.Reserve, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get", nil); err != nil {
		return nil, err
	}
	r, err := f.find(id)
	if err != nil {
		return nil, err
	}
	return copyReserve(r), nil
}

// fakeCosts prices known items; anything else is unknown to the warehouse.
type fakeCosts map[string]decimal.Decimal

func (c fakeCosts) ItemCost(_ context.Context, itemID string) (decimal.Decimal, error) {
	cost, ok := c[itemID]
	if !ok {
		return decimal.Zero, apperr.New(apperr.KindExternalService, "reserve-service responded 404 NOT_FOUND: item %s not found", itemID)
	}
	return cost, nil
}

// coordinatorRegistry announces locally prepared ids to an in-memory coordinator.
type coordinatorRegistry struct {
	coord *tpctest.Coordinator
}

func (r coordinatorRegistry) Register(_ context.Context, id string) error {
	r.coord.Prepare(id)
	return nil
}

// hookedFinalizer runs before ahead of the first commit of any finalizer
// sharing once. Every commit waits for it to finish.
type hookedFinalizer struct {
	tpc.Finalizer
	once   *sync.Once
	before func()
}

func (h *hookedFinalizer) Commit(ctx context.Context, id string) error {
	h.once.Do(h.before)
	return h.Finalizer.Commit(ctx, id)
}

var (
	_ OrderRepository = (*memOrderRepository)(nil)
	_ PaymentService  = (*fakePayments)(nil)
	_ ReserveService  = (*fakeReserves)(nil)
	_ CostSource      = fakeCosts(nil)
	_ tpc.Registrar   = coordinatorRegistry{}
)
