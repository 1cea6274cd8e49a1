package main

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/logging"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
)

var tracer = otel.Tracer("orders-service")

// OrderUseCase orquestra pagamento e reserva de um pedido
type OrderUseCase struct {
	participant tpc.Participant
	reader      postgres.Querier
	orders      OrderRepository
	payments    PaymentService
	reserves    ReserveService
	costs       CostSource
	finalizers  Finalizers
	outcome     metric.Int64Counter
}

// NewOrderUseCase cria uma nova instância de OrderUseCase
func NewOrderUseCase(
	participant tpc.Participant,
	reader postgres.Querier,
	orders OrderRepository,
	payments PaymentService,
	reserves ReserveService,
	costs CostSource,
	finalizers Finalizers,
) *OrderUseCase {
	counter, _ := otel.Meter("orders-service").Int64Counter("orders.workflow.outcome")
	return &OrderUseCase{
		participant: participant,
		reader:      reader,
		orders:      orders,
		payments:    payments,
		reserves:    reserves,
		costs:       costs,
		finalizers:  finalizers,
		outcome:     counter,
	}
}

// Create registra o pedido em CREATING, cria pagamento e reserva nos
// participantes e grava o pedido como CREATED. Se uma chamada remota falhar o
// pedido fica em CREATING e pode ser retomado com Resume.
func (uc *OrderUseCase) Create(ctx context.Context, req api.CreateOrderRequest) (order *Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderUseCase.Create")
	defer span.End()
	defer func() { uc.record(ctx, "create", order, err) }()

	delivery, err := validateCreate(req)
	if err != nil {
		return nil, err
	}

	o := NewOrder(req.CustomerID, req.Items, delivery)
	if o.Cost, err = uc.price(ctx, o.Items); err != nil {
		span.RecordError(err)
		return nil, err
	}

	tp := newTwoPhase(req.TwoPhaseCommit, uc.finalizers)
	tp.assign(o)
	if _, err := tpc.Execute(ctx, uc.participant, nil, func(ctx context.Context, tx pgx.Tx) (*Order, error) {
		return o, uc.orders.Save(ctx, tx, o)
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", o.ID), attribute.Bool("order.two_phase", req.TwoPhaseCommit))
	logging.Ctx(ctx).Info().Str("order_id", o.ID).Str("cost", o.Cost.String()).Msg("📝 [CREATE] order registered")

	order, err = uc.create(ctx, o, tp)
	if err != nil {
		span.RecordError(err)
		logging.Ctx(ctx).Warn().Err(err).Str("order_id", o.ID).Msg("❌ [CREATE] failed")
		return nil, err
	}

	logging.Ctx(ctx).Info().Str("order_id", order.ID).Str("payment_id", order.PaymentID).Str("reserve_id", order.ReserveID).Msg("✅ [CREATE] order created")
	return order, nil
}

func (uc *OrderUseCase) create(ctx context.Context, o *Order, tp *twoPhase) (*Order, error) {
	payment, err := uc.payments.Create(ctx, api.CreatePaymentRequest{
		ExternalRef:           o.ID,
		ClientID:              o.CustomerID,
		Amount:                o.Cost,
		PreparedTransactionID: tp.payment,
	})
	if err != nil {
		return nil, tp.abort(ctx, err)
	}

	reserve, err := uc.reserves.Create(ctx, api.CreateReserveRequest{
		ExternalRef:           o.ID,
		Items:                 o.ItemAmounts(),
		PreparedTransactionID: tp.reserve,
	})
	if err != nil {
		return nil, tp.abort(ctx, err)
	}

	order, err := uc.complete(ctx, o.ID, OrderCreating, tp, func(cur *Order) {
		cur.PaymentID = payment.ID
		cur.ReserveID = reserve.ID
		cur.PaymentStatus = payment.Status
		cur.setStatus(OrderCreated)
	})
	if err != nil {
		return nil, tp.abort(ctx, err)
	}
	if err := tp.commit(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

// Approve bloqueia o valor no pagamento e reserva os itens. O pedido termina
// APPROVED apenas com pagamento em HOLD e todos os itens reservados; qualquer
// outro desfecho é INSUFFICIENT, sem compensar o lado que deu certo.
func (uc *OrderUseCase) Approve(ctx context.Context, id string, twoPhase bool) (order *Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderUseCase.Approve")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id), attribute.Bool("order.two_phase", twoPhase))
	defer func() { uc.record(ctx, string(OpApprove), order, err) }()

	o, tp, err := uc.begin(ctx, id, OpApprove, twoPhase)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	payment, err := uc.payments.Get(ctx, o.PaymentID)
	if err != nil {
		return nil, uc.fail(ctx, span, OpApprove, id, tp.abort(ctx, err))
	}
	if payment.Status != PaymentHold {
		if payment, err = uc.payments.Approve(ctx, o.PaymentID, tp.payment); err != nil {
			return nil, uc.fail(ctx, span, OpApprove, id, tp.abort(ctx, err))
		}
	}

	reserve, err := uc.reserves.Get(ctx, o.ReserveID)
	if err != nil {
		return nil, uc.fail(ctx, span, OpApprove, id, tp.abort(ctx, err))
	}
	// sem saldo o estoque não é tocado
	if payment.Status == PaymentHold && reserve.Status != ReserveApproved {
		if reserve, err = uc.reserves.Approve(ctx, o.ReserveID, tp.reserve); err != nil {
			return nil, uc.fail(ctx, span, OpApprove, id, tp.abort(ctx, err))
		}
	}

	order, err = uc.complete(ctx, id, OrderApproving, tp, func(cur *Order) {
		cur.PaymentStatus = payment.Status
		cur.applyReserve(reserve.Items)
		cur.setStatus(DeriveStatus(cur.PaymentStatus, cur.Items))
	})
	if err != nil {
		return nil, uc.fail(ctx, span, OpApprove, id, tp.abort(ctx, err))
	}
	if err := tp.commit(ctx); err != nil {
		return nil, uc.fail(ctx, span, OpApprove, id, err)
	}

	logging.Ctx(ctx).Info().
		Str("order_id", id).
		Str("status", string(order.Status)).
		Str("payment_status", order.PaymentStatus).
		Str("reserve_status", reserve.Status).
		Msg("📦 [APPROVE] order approved")
	return order, nil
}

// Cancel cancela pagamento e reserva e só então grava CANCELLED
func (uc *OrderUseCase) Cancel(ctx context.Context, id string, twoPhase bool) (order *Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderUseCase.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id), attribute.Bool("order.two_phase", twoPhase))
	defer func() { uc.record(ctx, string(OpCancel), order, err) }()

	o, tp, err := uc.begin(ctx, id, OpCancel, twoPhase)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	payment, err := uc.payments.Get(ctx, o.PaymentID)
	if err != nil {
		return nil, uc.fail(ctx, span, OpCancel, id, tp.abort(ctx, err))
	}
	if payment.Status != PaymentCancelled {
		if payment, err = uc.payments.Cancel(ctx, o.PaymentID, tp.payment); err != nil {
			return nil, uc.fail(ctx, span, OpCancel, id, tp.abort(ctx, err))
		}
	}

	reserve, err := uc.reserves.Get(ctx, o.ReserveID)
	if err != nil {
		return nil, uc.fail(ctx, span, OpCancel, id, tp.abort(ctx, err))
	}
	if reserve.Status != ReserveCancelled {
		if reserve, err = uc.reserves.Cancel(ctx, o.ReserveID, tp.reserve); err != nil {
			return nil, uc.fail(ctx, span, OpCancel, id, tp.abort(ctx, err))
		}
	}

	order, err = uc.complete(ctx, id, OrderCancelling, tp, func(cur *Order) {
		cur.PaymentStatus = payment.Status
		cur.applyReserve(reserve.Items)
		cur.setStatus(OrderCancelled)
	})
	if err != nil {
		return nil, uc.fail(ctx, span, OpCancel, id, tp.abort(ctx, err))
	}
	if err := tp.commit(ctx); err != nil {
		return nil, uc.fail(ctx, span, OpCancel, id, err)
	}

	logging.Ctx(ctx).Info().Str("order_id", id).Msg("↩️ [CANCEL] order cancelled")
	return order, nil
}

// Release debita o pagamento e baixa o estoque reservado
func (uc *OrderUseCase) Release(ctx context.Context, id string, twoPhase bool) (order *Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderUseCase.Release")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id), attribute.Bool("order.two_phase", twoPhase))
	defer func() { uc.record(ctx, string(OpRelease), order, err) }()

	o, tp, err := uc.begin(ctx, id, OpRelease, twoPhase)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	payment, err := uc.payments.Get(ctx, o.PaymentID)
	if err != nil {
		return nil, uc.fail(ctx, span, OpRelease, id, tp.abort(ctx, err))
	}
	if payment.Status != PaymentPaid {
		paid, err := uc.payments.Pay(ctx, o.PaymentID, tp.payment)
		if err != nil {
			return nil, uc.fail(ctx, span, OpRelease, id, tp.abort(ctx, err))
		}
		payment = &paid.Payment
	}

	reserve, err := uc.reserves.Get(ctx, o.ReserveID)
	if err != nil {
		return nil, uc.fail(ctx, span, OpRelease, id, tp.abort(ctx, err))
	}
	if reserve.Status != ReserveReleased {
		if reserve, err = uc.reserves.Release(ctx, o.ReserveID, tp.reserve); err != nil {
			return nil, uc.fail(ctx, span, OpRelease, id, tp.abort(ctx, err))
		}
	}

	order, err = uc.complete(ctx, id, OrderReleasing, tp, func(cur *Order) {
		cur.PaymentStatus = payment.Status
		cur.applyReserve(reserve.Items)
		cur.setStatus(OrderReleased)
	})
	if err != nil {
		return nil, uc.fail(ctx, span, OpRelease, id, tp.abort(ctx, err))
	}
	if err := tp.commit(ctx); err != nil {
		return nil, uc.fail(ctx, span, OpRelease, id, err)
	}

	logging.Ctx(ctx).Info().Str("order_id", id).Msg("🚚 [RELEASE] order released")
	return order, nil
}

// Resume retoma um pedido parado num estado intermediário (ou INSUFFICIENT)
// a partir do que os participantes já registraram.
func (uc *OrderUseCase) Resume(ctx context.Context, id string, twoPhase bool) (*Order, error) {
	o, err := uc.orders.GetByID(ctx, uc.reader, id)
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().Str("order_id", id).Str("status", string(o.Status)).Msg("🔁 [RESUME] resuming order")

	switch o.Status {
	case OrderCreating:
		return uc.resumeCreate(ctx, o, twoPhase)
	case OrderApproving, OrderInsufficient:
		return uc.Approve(ctx, id, twoPhase)
	case OrderReleasing:
		return uc.Release(ctx, id, twoPhase)
	case OrderCancelling:
		return uc.Cancel(ctx, id, twoPhase)
	}
	return nil, apperr.InvalidState("order %s in status %s has nothing to resume", id, o.Status)
}

func (uc *OrderUseCase) resumeCreate(ctx context.Context, o *Order, twoPhase bool) (order *Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderUseCase.Resume")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", o.ID))
	defer func() { uc.record(ctx, "create", order, err) }()

	marked, tp, err := uc.enter(ctx, o, OrderCreating, twoPhase, func(s OrderStatus) error {
		if s != OrderCreating {
			return apperr.InvalidState("order %s is no longer %s", o.ID, OrderCreating)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err = uc.create(ctx, marked, tp)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("order_id", order.ID).Msg("✅ [RESUME] order created")
	return order, nil
}

func (uc *OrderUseCase) Get(ctx context.Context, id string) (*Order, error) {
	return uc.orders.GetByID(ctx, uc.reader, id)
}

func (uc *OrderUseCase) List(ctx context.Context, filter OrderFilter, page postgres.Page) ([]Order, error) {
	return uc.orders.FindByFilter(ctx, uc.reader, filter, page)
}

// begin valida op contra o estado atual e grava o estado intermediário
func (uc *OrderUseCase) begin(ctx context.Context, id string, op Operation, twoPhase bool) (*Order, *twoPhase, error) {
	o, err := uc.orders.GetByID(ctx, uc.reader, id)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckTransition(op, o.Status); err != nil {
		return nil, nil, err
	}
	return uc.enter(ctx, o, orderTransitions[op].through, twoPhase, func(s OrderStatus) error {
		return CheckTransition(op, s)
	})
}

// enter descarta as transações preparadas de uma tentativa interrompida,
// gera ids novos e grava o pedido em through com commit comum. O registro
// intermediário é o que permite retomar a operação depois.
func (uc *OrderUseCase) enter(ctx context.Context, o *Order, through OrderStatus, enabled bool, check func(OrderStatus) error) (*Order, *twoPhase, error) {
	if o.Status.Intermediate() {
		recordedTwoPhase(o, uc.finalizers).rollback(ctx)
	}

	tp := newTwoPhase(enabled, uc.finalizers)
	marked, err := tpc.Execute(ctx, uc.participant, nil, func(ctx context.Context, tx pgx.Tx) (*Order, error) {
		cur, err := uc.orders.GetForUpdate(ctx, tx, o.ID)
		if err != nil {
			return nil, err
		}
		if err := check(cur.Status); err != nil {
			return nil, err
		}
		cur.setStatus(through)
		tp.assign(cur)
		if err := uc.orders.Save(ctx, tx, cur); err != nil {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return marked, tp, nil
}

// complete aplica o resultado dos participantes ao pedido, preparado sob o id
// local quando em 2PC. O pedido precisa continuar em expected e com os ids
// desta tentativa: outra execução que reentrou na operação já desfez as
// transações preparadas por esta.
func (uc *OrderUseCase) complete(ctx context.Context, id string, expected OrderStatus, tp *twoPhase, apply func(*Order)) (*Order, error) {
	return tpc.Execute(ctx, uc.participant, tp.order, func(ctx context.Context, tx pgx.Tx) (*Order, error) {
		cur, err := uc.orders.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if cur.Status != expected {
			return nil, apperr.InvalidState("order %s moved to %s during %s", id, cur.Status, expected)
		}
		if !tp.owns(cur) {
			return nil, apperr.InvalidState("order %s was taken over by another %s attempt", id, expected)
		}
		apply(cur)
		if err := uc.orders.Save(ctx, tx, cur); err != nil {
			return nil, err
		}
		return cur, nil
	})
}

// price soma custo unitário × quantidade de cada item, consultando os custos em paralelo
func (uc *OrderUseCase) price(ctx context.Context, items []OrderItem) (decimal.Decimal, error) {
	subtotals := make([]decimal.Decimal, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, it := range items {
		g.Go(func() error {
			cost, err := uc.costs.ItemCost(gctx, it.ItemID)
			if err != nil {
				return err
			}
			subtotals[i] = cost.Mul(decimal.NewFromInt(it.Amount))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return decimal.Zero, err
	}
	return decimal.Sum(decimal.Zero, subtotals...), nil
}

func (uc *OrderUseCase) fail(ctx context.Context, span trace.Span, op Operation, id string, err error) error {
	span.RecordError(err)
	logging.Ctx(ctx).Warn().Err(err).Str("order_id", id).Msgf("❌ [%s] failed", strings.ToUpper(string(op)))
	return err
}

func (uc *OrderUseCase) record(ctx context.Context, operation string, order *Order, err error) {
	status := "error"
	if err == nil && order != nil {
		status = string(order.Status)
	}
	uc.outcome.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

func validateCreate(req api.CreateOrderRequest) (Delivery, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return Delivery{}, apperr.InvalidInput("customer_id is required")
	}
	if len(req.Items) == 0 {
		return Delivery{}, apperr.InvalidInput("at least one item is required")
	}
	for _, it := range req.Items {
		if it.ItemID == "" {
			return Delivery{}, apperr.InvalidInput("item_id is required")
		}
		if it.Amount <= 0 {
			return Delivery{}, apperr.InvalidInput("amount of item %s must be positive", it.ItemID)
		}
	}

	d := Delivery{
		Address:  req.Delivery.Address,
		Type:     DeliveryType(strings.ToUpper(req.Delivery.Type)),
		DateTime: req.Delivery.DateTime,
	}
	switch d.Type {
	case "":
		d.Type = DeliveryPickup
	case DeliveryPickup:
	case DeliveryCourier:
		if strings.TrimSpace(d.Address) == "" {
			return Delivery{}, apperr.InvalidInput("delivery address is required for %s", DeliveryCourier)
		}
	default:
		return Delivery{}, apperr.InvalidInput("unknown delivery type %q", req.Delivery.Type)
	}
	return d, nil
}
