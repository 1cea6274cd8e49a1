package main

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/kafka"
	"github.com/matheusmosca/orders-tpc/internal/logging"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
)

// BalanceListener reaprova pedidos INSUFFICIENT quando o saldo do cliente muda
type BalanceListener struct {
	orders   *OrderUseCase
	twoPhase bool
}

func NewBalanceListener(orders *OrderUseCase, twoPhase bool) *BalanceListener {
	return &BalanceListener{orders: orders, twoPhase: twoPhase}
}

// Handle processa um AccountBalanceEvent. O saldo do evento é consumido só
// quando o pagamento de um pedido passa para HOLD nesta reaprovação; falhas de
// um pedido não impedem os demais.
func (l *BalanceListener) Handle(ctx context.Context, m kafkago.Message) error {
	event, err := kafka.Decode[api.AccountBalanceEvent](m)
	if err != nil {
		return err
	}

	log := logging.Ctx(ctx).With().Str("client_id", event.ClientID).Str("request_id", event.RequestID).Logger()

	status := OrderInsufficient
	orders, err := l.orders.List(ctx, OrderFilter{Status: &status, CustomerID: event.ClientID}, postgres.Page{})
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		log.Debug().Str("balance", event.Balance.String()).Msg("no insufficient orders to approve")
		return nil
	}

	budget := event.Balance
	for _, o := range orders {
		// pedidos com pagamento já em HOLD esperam só por estoque
		held := o.PaymentStatus == PaymentHold
		if !held && o.Cost.GreaterThan(budget) {
			log.Debug().Str("order_id", o.ID).Str("cost", o.Cost.String()).Str("budget", budget.String()).Msg("order still exceeds balance")
			continue
		}

		approved, err := l.orders.Approve(ctx, o.ID, l.twoPhase)
		if err != nil {
			log.Warn().Err(err).Str("order_id", o.ID).Msg("⚠️ [BALANCE] re-approval failed")
			continue
		}
		if !held && approved.PaymentStatus == PaymentHold {
			budget = budget.Sub(o.Cost)
		}
		log.Info().Str("order_id", o.ID).Str("status", string(approved.Status)).Msg("💰 [BALANCE] order re-approved")
	}
	return nil
}
