package main

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/logging"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
)

var tracer = otel.Tracer("payments-service")

// PaymentUseCase contém a máquina de estados de pagamentos
type PaymentUseCase struct {
	participant    tpc.Participant
	reader         postgres.Querier
	payments       PaymentRepository
	ledger         *AccountLedger
	approveOutcome metric.Int64Counter
}

// NewPaymentUseCase cria uma nova instância de PaymentUseCase
func NewPaymentUseCase(participant tpc.Participant, reader postgres.Querier, payments PaymentRepository, ledger *AccountLedger) *PaymentUseCase {
	counter, _ := otel.Meter("payments-service").Int64Counter("payments.approve.outcome")
	return &PaymentUseCase{
		participant:    participant,
		reader:         reader,
		payments:       payments,
		ledger:         ledger,
		approveOutcome: counter,
	}
}

// Create registra o pagamento de um pedido no estado CREATED.
// É idempotente por external_ref: repetir a chamada devolve o pagamento existente.
func (uc *PaymentUseCase) Create(ctx context.Context, req api.CreatePaymentRequest) (*Payment, error) {
	ctx, span := tracer.Start(ctx, "PaymentUseCase.Create")
	defer span.End()

	if req.ExternalRef == "" {
		return nil, apperr.InvalidInput("external_ref is required")
	}
	if req.ClientID == "" {
		return nil, apperr.InvalidInput("client_id is required")
	}
	if err := positive(req.Amount); err != nil {
		return nil, err
	}

	payment, err := tpc.Execute(ctx, uc.participant, req.PreparedTransactionID, func(ctx context.Context, tx pgx.Tx) (*Payment, error) {
		existing, err := uc.payments.GetByExternalRef(ctx, tx, req.ExternalRef)
		if err == nil {
			logging.Ctx(ctx).Info().Str("external_ref", req.ExternalRef).Msg("ℹ️ [IDEMPOTENCY] payment already created")
			return existing, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}

		p := NewPayment(req.ExternalRef, req.ClientID, req.Amount)
		if err := uc.payments.Save(ctx, tx, p); err != nil {
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("payment.id", payment.ID))
	logging.Ctx(ctx).Info().Str("payment_id", payment.ID).Str("external_ref", payment.ExternalRef).Msg("✅ [CREATE] payment created")
	return payment, nil
}

// Approve bloqueia o valor do pagamento no saldo do cliente. Saldo
// insuficiente leva o pagamento a INSUFFICIENT com o valor faltante; os dois
// desfechos são persistidos.
func (uc *PaymentUseCase) Approve(ctx context.Context, id string, preparedID *string) (*Payment, error) {
	ctx, span := tracer.Start(ctx, "PaymentUseCase.Approve")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", id))

	payment, err := tpc.Execute(ctx, uc.participant, preparedID, func(ctx context.Context, tx pgx.Tx) (*Payment, error) {
		p, err := uc.payments.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := CheckTransition(OpApprove, p.Status); err != nil {
			return nil, err
		}

		res, err := uc.ledger.Lock(ctx, tx, p.ClientID, p.Amount)
		if err != nil {
			return nil, err
		}

		if res.Success {
			p.Insufficient = nil
			err = p.moveTo(OpApprove, PaymentHold)
		} else {
			shortfall := res.Shortfall
			p.Insufficient = &shortfall
			err = p.moveTo(OpApprove, PaymentInsufficient)
		}
		if err != nil {
			return nil, err
		}

		if err := uc.payments.Save(ctx, tx, p); err != nil {
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		span.RecordError(err)
		logging.Ctx(ctx).Warn().Err(err).Str("payment_id", id).Msg("❌ [APPROVE] failed")
		return nil, err
	}

	uc.approveOutcome.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(payment.Status))))
	event := logging.Ctx(ctx).Info().Str("payment_id", id).Str("status", string(payment.Status))
	if payment.Insufficient != nil {
		event = event.Str("insufficient", payment.Insufficient.String())
	}
	event.Msg("💳 [APPROVE] payment approved")
	return payment, nil
}

// Cancel cancela o pagamento, liberando o valor bloqueado quando houver
func (uc *PaymentUseCase) Cancel(ctx context.Context, id string, preparedID *string) (*Payment, error) {
	ctx, span := tracer.Start(ctx, "PaymentUseCase.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", id))

	payment, err := tpc.Execute(ctx, uc.participant, preparedID, func(ctx context.Context, tx pgx.Tx) (*Payment, error) {
		p, err := uc.payments.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := CheckTransition(OpCancel, p.Status); err != nil {
			return nil, err
		}

		// só pagamentos em HOLD têm valor bloqueado
		if p.Status == PaymentHold {
			if _, err := uc.ledger.Unlock(ctx, tx, p.ClientID, p.Amount); err != nil {
				return nil, err
			}
		}

		if err := p.moveTo(OpCancel, PaymentCancelled); err != nil {
			return nil, err
		}
		if err := uc.payments.Save(ctx, tx, p); err != nil {
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logging.Ctx(ctx).Info().Str("payment_id", id).Msg("↩️ [CANCEL] payment cancelled")
	return payment, nil
}

// Pay efetiva o débito do valor bloqueado e retorna o novo saldo livre
func (uc *PaymentUseCase) Pay(ctx context.Context, id string, preparedID *string) (*PayResult, error) {
	ctx, span := tracer.Start(ctx, "PaymentUseCase.Pay")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", id))

	result, err := tpc.Execute(ctx, uc.participant, preparedID, func(ctx context.Context, tx pgx.Tx) (*PayResult, error) {
		p, err := uc.payments.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := CheckTransition(OpPay, p.Status); err != nil {
			return nil, err
		}

		acct, err := uc.ledger.WriteOff(ctx, tx, p.ClientID, p.Amount)
		if err != nil {
			return nil, err
		}

		if err := p.moveTo(OpPay, PaymentPaid); err != nil {
			return nil, err
		}
		if err := uc.payments.Save(ctx, tx, p); err != nil {
			return nil, err
		}
		return &PayResult{Payment: p, Balance: acct.Available()}, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logging.Ctx(ctx).Info().Str("payment_id", id).Str("balance", result.Balance.String()).Msg("✅ [PAY] payment paid")
	return result, nil
}

func (uc *PaymentUseCase) Get(ctx context.Context, id string) (*Payment, error) {
	return uc.payments.GetByID(ctx, uc.reader, id)
}

func (uc *PaymentUseCase) List(ctx context.Context, page postgres.Page) ([]Payment, error) {
	return uc.payments.FindAll(ctx, uc.reader, page)
}
