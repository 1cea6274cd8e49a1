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

var tracer = otel.Tracer("reserve-service")

// ReserveUseCase contém a máquina de estados das reservas
type ReserveUseCase struct {
	participant    tpc.Participant
	reader         postgres.Querier
	reserves       ReserveRepository
	ledger         *InventoryLedger
	approveOutcome metric.Int64Counter
}

func NewReserveUseCase(participant tpc.Participant, reader postgres.Querier, reserves ReserveRepository, ledger *InventoryLedger) *ReserveUseCase {
	counter, _ := otel.Meter("reserve-service").Int64Counter("reserve.approve.outcome")
	return &ReserveUseCase{
		participant:    participant,
		reader:         reader,
		reserves:       reserves,
		ledger:         ledger,
		approveOutcome: counter,
	}
}

// Create registra a reserva com todos os itens não reservados.
// É idempotente por external_ref.
func (uc *ReserveUseCase) Create(ctx context.Context, req api.CreateReserveRequest) (*Reserve, error) {
	ctx, span := tracer.Start(ctx, "ReserveUseCase.Create")
	defer span.End()

	if req.ExternalRef == "" {
		return nil, apperr.InvalidInput("external_ref is required")
	}
	if len(req.Items) == 0 {
		return nil, apperr.InvalidInput("reserve must have at least one item")
	}
	for _, it := range req.Items {
		if it.ItemID == "" || it.Amount <= 0 {
			return nil, apperr.InvalidInput("invalid item %q with amount %d", it.ItemID, it.Amount)
		}
	}

	reserve, err := tpc.Execute(ctx, uc.participant, req.PreparedTransactionID, func(ctx context.Context, tx pgx.Tx) (*Reserve, error) {
		existing, err := uc.reserves.GetByExternalRef(ctx, tx, req.ExternalRef)
		if err == nil {
			logging.Ctx(ctx).Info().Str("external_ref", req.ExternalRef).Msg("ℹ️ [IDEMPOTENCY] reserve already created")
			return existing, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}

		res := NewReserve(req.ExternalRef, req.Items)
		if err := uc.reserves.Save(ctx, tx, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("reserve.id", reserve.ID))
	logging.Ctx(ctx).Info().Str("reserve_id", reserve.ID).Int("items", len(reserve.Items)).Msg("✅ [CREATE] reserve created")
	return reserve, nil
}

// Approve reserva no estoque os itens ainda não reservados. A reserva só fica
// APPROVED quando todos os itens estão reservados; caso contrário fica
// INSUFFICIENT com a falta registrada por item.
func (uc *ReserveUseCase) Approve(ctx context.Context, id string, preparedID *string) (*Reserve, error) {
	ctx, span := tracer.Start(ctx, "ReserveUseCase.Approve")
	defer span.End()
	span.SetAttributes(attribute.String("reserve.id", id))

	reserve, err := tpc.Execute(ctx, uc.participant, preparedID, func(ctx context.Context, tx pgx.Tx) (*Reserve, error) {
		res, err := uc.reserves.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := CheckTransition(OpApprove, res.Status); err != nil {
			return nil, err
		}

		pending := res.requests(func(it ReserveItem) bool { return !it.Reserved })
		if len(pending) == 0 {
			return nil, apperr.InvalidInput("all items of reserve %s are already reserved", id)
		}

		results, err := uc.ledger.Reserve(ctx, tx, pending)
		if err != nil {
			return nil, err
		}

		outcome := make(map[string]ItemReservation, len(results))
		for _, r := range results {
			outcome[r.ItemID] = r
		}
		for i := range res.Items {
			r, ok := outcome[res.Items[i].ItemID]
			if !ok {
				continue
			}
			res.Items[i].Reserved = r.Reserved
			res.Items[i].Insufficient = nil
			if !r.Reserved {
				shortfall := r.Shortfall
				res.Items[i].Insufficient = &shortfall
			}
		}

		next := ReserveInsufficient
		if res.allReserved() {
			next = ReserveApproved
		}
		if err := res.moveTo(OpApprove, next); err != nil {
			return nil, err
		}
		if err := uc.reserves.Save(ctx, tx, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		span.RecordError(err)
		logging.Ctx(ctx).Warn().Err(err).Str("reserve_id", id).Msg("❌ [APPROVE] failed")
		return nil, err
	}

	uc.approveOutcome.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(reserve.Status))))
	logging.Ctx(ctx).Info().Str("reserve_id", id).Str("status", string(reserve.Status)).Msg("📦 [APPROVE] reserve approved")
	return reserve, nil
}

// Cancel devolve ao estoque os itens reservados e cancela a reserva
func (uc *ReserveUseCase) Cancel(ctx context.Context, id string, preparedID *string) (*Reserve, error) {
	ctx, span := tracer.Start(ctx, "ReserveUseCase.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("reserve.id", id))

	reserve, err := tpc.Execute(ctx, uc.participant, preparedID, func(ctx context.Context, tx pgx.Tx) (*Reserve, error) {
		res, err := uc.reserves.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := CheckTransition(OpCancel, res.Status); err != nil {
			return nil, err
		}

		if held := res.requests(func(it ReserveItem) bool { return it.Reserved }); len(held) > 0 {
			if err := uc.ledger.CancelReserve(ctx, tx, held); err != nil {
				return nil, err
			}
		}
		for i := range res.Items {
			res.Items[i].Reserved = false
		}

		if err := res.moveTo(OpCancel, ReserveCancelled); err != nil {
			return nil, err
		}
		if err := uc.reserves.Save(ctx, tx, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logging.Ctx(ctx).Info().Str("reserve_id", id).Msg("↩️ [CANCEL] reserve cancelled")
	return reserve, nil
}

// Release consome o estoque reservado (mercadoria enviada)
func (uc *ReserveUseCase) Release(ctx context.Context, id string, preparedID *string) (*Reserve, error) {
	ctx, span := tracer.Start(ctx, "ReserveUseCase.Release")
	defer span.End()
	span.SetAttributes(attribute.String("reserve.id", id))

	reserve, err := tpc.Execute(ctx, uc.participant, preparedID, func(ctx context.Context, tx pgx.Tx) (*Reserve, error) {
		res, err := uc.reserves.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := CheckTransition(OpRelease, res.Status); err != nil {
			return nil, err
		}

		if err := uc.ledger.Release(ctx, tx, res.requests(func(ReserveItem) bool { return true })); err != nil {
			return nil, err
		}

		if err := res.moveTo(OpRelease, ReserveReleased); err != nil {
			return nil, err
		}
		if err := uc.reserves.Save(ctx, tx, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logging.Ctx(ctx).Info().Str("reserve_id", id).Msg("🚚 [RELEASE] reserve released")
	return reserve, nil
}

func (uc *ReserveUseCase) Get(ctx context.Context, id string) (*Reserve, error) {
	return uc.reserves.GetByID(ctx, uc.reader, id)
}

func (uc *ReserveUseCase) List(ctx context.Context, page postgres.Page) ([]Reserve, error) {
	return uc.reserves.FindAll(ctx, uc.reader, page)
}
