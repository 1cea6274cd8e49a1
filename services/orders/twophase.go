package main

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/logging"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
)

// Finalizers são os coordenadores 2PC dos stores tocados por um pedido
type Finalizers struct {
	Payment tpc.Finalizer
	Reserve tpc.Finalizer
	Order   tpc.Finalizer
}

// twoPhase carrega os ids preparados de uma operação do pedido. Fora do modo
// 2PC os ids são nil e cada chamada comita localmente.
type twoPhase struct {
	payment, reserve, order *string
	finalizers              Finalizers
}

func newTwoPhase(enabled bool, finalizers Finalizers) *twoPhase {
	tp := &twoPhase{finalizers: finalizers}
	if enabled {
		tp.payment = mintID()
		tp.reserve = mintID()
		tp.order = mintID()
	}
	return tp
}

// recordedTwoPhase reconstrói os ids gravados no pedido por uma tentativa anterior
func recordedTwoPhase(o *Order, finalizers Finalizers) *twoPhase {
	return &twoPhase{
		payment:    o.PaymentTransactionID,
		reserve:    o.ReserveTransactionID,
		order:      o.OrderTransactionID,
		finalizers: finalizers,
	}
}

func mintID() *string {
	id := tpc.NewID()
	return &id
}

func (tp *twoPhase) assign(o *Order) {
	o.PaymentTransactionID = tp.payment
	o.ReserveTransactionID = tp.reserve
	o.OrderTransactionID = tp.order
}

// owns indica se o pedido ainda carrega o id local desta tentativa. Sem 2PC
// nada fica preparado e os dois lados são nil.
func (tp *twoPhase) owns(o *Order) bool {
	if tp.order == nil || o.OrderTransactionID == nil {
		return tp.order == nil && o.OrderTransactionID == nil
	}
	return *tp.order == *o.OrderTransactionID
}

type preparedTx struct {
	store     string
	id        string
	finalizer tpc.Finalizer
}

func (tp *twoPhase) pending() []preparedTx {
	var out []preparedTx
	for _, p := range []struct {
		store     string
		id        *string
		finalizer tpc.Finalizer
	}{
		{"payments", tp.payment, tp.finalizers.Payment},
		{"reserve", tp.reserve, tp.finalizers.Reserve},
		{"orders", tp.order, tp.finalizers.Order},
	} {
		if p.id != nil {
			out = append(out, preparedTx{store: p.store, id: *p.id, finalizer: p.finalizer})
		}
	}
	return out
}

// commit finaliza todas as transações em paralelo. Uma falha não cancela as
// demais: o que já foi comitado não volta atrás, e o que falhou continua
// listado no coordenador do store.
func (tp *twoPhase) commit(ctx context.Context) error {
	pending := tp.pending()
	if len(pending) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, p := range pending {
		g.Go(func() error {
			if err := p.finalizer.Commit(ctx, p.id); err != nil {
				logging.Ctx(ctx).Error().Err(err).Str("store", p.store).Str("prepared_id", p.id).Msg("❌ [2PC] commit failed")
				return apperr.Wrap(err, apperr.KindTransaction, "failed to commit %s transaction %s", p.store, p.id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logging.Ctx(ctx).Info().Int("transactions", len(pending)).Msg("✅ [2PC] prepared transactions committed")
	return nil
}

// rollback é best-effort: ids nunca preparados são aceitos pelos coordenadores
func (tp *twoPhase) rollback(ctx context.Context) {
	var g errgroup.Group
	for _, p := range tp.pending() {
		g.Go(func() error {
			if err := p.finalizer.Rollback(ctx, p.id); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Str("store", p.store).Str("prepared_id", p.id).Msg("⚠️ [2PC] rollback failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// abort desfaz as transações preparadas e devolve err
func (tp *twoPhase) abort(ctx context.Context, err error) error {
	tp.rollback(ctx)
	return err
}
