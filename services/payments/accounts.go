package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/kafka"
	"github.com/matheusmosca/orders-tpc/internal/logging"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
)

// BalanceNotifier avisa interessados que o saldo de um cliente mudou
type BalanceNotifier interface {
	BalanceChanged(ctx context.Context, acct Account)
}

// AccountUseCase expõe listagem e recarga de contas
type AccountUseCase struct {
	participant tpc.Participant
	reader      postgres.Querier
	accounts    AccountRepository
	ledger      *AccountLedger
	notifier    BalanceNotifier
}

func NewAccountUseCase(participant tpc.Participant, reader postgres.Querier, accounts AccountRepository, ledger *AccountLedger, notifier BalanceNotifier) *AccountUseCase {
	return &AccountUseCase{
		participant: participant,
		reader:      reader,
		accounts:    accounts,
		ledger:      ledger,
		notifier:    notifier,
	}
}

// TopUp credita a conta e, após o commit, publica o novo saldo
func (uc *AccountUseCase) TopUp(ctx context.Context, clientID string, amount decimal.Decimal) (*Account, error) {
	ctx, span := tracer.Start(ctx, "AccountUseCase.TopUp")
	defer span.End()

	acct, err := tpc.Execute(ctx, uc.participant, nil, func(ctx context.Context, tx pgx.Tx) (*Account, error) {
		return uc.ledger.TopUp(ctx, tx, clientID, amount)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logging.Ctx(ctx).Info().Str("client_id", clientID).Str("balance", acct.Available().String()).Msg("💰 [TOP-UP] account credited")
	uc.notifier.BalanceChanged(ctx, *acct)
	return acct, nil
}

func (uc *AccountUseCase) List(ctx context.Context, page postgres.Page) ([]Account, error) {
	return uc.accounts.ListAccounts(ctx, uc.reader, page)
}

// KafkaBalanceNotifier publica api.AccountBalanceEvent sem bloquear o chamador
type KafkaBalanceNotifier struct {
	producer *kafka.Producer
}

func NewKafkaBalanceNotifier(producer *kafka.Producer) *KafkaBalanceNotifier {
	return &KafkaBalanceNotifier{producer: producer}
}

func (n *KafkaBalanceNotifier) BalanceChanged(ctx context.Context, acct Account) {
	event := api.AccountBalanceEvent{
		RequestID: uuid.NewString(),
		ClientID:  acct.ClientID,
		Balance:   acct.Available(),
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("client_id", acct.ClientID).Msg("❌ encode balance event")
		return
	}
	if !n.producer.Publish([]byte(acct.ClientID), payload) {
		logging.Ctx(ctx).Warn().Str("client_id", acct.ClientID).Str("request_id", event.RequestID).Msg("⚠️ balance event dropped")
	}
}
