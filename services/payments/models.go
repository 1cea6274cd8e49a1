package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/apperr"
)

// PaymentStatus representa o estado de um pagamento
type PaymentStatus string

const (
	PaymentCreated      PaymentStatus = "CREATED"
	PaymentHold         PaymentStatus = "HOLD"
	PaymentInsufficient PaymentStatus = "INSUFFICIENT"
	PaymentPaid         PaymentStatus = "PAID"
	PaymentCancelled    PaymentStatus = "CANCELLED"
)

// Operation é uma operação da máquina de estados do pagamento
type Operation string

const (
	OpApprove Operation = "approve"
	OpCancel  Operation = "cancel"
	OpPay     Operation = "pay"
)

type transition struct {
	from []PaymentStatus
	to   []PaymentStatus
}

// paymentTransitions é a tabela (estado atual, operação) -> estados permitidos
var paymentTransitions = map[Operation]transition{
	OpApprove: {from: []PaymentStatus{PaymentCreated, PaymentInsufficient}, to: []PaymentStatus{PaymentHold, PaymentInsufficient}},
	OpCancel:  {from: []PaymentStatus{PaymentCreated, PaymentInsufficient, PaymentHold}, to: []PaymentStatus{PaymentCancelled}},
	OpPay:     {from: []PaymentStatus{PaymentHold}, to: []PaymentStatus{PaymentPaid}},
}

// CheckTransition falha com InvalidState se op não é permitida a partir de current
func CheckTransition(op Operation, current PaymentStatus) error {
	for _, s := range paymentTransitions[op].from {
		if s == current {
			return nil
		}
	}
	return apperr.InvalidState("cannot %s payment in status %s", op, current)
}

// moveTo aplica o próximo estado de op, validando-o contra a tabela
func (p *Payment) moveTo(op Operation, next PaymentStatus) error {
	for _, s := range paymentTransitions[op].to {
		if s == next {
			p.Status = next
			p.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return apperr.New(apperr.KindInternal, "%s cannot move payment %s to %s", op, p.ID, next)
}

// Account representa o saldo de um cliente
type Account struct {
	ClientID  string
	Amount    decimal.Decimal
	Locked    decimal.Decimal
	UpdatedAt time.Time
}

// Available retorna o saldo livre (amount - locked)
func (a Account) Available() decimal.Decimal {
	return a.Amount.Sub(a.Locked)
}

func (a Account) ToAPI() api.Account {
	return api.Account{ClientID: a.ClientID, Amount: a.Amount, Locked: a.Locked, UpdatedAt: a.UpdatedAt}
}

// Payment representa o pagamento de um pedido
type Payment struct {
	ID           string
	ExternalRef  string
	ClientID     string
	Amount       decimal.Decimal
	Insufficient *decimal.Decimal
	Status       PaymentStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewPayment cria um pagamento no estado CREATED
func NewPayment(externalRef, clientID string, amount decimal.Decimal) *Payment {
	now := time.Now().UTC()
	return &Payment{
		ID:          uuid.NewString(),
		ExternalRef: externalRef,
		ClientID:    clientID,
		Amount:      amount,
		Status:      PaymentCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (p *Payment) ToAPI() api.Payment {
	return api.Payment{
		ID:           p.ID,
		ExternalRef:  p.ExternalRef,
		ClientID:     p.ClientID,
		Amount:       p.Amount,
		Insufficient: p.Insufficient,
		Status:       string(p.Status),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// PayResult é o resultado de um pagamento efetivado
type PayResult struct {
	Payment *Payment
	Balance decimal.Decimal
}
