package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreatePaymentRequest struct {
	ExternalRef           string          `json:"external_ref" binding:"required"`
	ClientID              string          `json:"client_id" binding:"required"`
	Amount                decimal.Decimal `json:"amount"`
	PreparedTransactionID *string         `json:"prepared_transaction_id,omitempty"`
}

type Payment struct {
	ID           string           `json:"id"`
	ExternalRef  string           `json:"external_ref"`
	ClientID     string           `json:"client_id"`
	Amount       decimal.Decimal  `json:"amount"`
	Insufficient *decimal.Decimal `json:"insufficient,omitempty"`
	Status       string           `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type PayResponse struct {
	Payment Payment         `json:"payment"`
	Balance decimal.Decimal `json:"balance"`
}

type Account struct {
	ClientID  string          `json:"client_id"`
	Amount    decimal.Decimal `json:"amount"`
	Locked    decimal.Decimal `json:"locked"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type TopUpAccountRequest struct {
	ClientID string          `json:"client_id" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

type TopUpAccountResponse struct {
	ClientID string          `json:"client_id"`
	Balance  decimal.Decimal `json:"balance"`
}

// AccountBalanceEvent is published after every top-up.
type AccountBalanceEvent struct {
	RequestID string          `json:"request_id"`
	ClientID  string          `json:"client_id"`
	Balance   decimal.Decimal `json:"balance"`
	Timestamp time.Time       `json:"timestamp"`
}
