package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type Delivery struct {
	Address  string    `json:"address"`
	Type     string    `json:"type"`
	DateTime time.Time `json:"date_time"`
}

type CreateOrderRequest struct {
	CustomerID     string       `json:"customer_id" binding:"required"`
	Items          []ItemAmount `json:"items" binding:"required,min=1,dive"`
	Delivery       Delivery     `json:"delivery"`
	TwoPhaseCommit bool         `json:"two_phase_commit"`
}

type OrderActionRequest struct {
	TwoPhaseCommit bool `json:"two_phase_commit"`
}

type OrderItem struct {
	ItemID       string `json:"item_id"`
	Amount       int64  `json:"amount"`
	Insufficient *int64 `json:"insufficient,omitempty"`
	Reserved     bool   `json:"reserved"`
}

type Order struct {
	ID                   string          `json:"id"`
	CustomerID           string          `json:"customer_id"`
	PaymentID            string          `json:"payment_id,omitempty"`
	ReserveID            string          `json:"reserve_id,omitempty"`
	Status               string          `json:"status"`
	PaymentStatus        string          `json:"payment_status,omitempty"`
	Cost                 decimal.Decimal `json:"cost"`
	Delivery             Delivery        `json:"delivery"`
	PaymentTransactionID *string         `json:"payment_transaction_id,omitempty"`
	ReserveTransactionID *string         `json:"reserve_transaction_id,omitempty"`
	OrderTransactionID   *string         `json:"order_transaction_id,omitempty"`
	Items                []OrderItem     `json:"items,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}
