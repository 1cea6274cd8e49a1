package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateReserveRequest struct {
	ExternalRef           string       `json:"external_ref" binding:"required"`
	Items                 []ItemAmount `json:"items" binding:"required,min=1,dive"`
	PreparedTransactionID *string      `json:"prepared_transaction_id,omitempty"`
}

type ReserveItem struct {
	ItemID       string `json:"item_id"`
	Amount       int64  `json:"amount"`
	Insufficient *int64 `json:"insufficient,omitempty"`
	Reserved     bool   `json:"reserved"`
}

type Reserve struct {
	ID          string        `json:"id"`
	ExternalRef string        `json:"external_ref"`
	Status      string        `json:"status"`
	Items       []ReserveItem `json:"items"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type WarehouseItem struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Reserved  int64     `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ItemCost struct {
	ItemID string          `json:"item_id"`
	Cost   decimal.Decimal `json:"cost"`
}

type TopUpItemRequest struct {
	ItemID string `json:"item_id" binding:"required"`
	Amount int64  `json:"amount"`
}

type TopUpItemResponse struct {
	ItemID string `json:"item_id"`
	Amount int64  `json:"amount"`
}
