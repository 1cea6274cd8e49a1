// Package api holds the JSON contracts exchanged between the services.
package api

import "time"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// FinalizeRequest asks a coordinator to commit or roll back a prepared
// transaction.
type FinalizeRequest struct {
	ID string `json:"id" binding:"required"`
}

type FinalizeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PreparedTransaction is a transaction prepared but not yet finalized.
type PreparedTransaction struct {
	ID         string    `json:"id"`
	PreparedAt time.Time `json:"prepared_at"`
}

// PreparedTransactionRecord mirrors the registry row kept next to the data.
type PreparedTransactionRecord struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ActionRequest is the body of participant operations that take no
// arguments besides the optional prepared transaction id.
type ActionRequest struct {
	PreparedTransactionID *string `json:"prepared_transaction_id,omitempty"`
}

// ItemAmount is a requested quantity of one warehouse item.
type ItemAmount struct {
	ItemID string `json:"item_id" binding:"required"`
	Amount int64  `json:"amount" binding:"gt=0"`
}
