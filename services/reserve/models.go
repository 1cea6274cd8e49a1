package main

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/apperr"
)

// ReserveStatus representa o estado de uma reserva
type ReserveStatus string

const (
	ReserveCreated      ReserveStatus = "CREATED"
	ReserveInsufficient ReserveStatus = "INSUFFICIENT"
	ReserveApproved     ReserveStatus = "APPROVED"
	ReserveReleased     ReserveStatus = "RELEASED"
	ReserveCancelled    ReserveStatus = "CANCELLED"
)

type Operation string

const (
	OpApprove Operation = "approve"
	OpCancel  Operation = "cancel"
	OpRelease Operation = "release"
)

var reserveTransitions = map[Operation]struct {
	from []ReserveStatus
	to   []ReserveStatus
}{
	OpApprove: {from: []ReserveStatus{ReserveCreated, ReserveInsufficient}, to: []ReserveStatus{ReserveApproved, ReserveInsufficient}},
	OpCancel:  {from: []ReserveStatus{ReserveCreated, ReserveInsufficient, ReserveApproved}, to: []ReserveStatus{ReserveCancelled}},
	OpRelease: {from: []ReserveStatus{ReserveApproved}, to: []ReserveStatus{ReserveReleased}},
}

// CheckTransition falha com InvalidState se op não é permitida a partir de current
func CheckTransition(op Operation, current ReserveStatus) error {
	for _, s := range reserveTransitions[op].from {
		if s == current {
			return nil
		}
	}
	return apperr.InvalidState("cannot %s reserve in status %s", op, current)
}

func (r *Reserve) moveTo(op Operation, next ReserveStatus) error {
	for _, s := range reserveTransitions[op].to {
		if s == next {
			r.Status = next
			r.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return apperr.New(apperr.KindInternal, "%s cannot move reserve %s to %s", op, r.ID, next)
}

// WarehouseItem representa o estoque de um item
type WarehouseItem struct {
	ID        string
	Amount    int64
	Reserved  int64
	UnitCost  decimal.Decimal
	UpdatedAt time.Time
}

// Available retorna o estoque livre (amount - reserved)
func (w WarehouseItem) Available() int64 {
	return w.Amount - w.Reserved
}

func (w WarehouseItem) ToAPI() api.WarehouseItem {
	return api.WarehouseItem{ID: w.ID, Amount: w.Amount, Reserved: w.Reserved, UpdatedAt: w.UpdatedAt}
}

// ReserveItem é uma linha da reserva
type ReserveItem struct {
	ItemID       string
	Amount       int64
	Insufficient *int64
	Reserved     bool
}

// Reserve representa a reserva de estoque de um pedido
type Reserve struct {
	ID          string
	ExternalRef string
	Status      ReserveStatus
	Items       []ReserveItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewReserve cria uma reserva no estado CREATED com todos os itens não reservados.
// Itens repetidos são somados numa única linha.
func NewReserve(externalRef string, items []api.ItemAmount) *Reserve {
	amounts := make(map[string]int64, len(items))
	for _, it := range items {
		amounts[it.ItemID] += it.Amount
	}

	lines := make([]ReserveItem, 0, len(amounts))
	for id, amount := range amounts {
		lines = append(lines, ReserveItem{ItemID: id, Amount: amount})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })

	now := time.Now().UTC()
	return &Reserve{
		ID:          uuid.NewString(),
		ExternalRef: externalRef,
		Status:      ReserveCreated,
		Items:       lines,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// requests devolve os itens que satisfazem keep, no formato do ledger
func (r *Reserve) requests(keep func(ReserveItem) bool) []ItemRequest {
	var out []ItemRequest
	for _, it := range r.Items {
		if keep(it) {
			out = append(out, ItemRequest{ItemID: it.ItemID, Amount: it.Amount})
		}
	}
	return out
}

func (r *Reserve) allReserved() bool {
	for _, it := range r.Items {
		if !it.Reserved {
			return false
		}
	}
	return true
}

func (r *Reserve) ToAPI() api.Reserve {
	items := make([]api.ReserveItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, api.ReserveItem{
			ItemID:       it.ItemID,
			Amount:       it.Amount,
			Insufficient: it.Insufficient,
			Reserved:     it.Reserved,
		})
	}
	return api.Reserve{
		ID:          r.ID,
		ExternalRef: r.ExternalRef,
		Status:      string(r.Status),
		Items:       items,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
