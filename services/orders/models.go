package main

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/apperr"
)

// OrderStatus representa o estado agregado de um pedido
type OrderStatus string

const (
	OrderCreating     OrderStatus = "CREATING"
	OrderCreated      OrderStatus = "CREATED"
	OrderApproving    OrderStatus = "APPROVING"
	OrderApproved     OrderStatus = "APPROVED"
	OrderReleasing    OrderStatus = "RELEASING"
	OrderReleased     OrderStatus = "RELEASED"
	OrderInsufficient OrderStatus = "INSUFFICIENT"
	OrderCancelling   OrderStatus = "CANCELLING"
	OrderCancelled    OrderStatus = "CANCELLED"
)

// Intermediate indica que uma operação começou e ainda não terminou
func (s OrderStatus) Intermediate() bool {
	switch s {
	case OrderCreating, OrderApproving, OrderReleasing, OrderCancelling:
		return true
	}
	return false
}

// Status espelhados dos participantes
const (
	PaymentHold         = "HOLD"
	PaymentInsufficient = "INSUFFICIENT"
	PaymentPaid         = "PAID"
	PaymentCancelled    = "CANCELLED"

	ReserveApproved  = "APPROVED"
	ReserveReleased  = "RELEASED"
	ReserveCancelled = "CANCELLED"
)

type DeliveryType string

const (
	DeliveryPickup  DeliveryType = "PICKUP"
	DeliveryCourier DeliveryType = "COURIER"
)

type Operation string

const (
	OpApprove Operation = "approve"
	OpCancel  Operation = "cancel"
	OpRelease Operation = "release"
)

// orderTransitions: estados de origem aceitos por operação e o estado
// intermediário gravado antes de chamar os participantes. Os intermediários
// aparecem na origem para que uma operação interrompida possa ser retomada.
var orderTransitions = map[Operation]struct {
	from    []OrderStatus
	through OrderStatus
}{
	OpApprove: {from: []OrderStatus{OrderCreated, OrderInsufficient, OrderApproving}, through: OrderApproving},
	OpCancel:  {from: []OrderStatus{OrderCreated, OrderInsufficient, OrderApproved, OrderCancelling}, through: OrderCancelling},
	OpRelease: {from: []OrderStatus{OrderApproved, OrderReleasing}, through: OrderReleasing},
}

// CheckTransition falha com InvalidState se op não é permitida a partir de current
func CheckTransition(op Operation, current OrderStatus) error {
	for _, s := range orderTransitions[op].from {
		if s == current {
			return nil
		}
	}
	return apperr.InvalidState("cannot %s order in status %s", op, current)
}

type Delivery struct {
	Address  string
	Type     DeliveryType
	DateTime time.Time
}

type OrderItem struct {
	ItemID       string
	Amount       int64
	Insufficient *int64
	Reserved     bool
}

// Order é o agregado persistido pelo orquestrador
type Order struct {
	ID                   string
	CustomerID           string
	PaymentID            string
	ReserveID            string
	Status               OrderStatus
	PaymentStatus        string
	Cost                 decimal.Decimal
	Delivery             Delivery
	PaymentTransactionID *string
	ReserveTransactionID *string
	OrderTransactionID   *string
	Items                []OrderItem
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewOrder cria um pedido no estado CREATING. Itens repetidos são somados.
func NewOrder(customerID string, items []api.ItemAmount, delivery Delivery) *Order {
	amounts := make(map[string]int64, len(items))
	for _, it := range items {
		amounts[it.ItemID] += it.Amount
	}
	lines := make([]OrderItem, 0, len(amounts))
	for id, amount := range amounts {
		lines = append(lines, OrderItem{ItemID: id, Amount: amount})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })

	now := time.Now().UTC()
	return &Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Status:     OrderCreating,
		Delivery:   delivery,
		Items:      lines,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (o *Order) setStatus(s OrderStatus) {
	o.Status = s
	o.UpdatedAt = time.Now().UTC()
}

// applyReserve copia para os itens do pedido o resultado por item da reserva
func (o *Order) applyReserve(items []api.ReserveItem) {
	byID := make(map[string]api.ReserveItem, len(items))
	for _, it := range items {
		byID[it.ItemID] = it
	}
	for i := range o.Items {
		if r, ok := byID[o.Items[i].ItemID]; ok {
			o.Items[i].Reserved = r.Reserved
			o.Items[i].Insufficient = r.Insufficient
		}
	}
}

// DeriveStatus aplica a regra mais pessimista: APPROVED só com pagamento em
// HOLD e todos os itens reservados.
func DeriveStatus(paymentStatus string, items []OrderItem) OrderStatus {
	if paymentStatus != PaymentHold {
		return OrderInsufficient
	}
	for _, it := range items {
		if !it.Reserved {
			return OrderInsufficient
		}
	}
	return OrderApproved
}

func (o *Order) ItemAmounts() []api.ItemAmount {
	out := make([]api.ItemAmount, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, api.ItemAmount{ItemID: it.ItemID, Amount: it.Amount})
	}
	return out
}

func (o *Order) ToAPI() api.Order {
	var items []api.OrderItem
	if len(o.Items) > 0 {
		items = make([]api.OrderItem, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, api.OrderItem{
				ItemID:       it.ItemID,
				Amount:       it.Amount,
				Insufficient: it.Insufficient,
				Reserved:     it.Reserved,
			})
		}
	}
	return api.Order{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		PaymentID:     o.PaymentID,
		ReserveID:     o.ReserveID,
		Status:        string(o.Status),
		PaymentStatus: o.PaymentStatus,
		Cost:          o.Cost,
		Delivery: api.Delivery{
			Address:  o.Delivery.Address,
			Type:     string(o.Delivery.Type),
			DateTime: o.Delivery.DateTime,
		},
		PaymentTransactionID: o.PaymentTransactionID,
		ReserveTransactionID: o.ReserveTransactionID,
		OrderTransactionID:   o.OrderTransactionID,
		Items:                items,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

// OrderFilter restringe a listagem de pedidos
type OrderFilter struct {
	Status     *OrderStatus
	CustomerID string
}
