package main

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/rpc"
)

// PaymentService é a visão do orquestrador sobre o serviço de pagamentos
type PaymentService interface {
	Create(ctx context.Context, req api.CreatePaymentRequest) (*api.Payment, error)
	Approve(ctx context.Context, id string, preparedID *string) (*api.Payment, error)
	Cancel(ctx context.Context, id string, preparedID *string) (*api.Payment, error)
	Pay(ctx context.Context, id string, preparedID *string) (*api.PayResponse, error)
	Get(ctx context.Context, id string) (*api.Payment, error)
}

// ReserveService é a visão do orquestrador sobre o serviço de reservas
type ReserveService interface {
	Create(ctx context.Context, req api.CreateReserveRequest) (*api.Reserve, error)
	Approve(ctx context.Context, id string, preparedID *string) (*api.Reserve, error)
	Cancel(ctx context.Context, id string, preparedID *string) (*api.Reserve, error)
	Release(ctx context.Context, id string, preparedID *string) (*api.Reserve, error)
	Get(ctx context.Context, id string) (*api.Reserve, error)
}

// CostSource informa o custo unitário de um item
type CostSource interface {
	ItemCost(ctx context.Context, itemID string) (decimal.Decimal, error)
}

// PaymentClient chama o serviço de pagamentos via HTTP
type PaymentClient struct {
	rpc *rpc.Client
}

func NewPaymentClient(c *rpc.Client) *PaymentClient {
	return &PaymentClient{rpc: c}
}

func (c *PaymentClient) Create(ctx context.Context, req api.CreatePaymentRequest) (*api.Payment, error) {
	var out api.Payment
	if err := c.rpc.Post(ctx, "/api/payments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *PaymentClient) Approve(ctx context.Context, id string, preparedID *string) (*api.Payment, error) {
	return c.action(ctx, id, "approve", preparedID)
}

func (c *PaymentClient) Cancel(ctx context.Context, id string, preparedID *string) (*api.Payment, error) {
	return c.action(ctx, id, "cancel", preparedID)
}

func (c *PaymentClient) Pay(ctx context.Context, id string, preparedID *string) (*api.PayResponse, error) {
	var out api.PayResponse
	if err := c.rpc.Post(ctx, "/api/payments/"+url.PathEscape(id)+"/pay", api.ActionRequest{PreparedTransactionID: preparedID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *PaymentClient) Get(ctx context.Context, id string) (*api.Payment, error) {
	var out api.Payment
	if err := c.rpc.Get(ctx, "/api/payments/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *PaymentClient) action(ctx context.Context, id, action string, preparedID *string) (*api.Payment, error) {
	var out api.Payment
	if err := c.rpc.Post(ctx, "/api/payments/"+url.PathEscape(id)+"/"+action, api.ActionRequest{PreparedTransactionID: preparedID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReserveClient chama o serviço de reservas via HTTP
type ReserveClient struct {
	rpc *rpc.Client
}

func NewReserveClient(c *rpc.Client) *ReserveClient {
	return &ReserveClient{rpc: c}
}

func (c *ReserveClient) Create(ctx context.Context, req api.CreateReserveRequest) (*api.Reserve, error) {
	var out api.Reserve
	if err := c.rpc.Post(ctx, "/api/reserves", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ReserveClient) Approve(ctx context.Context, id string, preparedID *string) (*api.Reserve, error) {
	return c.action(ctx, id, "approve", preparedID)
}

func (c *ReserveClient) Cancel(ctx context.Context, id string, preparedID *string) (*api.Reserve, error) {
	return c.action(ctx, id, "cancel", preparedID)
}

func (c *ReserveClient) Release(ctx context.Context, id string, preparedID *string) (*api.Reserve, error) {
	return c.action(ctx, id, "release", preparedID)
}

func (c *ReserveClient) Get(ctx context.Context, id string) (*api.Reserve, error) {
	var out api.Reserve
	if err := c.rpc.Get(ctx, "/api/reserves/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ReserveClient) action(ctx context.Context, id, action string, preparedID *string) (*api.Reserve, error) {
	var out api.Reserve
	if err := c.rpc.Post(ctx, "/api/reserves/"+url.PathEscape(id)+"/"+action, api.ActionRequest{PreparedTransactionID: preparedID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WarehouseClient consulta custos no serviço de reservas
type WarehouseClient struct {
	rpc *rpc.Client
}

func NewWarehouseClient(c *rpc.Client) *WarehouseClient {
	return &WarehouseClient{rpc: c}
}

func (c *WarehouseClient) ItemCost(ctx context.Context, itemID string) (decimal.Decimal, error) {
	var out api.ItemCost
	if err := c.rpc.Get(ctx, "/api/items/"+url.PathEscape(itemID)+"/cost", nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Cost, nil
}
