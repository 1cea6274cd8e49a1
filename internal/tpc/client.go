package tpc

import (
	"context"
	"net/url"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/rpc"
)

// Client reaches the coordinator of a remote participant.
type Client struct {
	rpc *rpc.Client
}

func NewClient(c *rpc.Client) *Client {
	return &Client{rpc: c}
}

func (c *Client) Commit(ctx context.Context, id string) error {
	return c.rpc.Post(ctx, "/api/tpc/commit", api.FinalizeRequest{ID: id}, nil)
}

func (c *Client) Rollback(ctx context.Context, id string) error {
	return c.rpc.Post(ctx, "/api/tpc/rollback", api.FinalizeRequest{ID: id}, nil)
}

func (c *Client) ListActive(ctx context.Context) ([]api.PreparedTransaction, error) {
	var active []api.PreparedTransaction
	if err := c.rpc.Get(ctx, "/api/tpc/active", nil, &active); err != nil {
		return nil, err
	}
	return active, nil
}

func (c *Client) Record(ctx context.Context, id string) (*Record, error) {
	var rec api.PreparedTransactionRecord
	if err := c.rpc.Get(ctx, "/api/tpc/records/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &Record{ID: rec.ID, Status: Status(rec.Status), CreatedAt: rec.CreatedAt, FinishedAt: rec.FinishedAt}, nil
}

var _ Service = (*Client)(nil)
