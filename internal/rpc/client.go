// Package rpc is the HTTP transport between the services: a resty client for
// callers and gin helpers for handlers.
package rpc

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/apperr"
)

// Client calls one remote service. Requests are never retried.
type Client struct {
	name string
	http *resty.Client
}

// NewClient builds a client for the service at baseURL. timeout bounds the
// whole request, connectTimeout the TCP dial.
func NewClient(name, baseURL string, timeout, connectTimeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
	}

	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetTransport(transport).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")

	r.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
		return nil
	})

	return &Client{name: name, http: r}
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, query, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, query url.Values, out any) error {
	ctx, span := otel.Tracer("rpc").Start(ctx, c.name+" "+method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req := c.http.R().SetContext(ctx).SetError(&api.ErrorResponse{})
	if body != nil {
		req.SetBody(body)
	}
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return transportError(c.name, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	if resp.IsError() {
		remote, _ := resp.Error().(*api.ErrorResponse)
		if remote == nil {
			remote = &api.ErrorResponse{}
		}
		msg := remote.Error
		if msg == "" {
			msg = resp.Status()
		}
		kind := remote.Kind
		if kind == "" {
			kind = string(apperr.FromHTTPStatus(resp.StatusCode()))
		}
		span.SetStatus(codes.Error, msg)
		return apperr.New(apperr.KindExternalService, "%s responded %d %s: %s", c.name, resp.StatusCode(), kind, msg)
	}
	return nil
}

// transportError classifies failures that produced no response: timeouts are
// ExternalService, anything else means the service could not be reached.
func transportError(name string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Wrap(err, apperr.KindExternalService, "%s timed out", name)
	}
	return apperr.Wrap(err, apperr.KindServiceUnavailable, "%s unreachable", name)
}
