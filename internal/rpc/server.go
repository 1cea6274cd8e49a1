package rpc

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/logging"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
)

// NewRouter returns a gin engine with tracing, request logging, recovery and
// a health check.
func NewRouter(service string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(service), logging.GinMiddleware())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	return r
}

// WriteError renders err with the status code of its kind.
func WriteError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	c.JSON(apperr.HTTPStatus(kind), api.ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

// BindJSON decodes the request body into dst and writes a 400 on failure.
func BindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		WriteError(c, apperr.Wrap(err, apperr.KindInvalidInput, "invalid request body"))
		return false
	}
	return true
}

// BindOptionalJSON is BindJSON for endpoints whose body may be empty, with or
// without a Content-Length.
func BindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		WriteError(c, apperr.Wrap(err, apperr.KindInvalidInput, "invalid request body"))
		return false
	}
	return true
}

// PageQuery reads the optional page and size query parameters and writes a
// 400 when either is not a number.
func PageQuery(c *gin.Context) (postgres.Page, bool) {
	page, err := queryInt(c, "page")
	if err != nil {
		WriteError(c, err)
		return postgres.Page{}, false
	}
	size, err := queryInt(c, "size")
	if err != nil {
		WriteError(c, err)
		return postgres.Page{}, false
	}
	return postgres.NewPage(page, size), true
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.InvalidInput("invalid %s %q", key, raw)
	}
	return n, nil
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info().Str("addr", addr).Msg("🚀 listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
