// Package logging configures zerolog for the services.
package logging

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Setup installs the global logger. Unknown levels fall back to info.
func Setup(service, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	zlog.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", service).Logger()
	zerolog.DefaultContextLogger = &zlog.Logger
}

// Ctx returns the logger for ctx, tagged with the active trace id.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zlog.Ctx(ctx)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		tagged := l.With().Str("trace_id", sc.TraceID().String()).Logger()
		return &tagged
	}
	return l
}

// GinMiddleware logs one line per request. Server errors are logged at error
// level, client errors at warn.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := Ctx(c.Request.Context()).Info()
		switch {
		case status >= 500:
			event = Ctx(c.Request.Context()).Error()
		case status >= 400:
			event = Ctx(c.Request.Context()).Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
