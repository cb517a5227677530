// Package logger provides the process-wide structured logger built on log/slog.
//
// Handlers should log through WithCtx so every line carries the request id
// injected by the Logger middleware:
//
//	log := logger.WithCtx(r.Context())
//	log.Info("order placed", "order_number", o.OrderNumber)
package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/ourstore/storefront/config"
)

var L *slog.Logger

// base is the stdout handler; sinks added later fan out from it.
var base slog.Handler

func init() {
	switch config.AppEnv() {
	case "production", "prod":
		base = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	default:
		base = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	L = slog.New(base)
	slog.SetDefault(L)
}

// AddSink fans every future record out to h as well as stdout.
func AddSink(h slog.Handler) {
	L = slog.New(NewMultiHandler(base, h))
	slog.SetDefault(L)
}

// ─── Context-aware logger ──────────────────────────────────────────────────────

type ctxKey struct{}

// WithCtx returns the logger stored by InjectLogger, or L.
func WithCtx(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return L
}

// InjectLogger stores a request-scoped logger in ctx.
func InjectLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs at INFO level.
func Info(msg string, args ...any) { L.Info(msg, args...) }

// Warn logs at WARN level.
func Warn(msg string, args ...any) { L.Warn(msg, args...) }

// Error logs at ERROR level.
func Error(msg string, args ...any) { L.Error(msg, args...) }
