package palette

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	slogCtxKey ctxKey = iota
	stateCtxKey
)

var discard = slog.New(slog.DiscardHandler)

// LoggingContext returns a copy of ctx that carries logger. Everything the
// Engine logs while rendering with that context goes to logger; without it,
// nothing is logged.
func LoggingContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, slogCtxKey, logger)
}

// Logger returns the logger LoggingContext attached to ctx, or a logger
// that discards everything.
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(slogCtxKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return discard
}
