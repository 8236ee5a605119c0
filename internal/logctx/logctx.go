// Package logctx carries a zerolog logger through context.Context.
//
// The CLI attaches a logger tagged with a run id once per invocation; the
// engines pull it back out with FromContext and add their own fields:
//
//	ctx, runID := logctx.WithRunID(ctx)
//	ctx = logctx.WithResource(ctx, "ventes.csv")
//	log := logctx.FromContext(ctx)
//	log.Info().Msg("importing sales")
package logctx

import (
	"context"

	"github.com/eunmann/salesdb/pkg/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// loggerKey is the private key type for storing loggers in context.
type loggerKey struct{}

// runIDKey stores the run id separately so it can be read back without parsing logs.
type runIDKey struct{}

// WithLogger returns a new context with the given logger attached.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from the context. Without one, the global
// logger from pkg/logging is returned, so this never yields a zero logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return logger
		}
	}
	return *logging.L()
}

// WithRunID tags the context logger with a fresh run id.
func WithRunID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	ctx = WithStr(ctx, "run_id", id)
	return context.WithValue(ctx, runIDKey{}, id), id
}

// RunID returns the run id attached by WithRunID, or "".
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// WithResource adds the resource field used by fetch and ingest logs.
func WithResource(ctx context.Context, name string) context.Context {
	return WithStr(ctx, "resource", name)
}

// WithStr returns a new context with a logger that has the specified string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}
