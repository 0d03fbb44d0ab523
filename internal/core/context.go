package core

import (
	"context"
	"log/slog"
)

type streamKey struct{}
type feedKey struct{}
type loggerKey struct{}

func WithStream(ctx context.Context, stream string) context.Context {
	if ctx == nil || stream == "" {
		return ctx
	}
	return context.WithValue(ctx, streamKey{}, stream)
}

func StreamFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(streamKey{}).(string); ok {
		return v
	}
	return ""
}

func WithFeedID(ctx context.Context, feedID string) context.Context {
	if ctx == nil || feedID == "" {
		return ctx
	}
	return context.WithValue(ctx, feedKey{}, feedID)
}

func FeedIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(feedKey{}).(string); ok {
		return v
	}
	return ""
}

// WithLogger attaches a slog logger to the context.
// Callers should prefer passing a logger with useful correlation fields (e.g. stream, feed_id).
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns a slog logger attached to the context, or slog.Default() if absent.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}
