// Package appcontext carries run-scoped values through an import: the logger and,
// while a collection is being written, that collection's name.
package appcontext

import (
	"context"
	"log/slog"
)

type (
	loggerKey     struct{}
	collectionKey struct{}
)

// WithLogger returns a copy of ctx that carries logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the logger carried by ctx, or slog.Default when there is none.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}

	return slog.Default()
}

// WithCollection scopes ctx to one collection. The carried logger gains a
// "collection" attribute so every record written below it is tagged.
func WithCollection(ctx context.Context, name string) context.Context {
	logger := LoggerFromContext(ctx).With("collection", name)
	ctx = context.WithValue(ctx, collectionKey{}, name)

	return WithLogger(ctx, logger)
}

// CollectionFromContext returns the collection set by WithCollection.
func CollectionFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(collectionKey{}).(string)
	return name, ok
}
