// Package logging carries the application logger through contexts and
// derives named child loggers for fx-managed components.
package logging

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

type loggerKey struct{}

// ErrNoLoggerInContext is returned when the context carries no logger.
var ErrNoLoggerInContext = errors.New("no logger in context")

// ContextWithLogger returns a copy of ctx carrying the logger.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext extracts the logger from the context.
func LoggerFromContext(ctx context.Context) (*zap.Logger, error) {
	logger, ok := ctx.Value(loggerKey{}).(*zap.Logger)
	if !ok {
		return nil, ErrNoLoggerInContext
	}

	return logger, nil
}
