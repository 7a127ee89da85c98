package conf

import (
	"context"
	"errors"
)

type configKey struct{}

// ErrNoConfigInContext is returned when the context carries no config,
// or one of a different type than requested.
var ErrNoConfigInContext = errors.New("no config in context")

// ContextWithConfig returns a copy of ctx carrying the config.
func ContextWithConfig[C any](ctx context.Context, config C) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

// GetConfigFromContext extracts a config of type C from the context.
func GetConfigFromContext[C any](ctx context.Context) (C, error) {
	config, ok := ctx.Value(configKey{}).(C)
	if !ok {
		return config, ErrNoConfigInContext
	}

	return config, nil
}
