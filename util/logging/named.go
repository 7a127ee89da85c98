package logging

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NamedLogger returns a decorator deriving a named child logger.
func NamedLogger(name string) func(log *zap.Logger) *zap.Logger {
	return func(log *zap.Logger) *zap.Logger {
		return log.Named(name)
	}
}

// DecorateLogger scopes the injected logger to name within an fx
// module.
func DecorateLogger(name string) fx.Option {
	return fx.Decorate(NamedLogger(name))
}
