package server

import "go.uber.org/fx"

// Module runs the control server for the application's lifetime,
// serving the routes contributed to the "handlers" group plus the
// liveness endpoint.
func Module(config HttpConfig) fx.Option {
	return fx.Module(
		"server",
		// provide config
		fx.Supply(config),
		// provide the liveness route
		fx.Provide(NewHealthRoute),
		// provide and start the server
		fx.Provide(NewLifecycleServer),
		fx.Invoke(func(*HttpServer) {}),
	)
}
