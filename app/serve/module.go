package serve

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pyscope/pyscope/config"
	"github.com/pyscope/pyscope/internal/server"
	"github.com/pyscope/pyscope/interpreter"
	"github.com/pyscope/pyscope/manager"
	"github.com/pyscope/pyscope/util/logging"
)

func Module(cfg Config) fx.Option {
	return fx.Module(
		"serve",
		// rename logger for module
		logging.DecorateLogger("serve"),
		// provide the run manager and the rpc-facing service
		fx.Provide(NewLifecycleManager),
		fx.Provide(NewLifecycleService),
		// provide the rpc route
		fx.Provide(NewRPCRoute),
		// provide http server
		server.Module(server.HttpConfig{
			Host: cfg.Host,
			Port: cfg.Port,
			H2c:  cfg.H2c,
		}),
	)
}

type ManagerParams struct {
	fx.In

	Config config.Config

	Resolver *interpreter.Resolver
	Logger   *zap.Logger
}

// NewManager builds the run manager from the application config,
// resolving the interpreter once up front unless the config names
// one.
func NewManager(params ManagerParams) (*manager.Manager, error) {
	interp := params.Config.Run.Python
	if interp == "" {
		path, err := params.Resolver.Resolve()
		if err != nil {
			return nil, err
		}
		interp = path
	}

	return manager.New(manager.Params{
		MaxCapacity:    params.Config.Run.MaxProcs,
		Interpreter:    interp,
		SampleInterval: params.Config.Run.SampleInterval,
		GracePeriod:    params.Config.Run.GracePeriod,
		Log:            params.Logger,
	})
}

// NewLifecycleManager ties the manager's pool to the application
// lifecycle: shutdown waits for the last run slot to be released.
func NewLifecycleManager(params ManagerParams, lc fx.Lifecycle) (*manager.Manager, error) {
	mgr, err := NewManager(params)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			mgr.Shutdown()
			return nil
		},
	})

	return mgr, nil
}
