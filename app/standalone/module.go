package standalone

import (
	"go.uber.org/fx"

	"github.com/pyscope/pyscope/util/logging"
)

func Module(config Config) fx.Option {
	return fx.Module(
		"run",
		// rename logger for module
		logging.DecorateLogger("run"),
		// provide run config
		fx.Supply(config),
		// provide run service
		fx.Provide(NewLifecycleService),
		// invoke run service
		fx.Invoke(func(*Service) {}),
	)
}
