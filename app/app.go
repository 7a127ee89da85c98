package app

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pyscope/pyscope/config"
	"github.com/pyscope/pyscope/internal/shell"
	"github.com/pyscope/pyscope/interpreter"
	"github.com/pyscope/pyscope/util/conf"
	"github.com/pyscope/pyscope/util/logging"
)

func New(ctx *cli.Context) (*shell.Shell, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, err
	}

	config, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return nil, err
	}

	sharedModule := fx.Module(
		"shared",
		// provide global config
		fx.Supply(config),
		// provide interpreter resolver
		fx.Provide(newResolver),
	)

	return shell.New(log, sharedModule), nil
}

func newResolver(log *zap.Logger) *interpreter.Resolver {
	return interpreter.NewResolver(interpreter.WithLogger(log))
}
