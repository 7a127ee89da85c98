package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pyscope/pyscope/app"
	"github.com/pyscope/pyscope/app/serve"
)

var (
	serveCmdDescription = `The serve command starts the control server and keeps the
supervision engine resident. Runs are launched, inspected,
cancelled and released over JSON-RPC on /rpc, and websocket
subscribers receive samples, output lines and the terminal
report as they happen.

The command blocks indefinitely, processing incoming
requests, until a shutdown is requested.`
	serveCmd = &cli.Command{
		Name:        "serve",
		Usage:       "Start the control server and listen for requests.",
		Description: serveCmdDescription,
		Action:      serveAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "host",
				Aliases:  []string{"H"},
				Usage:    "The host to listen on.",
				Value:    "localhost",
				Category: "http",
				EnvVars:  []string{"PYSCOPE_SERVE_HOST"},
			},
			&cli.IntFlag{
				Name:     "port",
				Aliases:  []string{"P"},
				Usage:    "The port to listen on.",
				Value:    8080,
				Category: "http",
				EnvVars:  []string{"PYSCOPE_SERVE_PORT"},
			},
			&cli.BoolFlag{
				Name:     "h2c",
				Usage:    "Enable HTTP/2 cleartext upgrade.",
				Value:    false,
				Category: "http",
				EnvVars:  []string{"PYSCOPE_SERVE_H2C"},
			},
		},
	}
)

func serveAction(ctx *cli.Context) error {
	application, err := app.New(ctx)
	if err != nil {
		return err
	}

	serveConfig := serve.Config{
		Host: ctx.String("host"),
		Port: ctx.Int("port"),
		H2c:  ctx.Bool("h2c"),
	}

	return application.Run(ctx.Context, serve.Module(serveConfig))
}

func init() {
	rootApp.Commands = append(rootApp.Commands, serveCmd)
}
