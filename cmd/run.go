package cmd

import (
	"fmt"

	"github.com/google/shlex"
	"github.com/urfave/cli/v2"

	"github.com/pyscope/pyscope/app"
	"github.com/pyscope/pyscope/app/standalone"
	"github.com/pyscope/pyscope/config"
	"github.com/pyscope/pyscope/util/conf"
)

var (
	runCmdDescription = `The run command launches the given Python script under
supervision: the interpreter is resolved, the environment
is curated, stdout and stderr are streamed line by line,
and resource usage of the whole process tree is sampled
at a fixed cadence.

After the target exits, processes it spawned but did not
terminate are reported as leaks, and the command exits
with the target's exit code.`
	runCmd = &cli.Command{
		Name:        "run",
		Usage:       "Launch Python programs under supervision.",
		ArgsUsage:   "<script>...",
		Description: runCmdDescription,
		Action:      runAction,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:     "workdir",
				Aliases:  []string{"w"},
				Usage:    "working directory for the target. Defaults to the script's directory.",
				Category: "target",
				EnvVars:  []string{"PYSCOPE_RUN_WORKDIR"},
			},
			&cli.PathFlag{
				Name:     "python",
				Aliases:  []string{"p"},
				Usage:    "explicit interpreter path, skipping resolution.",
				Category: "target",
				EnvVars:  []string{"PYSCOPE_RUN_PYTHON"},
			},
			&cli.StringSliceFlag{
				Name:     "extra-path",
				Usage:    "additional directories to put on the target's module path.",
				Category: "target",
				EnvVars:  []string{"PYSCOPE_RUN_EXTRA_PATH"},
			},
			&cli.StringFlag{
				Name:     "args",
				Aliases:  []string{"a"},
				Usage:    "arguments to pass to the target, as a single shell-quoted string.",
				Category: "target",
				EnvVars:  []string{"PYSCOPE_RUN_ARGS"},
			},
			&cli.DurationFlag{
				Name:     "sample-interval",
				Usage:    "resource sampling cadence.",
				Category: "sampling",
				EnvVars:  []string{"PYSCOPE_RUN_SAMPLE_INTERVAL"},
			},
			&cli.DurationFlag{
				Name:     "grace-period",
				Usage:    "pause between target exit and the leak check.",
				Category: "sampling",
				EnvVars:  []string{"PYSCOPE_RUN_GRACE_PERIOD"},
			},
			&cli.PathFlag{
				Name:     "csv",
				Usage:    "write the collected samples to the given csv file.",
				Category: "sampling",
				EnvVars:  []string{"PYSCOPE_RUN_CSV"},
			},
			&cli.IntFlag{
				Name:     "max-procs",
				Aliases:  []string{"n"},
				Usage:    "maximum number of concurrently supervised runs.",
				Category: "sampling",
				EnvVars:  []string{"PYSCOPE_RUN_MAX_PROCS"},
			},
		},
	}
)

func runAction(ctx *cli.Context) error {
	application, err := app.New(ctx)
	if err != nil {
		return err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	scripts := ctx.Args().Slice()
	if len(scripts) == 0 {
		return cli.Exit("missing <script> argument", 2)
	}

	args, err := shlex.Split(ctx.String("args"))
	if err != nil {
		return fmt.Errorf("invalid --args: %w", err)
	}

	runConfig := standalone.Config{
		Scripts:        scripts,
		Workdir:        ctx.Path("workdir"),
		Python:         pick(ctx.Path("python"), cfg.Run.Python),
		ExtraPaths:     ctx.StringSlice("extra-path"),
		Args:           args,
		SampleInterval: cfg.Run.SampleInterval,
		GracePeriod:    cfg.Run.GracePeriod,
		MaxProcs:       cfg.Run.MaxProcs,
		CSVPath:        ctx.Path("csv"),
	}

	if ctx.IsSet("sample-interval") {
		runConfig.SampleInterval = ctx.Duration("sample-interval")
	}
	if ctx.IsSet("grace-period") {
		runConfig.GracePeriod = ctx.Duration("grace-period")
	}
	if ctx.IsSet("max-procs") {
		runConfig.MaxProcs = ctx.Int("max-procs")
	}

	return application.Run(ctx.Context, standalone.Module(runConfig))
}

func pick(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func init() {
	rootApp.Commands = append(rootApp.Commands, runCmd)
}
