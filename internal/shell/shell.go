// Package shell wraps the fx application lifecycle: it builds the fx
// app from shared and per-command options, starts it, waits for a
// shutdown signal and converts the outcome into an ExitError.
package shell

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type Shell struct {
	log    *zap.Logger
	shared []fx.Option
}

// New creates a shell around the options every command shares.
func New(log *zap.Logger, shared ...fx.Option) *Shell {
	return &Shell{
		log:    log,
		shared: shared,
	}
}

// Run assembles the fx app from the shared and the given per-command
// options, starts it and blocks until a component requests shutdown or
// the OS delivers a termination signal. The outcome is always an
// ExitError carrying the exit code.
func (s *Shell) Run(ctx context.Context, options ...fx.Option) error {
	// after run ends, flush the logger
	defer s.log.Sync()

	appCtx, cancelApp := context.WithCancel(ctx)
	defer cancelApp()

	app := s.build(appCtx, options...)

	startCtx, cancelStart := context.WithTimeout(ctx, app.StartTimeout())
	defer cancelStart()

	if err := app.Start(startCtx); err != nil {
		s.log.Error("error starting application", zap.Error(err))
		return NewExitError(1)
	}

	// block until a shutdown is requested, either by the OS or by a
	// component calling fx.Shutdowner
	sig := <-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(ctx, app.StopTimeout())
	defer cancelStop()

	if err := app.Stop(stopCtx); err != nil {
		s.log.Error("error stopping application", zap.Error(err))
		return NewExitError(1)
	}

	return NewExitError(sig.ExitCode)
}

func (s *Shell) build(ctx context.Context, options ...fx.Option) *fx.App {
	return fx.New(
		// inject the execution context components block on
		fx.Supply(fx.Annotate(ctx, fx.As(new(context.Context)))),

		// inject the logger
		fx.Supply(s.log),

		// use the logger also for fx' own events
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: s.log.Named("fx")}
		}),

		fx.Options(s.shared...),
		fx.Options(options...),
	)
}
