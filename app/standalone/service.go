// Package standalone drives supervised runs from the command line: it
// resolves the interpreter, launches the targets through the manager,
// mirrors their output, collects samples and shuts the application
// down with the target's exit code.
package standalone

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pyscope/pyscope/interpreter"
	"github.com/pyscope/pyscope/manager"
	"github.com/pyscope/pyscope/supervisor"
)

type ServiceParams struct {
	fx.In

	Context context.Context

	Config Config

	Resolver   *interpreter.Resolver
	Logger     *zap.Logger
	Shutdowner fx.Shutdowner
}

type Service struct {
	ctx        context.Context
	config     Config
	resolver   *interpreter.Resolver
	log        *zap.Logger
	shutdowner fx.Shutdowner
}

func NewService(params ServiceParams) *Service {
	return &Service{
		ctx:        params.Context,
		config:     params.Config,
		resolver:   params.Resolver,
		log:        params.Logger,
		shutdowner: params.Shutdowner,
	}
}

func NewLifecycleService(params ServiceParams, lc fx.Lifecycle) *Service {
	service := NewService(params)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go service.Run()
			return nil
		},
	})
	return service
}

// Run drives every configured target to completion and requests
// shutdown with the resulting exit code. For a single target that is
// the target's own exit code; for a batch it is the first non-zero
// code among the runs.
func (s *Service) Run() {
	code, err := s.run()
	if err != nil {
		s.log.Error("run failed", zap.Error(err))
		code = 1
	}

	if err := s.shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
		s.log.Error("error shutting down", zap.Error(err))
	}
}

func (s *Service) run() (int, error) {
	interp := s.config.Python
	if interp == "" {
		path, err := s.resolver.Resolve()
		if err != nil {
			return 0, err
		}
		interp = path
	}

	mgr, err := manager.New(manager.Params{
		MaxCapacity:    s.config.MaxProcs,
		Interpreter:    interp,
		SampleInterval: s.config.SampleInterval,
		GracePeriod:    s.config.GracePeriod,
		Log:            s.log,
	})
	if err != nil {
		return 0, err
	}
	defer mgr.Shutdown()

	type outcome struct {
		result supervisor.RunResult
		err    error
	}

	outcomes := make([]outcome, len(s.config.Scripts))

	var wg sync.WaitGroup
	for i, script := range s.config.Scripts {
		wg.Add(1)
		go func(i int, script string) {
			defer wg.Done()
			result, err := s.runOne(mgr, script, csvPath(s.config.CSVPath, i, len(s.config.Scripts)))
			outcomes[i] = outcome{result: result, err: err}
		}(i, script)
	}
	wg.Wait()

	exitCode := 0
	for i, oc := range outcomes {
		if oc.err != nil {
			return 0, oc.err
		}
		if oc.result.LaunchFailed() {
			return 0, fmt.Errorf("%s: %w", s.config.Scripts[i], oc.result.LaunchErr)
		}
		if exitCode == 0 && oc.result.ExitCode != 0 {
			exitCode = oc.result.ExitCode
		}
	}

	// a signal death has no exit code of its own
	if exitCode < 0 {
		exitCode = 1
	}

	return exitCode, nil
}

// runOne drives a single target through the manager, mirroring its
// output to the terminal and collecting its samples.
func (s *Service) runOne(mgr *manager.Manager, script, reportPath string) (supervisor.RunResult, error) {
	samples := make(chan supervisor.Sample, 256)
	output := make(chan supervisor.OutputEvent, 256)

	var collected []supervisor.Sample

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for smp := range samples {
			collected = append(collected, smp)
		}
	}()
	go func() {
		defer wg.Done()
		for event := range output {
			if event.Closed {
				continue
			}
			if event.Stream == supervisor.StreamStderr {
				fmt.Fprintln(os.Stderr, event.Line)
			} else {
				fmt.Fprintln(os.Stdout, event.Line)
			}
		}
	}()

	spec := supervisor.LaunchSpec{
		Script:     script,
		Workdir:    s.config.Workdir,
		ExtraPaths: s.config.ExtraPaths,
		Args:       s.config.Args,
	}

	events := supervisor.Events{
		Samples: samples,
		Output:  output,
	}

	result, err := mgr.Run(s.ctx, spec, events)

	// the supervisor has finished emitting by the time Run returns
	close(samples)
	close(output)
	wg.Wait()

	if err != nil {
		return supervisor.RunResult{}, err
	}

	if result.LaunchFailed() {
		return result, nil
	}

	if reportPath != "" {
		if err := WriteSampleCSV(reportPath, collected); err != nil {
			s.log.Error("error writing csv report",
				zap.Error(err),
				zap.String("path", reportPath),
			)
		}
	}

	s.log.Info("run summary",
		zap.String("script", script),
		zap.Int("exit_code", result.ExitCode),
		zap.Int("samples", len(collected)),
		zap.Uint64("peak_rss", peakRSS(collected)),
		zap.Strings("leaks", result.Leaks),
	)

	return result, nil
}

// csvPath derives a per-run report path. A batch gets an index suffix
// so runs do not overwrite each other's reports.
func csvPath(base string, index, total int) string {
	if base == "" || total == 1 {
		return base
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	return stem + "-" + strconv.Itoa(index+1) + ext
}

func peakRSS(samples []supervisor.Sample) uint64 {
	var peak uint64
	for _, smp := range samples {
		if smp.RSS > peak {
			peak = smp.RSS
		}
	}
	return peak
}
