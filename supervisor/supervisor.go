// Package supervisor implements the supervision engine: it launches a
// target program under a resolved Python interpreter, drains its
// stdout and stderr concurrently, samples resource usage across the
// whole process tree at a fixed cadence and, after the child has
// exited, reconciles which tracked PIDs are still alive.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/pyscope/pyscope/pyenv"
)

const (
	// DefaultSampleInterval is the default tree sampling cadence.
	DefaultSampleInterval = 100 * time.Millisecond

	// DefaultGracePeriod is the default pause between child exit and
	// the leak reconciliation pass. It gives the OS a moment to tear
	// down descendants. A heuristic, not an invariant; tune via
	// Params.GracePeriod.
	DefaultGracePeriod = 400 * time.Millisecond

	// drainJoinTimeout bounds how long finalization waits for the
	// stream drains after the child has been reaped. A descendant that
	// inherited the stdio pipes can hold them open past the child's
	// exit; when the deadline fires the read ends are closed to force
	// the drains to finish.
	drainJoinTimeout = 2 * time.Second
)

// Params configures a Supervisor for a single run.
type Params struct {
	// Interpreter is the absolute path of the resolved interpreter,
	// used when the spec does not name one itself. The caller obtains
	// it from an interpreter.Resolver.
	Interpreter string

	// Spec describes the target program.
	Spec LaunchSpec

	// Events receives samples and output lines during the run.
	Events Events

	// SampleInterval is the tree sampling cadence.
	// Defaults to DefaultSampleInterval.
	SampleInterval time.Duration

	// GracePeriod is the pause before leak reconciliation.
	// Defaults to DefaultGracePeriod.
	GracePeriod time.Duration

	// Log is the logger to use for the supervisor.
	Log *zap.Logger
}

// Supervisor owns one supervised run. It is single-use: construct
// with New, drive with Run, optionally interrupt with Cancel.
type Supervisor struct {
	interp   string
	spec     LaunchSpec
	events   Events
	interval time.Duration
	grace    time.Duration
	log      *zap.Logger

	state      atomic.Int32
	stop       atomic.Bool
	cancelOnce sync.Once

	pid       atomic.Int32
	startedAt time.Time

	// termination is closed by the reaper goroutine once the child has
	// been waited on; exitCode is stored before the close.
	termination chan struct{}
	exitCode    atomic.Int32

	// tracked is every PID ever observed as part of the run's tree.
	// Written by Run before the sampler starts, then exclusively by
	// the sampler goroutine; read only after samplerDone is closed.
	tracked map[int32]struct{}

	// procs keeps one gopsutil handle per descendant so that CPU
	// percentages are measured against the previous tick instead of
	// being primed from scratch every time. Sampler-owned.
	procs map[int32]*process.Process

	samplerDone chan struct{}
}

// New creates a supervisor for a single run of the given spec.
func New(params Params) *Supervisor {
	log := params.Log
	if log == nil {
		log = zap.NewNop()
	}

	interval := params.SampleInterval
	if interval <= 0 {
		interval = DefaultSampleInterval
	}

	grace := params.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	return &Supervisor{
		interp:      params.Interpreter,
		spec:        params.Spec,
		events:      params.Events,
		interval:    interval,
		grace:       grace,
		log:         log,
		termination: make(chan struct{}),
		tracked:     make(map[int32]struct{}),
		procs:       make(map[int32]*process.Process),
		samplerDone: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// PID returns the child PID, or 0 before launch.
func (s *Supervisor) PID() int {
	return int(s.pid.Load())
}

// Run launches the child and blocks until the run reaches a terminal
// state, returning the single RunResult. Cancelling ctx is equivalent
// to calling Cancel.
//
// A launch failure is reported through RunResult.LaunchErr, not the
// error return; the error return is reserved for misuse (calling Run
// twice).
func (s *Supervisor) Run(ctx context.Context) (RunResult, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateLaunching)) {
		return RunResult{}, ErrAlreadyStarted
	}

	script, err := filepath.Abs(s.spec.Script)
	if err != nil {
		return s.launchFailed(err), nil
	}

	if _, err := os.Stat(script); err != nil {
		return s.launchFailed(fmt.Errorf("%w: %s", ErrScriptNotFound, script)), nil
	}

	workdir := s.spec.Workdir
	if workdir == "" {
		workdir = filepath.Dir(script)
	}
	workdir, err = filepath.Abs(workdir)
	if err != nil {
		return s.launchFailed(err), nil
	}

	interp := s.spec.Python
	if interp == "" {
		interp = s.interp
	}

	env := pyenv.Build(pyenv.Params{
		Script:     script,
		Workdir:    workdir,
		ExtraPaths: s.spec.ExtraPaths,
	})

	// -u keeps the child's stdio unbuffered so lines arrive promptly
	args := append([]string{"-u", script}, s.spec.Args...)

	cmd := exec.Command(interp, args...)
	cmd.Dir = workdir
	cmd.Env = env.Vars
	configureSysProcAttr(cmd)

	// The stdio pipes are created by hand rather than with
	// cmd.StdoutPipe: Wait closes pipes it handed out as soon as the
	// child exits, discarding buffered output the drains have not
	// consumed yet. Pipes owned here stay readable until end-of-stream.
	pipes, err := newStdioPipes(cmd)
	if err != nil {
		return s.launchFailed(err), nil
	}

	s.log.Info("launching",
		zap.String("interpreter", interp),
		zap.String("workdir", workdir),
		zap.String("cmdline", interp+" "+strings.Join(args, " ")),
		zap.String("pythonpath", env.ModulePath),
	)

	if err := cmd.Start(); err != nil {
		pipes.closeAll()
		return s.launchFailed(err), nil
	}

	s.pid.Store(int32(cmd.Process.Pid))
	s.startedAt = time.Now()

	// the child inherited the write ends; end-of-stream on the read
	// ends now tracks the child side only
	pipes.closeWriters()
	defer pipes.closeReaders()

	// the child enters the tracked set before the first sample
	s.tracked[s.pid.Load()] = struct{}{}

	// Take the measurement handle before the reaper goroutine exists:
	// until cmd.Wait reaps it, even an already-exited child is still a
	// zombie and the handle stays obtainable.
	root, err := process.NewProcess(s.pid.Load())
	if err != nil {
		_ = cmd.Process.Kill()
		waitErr := cmd.Wait()

		s.state.Store(int32(StateLaunchFailed))
		s.log.Error("process handle unobtainable",
			zap.Int("pid", s.PID()),
			zap.Error(err),
		)

		return RunResult{
			ExitCode:  exitCodeFromWait(waitErr),
			LaunchErr: ErrExitedImmediately,
		}, nil
	}

	go func() {
		err := cmd.Wait()
		s.exitCode.Store(int32(exitCodeFromWait(err)))
		close(s.termination)
	}()

	s.state.Store(int32(StateRunning))
	s.log.Info("running", zap.Int("pid", s.PID()))

	// a cancel that raced the launch set the stop flag before there
	// was a tree to kill
	if s.stop.Load() {
		s.killTree()
	}

	output := make(chan streamItem, 64)
	go drainStream(pipes.outR, StreamStdout, output)
	go drainStream(pipes.errR, StreamStderr, output)

	go s.sampleTree(root)

	outText, errText := s.consumeOutput(ctx, output, pipes)

	select {
	case <-s.termination:
	case <-ctx.Done():
		// streams closed early but the child is still running
		s.Cancel()
		<-s.termination
	}
	<-s.samplerDone

	leaks := s.reconcile()

	if s.stop.Load() {
		s.state.Store(int32(StateCancelled))
	} else {
		s.state.Store(int32(StateCompleted))
	}

	result := RunResult{
		ExitCode: int(s.exitCode.Load()),
		Leaks:    leaks,
		Stdout:   outText,
		Stderr:   errText,
	}

	s.log.Info("run finished",
		zap.Int("exit_code", result.ExitCode),
		zap.Int("leaks", len(result.Leaks)),
		zap.Stringer("state", s.State()),
	)

	return result, nil
}

// consumeOutput is the supervisor's wait loop. It consumes the merged
// drain channel until both streams have closed, forwarding every line
// to the caller, while watching for external cancellation. Once the
// child has been reaped the remaining drain time is bounded: at the
// deadline the pipe read ends are closed, which forces both drains to
// their closing sentinel.
func (s *Supervisor) consumeOutput(ctx context.Context, output <-chan streamItem, pipes *stdioPipes) (string, string) {
	var outBuf, errBuf strings.Builder

	outDone, errDone := false, false
	ctxDone := ctx.Done()
	termination := s.termination

	var joinDeadline <-chan time.Time

	for !(outDone && errDone) {
		select {
		case item := <-output:
			if item.closed {
				if item.tag == StreamStdout {
					outDone = true
				} else {
					errDone = true
				}
				s.emitOutput(OutputEvent{Stream: item.tag, Closed: true})
				continue
			}

			if item.tag == StreamStdout {
				outBuf.WriteString(item.line)
				outBuf.WriteByte('\n')
			} else {
				errBuf.WriteString(item.line)
				errBuf.WriteByte('\n')
			}
			s.emitOutput(OutputEvent{Stream: item.tag, Line: item.line})

		case <-ctxDone:
			ctxDone = nil
			s.Cancel()

		case <-termination:
			termination = nil
			joinDeadline = time.After(drainJoinTimeout)

		case <-joinDeadline:
			joinDeadline = nil
			s.log.Warn("stream still open after child exit, forcing close")
			pipes.closeReaders()
		}
	}

	return outBuf.String(), errBuf.String()
}

func (s *Supervisor) emitOutput(event OutputEvent) {
	if s.events.Output == nil {
		return
	}
	s.events.Output <- event
}

func (s *Supervisor) launchFailed(err error) RunResult {
	s.state.Store(int32(StateLaunchFailed))

	s.log.Error("launch failed", zap.Error(err))

	return RunResult{
		ExitCode:  ExitCodeLaunchFailure,
		LaunchErr: err,
	}
}

// Cancel requests termination of the run. It is idempotent and
// best-effort: every currently-enumerable descendant is killed first,
// then the child itself. The run still finalizes normally, with
// reconciliation, through Run.
func (s *Supervisor) Cancel() {
	s.cancelOnce.Do(func() {
		s.stop.Store(true)

		if s.State() != StateRunning {
			return
		}

		s.log.Info("terminating process tree", zap.Int("pid", s.PID()))
		s.killTree()
	})
}

// killTree kills descendants before the child to minimize orphaning.
func (s *Supervisor) killTree() {
	root, err := process.NewProcess(s.pid.Load())
	if err != nil {
		// already gone
		return
	}

	children, err := root.Children()
	if err == nil {
		for _, child := range children {
			if err := child.Kill(); err != nil {
				s.log.Debug("kill descendant failed",
					zap.Int32("pid", child.Pid),
					zap.Error(err),
				)
			}
		}
	}

	if err := root.Kill(); err != nil {
		s.log.Debug("kill child failed", zap.Error(err))
	}
}

func exitCodeFromWait(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// -1 if the process was killed by a signal
		return exitErr.ExitCode()
	}

	return ExitCodeLaunchFailure
}
