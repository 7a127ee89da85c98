// Package manager bounds how many supervised runs are in flight at
// once. Runs beyond the capacity wait for a slot instead of spawning
// an unbounded number of children.
package manager

import (
	"context"
	"time"

	"github.com/jackc/puddle/v2"
	"go.uber.org/zap"

	"github.com/pyscope/pyscope/supervisor"
)

type Manager struct {
	pool *puddle.Pool[*Runner]
	log  *zap.Logger
}

type Params struct {
	// MaxCapacity is the maximum number of concurrent runs.
	// Defaults to 1.
	MaxCapacity int

	// Interpreter is the default interpreter path for runs launched
	// through this manager. A spec naming its own interpreter wins.
	Interpreter string

	// SampleInterval is forwarded to every supervisor.
	SampleInterval time.Duration

	// GracePeriod is forwarded to every supervisor.
	GracePeriod time.Duration

	// Log is the logger to use for the manager.
	Log *zap.Logger
}

func New(params Params) (*Manager, error) {
	log := params.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("manager")

	capacity := params.MaxCapacity
	if capacity <= 0 {
		capacity = 1
	}

	pool, err := createPool(params, capacity, log)
	if err != nil {
		return nil, err
	}

	return &Manager{
		pool: pool,
		log:  log,
	}, nil
}

// Run acquires a runner slot, drives one supervised run to completion
// and releases the slot. It blocks while the pool is at capacity.
func (m *Manager) Run(
	ctx context.Context,
	spec supervisor.LaunchSpec,
	events supervisor.Events,
) (supervisor.RunResult, error) {
	handle, err := m.Launch(ctx, spec, events)
	if err != nil {
		return supervisor.RunResult{}, err
	}

	return handle.Wait(ctx)
}

// Launch acquires a runner slot and starts the run without waiting for
// it. The slot is released when the run reaches a terminal state. The
// returned Handle is the caller's view of the in-flight run.
func (m *Manager) Launch(
	ctx context.Context,
	spec supervisor.LaunchSpec,
	events supervisor.Events,
) (*Handle, error) {
	res, err := m.pool.Acquire(ctx)
	if err != nil {
		m.log.Error("error acquiring runner", zap.Error(err))
		return nil, err
	}

	sup := res.Value().newSupervisor(spec, events)

	handle := &Handle{
		sup:  sup,
		done: make(chan struct{}),
	}

	go func() {
		defer res.Release()
		defer close(handle.done)
		handle.result, handle.err = sup.Run(ctx)
	}()

	return handle, nil
}

// Shutdown closes the pool and waits for all in-flight runs to
// release their slots.
func (m *Manager) Shutdown() {
	m.pool.Close()
}

// MARK: - Handle

// Handle is one in-flight supervised run: it exposes the child PID and
// lifecycle state, a cancellation trigger and the terminal result. The
// supervisor behind it is owned by the manager's run goroutine.
type Handle struct {
	sup *supervisor.Supervisor

	done   chan struct{}
	result supervisor.RunResult
	err    error
}

// PID returns the child PID, or 0 before launch.
func (h *Handle) PID() int {
	return h.sup.PID()
}

// State returns the current lifecycle state of the run.
func (h *Handle) State() supervisor.State {
	return h.sup.State()
}

// Cancel requests termination of the run's process tree. Idempotent.
func (h *Handle) Cancel() {
	h.sup.Cancel()
}

// Done is closed once the run has reached a terminal state and its
// result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the terminal result, or false while the run is still
// in flight.
func (h *Handle) Result() (supervisor.RunResult, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return supervisor.RunResult{}, false
	}
}

// Wait blocks until the run has finished and returns its result. A
// cancelled ctx cancels the run; the supervisor still finalizes, so
// Wait keeps blocking for the result rather than abandoning it.
func (h *Handle) Wait(ctx context.Context) (supervisor.RunResult, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		h.Cancel()
		<-h.done
	}

	return h.result, h.err
}

// MARK: - Pool

func createPool(
	params Params,
	capacity int,
	log *zap.Logger,
) (*puddle.Pool[*Runner], error) {
	constructor := func(ctx context.Context) (*Runner, error) {
		return &Runner{
			interpreter: params.Interpreter,
			interval:    params.SampleInterval,
			grace:       params.GracePeriod,
			log:         log.Named("runner"),
		}, nil
	}

	destructor := func(r *Runner) {}

	return puddle.NewPool(&puddle.Config[*Runner]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     int32(capacity),
	})
}

// MARK: - Runner

// Runner is one reusable run slot. It drives at most one run at a
// time; supervisors themselves are single-use.
type Runner struct {
	interpreter string
	interval    time.Duration
	grace       time.Duration
	log         *zap.Logger
}

func (r *Runner) newSupervisor(
	spec supervisor.LaunchSpec,
	events supervisor.Events,
) *supervisor.Supervisor {
	return supervisor.New(supervisor.Params{
		Interpreter:    r.interpreter,
		Spec:           spec,
		Events:         events,
		SampleInterval: r.interval,
		GracePeriod:    r.grace,
		Log:            r.log,
	})
}
