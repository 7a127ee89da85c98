// Package serve keeps the supervision engine resident behind a
// JSON-RPC control surface: runs are launched, inspected, cancelled
// and released by id, and websocket subscribers receive samples,
// output lines and the terminal report as they happen.
package serve

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pyscope/pyscope/manager"
	"github.com/pyscope/pyscope/supervisor"
)

var (
	// ErrMissingScript is returned by Launch when no script is given.
	ErrMissingScript = errors.New("missing script")

	// ErrUnknownRun marks a run id that is not in the registry.
	ErrUnknownRun = errors.New("unknown run")

	// ErrRunInFlight is returned by Release for a run that has not
	// reached a terminal state yet.
	ErrRunInFlight = errors.New("run still in flight")

	// ErrServiceClosed is returned by Launch once shutdown has begun.
	ErrServiceClosed = errors.New("run service closed")
)

const (
	// streamBufferSize buffers samples and output lines between the
	// supervisor and the event pump.
	streamBufferSize = 256

	// subscriberBufferSize buffers events per subscriber. A subscriber
	// that falls this far behind loses events rather than stalling
	// the run.
	subscriberBufferSize = 256
)

type ServiceParams struct {
	fx.In

	Context context.Context

	Manager *manager.Manager
	Logger  *zap.Logger
}

// RunService is the registry of supervised runs behind the control
// surface. Its exported methods form the "run" RPC namespace.
type RunService struct {
	ctx context.Context
	mgr *manager.Manager
	log *zap.Logger

	mu     sync.Mutex
	runs   map[rpc.ID]*run
	closed bool
}

func NewService(params ServiceParams) *RunService {
	return &RunService{
		ctx:  params.Context,
		mgr:  params.Manager,
		log:  params.Logger,
		runs: make(map[rpc.ID]*run),
	}
}

func NewLifecycleService(params ServiceParams, lc fx.Lifecycle) *RunService {
	service := NewService(params)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return service.close(ctx)
		},
	})
	return service
}

// Launch registers a new supervised run and starts it. It blocks
// while the manager is at capacity; the run itself is bound to the
// service lifetime, not to the request.
func (s *RunService) Launch(params LaunchParams) (RunInfo, error) {
	if params.Script == "" {
		return RunInfo{}, ErrMissingScript
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return RunInfo{}, ErrServiceClosed
	}
	s.mu.Unlock()

	spec := supervisor.LaunchSpec{
		Python:     params.Python,
		Script:     params.Script,
		Workdir:    params.Workdir,
		ExtraPaths: params.ExtraPaths,
		Args:       params.Args,
	}

	samples := make(chan supervisor.Sample, streamBufferSize)
	output := make(chan supervisor.OutputEvent, streamBufferSize)

	events := supervisor.Events{
		Samples: samples,
		Output:  output,
	}

	handle, err := s.mgr.Launch(s.ctx, spec, events)
	if err != nil {
		s.log.Error("error launching run", zap.Error(err))
		return RunInfo{}, err
	}

	r := &run{
		id:         rpc.NewID(),
		script:     params.Script,
		handle:     handle,
		launchedAt: time.Now(),
		subs:       make(map[chan Event]struct{}),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		// shutdown began while the launch was queued
		s.mu.Unlock()
		s.abort(handle, samples, output)
		return RunInfo{}, ErrServiceClosed
	}
	s.runs[r.id] = r
	s.mu.Unlock()

	go s.pump(r, samples, output)

	s.log.Info("run launched",
		zap.String("id", string(r.id)),
		zap.String("script", r.script),
	)

	return runInfo(r), nil
}

// Cancel requests termination of the run's process tree. Idempotent;
// the run still finalizes and delivers its report.
func (s *RunService) Cancel(id rpc.ID) (RunInfo, error) {
	r, err := s.get(id)
	if err != nil {
		return RunInfo{}, err
	}

	r.handle.Cancel()

	return runInfo(r), nil
}

// Status returns the current view of a run.
func (s *RunService) Status(id rpc.ID) (RunInfo, error) {
	r, err := s.get(id)
	if err != nil {
		return RunInfo{}, err
	}

	return runInfo(r), nil
}

// List returns every registered run, oldest first.
func (s *RunService) List() []RunInfo {
	s.mu.Lock()
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.Unlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].launchedAt.Before(runs[j].launchedAt)
	})

	infos := make([]RunInfo, len(runs))
	for i, r := range runs {
		infos[i] = runInfo(r)
	}

	return infos
}

// Wait blocks until the run is terminal and returns its report. A
// cancelled ctx only abandons the wait, never the run, so a client
// may time out and ask again.
func (s *RunService) Wait(ctx context.Context, id rpc.ID) (*RunReport, error) {
	r, err := s.get(id)
	if err != nil {
		return nil, err
	}

	select {
	case <-r.done:
		return r.terminalReport(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release drops a terminal run from the registry. In-flight runs
// cannot be released; cancel them first.
func (s *RunService) Release(id rpc.ID) error {
	r, err := s.get(id)
	if err != nil {
		return err
	}

	select {
	case <-r.done:
	default:
		return ErrRunInFlight
	}

	s.mu.Lock()
	delete(s.runs, id)
	s.mu.Unlock()

	return nil
}

// Events creates a subscription streaming the run's samples, output
// lines and, last, its terminal report. Requires a transport with
// notification support. A subscriber arriving after the run is done
// still receives the terminal event.
func (s *RunService) Events(ctx context.Context, id rpc.ID) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	r, err := s.get(id)
	if err != nil {
		return nil, err
	}

	sub := notifier.CreateSubscription()
	events := r.subscribe()

	go func() {
		defer r.unsubscribe(events)

		for {
			select {
			case event, ok := <-events:
				if !ok {
					// terminal: the report is recorded before the
					// subscriber channels close
					notifier.Notify(sub.ID, doneEvent(r.terminalReport()))
					return
				}
				notifier.Notify(sub.ID, event)
			case <-sub.Err():
				return
			}
		}
	}()

	return sub, nil
}

// pump consumes the supervisor's channels for the lifetime of the
// run and fans the events out to subscribers. Once the run is done
// it drains what is still buffered, records the report and releases
// the subscribers.
func (s *RunService) pump(r *run, samples <-chan supervisor.Sample, output <-chan supervisor.OutputEvent) {
	for {
		select {
		case smp := <-samples:
			r.broadcast(sampleEvent(smp))

		case event := <-output:
			if !event.Closed {
				r.broadcast(outputEvent(event))
			}

		case <-r.handle.Done():
			// the supervisor emits nothing after Done; what is
			// buffered is all that is left
			for {
				select {
				case smp := <-samples:
					r.broadcast(sampleEvent(smp))
				case event := <-output:
					if !event.Closed {
						r.broadcast(outputEvent(event))
					}
				default:
					s.finishRun(r)
					return
				}
			}
		}
	}
}

func (s *RunService) finishRun(r *run) {
	result, _ := r.handle.Result()
	report := runReport(result)

	r.finish(report)
	close(r.done)

	s.log.Info("run finished",
		zap.String("id", string(r.id)),
		zap.Int("exit_code", report.ExitCode),
		zap.Int("leaks", len(report.Leaks)),
	)
}

// close refuses further launches, cancels every in-flight run and
// waits for their reports.
func (s *RunService) close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.Unlock()

	for _, r := range runs {
		r.handle.Cancel()
	}

	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// abort tears down a run that lost the race with shutdown: it was
// acquired but never registered, so no pump drains it.
func (s *RunService) abort(handle *manager.Handle, samples <-chan supervisor.Sample, output <-chan supervisor.OutputEvent) {
	handle.Cancel()

	for {
		select {
		case <-samples:
		case <-output:
		case <-handle.Done():
			return
		}
	}
}

func (s *RunService) get(id rpc.ID) (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, ErrUnknownRun
	}

	return r, nil
}

func runInfo(r *run) RunInfo {
	return RunInfo{
		ID:     r.id,
		PID:    r.handle.PID(),
		State:  r.handle.State().String(),
		Script: r.script,
	}
}

// MARK: - Run

// run is one registry entry. The subscriber set is released exactly
// once, by finish, after which report is immutable.
type run struct {
	id         rpc.ID
	script     string
	handle     *manager.Handle
	launchedAt time.Time

	mu     sync.Mutex
	subs   map[chan Event]struct{}
	report *RunReport

	// done is closed after the report has been recorded and the
	// subscriber channels have been released.
	done chan struct{}
}

// subscribe registers a fresh event channel. For a run that is
// already terminal the channel comes back closed, which routes the
// subscriber straight to the terminal event.
func (r *run) subscribe() chan Event {
	events := make(chan Event, subscriberBufferSize)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.report != nil {
		close(events)
		return events
	}

	r.subs[events] = struct{}{}

	return events
}

func (r *run) unsubscribe(events chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, events)
}

// broadcast delivers to every subscriber without blocking: a full
// subscriber buffer drops the event.
func (r *run) broadcast(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for events := range r.subs {
		select {
		case events <- event:
		default:
		}
	}
}

// finish records the terminal report and releases the subscribers by
// closing their channels.
func (r *run) finish(report *RunReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report = report

	for events := range r.subs {
		close(events)
	}
	r.subs = make(map[chan Event]struct{})
}

func (r *run) terminalReport() *RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.report
}
