package supervisor

// LaunchSpec describes one supervised run. It is immutable once the
// run has started.
type LaunchSpec struct {
	// Python is the interpreter to launch the script with. Empty means
	// the supervisor's default interpreter, normally the one obtained
	// from an interpreter.Resolver.
	Python string

	// Script is the path to the Python entry-point to execute.
	Script string

	// Workdir is the working directory for the child process.
	// Defaults to the script's parent directory if empty.
	Workdir string

	// ExtraPaths are additional module search paths, in order.
	ExtraPaths []string

	// Args are extra arguments appended to the command line.
	Args []string
}

// StreamTag identifies which standard stream a line came from.
type StreamTag string

const (
	StreamStdout StreamTag = "out"
	StreamStderr StreamTag = "err"
)

// OutputEvent is one line read from the child, newline stripped.
// When Closed is set the stream has ended and Line is empty.
//
// Events are ordered per stream. No ordering is guaranteed between
// the stdout and stderr streams.
type OutputEvent struct {
	Stream StreamTag
	Line   string
	Closed bool
}

// Sample is one aggregate resource measurement across the child and
// all of its live descendants at a single tick.
type Sample struct {
	// Elapsed is the time since launch, in seconds, monotonic.
	Elapsed float64

	// RSS is the summed resident set size, in bytes.
	RSS uint64

	// CPUPercent is the summed CPU utilization since the last tick.
	CPUPercent float64

	// Threads is the summed thread count.
	Threads int32

	// Children is the number of live descendants at this tick.
	Children int
}

// RunResult is the terminal record of a run, produced exactly once.
//
// A result is either a launch failure (LaunchErr set, ExitCode -1,
// no leaks, no output) or a completed run with the child's exit code,
// the leak descriptors from reconciliation and the accumulated
// output of both streams.
type RunResult struct {
	ExitCode  int
	LaunchErr error
	Leaks     []string
	Stdout    string
	Stderr    string
}

// LaunchFailed reports whether the process never started.
func (r RunResult) LaunchFailed() bool {
	return r.LaunchErr != nil
}

// Events carries the caller-provided delivery channels for the push
// interfaces of a run. Either channel may be nil if the caller is not
// interested in that stream. The caller must keep draining non-nil
// channels for the duration of the run.
type Events struct {
	// Samples receives one Sample per sampling tick.
	Samples chan<- Sample

	// Output receives one OutputEvent per line per stream, plus one
	// closing sentinel per stream.
	Output chan<- OutputEvent
}

// State is the lifecycle state of a Supervisor.
type State int32

const (
	StateIdle State = iota
	StateLaunching
	StateRunning
	StateCompleted
	StateCancelled
	StateLaunchFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateLaunchFailed:
		return "launch_failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is one of the end states.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateLaunchFailed
}
