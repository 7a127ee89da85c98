package supervisor

import "errors"

var (
	// ErrAlreadyStarted is returned by Run when the supervisor has
	// already been used. A supervisor drives exactly one run.
	ErrAlreadyStarted = errors.New("supervisor: run already started")

	// ErrScriptNotFound is carried by RunResult.LaunchErr when the
	// target script does not exist.
	ErrScriptNotFound = errors.New("target script not found")

	// ErrExitedImmediately is carried by RunResult.LaunchErr when the
	// child exited before it could be observed.
	ErrExitedImmediately = errors.New("process exited immediately after launch")
)

// ExitCodeLaunchFailure is the sentinel exit code of a run whose
// process never started.
const ExitCodeLaunchFailure = -1
