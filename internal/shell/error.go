package shell

import "fmt"

// ExitError carries the process exit code out of the fx application,
// through the cli error return, to os.Exit.
type ExitError struct {
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("shell exited with %d", e.ExitCode)
}

func NewExitError(exitCode int) *ExitError {
	return &ExitError{ExitCode: exitCode}
}
