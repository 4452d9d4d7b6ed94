package execution

import (
	"errors"
	"fmt"
)

// ErrNoCliConfigured means no step of the CLI selection hierarchy produced a
// runnable command for the agent.
var ErrNoCliConfigured = errors.New("no CLI command configured")

// ErrTimeoutExceeded means the subprocess outlived its window and was
// terminated.
var ErrTimeoutExceeded = errors.New("agent timeout exceeded")

// SubprocessExitError reports a non-zero child exit.
type SubprocessExitError struct {
	Code   int
	Stderr string
}

func (e *SubprocessExitError) Error() string {
	return fmt.Sprintf("subprocess exited with code %d", e.Code)
}
