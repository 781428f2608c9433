package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNullByte is returned for values that cannot be placed in a command line.
var ErrNullByte = errors.New("value contains a null byte")

// ProcessLaunchError reports an executable that could not be started at all.
type ProcessLaunchError struct {
	Executable string
	Err        error
}

func (e *ProcessLaunchError) Error() string {
	return fmt.Sprintf("failed to execute %s command: %v", e.Executable, e.Err)
}

func (e *ProcessLaunchError) Unwrap() error { return e.Err }

// ProcessExecutionError reports a process that ran but failed: non-zero
// exit, stderr output without the tool's benign marker, or a deadline.
type ProcessExecutionError struct {
	Tool     string
	ExitCode int
	Stderr   string
	TimedOut bool
	Timeout  time.Duration
}

func (e *ProcessExecutionError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	switch {
	case e.TimedOut:
		msg := fmt.Sprintf("%s command timed out after %s", e.Tool, e.Timeout)
		if stderr != "" {
			msg += ": " + stderr
		}
		return msg
	case e.ExitCode != 0:
		return fmt.Sprintf("%s command failed with exit code %d: %s", e.Tool, e.ExitCode, stderr)
	default:
		return fmt.Sprintf("%s command failed: %s", e.Tool, stderr)
	}
}
