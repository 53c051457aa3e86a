package daemon

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDaemonUnavailable is returned when the wallet binary cannot be
	// invoked to query or start the daemon.
	ErrDaemonUnavailable = errors.New("wallet daemon unavailable")

	// ErrCommandFailed is returned when a captured sub-command exits non-zero.
	ErrCommandFailed = errors.New("wallet command failed")

	// ErrMalformedResponse is returned when a sub-command's output does not
	// have the expected structure.
	ErrMalformedResponse = errors.New("malformed wallet response")

	// ErrSessionClosed is returned for operations on a released session.
	ErrSessionClosed = errors.New("wallet session closed")
)

// CommandError carries the sub-command and raw output of a failed wallet
// interaction. Err is one of the package sentinels.
type CommandError struct {
	Args     []string
	ExitCode int
	Output   string
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: %s", e.Err, strings.Join(e.Args, " "))
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		fmt.Fprintf(&b, ": %s", msg)
	} else if out := strings.TrimSpace(e.Output); out != "" {
		fmt.Fprintf(&b, ": output %q", out)
	}
	return b.String()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
