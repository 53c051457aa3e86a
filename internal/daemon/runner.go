package daemon

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

const (
	localElectrum = "/usr/local/bin/electrum"
	testnetFlag   = "--testnet"
)

// Output is what a finished wallet process left behind.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner invokes the wallet binary. A non-nil error means the process could
// not be invoked at all; a process that ran and exited non-zero reports that
// through Output.ExitCode.
type Runner interface {
	Run(ctx context.Context, argv []string) (Output, error)
}

// ExecRunner runs wallet commands as child processes.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, argv []string) (Output, error) {
	if len(argv) == 0 {
		return Output{}, errors.New("empty command")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return out, ctxErr
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return out, nil
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	default:
		return out, err
	}
}

// DefaultCommand returns the electrum invocation to use when none is
// configured: the locally installed binary if present, otherwise whatever
// electrum is on PATH.
func DefaultCommand(testnet bool) []string {
	var command []string
	if _, err := os.Stat(localElectrum); err == nil {
		command = []string{localElectrum}
	} else {
		command = []string{"/usr/bin/env", "electrum"}
	}
	if testnet {
		command = append(command, testnetFlag)
	}
	return command
}
