// Package daemon manages the lifecycle of an external Electrum wallet daemon
// and routes every wallet sub-command through a single Session.
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	notRunningMarker = "not running"
	walletPathFlag   = "-w"
)

// Options configures Acquire.
type Options struct {
	// Command is the argv prefix used to reach the wallet, for example
	// ["/usr/local/bin/electrum", "--testnet"]. Empty means DefaultCommand(false).
	Command []string

	// WalletPath selects a wallet file. Empty means the daemon's default wallet.
	WalletPath string
}

// Session is one managed lifecycle of the wallet daemon. It is not safe for
// concurrent use; the daemon is the serialization point and one orchestrator
// is expected per wallet file.
type Session struct {
	runner     Runner
	command    []string
	walletPath string

	wasRunningBefore bool
	closed           bool
}

// Acquire makes sure the daemon is running and the wallet is loaded. If the
// daemon was not running it is started, and the returned session will stop it
// again on Release.
func Acquire(ctx context.Context, runner Runner, opts Options) (*Session, error) {
	command := opts.Command
	if len(command) == 0 {
		command = DefaultCommand(false)
	}

	s := &Session{
		runner:     runner,
		command:    append([]string(nil), command...),
		walletPath: opts.WalletPath,
	}

	status, err := s.invoke(ctx, []string{"daemon", "status"})
	if err != nil {
		return nil, err
	}
	s.wasRunningBefore = !bytes.Contains(status.Stdout, []byte(notRunningMarker))

	if !s.wasRunningBefore {
		log.Infof("Starting wallet daemon")
		if _, err := s.invoke(ctx, []string{"daemon", "start"}); err != nil {
			return nil, err
		}
	}

	if s.walletPath != "" {
		log.Infof("Using wallet: %s", s.walletPath)
	}
	if err := s.Run(ctx, "daemon", "load_wallet"); err != nil {
		s.Release(ctx)
		return nil, err
	}

	return s, nil
}

// WithSession acquires a session, runs fn and releases the session on every
// exit path.
func WithSession(ctx context.Context, runner Runner, opts Options, fn func(*Session) error) error {
	s, err := Acquire(ctx, runner, opts)
	if err != nil {
		return err
	}
	defer s.Release(ctx)

	return fn(s)
}

// WasRunningBefore reports whether the daemon was already running when the
// session was acquired.
func (s *Session) WasRunningBefore() bool {
	return s.wasRunningBefore
}

// WalletPath returns the configured wallet file, if any.
func (s *Session) WalletPath() string {
	return s.walletPath
}

// Release stops the daemon if this session started it. Calling Release more
// than once is a no-op. Stop failures are logged, not returned.
func (s *Session) Release(ctx context.Context) {
	if s.closed {
		return
	}
	s.closed = true

	if s.wasRunningBefore {
		return
	}

	// Teardown must still happen when the caller's context is already done.
	ctx = context.WithoutCancel(ctx)
	out, err := s.invoke(ctx, []string{"daemon", "stop"})
	switch {
	case err != nil:
		log.Errorf("Failed to stop wallet daemon: %v", err)
	case out.ExitCode != 0:
		log.Errorf("Wallet daemon stop exited with status %d: %s",
			out.ExitCode, strings.TrimSpace(string(out.Stderr)))
	default:
		log.Infof("Stopped wallet daemon")
	}
}

// Run executes a wallet sub-command and discards its output. The exit status
// is not observed, so a nil error does not mean the sub-command succeeded.
func (s *Session) Run(ctx context.Context, args ...string) error {
	if s.closed {
		return ErrSessionClosed
	}
	_, err := s.invoke(ctx, s.withWalletPath(args))
	return err
}

// Execute runs a wallet sub-command and returns its standard output.
func (s *Session) Execute(ctx context.Context, args []string) (string, error) {
	if s.closed {
		return "", ErrSessionClosed
	}

	argv := s.withWalletPath(args)
	out, err := s.invoke(ctx, argv)
	if err != nil {
		return "", err
	}
	if out.ExitCode != 0 {
		return "", &CommandError{
			Args:     args,
			ExitCode: out.ExitCode,
			Output:   string(out.Stdout),
			Stderr:   string(out.Stderr),
			Err:      ErrCommandFailed,
		}
	}

	return string(out.Stdout), nil
}

// ExecuteJSON runs a wallet sub-command and decodes its output into v.
func (s *Session) ExecuteJSON(ctx context.Context, args []string, v interface{}) error {
	output, err := s.Execute(ctx, args)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), v); err != nil {
		log.Debugf("Undecodable output from %s: %q", strings.Join(args, " "), output)
		return &CommandError{
			Args:   args,
			Output: output,
			Err:    fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}
	return nil
}

// withWalletPath appends the wallet path flag, which always goes last.
func (s *Session) withWalletPath(args []string) []string {
	argv := append([]string(nil), args...)
	if s.walletPath != "" {
		argv = append(argv, walletPathFlag, s.walletPath)
	}
	return argv
}

// invoke runs command+args. Failing to invoke the binary at all is reported
// as ErrDaemonUnavailable.
func (s *Session) invoke(ctx context.Context, args []string) (Output, error) {
	argv := make([]string, 0, len(s.command)+len(args))
	argv = append(argv, s.command...)
	argv = append(argv, args...)

	log.Tracef("Running %s", strings.Join(argv, " "))
	out, err := s.runner.Run(ctx, argv)
	if err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrDaemonUnavailable, strings.Join(args, " "), err)
	}
	return out, nil
}
