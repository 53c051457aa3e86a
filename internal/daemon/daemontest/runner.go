// Package daemontest provides a scripted Runner that imitates the wallet
// command line without spawning processes.
package daemontest

import (
	"context"
	"fmt"
	"sync"

	"github.com/vwigmore/cloudomate/internal/daemon"
)

// Command is the argv prefix the fake expects in front of every sub-command.
var Command = []string{"electrum"}

// Handler produces the output for one invocation. args excludes Command.
type Handler func(args []string) daemon.Output

// Runner is a fake daemon. It tracks running state across daemon
// start/stop and answers other sub-commands from scripted responses.
type Runner struct {
	mu sync.Mutex

	// Running is the daemon state reported by "daemon status".
	Running bool

	// InvokeErr, when set, is returned for every invocation as if the
	// binary could not be executed.
	InvokeErr error

	handlers   map[string]Handler
	invokeErrs map[string]error
	calls      [][]string
}

// New returns a fake whose daemon is initially running or not.
func New(running bool) *Runner {
	return &Runner{
		Running:    running,
		handlers:   make(map[string]Handler),
		invokeErrs: make(map[string]error),
	}
}

// Options returns session options pointing at the fake's command.
func (r *Runner) Options(walletPath string) daemon.Options {
	return daemon.Options{Command: Command, WalletPath: walletPath}
}

// Respond makes sub-command sub print stdout and exit 0.
func (r *Runner) Respond(sub, stdout string) {
	r.Handle(sub, func([]string) daemon.Output {
		return daemon.Output{Stdout: []byte(stdout)}
	})
}

// Fail makes sub-command sub exit with code and print stderr.
func (r *Runner) Fail(sub string, code int, stderr string) {
	r.Handle(sub, func([]string) daemon.Output {
		return daemon.Output{Stderr: []byte(stderr), ExitCode: code}
	})
}

// Handle installs h for sub-command sub ("getbalance", "daemon stop", ...).
func (r *Runner) Handle(sub string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[sub] = h
}

// FailInvoke makes sub-command sub fail with err as if the binary could not
// be executed. Other sub-commands are unaffected.
func (r *Runner) FailInvoke(sub string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokeErrs[sub] = err
}

// IsRunning reports the daemon state under the fake's lock.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Running
}

// Calls returns every invocation's arguments, without Command.
func (r *Runner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsTo returns the invocations of sub-command sub.
func (r *Runner) CallsTo(sub string) [][]string {
	var out [][]string
	for _, args := range r.Calls() {
		if SubCommand(args) == sub {
			out = append(out, args)
		}
	}
	return out
}

// Run implements daemon.Runner.
func (r *Runner) Run(_ context.Context, argv []string) (daemon.Output, error) {
	if len(argv) < len(Command) {
		return daemon.Output{}, fmt.Errorf("unexpected argv %q", argv)
	}
	for i, part := range Command {
		if argv[i] != part {
			return daemon.Output{}, fmt.Errorf("unexpected argv %q", argv)
		}
	}
	args := append([]string(nil), argv[len(Command):]...)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, args)
	if r.InvokeErr != nil {
		return daemon.Output{}, r.InvokeErr
	}

	sub := SubCommand(args)
	if err, ok := r.invokeErrs[sub]; ok {
		return daemon.Output{}, err
	}
	if h, ok := r.handlers[sub]; ok {
		return h(args), nil
	}

	switch sub {
	case "daemon status":
		if !r.Running {
			return daemon.Output{Stdout: []byte("Daemon not running\n"), ExitCode: 1}, nil
		}
		return daemon.Output{Stdout: []byte(`{"connected": true, "version": "4.4.0"}`)}, nil
	case "daemon start":
		r.Running = true
		return daemon.Output{}, nil
	case "daemon stop":
		r.Running = false
		return daemon.Output{}, nil
	case "daemon load_wallet":
		return daemon.Output{Stdout: []byte("true")}, nil
	}

	return daemon.Output{
		Stderr:   []byte(fmt.Sprintf("no scripted response for %q", sub)),
		ExitCode: 1,
	}, nil
}

// SubCommand names the sub-command in args: "daemon <action>" for daemon
// control, otherwise the first argument.
func SubCommand(args []string) string {
	if len(args) == 0 {
		return ""
	}
	if args[0] == "daemon" && len(args) > 1 {
		return "daemon " + args[1]
	}
	return args[0]
}
