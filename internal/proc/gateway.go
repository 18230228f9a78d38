// Package proc is the bytes-and-integers boundary to the host OS. It runs
// external commands (git, gh, language services, agent CLIs) with timeouts,
// an environment overlay and captured stdio. It never interprets output and
// never retries.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/diagnostics"
	"github.com/aura-dev/aura/internal/logging"
)

// DefaultTimeout applies when a request carries none.
const DefaultTimeout = 30 * time.Second

// DefaultGracePeriod is how long a cancelled child gets between SIGTERM and
// SIGKILL.
const DefaultGracePeriod = 3 * time.Second

// Request describes one external command invocation.
type Request struct {
	Name    string
	Args    []string
	Dir     string
	Env     map[string]string // overlay on the process environment
	Stdin   string
	Timeout time.Duration
}

// Result captures everything the command produced.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Gateway runs external commands.
type Gateway struct {
	logger      *logging.Logger
	checker     *diagnostics.Checker
	gracePeriod time.Duration
}

// Option configures the gateway.
type Option func(*Gateway)

// WithPreflight enables host resource checks before each spawn.
func WithPreflight(c *diagnostics.Checker) Option {
	return func(g *Gateway) { g.checker = c }
}

// WithGracePeriod overrides the SIGTERM to SIGKILL delay.
func WithGracePeriod(d time.Duration) Option {
	return func(g *Gateway) { g.gracePeriod = d }
}

// New creates a gateway.
func New(logger *logging.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = logging.NewNop()
	}
	g := &Gateway{
		logger:      logger,
		gracePeriod: DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run executes a command given as an argument vector.
func (g *Gateway) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Name == "" {
		return nil, core.ErrValidation(core.CodeInvalidArgument, "command name cannot be empty")
	}
	return g.run(ctx, req, exec.Command(req.Name, req.Args...))
}

// RunShell executes a shell command string through the host shell. Needed by
// the generic shell.execute tool; everything else should prefer Run.
func (g *Gateway) RunShell(ctx context.Context, command string, req Request) (*Result, error) {
	if strings.TrimSpace(command) == "" {
		return nil, core.ErrValidation(core.CodeInvalidArgument, "shell command cannot be empty")
	}
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	req.Name = command
	return g.run(ctx, req, cmd)
}

func (g *Gateway) run(ctx context.Context, req Request, cmd *exec.Cmd) (*Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if g.checker != nil {
		preflight := g.checker.Run()
		if !preflight.OK {
			return nil, core.ErrExecution(core.CodeSpawnFailed,
				fmt.Sprintf("preflight check failed: %v", preflight.Errors))
		}
		for _, w := range preflight.Warnings {
			g.logger.Warn("preflight warning before command execution", "warning", w, "command", req.Name)
		}
	}

	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		env := os.Environ()
		for k, v := range req.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	configureProcAttr(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, core.ErrExecution(core.CodeSpawnFailed,
			fmt.Sprintf("starting %s: %v", req.Name, err)).WithCause(err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		terminate(cmd, g.gracePeriod, done)
		result := &Result{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: -1,
			Duration: time.Since(start),
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, core.ErrTimeout(fmt.Sprintf("%s timed out after %s", req.Name, timeout))
		}
		return result, core.ErrCancelled(fmt.Sprintf("%s cancelled", req.Name))
	}

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return result, core.ErrExecution(core.CodeNonzeroExit,
				fmt.Sprintf("%s exited with code %d", req.Name, result.ExitCode)).
				WithDetail("stderr", result.Stderr).
				WithDetail("exit_code", result.ExitCode)
		}
		return result, core.ErrExecution(core.CodeSpawnFailed,
			fmt.Sprintf("running %s: %v", req.Name, waitErr)).WithCause(waitErr)
	}

	return result, nil
}

// terminate sends SIGTERM to the child's process group, waits for the grace
// period, then escalates to SIGKILL.
func terminate(cmd *exec.Cmd, grace time.Duration, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	signalTerm(cmd)
	select {
	case <-done:
	case <-time.After(grace):
		signalKill(cmd)
		<-done
	}
}
