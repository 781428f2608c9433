package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charignon/cmdbridge/internal/config"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Classification is the verdict on a finished process
type Classification int

const (
	Success Classification = iota
	Failure
)

func (c Classification) String() string {
	if c == Success {
		return "success"
	}
	return "failure"
}

// Outcome is the captured result of one process run
type Outcome struct {
	Stdout         string
	Stderr         string
	ExitCode       int
	Duration       time.Duration
	Classification Classification
}

// Payload returns stdout without surrounding whitespace.
func (o *Outcome) Payload() string {
	return strings.TrimSpace(o.Stdout)
}

// Classify applies the exit code and stderr rules: a non-zero exit fails,
// and so does any stderr text that lacks the benign marker.
func Classify(exitCode int, stderr, benignMarker string) Classification {
	if exitCode != 0 {
		return Failure
	}
	if stderr != "" && (benignMarker == "" || !strings.Contains(stderr, benignMarker)) {
		return Failure
	}
	return Success
}

// CommandTracer receives every command and its outcome
type CommandTracer interface {
	TraceCommand(command string, args []string, shell bool)
	TraceCommandOutput(output string, exitCode int, err error)
}

// CommandExecutor runs command specs. It holds no per-call state and is
// safe for concurrent use.
type CommandExecutor struct {
	shell         string
	maxOutputSize int64
	sandbox       *Sandbox
	tracer        CommandTracer
	lookPath      func(string) (string, error)
}

// Option configures a CommandExecutor
type Option func(*CommandExecutor)

// WithTracer records commands and outcomes on t
func WithTracer(t CommandTracer) Option {
	return func(e *CommandExecutor) {
		e.tracer = t
	}
}

// NewCommandExecutor creates a new command executor
func NewCommandExecutor(cfg *config.Config, opts ...Option) *CommandExecutor {
	e := &CommandExecutor{
		shell:         cfg.Settings.Shell,
		maxOutputSize: cfg.Security.MaxOutputSize,
		sandbox:       NewSandbox(cfg.Security),
		lookPath:      exec.LookPath,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the command and classifies the result. On failure the outcome is
// returned together with a *ProcessExecutionError; a process that cannot
// be started yields a *ProcessLaunchError and no outcome.
func (e *CommandExecutor) Run(ctx context.Context, spec *CommandSpec) (*Outcome, error) {
	if err := e.sandbox.ValidateCommand(spec); err != nil {
		return nil, fmt.Errorf("command blocked by security policy: %w", err)
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd, err := e.command(ctx, spec)
	if err != nil {
		return nil, err
	}

	if e.tracer != nil {
		if spec.IsShell() {
			e.tracer.TraceCommand(e.shell, []string{"-c", spec.ShellLine}, true)
		} else {
			e.tracer.TraceCommand(spec.Executable, spec.Args, false)
		}
	}

	log.Debug().
		Str("tool", spec.Tool).
		Str("command", spec.String()).
		Bool("shell", spec.IsShell()).
		Msg("Executing command")

	outcome, err := e.run(ctx, cmd, spec)

	if e.tracer != nil {
		exitCode, output := -1, ""
		if outcome != nil {
			exitCode, output = outcome.ExitCode, outcome.Stdout
		}
		e.tracer.TraceCommandOutput(output, exitCode, err)
	}

	return outcome, err
}

func (e *CommandExecutor) command(ctx context.Context, spec *CommandSpec) (*exec.Cmd, error) {
	if !spec.IsShell() {
		return exec.CommandContext(ctx, spec.Executable, spec.Args...), nil
	}
	// the shell itself always starts, so resolve the tool up front to
	// report a missing binary as a launch failure
	if _, err := e.lookPath(spec.Executable); err != nil {
		return nil, &ProcessLaunchError{Executable: spec.Executable, Err: err}
	}
	return exec.CommandContext(ctx, e.shell, "-c", spec.ShellLine), nil
}

func (e *CommandExecutor) run(ctx context.Context, cmd *exec.Cmd, spec *CommandSpec) (*Outcome, error) {
	setProcessGroup(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProcessLaunchError{Executable: spec.Executable, Err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ProcessLaunchError{Executable: spec.Executable, Err: err}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &ProcessLaunchError{Executable: spec.Executable, Err: err}
	}

	// both streams are drained completely before Wait closes the pipes
	var stdout, stderr bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&stdout, stdoutPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&stderr, stderrPipe)
		return err
	})
	copyErr := g.Wait()
	waitErr := cmd.Wait()

	outcome := &Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("failed waiting for %s: %w", spec.Tool, waitErr)
		}
		outcome.ExitCode = exitErr.ExitCode()
	}
	if copyErr != nil {
		log.Warn().Err(copyErr).Str("tool", spec.Tool).Msg("Failed to read command output")
	}

	if ctxErr := ctx.Err(); waitErr != nil && ctxErr != nil {
		outcome.Classification = Failure
		if !errors.Is(ctxErr, context.DeadlineExceeded) {
			return outcome, fmt.Errorf("%s command canceled: %w", spec.Tool, ctxErr)
		}
		log.Warn().Str("tool", spec.Tool).Dur("timeout", spec.Timeout).Msg("Command did not finish in time")
		return outcome, &ProcessExecutionError{
			Tool:     spec.Tool,
			ExitCode: outcome.ExitCode,
			Stderr:   outcome.Stderr,
			TimedOut: true,
			Timeout:  spec.Timeout,
		}
	}

	outcome.Classification = Classify(outcome.ExitCode, outcome.Stderr, spec.BenignStderr)

	log.Debug().
		Str("tool", spec.Tool).
		Int("exit_code", outcome.ExitCode).
		Dur("duration", outcome.Duration).
		Stringer("classification", outcome.Classification).
		Msg("Command finished")

	if outcome.Classification == Failure {
		return outcome, &ProcessExecutionError{
			Tool:     spec.Tool,
			ExitCode: outcome.ExitCode,
			Stderr:   outcome.Stderr,
		}
	}

	if e.maxOutputSize > 0 && int64(len(outcome.Stdout)) > e.maxOutputSize {
		outcome.Stdout = truncate(outcome.Stdout, int(e.maxOutputSize)) + "\n... (output truncated)"
	}

	return outcome, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
