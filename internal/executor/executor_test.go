package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/charignon/cmdbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func shSpec(script, benign string) *CommandSpec {
	return &CommandSpec{
		Tool:         "test",
		Executable:   "sh",
		Args:         []string{"-c", script},
		BenignStderr: benign,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		stderr   string
		marker   string
		expected Classification
	}{
		{"notice is benign for psql", 0, "NOTICE: foo", "NOTICE:", Success},
		{"error text fails", 0, "ERROR: bar", "NOTICE:", Failure},
		{"non-zero exit with empty stderr", 2, "", "NOTICE:", Failure},
		{"non-zero exit with benign stderr", 1, "NOTICE: x", "NOTICE:", Failure},
		{"warning is benign for gcloud", 0, "WARNING: deprecated", "WARNING", Success},
		{"marker anywhere in stderr", 0, "ERROR: a\nNOTICE: b", "NOTICE:", Success},
		{"clean run", 0, "", "NOTICE:", Success},
		{"no marker configured", 0, "anything", "", Failure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.exitCode, tt.stderr, tt.marker))
		})
	}
}

func TestRunSuccess(t *testing.T) {
	exec := NewCommandExecutor(config.Default())

	outcome, err := exec.Run(context.Background(), shSpec(`echo "  hello  "; echo "NOTICE: ok" >&2`, "NOTICE:"))
	require.NoError(t, err)
	assert.Equal(t, Success, outcome.Classification)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Equal(t, "hello", outcome.Payload())
	assert.Equal(t, "NOTICE: ok\n", outcome.Stderr)
}

func TestRunStderrFailure(t *testing.T) {
	exec := NewCommandExecutor(config.Default())

	outcome, err := exec.Run(context.Background(), shSpec(`echo partial; echo "ERROR: bar" >&2`, "NOTICE:"))
	require.Error(t, err)

	var perr *ProcessExecutionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 0, perr.ExitCode)
	assert.Contains(t, perr.Stderr, "ERROR: bar")
	assert.Equal(t, "test command failed: ERROR: bar", err.Error())

	require.NotNil(t, outcome)
	assert.Equal(t, Failure, outcome.Classification)
	assert.Equal(t, "partial\n", outcome.Stdout)
}

func TestRunExitCodeFailure(t *testing.T) {
	exec := NewCommandExecutor(config.Default())

	_, err := exec.Run(context.Background(), shSpec(`exit 2`, "NOTICE:"))

	var perr *ProcessExecutionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 2, perr.ExitCode)
	assert.Contains(t, err.Error(), "exit code 2")
}

func TestRunLaunchError(t *testing.T) {
	exec := NewCommandExecutor(config.Default())

	_, err := exec.Run(context.Background(), &CommandSpec{
		Tool:       "missing",
		Executable: "definitely-not-a-real-binary-4711",
		Args:       []string{"x"},
	})

	var lerr *ProcessLaunchError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "definitely-not-a-real-binary-4711", lerr.Executable)
	assert.Contains(t, err.Error(), "failed to execute")
}

func TestRunShellLine(t *testing.T) {
	exec := NewCommandExecutor(config.Default())

	arg, err := QuoteEscape(`a "quoted" $HOME value`)
	require.NoError(t, err)

	outcome, err := exec.Run(context.Background(), &CommandSpec{
		Tool:       "sh",
		Executable: "echo",
		ShellLine:  `echo key=value "` + arg + `"`,
	})
	require.NoError(t, err)
	assert.Equal(t, `key=value a "quoted" $HOME value`, outcome.Payload())
}

func TestRunShellLineMissingExecutable(t *testing.T) {
	exec := NewCommandExecutor(config.Default())

	_, err := exec.Run(context.Background(), &CommandSpec{
		Tool:       "psql",
		Executable: "definitely-not-a-real-binary-4711",
		ShellLine:  `definitely-not-a-real-binary-4711 service=x -c "SELECT 1"`,
	})

	var lerr *ProcessLaunchError
	require.True(t, errors.As(err, &lerr))
}

func TestRunTimeout(t *testing.T) {
	exec := NewCommandExecutor(config.Default())

	spec := shSpec(`sleep 5`, "")
	spec.Timeout = 100 * time.Millisecond

	start := time.Now()
	_, err := exec.Run(context.Background(), spec)
	assert.Less(t, time.Since(start), 4*time.Second)

	var perr *ProcessExecutionError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.TimedOut)
	assert.Contains(t, err.Error(), "timed out after 100ms")
}

func TestRunTimeoutKillsShellChildren(t *testing.T) {
	exec := NewCommandExecutor(config.Default())

	spec := &CommandSpec{
		Tool:       "sh",
		Executable: "sleep",
		ShellLine:  `sleep 5 | cat`,
		Timeout:    100 * time.Millisecond,
	}

	start := time.Now()
	_, err := exec.Run(context.Background(), spec)
	assert.Less(t, time.Since(start), 4*time.Second)

	var perr *ProcessExecutionError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.TimedOut)
}

func TestRunLargeOutput(t *testing.T) {
	exec := NewCommandExecutor(config.Default())

	// more than a pipe buffer on both streams at once
	outcome, err := exec.Run(context.Background(),
		shSpec(`i=0; while [ $i -lt 20000 ]; do echo "out line $i"; echo "WARNING $i" >&2; i=$((i+1)); done`, "WARNING"))
	require.NoError(t, err)
	assert.Equal(t, 20000, strings.Count(outcome.Stdout, "\n"))
	assert.Equal(t, 20000, strings.Count(outcome.Stderr, "\n"))
}

func TestRunTruncatesPayload(t *testing.T) {
	cfg := config.Default()
	cfg.Security.MaxOutputSize = 5
	exec := NewCommandExecutor(cfg)

	outcome, err := exec.Run(context.Background(), shSpec(`echo 0123456789`, ""))
	require.NoError(t, err)
	assert.Equal(t, "01234\n... (output truncated)", outcome.Stdout)
}

func TestRunTruncatesOnRuneBoundary(t *testing.T) {
	cfg := config.Default()
	cfg.Security.MaxOutputSize = 4
	exec := NewCommandExecutor(cfg)

	outcome, err := exec.Run(context.Background(), shSpec(`printf 'abc\303\251def'`, ""))
	require.NoError(t, err)
	assert.Equal(t, "abc\n... (output truncated)", outcome.Stdout)
	assert.True(t, utf8.ValidString(outcome.Stdout))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "abc", truncate("abcé", 4))
	assert.Equal(t, "abcé", truncate("abcéd", 5))
	assert.Equal(t, "", truncate("é", 1))
}

func TestRunBlockedCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Security.BlockedCommands = []string{"sh"}
	exec := NewCommandExecutor(cfg)

	_, err := exec.Run(context.Background(), shSpec(`echo hi`, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command blocked by security policy")
}

func TestRunConcurrent(t *testing.T) {
	exec := NewCommandExecutor(config.Default())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			word := strings.Repeat("x", i+1)
			outcome, err := exec.Run(context.Background(), shSpec("echo "+word, ""))
			if assert.NoError(t, err) {
				assert.Equal(t, word, outcome.Payload())
			}
		}(i)
	}
	wg.Wait()
}

type recordingTracer struct {
	mu       sync.Mutex
	commands []string
	exits    []int
}

func (r *recordingTracer) TraceCommand(command string, args []string, shell bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command+" "+strings.Join(args, " "))
}

func (r *recordingTracer) TraceCommandOutput(output string, exitCode int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, exitCode)
}

func TestRunTracesCommands(t *testing.T) {
	tracer := &recordingTracer{}
	exec := NewCommandExecutor(config.Default(), WithTracer(tracer))

	_, err := exec.Run(context.Background(), shSpec(`exit 3`, ""))
	require.Error(t, err)

	assert.Equal(t, []string{"sh -c exit 3"}, tracer.commands)
	assert.Equal(t, []int{3}, tracer.exits)
}

func TestSandboxValidateCommand(t *testing.T) {
	sandbox := NewSandbox(config.Security{BlockedCommands: []string{"rm"}})

	assert.NoError(t, sandbox.ValidateCommand(&CommandSpec{Executable: "gcloud", Args: []string{"logging"}}))
	assert.Error(t, sandbox.ValidateCommand(&CommandSpec{}))
	assert.Error(t, sandbox.ValidateCommand(&CommandSpec{Executable: "/bin/rm"}))
	assert.ErrorIs(t, sandbox.ValidateCommand(&CommandSpec{Executable: "gcloud", Args: []string{"a\x00"}}), ErrNullByte)
	assert.Error(t, sandbox.ValidateCommand(&CommandSpec{Executable: "psql", ShellLine: "psql", Args: []string{"x"}}))
}
