// Package subproc runs external toolchain commands with timeouts and
// bounded output capture. It is the only place in the core that touches
// os/exec; coverage adapters invoke their native tools through it.
package subproc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// ErrToolNotFound is returned when the requested binary is not on PATH.
var ErrToolNotFound = errors.New("tool not found")

const defaultMaxOutputBytes = 4 * 1024 * 1024

// Command describes one toolchain invocation.
type Command struct {
	Binary           string
	Arguments        []string
	WorkingDirectory string
	Timeout          time.Duration
}

// Result is the outcome of a toolchain invocation. TimedOut and a
// non-zero ExitCode are normal outcomes, not errors: the infrastructure
// worked, the tool reported something.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Duration  time.Duration
	Truncated bool
}

// Combined returns stdout and stderr joined for raw-output reporting.
func (r *Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner executes commands on the host.
type Runner struct {
	maxOutputBytes int
	logger         *zap.Logger
}

// NewRunner returns a Runner with the default output cap. A nil logger
// is replaced with a nop logger.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{maxOutputBytes: defaultMaxOutputBytes, logger: logger}
}

// Run executes cmd and waits for it to finish. A zero timeout means no
// deadline beyond the caller's context. Errors are returned only for
// infrastructure failures (missing binary, start failure); tool exit
// codes and timeouts land in the Result.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: r.maxOutputBytes}
	stderr := &limitedWriter{w: &stderrBuf, max: r.maxOutputBytes}
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

	r.logger.Debug("running command",
		zap.String("binary", cmd.Binary),
		zap.Strings("args", cmd.Arguments),
		zap.String("dir", cmd.WorkingDirectory),
		zap.Duration("timeout", cmd.Timeout))

	started := time.Now()
	err := execCmd.Run()
	result := &Result{
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		Duration:  time.Since(started),
		Truncated: stdout.truncated || stderr.truncated,
	}

	if err == nil {
		return result, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.ExitCode = -1
		r.logger.Warn("command timed out",
			zap.String("binary", cmd.Binary),
			zap.Duration("timeout", cmd.Timeout))
		return result, nil
	case errors.Is(err, exec.ErrNotFound):
		return nil, ErrToolNotFound
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		r.logger.Debug("command exited non-zero",
			zap.String("binary", cmd.Binary),
			zap.Int("exit_code", result.ExitCode))
		return result, nil
	}
	return nil, err
}

// limitedWriter discards bytes past max instead of failing the write.
type limitedWriter struct {
	w         io.Writer
	max       int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remaining := lw.max - lw.written
	if remaining <= 0 {
		lw.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		lw.truncated = true
		if _, err := lw.w.Write(p[:remaining]); err != nil {
			return 0, err
		}
		lw.written = lw.max
		return len(p), nil
	}
	n, err := lw.w.Write(p)
	lw.written += n
	return n, err
}
