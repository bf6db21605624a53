package framework

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"testhive/internal/subproc"
)

// CommandAdapter runs tests through an arbitrary command line. It knows
// nothing about any framework's output: a zero exit code counts as one
// passed case, anything else as one failed case, with the raw output
// preserved. Shard test files are appended to the argument list.
type CommandAdapter struct {
	name     string
	patterns []string
	argv     []string
	runner   *subproc.Runner
	logger   *zap.Logger
}

// NewCommandAdapter builds a CommandAdapter. argv is the command and its
// fixed arguments, e.g. {"go", "test"}; patterns are the test-file globs
// used for discovery.
func NewCommandAdapter(name string, patterns, argv []string, logger *zap.Logger) (*CommandAdapter, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("command adapter %q: empty command", name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandAdapter{
		name:     name,
		patterns: patterns,
		argv:     argv,
		runner:   subproc.NewRunner(logger),
		logger:   logger,
	}, nil
}

func (a *CommandAdapter) Name() string { return a.name }

func (a *CommandAdapter) TestPatterns() []string { return a.patterns }

// RunTests executes the configured command with opts.TestFiles appended.
func (a *CommandAdapter) RunTests(ctx context.Context, projectRoot string, opts RunOptions) (*RunResult, error) {
	args := append([]string(nil), a.argv[1:]...)
	args = append(args, opts.TestFiles...)

	cmd := subproc.Command{
		Binary:           a.argv[0],
		Arguments:        args,
		WorkingDirectory: projectRoot,
		Timeout:          opts.Timeout,
	}

	started := time.Now()
	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("command adapter %q: %w", a.name, err)
	}

	result := &RunResult{
		DurationMS: float64(time.Since(started).Milliseconds()),
		RawOutput:  res.Combined(),
	}

	caseName := a.argv[0]
	switch {
	case res.TimedOut:
		result.Errors = 1
		result.TestCases = append(result.TestCases, CaseResult{
			Name:           caseName,
			Status:         StatusError,
			DurationMS:     result.DurationMS,
			FailureMessage: "test command timed out",
		})
	case res.ExitCode == 0:
		result.Passed = 1
		result.Success = true
		result.TestCases = append(result.TestCases, CaseResult{
			Name:       caseName,
			Status:     StatusPassed,
			DurationMS: result.DurationMS,
		})
	default:
		result.Failed = 1
		result.TestCases = append(result.TestCases, CaseResult{
			Name:           caseName,
			Status:         StatusFailed,
			DurationMS:     result.DurationMS,
			FailureMessage: fmt.Sprintf("exit code %d", res.ExitCode),
		})
	}

	return result, nil
}
