// Package framework defines the contract between the execution core and
// the pluggable test-framework adapters. The core never looks inside an
// adapter: it hands over a file subset plus a timeout and gets back a
// run result with optional coverage.
package framework

import (
	"context"
	"time"

	"testhive/internal/coverage"
)

// CaseStatus is the outcome of one test case.
type CaseStatus string

const (
	StatusPassed  CaseStatus = "passed"
	StatusFailed  CaseStatus = "failed"
	StatusSkipped CaseStatus = "skipped"
	StatusError   CaseStatus = "error"
)

// CaseResult is one test case's outcome as reported by the adapter. The
// merger consumes it unchanged.
type CaseResult struct {
	Name           string     `json:"name"`
	Status         CaseStatus `json:"status"`
	DurationMS     float64    `json:"duration_ms"`
	FailureMessage string     `json:"failure_message"`
	FilePath       string     `json:"file_path"`
}

// RunResult aggregates one test run (one shard invocation, or the
// merged whole). It is a value object: the merger builds a fresh result
// and never mutates its inputs.
type RunResult struct {
	Passed     int              `json:"passed"`
	Failed     int              `json:"failed"`
	Skipped    int              `json:"skipped"`
	Errors     int              `json:"errors"`
	DurationMS float64          `json:"duration_ms"`
	TestCases  []CaseResult     `json:"test_cases"`
	RawOutput  string           `json:"-"`
	Success    bool             `json:"success"`
	Coverage   *coverage.Report `json:"coverage"`
}

// Total is the number of test cases across all statuses.
func (r *RunResult) Total() int {
	return r.Passed + r.Failed + r.Skipped + r.Errors
}

// RunOptions narrows a test run to a file subset under a deadline. An
// empty TestFiles means the whole suite.
type RunOptions struct {
	TestFiles []string
	Timeout   time.Duration
}

// Adapter is the external "run shard" capability. Implementations live
// outside this core; tests use fakes.
type Adapter interface {
	// Name identifies the framework, e.g. "go_test", "pytest".
	Name() string

	// TestPatterns returns the glob patterns that locate this
	// framework's test files under a project root.
	TestPatterns() []string

	// RunTests executes the selected test files and reports the result.
	// The timeout in opts is enforced by the adapter, not the caller.
	RunTests(ctx context.Context, projectRoot string, opts RunOptions) (*RunResult, error)
}
