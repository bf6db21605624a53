package coverage

import (
	"context"
	"time"
)

// Adapter is the contract every native coverage tool adapter satisfies.
// Implementations are a closed set (one per tool), not open-ended
// plugins. All of them share one error-tolerance policy: malformed
// native input yields an empty or partial report, never an error that
// aborts the run; RunCoverage swallows timeouts, missing tools and
// missing output files the same way.
type Adapter interface {
	// Name is the tool identifier, e.g. "go_cover", "lcov", "jacoco".
	Name() string

	// Language is the primary language the tool targets.
	Language() string

	// Detect reports whether the tool applies to the project root.
	Detect(projectRoot string) bool

	// RunCoverage invokes the external toolchain, then parses its
	// native output. Empty testFiles means the whole project.
	RunCoverage(ctx context.Context, projectRoot string, testFiles []string, timeout time.Duration) *Report

	// ParseFile parses one native coverage artifact into the unified
	// model. Unreadable input yields an empty report.
	ParseFile(path string) *Report
}
