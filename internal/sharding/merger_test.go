package sharding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testhive/internal/coverage"
	"testhive/internal/framework"
)

func TestMergeRunResultsEmpty(t *testing.T) {
	merged := MergeRunResults(nil)
	assert.False(t, merged.Success)
	assert.Equal(t, 0, merged.Total())
	assert.Nil(t, merged.Coverage)
}

func TestMergeRunResultsSingle(t *testing.T) {
	r := &framework.RunResult{
		Passed:     3,
		Failed:     0,
		DurationMS: 1200,
		Success:    true,
		TestCases: []framework.CaseResult{
			{Name: "TestA", Status: framework.StatusPassed, DurationMS: 10},
		},
	}
	merged := MergeRunResults([]*framework.RunResult{r})

	assert.Equal(t, r.Passed, merged.Passed)
	assert.Equal(t, r.DurationMS, merged.DurationMS)
	assert.Equal(t, r.TestCases, merged.TestCases)
	assert.True(t, merged.Success)
}

func TestMergeRunResultsCountsAndDuration(t *testing.T) {
	a := &framework.RunResult{Passed: 4, Failed: 1, Skipped: 1, DurationMS: 800,
		TestCases: []framework.CaseResult{{Name: "a1"}, {Name: "a2"}}}
	b := &framework.RunResult{Passed: 2, Errors: 1, DurationMS: 1500,
		TestCases: []framework.CaseResult{{Name: "b1"}}}

	merged := MergeRunResults([]*framework.RunResult{a, b})

	assert.Equal(t, 6, merged.Passed)
	assert.Equal(t, 1, merged.Failed)
	assert.Equal(t, 1, merged.Skipped)
	assert.Equal(t, 1, merged.Errors)
	// Shards run concurrently: wall clock is the slowest shard.
	assert.Equal(t, 1500.0, merged.DurationMS)
	// Cases concatenate in shard order.
	require.Len(t, merged.TestCases, 3)
	assert.Equal(t, "a1", merged.TestCases[0].Name)
	assert.Equal(t, "b1", merged.TestCases[2].Name)
	assert.False(t, merged.Success)

	// Inputs untouched.
	assert.Equal(t, 4, a.Passed)
	assert.Len(t, a.TestCases, 2)
}

func TestMergeSuccessRequiresTests(t *testing.T) {
	empty := &framework.RunResult{}
	merged := MergeRunResults([]*framework.RunResult{empty, empty})
	assert.False(t, merged.Success, "zero tests with zero failures is not success")

	passing := &framework.RunResult{Passed: 1}
	assert.True(t, MergeRunResults([]*framework.RunResult{passing}).Success)
}

func TestMergeSkipsShardsWithoutCoverage(t *testing.T) {
	withCov := &framework.RunResult{Passed: 1, Coverage: reportWithLines("a.go", coverage.Line{LineNumber: 1, ExecutionCount: 1})}
	withoutCov := &framework.RunResult{Passed: 1}

	merged := MergeRunResults([]*framework.RunResult{withCov, withoutCov})
	require.NotNil(t, merged.Coverage)
	assert.Len(t, merged.Coverage.Files, 1)

	noneHaveCov := MergeRunResults([]*framework.RunResult{withoutCov, withoutCov})
	assert.Nil(t, noneHaveCov.Coverage, "no coverage data must stay distinguishable from 0% coverage")
}

func reportWithLines(path string, lines ...coverage.Line) *coverage.Report {
	r := coverage.NewReport()
	r.Files[path] = &coverage.File{FilePath: path, Lines: lines}
	return r
}

func TestMergeCoverageEmptyIsNil(t *testing.T) {
	assert.Nil(t, MergeCoverageReports(nil))
	assert.Nil(t, MergeCoverageReports([]*coverage.Report{}))
}

func TestMergeCoverageLinesTakeMax(t *testing.T) {
	a := reportWithLines("x.go", coverage.Line{LineNumber: 1, ExecutionCount: 3}, coverage.Line{LineNumber: 2, ExecutionCount: 0})
	b := reportWithLines("x.go", coverage.Line{LineNumber: 2, ExecutionCount: 5}, coverage.Line{LineNumber: 3, ExecutionCount: 0})

	merged := MergeCoverageReports([]*coverage.Report{a, b})
	require.NotNil(t, merged)
	f := merged.Files["x.go"]
	require.Len(t, f.Lines, 3)
	assert.Equal(t, coverage.Line{LineNumber: 1, ExecutionCount: 3}, f.Lines[0])
	assert.Equal(t, coverage.Line{LineNumber: 2, ExecutionCount: 5}, f.Lines[1])
	assert.Equal(t, coverage.Line{LineNumber: 3, ExecutionCount: 0}, f.Lines[2])
}

func TestMergeCoverageFunctionsTakeMax(t *testing.T) {
	a := coverage.NewReport()
	a.Files["x.go"] = &coverage.File{FilePath: "x.go", Functions: []coverage.Function{
		{Name: "Do", LineNumber: 1, ExecutionCount: 0},
	}}
	b := coverage.NewReport()
	b.Files["x.go"] = &coverage.File{FilePath: "x.go", Functions: []coverage.Function{
		{Name: "Do", LineNumber: 1, ExecutionCount: 2},
		{Name: "Other", LineNumber: 9, ExecutionCount: 1},
	}}

	merged := MergeCoverageReports([]*coverage.Report{a, b})
	f := merged.Files["x.go"]
	require.Len(t, f.Functions, 2)
	assert.Equal(t, 2, f.Functions[0].ExecutionCount)
}

func TestMergeCoverageBranchesSumTakenMaxTotal(t *testing.T) {
	a := coverage.NewReport()
	a.Files["x.go"] = &coverage.File{FilePath: "x.go", Branches: []coverage.Branch{
		{LineNumber: 4, BranchID: 0, TakenCount: 1, TotalCount: 2},
	}}
	b := coverage.NewReport()
	b.Files["x.go"] = &coverage.File{FilePath: "x.go", Branches: []coverage.Branch{
		{LineNumber: 4, BranchID: 0, TakenCount: 2, TotalCount: 2},
		{LineNumber: 4, BranchID: 1, TakenCount: 0, TotalCount: 1},
	}}

	merged := MergeCoverageReports([]*coverage.Report{a, b})
	f := merged.Files["x.go"]
	require.Len(t, f.Branches, 2)
	assert.Equal(t, coverage.Branch{LineNumber: 4, BranchID: 0, TakenCount: 3, TotalCount: 2}, f.Branches[0])
	assert.Equal(t, coverage.Branch{LineNumber: 4, BranchID: 1, TakenCount: 0, TotalCount: 1}, f.Branches[1])
}

func TestMergeCoverageDisjointFiles(t *testing.T) {
	a := reportWithLines("a.go", coverage.Line{LineNumber: 1, ExecutionCount: 1})
	b := reportWithLines("b.go", coverage.Line{LineNumber: 1, ExecutionCount: 0})

	merged := MergeCoverageReports([]*coverage.Report{a, b})
	assert.Len(t, merged.Files, 2)
}

// The merge algebra is commutative and associative: pairwise folding in
// any order equals merging the whole list at once.
func TestMergeCoverageCommutativeAssociative(t *testing.T) {
	mk := func(lineCount, fnCount, taken int) *coverage.Report {
		r := coverage.NewReport()
		r.Files["x.go"] = &coverage.File{
			FilePath:  "x.go",
			Lines:     []coverage.Line{{LineNumber: 1, ExecutionCount: lineCount}},
			Functions: []coverage.Function{{Name: "F", LineNumber: 1, ExecutionCount: fnCount}},
			Branches:  []coverage.Branch{{LineNumber: 1, BranchID: 0, TakenCount: taken, TotalCount: 2}},
		}
		return r
	}
	a, b, c := mk(1, 0, 1), mk(0, 3, 2), mk(5, 1, 0)

	allAtOnce := MergeCoverageReports([]*coverage.Report{a, b, c})
	foldedLeft := MergeCoverageReports([]*coverage.Report{
		MergeCoverageReports([]*coverage.Report{a, b}), c,
	})
	reordered := MergeCoverageReports([]*coverage.Report{c, a, b})

	assert.Equal(t, allAtOnce.Files["x.go"], foldedLeft.Files["x.go"])
	assert.Equal(t, allAtOnce.Files["x.go"], reordered.Files["x.go"])
}
