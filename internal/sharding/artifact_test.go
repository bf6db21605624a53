package sharding

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testhive/internal/coverage"
	"testhive/internal/framework"
)

func sampleResult() *framework.RunResult {
	cov := coverage.NewReport()
	cov.Files["pkg/a.go"] = &coverage.File{
		FilePath:  "pkg/a.go",
		Lines:     []coverage.Line{{LineNumber: 3, ExecutionCount: 2}},
		Functions: []coverage.Function{{Name: "Do", LineNumber: 3, ExecutionCount: 2}},
		Branches:  []coverage.Branch{{LineNumber: 4, BranchID: 1002, TakenCount: 1, TotalCount: 1}},
	}
	return &framework.RunResult{
		Passed:     2,
		Failed:     1,
		Skipped:    1,
		Errors:     0,
		DurationMS: 432.5,
		Success:    false,
		TestCases: []framework.CaseResult{
			{Name: "TestOK", Status: framework.StatusPassed, DurationMS: 10.5, FilePath: "a_test.go"},
			{Name: "TestBad", Status: framework.StatusFailed, DurationMS: 3, FailureMessage: "want 2, got 3", FilePath: "a_test.go"},
			{Name: "TestSkip", Status: framework.StatusSkipped},
			{Name: "TestAlsoOK", Status: framework.StatusPassed},
		},
		Coverage: cov,
	}
}

func TestArtifactRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts", "shard-1.json")
	meta := ShardMetadata{ShardIndex: 1, ShardCount: 4, AdapterName: "go_test"}
	original := sampleResult()

	require.NoError(t, WriteShardResult(original, path, meta))

	restored, gotMeta, err := ReadShardResult(path)
	require.NoError(t, err)

	assert.Equal(t, meta, gotMeta)
	assert.Equal(t, original.Passed, restored.Passed)
	assert.Equal(t, original.Failed, restored.Failed)
	assert.Equal(t, original.Skipped, restored.Skipped)
	assert.Equal(t, original.DurationMS, restored.DurationMS)
	assert.Equal(t, original.Success, restored.Success)
	assert.Equal(t, original.TestCases, restored.TestCases)
	require.NotNil(t, restored.Coverage)
	assert.Equal(t, original.Coverage.Files["pkg/a.go"], restored.Coverage.Files["pkg/a.go"])

	// Status enumerants survive as their wire strings.
	assert.Equal(t, framework.StatusFailed, restored.TestCases[1].Status)
}

func TestArtifactExactKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard-0.json")
	meta := ShardMetadata{ShardIndex: 0, ShardCount: 2, AdapterName: "pytest"}
	require.NoError(t, WriteShardResult(sampleResult(), path, meta))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	for _, key := range []string{
		"shard_index", "shard_count", "adapter_name",
		"passed", "failed", "skipped", "errors",
		"duration_ms", "success", "test_cases", "coverage",
	} {
		assert.Contains(t, doc, key)
	}

	cases := doc["test_cases"].([]any)
	first := cases[0].(map[string]any)
	for _, key := range []string{"name", "status", "duration_ms", "failure_message", "file_path"} {
		assert.Contains(t, first, key)
	}
	assert.Equal(t, "passed", first["status"])

	files := doc["coverage"].(map[string]any)["files"].(map[string]any)
	fileDoc := files["pkg/a.go"].(map[string]any)
	for _, key := range []string{"file_path", "lines", "functions", "branches"} {
		assert.Contains(t, fileDoc, key)
	}
	line := fileDoc["lines"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(3), line["line_number"])
	assert.Equal(t, float64(2), line["execution_count"])
}

func TestArtifactNoCoverageIsNull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard-0.json")
	result := &framework.RunResult{Passed: 1, Success: true}
	require.NoError(t, WriteShardResult(result, path, ShardMetadata{ShardCount: 1, AdapterName: "x"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	val, present := doc["coverage"]
	assert.True(t, present)
	assert.Nil(t, val)

	restored, _, err := ReadShardResult(path)
	require.NoError(t, err)
	assert.Nil(t, restored.Coverage)
	// No test cases still decodes to an empty, non-nil-safe list.
	assert.Empty(t, restored.TestCases)
}

func TestReadShardResultErrors(t *testing.T) {
	_, _, err := ReadShardResult(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, _, err = ReadShardResult(bad)
	assert.Error(t, err)
}

func TestCombineArtifactsAcrossJobs(t *testing.T) {
	dir := t.TempDir()

	shard0 := &framework.RunResult{Passed: 3, DurationMS: 100, Success: true,
		Coverage: reportWithLines("m.go", coverage.Line{LineNumber: 1, ExecutionCount: 1})}
	shard1 := &framework.RunResult{Passed: 2, Failed: 1, DurationMS: 250,
		Coverage: reportWithLines("m.go", coverage.Line{LineNumber: 1, ExecutionCount: 0}, coverage.Line{LineNumber: 2, ExecutionCount: 4})}

	p0 := filepath.Join(dir, "shard-0.json")
	p1 := filepath.Join(dir, "shard-1.json")
	require.NoError(t, WriteShardResult(shard0, p0, ShardMetadata{ShardIndex: 0, ShardCount: 2, AdapterName: "fake"}))
	require.NoError(t, WriteShardResult(shard1, p1, ShardMetadata{ShardIndex: 1, ShardCount: 2, AdapterName: "fake"}))

	var results []*framework.RunResult
	for _, p := range []string{p0, p1} {
		r, _, err := ReadShardResult(p)
		require.NoError(t, err)
		results = append(results, r)
	}

	merged := MergeRunResults(results)
	assert.Equal(t, 5, merged.Passed)
	assert.Equal(t, 1, merged.Failed)
	assert.Equal(t, 250.0, merged.DurationMS)
	require.NotNil(t, merged.Coverage)
	assert.Equal(t, []coverage.Line{{LineNumber: 1, ExecutionCount: 1}, {LineNumber: 2, ExecutionCount: 4}},
		merged.Coverage.Files["m.go"].Lines)
}
