package sharding

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"testhive/internal/coverage"
	"testhive/internal/framework"
)

// ShardMetadata identifies which shard of a sharded run produced an
// artifact.
type ShardMetadata struct {
	ShardIndex  int    `json:"shard_index"`
	ShardCount  int    `json:"shard_count"`
	AdapterName string `json:"adapter_name"`
}

// shardArtifact is the wire document exchanged between independently
// scheduled shard jobs. The key set is fixed: separate CI runners write
// these and a later combine step reads them, so the format is the
// compatibility contract.
type shardArtifact struct {
	ShardIndex  int                    `json:"shard_index"`
	ShardCount  int                    `json:"shard_count"`
	AdapterName string                 `json:"adapter_name"`
	Passed      int                    `json:"passed"`
	Failed      int                    `json:"failed"`
	Skipped     int                    `json:"skipped"`
	Errors      int                    `json:"errors"`
	DurationMS  float64                `json:"duration_ms"`
	Success     bool                   `json:"success"`
	TestCases   []framework.CaseResult `json:"test_cases"`
	Coverage    *coverage.Report       `json:"coverage"`
}

// WriteShardResult serializes one shard's run result plus its metadata
// to a JSON file, creating parent directories as needed. Absent
// coverage serializes as null, not an empty object.
func WriteShardResult(result *framework.RunResult, outputPath string, meta ShardMetadata) error {
	artifact := shardArtifact{
		ShardIndex:  meta.ShardIndex,
		ShardCount:  meta.ShardCount,
		AdapterName: meta.AdapterName,
		Passed:      result.Passed,
		Failed:      result.Failed,
		Skipped:     result.Skipped,
		Errors:      result.Errors,
		DurationMS:  result.DurationMS,
		Success:     result.Success,
		TestCases:   result.TestCases,
		Coverage:    result.Coverage,
	}
	if artifact.TestCases == nil {
		artifact.TestCases = []framework.CaseResult{}
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal shard result: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("write shard result: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write shard result: %w", err)
	}
	return nil
}

// ReadShardResult reads a shard artifact back into a run result and its
// metadata. I/O and decode errors surface to the caller; the codec does
// not retry.
func ReadShardResult(path string) (*framework.RunResult, ShardMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ShardMetadata{}, fmt.Errorf("read shard result: %w", err)
	}

	var artifact shardArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, ShardMetadata{}, fmt.Errorf("decode shard result %s: %w", path, err)
	}

	result := &framework.RunResult{
		Passed:     artifact.Passed,
		Failed:     artifact.Failed,
		Skipped:    artifact.Skipped,
		Errors:     artifact.Errors,
		DurationMS: artifact.DurationMS,
		Success:    artifact.Success,
		TestCases:  artifact.TestCases,
		Coverage:   artifact.Coverage,
	}
	meta := ShardMetadata{
		ShardIndex:  artifact.ShardIndex,
		ShardCount:  artifact.ShardCount,
		AdapterName: artifact.AdapterName,
	}
	return result, meta, nil
}
