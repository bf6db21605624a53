package sharding

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"testhive/internal/mapping"
)

// DefaultRiskScore is assigned to test files that cannot be mapped to
// any scored source file. Medium rather than zero: an unmapped test must
// not sink to the bottom of every shard.
const DefaultRiskScore = 0.5

// RiskScore is the composite risk estimate for one test file.
type RiskScore struct {
	FilePath string
	Score    float64
	Reasons  []string
}

// PrioritizedTestPlan is the risk-sorted test order produced by
// Prioritize. TestFiles and RiskScores run in the same order, highest
// score first.
type PrioritizedTestPlan struct {
	TestFiles  []string
	RiskScores []RiskScore
}

// PrioritizeOptions tunes the prioritizer. The zero value uses
// DefaultRiskScore for unmapped tests.
type PrioritizeOptions struct {
	// DefaultScore overrides the score assigned to unmapped tests when
	// positive.
	DefaultScore float64
}

// Prioritize sorts test files by descending risk. Each test's score is
// the maximum risk across the source files the mapper links it to;
// tests with no mapping, a failing mapper, or only unscored sources get
// the default score. The sort is stable, so ties keep discovery order.
func Prioritize(testFiles []string, riskReport map[string]float64, mapper mapping.TestMapper, opts PrioritizeOptions) PrioritizedTestPlan {
	defaultScore := opts.DefaultScore
	if defaultScore <= 0 {
		defaultScore = DefaultRiskScore
	}

	scored := make([]RiskScore, 0, len(testFiles))
	for _, tf := range testFiles {
		var sourceFiles []string
		if mapper != nil {
			if mapped, err := mapper.MapTestToSources(tf); err == nil {
				sourceFiles = mapped.SourceFiles
			}
		}

		maxScore := 0.0
		var reasons []string
		for _, sf := range sourceFiles {
			score, ok := riskReport[sf]
			if !ok {
				continue
			}
			if score > maxScore {
				maxScore = score
			}
			reasons = append(reasons, fmt.Sprintf("source %s: %.2f", sf, score))
		}

		if len(reasons) == 0 {
			scored = append(scored, RiskScore{
				FilePath: tf,
				Score:    defaultScore,
				Reasons:  []string{"no source mapping -- default score"},
			})
			continue
		}
		scored = append(scored, RiskScore{FilePath: tf, Score: maxScore, Reasons: reasons})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	files := make([]string, len(scored))
	for i, rs := range scored {
		files[i] = rs.FilePath
	}
	return PrioritizedTestPlan{TestFiles: files, RiskScores: scored}
}

// LoadRiskReport reads a risk report file: a JSON object mapping source
// file paths to scores in [0,1].
func LoadRiskReport(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read risk report: %w", err)
	}
	var report map[string]float64
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode risk report %s: %w", path, err)
	}
	return report, nil
}

// DistributePrioritizedShards round-robins the pre-sorted plan across
// shards. Sorting before splitting is the point: every shard gets an
// interleaved mix of high/medium/low risk tests instead of shard 0
// hoarding all the high-risk ones.
func DistributePrioritizedShards(plan PrioritizedTestPlan, shardIndex, shardCount int) ([]string, error) {
	return SplitIntoShards(plan.TestFiles, shardIndex, shardCount)
}
