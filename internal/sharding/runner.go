package sharding

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"testhive/internal/framework"
)

const (
	defaultShardCount       = 4
	defaultMinFilesForShard = 8
	defaultShardTimeout     = 120 * time.Second
)

// ParallelRunConfig configures automatic sharded execution.
type ParallelRunConfig struct {
	// ShardCount is the number of parallel shards.
	ShardCount int

	// MinFilesForSharding is the minimum discovered-file count required
	// to enable sharding at all.
	MinFilesForSharding int

	// Timeout applies per shard and is enforced by the adapter.
	Timeout time.Duration
}

// DefaultParallelRunConfig returns the standard configuration.
func DefaultParallelRunConfig() ParallelRunConfig {
	return ParallelRunConfig{
		ShardCount:          defaultShardCount,
		MinFilesForSharding: defaultMinFilesForShard,
		Timeout:             defaultShardTimeout,
	}
}

func (c ParallelRunConfig) withDefaults() ParallelRunConfig {
	if c.ShardCount <= 0 {
		c.ShardCount = defaultShardCount
	}
	if c.MinFilesForSharding <= 0 {
		c.MinFilesForSharding = defaultMinFilesForShard
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultShardTimeout
	}
	return c
}

// RunTestsParallel discovers test files, splits them across shards,
// runs each shard concurrently through the adapter, and merges the
// results.
//
// The run degrades rather than fails: discovery errors, too few files,
// a single effective shard, or every shard failing all fall back to one
// direct unsharded run. A shard failure never cancels its siblings, and
// shards that did succeed are still merged. The worst outcome sharding
// can ever produce is "ran unsharded".
func RunTestsParallel(ctx context.Context, adapter framework.Adapter, projectRoot string, cfg ParallelRunConfig, logger *zap.Logger) (*framework.RunResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	direct := func() (*framework.RunResult, error) {
		return adapter.RunTests(ctx, projectRoot, framework.RunOptions{Timeout: cfg.Timeout})
	}

	allFiles, err := DiscoverTestFiles(projectRoot, adapter.TestPatterns())
	if err != nil {
		logger.Debug("test file discovery failed, falling back to single run", zap.Error(err))
		return direct()
	}

	effectiveShards := cfg.ShardCount
	if len(allFiles) < effectiveShards {
		effectiveShards = len(allFiles)
	}
	if len(allFiles) < cfg.MinFilesForSharding || effectiveShards <= 1 {
		return direct()
	}

	logger.Info("running sharded",
		zap.Int("test_files", len(allFiles)),
		zap.Int("shards", effectiveShards))

	// Fan out one adapter invocation per shard. Each goroutine owns its
	// slot in the results slice, so no shard observes another's state;
	// failures are collected as data, never returned into the group.
	type shardOutcome struct {
		result *framework.RunResult
		err    error
	}
	outcomes := make([]shardOutcome, effectiveShards)

	var eg errgroup.Group
	for i := 0; i < effectiveShards; i++ {
		subset, splitErr := SplitIntoShards(allFiles, i, effectiveShards)
		if splitErr != nil {
			return nil, splitErr
		}
		idx := i
		eg.Go(func() error {
			result, runErr := adapter.RunTests(ctx, projectRoot, framework.RunOptions{
				TestFiles: subset,
				Timeout:   cfg.Timeout,
			})
			outcomes[idx] = shardOutcome{result: result, err: runErr}
			return nil
		})
	}
	_ = eg.Wait()

	var successful []*framework.RunResult
	for i, outcome := range outcomes {
		if outcome.err != nil || outcome.result == nil {
			logger.Warn("shard failed", zap.Int("shard", i), zap.Error(outcome.err))
			continue
		}
		successful = append(successful, outcome.result)
	}

	if len(successful) == 0 {
		logger.Warn("all shards failed, falling back to single run")
		return direct()
	}

	return MergeRunResults(successful), nil
}
