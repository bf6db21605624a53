// Package sharding is the execution backbone: it discovers test files,
// partitions them across shards, drives parallel shard runs, merges the
// results, and codes shard artifacts for cross-job exchange.
package sharding

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Invalid shard parameters are programmer errors, not runtime
// conditions: they fail fast and are never recovered.
var (
	ErrInvalidShardCount = errors.New("shard_count must be >= 1")
	ErrInvalidShardIndex = errors.New("shard_index out of range")
)

// DiscoverTestFiles expands each glob pattern under root and returns
// the union of matches as a sorted, de-duplicated list of paths
// relative to root. No patterns or no matches yields an empty list, not
// an error.
func DiscoverTestFiles(root string, patterns []string) ([]string, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("discover test files: pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			seen[m] = struct{}{}
		}
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

// SplitIntoShards assigns file i to shard i mod shardCount. For a fixed
// shardCount the union over all shard indexes reconstructs the input
// exactly (no file duplicated or dropped).
func SplitIntoShards(files []string, shardIndex, shardCount int) ([]string, error) {
	if shardCount < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidShardCount, shardCount)
	}
	if shardIndex < 0 || shardIndex >= shardCount {
		return nil, fmt.Errorf("%w: index %d with %d shards", ErrInvalidShardIndex, shardIndex, shardCount)
	}

	var subset []string
	for i, f := range files {
		if i%shardCount == shardIndex {
			subset = append(subset, f)
		}
	}
	return subset, nil
}
