// Package mapping defines the test-to-source mapping collaborator used
// by the risk prioritizer, plus a bounded cache wrapper for mappers
// whose lookups are expensive (AST walks, import graphs).
package mapping

import (
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TestMapping links one test file to the source files it exercises.
type TestMapping struct {
	TestFile    string
	SourceFiles []string
}

// TestMapper resolves which source files a test file exercises. The
// implementation lives outside this core (static analysis, import
// graphs); tests use fakes.
type TestMapper interface {
	MapTestToSources(testFile string) (TestMapping, error)
}

type cacheKey struct {
	path  string
	mtime int64
}

// CachedMapper wraps a TestMapper with a bounded LRU keyed by path and
// modification time, so edits to a test file invalidate its entry
// without any global state.
type CachedMapper struct {
	inner TestMapper
	cache *lru.Cache[cacheKey, TestMapping]
}

// NewCachedMapper wraps inner with a cache of at most size entries.
func NewCachedMapper(inner TestMapper, size int) (*CachedMapper, error) {
	cache, err := lru.New[cacheKey, TestMapping](size)
	if err != nil {
		return nil, fmt.Errorf("mapping cache: %w", err)
	}
	return &CachedMapper{inner: inner, cache: cache}, nil
}

// MapTestToSources returns the cached mapping when the file has not
// changed since it was cached, otherwise delegates to the inner mapper.
func (m *CachedMapper) MapTestToSources(testFile string) (TestMapping, error) {
	key := cacheKey{path: testFile}
	if info, err := os.Stat(testFile); err == nil {
		key.mtime = info.ModTime().UnixNano()
	}

	if cached, ok := m.cache.Get(key); ok {
		return cached, nil
	}

	mapped, err := m.inner.MapTestToSources(testFile)
	if err != nil {
		return TestMapping{}, err
	}
	m.cache.Add(key, mapped)
	return mapped, nil
}
