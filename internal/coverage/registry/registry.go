// Package registry enumerates the closed set of coverage adapters and
// picks the one that applies to a project.
package registry

import (
	"go.uber.org/zap"

	"testhive/internal/coverage"
	"testhive/internal/coverage/gocover"
	"testhive/internal/coverage/jacoco"
	"testhive/internal/coverage/lcov"
)

// All returns every known coverage adapter, in detection-priority order.
func All(logger *zap.Logger) []coverage.Adapter {
	return []coverage.Adapter{
		gocover.New(logger),
		lcov.New(logger),
		jacoco.New(logger),
	}
}

// Detect returns the first adapter whose Detect matches projectRoot, or
// nil when none applies.
func Detect(projectRoot string, logger *zap.Logger) coverage.Adapter {
	for _, a := range All(logger) {
		if a.Detect(projectRoot) {
			return a
		}
	}
	return nil
}

// ByName returns the adapter with the given name, or nil.
func ByName(name string, logger *zap.Logger) coverage.Adapter {
	for _, a := range All(logger) {
		if a.Name() == name {
			return a
		}
	}
	return nil
}
