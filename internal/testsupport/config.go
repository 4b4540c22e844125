// Package testsupport provides shared helpers for package tests: temp-dir
// configs, store openers, and geometry fixtures.
package testsupport

import (
	"path/filepath"
	"testing"

	"facet/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMinImages overrides the reconstruction minimum on the test config.
func WithMinImages(minimum int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Capture.MinImagesForReconstruction = minimum
	}
}

// WithMaxImages overrides the per-session image cap on the test config.
func WithMaxImages(maximum int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Capture.MaxImagesPerSession = maximum
	}
}

// WithWorkers sets the worker pool and queue dimensions on the test config.
func WithWorkers(workers, queueSize int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.JobWorkers = workers
		cfg.Workflow.JobQueueSize = queueSize
	}
}
