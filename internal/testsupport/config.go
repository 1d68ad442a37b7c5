package testsupport

import (
	"path/filepath"
	"testing"

	"telecine/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.ArtifactsDir = filepath.Join(base, "artifacts")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.MetricsBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithFingerprints enables the fingerprint phase on the test config.
func WithFingerprints(threshold float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Fingerprints.Enabled = true
		cfg.Fingerprints.MatchThreshold = threshold
	}
}

// WithWorkers sets every phase pool to the same worker count.
func WithWorkers(workers int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pools.MetadataWorkers = workers
		cfg.Pools.ThumbnailWorkers = workers
		cfg.Pools.SpritesWorkers = workers
		cfg.Pools.AnimatedWorkers = workers
		cfg.Pools.FingerprintWorkers = workers
	}
}
