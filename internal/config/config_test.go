package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"telecine/internal/config"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestPoolsValidateWorkerBounds(t *testing.T) {
	cfg := config.Default()

	cfg.Pools.SpritesWorkers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero workers accepted")
	}

	cfg = config.Default()
	cfg.Pools.ThumbnailWorkers = config.MaxWorkers + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("oversized worker count accepted")
	}

	cfg = config.Default()
	cfg.Pools.QueueDepth = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero queue depth accepted")
	}
}

func TestQualityValidateThumbnailOffset(t *testing.T) {
	cfg := config.Default()
	cfg.Quality.ThumbnailOffset = 101
	if err := cfg.Validate(); err == nil {
		t.Fatal("offset above 100 percent accepted")
	}
}

func TestTriggerValidation(t *testing.T) {
	cases := []struct {
		name    string
		trigger config.Trigger
	}{
		{"unknown phase", config.Trigger{Phase: "transcode", Run: "on_import"}},
		{"unknown run mode", config.Trigger{Phase: "metadata", Run: "nightly"}},
		{"after with on_import", config.Trigger{Phase: "metadata", Run: "on_import", After: "thumbnail"}},
		{"after_job without predecessor", config.Trigger{Phase: "thumbnail", Run: "after_job"}},
		{"self trigger", config.Trigger{Phase: "sprites", Run: "after_job", After: "sprites"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Triggers = []config.Trigger{tc.trigger}
			if err := cfg.Validate(); err == nil {
				t.Fatalf("trigger accepted: %+v", tc.trigger)
			}
		})
	}
}

func TestTriggerDuplicatePhaseRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Triggers = []config.Trigger{
		{Phase: "thumbnail", Run: "after_job", After: "metadata"},
		{Phase: "thumbnail", Run: "manual"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("duplicate trigger phase accepted")
	}
}

func TestFingerprintThresholdCheckedOnlyWhenEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Fingerprints.Enabled = false
	cfg.Fingerprints.MatchThreshold = 5
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled fingerprints should skip threshold check: %v", err)
	}

	cfg.Fingerprints.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("out-of-range threshold accepted")
	}
}

func TestEventsRequestTimeoutRequiredWithTopic(t *testing.T) {
	cfg := config.Default()
	cfg.Events.NtfyTopic = "telecine"
	cfg.Events.RequestTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero request timeout accepted with ntfy topic set")
	}
}

func TestLoadNormalizesTriggerCase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
library_dir = "` + filepath.Join(dir, "library") + `"
data_dir = "` + filepath.Join(dir, "data") + `"
artifacts_dir = "` + filepath.Join(dir, "artifacts") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[[triggers]]
phase = "Thumbnail"
run = "AFTER_JOB"
after = "Metadata"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, loadedPath, found, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !found || loadedPath != path {
		t.Fatalf("unexpected load result: found=%v path=%q", found, loadedPath)
	}
	if cfg.Triggers[0].Phase != "thumbnail" || cfg.Triggers[0].Run != "after_job" || cfg.Triggers[0].After != "metadata" {
		t.Fatalf("trigger not normalized: %+v", cfg.Triggers[0])
	}
	if cfg.Pools.QueueDepth == 0 {
		t.Fatal("defaults not applied under loaded file")
	}
}
