package config

import (
	"errors"
	"fmt"
)

// Worker count bounds shared with the pool manager's live resize validation.
const (
	MinWorkers = 1
	MaxWorkers = 10
)

var knownPhases = map[string]struct{}{
	"metadata":            {},
	"thumbnail":           {},
	"sprites":             {},
	"animated_thumbnails": {},
	"fingerprint":         {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.Pools.Validate(); err != nil {
		return err
	}
	if err := c.Quality.Validate(); err != nil {
		return err
	}
	if err := c.validateTriggers(); err != nil {
		return err
	}
	if err := c.validateFingerprints(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.LibraryDir == "" {
		return errors.New("paths.library_dir must be set")
	}
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.ArtifactsDir == "" {
		return errors.New("paths.artifacts_dir must be set")
	}
	return nil
}

// Validate checks worker counts and queue limits against the supported ranges.
func (p Pools) Validate() error {
	counts := map[string]int{
		"pools.metadata_workers":    p.MetadataWorkers,
		"pools.thumbnail_workers":   p.ThumbnailWorkers,
		"pools.sprites_workers":     p.SpritesWorkers,
		"pools.animated_workers":    p.AnimatedWorkers,
		"pools.fingerprint_workers": p.FingerprintWorkers,
	}
	for name, count := range counts {
		if count < MinWorkers || count > MaxWorkers {
			return fmt.Errorf("%s must be between %d and %d, got %d", name, MinWorkers, MaxWorkers, count)
		}
	}
	if p.QueueDepth < 1 {
		return errors.New("pools.queue_depth must be at least 1")
	}
	if p.JobTimeout < 0 {
		return errors.New("pools.job_timeout must not be negative")
	}
	return nil
}

// Validate checks artifact quality tunables against the supported ranges.
func (q Quality) Validate() error {
	if q.JPEGQuality < 1 || q.JPEGQuality > 100 {
		return fmt.Errorf("quality.jpeg_quality must be between 1 and 100, got %d", q.JPEGQuality)
	}
	if q.ThumbnailWidth < 1 {
		return errors.New("quality.thumbnail_width must be positive")
	}
	if q.ThumbnailOffset < 0 || q.ThumbnailOffset > 100 {
		return errors.New("quality.thumbnail_offset must be a percentage between 0 and 100")
	}
	if q.SpriteInterval < 1 {
		return errors.New("quality.sprite_interval must be positive")
	}
	if q.SpriteColumns < 1 || q.SpriteRows < 1 {
		return errors.New("quality.sprite_columns and quality.sprite_rows must be positive")
	}
	if q.SpriteWidth < 1 {
		return errors.New("quality.sprite_width must be positive")
	}
	if q.PreviewSeconds < 1 {
		return errors.New("quality.preview_seconds must be positive")
	}
	if q.PreviewWidth < 1 {
		return errors.New("quality.preview_width must be positive")
	}
	if q.PreviewFPS < 1 {
		return errors.New("quality.preview_fps must be positive")
	}
	return nil
}

func (c *Config) validateTriggers() error {
	seen := make(map[string]struct{}, len(c.Triggers))
	for _, trigger := range c.Triggers {
		if _, ok := knownPhases[trigger.Phase]; !ok {
			return fmt.Errorf("triggers: unknown phase %q", trigger.Phase)
		}
		if _, dup := seen[trigger.Phase]; dup {
			return fmt.Errorf("triggers: phase %q configured more than once", trigger.Phase)
		}
		seen[trigger.Phase] = struct{}{}

		switch trigger.Run {
		case "on_import", "manual":
			if trigger.After != "" {
				return fmt.Errorf("triggers: phase %q sets after=%q but run is %q", trigger.Phase, trigger.After, trigger.Run)
			}
		case "after_job":
			if _, ok := knownPhases[trigger.After]; !ok {
				return fmt.Errorf("triggers: phase %q requires a known after phase, got %q", trigger.Phase, trigger.After)
			}
			if trigger.After == trigger.Phase {
				return fmt.Errorf("triggers: phase %q cannot trigger after itself", trigger.Phase)
			}
		default:
			return fmt.Errorf("triggers: phase %q has unsupported run mode %q", trigger.Phase, trigger.Run)
		}
	}
	return nil
}

func (c *Config) validateFingerprints() error {
	if !c.Fingerprints.Enabled {
		return nil
	}
	if c.Fingerprints.MatchThreshold < 0 || c.Fingerprints.MatchThreshold > 1 {
		return errors.New("fingerprints.match_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.shutdown_timeout":     c.Workflow.ShutdownTimeout,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.NtfyTopic != "" && c.Events.RequestTimeout <= 0 {
		return errors.New("events.request_timeout must be positive when events.ntfy_topic is set")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
