package config

const (
	defaultLibraryDir   = "~/videos"
	defaultDataDir      = "~/.local/share/telecine"
	defaultArtifactsDir = "~/.local/share/telecine/artifacts"
	defaultLogDir       = "~/.local/share/telecine/logs"
	defaultMetricsBind  = "127.0.0.1:9712"

	defaultQueueDepth = 64
	defaultJobTimeout = 600

	defaultJPEGQuality     = 85
	defaultThumbnailWidth  = 640
	defaultThumbnailOffset = 10
	defaultSpriteInterval  = 10
	defaultSpriteColumns   = 9
	defaultSpriteRows      = 9
	defaultSpriteWidth     = 160
	defaultPreviewSeconds  = 4
	defaultPreviewWidth    = 320
	defaultPreviewFPS      = 12

	defaultEventsRequestTimeout = 10
	defaultNATSSubject          = "telecine.events"
	defaultMatchThreshold       = 0.85

	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultShutdownTimeout    = 60

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir:   defaultLibraryDir,
			DataDir:      defaultDataDir,
			ArtifactsDir: defaultArtifactsDir,
			LogDir:       defaultLogDir,
			MetricsBind:  defaultMetricsBind,
		},
		Pools: Pools{
			MetadataWorkers:    2,
			ThumbnailWorkers:   2,
			SpritesWorkers:     1,
			AnimatedWorkers:    1,
			FingerprintWorkers: 1,
			QueueDepth:         defaultQueueDepth,
			JobTimeout:         defaultJobTimeout,
		},
		Quality: Quality{
			JPEGQuality:     defaultJPEGQuality,
			ThumbnailWidth:  defaultThumbnailWidth,
			ThumbnailOffset: defaultThumbnailOffset,
			SpriteInterval:  defaultSpriteInterval,
			SpriteColumns:   defaultSpriteColumns,
			SpriteRows:      defaultSpriteRows,
			SpriteWidth:     defaultSpriteWidth,
			PreviewSeconds:  defaultPreviewSeconds,
			PreviewWidth:    defaultPreviewWidth,
			PreviewFPS:      defaultPreviewFPS,
		},
		Triggers: []Trigger{
			{Phase: "metadata", Run: "on_import"},
			{Phase: "thumbnail", Run: "after_job", After: "metadata"},
			{Phase: "sprites", Run: "after_job", After: "metadata"},
		},
		Fingerprints: Fingerprints{
			Enabled:        false,
			MatchThreshold: defaultMatchThreshold,
		},
		Events: Events{
			RequestTimeout: defaultEventsRequestTimeout,
			NATSSubject:    defaultNATSSubject,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			ShutdownTimeout:    defaultShutdownTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
