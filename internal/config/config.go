package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	LibraryDir   string `toml:"library_dir"`
	DataDir      string `toml:"data_dir"`
	ArtifactsDir string `toml:"artifacts_dir"`
	LogDir       string `toml:"log_dir"`
	MetricsBind  string `toml:"metrics_bind"`
}

// Pools contains per-phase worker counts and shared pool limits.
type Pools struct {
	MetadataWorkers    int `toml:"metadata_workers"`
	ThumbnailWorkers   int `toml:"thumbnail_workers"`
	SpritesWorkers     int `toml:"sprites_workers"`
	AnimatedWorkers    int `toml:"animated_workers"`
	FingerprintWorkers int `toml:"fingerprint_workers"`
	QueueDepth         int `toml:"queue_depth"`
	JobTimeout         int `toml:"job_timeout"`
}

// Quality contains tunables for generated artifacts.
type Quality struct {
	JPEGQuality     int `toml:"jpeg_quality"`
	ThumbnailWidth  int `toml:"thumbnail_width"`
	ThumbnailOffset int `toml:"thumbnail_offset"`
	SpriteInterval  int `toml:"sprite_interval"`
	SpriteColumns   int `toml:"sprite_columns"`
	SpriteRows      int `toml:"sprite_rows"`
	SpriteWidth     int `toml:"sprite_width"`
	PreviewSeconds  int `toml:"preview_seconds"`
	PreviewWidth    int `toml:"preview_width"`
	PreviewFPS      int `toml:"preview_fps"`
}

// Trigger declares when a phase runs automatically.
type Trigger struct {
	Phase string `toml:"phase"`
	Run   string `toml:"run"`
	After string `toml:"after"`
}

// Fingerprints contains configuration for duplicate detection.
type Fingerprints struct {
	Enabled        bool    `toml:"enabled"`
	FpcalcBinary   string  `toml:"fpcalc_binary"`
	MatchThreshold float64 `toml:"match_threshold"`
}

// Events contains configuration for event publishing.
type Events struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	NATSURL        string `toml:"nats_url"`
	NATSSubject    string `toml:"nats_subject"`
}

// Workflow contains daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	ShutdownTimeout    int `toml:"shutdown_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Telecine.
//
// Configuration sections by subsystem:
//   - Paths: library, database, artifact, and log locations
//   - Pools: per-phase worker counts and queue limits
//   - Quality: thumbnail, sprite sheet, and preview tunables
//   - Triggers: which phases run automatically and after what
//   - Fingerprints: perceptual fingerprinting for duplicate detection
//   - Events: ntfy and NATS event publishing
//   - Workflow: daemon polling intervals and shutdown timeout
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Pools        Pools        `toml:"pools"`
	Quality      Quality      `toml:"quality"`
	Triggers     []Trigger    `toml:"triggers"`
	Fingerprints Fingerprints `toml:"fingerprints"`
	Events       Events       `toml:"events"`
	Workflow     Workflow     `toml:"workflow"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/telecine/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/telecine/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("telecine.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.ArtifactsDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for artifact generation.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for metadata extraction.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// FpcalcBinary returns the chromaprint executable used for audio fingerprints.
func (c *Config) FpcalcBinary() string {
	if bin := strings.TrimSpace(c.Fingerprints.FpcalcBinary); bin != "" {
		return bin
	}
	return "fpcalc"
}

// DatabasePath returns the on-disk location of the scene and queue database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "telecine.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
