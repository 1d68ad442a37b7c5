package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"telecine/internal/config"
	"telecine/internal/services"
)

// Generator wraps the external extraction tools behind context-aware methods.
// All artifact paths it produces live under the configured artifacts
// directory, sharded by scene id.
type Generator struct {
	ffmpeg       string
	ffprobe      string
	fpcalc       string
	artifactsDir string
}

// NewGenerator builds a Generator from application config.
func NewGenerator(cfg *config.Config) *Generator {
	return &Generator{
		ffmpeg:       cfg.FFmpegBinary(),
		ffprobe:      cfg.FFprobeBinary(),
		fpcalc:       cfg.FpcalcBinary(),
		artifactsDir: cfg.Paths.ArtifactsDir,
	}
}

// SceneDir returns the artifact directory for a scene, creating it on demand.
func (g *Generator) SceneDir(sceneID int64) (string, error) {
	dir := sceneArtifactDir(g.artifactsDir, sceneID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir %q: %w", dir, err)
	}
	return dir, nil
}

// sceneArtifactDir shards scenes into 256 buckets so a large library does not
// produce a single directory with tens of thousands of entries.
func sceneArtifactDir(root string, sceneID int64) string {
	shard := fmt.Sprintf("%02x", sceneID%256)
	return filepath.Join(root, shard, fmt.Sprintf("%d", sceneID))
}

func (g *Generator) run(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// Context errors take precedence so the pool can classify
		// timeout vs cancellation from the returned error chain.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrExternalTool, "media", filepath.Base(bin), stderrTail(&stderr), err)
	}
	return nil
}

// stderrTail keeps the last few lines of tool output, which is where ffmpeg
// puts the actual failure reason.
func stderrTail(buf *bytes.Buffer) string {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	const keep = 3
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}
