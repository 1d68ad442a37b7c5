package media

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"telecine/internal/logging"
)

// MigrateLegacyArtifacts moves flat <scene-id>.jpg covers from the artifacts
// root into the sharded per-scene layout. Earlier releases wrote everything
// into one directory; new thumbnail jobs would otherwise collide with the old
// files. Returns the number of files moved.
func MigrateLegacyArtifacts(artifactsDir string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(artifactsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	moved := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".jpg") {
			continue
		}
		sceneID, err := strconv.ParseInt(strings.TrimSuffix(name, ".jpg"), 10, 64)
		if err != nil {
			continue
		}

		dir := sceneArtifactDir(artifactsDir, sceneID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return moved, err
		}
		src := filepath.Join(artifactsDir, name)
		dst := filepath.Join(dir, "cover.jpg")
		if err := os.Rename(src, dst); err != nil {
			logger.Warn("legacy artifact move failed",
				logging.String("file", name),
				logging.Error(err),
			)
			continue
		}
		moved++
	}

	if moved > 0 {
		logger.Info("migrated legacy artifacts",
			logging.Int("moved", moved),
			logging.String("dir", artifactsDir),
		)
	}
	return moved, nil
}
