package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"

	"telecine/internal/services"
)

// visualFrameCount is the number of evenly spaced frames hashed for the
// visual fingerprint.
const visualFrameCount = 10

// AudioFingerprint runs chromaprint's fpcalc and returns the compressed
// fingerprint string.
func (g *Generator) AudioFingerprint(ctx context.Context, input string) (string, error) {
	cmd := exec.CommandContext(ctx, g.fpcalc, "-json", input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", services.Wrap(services.ErrExternalTool, "media", "fpcalc", stderrTail(&stderr), err)
	}

	var out struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "media", "fpcalc", "unparseable output", err)
	}
	if out.Fingerprint == "" {
		return "", services.Wrap(services.ErrExternalTool, "media", "fpcalc", "empty fingerprint for "+input, nil)
	}
	return out.Fingerprint, nil
}

// VisualFingerprint samples frames across the video, difference-hashes each,
// and returns the hashes in the serialized form ParseHashes accepts.
func (g *Generator) VisualFingerprint(ctx context.Context, sceneID int64, input string, duration float64) (string, error) {
	dir, err := g.SceneDir(sceneID)
	if err != nil {
		return "", err
	}
	tmpDir, err := os.MkdirTemp(dir, "dhash-")
	if err != nil {
		return "", fmt.Errorf("create fingerprint temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	interval := duration / float64(visualFrameCount+1)
	if interval <= 0 {
		interval = 1
	}
	err = g.run(ctx, g.ffmpeg,
		"-y",
		"-i", input,
		"-vf", fmt.Sprintf("fps=1/%.3f,scale=%d:%d", interval, dhashWidth, dhashHeight),
		"-frames:v", fmt.Sprintf("%d", visualFrameCount),
		filepath.Join(tmpDir, "hash_%04d.png"),
	)
	if err != nil {
		return "", err
	}

	paths, err := filepath.Glob(filepath.Join(tmpDir, "hash_*.png"))
	if err != nil || len(paths) == 0 {
		return "", services.Wrap(services.ErrExternalTool, "media", "dhash", "no frames extracted from "+input, err)
	}
	sort.Strings(paths)

	hashes := make([]uint64, 0, len(paths))
	for _, p := range paths {
		img, err := imaging.Open(p)
		if err != nil {
			return "", services.Wrap(services.ErrExternalTool, "media", "dhash", "decode frame "+filepath.Base(p), err)
		}
		hashes = append(hashes, DHash(img))
	}
	return FormatHashes(hashes), nil
}
