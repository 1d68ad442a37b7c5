package media

import (
	"context"
	"fmt"
	"path/filepath"
)

// PreviewOptions controls animated preview generation.
type PreviewOptions struct {
	Seconds int
	Width   int
	FPS     int
}

// Preview writes a short looping WebP animation sampled from a quarter of the
// way into the video, where title cards are usually over.
func (g *Generator) Preview(ctx context.Context, sceneID int64, input string, duration float64, opts PreviewOptions) (string, error) {
	dir, err := g.SceneDir(sceneID)
	if err != nil {
		return "", err
	}

	start := duration * 0.25
	if start+float64(opts.Seconds) > duration {
		start = 0
	}

	out := filepath.Join(dir, "preview.webp")
	err = g.run(ctx, g.ffmpeg,
		"-y",
		"-ss", fmt.Sprintf("%.3f", start),
		"-t", fmt.Sprintf("%d", opts.Seconds),
		"-i", input,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", opts.FPS, opts.Width),
		"-loop", "0",
		"-an",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}
