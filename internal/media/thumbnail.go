package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"telecine/internal/services"
)

// ThumbnailOptions controls cover thumbnail generation.
type ThumbnailOptions struct {
	// OffsetSeconds is where in the video the cover frame is taken.
	OffsetSeconds float64
	Width         int
	JPEGQuality   int
}

// Thumbnail extracts a single frame and writes a resized JPEG cover image.
// It returns the path of the written file.
func (g *Generator) Thumbnail(ctx context.Context, sceneID int64, input string, opts ThumbnailOptions) (string, error) {
	dir, err := g.SceneDir(sceneID)
	if err != nil {
		return "", err
	}

	raw := filepath.Join(dir, "cover_raw.png")
	defer os.Remove(raw)

	err = g.run(ctx, g.ffmpeg,
		"-y",
		"-ss", fmt.Sprintf("%.3f", opts.OffsetSeconds),
		"-i", input,
		"-frames:v", "1",
		raw,
	)
	if err != nil {
		return "", err
	}

	img, err := imaging.Open(raw)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "media", "thumbnail", "decode extracted frame", err)
	}
	resized := imaging.Resize(img, opts.Width, 0, imaging.Lanczos)

	out := filepath.Join(dir, "cover.jpg")
	if err := imaging.Save(resized, out, imaging.JPEGQuality(opts.JPEGQuality)); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "media", "thumbnail", "write cover image", err)
	}
	return out, nil
}
