package media

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"telecine/internal/services"
)

// SpriteOptions controls scrubber sprite sheet generation.
type SpriteOptions struct {
	// IntervalSeconds is the spacing between captured frames.
	IntervalSeconds int
	Columns         int
	Rows            int
	// FrameWidth is the width of one grid cell; height follows the aspect ratio.
	FrameWidth  int
	JPEGQuality int
}

// SpriteResult names the two files a sprites run produces.
type SpriteResult struct {
	SheetPath string
	VTTPath   string
}

// Sprites captures frames at a fixed interval, composes them into a grid
// image, and writes a WebVTT cue file mapping timestamps to grid cells.
func (g *Generator) Sprites(ctx context.Context, sceneID int64, input string, duration float64, opts SpriteOptions) (*SpriteResult, error) {
	dir, err := g.SceneDir(sceneID)
	if err != nil {
		return nil, err
	}

	maxFrames := opts.Columns * opts.Rows
	frames := int(duration/float64(opts.IntervalSeconds)) + 1
	if frames > maxFrames {
		frames = maxFrames
	}
	if frames < 1 {
		frames = 1
	}

	tmpDir, err := os.MkdirTemp(dir, "sprites-")
	if err != nil {
		return nil, fmt.Errorf("create sprite temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	err = g.run(ctx, g.ffmpeg,
		"-y",
		"-i", input,
		"-vf", fmt.Sprintf("fps=1/%d,scale=%d:-1", opts.IntervalSeconds, opts.FrameWidth),
		"-frames:v", fmt.Sprintf("%d", frames),
		filepath.Join(tmpDir, "frame_%04d.jpg"),
	)
	if err != nil {
		return nil, err
	}

	paths, err := filepath.Glob(filepath.Join(tmpDir, "frame_*.jpg"))
	if err != nil || len(paths) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "media", "sprites", "no frames extracted from "+input, err)
	}
	sort.Strings(paths)

	images := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		img, err := imaging.Open(p)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "media", "sprites", "decode frame "+filepath.Base(p), err)
		}
		images = append(images, img)
	}

	cellW := images[0].Bounds().Dx()
	cellH := images[0].Bounds().Dy()
	sheet := imaging.New(opts.Columns*cellW, opts.Rows*cellH, image.Black)
	for i, img := range images {
		x := (i % opts.Columns) * cellW
		y := (i / opts.Columns) * cellH
		sheet = imaging.Paste(sheet, img, image.Pt(x, y))
	}

	sheetPath := filepath.Join(dir, "sprites.jpg")
	if err := imaging.Save(sheet, sheetPath, imaging.JPEGQuality(opts.JPEGQuality)); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "media", "sprites", "write sprite sheet", err)
	}

	vtt := BuildVTT(filepath.Base(sheetPath), len(images), float64(opts.IntervalSeconds), opts.Columns, cellW, cellH)
	vttPath := filepath.Join(dir, "sprites.vtt")
	if err := os.WriteFile(vttPath, []byte(vtt), 0o644); err != nil {
		return nil, fmt.Errorf("write sprite cues: %w", err)
	}

	return &SpriteResult{SheetPath: sheetPath, VTTPath: vttPath}, nil
}

// BuildVTT renders the WebVTT cue document for a sprite sheet. Each cue maps
// an interval of playback time to an #xywh media fragment inside the sheet.
func BuildVTT(sheetName string, frames int, interval float64, columns, cellW, cellH int) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for i := 0; i < frames; i++ {
		start := float64(i) * interval
		end := float64(i+1) * interval
		x := (i % columns) * cellW
		y := (i / columns) * cellH
		b.WriteString("\n")
		b.WriteString(vttTimestamp(start))
		b.WriteString(" --> ")
		b.WriteString(vttTimestamp(end))
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s#xywh=%d,%d,%d,%d\n", sheetName, x, y, cellW, cellH)
	}
	return b.String()
}

func vttTimestamp(seconds float64) string {
	total := int(seconds)
	millis := int((seconds - float64(total)) * 1000)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, millis)
}
