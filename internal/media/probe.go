package media

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"telecine/internal/services"
)

// Probe holds the subset of ffprobe output the pipeline persists.
type Probe struct {
	Duration   float64
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	BitRate    int64
	Size       int64
	Container  string
}

type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		Size       string `json:"size"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// ProbeFile extracts container and stream metadata from the given video file.
func (g *Generator) ProbeFile(ctx context.Context, path string) (*Probe, error) {
	cmd := exec.CommandContext(ctx, g.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrExternalTool, "media", "ffprobe", stderrTail(&stderr), err)
	}

	var raw ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "media", "ffprobe", "unparseable output", err)
	}

	probe := &Probe{
		Duration:  parseFloat(raw.Format.Duration),
		BitRate:   parseInt(raw.Format.BitRate),
		Size:      parseInt(raw.Format.Size),
		Container: raw.Format.FormatName,
	}
	for _, stream := range raw.Streams {
		switch stream.CodecType {
		case "video":
			if probe.VideoCodec == "" {
				probe.VideoCodec = stream.CodecName
				probe.Width = stream.Width
				probe.Height = stream.Height
			}
		case "audio":
			if probe.AudioCodec == "" {
				probe.AudioCodec = stream.CodecName
			}
		}
	}

	if probe.Duration <= 0 {
		return nil, services.Wrap(services.ErrValidation, "media", "ffprobe", "no duration reported for "+path, nil)
	}
	return probe, nil
}

func parseFloat(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(value string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
