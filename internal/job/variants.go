package job

import (
	"context"
	"errors"
	"fmt"

	"telecine/internal/media"
)

// Metadata probes container and stream information for a scene.
type Metadata struct {
	base
	Path  string
	Probe func(ctx context.Context, path string) (*media.Probe, error)

	Result *media.Probe
}

// NewMetadata constructs a metadata job for the given scene and file.
func NewMetadata(sceneID int64, path string, probe func(ctx context.Context, path string) (*media.Probe, error)) *Metadata {
	return &Metadata{base: newBase(sceneID), Path: path, Probe: probe}
}

func (j *Metadata) Phase() Phase { return PhaseMetadata }

func (j *Metadata) Execute(ctx context.Context) error {
	result, err := j.Probe(ctx, j.Path)
	if err != nil {
		return j.observe(ctx, err)
	}
	j.Result = result
	return nil
}

// Thumbnail extracts and resizes a cover frame.
type Thumbnail struct {
	base
	Path     string
	Options  media.ThumbnailOptions
	Generate func(ctx context.Context, sceneID int64, input string, opts media.ThumbnailOptions) (string, error)

	OutputPath string
}

// NewThumbnail constructs a thumbnail job.
func NewThumbnail(sceneID int64, path string, opts media.ThumbnailOptions, generate func(ctx context.Context, sceneID int64, input string, opts media.ThumbnailOptions) (string, error)) *Thumbnail {
	return &Thumbnail{base: newBase(sceneID), Path: path, Options: opts, Generate: generate}
}

func (j *Thumbnail) Phase() Phase { return PhaseThumbnail }

func (j *Thumbnail) Execute(ctx context.Context) error {
	out, err := j.Generate(ctx, j.SceneID(), j.Path, j.Options)
	if err != nil {
		return j.observe(ctx, err)
	}
	j.OutputPath = out
	return nil
}

// Sprites builds the scrubber sprite sheet and its WebVTT cue file.
type Sprites struct {
	base
	Path     string
	Duration float64
	Options  media.SpriteOptions
	Generate func(ctx context.Context, sceneID int64, input string, duration float64, opts media.SpriteOptions) (*media.SpriteResult, error)

	Result *media.SpriteResult
}

// NewSprites constructs a sprites job. Duration comes from the completed
// metadata phase.
func NewSprites(sceneID int64, path string, duration float64, opts media.SpriteOptions, generate func(ctx context.Context, sceneID int64, input string, duration float64, opts media.SpriteOptions) (*media.SpriteResult, error)) *Sprites {
	return &Sprites{base: newBase(sceneID), Path: path, Duration: duration, Options: opts, Generate: generate}
}

func (j *Sprites) Phase() Phase { return PhaseSprites }

func (j *Sprites) Execute(ctx context.Context) error {
	result, err := j.Generate(ctx, j.SceneID(), j.Path, j.Duration, j.Options)
	if err != nil {
		return j.observe(ctx, err)
	}
	j.Result = result
	return nil
}

// Animated produces a short looping preview clip.
type Animated struct {
	base
	Path     string
	Duration float64
	Options  media.PreviewOptions
	Generate func(ctx context.Context, sceneID int64, input string, duration float64, opts media.PreviewOptions) (string, error)

	OutputPath string
}

// NewAnimated constructs an animated preview job.
func NewAnimated(sceneID int64, path string, duration float64, opts media.PreviewOptions, generate func(ctx context.Context, sceneID int64, input string, duration float64, opts media.PreviewOptions) (string, error)) *Animated {
	return &Animated{base: newBase(sceneID), Path: path, Duration: duration, Options: opts, Generate: generate}
}

func (j *Animated) Phase() Phase { return PhaseAnimated }

func (j *Animated) Execute(ctx context.Context) error {
	out, err := j.Generate(ctx, j.SceneID(), j.Path, j.Duration, j.Options)
	if err != nil {
		return j.observe(ctx, err)
	}
	j.OutputPath = out
	return nil
}

// Fingerprint extracts perceptual fingerprints in up to two modes. Losing one
// mode is tolerated: the job completes with whatever was extracted, recording
// the other failure as a warning, as long as at least one mode succeeded.
type Fingerprint struct {
	base
	Path     string
	Duration float64
	Audio    func(ctx context.Context, input string) (string, error)
	Visual   func(ctx context.Context, sceneID int64, input string, duration float64) (string, error)

	AudioFP  string
	VisualFP string
	Warnings []string
}

// NewFingerprint constructs a fingerprint job. Either extractor may be nil to
// skip that mode.
func NewFingerprint(sceneID int64, path string, duration float64, audio func(ctx context.Context, input string) (string, error), visual func(ctx context.Context, sceneID int64, input string, duration float64) (string, error)) *Fingerprint {
	return &Fingerprint{base: newBase(sceneID), Path: path, Duration: duration, Audio: audio, Visual: visual}
}

func (j *Fingerprint) Phase() Phase { return PhaseFingerprint }

func (j *Fingerprint) Execute(ctx context.Context) error {
	var audioErr, visualErr error

	if j.Audio != nil {
		fp, err := j.Audio(ctx, j.Path)
		if err != nil {
			audioErr = err
		} else {
			j.AudioFP = fp
		}
	}
	if ctx.Err() != nil {
		return j.observe(ctx, ctx.Err())
	}
	if j.Visual != nil {
		fp, err := j.Visual(ctx, j.SceneID(), j.Path, j.Duration)
		if err != nil {
			visualErr = err
		} else {
			j.VisualFP = fp
		}
	}
	if ctx.Err() != nil {
		return j.observe(ctx, ctx.Err())
	}

	if j.AudioFP == "" && j.VisualFP == "" {
		err := errors.Join(audioErr, visualErr)
		if err == nil {
			err = errors.New("no fingerprint extractors configured")
		}
		return j.observe(ctx, err)
	}

	if audioErr != nil {
		j.Warnings = append(j.Warnings, fmt.Sprintf("audio fingerprint: %v", audioErr))
	}
	if visualErr != nil {
		j.Warnings = append(j.Warnings, fmt.Sprintf("visual fingerprint: %v", visualErr))
	}
	return nil
}
