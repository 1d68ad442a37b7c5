package events

import (
	"context"

	"telecine/internal/config"
)

// Event names published as phases complete or fail.
type Event string

const (
	EventMetadataComplete    Event = "metadata_complete"
	EventThumbnailComplete   Event = "thumbnail_complete"
	EventSpritesComplete     Event = "sprites_complete"
	EventAnimatedComplete    Event = "animated_thumbnails_complete"
	EventFingerprintComplete Event = "fingerprint_complete"
	EventPipelineComplete    Event = "pipeline_complete"
	EventPhaseFailed         Event = "phase_failed"
	EventPhaseCancelled      Event = "phase_cancelled"
	EventPhaseTimedOut       Event = "phase_timed_out"
)

// Payload carries event-specific fields such as scene id, phase, and
// artifact paths.
type Payload map[string]any

// Publisher delivers events to an external sink. Publish failures are
// logged by callers and never fail the pipeline.
type Publisher interface {
	Publish(ctx context.Context, event Event, payload Payload) error
	Close() error
}

// Noop discards all events.
type Noop struct{}

func (Noop) Publish(context.Context, Event, Payload) error { return nil }

func (Noop) Close() error { return nil }

// Fanout publishes each event to every sink, returning the first error
// after attempting all of them.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event, payload Payload) error {
	var firstErr error
	for _, p := range f {
		if err := p.Publish(ctx, event, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f Fanout) Close() error {
	var firstErr error
	for _, p := range f {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewFromConfig assembles the configured sinks. With nothing configured the
// returned publisher discards events.
func NewFromConfig(cfg *config.Config) (Publisher, error) {
	var sinks Fanout
	if notifier := NewNtfy(cfg); notifier != nil {
		sinks = append(sinks, notifier)
	}
	if cfg.Events.NATSURL != "" {
		bus, err := ConnectNATS(cfg.Events.NATSURL, cfg.Events.NATSSubject)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, bus)
	}
	if len(sinks) == 0 {
		return Noop{}, nil
	}
	return sinks, nil
}
