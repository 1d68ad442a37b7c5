package job

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Job is the uniform contract every pipeline job satisfies. The set of
// implementations is closed: Metadata, Thumbnail, Sprites, Animated, and
// Fingerprint, all in this package. Result consumers type-switch over that
// set to extract phase-specific payloads.
//
// Execution contract: the worker pool calls Execute exactly once with a
// context that may carry a deadline. A Job that observes context expiry or
// cancellation must set its own terminal status (timed_out or cancelled)
// before returning; the pool trusts the self-reported status over the raw
// error when classifying the result.
type Job interface {
	ID() string
	SceneID() int64
	Phase() Phase
	Status() Status
	SetStatus(Status)
	Err() error
	Retry() (attempt, max int)
	// SetRetry threads attempt bookkeeping from the external submission
	// path; the pool itself never retries.
	SetRetry(attempt, max int)
	// AdoptID replaces the generated id with a durable queue id so
	// in-memory tracking matches persisted state. Must be called before
	// submission, never after.
	AdoptID(id string)
	Execute(ctx context.Context) error
	// Cancel requests cooperative cancellation: pre-emptive for queued jobs,
	// via the bound execution context for running ones.
	Cancel()
	Cancelled() bool
	// Bind attaches the execution context's cancel function so Cancel can
	// abort a running Execute. Called by the pool just before Execute.
	Bind(cancel context.CancelFunc)

	sealed()
}

type base struct {
	id      string
	sceneID int64
	attempt int
	maxTry  int

	mu     sync.Mutex
	status Status
	err    error
	cancel context.CancelFunc

	cancelled atomic.Bool
}

func newBase(sceneID int64) base {
	return base{
		id:      uuid.NewString(),
		sceneID: sceneID,
		status:  StatusPending,
	}
}

func (b *base) ID() string { return b.id }

func (b *base) AdoptID(id string) {
	if id != "" {
		b.id = id
	}
}

func (b *base) SceneID() int64 { return b.sceneID }

func (b *base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// SetStatus applies a transition. Terminal states are sticky: once a job has
// finished, failed, been cancelled, or timed out, further transitions are
// ignored.
func (b *base) SetStatus(status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status.Terminal() {
		return
	}
	b.status = status
}

func (b *base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *base) setErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		b.err = err
	}
}

func (b *base) Retry() (int, int) { return b.attempt, b.maxTry }

// SetRetry records the attempt bookkeeping threaded through job creation by
// the external submission path. The pool itself never retries.
func (b *base) SetRetry(attempt, max int) {
	b.attempt = attempt
	b.maxTry = max
}

func (b *base) Cancel() {
	b.cancelled.Store(true)
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (b *base) Cancelled() bool { return b.cancelled.Load() }

func (b *base) Bind(cancel context.CancelFunc) {
	b.mu.Lock()
	b.cancel = cancel
	alreadyCancelled := b.cancelled.Load()
	b.mu.Unlock()
	if alreadyCancelled && cancel != nil {
		cancel()
	}
}

func (b *base) sealed() {}

// observe implements the self-reporting half of the execution contract: it
// distinguishes deadline expiry from cancellation and records the terminal
// status accordingly. Plain execution failures are left for the pool to
// classify as failed.
func (b *base) observe(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	b.setErr(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		b.SetStatus(StatusTimedOut)
	case errors.Is(err, context.Canceled) || ctx.Err() != nil || b.Cancelled():
		b.SetStatus(StatusCancelled)
	}
	return err
}
