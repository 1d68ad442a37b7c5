package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"telecine/internal/events"
	"telecine/internal/job"
	"telecine/internal/match"
	"telecine/internal/media"
	"telecine/internal/pipeline"
	"telecine/internal/pool"
)

type fakeScenes struct {
	statuses     map[int64]string
	messages     map[int64]string
	metadata     map[int64]*media.Probe
	thumbnails   map[int64]string
	sprites      map[int64][2]string
	previews     map[int64]string
	fingerprints map[int64][2]string
	indexed      []int64
}

func (f *fakeScenes) UpdateIndex(_ context.Context, id int64) error {
	f.indexed = append(f.indexed, id)
	return nil
}

func newFakeScenes() *fakeScenes {
	return &fakeScenes{
		statuses:     make(map[int64]string),
		messages:     make(map[int64]string),
		metadata:     make(map[int64]*media.Probe),
		thumbnails:   make(map[int64]string),
		sprites:      make(map[int64][2]string),
		previews:     make(map[int64]string),
		fingerprints: make(map[int64][2]string),
	}
}

func (f *fakeScenes) UpdateProcessingStatus(_ context.Context, id int64, status, message string) error {
	f.statuses[id] = status
	f.messages[id] = message
	return nil
}

func (f *fakeScenes) UpdateBasicMetadata(_ context.Context, id int64, probe *media.Probe) error {
	f.metadata[id] = probe
	return nil
}

func (f *fakeScenes) UpdateThumbnail(_ context.Context, id int64, path string) error {
	f.thumbnails[id] = path
	return nil
}

func (f *fakeScenes) UpdateSprites(_ context.Context, id int64, sheetPath, vttPath string) error {
	f.sprites[id] = [2]string{sheetPath, vttPath}
	return nil
}

func (f *fakeScenes) UpdatePreview(_ context.Context, id int64, path string) error {
	f.previews[id] = path
	return nil
}

func (f *fakeScenes) UpdateFingerprint(_ context.Context, id int64, audioFP, visualFP string) error {
	f.fingerprints[id] = [2]string{audioFP, visualFP}
	return nil
}

type fakeJobLog struct {
	completed  []string
	cancelled  []string
	failed     map[string]string
	timedOut   map[string]string
	removed    []string
	retried    []string
	retryQueue bool
}

func (f *fakeJobLog) RecordJobFailedWithRetry(_ context.Context, jobID, errMsg string, attempt, maxRetries int) (bool, error) {
	if !f.retryQueue {
		return false, nil
	}
	f.retried = append(f.retried, jobID)
	return true, nil
}

func newFakeJobLog() *fakeJobLog {
	return &fakeJobLog{failed: make(map[string]string), timedOut: make(map[string]string)}
}

func (f *fakeJobLog) RecordJobComplete(_ context.Context, jobID string) error {
	f.completed = append(f.completed, jobID)
	return nil
}

func (f *fakeJobLog) RecordJobCancelled(_ context.Context, jobID string) error {
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func (f *fakeJobLog) RecordJobFailed(_ context.Context, jobID, errMsg string) error {
	f.failed[jobID] = errMsg
	return nil
}

func (f *fakeJobLog) RecordJobTimedOut(_ context.Context, jobID, errMsg string) error {
	f.timedOut[jobID] = errMsg
	return nil
}

func (f *fakeJobLog) RemoveJob(_ context.Context, jobID string) error {
	f.removed = append(f.removed, jobID)
	return nil
}

type fakeSubmitter struct {
	submitted []job.Phase
	errs      map[job.Phase]error
}

func (f *fakeSubmitter) SubmitPhase(_ context.Context, _ int64, phase job.Phase) error {
	f.submitted = append(f.submitted, phase)
	if f.errs != nil {
		return f.errs[phase]
	}
	return nil
}

type publishedEvent struct {
	event   events.Event
	payload events.Payload
}

type fakePublisher struct {
	published []publishedEvent
}

func (f *fakePublisher) Publish(_ context.Context, event events.Event, payload events.Payload) error {
	f.published = append(f.published, publishedEvent{event: event, payload: payload})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) count(event events.Event) int {
	n := 0
	for _, p := range f.published {
		if p.event == event {
			n++
		}
	}
	return n
}

type fakeMatcher struct {
	indexed   map[match.Type]string
	found     map[match.Type][]match.Result
	processed []match.Result
}

func (f *fakeMatcher) IndexFingerprint(_ context.Context, _ int64, t match.Type, fp string) error {
	if f.indexed == nil {
		f.indexed = make(map[match.Type]string)
	}
	f.indexed[t] = fp
	return nil
}

func (f *fakeMatcher) FindMatches(_ context.Context, _ int64, t match.Type, _ string) ([]match.Result, error) {
	return f.found[t], nil
}

func (f *fakeMatcher) ProcessMatches(_ context.Context, _ int64, matches []match.Result) error {
	f.processed = append(f.processed, matches...)
	return nil
}

type handlerFixture struct {
	handler   *pipeline.Handler
	tracker   *pipeline.PhaseTracker
	scenes    *fakeScenes
	jobs      *fakeJobLog
	submitter *fakeSubmitter
	publisher *fakePublisher
}

func newHandlerFixture(t *testing.T, rows staticTriggers, matcher match.Service) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		tracker:   newTracker(t, rows),
		scenes:    newFakeScenes(),
		jobs:      newFakeJobLog(),
		submitter: &fakeSubmitter{},
		publisher: &fakePublisher{},
	}
	f.handler = pipeline.NewHandler(f.scenes, f.jobs, f.tracker, f.submitter, f.publisher, matcher, nil)
	return f
}

func completedMetadata(sceneID int64) job.Result {
	j := job.NewMetadata(sceneID, "/library/a.mkv", nil)
	j.Result = &media.Probe{Duration: 120, Width: 1920, Height: 1080}
	return job.NewResult(j, job.StatusCompleted, nil)
}

func completedThumbnail(sceneID int64) job.Result {
	j := job.NewThumbnail(sceneID, "/library/a.mkv", media.ThumbnailOptions{}, nil)
	j.OutputPath = "/artifacts/42/thumb.jpg"
	return job.NewResult(j, job.StatusCompleted, nil)
}

func completedSprites(sceneID int64) job.Result {
	j := job.NewSprites(sceneID, "/library/a.mkv", 120, media.SpriteOptions{}, nil)
	j.Result = &media.SpriteResult{SheetPath: "/artifacts/42/sprites.jpg", VTTPath: "/artifacts/42/sprites.vtt"}
	return job.NewResult(j, job.StatusCompleted, nil)
}

func TestHandlerMetadataFansOutAndPipelineCompletesOnce(t *testing.T) {
	f := newHandlerFixture(t, defaultTriggerRows(), nil)
	ctx := context.Background()

	f.handler.Handle(ctx, completedMetadata(42))

	if probe := f.scenes.metadata[42]; probe == nil || probe.Duration != 120 {
		t.Fatalf("metadata not persisted: %+v", probe)
	}
	if len(f.scenes.indexed) != 1 || f.scenes.indexed[0] != 42 {
		t.Fatalf("search index not refreshed after metadata: %v", f.scenes.indexed)
	}
	if len(f.submitter.submitted) != 2 ||
		f.submitter.submitted[0] != job.PhaseThumbnail ||
		f.submitter.submitted[1] != job.PhaseSprites {
		t.Fatalf("unexpected follow-up submissions: %v", f.submitter.submitted)
	}
	if n := f.publisher.count(events.EventPipelineComplete); n != 0 {
		t.Fatalf("pipeline complete published before follow-ups finished: %d", n)
	}

	f.handler.Handle(ctx, completedThumbnail(42))
	if n := f.publisher.count(events.EventPipelineComplete); n != 0 {
		t.Fatalf("pipeline complete after thumbnail only: %d", n)
	}

	f.handler.Handle(ctx, completedSprites(42))
	if f.scenes.thumbnails[42] == "" || f.scenes.sprites[42][1] == "" {
		t.Fatal("artifact paths not persisted")
	}
	if n := f.publisher.count(events.EventPipelineComplete); n != 1 {
		t.Fatalf("expected exactly one pipeline complete event, got %d", n)
	}
	if f.scenes.statuses[42] != "completed" {
		t.Fatalf("unexpected final status: %q", f.scenes.statuses[42])
	}
	if len(f.jobs.completed) != 3 || len(f.jobs.removed) != 3 {
		t.Fatalf("job log mismatch: completed=%d removed=%d", len(f.jobs.completed), len(f.jobs.removed))
	}
}

func TestHandlerMetadataOnlyPipeline(t *testing.T) {
	f := newHandlerFixture(t, staticTriggers{{Phase: "metadata", Run: pipeline.RunOnImport}}, nil)

	f.handler.Handle(context.Background(), completedMetadata(5))

	if len(f.submitter.submitted) != 0 {
		t.Fatalf("unexpected submissions: %v", f.submitter.submitted)
	}
	if n := f.publisher.count(events.EventPipelineComplete); n != 1 {
		t.Fatalf("expected one pipeline complete event, got %d", n)
	}
}

func TestHandlerToleratesDuplicateFollowUp(t *testing.T) {
	f := newHandlerFixture(t, defaultTriggerRows(), nil)
	f.submitter.errs = map[job.Phase]error{
		job.PhaseThumbnail: &pool.DuplicateJobError{SceneID: 42, Phase: job.PhaseThumbnail, ExistingJobID: "j1"},
	}

	f.handler.Handle(context.Background(), completedMetadata(42))

	if len(f.submitter.submitted) != 2 {
		t.Fatalf("fan-out stopped at duplicate: %v", f.submitter.submitted)
	}
	if f.scenes.statuses[42] == "failed" {
		t.Fatal("duplicate follow-up marked scene failed")
	}
}

func TestHandlerFollowUpErrorFailsScene(t *testing.T) {
	f := newHandlerFixture(t, defaultTriggerRows(), nil)
	f.submitter.errs = map[job.Phase]error{job.PhaseThumbnail: errors.New("pool stopped")}

	f.handler.Handle(context.Background(), completedMetadata(42))

	if f.scenes.statuses[42] != "failed" {
		t.Fatalf("expected failed status, got %q", f.scenes.statuses[42])
	}
}

func TestHandlerFailureClearsPipelineState(t *testing.T) {
	f := newHandlerFixture(t, defaultTriggerRows(), nil)
	ctx := context.Background()

	f.handler.Handle(ctx, completedMetadata(42))

	failing := job.NewThumbnail(42, "/library/a.mkv", media.ThumbnailOptions{}, nil)
	f.handler.Handle(ctx, job.NewResult(failing, job.StatusFailed, errors.New("ffmpeg exited 1")))

	if f.jobs.failed[failing.ID()] != "ffmpeg exited 1" {
		t.Fatalf("failure not recorded: %v", f.jobs.failed)
	}
	if f.scenes.statuses[42] != "failed" {
		t.Fatalf("expected failed status, got %q", f.scenes.statuses[42])
	}
	if n := f.publisher.count(events.EventPhaseFailed); n != 1 {
		t.Fatalf("expected one phase failed event, got %d", n)
	}

	// A later sibling completion must not close the abandoned pipeline.
	f.handler.Handle(ctx, completedSprites(42))
	if n := f.publisher.count(events.EventPipelineComplete); n != 0 {
		t.Fatalf("pipeline completed after failure: %d", n)
	}
}

func TestHandlerFailureWithRetryBudgetRequeues(t *testing.T) {
	f := newHandlerFixture(t, defaultTriggerRows(), nil)
	f.jobs.retryQueue = true
	ctx := context.Background()

	f.handler.Handle(ctx, completedMetadata(42))

	failing := job.NewThumbnail(42, "/library/a.mkv", media.ThumbnailOptions{}, nil)
	failing.SetRetry(0, 2)
	f.handler.Handle(ctx, job.NewResult(failing, job.StatusFailed, errors.New("ffmpeg exited 1")))

	if len(f.jobs.retried) != 1 || f.jobs.retried[0] != failing.ID() {
		t.Fatalf("retry not queued: %v", f.jobs.retried)
	}
	if _, ok := f.jobs.failed[failing.ID()]; ok {
		t.Fatal("terminal failure recorded despite retry budget")
	}
	if f.scenes.statuses[42] == "failed" {
		t.Fatal("scene marked failed while a retry is pending")
	}

	// The retried attempt can still complete the pipeline.
	f.handler.Handle(ctx, completedThumbnail(42))
	f.handler.Handle(ctx, completedSprites(42))
	if n := f.publisher.count(events.EventPipelineComplete); n != 1 {
		t.Fatalf("expected one pipeline complete after retry, got %d", n)
	}
}

func TestHandlerTimedOutRecordsAndClears(t *testing.T) {
	f := newHandlerFixture(t, defaultTriggerRows(), nil)

	j := job.NewSprites(42, "/library/a.mkv", 120, media.SpriteOptions{}, nil)
	f.handler.Handle(context.Background(), job.NewResult(j, job.StatusTimedOut, context.DeadlineExceeded))

	if f.jobs.timedOut[j.ID()] != "timed out" {
		t.Fatalf("timeout not recorded: %v", f.jobs.timedOut)
	}
	if f.scenes.statuses[42] != "failed" || f.scenes.messages[42] != "timed out" {
		t.Fatalf("unexpected scene state: %q %q", f.scenes.statuses[42], f.scenes.messages[42])
	}
	if n := f.publisher.count(events.EventPhaseTimedOut); n != 1 {
		t.Fatalf("expected one timeout event, got %d", n)
	}
}

func TestHandlerCancelledRecordsOutcome(t *testing.T) {
	f := newHandlerFixture(t, defaultTriggerRows(), nil)

	j := job.NewMetadata(42, "/library/a.mkv", nil)
	f.handler.Handle(context.Background(), job.NewResult(j, job.StatusCancelled, context.Canceled))

	if len(f.jobs.cancelled) != 1 || f.jobs.cancelled[0] != j.ID() {
		t.Fatalf("cancellation not recorded: %v", f.jobs.cancelled)
	}
	if f.scenes.statuses[42] != "cancelled" {
		t.Fatalf("expected cancelled status, got %q", f.scenes.statuses[42])
	}
}

func TestHandlerFingerprintDeduplicatesMatches(t *testing.T) {
	matcher := &fakeMatcher{
		found: map[match.Type][]match.Result{
			match.TypeAudio:  {{SceneID: 7, Confidence: 0.7, Type: match.TypeAudio}},
			match.TypeVisual: {{SceneID: 7, Confidence: 0.9, Type: match.TypeVisual}, {SceneID: 8, Confidence: 0.85, Type: match.TypeVisual}},
		},
	}
	f := newHandlerFixture(t, defaultTriggerRows(), matcher)

	j := job.NewFingerprint(42, "/library/a.mkv", 120, nil, nil)
	j.AudioFP = "chromaprint-data"
	j.VisualFP = "a1b2,c3d4"
	f.handler.Handle(context.Background(), job.NewResult(j, job.StatusCompleted, nil))

	if got := f.scenes.fingerprints[42]; got[0] != "chromaprint-data" || got[1] != "a1b2,c3d4" {
		t.Fatalf("fingerprints not persisted: %v", got)
	}
	if matcher.indexed[match.TypeAudio] == "" || matcher.indexed[match.TypeVisual] == "" {
		t.Fatalf("fingerprints not indexed: %v", matcher.indexed)
	}
	if len(matcher.processed) != 2 {
		t.Fatalf("expected deduplicated matches for two scenes, got %v", matcher.processed)
	}
	for _, m := range matcher.processed {
		if m.SceneID == 7 && m.Confidence != 0.9 {
			t.Fatalf("dedup did not keep highest confidence: %+v", m)
		}
	}
	if n := f.publisher.count(events.EventFingerprintComplete); n != 1 {
		t.Fatalf("expected one fingerprint event, got %d", n)
	}
	if len(f.scenes.indexed) != 1 || f.scenes.indexed[0] != 42 {
		t.Fatalf("search index not refreshed after fingerprint: %v", f.scenes.indexed)
	}
}
