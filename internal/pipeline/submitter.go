package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"telecine/internal/config"
	"telecine/internal/job"
	"telecine/internal/logging"
	"telecine/internal/media"
	"telecine/internal/pool"
	"telecine/internal/services"
	"telecine/internal/store"
)

// SceneSource is the scene read surface the submitter needs.
type SceneSource interface {
	GetByID(ctx context.Context, id int64) (*store.Scene, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*store.Scene, error)
	GetAll(ctx context.Context) ([]*store.Scene, error)
	GetScenesNeedingPhase(ctx context.Context, phase job.Phase) ([]*store.Scene, error)
}

// DurableQueue records dispatched jobs so a crashed daemon can requeue them,
// and answers the pre-dispatch dedup check against rows queued externally.
type DurableQueue interface {
	FindPendingOrRunning(ctx context.Context, sceneID int64, phase job.Phase) (*store.QueuedJob, error)
	CreatePendingJobWithPriority(ctx context.Context, jobID string, sceneID int64, phase job.Phase, priority int) error
	CreateRunningJob(ctx context.Context, jobID string, sceneID int64, phase job.Phase, attempt, maxRetries int) error
	RecordJobStartWithRetry(ctx context.Context, jobID string, sceneID int64, phase job.Phase, attempt, maxRetries int) error
}

// PoolSubmitter routes a built job into the pool for its phase.
type PoolSubmitter interface {
	Submit(j job.Job) error
	GetJobForScene(sceneID int64, phase job.Phase) (job.Job, bool)
	QualitySettings() config.Quality
}

// Factory builds phase jobs for scenes, wiring in the media generator and
// the live quality settings. Preconditions are enforced here so invalid
// requests are rejected synchronously and never enter a pool.
type Factory struct {
	generator    *media.Generator
	pools        PoolSubmitter
	fingerprints config.Fingerprints
}

func NewFactory(generator *media.Generator, pools PoolSubmitter, fingerprints config.Fingerprints) *Factory {
	return &Factory{generator: generator, pools: pools, fingerprints: fingerprints}
}

// Build constructs the job for one phase of one scene.
func (f *Factory) Build(scene *store.Scene, phase job.Phase) (job.Job, error) {
	if scene == nil {
		return nil, services.Wrap(services.ErrNotFound, "submitter", "build", "scene does not exist", nil)
	}
	if phase != job.PhaseMetadata && !scene.HasMetadata() {
		return nil, services.Wrap(services.ErrValidation, "submitter", "build",
			fmt.Sprintf("scene %d has no metadata yet, %s requires a known duration", scene.ID, phase), nil)
	}

	quality := f.pools.QualitySettings()
	switch phase {
	case job.PhaseMetadata:
		return job.NewMetadata(scene.ID, scene.Path, f.generator.ProbeFile), nil
	case job.PhaseThumbnail:
		// ThumbnailOffset is a percentage of the scene duration.
		opts := media.ThumbnailOptions{
			OffsetSeconds: scene.Duration * float64(quality.ThumbnailOffset) / 100,
			Width:         quality.ThumbnailWidth,
			JPEGQuality:   quality.JPEGQuality,
		}
		return job.NewThumbnail(scene.ID, scene.Path, opts, f.generator.Thumbnail), nil
	case job.PhaseSprites:
		opts := media.SpriteOptions{
			IntervalSeconds: quality.SpriteInterval,
			Columns:         quality.SpriteColumns,
			Rows:            quality.SpriteRows,
			FrameWidth:      quality.SpriteWidth,
			JPEGQuality:     quality.JPEGQuality,
		}
		return job.NewSprites(scene.ID, scene.Path, scene.Duration, opts, f.generator.Sprites), nil
	case job.PhaseAnimated:
		opts := media.PreviewOptions{
			Seconds: quality.PreviewSeconds,
			Width:   quality.PreviewWidth,
			FPS:     quality.PreviewFPS,
		}
		return job.NewAnimated(scene.ID, scene.Path, scene.Duration, opts, f.generator.Preview), nil
	case job.PhaseFingerprint:
		if !f.fingerprints.Enabled {
			return nil, services.Wrap(services.ErrConfiguration, "submitter", "build", "fingerprinting is disabled", nil)
		}
		return job.NewFingerprint(scene.ID, scene.Path, scene.Duration, f.generator.AudioFingerprint, f.generator.VisualFingerprint), nil
	default:
		return nil, services.Wrap(services.ErrValidation, "submitter", "build",
			fmt.Sprintf("unknown phase %q", phase), nil)
	}
}

// BulkResult summarizes a bulk submission.
type BulkResult struct {
	Submitted  int
	Duplicates int
	Skipped    int
	Failed     int
}

// Submitter turns external requests into queued jobs.
type Submitter struct {
	scenes  SceneSource
	queue   DurableQueue
	factory *Factory
	pools   PoolSubmitter
	tracker *PhaseTracker
	logger  *slog.Logger
}

func NewSubmitter(scenes SceneSource, queue DurableQueue, factory *Factory, pools PoolSubmitter, tracker *PhaseTracker, logger *slog.Logger) *Submitter {
	return &Submitter{
		scenes:  scenes,
		queue:   queue,
		factory: factory,
		pools:   pools,
		tracker: tracker,
		logger:  logging.NewComponentLogger(logger, "submitter"),
	}
}

// SubmitPhase builds and dispatches one phase job for a scene. Duplicate
// submissions, including rows already pending in durable storage, return a
// DuplicateJobError; precondition violations are rejected before any pool
// sees the job.
func (s *Submitter) SubmitPhase(ctx context.Context, sceneID int64, phase job.Phase) error {
	return s.submit(ctx, sceneID, phase, 0, 0, "", false)
}

// SubmitPhaseWithForce dispatches a phase job without consulting the
// durable queue, so a phase can be re-run while an older row for the pair
// still sits in storage. In-memory pool dedup still applies.
func (s *Submitter) SubmitPhaseWithForce(ctx context.Context, sceneID int64, phase job.Phase) error {
	return s.submit(ctx, sceneID, phase, 0, 0, "", true)
}

// SubmitPhaseWithRetry dispatches a phase job carrying retry bookkeeping
// from an earlier failed attempt.
func (s *Submitter) SubmitPhaseWithRetry(ctx context.Context, sceneID int64, phase job.Phase, attempt, maxRetries int) error {
	return s.submit(ctx, sceneID, phase, attempt, maxRetries, "", false)
}

// SubmitPhaseWithPriority enqueues a durable row instead of dispatching
// directly; the feeder picks it up ahead of default-priority work. The
// same validation and dedup rules as SubmitPhase apply.
func (s *Submitter) SubmitPhaseWithPriority(ctx context.Context, sceneID int64, phase job.Phase, priority int) error {
	ctx = services.WithSceneID(ctx, sceneID)
	ctx = services.WithPhase(ctx, string(phase))

	scene, err := s.scenes.GetByID(ctx, sceneID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "submitter", "submit", "load scene", err)
	}
	if _, err := s.factory.Build(scene, phase); err != nil {
		return err
	}
	if s.queue == nil {
		return services.Wrap(services.ErrConfiguration, "submitter", "submit", "no durable queue configured", nil)
	}
	if existing, err := s.queue.FindPendingOrRunning(ctx, sceneID, phase); err != nil {
		return services.Wrap(services.ErrTransient, "submitter", "submit", "check durable queue", err)
	} else if existing != nil {
		return &pool.DuplicateJobError{SceneID: sceneID, Phase: phase, ExistingJobID: existing.ID}
	}

	jobID := uuid.NewString()
	if err := s.queue.CreatePendingJobWithPriority(ctx, jobID, sceneID, phase, priority); err != nil {
		return services.Wrap(services.ErrTransient, "submitter", "submit", "enqueue durable job", err)
	}
	logging.WithContext(ctx, s.logger).Info("job queued",
		logging.String(logging.FieldJobID, jobID),
		logging.Int("priority", priority))
	return nil
}

func (s *Submitter) submit(ctx context.Context, sceneID int64, phase job.Phase, attempt, maxRetries int, adoptID string, force bool) error {
	ctx = services.WithSceneID(ctx, sceneID)
	ctx = services.WithPhase(ctx, string(phase))
	logger := logging.WithContext(ctx, s.logger)

	scene, err := s.scenes.GetByID(ctx, sceneID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "submitter", "submit", "load scene", err)
	}

	j, err := s.factory.Build(scene, phase)
	if err != nil {
		return err
	}

	if adoptID == "" && !force {
		if existing, ok := s.pools.GetJobForScene(sceneID, phase); ok {
			return &pool.DuplicateJobError{SceneID: sceneID, Phase: phase, ExistingJobID: existing.ID()}
		}
	}
	if s.queue != nil && adoptID == "" && !force {
		existing, err := s.queue.FindPendingOrRunning(ctx, sceneID, phase)
		if err != nil {
			return services.Wrap(services.ErrTransient, "submitter", "submit", "check durable queue", err)
		}
		if existing != nil {
			return &pool.DuplicateJobError{SceneID: sceneID, Phase: phase, ExistingJobID: existing.ID}
		}
	}
	j.AdoptID(adoptID)
	j.SetRetry(attempt, maxRetries)

	if err := s.pools.Submit(j); err != nil {
		return err
	}

	// The job is already in flight when the durable record is written;
	// a record failure costs restart recovery, not correctness.
	if s.queue != nil {
		if adoptID == "" {
			if err := s.queue.CreateRunningJob(ctx, j.ID(), sceneID, phase, attempt, maxRetries); err != nil {
				logger.Warn("failed to record durable job",
					logging.String(logging.FieldJobID, j.ID()), logging.Error(err))
			}
		}
		if err := s.queue.RecordJobStartWithRetry(ctx, j.ID(), sceneID, phase, attempt, maxRetries); err != nil {
			logger.Warn("failed to record job start",
				logging.String(logging.FieldJobID, j.ID()), logging.Error(err))
		}
	}

	logger.Info("job submitted", logging.String(logging.FieldJobID, j.ID()))
	return nil
}

// Dispatch executes a durable queue row: the rebuilt job adopts the row's
// id so terminal handling clears the right record.
func (s *Submitter) Dispatch(ctx context.Context, row *store.QueuedJob) error {
	return s.submit(ctx, row.SceneID, row.Phase, row.Attempt, row.MaxRetries, row.ID, false)
}

// SubmitScene runs the configured on-import phases for a newly added scene.
func (s *Submitter) SubmitScene(ctx context.Context, sceneID int64) error {
	phases := s.tracker.OnImportPhases()
	if len(phases) == 0 {
		return services.Wrap(services.ErrConfiguration, "submitter", "submit scene", "no on_import phase configured", nil)
	}
	for _, phase := range phases {
		if err := s.SubmitPhase(ctx, sceneID, phase); err != nil && !pool.IsDuplicate(err) {
			return err
		}
	}
	return nil
}

// BulkSubmit dispatches a phase across many scenes. With explicit ids it
// targets exactly those scenes; otherwise it covers every scene whose
// record still needs the phase, or with force every scene in the library,
// regenerating artifacts that already exist. Duplicates and precondition
// violations are counted, not fatal.
func (s *Submitter) BulkSubmit(ctx context.Context, phase job.Phase, ids []int64, force bool) (BulkResult, error) {
	// One correlation id ties every log line of a bulk run together.
	ctx = services.WithRequestID(ctx, uuid.NewString())

	var (
		scenes []*store.Scene
		err    error
	)
	switch {
	case len(ids) > 0:
		scenes, err = s.scenes.GetByIDs(ctx, ids)
	case force:
		scenes, err = s.scenes.GetAll(ctx)
	default:
		scenes, err = s.scenes.GetScenesNeedingPhase(ctx, phase)
	}
	if err != nil {
		return BulkResult{}, services.Wrap(services.ErrTransient, "submitter", "bulk submit", "list scenes", err)
	}

	var result BulkResult
	for _, scene := range scenes {
		err := s.submit(ctx, scene.ID, phase, 0, 0, "", force)
		switch {
		case err == nil:
			result.Submitted++
		case pool.IsDuplicate(err):
			result.Duplicates++
		case errorsIsValidation(err):
			result.Skipped++
		default:
			result.Failed++
			logging.WithContext(ctx, s.logger).Warn("bulk submission failed",
				logging.Int64(logging.FieldSceneID, scene.ID),
				logging.String(logging.FieldPhase, string(phase)),
				logging.Error(err))
		}
	}
	return result, nil
}

func errorsIsValidation(err error) bool {
	return errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrConfiguration)
}
