package pipeline

import (
	"context"
	"log/slog"

	"telecine/internal/events"
	"telecine/internal/job"
	"telecine/internal/logging"
	"telecine/internal/match"
	"telecine/internal/media"
	"telecine/internal/metrics"
	"telecine/internal/pool"
	"telecine/internal/services"
	"telecine/internal/store"
)

// SceneWriter is the scene persistence surface the handler needs.
type SceneWriter interface {
	UpdateProcessingStatus(ctx context.Context, id int64, status, message string) error
	UpdateBasicMetadata(ctx context.Context, id int64, probe *media.Probe) error
	UpdateThumbnail(ctx context.Context, id int64, path string) error
	UpdateSprites(ctx context.Context, id int64, sheetPath, vttPath string) error
	UpdatePreview(ctx context.Context, id int64, path string) error
	UpdateFingerprint(ctx context.Context, id int64, audioFP, visualFP string) error
	UpdateIndex(ctx context.Context, id int64) error
}

// JobLog records job outcomes and clears durable queue rows.
type JobLog interface {
	RecordJobComplete(ctx context.Context, jobID string) error
	RecordJobCancelled(ctx context.Context, jobID string) error
	RecordJobFailed(ctx context.Context, jobID, errMsg string) error
	RecordJobFailedWithRetry(ctx context.Context, jobID, errMsg string, attempt, maxRetries int) (bool, error)
	RecordJobTimedOut(ctx context.Context, jobID, errMsg string) error
	RemoveJob(ctx context.Context, jobID string) error
}

// PhaseSubmitter dispatches a follow-up phase for a scene.
type PhaseSubmitter interface {
	SubmitPhase(ctx context.Context, sceneID int64, phase job.Phase) error
}

// Handler consumes terminal job results and drives the phase completion
// state machine. Each pool delivers its results to Handle sequentially, so
// per-pool completion logic is serialized.
type Handler struct {
	scenes    SceneWriter
	jobs      JobLog
	tracker   *PhaseTracker
	submitter PhaseSubmitter
	publisher events.Publisher
	matcher   match.Service
	logger    *slog.Logger
}

func NewHandler(scenes SceneWriter, jobs JobLog, tracker *PhaseTracker, submitter PhaseSubmitter, publisher events.Publisher, matcher match.Service, logger *slog.Logger) *Handler {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Handler{
		scenes:    scenes,
		jobs:      jobs,
		tracker:   tracker,
		submitter: submitter,
		publisher: publisher,
		matcher:   matcher,
		logger:    logging.NewComponentLogger(logger, "result-handler"),
	}
}

// Handle processes one terminal job result.
func (h *Handler) Handle(ctx context.Context, res job.Result) {
	switch res.Status {
	case job.StatusCompleted:
		h.handleCompleted(ctx, res)
	case job.StatusFailed:
		h.handleFailure(ctx, res, events.EventPhaseFailed, errText(res))
	case job.StatusCancelled:
		h.recordOutcome(ctx, res.JobID, h.jobs.RecordJobCancelled)
		if err := h.jobs.RemoveJob(ctx, res.JobID); err != nil {
			h.logger.Warn("failed to clear durable job", logging.String(logging.FieldJobID, res.JobID), logging.Error(err))
		}
		h.tracker.ClearPhaseState(res.SceneID)
		h.updateStatus(ctx, res.SceneID, store.SceneStatusCancelled, "")
		h.publish(ctx, events.EventPhaseCancelled, res, nil)
	case job.StatusTimedOut:
		h.recordFailure(ctx, res.JobID, h.jobs.RecordJobTimedOut, "timed out")
		h.tracker.ClearPhaseState(res.SceneID)
		h.updateStatus(ctx, res.SceneID, store.SceneStatusFailed, "timed out")
		h.publish(ctx, events.EventPhaseTimedOut, res, events.Payload{"error": "timed out"})
	default:
		h.logger.Error("non-terminal result delivered",
			logging.String(logging.FieldJobID, res.JobID),
			logging.String(logging.FieldPhase, string(res.Phase)),
			logging.String("status", string(res.Status)))
	}
}

func (h *Handler) handleCompleted(ctx context.Context, res job.Result) {
	h.recordOutcome(ctx, res.JobID, h.jobs.RecordJobComplete)
	if err := h.jobs.RemoveJob(ctx, res.JobID); err != nil {
		h.logger.Warn("failed to clear durable job", logging.String(logging.FieldJobID, res.JobID), logging.Error(err))
	}

	switch j := res.Job.(type) {
	case *job.Metadata:
		h.metadataComplete(ctx, res, j)
	case *job.Thumbnail:
		h.scenePhaseComplete(ctx, res, events.EventThumbnailComplete, events.Payload{"path": j.OutputPath}, func() error {
			return h.scenes.UpdateThumbnail(ctx, res.SceneID, j.OutputPath)
		})
	case *job.Sprites:
		payload := events.Payload{}
		persist := func() error { return nil }
		if j.Result != nil {
			payload["sheet_path"] = j.Result.SheetPath
			payload["vtt_path"] = j.Result.VTTPath
			persist = func() error {
				return h.scenes.UpdateSprites(ctx, res.SceneID, j.Result.SheetPath, j.Result.VTTPath)
			}
		}
		h.scenePhaseComplete(ctx, res, events.EventSpritesComplete, payload, persist)
	case *job.Animated:
		h.scenePhaseComplete(ctx, res, events.EventAnimatedComplete, events.Payload{"path": j.OutputPath}, func() error {
			return h.scenes.UpdatePreview(ctx, res.SceneID, j.OutputPath)
		})
	case *job.Fingerprint:
		h.fingerprintComplete(ctx, res, j)
	}
}

// metadataComplete fans out into the configured parallel phases, or closes
// the pipeline immediately when nothing follows metadata.
func (h *Handler) metadataComplete(ctx context.Context, res job.Result, j *job.Metadata) {
	if j.Result != nil {
		if err := h.scenes.UpdateBasicMetadata(ctx, res.SceneID, j.Result); err != nil {
			h.logger.Error("failed to persist metadata",
				logging.Int64(logging.FieldSceneID, res.SceneID), logging.Error(err))
		}
	}
	h.refreshIndex(ctx, res.SceneID)
	h.publish(ctx, events.EventMetadataComplete, res, metadataPayload(j.Result))

	followUps := h.tracker.GetPhasesTriggeredAfter(job.PhaseMetadata)
	if len(followUps) == 0 {
		if h.tracker.CheckAllPhasesComplete(res.SceneID, job.PhaseMetadata) {
			h.pipelineComplete(ctx, res)
		}
		return
	}

	h.tracker.InitPhaseState(res.SceneID)
	for _, phase := range followUps {
		err := h.submitter.SubmitPhase(ctx, res.SceneID, phase)
		if err == nil {
			continue
		}
		if pool.IsDuplicate(err) {
			h.logger.Info("follow-up already queued",
				logging.Int64(logging.FieldSceneID, res.SceneID),
				logging.String(logging.FieldPhase, string(phase)))
			continue
		}
		h.logger.Error("follow-up submission failed",
			logging.Int64(logging.FieldSceneID, res.SceneID),
			logging.String(logging.FieldPhase, string(phase)),
			logging.Error(err))
		h.updateStatus(ctx, res.SceneID, store.SceneStatusFailed, err.Error())
		return
	}
}

// scenePhaseComplete is the shared path for thumbnail, sprites, and
// animated preview completion.
func (h *Handler) scenePhaseComplete(ctx context.Context, res job.Result, event events.Event, payload events.Payload, persist func() error) {
	if err := persist(); err != nil {
		h.logger.Error("failed to persist artifact",
			logging.Int64(logging.FieldSceneID, res.SceneID),
			logging.String(logging.FieldPhase, string(res.Phase)),
			logging.Error(err))
	}
	h.publish(ctx, event, res, payload)
	h.dispatchFollowUps(ctx, res.SceneID, res.Phase)
	h.tracker.MarkPhaseComplete(res.SceneID, res.Phase)
	if h.tracker.CheckAllPhasesComplete(res.SceneID, res.Phase) {
		h.pipelineComplete(ctx, res)
	}
}

func (h *Handler) fingerprintComplete(ctx context.Context, res job.Result, j *job.Fingerprint) {
	if err := h.scenes.UpdateFingerprint(ctx, res.SceneID, j.AudioFP, j.VisualFP); err != nil {
		h.logger.Error("failed to persist fingerprint",
			logging.Int64(logging.FieldSceneID, res.SceneID), logging.Error(err))
	}
	h.refreshIndex(ctx, res.SceneID)
	for _, warning := range j.Warnings {
		h.logger.Warn("fingerprint partially extracted",
			logging.Int64(logging.FieldSceneID, res.SceneID),
			logging.String("detail", warning))
	}

	if h.matcher != nil {
		h.processMatches(ctx, res.SceneID, j)
	}

	h.publish(ctx, events.EventFingerprintComplete, res, events.Payload{
		"audio":  j.AudioFP != "",
		"visual": j.VisualFP != "",
	})
	h.dispatchFollowUps(ctx, res.SceneID, res.Phase)
	h.tracker.MarkPhaseComplete(res.SceneID, res.Phase)
	if h.tracker.CheckAllPhasesComplete(res.SceneID, res.Phase) {
		h.pipelineComplete(ctx, res)
	}
}

// processMatches queries candidates for each extracted fingerprint type,
// indexes the fingerprints, and hands the deduplicated candidate set to the
// matching service.
func (h *Handler) processMatches(ctx context.Context, sceneID int64, j *job.Fingerprint) {
	var candidates []match.Result
	types := []struct {
		t  match.Type
		fp string
	}{
		{match.TypeAudio, j.AudioFP},
		{match.TypeVisual, j.VisualFP},
	}
	for _, entry := range types {
		if entry.fp == "" {
			continue
		}
		found, err := h.matcher.FindMatches(ctx, sceneID, entry.t, entry.fp)
		if err != nil {
			h.logger.Warn("match lookup failed",
				logging.Int64(logging.FieldSceneID, sceneID),
				logging.String("type", string(entry.t)),
				logging.Error(err))
		} else {
			candidates = append(candidates, found...)
		}
		if err := h.matcher.IndexFingerprint(ctx, sceneID, entry.t, entry.fp); err != nil {
			h.logger.Warn("fingerprint indexing failed",
				logging.Int64(logging.FieldSceneID, sceneID),
				logging.String("type", string(entry.t)),
				logging.Error(err))
		}
	}

	deduped := match.Deduplicate(candidates)
	if len(deduped) == 0 {
		return
	}
	if err := h.matcher.ProcessMatches(ctx, sceneID, deduped); err != nil {
		h.logger.Warn("match processing failed",
			logging.Int64(logging.FieldSceneID, sceneID), logging.Error(err))
	}
}

func (h *Handler) dispatchFollowUps(ctx context.Context, sceneID int64, completed job.Phase) {
	for _, phase := range h.tracker.GetPhasesTriggeredAfter(completed) {
		err := h.submitter.SubmitPhase(ctx, sceneID, phase)
		if err == nil || pool.IsDuplicate(err) {
			continue
		}
		h.logger.Error("follow-up submission failed",
			logging.Int64(logging.FieldSceneID, sceneID),
			logging.String(logging.FieldPhase, string(phase)),
			logging.Error(err))
	}
}

func (h *Handler) handleFailure(ctx context.Context, res job.Result, event events.Event, errMsg string) {
	if attempt, maxRetries := res.Job.Retry(); attempt < maxRetries {
		retried, err := h.jobs.RecordJobFailedWithRetry(ctx, res.JobID, errMsg, attempt, maxRetries)
		if err != nil {
			h.logger.Warn("failed to record job outcome",
				logging.String(logging.FieldJobID, res.JobID), logging.Error(err))
		} else if retried {
			h.logger.Info("job requeued for retry",
				logging.String(logging.FieldJobID, res.JobID),
				logging.String(logging.FieldPhase, string(res.Phase)),
				logging.Int("attempt", attempt+1),
				logging.Int("max_retries", maxRetries))
			h.publish(ctx, event, res, events.Payload{"error": errMsg, "retrying": true})
			return
		}
	}
	h.logger.Error("job failed",
		logging.String(logging.FieldJobID, res.JobID),
		logging.Int64(logging.FieldSceneID, res.SceneID),
		logging.String(logging.FieldPhase, string(res.Phase)),
		logging.String(logging.FieldErrorHint, services.Hint(res.Err)),
		logging.Error(res.Err))
	h.recordFailure(ctx, res.JobID, h.jobs.RecordJobFailed, errMsg)
	h.tracker.ClearPhaseState(res.SceneID)
	h.updateStatus(ctx, res.SceneID, store.SceneStatusFailed, errMsg)
	h.publish(ctx, event, res, events.Payload{"error": errMsg})
}

func (h *Handler) pipelineComplete(ctx context.Context, res job.Result) {
	h.updateStatus(ctx, res.SceneID, store.SceneStatusCompleted, "")
	metrics.PipelinesCompleted.Inc()
	h.publish(ctx, events.EventPipelineComplete, res, nil)
	h.logger.Info("pipeline complete", logging.Int64(logging.FieldSceneID, res.SceneID))
}

func (h *Handler) recordOutcome(ctx context.Context, jobID string, record func(context.Context, string) error) {
	if err := record(ctx, jobID); err != nil {
		h.logger.Warn("failed to record job outcome", logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}
}

func (h *Handler) recordFailure(ctx context.Context, jobID string, record func(context.Context, string, string) error, errMsg string) {
	if err := record(ctx, jobID, errMsg); err != nil {
		h.logger.Warn("failed to record job outcome", logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}
	if err := h.jobs.RemoveJob(ctx, jobID); err != nil {
		h.logger.Warn("failed to clear durable job", logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}
}

func (h *Handler) refreshIndex(ctx context.Context, sceneID int64) {
	if err := h.scenes.UpdateIndex(ctx, sceneID); err != nil {
		h.logger.Warn("failed to refresh search index",
			logging.Int64(logging.FieldSceneID, sceneID), logging.Error(err))
	}
}

func (h *Handler) updateStatus(ctx context.Context, sceneID int64, status, message string) {
	if err := h.scenes.UpdateProcessingStatus(ctx, sceneID, status, message); err != nil {
		h.logger.Warn("failed to update scene status",
			logging.Int64(logging.FieldSceneID, sceneID), logging.Error(err))
	}
}

func (h *Handler) publish(ctx context.Context, event events.Event, res job.Result, extra events.Payload) {
	payload := events.Payload{
		"scene_id": res.SceneID,
		"phase":    string(res.Phase),
		"job_id":   res.JobID,
	}
	for key, value := range extra {
		payload[key] = value
	}
	if err := h.publisher.Publish(ctx, event, payload); err != nil {
		h.logger.Warn("event publish failed",
			logging.String(logging.FieldEventType, string(event)), logging.Error(err))
	}
}

func metadataPayload(probe *media.Probe) events.Payload {
	if probe == nil {
		return nil
	}
	return events.Payload{
		"duration": probe.Duration,
		"width":    probe.Width,
		"height":   probe.Height,
	}
}

func errText(res job.Result) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return "unknown error"
}
