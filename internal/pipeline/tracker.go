package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"telecine/internal/job"
	"telecine/internal/logging"
	"telecine/internal/store"
)

// Trigger run modes.
const (
	RunOnImport = "on_import"
	RunAfterJob = "after_job"
	RunManual   = "manual"
)

// Trigger is one edge of the phase dependency graph.
type Trigger struct {
	Phase job.Phase
	Run   string
	After job.Phase
}

// TriggerSource supplies the persisted trigger records.
type TriggerSource interface {
	ListTriggers(ctx context.Context) ([]store.TriggerRow, error)
}

// PhaseState tracks which of the parallel follow-up phases have finished
// for one scene. Phases outside this set complete independently.
type PhaseState struct {
	Thumbnail bool
	Sprites   bool
	Animated  bool
}

// PhaseTracker caches the trigger graph and evaluates per-scene pipeline
// completion.
type PhaseTracker struct {
	source TriggerSource
	logger *slog.Logger

	mu       sync.RWMutex
	triggers []Trigger
	states   map[int64]*PhaseState
}

func NewTracker(source TriggerSource, logger *slog.Logger) *PhaseTracker {
	return &PhaseTracker{
		source: source,
		logger: logging.NewComponentLogger(logger, "phase-tracker"),
		states: make(map[int64]*PhaseState),
	}
}

// RefreshTriggerCache replaces the cached trigger list atomically.
func (t *PhaseTracker) RefreshTriggerCache(ctx context.Context) error {
	rows, err := t.source.ListTriggers(ctx)
	if err != nil {
		return err
	}
	triggers := make([]Trigger, 0, len(rows))
	for _, row := range rows {
		phase, ok := job.ParsePhase(row.Phase)
		if !ok {
			t.logger.Warn("skipping trigger for unknown phase", logging.String(logging.FieldPhase, row.Phase))
			continue
		}
		trigger := Trigger{Phase: phase, Run: row.Run}
		if row.AfterPhase != "" {
			after, ok := job.ParsePhase(row.AfterPhase)
			if !ok {
				t.logger.Warn("skipping trigger with unknown predecessor",
					logging.String(logging.FieldPhase, row.Phase),
					logging.String("after", row.AfterPhase))
				continue
			}
			trigger.After = after
		}
		triggers = append(triggers, trigger)
	}

	t.mu.Lock()
	t.triggers = triggers
	t.mu.Unlock()
	return nil
}

// GetTriggerForPhase returns the first trigger configured for the phase.
func (t *PhaseTracker) GetTriggerForPhase(phase job.Phase) (Trigger, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, trigger := range t.triggers {
		if trigger.Phase == phase {
			return trigger, true
		}
	}
	return Trigger{}, false
}

// GetPhasesTriggeredAfter returns the phases configured to run once the
// given phase completes, in fixed phase order.
func (t *PhaseTracker) GetPhasesTriggeredAfter(completed job.Phase) []job.Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var phases []job.Phase
	for _, candidate := range job.AllPhases() {
		for _, trigger := range t.triggers {
			if trigger.Phase == candidate && trigger.Run == RunAfterJob && trigger.After == completed {
				phases = append(phases, candidate)
				break
			}
		}
	}
	return phases
}

// OnImportPhases returns the phases configured to run when a scene is
// first added.
func (t *PhaseTracker) OnImportPhases() []job.Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var phases []job.Phase
	for _, candidate := range job.AllPhases() {
		for _, trigger := range t.triggers {
			if trigger.Phase == candidate && trigger.Run == RunOnImport {
				phases = append(phases, candidate)
				break
			}
		}
	}
	return phases
}

// InitPhaseState starts pipeline tracking for a scene, discarding any stale
// entry from an earlier run.
func (t *PhaseTracker) InitPhaseState(sceneID int64) {
	t.mu.Lock()
	t.states[sceneID] = &PhaseState{}
	t.mu.Unlock()
}

// MarkPhaseComplete records completion of a tracked phase. Phases outside
// the tracked set are ignored.
func (t *PhaseTracker) MarkPhaseComplete(sceneID int64, phase job.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[sceneID]
	if !ok {
		return
	}
	switch phase {
	case job.PhaseThumbnail:
		state.Thumbnail = true
	case job.PhaseSprites:
		state.Sprites = true
	case job.PhaseAnimated:
		state.Animated = true
	}
}

// CheckAllPhasesComplete decides whether the scene's configured pipeline has
// finished. Without tracked state, the pipeline is complete only when
// metadata just finished and nothing is configured to follow it. With
// tracked state, completion requires every thumbnail/sprites phase that the
// trigger graph hangs off metadata; phases outside the configured pipeline
// are vacuously done. On completion the state entry is removed so a later
// run starts fresh.
func (t *PhaseTracker) CheckAllPhasesComplete(sceneID int64, completed job.Phase) bool {
	followUps := t.GetPhasesTriggeredAfter(job.PhaseMetadata)

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[sceneID]
	if !ok {
		return completed == job.PhaseMetadata && len(followUps) == 0
	}

	for _, phase := range followUps {
		switch phase {
		case job.PhaseThumbnail:
			if !state.Thumbnail {
				return false
			}
		case job.PhaseSprites:
			if !state.Sprites {
				return false
			}
		}
	}

	delete(t.states, sceneID)
	return true
}

// ClearPhaseState abandons pipeline tracking for a scene after a failure,
// cancellation, or timeout. A fresh submission restarts from metadata.
func (t *PhaseTracker) ClearPhaseState(sceneID int64) {
	t.mu.Lock()
	delete(t.states, sceneID)
	t.mu.Unlock()
}
