package pool

import (
	"sync"

	"telecine/internal/job"
)

type registryKey struct {
	sceneID int64
	phase   job.Phase
}

// Registry is the in-flight job index for one pool. It is the single
// deduplication decision point in the system: at any instant at most one
// registered job exists per (scene, phase) pair, and concurrent Register
// calls for the same pair are linearized under the registry lock so exactly
// one wins.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]job.Job
	byKey map[registryKey]string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]job.Job),
		byKey: make(map[registryKey]string),
	}
}

// Register tracks the job and returns "" on success. If a job for the same
// (scene, phase) pair is already tracked, the registry is left untouched and
// the existing job's id is returned.
func (r *Registry) Register(j job.Job) string {
	key := registryKey{sceneID: j.SceneID(), phase: j.Phase()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byKey[key]; ok {
		return existing
	}
	r.byID[j.ID()] = j
	r.byKey[key] = j.ID()
	return ""
}

// Unregister removes both mappings for the job id. Absent ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byKey, registryKey{sceneID: j.SceneID(), phase: j.Phase()})
}

// Get returns the tracked job with the given id.
func (r *Registry) Get(id string) (job.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.byID[id]
	return j, ok
}

// GetByScene returns the tracked job for a (scene, phase) pair.
func (r *Registry) GetByScene(sceneID int64, phase job.Phase) (job.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[registryKey{sceneID: sceneID, phase: phase}]
	if !ok {
		return nil, false
	}
	j, ok := r.byID[id]
	return j, ok
}

// Len reports the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
