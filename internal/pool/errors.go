package pool

import (
	"errors"
	"fmt"

	"telecine/internal/job"
)

// ErrPoolStopped is returned by Submit when the pool is not accepting work.
var ErrPoolStopped = errors.New("pool stopped")

// ErrJobNotFound is returned by lookups and CancelJob when no tracked job
// matches.
var ErrJobNotFound = errors.New("job not found")

// ErrPhaseUnavailable is returned for submissions targeting a phase with no
// pool, such as fingerprinting when it is disabled.
var ErrPhaseUnavailable = errors.New("no pool for phase")

// DuplicateJobError reports a submission rejected because a job for the same
// (scene, phase) pair is already queued or executing. The submission has no
// side effects; ExistingJobID identifies the job that won.
type DuplicateJobError struct {
	SceneID       int64
	Phase         job.Phase
	ExistingJobID string
}

func (e *DuplicateJobError) Error() string {
	return fmt.Sprintf("duplicate %s job for scene %d: job %s already tracked", e.Phase, e.SceneID, e.ExistingJobID)
}

// IsDuplicate reports whether err is (or wraps) a DuplicateJobError.
func IsDuplicate(err error) bool {
	var dup *DuplicateJobError
	return errors.As(err, &dup)
}
