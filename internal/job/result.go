package job

// Result is the immutable record a pool emits for every executed (or
// cancelled) job. Job carries the completed job itself so the consumer can
// extract the phase-specific payload; ownership transfers to the consumer
// with the send.
type Result struct {
	JobID   string
	SceneID int64
	Phase   Phase
	Status  Status
	Err     error
	Job     Job
}

// NewResult captures a job's terminal state.
func NewResult(j Job, status Status, err error) Result {
	return Result{
		JobID:   j.ID(),
		SceneID: j.SceneID(),
		Phase:   j.Phase(),
		Status:  status,
		Err:     err,
		Job:     j,
	}
}
