package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"telecine/internal/job"
)

// Queue states for durable job records.
const (
	QueueStatePending = "pending"
	QueueStateRunning = "running"
)

// QueuedJob is one durable job_queue row. Rows exist only while the job is
// pending or running; terminal jobs live in job_history.
type QueuedJob struct {
	ID         string
	SceneID    int64
	Phase      job.Phase
	State      string
	Priority   int
	Attempt    int
	MaxRetries int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const queueColumns = `id, scene_id, phase, state, priority, attempt, max_retries, created_at, updated_at`

func scanQueuedJob(row rowScanner) (*QueuedJob, error) {
	var (
		q         QueuedJob
		phase     string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&q.ID, &q.SceneID, &phase, &q.State, &q.Priority, &q.Attempt, &q.MaxRetries, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	q.Phase = job.Phase(phase)
	q.CreatedAt = parseTimestamp(createdAt)
	q.UpdatedAt = parseTimestamp(updatedAt)
	return &q, nil
}

// CreatePendingJob enqueues a durable job with default priority and no
// retry budget.
func (s *Store) CreatePendingJob(ctx context.Context, jobID string, sceneID int64, phase job.Phase) error {
	return s.CreatePendingJobWithRetry(ctx, jobID, sceneID, phase, 0, 0, 0)
}

// CreatePendingJobWithPriority enqueues a durable job that sorts ahead of
// default-priority work.
func (s *Store) CreatePendingJobWithPriority(ctx context.Context, jobID string, sceneID int64, phase job.Phase, priority int) error {
	return s.CreatePendingJobWithRetry(ctx, jobID, sceneID, phase, priority, 0, 0)
}

// CreatePendingJobWithRetry enqueues a durable job carrying retry
// bookkeeping threaded back from a failed attempt.
func (s *Store) CreatePendingJobWithRetry(ctx context.Context, jobID string, sceneID int64, phase job.Phase, priority, attempt, maxRetries int) error {
	now := timestamp()
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO job_queue (id, scene_id, phase, state, priority, attempt, max_retries, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, sceneID, string(phase), QueueStatePending, priority, attempt, maxRetries, now, now,
	); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// CreateRunningJob records a job dispatched straight into a pool so restart
// recovery can requeue it if the daemon dies mid-flight.
func (s *Store) CreateRunningJob(ctx context.Context, jobID string, sceneID int64, phase job.Phase, attempt, maxRetries int) error {
	now := timestamp()
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO job_queue (id, scene_id, phase, state, priority, attempt, max_retries, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, sceneID, string(phase), QueueStateRunning, 0, attempt, maxRetries, now, now,
	); err != nil {
		return fmt.Errorf("record running job: %w", err)
	}
	return nil
}

// ExistsPendingOrRunning reports whether a durable job for the pair is
// already queued or picked up.
func (s *Store) ExistsPendingOrRunning(ctx context.Context, sceneID int64, phase job.Phase) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM job_queue WHERE scene_id = ? AND phase = ?`,
		sceneID, string(phase)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check pending job: %w", err)
	}
	return count > 0, nil
}

// FindPendingOrRunning returns the durable job for the pair, or nil when
// the pair has no queued or picked-up row.
func (s *Store) FindPendingOrRunning(ctx context.Context, sceneID int64, phase job.Phase) (*QueuedJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM job_queue WHERE scene_id = ? AND phase = ? LIMIT 1`,
		sceneID, string(phase))
	queued, err := scanQueuedJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending job: %w", err)
	}
	return queued, nil
}

// NextPending returns up to limit pending jobs in dispatch order: highest
// priority first, then oldest first.
func (s *Store) NextPending(ctx context.Context, limit int) ([]*QueuedJob, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM job_queue
         WHERE state = ?
         ORDER BY priority DESC, created_at ASC, id ASC
         LIMIT ?`,
		QueueStatePending, limit)
	if err != nil {
		return nil, fmt.Errorf("next pending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*QueuedJob
	for rows.Next() {
		q, err := scanQueuedJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queued job: %w", err)
		}
		jobs = append(jobs, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queued jobs: %w", err)
	}
	return jobs, nil
}

// MarkRunning transitions a pending job to running. It returns false when
// the row was already picked up or removed, which keeps execution
// at-most-once across daemon restarts.
func (s *Store) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE job_queue SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		QueueStateRunning, timestamp(), jobID, QueueStatePending)
	if err != nil {
		return false, fmt.Errorf("mark running: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark running affected: %w", err)
	}
	return affected == 1, nil
}

// RemoveJob deletes the durable record once the in-memory job reaches a
// terminal result.
func (s *Store) RemoveJob(ctx context.Context, jobID string) error {
	return s.execWithoutResultRetry(ctx, `DELETE FROM job_queue WHERE id = ?`, jobID)
}

// Requeue returns reclaimed jobs to the pending state so the feeder
// dispatches them again.
func (s *Store) Requeue(ctx context.Context, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(jobIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(jobIDs)+2)
	args = append(args, QueueStatePending, timestamp())
	for _, id := range jobIDs {
		args = append(args, id)
	}
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE job_queue SET state = ?, updated_at = ? WHERE id IN (`+placeholders+`)`,
		args...,
	); err != nil {
		return fmt.Errorf("requeue jobs: %w", err)
	}
	return nil
}

// ResetRunning returns all running rows to pending. The daemon calls this at
// startup to recover jobs interrupted by a crash.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE job_queue SET state = ?, updated_at = ? WHERE state = ?`,
		QueueStatePending, timestamp(), QueueStateRunning)
	if err != nil {
		return 0, fmt.Errorf("reset running: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset running affected: %w", err)
	}
	return affected, nil
}

// ListQueue returns every durable job in dispatch order.
func (s *Store) ListQueue(ctx context.Context) ([]*QueuedJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM job_queue ORDER BY priority DESC, created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*QueuedJob
	for rows.Next() {
		q, err := scanQueuedJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queued job: %w", err)
		}
		jobs = append(jobs, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queued jobs: %w", err)
	}
	return jobs, nil
}

// ClearQueue removes all durable jobs and reports how many were dropped.
func (s *Store) ClearQueue(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM job_queue`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear queue affected: %w", err)
	}
	return affected, nil
}

// HistoryEntry is one row of the job execution log.
type HistoryEntry struct {
	JobID      string
	SceneID    int64
	Phase      job.Phase
	Status     string
	Error      string
	Attempt    int
	MaxRetries int
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecordJobStart logs the moment a worker picks up a job.
func (s *Store) RecordJobStart(ctx context.Context, jobID string, sceneID int64, phase job.Phase) error {
	return s.RecordJobStartWithRetry(ctx, jobID, sceneID, phase, 0, 0)
}

// RecordJobStartWithRetry logs a pickup that carries retry bookkeeping.
func (s *Store) RecordJobStartWithRetry(ctx context.Context, jobID string, sceneID int64, phase job.Phase, attempt, maxRetries int) error {
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO job_history (job_id, scene_id, phase, status, attempt, max_retries, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		jobID, sceneID, string(phase), string(job.StatusRunning), attempt, maxRetries, timestamp(),
	); err != nil {
		return fmt.Errorf("record job start: %w", err)
	}
	return nil
}

// RecordJobComplete marks the history row completed.
func (s *Store) RecordJobComplete(ctx context.Context, jobID string) error {
	return s.finishJob(ctx, jobID, string(job.StatusCompleted), "")
}

// RecordJobCancelled marks the history row cancelled.
func (s *Store) RecordJobCancelled(ctx context.Context, jobID string) error {
	return s.finishJob(ctx, jobID, string(job.StatusCancelled), "")
}

// RecordJobFailed marks the history row failed with the error text.
func (s *Store) RecordJobFailed(ctx context.Context, jobID, errMsg string) error {
	return s.finishJob(ctx, jobID, string(job.StatusFailed), errMsg)
}

// RecordJobFailedWithRetry marks the history row failed and, when the
// attempt budget allows, flips the durable queue row back to pending with
// the next attempt number. It reports whether a retry was queued.
func (s *Store) RecordJobFailedWithRetry(ctx context.Context, jobID, errMsg string, attempt, maxRetries int) (bool, error) {
	if err := s.finishJob(ctx, jobID, string(job.StatusFailed), errMsg); err != nil {
		return false, err
	}
	if attempt >= maxRetries {
		return false, nil
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE job_queue SET state = 'pending', attempt = ?, updated_at = ? WHERE id = ?`,
		attempt+1, timestamp(), jobID)
	if err != nil {
		return false, fmt.Errorf("requeue failed job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("requeue failed job: %w", err)
	}
	return affected > 0, nil
}

// RecordJobTimedOut marks the history row timed out.
func (s *Store) RecordJobTimedOut(ctx context.Context, jobID, errMsg string) error {
	return s.finishJob(ctx, jobID, string(job.StatusTimedOut), errMsg)
}

func (s *Store) finishJob(ctx context.Context, jobID, status, errMsg string) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE job_history SET status = ?, error = ?, finished_at = ?
         WHERE job_id = ? AND finished_at IS NULL`,
		status, nullableString(errMsg), timestamp(), jobID,
	); err != nil {
		return fmt.Errorf("finish job history: %w", err)
	}
	return nil
}

// RecentHistory returns the newest history rows, most recent first.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, scene_id, phase, status, error, attempt, max_retries, started_at, finished_at
         FROM job_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*HistoryEntry
	for rows.Next() {
		var (
			entry      HistoryEntry
			phase      string
			errMsg     sql.NullString
			startedAt  sql.NullString
			finishedAt sql.NullString
		)
		if err := rows.Scan(&entry.JobID, &entry.SceneID, &phase, &entry.Status, &errMsg,
			&entry.Attempt, &entry.MaxRetries, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.Phase = job.Phase(phase)
		entry.Error = errMsg.String
		entry.StartedAt = parseTimestamp(startedAt.String)
		entry.FinishedAt = parseTimestamp(finishedAt.String)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
