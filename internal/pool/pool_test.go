package pool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"telecine/internal/job"
	"telecine/internal/media"
	"telecine/internal/pool"
)

func newTestPool(t *testing.T, workers int, timeout time.Duration) *pool.WorkerPool {
	t.Helper()
	p := pool.New(job.PhaseMetadata, pool.Options{
		Workers:    workers,
		QueueDepth: 8,
		Timeout:    timeout,
	})
	t.Cleanup(p.Stop)
	return p
}

func awaitResult(t *testing.T, p *pool.WorkerPool) job.Result {
	t.Helper()
	select {
	case res, ok := <-p.Results():
		if !ok {
			t.Fatal("result channel closed before a result arrived")
		}
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a result")
	}
	return job.Result{}
}

func TestPoolExecutesJobToCompletion(t *testing.T) {
	p := newTestPool(t, 1, 0)
	p.Start()

	j := job.NewMetadata(1, "/library/a.mkv", func(context.Context, string) (*media.Probe, error) {
		return &media.Probe{Duration: 120, Width: 1920, Height: 1080}, nil
	})
	if err := p.Submit(j); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	res := awaitResult(t, p)
	if res.Status != job.StatusCompleted {
		t.Fatalf("expected completed, got %s (err %v)", res.Status, res.Err)
	}
	if res.JobID != j.ID() || res.SceneID != 1 || res.Phase != job.PhaseMetadata {
		t.Fatalf("result identity mismatch: %+v", res)
	}
	if j.Result == nil || j.Result.Duration != 120 {
		t.Fatalf("probe result not captured: %+v", j.Result)
	}
}

func TestPoolRejectsSubmitBeforeStart(t *testing.T) {
	p := newTestPool(t, 1, 0)

	err := p.Submit(job.NewMetadata(1, "/library/a.mkv", probeStub))
	if !errors.Is(err, pool.ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPoolDeduplicatesUntilTerminal(t *testing.T) {
	p := newTestPool(t, 1, 0)
	p.Start()

	release := make(chan struct{})
	first := job.NewMetadata(42, "/library/a.mkv", func(ctx context.Context, _ string) (*media.Probe, error) {
		select {
		case <-release:
			return &media.Probe{Duration: 10}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if err := p.Submit(first); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	dup := job.NewMetadata(42, "/library/a.mkv", probeStub)
	err := p.Submit(dup)
	var dupErr *pool.DuplicateJobError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateJobError, got %v", err)
	}
	if dupErr.ExistingJobID != first.ID() || dupErr.SceneID != 42 || dupErr.Phase != job.PhaseMetadata {
		t.Fatalf("duplicate error mismatch: %+v", dupErr)
	}

	close(release)
	if res := awaitResult(t, p); res.Status != job.StatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}

	// A terminal result frees the (scene, phase) key for resubmission.
	again := job.NewMetadata(42, "/library/a.mkv", probeStub)
	if err := p.Submit(again); err != nil {
		t.Fatalf("resubmission after terminal result rejected: %v", err)
	}
	if res := awaitResult(t, p); res.Status != job.StatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
}

func TestPoolClassifiesTimeout(t *testing.T) {
	p := newTestPool(t, 1, 30*time.Millisecond)
	p.Start()

	j := job.NewMetadata(5, "/library/slow.mkv", func(ctx context.Context, _ string) (*media.Probe, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err := p.Submit(j); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	res := awaitResult(t, p)
	if res.Status != job.StatusTimedOut {
		t.Fatalf("expected timed_out, got %s (err %v)", res.Status, res.Err)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", res.Err)
	}
}

func TestPoolCancelRunningJob(t *testing.T) {
	p := newTestPool(t, 1, 0)
	p.Start()

	started := make(chan struct{})
	j := job.NewMetadata(6, "/library/c.mkv", func(ctx context.Context, _ string) (*media.Probe, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err := p.Submit(j); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started

	if err := p.CancelJob(j.ID()); err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}

	res := awaitResult(t, p)
	if res.Status != job.StatusCancelled {
		t.Fatalf("expected cancelled, got %s (err %v)", res.Status, res.Err)
	}
}

func TestPoolCancelQueuedJobBeforePickup(t *testing.T) {
	p := newTestPool(t, 1, 0)
	p.Start()

	release := make(chan struct{})
	blocker := job.NewMetadata(1, "/library/a.mkv", func(ctx context.Context, _ string) (*media.Probe, error) {
		select {
		case <-release:
			return &media.Probe{Duration: 1}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if err := p.Submit(blocker); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	executed := false
	queued := job.NewMetadata(2, "/library/b.mkv", func(context.Context, string) (*media.Probe, error) {
		executed = true
		return &media.Probe{Duration: 1}, nil
	})
	if err := p.Submit(queued); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := p.CancelJob(queued.ID()); err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}

	close(release)
	statuses := map[string]job.Status{}
	for i := 0; i < 2; i++ {
		res := awaitResult(t, p)
		statuses[res.JobID] = res.Status
	}
	if statuses[blocker.ID()] != job.StatusCompleted {
		t.Fatalf("blocker status = %s", statuses[blocker.ID()])
	}
	if statuses[queued.ID()] != job.StatusCancelled {
		t.Fatalf("queued job status = %s", statuses[queued.ID()])
	}
	if executed {
		t.Fatal("cancelled queued job still executed")
	}
}

func TestPoolFailureClassification(t *testing.T) {
	p := newTestPool(t, 1, 0)
	p.Start()

	boom := errors.New("probe exploded")
	j := job.NewMetadata(8, "/library/d.mkv", func(context.Context, string) (*media.Probe, error) {
		return nil, boom
	})
	if err := p.Submit(j); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	res := awaitResult(t, p)
	if res.Status != job.StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if !errors.Is(res.Err, boom) {
		t.Fatalf("expected wrapped probe error, got %v", res.Err)
	}
}

func TestGracefulStopReclaimsQueuedJobs(t *testing.T) {
	p := pool.New(job.PhaseMetadata, pool.Options{Workers: 1, QueueDepth: 8})
	p.Start()

	release := make(chan struct{})
	running := job.NewMetadata(1, "/library/a.mkv", func(ctx context.Context, _ string) (*media.Probe, error) {
		select {
		case <-release:
			return &media.Probe{Duration: 1}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if err := p.Submit(running); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	var queued []string
	for sceneID := int64(2); sceneID <= 4; sceneID++ {
		j := job.NewMetadata(sceneID, "/library/q.mkv", probeStub)
		if err := p.Submit(j); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		queued = append(queued, j.ID())
	}

	time.AfterFunc(50*time.Millisecond, func() { close(release) })
	reclaimed := p.GracefulStop(2 * time.Second)

	// Conservation: the running job completed, everything buffered came
	// back for durable requeueing.
	var results []job.Result
	for res := range p.Results() {
		results = append(results, res)
	}
	if len(results) != 1 || results[0].JobID != running.ID() || results[0].Status != job.StatusCompleted {
		t.Fatalf("unexpected results: %+v", results)
	}
	if len(reclaimed) != len(queued) {
		t.Fatalf("expected %d reclaimed jobs, got %d", len(queued), len(reclaimed))
	}
	reclaimedSet := map[string]bool{}
	for _, id := range reclaimed {
		reclaimedSet[id] = true
	}
	for _, id := range queued {
		if !reclaimedSet[id] {
			t.Fatalf("queued job %s neither executed nor reclaimed", id)
		}
	}
}

func TestStopNeverRunsBufferedJobs(t *testing.T) {
	p := pool.New(job.PhaseMetadata, pool.Options{Workers: 1, QueueDepth: 8})
	p.Start()

	blocking := job.NewMetadata(1, "/library/a.mkv", func(ctx context.Context, _ string) (*media.Probe, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err := p.Submit(blocking); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	for p.ExecutingCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	var ran atomic.Bool
	buffered := job.NewMetadata(2, "/library/b.mkv", func(context.Context, string) (*media.Probe, error) {
		ran.Store(true)
		return &media.Probe{Duration: 10}, nil
	})
	if err := p.Submit(buffered); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Stop cancels the pool context while the buffered job sits in the
	// queue; the freed worker must not pick it up.
	p.Stop()

	if ran.Load() {
		t.Fatal("buffered job executed after Stop")
	}
	for res := range p.Results() {
		if res.JobID == buffered.ID() {
			t.Fatalf("buffered job produced a result: %+v", res)
		}
	}
	if _, ok := p.GetJob(buffered.ID()); ok {
		t.Fatal("buffered job still registered after Stop")
	}
}

func TestStopDropsQueuedJobsWithoutExecuting(t *testing.T) {
	p := pool.New(job.PhaseMetadata, pool.Options{Workers: 1, QueueDepth: 8})

	p.Start()
	p.Stop()

	if err := p.Submit(job.NewMetadata(1, "/library/a.mkv", probeStub)); !errors.Is(err, pool.ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped after Stop, got %v", err)
	}
	if _, ok := <-p.Results(); ok {
		t.Fatal("expected closed result channel after Stop")
	}
}
