package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"telecine/internal/job"
	"telecine/internal/logging"
	"telecine/internal/metrics"
)

// Options describes worker pool construction parameters.
type Options struct {
	Workers    int
	QueueDepth int
	// Timeout bounds each job's execution when positive; zero disables the
	// per-job deadline.
	Timeout time.Duration
	Logger  *slog.Logger
}

// WorkerPool executes jobs of one phase with bounded parallelism and delivers
// results on a single channel. It owns the dedup registry for its phase.
//
// Lifecycle: New -> Start -> (Submit | CancelJob | lookups)* -> Stop or
// GracefulStop. Start and both stop variants are idempotent.
type WorkerPool struct {
	phase   job.Phase
	workers int
	timeout time.Duration
	logger  *slog.Logger

	registry *Registry
	queue    chan job.Job
	results  chan job.Result

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool

	// draining flips during GracefulStop: workers reclaim buffered jobs
	// instead of executing them while in-flight work finishes.
	draining atomic.Bool

	execMu    sync.Mutex
	executing map[string]job.Job

	reclaimMu sync.Mutex
	reclaimed []string
}

// New constructs a stopped pool for one phase.
func New(phase job.Phase, opts Options) *WorkerPool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueDepth < 1 {
		opts.QueueDepth = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		phase:     phase,
		workers:   opts.Workers,
		timeout:   opts.Timeout,
		logger:    logging.NewComponentLogger(logger, "pool").With(logging.String(logging.FieldPhase, string(phase))),
		registry:  NewRegistry(),
		queue:     make(chan job.Job, opts.QueueDepth),
		results:   make(chan job.Result, opts.QueueDepth),
		ctx:       ctx,
		cancel:    cancel,
		executing: make(map[string]job.Job),
	}
}

// Phase returns the phase this pool executes.
func (p *WorkerPool) Phase() job.Phase { return p.phase }

// Workers returns the configured worker count.
func (p *WorkerPool) Workers() int { return p.workers }

// Results returns the channel terminal job results are delivered on. It is
// closed after Stop or GracefulStop returns all workers.
func (p *WorkerPool) Results() <-chan job.Result { return p.results }

// QueueLen reports jobs buffered but not yet picked up by a worker.
func (p *WorkerPool) QueueLen() int { return len(p.queue) }

// ExecutingCount reports jobs currently occupying a worker.
func (p *WorkerPool) ExecutingCount() int {
	p.execMu.Lock()
	defer p.execMu.Unlock()
	return len(p.executing)
}

// Start spawns the worker loops. Calling Start on a running or stopped pool
// is a no-op.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.stopped {
		return
	}
	p.running = true
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker()
	}
	p.logger.Info("pool started", logging.Int("workers", p.workers))
}

// Submit registers the job for deduplication and queues it for execution.
// It returns ErrPoolStopped when the pool is not running, a
// DuplicateJobError when a job for the same (scene, phase) is already
// tracked, and otherwise blocks until the bounded queue accepts the job or
// the pool shuts down.
func (p *WorkerPool) Submit(j job.Job) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return ErrPoolStopped
	}

	if existing := p.registry.Register(j); existing != "" {
		metrics.JobsDuplicate.WithLabelValues(string(p.phase)).Inc()
		return &DuplicateJobError{SceneID: j.SceneID(), Phase: j.Phase(), ExistingJobID: existing}
	}

	select {
	case p.queue <- j:
		metrics.JobsSubmitted.WithLabelValues(string(p.phase)).Inc()
		metrics.QueueDepth.WithLabelValues(string(p.phase)).Set(float64(len(p.queue)))
		return nil
	case <-p.ctx.Done():
		p.registry.Unregister(j.ID())
		return ErrPoolStopped
	}
}

// CancelJob requests cooperative cancellation of a queued or executing job.
func (p *WorkerPool) CancelJob(id string) error {
	j, ok := p.registry.Get(id)
	if !ok {
		return ErrJobNotFound
	}
	j.Cancel()
	return nil
}

// GetJob returns any tracked job (queued or executing) by id.
func (p *WorkerPool) GetJob(id string) (job.Job, bool) {
	return p.registry.Get(id)
}

// GetExecutingJob returns the job only if a worker has actually picked it up.
// Jobs still sitting in the queue buffer are excluded, which is what lets
// callers report start times at true execution time.
func (p *WorkerPool) GetExecutingJob(id string) (job.Job, bool) {
	p.execMu.Lock()
	defer p.execMu.Unlock()
	j, ok := p.executing[id]
	return j, ok
}

// Stop cancels all execution, drops any buffered jobs without running them,
// waits for workers to exit, and closes the result channel. Idempotent.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	wasRunning := p.running
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.drainQueue(false)
	close(p.results)
	if wasRunning {
		p.logger.Info("pool stopped")
	}
}

// GracefulStop stops accepting submissions, waits up to timeout for
// in-flight jobs to finish normally, then cancels whatever remains and
// returns the ids of jobs that were never executed so the caller can requeue
// them in durable storage. Every job submitted before the call either
// reaches a terminal result or appears in the returned list.
func (p *WorkerPool) GracefulStop(timeout time.Duration) []string {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	wasRunning := p.running
	p.running = false
	p.mu.Unlock()

	if !wasRunning {
		p.cancel()
		p.drainQueue(true)
		close(p.results)
		return p.takeReclaimed()
	}

	p.draining.Store(true)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.ExecutingCount() == 0 && len(p.queue) == 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	p.cancel()
	p.wg.Wait()
	p.drainQueue(true)
	close(p.results)

	reclaimed := p.takeReclaimed()
	p.logger.Info("pool drained",
		logging.Int("reclaimed", len(reclaimed)),
	)
	return reclaimed
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-p.queue:
			// Both cases can be ready at shutdown; a buffered job must
			// never run once the pool context is cancelled.
			if p.ctx.Err() != nil {
				if p.draining.Load() {
					p.reclaim(j)
				} else {
					p.registry.Unregister(j.ID())
				}
				return
			}
			if p.draining.Load() {
				p.reclaim(j)
				continue
			}
			p.runJob(j)
		}
	}
}

func (p *WorkerPool) runJob(j job.Job) {
	metrics.QueueDepth.WithLabelValues(string(p.phase)).Set(float64(len(p.queue)))

	if j.Cancelled() {
		p.registry.Unregister(j.ID())
		j.SetStatus(job.StatusCancelled)
		metrics.JobsFinished.WithLabelValues(string(p.phase), string(job.StatusCancelled)).Inc()
		p.emit(job.NewResult(j, job.StatusCancelled, j.Err()))
		return
	}

	var execCtx context.Context
	var cancel context.CancelFunc
	if p.timeout > 0 {
		execCtx, cancel = context.WithTimeout(p.ctx, p.timeout)
	} else {
		execCtx, cancel = context.WithCancel(p.ctx)
	}
	j.Bind(cancel)

	p.execMu.Lock()
	p.executing[j.ID()] = j
	p.execMu.Unlock()
	metrics.JobsExecuting.WithLabelValues(string(p.phase)).Inc()

	j.SetStatus(job.StatusRunning)
	started := time.Now()
	err := j.Execute(execCtx)
	cancel()

	p.execMu.Lock()
	delete(p.executing, j.ID())
	p.execMu.Unlock()
	metrics.JobsExecuting.WithLabelValues(string(p.phase)).Dec()

	p.registry.Unregister(j.ID())

	status := classify(j, err)
	j.SetStatus(status)
	metrics.JobsFinished.WithLabelValues(string(p.phase), string(status)).Inc()
	metrics.JobDuration.WithLabelValues(string(p.phase)).Observe(time.Since(started).Seconds())

	if err != nil && status == job.StatusFailed {
		p.logger.Warn("job failed",
			logging.String(logging.FieldJobID, j.ID()),
			logging.Int64(logging.FieldSceneID, j.SceneID()),
			logging.Error(err),
		)
	}

	p.emit(job.NewResult(j, status, err))
}

// classify trusts the job's self-reported terminal status (timed_out vs
// cancelled) over the raw error, per the execution contract.
func classify(j job.Job, err error) job.Status {
	switch st := j.Status(); st {
	case job.StatusTimedOut, job.StatusCancelled, job.StatusFailed:
		return st
	}
	if err != nil {
		return job.StatusFailed
	}
	return job.StatusCompleted
}

func (p *WorkerPool) emit(res job.Result) {
	select {
	case p.results <- res:
	case <-p.ctx.Done():
		// Shutdown never blocks behind a full result buffer.
	}
}

func (p *WorkerPool) reclaim(j job.Job) {
	p.registry.Unregister(j.ID())
	p.reclaimMu.Lock()
	p.reclaimed = append(p.reclaimed, j.ID())
	p.reclaimMu.Unlock()
	metrics.JobsReclaimed.WithLabelValues(string(p.phase)).Inc()
}

// drainQueue empties the buffer after workers have exited. Jobs found here
// were never executed; reclaimable drains record them for the caller.
func (p *WorkerPool) drainQueue(reclaimable bool) {
	for {
		select {
		case j := <-p.queue:
			p.registry.Unregister(j.ID())
			if reclaimable {
				p.reclaimMu.Lock()
				p.reclaimed = append(p.reclaimed, j.ID())
				p.reclaimMu.Unlock()
				metrics.JobsReclaimed.WithLabelValues(string(p.phase)).Inc()
			}
		default:
			return
		}
	}
}

func (p *WorkerPool) takeReclaimed() []string {
	p.reclaimMu.Lock()
	defer p.reclaimMu.Unlock()
	out := p.reclaimed
	p.reclaimed = nil
	return out
}
