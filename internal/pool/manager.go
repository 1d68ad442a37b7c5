package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"telecine/internal/config"
	"telecine/internal/job"
	"telecine/internal/logging"
)

// ResultConsumer receives every terminal job result exactly once.
type ResultConsumer interface {
	Handle(ctx context.Context, res job.Result)
}

// ConfigStore persists runtime overrides for pool and quality settings so
// they survive daemon restarts.
type ConfigStore interface {
	LoadPoolSettings(ctx context.Context) (config.Pools, bool, error)
	SavePoolSettings(ctx context.Context, pools config.Pools) error
	LoadQualitySettings(ctx context.Context) (config.Quality, bool, error)
	SaveQualitySettings(ctx context.Context, quality config.Quality) error
}

// Requeuer returns reclaimed job ids to durable storage so they run after
// the next startup or pool swap.
type Requeuer interface {
	Requeue(ctx context.Context, jobIDs []string) error
}

// PhaseStatus is a point-in-time snapshot of one pool.
type PhaseStatus struct {
	Phase     job.Phase
	Workers   int
	Queued    int
	Executing int
}

// Manager owns one worker pool per enabled phase and fans their results into
// a single consumer. Pools can be resized at runtime by swapping in a new
// pool and draining the old one.
type Manager struct {
	logger   *slog.Logger
	settings ConfigStore
	requeuer Requeuer

	fingerprints    bool
	shutdownTimeout time.Duration

	mu      sync.RWMutex
	pools   map[job.Phase]*WorkerPool
	poolCfg config.Pools
	quality config.Quality
	started bool
	stopped bool

	runCtx     context.Context
	runCancel  context.CancelFunc
	consumer   ResultConsumer
	forwarders sync.WaitGroup
}

// NewManager builds a manager from file configuration. Persisted overrides
// are applied during Start.
func NewManager(cfg *config.Config, settings ConfigStore, requeuer Requeuer, logger *slog.Logger) *Manager {
	runCtx, runCancel := context.WithCancel(context.Background())
	return &Manager{
		logger:          logging.NewComponentLogger(logger, "pool-manager"),
		settings:        settings,
		requeuer:        requeuer,
		fingerprints:    cfg.Fingerprints.Enabled,
		shutdownTimeout: time.Duration(cfg.Workflow.ShutdownTimeout) * time.Second,
		pools:           make(map[job.Phase]*WorkerPool),
		poolCfg:         cfg.Pools,
		quality:         cfg.Quality,
		runCtx:          runCtx,
		runCancel:       runCancel,
	}
}

// Start applies persisted overrides, creates a pool per enabled phase, and
// begins forwarding results to the consumer.
func (m *Manager) Start(ctx context.Context, consumer ResultConsumer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return ErrPoolStopped
	}
	m.started = true
	m.consumer = consumer

	m.loadOverrides(ctx)

	for _, phase := range job.AllPhases() {
		if phase == job.PhaseFingerprint && !m.fingerprints {
			continue
		}
		p := m.newPool(phase, m.poolCfg)
		m.pools[phase] = p
		p.Start()
		m.forward(p)
	}

	m.logger.Info("pools started",
		logging.Int("pools", len(m.pools)),
		logging.Int("queue_depth", m.poolCfg.QueueDepth),
	)
	return nil
}

func (m *Manager) loadOverrides(ctx context.Context) {
	if m.settings == nil {
		return
	}
	if pools, ok, err := m.settings.LoadPoolSettings(ctx); err != nil {
		m.logger.Warn("failed to load pool overrides", logging.Error(err))
	} else if ok {
		if err := pools.Validate(); err != nil {
			m.logger.Warn("ignoring invalid persisted pool settings", logging.Error(err))
		} else {
			m.poolCfg = pools
		}
	}
	if quality, ok, err := m.settings.LoadQualitySettings(ctx); err != nil {
		m.logger.Warn("failed to load quality overrides", logging.Error(err))
	} else if ok {
		if err := quality.Validate(); err != nil {
			m.logger.Warn("ignoring invalid persisted quality settings", logging.Error(err))
		} else {
			m.quality = quality
		}
	}
}

func (m *Manager) newPool(phase job.Phase, pools config.Pools) *WorkerPool {
	return New(phase, Options{
		Workers:    workersFor(pools, phase),
		QueueDepth: pools.QueueDepth,
		Timeout:    time.Duration(pools.JobTimeout) * time.Second,
		Logger:     m.logger,
	})
}

func (m *Manager) forward(p *WorkerPool) {
	m.forwarders.Add(1)
	go func() {
		defer m.forwarders.Done()
		for res := range p.Results() {
			m.consumer.Handle(m.runCtx, res)
		}
	}()
}

// Submit routes the job to the pool for its phase.
func (m *Manager) Submit(j job.Job) error {
	m.mu.RLock()
	p, ok := m.pools[j.Phase()]
	m.mu.RUnlock()
	if !ok {
		return ErrPhaseUnavailable
	}
	return p.Submit(j)
}

// CancelJob requests cancellation of the job wherever it is tracked. Pools
// are checked in fixed phase order so repeated calls behave the same way.
func (m *Manager) CancelJob(id string) error {
	for _, p := range m.snapshot() {
		if err := p.CancelJob(id); err == nil {
			return nil
		}
	}
	return ErrJobNotFound
}

// GetJob finds a queued or executing job by id across all pools.
func (m *Manager) GetJob(id string) (job.Job, bool) {
	for _, p := range m.snapshot() {
		if j, ok := p.GetJob(id); ok {
			return j, true
		}
	}
	return nil, false
}

// GetExecutingJob finds a job only if a worker has picked it up.
func (m *Manager) GetExecutingJob(id string) (job.Job, bool) {
	for _, p := range m.snapshot() {
		if j, ok := p.GetExecutingJob(id); ok {
			return j, true
		}
	}
	return nil, false
}

// GetJobForScene finds the tracked job for a (scene, phase) pair.
func (m *Manager) GetJobForScene(sceneID int64, phase job.Phase) (job.Job, bool) {
	m.mu.RLock()
	p, ok := m.pools[phase]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return p.registry.GetByScene(sceneID, phase)
}

// Status reports a snapshot of every pool in fixed phase order.
func (m *Manager) Status() []PhaseStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PhaseStatus, 0, len(m.pools))
	for _, phase := range job.AllPhases() {
		p, ok := m.pools[phase]
		if !ok {
			continue
		}
		out = append(out, PhaseStatus{
			Phase:     phase,
			Workers:   p.Workers(),
			Queued:    p.QueueLen(),
			Executing: p.ExecutingCount(),
		})
	}
	return out
}

// PoolSettings returns the effective pool configuration.
func (m *Manager) PoolSettings() config.Pools {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.poolCfg
}

// QualitySettings returns the effective artifact quality configuration.
// Jobs built after an update observe the new values.
func (m *Manager) QualitySettings() config.Quality {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quality
}

// UpdatePoolSettings validates, persists, and applies new pool settings.
// Phases whose worker count or queue depth changed get a fresh pool; the old
// pool drains in the background and its unexecuted jobs are requeued.
func (m *Manager) UpdatePoolSettings(ctx context.Context, pools config.Pools) error {
	if err := pools.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrPoolStopped
	}
	previous := m.poolCfg
	m.poolCfg = pools

	var retired []*WorkerPool
	if m.started {
		for phase, old := range m.pools {
			if workersFor(previous, phase) == workersFor(pools, phase) && previous.QueueDepth == pools.QueueDepth {
				continue
			}
			fresh := m.newPool(phase, pools)
			m.pools[phase] = fresh
			fresh.Start()
			m.forward(fresh)
			retired = append(retired, old)
			m.logger.Info("pool resized",
				logging.String(logging.FieldPhase, string(phase)),
				logging.Int("workers", workersFor(pools, phase)),
			)
		}
	}
	m.mu.Unlock()

	for _, old := range retired {
		go m.retire(old)
	}

	if m.settings != nil {
		if err := m.settings.SavePoolSettings(ctx, pools); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) retire(old *WorkerPool) {
	reclaimed := old.GracefulStop(m.shutdownTimeout)
	if len(reclaimed) == 0 {
		return
	}
	m.requeue(reclaimed)
}

func (m *Manager) requeue(jobIDs []string) {
	if m.requeuer == nil {
		m.logger.Warn("dropping reclaimed jobs, no requeuer configured",
			logging.Int("jobs", len(jobIDs)))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.requeuer.Requeue(ctx, jobIDs); err != nil {
		m.logger.Error("failed to requeue reclaimed jobs",
			logging.Int("jobs", len(jobIDs)),
			logging.Error(err))
		return
	}
	m.logger.Info("requeued reclaimed jobs", logging.Int("jobs", len(jobIDs)))
}

// UpdateQualitySettings validates, persists, and applies new artifact
// quality settings. Running jobs keep the values they started with.
func (m *Manager) UpdateQualitySettings(ctx context.Context, quality config.Quality) error {
	if err := quality.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.quality = quality
	m.mu.Unlock()

	if m.settings != nil {
		if err := m.settings.SaveQualitySettings(ctx, quality); err != nil {
			return err
		}
	}
	return nil
}

// GracefulStop drains every pool concurrently, requeues all reclaimed jobs,
// and waits for result forwarding to finish. In-flight jobs get up to
// timeout to complete before cancellation.
func (m *Manager) GracefulStop(timeout time.Duration) {
	pools := m.markStopped()
	if pools == nil {
		return
	}

	var (
		wg        sync.WaitGroup
		reclaimMu sync.Mutex
		reclaimed []string
	)
	for _, p := range pools {
		wg.Add(1)
		go func(p *WorkerPool) {
			defer wg.Done()
			ids := p.GracefulStop(timeout)
			if len(ids) == 0 {
				return
			}
			reclaimMu.Lock()
			reclaimed = append(reclaimed, ids...)
			reclaimMu.Unlock()
		}(p)
	}
	wg.Wait()
	m.forwarders.Wait()

	if len(reclaimed) > 0 {
		m.requeue(reclaimed)
	}
	m.runCancel()
	m.logger.Info("pools drained", logging.Int("reclaimed", len(reclaimed)))
}

// Stop shuts down all pools immediately, dropping queued jobs.
func (m *Manager) Stop() {
	pools := m.markStopped()
	if pools == nil {
		return
	}
	for _, p := range pools {
		p.Stop()
	}
	m.forwarders.Wait()
	m.runCancel()
}

// markStopped flips the stopped flag and returns the pools to shut down, or
// nil if a stop already ran.
func (m *Manager) markStopped() []*WorkerPool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil
	}
	m.stopped = true
	out := make([]*WorkerPool, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p)
	}
	return out
}

// snapshot returns the current pools in fixed phase order.
func (m *Manager) snapshot() []*WorkerPool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*WorkerPool, 0, len(m.pools))
	for _, phase := range job.AllPhases() {
		if p, ok := m.pools[phase]; ok {
			out = append(out, p)
		}
	}
	return out
}

func workersFor(pools config.Pools, phase job.Phase) int {
	switch phase {
	case job.PhaseMetadata:
		return pools.MetadataWorkers
	case job.PhaseThumbnail:
		return pools.ThumbnailWorkers
	case job.PhaseSprites:
		return pools.SpritesWorkers
	case job.PhaseAnimated:
		return pools.AnimatedWorkers
	case job.PhaseFingerprint:
		return pools.FingerprintWorkers
	default:
		return 1
	}
}
