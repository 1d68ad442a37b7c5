package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"telecine/internal/config"
	"telecine/internal/events"
	"telecine/internal/job"
	"telecine/internal/logging"
	"telecine/internal/match"
	"telecine/internal/media"
	"telecine/internal/pipeline"
	"telecine/internal/pool"
	"telecine/internal/store"
)

// Daemon wires the processing pipeline together and enforces
// single-instance execution through a lock file.
type Daemon struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	manager   *pool.Manager
	submitter *pipeline.Submitter
	publisher events.Publisher
	metrics   *http.Server

	running atomic.Bool
	cancel  context.CancelFunc
}

func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	lockPath := filepath.Join(cfg.Paths.DataDir, "telecined.lock")
	return &Daemon{
		cfg:      cfg,
		store:    st,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Submitter exposes the job submission surface once the daemon is running.
func (d *Daemon) Submitter() *pipeline.Submitter { return d.submitter }

// Manager exposes the pool manager once the daemon is running.
func (d *Daemon) Manager() *pool.Manager { return d.manager }

// Start acquires the daemon lock, recovers interrupted jobs, and brings the
// pipeline up. It returns once everything is running.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another instance holds %s", d.lockPath)
	}

	recovered, err := d.store.ResetRunning(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if recovered > 0 {
		d.logger.Info("requeued interrupted jobs", logging.Int64("jobs", recovered))
	}

	if err := d.store.ReplaceTriggers(ctx, triggerRows(d.cfg)); err != nil {
		return fmt.Errorf("seed phase triggers: %w", err)
	}

	migrated, err := media.MigrateLegacyArtifacts(d.cfg.Paths.ArtifactsDir, d.logger)
	if err != nil {
		d.logger.Warn("legacy artifact migration incomplete", logging.Error(err))
	} else if migrated > 0 {
		d.logger.Info("migrated legacy artifacts", logging.Int("artifacts", migrated))
	}

	publisher, err := events.NewFromConfig(d.cfg)
	if err != nil {
		return fmt.Errorf("connect event sinks: %w", err)
	}
	d.publisher = publisher

	var matcher match.Service
	if d.cfg.Fingerprints.Enabled {
		matcher = match.NewHashMatcher(d.cfg.Fingerprints.MatchThreshold, d.logger)
	}

	generator := media.NewGenerator(d.cfg)
	tracker := pipeline.NewTracker(d.store, d.logger)
	if err := tracker.RefreshTriggerCache(ctx); err != nil {
		return fmt.Errorf("load trigger cache: %w", err)
	}

	d.manager = pool.NewManager(d.cfg, d.store, d.store, d.logger)
	factory := pipeline.NewFactory(generator, d.manager, d.cfg.Fingerprints)
	d.submitter = pipeline.NewSubmitter(d.store, d.store, factory, d.manager, tracker, d.logger)
	handler := pipeline.NewHandler(d.store, d.store, tracker, d.submitter, publisher, matcher, d.logger)

	if err := d.manager.Start(ctx, handler); err != nil {
		return fmt.Errorf("start pools: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	feeder := pipeline.NewFeeder(d.store, d.submitter, d.cfg, d.logger)
	go feeder.Run(runCtx)
	go d.backfillOnImport(runCtx)

	if err := d.startMetrics(); err != nil {
		d.logger.Warn("metrics listener unavailable", logging.Error(err))
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("database", d.store.Path()),
		logging.String("library", d.cfg.Paths.LibraryDir))
	return nil
}

// backfillOnImport queues every on_import phase for scenes that still need
// it, picking up files scanned in while the daemon was down.
func (d *Daemon) backfillOnImport(ctx context.Context) {
	for _, trigger := range d.cfg.Triggers {
		if trigger.Run != pipeline.RunOnImport {
			continue
		}
		phase, ok := job.ParsePhase(trigger.Phase)
		if !ok {
			continue
		}
		res, err := d.submitter.BulkSubmit(ctx, phase, nil, false)
		if err != nil {
			d.logger.Warn("startup backfill failed",
				logging.String(logging.FieldPhase, trigger.Phase), logging.Error(err))
			continue
		}
		if res.Submitted > 0 || res.Failed > 0 {
			d.logger.Info("startup backfill finished",
				logging.String(logging.FieldPhase, trigger.Phase),
				logging.Int("submitted", res.Submitted),
				logging.Int("duplicates", res.Duplicates),
				logging.Int("failed", res.Failed))
		}
	}
}

func (d *Daemon) startMetrics() error {
	bind := d.cfg.Paths.MetricsBind
	if bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	d.metrics = &http.Server{Handler: mux}
	go func() {
		if err := d.metrics.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Warn("metrics server stopped", logging.Error(err))
		}
	}()
	d.logger.Info("metrics listening", logging.String("bind", listener.Addr().String()))
	return nil
}

// Stop drains the pools gracefully and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}

	timeout := time.Duration(d.cfg.Workflow.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d.manager.GracefulStop(timeout)

	if d.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = d.metrics.Shutdown(shutdownCtx)
		cancel()
	}
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			d.logger.Warn("event sink close failed", logging.Error(err))
		}
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock failed", logging.Error(err))
	}
	d.logger.Info("daemon stopped")
}

func triggerRows(cfg *config.Config) []store.TriggerRow {
	rows := make([]store.TriggerRow, 0, len(cfg.Triggers))
	for _, trigger := range cfg.Triggers {
		rows = append(rows, store.TriggerRow{
			Phase:      trigger.Phase,
			Run:        trigger.Run,
			AfterPhase: trigger.After,
		})
	}
	return rows
}
