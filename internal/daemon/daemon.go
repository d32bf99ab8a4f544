package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vigil/internal/api"
	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/notifications"
	"vigil/internal/pipeline"
	"vigil/internal/session"
	"vigil/internal/stage"
	"vigil/internal/stream"
)

const shutdownTimeout = 30 * time.Second

// Dependencies are the collaborators the daemon coordinates.
type Dependencies struct {
	Store        session.Store
	StoreBackend string
	Manager      *pipeline.Manager
	Registry     *stream.Registry
	LogHub       *logging.StreamHub
	Notifier     notifications.Service
	// Health lists the detectors and reasoning backend reported by Status.
	Health []stage.HealthChecker
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    session.Store
	backend  string
	manager  *pipeline.Manager
	registry *stream.Registry
	sessions *api.SessionService
	logHub   *logging.StreamHub
	notifier notifications.Service
	health   *healthCache
	janitor  *janitor
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	StoreBackend string
	DatabasePath string
	LockFilePath string
	Pipeline     pipeline.Summary
	Observers    int
	Health       []stage.Health
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, deps Dependencies) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Manager == nil || deps.Registry == nil {
		return nil, errors.New("daemon requires config, store, pipeline manager, and stream registry")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    deps.Store,
		backend:  deps.StoreBackend,
		manager:  deps.Manager,
		registry: deps.Registry,
		sessions: api.NewSessionService(deps.Store),
		logHub:   deps.LogHub,
		notifier: deps.Notifier,
		health:   newHealthCache(deps.Health, healthTTL),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	if d.backend == "" {
		d.backend = cfg.Store.Backend
	}
	d.janitor = newJanitor(cfg, deps.Store, logger)
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, fails sessions left mid-pipeline by a
// previous process, and starts the API server and janitor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vigil daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if _, err := d.manager.Recover(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("recover interrupted sessions: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start api server: %w", err)
	}
	if err := d.janitor.start(); err != nil {
		d.api.stop()
		d.abortStart()
		return fmt.Errorf("start janitor: %w", err)
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("vigil daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("store_backend", d.backend),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops the API and janitor, waits for active analyses to record a
// terminal state, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.janitor.stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.manager.Shutdown(shutdownCtx); err != nil {
		logging.WarnWithContext(d.logger, "active analyses did not stop in time", "daemon_shutdown_timeout",
			logging.String(logging.FieldErrorHint, "inspect sessions left in a processing status"),
			logging.String(logging.FieldImpact, "the next start marks them interrupted"),
			logging.Error(err),
		)
	}
	d.registry.Close()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("vigil daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the bound HTTP address, or "" when the API is disabled.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Sessions returns the read-only session service.
func (d *Daemon) Sessions() *api.SessionService {
	return d.sessions
}

// CreateSession stores a pending session and optionally starts it.
func (d *Daemon) CreateSession(ctx context.Context, req api.CreateSessionRequest) (*session.Session, error) {
	sess, err := d.manager.Create(ctx, req.PatientID, req.VideoRef, req.AudioRef)
	if err != nil {
		return nil, err
	}
	if !req.Start {
		return sess, nil
	}
	if err := d.manager.Start(ctx, sess.ID); err != nil {
		return sess, err
	}
	return d.store.Get(ctx, sess.ID)
}

// StartSession launches the pipeline for a pending session.
func (d *Daemon) StartSession(ctx context.Context, id string) error {
	return d.manager.Start(ctx, id)
}

// CancelSession asks a session's run to stop at the next stage boundary.
func (d *Daemon) CancelSession(ctx context.Context, id string) error {
	return d.manager.Cancel(ctx, id)
}

// RetrySession creates a fresh pending session from a failed one.
func (d *Daemon) RetrySession(ctx context.Context, id string, start bool) (*session.Session, error) {
	next, err := d.manager.Retry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !start {
		return next, nil
	}
	if err := d.manager.Start(ctx, next.ID); err != nil {
		return next, err
	}
	return d.store.Get(ctx, next.ID)
}

// RunRetention runs the janitor once outside its schedule.
func (d *Daemon) RunRetention(ctx context.Context) (int, int) {
	return d.janitor.runOnce(ctx)
}

// LogStream exposes the in-memory log hub.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := d.notifier
	if notifier == nil {
		notifier = notifications.NewService(d.cfg)
	}
	if err := notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    d.startedAt,
		StoreBackend: d.backend,
		LockFilePath: d.lockPath,
		Pipeline:     d.manager.Status(),
		Observers:    d.registry.Total(),
		Health:       d.health.get(ctx),
	}
	if d.backend == "sqlite" {
		status.DatabasePath = d.cfg.DatabasePath()
	}
	return status
}
