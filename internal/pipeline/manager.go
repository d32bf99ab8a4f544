package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vigil/internal/logging"
	"vigil/internal/notifications"
	"vigil/internal/services"
	"vigil/internal/session"
	"vigil/internal/stream"
)

// ErrShuttingDown is returned by Start once Shutdown has begun.
var ErrShuttingDown = errors.New("pipeline manager shutting down")

// activeRun is the manager's handle on one running session.
type activeRun struct {
	started   time.Time
	cancelled atomic.Bool
	done      chan struct{}
}

// Manager owns pipeline runs. Each started session runs on its own goroutine
// detached from the caller's context; observer disconnects never affect it.
type Manager struct {
	store     session.Store
	runner    *Runner
	notifier  notifications.Service
	publisher Publisher
	logger    *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc

	mu       sync.Mutex
	active   map[string]*activeRun
	closing  bool
	wg       sync.WaitGroup
	lastErr  error
	finished int
	failed   int
}

// NewManager constructs a Manager. A nil notifier disables notifications.
func NewManager(store session.Store, runner *Runner, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	var publisher Publisher
	if runner != nil {
		publisher = runner.publisher
	}
	return &Manager{
		store:     store,
		runner:    runner,
		notifier:  notifier,
		publisher: publisher,
		logger:    logging.NewComponentLogger(logger, "pipeline-manager"),
		baseCtx:   ctx,
		stop:      cancel,
		active:    make(map[string]*activeRun),
	}
}

// Create stores a new pending session.
func (m *Manager) Create(ctx context.Context, patientID, videoRef, audioRef string) (*session.Session, error) {
	sess := &session.Session{
		ID:        uuid.NewString(),
		PatientID: strings.TrimSpace(patientID),
		VideoRef:  strings.TrimSpace(videoRef),
		AudioRef:  strings.TrimSpace(audioRef),
		Status:    session.StatusPending,
	}
	if sess.VideoRef == "" {
		return nil, services.Wrap(services.ErrValidation, "", "create session", "video_ref is required", nil)
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	m.logger.Info("session created",
		logging.String(logging.FieldEventType, "session_created"),
		logging.String(logging.FieldSessionID, sess.ID),
		logging.String("patient_id", sess.PatientID),
	)
	return m.store.Get(ctx, sess.ID)
}

// Start launches the pipeline for a pending session. It returns
// session.ErrDuplicateStart when a run is active or the session has left
// pending. The status is read under m.mu: a run leaves m.active only after
// its terminal snapshot is stored, so a finished run is never restarted.
func (m *Manager) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return ErrShuttingDown
	}
	if _, running := m.active[id]; running {
		return fmt.Errorf("%w: session %s is running", session.ErrDuplicateStart, id)
	}
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status != session.StatusPending {
		return fmt.Errorf("%w: session %s is %s", session.ErrDuplicateStart, id, sess.Status)
	}
	run := &activeRun{started: time.Now(), done: make(chan struct{})}
	m.active[id] = run
	m.wg.Add(1)
	go m.execute(sess, run)
	return nil
}

func (m *Manager) execute(sess *session.Session, run *activeRun) {
	defer m.wg.Done()
	defer close(run.done)
	defer func() {
		m.mu.Lock()
		delete(m.active, sess.ID)
		m.mu.Unlock()
	}()

	final, err := m.runner.Run(m.baseCtx, sess, run.cancelled.Load)
	m.mu.Lock()
	m.finished++
	if err != nil {
		m.failed++
		m.lastErr = err
	}
	m.mu.Unlock()
	m.notify(final, err)
}

func (m *Manager) notify(final *session.Session, runErr error) {
	if m.notifier == nil || final == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	ctx = services.WithSessionID(ctx, final.ID)

	event := notifications.EventAnalysisCompleted
	payload := notifications.Payload{
		"sessionID":      final.ID,
		"patientID":      final.PatientID,
		"indicatorCount": len(final.Indicators),
	}
	if final.Aggregate != nil {
		payload["riskLevel"] = string(final.Aggregate.RiskLevel)
	}
	if final.Status == session.StatusFailed || runErr != nil {
		event = notifications.EventAnalysisFailed
		payload = notifications.Payload{"sessionID": final.ID, "error": final.ErrorMessage}
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operator was not notified of the outcome"),
			logging.Error(err),
		)
	}
}

// Cancel asks a running session to stop at the next stage boundary. A
// pending session that was never started is failed immediately.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	if run, running := m.active[id]; running {
		m.mu.Unlock()
		run.cancelled.Store(true)
		m.logger.Info("session cancel requested",
			logging.String(logging.FieldEventType, "session_cancel_requested"),
			logging.String(logging.FieldSessionID, id),
		)
		return nil
	}
	// Held through the write so a concurrent Start cannot begin a run on
	// the snapshot being failed.
	sess, err := m.cancelPendingLocked(ctx, id)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if m.publisher != nil {
		m.publisher.Publish(id, stream.NewStatusUpdate(session.StatusFailed, sess.Progress, session.CancelledReason))
	}
	return nil
}

func (m *Manager) cancelPendingLocked(ctx context.Context, id string) (*session.Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusPending {
		return nil, fmt.Errorf("%w: session %s is %s and not running", session.ErrInvalidTransition, id, sess.Status)
	}
	sess.Status = session.StatusFailed
	sess.ErrorMessage = session.CancelledReason
	sess.ProgressMessage = session.CancelledReason
	if err := m.store.Replace(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Retry creates a fresh pending session from a failed session's references.
// The failed record is left untouched.
func (m *Manager) Retry(ctx context.Context, id string) (*session.Session, error) {
	prev, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if prev.Status != session.StatusFailed {
		return nil, fmt.Errorf("%w: only failed sessions can be retried (session %s is %s)", session.ErrInvalidTransition, id, prev.Status)
	}
	next, err := m.Create(ctx, prev.PatientID, prev.VideoRef, prev.AudioRef)
	if err != nil {
		return nil, err
	}
	m.logger.Info("session retried",
		logging.String(logging.FieldEventType, "session_retried"),
		logging.String(logging.FieldSessionID, next.ID),
		logging.String("retry_of", id),
	)
	return next, nil
}

// Recover fails sessions left mid-pipeline by a previous daemon process.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	stale, err := m.store.List(ctx, session.Filter{Statuses: processingStatuses()})
	if err != nil {
		return 0, fmt.Errorf("list interrupted sessions: %w", err)
	}
	recovered := 0
	for _, sess := range stale {
		m.mu.Lock()
		_, running := m.active[sess.ID]
		m.mu.Unlock()
		if running {
			continue
		}
		sess.Status = session.StatusFailed
		sess.ErrorMessage = session.InterruptedReason
		sess.ProgressMessage = session.InterruptedReason
		if err := m.store.Replace(ctx, sess); err != nil {
			if errors.Is(err, session.ErrInvalidTransition) {
				continue
			}
			return recovered, fmt.Errorf("fail interrupted session %s: %w", sess.ID, err)
		}
		recovered++
	}
	if recovered > 0 {
		logging.WarnWithContext(m.logger, "interrupted sessions marked failed", "sessions_recovered",
			logging.Int("count", recovered),
			logging.String(logging.FieldErrorHint, "retry the affected sessions"),
			logging.String(logging.FieldImpact, "analyses in progress at the last shutdown were not completed"),
		)
	}
	return recovered, nil
}

func processingStatuses() []session.Status {
	out := make([]session.Status, 0, len(session.Pipeline))
	for _, s := range session.Pipeline {
		if s.IsProcessing() {
			out = append(out, s)
		}
	}
	return out
}

// Wait blocks until the given session's run ends or ctx is done. It returns
// immediately when the session is not running.
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.mu.Lock()
	run, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting runs, cancels active ones and waits for them to
// record their terminal state.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	count := len(m.active)
	m.mu.Unlock()
	if count > 0 {
		m.logger.Info("stopping active analyses", logging.Int("active", count))
	}
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Summary is a point-in-time view of the manager.
type Summary struct {
	Active    []string
	Finished  int
	Failed    int
	LastError string
}

// Status returns the active session ids and run counters.
func (m *Manager) Status() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Summary{Finished: m.finished, Failed: m.failed}
	for id := range m.active {
		out.Active = append(out.Active, id)
	}
	slices.Sort(out.Active)
	if m.lastErr != nil {
		out.LastError = m.lastErr.Error()
	}
	return out
}
