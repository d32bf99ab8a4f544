package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vigil/internal/notifications"
	"vigil/internal/session"
	"vigil/internal/stream"
)

type recordedEvent struct {
	event   notifications.Event
	payload notifications.Payload
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{event: event, payload: payload})
	return nil
}

func (f *fakeNotifier) snapshot() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

func newTestManager(t *testing.T, h *harness, notifier notifications.Service) *Manager {
	t.Helper()
	m := NewManager(h.store, h.runner, notifier, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func waitFor(t *testing.T, m *Manager, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Wait(ctx, id); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestManagerCreateRequiresVideoRef(t *testing.T) {
	h := newHarness(t)
	m := newTestManager(t, h, nil)
	if _, err := m.Create(context.Background(), "p1", "  ", ""); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestManagerRunsAndNotifies(t *testing.T) {
	h := newHarness(t)
	notifier := &fakeNotifier{}
	m := newTestManager(t, h, notifier)
	ctx := context.Background()

	sess, err := m.Create(ctx, "p1", "s3://bucket/a.mp4", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Status != session.StatusPending {
		t.Fatalf("new session status = %s", sess.Status)
	}
	if err := m.Start(ctx, sess.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, m, sess.ID)

	stored := storedSession(t, h, sess.ID)
	if stored.Status != session.StatusCompleted {
		t.Fatalf("status = %s", stored.Status)
	}
	events := notifier.snapshot()
	if len(events) != 1 || events[0].event != notifications.EventAnalysisCompleted {
		t.Fatalf("unexpected notifications %+v", events)
	}
	if events[0].payload["riskLevel"] != "high" {
		t.Fatalf("risk level = %v", events[0].payload["riskLevel"])
	}
	if got := m.Status(); got.Finished != 1 || got.Failed != 0 || len(got.Active) != 0 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if err := m.Start(ctx, sess.ID); !errors.Is(err, session.ErrDuplicateStart) {
		t.Fatalf("expected duplicate start after completion, got %v", err)
	}
}

func TestManagerRejectsConcurrentStart(t *testing.T) {
	h := newHarness(t)
	h.video.gate = make(chan struct{})
	m := newTestManager(t, h, nil)
	ctx := context.Background()

	sess, err := m.Create(ctx, "p1", "s3://bucket/a.mp4", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Start(ctx, sess.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(ctx, sess.ID); !errors.Is(err, session.ErrDuplicateStart) {
		t.Fatalf("expected duplicate start, got %v", err)
	}
	if got := m.Status().Active; len(got) != 1 || got[0] != sess.ID {
		t.Fatalf("active = %v", got)
	}
	close(h.video.gate)
	waitFor(t, m, sess.ID)
	if stored := storedSession(t, h, sess.ID); stored.Status != session.StatusCompleted {
		t.Fatalf("status = %s", stored.Status)
	}
}

// getHookStore runs hook once, after the first Get that reaches it.
type getHookStore struct {
	session.Store
	fired atomic.Bool
	hook  func()
}

func (s *getHookStore) Get(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.Store.Get(ctx, id)
	if s.hook != nil && s.fired.CompareAndSwap(false, true) {
		s.hook()
	}
	return sess, err
}

func TestManagerStartNeverRestartsFinishedRun(t *testing.T) {
	h := newHarness(t)
	h.newSession(t, "s1")
	store := &getHookStore{Store: h.store}
	m := NewManager(store, h.runner, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	ctx := context.Background()

	// While the outer Start holds a pending snapshot, a second Start runs
	// the session to completion (or blocks behind the outer one).
	innerErr := make(chan error, 1)
	store.hook = func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			err := m.Start(ctx, "s1")
			if err == nil {
				_ = m.Wait(ctx, "s1")
			}
			innerErr <- err
		}()
		select {
		case <-done:
		case <-time.After(200 * time.Millisecond):
		}
	}

	outer := m.Start(ctx, "s1")
	var inner error
	select {
	case inner = <-innerErr:
	case <-time.After(10 * time.Second):
		t.Fatal("inner start did not return")
	}
	waitFor(t, m, "s1")

	if (outer == nil) == (inner == nil) {
		t.Fatalf("expected exactly one start to succeed, got outer=%v inner=%v", outer, inner)
	}
	for _, err := range []error{outer, inner} {
		if err != nil && !errors.Is(err, session.ErrDuplicateStart) {
			t.Fatalf("expected duplicate start, got %v", err)
		}
	}
	if n := h.video.calls.Load(); n != 1 {
		t.Fatalf("video stage ran %d times", n)
	}
	if n := len(h.publisher.ofType(stream.TypeError)); n != 0 {
		t.Fatalf("expected no error frames, got %d", n)
	}
	if stored := storedSession(t, h, "s1"); stored.Status != session.StatusCompleted {
		t.Fatalf("status = %s", stored.Status)
	}
}

func TestManagerCancelRunning(t *testing.T) {
	h := newHarness(t)
	h.video.gate = make(chan struct{})
	notifier := &fakeNotifier{}
	m := newTestManager(t, h, notifier)
	ctx := context.Background()

	sess, _ := m.Create(ctx, "p1", "s3://bucket/a.mp4", "")
	if err := m.Start(ctx, sess.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Cancel(ctx, sess.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(h.video.gate)
	waitFor(t, m, sess.ID)

	stored := storedSession(t, h, sess.ID)
	if stored.Status != session.StatusFailed || stored.ErrorMessage != session.CancelledReason {
		t.Fatalf("unexpected state %s %q", stored.Status, stored.ErrorMessage)
	}
	events := notifier.snapshot()
	if len(events) != 1 || events[0].event != notifications.EventAnalysisFailed {
		t.Fatalf("unexpected notifications %+v", events)
	}
}

func TestManagerCancelPendingAndTerminal(t *testing.T) {
	h := newHarness(t)
	m := newTestManager(t, h, nil)
	ctx := context.Background()

	sess, _ := m.Create(ctx, "p1", "s3://bucket/a.mp4", "")
	if err := m.Cancel(ctx, sess.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	stored := storedSession(t, h, sess.ID)
	if stored.Status != session.StatusFailed || stored.ErrorMessage != session.CancelledReason {
		t.Fatalf("unexpected state %s %q", stored.Status, stored.ErrorMessage)
	}
	if err := m.Cancel(ctx, sess.ID); !errors.Is(err, session.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if err := m.Cancel(ctx, "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestManagerRetry(t *testing.T) {
	h := newHarness(t)
	m := newTestManager(t, h, nil)
	ctx := context.Background()

	sess, _ := m.Create(ctx, "p1", "s3://bucket/a.mp4", "s3://bucket/a.wav")
	if _, err := m.Retry(ctx, sess.ID); !errors.Is(err, session.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for pending session, got %v", err)
	}
	if err := m.Cancel(ctx, sess.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	next, err := m.Retry(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if next.ID == sess.ID || next.Status != session.StatusPending {
		t.Fatalf("unexpected retry session %+v", next)
	}
	if next.PatientID != "p1" || next.VideoRef != sess.VideoRef || next.AudioRef != sess.AudioRef {
		t.Fatalf("retry lost references: %+v", next)
	}
	if prev := storedSession(t, h, sess.ID); prev.Status != session.StatusFailed {
		t.Fatalf("original session changed to %s", prev.Status)
	}
}

func TestManagerRecoverFailsInterruptedSessions(t *testing.T) {
	h := newHarness(t)
	m := newTestManager(t, h, nil)
	ctx := context.Background()

	stale := &session.Session{ID: "stale", VideoRef: "s3://bucket/x.mp4", Status: session.StatusProcessingAudio, Progress: 0.6}
	if err := h.store.Create(ctx, stale); err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.newSession(t, "waiting")

	n, err := m.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered = %d, want 1", n)
	}
	if got := storedSession(t, h, "stale"); got.Status != session.StatusFailed || got.ErrorMessage != session.InterruptedReason {
		t.Fatalf("unexpected state %s %q", got.Status, got.ErrorMessage)
	}
	if got := storedSession(t, h, "waiting"); got.Status != session.StatusPending {
		t.Fatalf("pending session changed to %s", got.Status)
	}
}

func TestManagerShutdownFailsActiveRuns(t *testing.T) {
	h := newHarness(t)
	h.video.gate = make(chan struct{})
	m := NewManager(h.store, h.runner, nil, nil)
	ctx := context.Background()

	sess, _ := m.Create(ctx, "p1", "s3://bucket/a.mp4", "")
	if err := m.Start(ctx, sess.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	stored := storedSession(t, h, sess.ID)
	if stored.Status != session.StatusFailed || stored.ErrorMessage != session.DaemonStopReason {
		t.Fatalf("unexpected state %s %q", stored.Status, stored.ErrorMessage)
	}
	other, _ := m.Create(ctx, "p1", "s3://bucket/b.mp4", "")
	if err := m.Start(ctx, other.ID); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected shutting down, got %v", err)
	}
}
