package daemon

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vigil/internal/api"
	"vigil/internal/pipeline"
	"vigil/internal/session"
	"vigil/internal/testsupport"
)

func TestDaemonStartStopReleasesLock(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	if !f.daemon.Running() {
		t.Fatal("expected daemon running")
	}
	if f.daemon.APIAddress() == "" {
		t.Fatal("expected api address after start")
	}
	if err := f.daemon.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	f.daemon.Stop()
	if f.daemon.Running() {
		t.Fatal("expected daemon stopped")
	}
	if f.daemon.APIAddress() != "" {
		t.Fatal("expected api server stopped")
	}
	if locked, err := f.daemon.lock.TryLock(); err != nil || !locked {
		t.Fatalf("lock not released: locked=%v err=%v", locked, err)
	}
	_ = f.daemon.lock.Unlock()
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	other, err := New(f.cfg, nil, Dependencies{
		Store:    f.store,
		Manager:  pipeline.NewManager(f.store, nil, nil, nil),
		Registry: f.daemon.registry,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = other.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestDaemonStartRecoversInterruptedSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := testsupport.NewSession(t, f.store, "stale", "s3://bucket/stale.mp4")
	stale.Status = session.StatusUploading
	if err := f.store.Replace(ctx, stale); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	stale.Status = session.StatusProcessingVideo
	if err := f.store.Replace(ctx, stale); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	f.start(t)
	got, err := f.store.Get(ctx, "stale")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != session.StatusFailed || got.ErrorMessage != session.InterruptedReason {
		t.Fatalf("stale session = %s %q", got.Status, got.ErrorMessage)
	}
}

func TestDaemonStopFailsActiveRuns(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	sess, err := f.daemon.CreateSession(ctx, api.CreateSessionRequest{PatientID: "p-1", VideoRef: "s3://bucket/a.mp4", Start: true})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	waitForStatus(t, f.store, sess.ID, session.StatusProcessingVideo)

	f.daemon.Stop()
	got, err := f.store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != session.StatusFailed || got.ErrorMessage != session.DaemonStopReason {
		t.Fatalf("session after stop = %s %q", got.Status, got.ErrorMessage)
	}
}

func TestDaemonRetrySession(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	sess, err := f.daemon.CreateSession(ctx, api.CreateSessionRequest{PatientID: "p-1", VideoRef: "s3://bucket/a.mp4"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := f.daemon.RetrySession(ctx, sess.ID, false); !errors.Is(err, session.ErrInvalidTransition) {
		t.Fatalf("retry of pending session: %v", err)
	}
	if err := f.daemon.CancelSession(ctx, sess.ID); err != nil {
		t.Fatalf("CancelSession: %v", err)
	}
	next, err := f.daemon.RetrySession(ctx, sess.ID, false)
	if err != nil {
		t.Fatalf("RetrySession: %v", err)
	}
	if next.ID == sess.ID || next.Status != session.StatusPending || next.VideoRef != sess.VideoRef {
		t.Fatalf("unexpected retry session %+v", next)
	}
}

func TestDaemonStatusReportsPipeline(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	status := f.daemon.Status(context.Background())
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.StoreBackend != "sqlite" || status.DatabasePath != f.cfg.DatabasePath() {
		t.Fatalf("store fields = %q %q", status.StoreBackend, status.DatabasePath)
	}
	if status.LockFilePath != f.cfg.LockPath() {
		t.Fatalf("lock path = %q", status.LockFilePath)
	}
	if status.StartedAt.IsZero() {
		t.Fatal("expected start time")
	}
}

func TestDaemonTestNotificationWithoutTopic(t *testing.T) {
	f := newFixture(t)
	sent, message, err := f.daemon.TestNotification(context.Background())
	if err != nil || sent {
		t.Fatalf("sent=%v err=%v", sent, err)
	}
	if !strings.Contains(message, "not configured") {
		t.Fatalf("message = %q", message)
	}
}
