package ipc_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"vigil/internal/aggregate"
	"vigil/internal/analysis"
	"vigil/internal/daemon"
	"vigil/internal/detect"
	"vigil/internal/ipc"
	"vigil/internal/logging"
	"vigil/internal/pipeline"
	"vigil/internal/session"
	"vigil/internal/stream"
	"vigil/internal/testsupport"
)

type stalledVideo struct{}

func (stalledVideo) Analyze(ctx context.Context, _ string, _ func(analysis.FaceDetection) error) error {
	<-ctx.Done()
	return ctx.Err()
}

type offline struct{}

func (offline) Analyze(context.Context, string) ([]analysis.ModerationLabel, error) {
	return nil, errors.New("offline")
}

func (offline) Transcribe(context.Context, string) ([]analysis.TranscriptionSegment, error) {
	return nil, errors.New("offline")
}

func (offline) Score(context.Context, string) (analysis.SentimentResult, error) {
	return analysis.SentimentResult{}, errors.New("offline")
}

func (offline) ScoreBatch(context.Context, []string) ([]*analysis.SentimentResult, error) {
	return nil, errors.New("offline")
}

func (offline) InterpretLabels(context.Context, []analysis.ModerationLabel, []analysis.TranscriptionSegment) (*aggregate.LabelInterpretation, aggregate.Report, error) {
	return nil, aggregate.Report{}, errors.New("offline")
}

func (offline) AnalyzeVerbal(context.Context, string) (*analysis.VerbalAnalysis, aggregate.Report, error) {
	return nil, aggregate.Report{}, errors.New("offline")
}

func (offline) Aggregate(context.Context, aggregate.Input) (*analysis.AggregateAssessment, aggregate.Report, error) {
	return nil, aggregate.Report{}, errors.New("offline")
}

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := logging.NewStreamHub(128)
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", OutputPaths: []string{"stderr"}, Stream: hub})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	registry := stream.NewRegistry(logger)
	runner := pipeline.NewRunner(store, detect.Suite{
		Video: stalledVideo{}, Moderation: offline{}, Speech: offline{}, Sentiment: offline{},
	}, offline{}, registry, pipeline.Options{Logger: logger})
	d, err := daemon.New(cfg, logger, daemon.Dependencies{
		Store:    store,
		Manager:  pipeline.NewManager(store, runner, nil, logger),
		Registry: registry,
		LogHub:   hub,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var shutdownCalled atomic.Bool
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger, ipc.WithShutdown(func() { shutdownCalled.Store(true) }))
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}
	again, err := client.Start()
	if err != nil || again.Started || again.Message != "daemon already running" {
		t.Fatalf("second start = %+v, %v", again, err)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID == 0 || status.APIAddress == "" {
		t.Fatalf("unexpected status %+v", status)
	}

	created, err := client.SessionCreate(ipc.SessionCreateRequest{PatientID: "p-1", VideoRef: "s3://bucket/a.mp4"})
	if err != nil {
		t.Fatalf("SessionCreate: %v", err)
	}
	id := created.Session.ID
	if created.Session.Status != string(session.StatusPending) {
		t.Fatalf("created status = %s", created.Session.Status)
	}
	if _, err := client.SessionCreate(ipc.SessionCreateRequest{PatientID: "p-1"}); err == nil {
		t.Fatal("expected validation error for missing video ref")
	}

	if _, err := client.SessionStart(id); err != nil {
		t.Fatalf("SessionStart: %v", err)
	}
	if _, err := client.SessionStart(id); err == nil {
		t.Fatal("expected duplicate start error")
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status.Active) != 1 || status.Active[0] != id {
		t.Fatalf("active = %v", status.Active)
	}

	listResp, err := client.SessionList(ipc.SessionListRequest{PatientID: "p-1"})
	if err != nil {
		t.Fatalf("SessionList: %v", err)
	}
	if len(listResp.Sessions) != 1 {
		t.Fatalf("patient sessions = %d", len(listResp.Sessions))
	}
	if _, err := client.SessionList(ipc.SessionListRequest{Statuses: []string{"bogus"}}); err == nil {
		t.Fatal("expected unknown status error")
	}

	show, err := client.SessionShow(id)
	if err != nil {
		t.Fatalf("SessionShow: %v", err)
	}
	if show.Session.VideoRef != "s3://bucket/a.mp4" {
		t.Fatalf("show = %+v", show.Session)
	}
	if _, err := client.SessionShow("missing"); err == nil {
		t.Fatal("expected not found error")
	}

	tail, err := client.LogTail(ipc.LogTailRequest{SessionID: id})
	if err != nil {
		t.Fatalf("LogTail: %v", err)
	}
	if len(tail.Events) == 0 || tail.Next == 0 {
		t.Fatalf("expected session log events, got %+v", tail)
	}
	for _, evt := range tail.Events {
		if evt.SessionID != id {
			t.Fatalf("unfiltered event %+v", evt)
		}
	}

	_, cursor := hub.Tail(1)
	followDone := make(chan struct{})
	go func(since uint64) {
		defer close(followDone)
		resp, err := client.LogTail(ipc.LogTailRequest{Since: since, Follow: true, WaitMillis: 2000, Component: "follow-test"})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Events) != 1 || resp.Events[0].Message != "followed" {
			t.Errorf("unexpected follow events: %+v", resp.Events)
		}
	}(cursor)
	time.Sleep(100 * time.Millisecond)
	logging.NewComponentLogger(logger, "follow-test").Info("followed")
	select {
	case <-followDone:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}

	retention, err := client.Retention()
	if err != nil {
		t.Fatalf("Retention: %v", err)
	}
	if retention.SessionsDeleted != 0 {
		t.Fatalf("retention deleted %d", retention.SessionsDeleted)
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if notify.Sent {
		t.Fatal("expected notification skipped without topic")
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !stopResp.Stopped || !shutdownCalled.Load() {
		t.Fatalf("stop = %+v, shutdown=%v", stopResp, shutdownCalled.Load())
	}
	stopped, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stopped.Status != session.StatusFailed || stopped.ErrorMessage != session.DaemonStopReason {
		t.Fatalf("session after stop = %s %q", stopped.Status, stopped.ErrorMessage)
	}

	retried, err := client.SessionRetry(id, false)
	if err != nil {
		t.Fatalf("SessionRetry: %v", err)
	}
	if retried.Session.ID == id || retried.Session.Status != string(session.StatusPending) {
		t.Fatalf("retried = %+v", retried.Session)
	}
	cancelled, err := client.SessionCancel(retried.Session.ID)
	if err != nil {
		t.Fatalf("SessionCancel: %v", err)
	}
	if cancelled.Session.Status != string(session.StatusFailed) {
		t.Fatalf("cancelled = %+v", cancelled.Session)
	}
}
