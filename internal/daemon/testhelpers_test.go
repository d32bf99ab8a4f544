package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"vigil/internal/aggregate"
	"vigil/internal/analysis"
	"vigil/internal/config"
	"vigil/internal/detect"
	"vigil/internal/logging"
	"vigil/internal/pipeline"
	"vigil/internal/session"
	"vigil/internal/stream"
	"vigil/internal/testsupport"
)

// blockingVideo holds the video stage until the run is cancelled.
type blockingVideo struct{}

func (blockingVideo) Analyze(ctx context.Context, _ string, _ func(analysis.FaceDetection) error) error {
	<-ctx.Done()
	return ctx.Err()
}

type failingDetectors struct{}

func (failingDetectors) Analyze(context.Context, string) ([]analysis.ModerationLabel, error) {
	return nil, errors.New("detector offline")
}

func (failingDetectors) Transcribe(context.Context, string) ([]analysis.TranscriptionSegment, error) {
	return nil, errors.New("detector offline")
}

func (failingDetectors) Score(context.Context, string) (analysis.SentimentResult, error) {
	return analysis.SentimentResult{}, errors.New("detector offline")
}

func (failingDetectors) ScoreBatch(context.Context, []string) ([]*analysis.SentimentResult, error) {
	return nil, errors.New("detector offline")
}

type noReasoning struct{}

func (noReasoning) InterpretLabels(context.Context, []analysis.ModerationLabel, []analysis.TranscriptionSegment) (*aggregate.LabelInterpretation, aggregate.Report, error) {
	return nil, aggregate.Report{}, errors.New("reasoning disabled")
}

func (noReasoning) AnalyzeVerbal(context.Context, string) (*analysis.VerbalAnalysis, aggregate.Report, error) {
	return nil, aggregate.Report{}, errors.New("reasoning disabled")
}

func (noReasoning) Aggregate(context.Context, aggregate.Input) (*analysis.AggregateAssessment, aggregate.Report, error) {
	return nil, aggregate.Report{}, errors.New("reasoning disabled")
}

type fixture struct {
	cfg    *config.Config
	store  *session.SQLiteStore
	hub    *logging.StreamHub
	daemon *Daemon
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := logging.NewStreamHub(64)
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", OutputPaths: []string{"stderr"}, Stream: hub})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	registry := stream.NewRegistry(logger)
	runner := pipeline.NewRunner(store, detect.Suite{
		Video:      blockingVideo{},
		Moderation: failingDetectors{},
		Speech:     failingDetectors{},
		Sentiment:  failingDetectors{},
	}, noReasoning{}, registry, pipeline.Options{Logger: logger})
	manager := pipeline.NewManager(store, runner, nil, logger)

	d, err := New(cfg, logger, Dependencies{
		Store:        store,
		StoreBackend: "sqlite",
		Manager:      manager,
		Registry:     registry,
		LogHub:       hub,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Stop)
	return &fixture{cfg: cfg, store: store, hub: hub, daemon: d}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func waitForStatus(t *testing.T, store session.Store, id string, want session.Status) *session.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status == want {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("session %s status = %s, want %s", id, got.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
