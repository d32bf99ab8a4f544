package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vigil/internal/aggregate"
	"vigil/internal/analysis"
	"vigil/internal/config"
	"vigil/internal/daemon"
	"vigil/internal/detect"
	"vigil/internal/ipc"
	"vigil/internal/logging"
	"vigil/internal/pipeline"
	"vigil/internal/session"
	"vigil/internal/stream"
	"vigil/internal/testsupport"
)

// heldVideo keeps runs in the video stage until released or cancelled.
type heldVideo struct {
	release <-chan struct{}
}

func (v heldVideo) Analyze(ctx context.Context, _ string, _ func(analysis.FaceDetection) error) error {
	select {
	case <-v.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type offlineDetectors struct{}

func (offlineDetectors) Analyze(context.Context, string) ([]analysis.ModerationLabel, error) {
	return nil, errors.New("detector offline")
}

func (offlineDetectors) Transcribe(context.Context, string) ([]analysis.TranscriptionSegment, error) {
	return nil, errors.New("detector offline")
}

func (offlineDetectors) Score(context.Context, string) (analysis.SentimentResult, error) {
	return analysis.SentimentResult{}, errors.New("detector offline")
}

func (offlineDetectors) ScoreBatch(context.Context, []string) ([]*analysis.SentimentResult, error) {
	return nil, errors.New("detector offline")
}

type offlineReasoner struct{}

func (offlineReasoner) InterpretLabels(context.Context, []analysis.ModerationLabel, []analysis.TranscriptionSegment) (*aggregate.LabelInterpretation, aggregate.Report, error) {
	return nil, aggregate.Report{}, errors.New("reasoning disabled")
}

func (offlineReasoner) AnalyzeVerbal(context.Context, string) (*analysis.VerbalAnalysis, aggregate.Report, error) {
	return nil, aggregate.Report{}, errors.New("reasoning disabled")
}

func (offlineReasoner) Aggregate(context.Context, aggregate.Input) (*analysis.AggregateAssessment, aggregate.Report, error) {
	return nil, aggregate.Report{}, errors.New("reasoning disabled")
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *session.SQLiteStore
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	cancel     context.CancelFunc

	release     chan struct{}
	releaseOnce sync.Once
}

// releaseVideo lets held video stages finish.
func (e *cliTestEnv) releaseVideo() {
	e.releaseOnce.Do(func() { close(e.release) })
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("VIGIL_LLM_API_KEY", "")
	cfg := testsupport.NewConfig(t)

	configPath := filepath.Join(homeDir, ".config", "vigil", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	hub := logging.NewStreamHub(128)
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", OutputPaths: []string{"stderr"}, Stream: hub})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	registry := stream.NewRegistry(logger)
	release := make(chan struct{})
	runner := pipeline.NewRunner(store, detect.Suite{
		Video:      heldVideo{release: release},
		Moderation: offlineDetectors{},
		Speech:     offlineDetectors{},
		Sentiment:  offlineDetectors{},
	}, offlineReasoner{}, registry, pipeline.Options{Logger: logger})
	manager := pipeline.NewManager(store, runner, nil, logger)

	d, err := daemon.New(cfg, logger, daemon.Dependencies{
		Store:        store,
		StoreBackend: "sqlite",
		Manager:      manager,
		Registry:     registry,
		LogHub:       hub,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		cancel:     cancel,
		release:    release,
	}

	t.Cleanup(func() {
		srv.Close()
		d.Stop()
		cancel()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
api_bind = %q

[store]
backend = "sqlite"

[llm]
provider = "openrouter"
api_key = %q
`,
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.LLM.APIKey,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
