package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/services"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	hub := logging.NewStreamHub(16)

	logger, err := logging.NewFromConfig(&cfg, hub)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon started", logging.String("api_bind", "127.0.0.1:7490"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.DaemonLogName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &line); err != nil {
		t.Fatalf("expected json log line, got %q: %v", content, err)
	}
	if line["msg"] != "daemon started" || line["level"] != "info" {
		t.Fatalf("unexpected json record %v", line)
	}
	if _, ok := line["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", line)
	}

	events, _ := hub.Tail(10)
	if len(events) != 1 || events[0].Fields["api_bind"] != "127.0.0.1:7490" {
		t.Fatalf("expected record in stream hub, got %+v", events)
	}
}

func TestConsoleLoggerFormat(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.NewComponentLogger(logger, "pipeline").Info("stage started", logging.String("stage", "processing_video"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	got := string(content)
	for _, fragment := range []string{"INFO pipeline: stage started", "stage=processing_video"} {
		if !strings.Contains(got, fragment) {
			t.Fatalf("expected %q in %q", fragment, got)
		}
	}
	if strings.Contains(got, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", got)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsSessionFields(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{filepath.Join(t.TempDir(), "x.log")}, Stream: hub})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithSessionID(context.Background(), "sess-1")
	ctx = services.WithStage(ctx, "aggregating")
	ctx = services.WithRequestID(ctx, "req-9")

	logging.WithContext(ctx, logger).Info("aggregation finished")

	events, _ := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	evt := events[0]
	if evt.SessionID != "sess-1" || evt.Stage != "aggregating" || evt.CorrelationID != "req-9" {
		t.Fatalf("unexpected event context: %+v", evt)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{filepath.Join(t.TempDir(), "x.log")}, Stream: hub})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "moderation degraded", "stage_degraded", logging.String(logging.FieldImpact, "injury check annotated"))

	events, _ := hub.Tail(1)
	fields := events[0].Fields
	if fields[logging.FieldEventType] != "stage_degraded" {
		t.Fatalf("event_type = %q", fields[logging.FieldEventType])
	}
	if fields[logging.FieldErrorHint] == "" {
		t.Fatal("expected default error hint")
	}
	if fields[logging.FieldImpact] != "injury check annotated" {
		t.Fatalf("impact overridden: %q", fields[logging.FieldImpact])
	}
}
