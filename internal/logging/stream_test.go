package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestStreamHandlerCarriesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub)

	logger := slog.New(handler).
		With(slog.String(FieldComponent, "pipeline")).
		With(slog.String(FieldSessionID, "abc")).
		With(slog.String(FieldStage, "processing_audio"))
	logger.Info("segment scored", slog.Int("segments", 3))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.SessionID != "abc" || evt.Stage != "processing_audio" || evt.Component != "pipeline" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Fields["segments"] != "3" {
		t.Fatalf("expected segments field, got %v", evt.Fields)
	}
}

func TestStreamHubEvictsOldest(t *testing.T) {
	hub := NewStreamHub(2)
	for _, msg := range []string{"a", "b", "c"} {
		hub.Publish(LogEvent{Message: msg})
	}
	events, next := hub.Tail(10)
	if len(events) != 2 || events[0].Message != "b" || events[1].Message != "c" {
		t.Fatalf("unexpected buffer: %+v", events)
	}
	if next != 3 {
		t.Fatalf("next sequence = %d", next)
	}
	if first := hub.FirstSequence(); first != 2 {
		t.Fatalf("first sequence = %d", first)
	}
}

func TestStreamHubFetchSince(t *testing.T) {
	hub := NewStreamHub(10)
	hub.Publish(LogEvent{Message: "one"})
	hub.Publish(LogEvent{Message: "two"})

	events, next, err := hub.Fetch(context.Background(), 1, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || events[0].Message != "two" || next != 2 {
		t.Fatalf("unexpected fetch: %+v next=%d", events, next)
	}
}

func TestStreamHubFetchWaitsForPublish(t *testing.T) {
	hub := NewStreamHub(10)
	done := make(chan []LogEvent, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 10, true)
		done <- events
	}()
	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "late"})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Message != "late" {
			t.Fatalf("unexpected events: %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake on publish")
	}
}

func TestStreamHubFetchHonoursCancel(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := hub.Fetch(ctx, 0, 10, true); err == nil {
		t.Fatal("expected context error")
	}
}

func TestStreamHubFetchMatchingSkipsOtherSessions(t *testing.T) {
	hub := NewStreamHub(10)
	hub.Publish(LogEvent{Message: "a1", SessionID: "a"})
	hub.Publish(LogEvent{Message: "b1", SessionID: "b"})
	hub.Publish(LogEvent{Message: "a2", SessionID: "a", Component: "Pipeline"})

	events, next, err := hub.FetchMatching(context.Background(), 0, 10, false, EventFilter{SessionID: "a"})
	if err != nil {
		t.Fatalf("FetchMatching: %v", err)
	}
	if len(events) != 2 || events[0].Message != "a1" || events[1].Message != "a2" || next != 3 {
		t.Fatalf("unexpected fetch: %+v next=%d", events, next)
	}

	events, _ = hub.TailMatching(10, EventFilter{Component: "pipeline"})
	if len(events) != 1 || events[0].Message != "a2" {
		t.Fatalf("component filter should ignore case: %+v", events)
	}
}

func TestStreamHubFetchLimitReturnsResumableCursor(t *testing.T) {
	hub := NewStreamHub(10)
	for _, msg := range []string{"one", "two", "three"} {
		hub.Publish(LogEvent{Message: msg})
	}
	events, next, _ := hub.Fetch(context.Background(), 0, 2, false)
	if len(events) != 2 || next != 2 {
		t.Fatalf("first page: %+v next=%d", events, next)
	}
	events, next, _ = hub.Fetch(context.Background(), next, 2, false)
	if len(events) != 1 || events[0].Message != "three" || next != 3 {
		t.Fatalf("second page: %+v next=%d", events, next)
	}
}

func TestStreamHubFollowIgnoresNonMatchingPublish(t *testing.T) {
	hub := NewStreamHub(10)
	done := make(chan []LogEvent, 1)
	go func() {
		events, _, _ := hub.FetchMatching(context.Background(), 0, 10, true, EventFilter{SessionID: "want"})
		done <- events
	}()
	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "noise", SessionID: "other"})
	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "signal", SessionID: "want"})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Message != "signal" {
			t.Fatalf("unexpected events: %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("follow did not wake for matching event")
	}
}
