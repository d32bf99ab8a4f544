package logs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"vigil/internal/api"
	"vigil/internal/logs"
)

func TestNewStreamClientEmptyBind(t *testing.T) {
	client, err := logs.NewStreamClient("")
	if err != nil {
		t.Fatalf("NewStreamClient error: %v", err)
	}
	if client != nil {
		t.Fatal("expected nil client for empty bind")
	}
}

func TestStreamClientFetchBuildsQueryAndDecodes(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/logs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.LogStreamResponse{
			Events: []api.LogEvent{{Timestamp: "2026-01-02T03:04:05Z", Level: "info", Message: "hello"}},
			Next:   42,
		})
	}))
	defer srv.Close()

	client, err := logs.NewStreamClient(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("NewStreamClient error: %v", err)
	}

	resp, err := client.Fetch(context.Background(), logs.StreamQuery{
		Since:     3,
		Limit:     50,
		Follow:    true,
		Tail:      true,
		SessionID: "sess-1",
		Component: "pipeline",
	})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if resp.Next != 42 || len(resp.Events) != 1 || resp.Events[0].Message != "hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	want := map[string]string{
		"since":     "3",
		"limit":     "50",
		"follow":    "1",
		"tail":      "1",
		"session":   "sess-1",
		"component": "pipeline",
	}
	for key, value := range want {
		if got := gotQuery.Get(key); got != value {
			t.Fatalf("query %s = %q, want %q", key, got, value)
		}
	}
}

func TestStreamClientFetchReportsErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "hub closed"})
	}))
	defer srv.Close()

	client, _ := logs.NewStreamClient(srv.URL)
	_, err := client.Fetch(context.Background(), logs.StreamQuery{})
	if err == nil || !strings.Contains(err.Error(), "hub closed") {
		t.Fatalf("expected error body in message, got %v", err)
	}
	if logs.IsAPIUnavailable(err) {
		t.Fatal("an error response is not an unavailable API")
	}
}

func TestIsAPIUnavailable(t *testing.T) {
	if !logs.IsAPIUnavailable(logs.ErrAPIUnavailable) {
		t.Fatal("expected sentinel to be unavailable")
	}
	if logs.IsAPIUnavailable(errors.New("other")) {
		t.Fatal("unexpected unavailable for generic error")
	}

	client, _ := logs.NewStreamClient("127.0.0.1:1")
	_, err := client.Fetch(context.Background(), logs.StreamQuery{})
	if !logs.IsAPIUnavailable(err) {
		t.Fatalf("expected refused connection to be unavailable, got %v", err)
	}

	var nilClient *logs.StreamClient
	if _, err := nilClient.Fetch(context.Background(), logs.StreamQuery{}); !errors.Is(err, logs.ErrAPIUnavailable) {
		t.Fatalf("nil client error = %v", err)
	}
}

func TestStreamClientFollowsFromCursor(t *testing.T) {
	var requests []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		requests = append(requests, query)
		switch len(requests) {
		case 1:
			_ = json.NewEncoder(w).Encode(api.LogStreamResponse{Events: []api.LogEvent{{Message: "first"}}, Next: 5})
		case 2:
			_ = json.NewEncoder(w).Encode(api.LogStreamResponse{Events: []api.LogEvent{{Message: "second"}}, Next: 6})
		default:
			<-r.Context().Done()
		}
	}))
	defer srv.Close()

	client, _ := logs.NewStreamClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	err := client.Stream(ctx, logs.StreamQuery{Limit: 10, Tail: true, Follow: true}, func(events []api.LogEvent) {
		for _, evt := range events {
			got = append(got, evt.Message)
		}
		if len(got) == 2 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if strings.Join(got, ",") != "first,second" {
		t.Fatalf("events = %v", got)
	}
	if requests[0].Get("tail") != "1" || requests[0].Get("follow") != "" {
		t.Fatalf("first request = %v", requests[0])
	}
	if requests[1].Get("since") != "5" || requests[1].Get("tail") != "" || requests[1].Get("follow") != "1" {
		t.Fatalf("follow request = %v", requests[1])
	}
}
