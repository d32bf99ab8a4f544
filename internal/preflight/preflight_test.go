package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"vigil/internal/config"
	"vigil/internal/stage"
	"vigil/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckGateway_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithDetectorGateway(srv.URL))
	result := CheckGateway(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckGateway_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithDetectorGateway(srv.URL))
	if result := CheckGateway(context.Background(), cfg); result.Passed {
		t.Fatal("expected failure for unavailable gateway")
	}
}

func TestCheckGateway_MissingURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Detectors.BaseURL = ""
	if result := CheckGateway(context.Background(), cfg); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckLLMConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LLMConfig
		want bool
	}{
		{"configured", config.LLMConfig{Provider: "openrouter", APIKey: "k", Model: "m"}, true},
		{"gemini", config.LLMConfig{Provider: "gemini", APIKey: "k"}, true},
		{"missing key", config.LLMConfig{Provider: "openrouter"}, false},
		{"unknown provider", config.LLMConfig{Provider: "other", APIKey: "k"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CheckLLMConfig(tc.cfg); got.Passed != tc.want {
				t.Fatalf("Passed = %v, want %v (%s)", got.Passed, tc.want, got.Detail)
			}
		})
	}
}

type healthStub struct{ health stage.Health }

func (h healthStub) HealthCheck(context.Context) stage.Health { return h.health }

func TestCheckHealth(t *testing.T) {
	if r := CheckHealth(context.Background(), "llm", healthStub{stage.Healthy("llm")}); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	r := CheckHealth(context.Background(), "llm", healthStub{stage.Unhealthy("llm", "401 unauthorized")})
	if r.Passed || r.Detail != "401 unauthorized" {
		t.Fatalf("unexpected result %+v", r)
	}
	if r := CheckHealth(context.Background(), "llm", nil); r.Passed {
		t.Fatal("nil checker must fail")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReportsEveryCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Detectors.BaseURL = ""

	results := RunAll(context.Background(), cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Detector gateway" {
		t.Fatalf("unexpected failures %+v", failed)
	}
}

func TestFromHealth(t *testing.T) {
	got := FromHealth([]stage.Health{stage.Healthy("a"), stage.Unhealthy("b", "down")})
	if len(got) != 2 || !got[0].Passed || got[0].Detail != "ready" || got[1].Passed || got[1].Detail != "down" {
		t.Fatalf("unexpected results %+v", got)
	}
}
