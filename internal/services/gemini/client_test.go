package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"vigil/internal/services"
	"vigil/internal/services/llm"
)

func TestExtractResponseJoinsTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		FinishReason: genai.FinishReasonStop,
		Content:      &genai.Content{Parts: []genai.Part{genai.Text(`{"risk_level":`), genai.Text(`"low"}`)}},
	}}}
	out, err := extractResponse(resp)
	if err != nil {
		t.Fatalf("extractResponse: %v", err)
	}
	if out.Content != `{"risk_level":"low"}` {
		t.Fatalf("unexpected content %q", out.Content)
	}
}

func TestExtractResponseEmpty(t *testing.T) {
	if _, err := extractResponse(nil); !services.IsTransient(err) {
		t.Fatalf("expected transient error for nil response, got %v", err)
	}
	blocked := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}
	_, err := extractResponse(blocked)
	if err == nil || services.IsTransient(err) {
		t.Fatalf("expected permanent error for blocked response, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	if err := classify(ctx, &googleapi.Error{Code: http.StatusTooManyRequests}); !services.IsTransient(err) {
		t.Fatalf("expected 429 to be transient, got %v", err)
	}
	if err := classify(ctx, &googleapi.Error{Code: http.StatusForbidden}); services.IsTransient(err) {
		t.Fatalf("expected 403 to be permanent, got %v", err)
	}
	if err := classify(ctx, errors.New("boom")); services.IsTransient(err) {
		t.Fatalf("expected unknown error to be permanent, got %v", err)
	}
}

func TestConfigureModel(t *testing.T) {
	model := &genai.GenerativeModel{}
	configureModel(model, llm.Request{System: "sys", Temperature: 0.1, MaxTokens: 2048, JSON: true})
	if model.SystemInstruction == nil || model.ResponseMIMEType != "application/json" {
		t.Fatalf("model not configured: %+v", model)
	}
	if model.Temperature == nil || *model.Temperature != float32(0.1) {
		t.Fatalf("unexpected temperature %v", model.Temperature)
	}
	if model.MaxOutputTokens == nil || *model.MaxOutputTokens != 2048 {
		t.Fatalf("unexpected max tokens %v", model.MaxOutputTokens)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
