// Package gemini provides a reasoning backend on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"vigil/internal/services"
	"vigil/internal/services/llm"
	"vigil/internal/stage"
)

const defaultModel = "gemini-1.5-flash"

// Config captures the Gemini connection settings.
type Config struct {
	APIKey string
	Model  string
}

// Client issues single-attempt reasoning calls against Gemini. Transient
// failures are tagged services.ErrTransient like the OpenRouter client.
type Client struct {
	sdk   *genai.Client
	model string
}

// NewClient opens a Gemini SDK client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "new client", "api key required", nil)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	sdk, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini: create sdk client: %w", err)
	}
	return &Client{sdk: sdk, model: model}, nil
}

// Name identifies the backend in logs and health output.
func (c *Client) Name() string { return "gemini" }

// Close releases the SDK connection.
func (c *Client) Close() error {
	if c == nil || c.sdk == nil {
		return nil
	}
	return c.sdk.Close()
}

// Reason sends one generate-content request. A fresh model handle is
// configured per call so concurrent sessions never share settings.
func (c *Client) Reason(ctx context.Context, req llm.Request) (llm.Response, error) {
	if strings.TrimSpace(req.User) == "" {
		return llm.Response{}, errors.New("gemini reason: user prompt required")
	}
	model := c.sdk.GenerativeModel(c.model)
	configureModel(model, req)
	resp, err := model.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		return llm.Response{}, classify(ctx, err)
	}
	return extractResponse(resp)
}

// HealthCheck sends a tiny JSON request.
func (c *Client) HealthCheck(ctx context.Context) stage.Health {
	name := "llm " + c.Name()
	resp, err := c.Reason(ctx, llm.Request{
		System:    "You must respond with JSON only.",
		User:      `Respond with {"ok":true}`,
		MaxTokens: 16,
		JSON:      true,
	})
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := llm.DecodeLLMJSON(resp.Content, &parsed); err != nil || !parsed.OK {
		return stage.Unhealthy(name, "unexpected health response: "+llm.Snippet(resp.Content))
	}
	return stage.Healthy(name)
}

func configureModel(model *genai.GenerativeModel, req llm.Request) {
	if system := strings.TrimSpace(req.System); system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
}

func extractResponse(resp *genai.GenerateContentResponse) (llm.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return llm.Response{}, fmt.Errorf("%w: gemini: no candidates", services.ErrTransient)
	}
	candidate := resp.Candidates[0]
	finish := candidate.FinishReason.String()
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		if candidate.FinishReason == genai.FinishReasonSafety {
			return llm.Response{}, fmt.Errorf("gemini: response blocked (finish_reason=%s)", finish)
		}
		return llm.Response{}, fmt.Errorf("%w: gemini: empty content (finish_reason=%s)", services.ErrTransient, finish)
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return llm.Response{}, fmt.Errorf("%w: gemini: empty content (finish_reason=%s)", services.ErrTransient, finish)
	}
	return llm.Response{Content: content, FinishReason: strings.ToLower(finish)}, nil
}

type httpCoder interface {
	HTTPCode() int
}

// classify tags rate limits, server errors and timeouts as transient.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	code := 0
	var apiErr *googleapi.Error
	var coder httpCoder
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &coder):
		code = coder.HTTPCode()
	}
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: gemini http %d: %w", services.ErrTransient, code, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: gemini: %w", services.ErrTransient, err)
	}
	return fmt.Errorf("gemini: %w", err)
}
