package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vigil/internal/services"
	"vigil/internal/stage"
)

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 60 * time.Second
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Request is one reasoning call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSON asks the backend for a JSON object response.
	JSON bool
}

// Response is the raw text a backend produced.
type Response struct {
	Content      string
	FinishReason string
}

// Client talks to an OpenAI-compatible chat completion endpoint, OpenRouter
// by default. Reason makes a single attempt; retrying is the caller's job.
type Client struct {
	cfg  Config
	http *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the backend in logs and health output.
func (c *Client) Name() string { return "openrouter" }

// Reason sends one system/user prompt pair and returns the first non-empty
// content the model produced.
func (c *Client) Reason(ctx context.Context, req Request) (Response, error) {
	user := strings.TrimSpace(req.User)
	if user == "" {
		return Response{}, errors.New("llm reason: user prompt required")
	}
	if c.cfg.APIKey == "" {
		return Response{}, services.Wrap(services.ErrConfiguration, "llm", "reason", "api key required", nil)
	}

	payload := chatRequest{
		Model:       c.cfg.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if system := strings.TrimSpace(req.System); system != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: system})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: user})
	if req.JSON {
		payload.ResponseFormat = map[string]string{"type": jsonResponseType}
	}

	reply, body, err := c.post(ctx, payload)
	if err != nil {
		return Response{}, err
	}
	if len(reply.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: llm reason: empty choices", services.ErrTransient)
	}
	var finish, refusal string
	for _, choice := range reply.Choices {
		if finish == "" {
			finish = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal)
		}
		if content := choice.content(); content != "" {
			return Response{Content: content, FinishReason: finish}, nil
		}
	}
	return Response{}, &emptyContentError{finishReason: finish, refusal: refusal, snippet: Snippet(string(body))}
}

// HealthCheck asks the model for a trivial JSON object to prove the key and
// model are usable.
func (c *Client) HealthCheck(ctx context.Context) stage.Health {
	name := "llm " + c.Name()
	if c.cfg.APIKey == "" {
		return stage.Unhealthy(name, "llm.api_key not configured")
	}
	resp, err := c.Reason(ctx, Request{
		System: "You must respond with JSON only.",
		User:   `Respond with {"ok":true}`,
		JSON:   true,
	})
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(resp.Content, &parsed); err != nil {
		return stage.Unhealthy(name, "llm health: parse payload: "+err.Error())
	}
	if !parsed.OK {
		return stage.Unhealthy(name, "llm health: unexpected response")
	}
	return stage.Healthy(name)
}

func (c *Client) post(ctx context.Context, payload chatRequest) (chatResponse, []byte, error) {
	var reply chatResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return reply, nil, fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return reply, nil, fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return reply, nil, transportError(ctx, fmt.Errorf("llm request (timeout=%s): %w", c.http.Timeout, err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return reply, nil, transportError(ctx, fmt.Errorf("llm request: read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return reply, body, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			Wait:       retryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return reply, body, fmt.Errorf("llm request: decode response: %w", err)
	}
	if reply.Error != nil {
		return reply, body, fmt.Errorf("llm request: api error: %s", strings.TrimSpace(reply.Error.Message))
	}
	return reply, body, nil
}

// transportError tags network timeouts transient unless the caller's own
// context ended.
func transportError(ctx context.Context, err error) error {
	var netErr net.Error
	if ctx.Err() == nil && errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", services.ErrTransient, err)
	}
	return err
}

// retryAfter parses a Retry-After header given either as seconds or as an
// HTTP date. Unparseable or past values yield zero.
func retryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(max(seconds, 0)) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil && when.After(now) {
		return when.Sub(now)
	}
	return 0
}

type httpStatusError struct {
	StatusCode int
	Body       string
	Wait       time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, e.Body)
}

// Is marks 408, 429 and 5xx responses transient.
func (e *httpStatusError) Is(target error) bool {
	if target != services.ErrTransient {
		return false
	}
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return e.StatusCode >= http.StatusInternalServerError
	}
}

// RetryAfter reports the server-requested delay, if any.
func (e *httpStatusError) RetryAfter() time.Duration { return e.Wait }

type emptyContentError struct {
	finishReason string
	refusal      string
	snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("llm reason: empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.finishReason, e.refusal, e.snippet)
}

// Is marks empty completions transient; models often answer on a second try.
func (e *emptyContentError) Is(target error) bool { return target == services.ErrTransient }

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// chatChoice accepts the regular message shape plus the streaming delta and
// legacy text shapes some providers return even for non-streaming calls.
type chatChoice struct {
	Message      replyMessage `json:"message"`
	Delta        replyMessage `json:"delta"`
	Text         string       `json:"text"`
	FinishReason string       `json:"finish_reason"`
}

type replyMessage struct {
	Content   string `json:"content"`
	Refusal   string `json:"refusal"`
	ToolCalls []struct {
		Function struct {
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

func (m replyMessage) toolArguments() string {
	for _, call := range m.ToolCalls {
		if args := strings.TrimSpace(call.Function.Arguments); args != "" {
			return args
		}
	}
	return ""
}

// content prefers plain text over tool-call arguments.
func (ch chatChoice) content() string {
	return firstNonEmpty(
		ch.Message.Content,
		ch.Delta.Content,
		ch.Text,
		ch.Message.toolArguments(),
		ch.Delta.toolArguments(),
	)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
