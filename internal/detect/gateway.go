package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/poll"
	"vigil/internal/services"
	"vigil/internal/stage"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxWait        = 30 * time.Minute
	maxErrorBody          = 512
)

// Config captures the gateway connection settings.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	PollInterval   time.Duration
	MaxWait        time.Duration
	LanguageCode   string
	MaxSpeakers    int
	MinConfidence  float64
}

// ConfigFrom maps the daemon configuration onto gateway settings.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		BaseURL:        cfg.Detectors.BaseURL,
		APIKey:         cfg.Detectors.APIKey,
		TimeoutSeconds: cfg.Detectors.TimeoutSeconds,
		PollInterval:   cfg.PollInterval(),
		MaxWait:        cfg.MaxWait(),
		LanguageCode:   cfg.Detectors.LanguageCode,
		MaxSpeakers:    cfg.Detectors.MaxSpeakers,
		MinConfidence:  cfg.Moderation.MinConfidence,
	}
}

// Gateway is the HTTP client for the detector gateway. It implements every
// adapter interface in this package.
type Gateway struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	newToken   func() string
}

// Option customizes the gateway.
type Option func(*Gateway)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTokenSource overrides how client tokens for job idempotency are made.
func WithTokenSource(fn func() string) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.newToken = fn
		}
	}
}

// NewGateway constructs a gateway client.
func NewGateway(cfg Config, opts ...Option) *Gateway {
	timeout := defaultRequestTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = poll.DefaultInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.MaxSpeakers <= 0 {
		cfg.MaxSpeakers = 5
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.5
	}
	g := &Gateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
		newToken:   defaultToken,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "detect")
	return g
}

// Suite returns the gateway wired into every adapter slot.
func (g *Gateway) Suite() Suite {
	return Suite{Video: faceAdapter{g}, Moderation: moderationAdapter{g}, Speech: g, Sentiment: g}
}

// HealthCheck pings GET /v1/health.
func (g *Gateway) HealthCheck(ctx context.Context) stage.Health {
	const name = "detector gateway"
	if g.cfg.BaseURL == "" {
		return stage.Unhealthy(name, "detectors.base_url not configured")
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := g.do(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	if resp.Status != "" && !strings.EqualFold(resp.Status, "ok") {
		return stage.Unhealthy(name, "gateway reported "+resp.Status)
	}
	return stage.Healthy(name)
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway http %d: %s", e.StatusCode, e.Body)
}

// Is classifies HTTP failures onto the service markers.
func (e *statusError) Is(target error) bool {
	switch target {
	case services.ErrTransient:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
	case services.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case services.ErrExternalTool:
		return true
	}
	return false
}

func (g *Gateway) do(ctx context.Context, method, path string, body, out any) error {
	endpoint := g.cfg.BaseURL + path
	if _, err := url.Parse(endpoint); err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", id)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %w", services.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %w", services.ErrTransient, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody] + "..."
		}
		return &statusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", services.ErrExternalTool, path, err)
	}
	return nil
}

var errJobFailed = fmt.Errorf("%w: detector job failed", services.ErrExternalTool)
