package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vigil/internal/config"
)

const userAgent = "Vigil-Go/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventAnalysisCompleted Event = "analysis_completed"
	EventAnalysisFailed    Event = "analysis_failed"
	EventTest              Event = "test"
)

// Payload carries event fields. Recognised keys: sessionID, patientID,
// riskLevel, indicatorCount, error.
type Payload map[string]any

// Service publishes notifications for terminal session outcomes.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		failed:    cfg.Notifications.Failed,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	msg, ok := n.format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, data Payload) (payload, bool) {
	sessionID := stringValue(data, "sessionID")
	switch event {
	case EventAnalysisCompleted:
		if !n.completed {
			return payload{}, false
		}
		risk := stringValue(data, "riskLevel")
		if risk == "" {
			risk = "not assessed"
		}
		count, _ := data["indicatorCount"].(int)
		message := fmt.Sprintf("✅ Analysis complete: session %s\nRisk level: %s, %d clinical indicator(s)", sessionID, risk, count)
		if patient := stringValue(data, "patientID"); patient != "" {
			message += "\nPatient: " + patient
		}
		priority := ""
		if risk == "high" || risk == "critical" {
			priority = "high"
		}
		return payload{
			title:    "Vigil - Analysis Complete",
			message:  message,
			tags:     []string{"vigil", "analysis", "completed"},
			priority: priority,
		}, true
	case EventAnalysisFailed:
		if !n.failed {
			return payload{}, false
		}
		reason := stringValue(data, "error")
		if reason == "" {
			reason = "unknown"
		}
		return payload{
			title:    "Vigil - Analysis Failed",
			message:  fmt.Sprintf("❌ Analysis failed for session %s: %s", sessionID, reason),
			tags:     []string{"vigil", "analysis", "failed"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "Vigil - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"vigil", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func stringValue(data Payload, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
