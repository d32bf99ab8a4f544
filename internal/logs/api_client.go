package logs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"vigil/internal/api"
)

var ErrAPIUnavailable = errors.New("log API unavailable")

// StreamClient reads the daemon's /api/logs endpoint.
type StreamClient struct {
	endpoint url.URL
	http     *http.Client
}

// StreamQuery mirrors the /api/logs query parameters.
type StreamQuery struct {
	Since     uint64
	Limit     int
	Follow    bool
	Tail      bool
	SessionID string
	Component string
}

// NewStreamClient returns nil when bind is empty, which callers treat as an
// unavailable API. A bind without a scheme is assumed to be plain http.
func NewStreamClient(bind string) (*StreamClient, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	parsed, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	// follow requests block server-side; the caller's context bounds them
	return &StreamClient{
		endpoint: url.URL{Scheme: parsed.Scheme, User: parsed.User, Host: parsed.Host, Path: "/api/logs"},
		http:     &http.Client{},
	}, nil
}

func (q StreamQuery) encode() string {
	values := url.Values{}
	set := func(key, value string, ok bool) {
		if ok {
			values.Set(key, value)
		}
	}
	set("since", strconv.FormatUint(q.Since, 10), q.Since > 0)
	set("limit", strconv.Itoa(q.Limit), q.Limit > 0)
	set("follow", "1", q.Follow)
	set("tail", "1", q.Tail)
	session, component := strings.TrimSpace(q.SessionID), strings.TrimSpace(q.Component)
	set("session", session, session != "")
	set("component", component, component != "")
	return values.Encode()
}

// Fetch runs one /api/logs request.
func (c *StreamClient) Fetch(ctx context.Context, q StreamQuery) (api.LogStreamResponse, error) {
	var payload api.LogStreamResponse
	if c == nil {
		return payload, ErrAPIUnavailable
	}
	endpoint := c.endpoint
	endpoint.RawQuery = q.encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return payload, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return payload, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		var body api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
			return payload, fmt.Errorf("api logs returned status %d: %s", resp.StatusCode, body.Error)
		}
		return payload, fmt.Errorf("api logs returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return payload, fmt.Errorf("decode log response: %w", err)
	}
	return payload, nil
}

// Stream fetches q once and, when q.Follow is set, keeps following from the
// returned cursor until ctx ends. The first request honours q.Tail; follow-up
// requests never do. emit sees every non-empty page.
func (c *StreamClient) Stream(ctx context.Context, q StreamQuery, emit func([]api.LogEvent)) error {
	follow := q.Follow
	q.Follow = false
	for {
		resp, err := c.Fetch(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if len(resp.Events) > 0 {
			emit(resp.Events)
		}
		if !follow {
			return nil
		}
		q.Since = max(q.Since, resp.Next)
		q.Tail, q.Follow, q.Limit = false, true, 0
	}
}

// IsAPIUnavailable reports connection-level failures, as opposed to error
// responses from a live server.
func IsAPIUnavailable(err error) bool {
	if errors.Is(err, ErrAPIUnavailable) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
