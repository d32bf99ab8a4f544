package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultStreamCapacity = 512

// LogEvent represents a structured log line published to the streaming hub.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// EventFilter narrows hub reads to one session and/or component.
// The zero value matches everything.
type EventFilter struct {
	SessionID string
	Component string
}

// Match reports whether evt passes the filter. Components compare
// case-insensitively.
func (f EventFilter) Match(evt LogEvent) bool {
	if f.SessionID != "" && evt.SessionID != f.SessionID {
		return false
	}
	if f.Component != "" && !strings.EqualFold(f.Component, evt.Component) {
		return false
	}
	return true
}

// StreamHub keeps the most recent events in a fixed ring. Sequence numbers
// are contiguous, so the ring slot for any buffered sequence is computed
// rather than searched.
type StreamHub struct {
	mu      sync.Mutex
	ring    []LogEvent
	head    int // slot of the oldest event
	count   int
	lastSeq uint64
	wake    chan struct{}
}

// NewStreamHub constructs a hub holding at most capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = defaultStreamCapacity
	}
	return &StreamHub{
		ring: make([]LogEvent, capacity),
		wake: make(chan struct{}),
	}
}

// Publish assigns the next sequence number to evt and stores it, evicting the
// oldest event once the ring is full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	h.lastSeq++
	evt.Sequence = h.lastSeq
	if h.count < len(h.ring) {
		h.ring[(h.head+h.count)%len(h.ring)] = evt
		h.count++
	} else {
		h.ring[h.head] = evt
		h.head = (h.head + 1) % len(h.ring)
	}
	wake := h.wake
	h.wake = make(chan struct{})
	h.mu.Unlock()

	close(wake)
}

// Fetch returns up to limit events with sequence greater than since. With wait
// set, an empty read blocks until something is published or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	return h.FetchMatching(ctx, since, limit, wait, EventFilter{})
}

// FetchMatching is Fetch restricted to events accepted by filter. The returned
// cursor advances past events the filter skipped, so a follower never rescans
// them.
func (h *StreamHub) FetchMatching(ctx context.Context, since uint64, limit int, wait bool, filter EventFilter) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	limit = h.clampLimit(limit)

	cursor := since
	for {
		h.mu.Lock()
		events, next := h.collectLocked(cursor, limit, filter)
		wake := h.wake
		h.mu.Unlock()

		if len(events) > 0 || !wait {
			return events, next, ctx.Err()
		}
		cursor = next
		select {
		case <-ctx.Done():
			return nil, cursor, ctx.Err()
		case <-wake:
		}
	}
}

// Tail returns the newest limit events and the last assigned sequence.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	return h.TailMatching(limit, EventFilter{})
}

// TailMatching returns the newest limit events accepted by filter.
func (h *StreamHub) TailMatching(limit int, filter EventFilter) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	limit = h.clampLimit(limit)

	h.mu.Lock()
	defer h.mu.Unlock()
	var out []LogEvent
	for i := h.count - 1; i >= 0 && len(out) < limit; i-- {
		evt := h.at(i)
		if filter.Match(evt) {
			out = append(out, evt)
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out, h.lastSeq
}

// FirstSequence reports the smallest sequence number still buffered.
func (h *StreamHub) FirstSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return h.lastSeq
	}
	return h.firstSeqLocked()
}

func (h *StreamHub) clampLimit(limit int) int {
	if limit <= 0 || limit > len(h.ring) {
		return len(h.ring)
	}
	return limit
}

func (h *StreamHub) firstSeqLocked() uint64 {
	return h.lastSeq - uint64(h.count) + 1
}

// at returns the i-th buffered event counting from the oldest.
func (h *StreamHub) at(i int) LogEvent {
	return h.ring[(h.head+i)%len(h.ring)]
}

func (h *StreamHub) collectLocked(since uint64, limit int, filter EventFilter) ([]LogEvent, uint64) {
	if h.count == 0 || since >= h.lastSeq {
		return nil, h.lastSeq
	}
	start := 0
	if first := h.firstSeqLocked(); since >= first {
		start = int(since - first + 1)
	}
	var out []LogEvent
	for i := start; i < h.count; i++ {
		evt := h.at(i)
		if !filter.Match(evt) {
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			return out, evt.Sequence
		}
	}
	return out, h.lastSeq
}

// streamHandler mirrors every record it forwards into a StreamHub.
type streamHandler struct {
	next  slog.Handler
	hub   *StreamHub
	bound []slog.Attr
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hub.Publish(buildEvent(record, h.bound))
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := append(append([]slog.Attr(nil), h.bound...), attrs...)
	return &streamHandler{next: h.next.WithAttrs(attrs), hub: h.hub, bound: bound}
}

// WithGroup drops the bound attrs from the hub copy; grouped keys would not
// map onto the event's top-level fields anyway.
func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{next: h.next.WithGroup(name), hub: h.hub}
}

func buildEvent(record slog.Record, bound []slog.Attr) LogEvent {
	evt := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
		Fields:    map[string]string{},
	}
	apply := func(attr slog.Attr) bool {
		key := strings.TrimSpace(attr.Key)
		if key == "" {
			return true
		}
		value := attrString(attr.Value)
		switch key {
		case FieldSessionID:
			evt.SessionID = value
		case FieldStage:
			evt.Stage = value
		case FieldCorrelationID:
			evt.CorrelationID = value
		case FieldComponent:
			evt.Component = value
		default:
			evt.Fields[key] = value
		}
		return true
	}
	for _, attr := range bound {
		apply(attr)
	}
	// record attrs win over logger-bound ones
	record.Attrs(apply)
	return evt
}
