package stream

import (
	"encoding/json"
	"log/slog"
	"sync"

	"vigil/internal/logging"
)

const defaultObserverBuffer = 256

// Observer is one attached listener. Messages are delivered as encoded JSON
// frames; the channel closes when the observer is detached.
type Observer struct {
	sessionID string
	send      chan []byte
	closeOnce sync.Once
}

// SessionID returns the session the observer is attached to.
func (o *Observer) SessionID() string { return o.sessionID }

// Messages returns the frame channel.
func (o *Observer) Messages() <-chan []byte { return o.send }

func (o *Observer) close() {
	o.closeOnce.Do(func() { close(o.send) })
}

// Registry tracks observers per session and broadcasts published messages.
type Registry struct {
	logger *slog.Logger
	buffer int

	mu        sync.Mutex
	observers map[string]map[*Observer]struct{}
	closed    bool
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		logger:    logging.NewComponentLogger(logger, "stream"),
		buffer:    defaultObserverBuffer,
		observers: make(map[string]map[*Observer]struct{}),
	}
}

// Attach registers a new observer for sessionID. When initial is non-nil it
// is queued ahead of any message published after Attach returns.
func (r *Registry) Attach(sessionID string, initial Message) *Observer {
	obs := &Observer{sessionID: sessionID, send: make(chan []byte, r.buffer)}
	if initial != nil {
		if frame, err := encode(initial); err == nil {
			obs.send <- frame
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		obs.close()
		return obs
	}
	set := r.observers[sessionID]
	if set == nil {
		set = make(map[*Observer]struct{})
		r.observers[sessionID] = set
	}
	set[obs] = struct{}{}
	r.logger.Debug("observer attached",
		logging.String(logging.FieldSessionID, sessionID),
		logging.Int("observers", len(set)),
	)
	return obs
}

// Detach removes the observer and closes its channel. Detaching twice is a no-op.
func (r *Registry) Detach(obs *Observer) {
	if obs == nil {
		return
	}
	r.mu.Lock()
	r.removeLocked(obs)
	r.mu.Unlock()
	obs.close()
}

func (r *Registry) removeLocked(obs *Observer) {
	set := r.observers[obs.sessionID]
	if set == nil {
		return
	}
	delete(set, obs)
	if len(set) == 0 {
		delete(r.observers, obs.sessionID)
	}
}

// Publish broadcasts msg to every observer currently attached to sessionID.
// It never blocks on an observer: one whose buffer is full is detached.
func (r *Registry) Publish(sessionID string, msg Message) {
	if r == nil || msg == nil {
		return
	}
	frame, err := encode(msg)
	if err != nil {
		r.logger.Warn("stream message encode failed",
			logging.String(logging.FieldSessionID, sessionID),
			logging.String("message_type", string(msg.MessageType())),
			logging.Error(err),
		)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for obs := range r.observers[sessionID] {
		select {
		case obs.send <- frame:
		default:
			r.removeLocked(obs)
			obs.close()
			logging.WarnWithContext(r.logger, "observer detached; send buffer full", "observer_overflow",
				logging.String(logging.FieldSessionID, sessionID),
				logging.String(logging.FieldErrorHint, "client is not reading fast enough"),
				logging.String(logging.FieldImpact, "observer must reconnect and request status"),
			)
		}
	}
}

// Deliver queues msg for a single observer, used for direct replies.
// It reports false when the observer is closed or its buffer is full.
func (r *Registry) Deliver(obs *Observer, msg Message) bool {
	frame, err := encode(msg)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.attachedLocked(obs) {
		return false
	}
	select {
	case obs.send <- frame:
		return true
	default:
		return false
	}
}

func (r *Registry) attachedLocked(obs *Observer) bool {
	if obs == nil {
		return false
	}
	_, ok := r.observers[obs.sessionID][obs]
	return ok
}

// Count returns the number of observers attached to sessionID.
func (r *Registry) Count(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observers[sessionID])
}

// Total returns the number of observers across all sessions.
func (r *Registry) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, set := range r.observers {
		n += len(set)
	}
	return n
}

// Close detaches every observer. Later publishes are dropped.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, set := range r.observers {
		for obs := range set {
			obs.close()
		}
		delete(r.observers, id)
	}
}

func encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
