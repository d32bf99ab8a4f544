package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"vigil/internal/api"
	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/pipeline"
	"vigil/internal/services"
	"vigil/internal/session"
	"vigil/internal/stream"
)

const (
	defaultLogLimit = 200
	maxRequestBody  = 1 << 20
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	router *mux.Router

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.router = srv.routes()
	return srv
}

func (s *apiServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", s.handleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/results", s.handleResults).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/retry", s.handleRetry).Methods(http.MethodPost)
	r.HandleFunc("/api/patients/{id}/sessions", s.handlePatientSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/logs", s.handleLogs).Methods(http.MethodGet)
	r.Handle("/ws/analysis/{id}", stream.NewHandler(s.daemon.registry, s.daemon.store, s.logger))

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled; api_bind is empty")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		StoreBackend: status.StoreBackend,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Pipeline: api.PipelineStatus{
			Active:    status.Pipeline.Active,
			Finished:  status.Pipeline.Finished,
			Failed:    status.Pipeline.Failed,
			LastError: status.Pipeline.LastError,
			Observers: status.Observers,
		},
		Health: api.FromHealth(status.Health),
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var statuses []string
	for _, value := range query["status"] {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				statuses = append(statuses, trimmed)
			}
		}
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	list, err := s.daemon.sessions.List(r.Context(), statuses, limit)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: list})
}

func (s *apiServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	sess, err := s.daemon.CreateSession(r.Context(), req)
	if err != nil {
		// A session that was stored but failed to start stays pending.
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.SessionResponse{Session: api.FromSession(sess)})
}

func (s *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	detail, err := s.daemon.sessions.Detail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ResultsResponse{Session: *detail})
}

func (s *apiServer) handleResults(w http.ResponseWriter, r *http.Request) {
	detail, err := s.daemon.sessions.Results(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ResultsResponse{Session: *detail})
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.daemon.StartSession(r.Context(), id); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeSummary(w, r, id, http.StatusAccepted)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.daemon.CancelSession(r.Context(), id); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeSummary(w, r, id, http.StatusAccepted)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	start := parseBool(r.URL.Query().Get("start"))
	next, err := s.daemon.RetrySession(r.Context(), mux.Vars(r)["id"], start)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.SessionResponse{Session: api.FromSession(next)})
}

func (s *apiServer) handlePatientSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.daemon.sessions.ListByPatient(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: list})
}

func (s *apiServer) writeSummary(w http.ResponseWriter, r *http.Request, id string, status int) {
	summary, err := s.daemon.sessions.Describe(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, status, api.SessionResponse{Session: *summary})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: []api.LogEvent{}, Next: 0})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := parseBool(query.Get("follow"))
	tail := parseBool(query.Get("tail"))
	filter := logging.EventFilter{
		SessionID: strings.TrimSpace(query.Get("session")),
		Component: strings.TrimSpace(query.Get("component")),
	}

	var (
		raw  []logging.LogEvent
		next uint64
	)
	if tail && since == 0 && !follow {
		raw, next = hub.TailMatching(limit, filter)
	} else {
		var err error
		raw, next, err = hub.FetchMatching(r.Context(), since, limit, follow, filter)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	events := api.FromLogEvents(raw)
	if events == nil {
		events = []api.LogEvent{}
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: events, Next: next})
}

// httpStatusFor maps domain errors to response codes.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrDuplicateStart),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, api.ErrResultsNotReady):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	status := httpStatusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed", logging.Error(err))
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func parseBool(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}
