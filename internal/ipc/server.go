package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"vigil/internal/api"
	"vigil/internal/daemon"
	"vigil/internal/logging"
)

const (
	serviceName     = "Vigil"
	defaultLogLimit = 200
	maxFollowWait   = 30 * time.Second
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServerOption customizes a Server.
type ServerOption func(*service)

// WithShutdown registers the function the Stop RPC calls to end the daemon
// process. Without it Stop only stops the daemon's services.
func WithShutdown(fn func()) ServerOption {
	return func(s *service) {
		s.shutdown = fn
	}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: serverCtx}
	for _, opt := range opts {
		opt(srv)
	}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun vigil daemon stop"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("daemon start requested")
	if s.daemon.Running() {
		resp.Started = false
		resp.Message = "daemon already running"
		return nil
	}
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	if s.shutdown != nil {
		s.shutdown()
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	if !status.StartedAt.IsZero() {
		resp.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
	}
	resp.StoreBackend = status.StoreBackend
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockFilePath
	resp.APIAddress = s.daemon.APIAddress()
	resp.Active = status.Pipeline.Active
	resp.Finished = status.Pipeline.Finished
	resp.Failed = status.Pipeline.Failed
	resp.LastError = status.Pipeline.LastError
	resp.Observers = status.Observers
	resp.Health = api.FromHealth(status.Health)
	return nil
}

func (s *service) SessionCreate(req SessionCreateRequest, resp *SessionResponse) error {
	sess, err := s.daemon.CreateSession(s.ctx, api.CreateSessionRequest{
		PatientID: req.PatientID,
		VideoRef:  req.VideoRef,
		AudioRef:  req.AudioRef,
		Start:     req.Start,
	})
	if err != nil {
		return err
	}
	resp.Session = api.FromSession(sess)
	return nil
}

func (s *service) SessionStart(req SessionIDRequest, resp *SessionResponse) error {
	if err := s.daemon.StartSession(s.ctx, req.ID); err != nil {
		return err
	}
	return s.describe(req.ID, resp)
}

func (s *service) SessionCancel(req SessionIDRequest, resp *SessionResponse) error {
	if err := s.daemon.CancelSession(s.ctx, req.ID); err != nil {
		return err
	}
	return s.describe(req.ID, resp)
}

func (s *service) SessionRetry(req SessionRetryRequest, resp *SessionResponse) error {
	next, err := s.daemon.RetrySession(s.ctx, req.ID, req.Start)
	if err != nil {
		return err
	}
	resp.Session = api.FromSession(next)
	return nil
}

func (s *service) describe(id string, resp *SessionResponse) error {
	summary, err := s.daemon.Sessions().Describe(s.ctx, id)
	if err != nil {
		return err
	}
	resp.Session = *summary
	return nil
}

func (s *service) SessionShow(req SessionIDRequest, resp *SessionShowResponse) error {
	detail, err := s.daemon.Sessions().Detail(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Session = *detail
	return nil
}

func (s *service) SessionList(req SessionListRequest, resp *SessionListResponse) error {
	var (
		list []Session
		err  error
	)
	if patient := strings.TrimSpace(req.PatientID); patient != "" {
		list, err = s.daemon.Sessions().ListByPatient(s.ctx, patient)
	} else {
		list, err = s.daemon.Sessions().List(s.ctx, req.Statuses, req.Limit)
	}
	if err != nil {
		return err
	}
	if list == nil {
		list = []Session{}
	}
	resp.Sessions = list
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	hub := s.daemon.LogStream()
	if hub == nil {
		return nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}

	ctx := s.ctx
	if req.Follow {
		wait := time.Duration(req.WaitMillis) * time.Millisecond
		if wait <= 0 || wait > maxFollowWait {
			wait = time.Second
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait)
		defer cancel()
	}
	filter := logging.EventFilter{
		SessionID: strings.TrimSpace(req.SessionID),
		Component: strings.TrimSpace(req.Component),
	}
	var (
		raw  []logging.LogEvent
		next uint64
	)
	if req.Tail && req.Since == 0 && !req.Follow {
		raw, next = hub.TailMatching(limit, filter)
	} else {
		var err error
		raw, next, err = hub.FetchMatching(ctx, req.Since, limit, req.Follow, filter)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	resp.Next = next
	resp.Events = api.FromLogEvents(raw)
	if resp.Events == nil {
		resp.Events = []LogEvent{}
	}
	return nil
}

func (s *service) Retention(_ RetentionRequest, resp *RetentionResponse) error {
	deleted, pruned := s.daemon.RunRetention(s.ctx)
	resp.SessionsDeleted = deleted
	resp.LogsPruned = pruned
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
