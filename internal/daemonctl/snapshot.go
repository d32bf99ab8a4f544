package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"vigil/internal/config"
	"vigil/internal/ipc"
	"vigil/internal/preflight"
	"vigil/internal/session"
)

const offlineQueryTimeout = 2 * time.Second

// StatusSnapshot combines live daemon status with offline checks.
type StatusSnapshot struct {
	// Daemon is never nil; an offline daemon yields a zero response.
	Daemon *ipc.StatusResponse
	// Counts are session totals per status; read from the store directly
	// when the daemon is offline.
	Counts    map[string]int
	Preflight []preflight.Result
}

// BuildStatusSnapshot asks the daemon for status and session counts. When the
// daemon is down it reads the SQLite store directly and runs preflight checks
// in its place.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &StatusSnapshot{Daemon: &ipc.StatusResponse{}, Counts: map[string]int{}}
	if client, err := ipc.Dial(socketPath); err == nil {
		snap.fillFromDaemon(client)
		_ = client.Close()
	}
	if snap.Daemon.Running {
		return snap, nil
	}
	if counts, err := offlineCounts(ctx, cfg); err == nil {
		snap.Counts = counts
	}
	if len(snap.Daemon.Health) == 0 {
		snap.Preflight = preflight.RunAll(ctx, cfg)
	}
	return snap, nil
}

func (s *StatusSnapshot) fillFromDaemon(client *ipc.Client) {
	if resp, err := client.Status(); err == nil {
		s.Daemon = resp
	}
	if list, err := client.SessionList(ipc.SessionListRequest{}); err == nil {
		for _, sess := range list.Sessions {
			s.Counts[sess.Status]++
		}
	}
}

// offlineCounts reads the SQLite store directly. Redis stores are skipped so
// status never blocks on a remote connection.
func offlineCounts(ctx context.Context, cfg *config.Config) (map[string]int, error) {
	if backend := strings.TrimSpace(cfg.Store.Backend); backend != "" && backend != "sqlite" {
		return nil, fmt.Errorf("offline counts unavailable for %s store", backend)
	}
	if _, err := os.Stat(cfg.DatabasePath()); err != nil {
		return nil, err
	}
	store, err := session.OpenSQLite(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, offlineQueryTimeout)
	defer cancel()
	list, err := store.List(ctx, session.Filter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(session.Pipeline)+1)
	for _, sess := range list {
		counts[string(sess.Status)]++
	}
	return counts, nil
}
