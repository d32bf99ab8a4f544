package testsupport

import (
	"context"
	"testing"

	"vigil/internal/config"
	"vigil/internal/session"
)

// MustOpenStore opens a SQLite session store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *session.SQLiteStore {
	t.Helper()

	store, err := session.OpenSQLite(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("session.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewSession stores a pending session for tests.
func NewSession(t testing.TB, store session.Store, id, videoRef string) *session.Session {
	t.Helper()

	sess := &session.Session{ID: id, PatientID: "patient-1", VideoRef: videoRef, Status: session.StatusPending}
	if err := store.Create(context.Background(), sess); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	got, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	return got
}
