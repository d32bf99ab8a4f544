package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func openTestSQLite(t *testing.T) (*SQLiteStore, *clock) {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store.now = c.now
	return store, c
}

func storeImplementations(t *testing.T) map[string]func(t *testing.T) (Store, *clock) {
	impls := map[string]func(t *testing.T) (Store, *clock){
		"sqlite": func(t *testing.T) (Store, *clock) {
			s, c := openTestSQLite(t)
			return s, c
		},
	}
	if addr := os.Getenv("VIGIL_TEST_REDIS_ADDR"); addr != "" {
		impls["redis"] = func(t *testing.T) (Store, *clock) {
			prefix := "vigiltest:" + t.Name() + ":" + time.Now().Format("150405.000000000")
			s, err := OpenRedis(context.Background(), RedisOptions{Addr: addr, KeyPrefix: prefix})
			if err != nil {
				t.Fatalf("open redis: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
			s.now = c.now
			return s, c
		}
	}
	return impls
}

func newSession(id, patient string) *Session {
	return &Session{ID: id, PatientID: patient, VideoRef: "s3://bucket/" + id + ".mp4", Status: StatusPending}
}

func TestStoreCreateAndGet(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			store, _ := open(t)
			ctx := context.Background()
			if err := store.Create(ctx, newSession("s1", "p1")); err != nil {
				t.Fatalf("create: %v", err)
			}
			got, err := store.Get(ctx, "s1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.PatientID != "p1" || got.Status != StatusPending {
				t.Fatalf("unexpected session %+v", got)
			}
			if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(got.UpdatedAt) {
				t.Fatalf("expected stamped timestamps, got %v / %v", got.CreatedAt, got.UpdatedAt)
			}
			if err := store.Create(ctx, newSession("s1", "p1")); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}
			if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreCreateRejectsInvalid(t *testing.T) {
	store, _ := openTestSQLite(t)
	ctx := context.Background()
	if err := store.Create(ctx, &Session{ID: "x", Status: StatusPending}); err == nil {
		t.Fatal("expected missing video ref to be rejected")
	}
	if err := store.Create(ctx, &Session{ID: "x", VideoRef: "v", Status: "bogus"}); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestStoreReplaceEnforcesTransitions(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			store, _ := open(t)
			ctx := context.Background()
			sess := newSession("s1", "")
			if err := store.Create(ctx, sess); err != nil {
				t.Fatalf("create: %v", err)
			}

			sess.Status = StatusProcessingVideo
			if err := store.Replace(ctx, sess); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected skip to be rejected, got %v", err)
			}

			sess.Status = StatusUploading
			sess.Progress = 0.01
			if err := store.Replace(ctx, sess); err != nil {
				t.Fatalf("advance to uploading: %v", err)
			}
			sess.Progress = 0.03
			if err := store.Replace(ctx, sess); err != nil {
				t.Fatalf("progress update: %v", err)
			}

			sess.Status = StatusFailed
			sess.ErrorMessage = "boom"
			if err := store.Replace(ctx, sess); err != nil {
				t.Fatalf("fail session: %v", err)
			}
			sess.Status = StatusFailed
			sess.ErrorMessage = "again"
			if err := store.Replace(ctx, sess); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected terminal record to be immutable, got %v", err)
			}

			got, err := store.Get(ctx, "s1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.ErrorMessage != "boom" || got.Status != StatusFailed {
				t.Fatalf("unexpected stored session %+v", got)
			}
			if !got.UpdatedAt.After(got.CreatedAt) {
				t.Fatalf("expected updated_at to advance")
			}

			if err := store.Replace(ctx, newSession("missing", "")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreListOrdering(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			store, _ := open(t)
			ctx := context.Background()
			for _, s := range []*Session{newSession("a", "p1"), newSession("b", "p2"), newSession("c", "p1")} {
				if err := store.Create(ctx, s); err != nil {
					t.Fatalf("create %s: %v", s.ID, err)
				}
			}

			byPatient, err := store.ListByPatient(ctx, "p1")
			if err != nil {
				t.Fatalf("list by patient: %v", err)
			}
			if len(byPatient) != 2 || byPatient[0].ID != "c" || byPatient[1].ID != "a" {
				t.Fatalf("unexpected patient listing %v", ids(byPatient))
			}

			none, err := store.ListByPatient(ctx, "unknown")
			if err != nil {
				t.Fatalf("list unknown patient: %v", err)
			}
			if len(none) != 0 {
				t.Fatalf("expected no sessions, got %v", ids(none))
			}

			all, err := store.List(ctx, Filter{Limit: 2})
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(all) != 2 || all[0].ID != "c" || all[1].ID != "b" {
				t.Fatalf("unexpected listing %v", ids(all))
			}

			b, _ := store.Get(ctx, "b")
			b.Status = StatusFailed
			if err := store.Replace(ctx, b); err != nil {
				t.Fatalf("fail b: %v", err)
			}
			failed, err := store.List(ctx, Filter{Statuses: []Status{StatusFailed}})
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(failed) != 1 || failed[0].ID != "b" {
				t.Fatalf("unexpected failed listing %v", ids(failed))
			}
		})
	}
}

func TestStoreDeleteTerminalBefore(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			store, c := open(t)
			ctx := context.Background()
			old := newSession("old", "p1")
			running := newSession("running", "p1")
			for _, s := range []*Session{old, running} {
				if err := store.Create(ctx, s); err != nil {
					t.Fatalf("create: %v", err)
				}
			}
			old.Status = StatusFailed
			if err := store.Replace(ctx, old); err != nil {
				t.Fatalf("fail old: %v", err)
			}
			cutoff := c.t.Add(time.Hour)

			removed, err := store.DeleteTerminalBefore(ctx, cutoff)
			if err != nil {
				t.Fatalf("delete: %v", err)
			}
			if removed != 1 {
				t.Fatalf("expected 1 removed, got %d", removed)
			}
			if _, err := store.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected old session gone, got %v", err)
			}
			if _, err := store.Get(ctx, "running"); err != nil {
				t.Fatalf("expected running session kept: %v", err)
			}
			remaining, _ := store.ListByPatient(ctx, "p1")
			if len(remaining) != 1 {
				t.Fatalf("expected patient index pruned, got %v", ids(remaining))
			}
		})
	}
}

func TestSQLiteSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = store.Close()

	if _, err := OpenSQLite(path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func ids(list []*Session) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}
