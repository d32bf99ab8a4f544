package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisReplaceAttempts = 5

// RedisStore keeps each session as a JSON string with sorted-set indexes for
// listing. Replace uses optimistic WATCH transactions.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

// RedisOptions configures a RedisStore connection.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// OpenRedis connects to Redis and verifies the connection with PING.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewRedisStore(client, opts.KeyPrefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) sessionKey(id string) string { return s.prefix + "session:" + id }
func (s *RedisStore) allKey() string { return s.prefix + "sessions" }
func (s *RedisStore) patientKey(pid string) string { return s.prefix + "patient:" + pid }
func (s *RedisStore) statusKey(st Status) string { return s.prefix + "status:" + string(st) }

// Close closes the client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Create stores a new session, failing if the id already exists.
func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	if err := validateNew(sess); err != nil {
		return err
	}
	stamp(sess, s.now())
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.sessionKey(sess.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrExists, sess.ID)
	}
	score := float64(sess.CreatedAt.UnixNano())
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: score, Member: sess.ID})
		pipe.SAdd(ctx, s.statusKey(sess.Status), sess.ID)
		if sess.PatientID != "" {
			pipe.ZAdd(ctx, s.patientKey(sess.PatientID), redis.Z{Score: score, Member: sess.ID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

// Get loads a session by identifier.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decodeDocument(data)
}

// Replace swaps the stored document if the status transition is allowed.
// Concurrent writers cause a bounded number of retries.
func (s *RedisStore) Replace(ctx context.Context, sess *Session) error {
	if err := validateNew(sess); err != nil {
		return err
	}
	key := s.sessionKey(sess.ID)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", ErrNotFound, sess.ID)
			}
			return err
		}
		current, err := decodeDocument(raw)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, sess.Status) {
			return transitionError(sess.ID, current.Status, sess.Status)
		}
		stamp(sess, s.now())
		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if current.Status != sess.Status {
				pipe.SRem(ctx, s.statusKey(current.Status), sess.ID)
				pipe.SAdd(ctx, s.statusKey(sess.Status), sess.ID)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisReplaceAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidTransition) {
			return fmt.Errorf("replace session: %w", err)
		}
		return err
	}
	return fmt.Errorf("replace session %s: concurrent modification", sess.ID)
}

// ListByPatient returns a patient's sessions, newest first.
func (s *RedisStore) ListByPatient(ctx context.Context, patientID string) ([]*Session, error) {
	ids, err := s.client.ZRevRange(ctx, s.patientKey(patientID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list patient sessions: %w", err)
	}
	return s.load(ctx, ids, Filter{})
}

// List returns sessions matching filter, newest first.
func (s *RedisStore) List(ctx context.Context, filter Filter) ([]*Session, error) {
	ids, err := s.client.ZRevRange(ctx, s.allKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return s.load(ctx, ids, filter)
}

// DeleteTerminalBefore removes terminal sessions last updated before cutoff.
func (s *RedisStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	for _, status := range []Status{StatusCompleted, StatusFailed} {
		ids, err := s.client.SMembers(ctx, s.statusKey(status)).Result()
		if err != nil {
			return removed, fmt.Errorf("list %s sessions: %w", status, err)
		}
		sessions, err := s.load(ctx, ids, Filter{})
		if err != nil {
			return removed, err
		}
		for _, sess := range sessions {
			if !sess.UpdatedAt.Before(cutoff) {
				continue
			}
			_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, s.sessionKey(sess.ID))
				pipe.ZRem(ctx, s.allKey(), sess.ID)
				pipe.SRem(ctx, s.statusKey(sess.Status), sess.ID)
				if sess.PatientID != "" {
					pipe.ZRem(ctx, s.patientKey(sess.PatientID), sess.ID)
				}
				return nil
			})
			if err != nil {
				return removed, fmt.Errorf("delete session %s: %w", sess.ID, err)
			}
			removed++
		}
	}
	return removed, nil
}

func (s *RedisStore) load(ctx context.Context, ids []string, filter Filter) ([]*Session, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	out := make([]*Session, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		sess, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		if !filter.matches(sess) {
			continue
		}
		out = append(out, sess)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
