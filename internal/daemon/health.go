package daemon

import (
	"context"
	"sync"
	"time"

	"vigil/internal/stage"
)

const (
	healthTTL          = time.Minute
	healthCheckTimeout = 10 * time.Second
)

// healthCache rate limits health checks; the reasoning check spends a real
// request, so status polling must not call it every time.
type healthCache struct {
	checkers []stage.HealthChecker
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	records []stage.Health
	checked time.Time
}

func newHealthCache(checkers []stage.HealthChecker, ttl time.Duration) *healthCache {
	return &healthCache{checkers: checkers, ttl: ttl, now: time.Now}
}

func (c *healthCache) get(ctx context.Context) []stage.Health {
	if c == nil || len(c.checkers) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.records != nil && c.now().Sub(c.checked) < c.ttl {
		return append([]stage.Health(nil), c.records...)
	}
	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), healthCheckTimeout)
	defer cancel()
	c.records = stage.CheckAll(checkCtx, c.checkers...)
	c.checked = c.now()
	return append([]stage.Health(nil), c.records...)
}
