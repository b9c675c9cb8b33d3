package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalCache is an in-process Cache used when no Redis URL is configured.
// Locks and counters are only shared within one process.
type LocalCache struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

type localEntry struct {
	value   []byte
	expires time.Time
}

// NewLocalCache returns an empty LocalCache.
func NewLocalCache() *LocalCache {
	return &LocalCache{entries: make(map[string]localEntry), now: time.Now}
}

// get returns the live entry for key. Callers hold mu.
func (c *LocalCache) get(key string) (localEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return localEntry{}, false
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return localEntry{}, false
	}
	return e, true
}

func (c *LocalCache) put(key string, value []byte, ttl time.Duration) {
	e := localEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key] = e
}

func (c *LocalCache) Ping(_ context.Context) error { return nil }

func (c *LocalCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, ttl)
	return nil
}

func (c *LocalCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *LocalCache) SetRunStatus(ctx context.Context, runID uuid.UUID, status string, ttl time.Duration) error {
	return c.Set(ctx, RunStatusKey(runID), []byte(status), ttl)
}

func (c *LocalCache) GetRunStatus(ctx context.Context, runID uuid.UUID) (string, bool, error) {
	v, ok, err := c.Get(ctx, RunStatusKey(runID))
	return string(v), ok, err
}

func (c *LocalCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	if e, ok := c.get(key); ok {
		n, _ = strconv.ParseInt(string(e.value), 10, 64)
	}
	n++
	c.put(key, []byte(strconv.FormatInt(n, 10)), expiry)
	return n, nil
}

func (c *LocalCache) AcquireLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.get(key); held {
		return false, nil
	}
	c.put(key, []byte(token), ttl)
	return true, nil
}

func (c *LocalCache) ReleaseLock(_ context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.get(key); ok && string(e.value) == token {
		delete(c.entries, key)
	}
	return nil
}

var _ Cache = (*LocalCache)(nil)
