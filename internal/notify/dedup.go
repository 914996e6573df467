package notify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupCache answers "has this notification key already fired within
// window" and atomically marks it fired when the answer is no. It
// backs the 20-hour reminder gate so that, when multiple engine
// instances run against the same database, only one of them actually
// sends — the store-level LastNotificationAt column is the gate of
// record, this is an optional fast-path that also closes the race
// between two instances reading the same row before either writes it.
type DedupCache interface {
	ShouldSend(ctx context.Context, key string, window time.Duration) (bool, error)
}

// RedisDedupCache implements DedupCache with a SETNX against Redis, so
// the check-and-mark is atomic across every process sharing the
// instance.
type RedisDedupCache struct {
	client *redis.Client
}

const dedupKeyPrefix = "sentrymon:notify:dedup:"

// NewRedisDedupCache dials url (a redis:// or rediss:// connection
// string) and verifies connectivity before returning.
func NewRedisDedupCache(url string) (*RedisDedupCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisDedupCache{client: client}, nil
}

func (c *RedisDedupCache) ShouldSend(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, dedupKeyPrefix+key, 1, window).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (c *RedisDedupCache) Close() error {
	return c.client.Close()
}

// MemoryDedupCache is the in-process fallback used when no Redis
// instance is configured, mirroring the teacher's in-memory
// last-notified map kept under a mutex.
type MemoryDedupCache struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewMemoryDedupCache() *MemoryDedupCache {
	return &MemoryDedupCache{last: make(map[string]time.Time)}
}

func (c *MemoryDedupCache) ShouldSend(_ context.Context, key string, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if last, ok := c.last[key]; ok && now.Sub(last) < window {
		return false, nil
	}
	c.last[key] = now
	return true, nil
}
