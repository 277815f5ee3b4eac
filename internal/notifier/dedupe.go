package notifier

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper guards outbound messages with idempotency keys.
type Deduper interface {
	// Claim reserves key for ttl. It reports false when the key is
	// already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops a claim so the message can be retried.
	Release(ctx context.Context, key string) error
}

// MemoryDeduper keeps claims in process memory. Claims are lost on
// restart.
type MemoryDeduper struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper creates an empty in-memory guard.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{keys: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryDeduper) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.keys {
		if !now.Before(exp) {
			delete(m.keys, k)
		}
	}
	if _, held := m.keys[key]; held {
		return false, nil
	}
	m.keys[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryDeduper) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// redisClient is the subset of *redis.Client used by RedisDeduper.
type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDeduper shares claims across restarts and processes through
// SET NX with expiry.
type RedisDeduper struct {
	client redisClient
	prefix string
}

// NewRedisDeduper wraps an existing client.
func NewRedisDeduper(client redisClient, prefix string) *RedisDeduper {
	if prefix == "" {
		prefix = "aurum:notify:"
	}
	return &RedisDeduper{client: client, prefix: prefix}
}

// DialRedis builds a client from a redis:// URL or a bare host:port and
// pings it.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (r *RedisDeduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, time.Now().UTC().Unix(), ttl).Result()
}

func (r *RedisDeduper) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
