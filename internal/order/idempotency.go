package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	maxIdempotencyKey = 128
)

// IdempotencyStore claims request keys. Claim reports false when the key
// was already claimed and has not expired. Release frees a key whose
// request failed so the client can retry with it.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

func idempotencyKey(userID, key string) string {
	return "idem:order:" + userID + ":" + key
}

type RedisIdempotency struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisIdempotency(client redis.UniversalClient) *RedisIdempotency {
	return &RedisIdempotency{client: client, ttl: idempotencyTTL}
}

func (r *RedisIdempotency) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return ok, nil
}

func (r *RedisIdempotency) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

type MemIdempotency struct {
	mu   sync.Mutex
	keys map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemIdempotency() *MemIdempotency {
	return &MemIdempotency{keys: map[string]time.Time{}, ttl: idempotencyTTL, now: time.Now}
}

func (m *MemIdempotency) Claim(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.keys {
		if !now.Before(exp) {
			delete(m.keys, k)
		}
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = now.Add(m.ttl)
	return true, nil
}

func (m *MemIdempotency) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
