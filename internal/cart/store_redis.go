package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultRedisTTL     = 30 * 24 * time.Hour
	defaultRedisRetries = 5
)

// RedisStore keeps snapshots under cart:<owner>. Update uses WATCH/MULTI
// and retries when another writer touched the key in between.
type RedisStore struct {
	Client     redis.UniversalClient
	TTL        time.Duration
	MaxRetries int
	Log        *zap.Logger
}

func NewRedisStore(client redis.UniversalClient, log *zap.Logger) *RedisStore {
	return &RedisStore{Client: client, TTL: DefaultRedisTTL, MaxRetries: defaultRedisRetries, Log: log}
}

func redisKey(owner string) string { return "cart:" + owner }

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func (s *RedisStore) Load(ctx context.Context, owner string) ([]byte, error) {
	raw, err := s.Client.Get(ctx, redisKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart: %w", err)
	}
	return raw, nil
}

func (s *RedisStore) Save(ctx context.Context, owner string, snapshot []byte) error {
	if len(snapshot) == 0 {
		return s.Delete(ctx, owner)
	}
	if err := s.Client.Set(ctx, redisKey(owner), snapshot, s.TTL).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, owner string) error {
	if err := s.Client.Del(ctx, redisKey(owner)).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, owner string, fn func(*Cart) error) (*Cart, error) {
	key := redisKey(owner)
	retries := s.MaxRetries
	if retries <= 0 {
		retries = defaultRedisRetries
	}

	for attempt := 0; attempt < retries; attempt++ {
		var out *Cart
		err := s.Client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("redis get cart: %w", err)
			}

			c, snap, err := mutate(s.Log, owner, raw, fn)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				if snap == nil {
					p.Del(ctx, key)
				} else {
					p.Set(ctx, key, snap, s.TTL)
				}
				return nil
			})
			if err != nil {
				return err
			}
			out = c
			return nil
		}, key)

		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConflict
}
