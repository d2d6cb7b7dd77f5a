package cart

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStoreContract(t *testing.T, s SnapshotStore) {
	t.Helper()
	ctx := context.Background()
	owner := "u_" + uuid.NewString()
	t.Cleanup(func() { _ = s.Delete(context.Background(), owner) })

	raw, err := s.Load(ctx, owner)
	require.NoError(t, err)
	require.Nil(t, raw)

	c, err := s.Update(ctx, owner, func(c *Cart) error {
		return c.Add(keyboard, 2, nil)
	})
	require.NoError(t, err)
	require.Equal(t, 2, c.TotalItems())

	got, err := Get(ctx, s, zap.NewNop(), owner)
	require.NoError(t, err)
	require.Equal(t, int64(2*4990), got.TotalPriceCents())

	boom := errors.New("boom")
	_, err = s.Update(ctx, owner, func(c *Cart) error {
		c.Clear()
		return boom
	})
	require.ErrorIs(t, err, boom)
	got, err = Get(ctx, s, zap.NewNop(), owner)
	require.NoError(t, err)
	require.Equal(t, 2, got.TotalItems())

	_, err = s.Update(ctx, owner, func(c *Cart) error {
		c.Remove("p1")
		return nil
	})
	require.NoError(t, err)
	raw, err = s.Load(ctx, owner)
	require.NoError(t, err)
	require.Nil(t, raw)

	require.NoError(t, s.Save(ctx, owner, []byte("{corrupt")))
	got, err = Get(ctx, s, zap.NewNop(), owner)
	require.NoError(t, err)
	require.Zero(t, got.Len())

	c, err = s.Update(ctx, owner, func(c *Cart) error {
		return c.Add(tshirt, 1, map[string]string{"size": "S"})
	})
	require.NoError(t, err)
	require.Equal(t, 1, c.TotalItems())

	require.NoError(t, s.Delete(ctx, owner))
	raw, err = s.Load(ctx, owner)
	require.NoError(t, err)
	require.Nil(t, raw)
}

func testConcurrentAdds(t *testing.T, s SnapshotStore, writers int) {
	t.Helper()
	ctx := context.Background()
	owner := "u_" + uuid.NewString()
	t.Cleanup(func() { _ = s.Delete(context.Background(), owner) })

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := s.Update(ctx, owner, func(c *Cart) error {
					return c.Add(keyboard, 1, nil)
				})
				if errors.Is(err, ErrConflict) {
					continue
				}
				errs <- err
				return
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := Get(ctx, s, zap.NewNop(), owner)
	require.NoError(t, err)
	require.Equal(t, writers, got.TotalItems())
	require.Equal(t, 1, got.Len())
}

func TestMemStore(t *testing.T) {
	s := NewMemStore(zap.NewNop())
	testStoreContract(t, s)
	testConcurrentAdds(t, s, 50)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cart.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	testStoreContract(t, s)
	testConcurrentAdds(t, s, 10)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cart.db")

	s, err := OpenSQLite(ctx, path, zap.NewNop())
	require.NoError(t, err)
	_, err = s.Update(ctx, "local", func(c *Cart) error { return c.Add(keyboard, 3, nil) })
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	got, err := Get(ctx, s, zap.NewNop(), "local")
	require.NoError(t, err)
	require.Equal(t, 3, got.TotalItems())
}

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStore(t *testing.T) {
	s := NewRedisStore(getRedisClient(t), zap.NewNop())
	testStoreContract(t, s)
	testConcurrentAdds(t, s, 20)
}

func TestRedisStore_SetsTTL(t *testing.T) {
	client := getRedisClient(t)
	s := NewRedisStore(client, zap.NewNop())
	ctx := context.Background()
	owner := "u_" + uuid.NewString()
	defer s.Delete(ctx, owner)

	_, err := s.Update(ctx, owner, func(c *Cart) error { return c.Add(keyboard, 1, nil) })
	require.NoError(t, err)

	ttl, err := client.TTL(ctx, redisKey(owner)).Result()
	require.NoError(t, err)
	require.Positive(t, ttl)
	require.LessOrEqual(t, ttl, DefaultRedisTTL)
}
