package cart

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type MemStore struct {
	Log *zap.Logger

	mu    sync.Mutex
	owner map[string]*sync.Mutex
	data  map[string][]byte
}

func NewMemStore(log *zap.Logger) *MemStore {
	return &MemStore{
		Log:   log,
		owner: map[string]*sync.Mutex{},
		data:  map[string][]byte{},
	}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Load(ctx context.Context, owner string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := s.data[owner]
	if raw == nil {
		return nil, nil
	}
	return append([]byte(nil), raw...), nil
}

func (s *MemStore) Save(ctx context.Context, owner string, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(snapshot) == 0 {
		delete(s.data, owner)
		return nil
	}
	s.data[owner] = append([]byte(nil), snapshot...)
	return nil
}

func (s *MemStore) Delete(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, owner)
	return nil
}

func (s *MemStore) Update(ctx context.Context, owner string, fn func(*Cart) error) (*Cart, error) {
	l := s.lockFor(owner)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, _ := s.Load(ctx, owner)
	c, snap, err := mutate(s.Log, owner, raw, fn)
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, owner, snap); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *MemStore) lockFor(owner string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.owner[owner]
	if !ok {
		l = &sync.Mutex{}
		s.owner[owner] = l
	}
	return l
}
