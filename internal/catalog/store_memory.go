package catalog

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemStore struct {
	mu         sync.RWMutex
	m          map[string]Product
	categories map[string]Category
	now        func() time.Time
}

func NewMemStore() *MemStore {
	s := &MemStore{
		m:          map[string]Product{},
		categories: map[string]Category{},
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, p := range SeedProducts(s.now()) {
		s.m[p.ID] = p
	}
	for _, c := range SeedCategories() {
		s.categories[c.ID] = c
	}
	return s
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) List(ctx context.Context, q ListQuery) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.m))
	for _, p := range s.m {
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		if q.FeaturedOnly && !p.Featured {
			continue
		}
		if q.After != nil && !q.After.Admits(p) {
			continue
		}
		out = append(out, clone(p))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemStore) Get(ctx context.Context, id string) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.m[id]
	return clone(p), ok, nil
}

func (s *MemStore) Create(ctx context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[p.ID] = clone(p)
	return nil
}

func (s *MemStore) Update(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.m[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	p = patch.Apply(p)
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	p.UpdatedAt = s.now()
	s.m[id] = p
	return clone(p), nil
}

func (s *MemStore) Delete(ctx context.Context, id string) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.m[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	delete(s.m, id)
	return p, nil
}

func (s *MemStore) ListCategories(ctx context.Context) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemStore) CreateCategory(ctx context.Context, c Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if existing.Slug == c.Slug {
			return ErrSlugExists
		}
	}
	s.categories[c.ID] = c
	return nil
}

func clone(p Product) Product {
	if p.Variants == nil {
		return p
	}
	vs := make([]Variant, len(p.Variants))
	for i, v := range p.Variants {
		v.Options = append([]string(nil), v.Options...)
		vs[i] = v
	}
	p.Variants = vs
	return p
}

var _ Store = (*MemStore)(nil)
