package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"Storefront/internal/catalog"
)

// MemStore keeps orders and a private stock table. It is used when no
// database is configured. Stock is seeded from the catalog seed data;
// products it has not seen start from the stock the catalog reported when
// the order was priced. Decrements are not written back to the catalog.
type MemStore struct {
	mu     sync.Mutex
	orders map[string]Order
	stock  map[string]int
}

func NewMemStore(stock map[string]int) *MemStore {
	s := &MemStore{orders: map[string]Order{}, stock: map[string]int{}}
	for id, n := range stock {
		s.stock[id] = n
	}
	return s
}

func NewSeededMemStore() *MemStore {
	stock := map[string]int{}
	for _, p := range catalog.SeedProducts(time.Now()) {
		stock[p.ID] = p.Stock
	}
	return NewMemStore(stock)
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

// Stock returns the remaining stock of a product.
func (s *MemStore) Stock(productID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.stock[productID]
	return n, ok
}

func (s *MemStore) SetStock(productID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[productID] = n
}

func (s *MemStore) Place(ctx context.Context, o Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	need, err := stockDemand(o.Items)
	if err != nil {
		return err
	}
	next := make(map[string]int, len(need))
	for _, d := range need {
		have, ok := s.stock[d.ProductID]
		if !ok && d.catalogStock != nil {
			have, ok = *d.catalogStock, true
		}
		if !ok {
			return &StockError{ProductID: d.ProductID, Name: d.Name, Err: ErrProductNotFound}
		}
		if have < d.Quantity {
			return &StockError{ProductID: d.ProductID, Name: d.Name, Err: ErrInsufficientStock}
		}
		next[d.ProductID] = have - d.Quantity
	}
	for id, n := range next {
		s.stock[id] = n
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *MemStore) Get(ctx context.Context, id string) (Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, false, nil
	}
	return cloneOrder(o), true, nil
}

func (s *MemStore) List(ctx context.Context, q ListQuery) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		if q.UserID != "" && o.UserID != q.UserID {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if limit := clampLimit(q.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) Transition(ctx context.Context, id string, to Status, at time.Time, check TransitionCheck) (Order, Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, "", ErrNotFound
	}
	if check != nil {
		if err := check(cloneOrder(o)); err != nil {
			return Order{}, "", err
		}
	}
	prev := o.Status
	if !prev.CanTransitionTo(to) {
		return Order{}, "", ErrInvalidTransition
	}

	if to == StatusCancelled {
		need, err := stockDemand(o.Items)
		if err != nil {
			return Order{}, "", err
		}
		for _, d := range need {
			if _, ok := s.stock[d.ProductID]; ok {
				s.stock[d.ProductID] += d.Quantity
			}
		}
	}
	o.Status = to
	o.UpdatedAt = at
	s.orders[id] = o
	return cloneOrder(o), prev, nil
}

func cloneOrder(o Order) Order {
	items := make([]Item, len(o.Items))
	for i, it := range o.Items {
		if it.Variants != nil {
			v := make(map[string]string, len(it.Variants))
			for k, val := range it.Variants {
				v[k] = val
			}
			it.Variants = v
		}
		items[i] = it
	}
	o.Items = items
	return o
}
