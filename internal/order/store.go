package order

import (
	"context"
	"time"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type ListQuery struct {
	UserID string
	Status Status
	Limit  int
}

// TransitionCheck runs against the current order inside the store's
// critical section, before the status changes.
type TransitionCheck func(Order) error

// Store persists orders together with the product stock they consume.
// Place and Transition are atomic: either every stock change and the order
// write happen, or none do.
type Store interface {
	Ping(ctx context.Context) error
	Place(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, bool, error)
	List(ctx context.Context, q ListQuery) ([]Order, error)
	Transition(ctx context.Context, id string, to Status, at time.Time, check TransitionCheck) (Order, Status, error)
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	}
	return n
}
