// Package events publishes order lifecycle events after the owning
// transaction has committed. Delivery is best effort.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Type string

const (
	OrderPlaced        Type = "order.placed"
	OrderStatusChanged Type = "order.status_changed"
)

const TopicOrderEvents = "storefront.order.events"

type OrderEvent struct {
	Type       Type      `json:"event_type"`
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	PrevStatus string    `json:"prev_status,omitempty"`
	TotalCents int64     `json:"total_cents"`
	Items      int       `json:"items"`
	At         time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e OrderEvent) error
	Close() error
}

// LogPublisher writes events to the service log. Used when no brokers are configured.
type LogPublisher struct {
	Log *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, e OrderEvent) error {
	if p.Log == nil {
		return nil
	}
	p.Log.Info("order event",
		zap.String("event_type", string(e.Type)),
		zap.String("order_id", e.OrderID),
		zap.String("user_id", e.UserID),
		zap.String("status", e.Status),
		zap.String("prev_status", e.PrevStatus),
		zap.Int64("total_cents", e.TotalCents),
	)
	return nil
}

func (LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []OrderEvent
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []OrderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OrderEvent(nil), r.events...)
}
