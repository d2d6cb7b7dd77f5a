package order

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

var (
	ErrNotFound          = errors.New("order not found")
	ErrProductNotFound   = errors.New("invalid product_id")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidAddress    = errors.New("invalid shipping address")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrBadQuantity       = errors.New("invalid quantity")
)

// maxProductDemand bounds the summed quantity of one product in an order; it
// matches the INTEGER stock column.
const maxProductDemand = math.MaxInt32

// StockError reports which product failed the stock precondition.
type StockError struct {
	ProductID string
	Name      string
	Err       error
}

func (e *StockError) Error() string { return fmt.Sprintf("%v: %s", e.Err, e.ProductID) }

func (e *StockError) Unwrap() error { return e.Err }

type Address struct {
	FullName   string `json:"full_name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

func (a Address) Normalize() Address {
	a.FullName = strings.TrimSpace(a.FullName)
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
	a.Phone = strings.TrimSpace(a.Phone)
	return a
}

// Missing lists the required fields that are empty.
func (a Address) Missing() []string {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"full_name", a.FullName},
		{"street", a.Street},
		{"city", a.City},
		{"postal_code", a.PostalCode},
	} {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

type Item struct {
	ProductID  string            `json:"product_id"`
	Name       string            `json:"name"`
	PriceCents int64             `json:"price_cents"`
	Quantity   int               `json:"quantity"`
	Variants   map[string]string `json:"variants,omitempty"`

	// catalogStock is the stock the catalog reported while pricing. The
	// memory store adopts it for products it has not seen yet.
	catalogStock *int
}

type Order struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Items           []Item    `json:"items"`
	TotalCents      int64     `json:"total_cents"`
	Status          Status    `json:"status"`
	ShippingAddress Address   `json:"shipping_address"`
	PaymentMethod   string    `json:"payment_method"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// demand is the stock requirement of one product across an order's lines.
type demand struct {
	ProductID    string
	Name         string
	Quantity     int
	catalogStock *int
}

// stockDemand sums quantities per product, ordered by product id so that
// concurrent placements lock rows in the same order.
func stockDemand(items []Item) ([]demand, error) {
	idx := map[string]int{}
	var out []demand
	for _, it := range items {
		if it.Quantity <= 0 || it.Quantity > maxProductDemand {
			return nil, fmt.Errorf("%w: %s", ErrBadQuantity, it.ProductID)
		}
		if i, ok := idx[it.ProductID]; ok {
			if out[i].Quantity > maxProductDemand-it.Quantity {
				return nil, fmt.Errorf("%w: %s", ErrBadQuantity, it.ProductID)
			}
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, demand{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity, catalogStock: it.catalogStock})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
