package catalog

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("product not found")
	ErrSlugExists = errors.New("category slug already exists")
)

type ListQuery struct {
	Category     string
	FeaturedOnly bool
	Limit        int
	After        *Cursor
}

// Store lists products newest first (created_at desc, id desc).
type Store interface {
	Ping(ctx context.Context) error

	List(ctx context.Context, q ListQuery) ([]Product, error)
	Get(ctx context.Context, id string) (Product, bool, error)
	Create(ctx context.Context, p Product) error
	Update(ctx context.Context, id string, patch ProductPatch) (Product, error)
	Delete(ctx context.Context, id string) (Product, error)

	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) error
}
