package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
	pgUniqueCode = "23505"
)

const productColumns = `id, name, description, price_cents, category, image_url, stock, featured, variants, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) List(ctx context.Context, q ListQuery) ([]Product, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Category != "" {
		where = append(where, "category = "+arg(q.Category))
	}
	if q.FeaturedOnly {
		where = append(where, "featured")
	}
	if q.After != nil {
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", arg(q.After.CreatedAt), arg(q.After.ID)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}

	var out []Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Product, 0, 16)
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Product, bool, error) {
	var p Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		var err error
		p, err = scanProduct(s.db.QueryRowContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, fmt.Errorf("get product: %w", err)
	}
	return p, true, nil
}

func (s *PostgresStore) Create(ctx context.Context, p Product) error {
	variants, err := marshalVariants(p.Variants)
	if err != nil {
		return err
	}

	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, p.ID, p.Name, p.Description, p.PriceCents, p.Category, p.ImageURL,
			p.Stock, p.Featured, variants, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		return nil
	})
}

// Update applies the patch under a row lock, so concurrent stock changes made
// by order placement are never overwritten by fields the patch leaves nil.
func (s *PostgresStore) Update(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	var out Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		cur, err := scanProduct(tx.QueryRowContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		next := patch.Apply(cur)
		if err := next.Validate(); err != nil {
			return err
		}
		next.UpdatedAt = time.Now().UTC()

		variants, err := marshalVariants(next.Variants)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE products
			SET name = $2, description = $3, price_cents = $4, category = $5, image_url = $6,
			    stock = $7, featured = $8, variants = $9, updated_at = $10
			WHERE id = $1
		`, id, next.Name, next.Description, next.PriceCents, next.Category, next.ImageURL,
			next.Stock, next.Featured, variants, next.UpdatedAt); err != nil {
			return fmt.Errorf("update product: %w", err)
		}

		out = next
		return tx.Commit()
	})
	if err != nil {
		return Product{}, err
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (Product, error) {
	var p Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		var err error
		p, err = scanProduct(s.db.QueryRowContext(ctx,
			`DELETE FROM products WHERE id = $1 RETURNING `+productColumns, id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("delete product: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, name, slug, image_url
			FROM categories
			ORDER BY name ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Category, 0, 8)
		for rows.Next() {
			var c Category
			if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.ImageURL); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateCategory(ctx context.Context, c Category) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO categories (id, name, slug, image_url)
			VALUES ($1, $2, $3, $4)
		`, c.ID, c.Name, c.Slug, c.ImageURL)
		if isUniqueViolation(err) {
			return ErrSlugExists
		}
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p        Product
		variants []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Category, &p.ImageURL,
		&p.Stock, &p.Featured, &variants, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &p.Variants); err != nil {
			return Product{}, fmt.Errorf("decode variants of %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func marshalVariants(vs []Variant) (string, error) {
	if vs == nil {
		vs = []Variant{}
	}
	b, err := json.Marshal(vs)
	if err != nil {
		return "", fmt.Errorf("encode variants: %w", err)
	}
	return string(b), nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueCode
}

var _ Store = (*PostgresStore)(nil)
