package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 5 * time.Second
)

const orderColumns = `id, user_id, total_cents, status, shipping_address, payment_method, created_at, updated_at`

// PostgresStore shares the products table with the catalog service; stock
// is decremented in the same transaction that inserts the order.
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

func (s *PostgresStore) Place(ctx context.Context, o Order) error {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}

	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		need, err := stockDemand(o.Items)
		if err != nil {
			return err
		}
		for _, d := range need {
			res, err := tx.ExecContext(ctx, `
				UPDATE products SET stock = stock - $2, updated_at = $3
				WHERE id = $1 AND stock >= $2
			`, d.ProductID, d.Quantity, o.CreatedAt)
			if err != nil {
				return fmt.Errorf("decrement stock %s: %w", d.ProductID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 1 {
				continue
			}

			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, d.ProductID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return &StockError{ProductID: d.ProductID, Name: d.Name, Err: ErrProductNotFound}
			}
			return &StockError{ProductID: d.ProductID, Name: d.Name, Err: ErrInsufficientStock}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, o.ID, o.UserID, o.TotalCents, string(o.Status), string(addr), o.PaymentMethod, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO order_items (order_id, line, product_id, name, price_cents, qty, variants)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, it := range o.Items {
			variants, err := marshalVariants(it.Variants)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, o.ID, i, it.ProductID, it.Name, it.PriceCents, it.Quantity, variants); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		return tx.Commit()
	})
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Order, bool, error) {
	var (
		o     Order
		found bool
	)
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		var err error
		o, err = scanOrder(s.db.QueryRowContext(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		items, err := loadItems(ctx, s.db, []string{o.ID})
		if err != nil {
			return err
		}
		o.Items = items[o.ID]
		return nil
	})
	if err != nil || !found {
		return Order{}, false, err
	}
	return o, true, nil
}

func (s *PostgresStore) List(ctx context.Context, q ListQuery) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.UserID != "" {
		where = append(where, "user_id = "+arg(q.UserID))
	}
	if q.Status != "" {
		where = append(where, "status = "+arg(string(q.Status)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(clampLimit(q.Limit))

	var out []Order
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		var ids []string
		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				return err
			}
			out = append(out, o)
			ids = append(ids, o.ID)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		items, err := loadItems(ctx, s.db, ids)
		if err != nil {
			return err
		}
		for i := range out {
			out[i].Items = items[out[i].ID]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Order{}
	}
	return out, nil
}

func (s *PostgresStore) Transition(ctx context.Context, id string, to Status, at time.Time, check TransitionCheck) (Order, Status, error) {
	var (
		out  Order
		prev Status
	)
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		cur, err := scanOrder(tx.QueryRowContext(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		items, err := loadItems(ctx, tx, []string{id})
		if err != nil {
			return err
		}
		cur.Items = items[id]

		if check != nil {
			if err := check(cur); err != nil {
				return err
			}
		}
		if !cur.Status.CanTransitionTo(to) {
			return ErrInvalidTransition
		}

		if to == StatusCancelled {
			need, err := stockDemand(cur.Items)
			if err != nil {
				return err
			}
			for _, d := range need {
				if _, err := tx.ExecContext(ctx, `
					UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1
				`, d.ProductID, d.Quantity, at); err != nil {
					return fmt.Errorf("restore stock %s: %w", d.ProductID, err)
				}
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, id, string(to), at); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		prev = cur.Status
		cur.Status = to
		cur.UpdatedAt = at
		out = cur
		return nil
	})
	if err != nil {
		return Order{}, "", err
	}
	return out, prev, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanOrder(row rowScanner) (Order, error) {
	var (
		o      Order
		status string
		addr   []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.TotalCents, &status, &addr, &o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return Order{}, fmt.Errorf("decode shipping address: %w", err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func loadItems(ctx context.Context, q queryer, orderIDs []string) (map[string][]Item, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, name, price_cents, qty, variants
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]Item, len(orderIDs))
	for rows.Next() {
		var (
			orderID  string
			it       Item
			variants []byte
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.PriceCents, &it.Quantity, &variants); err != nil {
			return nil, err
		}
		if len(variants) > 0 {
			if err := json.Unmarshal(variants, &it.Variants); err != nil {
				return nil, fmt.Errorf("decode item variants: %w", err)
			}
			if len(it.Variants) == 0 {
				it.Variants = nil
			}
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

func marshalVariants(v map[string]string) (string, error) {
	if len(v) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal variants: %w", err)
	}
	return string(b), nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

var _ Store = (*PostgresStore)(nil)
