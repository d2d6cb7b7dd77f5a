package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS carts (
	owner      TEXT PRIMARY KEY,
	snapshot   BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore keeps snapshots in a local sqlite file. The pool is limited
// to one connection so every Update is a single-writer transaction.
type SQLiteStore struct {
	db  *sql.DB
	Log *zap.Logger
	now func() time.Time
}

func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, Log: log, now: time.Now}, nil
}

// DB exposes the handle so callers can keep their own tables in the same file.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Load(ctx context.Context, owner string) ([]byte, error) {
	return loadSnapshot(ctx, s.db, owner)
}

func (s *SQLiteStore) Save(ctx context.Context, owner string, snapshot []byte) error {
	return s.save(ctx, s.db, owner, snapshot)
}

func (s *SQLiteStore) Delete(ctx context.Context, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM carts WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, owner string, fn func(*Cart) error) (*Cart, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	raw, err := loadSnapshot(ctx, tx, owner)
	if err != nil {
		return nil, err
	}
	c, snap, err := mutate(s.Log, owner, raw, fn)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, tx, owner, snap); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func loadSnapshot(ctx context.Context, q querier, owner string) ([]byte, error) {
	var raw []byte
	err := q.QueryRowContext(ctx, `SELECT snapshot FROM carts WHERE owner = ?`, owner).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return raw, nil
}

func (s *SQLiteStore) save(ctx context.Context, q querier, owner string, snapshot []byte) error {
	if len(snapshot) == 0 {
		_, err := q.ExecContext(ctx, `DELETE FROM carts WHERE owner = ?`, owner)
		if err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
		return nil
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO carts (owner, snapshot, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		owner, snapshot, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}
