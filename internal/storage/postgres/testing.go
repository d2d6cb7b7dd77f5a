package postgres

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"
)

// OpenForTest connects to STOREFRONT_TEST_DSN, migrates it and truncates all
// data tables. The test is skipped when no database is configured.
func OpenForTest(t testing.TB) *sql.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("STOREFRONT_TEST_DSN"))
	if dsn == "" {
		t.Skip("STOREFRONT_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := MigrateUp(ctx, db, 0); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE order_items, orders, products, categories, users`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}
