package storectl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	api_url    TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	token      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);`

type Session struct {
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Sessions keeps one access token per gateway in the local cart database.
type Sessions struct {
	db  *sql.DB
	now func() time.Time
}

func NewSessions(ctx context.Context, db *sql.DB) (*Sessions, error) {
	if _, err := db.ExecContext(ctx, sessionSchema); err != nil {
		return nil, fmt.Errorf("init session schema: %w", err)
	}
	return &Sessions{db: db, now: time.Now}, nil
}

func (s *Sessions) Save(ctx context.Context, apiURL string, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (api_url, email, token, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (api_url) DO UPDATE SET
			email = excluded.email, token = excluded.token, expires_at = excluded.expires_at`,
		apiURL, sess.Email, sess.Token, sess.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Current returns the stored token for apiURL, or ErrNotLoggedIn when there
// is none or it has expired.
func (s *Sessions) Current(ctx context.Context, apiURL string) (Session, error) {
	var (
		sess Session
		exp  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT email, token, expires_at FROM sessions WHERE api_url = ?`, apiURL).
		Scan(&sess.Email, &sess.Token, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotLoggedIn
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	sess.ExpiresAt = time.Unix(exp, 0)
	if !s.now().Before(sess.ExpiresAt) {
		return Session{}, ErrNotLoggedIn
	}
	return sess, nil
}

func (s *Sessions) Delete(ctx context.Context, apiURL string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE api_url = ?`, apiURL); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
