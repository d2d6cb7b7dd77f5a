package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"Storefront/pkg/kit"
)

var (
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

type User struct {
	ID          string
	Email       string
	DisplayName string
	Hash        []byte
	Role        string
	CreatedAt   time.Time
}

func (u User) IsAdmin() bool { return u.Role == kit.RoleAdmin }

type UserStore interface {
	Ping(ctx context.Context) error
	Create(ctx context.Context, u User) error
	ByEmail(ctx context.Context, email string) (User, error)
	ByID(ctx context.Context, id string) (User, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
