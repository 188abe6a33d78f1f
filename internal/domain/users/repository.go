package users

import (
	"context"
	"time"

	"github.com/Togather-Foundation/orbit/internal/domain/apperr"
)

// Error types for user domain operations
var (
	ErrUserNotFound       = apperr.New(apperr.NotFound, "User not found")
	ErrUsernameTaken      = apperr.New(apperr.Conflict, "Username already exists")
	ErrInvalidCredentials = apperr.New(apperr.Auth, "Invalid username or password")
)

// User is an account. PasswordHash is a bcrypt hash and never leaves the server.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository persists users. Implementations return ErrUserNotFound for missing rows and
// ErrUsernameTaken when the unique username constraint rejects an insert.
type Repository interface {
	Create(ctx context.Context, username, passwordHash string, createdAt time.Time) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error
}
