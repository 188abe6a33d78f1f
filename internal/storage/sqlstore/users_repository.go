package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/orbit/internal/domain/users"
	"github.com/Togather-Foundation/orbit/internal/storage"
	"github.com/jmoiron/sqlx"
)

// UserRepository implements users.Repository.
type UserRepository struct {
	db      *sqlx.DB
	dialect storage.Dialect
}

type userRow struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

var _ users.Repository = (*UserRepository)(nil)

func (r *UserRepository) Create(ctx context.Context, username, passwordHash string, createdAt time.Time) (users.User, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`
INSERT INTO users (username, password_hash, created_at)
VALUES (?, ?, ?)
RETURNING id
`), username, passwordHash, createdAt.UTC()).Scan(&id)
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return users.User{}, users.ErrUsernameTaken
		}
		return users.User{}, fmt.Errorf("insert user: %w", err)
	}
	return users.User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: createdAt.UTC()}, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (users.User, error) {
	return r.getOne(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (users.User, error) {
	return r.getOne(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (users.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, r.dialect.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return users.User{}, users.ErrUserNotFound
		}
		return users.User{}, fmt.Errorf("get user: %w", err)
	}
	return users.User(row), nil
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`UPDATE users SET password_hash = ? WHERE id = ?`), passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n == 0 {
		return users.ErrUserNotFound
	}
	return nil
}
