// Package sqlstore implements the user and event repositories on database/sql for both the
// embedded SQLite engine and PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Togather-Foundation/orbit/internal/storage"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// PoolConfig tunes database/sql. Zero values keep the driver defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store owns the connection pool and the dialect chosen for it. It is created once at startup
// and handed to every component that needs persistence.
type Store struct {
	db      *sqlx.DB
	dialect storage.Dialect
	target  storage.Target
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string, pool PoolConfig) (*Store, error) {
	target, err := storage.Parse(databaseURL)
	if err != nil {
		return nil, err
	}

	if target.Dialect.Name() == "sqlite" {
		if err := ensureSQLiteDir(target.MigrationURL); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(target.Dialect.DriverName(), target.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target.Dialect.Name(), err)
	}

	maxOpen := pool.MaxOpenConns
	if n := target.Dialect.MaxOpenConns(); n > 0 {
		maxOpen = n
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", target.Dialect.Name(), err)
	}

	return &Store{db: db, dialect: target.Dialect, target: target}, nil
}

func ensureSQLiteDir(migrationURL string) error {
	path := strings.TrimPrefix(migrationURL, "sqlite3://")
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite directory: %w", err)
	}
	return nil
}

func (s *Store) DB() *sql.DB              { return s.db.DB }
func (s *Store) Dialect() storage.Dialect { return s.dialect }
func (s *Store) Target() storage.Target   { return s.target }
func (s *Store) Close() error             { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users returns the user repository bound to the pool.
func (s *Store) Users() *UserRepository {
	return &UserRepository{db: s.db, dialect: s.dialect}
}

// Events returns the event repository bound to the pool.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db, q: s.db, dialect: s.dialect}
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
