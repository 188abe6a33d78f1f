// Package storage holds the pieces of the persistence layer that differ between SQL engines.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// Dialect isolates engine-specific SQL from the repositories. One is chosen at startup from the
// database URL and passed down; repositories write queries with `?` placeholders and ask the
// dialect for the few fragments that differ.
type Dialect interface {
	// Name is "sqlite" or "postgres".
	Name() string
	// DriverName is the database/sql driver registered for this engine.
	DriverName() string
	// Rebind rewrites `?` placeholders into the engine's native form.
	Rebind(query string) string
	// ILike is a case-insensitive LIKE predicate matching expr against one placeholder. The
	// pattern escapes wildcards with a backslash.
	ILike(expr string) string
	// StringAgg aggregates expr into one string separated by sep (a SQL literal).
	StringAgg(expr, sep string) string
	// ForUpdate is the row-locking suffix for SELECT inside a transaction.
	ForUpdate() string
	// IsUniqueViolation reports whether err is a unique or primary key violation.
	IsUniqueViolation(err error) bool
	// MaxOpenConns caps the pool; zero means "use configuration".
	MaxOpenConns() int
}

// Target is a parsed database URL.
type Target struct {
	Dialect Dialect
	// DSN is what sql.Open receives.
	DSN string
	// MigrationURL is what golang-migrate receives.
	MigrationURL string
}

// Parse picks the dialect for a database URL.
//
// Accepted forms: sqlite://path, sqlite3://path, file:path, a bare path ending in .db, and
// postgres:// or postgresql:// URLs.
func Parse(databaseURL string) (Target, error) {
	raw := strings.TrimSpace(databaseURL)
	switch {
	case raw == "":
		return Target{}, errors.New("database url is empty")
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		rest := raw[strings.Index(raw, "://")+3:]
		return Target{
			Dialect:      Postgres{},
			DSN:          raw,
			MigrationURL: "pgx5://" + rest,
		}, nil
	case strings.HasPrefix(raw, "sqlite://"), strings.HasPrefix(raw, "sqlite3://"):
		path := raw[strings.Index(raw, "://")+3:]
		return sqliteTarget(path)
	case strings.HasPrefix(raw, "file:"):
		return sqliteTarget(strings.TrimPrefix(raw, "file:"))
	case strings.HasSuffix(raw, ".db"), strings.HasSuffix(raw, ".sqlite"), strings.HasSuffix(raw, ".sqlite3"):
		return sqliteTarget(raw)
	}
	return Target{}, fmt.Errorf("unsupported database url %q", raw)
}

func sqliteTarget(path string) (Target, error) {
	path, query, _ := strings.Cut(path, "?")
	if path == "" {
		return Target{}, errors.New("sqlite database path is empty")
	}
	params, err := url.ParseQuery(query)
	if err != nil {
		return Target{}, fmt.Errorf("sqlite options: %w", err)
	}
	params.Set("_foreign_keys", "on")
	if params.Get("_busy_timeout") == "" {
		params.Set("_busy_timeout", "5000")
	}
	return Target{
		Dialect:      SQLite{},
		DSN:          "file:" + path + "?" + params.Encode(),
		MigrationURL: "sqlite3://" + path,
	}, nil
}

// sqliteDriver is go-sqlite3 with the casefold(text) function registered on every connection.
// SQLite's own LIKE and lower() only fold ASCII letters.
const sqliteDriver = "sqlite3_orbit"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("casefold", strings.ToLower, true)
		},
	})
	sqlx.BindDriver(sqliteDriver, sqlx.QUESTION)
}

// SQLite is the embedded dialect backed by mattn/go-sqlite3.
type SQLite struct{}

func (SQLite) Name() string           { return "sqlite" }
func (SQLite) DriverName() string     { return sqliteDriver }
func (SQLite) Rebind(q string) string { return sqlx.Rebind(sqlx.QUESTION, q) }
func (SQLite) ILike(expr string) string {
	return "casefold(" + expr + `) LIKE casefold(?) ESCAPE '\'`
}
func (SQLite) StringAgg(expr, sep string) string {
	return "group_concat(" + expr + ", " + sep + ")"
}
func (SQLite) ForUpdate() string { return "" }

// MaxOpenConns is 1 so write transactions are serialized by the pool rather than failing with
// SQLITE_BUSY.
func (SQLite) MaxOpenConns() int { return 1 }

func (SQLite) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// Postgres is the client-server dialect backed by pgx.
type Postgres struct{}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "pgx" }

// Rebind numbers placeholders $1..$n. Queries never carry a literal question mark.
func (Postgres) Rebind(q string) string { return sqlx.Rebind(sqlx.DOLLAR, q) }

func (Postgres) ILike(expr string) string { return expr + ` ILIKE ? ESCAPE '\'` }
func (Postgres) StringAgg(expr, sep string) string {
	return "string_agg(" + expr + ", " + sep + ")"
}
func (Postgres) ForUpdate() string { return " FOR UPDATE" }
func (Postgres) MaxOpenConns() int { return 0 }

func (Postgres) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
