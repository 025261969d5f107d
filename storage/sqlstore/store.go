// Package sqlstore persists registrations, states and users in SQLite or PostgreSQL
// through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	pkgerrors "github.com/pkg/errors"
	_ "modernc.org/sqlite"

	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/sealer"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Store owns the connection pool shared by the repositories.
type Store struct {
	db      *sql.DB
	dialect Dialect
	sealer  *sealer.Sealer
}

type Option func(*Store)

// WithSealer encrypts client secrets and user tokens at rest.
func WithSealer(s *sealer.Sealer) Option {
	return func(st *Store) {
		st.sealer = s
	}
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(ctx context.Context, path string, options ...Option) (*Store, error) {
	if path == "" {
		return nil, pkgerrors.New("[sqlstore.OpenSQLite] path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, pkgerrors.Wrap(err, "[sqlstore.OpenSQLite] create data folder")
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[sqlstore.OpenSQLite] sql.Open")
	}
	// A single writer connection serialises writes instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return newStore(ctx, db, DialectSQLite, options)
}

// OpenPostgres connects through the pgx database/sql driver.
func OpenPostgres(ctx context.Context, databaseURL string, options ...Option) (*Store, error) {
	if databaseURL == "" {
		return nil, pkgerrors.New("[sqlstore.OpenPostgres] database url is required")
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[sqlstore.OpenPostgres] sql.Open")
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return newStore(ctx, db, DialectPostgres, options)
}

func newStore(ctx context.Context, db *sql.DB, dialect Dialect, options []Option) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrapf(err, "[sqlstore] ping %s", dialect)
	}
	s := &Store{db: db, dialect: dialect}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Clients() *ClientRepo {
	return &ClientRepo{store: s}
}

func (s *Store) States() *StateRepo {
	return &StateRepo{store: s}
}

func (s *Store) Users() *UserRepo {
	return &UserRepo{store: s}
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// rebind turns $N placeholders into SQLite's ?N form.
func (s *Store) rebind(query string) string {
	if s.dialect == DialectSQLite {
		return placeholder.ReplaceAllString(query, "?$1")
	}
	return query
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// classify maps driver errors onto the storage sentinels.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", apperrors.ErrDuplicate, what)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", apperrors.ErrDuplicate, what)
	}
	return pkgerrors.Wrap(err, what)
}

func notFoundIfNone(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrap(err, what)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, what)
	}
	return nil
}

// Exec runs a statement written with $N placeholders. Used by maintenance commands and tests.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.exec(ctx, query, args...)
}

// QueryRow runs a single-row query written with $N placeholders.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.queryRow(ctx, query, args...)
}
