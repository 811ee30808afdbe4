// Package postgres provides a PostgreSQL-backed implementation of
// [store.Store].
//
// All queries go through the small [DB] interface so that both a
// [pgxpool.Pool] and a pgxmock pool can back a [Store].
//
// Usage:
//
//	s, err := postgres.Open(ctx, dsn, 4)
//	if err != nil { … }
//	defer s.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/cockpit/pkg/store"
)

// DB is the database interface used by [Store]. *pgxpool.Pool satisfies it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

var _ store.Store = (*Store)(nil)

// Store implements [store.Store] on PostgreSQL. Safe for concurrent use.
type Store struct {
	db    DB
	close func()
	now   func() time.Time
	newID func() string
}

// Option configures a [Store].
type Option func(*Store)

// WithClock overrides the time source used for created_at columns.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the generator for text primary keys.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New wraps an existing connection. The caller owns db and is responsible for
// running [Store.Migrate].
func New(db DB, opts ...Option) *Store {
	s := &Store{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open creates a connection pool for dsn, verifies connectivity and applies
// [Schema]. maxConns <= 0 keeps the pgxpool default.
func Open(ctx context.Context, dsn string, maxConns int, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	s := New(pool, opts...)
	s.close = pool.Close
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool opened by [Open]. It is a no-op for stores built
// with [New].
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// notFound maps pgx.ErrNoRows to [store.ErrNotFound].
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
