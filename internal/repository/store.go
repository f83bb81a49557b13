package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTxTimeout = 5 * time.Second

// Store provides access to generated queries and transaction scoping.
type Store struct {
	db        *pgxpool.Pool
	queries   *Queries
	txTimeout time.Duration
}

type StoreOption func(*Store)

// WithTxTimeout bounds how long a single RunInTx unit may hold its locks.
func WithTxTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// NewStore creates a store wrapper around a pgx connection pool.
func NewStore(db *pgxpool.Pool, opts ...StoreOption) *Store {
	s := &Store{
		db:        db,
		queries:   New(db),
		txTimeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Queries returns the non-transactional query set.
func (s *Store) Queries() Querier {
	return s.queries
}

// Pool exposes the underlying pool for components that need raw access.
func (s *Store) Pool() *pgxpool.Pool {
	return s.db
}

// RunInTx executes fn within a database transaction.
//
// The unit is detached from the caller's cancellation and bounded by the
// store's transaction timeout instead. Statements issued through the querier
// handed to fn run under that unit context whatever context they are called
// with, so lock waits are bounded too.
func (s *Store) RunInTx(ctx context.Context, fn func(q Querier) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(New(unitTx{tx: tx, ctx: ctx})); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// unitTx pins every statement of a unit of work to the unit's context.
type unitTx struct {
	tx  pgx.Tx
	ctx context.Context
}

func (u unitTx) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return u.tx.Exec(u.ctx, sql, args...)
}

func (u unitTx) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return u.tx.Query(u.ctx, sql, args...)
}

func (u unitTx) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	return u.tx.QueryRow(u.ctx, sql, args...)
}
