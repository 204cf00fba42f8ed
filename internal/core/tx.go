package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres SQLSTATEs after which the whole transaction may be replayed.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
)

// RetryPolicy bounds how often a transaction is replayed after lock contention.
// The wait for any single lock is bounded separately by the pool's lock_timeout.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 50 * time.Millisecond}
}

// TxRunner opens guarded transactions. Every mutating core operation goes
// through RunInTx so that a failure at any step rolls back every earlier step.
type TxRunner struct {
	pool   *pgxpool.Pool
	policy RetryPolicy
	log    zerolog.Logger
}

func NewTxRunner(pool *pgxpool.Pool, policy RetryPolicy, log zerolog.Logger) *TxRunner {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &TxRunner{pool: pool, policy: policy, log: log}
}

func (r *TxRunner) Pool() *pgxpool.Pool {
	return r.pool
}

// RunInTx runs fn in a read-write transaction and commits when fn returns nil.
// Lock timeouts, deadlocks and serialization failures replay fn from scratch;
// once the budget is spent the result is a *ConcurrencyError.
func (r *TxRunner) RunInTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	return r.run(ctx, op, pgx.TxOptions{}, fn)
}

// RunInSnapshot runs fn in a read-only REPEATABLE READ transaction, so every
// query inside fn observes the same committed state.
func (r *TxRunner) RunInSnapshot(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	return r.run(ctx, op, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (r *TxRunner) run(ctx context.Context, op string, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err := r.attempt(ctx, opts, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == r.policy.MaxAttempts {
			break
		}
		r.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("transaction contention, retrying")

		wait := r.policy.Backoff * time.Duration(attempt)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(wait):
		}
	}
	return &ConcurrencyError{Op: op, Attempts: r.policy.MaxAttempts, Err: lastErr}
}

func (r *TxRunner) attempt(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsRetryable reports whether err carries a Postgres error that a fresh
// attempt of the same transaction can succeed past.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return true
	}
	return false
}
