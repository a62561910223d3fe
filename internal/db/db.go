// Package db opens the Postgres pool and runs ledger writes in serializable
// transactions.
package db

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"time"

	"pvetax/internal/metrics"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	maxAttempts = 5
	backoffBase = 20 * time.Millisecond
	maxJitter   = 10 * time.Millisecond

	codeSerialization = "40001"
	codeDeadlock      = "40P01"
	codeUnique        = "23505"
)

var ErrRetryLimit = errors.New("transaction retry limit exceeded")

type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

type SQLXTxRunner struct {
	db *sqlx.DB
}

func NewTxRunner(db *sqlx.DB) SQLXTxRunner {
	return SQLXTxRunner{db: db}
}

func (r SQLXTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return WithTx(ctx, r.db, fn)
}

// Connect opens the pool. maxOpen below one falls back to 20; idle
// connections are capped at a quarter of it.
func Connect(databaseURL string, maxOpen int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if maxOpen < 1 {
		maxOpen = 20
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(max(1, maxOpen/4))
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// WithTx runs fn in a serializable transaction. Serialization failures and
// deadlocks are retried with quadratic backoff; when the last attempt also
// conflicts its error is returned as is.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		err = fn(tx)
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == maxAttempts {
			return err
		}
		metrics.TxRetries.WithLabelValues(string(pgCode(err))).Inc()
		if err := wait(ctx, attempt); err != nil {
			return err
		}
	}
	return ErrRetryLimit
}

func retryable(err error) bool {
	code := pgCode(err)
	return code == codeSerialization || code == codeDeadlock
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == codeUnique
}

func pgCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return ""
	}
	return pqErr.Code
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * backoffBase
}

func wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(backoff(attempt) + time.Duration(rand.Int63n(int64(maxJitter))))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
