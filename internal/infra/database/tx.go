package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	pqUniqueViolation      = pq.ErrorCode("23505")
	pqSerializationFailure = pq.ErrorCode("40001")
	pqDeadlockDetected     = pq.ErrorCode("40P01")
)

// TxRunner runs a function inside a transaction and retries it on transient conflicts.
type TxRunner struct {
	db          *sql.DB
	maxAttempts int
	backoff     time.Duration
	logger      *logrus.Entry
}

func NewTxRunner(db *sql.DB, maxAttempts int, logger *logrus.Entry) *TxRunner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &TxRunner{db: db, maxAttempts: maxAttempts, backoff: 20 * time.Millisecond, logger: logger}
}

var serializable = &sql.TxOptions{Isolation: sql.LevelSerializable}

// Run executes fn in a transaction with opts. fn may be invoked more than once, so it
// must not have side effects outside tx.
func (r *TxRunner) Run(ctx context.Context, opts *sql.TxOptions, name string, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = r.runOnce(ctx, opts, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		r.logger.WithFields(logrus.Fields{
			"tx":      name,
			"attempt": attempt,
		}).WithError(err).Warn("Transaction conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	return fmt.Errorf("%s: transaction failed after %d attempts: %w", name, r.maxAttempts, err)
}

func (r *TxRunner) runOnce(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	txn, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

func pqErrorCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isRetryable(err error) bool {
	code := pqErrorCode(err)
	return code == pqSerializationFailure || code == pqDeadlockDetected
}

// isUniqueViolation reports whether err violates the named unique constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqUniqueViolation && pqErr.Constraint == constraint
}
