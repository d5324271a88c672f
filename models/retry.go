package models

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// retryBackoffBase is the delay before the first transaction retry; it
// doubles on each subsequent retry.
const retryBackoffBase = 50 * time.Millisecond

// A RetryError reports that a unit of work kept hitting serialization
// conflicts until its attempts were exhausted. Callers can treat it as a
// transient failure, distinct from a validation error.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("transaction failed after %d attempts: %s", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// WithRetry runs fn inside a serializable transaction, retrying it when the
// store aborts the transaction with a serialization conflict. Each attempt
// starts from a fresh transaction; fn must re-read any state it needs from
// tx rather than caching it across attempts, so an aborted attempt leaves
// nothing stale behind. Non-conflict errors propagate immediately without
// retry; exhausting attempts returns a *RetryError wrapping the last
// conflict.
func WithRetry(db *gorm.DB, attempts int, fn func(tx *gorm.DB) error) error {
	var lastErr error
	delay := retryBackoffBase
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		err := db.Transaction(fn, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err == nil {
			return nil
		}
		if !IsConflict(err) {
			return err
		}
		lastErr = err
	}
	return &RetryError{Attempts: attempts, Err: lastErr}
}

// IsConflict reports whether err is a serialization-conflict class error:
// the kind of abort a serializable transaction hits under contention, which
// is safe to retry. Matching is on the driver error text because gorm does
// not model this error class across dialects.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	for _, needle := range []string{
		"SQLSTATE 40001",           // postgres/mysql serialization failure
		"Error 1213",               // mysql deadlock found when trying to get lock
		"Deadlock found",           // mysql, older driver phrasing
		"database is locked",       // sqlite SQLITE_BUSY
		"database table is locked", // sqlite SQLITE_LOCKED
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
