package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// SQLSTATE codes the ledger reacts to.
const (
	CodeUniqueViolation      = "23505"
	CodeCheckViolation       = "23514"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeLockNotAvailable     = "55P03"
)

// Classify maps driver errors onto the shared taxonomy. Lock waits that exceed
// lock_timeout, deadlocks and serialization failures all mean "nothing committed, try
// again later" and become shared.ErrLockTimeout. Other errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrLockTimeout) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case CodeLockNotAvailable, CodeDeadlockDetected, CodeSerializationFailure:
		return fmt.Errorf("%w: %s (sqlstate %s): %w", shared.ErrLockTimeout, pgErr.Message, pgErr.Code, err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == CodeUniqueViolation
}
