package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestClassifyLockFailures(t *testing.T) {
	for _, code := range []string{CodeLockNotAvailable, CodeDeadlockDetected, CodeSerializationFailure} {
		err := fmt.Errorf("lock product: %w", &pgconn.PgError{Code: code, Message: "canceling statement"})
		classified := Classify(err)
		require.ErrorIs(t, classified, shared.ErrLockTimeout, code)
		require.True(t, shared.IsRetryable(classified))

		var pgErr *pgconn.PgError
		require.True(t, errors.As(classified, &pgErr))
		require.Equal(t, code, pgErr.Code)
	}
}

func TestClassifyPassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("boom")
	require.Same(t, plain, Classify(plain))

	unique := &pgconn.PgError{Code: CodeUniqueViolation}
	require.False(t, shared.IsRetryable(Classify(unique)))
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", unique)))
	require.NoError(t, Classify(nil))
}

func TestLockTimeoutSetting(t *testing.T) {
	require.Equal(t, "3000ms", lockTimeoutSetting(3*time.Second))
	require.Equal(t, "1ms", lockTimeoutSetting(time.Microsecond))
}
