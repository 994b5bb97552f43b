package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tgcord/internal/constants"
	"tgcord/internal/retry"
)

var dbRetryConfig = retry.BackoffConfig{
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     time.Second,
	Multiplier:   2.0,
	MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	Jitter:       true,
}

// retryableDBOperationNoReturn runs a write that may hit SQLite lock
// contention between the relay, the live event handler and the reconciler.
func retryableDBOperationNoReturn(ctx context.Context, operation func() error, operationName string) error {
	err := retry.NewBackoff(dbRetryConfig).RetryWithPredicate(ctx, operation, isRetryableDBError)
	if err == nil {
		return nil
	}
	if !isRetryableDBError(err) {
		return fmt.Errorf("%s failed (non-retryable): %w", operationName, err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operationName, dbRetryConfig.MaxAttempts, err)
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "disk I/O error")
}
