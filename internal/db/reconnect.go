package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/unklstewy/intercept-sim/pkg/config"
)

// RetryConfig configures exponential backoff for connection attempts and
// retried operations.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns 3 retries starting at one second and doubling
// up to a minute.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	}
}

// delay returns the wait before retry number attempt (1-based).
func (c RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// ReconnectWithRetry connects to the database, backing off between failed
// attempts.
func ReconnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, retry RetryConfig) (*DB, error) {
	var lastErr error
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := retry.delay(attempt)
			log.Printf("Connection failed: %v (retry in %v)", lastErr, wait)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		db, err := Connect(cfg)
		if err == nil {
			if attempt > 0 {
				log.Println("✓ Database reconnected successfully")
			}
			return db, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", retry.MaxRetries+1, lastErr)
}

// EnsureConnection returns db if it answers a ping, otherwise a fresh
// connection.
func EnsureConnection(ctx context.Context, db *DB, cfg config.DatabaseConfig) (*DB, error) {
	if db == nil {
		log.Println("Database connection is nil, attempting to reconnect...")
		return ReconnectWithRetry(ctx, cfg, DefaultRetryConfig())
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		log.Printf("Database connection lost: %v", err)
		db.Close()
		return ReconnectWithRetry(ctx, cfg, DefaultRetryConfig())
	}

	return db, nil
}

// HealthCheck reports whether the database answers a trivial query.
func HealthCheck(ctx context.Context, db *DB) bool {
	if db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		log.Printf("Health check failed: %v", err)
		return false
	}
	return result == 1
}

// connErrorPatterns are substrings of driver and network errors that are
// worth retrying.
var connErrorPatterns = []string{
	"connection refused",
	"broken pipe",
	"no connection",
	"connection reset",
	"eof",
	"timeout",
}

// IsConnectionError reports whether err looks like a lost or refused
// connection rather than a query failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08: connection exception
		return pqErr.Code.Class() == "08"
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range connErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// WithRetry runs operation, retrying with backoff while it fails with a
// connection error. Other errors are returned immediately.
func WithRetry(ctx context.Context, retry RetryConfig, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := retry.delay(attempt)
			log.Printf("Database operation failed (attempt %d/%d): %v (retry in %v)",
				attempt, retry.MaxRetries+1, lastErr, wait)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}

		err := operation()
		if err == nil {
			return nil
		}
		if !IsConnectionError(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", retry.MaxRetries, lastErr)
}
