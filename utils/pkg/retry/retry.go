package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// OnRetry is called before every attempt after the first with the error of the previous one.
	OnRetry func(attempt int, err error)
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// Do runs fn until it succeeds, fails with an error IsRetryable rejects, or MaxAttempts is
// reached. Attempts are separated by an exponential backoff with jitter.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	err := fn()
	for attempt := 2; err != nil && attempt <= attempts; attempt++ {
		if !IsRetryable(err) {
			return err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if werr := wait(ctx, cfg.backoff(attempt-1)); werr != nil {
			return werr
		}
		err = fn()
	}
	if err != nil && attempts > 1 && IsRetryable(err) {
		return fmt.Errorf("failed after %d attempts: %w", attempts, err)
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryableExceptionCodes are ClickHouse server errors caused by load or the network rather than
// by the query itself.
var retryableExceptionCodes = map[int32]string{
	159: "TIMEOUT_EXCEEDED",
	202: "TOO_MANY_SIMULTANEOUS_QUERIES",
	209: "SOCKET_TIMEOUT",
	210: "NETWORK_ERROR",
	252: "TOO_MANY_PARTS",
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var exception *clickhouse.Exception
	if errors.As(err, &exception) {
		_, ok := retryableExceptionCodes[exception.Code]
		return ok
	}

	if errors.Is(err, clickhouse.ErrAcquireConnTimeout) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection closed",
		"connection refused",
		"connection reset",
		"eof",
		"broken pipe",
		"timeout",
		"temporary failure",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// backoff returns base * 2^retry, capped at MaxBackoff, scaled by a random factor in [0.5, 1).
func (cfg Config) backoff(retry int) time.Duration {
	d := min(cfg.BaseBackoff*time.Duration(1<<uint(retry)), cfg.MaxBackoff)
	return time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
}
