package startup

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
)

// RetryConfig configures the exponential backoff retry behavior.
type RetryConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultRetryConfig returns the backoff used while waiting for the network at startup.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 5 * time.Second,
		MaxDelay:     5 * time.Minute,
		MaxAttempts:  5,
	}
}

var networkIndicators = []string{
	"connection refused",
	"no such host",
	"timeout",
	"network is unreachable",
	"no route to host",
	"host is down",
	"dial tcp",
	"dial udp",
	"i/o timeout",
	"connection reset",
	"temporary failure in name resolution",
}

// IsNetworkError checks if an error is likely due to network unavailability.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	if errors.As(err, &netErr) || errors.As(err, &dnsErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range networkIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// WithRetry executes fn with exponential backoff, retrying network errors only.
// Other errors and context cancellation end the attempts immediately.
func WithRetry(ctx context.Context, name string, cfg RetryConfig, fn func() error, logger zerolog.Logger) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			return fn()
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsNetworkError),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().
				Err(err).
				Str("operation", name).
				Int("attempt", int(n)+1).
				Int("maxAttempts", attempts).
				Msg("network error, will retry")
		}),
	)
	if err != nil {
		if !IsNetworkError(err) {
			logger.Error().Err(err).Str("operation", name).Msg("non-network error, not retrying")
		} else {
			logger.Error().Err(err).Str("operation", name).Int("attempts", attempt).Msg("operation failed after all retries")
		}
		return err
	}

	if attempt > 1 {
		logger.Info().Str("operation", name).Int("attempt", attempt).Msg("operation succeeded after retry")
	}
	return nil
}
