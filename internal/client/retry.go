package client

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig controls the bounded retry behavior of RetryClient.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig is used when no config is supplied.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
}

// RetryClient wraps a Client with bounded retries on transient errors.
// Permanent failures (4xx, malformed payloads) surface immediately.
type RetryClient struct {
	inner  Client
	logger *logrus.Logger
	config RetryConfig
}

var _ Client = (*RetryClient)(nil)

// NewRetryClient wraps inner with retry behavior.
func NewRetryClient(inner Client, logger *logrus.Logger, config ...RetryConfig) *RetryClient {
	cfg := DefaultRetryConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &RetryClient{inner: inner, logger: logger, config: cfg}
}

// FetchMarket retries the market snapshot fetch on transient errors.
func (c *RetryClient) FetchMarket(ctx context.Context) (*MarketPayload, error) {
	return retry(ctx, c, "market", func() (*MarketPayload, error) {
		return c.inner.FetchMarket(ctx)
	})
}

// FetchPositions retries the positions fetch on transient errors.
func (c *RetryClient) FetchPositions(ctx context.Context, address string) (PositionsPayload, error) {
	return retry(ctx, c, "positions", func() (PositionsPayload, error) {
		return c.inner.FetchPositions(ctx, address)
	})
}

// FetchPoolAnalysis retries the archive fetch on transient errors.
func (c *RetryClient) FetchPoolAnalysis(ctx context.Context, day string) (*PoolAnalysis, error) {
	return retry(ctx, c, "pool analysis", func() (*PoolAnalysis, error) {
		return c.inner.FetchPoolAnalysis(ctx, day)
	})
}

func retry[T any](ctx context.Context, c *RetryClient, what string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("fetch canceled: %w", err)
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == c.config.MaxRetries {
			break
		}

		if c.logger != nil {
			c.logger.WithError(err).Warnf("%s fetch attempt %d/%d failed, retrying in %v",
				what, attempt+1, c.config.MaxRetries+1, backoff)
		}
		select {
		case <-time.After(backoff):
			backoff = c.nextBackoff(backoff)
		case <-ctx.Done():
			return zero, fmt.Errorf("fetch canceled during backoff: %w", ctx.Err())
		}
	}

	return zero, fmt.Errorf("%s fetch failed after %d attempts: %w", what, c.config.MaxRetries+1, lastErr)
}

func (c *RetryClient) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err == nil {
			backoff += time.Duration(jitterVal.Int64())
		} else if c.logger != nil {
			c.logger.WithError(err).Warn("failed to generate backoff jitter")
		}
	}

	return backoff
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
