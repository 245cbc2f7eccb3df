package client

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerClient wraps a Client with circuit breaker functionality so a dead
// upstream stops consuming refresh cycles with doomed requests.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

var _ Client = (*BreakerClient)(nil)

// BreakerSettings configures circuit breaker behavior.
type BreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewBreakerClient wraps inner with a circuit breaker using sensible defaults.
func NewBreakerClient(inner Client, logger *logrus.Logger) *BreakerClient {
	return NewBreakerClientWithSettings(inner, logger, BreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewBreakerClientWithSettings wraps inner with a circuit breaker using the
// given settings.
func NewBreakerClientWithSettings(inner Client, logger *logrus.Logger, settings BreakerSettings) *BreakerClient {
	gbSettings := gobreaker.Settings{
		Name:        "ProtocolClientBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Warnf("circuit breaker %s state changed from %s to %s", name, from, to)
			}
		},
	}

	return &BreakerClient{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// FetchMarket wraps the underlying fetch with the circuit breaker.
func (c *BreakerClient) FetchMarket(ctx context.Context) (*MarketPayload, error) {
	return execBreaker(c.breaker, func() (*MarketPayload, error) { return c.inner.FetchMarket(ctx) })
}

// FetchPositions wraps the underlying fetch with the circuit breaker.
func (c *BreakerClient) FetchPositions(ctx context.Context, address string) (PositionsPayload, error) {
	return execBreaker(c.breaker, func() (PositionsPayload, error) { return c.inner.FetchPositions(ctx, address) })
}

// FetchPoolAnalysis wraps the underlying fetch with the circuit breaker.
func (c *BreakerClient) FetchPoolAnalysis(ctx context.Context, day string) (*PoolAnalysis, error) {
	return execBreaker(c.breaker, func() (*PoolAnalysis, error) { return c.inner.FetchPoolAnalysis(ctx, day) })
}
