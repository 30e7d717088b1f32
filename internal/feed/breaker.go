package feed

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/tradeledger/internal/models"
)

// CircuitBreakerSource wraps a Source with circuit breaker functionality so
// a failing upstream cannot cascade into every sync cycle.
type CircuitBreakerSource struct {
	source  Source
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerSource creates a CircuitBreakerSource with sensible defaults.
func NewCircuitBreakerSource(source Source) *CircuitBreakerSource {
	return NewCircuitBreakerSourceWithSettings(source, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerSourceWithSettings creates a CircuitBreakerSource with custom settings.
func NewCircuitBreakerSourceWithSettings(source Source, settings CircuitBreakerSettings) *CircuitBreakerSource {
	gbSettings := gobreaker.Settings{
		Name:        "FeedCircuitBreaker",
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
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// A missing quote is a data gap, not an upstream failure.
			return err == nil || errors.Is(err, ErrNoQuote)
		},
	}

	return &CircuitBreakerSource{
		source:  source,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Ensure CircuitBreakerSource implements Source at compile time.
var _ Source = (*CircuitBreakerSource)(nil)

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	source Source,
	fn func(Source) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(source) })
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

// FetchTransactions wraps the underlying source call with circuit breaker.
func (c *CircuitBreakerSource) FetchTransactions(ctx context.Context, account string, since time.Time) ([]models.RawTransaction, error) {
	return execBreaker(c.breaker, c.source, func(s Source) ([]models.RawTransaction, error) {
		return s.FetchTransactions(ctx, account, since)
	})
}

// GetMark wraps the underlying source call with circuit breaker.
func (c *CircuitBreakerSource) GetMark(ctx context.Context, symbol string) (float64, error) {
	return execBreaker(c.breaker, c.source, func(s Source) (float64, error) {
		return s.GetMark(ctx, symbol)
	})
}
