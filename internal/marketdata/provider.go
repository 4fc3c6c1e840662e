// Package marketdata fetches daily adjusted-close history from the Yahoo
// chart API, with caching and a circuit breaker around the HTTP layer.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// Bar is one day of adjusted-close data.
type Bar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"` // adjusted close
}

// Provider defines the contract for fetching daily price history.
type Provider interface {
	// DailyHistory returns years of daily bars for symbol, oldest first.
	DailyHistory(ctx context.Context, symbol string, years int) ([]Bar, error)
}

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// CircuitBreakerProvider wraps a Provider with circuit breaker functionality
// so repeated upstream failures stop hammering the API.
type CircuitBreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerProvider creates a CircuitBreakerProvider with sensible defaults.
func NewCircuitBreakerProvider(provider Provider) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(provider, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerProviderWithSettings creates a CircuitBreakerProvider with custom settings.
func NewCircuitBreakerProviderWithSettings(provider Provider, settings CircuitBreakerSettings) *CircuitBreakerProvider {
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
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
	}

	return &CircuitBreakerProvider{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// DailyHistory wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) DailyHistory(ctx context.Context, symbol string, years int) ([]Bar, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.DailyHistory(ctx, symbol, years)
	})
	if err != nil {
		return nil, err
	}
	bars, ok := res.([]Bar)
	if !ok {
		return nil, errors.New("circuit breaker: type assertion failed")
	}
	return bars, nil
}

// Ensure wrappers implement Provider at compile time.
var (
	_ Provider = (*CircuitBreakerProvider)(nil)
	_ Provider = (*YahooClient)(nil)
	_ Provider = (*CachingProvider)(nil)
)
