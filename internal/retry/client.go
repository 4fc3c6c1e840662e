// Package retry wraps a market data provider with retry and backoff logic.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ragu-manjegowda/tqqq-200-sma/internal/marketdata"
)

// Config controls the retry loop.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig matches the upstream behavior: a few attempts, backoff capped
// well under the run cadence.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 2 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client retries provider calls on transient failures.
type Client struct {
	provider marketdata.Provider
	logger   *log.Logger
	config   Config
}

// NewClient wraps provider with retry behavior.
func NewClient(provider marketdata.Provider, logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Client{
		provider: provider,
		logger:   logger,
		config:   cfg,
	}
}

// DailyHistory fetches with retries. Rate-limit responses back off harder
// than other transient errors; permanent errors return immediately.
func (c *Client) DailyHistory(ctx context.Context, symbol string, years int) ([]marketdata.Bar, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-fetchCtx.Done():
			return nil, fmt.Errorf("fetch timed out after %v: %w", c.config.Timeout, fetchCtx.Err())
		default:
		}

		bars, err := c.provider.DailyHistory(fetchCtx, symbol, years)
		if err == nil {
			if attempt > 0 {
				c.logger.Printf("[%s] fetch succeeded on attempt %d", symbol, attempt+1)
			}
			return bars, nil
		}

		lastErr = err
		c.logger.Printf("[%s] fetch attempt %d/%d failed: %v", symbol, attempt+1, c.config.MaxRetries+1, err)

		if !c.isTransientError(err) || attempt == c.config.MaxRetries {
			break
		}

		if isRateLimitError(err) {
			// Rate limits need more room than generic transients.
			backoff = minDuration(backoff*3, 60*time.Second)
		}

		c.logger.Printf("[%s] retrying in %v", symbol, backoff)
		select {
		case <-time.After(backoff):
			backoff = c.calculateNextBackoff(backoff)
		case <-fetchCtx.Done():
			return nil, fmt.Errorf("fetch timed out during backoff: %w", fetchCtx.Err())
		}
	}

	return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", symbol, c.config.MaxRetries+1, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 2)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

func (c *Client) isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *marketdata.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"rate limit",
		"too many requests",
		"network",
		"dns",
		"tcp",
		"eof",
		"empty",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isRateLimitError(err error) bool {
	var apiErr *marketdata.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// Ensure Client implements Provider at compile time.
var _ marketdata.Provider = (*Client)(nil)
