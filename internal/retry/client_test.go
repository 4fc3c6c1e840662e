package retry

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/ragu-manjegowda/tqqq-200-sma/internal/marketdata"
)

// scriptedProvider fails a set number of times before succeeding.
type scriptedProvider struct {
	failures int
	err      error
	bars     []marketdata.Bar
	calls    int
}

func (s *scriptedProvider) DailyHistory(_ context.Context, _ string, _ int) ([]marketdata.Bar, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, s.err
	}
	return s.bars, nil
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Timeout:        time.Second,
	}
}

func TestDailyHistorySucceedsFirstTry(t *testing.T) {
	provider := &scriptedProvider{
		bars: []marketdata.Bar{{Date: time.Now(), Close: 430.1}},
	}
	client := NewClient(provider, testLogger(), fastConfig())

	bars, err := client.DailyHistory(context.Background(), "QQQ", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 1 || provider.calls != 1 {
		t.Errorf("expected 1 bar from 1 call, got %d bars from %d calls", len(bars), provider.calls)
	}
}

func TestDailyHistoryRetriesTransientErrors(t *testing.T) {
	provider := &scriptedProvider{
		failures: 2,
		err:      &marketdata.APIError{Status: 503, Body: "Service Unavailable"},
		bars:     []marketdata.Bar{{Close: 430.1}},
	}
	client := NewClient(provider, testLogger(), fastConfig())

	if _, err := client.DailyHistory(context.Background(), "QQQ", 3); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 calls, got %d", provider.calls)
	}
}

func TestDailyHistoryStopsOnPermanentError(t *testing.T) {
	provider := &scriptedProvider{
		failures: 10,
		err:      &marketdata.APIError{Status: 404, Body: "Not Found"},
	}
	client := NewClient(provider, testLogger(), fastConfig())

	if _, err := client.DailyHistory(context.Background(), "QQQ", 3); err == nil {
		t.Fatal("expected error")
	}
	if provider.calls != 1 {
		t.Errorf("permanent error should not retry, got %d calls", provider.calls)
	}
}

func TestDailyHistoryExhaustsRetries(t *testing.T) {
	wantErr := &marketdata.APIError{Status: 500, Body: "Internal"}
	provider := &scriptedProvider{failures: 10, err: wantErr}
	client := NewClient(provider, testLogger(), fastConfig())

	_, err := client.DailyHistory(context.Background(), "QQQ", 3)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var apiErr *marketdata.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("expected wrapped APIError, got %v", err)
	}
	if provider.calls != 4 {
		t.Errorf("expected MaxRetries+1 = 4 calls, got %d", provider.calls)
	}
}

func TestDailyHistoryRespectsContext(t *testing.T) {
	provider := &scriptedProvider{
		failures: 10,
		err:      &marketdata.APIError{Status: 503, Body: "Service Unavailable"},
	}
	cfg := fastConfig()
	cfg.InitialBackoff = 10 * time.Second
	client := NewClient(provider, testLogger(), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := client.DailyHistory(ctx, "QQQ", 3); err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("retry loop ignored context, took %v", elapsed)
	}
}

func TestIsTransientError(t *testing.T) {
	client := NewClient(&scriptedProvider{}, testLogger())

	tests := []struct {
		err  error
		want bool
	}{
		{&marketdata.APIError{Status: 429}, true},
		{&marketdata.APIError{Status: 500}, true},
		{&marketdata.APIError{Status: 503}, true},
		{&marketdata.APIError{Status: 404}, false},
		{&marketdata.APIError{Status: 401}, false},
		{errors.New("connection refused"), true},
		{errors.New("dial tcp: lookup failed"), true},
		{errors.New("empty 1d series for QQQ"), true},
		{errors.New("invalid symbol"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := client.isTransientError(tt.err); got != tt.want {
			t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCalculateNextBackoffCapped(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxBackoff = 4 * time.Millisecond
	client := NewClient(&scriptedProvider{}, testLogger(), cfg)

	// Doubling 3ms exceeds the cap; jitter adds at most a quarter on top.
	next := client.calculateNextBackoff(3 * time.Millisecond)
	if next < 4*time.Millisecond || next > 5*time.Millisecond {
		t.Errorf("backoff %v outside [cap, cap+cap/4]", next)
	}
}
