package marketdata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLastMarketClose(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"weekday after close",
			time.Date(2024, 3, 13, 22, 30, 0, 0, time.UTC), // Wednesday
			time.Date(2024, 3, 13, 21, 0, 0, 0, time.UTC),
		},
		{
			"weekday before close",
			time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 12, 21, 0, 0, 0, time.UTC),
		},
		{
			"saturday rolls back to friday",
			time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 15, 21, 0, 0, 0, time.UTC),
		},
		{
			"sunday rolls back to friday",
			time.Date(2024, 3, 17, 23, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 15, 21, 0, 0, 0, time.UTC),
		},
		{
			"monday before close rolls back to friday",
			time.Date(2024, 3, 18, 13, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 15, 21, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LastMarketClose(tt.now); !got.Equal(tt.want) {
				t.Errorf("LastMarketClose(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey("QQQ", 3); got != "QQQ_3y" {
		t.Errorf("CacheKey = %q, want QQQ_3y", got)
	}
}

func sampleBars() []Bar {
	return []Bar{
		{Date: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), Close: 430.1},
		{Date: time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC), Close: 431.2},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "cache.json"))
	// Pin time to a weekday evening so freshness is deterministic.
	cache.now = func() time.Time { return time.Date(2024, 3, 13, 22, 0, 0, 0, time.UTC) }

	if _, ok := cache.Get("QQQ_3y"); ok {
		t.Error("expected miss on empty cache")
	}

	if err := cache.Put("QQQ_3y", sampleBars()); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	bars, ok := cache.Get("QQQ_3y")
	if !ok {
		t.Fatal("expected hit after put")
	}
	if len(bars) != 2 || bars[1].Close != 431.2 {
		t.Errorf("unexpected bars: %+v", bars)
	}

	if _, ok := cache.Get("TQQQ_3y"); ok {
		t.Error("expected miss for different key")
	}
}

func TestCacheStaleAfterMarketClose(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "cache.json"))

	// Written Tuesday evening...
	cache.now = func() time.Time { return time.Date(2024, 3, 12, 22, 0, 0, 0, time.UTC) }
	if err := cache.Put("QQQ_3y", sampleBars()); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	// ...still fresh Wednesday before the close...
	cache.now = func() time.Time { return time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC) }
	if _, ok := cache.Get("QQQ_3y"); !ok {
		t.Error("expected hit before the next market close")
	}

	// ...stale after Wednesday's close.
	cache.now = func() time.Time { return time.Date(2024, 3, 13, 22, 0, 0, 0, time.UTC) }
	if _, ok := cache.Get("QQQQ_3y"); ok {
		t.Error("expected miss for unknown key")
	}
	if _, ok := cache.Get("QQQ_3y"); ok {
		t.Error("expected miss after the next market close")
	}
}

func TestCacheCorruptFileIsMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	cache := NewCache(path)
	if _, ok := cache.Get("QQQ_3y"); ok {
		t.Error("corrupt cache should read as a miss")
	}

	// A put should recover the file.
	cache.now = func() time.Time { return time.Date(2024, 3, 13, 22, 0, 0, 0, time.UTC) }
	if err := cache.Put("QQQ_3y", sampleBars()); err != nil {
		t.Fatalf("put over corrupt file failed: %v", err)
	}
	if _, ok := cache.Get("QQQ_3y"); !ok {
		t.Error("expected hit after recovery")
	}
}

// fakeProvider counts calls and returns canned data.
type fakeProvider struct {
	bars  []Bar
	err   error
	calls int
}

func (f *fakeProvider) DailyHistory(_ context.Context, _ string, _ int) ([]Bar, error) {
	f.calls++
	return f.bars, f.err
}

func TestCachingProvider(t *testing.T) {
	fake := &fakeProvider{bars: sampleBars()}
	cache := NewCache(filepath.Join(t.TempDir(), "cache.json"))
	cache.now = func() time.Time { return time.Date(2024, 3, 13, 22, 0, 0, 0, time.UTC) }

	provider := NewCachingProvider(fake, cache)

	bars, err := provider.DailyHistory(context.Background(), "QQQ", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if fake.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", fake.calls)
	}

	// Second call is served from the cache.
	if _, err := provider.DailyHistory(context.Background(), "QQQ", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("expected cache hit, got %d upstream calls", fake.calls)
	}
}

func TestCachingProviderPropagatesErrors(t *testing.T) {
	wantErr := errors.New("upstream down")
	fake := &fakeProvider{err: wantErr}
	provider := NewCachingProvider(fake, NewCache(filepath.Join(t.TempDir(), "cache.json")))

	if _, err := provider.DailyHistory(context.Background(), "QQQ", 3); !errors.Is(err, wantErr) {
		t.Errorf("expected upstream error, got %v", err)
	}
}
