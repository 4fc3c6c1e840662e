package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LastMarketClose returns the timestamp of the most recent US market close
// (4 PM ET / 21:00 UTC), rolling back over weekends to Friday's close.
func LastMarketClose(now time.Time) time.Time {
	now = now.UTC()
	close := time.Date(now.Year(), now.Month(), now.Day(), 21, 0, 0, 0, time.UTC)
	if now.Hour() < 21 {
		close = close.AddDate(0, 0, -1)
	}
	for close.Weekday() == time.Saturday || close.Weekday() == time.Sunday {
		close = close.AddDate(0, 0, -1)
	}
	return close
}

// CacheKey builds the cache key for a symbol and lookback window.
func CacheKey(symbol string, years int) string {
	return fmt.Sprintf("%s_%dy", symbol, years)
}

// Cache is a JSON file cache of fetched series. An entry is valid only if the
// file was written after the last market close, so every trading day gets at
// most one upstream fetch per series.
type Cache struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

type cacheFile struct {
	Timestamp time.Time        `json:"timestamp"`
	Data      map[string][]Bar `json:"data"`
}

// NewCache creates a cache backed by the given file path.
func NewCache(path string) *Cache {
	return &Cache{path: path, now: time.Now}
}

// Get returns the cached series for key if the cache is still fresh.
// A missing, corrupt, or stale file is a miss.
func (c *Cache) Get(key string) ([]Bar, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cf, err := c.load()
	if err != nil {
		return nil, false
	}
	if cf.Timestamp.Before(LastMarketClose(c.now())) {
		return nil, false
	}
	bars, ok := cf.Data[key]
	if !ok || len(bars) == 0 {
		return nil, false
	}
	return bars, true
}

// Put stores a series under key, preserving other fresh entries. The write is
// atomic (tmp file + rename).
func (c *Cache) Put(key string, bars []Bar) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cf, err := c.load()
	if err != nil || cf.Timestamp.Before(LastMarketClose(c.now())) {
		// Stale or unreadable cache: start over rather than mixing ages.
		cf = &cacheFile{Data: make(map[string][]Bar)}
	}
	cf.Data[key] = bars
	cf.Timestamp = c.now().UTC()

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating cache dir: %w", err)
		}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return os.Rename(tmp, c.path)
}

func (c *Cache) load() (*cacheFile, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	if cf.Data == nil {
		cf.Data = make(map[string][]Bar)
	}
	return &cf, nil
}

// CachingProvider wraps a Provider with the market-close cache.
type CachingProvider struct {
	provider Provider
	cache    *Cache
}

// NewCachingProvider creates a provider that serves from cache when fresh.
func NewCachingProvider(provider Provider, cache *Cache) *CachingProvider {
	return &CachingProvider{provider: provider, cache: cache}
}

// DailyHistory serves from the cache when fresh, fetching and caching
// otherwise. Cache write failures do not fail the fetch.
func (p *CachingProvider) DailyHistory(ctx context.Context, symbol string, years int) ([]Bar, error) {
	key := CacheKey(symbol, years)
	if bars, ok := p.cache.Get(key); ok {
		return bars, nil
	}

	bars, err := p.provider.DailyHistory(ctx, symbol, years)
	if err != nil {
		return nil, err
	}
	_ = p.cache.Put(key, bars)
	return bars, nil
}
