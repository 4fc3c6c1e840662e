package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://query2.finance.yahoo.com/v8/finance/chart"

// intervalFallbacks is the fetch order: daily first, then intraday intervals
// whose bars get collapsed back to one close per day. Some symbols
// intermittently return empty daily data while intraday still works.
var intervalFallbacks = []string{"1d", "1h", "30m"}

// YahooClient fetches price history from the Yahoo v8 chart API.
type YahooClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewYahooClient creates a client with default settings.
func NewYahooClient() *YahooClient {
	return &YahooClient{
		client:    &http.Client{Timeout: 30 * time.Second},
		baseURL:   defaultBaseURL,
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (c *YahooClient) WithHTTPClient(client *http.Client) *YahooClient {
	if client != nil {
		c.client = client
	}
	return c
}

// WithBaseURL allows overriding the API endpoint (tests).
func (c *YahooClient) WithBaseURL(baseURL string) *YahooClient {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// Chart API response structures.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []float64 `json:"close"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// DailyHistory fetches years of daily bars for symbol, falling back through
// intraday intervals when the daily series comes back empty.
func (c *YahooClient) DailyHistory(ctx context.Context, symbol string, years int) ([]Bar, error) {
	if years <= 0 {
		return nil, fmt.Errorf("years must be > 0, got %d", years)
	}

	var lastErr error
	for _, interval := range intervalFallbacks {
		bars, err := c.fetchChart(ctx, symbol, years, interval)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		if len(bars) > 0 {
			return collapseDaily(bars), nil
		}
		lastErr = fmt.Errorf("empty %s series for %s", interval, symbol)
	}
	return nil, fmt.Errorf("no valid data for %s: %w", symbol, lastErr)
}

// fetchChart performs one chart API request for a single interval.
func (c *YahooClient) fetchChart(ctx context.Context, symbol string, years int, interval string) ([]Bar, error) {
	now := time.Now().UTC()
	params := url.Values{}
	params.Set("period1", fmt.Sprintf("%d", now.AddDate(-years, 0, 0).Unix()))
	params.Set("period2", fmt.Sprintf("%d", now.Unix()))
	params.Set("interval", interval)
	params.Set("events", "div,splits")

	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", symbol, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response for %s: %w", symbol, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding chart response for %s: %w", symbol, err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error for %s: %s (%s)",
			symbol, parsed.Chart.Error.Description, parsed.Chart.Error.Code)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart response for %s has no result", symbol)
	}

	return resultToBars(parsed.Chart.Result[0]), nil
}

// resultToBars converts the parallel timestamp/close arrays into bars,
// preferring adjusted closes. Zero-price rows on weekends and holidays are
// dropped, matching how Yahoo pads some series.
func resultToBars(result chartResult) []Bar {
	closes := result.Indicators.Quote
	adj := result.Indicators.AdjClose

	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		var price float64
		if len(adj) > 0 && i < len(adj[0].AdjClose) {
			price = adj[0].AdjClose[i]
		} else if len(closes) > 0 && i < len(closes[0].Close) {
			price = closes[0].Close[i]
		}
		if price == 0 {
			continue
		}
		bars = append(bars, Bar{Date: time.Unix(ts, 0).UTC(), Close: price})
	}
	return bars
}

// collapseDaily keeps the last bar of each UTC day so intraday fallbacks
// still yield one close per trading day. Timestamps are truncated to
// midnight UTC.
func collapseDaily(bars []Bar) []Bar {
	daily := make([]Bar, 0, len(bars))
	for _, b := range bars {
		day := b.Date.Truncate(24 * time.Hour)
		if n := len(daily); n > 0 && daily[n-1].Date.Equal(day) {
			daily[n-1].Close = b.Close
			continue
		}
		daily = append(daily, Bar{Date: day, Close: b.Close})
	}
	return daily
}
