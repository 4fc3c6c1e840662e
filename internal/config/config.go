// Package config provides configuration management for the signal tool.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/ragu-manjegowda/tqqq-200-sma/internal/models"
)

// Defaults applied by normalize when fields are unset.
const (
	defaultSignalSymbol = "QQQ"
	defaultTradeSymbol  = "TQQQ"
	defaultHistoryYears = 3
	defaultSMAPeriod    = 200
	defaultBuyMult      = 1.05
	defaultSellMult     = 0.97

	defaultStatePath   = "data/position_state.json"
	defaultJournalPath = "data/signals_log.csv"
	defaultCachePath   = "data/market_data_cache.json"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Data        DataConfig        `yaml:"data"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Storage     StorageConfig     `yaml:"storage"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// DataConfig defines market data fetch settings.
type DataConfig struct {
	SignalSymbol   string `yaml:"signal_symbol"` // SMA computed on this series
	TradeSymbol    string `yaml:"trade_symbol"`  // symbol actually traded
	HistoryYears   int    `yaml:"history_years"`
	BaseURL        string `yaml:"base_url"` // chart API override, mainly for tests
	CacheEnabled   *bool  `yaml:"cache_enabled"`
	MaxRetries     int    `yaml:"max_retries"`
	InitialBackoff string `yaml:"initial_backoff"` // duration, e.g. "2s"
	MaxBackoff     string `yaml:"max_backoff"`
}

// StrategyConfig defines the threshold rule parameters.
type StrategyConfig struct {
	SMAPeriod      int     `yaml:"sma_period"`
	BuyMultiplier  float64 `yaml:"buy_multiplier"`
	SellMultiplier float64 `yaml:"sell_multiplier"`
	// ManualPosition overrides the saved position state when set to CASH or
	// TQQQ. Leave empty to use the saved state.
	ManualPosition string `yaml:"manual_position"`
}

// StorageConfig defines file paths for persisted data.
type StorageConfig struct {
	StatePath   string `yaml:"state_path"`
	JournalPath string `yaml:"journal_path"`
	CachePath   string `yaml:"cache_path"`
}

// BacktestConfig defines backtest settings.
type BacktestConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	HistoryYears   int     `yaml:"history_years"`
	StartDate      string  `yaml:"start_date"` // YYYY-MM-DD, empty = full history
	TradesCSV      string  `yaml:"trades_csv"`
	EquityCSV      string  `yaml:"equity_csv"`
}

// DashboardConfig defines the optional status server.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// normalize fills unset fields with defaults.
func (c *Config) normalize() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Data.SignalSymbol == "" {
		c.Data.SignalSymbol = defaultSignalSymbol
	}
	if c.Data.TradeSymbol == "" {
		c.Data.TradeSymbol = defaultTradeSymbol
	}
	if c.Data.HistoryYears == 0 {
		c.Data.HistoryYears = defaultHistoryYears
	}
	if c.Data.MaxRetries == 0 {
		c.Data.MaxRetries = 3
	}
	if c.Data.InitialBackoff == "" {
		c.Data.InitialBackoff = "2s"
	}
	if c.Data.MaxBackoff == "" {
		c.Data.MaxBackoff = "30s"
	}
	if c.Strategy.SMAPeriod == 0 {
		c.Strategy.SMAPeriod = defaultSMAPeriod
	}
	if c.Strategy.BuyMultiplier == 0 {
		c.Strategy.BuyMultiplier = defaultBuyMult
	}
	if c.Strategy.SellMultiplier == 0 {
		c.Strategy.SellMultiplier = defaultSellMult
	}
	if c.Storage.StatePath == "" {
		c.Storage.StatePath = defaultStatePath
	}
	if c.Storage.JournalPath == "" {
		c.Storage.JournalPath = defaultJournalPath
	}
	if c.Storage.CachePath == "" {
		c.Storage.CachePath = defaultCachePath
	}
	if c.Backtest.InitialCapital == 0 {
		c.Backtest.InitialCapital = 10000
	}
	if c.Backtest.HistoryYears == 0 {
		c.Backtest.HistoryYears = 30
	}
	if c.Backtest.TradesCSV == "" {
		c.Backtest.TradesCSV = "data/backtest_trades.csv"
	}
	if c.Backtest.EquityCSV == "" {
		c.Backtest.EquityCSV = "data/backtest_equity.csv"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 9780
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be debug, info, warn or error")
	}

	if c.Data.SignalSymbol == "" {
		return fmt.Errorf("data.signal_symbol is required")
	}
	if c.Data.TradeSymbol == "" {
		return fmt.Errorf("data.trade_symbol is required")
	}
	if c.Data.HistoryYears <= 0 {
		return fmt.Errorf("data.history_years must be > 0")
	}
	if c.Data.MaxRetries < 0 {
		return fmt.Errorf("data.max_retries must be >= 0")
	}
	if _, err := time.ParseDuration(c.Data.InitialBackoff); err != nil {
		return fmt.Errorf("data.initial_backoff invalid: %w", err)
	}
	if _, err := time.ParseDuration(c.Data.MaxBackoff); err != nil {
		return fmt.Errorf("data.max_backoff invalid: %w", err)
	}

	if c.Strategy.SMAPeriod <= 0 {
		return fmt.Errorf("strategy.sma_period must be > 0")
	}
	if c.Strategy.BuyMultiplier <= 1.0 {
		return fmt.Errorf("strategy.buy_multiplier must be > 1.0")
	}
	if c.Strategy.SellMultiplier <= 0 || c.Strategy.SellMultiplier >= 1.0 {
		return fmt.Errorf("strategy.sell_multiplier must be in (0,1)")
	}
	if c.Strategy.ManualPosition != "" {
		if _, err := models.ParsePosition(c.Strategy.ManualPosition); err != nil {
			return fmt.Errorf("strategy.manual_position: %w", err)
		}
	}

	// A daily SMA over N days needs at least N trading days of history;
	// ~252 trading days per year.
	if c.Data.HistoryYears*252 < c.Strategy.SMAPeriod {
		return fmt.Errorf("data.history_years (%d) too short for strategy.sma_period (%d)",
			c.Data.HistoryYears, c.Strategy.SMAPeriod)
	}

	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0")
	}
	if c.Backtest.StartDate != "" {
		if _, err := time.Parse("2006-01-02", c.Backtest.StartDate); err != nil {
			return fmt.Errorf("backtest.start_date invalid: %w", err)
		}
	}

	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be a valid port")
	}

	return nil
}

// CacheEnabled reports whether the market data cache is on (default true).
func (c *Config) CacheEnabled() bool {
	return c.Data.CacheEnabled == nil || *c.Data.CacheEnabled
}

// InitialBackoff returns the parsed initial backoff duration.
func (c *Config) InitialBackoff() time.Duration {
	d, err := time.ParseDuration(c.Data.InitialBackoff)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// MaxBackoff returns the parsed maximum backoff duration.
func (c *Config) MaxBackoff() time.Duration {
	d, err := time.ParseDuration(c.Data.MaxBackoff)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ManualPosition returns the configured override, if any.
func (c *Config) ManualPosition() (models.Position, bool) {
	if c.Strategy.ManualPosition == "" {
		return "", false
	}
	p, err := models.ParsePosition(c.Strategy.ManualPosition)
	if err != nil {
		return "", false
	}
	return p, true
}

// BacktestStart returns the parsed backtest start date, zero when unset.
func (c *Config) BacktestStart() time.Time {
	if c.Backtest.StartDate == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", c.Backtest.StartDate)
	if err != nil {
		return time.Time{}
	}
	return t
}
