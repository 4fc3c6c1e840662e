package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ragu-manjegowda/tqqq-200-sma/internal/backtest"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/config"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/marketdata"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/retry"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/strategy"
)

func main() {
	var configPath string
	var exportCSV bool
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&exportCSV, "export", false, "Write trade log and equity curve CSVs")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[BACKTEST] ", log.LstdFlags)

	yahoo := marketdata.NewYahooClient()
	if cfg.Data.BaseURL != "" {
		yahoo = yahoo.WithBaseURL(cfg.Data.BaseURL)
	}
	provider := retry.NewClient(marketdata.NewCircuitBreakerProvider(yahoo), logger, retry.Config{
		MaxRetries:     cfg.Data.MaxRetries,
		InitialBackoff: cfg.InitialBackoff(),
		MaxBackoff:     cfg.MaxBackoff(),
		Timeout:        5 * time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	logger.Printf("Backtesting %s signals on %s over up to %d years",
		cfg.Data.SignalSymbol, cfg.Data.TradeSymbol, cfg.Backtest.HistoryYears)

	report, err := backtest.Run(ctx, provider, backtest.Config{
		SignalSymbol:   cfg.Data.SignalSymbol,
		TradeSymbol:    cfg.Data.TradeSymbol,
		HistoryYears:   cfg.Backtest.HistoryYears,
		InitialCapital: cfg.Backtest.InitialCapital,
		StartDate:      cfg.BacktestStart(),
		Strategy: strategy.Config{
			SMAPeriod:      cfg.Strategy.SMAPeriod,
			BuyMultiplier:  cfg.Strategy.BuyMultiplier,
			SellMultiplier: cfg.Strategy.SellMultiplier,
		},
	})
	if err != nil {
		logger.Fatalf("Backtest failed: %v", err)
	}

	printReport(report)

	if exportCSV {
		if err := report.WriteTradesCSV(cfg.Backtest.TradesCSV); err != nil {
			logger.Fatalf("Writing trades CSV: %v", err)
		}
		if err := report.WriteEquityCSV(cfg.Backtest.EquityCSV); err != nil {
			logger.Fatalf("Writing equity CSV: %v", err)
		}
		logger.Printf("Exported %s and %s", cfg.Backtest.TradesCSV, cfg.Backtest.EquityCSV)
	}
}

func printReport(r *backtest.Report) {
	fmt.Printf("\nPeriod: %s to %s (%d trading days, %.1f years)\n",
		r.PeriodStart.Format("2006-01-02"), r.PeriodEnd.Format("2006-01-02"),
		r.TradingDays, r.Strategy.Years)
	fmt.Printf("Trades: %d (win rate %.1f%%)\n\n", r.NumTrades, r.WinRate)

	printResult(r.Strategy)
	printResult(r.TradeHold)
	printResult(r.SignalHold)
}

func printResult(res *backtest.Result) {
	fmt.Printf("%s\n", res.Name)
	fmt.Printf("  final value:   $%.2f\n", res.FinalValue)
	fmt.Printf("  total return:  %.1f%%\n", res.TotalReturn)
	fmt.Printf("  CAGR:          %.2f%%\n", res.CAGR)
	fmt.Printf("  max drawdown:  %.1f%%\n", res.MaxDrawdown)
	fmt.Printf("  sharpe:        %.2f\n\n", res.Sharpe)
}
