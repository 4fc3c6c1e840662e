package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ragu-manjegowda/tqqq-200-sma/internal/config"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/dashboard"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/journal"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/marketdata"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/models"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/retry"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/storage"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/strategy"
)

func main() {
	var configPath string
	var serveDashboard bool
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&serveDashboard, "dashboard", false, "Keep running and serve the status dashboard after evaluating")
	flag.Parse()

	// .env is optional; real env vars win either way
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[SIGNAL] ", log.LstdFlags)

	store, err := storage.NewStorage(cfg.Storage.StatePath)
	if err != nil {
		log.Fatalf("Failed to open state storage: %v", err)
	}

	provider := buildProvider(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ev, err := evaluateAndRecord(ctx, cfg, logger, store, provider)
	if err != nil {
		logger.Fatalf("Evaluation failed: %v", err)
	}

	if !serveDashboard && !cfg.Dashboard.Enabled {
		return
	}

	runDashboard(ctx, cancel, cfg, store, ev)
}

// buildProvider assembles the data pipeline: Yahoo client wrapped in a circuit
// breaker, wrapped in retries, optionally wrapped in the on-disk cache.
func buildProvider(cfg *config.Config, logger *log.Logger) marketdata.Provider {
	yahoo := marketdata.NewYahooClient()
	if cfg.Data.BaseURL != "" {
		yahoo = yahoo.WithBaseURL(cfg.Data.BaseURL)
	}

	var provider marketdata.Provider = marketdata.NewCircuitBreakerProvider(yahoo)

	provider = retry.NewClient(provider, logger, retry.Config{
		MaxRetries:     cfg.Data.MaxRetries,
		InitialBackoff: cfg.InitialBackoff(),
		MaxBackoff:     cfg.MaxBackoff(),
		Timeout:        2 * time.Minute,
	})

	if cfg.CacheEnabled() {
		provider = marketdata.NewCachingProvider(provider,
			marketdata.NewCache(cfg.Storage.CachePath))
	}
	return provider
}

func evaluateAndRecord(ctx context.Context, cfg *config.Config, logger *log.Logger,
	store storage.Interface, provider marketdata.Provider) (*strategy.Evaluation, error) {

	state := store.GetState()
	if manual, ok := cfg.ManualPosition(); ok && manual != state.Position {
		logger.Printf("Manual position override: %s -> %s", state.Position, manual)
		state.Position = manual
		state.LastSignalDate = ""
		if err := store.SetState(state); err != nil {
			return nil, err
		}
	}

	bars, err := provider.DailyHistory(ctx, cfg.Data.SignalSymbol, cfg.Data.HistoryYears)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no history returned for %s", cfg.Data.SignalSymbol)
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	latest := bars[len(bars)-1]

	strat := strategy.New(strategy.Config{
		SMAPeriod:      cfg.Strategy.SMAPeriod,
		BuyMultiplier:  cfg.Strategy.BuyMultiplier,
		SellMultiplier: cfg.Strategy.SellMultiplier,
	})

	ev, err := strat.Evaluate(latest.Date, closes, state.Position)
	if err != nil {
		return nil, err
	}

	logger.Printf("%s close %.2f | SMA%d %.2f (%s) | buy >= %.2f (%s) | sell <= %.2f (%s)",
		cfg.Data.SignalSymbol, ev.Close, cfg.Strategy.SMAPeriod, ev.SMA,
		strategy.FormatPct(ev.PctVsSMA),
		ev.BuyLevel, strategy.FormatPct(ev.PctToBuy),
		ev.SellLevel, strategy.FormatPct(ev.PctToSell))

	if ev.Action == strategy.ActionHold {
		logger.Printf("HOLD (%s): position stays %s", ev.Reason, state.Position)
		return ev, nil
	}

	sm := models.NewStateMachine(state.Position)
	target := models.PositionTQQQ
	condition := models.ConditionBuyTriggered
	if ev.Action == strategy.ActionSell {
		target = models.PositionCash
		condition = models.ConditionSellTriggered
	}
	if err := sm.Transition(target, condition); err != nil {
		return nil, err
	}

	rec := models.SignalRecord{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Action:       string(ev.Action),
		PositionFrom: state.Position,
		PositionTo:   target,
		Date:         ev.Date.Format("2006-01-02"),
		Close:        ev.Close,
		SMA:          ev.SMA,
		BuyLevel:     ev.BuyLevel,
		SellLevel:    ev.SellLevel,
	}
	if err := store.RecordSignal(rec); err != nil {
		return nil, err
	}
	if err := journal.New(cfg.Storage.JournalPath).Append(rec, ev); err != nil {
		logger.Printf("Warning: journal write failed: %v", err)
	}

	logger.Printf("%s signal fired: %s -> %s (%s)", ev.Action, rec.PositionFrom, rec.PositionTo, ev.Reason)
	return ev, nil
}

func runDashboard(ctx context.Context, cancel context.CancelFunc, cfg *config.Config,
	store storage.Interface, ev *strategy.Evaluation) {

	dashLogger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		dashLogger.SetLevel(lvl)
	}

	server := dashboard.NewServer(dashboard.Config{
		Port:      cfg.Dashboard.Port,
		AuthToken: cfg.Dashboard.AuthToken,
	}, store, dashLogger)
	server.SetEvaluation(ev)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		dashLogger.Info("Shutdown signal received")
		cancel()
	}()

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			dashLogger.WithError(err).Error("Dashboard server error")
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
