// Package backtest replays the SMA threshold rule over full price history and
// compares it against buy-and-hold.
package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragu-manjegowda/tqqq-200-sma/internal/marketdata"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/models"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/strategy"
)

// Config controls a backtest run.
type Config struct {
	SignalSymbol   string    // symbol the SMA is computed on (QQQ)
	TradeSymbol    string    // symbol bought and sold (TQQQ)
	HistoryYears   int       // lookback window for the fetch
	InitialCapital float64   // starting cash
	StartDate      time.Time // zero value means full history
	Strategy       strategy.Config
	RiskFreeRate   float64 // annual, for Sharpe; defaults to 0.02
}

// Trade is one executed transition during the replay.
type Trade struct {
	Date        time.Time       `json:"date"`
	Action      strategy.Action `json:"action"`
	SignalClose float64         `json:"signal_close"`
	TradeClose  float64         `json:"trade_close"`
	Shares      float64         `json:"shares"`
	Value       float64         `json:"value"`
}

// Result holds the performance statistics of one portfolio series.
type Result struct {
	Name        string    `json:"name"`
	FinalValue  float64   `json:"final_value"`
	TotalReturn float64   `json:"total_return"` // percent
	CAGR        float64   `json:"cagr"`         // percent
	MaxDrawdown float64   `json:"max_drawdown"` // percent, negative
	Sharpe      float64   `json:"sharpe"`
	Years       float64   `json:"years"`
	EquityCurve []float64 `json:"equity_curve"`
}

// Report bundles the strategy run and both buy-and-hold baselines.
type Report struct {
	Strategy    *Result     `json:"strategy"`
	TradeHold   *Result     `json:"trade_buy_and_hold"`
	SignalHold  *Result     `json:"signal_buy_and_hold"`
	Trades      []Trade     `json:"trades"`
	NumTrades   int         `json:"num_trades"`
	WinRate     float64     `json:"win_rate"` // percent of round trips closed higher
	Dates       []time.Time `json:"-"`
	PeriodStart time.Time   `json:"period_start"`
	PeriodEnd   time.Time   `json:"period_end"`
	TradingDays int         `json:"trading_days"`
}

// Run fetches both symbols, aligns them on common dates, and replays the rule.
func Run(ctx context.Context, provider marketdata.Provider, cfg Config) (*Report, error) {
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 10000
	}
	if cfg.RiskFreeRate == 0 {
		cfg.RiskFreeRate = 0.02
	}
	if cfg.HistoryYears <= 0 {
		cfg.HistoryYears = 30
	}

	var signalBars, tradeBars []marketdata.Bar
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		signalBars, err = provider.DailyHistory(gctx, cfg.SignalSymbol, cfg.HistoryYears)
		return err
	})
	g.Go(func() error {
		var err error
		tradeBars, err = provider.DailyHistory(gctx, cfg.TradeSymbol, cfg.HistoryYears)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}

	signalBars, tradeBars = alignBars(signalBars, tradeBars, cfg.StartDate)
	if len(signalBars) == 0 {
		return nil, fmt.Errorf("no overlapping history for %s and %s", cfg.SignalSymbol, cfg.TradeSymbol)
	}

	return Replay(signalBars, tradeBars, cfg)
}

// alignBars keeps only dates present in both series, dropping anything before
// start when start is non-zero.
func alignBars(signal, trade []marketdata.Bar, start time.Time) ([]marketdata.Bar, []marketdata.Bar) {
	tradeByDate := make(map[time.Time]marketdata.Bar, len(trade))
	for _, b := range trade {
		tradeByDate[b.Date] = b
	}

	var s, t []marketdata.Bar
	for _, b := range signal {
		if !start.IsZero() && b.Date.Before(start) {
			continue
		}
		tb, ok := tradeByDate[b.Date]
		if !ok {
			continue
		}
		s = append(s, b)
		t = append(t, tb)
	}
	return s, t
}

// Replay runs the rule over pre-aligned series. The first WarmupPeriod-1 days
// carry no SMA and are skipped.
func Replay(signalBars, tradeBars []marketdata.Bar, cfg Config) (*Report, error) {
	if len(signalBars) != len(tradeBars) {
		return nil, fmt.Errorf("series length mismatch: %d vs %d", len(signalBars), len(tradeBars))
	}

	strat := strategy.New(cfg.Strategy)
	warmup := strat.WarmupPeriod()
	if len(signalBars) < warmup {
		return nil, fmt.Errorf("not enough history: have %d days, need %d", len(signalBars), warmup)
	}

	closes := make([]float64, len(signalBars))
	for i, b := range signalBars {
		closes[i] = b.Close
	}

	position := models.PositionCash
	cash := cfg.InitialCapital
	shares := 0.0

	var trades []Trade
	var equity []float64
	var dates []time.Time

	for i := warmup - 1; i < len(signalBars); i++ {
		ev, err := strat.Evaluate(signalBars[i].Date, closes[:i+1], position)
		if err != nil {
			return nil, err
		}

		tradeClose := tradeBars[i].Close
		switch ev.Action {
		case strategy.ActionBuy:
			shares = cash / tradeClose
			cash = 0
			position = models.PositionTQQQ
			trades = append(trades, Trade{
				Date:        signalBars[i].Date,
				Action:      strategy.ActionBuy,
				SignalClose: ev.Close,
				TradeClose:  tradeClose,
				Shares:      shares,
				Value:       shares * tradeClose,
			})
		case strategy.ActionSell:
			cash = shares * tradeClose
			position = models.PositionCash
			trades = append(trades, Trade{
				Date:        signalBars[i].Date,
				Action:      strategy.ActionSell,
				SignalClose: ev.Close,
				TradeClose:  tradeClose,
				Shares:      shares,
				Value:       cash,
			})
			shares = 0
		}

		value := cash
		if position == models.PositionTQQQ {
			value = shares * tradeClose
		}
		equity = append(equity, value)
		dates = append(dates, signalBars[i].Date)
	}

	years := dates[len(dates)-1].Sub(dates[0]).Hours() / 24 / 365.25
	report := &Report{
		Strategy:    buildResult("200 SMA strategy", equity, cfg.InitialCapital, years, cfg.RiskFreeRate),
		Trades:      trades,
		NumTrades:   len(trades),
		WinRate:     winRate(trades),
		Dates:       dates,
		PeriodStart: dates[0],
		PeriodEnd:   dates[len(dates)-1],
		TradingDays: len(dates),
	}

	report.TradeHold = buyAndHold("trade buy & hold", tradeBars[warmup-1:], cfg.InitialCapital, cfg.RiskFreeRate)
	report.SignalHold = buyAndHold("signal buy & hold", signalBars[warmup-1:], cfg.InitialCapital, cfg.RiskFreeRate)
	return report, nil
}

func buildResult(name string, equity []float64, initial, years, riskFree float64) *Result {
	final := equity[len(equity)-1]
	return &Result{
		Name:        name,
		FinalValue:  final,
		TotalReturn: (final/initial - 1) * 100,
		CAGR:        CAGR(initial, final, years),
		MaxDrawdown: MaxDrawdown(equity),
		Sharpe:      SharpeRatio(dailyReturns(equity), riskFree),
		Years:       years,
		EquityCurve: equity,
	}
}

func buyAndHold(name string, bars []marketdata.Bar, initial, riskFree float64) *Result {
	shares := initial / bars[0].Close
	equity := make([]float64, len(bars))
	for i, b := range bars {
		equity[i] = shares * b.Close
	}
	years := bars[len(bars)-1].Date.Sub(bars[0].Date).Hours() / 24 / 365.25
	return buildResult(name, equity, initial, years, riskFree)
}

// winRate pairs each BUY with the following SELL and counts round trips that
// closed above their entry value.
func winRate(trades []Trade) float64 {
	var roundTrips, wins int
	for i := 0; i+1 < len(trades); i += 2 {
		if trades[i].Action != strategy.ActionBuy || trades[i+1].Action != strategy.ActionSell {
			continue
		}
		roundTrips++
		if trades[i+1].Value > trades[i].Value {
			wins++
		}
	}
	if roundTrips == 0 {
		return 0
	}
	return float64(wins) / float64(roundTrips) * 100
}

// CAGR computes the compound annual growth rate in percent.
func CAGR(startValue, endValue, years float64) float64 {
	if startValue <= 0 || endValue <= 0 || years <= 0 {
		return 0
	}
	return (math.Pow(endValue/startValue, 1/years) - 1) * 100
}

// MaxDrawdown computes the worst peak-to-trough decline in percent (negative).
func MaxDrawdown(values []float64) float64 {
	var runningMax, worst float64
	for _, v := range values {
		if v > runningMax {
			runningMax = v
		}
		if runningMax > 0 {
			dd := (v - runningMax) / runningMax * 100
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// SharpeRatio computes the annualized Sharpe ratio of daily returns against
// an annual risk-free rate.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	dailyRf := riskFreeRate / 252
	var mean float64
	for _, r := range returns {
		mean += r - dailyRf
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := (r - dailyRf) - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return math.Sqrt(252) * mean / std
}

func dailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1)
	}
	return returns
}

// WriteTradesCSV exports the trade log.
func (r *Report) WriteTradesCSV(path string) error {
	rows := [][]string{{"trade", "date", "action", "signal_close", "trade_close", "shares", "value"}}
	for i, t := range r.Trades {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			t.Date.Format("2006-01-02"),
			string(t.Action),
			fmt.Sprintf("%.4f", t.SignalClose),
			fmt.Sprintf("%.4f", t.TradeClose),
			fmt.Sprintf("%.4f", t.Shares),
			fmt.Sprintf("%.2f", t.Value),
		})
	}
	return writeCSV(path, rows)
}

// WriteEquityCSV exports the daily equity curve.
func (r *Report) WriteEquityCSV(path string) error {
	rows := [][]string{{"date", "equity"}}
	for i, eq := range r.Strategy.EquityCurve {
		rows = append(rows, []string{
			r.Dates[i].Format("2006-01-02"),
			fmt.Sprintf("%.2f", eq),
		})
	}
	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	defer w.Flush()
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}
