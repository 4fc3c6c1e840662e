// Package strategy implements the 200-day SMA threshold rule: BUY when the
// signal symbol closes at or above SMA200 scaled by the buy multiplier, SELL
// when it closes at or below SMA200 scaled by the sell multiplier.
package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/ragu-manjegowda/tqqq-200-sma/internal/models"
)

// Action is the decision emitted by an evaluation.
type Action string

const (
	// ActionBuy signals the CASH -> TQQQ transition.
	ActionBuy Action = "BUY"
	// ActionSell signals the TQQQ -> CASH transition.
	ActionSell Action = "SELL"
	// ActionHold signals no transition.
	ActionHold Action = "HOLD"
)

// Config holds the strategy parameters.
type Config struct {
	SMAPeriod      int     // 200 days
	BuyMultiplier  float64 // 1.05 for +5% vs SMA
	SellMultiplier float64 // 0.97 for -3% vs SMA
}

// DefaultConfig is the mechanical rule as agreed: 200 SMA, +5% buy, -3% sell.
var DefaultConfig = Config{
	SMAPeriod:      200,
	BuyMultiplier:  1.05,
	SellMultiplier: 0.97,
}

// Evaluation is the full output of one daily evaluation.
type Evaluation struct {
	Date      time.Time `json:"date"`
	Close     float64   `json:"close"`
	SMA       float64   `json:"sma"`
	BuyLevel  float64   `json:"buy_level"`
	SellLevel float64   `json:"sell_level"`
	PctVsSMA  float64   `json:"pct_vs_sma"`  // close relative to SMA, positive = above
	PctToBuy  float64   `json:"pct_to_buy"`  // move needed to reach the buy level
	PctToSell float64   `json:"pct_to_sell"` // move needed to reach the sell level
	Action    Action    `json:"action"`
	Reason    string    `json:"reason"`
}

// SMAThreshold evaluates the threshold rule against a close series.
type SMAThreshold struct {
	config Config
}

// New creates a strategy, filling zero-valued parameters from DefaultConfig.
func New(config Config) *SMAThreshold {
	if config.SMAPeriod <= 0 {
		config.SMAPeriod = DefaultConfig.SMAPeriod
	}
	if config.BuyMultiplier <= 0 {
		config.BuyMultiplier = DefaultConfig.BuyMultiplier
	}
	if config.SellMultiplier <= 0 {
		config.SellMultiplier = DefaultConfig.SellMultiplier
	}
	return &SMAThreshold{config: config}
}

// Config returns the effective parameters.
func (s *SMAThreshold) Config() Config {
	return s.config
}

// WarmupPeriod returns the number of closes needed before a signal exists.
func (s *SMAThreshold) WarmupPeriod() int {
	return s.config.SMAPeriod
}

// SMA computes the arithmetic mean of the most recent period closes.
func SMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("sma period must be > 0, got %d", period)
	}
	if len(closes) < period {
		return 0, fmt.Errorf("not enough history: have %d closes, need %d", len(closes), period)
	}

	var sum float64
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period), nil
}

// PctDistance returns the percent move needed to get from current to target:
// positive means current is below target. NaN when undefined.
func PctDistance(current, target float64) float64 {
	if current == 0 || math.IsNaN(current) || math.IsNaN(target) {
		return math.NaN()
	}
	return (target/current - 1) * 100.0
}

// FormatPct renders a signed percentage, or N/A when undefined.
func FormatPct(v float64) string {
	if math.IsNaN(v) {
		return "N/A"
	}
	return fmt.Sprintf("%+.2f%%", v)
}

// Evaluate applies the rule to the latest close given the current position.
// closes must hold at least SMAPeriod entries; date is the trading date of
// the last close.
func (s *SMAThreshold) Evaluate(date time.Time, closes []float64, position models.Position) (*Evaluation, error) {
	sma, err := SMA(closes, s.config.SMAPeriod)
	if err != nil {
		return nil, err
	}

	latest := closes[len(closes)-1]
	ev := &Evaluation{
		Date:      date,
		Close:     latest,
		SMA:       sma,
		BuyLevel:  sma * s.config.BuyMultiplier,
		SellLevel: sma * s.config.SellMultiplier,
		Action:    ActionHold,
	}
	ev.PctVsSMA = PctDistance(sma, latest)
	ev.PctToBuy = PctDistance(latest, ev.BuyLevel)
	ev.PctToSell = PctDistance(latest, ev.SellLevel)

	switch position {
	case models.PositionCash:
		if latest >= ev.BuyLevel {
			ev.Action = ActionBuy
			ev.Reason = fmt.Sprintf("close %.2f >= buy threshold %.2f", latest, ev.BuyLevel)
		} else {
			ev.Reason = "in cash, buy condition not met"
		}
	case models.PositionTQQQ:
		if latest <= ev.SellLevel {
			ev.Action = ActionSell
			ev.Reason = fmt.Sprintf("close %.2f <= sell threshold %.2f", latest, ev.SellLevel)
		} else {
			ev.Reason = "holding, sell condition not met"
		}
	default:
		return nil, fmt.Errorf("invalid position %q", position)
	}

	return ev, nil
}
