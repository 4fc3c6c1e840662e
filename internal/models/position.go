// Package models provides the position types and state machine for the
// SMA threshold signal.
package models

import (
	"fmt"
	"time"
)

// Position represents where the portfolio sits between runs.
type Position string

const (
	// PositionCash means fully out of the market.
	PositionCash Position = "CASH"
	// PositionTQQQ means fully invested in the traded symbol.
	PositionTQQQ Position = "TQQQ"
)

// Valid reports whether p is one of the two defined positions.
func (p Position) Valid() bool {
	return p == PositionCash || p == PositionTQQQ
}

// ParsePosition converts a string into a Position.
func ParsePosition(s string) (Position, error) {
	p := Position(s)
	if !p.Valid() {
		return "", fmt.Errorf("invalid position %q (want %s or %s)", s, PositionCash, PositionTQQQ)
	}
	return p, nil
}

// SignalState is the blob persisted between runs.
type SignalState struct {
	Position       Position  `json:"position"`
	LastSignalDate string    `json:"last_signal_date,omitempty"` // YYYY-MM-DD of the last transition
	Created        time.Time `json:"created"`
}

// NewSignalState returns the default state: out of the market.
func NewSignalState() *SignalState {
	return &SignalState{
		Position: PositionCash,
		Created:  time.Now().UTC(),
	}
}

// Copy creates a copy of the state.
func (s *SignalState) Copy() *SignalState {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// SignalRecord captures a fired transition for the stored history.
type SignalRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"` // BUY or SELL
	PositionFrom Position  `json:"position_from"`
	PositionTo   Position  `json:"position_to"`
	Date         string    `json:"date"` // trading date YYYY-MM-DD
	Close        float64   `json:"close"`
	SMA          float64   `json:"sma"`
	BuyLevel     float64   `json:"buy_level"`
	SellLevel    float64   `json:"sell_level"`
}
