// Package journal appends fired signals to a CSV log file.
package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/models"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/strategy"
)

var header = []string{
	"id", "timestamp_utc", "action", "position_from", "position_to", "date",
	"close", "sma200", "pct_vs_sma", "buy_level", "sell_level", "pct_to_buy", "pct_to_sell",
}

// Journal is an append-only CSV log. One row per fired transition; the header
// is written when the file is created.
type Journal struct {
	mu   sync.Mutex
	path string
}

// New creates a journal backed by the given CSV path.
func New(path string) *Journal {
	return &Journal{path: path}
}

// Append writes one row for a fired signal. The record's ID is generated when
// empty.
func (j *Journal) Append(rec models.SignalRecord, ev *strategy.Evaluation) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating journal dir: %w", err)
		}
	}

	_, statErr := os.Stat(j.path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("writing journal header: %w", err)
		}
	}

	row := []string{
		rec.ID,
		rec.Timestamp.Format(time.RFC3339),
		rec.Action,
		string(rec.PositionFrom),
		string(rec.PositionTo),
		rec.Date,
		formatFloat(rec.Close),
		formatFloat(rec.SMA),
		formatFloat(ev.PctVsSMA),
		formatFloat(rec.BuyLevel),
		formatFloat(rec.SellLevel),
		formatFloat(ev.PctToBuy),
		formatFloat(ev.PctToSell),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing journal row: %w", err)
	}

	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
