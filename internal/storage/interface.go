package storage

import (
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/models"
)

// Interface defines the contract for signal state persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe.
//
// The provided JSONStorage implementation uses sync.RWMutex to serialize
// access, ensuring all Interface methods are protected for concurrent
// readers and writers.
type Interface interface {
	// State management
	GetState() *models.SignalState
	SetState(state *models.SignalState) error

	// Fired signals
	RecordSignal(rec models.SignalRecord) error
	GetHistory() []models.SignalRecord

	// Data persistence
	Save() error
	Load() error
}

// NewStorage creates a new storage implementation (currently JSON-based).
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure JSONStorage implements Interface
var _ Interface = (*JSONStorage)(nil)
