package storage

import (
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/models"
)

// MockStorage implements Interface for testing.
type MockStorage struct {
	saveError     error
	state         *models.SignalState
	history       []models.SignalRecord
	saveCallCount int
	loadCallCount int
}

// NewMockStorage creates a new mock storage for testing.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		state: models.NewSignalState(),
	}
}

// SetSaveError makes subsequent persisting calls fail with err.
func (m *MockStorage) SetSaveError(err error) {
	m.saveError = err
}

// SaveCallCount returns how many times a persisting method ran.
func (m *MockStorage) SaveCallCount() int {
	return m.saveCallCount
}

// GetState returns the current state.
func (m *MockStorage) GetState() *models.SignalState {
	return m.state.Copy()
}

// SetState replaces the state.
func (m *MockStorage) SetState(state *models.SignalState) error {
	m.saveCallCount++
	if m.saveError != nil {
		return m.saveError
	}
	m.state = state.Copy()
	return nil
}

// RecordSignal appends to the history and applies the transition.
func (m *MockStorage) RecordSignal(rec models.SignalRecord) error {
	m.saveCallCount++
	if m.saveError != nil {
		return m.saveError
	}
	m.history = append(m.history, rec)
	m.state.Position = rec.PositionTo
	m.state.LastSignalDate = rec.Date
	return nil
}

// GetHistory returns the recorded signals.
func (m *MockStorage) GetHistory() []models.SignalRecord {
	history := make([]models.SignalRecord, len(m.history))
	copy(history, m.history)
	return history
}

// Save is a no-op counter.
func (m *MockStorage) Save() error {
	m.saveCallCount++
	return m.saveError
}

// Load is a no-op counter.
func (m *MockStorage) Load() error {
	m.loadCallCount++
	return nil
}

// Ensure MockStorage implements Interface
var _ Interface = (*MockStorage)(nil)
