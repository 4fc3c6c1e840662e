// Package storage persists the signal state and fired-signal history to a
// JSON file with atomic writes.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ragu-manjegowda/tqqq-200-sma/internal/models"
)

// JSONStorage is the file-backed implementation of Interface.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *storageData
}

type storageData struct {
	State       *models.SignalState   `json:"state"`
	History     []models.SignalRecord `json:"history"`
	LastUpdated time.Time             `json:"last_updated"`
}

// NewJSONStorage opens or initializes storage at filepath. A missing file
// initializes a default CASH state and writes it; a corrupt file falls back
// to a fresh state in memory without clobbering the file until the next
// successful save.
func NewJSONStorage(filepath string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: filepath,
		data: &storageData{
			State: models.NewSignalState(),
		},
	}

	if _, err := os.Stat(filepath); err == nil {
		if err := s.Load(); err != nil {
			if !errors.Is(err, ErrCorruptState) {
				return nil, fmt.Errorf("loading storage: %w", err)
			}
			// Corrupt file: continue with the default state.
			s.data = &storageData{State: models.NewSignalState()}
		}
		return s, nil
	}

	if err := s.Save(); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return s, nil
}

// Load reads the state file from disk.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	var loaded storageData
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if loaded.State == nil || !loaded.State.Position.Valid() {
		return fmt.Errorf("%w: missing or invalid position", ErrCorruptState)
	}

	s.data = &loaded
	return nil
}

// Save writes the state file atomically (tmp file + rename).
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filepath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpFile, s.filepath)
}

// GetState returns a copy of the current signal state.
func (s *JSONStorage) GetState() *models.SignalState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.State.Copy()
}

// SetState replaces the signal state and persists it.
func (s *JSONStorage) SetState(state *models.SignalState) error {
	if state == nil || !state.Position.Valid() {
		return fmt.Errorf("refusing to persist invalid state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.State = state.Copy()
	return s.saveLocked()
}

// RecordSignal appends a fired signal to the history, updates the state to
// the record's destination position, and persists.
func (s *JSONStorage) RecordSignal(rec models.SignalRecord) error {
	if !rec.PositionTo.Valid() {
		return fmt.Errorf("signal record has invalid destination position %q", rec.PositionTo)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.History = append(s.data.History, rec)
	s.data.State.Position = rec.PositionTo
	s.data.State.LastSignalDate = rec.Date
	return s.saveLocked()
}

// GetHistory returns a copy of the fired-signal history.
func (s *JSONStorage) GetHistory() []models.SignalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]models.SignalRecord, len(s.data.History))
	copy(history, s.data.History)
	return history
}
