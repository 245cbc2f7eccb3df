// Package snapshot holds the latest fully-assembled analytics state and
// persists it across restarts so the dashboard can serve data immediately.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jaewoongo/optfolio/internal/market"
	"github.com/jaewoongo/optfolio/internal/portfolio"
)

// Snapshot is one complete refresh cycle's output: the flattened quote table,
// the index prices, the pool statistics and the per-asset portfolio analytics.
type Snapshot struct {
	RunID      string                      `json:"run_id"`
	FetchedAt  time.Time                   `json:"fetched_at"`
	Quotes     market.Table                `json:"quotes"`
	Indices    market.Indices              `json:"indices"`
	Pool       market.PoolStats            `json:"pool"`
	Portfolios map[string]portfolio.Result `json:"portfolios"`
}

// Store keeps the current snapshot in memory and mirrors it to disk.
type Store struct {
	mu       sync.RWMutex
	filepath string
	current  *Snapshot
}

// NewStore creates a store backed by filepath. If a persisted snapshot exists
// it is loaded so the dashboard has data before the first refresh completes.
func NewStore(filepath string) (*Store, error) {
	s := &Store{filepath: filepath}

	if _, err := os.Stat(filepath); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading snapshot: %w", err)
		}
	}

	return s, nil
}

// Current returns the latest snapshot, or nil when no refresh has completed
// and nothing was persisted.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Swap installs a new snapshot as current and persists it.
func (s *Store) Swap(snap *Snapshot) error {
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	return s.Save()
}

// Load reads the persisted snapshot from disk.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.current = &snap

	return nil
}

// Save writes the current snapshot to disk via a temp file and an atomic
// rename, so a crash mid-write never leaves a truncated file.
func (s *Store) Save() error {
	s.mu.RLock()
	snap := s.current
	s.mu.RUnlock()

	if snap == nil {
		return nil
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, s.filepath)
}
