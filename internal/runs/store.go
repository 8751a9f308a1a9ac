// Package runs keeps the crawl run execution history in a JSON file.
package runs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

// DefaultRetention is how long finished runs stay in the history.
const DefaultRetention = 30 * 24 * time.Hour

// Store is a file-backed clip.RunStore. Every mutation rewrites the
// whole file under one writer lock, so concurrent writers can never
// interleave partial states.
type Store struct {
	mu        sync.Mutex
	path      string
	retention time.Duration
	clock     clip.Clock
	logger    *zap.Logger
	runs      map[string]clip.CrawlRun
}

// NewStore loads (or creates) the history file at path. Records whose
// start time is older than the retention window are pruned immediately;
// records with no start time are kept regardless of age.
func NewStore(path string, retention time.Duration, clock clip.Clock, logger *zap.Logger) (*Store, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	s := &Store{
		path:      path,
		retention: retention,
		clock:     clock,
		logger:    logger,
		runs:      make(map[string]clip.CrawlRun),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read run history: %w", err)
	}
	var records []clip.CrawlRun
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse run history %s: %w", s.path, err)
	}

	cutoff := s.clock.Now().Add(-s.retention)
	pruned := 0
	for _, run := range records {
		if run.StartTime != nil && run.StartTime.Before(cutoff) {
			pruned++
			continue
		}
		s.runs[run.ID] = run
	}
	if pruned > 0 {
		s.logger.Info("pruned expired runs from history",
			zap.Int("pruned", pruned),
			zap.Int("kept", len(s.runs)))
		return s.persistLocked()
	}
	return nil
}

// Save inserts or replaces a run record and persists the collection.
func (s *Store) Save(run clip.CrawlRun) error {
	if run.ID == "" {
		return &clip.ValidationError{Field: "id", Reason: "run id is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return s.persistLocked()
}

// Get returns one run by id.
func (s *Store) Get(id string) (clip.CrawlRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return clip.CrawlRun{}, clip.ErrNotFound
	}
	return run, nil
}

// List returns all runs, newest start time first. Runs that have not
// started yet sort before everything else.
func (s *Store) List() []clip.CrawlRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]clip.CrawlRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].StartTime, out[j].StartTime
		switch {
		case a == nil && b == nil:
			return out[i].ID > out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.After(*b)
		}
	})
	return out
}

// Delete removes one run by id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return clip.ErrNotFound
	}
	delete(s.runs, id)
	return s.persistLocked()
}

// Stats aggregates the history by status.
func (s *Store) Stats() clip.RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := clip.RunStats{TotalRuns: len(s.runs)}
	for _, run := range s.runs {
		switch run.Status {
		case clip.RunStatusRunning, clip.RunStatusPending:
			stats.RunningRuns++
		case clip.RunStatusCompleted:
			stats.CompletedRuns++
		case clip.RunStatusFailed:
			stats.FailedRuns++
		}
	}
	return stats
}

func (s *Store) persistLocked() error {
	records := make([]clip.CrawlRun, 0, len(s.runs))
	for _, run := range s.runs {
		records = append(records, run)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace run history: %w", err)
	}
	return nil
}
