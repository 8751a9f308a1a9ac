package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

// Job is one persisted schedule definition. Timestamps serialize as
// ISO-8601 so the file survives process restarts and manual inspection.
type Job struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	CronExpression string               `json:"cron_expression"`
	Params         clip.CrawlParameters `json:"params"`
	IsActive       bool                 `json:"is_active"`
	LastRun        *time.Time           `json:"last_run"`
	NextRun        *time.Time           `json:"next_run"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// FileStore persists the job collection as one JSON file. Every
// mutation rewrites the whole collection under a single writer lock so
// admin edits and scheduler ticks cannot lose each other's updates.
type FileStore struct {
	mu   sync.Mutex
	path string
	jobs map[string]Job
}

// NewFileStore loads (or creates) the schedule file at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, jobs: make(map[string]Job)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}
	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parse schedule file %s: %w", path, err)
	}
	for _, job := range jobs {
		s.jobs[job.ID] = job
	}
	return s, nil
}

// List returns all jobs ordered by name.
func (s *FileStore) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns one job by id.
func (s *FileStore) Get(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, clip.ErrNotFound
	}
	return job, nil
}

// Put inserts or replaces a job and persists the collection.
func (s *FileStore) Put(job Job) error {
	if job.ID == "" {
		return &clip.ValidationError{Field: "id", Reason: "job id is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return s.persistLocked()
}

// Delete removes one job by id.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return clip.ErrNotFound
	}
	delete(s.jobs, id)
	return s.persistLocked()
}

// Mutate applies fn to one job under the writer lock and persists the
// result, so read-modify-write cycles cannot interleave.
func (s *FileStore) Mutate(id string, fn func(*Job) error) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, clip.ErrNotFound
	}
	if err := fn(&job); err != nil {
		return Job{}, err
	}
	s.jobs[id] = job
	if err := s.persistLocked(); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (s *FileStore) persistLocked() error {
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schedule file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create schedule dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write schedule file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace schedule file: %w", err)
	}
	return nil
}
