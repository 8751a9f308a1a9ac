// Package memory provides in-memory store implementations for tests and
// database-less development runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

// Store implements clip.ClipStore and clip.SubjectStore in memory.
type Store struct {
	mu       sync.RWMutex
	clips    map[string]clip.Clip // keyed by platform + "/" + external id
	subjects map[string]clip.Subject
	idGen    clip.IDGenerator
	clock    clip.Clock
}

// New creates an empty store.
func New(idGen clip.IDGenerator, clock clip.Clock) *Store {
	return &Store{
		clips:    make(map[string]clip.Clip),
		subjects: make(map[string]clip.Subject),
		idGen:    idGen,
		clock:    clock,
	}
}

func clipKey(platform, externalID string) string {
	return platform + "/" + externalID
}

// FindByExternalID returns the stored clip for (platform, externalID).
func (s *Store) FindByExternalID(_ context.Context, platform, externalID string) (clip.Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clips[clipKey(platform, externalID)]
	if !ok {
		return clip.Clip{}, clip.ErrNotFound
	}
	return c, nil
}

// Upsert stores an unseen clip; an existing one is returned unchanged.
func (s *Store) Upsert(_ context.Context, c clip.Clip) (clip.Clip, bool, error) {
	if c.Platform == "" || c.ExternalID == "" {
		return clip.Clip{}, false, &clip.ValidationError{Field: "external_id", Reason: "platform and external_id are required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := clipKey(c.Platform, c.ExternalID)
	if existing, ok := s.clips[key]; ok {
		return existing, false, nil
	}
	if c.ID == "" {
		id, err := s.idGen.NewID()
		if err != nil {
			return clip.Clip{}, false, err
		}
		c.ID = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock.Now().UTC()
	}
	s.clips[key] = c
	return c, true, nil
}

// PutSubject inserts or replaces a subject. Used for seeding.
func (s *Store) PutSubject(subj clip.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[subj.ID] = subj
}

// ListSubjects returns the roster ordered by name.
func (s *Store) ListSubjects(_ context.Context, onlyActive bool) ([]clip.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subjects := make([]clip.Subject, 0, len(s.subjects))
	for _, subj := range s.subjects {
		if onlyActive && !subj.Active {
			continue
		}
		subjects = append(subjects, subj)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

// GetSubject returns one subject by id.
func (s *Store) GetSubject(_ context.Context, id string) (clip.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subj, ok := s.subjects[id]
	if !ok {
		return clip.Subject{}, clip.ErrNotFound
	}
	return subj, nil
}

// FindSubjectByName matches the primary name or any alternate name,
// case-insensitively.
func (s *Store) FindSubjectByName(_ context.Context, name string) (clip.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(name)
	for _, subj := range s.subjects {
		if strings.ToLower(subj.Name) == needle {
			return subj, nil
		}
		for _, alt := range subj.AlternateNames {
			if strings.ToLower(alt) == needle {
				return subj, nil
			}
		}
	}
	return clip.Subject{}, clip.ErrNotFound
}

// RefreshSubjectCounts recomputes clip counts from the stored clips.
func (s *Store) RefreshSubjectCounts(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, c := range s.clips {
		if c.SubjectID != "" {
			counts[c.SubjectID]++
		}
	}
	for id, subj := range s.subjects {
		subj.ClipCount = counts[id]
		s.subjects[id] = subj
	}
	return nil
}
