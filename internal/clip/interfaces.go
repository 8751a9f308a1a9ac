package clip

import (
	"context"
	"time"
)

// SearchProvider is the boundary to an external video platform. Search
// returns only external ids; Details hydrates up to the provider's batch
// limit of ids into full clip records.
type SearchProvider interface {
	Search(ctx context.Context, query string, opts SearchOptions) (SearchPage, error)
	Details(ctx context.Context, ids []string) ([]Clip, error)
}

// ClipStore persists observed clips.
type ClipStore interface {
	// FindByExternalID returns the stored clip for (platform, externalID),
	// or ErrNotFound.
	FindByExternalID(ctx context.Context, platform, externalID string) (Clip, error)
	// Upsert stores the clip if its (platform, externalID) is unseen and
	// returns (stored, true). If a row already exists it is returned
	// unchanged with created=false.
	Upsert(ctx context.Context, c Clip) (Clip, bool, error)
}

// SubjectStore provides the tracked-subject roster.
type SubjectStore interface {
	ListSubjects(ctx context.Context, onlyActive bool) ([]Subject, error)
	GetSubject(ctx context.Context, id string) (Subject, error)
	// FindSubjectByName matches the primary name or any alternate name,
	// case-insensitively. Returns ErrNotFound when nothing matches.
	FindSubjectByName(ctx context.Context, name string) (Subject, error)
	// RefreshSubjectCounts recomputes every subject's clip count from the
	// clip table. Idempotent.
	RefreshSubjectCounts(ctx context.Context) error
}

// RunStore keeps the crawl run history.
type RunStore interface {
	Save(run CrawlRun) error
	Get(id string) (CrawlRun, error)
	List() []CrawlRun
	Delete(id string) error
	Stats() RunStats
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers for runs and clips.
type IDGenerator interface {
	NewID() (string, error)
}
