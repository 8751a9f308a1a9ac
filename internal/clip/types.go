// Package clip defines core domain types shared across subsystems.
package clip

import "time"

// Platform identifies the external video platform a clip came from.
const PlatformYouTube = "youtube"

// Subject is a tracked performer or group.
type Subject struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AlternateNames []string  `json:"alternate_names,omitempty"`
	GroupName      string    `json:"group_name,omitempty"`
	IsGroup        bool      `json:"is_group"`
	Active         bool      `json:"active"`
	SearchKeywords []string  `json:"search_keywords,omitempty"`
	ClipCount      int       `json:"clip_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clip is one observed video record. (Platform, ExternalID) is the natural
// key: a second observation of the same id must never create a second row.
type Clip struct {
	ID           string        `json:"id"`
	Platform     string        `json:"platform"`
	ExternalID   string        `json:"external_id"`
	Title        string        `json:"title"`
	ChannelID    string        `json:"channel_id"`
	ChannelTitle string        `json:"channel_title"`
	PublishedAt  time.Time     `json:"published_at"`
	Description  string        `json:"description,omitempty"`
	ThumbnailURL string        `json:"thumbnail_url,omitempty"`
	ViewCount    int64         `json:"view_count"`
	LikeCount    int64         `json:"like_count"`
	CommentCount int64         `json:"comment_count"`
	Duration     time.Duration `json:"duration"`
	Tags         []string      `json:"tags,omitempty"`
	IsHighlight  bool          `json:"is_highlight"`
	QualityScore float64       `json:"quality_score"`
	SubjectID    string        `json:"subject_id,omitempty"`
	SubjectName  string        `json:"subject_name,omitempty"`
	EventName    string        `json:"event_name,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// RunStatus represents the lifecycle state of a crawl run.
type RunStatus string

// Run status values persisted in the run history.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// CrawlParameters is the typed parameter bag attached to scheduled and
// ad-hoc crawl runs. Unknown keys in incoming JSON are ignored.
type CrawlParameters struct {
	Subject string `json:"subject,omitempty" mapstructure:"subject"`
	Group   string `json:"group,omitempty" mapstructure:"group"`
	Event   string `json:"event,omitempty" mapstructure:"event"`
	// Limit caps saved clips per subject for this run. Zero means the
	// configured per-subject cap.
	Limit int `json:"limit,omitempty" mapstructure:"limit"`
	// SaveToDB gates persistence. Unset means save; a run with
	// save_to_db=false still searches, classifies and counts.
	SaveToDB *bool `json:"save_to_db,omitempty" mapstructure:"save_to_db"`
}

// Persist reports whether crawl results should be written to the store.
func (p CrawlParameters) Persist() bool {
	return p.SaveToDB == nil || *p.SaveToDB
}

// RunResult summarizes a finished crawl run.
type RunResult struct {
	Message   string   `json:"message,omitempty"`
	OutputDir string   `json:"output_dir,omitempty"`
	Files     []string `json:"files,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// CrawlRun is the execution record for one crawl invocation.
type CrawlRun struct {
	ID        string          `json:"id"`
	Status    RunStatus       `json:"status"`
	Params    CrawlParameters `json:"params"`
	StartTime *time.Time      `json:"start_time,omitempty"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
	Result    *RunResult      `json:"result,omitempty"`
}

// RunStats aggregates run history counts for the admin surface.
type RunStats struct {
	TotalRuns     int `json:"total_runs"`
	RunningRuns   int `json:"running_runs"`
	CompletedRuns int `json:"completed_runs"`
	FailedRuns    int `json:"failed_runs"`
}

// SearchOptions narrows a provider search call.
type SearchOptions struct {
	MaxResults     int
	PublishedAfter time.Time
	Order          string
	PageToken      string
}

// SearchPage is one page of provider search results: external ids only.
// Full metadata comes from a separate details lookup, mirroring the
// provider's cost model (search is flat-rate, details cost per item).
type SearchPage struct {
	IDs           []string
	NextPageToken string
}
