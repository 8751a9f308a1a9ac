// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store implements clip.ClipStore and clip.SubjectStore on Postgres.
type Store struct {
	pool  dbPool
	idGen clip.IDGenerator
	clock clip.Clock
}

// New creates a Postgres-backed store using the provided config.
func New(ctx context.Context, cfg Config, idGen clip.IDGenerator, clock clip.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, idGen: idGen, clock: clock}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool dbPool, idGen clip.IDGenerator, clock clip.Clock) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool, idGen: idGen, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const clipColumns = `
	id, platform, external_id, title, channel_id, channel_title,
	published_at, description, thumbnail_url, view_count, like_count,
	comment_count, duration_seconds, tags, is_highlight, quality_score,
	subject_id, subject_name, event_name, created_at`

// FindByExternalID returns the stored clip for (platform, externalID).
func (s *Store) FindByExternalID(ctx context.Context, platform, externalID string) (clip.Clip, error) {
	query := `SELECT` + clipColumns + `
FROM clips WHERE platform = $1 AND external_id = $2`
	row := s.pool.QueryRow(ctx, query, platform, externalID)
	return scanClip(row)
}

// Upsert stores the clip when its (platform, external_id) is unseen.
// A clip that already exists is returned unchanged with created=false:
// first write wins.
func (s *Store) Upsert(ctx context.Context, c clip.Clip) (clip.Clip, bool, error) {
	if c.Platform == "" || c.ExternalID == "" {
		return clip.Clip{}, false, &clip.ValidationError{Field: "external_id", Reason: "platform and external_id are required"}
	}

	existing, err := s.FindByExternalID(ctx, c.Platform, c.ExternalID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, clip.ErrNotFound) {
		return clip.Clip{}, false, err
	}

	if c.ID == "" {
		id, err := s.idGen.NewID()
		if err != nil {
			return clip.Clip{}, false, fmt.Errorf("generate clip id: %w", err)
		}
		c.ID = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock.Now().UTC()
	}

	query := `INSERT INTO clips (` + clipColumns + `
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`
	args := []any{
		c.ID, c.Platform, c.ExternalID, c.Title, c.ChannelID, c.ChannelTitle,
		c.PublishedAt, c.Description, c.ThumbnailURL, c.ViewCount, c.LikeCount,
		c.CommentCount, int64(c.Duration / time.Second), c.Tags, c.IsHighlight,
		c.QualityScore, nullable(c.SubjectID), nullable(c.SubjectName),
		nullable(c.EventName), c.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return clip.Clip{}, false, &clip.TransientError{Op: "insert clip", Err: err}
	}
	return c, true, nil
}

// ListSubjects returns the roster, optionally filtered to active rows,
// ordered by name.
func (s *Store) ListSubjects(ctx context.Context, onlyActive bool) ([]clip.Subject, error) {
	query := `SELECT` + subjectColumns + ` FROM subjects`
	if onlyActive {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, &clip.TransientError{Op: "list subjects", Err: err}
	}
	defer rows.Close()

	var subjects []clip.Subject
	for rows.Next() {
		subj, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, subj)
	}
	if err := rows.Err(); err != nil {
		return nil, &clip.TransientError{Op: "list subjects", Err: err}
	}
	return subjects, nil
}

const subjectColumns = `
	id, name, alternate_names, group_name, is_group, active,
	search_keywords, clip_count, created_at, updated_at`

// GetSubject returns one subject by id.
func (s *Store) GetSubject(ctx context.Context, id string) (clip.Subject, error) {
	query := `SELECT` + subjectColumns + ` FROM subjects WHERE id = $1`
	return scanSubject(s.pool.QueryRow(ctx, query, id))
}

// FindSubjectByName matches the primary name or any alternate name,
// case-insensitively.
func (s *Store) FindSubjectByName(ctx context.Context, name string) (clip.Subject, error) {
	query := `SELECT` + subjectColumns + `
FROM subjects
WHERE lower(name) = lower($1)
   OR EXISTS (
	SELECT 1 FROM unnest(alternate_names) AS alt WHERE lower(alt) = lower($1)
   )
LIMIT 1`
	return scanSubject(s.pool.QueryRow(ctx, query, name))
}

// RefreshSubjectCounts recomputes clip counts for every subject from the
// clips table. Idempotent; subjects with no clips are reset to zero.
func (s *Store) RefreshSubjectCounts(ctx context.Context) error {
	zero := `UPDATE subjects SET clip_count = 0`
	if _, err := s.pool.Exec(ctx, zero); err != nil {
		return &clip.TransientError{Op: "reset subject counts", Err: err}
	}
	update := `
UPDATE subjects SET clip_count = counts.n
FROM (
	SELECT subject_id, count(*) AS n
	FROM clips
	WHERE subject_id IS NOT NULL
	GROUP BY subject_id
) AS counts
WHERE subjects.id = counts.subject_id`
	if _, err := s.pool.Exec(ctx, update); err != nil {
		return &clip.TransientError{Op: "refresh subject counts", Err: err}
	}
	return nil
}

func scanClip(row pgx.Row) (clip.Clip, error) {
	var (
		c               clip.Clip
		durationSeconds int64
		subjectID       *string
		subjectName     *string
		eventName       *string
	)
	err := row.Scan(
		&c.ID, &c.Platform, &c.ExternalID, &c.Title, &c.ChannelID, &c.ChannelTitle,
		&c.PublishedAt, &c.Description, &c.ThumbnailURL, &c.ViewCount, &c.LikeCount,
		&c.CommentCount, &durationSeconds, &c.Tags, &c.IsHighlight, &c.QualityScore,
		&subjectID, &subjectName, &eventName, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return clip.Clip{}, clip.ErrNotFound
		}
		return clip.Clip{}, &clip.TransientError{Op: "scan clip", Err: err}
	}
	c.Duration = time.Duration(durationSeconds) * time.Second
	c.SubjectID = deref(subjectID)
	c.SubjectName = deref(subjectName)
	c.EventName = deref(eventName)
	return c, nil
}

func scanSubject(row pgx.Row) (clip.Subject, error) {
	var (
		subj      clip.Subject
		groupName *string
	)
	err := row.Scan(
		&subj.ID, &subj.Name, &subj.AlternateNames, &groupName, &subj.IsGroup,
		&subj.Active, &subj.SearchKeywords, &subj.ClipCount, &subj.CreatedAt,
		&subj.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return clip.Subject{}, clip.ErrNotFound
		}
		return clip.Subject{}, &clip.TransientError{Op: "scan subject", Err: err}
	}
	subj.GroupName = deref(groupName)
	return subj, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
