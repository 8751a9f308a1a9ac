// Package score ranks clips with a deterministic 0-100 quality score.
package score

import (
	"math"
	"strings"
	"time"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

// Config holds the scoring bands. Each contribution is capped
// independently; the pivot is the value at which the cap is reached.
type Config struct {
	ViewCap       float64
	ViewPivot     int64
	LikeCap       float64
	LikePivot     int64
	CommentCap    float64
	CommentPivot  int64
	TrustedBonus  float64
	DurationCap   float64
	ResolutionCap float64
}

// DefaultConfig returns the standard scoring bands.
func DefaultConfig() Config {
	return Config{
		ViewCap:       40,
		ViewPivot:     200_000,
		LikeCap:       25,
		LikePivot:     20_000,
		CommentCap:    10,
		CommentPivot:  2_000,
		TrustedBonus:  10,
		DurationCap:   10,
		ResolutionCap: 5,
	}
}

// Scorer computes quality scores from engagement and metadata signals.
type Scorer struct {
	cfg Config
}

// New builds a scorer.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score returns the composite quality score in [0,100], rounded to two
// decimals. trusted marks the clip's channel as allow-listed.
func (s *Scorer) Score(v clip.Clip, trusted bool) float64 {
	total := s.ViewScore(v.ViewCount) +
		s.LikeScore(v.LikeCount) +
		s.CommentScore(v.CommentCount) +
		s.DurationScore(v.Duration) +
		s.ResolutionScore(v.Title, v.ThumbnailURL)
	if trusted {
		total += s.cfg.TrustedBonus
	}
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	return math.Round(total*100) / 100
}

// ViewScore grows linearly to the cap at the pivot.
func (s *Scorer) ViewScore(views int64) float64 {
	return linear(views, s.cfg.ViewPivot, s.cfg.ViewCap)
}

// LikeScore grows linearly to the cap at the pivot.
func (s *Scorer) LikeScore(likes int64) float64 {
	return linear(likes, s.cfg.LikePivot, s.cfg.LikeCap)
}

// CommentScore grows linearly to the cap at the pivot.
func (s *Scorer) CommentScore(comments int64) float64 {
	return linear(comments, s.cfg.CommentPivot, s.cfg.CommentCap)
}

// DurationScore peaks inside the 2-5 minute fancam band, gives half
// credit outside it, and nothing under 30 seconds.
func (s *Scorer) DurationScore(d time.Duration) float64 {
	switch {
	case d < 30*time.Second:
		return 0
	case d >= 2*time.Minute && d <= 5*time.Minute:
		return s.cfg.DurationCap
	default:
		return s.cfg.DurationCap / 2
	}
}

// ResolutionScore takes the stronger of two quality signals, the
// thumbnail tier and a title token, without stacking them.
func (s *Scorer) ResolutionScore(title, thumbnailURL string) float64 {
	thumb := thumbnailTier(thumbnailURL) * s.cfg.ResolutionCap
	token := titleTier(title) * s.cfg.ResolutionCap
	return math.Max(thumb, token)
}

func linear(value, pivot int64, limit float64) float64 {
	if value <= 0 || pivot <= 0 {
		return 0
	}
	score := float64(value) / float64(pivot) * limit
	if score > limit {
		return limit
	}
	return score
}

// thumbnailTier returns the fraction of the resolution cap the thumbnail
// URL earns. maxres means the source is at least 1080p.
func thumbnailTier(url string) float64 {
	switch {
	case strings.Contains(url, "maxres"):
		return 1
	case strings.Contains(url, "sddefault"):
		return 0.6
	case strings.Contains(url, "hqdefault"):
		return 0.4
	default:
		return 0
	}
}

func titleTier(title string) float64 {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "4k") || strings.Contains(t, "2160"):
		return 1
	case strings.Contains(t, "1080") || strings.Contains(t, "hd"):
		return 0.6
	default:
		return 0
	}
}
