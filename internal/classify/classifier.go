// Package classify decides whether a clip is a relevant highlight.
package classify

import (
	"strings"
	"time"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

// Config holds the classifier's keyword sets and floors. All matching is
// case-insensitive substring matching.
type Config struct {
	// Keywords mark a title (or tag) as a highlight candidate.
	Keywords []string
	// Disallowed keywords reject a clip outright (reactions,
	// compilations, covers and the like).
	Disallowed []string
	// TrustedChannels pass the keyword gate regardless of title.
	TrustedChannels []string
	// MinDuration rejects shorts and broken uploads.
	MinDuration time.Duration
	// MinViews rejects clips with no traction yet.
	MinViews int64
}

// Classifier applies the relevance decision rule.
type Classifier struct {
	keywords   []string
	disallowed []string
	trusted    map[string]struct{}
	minDur     time.Duration
	minViews   int64
}

// New builds a classifier from config.
func New(cfg Config) *Classifier {
	c := &Classifier{
		keywords:   lowerAll(cfg.Keywords),
		disallowed: lowerAll(cfg.Disallowed),
		trusted:    make(map[string]struct{}, len(cfg.TrustedChannels)),
		minDur:     cfg.MinDuration,
		minViews:   cfg.MinViews,
	}
	for _, ch := range cfg.TrustedChannels {
		c.trusted[strings.ToLower(ch)] = struct{}{}
	}
	return c
}

// Relevant reports whether the clip counts as a highlight. All four
// gates must hold: keyword-or-trusted, no disallowed keyword, duration
// floor, view floor.
func (c *Classifier) Relevant(v clip.Clip) bool {
	if !c.keywordGate(v) {
		return false
	}
	if c.disallowedHit(v) {
		return false
	}
	if v.Duration < c.minDur {
		return false
	}
	if v.ViewCount < c.minViews {
		return false
	}
	return true
}

// Trusted reports whether the clip's channel is on the allow-list.
func (c *Classifier) Trusted(channelTitle string) bool {
	_, ok := c.trusted[strings.ToLower(channelTitle)]
	return ok
}

func (c *Classifier) keywordGate(v clip.Clip) bool {
	if c.Trusted(v.ChannelTitle) {
		return true
	}
	title := strings.ToLower(v.Title)
	for _, kw := range c.keywords {
		if strings.Contains(title, kw) {
			return true
		}
	}
	for _, tag := range v.Tags {
		tag = strings.ToLower(tag)
		for _, kw := range c.keywords {
			if strings.Contains(tag, kw) {
				return true
			}
		}
	}
	return false
}

func (c *Classifier) disallowedHit(v clip.Clip) bool {
	title := strings.ToLower(v.Title)
	desc := strings.ToLower(v.Description)
	for _, kw := range c.disallowed {
		if strings.Contains(title, kw) || strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
