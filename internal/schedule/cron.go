// Package schedule owns scheduled job definitions and the tick loop
// that fires them.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

const (
	minYear = 1970
	maxYear = 2099
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Schedule is a parsed cron expression: the standard 5 fields
// (minute hour day-of-month month day-of-week), optionally followed by a
// 6th year field (list, range or *).
type Schedule struct {
	inner cron.Schedule
	years map[int]struct{} // nil means unconstrained
}

// ParseCron parses a 5- or 6-field cron expression. Malformed
// expressions yield a ValidationError.
func ParseCron(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	switch len(fields) {
	case 5, 6:
	default:
		return nil, &clip.ValidationError{
			Field:  "cron_expression",
			Reason: fmt.Sprintf("expected 5 or 6 fields, got %d", len(fields)),
		}
	}

	inner, err := cronParser.Parse(strings.Join(fields[:5], " "))
	if err != nil {
		return nil, &clip.ValidationError{Field: "cron_expression", Reason: err.Error()}
	}

	sched := &Schedule{inner: inner}
	if len(fields) == 6 {
		years, err := parseYearField(fields[5])
		if err != nil {
			return nil, err
		}
		sched.years = years
	}
	return sched, nil
}

// Next returns the earliest matching instant strictly after t, or the
// zero time when the year constraint leaves no future match.
func (s *Schedule) Next(t time.Time) time.Time {
	n := s.inner.Next(t)
	if s.years == nil {
		return n
	}
	// The year filter skips whole years at a time, so even a sparse
	// constraint terminates quickly.
	for i := 0; i <= maxYear-minYear; i++ {
		if n.IsZero() || n.Year() > maxYear {
			return time.Time{}
		}
		if _, ok := s.years[n.Year()]; ok {
			return n
		}
		startOfNextYear := time.Date(n.Year()+1, time.January, 1, 0, 0, 0, 0, n.Location())
		n = s.inner.Next(startOfNextYear.Add(-time.Second))
	}
	return time.Time{}
}

func parseYearField(field string) (map[int]struct{}, error) {
	if field == "*" {
		return nil, nil
	}
	years := make(map[int]struct{})
	for _, token := range strings.Split(field, ",") {
		lo, hi, err := parseYearToken(token)
		if err != nil {
			return nil, err
		}
		for y := lo; y <= hi; y++ {
			years[y] = struct{}{}
		}
	}
	return years, nil
}

func parseYearToken(token string) (int, int, error) {
	invalid := func(reason string) error {
		return &clip.ValidationError{
			Field:  "cron_expression",
			Reason: fmt.Sprintf("year token %q: %s", token, reason),
		}
	}

	var lo, hi int
	if before, after, ok := strings.Cut(token, "-"); ok {
		var err error
		if lo, err = strconv.Atoi(before); err != nil {
			return 0, 0, invalid("not a number")
		}
		if hi, err = strconv.Atoi(after); err != nil {
			return 0, 0, invalid("not a number")
		}
	} else {
		y, err := strconv.Atoi(token)
		if err != nil {
			return 0, 0, invalid("not a number")
		}
		lo, hi = y, y
	}
	if lo < minYear || hi > maxYear {
		return 0, 0, invalid(fmt.Sprintf("outside %d-%d", minYear, maxYear))
	}
	if lo > hi {
		return 0, 0, invalid("range start after end")
	}
	return lo, hi, nil
}
