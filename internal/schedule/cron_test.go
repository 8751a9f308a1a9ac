package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

func TestParseCron_FiveFields(t *testing.T) {
	t.Parallel()

	s, err := ParseCron("30 3 * * *")
	require.NoError(t, err)

	at := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	next := s.Next(at)
	require.Equal(t, time.Date(2023, 6, 2, 3, 30, 0, 0, time.UTC), next)
	require.True(t, next.After(at))
}

func TestParseCron_NextStrictlyAfter(t *testing.T) {
	t.Parallel()

	s, err := ParseCron("0 * * * *")
	require.NoError(t, err)

	// Exactly on a match boundary: the result is the following match.
	at := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2023, 6, 1, 13, 0, 0, 0, time.UTC), s.Next(at))
}

func TestParseCron_SixFieldYear(t *testing.T) {
	t.Parallel()

	s, err := ParseCron("0 0 1 1 * 2027")
	require.NoError(t, err)

	at := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), s.Next(at))
}

func TestParseCron_YearRangeAndList(t *testing.T) {
	t.Parallel()

	s, err := ParseCron("0 12 * * * 2025-2026,2030")
	require.NoError(t, err)

	at := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	next := s.Next(at)
	require.Equal(t, 2025, next.Year())

	afterRange := time.Date(2026, 12, 31, 13, 0, 0, 0, time.UTC)
	require.Equal(t, 2030, s.Next(afterRange).Year())
}

func TestParseCron_YearWildcard(t *testing.T) {
	t.Parallel()

	s, err := ParseCron("15 9 * * 1 *")
	require.NoError(t, err)

	next := s.Next(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, time.Monday, next.Weekday())
	require.Equal(t, 9, next.Hour())
	require.Equal(t, 15, next.Minute())
}

func TestParseCron_ExhaustedYearsYieldZero(t *testing.T) {
	t.Parallel()

	s, err := ParseCron("0 0 1 1 * 2020")
	require.NoError(t, err)
	require.True(t, s.Next(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)).IsZero())
}

func TestParseCron_Malformed(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"* * *",
		"* * * * * * *",
		"61 * * * *",
		"* 25 * * *",
		"not a cron at all x",
		"0 0 * * * 1800",
		"0 0 * * * 2030-2020",
		"0 0 * * * banana",
	}
	for _, expr := range cases {
		_, err := ParseCron(expr)
		var ve *clip.ValidationError
		require.ErrorAs(t, err, &ve, expr)
	}
}
