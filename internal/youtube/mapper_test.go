package youtube

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

func TestParseISODuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Duration
	}{
		{"PT3M21S", 3*time.Minute + 21*time.Second},
		{"PT1H2M3S", time.Hour + 2*time.Minute + 3*time.Second},
		{"PT45S", 45 * time.Second},
		{"PT2H", 2 * time.Hour},
		{"P1DT2H", 26 * time.Hour},
		{"PT0S", 0},
		{"", 0},
	}
	for _, tc := range tests {
		got, err := parseISODuration(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err := parseISODuration("3 minutes")
	require.Error(t, err)
}

func TestBestThumbnail(t *testing.T) {
	t.Parallel()

	thumbs := map[string]thumbnail{
		"default": {URL: "https://i.ytimg.com/vi/abc/default.jpg"},
		"high":    {URL: "https://i.ytimg.com/vi/abc/hqdefault.jpg"},
		"maxres":  {URL: "https://i.ytimg.com/vi/abc/maxresdefault.jpg"},
	}
	require.Equal(t, "https://i.ytimg.com/vi/abc/maxresdefault.jpg", bestThumbnail("abc", thumbs))

	delete(thumbs, "maxres")
	require.Equal(t, "https://i.ytimg.com/vi/abc/hqdefault.jpg", bestThumbnail("abc", thumbs))

	// No thumbnails at all: predictable fallback URL.
	require.Equal(t, "https://i.ytimg.com/vi/abc/hqdefault.jpg", bestThumbnail("abc", nil))
}

func TestMapVideo(t *testing.T) {
	t.Parallel()

	item := videoItem{ID: "vid123"}
	item.Snippet.Title = "[4K] 아이브 장원영 직캠"
	item.Snippet.PublishedAt = "2023-03-25T12:00:00Z"
	item.Snippet.ChannelID = "chan1"
	item.Snippet.ChannelTitle = "MBCkpop"
	item.Snippet.Tags = []string{"fancam"}
	item.ContentDetails.Duration = "PT3M30S"
	item.Statistics.ViewCount = "120000"
	item.Statistics.LikeCount = "8000"
	item.Statistics.CommentCount = "450"

	got, err := mapVideo(item)
	require.NoError(t, err)
	require.Equal(t, clip.PlatformYouTube, got.Platform)
	require.Equal(t, "vid123", got.ExternalID)
	require.Equal(t, int64(120000), got.ViewCount)
	require.Equal(t, 3*time.Minute+30*time.Second, got.Duration)
	require.Equal(t, "https://i.ytimg.com/vi/vid123/hqdefault.jpg", got.ThumbnailURL)
	require.Equal(t, time.Date(2023, 3, 25, 12, 0, 0, 0, time.UTC), got.PublishedAt)
}

func TestMapVideo_Errors(t *testing.T) {
	t.Parallel()

	var me *clip.MappingError

	item := videoItem{}
	_, err := mapVideo(item)
	require.ErrorAs(t, err, &me)

	item = videoItem{ID: "vid123"}
	item.Snippet.PublishedAt = "not a timestamp"
	_, err = mapVideo(item)
	require.ErrorAs(t, err, &me)
	require.Equal(t, "vid123", me.ExternalID)
}

func TestStatCount_HiddenCounters(t *testing.T) {
	t.Parallel()
	require.Equal(t, int64(0), statCount(""))
	require.Equal(t, int64(0), statCount("hidden"))
	require.Equal(t, int64(42), statCount("42"))
}
