package youtube

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

type searchResponse struct {
	NextPageToken string       `json:"nextPageToken"`
	Items         []searchItem `json:"items"`
}

type searchItem struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
}

type videosResponse struct {
	Items []videoItem `json:"items"`
}

type videoItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title        string               `json:"title"`
		Description  string               `json:"description"`
		PublishedAt  string               `json:"publishedAt"`
		ChannelID    string               `json:"channelId"`
		ChannelTitle string               `json:"channelTitle"`
		Tags         []string             `json:"tags"`
		Thumbnails   map[string]thumbnail `json:"thumbnails"`
	} `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount    string `json:"viewCount"`
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
}

type thumbnail struct {
	URL string `json:"url"`
}

// thumbnailOrder is the resolution preference, best first.
var thumbnailOrder = []string{"maxres", "standard", "high", "medium", "default"}

var durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// mapVideo converts one API item into a Clip. A missing id or an
// unparseable publish timestamp makes the record unusable.
func mapVideo(item videoItem) (clip.Clip, error) {
	if item.ID == "" {
		return clip.Clip{}, &clip.MappingError{ExternalID: item.ID, Err: fmt.Errorf("missing video id")}
	}
	publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
	if err != nil {
		return clip.Clip{}, &clip.MappingError{ExternalID: item.ID, Err: fmt.Errorf("publishedAt %q: %w", item.Snippet.PublishedAt, err)}
	}
	duration, err := parseISODuration(item.ContentDetails.Duration)
	if err != nil {
		return clip.Clip{}, &clip.MappingError{ExternalID: item.ID, Err: err}
	}

	return clip.Clip{
		Platform:     clip.PlatformYouTube,
		ExternalID:   item.ID,
		Title:        item.Snippet.Title,
		ChannelID:    item.Snippet.ChannelID,
		ChannelTitle: item.Snippet.ChannelTitle,
		PublishedAt:  publishedAt,
		Description:  item.Snippet.Description,
		ThumbnailURL: bestThumbnail(item.ID, item.Snippet.Thumbnails),
		ViewCount:    statCount(item.Statistics.ViewCount),
		LikeCount:    statCount(item.Statistics.LikeCount),
		CommentCount: statCount(item.Statistics.CommentCount),
		Duration:     duration,
		Tags:         item.Snippet.Tags,
	}, nil
}

// bestThumbnail picks the highest-resolution thumbnail present, falling
// back to the predictable hqdefault URL when the API returns none.
func bestThumbnail(videoID string, thumbs map[string]thumbnail) string {
	for _, key := range thumbnailOrder {
		if t, ok := thumbs[key]; ok && t.URL != "" {
			return t.URL
		}
	}
	return fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoID)
}

// parseISODuration parses the API's ISO-8601 duration subset, e.g.
// "PT3M21S", "PT1H2M", "P1DT2H".
func parseISODuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("duration %q: unrecognized format", s)
	}
	var d time.Duration
	for i, unit := range []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("duration %q: %w", s, err)
		}
		d += time.Duration(n) * unit
	}
	return d, nil
}

// statCount parses a statistics counter; the API omits counters the
// uploader has hidden, which count as zero.
func statCount(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
