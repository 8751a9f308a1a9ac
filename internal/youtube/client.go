// Package youtube implements the search provider against the YouTube
// Data API v3.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// detailsBatchLimit is the API's ceiling for ids per videos.list call.
const detailsBatchLimit = 50

// Config holds client knobs.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
	// CallInterval paces outgoing requests. Zero disables pacing.
	CallInterval time.Duration
	Timeout      time.Duration
}

// Client talks to the YouTube Data API and implements clip.SearchProvider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	retry      *clip.RetryPolicy
	logger     *zap.Logger
}

// NewClient builds a client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.CallInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.CallInterval), 1)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    limiter,
		retry:      clip.NewRetryPolicy(),
		logger:     logger,
	}
}

// Search runs a search.list call and returns matching external ids plus
// the next page token.
func (c *Client) Search(ctx context.Context, query string, opts clip.SearchOptions) (clip.SearchPage, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 || maxResults > detailsBatchLimit {
		maxResults = detailsBatchLimit
	}
	order := opts.Order
	if order == "" {
		order = "relevance"
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", query)
	params.Set("order", order)
	params.Set("maxResults", fmt.Sprintf("%d", maxResults))
	if !opts.PublishedAfter.IsZero() {
		params.Set("publishedAfter", opts.PublishedAfter.UTC().Format(time.RFC3339))
	}
	if opts.PageToken != "" {
		params.Set("pageToken", opts.PageToken)
	}

	var resp searchResponse
	if err := c.getJSON(ctx, "/search", params, &resp); err != nil {
		return clip.SearchPage{}, fmt.Errorf("search %q: %w", query, err)
	}

	page := clip.SearchPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.ID.VideoID != "" {
			page.IDs = append(page.IDs, item.ID.VideoID)
		}
	}
	return page, nil
}

// Details hydrates up to 50 external ids via videos.list. Records that
// cannot be mapped are logged and skipped.
func (c *Client) Details(ctx context.Context, ids []string) ([]clip.Clip, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > detailsBatchLimit {
		return nil, &clip.ValidationError{Field: "ids", Reason: fmt.Sprintf("at most %d ids per call", detailsBatchLimit)}
	}

	params := url.Values{}
	params.Set("part", "snippet,contentDetails,statistics")
	params.Set("id", strings.Join(ids, ","))

	var resp videosResponse
	if err := c.getJSON(ctx, "/videos", params, &resp); err != nil {
		return nil, fmt.Errorf("details: %w", err)
	}

	clips := make([]clip.Clip, 0, len(resp.Items))
	for _, item := range resp.Items {
		mapped, err := mapVideo(item)
		if err != nil {
			c.logger.Warn("skipping unmappable video",
				zap.String("video_id", item.ID),
				zap.Error(err))
			continue
		}
		clips = append(clips, mapped)
	}
	return clips, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	endpoint := c.baseURL + path + "?" + params.Encode()

	return c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &clip.TransientError{Op: "youtube " + path, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return &clip.TransientError{
				Op:  "youtube " + path,
				Err: fmt.Errorf("status %d", resp.StatusCode),
			}
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("youtube %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("youtube %s: decode: %w", path, err)
		}
		return nil
	})
}
