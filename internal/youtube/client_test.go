package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}, zap.NewNop())
}

func TestClient_Search(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "장원영 직캠", q.Get("q"))
		require.Equal(t, "date", q.Get("order"))
		require.Equal(t, "25", q.Get("maxResults"))
		require.Equal(t, "test-key", q.Get("key"))
		require.NotEmpty(t, q.Get("publishedAfter"))

		fmt.Fprint(w, `{
			"nextPageToken": "page-2",
			"items": [
				{"id": {"videoId": "vid-1"}},
				{"id": {"videoId": "vid-2"}},
				{"id": {}}
			]
		}`)
	}))

	page, err := c.Search(context.Background(), "장원영 직캠", clip.SearchOptions{
		MaxResults:     25,
		Order:          "date",
		PublishedAfter: time.Now().AddDate(-1, 0, 0),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"vid-1", "vid-2"}, page.IDs)
	require.Equal(t, "page-2", page.NextPageToken)
}

func TestClient_DetailsSkipsUnmappable(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/videos", r.URL.Path)
		require.Equal(t, "vid-1,vid-2", r.URL.Query().Get("id"))

		fmt.Fprint(w, `{
			"items": [
				{
					"id": "vid-1",
					"snippet": {
						"title": "ok",
						"publishedAt": "2023-03-25T12:00:00Z",
						"channelId": "c1",
						"channelTitle": "channel"
					},
					"contentDetails": {"duration": "PT3M"},
					"statistics": {"viewCount": "100"}
				},
				{
					"id": "vid-2",
					"snippet": {"title": "broken", "publishedAt": "garbage"}
				}
			]
		}`)
	}))

	clips, err := c.Details(context.Background(), []string{"vid-1", "vid-2"})
	require.NoError(t, err)
	require.Len(t, clips, 1)
	require.Equal(t, "vid-1", clips[0].ExternalID)
}

func TestClient_DetailsBatchLimit(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{}, zap.NewNop())
	ids := make([]string, 51)
	for i := range ids {
		ids[i] = fmt.Sprintf("vid-%d", i)
	}
	_, err := c.Details(context.Background(), ids)
	var ve *clip.ValidationError
	require.ErrorAs(t, err, &ve)

	clips, err := c.Details(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, clips)
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"items": [{"id": {"videoId": "vid-1"}}]}`)
	}))
	c.retry = clip.NewRetryPolicyWith(3, time.Millisecond, 2*time.Millisecond)

	page, err := c.Search(context.Background(), "query", clip.SearchOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"vid-1"}, page.IDs)
	require.Equal(t, int32(2), calls.Load())
}

func TestClient_PermanentStatusNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": {"message": "quotaExceeded"}}`)
	}))

	_, err := c.Search(context.Background(), "query", clip.SearchOptions{})
	require.Error(t, err)
	require.False(t, clip.IsTransient(err))
	require.Equal(t, int32(1), calls.Load())
}
