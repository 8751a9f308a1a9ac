package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulse-kpop/pulse-crawler/internal/classify"
	"github.com/pulse-kpop/pulse-crawler/internal/clip"
	"github.com/pulse-kpop/pulse-crawler/internal/metrics"
	"github.com/pulse-kpop/pulse-crawler/internal/quota"
	"github.com/pulse-kpop/pulse-crawler/internal/runs"
	"github.com/pulse-kpop/pulse-crawler/internal/schedule"
	"github.com/pulse-kpop/pulse-crawler/internal/score"
	"github.com/pulse-kpop/pulse-crawler/internal/store/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type fakeProvider struct {
	mu       sync.Mutex
	searches []string
	ids      []string
	details  map[string]clip.Clip
	block    chan struct{}
}

func (p *fakeProvider) Search(ctx context.Context, query string, _ clip.SearchOptions) (clip.SearchPage, error) {
	p.mu.Lock()
	p.searches = append(p.searches, query)
	block := p.block
	p.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return clip.SearchPage{}, ctx.Err()
		}
	}
	return clip.SearchPage{IDs: p.ids}, nil
}

func (p *fakeProvider) Details(_ context.Context, ids []string) ([]clip.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]clip.Clip, 0, len(ids))
	for _, id := range ids {
		if c, ok := p.details[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *fakeProvider) searchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.searches)
}

func relevantClip(id string) clip.Clip {
	return clip.Clip{
		Platform:     clip.PlatformYouTube,
		ExternalID:   id,
		Title:        "[4K] 아이브 장원영 직캠 @음악중심 230325",
		ChannelTitle: "some channel",
		PublishedAt:  time.Date(2023, 3, 25, 12, 0, 0, 0, time.UTC),
		ViewCount:    50000,
		LikeCount:    2000,
		Duration:     3 * time.Minute,
	}
}

type fixture struct {
	orch     *Orchestrator
	store    *memory.Store
	runStore *runs.Store
	provider *fakeProvider
	tracker  *quota.Tracker
}

func newFixture(t *testing.T, cfg Config, quotaLimit int, provider *fakeProvider) *fixture {
	t.Helper()

	clock := &fixedClock{now: time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)}
	idGen := &seqIDGen{}
	store := memory.New(idGen, clock)
	runStore, err := runs.NewStore(filepath.Join(t.TempDir(), "runs.json"), runs.DefaultRetention, clock, zap.NewNop())
	require.NoError(t, err)
	tracker := quota.NewTracker(quotaLimit)

	classifier := classify.New(classify.Config{
		Keywords:    []string{"직캠", "fancam"},
		Disallowed:  []string{"reaction"},
		MinDuration: 30 * time.Second,
		MinViews:    1000,
	})

	orch := New(store, store, provider, runStore, tracker, classifier,
		score.New(score.DefaultConfig()), idGen, clock, cfg, zap.NewNop())
	return &fixture{orch: orch, store: store, runStore: runStore, provider: provider, tracker: tracker}
}

func TestKeywordVariants(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig(), 10000, &fakeProvider{})

	subject := clip.Subject{
		Name:           "장원영",
		AlternateNames: []string{"Wonyoung"},
		SearchKeywords: []string{"장원영 fancam", "원영 무대"},
	}
	got := f.orch.keywordVariants(subject)
	require.Equal(t, []string{
		"장원영 직캠",
		"장원영 fancam",
		"원영 무대",
		"Wonyoung 직캠",
		"Wonyoung fancam",
	}, got)
}

func TestTruncateToQuota_PreservesOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig(), 10000, &fakeProvider{})

	subjects := make([]clip.Subject, 200)
	for i := range subjects {
		subjects[i] = clip.Subject{ID: fmt.Sprintf("subj-%03d", i), Active: true}
	}
	kept := f.orch.truncateToQuota(subjects)
	require.Len(t, kept, 90)
	for i, subj := range kept {
		require.Equal(t, fmt.Sprintf("subj-%03d", i), subj.ID)
	}

	// A roster that fits is untouched.
	small := subjects[:10]
	require.Len(t, f.orch.truncateToQuota(small), 10)
}

func TestRunScheduled_FullRoster(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		ids: []string{"vid-1", "vid-2"},
		details: map[string]clip.Clip{
			"vid-1": relevantClip("vid-1"),
			"vid-2": {
				Platform:   clip.PlatformYouTube,
				ExternalID: "vid-2",
				Title:      "not a highlight at all",
				ViewCount:  50,
			},
		},
	}
	cfg := DefaultConfig()
	cfg.InterBatchPause = time.Millisecond
	f := newFixture(t, cfg, 10000, provider)

	f.store.PutSubject(clip.Subject{ID: "subj-1", Name: "장원영", Active: true})
	f.store.PutSubject(clip.Subject{ID: "subj-2", Name: "카즈하", Active: false})

	err := f.orch.RunScheduled(context.Background(), schedule.Job{ID: "job-1", Name: "nightly"})
	require.NoError(t, err)

	// Only the relevant clip of the active subject was saved.
	saved, err := f.store.FindByExternalID(context.Background(), clip.PlatformYouTube, "vid-1")
	require.NoError(t, err)
	require.True(t, saved.IsHighlight)
	require.Greater(t, saved.QualityScore, 0.0)
	require.Equal(t, "subj-1", saved.SubjectID)
	require.Equal(t, "장원영 (아이브)", saved.SubjectName)
	require.Equal(t, "음악중심 2023-03-25", saved.EventName)

	_, err = f.store.FindByExternalID(context.Background(), clip.PlatformYouTube, "vid-2")
	require.ErrorIs(t, err, clip.ErrNotFound)

	// Full-roster runs reset the quota tracker at the end.
	require.Equal(t, 0, f.tracker.Used())

	// The subject count refresh ran.
	subj, err := f.store.GetSubject(context.Background(), "subj-1")
	require.NoError(t, err)
	require.Equal(t, 1, subj.ClipCount)

	// The run record is terminal and summarized.
	list := f.runStore.List()
	require.Len(t, list, 1)
	require.Equal(t, clip.RunStatusCompleted, list[0].Status)
	require.NotNil(t, list[0].StartTime)
	require.NotNil(t, list[0].EndTime)
	require.Contains(t, list[0].Result.Message, "saved 1 clips")
}

func TestRunScheduled_SingleSubjectKeepsQuota(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		ids:     []string{"vid-1"},
		details: map[string]clip.Clip{"vid-1": relevantClip("vid-1")},
	}
	f := newFixture(t, DefaultConfig(), 10000, provider)
	f.store.PutSubject(clip.Subject{ID: "subj-1", Name: "장원영", AlternateNames: []string{"Wonyoung"}, Active: true})

	err := f.orch.RunScheduled(context.Background(), schedule.Job{
		ID:     "job-1",
		Params: clip.CrawlParameters{Subject: "wonyoung"},
	})
	require.NoError(t, err)

	// Single-subject runs never reset the tracker.
	require.Greater(t, f.tracker.Used(), 0)

	list := f.runStore.List()
	require.Len(t, list, 1)
	require.Equal(t, clip.RunStatusCompleted, list[0].Status)
}

func TestRunScheduled_UnknownSubject(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig(), 10000, &fakeProvider{})

	err := f.orch.RunScheduled(context.Background(), schedule.Job{
		ID:     "job-1",
		Params: clip.CrawlParameters{Subject: "nobody"},
	})
	require.ErrorIs(t, err, clip.ErrNotFound)
	require.Empty(t, f.runStore.List())
}

func TestPerSubjectCapShortCircuits(t *testing.T) {
	t.Parallel()

	ids := make([]string, 10)
	details := make(map[string]clip.Clip, 10)
	for i := range ids {
		id := fmt.Sprintf("vid-%d", i)
		ids[i] = id
		details[id] = relevantClip(id)
	}
	provider := &fakeProvider{ids: ids, details: details}

	cfg := DefaultConfig()
	cfg.PerSubjectCap = 3
	f := newFixture(t, cfg, 10000, provider)
	f.store.PutSubject(clip.Subject{ID: "subj-1", Name: "장원영", Active: true})

	err := f.orch.RunScheduled(context.Background(), schedule.Job{
		ID:     "job-1",
		Params: clip.CrawlParameters{Subject: "장원영"},
	})
	require.NoError(t, err)

	// The cap stops after three upserts and skips the second keyword.
	require.Equal(t, 1, f.provider.searchCount())
	for i := 0; i < 3; i++ {
		_, err := f.store.FindByExternalID(context.Background(), clip.PlatformYouTube, fmt.Sprintf("vid-%d", i))
		require.NoError(t, err)
	}
	_, err = f.store.FindByExternalID(context.Background(), clip.PlatformYouTube, "vid-3")
	require.ErrorIs(t, err, clip.ErrNotFound)
}

func TestQuotaExhaustionStopsCalls(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		ids:     []string{"vid-1"},
		details: map[string]clip.Clip{"vid-1": relevantClip("vid-1")},
	}
	// Enough for one search but not its details lookup.
	f := newFixture(t, DefaultConfig(), 100, provider)
	f.store.PutSubject(clip.Subject{ID: "subj-1", Name: "장원영", Active: true})

	err := f.orch.RunScheduled(context.Background(), schedule.Job{
		ID:     "job-1",
		Params: clip.CrawlParameters{Subject: "장원영"},
	})
	require.NoError(t, err)

	// One search went out; the refused details reservation latched the
	// tracker and no further provider calls were made.
	require.Equal(t, 1, f.provider.searchCount())
	require.Equal(t, 0, len(f.runStore.List()[0].Result.Error))
	require.Equal(t, clip.RunStatusCompleted, f.runStore.List()[0].Status)

	_, err = f.store.FindByExternalID(context.Background(), clip.PlatformYouTube, "vid-1")
	require.ErrorIs(t, err, clip.ErrNotFound)
}

func TestSubmitFullRoster_SingleFlight(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	provider := &fakeProvider{
		ids:     []string{"vid-1"},
		details: map[string]clip.Clip{"vid-1": relevantClip("vid-1")},
		block:   block,
	}
	f := newFixture(t, DefaultConfig(), 10000, provider)
	f.store.PutSubject(clip.Subject{ID: "subj-1", Name: "장원영", Active: true})

	run, err := f.orch.SubmitFullRoster(context.Background(), clip.CrawlParameters{})
	require.NoError(t, err)
	require.Equal(t, clip.RunStatusPending, run.Status)

	require.Eventually(t, func() bool {
		return len(f.orch.Status().InFlight) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"full-roster"}, f.orch.Status().InFlight)

	// A duplicate trigger is rejected, not queued.
	_, err = f.orch.SubmitFullRoster(context.Background(), clip.CrawlParameters{})
	require.ErrorIs(t, err, clip.ErrRunInFlight)

	// A single-subject run proceeds independently.
	subjectRun, err := f.orch.SubmitSubject(context.Background(), "subj-1", clip.CrawlParameters{})
	require.NoError(t, err)
	require.NotEqual(t, run.ID, subjectRun.ID)

	close(block)
	require.Eventually(t, func() bool {
		return len(f.orch.Status().InFlight) == 0
	}, 2*time.Second, 5*time.Millisecond)

	got, err := f.runStore.Get(run.ID)
	require.NoError(t, err)
	require.Equal(t, clip.RunStatusCompleted, got.Status)
}

func TestSubmitSubject_UnknownSubject(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig(), 10000, &fakeProvider{})

	_, err := f.orch.SubmitSubject(context.Background(), "missing", clip.CrawlParameters{})
	require.ErrorIs(t, err, clip.ErrNotFound)
}

func TestLimitParamCapsSavedClips(t *testing.T) {
	t.Parallel()

	ids := make([]string, 5)
	details := make(map[string]clip.Clip, 5)
	for i := range ids {
		id := fmt.Sprintf("vid-%d", i)
		ids[i] = id
		details[id] = relevantClip(id)
	}
	provider := &fakeProvider{ids: ids, details: details}
	f := newFixture(t, DefaultConfig(), 10000, provider)
	f.store.PutSubject(clip.Subject{ID: "subj-1", Name: "장원영", Active: true})

	err := f.orch.RunScheduled(context.Background(), schedule.Job{
		ID:     "job-1",
		Params: clip.CrawlParameters{Subject: "장원영", Limit: 2},
	})
	require.NoError(t, err)

	// Two clips saved, then the run-level limit stops the subject.
	for i := 0; i < 2; i++ {
		_, err := f.store.FindByExternalID(context.Background(), clip.PlatformYouTube, fmt.Sprintf("vid-%d", i))
		require.NoError(t, err)
	}
	_, err = f.store.FindByExternalID(context.Background(), clip.PlatformYouTube, "vid-2")
	require.ErrorIs(t, err, clip.ErrNotFound)
	require.Equal(t, 1, f.provider.searchCount())
}

func TestSaveToDBFalseSkipsPersistence(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		ids:     []string{"vid-1"},
		details: map[string]clip.Clip{"vid-1": relevantClip("vid-1")},
	}
	f := newFixture(t, DefaultConfig(), 10000, provider)
	f.store.PutSubject(clip.Subject{ID: "subj-1", Name: "장원영", Active: true})

	noSave := false
	err := f.orch.RunScheduled(context.Background(), schedule.Job{
		ID:     "job-1",
		Params: clip.CrawlParameters{Subject: "장원영", SaveToDB: &noSave},
	})
	require.NoError(t, err)

	// The relevant clip was counted but never written.
	_, err = f.store.FindByExternalID(context.Background(), clip.PlatformYouTube, "vid-1")
	require.ErrorIs(t, err, clip.ErrNotFound)

	list := f.runStore.List()
	require.Len(t, list, 1)
	require.Equal(t, clip.RunStatusCompleted, list[0].Status)
	require.Contains(t, list[0].Result.Message, "saved 1 clips")
}

func TestDrainWaitsForSubmittedRuns(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	provider := &fakeProvider{
		ids:     []string{"vid-1"},
		details: map[string]clip.Clip{"vid-1": relevantClip("vid-1")},
		block:   block,
	}
	f := newFixture(t, DefaultConfig(), 10000, provider)
	f.store.PutSubject(clip.Subject{ID: "subj-1", Name: "장원영", Active: true})

	ctx, cancel := context.WithCancel(context.Background())
	run, err := f.orch.SubmitFullRoster(ctx, clip.CrawlParameters{})
	require.NoError(t, err)

	// Cancelling the submitter must not abort the run.
	cancel()
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()

	f.orch.Drain()

	got, err := f.runStore.Get(run.ID)
	require.NoError(t, err)
	require.Equal(t, clip.RunStatusCompleted, got.Status)
	_, err = f.store.FindByExternalID(context.Background(), clip.PlatformYouTube, "vid-1")
	require.NoError(t, err)
}
