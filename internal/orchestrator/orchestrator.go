// Package orchestrator coordinates crawl runs: quota, batching,
// classification, scoring and persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-kpop/pulse-crawler/internal/classify"
	"github.com/pulse-kpop/pulse-crawler/internal/clip"
	"github.com/pulse-kpop/pulse-crawler/internal/metrics"
	"github.com/pulse-kpop/pulse-crawler/internal/parse"
	"github.com/pulse-kpop/pulse-crawler/internal/quota"
	"github.com/pulse-kpop/pulse-crawler/internal/schedule"
	"github.com/pulse-kpop/pulse-crawler/internal/score"
)

// Run-guard labels. Full-roster and single-subject runs may overlap,
// but never two runs with the same label.
const fullRosterLabel = "full-roster"

func subjectLabel(id string) string { return "subject:" + id }

// Config holds orchestration knobs.
type Config struct {
	// BatchSize is how many subjects crawl concurrently.
	BatchSize int
	// InterBatchPause separates consecutive batches.
	InterBatchPause time.Duration
	// PerSubjectCap stops a subject's crawl after this many upserts.
	PerSubjectCap int
	// SubjectCostEstimate is the assumed quota cost of one subject,
	// used for pre-truncation on full-roster runs.
	SubjectCostEstimate int
	// RecencyWindow bounds how far back searches look.
	RecencyWindow time.Duration
	// MaxResults is the page size requested from the provider.
	MaxResults int
	// HighlightTerms are appended to each subject name to build search
	// keywords, e.g. "직캠" and "fancam".
	HighlightTerms []string
}

// DefaultConfig returns production orchestration defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:           5,
		InterBatchPause:     time.Second,
		PerSubjectCap:       50,
		SubjectCostEstimate: 110,
		RecencyWindow:       365 * 24 * time.Hour,
		MaxResults:          50,
		HighlightTerms:      []string{"직캠", "fancam"},
	}
}

// Summary is the outcome of one crawl run.
type Summary struct {
	SubjectsCrawled int
	ClipsSaved      int
	QuotaUsed       int
}

// Orchestrator runs crawls. It owns CrawlRun state transitions and the
// single-flight run guard.
type Orchestrator struct {
	subjects   clip.SubjectStore
	clips      clip.ClipStore
	provider   clip.SearchProvider
	runStore   clip.RunStore
	tracker    *quota.Tracker
	classifier *classify.Classifier
	scorer     *score.Scorer
	retry      *clip.RetryPolicy
	idGen      clip.IDGenerator
	clock      clip.Clock
	logger     *zap.Logger
	cfg        Config

	mu       sync.Mutex
	inFlight map[string]struct{}
	runs     sync.WaitGroup
}

// New builds an orchestrator.
func New(
	subjects clip.SubjectStore,
	clips clip.ClipStore,
	provider clip.SearchProvider,
	runStore clip.RunStore,
	tracker *quota.Tracker,
	classifier *classify.Classifier,
	scorer *score.Scorer,
	idGen clip.IDGenerator,
	clock clip.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.MaxResults <= 0 || cfg.MaxResults > 50 {
		cfg.MaxResults = 50
	}
	return &Orchestrator{
		subjects:   subjects,
		clips:      clips,
		provider:   provider,
		runStore:   runStore,
		tracker:    tracker,
		classifier: classifier,
		scorer:     scorer,
		retry:      clip.NewRetryPolicy(),
		idGen:      idGen,
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
		inFlight:   make(map[string]struct{}),
	}
}

// Status reports the in-flight run labels and quota state.
type Status struct {
	InFlight   []string `json:"in_flight"`
	QuotaUsed  int      `json:"quota_used"`
	QuotaLimit int      `json:"quota_limit"`
}

// Status returns a snapshot of the orchestrator state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	labels := make([]string, 0, len(o.inFlight))
	for label := range o.inFlight {
		labels = append(labels, label)
	}
	o.mu.Unlock()
	sort.Strings(labels)
	return Status{
		InFlight:   labels,
		QuotaUsed:  o.tracker.Used(),
		QuotaLimit: o.tracker.Limit(),
	}
}

func (o *Orchestrator) acquire(label string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, held := o.inFlight[label]; held {
		return false
	}
	o.inFlight[label] = struct{}{}
	return true
}

func (o *Orchestrator) release(label string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, label)
}

// SubmitFullRoster starts a full-roster crawl in the background and
// returns its pending run record. A run already in flight is rejected,
// not queued.
func (o *Orchestrator) SubmitFullRoster(ctx context.Context, params clip.CrawlParameters) (clip.CrawlRun, error) {
	return o.submit(ctx, fullRosterLabel, params, func(ctx context.Context) (Summary, error) {
		return o.crawlFullRoster(ctx, params)
	})
}

// SubmitSubject starts a single-subject crawl in the background.
func (o *Orchestrator) SubmitSubject(ctx context.Context, subjectID string, params clip.CrawlParameters) (clip.CrawlRun, error) {
	subject, err := o.subjects.GetSubject(ctx, subjectID)
	if err != nil {
		return clip.CrawlRun{}, err
	}
	params.Subject = subject.Name
	return o.submit(ctx, subjectLabel(subject.ID), params, func(ctx context.Context) (Summary, error) {
		return o.crawlSingleSubject(ctx, subject, params)
	})
}

// submit acquires the run guard, records a pending run, and executes the
// body in the background. The guard is held for the whole execution.
func (o *Orchestrator) submit(ctx context.Context, label string, params clip.CrawlParameters, body func(context.Context) (Summary, error)) (clip.CrawlRun, error) {
	if !o.acquire(label) {
		return clip.CrawlRun{}, fmt.Errorf("%s: %w", label, clip.ErrRunInFlight)
	}

	id, err := o.idGen.NewID()
	if err != nil {
		o.release(label)
		return clip.CrawlRun{}, err
	}
	run := clip.CrawlRun{ID: id, Status: clip.RunStatusPending, Params: params}
	if err := o.runStore.Save(run); err != nil {
		o.release(label)
		return clip.CrawlRun{}, err
	}

	// The run outlives the triggering request: detach from its
	// cancellation but keep its values. Drain waits on the counter.
	runCtx := context.WithoutCancel(ctx)
	o.runs.Add(1)
	go func() {
		defer o.runs.Done()
		defer o.release(label)
		o.execute(runCtx, label, run, body)
	}()
	return run, nil
}

// RunScheduled implements schedule.Runner: scheduled jobs execute
// synchronously inside the scheduler's tracked goroutine.
func (o *Orchestrator) RunScheduled(ctx context.Context, job schedule.Job) error {
	metrics.ObserveJobFire()

	label := fullRosterLabel
	body := func(ctx context.Context) (Summary, error) {
		return o.crawlFullRoster(ctx, job.Params)
	}
	if job.Params.Subject != "" {
		subject, err := o.subjects.FindSubjectByName(ctx, job.Params.Subject)
		if err != nil {
			return fmt.Errorf("resolve subject %q: %w", job.Params.Subject, err)
		}
		label = subjectLabel(subject.ID)
		body = func(ctx context.Context) (Summary, error) {
			return o.crawlSingleSubject(ctx, subject, job.Params)
		}
	}

	if !o.acquire(label) {
		return fmt.Errorf("%s: %w", label, clip.ErrRunInFlight)
	}
	defer o.release(label)

	id, err := o.idGen.NewID()
	if err != nil {
		return err
	}
	run := clip.CrawlRun{ID: id, Status: clip.RunStatusPending, Params: job.Params}
	if err := o.runStore.Save(run); err != nil {
		return err
	}
	o.execute(ctx, label, run, body)
	return nil
}

// execute drives one run through running → completed/failed and keeps
// the run store current at every transition.
func (o *Orchestrator) execute(ctx context.Context, label string, run clip.CrawlRun, body func(context.Context) (Summary, error)) {
	start := o.clock.Now().UTC()
	run.Status = clip.RunStatusRunning
	run.StartTime = &start
	if err := o.runStore.Save(run); err != nil {
		o.logger.Error("failed to persist run start", zap.String("run_id", run.ID), zap.Error(err))
	}
	o.logger.Info("crawl run started", zap.String("run_id", run.ID), zap.String("scope", label))

	summary, err := body(ctx)

	end := o.clock.Now().UTC()
	run.EndTime = &end
	if err != nil {
		run.Status = clip.RunStatusFailed
		run.Result = &clip.RunResult{Error: err.Error()}
		o.logger.Error("crawl run failed",
			zap.String("run_id", run.ID),
			zap.String("scope", label),
			zap.Error(err))
	} else {
		run.Status = clip.RunStatusCompleted
		run.Result = &clip.RunResult{
			Message: fmt.Sprintf("crawled %d subjects, saved %d clips, used %d quota units",
				summary.SubjectsCrawled, summary.ClipsSaved, summary.QuotaUsed),
		}
		o.logger.Info("crawl run completed",
			zap.String("run_id", run.ID),
			zap.String("scope", label),
			zap.Int("subjects", summary.SubjectsCrawled),
			zap.Int("clips_saved", summary.ClipsSaved),
			zap.Int("quota_used", summary.QuotaUsed))
	}
	metrics.ObserveRun(label, string(run.Status))
	if err := o.runStore.Save(run); err != nil {
		o.logger.Error("failed to persist run result", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// Drain blocks until every submitted run has reached a terminal state.
// Used on shutdown so no run record is left stuck in running.
func (o *Orchestrator) Drain() {
	o.runs.Wait()
}

// crawlFullRoster crawls every active subject in quota-bounded batches,
// then refreshes subject counts and resets the quota tracker.
func (o *Orchestrator) crawlFullRoster(ctx context.Context, params clip.CrawlParameters) (Summary, error) {
	subjects, err := o.subjects.ListSubjects(ctx, true)
	if err != nil {
		return Summary{}, fmt.Errorf("list subjects: %w", err)
	}
	subjects = o.truncateToQuota(subjects)

	var (
		summary Summary
		mu      sync.Mutex
	)
	for start := 0; start < len(subjects); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(subjects) {
			end = len(subjects)
		}

		var wg sync.WaitGroup
		for _, subject := range subjects[start:end] {
			wg.Add(1)
			go func(subject clip.Subject) {
				defer wg.Done()
				saved := o.crawlSubject(ctx, subject, params)
				mu.Lock()
				summary.SubjectsCrawled++
				summary.ClipsSaved += saved
				mu.Unlock()
			}(subject)
		}
		wg.Wait()

		if end < len(subjects) {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(o.cfg.InterBatchPause):
			}
		}
	}

	summary.QuotaUsed = o.tracker.Used()
	if err := o.subjects.RefreshSubjectCounts(ctx); err != nil {
		o.logger.Error("subject count refresh failed", zap.Error(err))
	}
	o.tracker.Reset()
	metrics.SetQuotaUsed(o.tracker.Used())
	return summary, nil
}

// crawlSingleSubject runs one subject without quota pre-truncation and
// without resetting the tracker afterward, so cumulative usage stays
// observable across on-demand runs.
func (o *Orchestrator) crawlSingleSubject(ctx context.Context, subject clip.Subject, params clip.CrawlParameters) (Summary, error) {
	before := o.tracker.Used()
	saved := o.crawlSubject(ctx, subject, params)
	return Summary{
		SubjectsCrawled: 1,
		ClipsSaved:      saved,
		QuotaUsed:       o.tracker.Used() - before,
	}, nil
}

// truncateToQuota drops trailing subjects when the estimated total cost
// exceeds the quota ceiling. Order is preserved.
func (o *Orchestrator) truncateToQuota(subjects []clip.Subject) []clip.Subject {
	est := o.cfg.SubjectCostEstimate
	if est <= 0 || len(subjects)*est <= o.tracker.Limit() {
		return subjects
	}
	keep := o.tracker.Limit() / est
	o.logger.Warn("quota ceiling truncates roster",
		zap.Int("subjects", len(subjects)),
		zap.Int("kept", keep),
		zap.Int("cost_estimate", est),
		zap.Int("quota_limit", o.tracker.Limit()))
	return subjects[:keep]
}

// crawlSubject crawls one subject across its keyword variants until the
// per-subject cap or the quota budget is reached. Errors are logged and
// end the subject's crawl for this cycle; they are never fatal to the
// run.
func (o *Orchestrator) crawlSubject(ctx context.Context, subject clip.Subject, params clip.CrawlParameters) int {
	log := o.logger.With(zap.String("subject_id", subject.ID), zap.String("subject", subject.Name))

	limit := o.cfg.PerSubjectCap
	if params.Limit > 0 && params.Limit < limit {
		limit = params.Limit
	}

	// Keyword variants overlap; a clip seen under one keyword must not
	// count again under the next.
	seen := make(map[string]struct{})

	saved := 0
	for _, keyword := range o.keywordVariants(subject) {
		if saved >= limit {
			break
		}
		n, err := o.crawlKeyword(ctx, subject, keyword, limit-saved, params.Persist(), seen)
		saved += n
		if errors.Is(err, clip.ErrQuotaExhausted) {
			log.Warn("quota exhausted, stopping subject crawl", zap.Int("saved", saved))
			break
		}
		if err != nil {
			log.Error("subject crawl abandoned for this cycle",
				zap.String("keyword", keyword),
				zap.Int("saved", saved),
				zap.Error(err))
			break
		}
	}

	metrics.ObserveSubjectCrawled()
	metrics.SetQuotaUsed(o.tracker.Used())
	log.Info("subject crawl finished", zap.Int("saved", saved))
	return saved
}

// crawlKeyword searches one keyword and keeps up to remaining relevant
// clips, persisting them unless the run asked not to. It returns
// ErrQuotaExhausted when the budget refuses a reservation.
func (o *Orchestrator) crawlKeyword(ctx context.Context, subject clip.Subject, keyword string, remaining int, persist bool, seen map[string]struct{}) (int, error) {
	if !o.tracker.Reserve(quota.SearchCost) {
		return 0, clip.ErrQuotaExhausted
	}
	metrics.ObserveProviderCall("search")

	maxResults := o.cfg.MaxResults
	if remaining < maxResults {
		maxResults = remaining
	}
	page, err := o.provider.Search(ctx, keyword, clip.SearchOptions{
		MaxResults:     maxResults,
		PublishedAfter: o.clock.Now().Add(-o.cfg.RecencyWindow),
		Order:          "date",
	})
	if err != nil {
		return 0, fmt.Errorf("search %q: %w", keyword, err)
	}
	if len(page.IDs) == 0 {
		return 0, nil
	}

	if !o.tracker.Reserve(len(page.IDs) * quota.DetailsCost) {
		return 0, clip.ErrQuotaExhausted
	}
	metrics.ObserveProviderCall("details")

	clips, err := o.provider.Details(ctx, page.IDs)
	if err != nil {
		return 0, fmt.Errorf("details for %q: %w", keyword, err)
	}

	saved := 0
	for _, c := range clips {
		if saved >= remaining {
			break
		}
		key := c.Platform + "/" + c.ExternalID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if !o.classifier.Relevant(c) {
			continue
		}
		c.IsHighlight = true
		c.QualityScore = o.scorer.Score(c, o.classifier.Trusted(c.ChannelTitle))
		parsedSubject, event := parse.Title(c.Title)
		c.SubjectID = subject.ID
		c.SubjectName = subject.Name
		if parsedSubject != "" {
			c.SubjectName = parsedSubject
		}
		c.EventName = event

		// A dry run counts what it would have saved.
		if !persist {
			saved++
			continue
		}

		created, err := o.upsert(ctx, c)
		if err != nil {
			o.logger.Warn("upsert failed, skipping clip",
				zap.String("external_id", c.ExternalID),
				zap.Error(err))
			continue
		}
		if created {
			saved++
		}
	}
	return saved, nil
}

// upsert persists one clip with transient-error retries. Duplicates are
// not an error: the existing record stays untouched and created is
// false.
func (o *Orchestrator) upsert(ctx context.Context, c clip.Clip) (bool, error) {
	var created bool
	err := o.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		_, created, err = o.clips.Upsert(ctx, c)
		if err != nil {
			return err
		}
		metrics.ObserveUpsert(created)
		return nil
	})
	return created, err
}

// keywordVariants builds the search keyword set for a subject: each
// highlight term for the primary name, the subject's custom keywords,
// and the same terms for every alternate name.
func (o *Orchestrator) keywordVariants(subject clip.Subject) []string {
	seen := make(map[string]struct{})
	var keywords []string
	add := func(kw string) {
		if kw == "" {
			return
		}
		if _, ok := seen[kw]; ok {
			return
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
	}

	for _, term := range o.cfg.HighlightTerms {
		add(subject.Name + " " + term)
	}
	for _, kw := range subject.SearchKeywords {
		add(kw)
	}
	for _, alt := range subject.AlternateNames {
		for _, term := range o.cfg.HighlightTerms {
			add(alt + " " + term)
		}
	}
	return keywords
}
