package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
)

// Runner executes the body of a fired job.
type Runner interface {
	RunScheduled(ctx context.Context, job Job) error
}

// Config holds scheduler knobs.
type Config struct {
	// TickInterval is how often due jobs are checked.
	TickInterval time.Duration
	// ReconcileInterval is how often drifted next-run timestamps are
	// repaired, e.g. after a process restart.
	ReconcileInterval time.Duration
}

// Scheduler owns ScheduledJob state: it decides when jobs fire and is
// the only writer of their last/next run bookkeeping.
type Scheduler struct {
	store  *FileStore
	runner Runner
	idGen  clip.IDGenerator
	clock  clip.Clock
	logger *zap.Logger

	tickInterval      time.Duration
	reconcileInterval time.Duration

	mu     sync.Mutex
	paused bool

	wg sync.WaitGroup
}

// errNotDue short-circuits a fire that lost the race with another tick.
var errNotDue = errors.New("job not due")

// NewScheduler builds a scheduler around a job store and a runner.
func NewScheduler(store *FileStore, runner Runner, idGen clip.IDGenerator, clock clip.Clock, cfg Config, logger *zap.Logger) *Scheduler {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	reconcile := cfg.ReconcileInterval
	if reconcile <= 0 {
		reconcile = time.Hour
	}
	return &Scheduler{
		store:             store,
		runner:            runner,
		idGen:             idGen,
		clock:             clock,
		logger:            logger,
		tickInterval:      tick,
		reconcileInterval: reconcile,
	}
}

// Create validates and persists a new job. An active job gets its next
// run computed immediately; nothing is persisted on validation failure.
func (s *Scheduler) Create(name, cronExpr string, params clip.CrawlParameters, active bool) (Job, error) {
	if name == "" {
		return Job{}, &clip.ValidationError{Field: "name", Reason: "job name is required"}
	}
	sched, err := ParseCron(cronExpr)
	if err != nil {
		return Job{}, err
	}
	id, err := s.idGen.NewID()
	if err != nil {
		return Job{}, err
	}

	now := s.clock.Now().UTC()
	job := Job{
		ID:             id,
		Name:           name,
		CronExpression: cronExpr,
		Params:         params,
		IsActive:       active,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if active {
		job.NextRun = nextOrNil(sched, now)
	}
	if err := s.store.Put(job); err != nil {
		return Job{}, err
	}
	s.logger.Info("scheduled job created",
		zap.String("job_id", job.ID),
		zap.String("name", job.Name),
		zap.String("cron", job.CronExpression))
	return job, nil
}

// Update replaces a job's definition. The cron expression is validated
// before any state is touched.
func (s *Scheduler) Update(id, name, cronExpr string, params clip.CrawlParameters, active bool) (Job, error) {
	if name == "" {
		return Job{}, &clip.ValidationError{Field: "name", Reason: "job name is required"}
	}
	sched, err := ParseCron(cronExpr)
	if err != nil {
		return Job{}, err
	}

	now := s.clock.Now().UTC()
	return s.store.Mutate(id, func(j *Job) error {
		j.Name = name
		j.CronExpression = cronExpr
		j.Params = params
		j.IsActive = active
		j.UpdatedAt = now
		if active {
			j.NextRun = nextOrNil(sched, now)
		} else {
			j.NextRun = nil
		}
		return nil
	})
}

// SetActive toggles a job. Activation recomputes the next run
// immediately; deactivation clears it and leaves last-run untouched.
func (s *Scheduler) SetActive(id string, active bool) (Job, error) {
	now := s.clock.Now().UTC()
	return s.store.Mutate(id, func(j *Job) error {
		j.IsActive = active
		j.UpdatedAt = now
		if !active {
			j.NextRun = nil
			return nil
		}
		sched, err := ParseCron(j.CronExpression)
		if err != nil {
			return err
		}
		j.NextRun = nextOrNil(sched, now)
		return nil
	})
}

// Delete removes a job definition.
func (s *Scheduler) Delete(id string) error {
	return s.store.Delete(id)
}

// Jobs lists all job definitions.
func (s *Scheduler) Jobs() []Job {
	return s.store.List()
}

// Job returns one job definition.
func (s *Scheduler) Job(id string) (Job, error) {
	return s.store.Get(id)
}

// Pause stops firing new jobs; in-flight job bodies run to completion.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.logger.Info("scheduler paused")
}

// Resume re-enables firing.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.logger.Info("scheduler resumed")
}

// Paused reports whether firing is suspended.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Run drives the tick loop until ctx is cancelled, then waits for
// in-flight job bodies to finish. No job error or panic stops the loop.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	reconcile := time.NewTicker(s.reconcileInterval)
	defer reconcile.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("tick_interval", s.tickInterval),
		zap.Duration("reconcile_interval", s.reconcileInterval))
	s.Reconcile()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping, waiting for in-flight jobs")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-reconcile.C:
			s.Reconcile()
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.Paused() {
		return
	}
	now := s.clock.Now().UTC()
	for _, job := range s.store.List() {
		if !job.IsActive || job.NextRun == nil || job.NextRun.After(now) {
			continue
		}
		s.fire(ctx, job.ID, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, jobID string, now time.Time) {
	updated, err := s.store.Mutate(jobID, func(j *Job) error {
		if !j.IsActive || j.NextRun == nil || j.NextRun.After(now) {
			return errNotDue
		}
		sched, err := ParseCron(j.CronExpression)
		if err != nil {
			return err
		}
		j.LastRun = &now
		j.NextRun = nextOrNil(sched, now)
		j.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errNotDue) {
		return
	}
	if err != nil {
		s.logger.Error("failed to mark job fired", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	s.logger.Info("firing scheduled job",
		zap.String("job_id", updated.ID),
		zap.String("name", updated.Name))

	// Job bodies run to their natural end: shutdown waits for them via
	// the WaitGroup instead of cancelling them mid-crawl.
	jobCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func(job Job) {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled job panicked",
					zap.String("job_id", job.ID),
					zap.Any("panic", r))
			}
		}()
		if err := s.runner.RunScheduled(jobCtx, job); err != nil {
			s.logger.Error("scheduled job failed",
				zap.String("job_id", job.ID),
				zap.String("name", job.Name),
				zap.Error(err))
		}
	}(updated)
}

// Reconcile repairs next-run timestamps that drifted into the past,
// e.g. while the process was down. Missed windows are skipped, not
// replayed.
func (s *Scheduler) Reconcile() {
	now := s.clock.Now().UTC()
	// Anything older than a minute cannot be a fire the tick loop is
	// about to handle.
	stale := now.Add(-time.Minute)

	for _, job := range s.store.List() {
		if !job.IsActive {
			continue
		}
		if job.NextRun != nil && !job.NextRun.Before(stale) {
			continue
		}
		_, err := s.store.Mutate(job.ID, func(j *Job) error {
			sched, err := ParseCron(j.CronExpression)
			if err != nil {
				return err
			}
			j.NextRun = nextOrNil(sched, now)
			j.UpdatedAt = now
			return nil
		})
		if err != nil {
			s.logger.Error("failed to reconcile job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		s.logger.Info("reconciled drifted next run", zap.String("job_id", job.ID))
	}
}

func nextOrNil(sched *Schedule, after time.Time) *time.Time {
	next := sched.Next(after)
	if next.IsZero() {
		return nil
	}
	next = next.UTC()
	return &next
}
