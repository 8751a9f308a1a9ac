// Package main wires together the clip crawler daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-kpop/pulse-crawler/internal/api"
	"github.com/pulse-kpop/pulse-crawler/internal/classify"
	"github.com/pulse-kpop/pulse-crawler/internal/clip"
	"github.com/pulse-kpop/pulse-crawler/internal/clock/system"
	"github.com/pulse-kpop/pulse-crawler/internal/config"
	"github.com/pulse-kpop/pulse-crawler/internal/id/uuid"
	"github.com/pulse-kpop/pulse-crawler/internal/logging"
	"github.com/pulse-kpop/pulse-crawler/internal/metrics"
	"github.com/pulse-kpop/pulse-crawler/internal/orchestrator"
	"github.com/pulse-kpop/pulse-crawler/internal/quota"
	"github.com/pulse-kpop/pulse-crawler/internal/runs"
	"github.com/pulse-kpop/pulse-crawler/internal/schedule"
	"github.com/pulse-kpop/pulse-crawler/internal/score"
	memorystore "github.com/pulse-kpop/pulse-crawler/internal/store/memory"
	postgresstore "github.com/pulse-kpop/pulse-crawler/internal/store/postgres"
	"github.com/pulse-kpop/pulse-crawler/internal/youtube"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	var (
		subjectStore clip.SubjectStore
		clipStore    clip.ClipStore
		closeStore   func()
	)
	switch cfg.Database.Backend {
	case "postgres":
		pg, err := postgresstore.New(ctx, postgresstore.Config{
			DSN:             cfg.Database.DSN,
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.ConnLifetime(),
		}, idGen, clock)
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		subjectStore, clipStore, closeStore = pg, pg, pg.Close
	default:
		mem := memorystore.New(idGen, clock)
		subjectStore, clipStore, closeStore = mem, mem, func() {}
	}
	defer closeStore()

	provider := youtube.NewClient(youtube.Config{
		APIKey:       cfg.YouTube.APIKey,
		BaseURL:      cfg.YouTube.BaseURL,
		CallInterval: cfg.YouTube.CallInterval(),
		Timeout:      cfg.YouTube.Timeout(),
	}, logger.Named("youtube"))

	runStore, err := runs.NewStore(cfg.Runs.Path, cfg.Runs.Retention(), clock, logger.Named("runs"))
	if err != nil {
		logger.Fatal("run store init failed", zap.Error(err))
	}

	orch := orchestrator.New(
		subjectStore,
		clipStore,
		provider,
		runStore,
		quota.NewTracker(cfg.Quota.DailyLimit),
		classify.New(classify.Config{
			Keywords:        cfg.Classify.Keywords,
			Disallowed:      cfg.Classify.Disallowed,
			TrustedChannels: cfg.Classify.TrustedChannels,
			MinDuration:     time.Duration(cfg.Classify.MinDurationSeconds) * time.Second,
			MinViews:        cfg.Classify.MinViews,
		}),
		score.New(score.DefaultConfig()),
		idGen,
		clock,
		orchestrator.Config{
			BatchSize:           cfg.Crawl.BatchSize,
			InterBatchPause:     time.Duration(cfg.Crawl.InterBatchPauseSec) * time.Second,
			PerSubjectCap:       cfg.Crawl.PerSubjectCap,
			SubjectCostEstimate: cfg.Crawl.SubjectCostEstimate,
			RecencyWindow:       time.Duration(cfg.Crawl.RecencyWindowDays) * 24 * time.Hour,
			MaxResults:          cfg.Crawl.MaxResults,
			HighlightTerms:      cfg.Crawl.HighlightTerms,
		},
		logger.Named("orchestrator"),
	)

	jobStore, err := schedule.NewFileStore(cfg.Scheduler.JobsPath)
	if err != nil {
		logger.Fatal("job store init failed", zap.Error(err))
	}
	scheduler := schedule.NewScheduler(jobStore, orch, idGen, clock, schedule.Config{
		TickInterval:      cfg.Scheduler.Tick(),
		ReconcileInterval: cfg.Scheduler.ReconcileInterval(),
	}, logger.Named("scheduler"))

	apiServer := api.NewServer(orch, scheduler, runStore, subjectStore, api.Config{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: cfg.RequestTimeout(),
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		logger.Info("scheduler started")
		scheduler.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	// The scheduler stops ticking on ctx cancel but waits for its job
	// bodies; API-triggered runs drain separately.
	<-schedDone
	orch.Drain()
	logger.Info("shutdown complete")
}
