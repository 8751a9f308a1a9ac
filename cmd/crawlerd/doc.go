// Package main hosts the clip crawler daemon entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, crawl trigger, scheduled-job
//     management, and run history endpoints. Crawl triggers return 202 with a pending run
//     record; duplicate triggers for the same scope are rejected with 409 while in flight.
//   - Scheduler: internal/schedule owns cron-expression jobs persisted to a JSON file. A
//     1-second tick fires due jobs through the orchestrator, and an hourly reconcile pass
//     repairs next-run timestamps that drifted while the process was down.
//   - Crawl pipeline: the orchestrator walks the active subject roster in batches, searches
//     the YouTube Data API per keyword variant, filters candidates through the classifier,
//     scores survivors, parses subject/event metadata out of titles, and upserts clips with
//     platform+external-ID dedup. A quota tracker bounds daily API unit spend and the roster
//     is pre-truncated when the remaining budget cannot cover every subject.
//   - Persistence: clips and subjects live in Postgres (pgx pool) or an in-memory store
//     selected by database.backend; run history and scheduled jobs persist as JSON files
//     with atomic rename writes.
//   - Configuration & plumbing: Viper populates config from env/files (PULSE_ prefix); zap
//     provides structured logging; Prometheus metrics are exported via /metrics.
//
// Operational notes:
//   - Concurrency model: one crawl run per scope at a time, subjects fan out in bounded
//     batches inside a run. Shutdown is coordinated via context cancellation from main
//     through the scheduler into in-flight runs.
//   - Quota: search costs 100 units, each video detail 1 unit. Refusals latch the tracker
//     exhausted until a full-roster run completes and resets it.
//   - Run locally: go run ./cmd/crawlerd -config config.yaml (or rely solely on env
//     overrides such as PULSE_YOUTUBE_API_KEY and PULSE_DATABASE_DSN).
package main
