// Package api exposes the administrative HTTP interface for the
// crawler daemon.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pulse-kpop/pulse-crawler/internal/clip"
	"github.com/pulse-kpop/pulse-crawler/internal/metrics"
	"github.com/pulse-kpop/pulse-crawler/internal/orchestrator"
	"github.com/pulse-kpop/pulse-crawler/internal/schedule"
)

// Config holds API server knobs.
type Config struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the orchestrator, scheduler and run
// history.
type Server struct {
	router    chi.Router
	orch      *orchestrator.Orchestrator
	scheduler *schedule.Scheduler
	runStore  clip.RunStore
	subjects  clip.SubjectStore
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	orch *orchestrator.Orchestrator,
	scheduler *schedule.Scheduler,
	runStore clip.RunStore,
	subjects clip.SubjectStore,
	cfg Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		orch:      orch,
		scheduler: scheduler,
		runStore:  runStore,
		subjects:  subjects,
		logger:    logger,
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(timeout))
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawl", s.triggerFullCrawl)
		r.Post("/crawl/subjects/{subject_id}", s.triggerSubjectCrawl)
		r.Get("/status", s.status)

		r.Post("/scheduler/pause", s.pauseScheduler)
		r.Post("/scheduler/resume", s.resumeScheduler)

		r.Route("/scheduled-jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Post("/", s.createJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Put("/", s.updateJob)
				r.Delete("/", s.deleteJob)
				r.Patch("/status", s.patchJobStatus)
			})
		})

		r.Route("/subjects", func(r chi.Router) {
			r.Get("/", s.listSubjects)
			r.Get("/{subject_id}", s.getSubject)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Get("/{run_id}", s.getRun)
			r.Delete("/{run_id}", s.deleteRun)
		})
		r.Get("/stats", s.stats)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) triggerFullCrawl(w http.ResponseWriter, r *http.Request) {
	var params clip.CrawlParameters
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	run, err := s.orch.SubmitFullRoster(r.Context(), params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) triggerSubjectCrawl(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subject_id")
	var params clip.CrawlParameters
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	run, err := s.orch.SubmitSubject(r.Context(), subjectID, params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	orchStatus := s.orch.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"scheduler_paused": s.scheduler.Paused(),
		"in_flight":        orchStatus.InFlight,
		"quota_used":       orchStatus.QuotaUsed,
		"quota_limit":      orchStatus.QuotaLimit,
	})
}

func (s *Server) pauseScheduler(w http.ResponseWriter, _ *http.Request) {
	s.scheduler.Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) resumeScheduler(w http.ResponseWriter, _ *http.Request) {
	s.scheduler.Resume()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

type jobRequest struct {
	Name           string               `json:"name"`
	CronExpression string               `json:"cron_expression"`
	Params         clip.CrawlParameters `json:"params"`
	IsActive       bool                 `json:"is_active"`
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.scheduler.Jobs()})
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.scheduler.Create(req.Name, req.CronExpression, req.Params, req.IsActive)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.scheduler.Job(chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) updateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.scheduler.Update(chi.URLParam(r, "job_id"), req.Name, req.CronExpression, req.Params, req.IsActive)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Delete(chi.URLParam(r, "job_id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) patchJobStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "is_active is required")
		return
	}
	job, err := s.scheduler.SetActive(chi.URLParam(r, "job_id"), *req.IsActive)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) listSubjects(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("active") == "true"
	subjects, err := s.subjects.ListSubjects(r.Context(), onlyActive)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subjects": subjects})
}

func (s *Server) getSubject(w http.ResponseWriter, r *http.Request) {
	subject, err := s.subjects.GetSubject(r.Context(), chi.URLParam(r, "subject_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subject)
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.runStore.List()})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runStore.Get(chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.runStore.Delete(chi.URLParam(r, "run_id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runStore.Stats())
}

// writeDomainError maps domain errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var ve *clip.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, clip.ErrRunInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, clip.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
