/*
Copyright 2025 The Citewatch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package api is the HTTP control surface over the core services. Tenancy
// and authentication are enforced upstream; handlers here translate JSON
// requests into core operations and typed errors into status codes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aiviz/citewatch/internal/storage"
	"github.com/aiviz/citewatch/pkg/provider"
	"github.com/aiviz/citewatch/pkg/scheduler"
	"github.com/aiviz/citewatch/pkg/scoring"
	sharederrors "github.com/aiviz/citewatch/pkg/shared/errors"
	"github.com/aiviz/citewatch/pkg/tracking"
)

// ProjectStore is the project repository surface the API consumes.
type ProjectStore interface {
	Create(ctx context.Context, p *storage.Project) error
	GetByID(ctx context.Context, id string) (*storage.Project, error)
	List(ctx context.Context, activeOnly bool) ([]storage.Project, error)
	Update(ctx context.Context, id string, upd storage.ProjectUpdate) (*storage.Project, error)
	Delete(ctx context.Context, id string) error
	AddCompetitor(ctx context.Context, projectID, domain string) (*storage.Project, error)
	RemoveCompetitor(ctx context.Context, projectID, domain string) (*storage.Project, error)
}

// KeywordStore is the keyword repository surface the API consumes.
type KeywordStore interface {
	Create(ctx context.Context, kw *storage.Keyword) error
	GetByID(ctx context.Context, id string) (*storage.Keyword, error)
	ListByProject(ctx context.Context, projectID string, activeOnly bool) ([]storage.Keyword, error)
	Update(ctx context.Context, id string, upd storage.KeywordUpdate) (*storage.Keyword, error)
	Delete(ctx context.Context, id string) error
}

// Tracker is the tracking engine surface the API consumes.
type Tracker interface {
	TrackKeyword(ctx context.Context, project *storage.Project, keyword *storage.Keyword,
		platforms []provider.Platform) []tracking.TrackResult
	QuickTest(ctx context.Context, queryText, domain string, platforms []provider.Platform) []tracking.TrackResult
}

// Scheduler is the job scheduling surface the API consumes.
type Scheduler interface {
	ScheduleJobs(ctx context.Context, req scheduler.ScheduleRequest) ([]storage.TrackingJob, error)
	Status(ctx context.Context, projectID string) (*scheduler.TrackingStatus, error)
}

// Insights is the scoring surface the API consumes.
type Insights interface {
	ComputeVisibilityScore(ctx context.Context, projectID string, asOf time.Time) (*storage.VisibilityScore, error)
	CalculateShareOfVoice(ctx context.Context, projectID string) ([]scoring.ShareEntry, error)
	TrendingKeywords(ctx context.Context, projectID string, limit int) ([]scoring.TrendingKeyword, error)
	GenerateDailyMetrics(ctx context.Context, projectID string, date time.Time) error
}

// ScoreStore reads the persisted score series.
type ScoreStore interface {
	Latest(ctx context.Context, projectID string) (*storage.VisibilityScore, error)
	History(ctx context.Context, projectID string, days int) ([]storage.VisibilityScore, error)
}

// MetricStore reads daily metrics.
type MetricStore interface {
	ListRange(ctx context.Context, projectID string, from, to time.Time, platform string) ([]storage.DailyMetric, error)
}

// AlertStore is the alert repository surface the API consumes.
type AlertStore interface {
	List(ctx context.Context, f storage.AlertFilter) ([]storage.Alert, error)
	UnreadCount(ctx context.Context, projectID string) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, projectID string) (int64, error)
	Delete(ctx context.Context, id string) error
}

// Server wires the routes over the core services.
type Server struct {
	projects  ProjectStore
	keywords  KeywordStore
	tracker   Tracker
	scheduler Scheduler
	insights  Insights
	scores    ScoreStore
	metrics   MetricStore
	alerts    AlertStore
	registry  *provider.Registry
	validate  *validator.Validate
	logger    *zap.Logger
	router    chi.Router
}

// NewServer builds the API router.
func NewServer(projects ProjectStore, keywords KeywordStore, tracker Tracker, sched Scheduler,
	insights Insights, scores ScoreStore, metrics MetricStore, alerts AlertStore,
	registry *provider.Registry, logger *zap.Logger) *Server {

	s := &Server{
		projects:  projects,
		keywords:  keywords,
		tracker:   tracker,
		scheduler: sched,
		insights:  insights,
		scores:    scores,
		metrics:   metrics,
		alerts:    alerts,
		registry:  registry,
		validate:  validator.New(),
		logger:    logger.Named("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)
			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", s.handleGetProject)
				r.Patch("/", s.handleUpdateProject)
				r.Delete("/", s.handleDeleteProject)

				r.Post("/competitors", s.handleAddCompetitor)
				r.Delete("/competitors/{domain}", s.handleRemoveCompetitor)

				r.Get("/keywords", s.handleListKeywords)
				r.Post("/keywords", s.handleCreateKeyword)

				r.Post("/track", s.handleTrackProject)
				r.Get("/tracking-status", s.handleTrackingStatus)

				r.Get("/dashboard", s.handleDashboard)
				r.Post("/dashboard/refresh", s.handleRefreshDashboard)
				r.Get("/score-history", s.handleScoreHistory)
				r.Get("/daily-metrics", s.handleDailyMetrics)
				r.Get("/share-of-voice", s.handleShareOfVoice)
				r.Get("/trends", s.handleTrends)

				r.Get("/alerts", s.handleListAlerts)
				r.Get("/alerts/unread-count", s.handleUnreadCount)
				r.Post("/alerts/read-all", s.handleMarkAllRead)
			})
		})

		r.Route("/keywords/{keywordID}", func(r chi.Router) {
			r.Patch("/", s.handleUpdateKeyword)
			r.Delete("/", s.handleDeleteKeyword)
			r.Post("/track", s.handleTrackKeyword)
		})

		r.Route("/alerts/{alertID}", func(r chi.Router) {
			r.Post("/read", s.handleMarkRead)
			r.Delete("/", s.handleDeleteAlert)
		})

		r.Post("/jobs/schedule", s.handleScheduleJobs)
		r.Post("/quick-test", s.handleQuickTest)
		r.Get("/providers", s.handleProviders)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProviders reports every registered adapter's health and window.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	type providerStatus struct {
		Platform  string                   `json:"platform"`
		Healthy   bool                     `json:"healthy"`
		Error     string                   `json:"error,omitempty"`
		RateLimit provider.RateLimitStatus `json:"rate_limit"`
	}

	statuses := make([]providerStatus, 0, s.registry.Len())
	for _, platform := range s.registry.Platforms() {
		adapter, _ := s.registry.Get(platform)
		status := providerStatus{
			Platform:  string(platform),
			RateLimit: adapter.RateLimitStatus(),
		}
		checkCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		if err := adapter.Healthcheck(checkCtx); err != nil {
			status.Error = err.Error()
		} else {
			status.Healthy = true
		}
		cancel()
		statuses = append(statuses, status)
	}
	s.writeJSON(w, http.StatusOK, statuses)
}

// decode unmarshals and validates a JSON request body.
func (s *Server) decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return sharederrors.ValidationError("body", "invalid JSON")
	}
	if err := s.validate.Struct(dst); err != nil {
		return sharederrors.ValidationError("body", err.Error())
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// writeError maps core errors onto HTTP statuses. Typed variants stay in
// the core; translation happens only here.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case strings.Contains(err.Error(), "validation failed"):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// parsePlatforms validates an optional platform list.
func parsePlatforms(names []string) ([]provider.Platform, error) {
	platforms := make([]provider.Platform, 0, len(names))
	for _, name := range names {
		if !provider.IsKnownPlatform(name) {
			return nil, sharederrors.ValidationError("platforms", "unknown platform "+name)
		}
		platforms = append(platforms, provider.Platform(name))
	}
	return platforms, nil
}
