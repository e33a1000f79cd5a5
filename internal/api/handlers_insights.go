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

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aiviz/citewatch/internal/storage"
)

// handleDashboard assembles the read model in one response: current score,
// unread alerts, share of voice, and top trending keywords. Values are the
// last persisted ones; staleness is visible via calculated_at.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	dashboard := map[string]interface{}{"project": project}

	score, err := s.scores.Latest(ctx, projectID)
	switch {
	case err == nil:
		dashboard["score"] = score
	case errors.Is(err, storage.ErrNotFound):
		dashboard["score"] = nil
	default:
		s.writeError(w, err)
		return
	}

	if unread, err := s.alerts.UnreadCount(ctx, projectID); err == nil {
		dashboard["unread_alerts"] = unread
	}
	if shares, err := s.insights.CalculateShareOfVoice(ctx, projectID); err == nil {
		dashboard["share_of_voice"] = shares
	}
	if trends, err := s.insights.TrendingKeywords(ctx, projectID, 5); err == nil {
		dashboard["trending_keywords"] = trends
	}

	to := time.Now()
	if metrics, err := s.metrics.ListRange(ctx, projectID, to.AddDate(0, 0, -7), to, ""); err == nil {
		dashboard["daily_metrics_7d"] = metrics
	}

	s.writeJSON(w, http.StatusOK, dashboard)
}

// handleRefreshDashboard recomputes the score and today's metrics
// synchronously, then returns the fresh score.
func (s *Server) handleRefreshDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")

	score, err := s.insights.ComputeVisibilityScore(ctx, projectID, time.Time{})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.insights.GenerateDailyMetrics(ctx, projectID, time.Now()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleScoreHistory(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	history, err := s.scores.History(r.Context(), chi.URLParam(r, "projectID"), days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleDailyMetrics(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	platform := r.URL.Query().Get("platform")
	to := time.Now()

	metrics, err := s.metrics.ListRange(r.Context(), chi.URLParam(r, "projectID"),
		to.AddDate(0, 0, -days), to, platform)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleShareOfVoice(w http.ResponseWriter, r *http.Request) {
	shares, err := s.insights.CalculateShareOfVoice(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, shares)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	trends, err := s.insights.TrendingKeywords(r.Context(), chi.URLParam(r, "projectID"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trends)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
