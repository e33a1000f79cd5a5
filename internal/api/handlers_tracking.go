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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aiviz/citewatch/pkg/scheduler"
)

type trackKeywordRequest struct {
	Platforms []string `json:"platforms"`
}

// handleTrackKeyword runs the engine synchronously and returns per-platform
// results, so partial success is visible to the caller.
func (s *Server) handleTrackKeyword(w http.ResponseWriter, r *http.Request) {
	var req trackKeywordRequest
	if r.ContentLength > 0 {
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}
	platforms, err := parsePlatforms(req.Platforms)
	if err != nil {
		s.writeError(w, err)
		return
	}

	keyword, err := s.keywords.GetByID(r.Context(), chi.URLParam(r, "keywordID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	project, err := s.projects.GetByID(r.Context(), keyword.ProjectID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	results := s.tracker.TrackKeyword(r.Context(), project, keyword, platforms)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"keyword_id": keyword.ID,
		"results":    results,
	})
}

type trackProjectRequest struct {
	Platforms  []string `json:"platforms"`
	KeywordIDs []string `json:"keyword_ids"`
}

// handleTrackProject enqueues a batch through the broker and returns a
// handle immediately; no detached work runs in the request process.
func (s *Server) handleTrackProject(w http.ResponseWriter, r *http.Request) {
	var req trackProjectRequest
	if r.ContentLength > 0 {
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}
	platforms, err := parsePlatforms(req.Platforms)
	if err != nil {
		s.writeError(w, err)
		return
	}

	projectID := chi.URLParam(r, "projectID")
	if _, err := s.projects.GetByID(r.Context(), projectID); err != nil {
		s.writeError(w, err)
		return
	}

	created, err := s.scheduler.ScheduleJobs(r.Context(), scheduler.ScheduleRequest{
		ProjectID:  projectID,
		KeywordIDs: req.KeywordIDs,
		Platforms:  platforms,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	jobIDs := make([]string, 0, len(created))
	for _, job := range created {
		jobIDs = append(jobIDs, job.ID)
	}
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"project_id": projectID,
		"scheduled":  len(created),
		"job_ids":    jobIDs,
	})
}

func (s *Server) handleTrackingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.scheduler.Status(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

type scheduleJobsRequest struct {
	ProjectID   string   `json:"project_id" validate:"required"`
	KeywordIDs  []string `json:"keyword_ids"`
	Platforms   []string `json:"platforms"`
	ScheduledAt string   `json:"scheduled_at"`
}

func (s *Server) handleScheduleJobs(w http.ResponseWriter, r *http.Request) {
	var req scheduleJobsRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	platforms, err := parsePlatforms(req.Platforms)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var scheduledAt time.Time
	if req.ScheduledAt != "" {
		scheduledAt, err = time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	created, err := s.scheduler.ScheduleJobs(r.Context(), scheduler.ScheduleRequest{
		ProjectID:   req.ProjectID,
		KeywordIDs:  req.KeywordIDs,
		Platforms:   platforms,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"scheduled": len(created),
		"jobs":      created,
	})
}

type quickTestRequest struct {
	Keyword   string   `json:"keyword" validate:"required"`
	Domain    string   `json:"domain"`
	Platforms []string `json:"platforms"`
}

// handleQuickTest runs the pipeline without persisting anything.
func (s *Server) handleQuickTest(w http.ResponseWriter, r *http.Request) {
	var req quickTestRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	platforms, err := parsePlatforms(req.Platforms)
	if err != nil {
		s.writeError(w, err)
		return
	}

	results := s.tracker.QuickTest(r.Context(), req.Keyword, req.Domain, platforms)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"keyword": req.Keyword,
		"domain":  req.Domain,
		"results": results,
	})
}
