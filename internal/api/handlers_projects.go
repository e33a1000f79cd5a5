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

	"github.com/go-chi/chi/v5"

	"github.com/aiviz/citewatch/internal/storage"
)

type createProjectRequest struct {
	Name              string   `json:"name" validate:"required"`
	PrimaryDomain     string   `json:"primary_domain" validate:"required"`
	CompetitorDomains []string `json:"competitor_domains" validate:"max=10"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	project := &storage.Project{
		Name:              req.Name,
		PrimaryDomain:     req.PrimaryDomain,
		CompetitorDomains: storage.StringList(req.CompetitorDomains),
	}
	if err := s.projects.Create(r.Context(), project); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	projects, err := s.projects.List(r.Context(), activeOnly)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.GetByID(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

type updateProjectRequest struct {
	Name          *string `json:"name"`
	PrimaryDomain *string `json:"primary_domain"`
	IsActive      *bool   `json:"is_active"`
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req updateProjectRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	project, err := s.projects.Update(r.Context(), chi.URLParam(r, "projectID"), storage.ProjectUpdate{
		Name:          req.Name,
		PrimaryDomain: req.PrimaryDomain,
		IsActive:      req.IsActive,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.Delete(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type competitorRequest struct {
	Domain string `json:"domain" validate:"required"`
}

func (s *Server) handleAddCompetitor(w http.ResponseWriter, r *http.Request) {
	var req competitorRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	project, err := s.projects.AddCompetitor(r.Context(), chi.URLParam(r, "projectID"), req.Domain)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleRemoveCompetitor(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.RemoveCompetitor(r.Context(),
		chi.URLParam(r, "projectID"), chi.URLParam(r, "domain"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

type createKeywordRequest struct {
	KeywordText   string `json:"keyword_text" validate:"required"`
	PriorityLevel int    `json:"priority_level" validate:"omitempty,gte=1,lte=5"`
	FunnelStage   string `json:"funnel_stage" validate:"omitempty,oneof=awareness consideration decision"`
}

func (s *Server) handleCreateKeyword(w http.ResponseWriter, r *http.Request) {
	var req createKeywordRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	keyword := &storage.Keyword{
		ProjectID:     chi.URLParam(r, "projectID"),
		KeywordText:   req.KeywordText,
		PriorityLevel: req.PriorityLevel,
		FunnelStage:   req.FunnelStage,
	}
	if err := s.keywords.Create(r.Context(), keyword); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, keyword)
}

func (s *Server) handleListKeywords(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	keywords, err := s.keywords.ListByProject(r.Context(), chi.URLParam(r, "projectID"), activeOnly)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, keywords)
}

type updateKeywordRequest struct {
	KeywordText   *string `json:"keyword_text"`
	PriorityLevel *int    `json:"priority_level"`
	FunnelStage   *string `json:"funnel_stage"`
	IsActive      *bool   `json:"is_active"`
}

func (s *Server) handleUpdateKeyword(w http.ResponseWriter, r *http.Request) {
	var req updateKeywordRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	keyword, err := s.keywords.Update(r.Context(), chi.URLParam(r, "keywordID"), storage.KeywordUpdate{
		KeywordText:   req.KeywordText,
		PriorityLevel: req.PriorityLevel,
		FunnelStage:   req.FunnelStage,
		IsActive:      req.IsActive,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, keyword)
}

func (s *Server) handleDeleteKeyword(w http.ResponseWriter, r *http.Request) {
	if err := s.keywords.Delete(r.Context(), chi.URLParam(r, "keywordID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
