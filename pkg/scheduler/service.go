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

package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aiviz/citewatch/internal/queue"
	"github.com/aiviz/citewatch/internal/storage"
	"github.com/aiviz/citewatch/pkg/provider"
	sharederrors "github.com/aiviz/citewatch/pkg/shared/errors"
)

// JobQuerier reads job status aggregates for the API surface.
type JobQuerier interface {
	JobPlanner
	CountsSince(ctx context.Context, projectID string, since time.Time) ([]storage.StatusCount, error)
	PendingCount(ctx context.Context, projectID string) (int, error)
}

// Service exposes the on-demand scheduling operations the API consumes.
// It never runs provider work itself; it persists intent and hands the
// broker a pointer.
type Service struct {
	jobs     JobQuerier
	keywords KeywordLister
	broker   Broker
	registry *provider.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewService builds the scheduling control service.
func NewService(jobs JobQuerier, keywords KeywordLister, broker Broker,
	registry *provider.Registry, logger *zap.Logger) *Service {
	return &Service{
		jobs:     jobs,
		keywords: keywords,
		broker:   broker,
		registry: registry,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
	}
}

// ScheduleRequest is a bulk scheduling order. Empty KeywordIDs means every
// active keyword; empty Platforms means every registered platform; zero
// ScheduledAt means now.
type ScheduleRequest struct {
	ProjectID   string
	KeywordIDs  []string
	Platforms   []provider.Platform
	ScheduledAt time.Time
}

// ScheduleJobs bulk-inserts pending jobs deduplicated against live rows and
// enqueues the ones actually created. It returns the created jobs.
func (s *Service) ScheduleJobs(ctx context.Context, req ScheduleRequest) ([]storage.TrackingJob, error) {
	if req.ProjectID == "" {
		return nil, sharederrors.ValidationError("project_id", "must not be empty")
	}

	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = s.registry.Platforms()
	}
	for _, platform := range platforms {
		if !provider.IsKnownPlatform(string(platform)) {
			return nil, sharederrors.ValidationError("platforms", "unknown platform "+string(platform))
		}
	}

	keywordIDs := req.KeywordIDs
	if len(keywordIDs) == 0 {
		keywords, err := s.keywords.ListByProject(ctx, req.ProjectID, true)
		if err != nil {
			return nil, err
		}
		for _, kw := range keywords {
			keywordIDs = append(keywordIDs, kw.ID)
		}
	}

	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = s.now().Truncate(time.Minute)
	}

	specs := make([]storage.JobSpec, 0, len(keywordIDs)*len(platforms))
	for _, keywordID := range keywordIDs {
		for _, platform := range platforms {
			specs = append(specs, storage.JobSpec{
				ProjectID:   req.ProjectID,
				KeywordID:   keywordID,
				Platform:    string(platform),
				ScheduledAt: scheduledAt,
			})
		}
	}

	created, err := s.jobs.InsertPending(ctx, specs)
	if err != nil {
		return nil, err
	}

	for _, job := range created {
		msg := &queue.Message{
			JobID:     job.ID,
			ProjectID: job.ProjectID,
			KeywordID: job.KeywordID,
			Platform:  job.Platform,
		}
		if job.ScheduledAt.After(s.now()) {
			err = s.broker.EnqueueDelayed(ctx, msg, job.ScheduledAt)
		} else {
			err = s.broker.Enqueue(ctx, msg)
		}
		if err != nil {
			// The row is durable; the reaper or a replan recovers it.
			s.logger.Warn("failed to enqueue scheduled job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	return created, nil
}

// TrackingStatus summarizes a project's tracking state.
type TrackingStatus struct {
	TotalKeywords   int                   `json:"total_keywords"`
	TrackedKeywords int                   `json:"tracked_keywords"`
	PendingKeywords int                   `json:"pending_keywords"`
	LastTrackTime   *time.Time            `json:"last_track_time,omitempty"`
	JobCounts       []storage.StatusCount `json:"job_counts_24h"`
}

// Status reports keyword coverage plus the last-24h job counts grouped by
// (platform, status).
func (s *Service) Status(ctx context.Context, projectID string) (*TrackingStatus, error) {
	keywords, err := s.keywords.ListByProject(ctx, projectID, true)
	if err != nil {
		return nil, err
	}

	status := &TrackingStatus{TotalKeywords: len(keywords)}
	for _, kw := range keywords {
		if kw.LastTrackedAt == nil {
			status.PendingKeywords++
			continue
		}
		status.TrackedKeywords++
		if status.LastTrackTime == nil || kw.LastTrackedAt.After(*status.LastTrackTime) {
			status.LastTrackTime = kw.LastTrackedAt
		}
	}

	counts, err := s.jobs.CountsSince(ctx, projectID, s.now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	status.JobCounts = counts
	return status, nil
}
