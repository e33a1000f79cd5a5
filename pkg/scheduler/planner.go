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
	"golang.org/x/sync/errgroup"

	"github.com/aiviz/citewatch/internal/queue"
	"github.com/aiviz/citewatch/internal/storage"
	"github.com/aiviz/citewatch/pkg/provider"
	"github.com/aiviz/citewatch/pkg/shared/logging"
)

// ProjectLister iterates active projects for planner sweeps.
type ProjectLister interface {
	ListActive(ctx context.Context) ([]storage.Project, error)
}

// KeywordLister iterates a project's keywords.
type KeywordLister interface {
	ListByProject(ctx context.Context, projectID string, activeOnly bool) ([]storage.Keyword, error)
}

// JobPlanner inserts planned work.
type JobPlanner interface {
	InsertPending(ctx context.Context, specs []storage.JobSpec) ([]storage.TrackingJob, error)
}

// Scorer is the slice of the scoring service the score planner invokes.
type Scorer interface {
	ComputeVisibilityScore(ctx context.Context, projectID string, asOf time.Time) (*storage.VisibilityScore, error)
	GenerateDailyMetrics(ctx context.Context, projectID string, date time.Time) error
}

// RetentionStore prunes aged rows.
type RetentionStore interface {
	DeleteCitationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAlertsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PlannerConfig tunes the periodic loops.
type PlannerConfig struct {
	// DailyAtHour/DailyAtMinute is the local wall-clock time of the daily
	// tracking sweep.
	DailyAtHour   int
	DailyAtMinute int
	// TrackingInterval skips keywords tracked more recently than this.
	TrackingInterval time.Duration
	// ScoreInterval separates score recomputes.
	ScoreInterval time.Duration
	// RetentionInterval separates cleanup sweeps.
	RetentionInterval time.Duration
	// Retention windows.
	CitationRetention time.Duration
	AlertRetention    time.Duration
	JobRetention      time.Duration
	// Platforms planned per keyword; empty means every registered one.
	Platforms []provider.Platform
}

func (c *PlannerConfig) applyDefaults() {
	if c.DailyAtHour == 0 && c.DailyAtMinute == 0 {
		c.DailyAtHour = 2
	}
	if c.TrackingInterval <= 0 {
		c.TrackingInterval = 24 * time.Hour
	}
	if c.ScoreInterval <= 0 {
		c.ScoreInterval = 6 * time.Hour
	}
	if c.RetentionInterval <= 0 {
		c.RetentionInterval = 7 * 24 * time.Hour
	}
	if c.CitationRetention <= 0 {
		c.CitationRetention = 365 * 24 * time.Hour
	}
	if c.AlertRetention <= 0 {
		c.AlertRetention = 90 * 24 * time.Hour
	}
	if c.JobRetention <= 0 {
		c.JobRetention = 30 * 24 * time.Hour
	}
}

// Planner runs the periodic loops. Single-process, single-writer: exactly
// one planner instance owns a deployment's schedule.
type Planner struct {
	projects  ProjectLister
	keywords  KeywordLister
	jobs      JobPlanner
	broker    Broker
	scorer    Scorer
	retention RetentionStore
	registry  *provider.Registry
	cfg       PlannerConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewPlanner builds the planner loops.
func NewPlanner(projects ProjectLister, keywords KeywordLister, jobs JobPlanner, broker Broker,
	scorer Scorer, retention RetentionStore, registry *provider.Registry,
	cfg PlannerConfig, logger *zap.Logger) *Planner {
	cfg.applyDefaults()
	return &Planner{
		projects:  projects,
		keywords:  keywords,
		jobs:      jobs,
		broker:    broker,
		scorer:    scorer,
		retention: retention,
		registry:  registry,
		cfg:       cfg,
		logger:    logger.Named("planner"),
		now:       time.Now,
	}
}

// Run drives the three loops until ctx is canceled. A failed tick is logged
// and skipped; the next period retries.
func (p *Planner) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return p.dailyLoop(groupCtx) })
	group.Go(func() error { return p.scoreLoop(groupCtx) })
	group.Go(func() error { return p.retentionLoop(groupCtx) })
	return group.Wait()
}

// dailyLoop sleeps until the configured wall-clock time, fires once, and
// repeats 24h later. Sleeping to the computed fire time avoids the
// minute-polling double-run/miss problem.
func (p *Planner) dailyLoop(ctx context.Context) error {
	for {
		next := p.nextDailyFire()
		p.logger.Info("daily tracking planned",
			logging.SchedulerFields("sleep", "daily_tracking").Custom("fire_at", next).ToZap()...)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(next)):
		}

		if err := p.PlanDailyTracking(ctx); err != nil {
			p.logger.Error("daily tracking tick failed",
				logging.SchedulerFields("tick", "daily_tracking").Error(err).ToZap()...)
		}
	}
}

func (p *Planner) nextDailyFire() time.Time {
	now := p.now()
	fire := time.Date(now.Year(), now.Month(), now.Day(),
		p.cfg.DailyAtHour, p.cfg.DailyAtMinute, 0, 0, now.Location())
	if !fire.After(now) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}

// PlanDailyTracking enqueues one job per (active keyword × platform) for
// every active project, skipping keywords tracked within the interval.
// Re-planning the same batch is a no-op thanks to the live-unique index.
func (p *Planner) PlanDailyTracking(ctx context.Context) error {
	projects, err := p.projects.ListActive(ctx)
	if err != nil {
		return err
	}

	platforms := p.cfg.Platforms
	if len(platforms) == 0 {
		platforms = p.registry.Platforms()
	}

	scheduledAt := p.now().Truncate(time.Minute)
	planned := 0
	for _, project := range projects {
		keywords, err := p.keywords.ListByProject(ctx, project.ID, true)
		if err != nil {
			return err
		}

		var specs []storage.JobSpec
		for _, kw := range keywords {
			if kw.LastTrackedAt != nil && p.now().Sub(*kw.LastTrackedAt) < p.cfg.TrackingInterval {
				continue
			}
			for _, platform := range platforms {
				specs = append(specs, storage.JobSpec{
					ProjectID:   project.ID,
					KeywordID:   kw.ID,
					Platform:    string(platform),
					ScheduledAt: scheduledAt,
				})
			}
		}

		created, err := p.jobs.InsertPending(ctx, specs)
		if err != nil {
			return err
		}
		for _, job := range created {
			msg := &queue.Message{
				JobID:     job.ID,
				ProjectID: job.ProjectID,
				KeywordID: job.KeywordID,
				Platform:  job.Platform,
			}
			if err := p.broker.Enqueue(ctx, msg); err != nil {
				p.logger.Warn("failed to enqueue planned job",
					logging.SchedulerFields("enqueue", "daily_tracking").Job(job.ID).Error(err).ToZap()...)
			}
		}
		planned += len(created)
	}

	p.logger.Info("daily tracking planned jobs",
		logging.SchedulerFields("tick", "daily_tracking").Count(planned).ToZap()...)
	return nil
}

func (p *Planner) scoreLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.ScoreInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.RecomputeScores(ctx); err != nil {
				p.logger.Error("score tick failed",
					logging.SchedulerFields("tick", "score_recompute").Error(err).ToZap()...)
			}
		}
	}
}

// RecomputeScores refreshes the visibility score and today's metrics for
// every active project.
func (p *Planner) RecomputeScores(ctx context.Context) error {
	projects, err := p.projects.ListActive(ctx)
	if err != nil {
		return err
	}
	now := p.now()
	for _, project := range projects {
		if _, err := p.scorer.ComputeVisibilityScore(ctx, project.ID, now); err != nil {
			p.logger.Warn("score recompute failed for project",
				logging.SchedulerFields("score", "score_recompute").Project(project.ID).Error(err).ToZap()...)
			continue
		}
		if err := p.scorer.GenerateDailyMetrics(ctx, project.ID, now); err != nil {
			p.logger.Warn("daily metrics failed for project",
				logging.SchedulerFields("metrics", "score_recompute").Project(project.ID).Error(err).ToZap()...)
		}
	}
	return nil
}

func (p *Planner) retentionLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.RetentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.RunRetention(ctx); err != nil {
				p.logger.Error("retention tick failed",
					logging.SchedulerFields("tick", "retention").Error(err).ToZap()...)
			}
		}
	}
}

// RunRetention prunes aged citations, alerts and jobs.
func (p *Planner) RunRetention(ctx context.Context) error {
	now := p.now()

	citations, err := p.retention.DeleteCitationsOlderThan(ctx, now.Add(-p.cfg.CitationRetention))
	if err != nil {
		return err
	}
	alerts, err := p.retention.DeleteAlertsOlderThan(ctx, now.Add(-p.cfg.AlertRetention))
	if err != nil {
		return err
	}
	jobs, err := p.retention.DeleteJobsOlderThan(ctx, now.Add(-p.cfg.JobRetention))
	if err != nil {
		return err
	}

	p.logger.Info("retention sweep complete",
		logging.SchedulerFields("tick", "retention").
			Custom("citations_pruned", citations).
			Custom("alerts_pruned", alerts).
			Custom("jobs_pruned", jobs).ToZap()...)
	return nil
}
