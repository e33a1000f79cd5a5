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

// Package scheduler owns the durable work queue: the worker pool that
// consumes tracking jobs, the planner loops that enqueue them, and the
// control operations the API uses to schedule work on demand.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aiviz/citewatch/internal/metrics"
	"github.com/aiviz/citewatch/internal/queue"
	"github.com/aiviz/citewatch/internal/storage"
	"github.com/aiviz/citewatch/pkg/provider"
	"github.com/aiviz/citewatch/pkg/shared/logging"
	"github.com/aiviz/citewatch/pkg/tracking"
)

// Broker is the queue surface the worker consumes.
type Broker interface {
	Enqueue(ctx context.Context, msg *queue.Message) error
	EnqueueDelayed(ctx context.Context, msg *queue.Message, readyAt time.Time) error
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Message, error)
}

// JobStore is the slice of the job repository the worker drives.
type JobStore interface {
	GetByID(ctx context.Context, id string) (*storage.TrackingJob, error)
	ClaimProcessing(ctx context.Context, id string, at time.Time) (bool, error)
	Complete(ctx context.Context, id string, citationFound bool, result storage.JSONMap) error
	Fail(ctx context.Context, id, message string) error
	Retry(ctx context.Context, id, message string) (*storage.TrackingJob, error)
	ReapStale(ctx context.Context, cutoff time.Time) ([]storage.TrackingJob, error)
}

// ProjectLoader loads project rows for job execution.
type ProjectLoader interface {
	GetByID(ctx context.Context, id string) (*storage.Project, error)
}

// KeywordLoader loads keyword rows for job execution.
type KeywordLoader interface {
	GetByID(ctx context.Context, id string) (*storage.Keyword, error)
}

// Tracker is the slice of the tracking engine the worker calls.
type Tracker interface {
	TrackPlatform(ctx context.Context, project *storage.Project, keyword *storage.Keyword,
		platform provider.Platform) tracking.TrackResult
}

// WorkerConfig tunes the consumer pool.
type WorkerConfig struct {
	// Concurrency bounds jobs in flight per process.
	Concurrency int
	// JobDeadline aborts an in-flight adapter call.
	JobDeadline time.Duration
	// MaxRetries before a retriable failure turns terminal.
	MaxRetries int
	// BackoffBase seeds the exponential re-delivery schedule.
	BackoffBase time.Duration
	// StoreBackoffFloor is the minimum delay after a store-write failure,
	// so the already-spent adapter call is not repeated against a store
	// that has not recovered.
	StoreBackoffFloor time.Duration
	// QuotaCooldown parks a provider after quota_exceeded.
	QuotaCooldown time.Duration
	// GracePeriod sizes the reaper threshold: processing rows older than
	// twice this plus JobDeadline are requeued. It does not bound the
	// shutdown drain, where each in-flight job runs until it ends or
	// reaches JobDeadline.
	GracePeriod time.Duration
}

func (c *WorkerConfig) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.JobDeadline <= 0 {
		c.JobDeadline = 60 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.StoreBackoffFloor <= 0 {
		c.StoreBackoffFloor = 30 * time.Second
	}
	if c.QuotaCooldown <= 0 {
		c.QuotaCooldown = time.Hour
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 30 * time.Second
	}
}

// Worker consumes the tracking queue.
type Worker struct {
	broker    Broker
	jobs      JobStore
	projects  ProjectLoader
	keywords  KeywordLoader
	tracker   Tracker
	cooldowns *provider.Cooldowns
	metrics   *metrics.Metrics
	cfg       WorkerConfig
	logger    *zap.Logger
	now       func() time.Time
}

// SetMetrics attaches the process collectors. Optional; a nil receiver set
// leaves the worker unobserved.
func (w *Worker) SetMetrics(m *metrics.Metrics) {
	w.metrics = m
}

func (w *Worker) countJob(platform, status string) {
	if w.metrics != nil {
		w.metrics.JobsProcessed.WithLabelValues(platform, status).Inc()
	}
}

// NewWorker builds a worker pool.
func NewWorker(broker Broker, jobs JobStore, projects ProjectLoader, keywords KeywordLoader,
	tracker Tracker, cooldowns *provider.Cooldowns, cfg WorkerConfig, logger *zap.Logger) *Worker {
	cfg.applyDefaults()
	return &Worker{
		broker:    broker,
		jobs:      jobs,
		projects:  projects,
		keywords:  keywords,
		tracker:   tracker,
		cooldowns: cooldowns,
		cfg:       cfg,
		logger:    logger.Named("worker"),
		now:       time.Now,
	}
}

// Run reaps stale jobs left by a dead worker, then consumes until ctx is
// canceled. In-flight jobs are not cut off at cancellation: each runs until
// it ends or reaches JobDeadline, and Run returns after that.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.reap(ctx); err != nil {
		w.logger.Warn("startup reap failed", zap.Error(err))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		group.Go(func() error {
			return w.consume(groupCtx)
		})
	}
	group.Go(func() error {
		return w.reapLoop(groupCtx)
	})
	return group.Wait()
}

func (w *Worker) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := w.broker.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if msg == nil {
			continue
		}

		// The job runs on its own deadline so shutdown drains it rather
		// than killing it mid-call.
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobDeadline)
		w.process(jobCtx, msg)
		cancel()
	}
}

// process drives one delivery through the job lifecycle.
func (w *Worker) process(ctx context.Context, msg *queue.Message) {
	fields := logging.NewFields().
		Component("worker").
		Job(msg.JobID).
		Project(msg.ProjectID).
		Keyword(msg.KeywordID).
		Platform(msg.Platform)

	claimed, err := w.jobs.ClaimProcessing(ctx, msg.JobID, w.now())
	if err != nil {
		w.logger.Error("failed to claim job", fields.Error(err).ToZap()...)
		return
	}
	if !claimed {
		// Duplicate delivery or terminal row.
		w.logger.Debug("discarding delivery for unclaimable job", fields.ToZap()...)
		return
	}

	job, err := w.jobs.GetByID(ctx, msg.JobID)
	if err != nil {
		w.logger.Error("failed to load claimed job", fields.Error(err).ToZap()...)
		return
	}

	project, perr := w.projects.GetByID(ctx, job.ProjectID)
	keyword, kerr := w.keywords.GetByID(ctx, job.KeywordID)
	if perr != nil || kerr != nil {
		_ = w.jobs.Fail(ctx, job.ID, "orphaned: keyword or project no longer exists")
		return
	}

	platform := provider.Platform(job.Platform)
	if w.cooldowns.Active(platform) {
		_ = w.jobs.Fail(ctx, job.ID, "quota_exceeded: provider cooling down")
		return
	}

	start := w.now()
	result := w.tracker.TrackPlatform(ctx, project, keyword, platform)

	if result.Success {
		resultData := storage.JSONMap{
			"domain_mentioned": result.DomainMentioned,
			"response_time_ms": result.ResponseTimeMs,
			"duration_ms":      w.now().Sub(start).Milliseconds(),
		}
		if result.Citation != nil && result.Citation.CitationPosition != nil {
			resultData["citation_position"] = *result.Citation.CitationPosition
		}
		if err := w.jobs.Complete(ctx, job.ID, result.DomainMentioned, resultData); err != nil {
			w.logger.Error("failed to complete job", fields.Error(err).ToZap()...)
		}
		w.countJob(job.Platform, storage.JobStatusCompleted)
		return
	}

	w.handleFailure(ctx, job, result, fields)
}

func (w *Worker) handleFailure(ctx context.Context, job *storage.TrackingJob, result tracking.TrackResult, fields logging.Fields) {
	if result.ErrorKind == string(provider.ErrQuotaExceeded) {
		w.cooldowns.Trip(provider.Platform(job.Platform), w.cfg.QuotaCooldown)
		_ = w.jobs.Fail(ctx, job.ID, result.Error)
		w.countJob(job.Platform, storage.JobStatusFailed)
		w.logger.Warn("provider placed in quota cooldown", fields.ToZap()...)
		return
	}

	if !result.Retriable || job.RetryCount >= w.cfg.MaxRetries {
		_ = w.jobs.Fail(ctx, job.ID, result.Error)
		w.countJob(job.Platform, storage.JobStatusFailed)
		return
	}

	retried, err := w.jobs.Retry(ctx, job.ID, result.Error)
	if err != nil {
		w.logger.Error("failed to park job for retry", fields.Error(err).ToZap()...)
		return
	}

	delay := w.backoff(retried.RetryCount, result.ErrorKind == "store")
	msg := &queue.Message{
		JobID:     job.ID,
		ProjectID: job.ProjectID,
		KeywordID: job.KeywordID,
		Platform:  job.Platform,
	}
	if err := w.broker.EnqueueDelayed(ctx, msg, w.now().Add(delay)); err != nil {
		w.logger.Error("failed to schedule retry delivery", fields.Error(err).ToZap()...)
	}
	w.countJob(job.Platform, storage.JobStatusRetrying)
}

// backoff is exponential with ±20% jitter: base × 2^(attempt-1), so the
// first retry waits about base. Store-write
// failures respect the long floor.
func (w *Worker) backoff(attempt int, storeFailure bool) time.Duration {
	delay := w.cfg.BackoffBase * time.Duration(1<<uint(attempt-1))
	jitter := 0.8 + rand.Float64()*0.4
	delay = time.Duration(float64(delay) * jitter)
	if storeFailure && delay < w.cfg.StoreBackoffFloor {
		delay = w.cfg.StoreBackoffFloor
	}
	return delay
}

func (w *Worker) reapLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.reap(ctx); err != nil {
				w.logger.Warn("reap failed", zap.Error(err))
			}
		}
	}
}

// reap requeues processing rows older than twice the grace period plus the
// job deadline.
func (w *Worker) reap(ctx context.Context) error {
	cutoff := w.now().Add(-2 * w.cfg.GracePeriod).Add(-w.cfg.JobDeadline)
	stale, err := w.jobs.ReapStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to reap stale jobs: %w", err)
	}
	for _, job := range stale {
		msg := &queue.Message{
			JobID:     job.ID,
			ProjectID: job.ProjectID,
			KeywordID: job.KeywordID,
			Platform:  job.Platform,
		}
		if err := w.broker.Enqueue(ctx, msg); err != nil {
			w.logger.Warn("failed to requeue reaped job",
				logging.NewFields().Component("worker").Job(job.ID).Error(err).ToZap()...)
		}
	}
	return nil
}
