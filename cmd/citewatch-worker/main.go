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

// citewatch-worker hosts the broker consumer, the planner loops and the
// provider adapters. It is the only process that talks to the answering
// engines.
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
	"golang.org/x/sync/errgroup"

	"github.com/aiviz/citewatch/internal/config"
	"github.com/aiviz/citewatch/internal/database"
	"github.com/aiviz/citewatch/internal/metrics"
	"github.com/aiviz/citewatch/internal/queue"
	"github.com/aiviz/citewatch/internal/storage"
	"github.com/aiviz/citewatch/pkg/alerting"
	"github.com/aiviz/citewatch/pkg/provider"
	"github.com/aiviz/citewatch/pkg/provider/adapters"
	"github.com/aiviz/citewatch/pkg/scheduler"
	"github.com/aiviz/citewatch/pkg/scoring"
	"github.com/aiviz/citewatch/pkg/shared/logging"
	"github.com/aiviz/citewatch/pkg/tracking"
)

// errStoreLost marks a store outage past the restart threshold.
var errStoreLost = errors.New("store connection lost beyond restart threshold")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "citewatch-worker: %v\n", err)
		if errors.Is(err, errStoreLost) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db, logger); err != nil {
		return err
	}

	redisClient, err := queue.Connect(ctx, cfg.QueueURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	trackingQueue := queue.New(redisClient, "tracking", logger)

	providerConfigs := make(map[provider.Platform]adapters.Config)
	for platform, pc := range cfg.ProviderConfigs() {
		providerConfigs[platform] = adapters.Config{
			APIKey:     pc.APIKey,
			Endpoint:   pc.Endpoint,
			Model:      pc.Model,
			RatePerMin: pc.RatePerMin,
		}
	}
	registry, err := adapters.Build(providerConfigs, logger)
	if err != nil {
		return err
	}
	logger.Info("provider registry populated", zap.Int("adapters", registry.Len()))

	projects := storage.NewProjectRepository(db, logger)
	keywords := storage.NewKeywordRepository(db, logger)
	citations := storage.NewCitationRepository(db, logger)
	jobs := storage.NewJobRepository(db, logger)
	scores := storage.NewScoreRepository(db, logger)
	dailyMetrics := storage.NewMetricRepository(db, logger)
	alerts := storage.NewAlertRepository(db, logger)

	analyzer := tracking.NewSentimentAnalyzer(cfg.Sentiment.PositiveLexicon, cfg.Sentiment.NegativeLexicon)
	alertEngine := alerting.NewEngine(alerts, logger)
	engine := tracking.NewEngine(registry, citations, keywords, analyzer, alertEngine,
		tracking.Config{KeywordSpacing: cfg.Tracking.KeywordSpacing}, logger)
	scoringService := scoring.NewService(projects, keywords, citations, scores, dailyMetrics, alerts, logger)

	cooldowns := provider.NewCooldowns()
	procMetrics := metrics.New()

	worker := scheduler.NewWorker(trackingQueue, jobs, projects, keywords, engine, cooldowns,
		scheduler.WorkerConfig{
			Concurrency:       cfg.Worker.Concurrency,
			JobDeadline:       cfg.Worker.JobDeadline,
			MaxRetries:        cfg.Worker.MaxRetries,
			GracePeriod:       cfg.Worker.GracePeriod,
			QuotaCooldown:     cfg.Worker.QuotaCooldown,
			BackoffBase:       cfg.Worker.BackoffBase,
			StoreBackoffFloor: cfg.Worker.StoreBackoffFloor,
		}, logger)
	worker.SetMetrics(procMetrics)

	planner := scheduler.NewPlanner(projects, keywords, jobs, trackingQueue, scoringService,
		retentionStore{citations: citations, alerts: alerts, jobs: jobs}, registry,
		scheduler.PlannerConfig{
			DailyAtHour:       cfg.Tracking.DailyAtHour,
			DailyAtMinute:     cfg.Tracking.DailyAtMinute,
			TrackingInterval:  time.Duration(cfg.Tracking.IntervalHours) * time.Hour,
			CitationRetention: time.Duration(cfg.Retention.CitationsDays) * 24 * time.Hour,
			AlertRetention:    time.Duration(cfg.Retention.AlertsDays) * 24 * time.Hour,
			JobRetention:      time.Duration(cfg.Retention.JobsDays) * 24 * time.Hour,
		}, logger)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.Server.MetricsPort,
		Handler:           procMetrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return worker.Run(groupCtx) })
	group.Go(func() error { return planner.Run(groupCtx) })
	group.Go(func() error {
		logger.Info("metrics listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return pollQueueDepth(groupCtx, trackingQueue, procMetrics)
	})
	group.Go(func() error {
		return watchStore(groupCtx, db.PingContext, logger)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.GracePeriod)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("worker shut down cleanly")
	return nil
}

func pollQueueDepth(ctx context.Context, q *queue.Queue, m *metrics.Metrics) error {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ready, delayed, err := q.Depth(ctx)
			if err != nil {
				continue
			}
			m.QueueReadyDepth.Set(float64(ready))
			m.QueueDelayedDepth.Set(float64(delayed))
		}
	}
}

// watchStore pings the store and returns errStoreLost after four straight
// failures, turning a prolonged outage into exit code 2.
func watchStore(ctx context.Context, ping func(context.Context) error, logger *zap.Logger) error {
	const maxFailures = 4
	failures := 0
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := ping(pingCtx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			logger.Warn("store ping failed", zap.Int("consecutive", failures), zap.Error(err))
			if failures >= maxFailures {
				return errStoreLost
			}
		}
	}
}

// retentionStore adapts the three repositories onto the planner's pruning
// surface.
type retentionStore struct {
	citations *storage.CitationRepository
	alerts    *storage.AlertRepository
	jobs      *storage.JobRepository
}

func (r retentionStore) DeleteCitationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.citations.DeleteOlderThan(ctx, cutoff)
}

func (r retentionStore) DeleteAlertsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.alerts.DeleteOlderThan(ctx, cutoff)
}

func (r retentionStore) DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.jobs.DeleteOlderThan(ctx, cutoff)
}
