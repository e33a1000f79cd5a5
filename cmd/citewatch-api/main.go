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

// citewatch-api is the consumer-facing process: it serves the control API
// and schedules work onto the broker, but performs no provider queries of
// its own.
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

	"github.com/aiviz/citewatch/internal/api"
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
		fmt.Fprintf(os.Stderr, "citewatch-api: %v\n", err)
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

	registry, err := buildRegistry(cfg, logger)
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
	schedulerService := scheduler.NewService(jobs, keywords, trackingQueue, registry, logger)

	server := api.NewServer(projects, keywords, engine, schedulerService, scoringService,
		scores, dailyMetrics, alerts, registry, logger)

	procMetrics := metrics.New()

	apiServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.Server.MetricsPort,
		Handler:           procMetrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("api listening", zap.String("addr", apiServer.Addr))
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Info("metrics listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
		return apiServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return watchStore(groupCtx, db.PingContext, logger)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("api shut down cleanly")
	return nil
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

func buildRegistry(cfg *config.Config, logger *zap.Logger) (*provider.Registry, error) {
	configs := make(map[provider.Platform]adapters.Config)
	for platform, pc := range cfg.ProviderConfigs() {
		configs[platform] = adapters.Config{
			APIKey:     pc.APIKey,
			Endpoint:   pc.Endpoint,
			Model:      pc.Model,
			RatePerMin: pc.RatePerMin,
		}
	}
	return adapters.Build(configs, logger)
}
