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

package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	sharederrors "github.com/aiviz/citewatch/pkg/shared/errors"
)

// MetricRepository persists daily metric aggregates.
type MetricRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewMetricRepository builds a metric repository.
func NewMetricRepository(db *sqlx.DB, logger *zap.Logger) *MetricRepository {
	return &MetricRepository{db: db, logger: logger.Named("daily_metrics")}
}

// Upsert writes one (project, date, platform) aggregate. Recomputing the
// same inputs converges to the same row.
func (r *MetricRepository) Upsert(ctx context.Context, m *DailyMetric) error {
	const query = `
		INSERT INTO daily_metrics (
			project_id, date, platform, queries, mentions, avg_position,
			positive_count, neutral_count, negative_count, competitor_mentions, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (project_id, date, platform) DO UPDATE SET
			queries = EXCLUDED.queries,
			mentions = EXCLUDED.mentions,
			avg_position = EXCLUDED.avg_position,
			positive_count = EXCLUDED.positive_count,
			neutral_count = EXCLUDED.neutral_count,
			negative_count = EXCLUDED.negative_count,
			competitor_mentions = EXCLUDED.competitor_mentions,
			updated_at = now()`
	_, err := r.db.ExecContext(ctx, query,
		m.ProjectID, m.Date, m.Platform, m.Queries, m.Mentions, m.AvgPosition,
		m.PositiveCount, m.NeutralCount, m.NegativeCount, m.CompetitorMentions)
	if err != nil {
		return sharederrors.DatabaseError("upsert daily metric", err)
	}
	return nil
}

// ListRange returns metrics for [from, to], optionally one platform,
// ordered by date then platform.
func (r *MetricRepository) ListRange(ctx context.Context, projectID string, from, to time.Time, platform string) ([]DailyMetric, error) {
	var metrics []DailyMetric
	var err error
	if platform == "" {
		err = r.db.SelectContext(ctx, &metrics, `
			SELECT * FROM daily_metrics
			WHERE project_id = $1 AND date >= $2 AND date <= $3
			ORDER BY date, platform`, projectID, from, to)
	} else {
		err = r.db.SelectContext(ctx, &metrics, `
			SELECT * FROM daily_metrics
			WHERE project_id = $1 AND date >= $2 AND date <= $3 AND platform = $4
			ORDER BY date`, projectID, from, to, platform)
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("list daily metrics", err)
	}
	return metrics, nil
}
