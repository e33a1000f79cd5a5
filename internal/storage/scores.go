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
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	sharederrors "github.com/aiviz/citewatch/pkg/shared/errors"
)

// ScoreRepository persists the append-only visibility score series.
type ScoreRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewScoreRepository builds a score repository.
func NewScoreRepository(db *sqlx.DB, logger *zap.Logger) *ScoreRepository {
	return &ScoreRepository{db: db, logger: logger.Named("visibility_scores")}
}

// Insert appends one score row.
func (r *ScoreRepository) Insert(ctx context.Context, s *VisibilityScore) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO visibility_scores (
			id, project_id, calculated_at, overall_score, grade,
			frequency_score, position_score, diversity_score,
			context_score, momentum_score, delta_7d, delta_30d
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.ProjectID, s.CalculatedAt, s.OverallScore, s.Grade,
		s.FrequencyScore, s.PositionScore, s.DiversityScore,
		s.ContextScore, s.MomentumScore, s.Delta7d, s.Delta30d)
	if err != nil {
		return sharederrors.DatabaseError("insert visibility score", err)
	}
	return nil
}

// Latest returns the newest score for a project, or ErrNotFound.
func (r *ScoreRepository) Latest(ctx context.Context, projectID string) (*VisibilityScore, error) {
	var s VisibilityScore
	err := r.db.GetContext(ctx, &s, `
		SELECT * FROM visibility_scores
		WHERE project_id = $1
		ORDER BY calculated_at DESC
		LIMIT 1`, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load latest score", err)
	}
	return &s, nil
}

// LatestBefore returns the newest score calculated at or before cutoff, for
// delta computation against 7- and 30-day priors.
func (r *ScoreRepository) LatestBefore(ctx context.Context, projectID string, cutoff time.Time) (*VisibilityScore, error) {
	var s VisibilityScore
	err := r.db.GetContext(ctx, &s, `
		SELECT * FROM visibility_scores
		WHERE project_id = $1 AND calculated_at <= $2
		ORDER BY calculated_at DESC
		LIMIT 1`, projectID, cutoff)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load prior score", err)
	}
	return &s, nil
}

// History returns scores newer than now-days, newest first.
func (r *ScoreRepository) History(ctx context.Context, projectID string, days int) ([]VisibilityScore, error) {
	var scores []VisibilityScore
	err := r.db.SelectContext(ctx, &scores, `
		SELECT * FROM visibility_scores
		WHERE project_id = $1 AND calculated_at >= $2
		ORDER BY calculated_at DESC`,
		projectID, time.Now().AddDate(0, 0, -days))
	if err != nil {
		return nil, sharederrors.DatabaseError("load score history", err)
	}
	return scores, nil
}
