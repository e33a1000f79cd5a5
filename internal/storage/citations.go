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

// CitationRepository persists citations.
type CitationRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCitationRepository builds a citation repository.
func NewCitationRepository(db *sqlx.DB, logger *zap.Logger) *CitationRepository {
	return &CitationRepository{db: db, logger: logger.Named("citations")}
}

// Insert writes one citation in a single statement.
func (r *CitationRepository) Insert(ctx context.Context, c *Citation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO citations (
			id, project_id, keyword_id, platform, tracked_at,
			domain_mentioned, citation_position, citation_context,
			full_response_text, response_summary, sentiment,
			confidence_score, word_count, competitor_citations,
			total_sources_cited, response_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at`
	err := r.db.QueryRowxContext(ctx, query,
		c.ID, c.ProjectID, c.KeywordID, c.Platform, c.TrackedAt,
		c.DomainMentioned, c.CitationPosition, c.CitationContext,
		c.FullResponseText, c.ResponseSummary, c.Sentiment,
		c.ConfidenceScore, c.WordCount, c.CompetitorCitations,
		c.TotalSourcesCited, c.ResponseTimeMs).
		Scan(&c.CreatedAt)
	if err != nil {
		return sharederrors.DatabaseError("insert citation", err)
	}
	return nil
}

// Latest returns the most recent citation for a (keyword, platform), or
// ErrNotFound. The alert diff reads the previous citation through this
// before the new one is inserted.
func (r *CitationRepository) Latest(ctx context.Context, keywordID, platform string) (*Citation, error) {
	var c Citation
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM citations
		WHERE keyword_id = $1 AND platform = $2
		ORDER BY tracked_at DESC
		LIMIT 1`, keywordID, platform)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load latest citation", err)
	}
	return &c, nil
}

// ListWindow returns a project's citations with tracked_at in [from, to],
// oldest first.
func (r *CitationRepository) ListWindow(ctx context.Context, projectID string, from, to time.Time) ([]Citation, error) {
	var citations []Citation
	err := r.db.SelectContext(ctx, &citations, `
		SELECT * FROM citations
		WHERE project_id = $1 AND tracked_at >= $2 AND tracked_at <= $3
		ORDER BY tracked_at`, projectID, from, to)
	if err != nil {
		return nil, sharederrors.DatabaseError("scan citation window", err)
	}
	return citations, nil
}

// ListDay returns a project's citations for one calendar day, across all
// platforms.
func (r *CitationRepository) ListDay(ctx context.Context, projectID string, day time.Time) ([]Citation, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return r.ListWindow(ctx, projectID, start, start.Add(24*time.Hour-time.Nanosecond))
}

// HasMentionBefore reports whether any self-mention citation exists for the
// (project, platform) pair tracked before cutoff. The scoring pipeline uses
// this to spot a platform citing the domain for the first time.
func (r *CitationRepository) HasMentionBefore(ctx context.Context, projectID, platform string, cutoff time.Time) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM citations
			WHERE project_id = $1 AND platform = $2
			  AND domain_mentioned AND tracked_at < $3
		)`, projectID, platform, cutoff)
	if err != nil {
		return false, sharederrors.DatabaseError("check first mention", err)
	}
	return exists, nil
}

// DeleteOlderThan drops citations tracked before cutoff, returning the
// number removed.
func (r *CitationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM citations WHERE tracked_at < $1`, cutoff)
	if err != nil {
		return 0, sharederrors.DatabaseError("prune citations", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
