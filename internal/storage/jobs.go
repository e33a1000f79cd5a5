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

// JobRepository persists tracking jobs. The row is authoritative over any
// broker message pointing at it; idempotency rests on the partial unique
// index over live statuses, not on advisory locks.
type JobRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewJobRepository builds a job repository.
func NewJobRepository(db *sqlx.DB, logger *zap.Logger) *JobRepository {
	return &JobRepository{db: db, logger: logger.Named("tracking_jobs")}
}

// JobSpec identifies one unit of planned work.
type JobSpec struct {
	ProjectID   string
	KeywordID   string
	Platform    string
	ScheduledAt time.Time
}

// InsertPending bulk-inserts pending jobs, skipping specs that collide with
// a live row. It returns the jobs actually created.
func (r *JobRepository) InsertPending(ctx context.Context, specs []JobSpec) ([]TrackingJob, error) {
	created := make([]TrackingJob, 0, len(specs))
	for _, spec := range specs {
		var job TrackingJob
		err := r.db.QueryRowxContext(ctx, `
			INSERT INTO tracking_jobs (id, project_id, keyword_id, platform, status, scheduled_at)
			VALUES ($1, $2, $3, $4, 'pending', $5)
			ON CONFLICT (project_id, keyword_id, platform, scheduled_at)
				WHERE status IN ('pending', 'processing', 'retrying')
				DO NOTHING
			RETURNING *`,
			uuid.NewString(), spec.ProjectID, spec.KeywordID, spec.Platform, spec.ScheduledAt).
			StructScan(&job)
		if errors.Is(err, sql.ErrNoRows) {
			continue // live duplicate, planner no-op
		}
		if err != nil {
			return created, sharederrors.DatabaseError("insert tracking job", err)
		}
		created = append(created, job)
	}
	return created, nil
}

// GetByID loads one job.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*TrackingJob, error) {
	var job TrackingJob
	err := r.db.GetContext(ctx, &job, `SELECT * FROM tracking_jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load tracking job", err)
	}
	return &job, nil
}

// ClaimProcessing atomically transitions pending/retrying to processing and
// stamps started_at. It reports false when the row is already processing or
// terminal, in which case the delivery must be discarded.
func (r *JobRepository) ClaimProcessing(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tracking_jobs
		SET status = 'processing', started_at = $1, updated_at = now()
		WHERE id = $2 AND status IN ('pending', 'retrying')`, at, id)
	if err != nil {
		return false, sharederrors.DatabaseError("claim tracking job", err)
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

// Complete marks a job done, stamping the outcome.
func (r *JobRepository) Complete(ctx context.Context, id string, citationFound bool, result JSONMap) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tracking_jobs
		SET status = 'completed', completed_at = now(), citation_found = $1,
		    result_data = $2, error_message = NULL, updated_at = now()
		WHERE id = $3`, citationFound, result, id)
	if err != nil {
		return sharederrors.DatabaseError("complete tracking job", err)
	}
	return nil
}

// Fail marks a job terminally failed.
func (r *JobRepository) Fail(ctx context.Context, id, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tracking_jobs
		SET status = 'failed', completed_at = now(), error_message = $1, updated_at = now()
		WHERE id = $2`, message, id)
	if err != nil {
		return sharederrors.DatabaseError("fail tracking job", err)
	}
	return nil
}

// Retry increments retry_count and parks the job as retrying until the
// broker re-delivers it.
func (r *JobRepository) Retry(ctx context.Context, id, message string) (*TrackingJob, error) {
	var job TrackingJob
	err := r.db.QueryRowxContext(ctx, `
		UPDATE tracking_jobs
		SET status = 'retrying', retry_count = retry_count + 1,
		    error_message = $1, updated_at = now()
		WHERE id = $2
		RETURNING *`, message, id).StructScan(&job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("retry tracking job", err)
	}
	return &job, nil
}

// StatusCount is one (platform, status) bucket.
type StatusCount struct {
	Platform string `db:"platform" json:"platform"`
	Status   string `db:"status" json:"status"`
	Count    int    `db:"count" json:"count"`
}

// CountsSince groups a project's jobs created after since by platform and
// status.
func (r *JobRepository) CountsSince(ctx context.Context, projectID string, since time.Time) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.SelectContext(ctx, &counts, `
		SELECT platform, status, COUNT(*) AS count
		FROM tracking_jobs
		WHERE project_id = $1 AND created_at >= $2
		GROUP BY platform, status
		ORDER BY platform, status`, projectID, since)
	if err != nil {
		return nil, sharederrors.DatabaseError("count tracking jobs", err)
	}
	return counts, nil
}

// PendingCount returns the number of live jobs for a project.
func (r *JobRepository) PendingCount(ctx context.Context, projectID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM tracking_jobs
		WHERE project_id = $1 AND status IN ('pending', 'retrying', 'processing')`, projectID)
	if err != nil {
		return 0, sharederrors.DatabaseError("count pending jobs", err)
	}
	return count, nil
}

// ReapStale returns processing jobs whose started_at predates cutoff to
// retrying. A worker that died mid-job leaves such rows behind.
func (r *JobRepository) ReapStale(ctx context.Context, cutoff time.Time) ([]TrackingJob, error) {
	var jobs []TrackingJob
	err := r.db.SelectContext(ctx, &jobs, `
		UPDATE tracking_jobs
		SET status = 'retrying', updated_at = now()
		WHERE status = 'processing' AND started_at < $1
		RETURNING *`, cutoff)
	if err != nil {
		return nil, sharederrors.DatabaseError("reap stale jobs", err)
	}
	if len(jobs) > 0 {
		r.logger.Warn("requeued stale processing jobs", zap.Int("count", len(jobs)))
	}
	return jobs, nil
}

// DeleteOlderThan drops jobs created before cutoff.
func (r *JobRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tracking_jobs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, sharederrors.DatabaseError("prune tracking jobs", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
