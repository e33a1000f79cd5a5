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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	sharederrors "github.com/aiviz/citewatch/pkg/shared/errors"
)

// AlertRepository persists alerts. Writes are best-effort from the tracking
// path; callers log insert failures instead of failing the job.
type AlertRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewAlertRepository builds an alert repository.
func NewAlertRepository(db *sqlx.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{db: db, logger: logger.Named("alerts")}
}

// Insert writes one alert.
func (r *AlertRepository) Insert(ctx context.Context, a *Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO alerts (
			id, project_id, keyword_id, platform, citation_id,
			alert_type, severity, title, description,
			previous_value, current_value, change_percent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`
	err := r.db.QueryRowxContext(ctx, query,
		a.ID, a.ProjectID, a.KeywordID, a.Platform, a.CitationID,
		a.AlertType, a.Severity, a.Title, a.Description,
		a.PreviousValue, a.CurrentValue, a.ChangePercent).
		Scan(&a.CreatedAt)
	if err != nil {
		return sharederrors.DatabaseError("insert alert", err)
	}
	return nil
}

// AlertFilter narrows List.
type AlertFilter struct {
	ProjectID  string
	AlertType  string
	Severity   string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// List returns alerts matching the filter, newest first.
func (r *AlertRepository) List(ctx context.Context, f AlertFilter) ([]Alert, error) {
	conds := []string{"project_id = $1"}
	args := []interface{}{f.ProjectID}
	n := 2

	if f.AlertType != "" {
		conds = append(conds, fmt.Sprintf("alert_type = $%d", n))
		args = append(args, f.AlertType)
		n++
	}
	if f.Severity != "" {
		conds = append(conds, fmt.Sprintf("severity = $%d", n))
		args = append(args, f.Severity)
		n++
	}
	if f.UnreadOnly {
		conds = append(conds, "is_read = FALSE")
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT * FROM alerts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, strings.Join(conds, " AND "), n, n+1)
	args = append(args, limit, f.Offset)

	var alerts []Alert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, sharederrors.DatabaseError("list alerts", err)
	}
	return alerts, nil
}

// UnreadCount returns the number of unread alerts for a project.
func (r *AlertRepository) UnreadCount(ctx context.Context, projectID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM alerts WHERE project_id = $1 AND is_read = FALSE`, projectID)
	if err != nil {
		return 0, sharederrors.DatabaseError("count unread alerts", err)
	}
	return count, nil
}

// ExistsForPlatform reports whether an alert of alertType already exists
// for the (project, platform) pair. The scoring pipeline uses this to emit
// batch alerts at most once.
func (r *AlertRepository) ExistsForPlatform(ctx context.Context, projectID, alertType, platform string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE project_id = $1 AND alert_type = $2 AND platform = $3
		)`, projectID, alertType, platform)
	if err != nil {
		return false, sharederrors.DatabaseError("check alert existence", err)
	}
	return exists, nil
}

// MarkRead flags one alert read.
func (r *AlertRepository) MarkRead(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return sharederrors.DatabaseError("mark alert read", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead flags every unread alert of a project read, returning how
// many changed.
func (r *AlertRepository) MarkAllRead(ctx context.Context, projectID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET is_read = TRUE WHERE project_id = $1 AND is_read = FALSE`, projectID)
	if err != nil {
		return 0, sharederrors.DatabaseError("mark alerts read", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// Delete removes one alert.
func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return sharederrors.DatabaseError("delete alert", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOlderThan drops alerts created before cutoff.
func (r *AlertRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM alerts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, sharederrors.DatabaseError("prune alerts", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
