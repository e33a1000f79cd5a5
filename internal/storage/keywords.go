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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	sharederrors "github.com/aiviz/citewatch/pkg/shared/errors"
)

// KeywordRepository persists keywords.
type KeywordRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewKeywordRepository builds a keyword repository.
func NewKeywordRepository(db *sqlx.DB, logger *zap.Logger) *KeywordRepository {
	return &KeywordRepository{db: db, logger: logger.Named("keywords")}
}

// Create inserts a keyword. Text is trimmed but case-preserved; uniqueness
// within the project is enforced by the store.
func (k *KeywordRepository) Create(ctx context.Context, kw *Keyword) error {
	kw.KeywordText = strings.TrimSpace(kw.KeywordText)
	if kw.KeywordText == "" {
		return sharederrors.ValidationError("keyword_text", "must not be empty")
	}
	if kw.PriorityLevel == 0 {
		kw.PriorityLevel = 3
	}
	if kw.PriorityLevel < 1 || kw.PriorityLevel > 5 {
		return sharederrors.ValidationError("priority_level", "must be between 1 and 5")
	}
	switch kw.FunnelStage {
	case "":
		kw.FunnelStage = FunnelAwareness
	case FunnelAwareness, FunnelConsideration, FunnelDecision:
	default:
		return sharederrors.ValidationError("funnel_stage", "unknown stage")
	}
	if kw.ID == "" {
		kw.ID = uuid.NewString()
	}
	kw.IsActive = true

	const query = `
		INSERT INTO keywords (id, project_id, keyword_text, priority_level, funnel_stage, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	err := k.db.QueryRowxContext(ctx, query,
		kw.ID, kw.ProjectID, kw.KeywordText, kw.PriorityLevel, kw.FunnelStage, kw.IsActive).
		Scan(&kw.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sharederrors.ValidationError("keyword_text", "already tracked in this project")
		}
		return sharederrors.DatabaseError("insert keyword", err)
	}
	return nil
}

// GetByID loads one keyword.
func (k *KeywordRepository) GetByID(ctx context.Context, id string) (*Keyword, error) {
	var kw Keyword
	err := k.db.GetContext(ctx, &kw, `SELECT * FROM keywords WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load keyword", err)
	}
	return &kw, nil
}

// ListByProject returns a project's keywords, optionally active only.
func (k *KeywordRepository) ListByProject(ctx context.Context, projectID string, activeOnly bool) ([]Keyword, error) {
	query := `SELECT * FROM keywords WHERE project_id = $1 ORDER BY created_at`
	if activeOnly {
		query = `SELECT * FROM keywords WHERE project_id = $1 AND is_active ORDER BY created_at`
	}
	var keywords []Keyword
	if err := k.db.SelectContext(ctx, &keywords, query, projectID); err != nil {
		return nil, sharederrors.DatabaseError("list keywords", err)
	}
	return keywords, nil
}

// KeywordUpdate carries optional field updates.
type KeywordUpdate struct {
	KeywordText   *string
	PriorityLevel *int
	FunnelStage   *string
	IsActive      *bool
}

// Update applies the non-nil fields with bound parameters.
func (k *KeywordRepository) Update(ctx context.Context, id string, upd KeywordUpdate) (*Keyword, error) {
	sets := []string{}
	args := []interface{}{}
	n := 1

	if upd.KeywordText != nil {
		text := strings.TrimSpace(*upd.KeywordText)
		if text == "" {
			return nil, sharederrors.ValidationError("keyword_text", "must not be empty")
		}
		sets = append(sets, fmt.Sprintf("keyword_text = $%d", n))
		args = append(args, text)
		n++
	}
	if upd.PriorityLevel != nil {
		if *upd.PriorityLevel < 1 || *upd.PriorityLevel > 5 {
			return nil, sharederrors.ValidationError("priority_level", "must be between 1 and 5")
		}
		sets = append(sets, fmt.Sprintf("priority_level = $%d", n))
		args = append(args, *upd.PriorityLevel)
		n++
	}
	if upd.FunnelStage != nil {
		switch *upd.FunnelStage {
		case FunnelAwareness, FunnelConsideration, FunnelDecision:
		default:
			return nil, sharederrors.ValidationError("funnel_stage", "unknown stage")
		}
		sets = append(sets, fmt.Sprintf("funnel_stage = $%d", n))
		args = append(args, *upd.FunnelStage)
		n++
	}
	if upd.IsActive != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", n))
		args = append(args, *upd.IsActive)
		n++
	}
	if len(sets) == 0 {
		return k.GetByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE keywords SET %s WHERE id = $%d RETURNING *`,
		strings.Join(sets, ", "), n)

	var kw Keyword
	err := k.db.QueryRowxContext(ctx, query, args...).StructScan(&kw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, sharederrors.ValidationError("keyword_text", "already tracked in this project")
		}
		return nil, sharederrors.DatabaseError("update keyword", err)
	}
	return &kw, nil
}

// Delete removes a keyword.
func (k *KeywordRepository) Delete(ctx context.Context, id string) error {
	res, err := k.db.ExecContext(ctx, `DELETE FROM keywords WHERE id = $1`, id)
	if err != nil {
		return sharederrors.DatabaseError("delete keyword", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastTracked stamps last_tracked_at once per TrackKeyword or
// TrackPlatform call.
func (k *KeywordRepository) TouchLastTracked(ctx context.Context, id string, at time.Time) error {
	_, err := k.db.ExecContext(ctx,
		`UPDATE keywords SET last_tracked_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return sharederrors.DatabaseError("stamp last_tracked_at", err)
	}
	return nil
}

// isUniqueViolation matches Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
