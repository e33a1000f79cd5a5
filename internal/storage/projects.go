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

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aiviz/citewatch/pkg/shared/domains"
	sharederrors "github.com/aiviz/citewatch/pkg/shared/errors"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// MaxCompetitors caps the competitor list per project.
const MaxCompetitors = 10

// ProjectRepository persists projects.
type ProjectRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewProjectRepository builds a project repository.
func NewProjectRepository(db *sqlx.DB, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{db: db, logger: logger.Named("projects")}
}

// Create inserts a project. The primary domain is normalized and validated;
// competitors never contain the primary domain.
func (r *ProjectRepository) Create(ctx context.Context, p *Project) error {
	p.PrimaryDomain = domains.Normalize(p.PrimaryDomain)
	if !domains.Valid(p.PrimaryDomain) {
		return sharederrors.ValidationError("primary_domain", "not a valid domain")
	}
	normalized, err := normalizeCompetitors(p.CompetitorDomains, p.PrimaryDomain)
	if err != nil {
		return err
	}
	p.CompetitorDomains = normalized

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.IsActive = true

	const query = `
		INSERT INTO projects (id, name, primary_domain, competitor_domains, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	err = r.db.QueryRowxContext(ctx, query,
		p.ID, p.Name, p.PrimaryDomain, p.CompetitorDomains, p.IsActive).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return sharederrors.DatabaseError("insert project", err)
	}
	return nil
}

// GetByID loads one project.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*Project, error) {
	var p Project
	err := r.db.GetContext(ctx, &p, `SELECT * FROM projects WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load project", err)
	}
	return &p, nil
}

// List returns projects, optionally only active ones, newest first.
func (r *ProjectRepository) List(ctx context.Context, activeOnly bool) ([]Project, error) {
	query := `SELECT * FROM projects ORDER BY created_at DESC`
	if activeOnly {
		query = `SELECT * FROM projects WHERE is_active ORDER BY created_at DESC`
	}
	var projects []Project
	if err := r.db.SelectContext(ctx, &projects, query); err != nil {
		return nil, sharederrors.DatabaseError("list projects", err)
	}
	return projects, nil
}

// ListActive returns active projects, oldest first, for planner iteration.
func (r *ProjectRepository) ListActive(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := r.db.SelectContext(ctx, &projects,
		`SELECT * FROM projects WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, sharederrors.DatabaseError("list active projects", err)
	}
	return projects, nil
}

// ProjectUpdate carries optional field updates. Nil fields are untouched.
type ProjectUpdate struct {
	Name          *string
	PrimaryDomain *string
	IsActive      *bool
}

// Update applies the non-nil fields with bound parameters.
func (r *ProjectRepository) Update(ctx context.Context, id string, upd ProjectUpdate) (*Project, error) {
	sets := []string{"updated_at = now()"}
	args := []interface{}{}
	n := 1

	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", n))
		args = append(args, *upd.Name)
		n++
	}
	if upd.PrimaryDomain != nil {
		normalized := domains.Normalize(*upd.PrimaryDomain)
		if !domains.Valid(normalized) {
			return nil, sharederrors.ValidationError("primary_domain", "not a valid domain")
		}
		sets = append(sets, fmt.Sprintf("primary_domain = $%d", n))
		args = append(args, normalized)
		n++
	}
	if upd.IsActive != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", n))
		args = append(args, *upd.IsActive)
		n++
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE projects SET %s WHERE id = $%d RETURNING *`,
		strings.Join(sets, ", "), n)

	var p Project
	err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("update project", err)
	}
	return &p, nil
}

// Delete removes a project; owned rows cascade.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return sharederrors.DatabaseError("delete project", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCompetitor appends a competitor domain, enforcing the cap and the
// primary-domain exclusion.
func (r *ProjectRepository) AddCompetitor(ctx context.Context, projectID, domain string) (*Project, error) {
	p, err := r.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	normalized := domains.Normalize(domain)
	if !domains.Valid(normalized) {
		return nil, sharederrors.ValidationError("competitor_domain", "not a valid domain")
	}
	if normalized == p.PrimaryDomain {
		return nil, sharederrors.ValidationError("competitor_domain", "primary domain cannot be a competitor")
	}
	for _, existing := range p.CompetitorDomains {
		if existing == normalized {
			return p, nil
		}
	}
	if len(p.CompetitorDomains) >= MaxCompetitors {
		return nil, sharederrors.ValidationError("competitor_domain",
			fmt.Sprintf("at most %d competitors per project", MaxCompetitors))
	}

	updated := append(p.CompetitorDomains, normalized)
	return r.setCompetitors(ctx, projectID, updated)
}

// RemoveCompetitor drops a competitor domain.
func (r *ProjectRepository) RemoveCompetitor(ctx context.Context, projectID, domain string) (*Project, error) {
	p, err := r.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	normalized := domains.Normalize(domain)
	remaining := make(StringList, 0, len(p.CompetitorDomains))
	for _, existing := range p.CompetitorDomains {
		if existing != normalized {
			remaining = append(remaining, existing)
		}
	}
	return r.setCompetitors(ctx, projectID, remaining)
}

func (r *ProjectRepository) setCompetitors(ctx context.Context, projectID string, competitors StringList) (*Project, error) {
	var p Project
	err := r.db.QueryRowxContext(ctx,
		`UPDATE projects SET competitor_domains = $1, updated_at = now() WHERE id = $2 RETURNING *`,
		competitors, projectID).StructScan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("update competitors", err)
	}
	return &p, nil
}

func normalizeCompetitors(raw StringList, primary string) (StringList, error) {
	if len(raw) > MaxCompetitors {
		return nil, sharederrors.ValidationError("competitor_domains",
			fmt.Sprintf("at most %d competitors per project", MaxCompetitors))
	}
	out := make(StringList, 0, len(raw))
	seen := make(map[string]bool)
	for _, d := range raw {
		normalized := domains.Normalize(d)
		if !domains.Valid(normalized) {
			return nil, sharederrors.ValidationError("competitor_domains",
				fmt.Sprintf("%q is not a valid domain", d))
		}
		if normalized == primary {
			return nil, sharederrors.ValidationError("competitor_domains",
				"primary domain cannot be a competitor")
		}
		if !seen[normalized] {
			seen[normalized] = true
			out = append(out, normalized)
		}
	}
	return out, nil
}
