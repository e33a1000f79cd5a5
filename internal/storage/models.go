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

// Package storage defines the persisted entities and their sqlx
// repositories. Ownership follows deletion lifecycle: keywords, citations,
// jobs, metrics, scores and alerts all cascade from their project.
package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Sentiment labels a citation's tone toward the tracked domain.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Funnel stages for keywords.
const (
	FunnelAwareness     = "awareness"
	FunnelConsideration = "consideration"
	FunnelDecision      = "decision"
)

// Tracking job statuses. Completed and failed are terminal.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusRetrying   = "retrying"
)

// Alert types.
const (
	AlertNewCitation    = "new_citation"
	AlertLostCitation   = "lost_citation"
	AlertPositionChange = "position_change"
	AlertCompetitorGain = "competitor_gain"
	AlertNewPlatform    = "new_platform"
	AlertSentimentShift = "sentiment_shift"
	AlertVolumeSpike    = "volume_spike"
)

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// StringList is a JSONB-backed string slice.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *StringList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// CompetitorCitation is one non-target URL an engine cited.
type CompetitorCitation struct {
	Domain   string `json:"domain"`
	URL      string `json:"url"`
	Position int    `json:"position"`
	Context  string `json:"context,omitempty"`
}

// CompetitorCitations is the JSONB-backed competitor list on a citation.
type CompetitorCitations []CompetitorCitation

func (c CompetitorCitations) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (c *CompetitorCitations) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// JSONMap is a JSONB-backed free-form object.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	return scanJSON(src, m)
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into JSON value", src)
	}
}

// Project is the tenant-facing container for a tracked brand domain.
type Project struct {
	ID                string     `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	PrimaryDomain     string     `db:"primary_domain" json:"primary_domain"`
	CompetitorDomains StringList `db:"competitor_domains" json:"competitor_domains"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Keyword is one tracked query string.
type Keyword struct {
	ID            string     `db:"id" json:"id"`
	ProjectID     string     `db:"project_id" json:"project_id"`
	KeywordText   string     `db:"keyword_text" json:"keyword_text"`
	PriorityLevel int        `db:"priority_level" json:"priority_level"`
	FunnelStage   string     `db:"funnel_stage" json:"funnel_stage"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	LastTrackedAt *time.Time `db:"last_tracked_at" json:"last_tracked_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Citation records what one provider said about one keyword at one time.
// Invariants: DomainMentioned=false implies CitationPosition and
// CitationContext are null, and TotalSourcesCited counts the target mention
// once (however many target URLs were cited), each competitor citation, and
// each provider-ranked entry whose host could not be determined.
type Citation struct {
	ID                  string              `db:"id" json:"id"`
	ProjectID           string              `db:"project_id" json:"project_id"`
	KeywordID           string              `db:"keyword_id" json:"keyword_id"`
	Platform            string              `db:"platform" json:"platform"`
	TrackedAt           time.Time           `db:"tracked_at" json:"tracked_at"`
	DomainMentioned     bool                `db:"domain_mentioned" json:"domain_mentioned"`
	CitationPosition    *int                `db:"citation_position" json:"citation_position,omitempty"`
	CitationContext     *string             `db:"citation_context" json:"citation_context,omitempty"`
	FullResponseText    string              `db:"full_response_text" json:"full_response_text"`
	ResponseSummary     string              `db:"response_summary" json:"response_summary"`
	Sentiment           string              `db:"sentiment" json:"sentiment"`
	ConfidenceScore     float64             `db:"confidence_score" json:"confidence_score"`
	WordCount           int                 `db:"word_count" json:"word_count"`
	CompetitorCitations CompetitorCitations `db:"competitor_citations" json:"competitor_citations"`
	TotalSourcesCited   int                 `db:"total_sources_cited" json:"total_sources_cited"`
	ResponseTimeMs      int64               `db:"response_time_ms" json:"response_time_ms"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
}

// TrackingJob is the scheduler's persisted unit of work.
type TrackingJob struct {
	ID            string     `db:"id" json:"id"`
	ProjectID     string     `db:"project_id" json:"project_id"`
	KeywordID     string     `db:"keyword_id" json:"keyword_id"`
	Platform      string     `db:"platform" json:"platform"`
	Status        string     `db:"status" json:"status"`
	ScheduledAt   time.Time  `db:"scheduled_at" json:"scheduled_at"`
	StartedAt     *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	RetryCount    int        `db:"retry_count" json:"retry_count"`
	ErrorMessage  *string    `db:"error_message" json:"error_message,omitempty"`
	CitationFound bool       `db:"citation_found" json:"citation_found"`
	ResultData    JSONMap    `db:"result_data" json:"result_data,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// DailyMetric aggregates the citations of one (project, date, platform).
// Recomputation is idempotent.
type DailyMetric struct {
	ProjectID          string    `db:"project_id" json:"project_id"`
	Date               time.Time `db:"date" json:"date"`
	Platform           string    `db:"platform" json:"platform"`
	Queries            int       `db:"queries" json:"queries"`
	Mentions           int       `db:"mentions" json:"mentions"`
	AvgPosition        *float64  `db:"avg_position" json:"avg_position,omitempty"`
	PositiveCount      int       `db:"positive_count" json:"positive_count"`
	NeutralCount       int       `db:"neutral_count" json:"neutral_count"`
	NegativeCount      int       `db:"negative_count" json:"negative_count"`
	CompetitorMentions int       `db:"competitor_mentions" json:"competitor_mentions"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// VisibilityScore is one row of the append-only score series; the current
// score is the newest CalculatedAt.
type VisibilityScore struct {
	ID             string    `db:"id" json:"id"`
	ProjectID      string    `db:"project_id" json:"project_id"`
	CalculatedAt   time.Time `db:"calculated_at" json:"calculated_at"`
	OverallScore   float64   `db:"overall_score" json:"overall_score"`
	Grade          string    `db:"grade" json:"grade"`
	FrequencyScore float64   `db:"frequency_score" json:"frequency_score"`
	PositionScore  float64   `db:"position_score" json:"position_score"`
	DiversityScore float64   `db:"diversity_score" json:"diversity_score"`
	ContextScore   float64   `db:"context_score" json:"context_score"`
	MomentumScore  float64   `db:"momentum_score" json:"momentum_score"`
	Delta7d        *float64  `db:"delta_7d" json:"delta_7d,omitempty"`
	Delta30d       *float64  `db:"delta_30d" json:"delta_30d,omitempty"`
}

// Alert is a change-driven notification on a project.
type Alert struct {
	ID            string    `db:"id" json:"id"`
	ProjectID     string    `db:"project_id" json:"project_id"`
	KeywordID     *string   `db:"keyword_id" json:"keyword_id,omitempty"`
	Platform      *string   `db:"platform" json:"platform,omitempty"`
	CitationID    *string   `db:"citation_id" json:"citation_id,omitempty"`
	AlertType     string    `db:"alert_type" json:"alert_type"`
	Severity      string    `db:"severity" json:"severity"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	PreviousValue *string   `db:"previous_value" json:"previous_value,omitempty"`
	CurrentValue  *string   `db:"current_value" json:"current_value,omitempty"`
	ChangePercent *float64  `db:"change_percent" json:"change_percent,omitempty"`
	IsRead        bool      `db:"is_read" json:"is_read"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
