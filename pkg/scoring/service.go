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

package scoring

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aiviz/citewatch/internal/storage"
	"github.com/aiviz/citewatch/pkg/provider"
	"github.com/aiviz/citewatch/pkg/shared/domains"
	"github.com/aiviz/citewatch/pkg/shared/logging"
)

// scoreWindowDays is the citation lookback for score and share-of-voice
// computation.
const scoreWindowDays = 30

// CitationStore is the slice of the citation repository scoring reads.
type CitationStore interface {
	ListWindow(ctx context.Context, projectID string, from, to time.Time) ([]storage.Citation, error)
	ListDay(ctx context.Context, projectID string, day time.Time) ([]storage.Citation, error)
	HasMentionBefore(ctx context.Context, projectID, platform string, cutoff time.Time) (bool, error)
}

// KeywordStore supplies the active keyword set.
type KeywordStore interface {
	ListByProject(ctx context.Context, projectID string, activeOnly bool) ([]storage.Keyword, error)
}

// ProjectStore supplies project domain configuration.
type ProjectStore interface {
	GetByID(ctx context.Context, id string) (*storage.Project, error)
}

// ScoreStore persists the score series.
type ScoreStore interface {
	Insert(ctx context.Context, s *storage.VisibilityScore) error
	LatestBefore(ctx context.Context, projectID string, cutoff time.Time) (*storage.VisibilityScore, error)
}

// MetricStore persists daily aggregates.
type MetricStore interface {
	Upsert(ctx context.Context, m *storage.DailyMetric) error
}

// AlertStore receives the batch-derived alerts (new_platform).
type AlertStore interface {
	Insert(ctx context.Context, a *storage.Alert) error
	ExistsForPlatform(ctx context.Context, projectID, alertType, platform string) (bool, error)
}

// Service computes scores and aggregates. All reads of one run share a
// single snapshot window so results are internally consistent.
type Service struct {
	projects  ProjectStore
	keywords  KeywordStore
	citations CitationStore
	scores    ScoreStore
	metrics   MetricStore
	alerts    AlertStore
	logger    *zap.Logger
	now       func() time.Time
}

// NewService builds a scoring service. alerts may be nil.
func NewService(projects ProjectStore, keywords KeywordStore, citations CitationStore,
	scores ScoreStore, metrics MetricStore, alerts AlertStore, logger *zap.Logger) *Service {
	return &Service{
		projects:  projects,
		keywords:  keywords,
		citations: citations,
		scores:    scores,
		metrics:   metrics,
		alerts:    alerts,
		logger:    logger.Named("scoring"),
		now:       time.Now,
	}
}

// ComputeVisibilityScore derives and appends one score row over the 30-day
// window ending at asOf (zero means now).
func (s *Service) ComputeVisibilityScore(ctx context.Context, projectID string, asOf time.Time) (*storage.VisibilityScore, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}

	keywords, err := s.keywords.ListByProject(ctx, projectID, true)
	if err != nil {
		return nil, err
	}
	citations, err := s.citations.ListWindow(ctx, projectID, asOf.AddDate(0, 0, -scoreWindowDays), asOf)
	if err != nil {
		return nil, err
	}

	components := CalculateComponents(citations, len(keywords), len(provider.AllPlatforms()), asOf)
	overall := components.Composite()

	score := &storage.VisibilityScore{
		ProjectID:      projectID,
		CalculatedAt:   asOf,
		OverallScore:   overall,
		Grade:          GradeFor(overall),
		FrequencyScore: components.Frequency,
		PositionScore:  components.Position,
		DiversityScore: components.Diversity,
		ContextScore:   components.Context,
		MomentumScore:  components.Momentum,
	}

	if prior, err := s.scores.LatestBefore(ctx, projectID, asOf.AddDate(0, 0, -7)); err == nil {
		delta := overall - prior.OverallScore
		score.Delta7d = &delta
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if prior, err := s.scores.LatestBefore(ctx, projectID, asOf.AddDate(0, 0, -30)); err == nil {
		delta := overall - prior.OverallScore
		score.Delta30d = &delta
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if err := s.scores.Insert(ctx, score); err != nil {
		return nil, err
	}

	s.emitNewPlatformAlerts(ctx, projectID, citations, asOf.AddDate(0, 0, -scoreWindowDays))
	return score, nil
}

// ShareEntry is one domain's slice of total mentions.
type ShareEntry struct {
	Domain   string  `json:"domain"`
	Mentions int     `json:"mentions"`
	Share    float64 `json:"share"`
	IsSelf   bool    `json:"is_self"`
}

// CalculateShareOfVoice splits the window's mention volume between the
// project's domain and its configured competitors. A zero total reports 0
// for all.
func (s *Service) CalculateShareOfVoice(ctx context.Context, projectID string) ([]ShareEntry, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	asOf := s.now()
	citations, err := s.citations.ListWindow(ctx, projectID, asOf.AddDate(0, 0, -scoreWindowDays), asOf)
	if err != nil {
		return nil, err
	}

	selfMentions := 0
	total := 0
	competitorCounts := make(map[string]int)
	for _, c := range citations {
		if c.DomainMentioned {
			selfMentions++
			total++
		}
		for _, comp := range c.CompetitorCitations {
			total++
			for _, tracked := range project.CompetitorDomains {
				if domains.Matches(comp.Domain, tracked) {
					competitorCounts[tracked]++
					break
				}
			}
		}
	}

	share := func(mentions int) float64 {
		if total == 0 {
			return 0
		}
		return math.Round(float64(mentions)/float64(total)*100*100) / 100
	}

	entries := []ShareEntry{{
		Domain:   project.PrimaryDomain,
		Mentions: selfMentions,
		Share:    share(selfMentions),
		IsSelf:   true,
	}}
	for _, competitor := range project.CompetitorDomains {
		entries = append(entries, ShareEntry{
			Domain:   competitor,
			Mentions: competitorCounts[competitor],
			Share:    share(competitorCounts[competitor]),
		})
	}
	return entries, nil
}

// TrendingKeyword is one keyword's week-over-week movement.
type TrendingKeyword struct {
	KeywordID     string  `json:"keyword_id"`
	KeywordText   string  `json:"keyword_text"`
	Direction     string  `json:"direction"`
	CitationDelta int     `json:"citation_delta"`
	PositionDelta float64 `json:"position_delta"`
	ThisWeek      int     `json:"this_week"`
	LastWeek      int     `json:"last_week"`
}

// TrendingKeywords ranks keywords by citation delta between the ISO week of
// now and the preceding week.
func (s *Service) TrendingKeywords(ctx context.Context, projectID string, limit int) ([]TrendingKeyword, error) {
	keywords, err := s.keywords.ListByProject(ctx, projectID, true)
	if err != nil {
		return nil, err
	}
	asOf := s.now()
	citations, err := s.citations.ListWindow(ctx, projectID, asOf.AddDate(0, 0, -14), asOf)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		thisWeek, lastWeek         int
		thisPosSum, lastPosSum     float64
		thisPosCount, lastPosCount int
	}
	buckets := make(map[string]*bucket)
	asOfYear, asOfWeek := asOf.ISOWeek()
	priorYear, priorWeek := asOf.AddDate(0, 0, -7).ISOWeek()

	for _, c := range citations {
		if !c.DomainMentioned {
			continue
		}
		b := buckets[c.KeywordID]
		if b == nil {
			b = &bucket{}
			buckets[c.KeywordID] = b
		}
		year, week := c.TrackedAt.ISOWeek()
		switch {
		case year == asOfYear && week == asOfWeek:
			b.thisWeek++
			if c.CitationPosition != nil {
				b.thisPosSum += float64(*c.CitationPosition)
				b.thisPosCount++
			}
		case year == priorYear && week == priorWeek:
			b.lastWeek++
			if c.CitationPosition != nil {
				b.lastPosSum += float64(*c.CitationPosition)
				b.lastPosCount++
			}
		}
	}

	trends := make([]TrendingKeyword, 0, len(keywords))
	for _, kw := range keywords {
		b := buckets[kw.ID]
		if b == nil {
			b = &bucket{}
		}

		var positionDelta float64
		if b.thisPosCount > 0 && b.lastPosCount > 0 {
			// Falling average position is an improvement.
			positionDelta = b.lastPosSum/float64(b.lastPosCount) - b.thisPosSum/float64(b.thisPosCount)
		}
		citationDelta := b.thisWeek - b.lastWeek

		direction := "stable"
		if citationDelta > 0 || positionDelta > 0 {
			direction = "up"
		} else if citationDelta < 0 || positionDelta < 0 {
			direction = "down"
		}

		trends = append(trends, TrendingKeyword{
			KeywordID:     kw.ID,
			KeywordText:   kw.KeywordText,
			Direction:     direction,
			CitationDelta: citationDelta,
			PositionDelta: positionDelta,
			ThisWeek:      b.thisWeek,
			LastWeek:      b.lastWeek,
		})
	}

	sort.SliceStable(trends, func(i, j int) bool {
		return trends[i].CitationDelta > trends[j].CitationDelta
	})
	if limit > 0 && len(trends) > limit {
		trends = trends[:limit]
	}
	return trends, nil
}

// GenerateDailyMetrics upserts the per-platform aggregates of one calendar
// day. Recomputation converges: the same citations produce the same rows.
func (s *Service) GenerateDailyMetrics(ctx context.Context, projectID string, date time.Time) error {
	citations, err := s.citations.ListDay(ctx, projectID, date)
	if err != nil {
		return err
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	type agg struct {
		queries, mentions              int
		positionSum                    float64
		positionCount                  int
		positives, neutrals, negatives int
		competitorMentions             int
	}
	perPlatform := make(map[string]*agg)
	for _, c := range citations {
		a := perPlatform[c.Platform]
		if a == nil {
			a = &agg{}
			perPlatform[c.Platform] = a
		}
		a.queries++
		if c.DomainMentioned {
			a.mentions++
		}
		if c.CitationPosition != nil {
			a.positionSum += float64(*c.CitationPosition)
			a.positionCount++
		}
		switch c.Sentiment {
		case storage.SentimentPositive:
			a.positives++
		case storage.SentimentNegative:
			a.negatives++
		default:
			a.neutrals++
		}
		a.competitorMentions += len(c.CompetitorCitations)
	}

	platforms := make([]string, 0, len(perPlatform))
	for platform := range perPlatform {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)

	for _, platform := range platforms {
		a := perPlatform[platform]
		metric := &storage.DailyMetric{
			ProjectID:          projectID,
			Date:               day,
			Platform:           platform,
			Queries:            a.queries,
			Mentions:           a.mentions,
			PositiveCount:      a.positives,
			NeutralCount:       a.neutrals,
			NegativeCount:      a.negatives,
			CompetitorMentions: a.competitorMentions,
		}
		if a.positionCount > 0 {
			avg := a.positionSum / float64(a.positionCount)
			metric.AvgPosition = &avg
		}
		if err := s.metrics.Upsert(ctx, metric); err != nil {
			return err
		}
	}
	return nil
}

// emitNewPlatformAlerts raises new_platform once per (project, platform)
// when a platform's first self-mention lands inside the window. Best-effort
// like every alert write.
func (s *Service) emitNewPlatformAlerts(ctx context.Context, projectID string, citations []storage.Citation, windowStart time.Time) {
	if s.alerts == nil {
		return
	}

	seen := make(map[string]bool)
	for _, c := range citations {
		if !c.DomainMentioned || seen[c.Platform] {
			continue
		}
		seen[c.Platform] = true

		hadBefore, err := s.citations.HasMentionBefore(ctx, projectID, c.Platform, windowStart)
		if err != nil || hadBefore {
			continue
		}
		exists, err := s.alerts.ExistsForPlatform(ctx, projectID, storage.AlertNewPlatform, c.Platform)
		if err != nil || exists {
			continue
		}

		platform := c.Platform
		alert := &storage.Alert{
			ProjectID:    projectID,
			Platform:     &platform,
			AlertType:    storage.AlertNewPlatform,
			Severity:     storage.SeverityInfo,
			Title:        "First citation on " + platform,
			Description:  "The tracked domain was cited on " + platform + " for the first time.",
			CurrentValue: &platform,
		}
		if err := s.alerts.Insert(ctx, alert); err != nil {
			s.logger.Warn("failed to persist new_platform alert",
				logging.NewFields().Component("scoring").Project(projectID).Platform(platform).Error(err).ToZap()...)
		}
	}
}
