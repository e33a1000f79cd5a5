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

package tracking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aiviz/citewatch/internal/storage"
	"github.com/aiviz/citewatch/pkg/provider"
	"github.com/aiviz/citewatch/pkg/shared/logging"
)

// CitationStore is the slice of the citation repository the engine needs.
type CitationStore interface {
	Insert(ctx context.Context, c *storage.Citation) error
	Latest(ctx context.Context, keywordID, platform string) (*storage.Citation, error)
}

// KeywordStore is the slice of the keyword repository the engine needs.
type KeywordStore interface {
	ListByProject(ctx context.Context, projectID string, activeOnly bool) ([]storage.Keyword, error)
	TouchLastTracked(ctx context.Context, id string, at time.Time) error
}

// AlertSink receives each (previous, current) citation pair after the
// current one is persisted. Implementations must be best-effort: a sink
// failure never fails tracking.
type AlertSink interface {
	OnCitation(ctx context.Context, project *storage.Project, keyword *storage.Keyword, previous, current *storage.Citation)
}

// TrackResult is the per-platform outcome of one tracking attempt.
type TrackResult struct {
	Platform        string            `json:"platform"`
	Success         bool              `json:"success"`
	Error           string            `json:"error,omitempty"`
	ErrorKind       string            `json:"error_kind,omitempty"`
	Retriable       bool              `json:"retriable,omitempty"`
	DomainMentioned bool              `json:"domain_mentioned"`
	ResponseTimeMs  int64             `json:"response_time_ms"`
	Citation        *storage.Citation `json:"citation,omitempty"`
}

// ProjectSummary aggregates a TrackProject run.
type ProjectSummary struct {
	Attempts     int `json:"attempts"`
	Successes    int `json:"successes"`
	Failures     int `json:"failures"`
	NewCitations int `json:"new_citations"`
}

// Config tunes the engine.
type Config struct {
	// KeywordSpacing is the minimum interval between keyword starts in a
	// TrackProject run, smoothing upstream load.
	KeywordSpacing time.Duration
	// DefaultOptions go to every adapter query.
	DefaultOptions provider.Options
}

// Engine coordinates adapter, normalizer, sentiment and persistence for one
// (keyword, project, provider) tuple at a time. Parallelism across keywords
// belongs to the worker, not here.
type Engine struct {
	registry  *provider.Registry
	citations CitationStore
	keywords  KeywordStore
	analyzer  *SentimentAnalyzer
	alerts    AlertSink
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine builds a tracking engine. alerts may be nil.
func NewEngine(registry *provider.Registry, citations CitationStore, keywords KeywordStore,
	analyzer *SentimentAnalyzer, alerts AlertSink, cfg Config, logger *zap.Logger) *Engine {
	if cfg.KeywordSpacing <= 0 {
		cfg.KeywordSpacing = time.Second
	}
	return &Engine{
		registry:  registry,
		citations: citations,
		keywords:  keywords,
		analyzer:  analyzer,
		alerts:    alerts,
		cfg:       cfg,
		logger:    logger.Named("tracking"),
		now:       time.Now,
	}
}

// TrackKeyword interrogates each requested platform sequentially, persists
// one citation per success, and stamps last_tracked_at once at the end.
func (e *Engine) TrackKeyword(ctx context.Context, project *storage.Project, keyword *storage.Keyword,
	platforms []provider.Platform) []TrackResult {

	if len(platforms) == 0 {
		platforms = e.registry.Platforms()
	}

	results := make([]TrackResult, 0, len(platforms))
	for _, platform := range platforms {
		results = append(results, e.trackOne(ctx, project, keyword, platform, true))
	}

	if err := e.keywords.TouchLastTracked(ctx, keyword.ID, e.now()); err != nil {
		e.logger.Warn("failed to stamp last_tracked_at",
			logging.TrackingFields("track_keyword", project.ID, keyword.ID, "").Error(err).ToZap()...)
	}
	return results
}

// TrackPlatform runs a single (keyword, platform) attempt for the worker.
// last_tracked_at is stamped here too since the worker tracks one platform
// per job.
func (e *Engine) TrackPlatform(ctx context.Context, project *storage.Project, keyword *storage.Keyword,
	platform provider.Platform) TrackResult {

	result := e.trackOne(ctx, project, keyword, platform, true)
	if err := e.keywords.TouchLastTracked(ctx, keyword.ID, e.now()); err != nil {
		e.logger.Warn("failed to stamp last_tracked_at",
			logging.TrackingFields("track_platform", project.ID, keyword.ID, string(platform)).Error(err).ToZap()...)
	}
	return result
}

// QuickTest runs the full pipeline without persisting anything. The
// returned citations carry no IDs and last_tracked_at is untouched.
func (e *Engine) QuickTest(ctx context.Context, queryText, domain string, platforms []provider.Platform) []TrackResult {
	if len(platforms) == 0 {
		platforms = e.registry.Platforms()
	}
	project := &storage.Project{PrimaryDomain: domain}
	keyword := &storage.Keyword{KeywordText: queryText}

	results := make([]TrackResult, 0, len(platforms))
	for _, platform := range platforms {
		results = append(results, e.trackOne(ctx, project, keyword, platform, false))
	}
	return results
}

// TrackProject iterates a project's active keywords with spaced starts.
func (e *Engine) TrackProject(ctx context.Context, project *storage.Project, platforms []provider.Platform,
	keywordFilter map[string]bool) (*ProjectSummary, error) {

	keywords, err := e.keywords.ListByProject(ctx, project.ID, true)
	if err != nil {
		return nil, err
	}

	summary := &ProjectSummary{}
	for i, keyword := range keywords {
		if keywordFilter != nil && !keywordFilter[keyword.ID] {
			continue
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(e.cfg.KeywordSpacing):
			}
		}

		kw := keyword
		for _, result := range e.TrackKeyword(ctx, project, &kw, platforms) {
			summary.Attempts++
			if result.Success {
				summary.Successes++
				if result.Citation != nil {
					summary.NewCitations++
				}
			} else {
				summary.Failures++
			}
		}
	}
	return summary, nil
}

func (e *Engine) trackOne(ctx context.Context, project *storage.Project, keyword *storage.Keyword,
	platform provider.Platform, persist bool) TrackResult {

	adapter, ok := e.registry.Get(platform)
	if !ok {
		return TrackResult{Platform: string(platform), Error: "provider not configured", ErrorKind: "not_configured"}
	}

	answer, err := adapter.Query(ctx, keyword.KeywordText, e.cfg.DefaultOptions)
	if err != nil {
		perr := provider.AsError(platform, err)
		e.logger.Warn("provider query failed",
			logging.TrackingFields("query", project.ID, keyword.ID, string(platform)).Error(perr).ToZap()...)
		return TrackResult{
			Platform:  string(platform),
			Error:     perr.Error(),
			ErrorKind: string(perr.Kind),
			Retriable: perr.Retriable,
		}
	}

	citation := e.buildCitation(answer, project, keyword)
	result := TrackResult{
		Platform:        string(platform),
		Success:         true,
		DomainMentioned: citation.DomainMentioned,
		ResponseTimeMs:  answer.ResponseTimeMs,
		Citation:        citation,
	}
	if !persist {
		return result
	}

	var previous *storage.Citation
	prev, err := e.citations.Latest(ctx, keyword.ID, string(platform))
	if err == nil {
		previous = prev
	} else if !errors.Is(err, storage.ErrNotFound) {
		e.logger.Warn("failed to load previous citation",
			logging.TrackingFields("diff", project.ID, keyword.ID, string(platform)).Error(err).ToZap()...)
	}

	if err := e.citations.Insert(ctx, citation); err != nil {
		// The adapter call already happened; the worker backs off with a
		// long floor before re-querying.
		return TrackResult{
			Platform:       string(platform),
			Error:          err.Error(),
			ErrorKind:      "store",
			Retriable:      true,
			ResponseTimeMs: answer.ResponseTimeMs,
		}
	}

	if e.alerts != nil {
		e.alerts.OnCitation(ctx, project, keyword, previous, citation)
	}
	return result
}

// buildCitation runs normalization and sentiment over one answer.
func (e *Engine) buildCitation(answer *provider.Answer, project *storage.Project, keyword *storage.Keyword) *storage.Citation {
	normalized := NormalizeAnswer(answer, project.PrimaryDomain)

	return &storage.Citation{
		ProjectID:           project.ID,
		KeywordID:           keyword.ID,
		Platform:            string(answer.Provider),
		TrackedAt:           e.now(),
		DomainMentioned:     normalized.DomainMentioned,
		CitationPosition:    normalized.CitationPosition,
		CitationContext:     normalized.CitationContext,
		FullResponseText:    answer.ResponseText,
		ResponseSummary:     Summarize(answer.ResponseText),
		Sentiment:           e.analyzer.Analyze(answer.ResponseText, project.PrimaryDomain),
		ConfidenceScore:     ConfidenceScore(len(answer.Citations), answer.ResponseTimeMs, len(answer.ResponseText)),
		WordCount:           WordCount(answer.ResponseText),
		CompetitorCitations: normalized.CompetitorCitations,
		TotalSourcesCited:   normalized.TotalSourcesCited,
		ResponseTimeMs:      answer.ResponseTimeMs,
	}
}
