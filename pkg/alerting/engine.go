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

// Package alerting diffs each new citation against the previous one for the
// same (keyword, platform) and emits change alerts. Writes are best-effort:
// a failed alert insert is logged and never fails the tracking job.
package alerting

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/aiviz/citewatch/internal/storage"
	"github.com/aiviz/citewatch/pkg/shared/logging"
)

// positionDeltaThreshold is the minimum absolute rank move that raises a
// position_change alert.
const positionDeltaThreshold = 2

// AlertStore is the slice of the alert repository the engine needs.
type AlertStore interface {
	Insert(ctx context.Context, a *storage.Alert) error
}

// Engine implements the per-citation diff rules.
type Engine struct {
	alerts AlertStore
	logger *zap.Logger
}

// NewEngine builds an alert engine.
func NewEngine(alerts AlertStore, logger *zap.Logger) *Engine {
	return &Engine{alerts: alerts, logger: logger.Named("alerting")}
}

// OnCitation evaluates every transition rule for one (previous, current)
// pair. previous is nil when no prior citation exists for the triple.
func (e *Engine) OnCitation(ctx context.Context, project *storage.Project, keyword *storage.Keyword,
	previous, current *storage.Citation) {

	if current == nil {
		return
	}

	if previous == nil {
		if current.DomainMentioned {
			e.emit(ctx, newCitationAlert(project, keyword, current))
		}
		return
	}

	if previous.DomainMentioned && !current.DomainMentioned {
		e.emit(ctx, lostCitationAlert(project, keyword, previous, current))
	}

	if previous.DomainMentioned && current.DomainMentioned &&
		previous.CitationPosition != nil && current.CitationPosition != nil {
		prevPos, currPos := *previous.CitationPosition, *current.CitationPosition
		if delta := prevPos - currPos; abs(delta) >= positionDeltaThreshold {
			e.emit(ctx, positionChangeAlert(project, keyword, current, prevPos, currPos))
		}
	}

	if current.DomainMentioned && previous.Sentiment != current.Sentiment {
		e.emit(ctx, sentimentShiftAlert(project, keyword, previous, current))
	}
}

func (e *Engine) emit(ctx context.Context, alert *storage.Alert) {
	if err := e.alerts.Insert(ctx, alert); err != nil {
		e.logger.Warn("failed to persist alert",
			logging.NewFields().
				Component("alerting").
				Operation("insert").
				Project(alert.ProjectID).
				Custom("alert_type", alert.AlertType).
				Error(err).ToZap()...)
	}
}

func newCitationAlert(project *storage.Project, keyword *storage.Keyword, current *storage.Citation) *storage.Alert {
	position := ""
	if current.CitationPosition != nil {
		position = fmt.Sprintf(" at position %d", *current.CitationPosition)
	}
	currentValue := positionString(current.CitationPosition)
	return &storage.Alert{
		ProjectID:    project.ID,
		KeywordID:    &keyword.ID,
		Platform:     &current.Platform,
		CitationID:   &current.ID,
		AlertType:    storage.AlertNewCitation,
		Severity:     storage.SeverityInfo,
		Title:        fmt.Sprintf("%s newly cited on %s", project.PrimaryDomain, current.Platform),
		Description:  fmt.Sprintf("%q now cites %s%s for %q.", current.Platform, project.PrimaryDomain, position, keyword.KeywordText),
		CurrentValue: currentValue,
	}
}

func lostCitationAlert(project *storage.Project, keyword *storage.Keyword, previous, current *storage.Citation) *storage.Alert {
	return &storage.Alert{
		ProjectID:     project.ID,
		KeywordID:     &keyword.ID,
		Platform:      &current.Platform,
		CitationID:    &current.ID,
		AlertType:     storage.AlertLostCitation,
		Severity:      storage.SeverityWarning,
		Title:         fmt.Sprintf("%s dropped from %s", project.PrimaryDomain, current.Platform),
		Description:   fmt.Sprintf("%s no longer cites %s for %q.", current.Platform, project.PrimaryDomain, keyword.KeywordText),
		PreviousValue: positionString(previous.CitationPosition),
	}
}

func positionChangeAlert(project *storage.Project, keyword *storage.Keyword, current *storage.Citation,
	prevPos, currPos int) *storage.Alert {

	improved := currPos < prevPos
	severity := storage.SeverityWarning
	direction := "fell"
	if improved {
		severity = storage.SeverityInfo
		direction = "climbed"
	}

	changePercent := round2(float64(prevPos-currPos) / float64(prevPos) * 100)
	prevValue := strconv.Itoa(prevPos)
	currValue := strconv.Itoa(currPos)

	return &storage.Alert{
		ProjectID:     project.ID,
		KeywordID:     &keyword.ID,
		Platform:      &current.Platform,
		CitationID:    &current.ID,
		AlertType:     storage.AlertPositionChange,
		Severity:      severity,
		Title:         fmt.Sprintf("%s %s from %d to %d on %s", project.PrimaryDomain, direction, prevPos, currPos, current.Platform),
		Description:   fmt.Sprintf("Citation position for %q moved from %d to %d.", keyword.KeywordText, prevPos, currPos),
		PreviousValue: &prevValue,
		CurrentValue:  &currValue,
		ChangePercent: &changePercent,
	}
}

func sentimentShiftAlert(project *storage.Project, keyword *storage.Keyword, previous, current *storage.Citation) *storage.Alert {
	severity := storage.SeverityInfo
	if current.Sentiment == storage.SentimentNegative {
		severity = storage.SeverityWarning
	}
	return &storage.Alert{
		ProjectID:     project.ID,
		KeywordID:     &keyword.ID,
		Platform:      &current.Platform,
		CitationID:    &current.ID,
		AlertType:     storage.AlertSentimentShift,
		Severity:      severity,
		Title:         fmt.Sprintf("Sentiment on %s shifted to %s", current.Platform, current.Sentiment),
		Description:   fmt.Sprintf("Sentiment for %q moved from %s to %s.", keyword.KeywordText, previous.Sentiment, current.Sentiment),
		PreviousValue: &previous.Sentiment,
		CurrentValue:  &current.Sentiment,
	}
}

func positionString(position *int) *string {
	if position == nil {
		return nil
	}
	s := strconv.Itoa(*position)
	return &s
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
