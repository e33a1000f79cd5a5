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
	"time"

	"github.com/aiviz/citewatch/internal/storage"
)

// Components holds the five component scores, each in [0,100].
type Components struct {
	Frequency float64
	Position  float64
	Diversity float64
	Context   float64
	Momentum  float64
}

// Composite is the weighted sum of the components.
func (c Components) Composite() float64 {
	return c.Frequency*ComponentWeights["frequency"] +
		c.Position*ComponentWeights["position"] +
		c.Diversity*ComponentWeights["diversity"] +
		c.Context*ComponentWeights["context"] +
		c.Momentum*ComponentWeights["momentum"]
}

// CalculateComponents derives the component scores from one snapshot of
// window citations. activeKeywords is the project's active keyword count;
// registeredPlatforms is the size of the provider set at this release.
func CalculateComponents(citations []storage.Citation, activeKeywords, registeredPlatforms int, asOf time.Time) Components {
	var components Components

	selfCount := 0
	positionSum := 0.0
	positionCount := 0
	platforms := make(map[string]bool)
	positives, negatives := 0, 0
	thisWeek, lastWeek := 0, 0

	asOfYear, asOfWeek := asOf.ISOWeek()
	priorYear, priorWeek := asOf.AddDate(0, 0, -7).ISOWeek()

	for _, c := range citations {
		switch c.Sentiment {
		case storage.SentimentPositive:
			positives++
		case storage.SentimentNegative:
			negatives++
		}

		if !c.DomainMentioned {
			continue
		}
		selfCount++
		platforms[c.Platform] = true
		if c.CitationPosition != nil {
			positionSum += float64(*c.CitationPosition)
			positionCount++
		}

		year, week := c.TrackedAt.ISOWeek()
		switch {
		case year == asOfYear && week == asOfWeek:
			thisWeek++
		case year == priorYear && week == priorWeek:
			lastWeek++
		}
	}

	// Frequency: citations per keyword, saturating at five per keyword.
	if activeKeywords < 1 {
		activeKeywords = 1
	}
	components.Frequency = float64(selfCount) / float64(activeKeywords) * 20
	if components.Frequency > 100 {
		components.Frequency = 100
	}

	// Position: rank 1 scores 100, each rank down costs 11 points.
	if positionCount > 0 {
		avgPos := positionSum / float64(positionCount)
		components.Position = 100 - (avgPos-1)*11
		if components.Position < 0 {
			components.Position = 0
		}
	}

	// Diversity: platform coverage over the registered set.
	if registeredPlatforms > 0 {
		components.Diversity = float64(len(platforms)) / float64(registeredPlatforms) * 100
	}

	// Context: positive share among opinionated citations; 50 when none.
	if positives+negatives > 0 {
		components.Context = float64(positives) / float64(positives+negatives) * 100
	} else {
		components.Context = 50
	}

	// Momentum: week-over-week growth mapped onto [0,100].
	switch {
	case lastWeek == 0 && thisWeek > 0:
		components.Momentum = 100
	case lastWeek == 0:
		components.Momentum = 0
	default:
		growth := float64(thisWeek-lastWeek) / float64(lastWeek) * 100
		if growth > 100 {
			growth = 100
		}
		if growth < -100 {
			growth = -100
		}
		components.Momentum = (growth + 100) / 2
	}

	return components
}
