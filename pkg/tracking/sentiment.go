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
	"regexp"
	"strings"

	"github.com/aiviz/citewatch/internal/storage"
	"github.com/aiviz/citewatch/pkg/shared/domains"
)

// Default lexicons. Overridable at construction so deployments can extend
// them without a rebuild; these exact sets are what the tests pin.
var (
	DefaultPositiveLexicon = []string{"best", "excellent", "top", "recommended", "leading", "outstanding", "superior"}
	DefaultNegativeLexicon = []string{"worst", "poor", "avoid", "bad", "terrible", "disappointing"}
)

// A sentence boundary is terminal punctuation followed by whitespace or the
// end of the text. Splitting on bare [.!?] would sever the dot inside the
// target domain itself and the containment check below could never match.
var sentenceSplitRe = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// SentimentAnalyzer scores response text deterministically against word
// lexicons, restricted to sentences that mention the target domain.
type SentimentAnalyzer struct {
	positive map[string]bool
	negative map[string]bool
}

// NewSentimentAnalyzer builds an analyzer. Empty lexicons fall back to the
// defaults.
func NewSentimentAnalyzer(positive, negative []string) *SentimentAnalyzer {
	if len(positive) == 0 {
		positive = DefaultPositiveLexicon
	}
	if len(negative) == 0 {
		negative = DefaultNegativeLexicon
	}
	return &SentimentAnalyzer{
		positive: toSet(positive),
		negative: toSet(negative),
	}
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}

// Analyze returns positive, neutral or negative for responseText with
// respect to primaryDomain. Sentences that do not mention the domain are
// ignored; ties and empty selections are neutral.
func (a *SentimentAnalyzer) Analyze(responseText, primaryDomain string) string {
	target := domains.Normalize(primaryDomain)
	if target == "" || responseText == "" {
		return storage.SentimentNeutral
	}

	var positives, negatives int
	for _, sentence := range sentenceSplitRe.Split(responseText, -1) {
		lower := strings.ToLower(sentence)
		if !strings.Contains(lower, target) {
			continue
		}
		for _, word := range strings.Fields(lower) {
			word = strings.Trim(word, `.,;:!?"'()[]`)
			if a.positive[word] {
				positives++
			}
			if a.negative[word] {
				negatives++
			}
		}
	}

	switch {
	case positives > negatives:
		return storage.SentimentPositive
	case negatives > positives:
		return storage.SentimentNegative
	default:
		return storage.SentimentNeutral
	}
}

// ConfidenceScore is the response-shape heuristic in [0,1]: more citations,
// a fast answer, and a substantial body all raise it.
func ConfidenceScore(citationCount int, responseTimeMs int64, responseLength int) float64 {
	score := 0.5
	switch {
	case citationCount >= 5:
		score += 0.2
	case citationCount >= 3:
		score += 0.1
	}
	if responseTimeMs < 3000 {
		score += 0.1
	}
	if responseLength > 500 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

const (
	summaryLimit = 500
	// A sentence boundary qualifies only past this share of the limit;
	// earlier cuts would discard too much of the answer.
	summaryMinShare = 0.7
)

// Summarize truncates text to the summary limit on a sentence boundary when
// one lands late enough, else hard-truncates with an ellipsis.
func Summarize(text string) string {
	if len(text) <= summaryLimit {
		return text
	}

	window := text[:summaryLimit]
	minEnd := int(float64(summaryLimit) * summaryMinShare)

	boundaries := sentenceSplitRe.FindAllStringIndex(window, -1)
	for i := len(boundaries) - 1; i >= 0; i-- {
		if end := boundaries[i][1]; end >= minEnd {
			return strings.TrimSpace(window[:end])
		}
	}
	return window + "..."
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
