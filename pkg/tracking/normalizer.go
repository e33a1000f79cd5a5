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

// Package tracking turns one (keyword, project, provider) tuple into a
// persisted citation: it runs the provider adapter, classifies the cited
// URLs against the project's domains, scores sentiment and confidence, and
// writes the record.
package tracking

import (
	"github.com/aiviz/citewatch/internal/storage"
	"github.com/aiviz/citewatch/pkg/provider"
	"github.com/aiviz/citewatch/pkg/shared/domains"
)

// NormalizedAnswer is the classification of one provider answer against a
// project's primary and competitor domains.
type NormalizedAnswer struct {
	DomainMentioned     bool
	CitationPosition    *int
	CitationContext     *string
	CompetitorCitations storage.CompetitorCitations
	TotalSourcesCited   int
}

// NormalizeAnswer deduplicates the citation list by URL (first occurrence
// keeps the earliest rank), finds the first target-matching entry, and
// classifies the rest. Entries whose host cannot be determined are dropped;
// they still count toward the source total when the provider itself ranked
// them. Additional target URLs beyond the first collapse into the single
// target mention.
//
// Every non-target host is recorded as a competitor citation, tracked or
// not, so share-of-voice can rank unconfigured rivals; scoring filters to
// the project's configured set.
func NormalizeAnswer(answer *provider.Answer, primaryDomain string) NormalizedAnswer {
	primary := domains.Normalize(primaryDomain)

	var out NormalizedAnswer
	seen := make(map[string]bool, len(answer.Citations))

	for _, c := range answer.Citations {
		if c.URL == "" || seen[c.URL] {
			continue
		}
		seen[c.URL] = true

		host, ok := domains.FromURL(c.URL)
		if !ok {
			if c.Rank > 0 {
				out.TotalSourcesCited++
			}
			continue
		}

		if domains.Matches(host, primary) {
			if !out.DomainMentioned {
				out.DomainMentioned = true
				rank := c.Rank
				out.CitationPosition = &rank
				if ctx := citationContext(c); ctx != "" {
					out.CitationContext = &ctx
				}
				out.TotalSourcesCited++
			}
			// Further target URLs collapse into the first mention.
			continue
		}

		out.CompetitorCitations = append(out.CompetitorCitations, storage.CompetitorCitation{
			Domain:   host,
			URL:      c.URL,
			Position: c.Rank,
			Context:  citationContext(c),
		})
		out.TotalSourcesCited++
	}

	return out
}

func citationContext(c provider.Citation) string {
	if c.Snippet != "" {
		return c.Snippet
	}
	return c.Title
}
