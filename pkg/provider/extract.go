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

package provider

import (
	"regexp"
	"strings"
)

var (
	markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	bareURLRe      = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)
	numberedRefRe  = regexp.MustCompile(`(?m)^\s*\[(\d+)\][^\n]*?(https?://\S+)`)
)

// ExtractCitations scans unstructured response text for cited URLs. Engines
// without a structured citation field (OpenAI-style chat responses) embed
// sources three ways, scanned in precedence order:
//
//  1. Markdown links [title](url)
//  2. Bare http(s) URLs
//  3. Numbered references "[n] ... url"
//
// URLs are deduplicated first-seen and assigned dense 1-based ranks.
func ExtractCitations(text string) []Citation {
	if text == "" {
		return nil
	}

	seen := make(map[string]bool)
	var citations []Citation

	add := func(url, title string) {
		url = trimURL(url)
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		citations = append(citations, Citation{
			URL:   url,
			Title: title,
			Rank:  len(citations) + 1,
		})
	}

	for _, m := range markdownLinkRe.FindAllStringSubmatch(text, -1) {
		add(m[2], strings.TrimSpace(m[1]))
	}
	for _, url := range bareURLRe.FindAllString(text, -1) {
		add(url, "")
	}
	for _, m := range numberedRefRe.FindAllStringSubmatch(text, -1) {
		add(m[2], "")
	}

	return citations
}

// trimURL strips trailing punctuation that sentence context attaches to a
// bare URL.
func trimURL(url string) string {
	return strings.TrimRight(url, ".,;:!?")
}

// DenseRanks rewrites citation ranks to dense 1-based first-seen order,
// dropping duplicate URLs. Engines that emit sparse or implied ranks go
// through this before the answer leaves the adapter.
func DenseRanks(citations []Citation) []Citation {
	seen := make(map[string]bool, len(citations))
	out := make([]Citation, 0, len(citations))
	for _, c := range citations {
		url := trimURL(c.URL)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		c.URL = url
		c.Rank = len(out) + 1
		out = append(out, c)
	}
	return out
}
