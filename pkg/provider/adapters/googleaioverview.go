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

package adapters

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aiviz/citewatch/pkg/provider"
)

// googleAIOverview scrapes Google's AI Overview block through a SERP API.
// A result page without the AI Overview block is a valid answer with an
// empty citation list, not an error.
type googleAIOverview struct {
	base
}

// NewGoogleAIOverview builds the AI Overview adapter.
func NewGoogleAIOverview(cfg Config, logger *zap.Logger) provider.Adapter {
	return &googleAIOverview{
		base: newBase(provider.PlatformGoogleAIOverview, cfg,
			"https://serpapi.com/search", "", logger),
	}
}

type serpResponse struct {
	AIOverview *struct {
		TextBlocks []struct {
			Type    string `json:"type"`
			Snippet string `json:"snippet"`
		} `json:"text_blocks"`
		References []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Index   int    `json:"index"`
		} `json:"references"`
	} `json:"ai_overview"`
	OrganicResults []struct {
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

func (a *googleAIOverview) Query(ctx context.Context, queryText string, opts provider.Options) (*provider.Answer, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, provider.NewError(a.platform, provider.ErrTimeout, "rate limit wait canceled", err)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", queryText)
	params.Set("api_key", a.apiKey)
	if opts.Locale.Language != "" {
		params.Set("hl", opts.Locale.Language)
	}
	if opts.Locale.Country != "" {
		params.Set("gl", opts.Locale.Country)
	}

	start := time.Now()
	var resp serpResponse
	err := a.doJSON(ctx, "GET", a.endpoint+"?"+params.Encode(), nil, nil, &resp)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start).Milliseconds()

	// No AI Overview block: return the plain snippet with no citations.
	if resp.AIOverview == nil {
		var snippet string
		if len(resp.OrganicResults) > 0 {
			snippet = resp.OrganicResults[0].Snippet
		}
		return &provider.Answer{
			Provider:       a.platform,
			Query:          queryText,
			ResponseText:   snippet,
			Citations:      nil,
			ResponseTimeMs: elapsed,
		}, nil
	}

	var text strings.Builder
	for _, block := range resp.AIOverview.TextBlocks {
		if block.Snippet == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n")
		}
		text.WriteString(block.Snippet)
	}

	citations := make([]provider.Citation, 0, len(resp.AIOverview.References))
	for i, ref := range resp.AIOverview.References {
		if ref.Link == "" {
			continue
		}
		rank := ref.Index + 1
		if ref.Index <= 0 {
			rank = i + 1
		}
		citations = append(citations, provider.Citation{
			URL:     ref.Link,
			Title:   ref.Title,
			Snippet: ref.Snippet,
			Rank:    rank,
		})
	}

	return &provider.Answer{
		Provider:       a.platform,
		Query:          queryText,
		ResponseText:   text.String(),
		Citations:      provider.DenseRanks(citations),
		ResponseTimeMs: elapsed,
	}, nil
}

func (a *googleAIOverview) Healthcheck(ctx context.Context) error {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", "ping")
	params.Set("api_key", a.apiKey)
	params.Set("num", "1")
	return a.doJSON(ctx, "GET", a.endpoint+"?"+params.Encode(), nil, nil, nil)
}
