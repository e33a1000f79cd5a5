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
	"time"

	"go.uber.org/zap"

	"github.com/aiviz/citewatch/pkg/provider"
)

// perplexity speaks the Perplexity chat-completions API. Citations arrive as
// a flat URI array with no titles or snippets; rank is array position + 1.
type perplexity struct {
	base
}

// NewPerplexity builds the Perplexity adapter.
func NewPerplexity(cfg Config, logger *zap.Logger) provider.Adapter {
	return &perplexity{
		base: newBase(provider.PlatformPerplexity, cfg,
			"https://api.perplexity.ai", "sonar", logger),
	}
}

type perplexityRequest struct {
	Model                  string        `json:"model"`
	Messages               []chatMessage `json:"messages"`
	Temperature            float64       `json:"temperature,omitempty"`
	MaxTokens              int           `json:"max_tokens,omitempty"`
	SearchRecencyFilter    string        `json:"search_recency_filter,omitempty"`
	ReturnRelatedQuestions bool          `json:"return_related_questions"`
}

type perplexityResponse struct {
	Citations []string `json:"citations"`
	Choices   []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *perplexity) Query(ctx context.Context, queryText string, opts provider.Options) (*provider.Answer, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, provider.NewError(a.platform, provider.ErrTimeout, "rate limit wait canceled", err)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req := perplexityRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "user", Content: queryText},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.RecencyFilter != "" && opts.RecencyFilter != provider.RecencyNone {
		req.SearchRecencyFilter = string(opts.RecencyFilter)
	}

	start := time.Now()
	var resp perplexityResponse
	err := a.doJSON(ctx, "POST", a.endpoint+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + a.apiKey}, req, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, provider.NewError(a.platform, provider.ErrMalformedResponse, "response has no choices", nil)
	}

	citations := make([]provider.Citation, 0, len(resp.Citations))
	for i, uri := range resp.Citations {
		citations = append(citations, provider.Citation{URL: uri, Rank: i + 1})
	}

	return &provider.Answer{
		Provider:       a.platform,
		Query:          queryText,
		ResponseText:   resp.Choices[0].Message.Content,
		Citations:      provider.DenseRanks(citations),
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (a *perplexity) Healthcheck(ctx context.Context) error {
	// Perplexity exposes no listing endpoint; a minimal completion is the
	// cheapest reachability probe.
	req := perplexityRequest{
		Model:     a.model,
		Messages:  []chatMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}
	return a.doJSON(ctx, "POST", a.endpoint+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + a.apiKey}, req, nil)
}
