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

// claude speaks the Anthropic Messages API. Responses carry no structured
// citation field for plain text generation, so sources are scanned out of
// the concatenated text blocks.
type claude struct {
	base
}

// NewClaude builds the Claude adapter.
func NewClaude(cfg Config, logger *zap.Logger) provider.Adapter {
	return &claude{
		base: newBase(provider.PlatformClaude, cfg,
			"https://api.anthropic.com/v1", "claude-sonnet-4-20250514", logger),
	}
}

type claudeRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *claude) Query(ctx context.Context, queryText string, opts provider.Options) (*provider.Answer, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, provider.NewError(a.platform, provider.ErrTimeout, "rate limit wait canceled", err)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	req := claudeRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		Messages: []chatMessage{
			{Role: "user", Content: queryText},
		},
		Temperature: opts.Temperature,
	}

	start := time.Now()
	var resp claudeResponse
	err := a.doJSON(ctx, "POST", a.endpoint+"/messages", map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": "2023-06-01",
	}, req, &resp)
	if err != nil {
		return nil, err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, provider.NewError(a.platform, provider.ErrMalformedResponse, "response has no text content", nil)
	}

	return &provider.Answer{
		Provider:       a.platform,
		Query:          queryText,
		ResponseText:   text,
		Citations:      provider.ExtractCitations(text),
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (a *claude) Healthcheck(ctx context.Context) error {
	return a.doJSON(ctx, "GET", a.endpoint+"/models", map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": "2023-06-01",
	}, nil, nil)
}
