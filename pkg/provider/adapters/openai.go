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

// chatCompletions serves the OpenAI-compatible engines: ChatGPT itself plus
// Grok, DeepSeek, and Copilot, which all speak the chat-completions dialect.
// These engines return no structured citation field, so sources are scanned
// out of the response text.
type chatCompletions struct {
	base
}

// NewChatGPT builds the adapter for the OpenAI chat-completions API.
func NewChatGPT(cfg Config, logger *zap.Logger) provider.Adapter {
	return &chatCompletions{
		base: newBase(provider.PlatformChatGPT, cfg,
			"https://api.openai.com/v1", "gpt-4o-search-preview", logger),
	}
}

// NewGrok builds the adapter for the x.ai chat-completions API.
func NewGrok(cfg Config, logger *zap.Logger) provider.Adapter {
	return &chatCompletions{
		base: newBase(provider.PlatformGrok, cfg,
			"https://api.x.ai/v1", "grok-3-latest", logger),
	}
}

// NewDeepSeek builds the adapter for the DeepSeek chat-completions API.
func NewDeepSeek(cfg Config, logger *zap.Logger) provider.Adapter {
	return &chatCompletions{
		base: newBase(provider.PlatformDeepSeek, cfg,
			"https://api.deepseek.com/v1", "deepseek-chat", logger),
	}
}

// NewCopilot builds the adapter for the Copilot-compatible completions
// endpoint.
func NewCopilot(cfg Config, logger *zap.Logger) provider.Adapter {
	return &chatCompletions{
		base: newBase(provider.PlatformCopilot, cfg,
			"https://api.githubcopilot.com/v1", "gpt-4o", logger),
	}
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *chatCompletions) Query(ctx context.Context, queryText string, opts provider.Options) (*provider.Answer, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, provider.NewError(a.platform, provider.ErrTimeout, "rate limit wait canceled", err)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req := chatCompletionsRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "user", Content: queryText},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	start := time.Now()
	var resp chatCompletionsResponse
	err := a.doJSON(ctx, "POST", a.endpoint+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + a.apiKey}, req, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, provider.NewError(a.platform, provider.ErrMalformedResponse, "response has no choices", nil)
	}

	text := resp.Choices[0].Message.Content
	return &provider.Answer{
		Provider:       a.platform,
		Query:          queryText,
		ResponseText:   text,
		Citations:      provider.ExtractCitations(text),
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (a *chatCompletions) Healthcheck(ctx context.Context) error {
	return a.doJSON(ctx, "GET", a.endpoint+"/models",
		map[string]string{"Authorization": "Bearer " + a.apiKey}, nil, nil)
}
