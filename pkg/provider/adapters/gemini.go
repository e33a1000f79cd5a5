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
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aiviz/citewatch/pkg/provider"
)

// gemini speaks the generateContent API with Google Search grounding.
// Citations come from two places that are merged first-seen: the grounding
// metadata chunk list, and inline [n] references scattered through the text.
type gemini struct {
	base
}

// NewGemini builds the Gemini adapter.
func NewGemini(cfg Config, logger *zap.Logger) provider.Adapter {
	return &gemini{
		base: newBase(provider.PlatformGemini, cfg,
			"https://generativelanguage.googleapis.com/v1beta", "gemini-2.0-flash", logger),
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
	Tools    []geminiTool    `json:"tools,omitempty"`
	Config   *geminiGenCfg   `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiGenCfg struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

func (a *gemini) Query(ctx context.Context, queryText string, opts provider.Options) (*provider.Answer, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, provider.NewError(a.platform, provider.ErrTimeout, "rate limit wait canceled", err)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: queryText}}},
		},
	}
	if opts.GroundingEnabled {
		req.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	}
	if opts.Temperature > 0 || opts.MaxTokens > 0 {
		req.Config = &geminiGenCfg{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
		}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", a.endpoint, a.model)

	start := time.Now()
	var resp geminiResponse
	err := a.doJSON(ctx, "POST", url,
		map[string]string{"x-goog-api-key": a.apiKey}, req, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 {
		return nil, provider.NewError(a.platform, provider.ErrMalformedResponse, "response has no candidates", nil)
	}

	candidate := resp.Candidates[0]
	var text string
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}

	// Grounding chunks first (they carry titles), then any inline
	// references; DenseRanks keeps the first occurrence of each URL.
	var citations []provider.Citation
	if candidate.GroundingMetadata != nil {
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			citations = append(citations, provider.Citation{
				URL:   chunk.Web.URI,
				Title: chunk.Web.Title,
			})
		}
	}
	citations = append(citations, provider.ExtractCitations(text)...)

	return &provider.Answer{
		Provider:       a.platform,
		Query:          queryText,
		ResponseText:   text,
		Citations:      provider.DenseRanks(citations),
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (a *gemini) Healthcheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/models/%s", a.endpoint, a.model)
	return a.doJSON(ctx, "GET", url,
		map[string]string{"x-goog-api-key": a.apiKey}, nil, nil)
}
