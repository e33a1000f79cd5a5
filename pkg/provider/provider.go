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

// Package provider defines the adapter contract for generative-AI answering
// engines. An adapter turns a query string into a structured answer with the
// citation list the engine surfaced, under that engine's rate-limit
// discipline. Concrete adapters live in the adapters subpackage and register
// into an immutable Registry at process start.
package provider

import (
	"context"
	"time"
)

// Platform identifies one answering engine.
type Platform string

const (
	PlatformGoogleAIOverview Platform = "google_ai_overview"
	PlatformGemini           Platform = "gemini"
	PlatformChatGPT          Platform = "chatgpt"
	PlatformPerplexity       Platform = "perplexity"
	PlatformCopilot          Platform = "copilot"
	PlatformClaude           Platform = "claude"
	PlatformGrok             Platform = "grok"
	PlatformDeepSeek         Platform = "deepseek"
)

// AllPlatforms returns the platforms known at this release, in stable order.
func AllPlatforms() []Platform {
	return []Platform{
		PlatformGoogleAIOverview,
		PlatformGemini,
		PlatformChatGPT,
		PlatformPerplexity,
		PlatformCopilot,
		PlatformClaude,
		PlatformGrok,
		PlatformDeepSeek,
	}
}

// IsKnownPlatform reports whether name is a registered platform identifier.
func IsKnownPlatform(name string) bool {
	for _, p := range AllPlatforms() {
		if string(p) == name {
			return true
		}
	}
	return false
}

// Locale narrows a query to a language/country market.
type Locale struct {
	Language string `json:"language" yaml:"language"`
	Country  string `json:"country" yaml:"country"`
}

// RecencyFilter limits grounding results by age.
type RecencyFilter string

const (
	RecencyDay   RecencyFilter = "day"
	RecencyWeek  RecencyFilter = "week"
	RecencyMonth RecencyFilter = "month"
	RecencyNone  RecencyFilter = "none"
)

// Options tunes a single Query call. Zero values take adapter defaults.
type Options struct {
	Temperature      float64
	MaxTokens        int
	Timeout          time.Duration
	Locale           Locale
	RecencyFilter    RecencyFilter
	GroundingEnabled bool
}

// Citation is one URL an engine surfaced, with its 1-based dense rank in
// emission order.
type Citation struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Rank    int    `json:"rank"`
}

// Answer is the normalized result of one provider query.
type Answer struct {
	Provider       Platform   `json:"provider"`
	Query          string     `json:"query"`
	ResponseText   string     `json:"response_text"`
	Citations      []Citation `json:"citations"`
	ResponseTimeMs int64      `json:"response_time_ms"`
}

// RateLimitStatus describes the adapter's current sliding-window usage.
type RateLimitStatus struct {
	Limit   int       `json:"limit"`
	Used    int       `json:"used"`
	ResetAt time.Time `json:"reset_at"`
}

// Adapter is the single contract every provider integration implements.
type Adapter interface {
	// Platform returns the identifier this adapter serves.
	Platform() Platform

	// Query interrogates the engine with queryText. Errors are always
	// *Error so callers can branch on Kind and Retriable.
	Query(ctx context.Context, queryText string, opts Options) (*Answer, error)

	// RateLimitStatus reports the sliding-window state.
	RateLimitStatus() RateLimitStatus

	// Healthcheck verifies the adapter can reach its upstream.
	Healthcheck(ctx context.Context) error
}
