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

// Package adapters contains the concrete provider integrations. Each adapter
// composes one SlidingWindow limiter and one circuit breaker, speaks its
// engine's HTTP dialect, and normalizes citations to dense 1-based ranks
// before the answer leaves the package.
package adapters

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/aiviz/citewatch/pkg/provider"
)

// Config holds the per-provider settings resolved from process config.
type Config struct {
	APIKey     string
	Endpoint   string
	Model      string
	RatePerMin int
	Timeout    time.Duration
}

// Factory builds one adapter from its config.
type Factory func(cfg Config, logger *zap.Logger) provider.Adapter

// factories maps each platform to its constructor. The set is closed at a
// given release; new engines are added by extending this table.
var factories = map[provider.Platform]Factory{
	provider.PlatformGoogleAIOverview: NewGoogleAIOverview,
	provider.PlatformGemini:           NewGemini,
	provider.PlatformChatGPT:          NewChatGPT,
	provider.PlatformPerplexity:       NewPerplexity,
	provider.PlatformCopilot:          NewCopilot,
	provider.PlatformClaude:           NewClaude,
	provider.PlatformGrok:             NewGrok,
	provider.PlatformDeepSeek:         NewDeepSeek,
}

// Build populates a registry with an adapter for every platform whose config
// carries an API key. Platforms without a key stay unregistered.
func Build(configs map[provider.Platform]Config, logger *zap.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	for platform, factory := range factories {
		cfg, ok := configs[platform]
		if !ok || cfg.APIKey == "" {
			continue
		}
		if err := registry.Register(factory(cfg, logger)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

const (
	defaultRatePerMin = 10
	defaultTimeout    = 60 * time.Second
)

// base carries the plumbing every adapter shares. Concrete adapters embed it
// and implement only request building and response parsing.
type base struct {
	platform provider.Platform
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
	limiter  *provider.SlidingWindow
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

func newBase(platform provider.Platform, cfg Config, defaultEndpoint, defaultModel string, logger *zap.Logger) base {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	rate := cfg.RatePerMin
	if rate <= 0 {
		rate = defaultRatePerMin
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return base{
		platform: platform,
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeout},
		limiter:  provider.NewSlidingWindow(rate, time.Minute),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    string(platform),
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		logger: logger.Named(string(platform)),
	}
}

func (b *base) Platform() provider.Platform {
	return b.platform
}

func (b *base) RateLimitStatus() provider.RateLimitStatus {
	return b.limiter.Status()
}
