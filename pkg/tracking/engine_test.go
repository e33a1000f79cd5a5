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
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/aiviz/citewatch/internal/storage"
	"github.com/aiviz/citewatch/pkg/provider"
)

// fakeAdapter returns a canned answer or error.
type fakeAdapter struct {
	platform provider.Platform
	answer   *provider.Answer
	err      error
	calls    int
}

func (f *fakeAdapter) Platform() provider.Platform { return f.platform }

func (f *fakeAdapter) Query(ctx context.Context, queryText string, opts provider.Options) (*provider.Answer, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	answer := *f.answer
	answer.Query = queryText
	return &answer, nil
}

func (f *fakeAdapter) RateLimitStatus() provider.RateLimitStatus {
	return provider.RateLimitStatus{Limit: 10}
}

func (f *fakeAdapter) Healthcheck(ctx context.Context) error { return nil }

// memoryCitations is an in-memory CitationStore.
type memoryCitations struct {
	inserted []*storage.Citation
	latest   map[string]*storage.Citation
}

func newMemoryCitations() *memoryCitations {
	return &memoryCitations{latest: make(map[string]*storage.Citation)}
}

func (m *memoryCitations) Insert(ctx context.Context, c *storage.Citation) error {
	c.ID = "cit-" + string(rune('a'+len(m.inserted)))
	m.inserted = append(m.inserted, c)
	m.latest[c.KeywordID+"/"+c.Platform] = c
	return nil
}

func (m *memoryCitations) Latest(ctx context.Context, keywordID, platform string) (*storage.Citation, error) {
	if c, ok := m.latest[keywordID+"/"+platform]; ok {
		return c, nil
	}
	return nil, storage.ErrNotFound
}

// memoryKeywords is an in-memory KeywordStore.
type memoryKeywords struct {
	keywords    []storage.Keyword
	lastTracked map[string]time.Time
}

func (m *memoryKeywords) ListByProject(ctx context.Context, projectID string, activeOnly bool) ([]storage.Keyword, error) {
	return m.keywords, nil
}

func (m *memoryKeywords) TouchLastTracked(ctx context.Context, id string, at time.Time) error {
	if m.lastTracked == nil {
		m.lastTracked = make(map[string]time.Time)
	}
	m.lastTracked[id] = at
	return nil
}

// recordingSink captures alert sink invocations.
type recordingSink struct {
	pairs []struct{ previous, current *storage.Citation }
}

func (s *recordingSink) OnCitation(ctx context.Context, project *storage.Project, keyword *storage.Keyword,
	previous, current *storage.Citation) {
	s.pairs = append(s.pairs, struct{ previous, current *storage.Citation }{previous, current})
}

var _ = Describe("Engine", func() {
	var (
		registry  *provider.Registry
		citations *memoryCitations
		keywords  *memoryKeywords
		sink      *recordingSink
		engine    *Engine
		project   *storage.Project
		keyword   *storage.Keyword
		ctx       context.Context
	)

	BeforeEach(func() {
		registry = provider.NewRegistry()
		citations = newMemoryCitations()
		keywords = &memoryKeywords{}
		sink = &recordingSink{}
		engine = NewEngine(registry, citations, keywords, NewSentimentAnalyzer(nil, nil), sink,
			Config{KeywordSpacing: time.Millisecond}, zap.NewNop())
		project = &storage.Project{ID: "proj-1", PrimaryDomain: "acme.com"}
		keyword = &storage.Keyword{ID: "kw-1", ProjectID: "proj-1", KeywordText: "best widgets"}
		ctx = context.Background()
	})

	Context("first successful tracking attempt", func() {
		BeforeEach(func() {
			Expect(registry.Register(&fakeAdapter{
				platform: provider.PlatformGemini,
				answer: &provider.Answer{
					Provider:     provider.PlatformGemini,
					ResponseText: "Acme.com is a leading provider.",
					Citations: []provider.Citation{
						{URL: "https://other.com/x", Rank: 1},
						{URL: "https://www.acme.com/guide", Rank: 2},
					},
					ResponseTimeMs: 1200,
				},
			})).To(Succeed())
		})

		It("should persist the expected citation and invoke the sink with no previous", func() {
			results := engine.TrackKeyword(ctx, project, keyword, []provider.Platform{provider.PlatformGemini})

			Expect(results).To(HaveLen(1))
			Expect(results[0].Success).To(BeTrue())
			Expect(results[0].DomainMentioned).To(BeTrue())

			Expect(citations.inserted).To(HaveLen(1))
			c := citations.inserted[0]
			Expect(c.DomainMentioned).To(BeTrue())
			Expect(*c.CitationPosition).To(Equal(2))
			Expect(c.Sentiment).To(Equal(storage.SentimentPositive))
			Expect(c.TotalSourcesCited).To(Equal(2))
			Expect(c.CompetitorCitations).To(HaveLen(1))
			Expect(c.CompetitorCitations[0].Domain).To(Equal("other.com"))
			Expect(c.CompetitorCitations[0].Position).To(Equal(1))

			Expect(sink.pairs).To(HaveLen(1))
			Expect(sink.pairs[0].previous).To(BeNil())
			Expect(sink.pairs[0].current).To(Equal(c))

			Expect(keywords.lastTracked).To(HaveKey("kw-1"))
		})
	})

	Context("provider error", func() {
		BeforeEach(func() {
			Expect(registry.Register(&fakeAdapter{
				platform: provider.PlatformChatGPT,
				err:      provider.NewError(provider.PlatformChatGPT, provider.ErrRateLimited, "slow down", nil),
			})).To(Succeed())
		})

		It("should not persist a citation", func() {
			results := engine.TrackKeyword(ctx, project, keyword, []provider.Platform{provider.PlatformChatGPT})

			Expect(results[0].Success).To(BeFalse())
			Expect(results[0].Error).To(ContainSubstring("rate_limited"))
			Expect(citations.inserted).To(BeEmpty())
			Expect(sink.pairs).To(BeEmpty())
		})
	})

	Context("unconfigured provider", func() {
		It("should report it without an upstream call", func() {
			results := engine.TrackKeyword(ctx, project, keyword, []provider.Platform{provider.PlatformGrok})

			Expect(results[0].Success).To(BeFalse())
			Expect(results[0].Error).To(Equal("provider not configured"))
		})
	})

	Context("subsequent attempts", func() {
		BeforeEach(func() {
			Expect(registry.Register(&fakeAdapter{
				platform: provider.PlatformGemini,
				answer: &provider.Answer{
					Provider:     provider.PlatformGemini,
					ResponseText: "Answer.",
					Citations:    []provider.Citation{{URL: "https://acme.com/a", Rank: 1}},
				},
			})).To(Succeed())
		})

		It("should pass the prior citation to the sink", func() {
			engine.TrackKeyword(ctx, project, keyword, []provider.Platform{provider.PlatformGemini})
			engine.TrackKeyword(ctx, project, keyword, []provider.Platform{provider.PlatformGemini})

			Expect(sink.pairs).To(HaveLen(2))
			Expect(sink.pairs[1].previous).ToNot(BeNil())
			Expect(sink.pairs[1].previous.ID).To(Equal(citations.inserted[0].ID))
		})
	})

	Context("QuickTest", func() {
		BeforeEach(func() {
			Expect(registry.Register(&fakeAdapter{
				platform: provider.PlatformGemini,
				answer: &provider.Answer{
					Provider:     provider.PlatformGemini,
					ResponseText: "Acme.com is recommended.",
					Citations:    []provider.Citation{{URL: "https://acme.com/a", Rank: 1}},
				},
			})).To(Succeed())
		})

		It("should run the pipeline without persisting", func() {
			results := engine.QuickTest(ctx, "best widgets", "acme.com", nil)

			Expect(results).To(HaveLen(1))
			Expect(results[0].Success).To(BeTrue())
			Expect(results[0].Citation.DomainMentioned).To(BeTrue())
			Expect(citations.inserted).To(BeEmpty())
			Expect(keywords.lastTracked).To(BeEmpty())
			Expect(sink.pairs).To(BeEmpty())
		})
	})

	Context("TrackProject", func() {
		BeforeEach(func() {
			keywords.keywords = []storage.Keyword{
				{ID: "kw-1", ProjectID: "proj-1", KeywordText: "best widgets", IsActive: true},
				{ID: "kw-2", ProjectID: "proj-1", KeywordText: "widget pricing", IsActive: true},
			}
			Expect(registry.Register(&fakeAdapter{
				platform: provider.PlatformGemini,
				answer: &provider.Answer{
					Provider:  provider.PlatformGemini,
					Citations: []provider.Citation{{URL: "https://acme.com/a", Rank: 1}},
				},
			})).To(Succeed())
		})

		It("should aggregate attempts across keywords", func() {
			summary, err := engine.TrackProject(ctx, project, []provider.Platform{provider.PlatformGemini}, nil)

			Expect(err).ToNot(HaveOccurred())
			Expect(summary.Attempts).To(Equal(2))
			Expect(summary.Successes).To(Equal(2))
			Expect(summary.NewCitations).To(Equal(2))
			Expect(summary.Failures).To(Equal(0))
		})

		It("should honor the keyword filter", func() {
			summary, err := engine.TrackProject(ctx, project, []provider.Platform{provider.PlatformGemini},
				map[string]bool{"kw-2": true})

			Expect(err).ToNot(HaveOccurred())
			Expect(summary.Attempts).To(Equal(1))
			Expect(citations.inserted).To(HaveLen(1))
			Expect(citations.inserted[0].KeywordID).To(Equal("kw-2"))
		})
	})
})
