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

package scoring

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/aiviz/citewatch/internal/storage"
)

type fakeStores struct {
	project   *storage.Project
	keywords  []storage.Keyword
	citations []storage.Citation

	insertedScores []*storage.VisibilityScore
	priorScores    []storage.VisibilityScore
	metrics        map[string]*storage.DailyMetric
	alerts         []*storage.Alert
	mentionBefore  map[string]bool
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		metrics:       make(map[string]*storage.DailyMetric),
		mentionBefore: make(map[string]bool),
	}
}

func (f *fakeStores) GetByID(ctx context.Context, id string) (*storage.Project, error) {
	return f.project, nil
}

func (f *fakeStores) ListByProject(ctx context.Context, projectID string, activeOnly bool) ([]storage.Keyword, error) {
	return f.keywords, nil
}

func (f *fakeStores) ListWindow(ctx context.Context, projectID string, from, to time.Time) ([]storage.Citation, error) {
	var out []storage.Citation
	for _, c := range f.citations {
		if !c.TrackedAt.Before(from) && !c.TrackedAt.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStores) ListDay(ctx context.Context, projectID string, day time.Time) ([]storage.Citation, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return f.ListWindow(ctx, projectID, start, start.Add(24*time.Hour-time.Nanosecond))
}

func (f *fakeStores) HasMentionBefore(ctx context.Context, projectID, platform string, cutoff time.Time) (bool, error) {
	return f.mentionBefore[platform], nil
}

func (f *fakeStores) Insert(ctx context.Context, s *storage.VisibilityScore) error {
	f.insertedScores = append(f.insertedScores, s)
	return nil
}

func (f *fakeStores) LatestBefore(ctx context.Context, projectID string, cutoff time.Time) (*storage.VisibilityScore, error) {
	var best *storage.VisibilityScore
	for i := range f.priorScores {
		s := &f.priorScores[i]
		if !s.CalculatedAt.After(cutoff) && (best == nil || s.CalculatedAt.After(best.CalculatedAt)) {
			best = s
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best, nil
}

func (f *fakeStores) Upsert(ctx context.Context, m *storage.DailyMetric) error {
	f.metrics[m.Platform+"/"+m.Date.Format("2006-01-02")] = m
	return nil
}

type fakeAlerts struct {
	inserted []*storage.Alert
}

func (f *fakeAlerts) Insert(ctx context.Context, a *storage.Alert) error {
	f.inserted = append(f.inserted, a)
	return nil
}

func (f *fakeAlerts) ExistsForPlatform(ctx context.Context, projectID, alertType, platform string) (bool, error) {
	for _, a := range f.inserted {
		if a.AlertType == alertType && a.Platform != nil && *a.Platform == platform {
			return true, nil
		}
	}
	return false, nil
}

var _ = Describe("Scoring Service", func() {
	var (
		stores  *fakeStores
		alerts  *fakeAlerts
		service *Service
		ctx     context.Context
		asOf    time.Time
	)

	BeforeEach(func() {
		stores = newFakeStores()
		alerts = &fakeAlerts{}
		service = NewService(stores, stores, stores, stores, stores, alerts, zap.NewNop())
		ctx = context.Background()
		asOf = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

		stores.project = &storage.Project{
			ID:                "proj-1",
			PrimaryDomain:     "acme.com",
			CompetitorDomains: storage.StringList{"other.com", "rival.io"},
		}
		stores.keywords = make([]storage.Keyword, 10)
		for i := range stores.keywords {
			stores.keywords[i] = storage.Keyword{ID: "kw", IsActive: true}
		}
	})

	Describe("ComputeVisibilityScore", func() {
		BeforeEach(func() {
			old := asOf.AddDate(0, 0, -20)
			stores.citations = []storage.Citation{
				mention("gemini", 1, old),
				mention("gemini", 1, old.Add(time.Hour)),
				mention("chatgpt", 2, old.Add(2*time.Hour)),
				mention("chatgpt", 3, old.Add(3*time.Hour)),
			}
		})

		It("should append the pinned score row", func() {
			score, err := service.ComputeVisibilityScore(ctx, "proj-1", asOf)

			Expect(err).ToNot(HaveOccurred())
			Expect(score.OverallScore).To(BeNumerically("~", 39.225, 1e-9))
			Expect(score.Grade).To(Equal("F"))
			Expect(score.FrequencyScore).To(BeNumerically("~", 8.0, 1e-9))
			Expect(score.PositionScore).To(BeNumerically("~", 91.75, 1e-9))
			Expect(score.Delta7d).To(BeNil())
			Expect(score.Delta30d).To(BeNil())
			Expect(stores.insertedScores).To(HaveLen(1))
		})

		It("should be deterministic back to back", func() {
			first, err := service.ComputeVisibilityScore(ctx, "proj-1", asOf)
			Expect(err).ToNot(HaveOccurred())
			second, err := service.ComputeVisibilityScore(ctx, "proj-1", asOf)
			Expect(err).ToNot(HaveOccurred())

			Expect(first.OverallScore).To(Equal(second.OverallScore))
			Expect(first.Grade).To(Equal(second.Grade))
		})

		It("should carry deltas against prior scores", func() {
			stores.priorScores = []storage.VisibilityScore{
				{ProjectID: "proj-1", CalculatedAt: asOf.AddDate(0, 0, -10), OverallScore: 30.0},
				{ProjectID: "proj-1", CalculatedAt: asOf.AddDate(0, 0, -35), OverallScore: 20.0},
			}

			score, err := service.ComputeVisibilityScore(ctx, "proj-1", asOf)

			Expect(err).ToNot(HaveOccurred())
			Expect(score.Delta7d).ToNot(BeNil())
			Expect(*score.Delta7d).To(BeNumerically("~", 9.225, 1e-9))
			Expect(score.Delta30d).ToNot(BeNil())
			Expect(*score.Delta30d).To(BeNumerically("~", 19.225, 1e-9))
		})

		It("should emit new_platform once per platform", func() {
			_, err := service.ComputeVisibilityScore(ctx, "proj-1", asOf)
			Expect(err).ToNot(HaveOccurred())

			platforms := make(map[string]int)
			for _, a := range alerts.inserted {
				Expect(a.AlertType).To(Equal(storage.AlertNewPlatform))
				platforms[*a.Platform]++
			}
			Expect(platforms).To(HaveLen(2))
			Expect(platforms["gemini"]).To(Equal(1))
			Expect(platforms["chatgpt"]).To(Equal(1))

			// Recompute: ExistsForPlatform suppresses duplicates.
			_, err = service.ComputeVisibilityScore(ctx, "proj-1", asOf)
			Expect(err).ToNot(HaveOccurred())
			Expect(alerts.inserted).To(HaveLen(2))
		})

		It("should not emit new_platform for platforms mentioned before the window", func() {
			stores.mentionBefore["gemini"] = true

			_, err := service.ComputeVisibilityScore(ctx, "proj-1", asOf)
			Expect(err).ToNot(HaveOccurred())

			for _, a := range alerts.inserted {
				Expect(*a.Platform).ToNot(Equal("gemini"))
			}
		})
	})

	Describe("CalculateShareOfVoice", func() {
		BeforeEach(func() {
			service.now = func() time.Time { return asOf }
			old := asOf.AddDate(0, 0, -5)

			withCompetitors := mention("gemini", 1, old)
			withCompetitors.CompetitorCitations = storage.CompetitorCitations{
				{Domain: "other.com", URL: "https://other.com/a", Position: 2},
				{Domain: "untracked.net", URL: "https://untracked.net/b", Position: 3},
			}
			noMention := storage.Citation{
				Platform:  "chatgpt",
				TrackedAt: old,
				Sentiment: storage.SentimentNeutral,
				CompetitorCitations: storage.CompetitorCitations{
					{Domain: "other.com", URL: "https://other.com/c", Position: 1},
				},
			}
			stores.citations = []storage.Citation{withCompetitors, noMention}
		})

		It("should split mentions between self, tracked competitors and the total", func() {
			entries, err := service.CalculateShareOfVoice(ctx, "proj-1")

			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(HaveLen(3))

			// Total mentions: 1 self + 3 competitor citations = 4.
			Expect(entries[0].Domain).To(Equal("acme.com"))
			Expect(entries[0].IsSelf).To(BeTrue())
			Expect(entries[0].Mentions).To(Equal(1))
			Expect(entries[0].Share).To(Equal(25.00))

			Expect(entries[1].Domain).To(Equal("other.com"))
			Expect(entries[1].Mentions).To(Equal(2))
			Expect(entries[1].Share).To(Equal(50.00))

			Expect(entries[2].Domain).To(Equal("rival.io"))
			Expect(entries[2].Mentions).To(Equal(0))
			Expect(entries[2].Share).To(Equal(0.00))
		})

		It("should report zero shares on an empty window", func() {
			stores.citations = nil

			entries, err := service.CalculateShareOfVoice(ctx, "proj-1")

			Expect(err).ToNot(HaveOccurred())
			for _, entry := range entries {
				Expect(entry.Share).To(Equal(0.00))
			}
		})
	})

	Describe("TrendingKeywords", func() {
		BeforeEach(func() {
			service.now = func() time.Time { return asOf }
			stores.keywords = []storage.Keyword{
				{ID: "kw-rising", KeywordText: "best widgets", IsActive: true},
				{ID: "kw-falling", KeywordText: "widget pricing", IsActive: true},
				{ID: "kw-quiet", KeywordText: "widget faq", IsActive: true},
			}

			thisWeek := asOf.Add(-2 * time.Hour)
			lastWeek := asOf.AddDate(0, 0, -7)

			rise1 := mention("gemini", 1, thisWeek)
			rise1.KeywordID = "kw-rising"
			rise2 := mention("chatgpt", 2, thisWeek)
			rise2.KeywordID = "kw-rising"
			fall := mention("gemini", 1, lastWeek)
			fall.KeywordID = "kw-falling"
			stores.citations = []storage.Citation{rise1, rise2, fall}
		})

		It("should rank by citation delta and mark directions", func() {
			trends, err := service.TrendingKeywords(ctx, "proj-1", 10)

			Expect(err).ToNot(HaveOccurred())
			Expect(trends).To(HaveLen(3))
			Expect(trends[0].KeywordID).To(Equal("kw-rising"))
			Expect(trends[0].Direction).To(Equal("up"))
			Expect(trends[0].CitationDelta).To(Equal(2))
			Expect(trends[len(trends)-1].KeywordID).To(Equal("kw-falling"))
			Expect(trends[len(trends)-1].Direction).To(Equal("down"))
		})

		It("should honor the limit", func() {
			trends, err := service.TrendingKeywords(ctx, "proj-1", 1)
			Expect(err).ToNot(HaveOccurred())
			Expect(trends).To(HaveLen(1))
		})
	})

	Describe("GenerateDailyMetrics", func() {
		day := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)

		BeforeEach(func() {
			during := day.Add(10 * time.Hour)
			m1 := mention("gemini", 1, during)
			m1.Sentiment = storage.SentimentPositive
			m1.CompetitorCitations = storage.CompetitorCitations{{Domain: "other.com", Position: 2}}
			m2 := mention("gemini", 3, during.Add(time.Hour))
			miss := storage.Citation{Platform: "chatgpt", TrackedAt: during, Sentiment: storage.SentimentNeutral}
			stores.citations = []storage.Citation{m1, m2, miss}
		})

		It("should aggregate per platform", func() {
			Expect(service.GenerateDailyMetrics(ctx, "proj-1", day)).To(Succeed())

			gemini := stores.metrics["gemini/2025-06-20"]
			Expect(gemini).ToNot(BeNil())
			Expect(gemini.Queries).To(Equal(2))
			Expect(gemini.Mentions).To(Equal(2))
			Expect(*gemini.AvgPosition).To(Equal(2.0))
			Expect(gemini.PositiveCount).To(Equal(1))
			Expect(gemini.NeutralCount).To(Equal(1))
			Expect(gemini.CompetitorMentions).To(Equal(1))

			chatgpt := stores.metrics["chatgpt/2025-06-20"]
			Expect(chatgpt).ToNot(BeNil())
			Expect(chatgpt.Queries).To(Equal(1))
			Expect(chatgpt.Mentions).To(Equal(0))
			Expect(chatgpt.AvgPosition).To(BeNil())
		})

		It("should converge under recomputation", func() {
			Expect(service.GenerateDailyMetrics(ctx, "proj-1", day)).To(Succeed())
			first := *stores.metrics["gemini/2025-06-20"]

			Expect(service.GenerateDailyMetrics(ctx, "proj-1", day)).To(Succeed())
			second := *stores.metrics["gemini/2025-06-20"]

			Expect(second).To(Equal(first))
		})
	})
})
