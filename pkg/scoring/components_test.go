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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aiviz/citewatch/internal/storage"
)

func mention(platform string, position int, trackedAt time.Time) storage.Citation {
	return storage.Citation{
		Platform:         platform,
		TrackedAt:        trackedAt,
		DomainMentioned:  true,
		CitationPosition: &position,
		Sentiment:        storage.SentimentNeutral,
	}
}

var _ = Describe("Component weights", func() {
	It("should have weights for all five components summing to one", func() {
		total := 0.0
		for _, component := range []string{"frequency", "position", "diversity", "context", "momentum"} {
			weight := GetComponentWeight(component)
			Expect(weight).To(BeNumerically(">", 0.0),
				"component %q should have a positive weight", component)
			total += weight
		}
		Expect(total).To(BeNumerically("~", 1.0, 1e-9))
	})

	It("should return 0.0 for unknown components", func() {
		Expect(GetComponentWeight("unknown")).To(Equal(0.0))
	})

	It("should weigh frequency highest", func() {
		for component, weight := range ComponentWeights {
			if component != "frequency" {
				Expect(ComponentWeights["frequency"]).To(BeNumerically(">=", weight))
			}
		}
	})
})

var _ = Describe("GradeFor", func() {
	It("should map score bands to letters", func() {
		Expect(GradeFor(95)).To(Equal("A+"))
		Expect(GradeFor(90)).To(Equal("A+"))
		Expect(GradeFor(85)).To(Equal("A"))
		Expect(GradeFor(72)).To(Equal("B"))
		Expect(GradeFor(65)).To(Equal("C"))
		Expect(GradeFor(50)).To(Equal("D"))
		Expect(GradeFor(39.2)).To(Equal("F"))
		Expect(GradeFor(0)).To(Equal("F"))
	})
})

var _ = Describe("CalculateComponents", func() {
	Context("reference scenario: four mentions over ten keywords", func() {
		// Positions 1, 1, 2, 3 split over two platforms, all neutral, no
		// activity in the current or prior ISO week.
		var citations []storage.Citation
		asOf := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

		BeforeEach(func() {
			old := asOf.AddDate(0, 0, -20)
			citations = []storage.Citation{
				mention("gemini", 1, old),
				mention("gemini", 1, old.Add(time.Hour)),
				mention("chatgpt", 2, old.Add(2*time.Hour)),
				mention("chatgpt", 3, old.Add(3*time.Hour)),
			}
		})

		It("should reproduce the pinned component values", func() {
			components := CalculateComponents(citations, 10, 8, asOf)

			Expect(components.Frequency).To(BeNumerically("~", 8.0, 1e-9))
			Expect(components.Position).To(BeNumerically("~", 91.75, 1e-9))
			Expect(components.Diversity).To(BeNumerically("~", 25.0, 1e-9))
			Expect(components.Context).To(BeNumerically("~", 50.0, 1e-9))
			Expect(components.Momentum).To(BeNumerically("~", 0.0, 1e-9))

			overall := components.Composite()
			Expect(overall).To(BeNumerically("~", 39.225, 1e-9))
			Expect(GradeFor(overall)).To(Equal("F"))
		})

		It("should be deterministic across repeated runs", func() {
			first := CalculateComponents(citations, 10, 8, asOf)
			second := CalculateComponents(citations, 10, 8, asOf)
			Expect(first).To(Equal(second))
		})
	})

	Context("with no citations", func() {
		It("should zero every component except context", func() {
			components := CalculateComponents(nil, 5, 8, time.Now())

			Expect(components.Frequency).To(Equal(0.0))
			Expect(components.Position).To(Equal(0.0))
			Expect(components.Diversity).To(Equal(0.0))
			Expect(components.Context).To(Equal(50.0))
			Expect(components.Momentum).To(Equal(0.0))
		})
	})

	Context("frequency saturation", func() {
		It("should cap at 100", func() {
			asOf := time.Now()
			citations := make([]storage.Citation, 0, 20)
			for i := 0; i < 20; i++ {
				citations = append(citations, mention("gemini", 1, asOf.AddDate(0, 0, -10)))
			}
			components := CalculateComponents(citations, 1, 8, asOf)
			Expect(components.Frequency).To(Equal(100.0))
		})
	})

	Context("position floor", func() {
		It("should not go below zero for deep positions", func() {
			asOf := time.Now()
			citations := []storage.Citation{mention("gemini", 30, asOf.AddDate(0, 0, -10))}
			components := CalculateComponents(citations, 1, 8, asOf)
			Expect(components.Position).To(Equal(0.0))
		})
	})

	Context("momentum", func() {
		asOf := time.Date(2025, 6, 25, 12, 0, 0, 0, time.UTC) // Wednesday

		It("should score 100 when activity starts this week", func() {
			citations := []storage.Citation{mention("gemini", 1, asOf.Add(-time.Hour))}
			components := CalculateComponents(citations, 1, 8, asOf)
			Expect(components.Momentum).To(Equal(100.0))
		})

		It("should map flat week-over-week onto 50", func() {
			citations := []storage.Citation{
				mention("gemini", 1, asOf.Add(-time.Hour)),
				mention("gemini", 1, asOf.AddDate(0, 0, -7)),
			}
			components := CalculateComponents(citations, 1, 8, asOf)
			Expect(components.Momentum).To(Equal(50.0))
		})

		It("should clip decline at zero", func() {
			citations := []storage.Citation{
				mention("gemini", 1, asOf.AddDate(0, 0, -7)),
				mention("gemini", 1, asOf.AddDate(0, 0, -7).Add(time.Hour)),
			}
			components := CalculateComponents(citations, 1, 8, asOf)
			// -100% growth maps to 0.
			Expect(components.Momentum).To(Equal(0.0))
		})
	})

	Context("context mix", func() {
		It("should score the positive share", func() {
			asOf := time.Now()
			old := asOf.AddDate(0, 0, -10)
			positive := mention("gemini", 1, old)
			positive.Sentiment = storage.SentimentPositive
			negative := mention("gemini", 2, old)
			negative.Sentiment = storage.SentimentNegative

			components := CalculateComponents([]storage.Citation{positive, positive, negative}, 1, 8, asOf)
			Expect(components.Context).To(BeNumerically("~", 66.666, 0.01))
		})
	})
})
