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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aiviz/citewatch/pkg/provider"
)

var _ = Describe("NormalizeAnswer", func() {
	Context("with a target and a competitor citation", func() {
		It("should classify both and keep provider ranks", func() {
			answer := &provider.Answer{
				Provider:     provider.PlatformGemini,
				ResponseText: "Acme.com is a leading provider.",
				Citations: []provider.Citation{
					{URL: "https://other.com/x", Rank: 1},
					{URL: "https://www.acme.com/guide", Rank: 2},
				},
			}

			got := NormalizeAnswer(answer, "acme.com")

			Expect(got.DomainMentioned).To(BeTrue())
			Expect(got.CitationPosition).ToNot(BeNil())
			Expect(*got.CitationPosition).To(Equal(2))
			Expect(got.TotalSourcesCited).To(Equal(2))
			Expect(got.CompetitorCitations).To(HaveLen(1))
			Expect(got.CompetitorCitations[0].Domain).To(Equal("other.com"))
			Expect(got.CompetitorCitations[0].Position).To(Equal(1))
		})
	})

	Context("with a subdomain of the target", func() {
		It("should count it as a mention", func() {
			answer := &provider.Answer{
				Citations: []provider.Citation{
					{URL: "https://foo.example.com/a", Rank: 1},
				},
			}

			got := NormalizeAnswer(answer, "example.com")

			Expect(got.DomainMentioned).To(BeTrue())
			Expect(*got.CitationPosition).To(Equal(1))
		})
	})

	Context("with duplicate URLs", func() {
		It("should keep the earliest rank only", func() {
			citations := make([]provider.Citation, 0, 10)
			for i := 1; i <= 10; i++ {
				url := "https://acme.com/guide"
				if i%2 == 0 {
					url = "https://other.com/x"
				}
				citations = append(citations, provider.Citation{URL: url, Rank: i})
			}
			answer := &provider.Answer{Citations: citations}

			got := NormalizeAnswer(answer, "acme.com")

			Expect(got.DomainMentioned).To(BeTrue())
			Expect(*got.CitationPosition).To(Equal(1))
			Expect(got.CompetitorCitations).To(HaveLen(1))
			Expect(got.CompetitorCitations[0].Position).To(Equal(2))
			Expect(got.TotalSourcesCited).To(Equal(2))
		})
	})

	Context("with multiple distinct target URLs", func() {
		It("should collapse them into one mention at the first rank", func() {
			answer := &provider.Answer{
				Citations: []provider.Citation{
					{URL: "https://acme.com/a", Rank: 1},
					{URL: "https://acme.com/b", Rank: 2},
					{URL: "https://other.com/c", Rank: 3},
				},
			}

			got := NormalizeAnswer(answer, "acme.com")

			Expect(*got.CitationPosition).To(Equal(1))
			Expect(got.TotalSourcesCited).To(Equal(2))
			Expect(got.CompetitorCitations).To(HaveLen(1))
		})
	})

	Context("with no citations", func() {
		It("should report an empty answer", func() {
			answer := &provider.Answer{ResponseText: "Some answer without sources."}

			got := NormalizeAnswer(answer, "acme.com")

			Expect(got.DomainMentioned).To(BeFalse())
			Expect(got.CitationPosition).To(BeNil())
			Expect(got.CitationContext).To(BeNil())
			Expect(got.TotalSourcesCited).To(Equal(0))
			Expect(got.CompetitorCitations).To(BeEmpty())
		})
	})

	Context("with undeterminable hosts", func() {
		It("should drop them but count ranked ones toward the total", func() {
			answer := &provider.Answer{
				Citations: []provider.Citation{
					{URL: "mailto:hi@acme.com", Rank: 1},
					{URL: "https://other.com/x", Rank: 2},
				},
			}

			got := NormalizeAnswer(answer, "acme.com")

			Expect(got.DomainMentioned).To(BeFalse())
			Expect(got.CompetitorCitations).To(HaveLen(1))
			Expect(got.TotalSourcesCited).To(Equal(2))
		})
	})

	Context("context selection", func() {
		It("should prefer snippet over title", func() {
			answer := &provider.Answer{
				Citations: []provider.Citation{
					{URL: "https://acme.com/a", Rank: 1, Title: "Acme", Snippet: "Acme guide snippet"},
				},
			}

			got := NormalizeAnswer(answer, "acme.com")

			Expect(got.CitationContext).ToNot(BeNil())
			Expect(*got.CitationContext).To(Equal("Acme guide snippet"))
		})
	})
})
