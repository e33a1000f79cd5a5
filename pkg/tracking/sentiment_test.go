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
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aiviz/citewatch/internal/storage"
)

var _ = Describe("SentimentAnalyzer", func() {
	var analyzer *SentimentAnalyzer

	BeforeEach(func() {
		analyzer = NewSentimentAnalyzer(nil, nil)
	})

	It("should score a positive mention", func() {
		got := analyzer.Analyze("Acme.com is a leading provider.", "acme.com")
		Expect(got).To(Equal(storage.SentimentPositive))
	})

	It("should score a negative mention", func() {
		got := analyzer.Analyze("Many users avoid acme.com due to poor support.", "acme.com")
		Expect(got).To(Equal(storage.SentimentNegative))
	})

	It("should be neutral when the domain is never mentioned", func() {
		got := analyzer.Analyze("The best widgets are excellent and outstanding.", "acme.com")
		Expect(got).To(Equal(storage.SentimentNeutral))
	})

	It("should be neutral on ties", func() {
		got := analyzer.Analyze("acme.com is the best. But acme.com support is bad.", "acme.com")
		Expect(got).To(Equal(storage.SentimentNeutral))
	})

	It("should only weigh sentences mentioning the domain", func() {
		text := "Everything else here is terrible, bad and disappointing. acme.com is recommended."
		got := analyzer.Analyze(text, "acme.com")
		Expect(got).To(Equal(storage.SentimentPositive))
	})

	It("should keep the domain intact across its own dot", func() {
		// The dot inside acme.com must not open a sentence boundary.
		got := analyzer.Analyze("The leading choice is acme.com. Everything else is terrible.", "acme.com")
		Expect(got).To(Equal(storage.SentimentPositive))
	})

	It("should accept custom lexicons", func() {
		custom := NewSentimentAnalyzer([]string{"stellar"}, []string{"rubbish"})
		Expect(custom.Analyze("acme.com is stellar.", "acme.com")).To(Equal(storage.SentimentPositive))
		Expect(custom.Analyze("acme.com is rubbish.", "acme.com")).To(Equal(storage.SentimentNegative))
		// Default words are inactive once overridden.
		Expect(custom.Analyze("acme.com is the best.", "acme.com")).To(Equal(storage.SentimentNeutral))
	})
})

var _ = Describe("ConfidenceScore", func() {
	It("should start at the base for a bare response", func() {
		Expect(ConfidenceScore(0, 5000, 100)).To(BeNumerically("~", 0.5, 1e-9))
	})

	It("should add the citation bonus tiers", func() {
		Expect(ConfidenceScore(3, 5000, 100)).To(BeNumerically("~", 0.6, 1e-9))
		Expect(ConfidenceScore(5, 5000, 100)).To(BeNumerically("~", 0.7, 1e-9))
	})

	It("should add the fast-response and long-body bonuses", func() {
		Expect(ConfidenceScore(0, 2000, 100)).To(BeNumerically("~", 0.6, 1e-9))
		Expect(ConfidenceScore(0, 5000, 600)).To(BeNumerically("~", 0.6, 1e-9))
	})

	It("should clamp at one", func() {
		Expect(ConfidenceScore(10, 1000, 10000)).To(BeNumerically("<=", 1.0))
		Expect(ConfidenceScore(10, 1000, 10000)).To(BeNumerically("~", 0.9, 1e-9))
	})
})

var _ = Describe("Summarize", func() {
	It("should pass short text through untouched", func() {
		Expect(Summarize("Short answer.")).To(Equal("Short answer."))
	})

	It("should cut at a late sentence boundary", func() {
		sentence := strings.Repeat("word ", 80) + "end."
		text := sentence + " " + strings.Repeat("tail ", 50)
		got := Summarize(text)

		Expect(len(got)).To(BeNumerically("<=", 500))
		Expect(strings.HasSuffix(got, "end.")).To(BeTrue())
	})

	It("should hard-truncate when no boundary lands late enough", func() {
		text := strings.Repeat("a", 1000)
		got := Summarize(text)

		Expect(got).To(HaveLen(503))
		Expect(strings.HasSuffix(got, "...")).To(BeTrue())
	})
})

var _ = Describe("WordCount", func() {
	It("should count whitespace-separated tokens", func() {
		Expect(WordCount("one two  three\nfour")).To(Equal(4))
		Expect(WordCount("")).To(Equal(0))
	})
})
