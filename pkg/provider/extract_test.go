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

package provider

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ExtractCitations", func() {
	Context("with markdown links", func() {
		It("should extract url and title", func() {
			text := "According to [Acme Guide](https://acme.com/guide), widgets are popular."
			citations := ExtractCitations(text)

			Expect(citations).To(HaveLen(1))
			Expect(citations[0].URL).To(Equal("https://acme.com/guide"))
			Expect(citations[0].Title).To(Equal("Acme Guide"))
			Expect(citations[0].Rank).To(Equal(1))
		})
	})

	Context("with bare URLs", func() {
		It("should extract and strip trailing punctuation", func() {
			text := "See https://example.com/page. Also check https://other.com/x, for details."
			citations := ExtractCitations(text)

			Expect(citations).To(HaveLen(2))
			Expect(citations[0].URL).To(Equal("https://example.com/page"))
			Expect(citations[1].URL).To(Equal("https://other.com/x"))
		})
	})

	Context("with numbered references", func() {
		It("should extract urls from reference lines", func() {
			text := "Widgets are great [1].\n\n[1] Widget review https://reviews.example.com/widgets"
			citations := ExtractCitations(text)

			Expect(citations).To(HaveLen(1))
			Expect(citations[0].URL).To(Equal("https://reviews.example.com/widgets"))
		})
	})

	Context("with mixed formats", func() {
		It("should prefer markdown precedence and dedupe by URL", func() {
			text := "Best option is [Acme](https://acme.com/a). Raw link: https://acme.com/a " +
				"and another https://other.com/b"
			citations := ExtractCitations(text)

			Expect(citations).To(HaveLen(2))
			// Markdown scan runs first, so the deduped entry keeps its title.
			Expect(citations[0].URL).To(Equal("https://acme.com/a"))
			Expect(citations[0].Title).To(Equal("Acme"))
			Expect(citations[0].Rank).To(Equal(1))
			Expect(citations[1].URL).To(Equal("https://other.com/b"))
			Expect(citations[1].Rank).To(Equal(2))
		})
	})

	Context("with no URLs", func() {
		It("should return nothing", func() {
			Expect(ExtractCitations("plain text answer with no sources")).To(BeEmpty())
			Expect(ExtractCitations("")).To(BeEmpty())
		})
	})
})

var _ = Describe("DenseRanks", func() {
	It("should assign dense 1-based ranks in input order", func() {
		in := []Citation{
			{URL: "https://a.com/1", Rank: 4},
			{URL: "https://b.com/2", Rank: 9},
			{URL: "https://c.com/3"},
		}

		out := DenseRanks(in)

		Expect(out).To(HaveLen(3))
		Expect(out[0].Rank).To(Equal(1))
		Expect(out[1].Rank).To(Equal(2))
		Expect(out[2].Rank).To(Equal(3))
	})

	It("should keep the first occurrence of duplicate URLs", func() {
		in := []Citation{
			{URL: "https://a.com/1", Title: "first"},
			{URL: "https://a.com/1", Title: "second"},
			{URL: "https://b.com/2"},
		}

		out := DenseRanks(in)

		Expect(out).To(HaveLen(2))
		Expect(out[0].Title).To(Equal("first"))
		Expect(out[0].Rank).To(Equal(1))
		Expect(out[1].URL).To(Equal("https://b.com/2"))
		Expect(out[1].Rank).To(Equal(2))
	})

	It("should drop blank URLs", func() {
		in := []Citation{
			{URL: ""},
			{URL: "https://a.com/1"},
		}

		out := DenseRanks(in)

		Expect(out).To(HaveLen(1))
		Expect(out[0].URL).To(Equal("https://a.com/1"))
	})
})
