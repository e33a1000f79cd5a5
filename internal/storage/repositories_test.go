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

package storage

import (
	"context"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("CitationRepository", func() {
	var (
		db   *sqlx.DB
		mock sqlmock.Sqlmock
		repo *CitationRepository
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = m
		db = sqlx.NewDb(mockDB, "sqlmock")
		repo = NewCitationRepository(db, zap.NewNop())
		ctx = context.Background()
	})

	AfterEach(func() {
		db.Close()
	})

	Describe("Insert", func() {
		It("should write one row and assign an id", func() {
			now := time.Now()
			position := 2
			citation := &Citation{
				ProjectID:       "proj-1",
				KeywordID:       "kw-1",
				Platform:        "gemini",
				TrackedAt:       now,
				DomainMentioned: true,
				CitationPosition: &position,
				Sentiment:       SentimentPositive,
				CompetitorCitations: CompetitorCitations{
					{Domain: "other.com", URL: "https://other.com/x", Position: 1},
				},
				TotalSourcesCited: 2,
			}

			mock.ExpectQuery(`INSERT INTO citations`).
				WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

			Expect(repo.Insert(ctx, citation)).To(Succeed())
			Expect(citation.ID).ToNot(BeEmpty())
			Expect(citation.CreatedAt).To(Equal(now))
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("Latest", func() {
		It("should return ErrNotFound when no prior citation exists", func() {
			mock.ExpectQuery(`SELECT \* FROM citations`).
				WithArgs("kw-1", "gemini").
				WillReturnRows(sqlmock.NewRows([]string{"id"}))

			_, err := repo.Latest(ctx, "kw-1", "gemini")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("DeleteOlderThan", func() {
		It("should report the pruned row count", func() {
			cutoff := time.Now().AddDate(-1, 0, 0)
			mock.ExpectExec(`DELETE FROM citations WHERE tracked_at`).
				WithArgs(cutoff).
				WillReturnResult(sqlmock.NewResult(0, 42))

			n, err := repo.DeleteOlderThan(ctx, cutoff)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(int64(42)))
		})
	})
})

var _ = Describe("JobRepository", func() {
	var (
		db   *sqlx.DB
		mock sqlmock.Sqlmock
		repo *JobRepository
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = m
		db = sqlx.NewDb(mockDB, "sqlmock")
		repo = NewJobRepository(db, zap.NewNop())
		ctx = context.Background()
	})

	AfterEach(func() {
		db.Close()
	})

	Describe("ClaimProcessing", func() {
		It("should claim a pending job", func() {
			at := time.Now()
			mock.ExpectExec(`UPDATE tracking_jobs`).
				WithArgs(at, "job-1").
				WillReturnResult(sqlmock.NewResult(0, 1))

			claimed, err := repo.ClaimProcessing(ctx, "job-1", at)
			Expect(err).ToNot(HaveOccurred())
			Expect(claimed).To(BeTrue())
		})

		It("should refuse a job that is already processing or terminal", func() {
			at := time.Now()
			mock.ExpectExec(`UPDATE tracking_jobs`).
				WithArgs(at, "job-1").
				WillReturnResult(sqlmock.NewResult(0, 0))

			claimed, err := repo.ClaimProcessing(ctx, "job-1", at)
			Expect(err).ToNot(HaveOccurred())
			Expect(claimed).To(BeFalse())
		})
	})

	Describe("InsertPending", func() {
		It("should skip specs colliding with live rows", func() {
			now := time.Now()
			specs := []JobSpec{
				{ProjectID: "proj-1", KeywordID: "kw-1", Platform: "gemini", ScheduledAt: now},
				{ProjectID: "proj-1", KeywordID: "kw-2", Platform: "gemini", ScheduledAt: now},
			}

			cols := []string{
				"id", "project_id", "keyword_id", "platform", "status",
				"scheduled_at", "started_at", "completed_at", "retry_count",
				"error_message", "citation_found", "result_data", "created_at", "updated_at",
			}
			// First spec inserts; second hits the live-unique index.
			mock.ExpectQuery(`INSERT INTO tracking_jobs`).
				WillReturnRows(sqlmock.NewRows(cols).AddRow(
					"job-1", "proj-1", "kw-1", "gemini", JobStatusPending,
					now, nil, nil, 0, nil, false, nil, now, now))
			mock.ExpectQuery(`INSERT INTO tracking_jobs`).
				WillReturnRows(sqlmock.NewRows(cols))

			created, err := repo.InsertPending(ctx, specs)
			Expect(err).ToNot(HaveOccurred())
			Expect(created).To(HaveLen(1))
			Expect(created[0].KeywordID).To(Equal("kw-1"))
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})
})

var _ = Describe("AlertRepository", func() {
	var (
		db   *sqlx.DB
		mock sqlmock.Sqlmock
		repo *AlertRepository
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = m
		db = sqlx.NewDb(mockDB, "sqlmock")
		repo = NewAlertRepository(db, zap.NewNop())
		ctx = context.Background()
	})

	AfterEach(func() {
		db.Close()
	})

	It("should insert an alert and stamp created_at", func() {
		now := time.Now()
		keywordID := "kw-1"
		platform := "gemini"
		alert := &Alert{
			ProjectID: "proj-1",
			KeywordID: &keywordID,
			Platform:  &platform,
			AlertType: AlertNewCitation,
			Severity:  SeverityInfo,
			Title:     "New citation on gemini",
		}

		mock.ExpectQuery(`INSERT INTO alerts`).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

		Expect(repo.Insert(ctx, alert)).To(Succeed())
		Expect(alert.ID).ToNot(BeEmpty())
	})

	It("should mark all alerts of a project read", func() {
		mock.ExpectExec(`UPDATE alerts SET is_read = TRUE WHERE project_id`).
			WithArgs("proj-1").
			WillReturnResult(sqlmock.NewResult(0, 7))

		n, err := repo.MarkAllRead(ctx, "proj-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(int64(7)))
	})
})

var _ = Describe("Project normalization", func() {
	It("should normalize and dedupe competitor domains", func() {
		out, err := normalizeCompetitors(StringList{"WWW.Other.com", "other.com", "rival.io"}, "acme.com")
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(Equal(StringList{"other.com", "rival.io"}))
	})

	It("should reject the primary domain as a competitor", func() {
		_, err := normalizeCompetitors(StringList{"acme.com"}, "acme.com")
		Expect(err).To(HaveOccurred())
	})

	It("should reject more than ten competitors", func() {
		many := StringList{}
		for _, d := range []string{"a1.com", "a2.com", "a3.com", "a4.com", "a5.com",
			"a6.com", "a7.com", "a8.com", "a9.com", "a10.com", "a11.com"} {
			many = append(many, d)
		}
		_, err := normalizeCompetitors(many, "acme.com")
		Expect(err).To(HaveOccurred())
	})
})
