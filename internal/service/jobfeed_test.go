package service_test

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/careerforge/careerforge/internal/client"
	"github.com/careerforge/careerforge/internal/config"
	"github.com/careerforge/careerforge/internal/events"
	"github.com/careerforge/careerforge/internal/service"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
)

var _ = Describe("job feed service", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	createCategory := func() *model.JobCategory {
		category, err := s.JobCategory().Create(context.TODO(), &model.JobCategory{
			Label:          "backend engineer",
			Location:       "berlin",
			RefreshSeconds: 3600,
			Active:         true,
		})
		Expect(err).To(BeNil())
		return category
	}

	ingestItem := func(categoryID uuid.UUID) *model.WorkItem {
		payload, err := json.Marshal(service.CategoryIngestPayload{CategoryID: categoryID})
		Expect(err).To(BeNil())
		return &model.WorkItem{
			Kind:        model.KindCategoryIngest,
			EntityKey:   service.CategoryEntityKey(categoryID),
			Payload:     payload,
			Attempt:     1,
			MaxAttempts: 5,
		}
	}

	recruiterItem := func(payload service.RecruiterJobPayload) *model.WorkItem {
		body, err := json.Marshal(payload)
		Expect(err).To(BeNil())
		return &model.WorkItem{
			Kind:        model.KindRecruiterJobSubmitted,
			EntityKey:   service.CategoryEntityKey(payload.CategoryID),
			Payload:     body,
			Attempt:     1,
			MaxAttempts: 5,
		}
	}

	result := func(title string) client.JobResult {
		return client.JobResult{
			ExternalID: "ext-" + title,
			SourceID:   "boards/acme",
			Title:      title,
			Company:    "Acme",
			Location:   "Berlin",
			PostedAt:   time.Now(),
		}
	}

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM user_interests;")
		gormdb.Exec("DELETE FROM job_postings;")
		gormdb.Exec("DELETE FROM job_categories;")
		gormdb.Exec("DELETE FROM resumes;")
	})

	AfterAll(func() {
		s.Close()
	})

	Context("category ingestion", func() {
		It("stores fetched postings and advances the cursor", func() {
			category := createCategory()
			searcher := &fakeSearcher{results: []client.JobResult{result("gopher"), result("sre")}}
			srv := service.NewJobFeedService(s, searcher, newFakeEnqueuer(), nil, 100, 10)

			Expect(srv.HandleCategoryIngest(context.TODO(), ingestItem(category.ID))).To(BeNil())

			postings, err := s.JobPosting().ListByCategory(context.TODO(), category.ID, model.PostingStatusVisible)
			Expect(err).To(BeNil())
			Expect(postings).To(HaveLen(2))

			refreshed, err := s.JobCategory().Get(context.TODO(), category.ID)
			Expect(err).To(BeNil())
			Expect(refreshed.LastFetchedAt).ToNot(BeNil())
		})

		It("deduplicates postings across runs", func() {
			category := createCategory()
			searcher := &fakeSearcher{results: []client.JobResult{result("gopher")}}
			srv := service.NewJobFeedService(s, searcher, newFakeEnqueuer(), nil, 100, 10)

			Expect(srv.HandleCategoryIngest(context.TODO(), ingestItem(category.ID))).To(BeNil())
			Expect(srv.HandleCategoryIngest(context.TODO(), ingestItem(category.ID))).To(BeNil())

			postings, err := s.JobPosting().ListByCategory(context.TODO(), category.ID, model.PostingStatusVisible)
			Expect(err).To(BeNil())
			Expect(postings).To(HaveLen(1))
		})

		It("leaves the fetch cursor untouched when the provider fails", func() {
			category := createCategory()
			searcher := &fakeSearcher{err: errProviderDown}
			srv := service.NewJobFeedService(s, searcher, newFakeEnqueuer(), nil, 100, 10)

			err := srv.HandleCategoryIngest(context.TODO(), ingestItem(category.ID))
			Expect(err).ToNot(BeNil())

			unchanged, err := s.JobCategory().Get(context.TODO(), category.ID)
			Expect(err).To(BeNil())
			Expect(unchanged.LastFetchedAt).To(BeNil())
		})

		It("skips an inactive category", func() {
			category := createCategory()
			Expect(s.JobCategory().SetActive(context.TODO(), category.ID, false)).To(BeNil())
			searcher := &fakeSearcher{results: []client.JobResult{result("gopher")}}
			srv := service.NewJobFeedService(s, searcher, newFakeEnqueuer(), nil, 100, 10)

			Expect(srv.HandleCategoryIngest(context.TODO(), ingestItem(category.ID))).To(BeNil())
			Expect(searcher.calls).To(Equal(0))
		})

		It("notifies subscribed accounts about new postings", func() {
			category := createCategory()
			Expect(s.Interest().Subscribe(context.TODO(), "user-1", category.ID)).To(BeNil())
			Expect(s.Interest().Subscribe(context.TODO(), "user-2", category.ID)).To(BeNil())

			writer := newTestWriter()
			producer := events.NewEventProducer(writer)
			searcher := &fakeSearcher{results: []client.JobResult{result("gopher")}}
			srv := service.NewJobFeedService(s, searcher, newFakeEnqueuer(), producer, 100, 10)

			Expect(srv.HandleCategoryIngest(context.TODO(), ingestItem(category.ID))).To(BeNil())
			Eventually(writer.Size).Should(Equal(2))

			// the re-run stores nothing new, so nobody is notified again
			Expect(srv.HandleCategoryIngest(context.TODO(), ingestItem(category.ID))).To(BeNil())
			Consistently(writer.Size).Should(Equal(2))
		})
	})

	Context("scheduling", func() {
		It("enqueues one coalesced ingest item per due category", func() {
			first := createCategory()
			second, err := s.JobCategory().Create(context.TODO(), &model.JobCategory{
				Label:          "data engineer",
				RefreshSeconds: 3600,
				Active:         true,
			})
			Expect(err).To(BeNil())

			enqueuer := newFakeEnqueuer()
			srv := service.NewJobFeedService(s, &fakeSearcher{}, enqueuer, nil, 100, 10)

			Expect(srv.HandleDailyFeed(context.TODO(), &model.WorkItem{Kind: model.KindDailyJobFeed})).To(BeNil())

			items := enqueuer.Items()
			Expect(items).To(HaveLen(2))
			keys := []string{items[0].EntityKey, items[1].EntityKey}
			Expect(keys).To(ConsistOf(
				service.CategoryEntityKey(first.ID),
				service.CategoryEntityKey(second.ID),
			))
			for _, item := range items {
				Expect(item.Kind).To(Equal(model.KindCategoryIngest))
			}
		})

		It("re-enqueues resumes stuck in pending during the sweep", func() {
			resume, err := s.Resume().Create(context.TODO(), &model.Resume{
				OwnerID:    "user-1",
				RawContent: []byte("raw"),
				Status:     model.ResumeStatusPending,
			})
			Expect(err).To(BeNil())
			gormdb.Exec("UPDATE resumes SET created_at = ? WHERE id = ?",
				time.Now().Add(-2*time.Hour), resume.ID)

			enqueuer := newFakeEnqueuer()
			srv := service.NewJobFeedService(s, &fakeSearcher{}, enqueuer, nil, 100, 10)

			Expect(srv.HandleScheduledSweep(context.TODO(), &model.WorkItem{Kind: model.KindScheduledIngest})).To(BeNil())

			items := enqueuer.Items()
			Expect(items).To(HaveLen(1))
			Expect(items[0].Kind).To(Equal(model.KindResumeCreated))
			Expect(items[0].EntityKey).To(Equal(service.ResumeEntityKey(resume.ID)))
		})
	})

	Context("recruiter submissions", func() {
		It("lands recruiter postings in moderation", func() {
			category := createCategory()
			srv := service.NewJobFeedService(s, &fakeSearcher{}, newFakeEnqueuer(), nil, 100, 10)

			Expect(srv.HandleRecruiterSubmission(context.TODO(), recruiterItem(service.RecruiterJobPayload{
				RecruiterID: "rec-1",
				CategoryID:  category.ID,
				Title:       "Staff Engineer",
				Company:     "Acme",
				Location:    "Berlin",
			}))).To(BeNil())

			moderated, err := s.JobPosting().ListByCategory(context.TODO(), category.ID, model.PostingStatusModeration)
			Expect(err).To(BeNil())
			Expect(moderated).To(HaveLen(1))
			Expect(moderated[0].SourceID).To(Equal("recruiter/rec-1"))
		})

		It("rejects a submission for an unknown category", func() {
			srv := service.NewJobFeedService(s, &fakeSearcher{}, newFakeEnqueuer(), nil, 100, 10)

			err := srv.HandleRecruiterSubmission(context.TODO(), recruiterItem(service.RecruiterJobPayload{
				RecruiterID: "rec-1",
				CategoryID:  uuid.New(),
				Title:       "Staff Engineer",
				Company:     "Acme",
			}))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})
	})

	Context("moderation", func() {
		It("approves a posting and notifies subscribers exactly once", func() {
			category := createCategory()
			Expect(s.Interest().Subscribe(context.TODO(), "user-1", category.ID)).To(BeNil())

			writer := newTestWriter()
			producer := events.NewEventProducer(writer)
			srv := service.NewJobFeedService(s, &fakeSearcher{}, newFakeEnqueuer(), producer, 100, 10)

			Expect(srv.HandleRecruiterSubmission(context.TODO(), recruiterItem(service.RecruiterJobPayload{
				RecruiterID: "rec-1",
				CategoryID:  category.ID,
				Title:       "Staff Engineer",
				Company:     "Acme",
			}))).To(BeNil())

			moderated, err := s.JobPosting().ListByCategory(context.TODO(), category.ID, model.PostingStatusModeration)
			Expect(err).To(BeNil())
			Expect(moderated).To(HaveLen(1))

			Expect(srv.ApprovePosting(context.TODO(), moderated[0].ID)).To(BeNil())
			Eventually(writer.Size).Should(Equal(1))

			// re-approval is a no-op
			Expect(srv.ApprovePosting(context.TODO(), moderated[0].ID)).To(BeNil())
			Consistently(writer.Size).Should(Equal(1))
		})
	})

	Context("categories and subscriptions", func() {
		It("rejects a category without a label", func() {
			srv := service.NewJobFeedService(s, &fakeSearcher{}, newFakeEnqueuer(), nil, 100, 10)

			_, err := srv.CreateCategory(context.TODO(), "", "berlin", time.Hour)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrValidation{}))
		})

		It("rejects a subscription to an unknown category", func() {
			srv := service.NewJobFeedService(s, &fakeSearcher{}, newFakeEnqueuer(), nil, 100, 10)

			err := srv.Subscribe(context.TODO(), "user-1", uuid.New())
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})
	})
})
