package service_test

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/careerforge/careerforge/internal/config"
	"github.com/careerforge/careerforge/internal/events"
	"github.com/careerforge/careerforge/internal/service"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
)

var _ = Describe("resume service", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	workItem := func(kind string, resume *model.Resume, attempt int) *model.WorkItem {
		payload, err := json.Marshal(service.ResumeEventPayload{ResumeID: resume.ID})
		Expect(err).To(BeNil())
		return &model.WorkItem{
			Kind:        kind,
			EntityKey:   service.ResumeEntityKey(resume.ID),
			Payload:     payload,
			Attempt:     attempt,
			MaxAttempts: 5,
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
		gormdb.Exec("DELETE FROM resumes;")
	})

	AfterAll(func() {
		s.Close()
	})

	Context("create", func() {
		It("stores the document with status pending", func() {
			srv := service.NewResumeService(s, &fakeExtractor{}, &fakeAnalyzer{}, nil, 5)

			resume, err := srv.CreateResume(context.TODO(), "user-1", []byte("document"))
			Expect(err).To(BeNil())
			Expect(resume.Status).To(Equal(model.ResumeStatusPending))
		})

		It("rejects empty content", func() {
			srv := service.NewResumeService(s, &fakeExtractor{}, &fakeAnalyzer{}, nil, 5)

			_, err := srv.CreateResume(context.TODO(), "user-1", nil)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrValidation{}))
		})
	})

	Context("processing", func() {
		It("extracts, analyzes and moves the resume to ready", func() {
			writer := newTestWriter()
			producer := events.NewEventProducer(writer)
			defer func() { _ = producer.Close() }()

			extractor := &fakeExtractor{text: "plain resume text"}
			analyzer := &fakeAnalyzer{data: &model.ResumeData{
				Text:              "plain resume text",
				Summary:           "senior gopher",
				Skills:            []string{"go"},
				YearsOfExperience: 7,
			}}
			srv := service.NewResumeService(s, extractor, analyzer, producer, 5)

			resume, err := srv.CreateResume(context.TODO(), "user-1", []byte("document"))
			Expect(err).To(BeNil())

			Expect(srv.HandleResumeEvent(context.TODO(), workItem(model.KindResumeCreated, resume, 1))).To(BeNil())

			status, err := srv.GetStatus(context.TODO(), resume.ID)
			Expect(err).To(BeNil())
			Expect(status.Status).To(Equal(model.ResumeStatusReady))
			Expect(status.ExtractedData).ToNot(BeNil())
			Expect(status.ExtractedData.Summary).To(Equal("senior gopher"))

			Eventually(writer.Size, "2s", "10ms").Should(Equal(1))
		})

		It("treats redelivery for a ready resume as a no-op", func() {
			extractor := &fakeExtractor{text: "text"}
			analyzer := &fakeAnalyzer{data: &model.ResumeData{Text: "text"}}
			srv := service.NewResumeService(s, extractor, analyzer, nil, 5)

			resume, err := srv.CreateResume(context.TODO(), "user-1", []byte("document"))
			Expect(err).To(BeNil())

			Expect(srv.HandleResumeEvent(context.TODO(), workItem(model.KindResumeCreated, resume, 1))).To(BeNil())

			extractor.err = errProviderDown
			Expect(srv.HandleResumeEvent(context.TODO(), workItem(model.KindResumeCreated, resume, 2))).To(BeNil())

			status, err := srv.GetStatus(context.TODO(), resume.ID)
			Expect(err).To(BeNil())
			Expect(status.Status).To(Equal(model.ResumeStatusReady))
		})

		It("reprocesses a ready resume on an update event", func() {
			extractor := &fakeExtractor{text: "text"}
			analyzer := &fakeAnalyzer{data: &model.ResumeData{Text: "text", Summary: "v1"}}
			srv := service.NewResumeService(s, extractor, analyzer, nil, 5)

			resume, err := srv.CreateResume(context.TODO(), "user-1", []byte("document"))
			Expect(err).To(BeNil())
			Expect(srv.HandleResumeEvent(context.TODO(), workItem(model.KindResumeCreated, resume, 1))).To(BeNil())

			Expect(srv.UpdateResume(context.TODO(), resume.ID, []byte("new document"))).To(BeNil())
			analyzer.data = &model.ResumeData{Text: "text", Summary: "v2"}
			Expect(srv.HandleResumeEvent(context.TODO(), workItem(model.KindResumeUpdated, resume, 1))).To(BeNil())

			status, err := srv.GetStatus(context.TODO(), resume.ID)
			Expect(err).To(BeNil())
			Expect(status.ExtractedData.Summary).To(Equal("v2"))
		})

		It("keeps the resume out of failed while attempts remain", func() {
			srv := service.NewResumeService(s, &fakeExtractor{err: errProviderDown}, &fakeAnalyzer{}, nil, 5)

			resume, err := srv.CreateResume(context.TODO(), "user-1", []byte("document"))
			Expect(err).To(BeNil())

			err = srv.HandleResumeEvent(context.TODO(), workItem(model.KindResumeCreated, resume, 1))
			Expect(err).ToNot(BeNil())

			status, err := srv.GetStatus(context.TODO(), resume.ID)
			Expect(err).To(BeNil())
			Expect(status.Status).To(Equal(model.ResumeStatusProcessing))
		})

		It("marks the resume failed on the final attempt", func() {
			writer := newTestWriter()
			producer := events.NewEventProducer(writer)
			defer func() { _ = producer.Close() }()

			srv := service.NewResumeService(s, &fakeExtractor{err: errProviderDown}, &fakeAnalyzer{}, producer, 5)

			resume, err := srv.CreateResume(context.TODO(), "user-1", []byte("document"))
			Expect(err).To(BeNil())

			err = srv.HandleResumeEvent(context.TODO(), workItem(model.KindResumeCreated, resume, 5))
			Expect(err).ToNot(BeNil())

			status, err := srv.GetStatus(context.TODO(), resume.ID)
			Expect(err).To(BeNil())
			Expect(status.Status).To(Equal(model.ResumeStatusFailed))

			// the owner is told about the failure
			Eventually(writer.Size, "2s", "10ms").Should(Equal(1))
		})
	})

	Context("status", func() {
		It("returns not found for an unknown resume", func() {
			srv := service.NewResumeService(s, &fakeExtractor{}, &fakeAnalyzer{}, nil, 5)

			_, err := srv.GetStatus(context.TODO(), uuid.New())
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})
	})

	Context("stale sweep window", func() {
		It("keeps freshly created resumes out of the stale listing", func() {
			srv := service.NewResumeService(s, &fakeExtractor{}, &fakeAnalyzer{}, nil, 5)
			_, err := srv.CreateResume(context.TODO(), "user-1", []byte("document"))
			Expect(err).To(BeNil())

			stale, err := s.Resume().ListStalePending(context.TODO(), time.Now().UTC().Add(-time.Hour))
			Expect(err).To(BeNil())
			Expect(stale).To(HaveLen(0))
		})
	})
})
