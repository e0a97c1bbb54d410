package service_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/careerforge/careerforge/internal/client"
	"github.com/careerforge/careerforge/internal/config"
	"github.com/careerforge/careerforge/internal/dispatcher"
	"github.com/careerforge/careerforge/internal/service"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
)

var _ = Describe("tailored resume service", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	createResume := func(status string) *model.Resume {
		resume, err := s.Resume().Create(context.TODO(), &model.Resume{
			OwnerID:    "user-1",
			RawContent: []byte("raw"),
			Status:     status,
		})
		Expect(err).To(BeNil())
		if status == model.ResumeStatusReady {
			applied, err := s.Resume().UpdateStatus(context.TODO(), resume.ID,
				[]string{model.ResumeStatusReady}, model.ResumeStatusProcessing)
			Expect(err).To(BeNil())
			Expect(applied).To(BeTrue())
			Expect(s.Resume().SetExtracted(context.TODO(), resume.ID, model.ResumeData{
				Text:    "analyzed text",
				Summary: "senior gopher",
			})).To(BeNil())
		}
		return resume
	}

	workItem := func(kind string, resume *model.Resume, attempt int) *model.WorkItem {
		payload, err := json.Marshal(service.TailoredResumeEventPayload{
			ResumeID:  resume.ID,
			JobID:     "job-1",
			AccountID: "user-1",
		})
		Expect(err).To(BeNil())
		return &model.WorkItem{
			Kind:        kind,
			EntityKey:   service.ResumeEntityKey(resume.ID),
			Payload:     payload,
			Attempt:     attempt,
			MaxAttempts: 5,
		}
	}

	quotaWithCredits := func(st store.Store, credits int64) *service.QuotaService {
		return service.NewQuotaService(st, &fakeBilling{entitlements: client.Entitlements{
			Credits:    credits,
			PeriodDays: 30,
		}})
	}

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM tailored_resumes;")
		gormdb.Exec("DELETE FROM resumes;")
		gormdb.Exec("DELETE FROM quota_ledgers;")
	})

	AfterAll(func() {
		s.Close()
	})

	Context("generation", func() {
		It("generates and stores a ready variant, charging one credit", func() {
			resume := createResume(model.ResumeStatusReady)
			quota := quotaWithCredits(s, 10)
			analyzer := &fakeAnalyzer{tailored: "tailored content"}
			srv := service.NewTailoredResumeService(s, analyzer, quota)

			Expect(srv.HandleTailoredEvent(context.TODO(), workItem(model.KindTailoredResumeCreated, resume, 1))).To(BeNil())

			variant, err := srv.GetVariant(context.TODO(), resume.ID, "job-1")
			Expect(err).To(BeNil())
			Expect(variant.Status).To(Equal(model.TailoredResumeStatusReady))
			Expect(variant.Content).To(Equal("tailored content"))

			remaining, err := quota.Remaining(context.TODO(), "user-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(remaining).To(Equal(int64(9)))
		})

		It("requeues while the source resume is still processing", func() {
			resume := createResume(model.ResumeStatusPending)
			srv := service.NewTailoredResumeService(s, &fakeAnalyzer{tailored: "x"}, quotaWithCredits(s, 10))

			err := srv.HandleTailoredEvent(context.TODO(), workItem(model.KindTailoredResumeCreated, resume, 1))
			var rq *dispatcher.RequeueError
			Expect(errors.As(err, &rq)).To(BeTrue())

			// nothing stored, nothing charged
			_, err = srv.GetVariant(context.TODO(), resume.ID, "job-1")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})

		It("fails permanently when the source resume failed analysis", func() {
			resume := createResume(model.ResumeStatusFailed)
			srv := service.NewTailoredResumeService(s, &fakeAnalyzer{tailored: "x"}, quotaWithCredits(s, 10))

			err := srv.HandleTailoredEvent(context.TODO(), workItem(model.KindTailoredResumeCreated, resume, 1))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrValidation{}))
		})

		It("denies generation without credits and stores no variant", func() {
			resume := createResume(model.ResumeStatusReady)
			srv := service.NewTailoredResumeService(s, &fakeAnalyzer{tailored: "x"}, quotaWithCredits(s, 0))

			err := srv.HandleTailoredEvent(context.TODO(), workItem(model.KindTailoredResumeCreated, resume, 1))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrQuotaExceeded{}))

			_, err = srv.GetVariant(context.TODO(), resume.ID, "job-1")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})

		It("refunds the credit when generation fails", func() {
			resume := createResume(model.ResumeStatusReady)
			quota := quotaWithCredits(s, 10)
			srv := service.NewTailoredResumeService(s, &fakeAnalyzer{tailorErr: errProviderDown}, quota)

			err := srv.HandleTailoredEvent(context.TODO(), workItem(model.KindTailoredResumeCreated, resume, 1))
			Expect(err).ToNot(BeNil())

			remaining, err := quota.Remaining(context.TODO(), "user-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(remaining).To(Equal(int64(10)))
		})

		It("skips regeneration when a ready variant already exists", func() {
			resume := createResume(model.ResumeStatusReady)
			quota := quotaWithCredits(s, 10)
			analyzer := &fakeAnalyzer{tailored: "tailored content"}
			srv := service.NewTailoredResumeService(s, analyzer, quota)

			Expect(srv.HandleTailoredEvent(context.TODO(), workItem(model.KindTailoredResumeCreated, resume, 1))).To(BeNil())
			Expect(srv.HandleTailoredEvent(context.TODO(), workItem(model.KindTailoredResumeCreated, resume, 2))).To(BeNil())

			Expect(analyzer.calls).To(Equal(1))

			remaining, err := quota.Remaining(context.TODO(), "user-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(remaining).To(Equal(int64(9)))
		})

		It("regenerates in place on an update event", func() {
			resume := createResume(model.ResumeStatusReady)
			analyzer := &fakeAnalyzer{tailored: "v1"}
			srv := service.NewTailoredResumeService(s, analyzer, quotaWithCredits(s, 10))

			Expect(srv.HandleTailoredEvent(context.TODO(), workItem(model.KindTailoredResumeCreated, resume, 1))).To(BeNil())
			first, err := srv.GetVariant(context.TODO(), resume.ID, "job-1")
			Expect(err).To(BeNil())

			analyzer.tailored = "v2"
			Expect(srv.HandleTailoredEvent(context.TODO(), workItem(model.KindTailoredResumeUpdated, resume, 1))).To(BeNil())

			second, err := srv.GetVariant(context.TODO(), resume.ID, "job-1")
			Expect(err).To(BeNil())
			Expect(second.ID).To(Equal(first.ID))
			Expect(second.Content).To(Equal("v2"))
		})
	})

	Context("request validation", func() {
		It("surfaces quota exhaustion before enqueueing", func() {
			resume := createResume(model.ResumeStatusReady)
			srv := service.NewTailoredResumeService(s, &fakeAnalyzer{}, quotaWithCredits(s, 0))

			err := srv.RequestVariant(context.TODO(), "user-1", resume.ID, "job-1")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrQuotaExceeded{}))
		})

		It("rejects a request without a job id", func() {
			resume := createResume(model.ResumeStatusReady)
			srv := service.NewTailoredResumeService(s, &fakeAnalyzer{}, quotaWithCredits(s, 10))

			err := srv.RequestVariant(context.TODO(), "user-1", resume.ID, "")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrValidation{}))
		})
	})
})
