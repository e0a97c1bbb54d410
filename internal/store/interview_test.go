package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/careerforge/careerforge/internal/config"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
)

var _ = Describe("interview store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	create := func(budgetSeconds int) *model.InterviewSession {
		session, err := s.Interview().Create(context.TODO(), &model.InterviewSession{
			UserID:        "user-1",
			Status:        model.InterviewStatusCreated,
			BudgetSeconds: budgetSeconds,
		})
		Expect(err).To(BeNil())
		return session
	}

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM interview_sessions;")
	})

	AfterAll(func() {
		s.Close()
	})

	Context("activation", func() {
		It("activates a created session", func() {
			session := create(600)

			applied, err := s.Interview().Activate(context.TODO(), session.ID, "conv-1", time.Now().UTC())
			Expect(err).To(BeNil())
			Expect(applied).To(BeTrue())

			stored, err := s.Interview().Get(context.TODO(), session.ID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.InterviewStatusActive))
			Expect(stored.ConversationID).To(Equal("conv-1"))
			Expect(stored.StartedAt).ToNot(BeNil())
		})

		It("refuses to activate twice", func() {
			session := create(600)

			applied, err := s.Interview().Activate(context.TODO(), session.ID, "conv-1", time.Now().UTC())
			Expect(err).To(BeNil())
			Expect(applied).To(BeTrue())

			applied, err = s.Interview().Activate(context.TODO(), session.ID, "conv-2", time.Now().UTC())
			Expect(err).To(BeNil())
			Expect(applied).To(BeFalse())

			stored, err := s.Interview().Get(context.TODO(), session.ID)
			Expect(err).To(BeNil())
			Expect(stored.ConversationID).To(Equal("conv-1"))
		})
	})

	Context("guarded transitions", func() {
		It("lets only one caller win the transition out of active", func() {
			session := create(600)
			_, err := s.Interview().Activate(context.TODO(), session.ID, "conv-1", time.Now().UTC())
			Expect(err).To(BeNil())

			won, err := s.Interview().UpdateStatus(context.TODO(), session.ID,
				[]string{model.InterviewStatusActive}, model.InterviewStatusExpired)
			Expect(err).To(BeNil())
			Expect(won).To(BeTrue())

			won, err = s.Interview().UpdateStatus(context.TODO(), session.ID,
				[]string{model.InterviewStatusActive}, model.InterviewStatusClosed)
			Expect(err).To(BeNil())
			Expect(won).To(BeFalse())

			stored, err := s.Interview().Get(context.TODO(), session.ID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.InterviewStatusExpired))
		})
	})

	Context("consumption", func() {
		It("records consumption up to the budget", func() {
			session := create(600)
			_, err := s.Interview().Activate(context.TODO(), session.ID, "conv-1", time.Now().UTC())
			Expect(err).To(BeNil())

			Expect(s.Interview().SetConsumed(context.TODO(), session.ID, 300)).To(BeNil())

			stored, err := s.Interview().Get(context.TODO(), session.ID)
			Expect(err).To(BeNil())
			Expect(stored.ConsumedSeconds).To(Equal(300))
		})
	})

	Context("remaining", func() {
		It("computes live remaining for active sessions and never goes negative", func() {
			start := time.Now().UTC().Add(-10 * time.Minute)
			session := model.InterviewSession{
				Status:        model.InterviewStatusActive,
				BudgetSeconds: 60,
				StartedAt:     &start,
			}
			Expect(session.Remaining(time.Now().UTC())).To(Equal(0))

			session.BudgetSeconds = 3600
			Expect(session.Remaining(start.Add(600 * time.Second))).To(Equal(3000))
		})
	})

	Context("list", func() {
		It("lists sessions by status", func() {
			active := create(600)
			_, err := s.Interview().Activate(context.TODO(), active.ID, "conv-1", time.Now().UTC())
			Expect(err).To(BeNil())
			create(600)

			sessions, err := s.Interview().ListByStatus(context.TODO(), model.InterviewStatusActive)
			Expect(err).To(BeNil())
			Expect(sessions).To(HaveLen(1))
			Expect(sessions[0].ID).To(Equal(active.ID))
		})
	})
})
