package service_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/careerforge/careerforge/internal/client"
	"github.com/careerforge/careerforge/internal/config"
	"github.com/careerforge/careerforge/internal/service"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
)

var _ = Describe("quota service", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	newQuota := func(ent client.Entitlements) *service.QuotaService {
		return service.NewQuotaService(s, &fakeBilling{entitlements: ent})
	}

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM quota_ledgers;")
	})

	AfterAll(func() {
		s.Close()
	})

	Context("reserve", func() {
		It("grants reservations up to the plan limit and denies past it", func() {
			quota := newQuota(client.Entitlements{Credits: 3, PeriodDays: 30})

			for i := 0; i < 3; i++ {
				Expect(quota.Reserve(context.TODO(), "user-1", model.ResourceCredits, 1)).To(BeNil())
			}
			err := quota.Reserve(context.TODO(), "user-1", model.ResourceCredits, 1)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrQuotaExceeded{}))
		})

		It("tracks resources independently", func() {
			quota := newQuota(client.Entitlements{Credits: 1, InterviewMinutes: 30, PeriodDays: 30})

			Expect(quota.Reserve(context.TODO(), "user-1", model.ResourceCredits, 1)).To(BeNil())
			err := quota.Reserve(context.TODO(), "user-1", model.ResourceCredits, 1)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrQuotaExceeded{}))

			Expect(quota.Reserve(context.TODO(), "user-1", model.ResourceInterviewMinutes, 30)).To(BeNil())
		})

		It("syncs a raised plan limit into an existing ledger", func() {
			quota := newQuota(client.Entitlements{Credits: 1, PeriodDays: 30})
			Expect(quota.Reserve(context.TODO(), "user-1", model.ResourceCredits, 1)).To(BeNil())

			upgraded := newQuota(client.Entitlements{Credits: 5, PeriodDays: 30})
			Expect(upgraded.Reserve(context.TODO(), "user-1", model.ResourceCredits, 1)).To(BeNil())

			remaining, err := upgraded.Remaining(context.TODO(), "user-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(remaining).To(Equal(int64(3)))
		})

		It("resets consumption when the billing period elapsed", func() {
			quota := newQuota(client.Entitlements{Credits: 2, PeriodDays: 30})
			Expect(quota.Reserve(context.TODO(), "user-1", model.ResourceCredits, 2)).To(BeNil())

			// age the ledger past the period boundary
			gormdb.Exec("UPDATE quota_ledgers SET period_start = ? WHERE account_id = ?",
				time.Now().UTC().AddDate(0, 0, -31), "user-1")

			Expect(quota.Reserve(context.TODO(), "user-1", model.ResourceCredits, 1)).To(BeNil())

			remaining, err := quota.Remaining(context.TODO(), "user-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(remaining).To(Equal(int64(1)))
		})
	})

	Context("release", func() {
		It("refunds a failed reservation", func() {
			quota := newQuota(client.Entitlements{Credits: 1, PeriodDays: 30})
			Expect(quota.Reserve(context.TODO(), "user-1", model.ResourceCredits, 1)).To(BeNil())
			Expect(quota.Release(context.TODO(), "user-1", model.ResourceCredits, 1)).To(BeNil())

			Expect(quota.Reserve(context.TODO(), "user-1", model.ResourceCredits, 1)).To(BeNil())
		})
	})

	Context("remaining", func() {
		It("reports the full plan limit for an untouched account", func() {
			quota := newQuota(client.Entitlements{Credits: 7, PeriodDays: 30})

			remaining, err := quota.Remaining(context.TODO(), "fresh-user", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(remaining).To(Equal(int64(7)))
		})

		It("reports zero for a resource the plan does not grant", func() {
			quota := newQuota(client.Entitlements{Credits: 7, PeriodDays: 30})

			remaining, err := quota.Remaining(context.TODO(), "fresh-user", model.ResourceJobMatches)
			Expect(err).To(BeNil())
			Expect(remaining).To(Equal(int64(0)))
		})
	})
})
