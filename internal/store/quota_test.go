package store_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/careerforge/careerforge/internal/config"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
)

var _ = Describe("quota store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := store.InitDB(cfg)
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

	Context("consume", func() {
		It("grants consumption within the limit", func() {
			Expect(s.Quota().Ensure(context.TODO(), "acc-1", model.ResourceCredits, 10, time.Now().UTC())).To(BeNil())

			granted, err := s.Quota().Consume(context.TODO(), "acc-1", model.ResourceCredits, 4)
			Expect(err).To(BeNil())
			Expect(granted).To(BeTrue())

			ledger, err := s.Quota().Get(context.TODO(), "acc-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(ledger.Consumed).To(Equal(int64(4)))
			Expect(ledger.Remaining()).To(Equal(int64(6)))
		})

		It("denies consumption that would exceed the limit", func() {
			Expect(s.Quota().Ensure(context.TODO(), "acc-1", model.ResourceCredits, 10, time.Now().UTC())).To(BeNil())

			granted, err := s.Quota().Consume(context.TODO(), "acc-1", model.ResourceCredits, 8)
			Expect(err).To(BeNil())
			Expect(granted).To(BeTrue())

			granted, err = s.Quota().Consume(context.TODO(), "acc-1", model.ResourceCredits, 3)
			Expect(err).To(BeNil())
			Expect(granted).To(BeFalse())

			ledger, err := s.Quota().Get(context.TODO(), "acc-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(ledger.Consumed).To(Equal(int64(8)))
		})

		It("never jointly exceeds the limit under concurrent consumers", func() {
			Expect(s.Quota().Ensure(context.TODO(), "acc-1", model.ResourceCredits, 10, time.Now().UTC())).To(BeNil())

			var wg sync.WaitGroup
			granted := make([]bool, 20)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ok, err := s.Quota().Consume(context.TODO(), "acc-1", model.ResourceCredits, 1)
					Expect(err).To(BeNil())
					granted[i] = ok
				}(i)
			}
			wg.Wait()

			grants := 0
			for _, ok := range granted {
				if ok {
					grants++
				}
			}
			Expect(grants).To(Equal(10))

			ledger, err := s.Quota().Get(context.TODO(), "acc-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(ledger.Consumed).To(Equal(int64(10)))
		})
	})

	Context("refund", func() {
		It("returns reserved amounts", func() {
			Expect(s.Quota().Ensure(context.TODO(), "acc-1", model.ResourceCredits, 10, time.Now().UTC())).To(BeNil())
			_, err := s.Quota().Consume(context.TODO(), "acc-1", model.ResourceCredits, 5)
			Expect(err).To(BeNil())

			Expect(s.Quota().Refund(context.TODO(), "acc-1", model.ResourceCredits, 3)).To(BeNil())

			ledger, err := s.Quota().Get(context.TODO(), "acc-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(ledger.Consumed).To(Equal(int64(2)))
		})

		It("clamps at zero", func() {
			Expect(s.Quota().Ensure(context.TODO(), "acc-1", model.ResourceCredits, 10, time.Now().UTC())).To(BeNil())
			_, err := s.Quota().Consume(context.TODO(), "acc-1", model.ResourceCredits, 2)
			Expect(err).To(BeNil())

			Expect(s.Quota().Refund(context.TODO(), "acc-1", model.ResourceCredits, 5)).To(BeNil())

			ledger, err := s.Quota().Get(context.TODO(), "acc-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(ledger.Consumed).To(Equal(int64(0)))
		})
	})

	Context("rollover", func() {
		It("resets consumption for an elapsed period", func() {
			periodStart := time.Now().UTC().Add(-31 * 24 * time.Hour)
			Expect(s.Quota().Ensure(context.TODO(), "acc-1", model.ResourceCredits, 10, periodStart)).To(BeNil())
			_, err := s.Quota().Consume(context.TODO(), "acc-1", model.ResourceCredits, 10)
			Expect(err).To(BeNil())

			boundary := time.Now().UTC().Add(-30 * 24 * time.Hour)
			newStart := time.Now().UTC()
			Expect(s.Quota().Rollover(context.TODO(), "acc-1", model.ResourceCredits, boundary, newStart)).To(BeNil())

			ledger, err := s.Quota().Get(context.TODO(), "acc-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(ledger.Consumed).To(Equal(int64(0)))

			granted, err := s.Quota().Consume(context.TODO(), "acc-1", model.ResourceCredits, 10)
			Expect(err).To(BeNil())
			Expect(granted).To(BeTrue())
		})

		It("leaves a current period untouched", func() {
			Expect(s.Quota().Ensure(context.TODO(), "acc-1", model.ResourceCredits, 10, time.Now().UTC())).To(BeNil())
			_, err := s.Quota().Consume(context.TODO(), "acc-1", model.ResourceCredits, 7)
			Expect(err).To(BeNil())

			boundary := time.Now().UTC().Add(-30 * 24 * time.Hour)
			Expect(s.Quota().Rollover(context.TODO(), "acc-1", model.ResourceCredits, boundary, time.Now().UTC())).To(BeNil())

			ledger, err := s.Quota().Get(context.TODO(), "acc-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(ledger.Consumed).To(Equal(int64(7)))
		})
	})

	Context("ensure", func() {
		It("refreshes the limit without touching consumption", func() {
			Expect(s.Quota().Ensure(context.TODO(), "acc-1", model.ResourceCredits, 10, time.Now().UTC())).To(BeNil())
			_, err := s.Quota().Consume(context.TODO(), "acc-1", model.ResourceCredits, 6)
			Expect(err).To(BeNil())

			Expect(s.Quota().Ensure(context.TODO(), "acc-1", model.ResourceCredits, 20, time.Now().UTC())).To(BeNil())

			ledger, err := s.Quota().Get(context.TODO(), "acc-1", model.ResourceCredits)
			Expect(err).To(BeNil())
			Expect(ledger.Consumed).To(Equal(int64(6)))
			Expect(ledger.LimitValue).To(Equal(int64(20)))
		})
	})
})
