package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/careerforge/careerforge/internal/store/model"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	WorkItem() WorkItem
	Resume() Resume
	TailoredResume() TailoredResume
	Interview() Interview
	JobCategory() JobCategory
	JobPosting() JobPosting
	Interest() Interest
	Quota() Quota
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db             *gorm.DB
	workItem       WorkItem
	resume         Resume
	tailoredResume TailoredResume
	interview      Interview
	jobCategory    JobCategory
	jobPosting     JobPosting
	interest       Interest
	quota          Quota
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:             db,
		workItem:       NewWorkItemStore(db),
		resume:         NewResumeStore(db),
		tailoredResume: NewTailoredResumeStore(db),
		interview:      NewInterviewStore(db),
		jobCategory:    NewJobCategoryStore(db),
		jobPosting:     NewJobPostingStore(db),
		interest:       NewInterestStore(db),
		quota:          NewQuotaStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) WorkItem() WorkItem {
	return s.workItem
}

func (s *DataStore) Resume() Resume {
	return s.resume
}

func (s *DataStore) TailoredResume() TailoredResume {
	return s.tailoredResume
}

func (s *DataStore) Interview() Interview {
	return s.interview
}

func (s *DataStore) JobCategory() JobCategory {
	return s.jobCategory
}

func (s *DataStore) JobPosting() JobPosting {
	return s.jobPosting
}

func (s *DataStore) Interest() Interest {
	return s.interest
}

func (s *DataStore) Quota() Quota {
	return s.quota
}

func (s *DataStore) InitialMigration() error {
	return s.db.AutoMigrate(
		&model.WorkItem{},
		&model.Resume{},
		&model.TailoredResume{},
		&model.InterviewSession{},
		&model.JobCategory{},
		&model.JobPosting{},
		&model.UserInterest{},
		&model.QuotaLedger{},
	)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
