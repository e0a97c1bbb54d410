package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/careerforge/careerforge/internal/client"
	"github.com/careerforge/careerforge/internal/events"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
	"github.com/careerforge/careerforge/pkg/metrics"
)

// JobSearcher queries the external posting source.
type JobSearcher interface {
	Search(ctx context.Context, query client.JobQuery) ([]client.JobResult, error)
}

// Enqueuer is the slice of the dispatcher the feed needs to schedule
// follow-up work.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind, entityKey string, payload any) (uuid.UUID, error)
	EnqueueCoalesced(ctx context.Context, kind, entityKey string, payload any) (uuid.UUID, bool, error)
}

// JobFeedService ingests external postings per category and fans out
// notifications to interested accounts. Per-category work items carry the
// category id as entity key, so two ingestion runs for the same category
// never overlap while distinct categories proceed in parallel.
type JobFeedService struct {
	store          store.Store
	search         JobSearcher
	enqueuer       Enqueuer
	producer       *events.EventProducer
	notifyLimiter  *rate.Limiter
	stalePending   time.Duration
	defaultRefresh time.Duration
	logger         *zap.SugaredLogger
}

// JobFeedOption tunes optional JobFeedService behavior.
type JobFeedOption func(*JobFeedService)

// WithDefaultRefresh sets the refresh interval applied to categories created
// without one.
func WithDefaultRefresh(d time.Duration) JobFeedOption {
	return func(s *JobFeedService) {
		if d > 0 {
			s.defaultRefresh = d
		}
	}
}

func NewJobFeedService(s store.Store, search JobSearcher, enqueuer Enqueuer, producer *events.EventProducer, notifyPerSecond float64, notifyBurst int, opts ...JobFeedOption) *JobFeedService {
	srv := &JobFeedService{
		store:          s,
		search:         search,
		enqueuer:       enqueuer,
		producer:       producer,
		notifyLimiter:  rate.NewLimiter(rate.Limit(notifyPerSecond), notifyBurst),
		stalePending:   time.Hour,
		defaultRefresh: 24 * time.Hour,
		logger:         zap.S().Named("job_feed_service"),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// HandleDailyFeed consumes job_feed.daily work items: one ingestion item per
// category that is due, so a slow category cannot hold up the rest of the
// batch.
func (s *JobFeedService) HandleDailyFeed(ctx context.Context, item *model.WorkItem) error {
	categories, err := s.store.JobCategory().ListDue(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("listing due categories: %w", err)
	}

	for i := range categories {
		category := &categories[i]
		_, enqueued, err := s.enqueuer.EnqueueCoalesced(ctx, model.KindCategoryIngest,
			CategoryEntityKey(category.ID), CategoryIngestPayload{CategoryID: category.ID})
		if err != nil {
			return fmt.Errorf("enqueueing ingest for category %s: %w", category.ID, err)
		}
		if enqueued {
			s.logger.Debugw("category ingest scheduled", "category", category.ID, "label", category.Label)
		}
	}

	s.logger.Infow("daily feed scheduled", "categories", len(categories))
	return nil
}

// HandleCategoryIngest consumes job_feed.category_ingest work items. The
// fetch cursor only advances on success, so a failed provider call leaves the
// category due and a later run retries the same window.
func (s *JobFeedService) HandleCategoryIngest(ctx context.Context, item *model.WorkItem) error {
	payload, err := decodePayload[CategoryIngestPayload](item.Payload)
	if err != nil {
		return err
	}

	category, err := s.store.JobCategory().Get(ctx, payload.CategoryID)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return NewErrCategoryNotFound(payload.CategoryID)
		}
		return err
	}
	if !category.Active {
		s.logger.Debugw("skipping inactive category", "category", category.ID)
		return nil
	}

	results, err := s.search.Search(ctx, client.JobQuery{Category: category.Label, Location: category.Location})
	if err != nil {
		return fmt.Errorf("searching postings for category %s: %w", category.ID, err)
	}

	created := make([]*model.JobPosting, 0, len(results))
	for _, result := range results {
		posting := &model.JobPosting{
			ExternalID: result.ExternalID,
			CategoryID: category.ID,
			SourceID:   result.SourceID,
			Title:      result.Title,
			Company:    result.Company,
			Location:   result.Location,
			DedupeKey:  dedupeKey(result.Title, result.Company, result.Location),
			Status:     model.PostingStatusVisible,
			PostedAt:   result.PostedAt,
		}
		stored, isNew, err := s.store.JobPosting().Upsert(ctx, posting)
		if err != nil {
			metrics.IncreasePostingsIngestedMetric("error")
			return fmt.Errorf("storing posting %q: %w", result.Title, err)
		}
		if isNew {
			metrics.IncreasePostingsIngestedMetric("created")
			created = append(created, stored)
		} else {
			metrics.IncreasePostingsIngestedMetric("updated")
		}
	}

	if err := s.store.JobCategory().AdvanceFetched(ctx, category.ID, time.Now()); err != nil {
		return fmt.Errorf("advancing fetch cursor for category %s: %w", category.ID, err)
	}

	s.fanOut(ctx, category.ID, created)
	s.logger.Infow("category ingested", "category", category.ID, "fetched", len(results), "new", len(created))
	return nil
}

// HandleRecruiterSubmission consumes job_feed.recruiter_submitted work items.
// Recruiter postings skip the external provider entirely and land in
// moderation.
func (s *JobFeedService) HandleRecruiterSubmission(ctx context.Context, item *model.WorkItem) error {
	payload, err := decodePayload[RecruiterJobPayload](item.Payload)
	if err != nil {
		return err
	}
	if _, err := s.store.JobCategory().Get(ctx, payload.CategoryID); err != nil {
		if err == store.ErrRecordNotFound {
			return NewErrCategoryNotFound(payload.CategoryID)
		}
		return err
	}

	postedAt := payload.PostedAt
	if postedAt.IsZero() {
		postedAt = time.Now()
	}

	posting := &model.JobPosting{
		CategoryID: payload.CategoryID,
		SourceID:   "recruiter/" + payload.RecruiterID,
		Title:      payload.Title,
		Company:    payload.Company,
		Location:   payload.Location,
		DedupeKey:  dedupeKey(payload.Title, payload.Company, payload.Location),
		Status:     model.PostingStatusModeration,
		PostedAt:   postedAt,
	}
	stored, isNew, err := s.store.JobPosting().Upsert(ctx, posting)
	if err != nil {
		return fmt.Errorf("storing recruiter posting %q: %w", payload.Title, err)
	}
	if isNew {
		metrics.IncreasePostingsIngestedMetric("created")
	}

	s.logger.Infow("recruiter posting submitted", "posting", stored.ID, "recruiter", payload.RecruiterID)
	return nil
}

// HandleScheduledSweep consumes job_feed.scheduled_sweep work items: it
// re-enqueues resumes stuck in pending and categories past their refresh
// window. Safety net for items lost to crashes between write and enqueue.
func (s *JobFeedService) HandleScheduledSweep(ctx context.Context, item *model.WorkItem) error {
	now := time.Now()

	stale, err := s.store.Resume().ListStalePending(ctx, now.Add(-s.stalePending))
	if err != nil {
		return fmt.Errorf("listing stale resumes: %w", err)
	}
	for i := range stale {
		resume := &stale[i]
		_, enqueued, err := s.enqueuer.EnqueueCoalesced(ctx, model.KindResumeCreated,
			ResumeEntityKey(resume.ID), ResumeEventPayload{ResumeID: resume.ID})
		if err != nil {
			return err
		}
		if enqueued {
			s.logger.Warnw("re-enqueued stale resume", "resume", resume.ID)
		}
	}

	due, err := s.store.JobCategory().ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("listing due categories: %w", err)
	}
	for i := range due {
		category := &due[i]
		if _, _, err := s.enqueuer.EnqueueCoalesced(ctx, model.KindCategoryIngest,
			CategoryEntityKey(category.ID), CategoryIngestPayload{CategoryID: category.ID}); err != nil {
			return err
		}
	}

	s.logger.Infow("sweep completed", "stale_resumes", len(stale), "due_categories", len(due))
	return nil
}

// ApprovePosting promotes a moderated recruiter posting and fans out
// notifications. Approving an already visible posting is a no-op.
func (s *JobFeedService) ApprovePosting(ctx context.Context, id uuid.UUID) error {
	posting, err := s.store.JobPosting().Get(ctx, id)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return NewErrPostingNotFound(id)
		}
		return err
	}
	if posting.Status == model.PostingStatusVisible {
		return nil
	}

	won, err := s.store.JobPosting().SetStatus(ctx, id, model.PostingStatusModeration, model.PostingStatusVisible)
	if err != nil {
		return err
	}
	if won {
		posting.Status = model.PostingStatusVisible
		s.fanOut(ctx, posting.CategoryID, []*model.JobPosting{posting})
		s.logger.Infow("posting approved", "posting", id)
	}
	return nil
}

// CreateCategory registers a new ingestion query.
func (s *JobFeedService) CreateCategory(ctx context.Context, label, location string, refresh time.Duration) (*model.JobCategory, error) {
	if label == "" {
		return nil, NewErrValidation("category label is required")
	}
	if refresh <= 0 {
		refresh = s.defaultRefresh
	}
	return s.store.JobCategory().Create(ctx, &model.JobCategory{
		Label:          label,
		Location:       location,
		RefreshSeconds: int(refresh.Seconds()),
		Active:         true,
	})
}

// Subscribe registers an account for notifications about a category.
func (s *JobFeedService) Subscribe(ctx context.Context, accountID string, categoryID uuid.UUID) error {
	if _, err := s.store.JobCategory().Get(ctx, categoryID); err != nil {
		if err == store.ErrRecordNotFound {
			return NewErrCategoryNotFound(categoryID)
		}
		return err
	}
	return s.store.Interest().Subscribe(ctx, accountID, categoryID)
}

// fanOut queues one notification per interested account per new visible
// posting, throttled so a large ingestion batch cannot flood the
// notification channel.
func (s *JobFeedService) fanOut(ctx context.Context, categoryID uuid.UUID, postings []*model.JobPosting) {
	if s.producer == nil || len(postings) == 0 {
		return
	}

	accounts, err := s.store.Interest().ListAccounts(ctx, categoryID)
	if err != nil {
		s.logger.Errorw("failed to list interested accounts", "category", categoryID, "error", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	for _, posting := range postings {
		if posting.Status != model.PostingStatusVisible {
			continue
		}
		for _, accountID := range accounts {
			if err := s.notifyLimiter.Wait(ctx); err != nil {
				return
			}
			body, _ := json.Marshal(events.NotificationEvent{
				AccountID: accountID,
				Subject:   "new job posting",
				Message:   fmt.Sprintf("%s at %s (%s)", posting.Title, posting.Company, posting.Location),
				EntityID:  posting.ID.String(),
			})
			if err := s.producer.Write(ctx, events.NotificationMessageKind, bytes.NewReader(body)); err != nil {
				s.logger.Errorw("failed to queue posting notification", "account", accountID, "error", err)
				continue
			}
			metrics.IncreaseNotificationsQueuedMetric()
		}
	}
}

// dedupeKey hashes the normalized identity of a posting. Case and surrounding
// whitespace do not create distinct postings.
func dedupeKey(title, company, location string) string {
	normalize := func(v string) string {
		return strings.ToLower(strings.Join(strings.Fields(v), " "))
	}
	sum := sha256.Sum256([]byte(normalize(title) + "\x00" + normalize(company) + "\x00" + normalize(location)))
	return hex.EncodeToString(sum[:])
}
