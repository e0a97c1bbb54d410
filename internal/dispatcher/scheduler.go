package dispatcher

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Schedule describes a cron-style trigger: every Every, an item of Kind is
// enqueued. All slots of one schedule share a single entity key, so a trigger
// whose previous run is still pending or running is coalesced instead of
// started twice, and runs never overlap.
type Schedule struct {
	Kind    string
	Every   time.Duration
	Payload any
}

// Scheduler turns wall-clock time into work items.
type Scheduler struct {
	dispatcher *Dispatcher
	schedules  []Schedule
	logger     *zap.SugaredLogger
}

func NewScheduler(d *Dispatcher, schedules []Schedule) *Scheduler {
	return &Scheduler{
		dispatcher: d,
		schedules:  schedules,
		logger:     zap.S().Named("scheduler"),
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, schedule := range s.schedules {
		schedule := schedule
		g.Go(func() error {
			return s.runSchedule(gctx, schedule)
		})
	}
	return g.Wait()
}

func (s *Scheduler) runSchedule(ctx context.Context, schedule Schedule) error {
	s.logger.Infow("schedule registered", "kind", schedule.Kind, "every", schedule.Every)

	// fire once at startup so a fresh deployment does not wait a full period
	s.trigger(ctx, schedule)

	ticker := jitterbug.New(schedule.Every, &jitterbug.Norm{Stdev: schedule.Every / 100})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.trigger(ctx, schedule)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, schedule Schedule) {
	entityKey := "cron/" + schedule.Kind
	id, enqueued, err := s.dispatcher.EnqueueCoalesced(ctx, schedule.Kind, entityKey, schedule.Payload)
	if err != nil {
		s.logger.Errorw("failed to enqueue scheduled trigger", "kind", schedule.Kind, "error", err)
		return
	}
	if enqueued {
		s.logger.Debugw("scheduled trigger enqueued", "kind", schedule.Kind, "work_item", id)
	}
}
