package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/careerforge/careerforge/internal/events"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
	"github.com/careerforge/careerforge/pkg/metrics"
)

type Config struct {
	Workers      int
	PollInterval time.Duration
	TaskTimeout  time.Duration
	MaxAttempts  int
	Backoff      BackoffPolicy
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 2 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Backoff.Base == 0 {
		c.Backoff = NewBackoffPolicy(2*time.Second, 5*time.Minute)
	}
	return c
}

// Dispatcher owns the durable work item queue: it accepts typed events,
// delivers them to the registered handlers with at-least-once semantics and
// applies the retry/backoff/dead-letter policy. Items sharing an entity key
// are delivered in enqueue order, one at a time.
type Dispatcher struct {
	store    store.Store
	registry *Registry
	cfg      Config
	producer *events.EventProducer
	wakeCh   chan struct{}
	logger   *zap.SugaredLogger
}

func New(s store.Store, registry *Registry, producer *events.EventProducer, cfg Config) *Dispatcher {
	return &Dispatcher{
		store:    s,
		registry: registry,
		cfg:      cfg.withDefaults(),
		producer: producer,
		wakeCh:   make(chan struct{}, 1),
		logger:   zap.S().Named("dispatcher"),
	}
}

// Enqueue persists a new work item and nudges the poll loop.
func (d *Dispatcher) Enqueue(ctx context.Context, kind, entityKey string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encoding payload for %s: %w", kind, err)
	}

	item, err := d.store.WorkItem().Enqueue(ctx, &model.WorkItem{
		Kind:        kind,
		EntityKey:   entityKey,
		Payload:     data,
		MaxAttempts: d.cfg.MaxAttempts,
	})
	if err != nil {
		return uuid.Nil, err
	}

	d.nudge()
	return item.ID, nil
}

// EnqueueCoalesced enqueues unless a non-terminal item already exists for the
// entity key. Used for cron slots so a still-running trigger is never doubled.
func (d *Dispatcher) EnqueueCoalesced(ctx context.Context, kind, entityKey string, payload any) (uuid.UUID, bool, error) {
	open, err := d.store.WorkItem().HasOpen(ctx, entityKey)
	if err != nil {
		return uuid.Nil, false, err
	}
	if open {
		d.logger.Debugw("trigger coalesced", "kind", kind, "entity_key", entityKey)
		return uuid.Nil, false, nil
	}

	id, err := d.Enqueue(ctx, kind, entityKey, payload)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// Run polls the queue until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Infow("dispatcher started", "workers", d.cfg.Workers, "kinds", d.registry.Kinds())

	ticker := jitterbug.New(d.cfg.PollInterval, &jitterbug.Norm{Stdev: d.cfg.PollInterval / 10})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return nil
		case <-ticker.C:
		case <-d.wakeCh:
		}

		if _, err := d.RunOnce(ctx); err != nil {
			d.logger.Errorw("poll cycle failed", "error", err)
		}
	}
}

// RunOnce claims one batch of due items and processes it to completion.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	items, err := d.store.WorkItem().Claim(ctx, time.Now().UTC(), d.cfg.Workers)
	if err != nil {
		return 0, fmt.Errorf("claiming work items: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i := range items {
		item := items[i]
		g.Go(func() error {
			d.process(gctx, &item)
			return nil
		})
	}
	_ = g.Wait()

	return len(items), nil
}

func (d *Dispatcher) process(ctx context.Context, item *model.WorkItem) {
	handler, found := d.registry.Resolve(item.Kind)
	if !found {
		d.logger.Errorw("no handler registered", "kind", item.Kind, "work_item", item.ID)
		d.deadLetter(ctx, item, fmt.Sprintf("no handler registered for kind %q", item.Kind))
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, d.cfg.TaskTimeout)
	defer cancel()

	err := handler.Handle(taskCtx, item)
	if err == nil {
		if ackErr := d.store.WorkItem().MarkSucceeded(ctx, item.ID); ackErr != nil {
			d.logger.Errorw("failed to ack work item", "work_item", item.ID, "error", ackErr)
		}
		metrics.IncreaseWorkItemsProcessedMetric(item.Kind, "succeeded")
		return
	}

	if rq, ok := asRequeue(err); ok {
		if item.Attempt >= item.MaxAttempts {
			d.deadLetter(ctx, item, fmt.Sprintf("requeue ceiling reached: %s", rq.Reason))
			return
		}
		d.logger.Debugw("work item requeued", "work_item", item.ID, "kind", item.Kind, "after", rq.After, "reason", rq.Reason)
		if retryErr := d.store.WorkItem().Retry(ctx, item.ID, time.Now().UTC().Add(rq.After), rq.Reason); retryErr != nil {
			d.logger.Errorw("failed to requeue work item", "work_item", item.ID, "error", retryErr)
		}
		metrics.IncreaseWorkItemRetriesMetric(item.Kind)
		return
	}

	if isPermanent(err) {
		d.logger.Warnw("work item failed permanently", "work_item", item.ID, "kind", item.Kind, "error", err)
		if failErr := d.store.WorkItem().MarkFailed(ctx, item.ID, err.Error()); failErr != nil {
			d.logger.Errorw("failed to mark work item failed", "work_item", item.ID, "error", failErr)
		}
		metrics.IncreaseWorkItemsProcessedMetric(item.Kind, "failed")
		return
	}

	// transient failure: retry with backoff until the ceiling
	if item.Attempt >= item.MaxAttempts {
		d.deadLetter(ctx, item, err.Error())
		return
	}

	delay := d.cfg.Backoff.Delay(item.Attempt)
	d.logger.Warnw("work item failed, retrying",
		"work_item", item.ID, "kind", item.Kind, "attempt", item.Attempt, "delay", delay, "error", err)
	if retryErr := d.store.WorkItem().Retry(ctx, item.ID, time.Now().UTC().Add(delay), err.Error()); retryErr != nil {
		d.logger.Errorw("failed to schedule retry", "work_item", item.ID, "error", retryErr)
	}
	metrics.IncreaseWorkItemRetriesMetric(item.Kind)
}

func (d *Dispatcher) deadLetter(ctx context.Context, item *model.WorkItem, reason string) {
	d.logger.Errorw("work item dead lettered, operator attention required",
		"work_item", item.ID, "kind", item.Kind, "attempt", item.Attempt, "error", reason)

	if err := d.store.WorkItem().DeadLetter(ctx, item.ID, reason); err != nil {
		d.logger.Errorw("failed to dead letter work item", "work_item", item.ID, "error", err)
	}
	metrics.IncreaseWorkItemsDeadLetteredMetric(item.Kind)

	if d.producer != nil {
		alert, _ := json.Marshal(events.OperatorAlertEvent{
			WorkItemID: item.ID.String(),
			Kind:       item.Kind,
			LastError:  reason,
			Attempts:   item.Attempt,
		})
		if err := d.producer.Write(ctx, events.OperatorAlertMessageKind, bytes.NewReader(alert)); err != nil {
			d.logger.Errorw("failed to emit operator alert", "work_item", item.ID, "error", err)
		}
	}
}

func (d *Dispatcher) nudge() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}
