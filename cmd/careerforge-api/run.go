package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apiserver "github.com/careerforge/careerforge/internal/api_server"
	"github.com/careerforge/careerforge/internal/client"
	"github.com/careerforge/careerforge/internal/config"
	"github.com/careerforge/careerforge/internal/dispatcher"
	"github.com/careerforge/careerforge/internal/events"
	handlers "github.com/careerforge/careerforge/internal/handlers/v1alpha1"
	"github.com/careerforge/careerforge/internal/ratelimit"
	"github.com/careerforge/careerforge/internal/service"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
	"github.com/careerforge/careerforge/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the careerforge api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalf("reading configuration: %v", err)
		}

		logger := log.InitLog(log.Level(cfg.Service.LogLevel))
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalf("initializing data store: %v", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(); err != nil {
			zap.S().Fatalf("running initial migration: %v", err)
		}

		var writer events.Writer = &events.StdoutWriter{}
		if len(cfg.Service.Kafka.Brokers) > 0 {
			kw, err := events.NewKafkaWriter(cfg.Service.Kafka.Brokers, cfg.Service.Kafka.ClientID)
			if err != nil {
				zap.S().Fatalf("initializing kafka writer: %v", err)
			}
			writer = kw
		}
		producer := events.NewEventProducer(writer, events.WithOutputTopic(cfg.Service.Kafka.Topic))
		defer func() { _ = producer.Close() }()

		providers := cfg.Service.Providers
		extraction := client.NewExtractionClient(providers.ExtractionURL, providers.Timeout)
		analysis := client.NewAnalysisClient(providers.AnalysisURL, providers.Timeout)
		jobSearch := client.NewJobSearchClient(providers.JobSearchURL, providers.Timeout)
		conversations := client.NewConversationClient(providers.ConversationURL, providers.Timeout)
		var billing service.BillingProvider
		if providers.BillingURL == "" {
			quota := cfg.Service.Quota
			billing = &client.StaticBillingProvider{Defaults: client.Entitlements{
				Credits:          quota.DefaultCredits,
				InterviewMinutes: quota.DefaultInterviewMinutes,
				JobMatches:       quota.DefaultJobMatches,
				PeriodDays:       quota.PeriodDays,
			}}
		} else {
			billing = client.NewBillingClient(providers.BillingURL, providers.Timeout)
		}

		registry := dispatcher.NewRegistry()
		d := dispatcher.New(s, registry, producer, dispatcher.Config{
			Workers:      cfg.Service.Dispatcher.Workers,
			PollInterval: cfg.Service.Dispatcher.PollInterval,
			TaskTimeout:  cfg.Service.Dispatcher.TaskTimeout,
			MaxAttempts:  cfg.Service.Dispatcher.MaxAttempts,
			Backoff:      dispatcher.NewBackoffPolicy(cfg.Service.Dispatcher.BackoffBase, cfg.Service.Dispatcher.BackoffMax),
		})

		quotaSrv := service.NewQuotaService(s, billing)
		resumeSrv := service.NewResumeService(s, extraction, analysis, producer, cfg.Service.Dispatcher.MaxAttempts)
		tailoredSrv := service.NewTailoredResumeService(s, analysis, quotaSrv)
		interviewSrv := service.NewInterviewService(s, conversations, quotaSrv, cfg.Service.Interview.TickInterval)
		jobFeedSrv := service.NewJobFeedService(s, jobSearch, d, producer,
			cfg.Service.JobFeed.NotifyPerSecond, cfg.Service.JobFeed.NotifyBurst,
			service.WithDefaultRefresh(cfg.Service.JobFeed.RefreshInterval))

		for kind, handler := range map[string]dispatcher.Handler{
			model.KindResumeCreated:         dispatcher.HandlerFunc(resumeSrv.HandleResumeEvent),
			model.KindResumeUpdated:         dispatcher.HandlerFunc(resumeSrv.HandleResumeEvent),
			model.KindTailoredResumeCreated: dispatcher.HandlerFunc(tailoredSrv.HandleTailoredEvent),
			model.KindTailoredResumeUpdated: dispatcher.HandlerFunc(tailoredSrv.HandleTailoredEvent),
			model.KindInterviewCreated:      dispatcher.HandlerFunc(interviewSrv.HandleInterviewEvent),
			model.KindDailyJobFeed:          dispatcher.HandlerFunc(jobFeedSrv.HandleDailyFeed),
			model.KindCategoryIngest:        dispatcher.HandlerFunc(jobFeedSrv.HandleCategoryIngest),
			model.KindScheduledIngest:       dispatcher.HandlerFunc(jobFeedSrv.HandleScheduledSweep),
			model.KindRecruiterJobSubmitted: dispatcher.HandlerFunc(jobFeedSrv.HandleRecruiterSubmission),
		} {
			if err := registry.Register(kind, handler); err != nil {
				zap.S().Fatalf("registering handler for %s: %v", kind, err)
			}
		}

		scheduler := dispatcher.NewScheduler(d, []dispatcher.Schedule{
			{Kind: model.KindDailyJobFeed, Every: cfg.Service.JobFeed.DailyInterval},
			{Kind: model.KindScheduledIngest, Every: cfg.Service.JobFeed.SweepInterval},
		})

		limiter := ratelimit.New(cfg.Service.RateLimit.EventsPerSecond, cfg.Service.RateLimit.Burst)
		handler := handlers.NewServiceHandler(resumeSrv, tailoredSrv, interviewSrv, jobFeedSrv, d, limiter)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		group, ctx := errgroup.WithContext(ctx)

		group.Go(func() error {
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				return err
			}
			return apiserver.New(cfg, handler, listener).Run(ctx)
		})

		group.Go(func() error {
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				return err
			}
			return apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener).Run(ctx)
		})

		group.Go(func() error { return d.Run(ctx) })
		group.Go(func() error { return scheduler.Run(ctx) })
		group.Go(func() error { return interviewSrv.Run(ctx) })

		return group.Wait()
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
