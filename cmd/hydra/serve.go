package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/ahrav/go-hydra/infrastructure/cache"
	"github.com/ahrav/go-hydra/infrastructure/judge"
	"github.com/ahrav/go-hydra/infrastructure/llm"
	"github.com/ahrav/go-hydra/infrastructure/metrics"
	"github.com/ahrav/go-hydra/infrastructure/notify"
	"github.com/ahrav/go-hydra/infrastructure/scheduler"
	"github.com/ahrav/go-hydra/infrastructure/server"
	"github.com/ahrav/go-hydra/infrastructure/storage"
	"github.com/ahrav/go-hydra/internal/application"
	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/observability"
	"github.com/ahrav/go-hydra/internal/ports"
	"github.com/ahrav/go-hydra/internal/syncstatus"
)

// Readiness keys tracked by /readyz.
const (
	readyDatabase  = "database"
	readyLLM       = "llm"
	readyScheduler = "scheduler"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger := observability.NewLogger(observability.LogConfig{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Output: cmd.ErrOrStderr(),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}
}

// app is a fully wired Hydra process.
type app struct {
	cfg       *application.Config
	logger    *slog.Logger
	db        *storage.DB
	status    *syncstatus.Aggregator
	metrics   *metrics.PrometheusMetrics
	llm       *llm.Registry
	board     *application.LeaderboardService
	scheduler *scheduler.Scheduler
	server    *server.Server
}

// buildApp opens the store and wires every service. lookupEnv overrides
// how provider API keys are read; nil uses the process environment.
func buildApp(ctx context.Context, cfg *application.Config, logger *slog.Logger, lookupEnv func(string) (string, bool)) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		status:  syncstatus.New(),
		metrics: metrics.NewPrometheusMetrics(),
	}
	a.status.Register(readyDatabase)
	a.status.Register(readyLLM)
	a.status.Subscribe(func(s syncstatus.Status) {
		a.metrics.RecordGauge("ready_dependencies", float64(s.Loaded), nil)
	})

	db, err := storage.Open(ctx, storage.Dialect(cfg.Database.Driver), cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	a.status.MarkLoaded(readyDatabase)

	registry, err := llm.NewRegistry(llm.RegistryConfig{
		DefaultProvider: cfg.LLM.DefaultProvider,
		Timeout:         time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		RateLimit:       cfg.LLM.RateLimit,
		Burst:           cfg.LLM.Burst,
		MaxRetries:      cfg.LLM.MaxRetries,
		Metrics:         a.metrics,
		TracerProvider:  otel.GetTracerProvider(),
		LookupEnv:       lookupEnv,
		Logger:          logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.llm = registry
	if err := registry.Warm(cfg.Interview.ArbiterModel, cfg.Interview.ModeratorModel, cfg.Discrepancy.EvolutionerModel); err != nil {
		logger.Warn("llm clients unavailable", "error", err, "providers", registry.AvailableProviders())
		a.status.MarkFailed(readyLLM, err)
	} else {
		a.status.MarkLoaded(readyLLM)
	}

	if err := a.wireServices(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wireServices() error {
	cfg, logger := a.cfg, a.logger

	external := a.externalNotifiers()
	notifiers := []ports.Notifier{a.db.Notifications()}
	if external != nil {
		notifiers = append(notifiers, external)
	}

	schemeRegistry, err := application.NewSchemeRegistry(cfg.SchemeConfig())
	if err != nil {
		return err
	}
	scorer := application.NewScorer(schemeRegistry, logger, a.metrics)

	lru, err := cache.NewLRU[[]domain.ScoredModel](cfg.Cache.Size, 0)
	if err != nil {
		return err
	}

	var boardOpts []application.LeaderboardOption
	var discrepancy *application.DiscrepancyService
	if evolutioner, err := a.llm.GetClient(cfg.Discrepancy.EvolutionerModel); err != nil {
		logger.Warn("discrepancy escalation disabled", "model", cfg.Discrepancy.EvolutionerModel, "error", err)
	} else {
		discrepancy, err = application.NewDiscrepancyService(a.db, evolutioner, notifiers, cfg.Discrepancy, logger,
			application.WithDiscrepancyMetrics(a.metrics))
		if err != nil {
			return err
		}
		boardOpts = append(boardOpts, application.WithDiscrepancyTrigger(discrepancy))
	}

	board, err := application.NewLeaderboardService(a.db.Results(), scorer, lru, cfg.Scoring, logger, boardOpts...)
	if err != nil {
		return err
	}
	a.board = board

	arbiter, err := judge.NewArbiter(a.llm, judge.Config{
		ArbiterModel:   cfg.Interview.ArbiterModel,
		ModeratorModel: cfg.Interview.ModeratorModel,
	})
	if err != nil {
		return err
	}
	verdicts, err := application.NewVerdictRunner(a.db, arbiter, cfg.Interview, logger, a.metrics)
	if err != nil {
		return err
	}
	decisions, err := application.NewDecisionService(a.db, cfg.Retry, logger, application.WithDecisionMetrics(a.metrics))
	if err != nil {
		return err
	}

	if cfg.Scheduler.Enabled {
		a.status.Register(readyScheduler)
		sweepOpts := []scheduler.SweepOption{scheduler.WithMetrics(a.metrics)}
		if external != nil {
			sweepOpts = append(sweepOpts, scheduler.WithExternalNotifiers(external))
		}
		sweep, err := scheduler.NewPendingDecisionSweep(a.db.Sessions(), a.db.Notifications(), cfg.Scheduler.StaleAfter, logger, sweepOpts...)
		if err != nil {
			return err
		}
		a.scheduler = scheduler.New(logger)
		if err := a.scheduler.Add(cfg.Scheduler.SweepSpec, sweep); err != nil {
			a.status.MarkFailed(readyScheduler, err)
			return err
		}
	}

	deps := server.Deps{
		Scorer:         scorer,
		Leaderboard:    board,
		Verdicts:       verdicts,
		Decisions:      decisions,
		Status:         a.status,
		Metrics:        a.metrics,
		MetricsHandler: a.metrics.Handler(),
	}
	if discrepancy != nil {
		deps.Discrepancy = discrepancy
	}
	srv, err := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		CORSOrigins:     cfg.Server.CORSOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, deps, logger)
	if err != nil {
		return err
	}
	a.server = srv
	return nil
}

// externalNotifiers returns the configured out-of-app channels, or nil.
func (a *app) externalNotifiers() ports.Notifier {
	if a.cfg.Notify.SlackWebhookURL == "" {
		return nil
	}
	slack, err := notify.NewSlackNotifier(a.cfg.Notify.SlackWebhookURL)
	if err != nil {
		a.logger.Warn("slack notifications disabled", "error", err)
		return nil
	}
	return notify.NewMultiNotifier(slack)
}

// Run serves until ctx ends, then stops the scheduler and drains
// background discrepancy checks.
func (a *app) Run(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Start()
		a.status.MarkLoaded(readyScheduler)
	}
	a.logger.Info("hydra started",
		"addr", a.cfg.Server.Addr,
		"database", a.cfg.Database.Driver,
		"llm_clients", a.llm.Cached(),
	)

	serveErr := a.server.ListenAndServe(ctx)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	var stopErr error
	if a.scheduler != nil {
		stopErr = a.scheduler.Stop(stopCtx)
	}
	a.board.Wait()
	a.logger.Info("hydra stopped")
	return errors.Join(serveErr, stopErr)
}

// Close releases the store.
func (a *app) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
