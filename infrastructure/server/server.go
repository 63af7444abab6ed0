// Package server exposes Hydra's scoring, verdict and decision operations
// over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-hydra/internal/application"
	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
	"github.com/ahrav/go-hydra/internal/syncstatus"
)

// DefaultShutdownTimeout bounds graceful shutdown when Config names none.
const DefaultShutdownTimeout = 15 * time.Second

// Scorer ranks ad hoc contest results.
type Scorer interface {
	Validate(application.ComputeInput) error
	ComputeScores(application.ComputeInput) []domain.ScoredModel
}

// Leaderboard serves and records contest standings.
type Leaderboard interface {
	Standings(ctx context.Context, contestID string, scheme domain.Scheme, userWeight *int) ([]domain.ScoredModel, error)
	RecordScore(ctx context.Context, r *domain.ContestResult) error
}

// DiscrepancyChecker escalates user/arbiter disagreements.
type DiscrepancyChecker interface {
	Check(ctx context.Context, in application.DiscrepancyInput) (*domain.EvolutionRecord, error)
}

// VerdictRunner streams an interview verdict.
type VerdictRunner interface {
	RunVerdict(ctx context.Context, sessionID, arbiterModel string, sink func(domain.PhaseEvent)) (*application.VerdictRun, error)
}

// DecisionApplier stamps a human decision on a verdict.
type DecisionApplier interface {
	ApplyDecision(ctx context.Context, sessionID string, decision domain.Decision, retestCompetencies []string) (*domain.InterviewSession, error)
}

// Deps are the services behind the routes. Routes whose service is nil are
// not registered.
type Deps struct {
	Scorer      Scorer
	Leaderboard Leaderboard
	Discrepancy DiscrepancyChecker
	Verdicts    VerdictRunner
	Decisions   DecisionApplier

	// Status backs /readyz. Nil reports ready.
	Status *syncstatus.Aggregator
	// Metrics records request latency. Nil disables it.
	Metrics ports.MetricsCollector
	// MetricsHandler is served at /metrics when set.
	MetricsHandler http.Handler
}

// Config configures the listener.
type Config struct {
	Addr            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Server is the HTTP API.
type Server struct {
	cfg     Config
	deps    Deps
	engine  *gin.Engine
	logger  *slog.Logger
	started time.Time
}

// New builds the router. A nil logger discards output.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Scorer == nil && deps.Leaderboard == nil && deps.Verdicts == nil && deps.Decisions == nil && deps.Discrepancy == nil {
		return nil, errors.New("server needs at least one service")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With("component", "http"),
		started: time.Now(),
	}
	s.engine = s.newEngine()
	return s, nil
}

func (s *Server) newEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger, s.deps.Metrics))

	corsConfig := cors.DefaultConfig()
	if len(s.cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	engine.Use(cors.New(corsConfig))

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/readyz", s.handleReady)
	if s.deps.MetricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(s.deps.MetricsHandler))
	}

	v1 := engine.Group("/v1")
	if s.deps.Scorer != nil {
		v1.POST("/scores", s.handleComputeScores)
	}
	if s.deps.Leaderboard != nil {
		v1.GET("/contests/:id/standings", s.handleStandings)
		v1.POST("/contests/:id/results", s.handleRecordResult)
	}
	if s.deps.Discrepancy != nil {
		v1.POST("/discrepancies", s.handleDiscrepancy)
	}
	if s.deps.Verdicts != nil {
		v1.POST("/interviews/:id/verdict", s.handleVerdict)
	}
	if s.deps.Decisions != nil {
		v1.POST("/interviews/:id/decision", s.handleDecision)
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{Error: "route not found"})
	})
	return engine
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

// Serve accepts connections on ln until ctx ends, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}
