package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-hydra/infrastructure/schemes"
	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

// DefaultConfigPath is read when neither a path nor HYDRA_CONFIG is given.
// A missing default file is not an error.
const DefaultConfigPath = "hydra.yaml"

// Config is the complete runtime configuration of a Hydra process and serves
// as the primary configuration entry point for the system.
// Values are layered: built-in defaults, then the YAML file, then HYDRA_*
// environment variables.
type Config struct {
	// Server configures the HTTP API listener.
	Server ServerConfig `yaml:"server" validate:"required"`
	// Database selects the relational store backing every repository.
	Database DatabaseConfig `yaml:"database" validate:"required"`
	// Scoring holds leaderboard defaults and scheme parameters.
	Scoring ScoringConfig `yaml:"scoring" validate:"required"`
	// Interview holds the thresholds behind automatic verdict decisions.
	Interview InterviewConfig `yaml:"interview" validate:"required"`
	// Discrepancy configures the user/arbiter disagreement trigger.
	Discrepancy DiscrepancyConfig `yaml:"discrepancy" validate:"required"`
	// Notify configures optional external notification channels.
	Notify NotifyConfig `yaml:"notify"`
	// Scheduler configures background sweeps.
	Scheduler SchedulerConfig `yaml:"scheduler" validate:"required"`
	// Retry configures retries of transactional store work.
	Retry RetryConfig `yaml:"retry"`
	// LLM configures provider clients and their middleware.
	LLM LLMConfig `yaml:"llm" validate:"required"`
	// Log configures the process logger.
	Log LogConfig `yaml:"log" validate:"required"`
	// Cache configures in-memory caches.
	Cache CacheConfig `yaml:"cache" validate:"required"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the host:port the API binds to.
	Addr string `yaml:"addr" validate:"required,hostname_port"`
	// CORSOrigins lists allowed browser origins. Empty allows all.
	CORSOrigins []string `yaml:"cors_origins" validate:"dive,url"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// DatabaseConfig selects the SQL driver and connection string.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite3".
	Driver string `yaml:"driver" validate:"required,oneof=postgres sqlite3"`
	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn" validate:"required"`
}

// ScoringConfig holds leaderboard defaults.
type ScoringConfig struct {
	// DefaultScheme is used when a request names none.
	DefaultScheme string `yaml:"default_scheme" validate:"required,oneof=weighted-avg tournament elo"`
	// UserWeight is the default percentage given to the human score.
	UserWeight int `yaml:"user_weight" validate:"min=0,max=100"`
	// EloK is the Elo K-factor.
	EloK float64 `yaml:"elo_k" validate:"gt=0,lte=400"`
	// EloInitial is the starting Elo rating.
	EloInitial float64 `yaml:"elo_initial" validate:"gt=0"`
	// WinPoints is the tournament reward for a match win.
	WinPoints int `yaml:"win_points" validate:"min=1"`
	// DrawPoints is the tournament reward for a draw.
	DrawPoints int `yaml:"draw_points" validate:"min=0"`
}

// InterviewConfig holds the automatic decision thresholds.
type InterviewConfig struct {
	// ArbiterModel is the default "provider/model" of the arbiter persona.
	ArbiterModel string `yaml:"arbiter_model" validate:"omitempty,modelformat"`
	// ModeratorModel is the "provider/model" of the moderator persona.
	// Empty reuses the arbiter model.
	ModeratorModel string `yaml:"moderator_model" validate:"omitempty,modelformat"`
	// MinHireScore is the candidate score needed to hire on a cold start.
	// Nil uses DefaultMinHireScore; zero is a valid setting.
	MinHireScore *float64 `yaml:"min_hire_score" validate:"omitempty,min=0,max=10"`
	// RetestMargin is how far below the previous holder a candidate may
	// score and still be offered a retest. Nil uses DefaultRetestMargin.
	RetestMargin *float64 `yaml:"retest_margin" validate:"omitempty,min=0,max=10"`
}

// DiscrepancyConfig configures the disagreement trigger.
type DiscrepancyConfig struct {
	// Threshold is the absolute user/arbiter gap that escalates a result.
	Threshold float64 `yaml:"threshold" validate:"gt=0,lte=10"`
	// EvolutionerModel is the "provider/model" asked for a hypothesis.
	EvolutionerModel string `yaml:"evolutioner_model" validate:"omitempty,modelformat"`
	// MaxParallelNotifications bounds the supervisor fan-out.
	MaxParallelNotifications int `yaml:"max_parallel_notifications" validate:"min=1,max=64"`
}

// NotifyConfig configures external notification channels.
type NotifyConfig struct {
	// SlackWebhookURL enables the Slack notifier when set.
	SlackWebhookURL string `yaml:"slack_webhook_url" validate:"omitempty,url"`
}

// SchedulerConfig configures the pending decision sweep.
type SchedulerConfig struct {
	// Enabled turns the scheduler on.
	Enabled bool `yaml:"enabled"`
	// SweepSpec is a cron expression or descriptor such as "@every 1h".
	SweepSpec string `yaml:"sweep_spec" validate:"required"`
	// StaleAfter is how long a verdict may wait for a decision before its
	// owner is reminded.
	StaleAfter time.Duration `yaml:"stale_after" validate:"gt=0"`
}

// RetryConfig specifies the recovery strategy for transactional store work
// when transient failures occur.
type RetryConfig struct {
	// MaxAttempts defines the total number of attempts including the first.
	MaxAttempts int `yaml:"max_attempts" validate:"min=1,max=10"`
	// InitialWait specifies the base delay in milliseconds before the first
	// retry attempt.
	InitialWait int `yaml:"initial_wait_ms" validate:"min=0,max=60000"`
	// MaxWait caps the delay in milliseconds between retry attempts.
	MaxWait int `yaml:"max_wait_ms" validate:"min=0,max=300000"`
}

// LLMConfig configures provider clients and their middleware.
type LLMConfig struct {
	// DefaultProvider is used for model specs without a provider prefix.
	DefaultProvider string `yaml:"default_provider" validate:"required,oneof=openai anthropic google mistral openrouter"`
	// TimeoutSeconds bounds a single completion request.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"min=1,max=600"`
	// RateLimit is the sustained requests per second per provider.
	RateLimit float64 `yaml:"rate_limit" validate:"gt=0"`
	// Burst is the rate limiter bucket size.
	Burst int `yaml:"burst" validate:"min=1"`
	// MaxRetries is the number of retries after a failed request.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	// Format is "json" or "text".
	Format string `yaml:"format" validate:"oneof=json text"`
}

// CacheConfig configures in-memory caches.
type CacheConfig struct {
	// Size is the leaderboard cache capacity in entries.
	Size int `yaml:"size" validate:"min=1,max=100000"`
}

// DefaultConfig returns a configuration that runs locally against sqlite.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Driver: "sqlite3", DSN: "hydra.db"},
		Scoring: ScoringConfig{
			DefaultScheme: string(domain.SchemeWeightedAvg),
			UserWeight:    domain.DefaultUserWeight,
			EloK:          schemes.DefaultEloK,
			EloInitial:    schemes.DefaultEloInitial,
			WinPoints:     schemes.DefaultWinPoints,
			DrawPoints:    schemes.DefaultDrawPoints,
		},
		Interview: InterviewConfig{
			ArbiterModel: "openai/gpt-4o",
			MinHireScore: domain.Float(DefaultMinHireScore),
			RetestMargin: domain.Float(DefaultRetestMargin),
		},
		Discrepancy: DiscrepancyConfig{
			Threshold:                domain.DiscrepancyThreshold,
			EvolutionerModel:         "anthropic/claude-3-5-sonnet-latest",
			MaxParallelNotifications: 4,
		},
		Scheduler: SchedulerConfig{
			Enabled:    true,
			SweepSpec:  "@every 1h",
			StaleAfter: 24 * time.Hour,
		},
		Retry: RetryConfig{MaxAttempts: 2, InitialWait: 100, MaxWait: 2000},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			TimeoutSeconds:  60,
			RateLimit:       5,
			Burst:           10,
			MaxRetries:      2,
		},
		Log:   LogConfig{Level: "info", Format: "json"},
		Cache: CacheConfig{Size: 256},
	}
}

// SchemeConfig returns the scheme parameters derived from the scoring
// section.
func (c Config) SchemeConfig() schemes.Config {
	return schemes.Config{
		K:             c.Scoring.EloK,
		InitialRating: c.Scoring.EloInitial,
		WinPoints:     c.Scoring.WinPoints,
		DrawPoints:    c.Scoring.DrawPoints,
	}
}

// Validate checks every section against its struct tags and cross-field
// rules.
func (c Config) Validate() error {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if c.Scoring.DrawPoints > c.Scoring.WinPoints {
		return fmt.Errorf("%w: scoring.draw_points exceeds scoring.win_points", domain.ErrInvalidConfiguration)
	}
	if c.Retry.MaxWait < c.Retry.InitialWait {
		return fmt.Errorf("%w: retry.max_wait_ms is below retry.initial_wait_ms", domain.ErrInvalidConfiguration)
	}
	return nil
}

// LoadConfig builds the process configuration.
//
// Loading order:
//  1. .env in the working directory, if present
//  2. built-in defaults
//  3. the YAML file at path, HYDRA_CONFIG, or DefaultConfigPath
//  4. HYDRA_* environment overrides
//
// An explicitly named file that does not exist fails with
// ports.ErrConfigNotFound.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, ports.NewConfigError(".env", err)
	}

	cfg := DefaultConfig()

	explicit := true
	if path == "" {
		path = os.Getenv("HYDRA_CONFIG")
	}
	if path == "" {
		path = DefaultConfigPath
		explicit = false
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, ports.NewConfigError(path, fmt.Errorf("parse: %w", err))
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case errors.Is(err, os.ErrNotExist):
		return nil, ports.NewConfigError(path, ports.ErrConfigNotFound)
	default:
		return nil, ports.NewConfigError(path, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	envOverride(&cfg.Server.Addr, "HYDRA_SERVER_ADDR")
	envOverrideList(&cfg.Server.CORSOrigins, "HYDRA_CORS_ORIGINS")
	envOverride(&cfg.Database.Driver, "HYDRA_DB_DRIVER")
	envOverride(&cfg.Database.DSN, "HYDRA_DB_DSN")
	envOverride(&cfg.Scoring.DefaultScheme, "HYDRA_DEFAULT_SCHEME")
	envOverride(&cfg.Interview.ArbiterModel, "HYDRA_ARBITER_MODEL")
	envOverride(&cfg.Interview.ModeratorModel, "HYDRA_MODERATOR_MODEL")
	envOverride(&cfg.Discrepancy.EvolutionerModel, "HYDRA_EVOLUTIONER_MODEL")
	envOverride(&cfg.Notify.SlackWebhookURL, "HYDRA_SLACK_WEBHOOK_URL")
	envOverride(&cfg.Scheduler.SweepSpec, "HYDRA_SWEEP_SPEC")
	envOverride(&cfg.LLM.DefaultProvider, "HYDRA_LLM_PROVIDER")
	envOverride(&cfg.Log.Level, "HYDRA_LOG_LEVEL")
	envOverride(&cfg.Log.Format, "HYDRA_LOG_FORMAT")
	envOverrideBool(&cfg.Scheduler.Enabled, "HYDRA_SCHEDULER_ENABLED")

	return errors.Join(
		envOverrideInt(&cfg.Scoring.UserWeight, "HYDRA_USER_WEIGHT"),
		envOverrideInt(&cfg.Cache.Size, "HYDRA_CACHE_SIZE"),
		envOverrideInt(&cfg.LLM.TimeoutSeconds, "HYDRA_LLM_TIMEOUT_SECONDS"),
		envOverrideInt(&cfg.Retry.MaxAttempts, "HYDRA_RETRY_MAX_ATTEMPTS"),
		envOverrideOptionalFloat(&cfg.Interview.MinHireScore, "HYDRA_MIN_HIRE_SCORE"),
		envOverrideOptionalFloat(&cfg.Interview.RetestMargin, "HYDRA_RETEST_MARGIN"),
		envOverrideFloat(&cfg.Discrepancy.Threshold, "HYDRA_DISCREPANCY_THRESHOLD"),
		envOverrideDuration(&cfg.Scheduler.StaleAfter, "HYDRA_STALE_AFTER"),
	)
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideList(field *[]string, envKey string) {
	val := os.Getenv(envKey)
	if val == "" {
		return
	}
	*field = nil
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*field = append(*field, item)
		}
	}
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

func envOverrideInt(field *int, envKey string) error {
	val := os.Getenv(envKey)
	if val == "" {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return ports.NewConfigError(envKey, err)
	}
	*field = parsed
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	val := os.Getenv(envKey)
	if val == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return ports.NewConfigError(envKey, err)
	}
	*field = parsed
	return nil
}

func envOverrideOptionalFloat(field **float64, envKey string) error {
	if os.Getenv(envKey) == "" {
		return nil
	}
	var parsed float64
	if err := envOverrideFloat(&parsed, envKey); err != nil {
		return err
	}
	*field = &parsed
	return nil
}

func envOverrideDuration(field *time.Duration, envKey string) error {
	val := os.Getenv(envKey)
	if val == "" {
		return nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return ports.NewConfigError(envKey, err)
	}
	*field = parsed
	return nil
}
