package application

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/go-hydra/infrastructure/schemes"
	"github.com/ahrav/go-hydra/internal/domain"
)

// ErrUnknownScheme is returned when no factory is registered for a scheme.
var ErrUnknownScheme = errors.New("unknown scoring scheme")

// SchemeFactory builds an aggregator from validated scheme parameters.
type SchemeFactory func(cfg schemes.Config) (domain.ScoreAggregator, error)

// SchemeRegistry maps scheme names to aggregator factories.
// It comes with the built-in weighted-avg, tournament and elo schemes and
// supports registering custom schemes at runtime. Safe for concurrent use.
type SchemeRegistry struct {
	// factories maps scheme names to their factory functions.
	factories map[domain.Scheme]SchemeFactory
	// mu protects concurrent access to the factories map.
	mu sync.RWMutex
	// config is handed to every factory.
	config schemes.Config
}

// NewSchemeRegistry creates a registry with the built-in schemes registered.
// It returns an error if cfg fails validation.
func NewSchemeRegistry(cfg schemes.Config) (*SchemeRegistry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &SchemeRegistry{
		factories: make(map[domain.Scheme]SchemeFactory),
		config:    cfg,
	}
	r.registerBuiltinFactories()
	return r, nil
}

func (r *SchemeRegistry) registerBuiltinFactories() {
	r.factories[domain.SchemeWeightedAvg] = func(schemes.Config) (domain.ScoreAggregator, error) {
		return schemes.NewWeightedAverage(), nil
	}
	r.factories[domain.SchemeTournament] = func(cfg schemes.Config) (domain.ScoreAggregator, error) {
		return schemes.NewTournament(cfg)
	}
	r.factories[domain.SchemeElo] = func(cfg schemes.Config) (domain.ScoreAggregator, error) {
		return schemes.NewElo(cfg)
	}
}

// Register adds or replaces the factory for scheme.
func (r *SchemeRegistry) Register(scheme domain.Scheme, factory SchemeFactory) error {
	if scheme == "" {
		return fmt.Errorf("scheme name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[scheme] = factory
	return nil
}

// Create builds the aggregator for scheme.
func (r *SchemeRegistry) Create(scheme domain.Scheme) (domain.ScoreAggregator, error) {
	r.mu.RLock()
	factory, ok := r.factories[scheme]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}

	agg, err := factory(r.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheme %s: %w", scheme, err)
	}
	return agg, nil
}

// Has reports whether scheme is registered.
func (r *SchemeRegistry) Has(scheme domain.Scheme) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[scheme]
	return ok
}

// SupportedSchemes returns the registered scheme names in sorted order.
func (r *SchemeRegistry) SupportedSchemes() []domain.Scheme {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Scheme, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
