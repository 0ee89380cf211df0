package feed

import (
	"log/slog"
)

const (
	defaultMaxViews          = 64
	defaultReferenceCapacity = 4096
	defaultProfileCapacity   = 4096
)

// Registry bundles the shared caches for one client session.
//
// It replaces a process-wide singleton: construct one Registry at startup and
// pass it by reference to every component that needs it. Each view's slice
// inside these caches is mutated only by its owning component; all other code
// reads through the published accessors.
type Registry struct {
	// Events is the per-view ordered receipt store.
	Events *EventStore
	// Loads is the per-view pagination state tracker.
	Loads *LoadTracker
	// References is the memoized secondary-event resolver.
	References *ReferenceResolver
	// Profiles is the sender metadata directory.
	Profiles *ProfileDirectory
}

// RegistryOption mutates registry construction.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	logger            *slog.Logger
	maxViews          int
	referenceCapacity int
	profileCapacity   int
}

// WithRegistryLogger injects the logger used by the caches.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(cfg *registryConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMaxViews bounds how many views keep cached state concurrently.
func WithMaxViews(maxViews int) RegistryOption {
	return func(cfg *registryConfig) {
		if maxViews > 0 {
			cfg.maxViews = maxViews
		}
	}
}

// WithReferenceCapacity bounds the resolved-reference cache.
func WithReferenceCapacity(capacity int) RegistryOption {
	return func(cfg *registryConfig) {
		if capacity > 0 {
			cfg.referenceCapacity = capacity
		}
	}
}

// WithProfileCapacity bounds the sender profile cache.
func WithProfileCapacity(capacity int) RegistryOption {
	return func(cfg *registryConfig) {
		if capacity > 0 {
			cfg.profileCapacity = capacity
		}
	}
}

// NewRegistry creates the session-scoped cache bundle.
func NewRegistry(options ...RegistryOption) *Registry {
	cfg := registryConfig{
		logger:            slog.Default(),
		maxViews:          defaultMaxViews,
		referenceCapacity: defaultReferenceCapacity,
		profileCapacity:   defaultProfileCapacity,
	}
	for _, option := range options {
		option(&cfg)
	}

	return &Registry{
		Events:     NewEventStore(cfg.maxViews),
		Loads:      NewLoadTracker(cfg.maxViews),
		References: NewReferenceResolver(cfg.referenceCapacity, cfg.logger),
		Profiles:   NewProfileDirectory(cfg.profileCapacity, cfg.logger),
	}
}

// ClearAll empties every cache. Intended for test isolation between cases
// that share one registry.
func (r *Registry) ClearAll() {
	r.Events.Clear()
	r.Loads.Clear()
	r.References.Clear()
	r.Profiles.Clear()
}
