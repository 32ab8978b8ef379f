package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/models"
)

// ErrNoAdapter is returned when a domain has no registered adapter.
var ErrNoAdapter = errors.New("no adapter found for domain")

// Registry holds the live set of domain adapters. Adapters are
// registered at startup via dependency injection and can be swapped at
// runtime; lookups never consult global state.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// Register installs or replaces the adapter for its domain.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return errors.New("adapter is nil")
	}
	domain := a.Domain()
	if domain == "" {
		return errors.New("adapter has empty domain")
	}
	r.mu.Lock()
	_, replaced := r.adapters[domain]
	r.adapters[domain] = a
	r.mu.Unlock()

	r.logger.Info("Adapter registered",
		zap.String("domain", domain),
		zap.String("version", a.Version()),
		zap.Bool("replaced", replaced),
	)
	return nil
}

// Unregister removes the adapter for domain, if present.
func (r *Registry) Unregister(domain string) {
	r.mu.Lock()
	delete(r.adapters, domain)
	r.mu.Unlock()
	r.logger.Info("Adapter unregistered", zap.String("domain", domain))
}

// Get returns the adapter for domain.
func (r *Registry) Get(domain string) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[domain]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, domain)
	}
	return a, nil
}

// Executor returns the adapter for domain if it supports actions.
func (r *Registry) Executor(domain string) (Executor, error) {
	a, err := r.Get(domain)
	if err != nil {
		return nil, err
	}
	exec, ok := a.(Executor)
	if !ok {
		return nil, fmt.Errorf("adapter for domain %s does not execute actions", domain)
	}
	return exec, nil
}

// StateReader returns the adapter for domain if it can snapshot prior
// state for rollback. Absence is not an error; it just means actions in
// that domain are not rollback-eligible.
func (r *Registry) StateReader(domain string) (StateReader, bool) {
	a, err := r.Get(domain)
	if err != nil {
		return nil, false
	}
	sr, ok := a.(StateReader)
	return sr, ok
}

// Rollbacker returns the adapter for domain if it can replay rollback
// snapshots.
func (r *Registry) Rollbacker(domain string) (Rollbacker, bool) {
	a, err := r.Get(domain)
	if err != nil {
		return nil, false
	}
	rb, ok := a.(Rollbacker)
	return rb, ok
}

// Domains lists registered domains in no particular order.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for d := range r.adapters {
		out = append(out, d)
	}
	return out
}

// Health probes every registered adapter concurrently. A probe that
// panics or times out is reported unhealthy rather than failing the
// whole sweep.
func (r *Registry) Health(ctx context.Context) map[string]models.HealthStatus {
	r.mu.RLock()
	snapshot := make(map[string]Adapter, len(r.adapters))
	for d, a := range r.adapters {
		snapshot[d] = a
	}
	r.mu.RUnlock()

	out := make(map[string]models.HealthStatus, len(snapshot))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for domain, a := range snapshot {
		wg.Add(1)
		go func(domain string, a Adapter) {
			defer wg.Done()
			status := probe(ctx, a)
			mu.Lock()
			out[domain] = status
			mu.Unlock()
		}(domain, a)
	}
	wg.Wait()
	return out
}

func probe(ctx context.Context, a Adapter) (status models.HealthStatus) {
	defer func() {
		if rec := recover(); rec != nil {
			status = models.HealthStatus{
				Healthy:   false,
				Status:    "unhealthy",
				Message:   fmt.Sprintf("health check panicked: %v", rec),
				CheckedAt: time.Now(),
			}
		}
	}()
	return a.HealthCheck(ctx)
}
