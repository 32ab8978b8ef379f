package contextmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/metrics"
	"github.com/fieldline/copilot/internal/models"
	"github.com/fieldline/copilot/internal/session"
)

// SummaryProvider supplies lightweight entity summaries for one domain
// to the Context's domain section. Providers are typically backed by
// the same services the domain adapters call.
type SummaryProvider interface {
	Domain() string
	Summaries(ctx context.Context, user *models.UserContext) ([]models.EntityRef, error)
}

// Manager builds per-request Context snapshots and caches them keyed by
// (user, session) for a short TTL.
type Manager struct {
	sessions  *session.Manager
	cache     *snapshotCache
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.RWMutex
	providers map[string]SummaryProvider
}

// Option configures the manager.
type Option func(*Manager)

// WithClock replaces the wall clock, for tests running under simulated time.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a context manager with the given snapshot TTL.
func NewManager(sessions *session.Manager, ttl time.Duration, capacity int, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		sessions:  sessions,
		logger:    logger,
		now:       time.Now,
		providers: make(map[string]SummaryProvider),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cache = newSnapshotCache(ttl, capacity, m.now)
	return m
}

// RegisterProvider adds a domain summary provider.
func (m *Manager) RegisterProvider(p SummaryProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.Domain()] = p
}

// Build returns the Context snapshot for the given operator and
// session, serving a cached snapshot when one is still fresh. The app
// state reported by the caller is only consulted on a rebuild;
// callers needing the very latest state should Invalidate first.
func (m *Manager) Build(ctx context.Context, user *models.UserContext, sessionID string, app models.AppContext) (*models.Context, error) {
	if user == nil {
		return nil, fmt.Errorf("user context required")
	}

	key := cacheKey(user.ID, sessionID)
	if snapshot, ok := m.cache.get(key); ok {
		metrics.ContextCacheHits.Inc()
		return snapshot, nil
	}
	metrics.ContextCacheMisses.Inc()

	sess, err := m.sessions.GetOrCreate(ctx, sessionID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	snapshot := &models.Context{
		User:    *user,
		App:     app,
		Domain:  m.collectSummaries(ctx, user),
		Session: sess.Snapshot(),
		BuiltAt: m.now(),
	}

	m.cache.put(cacheKey(user.ID, sess.ID), snapshot)
	return snapshot, nil
}

// Invalidate drops the cached snapshot for (user, session).
func (m *Manager) Invalidate(userID, sessionID string) {
	m.cache.invalidate(cacheKey(userID, sessionID))
}

// Sessions exposes the underlying session store.
func (m *Manager) Sessions() *session.Manager {
	return m.sessions
}

// collectSummaries queries every registered provider; a failing
// provider contributes nothing rather than failing the build.
func (m *Manager) collectSummaries(ctx context.Context, user *models.UserContext) map[string][]models.EntityRef {
	m.mu.RLock()
	providers := make([]SummaryProvider, 0, len(m.providers))
	for _, p := range m.providers {
		providers = append(providers, p)
	}
	m.mu.RUnlock()

	if len(providers) == 0 {
		return nil
	}

	out := make(map[string][]models.EntityRef, len(providers))
	for _, p := range providers {
		refs, err := p.Summaries(ctx, user)
		if err != nil {
			m.logger.Debug("Domain summary provider failed",
				zap.String("domain", p.Domain()),
				zap.Error(err),
			)
			continue
		}
		out[p.Domain()] = refs
	}
	return out
}

func cacheKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}
