package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/circuitbreaker"
	"github.com/fieldline/copilot/internal/metrics"
	"github.com/fieldline/copilot/internal/models"
)

const maxHistory = 100

// Manager stores conversation sessions in redis with a local
// read-through cache. Entries are treated as immutable snapshots once
// written, so concurrent readers need no coordination beyond the map lock.
type Manager struct {
	client      *circuitbreaker.RedisWrapper
	logger      *zap.Logger
	ttl         time.Duration
	mu          sync.RWMutex
	localCache  map[string]*Session
	cacheAccess map[string]time.Time
	maxSessions int
}

// NewManager connects to redis and returns a session manager.
func NewManager(addr, password string, ttl time.Duration, logger *zap.Logger) (*Manager, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	client := circuitbreaker.NewRedisWrapper(redisClient, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Manager{
		client:      client,
		logger:      logger,
		ttl:         ttl,
		localCache:  make(map[string]*Session),
		cacheAccess: make(map[string]time.Time),
		maxSessions: 10000,
	}, nil
}

// GetOrCreate returns the session with the given id, creating it if
// absent. A session owned by a different user is not reused; a fresh
// one is created instead.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID, userID string) (*Session, error) {
	if sessionID != "" {
		existing, err := m.Get(ctx, sessionID)
		if err == nil {
			if existing.UserID != userID {
				m.logger.Warn("Session owned by different user, creating new session",
					zap.String("requested_session_id", sessionID),
					zap.String("requesting_user", userID),
				)
				return m.create(ctx, uuid.New().String(), userID)
			}
			return existing, nil
		}
		if err != ErrSessionNotFound && err != ErrSessionExpired {
			return nil, err
		}
		return m.create(ctx, sessionID, userID)
	}
	return m.create(ctx, uuid.New().String(), userID)
}

func (m *Manager) create(ctx context.Context, sessionID, userID string) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		History:   make([]models.ConversationMessage, 0),
	}

	if err := m.save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[sessionID] = session
	m.cacheAccess[sessionID] = now
	m.evictIfNeeded()
	m.mu.Unlock()

	m.logger.Info("Created session",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
	)
	metrics.SessionsCreated.Inc()
	return session, nil
}

// Get retrieves a session by id.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	cached, ok := m.localCache[sessionID]
	m.mu.RUnlock()
	if ok {
		if cached.IsExpired() {
			_ = m.Delete(ctx, sessionID)
			return nil, ErrSessionExpired
		}
		m.mu.Lock()
		m.cacheAccess[sessionID] = time.Now()
		m.mu.Unlock()
		return cached, nil
	}

	data, err := m.client.Get(ctx, m.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if session.IsExpired() {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	m.mu.Lock()
	m.localCache[sessionID] = &session
	m.cacheAccess[sessionID] = time.Now()
	m.evictIfNeeded()
	m.mu.Unlock()

	return &session, nil
}

// Update persists a modified session.
func (m *Manager) Update(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}
	session.UpdatedAt = time.Now()

	if err := m.save(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[session.ID] = session
	m.mu.Unlock()
	return nil
}

// AddMessage appends a conversation turn, trimming history to a bound.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, msg models.ConversationMessage) error {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	session.History = append(session.History, msg)
	if len(session.History) > maxHistory {
		session.History = session.History[len(session.History)-maxHistory:]
	}
	return m.Update(ctx, session)
}

// RecordIntent tracks an intent as active for the session.
func (m *Manager) RecordIntent(ctx context.Context, sessionID string, intent models.Intent) error {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.ActiveIntents = append(session.ActiveIntents, intent)
	if len(session.ActiveIntents) > 10 {
		session.ActiveIntents = session.ActiveIntents[len(session.ActiveIntents)-10:]
	}
	return m.Update(ctx, session)
}

// RecordExecutedAction moves an action from pending to executed.
func (m *Manager) RecordExecutedAction(ctx context.Context, sessionID, actionID string) error {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	pending := session.PendingActions[:0]
	for _, a := range session.PendingActions {
		if a.ID != actionID {
			pending = append(pending, a)
		}
	}
	session.PendingActions = pending
	session.ExecutedActions = append(session.ExecutedActions, actionID)
	return m.Update(ctx, session)
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.client.Del(ctx, m.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	m.mu.Lock()
	delete(m.localCache, sessionID)
	delete(m.cacheAccess, sessionID)
	m.mu.Unlock()
	return nil
}

// Close releases the redis connection.
func (m *Manager) Close() error {
	return m.client.Close()
}

// Redis exposes the wrapped client for health checks.
func (m *Manager) Redis() *circuitbreaker.RedisWrapper {
	return m.client
}

func (m *Manager) key(sessionID string) string {
	return fmt.Sprintf("copilot:session:%s", sessionID)
}

func (m *Manager) save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}
	return m.client.Set(ctx, m.key(session.ID), data, ttl).Err()
}

// evictIfNeeded drops the least recently used half of the local cache
// once it exceeds maxSessions. Caller holds the write lock.
func (m *Manager) evictIfNeeded() {
	if len(m.localCache) <= m.maxSessions {
		return
	}

	type accessEntry struct {
		id   string
		time time.Time
	}
	entries := make([]accessEntry, 0, len(m.localCache))
	for id := range m.localCache {
		entries = append(entries, accessEntry{id: id, time: m.cacheAccess[id]})
	}
	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].time.Before(entries[i].time) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	toRemove := m.maxSessions / 2
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(m.localCache, entries[i].id)
		delete(m.cacheAccess, entries[i].id)
		metrics.SessionCacheEvictions.Inc()
	}
}
