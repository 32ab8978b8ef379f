// Package audit records action outcomes. Writes are asynchronous and
// best-effort: an unreachable audit store never blocks or fails the
// action whose outcome is being recorded.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/circuitbreaker"
	"github.com/fieldline/copilot/internal/metrics"
	"github.com/fieldline/copilot/internal/models"
)

// Entry is one audit record. Duration is persisted in milliseconds;
// AffectedEntities and Payload are stored as JSON.
type Entry struct {
	ID               string                 `db:"id"`
	ActionID         string                 `db:"action_id"`
	UserID           string                 `db:"user_id"`
	Role             string                 `db:"role"`
	Page             string                 `db:"page"`
	Domain           string                 `db:"domain"`
	Operation        string                 `db:"operation"`
	Status           string                 `db:"status"`
	Error            string                 `db:"error"`
	Duration         time.Duration          `db:"-"`
	AffectedEntities []models.EntityRef     `db:"-"`
	Payload          map[string]interface{} `db:"-"`
	CreatedAt        time.Time              `db:"created_at"`
}

// Sink accepts audit entries. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

const insertEntry = `
	INSERT INTO action_audit (id, action_id, user_id, role, page, domain, operation, status, error, duration_ms, affected_entities, payload, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// Writer persists entries to Postgres from a background goroutine. The
// queue is bounded; when it fills, new entries are dropped and counted
// rather than applying backpressure to the action path.
type Writer struct {
	db     *circuitbreaker.DatabaseWrapper
	queue  chan Entry
	done   chan struct{}
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func NewWriter(db *sqlx.DB, queueSize int, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	w := &Writer{
		db:     circuitbreaker.NewDatabaseWrapper(db, logger),
		queue:  make(chan Entry, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go w.run()
	return w
}

// DB exposes the wrapped database handle for health checks.
func (w *Writer) DB() *circuitbreaker.DatabaseWrapper { return w.db }

// Record enqueues the entry. It never blocks: a full queue drops the
// entry with a warning, and a closed writer silently discards it.
func (w *Writer) Record(_ context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		metrics.AuditRecordsWritten.WithLabelValues("dropped").Inc()
		return nil
	}
	select {
	case w.queue <- e:
		metrics.AuditQueueDepth.Set(float64(len(w.queue)))
		return nil
	default:
		metrics.AuditRecordsWritten.WithLabelValues("dropped").Inc()
		w.logger.Warn("Audit queue full, dropping entry",
			zap.String("action_id", e.ActionID),
			zap.String("status", e.Status),
		)
		return nil
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for e := range w.queue {
		metrics.AuditQueueDepth.Set(float64(len(w.queue)))
		w.write(e)
	}
}

func (w *Writer) write(e Entry) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		payload = []byte("{}")
	}
	affected, err := json.Marshal(e.AffectedEntities)
	if err != nil {
		affected = []byte("[]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = w.db.ExecContext(ctx, insertEntry,
		e.ID, e.ActionID, e.UserID, e.Role, e.Page, e.Domain, e.Operation, e.Status, e.Error,
		e.Duration.Milliseconds(), affected, payload, e.CreatedAt)
	if err != nil {
		metrics.AuditRecordsWritten.WithLabelValues("error").Inc()
		w.logger.Warn("Audit write failed", zap.String("action_id", e.ActionID), zap.Error(err))
		return
	}
	metrics.AuditRecordsWritten.WithLabelValues("ok").Inc()
}

// Close drains the queue and stops the background writer. Records
// arriving after Close are discarded rather than racing the queue.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
	return w.db.Close()
}

// NopSink discards every entry. Used when no audit store is configured.
type NopSink struct{}

func (NopSink) Record(context.Context, Entry) error { return nil }
