package circuitbreaker

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DatabaseWrapper wraps a sqlx database handle with a circuit breaker.
// The audit writer uses it so a down postgres never blocks actions.
type DatabaseWrapper struct {
	db     *sqlx.DB
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewDatabaseWrapper creates a breaker-protected database handle.
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	cb := New("postgresql", DatabaseProfile(), logger)
	return &DatabaseWrapper{db: db, cb: cb, logger: logger}
}

// PingContext wraps Ping.
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	var pingErr error
	cbErr := dw.cb.Execute(ctx, func() error {
		pingErr = dw.db.PingContext(ctx)
		return pingErr
	})
	recordRequest("postgresql", cbErr == nil && pingErr == nil)

	if cbErr != nil {
		return cbErr
	}
	return pingErr
}

// ExecContext wraps Exec.
func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	var execErr error
	cbErr := dw.cb.Execute(ctx, func() error {
		res, execErr = dw.db.ExecContext(ctx, query, args...)
		return execErr
	})
	recordRequest("postgresql", cbErr == nil && execErr == nil)

	if cbErr != nil {
		return nil, cbErr
	}
	return res, execErr
}

// NamedExecContext wraps sqlx NamedExec.
func (dw *DatabaseWrapper) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	var res sql.Result
	var execErr error
	cbErr := dw.cb.Execute(ctx, func() error {
		res, execErr = dw.db.NamedExecContext(ctx, query, arg)
		return execErr
	})
	recordRequest("postgresql", cbErr == nil && execErr == nil)

	if cbErr != nil {
		return nil, cbErr
	}
	return res, execErr
}

// QueryxContext wraps sqlx Queryx.
func (dw *DatabaseWrapper) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	var rows *sqlx.Rows
	var queryErr error
	cbErr := dw.cb.Execute(ctx, func() error {
		rows, queryErr = dw.db.QueryxContext(ctx, query, args...)
		return queryErr
	})
	recordRequest("postgresql", cbErr == nil && queryErr == nil)

	if cbErr != nil {
		return nil, cbErr
	}
	return rows, queryErr
}

// State exposes the breaker state for health checks.
func (dw *DatabaseWrapper) State() State {
	return dw.cb.State()
}

// Close closes the underlying handle.
func (dw *DatabaseWrapper) Close() error {
	return dw.db.Close()
}
