// Package actions governs side-effecting operations: validation,
// authorization, rollback snapshotting, execution, history, and
// best-effort audit.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/adapters"
	"github.com/fieldline/copilot/internal/audit"
	"github.com/fieldline/copilot/internal/config"
	"github.com/fieldline/copilot/internal/metrics"
	"github.com/fieldline/copilot/internal/models"
	"github.com/fieldline/copilot/internal/tracing"
)

var (
	ErrActionNotFound      = errors.New("no executed action with that id")
	ErrAlreadyRolledBack   = errors.New("action was already rolled back")
	ErrRollbackUnavailable = errors.New("action is not eligible for rollback")
	ErrSnapshotMissing     = errors.New("rollback snapshot no longer available")
)

// Orchestrator drives the action state machine:
// pending → validated → executing → succeeded | failed, with a
// one-shot rolled_back transition on request.
type Orchestrator struct {
	registry   *adapters.Registry
	validator  *Validator
	authorizer *Authorizer
	snapshots  *snapshotStore
	history    *executionHistory
	audit      audit.Sink
	logger     *zap.Logger
}

func NewOrchestrator(registry *adapters.Registry, cfg config.ActionsConfig, policy PolicyChecker, sink audit.Sink, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Orchestrator{
		registry:   registry,
		validator:  NewValidator(nil),
		authorizer: NewAuthorizer(cfg, policy, logger),
		snapshots:  newSnapshotStore(cfg.RollbackCapacity, cfg.RollbackTTL),
		history:    newExecutionHistory(cfg.HistoryLimit),
		audit:      sink,
		logger:     logger,
	}
}

// ExecuteAction runs the full sequence for one action. Failures never
// escape as errors: every outcome is a well-formed ActionResult, with
// validation and authorization failures reported as user-correctable
// messages.
func (o *Orchestrator) ExecuteAction(ctx context.Context, action models.Action, reqCtx *models.Context) *models.ActionResult {
	start := time.Now()
	ctx, span := tracing.StartActionSpan(ctx, action.ID, action.Domain, action.Operation)
	defer span.End()
	action.Status = models.ActionPending

	if err := o.validator.Validate(action); err != nil {
		metrics.ActionValidationFailures.WithLabelValues(action.Domain, "validation").Inc()
		return o.reject(ctx, action, reqCtx, "rejected", err, start)
	}
	action.Status = models.ActionValidated

	user := models.UserContext{}
	if reqCtx != nil {
		user = reqCtx.User
	}
	if err := o.authorizer.Authorize(ctx, action, user); err != nil {
		metrics.ActionAuthzDenials.WithLabelValues(action.Domain, "denied").Inc()
		return o.reject(ctx, action, reqCtx, "denied", err, start)
	}

	// capture prior state before anything changes; a failed capture
	// just means the action cannot be rolled back
	snapshot := o.captureSnapshot(ctx, action)

	action.Status = models.ActionExecuting
	executor, err := o.registry.Executor(action.Domain)
	if err != nil {
		// unhandled domain is fatal for this action, not retryable
		metrics.ActionsExecuted.WithLabelValues(action.Domain, action.Operation, "unhandled").Inc()
		return o.reject(ctx, action, reqCtx, "failed", err, start)
	}

	result, err := executor.Execute(ctx, action, reqCtx)
	if err != nil {
		// nothing changed, so the captured snapshot is discarded and
		// rollback stays unavailable
		action.Status = models.ActionFailed
		metrics.ActionsExecuted.WithLabelValues(action.Domain, action.Operation, "failed").Inc()
		return o.reject(ctx, action, reqCtx, "failed", err, start)
	}

	action.Status = models.ActionSucceeded
	if snapshot != nil && result.RollbackAvailable {
		o.snapshots.put(action.ID, snapshot)
	} else {
		result.RollbackAvailable = false
	}

	o.history.record(action, result)
	o.recordAudit(ctx, action, reqCtx, "succeeded", "", time.Since(start), result.AffectedEntities)
	metrics.ActionsExecuted.WithLabelValues(action.Domain, action.Operation, "ok").Inc()

	o.logger.Info("Action executed",
		zap.String("action_id", action.ID),
		zap.String("domain", action.Domain),
		zap.String("operation", action.Operation),
		zap.Bool("rollback_available", result.RollbackAvailable),
	)
	return result
}

// RollbackAction replays the stored snapshot for a previously executed
// action. It succeeds at most once per action id.
func (o *Orchestrator) RollbackAction(ctx context.Context, actionID string) (*models.ActionResult, error) {
	start := time.Now()
	entry, ok := o.history.get(actionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
	}
	if entry.rolledBack {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRolledBack, actionID)
	}
	if !entry.result.Success || !entry.result.RollbackAvailable {
		return nil, fmt.Errorf("%w: %s", ErrRollbackUnavailable, actionID)
	}

	snapshot, ok := o.snapshots.get(actionID)
	if !ok {
		// retention lapsed; the action can never be rolled back now
		o.history.disableRollback(actionID)
		return nil, fmt.Errorf("%w: %s", ErrSnapshotMissing, actionID)
	}

	rollbacker, ok := o.registry.Rollbacker(entry.action.Domain)
	if !ok {
		return nil, fmt.Errorf("%w: domain %s cannot replay snapshots", ErrRollbackUnavailable, entry.action.Domain)
	}

	result, err := rollbacker.Rollback(ctx, entry.action, snapshot)
	if err != nil {
		o.recordAudit(ctx, entry.action, nil, "rollback_failed", err.Error(), time.Since(start), nil)
		return nil, fmt.Errorf("rollback %s: %w", actionID, err)
	}

	o.history.markRolledBack(actionID)
	o.snapshots.delete(actionID)
	metrics.ActionsRolledBack.WithLabelValues(entry.action.Domain).Inc()
	o.recordAudit(ctx, entry.action, nil, "rolled_back", "", time.Since(start), result.AffectedEntities)

	o.logger.Info("Action rolled back",
		zap.String("action_id", actionID),
		zap.String("domain", entry.action.Domain),
	)
	return result, nil
}

// Result returns the recorded outcome for an executed action.
func (o *Orchestrator) Result(actionID string) (*models.ActionResult, bool) {
	entry, ok := o.history.get(actionID)
	if !ok {
		return nil, false
	}
	return entry.result, true
}

// Recent lists up to n recorded results, newest first.
func (o *Orchestrator) Recent(n int) []*models.ActionResult {
	return o.history.recent(n)
}

func (o *Orchestrator) captureSnapshot(ctx context.Context, action models.Action) map[string]interface{} {
	reader, ok := o.registry.StateReader(action.Domain)
	if !ok {
		return nil
	}
	snapshot, err := reader.CurrentState(ctx, action)
	if err != nil {
		o.logger.Warn("Snapshot capture failed, action will not be rollback-eligible",
			zap.String("action_id", action.ID),
			zap.Error(err),
		)
		return nil
	}
	return snapshot
}

// reject builds the failure result for any short-circuited step and
// records it. The audit write is best-effort.
func (o *Orchestrator) reject(ctx context.Context, action models.Action, reqCtx *models.Context, status string, cause error, start time.Time) *models.ActionResult {
	result := &models.ActionResult{
		ActionID:          action.ID,
		Success:           false,
		Error:             cause.Error(),
		Duration:          time.Since(start),
		RollbackAvailable: false,
		Timestamp:         time.Now(),
	}
	o.history.record(action, result)
	o.recordAudit(ctx, action, reqCtx, status, cause.Error(), result.Duration, nil)
	return result
}

func (o *Orchestrator) recordAudit(ctx context.Context, action models.Action, reqCtx *models.Context, status, errMsg string, duration time.Duration, affected []models.EntityRef) {
	userID, role, page := "", "", ""
	if reqCtx != nil {
		userID = reqCtx.User.ID
		role = reqCtx.User.Role
		page = reqCtx.App.CurrentPage
	}
	err := o.audit.Record(ctx, audit.Entry{
		ActionID:         action.ID,
		UserID:           userID,
		Role:             role,
		Page:             page,
		Domain:           action.Domain,
		Operation:        action.Operation,
		Status:           status,
		Error:            errMsg,
		Duration:         duration,
		AffectedEntities: affected,
		Payload:          action.Payload,
	})
	if err != nil {
		// audit failures are logged and swallowed, never propagated
		o.logger.Warn("Audit record failed", zap.String("action_id", action.ID), zap.Error(err))
	}
}
