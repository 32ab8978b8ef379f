package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/auth"
	"github.com/fieldline/copilot/internal/config"
	"github.com/fieldline/copilot/internal/models"
)

var (
	ErrNotAuthorized             = errors.New("not authorized")
	ErrPaymentRequiresAdmin      = errors.New("payments over the admin threshold require the admin role")
	ErrEmergencyRescheduleDenied = errors.New("technicians cannot perform emergency reschedules")
	ErrScheduleInPast            = errors.New("cannot schedule in the past")
	ErrScheduleTooFarOut         = errors.New("scheduling beyond the horizon requires the manager role")
)

// PolicyChecker is the pluggable policy engine consulted after the
// built-in rules pass. A nil checker skips the step.
type PolicyChecker interface {
	Check(ctx context.Context, action models.Action, user models.UserContext) error
}

// Authorizer decides whether a user may execute an action: role and
// granted permissions first, then domain rules, then temporal rules,
// then the policy engine.
type Authorizer struct {
	cfg    config.ActionsConfig
	policy PolicyChecker
	now    func() time.Time
	logger *zap.Logger
}

func NewAuthorizer(cfg config.ActionsConfig, policy PolicyChecker, logger *zap.Logger) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PaymentAdminAmount <= 0 {
		cfg.PaymentAdminAmount = 1000
	}
	if cfg.ScheduleHorizonDays <= 0 {
		cfg.ScheduleHorizonDays = 30
	}
	return &Authorizer{cfg: cfg, policy: policy, now: time.Now, logger: logger}
}

func (a *Authorizer) Authorize(ctx context.Context, action models.Action, user models.UserContext) error {
	verb := permissionVerb(action)
	if !auth.HasPermission(user.Role, user.Permissions, action.Domain, verb) {
		return fmt.Errorf("%w: role %s may not %s in %s", ErrNotAuthorized, user.Role, verb, action.Domain)
	}

	if err := a.domainRules(action, user); err != nil {
		return err
	}
	if err := a.temporalRules(action, user); err != nil {
		return err
	}

	if a.policy != nil {
		if err := a.policy.Check(ctx, action, user); err != nil {
			return err
		}
	}
	return nil
}

func (a *Authorizer) domainRules(action models.Action, user models.UserContext) error {
	if action.Domain == "billing" || strings.Contains(action.Operation, "payment") {
		if amount, ok := payloadFloat(action.Payload, "amount"); ok && amount > a.cfg.PaymentAdminAmount {
			if user.Role != auth.RoleAdmin {
				return fmt.Errorf("%w: amount %.2f", ErrPaymentRequiresAdmin, amount)
			}
		}
	}

	if strings.Contains(action.Operation, "reschedule") && isEmergency(action) {
		if user.Role == auth.RoleTechnician {
			return ErrEmergencyRescheduleDenied
		}
	}
	return nil
}

// temporalRules applies to any action that names a target date:
// nothing is scheduled in the past, and far-future scheduling needs a
// manager.
func (a *Authorizer) temporalRules(action models.Action, user models.UserContext) error {
	date := payloadString(action.Payload, "date")
	if date == "" {
		return nil
	}
	target, err := time.Parse("2006-01-02", date)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	today := a.now().Truncate(24 * time.Hour)
	if target.Before(today) {
		return fmt.Errorf("%w: %s", ErrScheduleInPast, date)
	}
	horizon := today.AddDate(0, 0, a.cfg.ScheduleHorizonDays)
	if target.After(horizon) && !auth.RoleAtLeast(user.Role, auth.RoleManager) {
		a.logger.Debug("Far-future scheduling denied",
			zap.String("role", user.Role),
			zap.String("date", date),
		)
		return fmt.Errorf("%w: %s is more than %d days out", ErrScheduleTooFarOut, date, a.cfg.ScheduleHorizonDays)
	}
	return nil
}

// permissionVerb maps the action to the verb used in permission
// strings. The action type is authoritative; schedule and assign
// count as writes on their domain.
func permissionVerb(action models.Action) string {
	switch action.Type {
	case models.ActionCreate, models.ActionUpdate, models.ActionDelete,
		models.ActionSchedule, models.ActionAssign, models.ActionNotify, models.ActionOptimize:
		return string(action.Type)
	}
	// fall back to the first word of the operation
	op := action.Operation
	if idx := strings.IndexAny(op, "_- "); idx > 0 {
		op = op[:idx]
	}
	if op == "" {
		return "update"
	}
	return op
}

func isEmergency(action models.Action) bool {
	if strings.Contains(action.Operation, "emergency") {
		return true
	}
	if v, ok := action.Payload["emergency"].(bool); ok && v {
		return true
	}
	return false
}

func payloadFloat(payload map[string]interface{}, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
