package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/auth"
	"github.com/fieldline/copilot/internal/config"
	"github.com/fieldline/copilot/internal/models"
)

func testAuthorizer(policy PolicyChecker) *Authorizer {
	a := NewAuthorizer(config.ActionsConfig{
		PaymentAdminAmount:  1000,
		ScheduleHorizonDays: 30,
	}, policy, zap.NewNop())
	a.now = func() time.Time {
		return time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	}
	return a
}

func user(role string, perms ...string) models.UserContext {
	return models.UserContext{ID: "u1", Role: role, Permissions: perms}
}

func TestAuthorizeRolePermissions(t *testing.T) {
	a := testAuthorizer(nil)
	create := models.Action{
		ID: "a1", Type: models.ActionCreate, Domain: "tickets", Operation: "create_ticket",
		Payload: map[string]interface{}{"customer_id": "C-1001"},
	}

	assert.NoError(t, a.Authorize(context.Background(), create, user(auth.RoleOperator)))
	assert.ErrorIs(t, a.Authorize(context.Background(), create, user(auth.RoleTechnician)), ErrNotAuthorized)

	// an individually granted permission fills the gap
	assert.NoError(t, a.Authorize(context.Background(), create, user(auth.RoleTechnician, "tickets:create")))
}

func TestAuthorizePaymentThreshold(t *testing.T) {
	a := testAuthorizer(nil)
	payment := func(amount float64) models.Action {
		return models.Action{
			ID: "p1", Type: models.ActionCreate, Domain: "billing", Operation: "create_payment",
			Payload: map[string]interface{}{"amount": amount},
		}
	}

	assert.NoError(t, a.Authorize(context.Background(), payment(500), user(auth.RoleManager)))
	assert.ErrorIs(t, a.Authorize(context.Background(), payment(1500), user(auth.RoleManager)), ErrPaymentRequiresAdmin)
	assert.NoError(t, a.Authorize(context.Background(), payment(1500), user(auth.RoleAdmin)))
}

func TestAuthorizeEmergencyReschedule(t *testing.T) {
	a := testAuthorizer(nil)
	action := models.Action{
		ID: "r1", Type: models.ActionSchedule, Domain: "schedule", Operation: "emergency_reschedule",
		Payload: map[string]interface{}{"work_order_id": "WO-1001", "date": "2026-08-30", "time": "09:00"},
	}

	// technician has schedule:read only, so grant the write to isolate
	// the emergency rule
	tech := user(auth.RoleTechnician, "schedule:schedule")
	assert.ErrorIs(t, a.Authorize(context.Background(), action, tech), ErrEmergencyRescheduleDenied)
	assert.NoError(t, a.Authorize(context.Background(), action, user(auth.RoleOperator)))
}

func TestAuthorizeTemporalRules(t *testing.T) {
	a := testAuthorizer(nil)
	scheduled := func(date string) models.Action {
		return models.Action{
			ID: "s1", Type: models.ActionSchedule, Domain: "schedule", Operation: "schedule",
			Payload: map[string]interface{}{"work_order_id": "WO-1003", "date": date, "time": "11:00"},
		}
	}

	assert.ErrorIs(t, a.Authorize(context.Background(), scheduled("2026-08-28"), user(auth.RoleOperator)), ErrScheduleInPast)
	assert.NoError(t, a.Authorize(context.Background(), scheduled("2026-08-29"), user(auth.RoleOperator)))
	assert.NoError(t, a.Authorize(context.Background(), scheduled("2026-09-28"), user(auth.RoleOperator)))
	// 31 days out: operator denied, manager allowed
	assert.ErrorIs(t, a.Authorize(context.Background(), scheduled("2026-09-29"), user(auth.RoleOperator)), ErrScheduleTooFarOut)
	assert.NoError(t, a.Authorize(context.Background(), scheduled("2026-09-29"), user(auth.RoleManager)))
}

type denyPolicy struct{ err error }

func (d denyPolicy) Check(ctx context.Context, action models.Action, u models.UserContext) error {
	return d.err
}

func TestAuthorizeConsultsPolicyLast(t *testing.T) {
	denied := errors.New("blocked by policy")
	a := testAuthorizer(denyPolicy{err: denied})

	action := models.Action{
		ID: "a1", Type: models.ActionCreate, Domain: "tickets", Operation: "create_ticket",
		Payload: map[string]interface{}{"customer_id": "C-1001"},
	}
	assert.ErrorIs(t, a.Authorize(context.Background(), action, user(auth.RoleOperator)), denied)
	// role denial short-circuits before the policy runs
	assert.ErrorIs(t, a.Authorize(context.Background(), action, user(auth.RoleTechnician)), ErrNotAuthorized)
}
