package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/copilot/internal/models"
)

func validTicketCreate() models.Action {
	return models.Action{
		ID:        "a1",
		Type:      models.ActionCreate,
		Domain:    "tickets",
		Operation: "create_ticket",
		Payload: map[string]interface{}{
			"customer_id": "C-1001",
			"description": "Furnace not producing heat since Monday",
		},
		Confidence: 0.9,
	}
}

func TestValidateAcceptsWellFormedAction(t *testing.T) {
	v := NewValidator(nil)
	assert.NoError(t, v.Validate(validTicketCreate()))
}

func TestValidateStructuralChecks(t *testing.T) {
	v := NewValidator(nil)

	a := validTicketCreate()
	a.Domain = ""
	assert.ErrorIs(t, v.Validate(a), ErrMissingDomain)

	a = validTicketCreate()
	a.Operation = ""
	assert.ErrorIs(t, v.Validate(a), ErrMissingOperation)

	a = validTicketCreate()
	a.Payload = nil
	assert.ErrorIs(t, v.Validate(a), ErrMissingPayload)
}

func TestValidateLowConfidenceAlwaysFails(t *testing.T) {
	v := NewValidator(nil)
	a := validTicketCreate()
	a.Confidence = 0.49
	assert.ErrorIs(t, v.Validate(a), ErrConfidenceTooLow)

	a.Confidence = 0.5
	assert.NoError(t, v.Validate(a))
}

func TestValidateUnsatisfiedRequirement(t *testing.T) {
	v := NewValidator(nil)
	a := validTicketCreate()
	a.Requirements = []models.ActionRequirement{
		{Type: "approval", Description: "supervisor approval", Satisfied: false},
	}
	err := v.Validate(a)
	require.ErrorIs(t, err, ErrRequirementUnsatisfied)
	assert.Contains(t, err.Error(), "supervisor approval")
}

func TestValidateTicketCreateNeedsCustomerID(t *testing.T) {
	v := NewValidator(nil)
	a := validTicketCreate()
	delete(a.Payload, "customer_id")
	err := v.Validate(a)
	require.ErrorIs(t, err, ErrCustomerIDRequired)
	assert.Contains(t, err.Error(), "Customer ID required")
}

func TestValidateTicketCreateNeedsDescription(t *testing.T) {
	v := NewValidator(nil)
	a := validTicketCreate()
	a.Payload["description"] = "short"
	assert.ErrorIs(t, v.Validate(a), ErrDescriptionTooShort)
}

func TestValidateDispatchAssign(t *testing.T) {
	v := NewValidator(nil)
	base := models.Action{
		ID: "a2", Type: models.ActionAssign, Domain: "dispatch", Operation: "assign",
		Payload:    map[string]interface{}{"work_order_id": "WO-1001"},
		Confidence: 0.8,
	}

	assert.ErrorIs(t, v.Validate(base), ErrTechnicianRequired)

	base.Payload["technician_id"] = "T-99"
	assert.ErrorIs(t, v.Validate(base), ErrUnknownTechnician)

	base.Payload["technician_id"] = "T-03" // known but busy
	assert.ErrorIs(t, v.Validate(base), ErrTechnicianUnavailable)

	base.Payload["technician_id"] = "T-07"
	assert.NoError(t, v.Validate(base))
}

func TestValidateScheduleNeedsDateAndTime(t *testing.T) {
	v := NewValidator(nil)
	a := models.Action{
		ID: "a3", Type: models.ActionSchedule, Domain: "schedule", Operation: "schedule",
		Payload:    map[string]interface{}{"work_order_id": "WO-1003", "date": "2026-09-01"},
		Confidence: 0.8,
	}
	assert.ErrorIs(t, v.Validate(a), ErrDateTimeRequired)

	a.Payload["time"] = "11:00"
	assert.NoError(t, v.Validate(a))

	a.Payload["date"] = "next tuesday"
	assert.ErrorIs(t, v.Validate(a), ErrInvalidDate)
}
