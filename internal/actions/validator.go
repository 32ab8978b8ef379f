package actions

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldline/copilot/internal/models"
)

const (
	// actions below this confidence are rejected outright
	minActionConfidence = 0.5

	minDescriptionLength = 10
)

var (
	ErrMissingDomain          = errors.New("action has no domain")
	ErrMissingOperation       = errors.New("action has no operation")
	ErrMissingPayload         = errors.New("action has no payload")
	ErrConfidenceTooLow       = fmt.Errorf("action confidence below %.1f", minActionConfidence)
	ErrRequirementUnsatisfied = errors.New("action requirement not satisfied")
	ErrCustomerIDRequired     = errors.New("Customer ID required")
	ErrDescriptionTooShort    = errors.New("ticket description too short")
	ErrTechnicianRequired     = errors.New("Technician ID required")
	ErrUnknownTechnician      = errors.New("technician not found")
	ErrTechnicianUnavailable  = errors.New("technician is not available")
	ErrDateTimeRequired       = errors.New("scheduling requires both a date and a time")
	ErrInvalidDate            = errors.New("invalid date, expected YYYY-MM-DD")
)

// TechnicianDirectory answers whether a technician exists and whether
// they can take new work. Wired to the dispatch roster; falls back to a
// built-in demo roster when nil.
type TechnicianDirectory interface {
	Lookup(id string) (known, available bool)
}

type demoDirectory map[string]bool

func (d demoDirectory) Lookup(id string) (known, available bool) {
	available, known = d[id]
	return known, available
}

// Validator performs structural and domain-specific checks before an
// action is authorized or executed.
type Validator struct {
	technicians TechnicianDirectory
}

func NewValidator(technicians TechnicianDirectory) *Validator {
	if technicians == nil {
		technicians = demoDirectory{"T-03": false, "T-07": true, "T-11": true}
	}
	return &Validator{technicians: technicians}
}

// Validate checks the action. The first failing check wins; a failure
// always means the action is rejected before any state is touched.
func (v *Validator) Validate(action models.Action) error {
	if action.Domain == "" {
		return ErrMissingDomain
	}
	if action.Operation == "" {
		return ErrMissingOperation
	}
	if len(action.Payload) == 0 {
		return ErrMissingPayload
	}
	if action.Confidence < minActionConfidence {
		return fmt.Errorf("%w: got %.2f", ErrConfidenceTooLow, action.Confidence)
	}
	for _, req := range action.Requirements {
		if !req.Satisfied {
			return fmt.Errorf("%w: %s", ErrRequirementUnsatisfied, req.Description)
		}
	}
	return v.validateDomain(action)
}

func (v *Validator) validateDomain(action models.Action) error {
	switch action.Domain {
	case "tickets":
		if strings.Contains(action.Operation, "create") {
			if payloadString(action.Payload, "customer_id", "customerId") == "" {
				return ErrCustomerIDRequired
			}
			if len(payloadString(action.Payload, "description")) < minDescriptionLength {
				return fmt.Errorf("%w: need at least %d characters", ErrDescriptionTooShort, minDescriptionLength)
			}
		}
	case "dispatch":
		if action.Type == models.ActionAssign || strings.Contains(action.Operation, "assign") {
			techID := payloadString(action.Payload, "technician_id", "technician")
			if techID == "" {
				return ErrTechnicianRequired
			}
			known, available := v.technicians.Lookup(techID)
			if !known {
				return fmt.Errorf("%w: %s", ErrUnknownTechnician, techID)
			}
			if !available {
				return fmt.Errorf("%w: %s", ErrTechnicianUnavailable, techID)
			}
		}
	case "schedule":
		if strings.Contains(action.Operation, "schedule") {
			date := payloadString(action.Payload, "date")
			timeOfDay := payloadString(action.Payload, "time")
			if date == "" || timeOfDay == "" {
				return ErrDateTimeRequired
			}
			if _, err := time.Parse("2006-01-02", date); err != nil {
				return fmt.Errorf("%w: %q", ErrInvalidDate, date)
			}
		}
	}
	return nil
}

func payloadString(payload map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := payload[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
