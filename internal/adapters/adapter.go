package adapters

import (
	"context"

	"github.com/fieldline/copilot/internal/models"
)

// Capability names one kind of request an adapter can serve.
type Capability string

const (
	CapabilityQuery          Capability = "query"
	CapabilityAction         Capability = "action"
	CapabilityAnalysis       Capability = "analysis"
	CapabilityPrediction     Capability = "prediction"
	CapabilityRecommendation Capability = "recommendation"
	CapabilityClassification Capability = "classification"
	CapabilitySummarization  Capability = "summarization"
	CapabilityOptimization   Capability = "optimization"
)

// Adapter is the contract every business domain implements. Adapters
// are responsible for calling their backing service, degrading to
// synthesized example data when that call fails, and annotating results
// with insights and suggested actions. Only malformed input is an
// error on the query path.
type Adapter interface {
	Domain() string
	Version() string
	Capabilities() []Capability

	// Query serves one domain query against the adapter's backing data.
	Query(ctx context.Context, query models.DomainQuery, reqCtx *models.Context) (*models.UnifiedResult, error)

	// Validate checks a domain query without executing it.
	Validate(query models.DomainQuery) error

	// Schema describes the parameters each operation accepts.
	Schema() map[string]interface{}

	// Examples returns natural-language queries this adapter answers.
	Examples() []string

	// HealthCheck probes the backing service.
	HealthCheck(ctx context.Context) models.HealthStatus
}

// Executor is implemented by adapters that can apply side-effecting
// actions for their domain.
type Executor interface {
	Execute(ctx context.Context, action models.Action, reqCtx *models.Context) (*models.ActionResult, error)
}

// StateReader is implemented by adapters whose actions can be rolled
// back. CurrentState returns the prior-state snapshot captured before
// an action executes; replaying that snapshot undoes the action.
type StateReader interface {
	CurrentState(ctx context.Context, action models.Action) (map[string]interface{}, error)
}

// Rollbacker replays a previously captured snapshot as a corrective
// write, undoing the original action.
type Rollbacker interface {
	Rollback(ctx context.Context, original models.Action, snapshot map[string]interface{}) (*models.ActionResult, error)
}

// HasCapability reports whether the adapter declares c.
func HasCapability(a Adapter, c Capability) bool {
	for _, got := range a.Capabilities() {
		if got == c {
			return true
		}
	}
	return false
}
