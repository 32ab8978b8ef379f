package orchestrator

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldline/copilot/internal/models"
	"github.com/fieldline/copilot/internal/nlp"
)

// Planner turns an Intent into an ordered ExecutionPlan. Plans are
// built fresh per query and discarded after execution.
type Planner struct{}

func NewPlanner() *Planner { return &Planner{} }

// BuildPlan constructs the phase list for an intent.
//
// Query intents get a single parallel phase with one domain query per
// required domain. Action intents get a single execution phase,
// preceded by a sequential data-gathering phase when the operation
// creates new records, since creation usually needs current state from
// the related domains first.
func (p *Planner) BuildPlan(intent *models.Intent) *models.ExecutionPlan {
	plan := &models.ExecutionPlan{
		ID:       uuid.NewString(),
		IntentID: intent.ID,
	}

	switch intent.Type {
	case models.IntentAction:
		plan.Phases = p.actionPhases(intent)
	default:
		plan.Phases = []models.Phase{{
			ID:       "phase-retrieval",
			Name:     "parallel data retrieval",
			Parallel: true,
			Queries:  p.domainQueries(intent),
		}}
	}

	plan.EstimatedDuration = estimateDuration(plan.Phases)
	return plan
}

func (p *Planner) actionPhases(intent *models.Intent) []models.Phase {
	var phases []models.Phase
	var dependsOn []string

	if strings.Contains(intent.Operation, "create") {
		gathering := models.Phase{
			ID:       "phase-gathering",
			Name:     "data gathering",
			Parallel: false,
		}
		for _, domain := range supportingDomains(intent) {
			gathering.Queries = append(gathering.Queries, models.DomainQuery{
				ID:         uuid.NewString(),
				Domain:     domain,
				Operation:  "search",
				Parameters: queryParameters(intent),
				Priority:   models.QuerySupporting,
			})
		}
		if len(gathering.Queries) > 0 {
			phases = append(phases, gathering)
			dependsOn = []string{gathering.ID}
		}
	}

	phases = append(phases, models.Phase{
		ID:        "phase-execution",
		Name:      "action execution",
		Parallel:  false,
		DependsOn: dependsOn,
		Queries: []models.DomainQuery{{
			ID:         uuid.NewString(),
			Domain:     intent.Domain,
			Operation:  intent.Operation,
			Parameters: queryParameters(intent),
			Priority:   models.QueryPrimary,
		}},
	})
	return phases
}

// domainQueries builds one query per required domain: the intent's
// primary domain first, then every domain related to an extracted
// entity type, deduplicated in order of first appearance.
func (p *Planner) domainQueries(intent *models.Intent) []models.DomainQuery {
	params := queryParameters(intent)
	var queries []models.DomainQuery
	for i, domain := range requiredDomains(intent) {
		priority := models.QuerySupporting
		if i == 0 {
			priority = models.QueryPrimary
		}
		queries = append(queries, models.DomainQuery{
			ID:         uuid.NewString(),
			Domain:     domain,
			Operation:  intent.Operation,
			Parameters: params,
			Priority:   priority,
		})
	}
	return queries
}

func requiredDomains(intent *models.Intent) []string {
	seen := make(map[string]bool)
	var domains []string
	add := func(d string) {
		if d != "" && !seen[d] {
			seen[d] = true
			domains = append(domains, d)
		}
	}
	add(intent.Domain)
	for _, e := range intent.Entities {
		for _, d := range nlp.RelatedDomains(e.Type) {
			add(d)
		}
	}
	if len(domains) == 0 {
		add("search")
	}
	return domains
}

// supportingDomains is requiredDomains without the action's own domain.
func supportingDomains(intent *models.Intent) []string {
	var out []string
	for _, d := range requiredDomains(intent) {
		if d != intent.Domain {
			out = append(out, d)
		}
	}
	return out
}

// queryParameters flattens intent parameters and extracted entities
// into one parameter map. Entity values win over same-named parameters
// because they carry extraction confidence.
func queryParameters(intent *models.Intent) map[string]interface{} {
	params := make(map[string]interface{}, len(intent.Parameters)+len(intent.Entities))
	for k, v := range intent.Parameters {
		params[k] = v
	}
	for _, e := range intent.Entities {
		params[e.Type] = e.Value
	}
	return params
}

// perQueryEstimate is a rough per-call budget used only for the plan's
// advertised estimate; execution imposes no deadline of its own.
const perQueryEstimate = 500 * time.Millisecond

func estimateDuration(phases []models.Phase) (total time.Duration) {
	for _, ph := range phases {
		if ph.Parallel {
			total += perQueryEstimate
		} else {
			total += perQueryEstimate * time.Duration(len(ph.Queries))
		}
	}
	return total
}
