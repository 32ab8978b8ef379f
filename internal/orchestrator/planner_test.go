package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/copilot/internal/models"
)

func TestBuildPlanQueryIntent(t *testing.T) {
	p := NewPlanner()
	intent := &models.Intent{
		ID:        "i1",
		Type:      models.IntentQuery,
		Domain:    "customers",
		Operation: "search",
		Entities: []models.Entity{
			{Type: "customer", Value: "John Smith", Confidence: 0.8},
		},
	}

	plan := p.BuildPlan(intent)
	require.Len(t, plan.Phases, 1)

	phase := plan.Phases[0]
	assert.True(t, phase.Parallel)
	assert.Empty(t, phase.DependsOn)

	// primary domain first, then entity-related domains, deduplicated
	var domains []string
	for _, q := range phase.Queries {
		domains = append(domains, q.Domain)
	}
	assert.Equal(t, []string{"customers", "tickets"}, domains)
	assert.Equal(t, models.QueryPrimary, phase.Queries[0].Priority)
	assert.Equal(t, models.QuerySupporting, phase.Queries[1].Priority)
	assert.Equal(t, "John Smith", phase.Queries[0].Parameters["customer"])
}

func TestBuildPlanDeduplicatesDomains(t *testing.T) {
	p := NewPlanner()
	intent := &models.Intent{
		ID:        "i2",
		Type:      models.IntentQuery,
		Domain:    "dispatch",
		Operation: "search",
		Entities: []models.Entity{
			{Type: "work_order", Value: "WO-1001"}, // dispatch, schedule
			{Type: "technician", Value: "T-07"},    // dispatch, schedule again
		},
	}
	plan := p.BuildPlan(intent)
	require.Len(t, plan.Phases, 1)

	var domains []string
	for _, q := range plan.Phases[0].Queries {
		domains = append(domains, q.Domain)
	}
	assert.Equal(t, []string{"dispatch", "schedule"}, domains)
}

func TestBuildPlanActionCreateAddsGatheringPhase(t *testing.T) {
	p := NewPlanner()
	intent := &models.Intent{
		ID:        "i3",
		Type:      models.IntentAction,
		Domain:    "tickets",
		Operation: "create",
		Entities: []models.Entity{
			{Type: "customer", Value: "John Smith"},
		},
	}

	plan := p.BuildPlan(intent)
	require.Len(t, plan.Phases, 2)

	gathering, execution := plan.Phases[0], plan.Phases[1]
	assert.Equal(t, "data gathering", gathering.Name)
	assert.False(t, gathering.Parallel)
	require.NotEmpty(t, gathering.Queries)
	// gathering consults the related domains, not the action's own
	for _, q := range gathering.Queries {
		assert.NotEqual(t, "tickets", q.Domain)
		assert.Equal(t, "search", q.Operation)
	}

	assert.Equal(t, []string{gathering.ID}, execution.DependsOn)
	require.Len(t, execution.Queries, 1)
	assert.Equal(t, "tickets", execution.Queries[0].Domain)
	assert.Equal(t, "create", execution.Queries[0].Operation)
	assert.Equal(t, models.QueryPrimary, execution.Queries[0].Priority)
}

func TestBuildPlanActionWithoutCreateSkipsGathering(t *testing.T) {
	p := NewPlanner()
	intent := &models.Intent{
		ID:        "i4",
		Type:      models.IntentAction,
		Domain:    "dispatch",
		Operation: "assign",
	}
	plan := p.BuildPlan(intent)
	require.Len(t, plan.Phases, 1)
	assert.Equal(t, "action execution", plan.Phases[0].Name)
	assert.Empty(t, plan.Phases[0].DependsOn)
}

func TestBuildPlanNoDomainFallsBackToSearch(t *testing.T) {
	p := NewPlanner()
	intent := &models.Intent{ID: "i5", Type: models.IntentQuery, Operation: "search"}
	plan := p.BuildPlan(intent)
	require.Len(t, plan.Phases, 1)
	require.Len(t, plan.Phases[0].Queries, 1)
	assert.Equal(t, "search", plan.Phases[0].Queries[0].Domain)
}
