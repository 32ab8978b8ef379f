package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/models"
)

func newProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor(zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestCreateTicketIsActionCreate(t *testing.T) {
	p := newProcessor(t)

	intent, err := p.Process("Create a ticket for heating issue", nil)
	require.NoError(t, err)

	assert.Equal(t, models.IntentAction, intent.Type)
	assert.Equal(t, "create", intent.Operation)
	assert.Equal(t, "tickets", intent.Domain)
	assert.True(t, intent.RequiresAuth)
}

func TestActivitySummaryIsQuerySearchWithCustomer(t *testing.T) {
	p := newProcessor(t)

	intent, err := p.Process("Show me John Smith's activity summary", nil)
	require.NoError(t, err)

	assert.Equal(t, models.IntentQuery, intent.Type)
	assert.Equal(t, "search", intent.Operation)

	var customer *models.Entity
	for i := range intent.Entities {
		if intent.Entities[i].Type == "customer" {
			customer = &intent.Entities[i]
		}
	}
	require.NotNil(t, customer, "expected a customer entity")
	assert.Equal(t, "John Smith", customer.Value)
}

func TestClassification(t *testing.T) {
	p := newProcessor(t)

	tests := []struct {
		query     string
		intent    models.IntentType
		operation string
		domain    string
	}{
		{"Show open work orders", models.IntentQuery, "search", "dispatch"},
		{"Assign a technician to WO-123", models.IntentAction, "assign", "dispatch"},
		{"Schedule maintenance for tomorrow", models.IntentAction, "schedule", "schedule"},
		{"Go to the tickets page", models.IntentNavigation, "navigate", "tickets"},
		{"help", models.IntentHelp, "help", ""},
		{"Compare this month's invoices", models.IntentQuery, "compare", "billing"},
		{"weather", models.IntentQuery, "search", ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			intent, err := p.Process(tt.query, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.intent, intent.Type)
			assert.Equal(t, tt.operation, intent.Operation)
			assert.Equal(t, tt.domain, intent.Domain)
		})
	}
}

func TestConfidenceBounds(t *testing.T) {
	p := newProcessor(t)

	queries := []string{
		"Create a ticket for heating issue",
		"Show me John Smith's activity summary",
		"weather",
		"Assign TECH-42 to the urgent plumbing job at 12 Oak Street tomorrow",
	}
	for _, q := range queries {
		intent, err := p.Process(q, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, intent.Confidence, 0.0, q)
		assert.LessOrEqual(t, intent.Confidence, 1.0, q)
	}
}

func TestExtractionIsDeterministic(t *testing.T) {
	p := newProcessor(t)
	const query = "Reschedule WO-77 for John Smith to next monday at zone B4"

	first, err := p.Process(query, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := p.Process(query, nil)
		require.NoError(t, err)
		require.Equal(t, len(first.Entities), len(again.Entities))
		for j := range first.Entities {
			assert.Equal(t, first.Entities[j].Type, again.Entities[j].Type)
			assert.Equal(t, first.Entities[j].Value, again.Entities[j].Value)
			assert.Equal(t, first.Entities[j].Confidence, again.Entities[j].Confidence)
		}
		assert.Equal(t, first.Type, again.Type)
		assert.Equal(t, first.Operation, again.Operation)
		assert.Equal(t, first.Confidence, again.Confidence)
	}
}

func TestOneEntityPerTypeNoContainment(t *testing.T) {
	p := newProcessor(t)

	intent, err := p.Process("Schedule work order 123 and work order 4567 for tomorrow", nil)
	require.NoError(t, err)

	seen := map[string]string{}
	for _, e := range intent.Entities {
		prev, dup := seen[e.Type]
		assert.False(t, dup, "duplicate entity type %s (%q vs %q)", e.Type, prev, e.Value)
		seen[e.Type] = e.Value
	}
}

func TestUrgentPriority(t *testing.T) {
	p := newProcessor(t)

	intent, err := p.Process("Create an emergency ticket for the heating failure", nil)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityUrgent, intent.Priority)

	intent, err = p.Process("Show tickets for today", nil)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, intent.Priority)
}

func TestContextEnrichmentAddsCurrentEntity(t *testing.T) {
	p := newProcessor(t)

	reqCtx := &models.Context{
		App: models.AppContext{
			CurrentPage:   "/customers/c-19",
			CurrentEntity: &models.EntityRef{Type: "customer", ID: "c-19", Name: "Acme Heating"},
		},
	}

	intent, err := p.Process("show recent tickets", reqCtx)
	require.NoError(t, err)

	var customer *models.Entity
	for i := range intent.Entities {
		if intent.Entities[i].Type == "customer" {
			customer = &intent.Entities[i]
		}
	}
	require.NotNil(t, customer)
	assert.Equal(t, "c-19", customer.Value)
	assert.Equal(t, 0.9, customer.Confidence)
	assert.Equal(t, "current_page_context", customer.Metadata["provenance"])
	assert.Equal(t, "/customers/c-19", intent.Parameters["current_page"])
}

func TestContextEnrichmentDoesNotOverrideExtracted(t *testing.T) {
	p := newProcessor(t)

	reqCtx := &models.Context{
		App: models.AppContext{
			CurrentEntity: &models.EntityRef{Type: "customer", ID: "c-19"},
		},
	}

	intent, err := p.Process("Show me John Smith's activity", reqCtx)
	require.NoError(t, err)

	var values []string
	for _, e := range intent.Entities {
		if e.Type == "customer" {
			values = append(values, e.Value)
		}
	}
	require.Len(t, values, 1)
	assert.Equal(t, "John Smith", values[0])
}

func TestRecentConversationParameters(t *testing.T) {
	p := newProcessor(t)

	reqCtx := &models.Context{
		Session: models.SessionContext{
			History: []models.ConversationMessage{
				{Role: "user", Content: "show open tickets"},
				{Role: "assistant", Content: "here are the open tickets"},
				{Role: "user", Content: "which are urgent"},
			},
		},
	}

	intent, err := p.Process("assign the first one", reqCtx)
	require.NoError(t, err)

	recent, ok := intent.Parameters["recent_queries"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"which are urgent", "show open tickets"}, recent)
}

func TestEmptyQueryRejected(t *testing.T) {
	p := newProcessor(t)

	_, err := p.Process("   ", nil)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "what's wo-12 at #5", normalize(collapseWhitespace("What's  WO-12, at #5?!")))
}
