package customers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/models"
)

func TestGetRequiresCustomerID(t *testing.T) {
	a := New(nil, zap.NewNop())
	_, err := a.Query(context.Background(), models.DomainQuery{Domain: "customers", Operation: "get"}, nil)
	require.ErrorIs(t, err, ErrCustomerIDRequired)
	assert.Contains(t, err.Error(), "Customer ID required")
}

func TestGetUsesGradeConfidence(t *testing.T) {
	a := New(nil, zap.NewNop())
	res, err := a.Query(context.Background(), models.DomainQuery{
		Domain: "customers", Operation: "get",
		Parameters: map[string]interface{}{"customer_id": "C-1001"},
	}, nil)
	require.NoError(t, err)

	// C-1001 is graded A in the demo set
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	assert.True(t, res.Result.Metadata.DemoData)

	c, ok := res.Result.Primary.(customer)
	require.True(t, ok)
	assert.Equal(t, "John Smith", c.Name)
	assert.NotEmpty(t, res.Insights)
	require.NotEmpty(t, res.SuggestedActions)
	assert.Equal(t, "tickets", res.SuggestedActions[0].Domain)
}

func TestGetFromCurrentEntity(t *testing.T) {
	a := New(nil, zap.NewNop())
	reqCtx := &models.Context{
		App: models.AppContext{CurrentEntity: &models.EntityRef{Type: "customer", ID: "C-1002"}},
	}
	res, err := a.Query(context.Background(), models.DomainQuery{Domain: "customers", Operation: "summary"}, reqCtx)
	require.NoError(t, err)
	c := res.Result.Primary.(customer)
	assert.Equal(t, "Maria Lopez", c.Name)
	assert.Contains(t, res.Result.Metadata.ContextUsed, "current_entity")
}

func TestSearchSingleMatchReturnsSummary(t *testing.T) {
	a := New(nil, zap.NewNop())
	res, err := a.Query(context.Background(), models.DomainQuery{
		Domain: "customers", Operation: "search",
		Parameters: map[string]interface{}{"customer": "John Smith"},
	}, nil)
	require.NoError(t, err)

	c, ok := res.Result.Primary.(customer)
	require.True(t, ok)
	assert.Equal(t, "C-1001", c.ID)
}

func TestSearchNoMatchWarns(t *testing.T) {
	a := New(nil, zap.NewNop())
	res, err := a.Query(context.Background(), models.DomainQuery{
		Domain: "customers", Operation: "search",
		Parameters: map[string]interface{}{"customer": "Nobody Here"},
	}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warnings)
	assert.NotEmpty(t, res.FollowUps)
}

func TestCompletenessReflectsSparseRecord(t *testing.T) {
	a := New(nil, zap.NewNop())
	// C-1003 has no phone, no address, no last service
	res, err := a.Query(context.Background(), models.DomainQuery{
		Domain: "customers", Operation: "get",
		Parameters: map[string]interface{}{"customer_id": "C-1003"},
	}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, res.Completeness, 1e-9)
}
