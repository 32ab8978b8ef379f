package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/models"
)

func TestSearchRanksByRelevance(t *testing.T) {
	a := New(nil, zap.NewNop())
	res, err := a.Query(context.Background(), models.DomainQuery{
		Domain: "search", Operation: "search",
		Parameters: map[string]interface{}{"customer": "John Smith"},
	}, nil)
	require.NoError(t, err)

	hits, ok := res.Result.Primary.([]hit)
	require.True(t, ok)
	require.NotEmpty(t, hits)
	// full-term match scores 100%, which normalizes to confidence 1.0
	assert.Equal(t, "C-1001", hits[0].ID)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Relevance, hits[i-1].Relevance)
	}
}

func TestSearchCombinesAllStringParams(t *testing.T) {
	terms := searchTerms(map[string]interface{}{
		"customer":   "John Smith",
		"work_order": "WO-1001",
		"count":      3,
	})
	assert.Equal(t, []string{"John Smith", "WO-1001"}, terms)
}

func TestSearchNoMatches(t *testing.T) {
	a := New(nil, zap.NewNop())
	res, err := a.Query(context.Background(), models.DomainQuery{
		Domain: "search", Operation: "search",
		Parameters: map[string]interface{}{"query": "zzzz-nothing"},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Result.Primary)
	assert.NotEmpty(t, res.Warnings)
	// zero top relevance normalizes to zero confidence
	assert.InDelta(t, 0.0, res.Confidence, 1e-9)
}

func TestSearchEmptyQueryServesDemoDataFlag(t *testing.T) {
	a := New(nil, zap.NewNop())
	res, err := a.Query(context.Background(), models.DomainQuery{Domain: "search", Operation: "search"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Result.Metadata.DemoData)
}
