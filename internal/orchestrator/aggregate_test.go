package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/copilot/internal/models"
)

func result(domain string, confidence float64, primary interface{}) models.UnifiedResult {
	return models.UnifiedResult{
		Domain:     domain,
		Operation:  "search",
		Confidence: confidence,
		Result:     models.ResultPayload{Primary: primary},
	}
}

func TestAggregateSingleResultIsIdentity(t *testing.T) {
	intent := &models.Intent{Operation: "search"}
	in := result("customers", 0.9, "payload")
	in.Insights = []string{"one insight"}

	out := aggregate(intent, []models.UnifiedResult{in})
	assert.Equal(t, in, out)
}

func TestAggregateMergeAveragesConfidence(t *testing.T) {
	intent := &models.Intent{Operation: "search"}
	results := []models.UnifiedResult{
		result("customers", 0.9, "c"),
		result("tickets", 0.6, "t"),
		result("dispatch", 0.3, "d"),
	}

	out := aggregate(intent, results)
	assert.Equal(t, "customers", out.Domain)
	assert.InDelta(t, 0.6, out.Confidence, 1e-9)
	assert.Equal(t, "c", out.Result.Primary)
	require.Len(t, out.Result.Supporting, 2)
	assert.Equal(t, []interface{}{"t", "d"}, out.Result.Supporting)
}

func TestAggregateConfidenceNeverExceedsMax(t *testing.T) {
	intent := &models.Intent{Operation: "search"}
	results := []models.UnifiedResult{
		result("customers", 0.9, "c"),
		result("tickets", 0.7, "t"),
	}
	out := aggregate(intent, results)
	assert.LessOrEqual(t, out.Confidence, 0.9)
}

func TestAggregateMergePropagatesDemoFlag(t *testing.T) {
	intent := &models.Intent{Operation: "search"}
	demo := result("tickets", 0.6, "t")
	demo.Result.Metadata.DemoData = true

	out := aggregate(intent, []models.UnifiedResult{result("customers", 0.9, "c"), demo})
	assert.True(t, out.Result.Metadata.DemoData)
}

func TestSelectStrategy(t *testing.T) {
	assert.Equal(t, StrategySynthesize, selectStrategy(&models.Intent{Operation: "analyze_activity"}))
	assert.Equal(t, StrategyCompare, selectStrategy(&models.Intent{Operation: "compare_costs"}))
	assert.Equal(t, StrategyMerge, selectStrategy(&models.Intent{Operation: "search"}))
}

func TestSynthesizeAliasesMerge(t *testing.T) {
	results := []models.UnifiedResult{
		result("customers", 0.8, "c"),
		result("billing", 0.4, "b"),
	}
	merged := aggregate(&models.Intent{Operation: "search"}, results)
	synthesized := aggregate(&models.Intent{Operation: "analyze"}, results)
	assert.Equal(t, merged, synthesized)
}

func TestPrioritizeUsesWeights(t *testing.T) {
	results := []models.UnifiedResult{
		result("customers", 0.9, "c"),
		result("tickets", 0.6, "t"),
	}

	assert.Equal(t, "customers", prioritize(results, nil).Domain)

	weighted := prioritize(results, map[string]float64{"customers": 0.5, "tickets": 1.0})
	assert.Equal(t, "tickets", weighted.Domain)
}
