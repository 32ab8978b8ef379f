package orchestrator

import (
	"strings"

	"github.com/fieldline/copilot/internal/models"
)

// Strategy names how multiple domain results are combined.
type Strategy string

const (
	StrategyMerge      Strategy = "merge"
	StrategyPrioritize Strategy = "prioritize"
	StrategySynthesize Strategy = "synthesize"
	StrategyCompare    Strategy = "compare"
)

// selectStrategy picks an aggregation strategy from the intent's
// operation name.
func selectStrategy(intent *models.Intent) Strategy {
	switch {
	case strings.Contains(intent.Operation, "analyze"):
		return StrategySynthesize
	case strings.Contains(intent.Operation, "compare"):
		return StrategyCompare
	default:
		return StrategyMerge
	}
}

// aggregate combines the per-domain results into one. A single result
// is returned unchanged. Synthesize and compare currently alias merge:
// no true cross-domain synthesis is implemented, the strategy split
// exists so callers see which combination was intended.
func aggregate(intent *models.Intent, results []models.UnifiedResult) models.UnifiedResult {
	if len(results) == 1 {
		return results[0]
	}

	switch selectStrategy(intent) {
	case StrategySynthesize, StrategyCompare, StrategyMerge:
		return merge(results)
	default:
		return merge(results)
	}
}

// merge keeps the first result's envelope, appends every other
// result's primary payload as supporting material, and averages
// confidence across all results.
func merge(results []models.UnifiedResult) models.UnifiedResult {
	base := results[0]
	sum := base.Confidence
	for _, r := range results[1:] {
		sum += r.Confidence
		if r.Result.Primary != nil {
			base.Result.Supporting = append(base.Result.Supporting, r.Result.Primary)
		}
		base.Insights = append(base.Insights, r.Insights...)
		base.SuggestedActions = append(base.SuggestedActions, r.SuggestedActions...)
		base.Warnings = append(base.Warnings, r.Warnings...)
		base.Errors = append(base.Errors, r.Errors...)
		if r.Result.Metadata.DemoData {
			base.Result.Metadata.DemoData = true
		}
	}
	base.Confidence = sum / float64(len(results))
	return base
}

// prioritize picks the single best result by confidence, scaled by the
// caller's per-domain weights when given. Unweighted domains default to
// weight 1.
func prioritize(results []models.UnifiedResult, weights map[string]float64) models.UnifiedResult {
	best := results[0]
	bestScore := score(best, weights)
	for _, r := range results[1:] {
		if s := score(r, weights); s > bestScore {
			best, bestScore = r, s
		}
	}
	return best
}

func score(r models.UnifiedResult, weights map[string]float64) float64 {
	w := 1.0
	if weights != nil {
		if got, ok := weights[r.Domain]; ok {
			w = got
		}
	}
	return r.Confidence * w
}
