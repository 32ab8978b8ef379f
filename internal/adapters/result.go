package adapters

import (
	"time"

	"github.com/fieldline/copilot/internal/models"
)

// ResultBuilder assembles a UnifiedResult incrementally. Adapters use
// it so every result carries the same envelope regardless of domain.
type ResultBuilder struct {
	result  models.UnifiedResult
	started time.Time
}

func NewResult(domain, operation string) *ResultBuilder {
	return &ResultBuilder{
		result: models.UnifiedResult{
			Domain:     domain,
			Operation:  operation,
			Confidence: defaultConfidence,
			Result: models.ResultPayload{
				Metadata: models.ResultMetadata{
					Source:      domain,
					GeneratedAt: time.Now(),
				},
			},
		},
		started: time.Now(),
	}
}

func (b *ResultBuilder) Primary(v interface{}) *ResultBuilder {
	b.result.Result.Primary = v
	return b
}

func (b *ResultBuilder) Supporting(v interface{}) *ResultBuilder {
	b.result.Result.Supporting = append(b.result.Result.Supporting, v)
	return b
}

func (b *ResultBuilder) Confidence(c float64) *ResultBuilder {
	b.result.Confidence = c
	return b
}

// NativeConfidence normalizes a backing-service confidence value.
func (b *ResultBuilder) NativeConfidence(scale ConfidenceScale, raw interface{}) *ResultBuilder {
	b.result.Confidence = NormalizeConfidence(scale, raw)
	return b
}

func (b *ResultBuilder) Completeness(c float64) *ResultBuilder {
	b.result.Completeness = c
	return b
}

func (b *ResultBuilder) Insight(s string) *ResultBuilder {
	b.result.Insights = append(b.result.Insights, s)
	return b
}

func (b *ResultBuilder) SuggestAction(a models.SuggestedAction) *ResultBuilder {
	b.result.SuggestedActions = append(b.result.SuggestedActions, a)
	return b
}

func (b *ResultBuilder) FollowUp(s string) *ResultBuilder {
	b.result.FollowUps = append(b.result.FollowUps, s)
	return b
}

func (b *ResultBuilder) Warning(s string) *ResultBuilder {
	b.result.Warnings = append(b.result.Warnings, s)
	return b
}

func (b *ResultBuilder) Limitation(s string) *ResultBuilder {
	b.result.Limitations = append(b.result.Limitations, s)
	return b
}

func (b *ResultBuilder) ContextUsed(keys ...string) *ResultBuilder {
	b.result.Result.Metadata.ContextUsed = append(b.result.Result.Metadata.ContextUsed, keys...)
	return b
}

// Demo marks the result as synthesized example data served because the
// backing service was unavailable.
func (b *ResultBuilder) Demo() *ResultBuilder {
	b.result.Result.Metadata.DemoData = true
	b.result.Result.Metadata.Source = "demo"
	b.result.Freshness = 0.5
	b.result.Limitations = append(b.result.Limitations, "example data: backing service unavailable")
	return b
}

func (b *ResultBuilder) DataSource(s string) *ResultBuilder {
	b.result.Stats.DataSources = append(b.result.Stats.DataSources, s)
	return b
}

// Build finalizes the result. Freshness defaults to live (1.0) and
// completeness to full unless the adapter set them explicitly.
func (b *ResultBuilder) Build() *models.UnifiedResult {
	b.result.Stats.Duration = time.Since(b.started)
	if b.result.Freshness == 0 {
		b.result.Freshness = 1.0
	}
	if b.result.Completeness == 0 {
		b.result.Completeness = 1.0
	}
	r := b.result
	return &r
}

// MapCompleteness is the fraction of non-empty values in m, used by
// adapters whose payloads are sparse records.
func MapCompleteness(m map[string]interface{}) float64 {
	if len(m) == 0 {
		return 0
	}
	filled := 0
	for _, v := range m {
		switch t := v.(type) {
		case nil:
		case string:
			if t != "" {
				filled++
			}
		default:
			filled++
		}
	}
	return float64(filled) / float64(len(m))
}
