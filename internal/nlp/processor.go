package nlp

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/metrics"
	"github.com/fieldline/copilot/internal/models"
)

const (
	baseConfidence            = 0.6
	strongIndicatorBoost      = 0.25
	domainBoost               = 0.10
	perEntityBoost            = 0.05
	maxEntityBoost            = 0.15
	capitalizationBoost       = 0.10
	markerBoost               = 0.15
	contextEntityConfidence   = 0.9
	recentConversationWindow  = 3
)

// Processor converts a natural-language query plus Context into a
// structured Intent. Given identical inputs it always produces the
// same Intent; there is no hidden randomness besides the generated id.
type Processor struct {
	matchers []entityMatcher
	logger   *zap.Logger
}

// NewProcessor compiles the recognition tables.
func NewProcessor(logger *zap.Logger) (*Processor, error) {
	matchers, err := loadMatchers()
	if err != nil {
		return nil, fmt.Errorf("load entity matchers: %w", err)
	}
	return &Processor{matchers: matchers, logger: logger}, nil
}

// Process parses one user utterance.
func (p *Processor) Process(naturalQuery string, reqCtx *models.Context) (*models.Intent, error) {
	collapsed := collapseWhitespace(naturalQuery)
	if collapsed == "" {
		return nil, fmt.Errorf("empty query")
	}
	normalized := normalize(collapsed)

	entities := p.extractEntities(collapsed, normalized)

	intentType := classifyIntentType(normalized)

	var appCtx *models.AppContext
	if reqCtx != nil {
		appCtx = &reqCtx.App
	}
	domain := classifyDomain(normalized, entities, appCtx)
	operation := classifyOperation(normalized, intentType)

	intent := &models.Intent{
		ID:           uuid.New().String(),
		Type:         intentType,
		Domain:       domain,
		Operation:    operation,
		Entities:     entities,
		Parameters:   make(map[string]interface{}),
		RequiresAuth: intentType == models.IntentAction,
		Priority:     classifyPriority(normalized),
	}

	intent.Confidence = p.scoreConfidence(normalized, intent)
	p.enrich(intent, reqCtx)

	metrics.IntentConfidence.Observe(intent.Confidence)
	p.logger.Debug("Processed query",
		zap.String("intent_id", intent.ID),
		zap.String("type", string(intent.Type)),
		zap.String("domain", intent.Domain),
		zap.String("operation", intent.Operation),
		zap.Int("entities", len(intent.Entities)),
		zap.Float64("confidence", intent.Confidence),
	)
	return intent, nil
}

// extractEntities runs every matcher over the query. The collapsed
// (case-preserved) text feeds the patterns so capitalization can boost
// confidence; marker detection uses the normalized text. One entity per
// type survives: the highest-confidence match, earlier patterns winning
// ties.
func (p *Processor) extractEntities(collapsed, normalized string) []models.Entity {
	var entities []models.Entity
	for i := range p.matchers {
		m := &p.matchers[i]

		var best *models.Entity
		for patternIdx, re := range m.patterns {
			for _, match := range re.FindAllStringSubmatch(collapsed, -1) {
				value := match[0]
				if len(match) > 1 && match[1] != "" {
					value = match[1]
				}

				confidence := m.baseConfidence
				if startsCapitalized(value) {
					confidence += capitalizationBoost
				}
				if m.hasMarker(normalized) {
					confidence += markerBoost
				}
				if confidence > 1.0 {
					confidence = 1.0
				}

				if best == nil || confidence > best.Confidence {
					best = &models.Entity{
						Type:       m.entityType,
						Value:      value,
						Confidence: confidence,
						Metadata: map[string]interface{}{
							"provenance": "pattern_match",
							"pattern":    patternIdx,
						},
					}
				}
			}
		}
		if best != nil {
			entities = append(entities, *best)
		}
	}
	return entities
}

func (p *Processor) scoreConfidence(normalized string, intent *models.Intent) float64 {
	confidence := baseConfidence
	if hasStrongIndicator(normalized) {
		confidence += strongIndicatorBoost
	}
	if intent.Domain != "" {
		confidence += domainBoost
	}
	entityBoost := perEntityBoost * float64(len(intent.Entities))
	if entityBoost > maxEntityBoost {
		entityBoost = maxEntityBoost
	}
	confidence += entityBoost
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// enrich folds Context into the Intent: the page's current entity joins
// the entity list unless that type was already extracted, and recent
// conversation turns become parameters downstream stages can consult.
func (p *Processor) enrich(intent *models.Intent, reqCtx *models.Context) {
	if reqCtx == nil {
		return
	}

	if current := reqCtx.App.CurrentEntity; current != nil {
		present := false
		for _, e := range intent.Entities {
			if e.Type == current.Type {
				present = true
				break
			}
		}
		if !present {
			intent.Entities = append(intent.Entities, models.Entity{
				Type:       current.Type,
				Value:      current.ID,
				Confidence: contextEntityConfidence,
				Metadata: map[string]interface{}{
					"provenance": "current_page_context",
					"name":       current.Name,
				},
			})
		}
	}

	history := reqCtx.Session.History
	var recent []string
	for i := len(history) - 1; i >= 0 && len(recent) < recentConversationWindow; i-- {
		if history[i].Role == "user" {
			recent = append(recent, history[i].Content)
		}
	}
	if len(recent) > 0 {
		intent.Parameters["recent_queries"] = recent
	}
	if reqCtx.App.CurrentPage != "" {
		intent.Parameters["current_page"] = reqCtx.App.CurrentPage
	}
}

// normalize lowercases and strips punctuation outside a small
// allow-list (apostrophes, hyphens, slashes and # survive, since the
// entity patterns use them).
func normalize(collapsed string) string {
	var b strings.Builder
	b.Grow(len(collapsed))
	for _, r := range strings.ToLower(collapsed) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '\'' || r == '-' || r == '/' || r == '#':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func startsCapitalized(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
