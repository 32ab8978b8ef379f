package nlp

import (
	"github.com/fieldline/copilot/internal/models"
)

// Intent-type rules, tested in order; the first hit wins and the
// default is a query.
var intentRules = []struct {
	intentType models.IntentType
	keywords   []string
}{
	{models.IntentQuery, []string{
		"show", "find", "search", "get", "list", "display", "lookup",
		"what", "who", "when", "where", "how many", "tell me",
	}},
	{models.IntentAction, []string{
		"create", "add", "new", "schedule", "assign", "dispatch",
		"update", "change", "cancel", "delete", "remove", "reschedule",
		"book", "send", "notify", "close", "reopen", "escalate",
	}},
	{models.IntentNavigation, []string{
		"go to", "open", "navigate", "take me", "switch to", "back to",
	}},
	{models.IntentHelp, []string{
		"help", "how do i", "how to", "what can you",
	}},
}

// Explicit domain keywords, consulted before entity-based inference.
var domainKeywords = map[string][]string{
	"dispatch":  {"dispatch", "work order", "work orders", "job", "jobs", "assignment", "technician", "technicians", "route"},
	"tickets":   {"ticket", "tickets", "issue", "issues", "complaint", "support"},
	"customers": {"customer", "customers", "client", "clients", "account", "activity"},
	"schedule":  {"schedule", "calendar", "appointment", "appointments", "availability", "slot"},
	"billing":   {"invoice", "invoices", "payment", "payments", "billing", "refund"},
	"search":    {"search", "everything", "across"},
}

// domainOrder fixes iteration order over domainKeywords for determinism.
var domainOrder = []string{"dispatch", "tickets", "customers", "schedule", "billing", "search"}

// entityDomains maps an extracted entity type to the domains whose data
// supports answering about it. The first listed domain also serves as
// the inferred primary domain when the text names none.
var entityDomains = map[string][]string{
	"customer":     {"customers", "tickets"},
	"work_order":   {"dispatch", "schedule"},
	"technician":   {"dispatch", "schedule"},
	"date":         {"schedule"},
	"location":     {"dispatch"},
	"service_type": {"dispatch", "tickets"},
}

// Operation keywords, consulted in order; specific operations come
// before the catch-all search synonyms.
var operationRules = []struct {
	operation string
	keywords  []string
}{
	{"reschedule", []string{"reschedule", "move the appointment"}},
	{"schedule", []string{"schedule", "book", "appointment for"}},
	{"assign", []string{"assign", "dispatch"}},
	{"create", []string{"create", "add", "new", "open a"}},
	{"update", []string{"update", "change", "edit", "modify"}},
	{"delete", []string{"delete", "remove", "cancel"}},
	{"analyze", []string{"analyze", "analysis", "trends", "breakdown"}},
	{"compare", []string{"compare", "versus", "vs"}},
	{"notify", []string{"notify", "send", "alert"}},
	{"search", []string{"show", "find", "search", "get", "list", "display", "lookup"}},
}

// defaultOperations supplies the operation when no keyword matches.
var defaultOperations = map[models.IntentType]string{
	models.IntentQuery:        "search",
	models.IntentAction:       "create",
	models.IntentNavigation:   "navigate",
	models.IntentConversation: "chat",
	models.IntentHelp:         "help",
}

// strongIndicators boost overall intent confidence when present.
var strongIndicators = []string{
	"show", "find", "search", "create", "schedule", "assign", "update",
	"delete", "cancel", "help", "go to", "list",
}

var urgentKeywords = []string{"urgent", "emergency", "asap", "immediately", "critical"}
var highPriorityKeywords = []string{"now", "today", "right away"}

func classifyIntentType(normalized string) models.IntentType {
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if containsWord(normalized, kw) {
				return rule.intentType
			}
		}
	}
	return models.IntentQuery
}

func classifyDomain(normalized string, entities []models.Entity, appCtx *models.AppContext) string {
	for _, domain := range domainOrder {
		for _, kw := range domainKeywords[domain] {
			if containsWord(normalized, kw) {
				return domain
			}
		}
	}
	for _, e := range entities {
		if domains, ok := entityDomains[e.Type]; ok && len(domains) > 0 {
			return domains[0]
		}
	}
	if appCtx != nil && appCtx.CurrentEntity != nil {
		if domains, ok := entityDomains[appCtx.CurrentEntity.Type]; ok && len(domains) > 0 {
			return domains[0]
		}
	}
	return ""
}

func classifyOperation(normalized string, intentType models.IntentType) string {
	for _, rule := range operationRules {
		for _, kw := range rule.keywords {
			if containsWord(normalized, kw) {
				return rule.operation
			}
		}
	}
	return defaultOperations[intentType]
}

func classifyPriority(normalized string) models.Priority {
	for _, kw := range urgentKeywords {
		if containsWord(normalized, kw) {
			return models.PriorityUrgent
		}
	}
	for _, kw := range highPriorityKeywords {
		if containsWord(normalized, kw) {
			return models.PriorityHigh
		}
	}
	return models.PriorityMedium
}

func hasStrongIndicator(normalized string) bool {
	for _, kw := range strongIndicators {
		if containsWord(normalized, kw) {
			return true
		}
	}
	return false
}

// RelatedDomains returns the supporting domains for an entity type, for
// the planner's required-domain resolution.
func RelatedDomains(entityType string) []string {
	domains, ok := entityDomains[entityType]
	if !ok {
		return nil
	}
	out := make([]string, len(domains))
	copy(out, domains)
	return out
}
