package models

import (
	"time"
)

// IntentType classifies what the user is trying to do.
type IntentType string

const (
	IntentQuery        IntentType = "query"
	IntentAction       IntentType = "action"
	IntentNavigation   IntentType = "navigation"
	IntentConversation IntentType = "conversation"
	IntentHelp         IntentType = "help"
)

// Priority indicates how urgent an intent is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Entity is a value extracted from the natural-language query.
type Entity struct {
	Type       string                 `json:"type"`
	Value      string                 `json:"value"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Intent is the structured interpretation of one user utterance.
// It is created once by the query processor and never mutated after
// context enrichment.
type Intent struct {
	ID           string                 `json:"id"`
	Type         IntentType             `json:"type"`
	Domain       string                 `json:"domain,omitempty"`
	Operation    string                 `json:"operation"`
	Entities     []Entity               `json:"entities"`
	Parameters   map[string]interface{} `json:"parameters"`
	Confidence   float64                `json:"confidence"`
	RequiresAuth bool                   `json:"requires_auth"`
	Priority     Priority               `json:"priority"`
}

// EntityRef is a lightweight reference to a domain entity.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// UserContext describes the operator on whose behalf a request runs.
type UserContext struct {
	ID          string                 `json:"id"`
	Role        string                 `json:"role"`
	Permissions []string               `json:"permissions"`
	Preferences map[string]interface{} `json:"preferences,omitempty"`
}

// AppContext captures where the operator currently is in the CRM.
type AppContext struct {
	CurrentPage    string      `json:"current_page"`
	CurrentEntity  *EntityRef  `json:"current_entity,omitempty"`
	RecentActivity []string    `json:"recent_activity,omitempty"`
	NavHistory     []string    `json:"nav_history,omitempty"`
	Viewport       string      `json:"viewport,omitempty"`
}

// SessionContext carries conversational state for the session.
type SessionContext struct {
	SessionID       string                   `json:"session_id"`
	History         []ConversationMessage    `json:"history,omitempty"`
	ActiveIntents   []Intent                 `json:"active_intents,omitempty"`
	PendingActions  []Action                 `json:"pending_actions,omitempty"`
	ExecutedActions []string                 `json:"executed_actions,omitempty"`
}

// ConversationMessage is one turn in the operator conversation.
type ConversationMessage struct {
	ID        string                 `json:"id"`
	Role      string                 `json:"role"` // "user", "assistant"
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Context is the immutable-per-request snapshot consumed by every
// pipeline stage. Built by the context manager and cached keyed by
// (user, session) for a short TTL.
type Context struct {
	User    UserContext            `json:"user"`
	App     AppContext             `json:"app"`
	Domain  map[string][]EntityRef `json:"domain,omitempty"`
	Session SessionContext         `json:"session"`
	BuiltAt time.Time              `json:"built_at"`
}

// QueryPriority distinguishes the primary domain query from supporting ones.
type QueryPriority string

const (
	QueryPrimary    QueryPriority = "primary"
	QuerySupporting QueryPriority = "supporting"
)

// DomainQuery is one unit of work addressed to a single adapter.
type DomainQuery struct {
	ID         string                 `json:"id"`
	Domain     string                 `json:"domain"`
	Operation  string                 `json:"operation"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Priority   QueryPriority          `json:"priority"`
}

// Phase groups domain queries that run together. Queries in a parallel
// phase are dispatched concurrently; DependsOn names phase ids that must
// complete first and must appear earlier in the plan.
type Phase struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Queries   []DomainQuery `json:"queries"`
	Parallel  bool          `json:"parallel"`
	DependsOn []string      `json:"depends_on,omitempty"`
}

// ExecutionPlan is built fresh per query and discarded after execution.
type ExecutionPlan struct {
	ID                string        `json:"id"`
	IntentID          string        `json:"intent_id"`
	Phases            []Phase       `json:"phases"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// ResultMetadata describes how a result payload was produced.
type ResultMetadata struct {
	Source       string    `json:"source"`
	DemoData     bool      `json:"demo_data"`
	ContextUsed  []string  `json:"context_used,omitempty"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// ResultPayload is the domain payload plus supporting material.
type ResultPayload struct {
	Primary    interface{}    `json:"primary"`
	Supporting []interface{}  `json:"supporting,omitempty"`
	Metadata   ResultMetadata `json:"metadata"`
}

// SuggestedAction is a follow-up side effect an adapter proposes.
type SuggestedAction struct {
	Type        string  `json:"type"`
	Domain      string  `json:"domain"`
	Operation   string  `json:"operation"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// ProcessingStats records how an adapter call or query was served.
type ProcessingStats struct {
	Duration     time.Duration `json:"duration"`
	CacheHit     bool          `json:"cache_hit"`
	DataSources  []string      `json:"data_sources,omitempty"`
}

// UnifiedResult is the canonical envelope one adapter call returns.
type UnifiedResult struct {
	Domain           string            `json:"domain"`
	Operation        string            `json:"operation"`
	Result           ResultPayload     `json:"result"`
	Confidence       float64           `json:"confidence"`
	Completeness     float64           `json:"completeness"`
	Freshness        float64           `json:"freshness"`
	Insights         []string          `json:"insights,omitempty"`
	SuggestedActions []SuggestedAction `json:"suggested_actions,omitempty"`
	FollowUps        []string          `json:"follow_ups,omitempty"`
	Stats            ProcessingStats   `json:"stats"`
	Errors           []string          `json:"errors,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
	Limitations      []string          `json:"limitations,omitempty"`
}

// UnifiedResponse is the final user-facing aggregate.
type UnifiedResponse struct {
	ID              string        `json:"id"`
	QueryID         string        `json:"query_id"`
	ConversationID  string        `json:"conversation_id,omitempty"`
	IntentType      IntentType    `json:"intent_type,omitempty"`
	UnifiedResult
	Domains         []string      `json:"domains"`
	TotalDuration   time.Duration `json:"total_duration"`
	Timestamp       time.Time     `json:"timestamp"`
	ErrorCode       string        `json:"error_code,omitempty"`
	Recoverable     bool          `json:"recoverable,omitempty"`
}

// StreamChunk is one element of a streamed response sequence.
type StreamChunk struct {
	Type       string           `json:"type"` // "processing", "intent", "phase", "final", "error"
	IntentType IntentType       `json:"intent_type,omitempty"`
	PhaseID    string           `json:"phase_id,omitempty"`
	Results    []UnifiedResult  `json:"results,omitempty"`
	Response   *UnifiedResponse `json:"response,omitempty"`
	Confidence float64          `json:"confidence"`
	Error      string           `json:"error,omitempty"`
	ErrorCode  string           `json:"error_code,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ActionType enumerates supported side-effecting operations.
type ActionType string

const (
	ActionCreate   ActionType = "create"
	ActionUpdate   ActionType = "update"
	ActionDelete   ActionType = "delete"
	ActionSchedule ActionType = "schedule"
	ActionAssign   ActionType = "assign"
	ActionNotify   ActionType = "notify"
	ActionOptimize ActionType = "optimize"
)

// ActionStatus tracks an action through its lifecycle.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionValidated  ActionStatus = "validated"
	ActionExecuting  ActionStatus = "executing"
	ActionSucceeded  ActionStatus = "succeeded"
	ActionFailed     ActionStatus = "failed"
	ActionRolledBack ActionStatus = "rolled_back"
)

// ActionRequirement is a precondition declared on an action.
type ActionRequirement struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Satisfied   bool   `json:"satisfied"`
}

// Action is a proposed side-effecting operation against one domain.
type Action struct {
	ID              string                 `json:"id"`
	Type            ActionType             `json:"type"`
	Domain          string                 `json:"domain"`
	Operation       string                 `json:"operation"`
	Payload         map[string]interface{} `json:"payload"`
	Requirements    []ActionRequirement    `json:"requirements,omitempty"`
	Status          ActionStatus           `json:"status"`
	Confidence      float64                `json:"confidence"`
	EstimatedImpact string                 `json:"estimated_impact,omitempty"`
}

// ActionResult reports the outcome of executing (or rolling back) an action.
type ActionResult struct {
	ActionID          string        `json:"action_id"`
	Success           bool          `json:"success"`
	Result            interface{}   `json:"result,omitempty"`
	Error             string        `json:"error,omitempty"`
	Duration          time.Duration `json:"duration"`
	AffectedEntities  []EntityRef   `json:"affected_entities,omitempty"`
	RollbackAvailable bool          `json:"rollback_available"`
	Timestamp         time.Time     `json:"timestamp"`
}

// HealthStatus is the per-adapter health probe outcome.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Status    string        `json:"status"` // "healthy", "degraded", "unhealthy"
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
}
