package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Query pipeline metrics
	QueriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_queries_processed_total",
			Help: "Total number of natural-language queries processed",
		},
		[]string{"intent_type", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_query_duration_seconds",
			Help:    "End-to-end query processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"intent_type"},
	)

	IntentConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copilot_intent_confidence",
			Help:    "Confidence of classified intents",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	// Plan execution metrics
	PhasesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_phases_executed_total",
			Help: "Total number of execution plan phases run",
		},
		[]string{"status"},
	)

	PhaseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copilot_phase_duration_seconds",
			Help:    "Execution phase duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Adapter metrics
	AdapterCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_adapter_calls_total",
			Help: "Total number of domain adapter calls",
		},
		[]string{"domain", "operation", "status"},
	)

	AdapterCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_adapter_call_duration_seconds",
			Help:    "Domain adapter call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"domain", "operation"},
	)

	AdapterDemoDataServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_adapter_demo_data_total",
			Help: "Adapter calls that degraded to synthesized demo data",
		},
		[]string{"domain"},
	)

	// Action metrics
	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_actions_executed_total",
			Help: "Total number of actions executed",
		},
		[]string{"domain", "operation", "status"},
	)

	ActionsRolledBack = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_actions_rolled_back_total",
			Help: "Total number of actions rolled back",
		},
		[]string{"domain"},
	)

	ActionValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_action_validation_failures_total",
			Help: "Actions rejected during validation",
		},
		[]string{"domain", "reason"},
	)

	ActionAuthzDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_action_authz_denials_total",
			Help: "Actions denied during authorization",
		},
		[]string{"domain", "reason"},
	)

	// Context cache metrics
	ContextCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_context_cache_hits_total",
			Help: "Context snapshot cache hits",
		},
	)

	ContextCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_context_cache_misses_total",
			Help: "Context snapshot cache misses",
		},
	)

	ContextCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "copilot_context_cache_size",
			Help: "Number of cached context snapshots",
		},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_sessions_created_total",
			Help: "Total number of conversation sessions created",
		},
	)

	SessionCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_session_cache_evictions_total",
			Help: "Sessions evicted from the local cache",
		},
	)

	// Rollback store metrics
	RollbackSnapshotsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_rollback_snapshots_stored_total",
			Help: "Rollback snapshots captured before action execution",
		},
	)

	RollbackSnapshotsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_rollback_snapshots_evicted_total",
			Help: "Rollback snapshots evicted by capacity or TTL",
		},
	)

	// Audit metrics
	AuditRecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_audit_records_written_total",
			Help: "Audit records written by status",
		},
		[]string{"status"},
	)

	AuditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "copilot_audit_queue_depth",
			Help: "Pending records in the async audit write queue",
		},
	)

	// Streaming metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "copilot_stream_subscribers",
			Help: "Currently connected stream subscribers",
		},
	)

	StreamEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_stream_events_published_total",
			Help: "Stream events published by type",
		},
		[]string{"type"},
	)

	// Policy engine metrics
	PolicyEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_policy_evaluations_total",
			Help: "Policy evaluations by decision",
		},
		[]string{"decision", "mode"},
	)

	PolicyCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_policy_cache_hits_total",
			Help: "Policy decision cache hits",
		},
	)
)
