// Package orchestrator runs the query pipeline: intent processing,
// plan construction, phase execution against domain adapters, and
// aggregation into one unified response.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/adapters"
	"github.com/fieldline/copilot/internal/config"
	"github.com/fieldline/copilot/internal/metrics"
	"github.com/fieldline/copilot/internal/models"
	"github.com/fieldline/copilot/internal/nlp"
	"github.com/fieldline/copilot/internal/tracing"
)

// ErrDependenciesNotMet is returned when a phase names a dependency
// that is missing from the plan or has not completed.
var ErrDependenciesNotMet = errors.New("dependencies not met")

const (
	codeInvalidQuery  = "INVALID_QUERY"
	codeOrchestration = "ORCHESTRATION_ERROR"
	codeStream        = "STREAM_ERROR"

	// fixed interim confidences reported while streaming
	intentChunkConfidence = 0.5
	phaseChunkConfidence  = 0.7
)

type Orchestrator struct {
	processor *nlp.Processor
	planner   *Planner
	registry  *adapters.Registry
	policy    config.FailurePolicy
	timeout   time.Duration
	streamBuf int
	logger    *zap.Logger
}

func New(processor *nlp.Processor, registry *adapters.Registry, cfg config.OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := cfg.FailurePolicy
	if policy == "" {
		policy = config.FailFast
	}
	streamBuf := cfg.StreamBuffer
	if streamBuf <= 0 {
		streamBuf = 16
	}
	timeout := cfg.AdapterTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Orchestrator{
		processor: processor,
		planner:   NewPlanner(),
		registry:  registry,
		policy:    policy,
		timeout:   timeout,
		streamBuf: streamBuf,
		logger:    logger,
	}
}

// Registry exposes the adapter registry for action execution and
// health endpoints.
func (o *Orchestrator) Registry() *adapters.Registry { return o.registry }

// AdapterHealth probes every registered adapter concurrently.
func (o *Orchestrator) AdapterHealth(ctx context.Context) map[string]models.HealthStatus {
	return o.registry.Health(ctx)
}

// ProcessQuery runs the full pipeline for one natural-language query.
// Failures never surface as errors: they produce a well-formed
// response with a null primary payload, zero confidence, an error code,
// and follow-up suggestions the operator can act on.
func (o *Orchestrator) ProcessQuery(ctx context.Context, naturalQuery string, reqCtx *models.Context) *models.UnifiedResponse {
	start := time.Now()
	queryID := uuid.NewString()

	intent, err := o.processor.Process(naturalQuery, reqCtx)
	if err != nil {
		o.logger.Warn("Query rejected", zap.String("query_id", queryID), zap.Error(err))
		metrics.QueriesProcessed.WithLabelValues("unknown", "rejected").Inc()
		return o.failureResponse(queryID, reqCtx, nil, codeInvalidQuery, err, start)
	}

	ctx, span := tracing.StartQuerySpan(ctx, queryID, intent.Domain, intent.Operation)
	defer span.End()

	plan := o.planner.BuildPlan(intent)
	o.logger.Debug("Execution plan built",
		zap.String("query_id", queryID),
		zap.String("plan_id", plan.ID),
		zap.Int("phases", len(plan.Phases)),
	)

	results, err := o.executePlan(ctx, plan, reqCtx, nil)
	if err != nil {
		span.RecordError(err)
		o.logger.Warn("Plan execution failed",
			zap.String("query_id", queryID),
			zap.String("plan_id", plan.ID),
			zap.Error(err),
		)
		metrics.QueriesProcessed.WithLabelValues(string(intent.Type), "failed").Inc()
		return o.failureResponse(queryID, reqCtx, intent, codeOrchestration, err, start)
	}

	resp := o.buildResponse(queryID, reqCtx, intent, results, start)
	metrics.QueriesProcessed.WithLabelValues(string(intent.Type), "ok").Inc()
	metrics.QueryDuration.WithLabelValues(string(intent.Type)).Observe(time.Since(start).Seconds())
	return resp
}

// StreamQuery runs the same pipeline but yields partial results as an
// ordered, finite sequence: a processing marker, the classified intent,
// one chunk per completed phase, and a final chunk carrying the full
// response. On failure a single error chunk ends the stream. A consumer
// that stops reading simply abandons the remaining work. queryID names
// the final response so callers that publish the stream under their own
// id see the same id there; empty gets a generated one.
func (o *Orchestrator) StreamQuery(ctx context.Context, queryID, naturalQuery string, reqCtx *models.Context) <-chan models.StreamChunk {
	out := make(chan models.StreamChunk, o.streamBuf)
	if queryID == "" {
		queryID = uuid.NewString()
	}

	go func() {
		defer close(out)
		start := time.Now()

		emit := func(chunk models.StreamChunk) bool {
			chunk.Timestamp = time.Now()
			metrics.StreamEventsPublished.WithLabelValues(chunk.Type).Inc()
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(models.StreamChunk{Type: "processing"}) {
			return
		}

		intent, err := o.processor.Process(naturalQuery, reqCtx)
		if err != nil {
			emit(models.StreamChunk{Type: "error", Error: err.Error(), ErrorCode: codeStream})
			return
		}
		if !emit(models.StreamChunk{Type: "intent", IntentType: intent.Type, Confidence: intentChunkConfidence}) {
			return
		}

		ctx, span := tracing.StartQuerySpan(ctx, queryID, intent.Domain, intent.Operation)
		defer span.End()

		plan := o.planner.BuildPlan(intent)
		aborted := false
		results, err := o.executePlan(ctx, plan, reqCtx, func(phase models.Phase, phaseResults []models.UnifiedResult) {
			if !emit(models.StreamChunk{
				Type:       "phase",
				PhaseID:    phase.ID,
				Results:    phaseResults,
				Confidence: phaseChunkConfidence,
			}) {
				aborted = true
			}
		})
		if aborted {
			return
		}
		if err != nil {
			span.RecordError(err)
			emit(models.StreamChunk{Type: "error", Error: err.Error(), ErrorCode: codeStream})
			return
		}

		resp := o.buildResponse(queryID, reqCtx, intent, results, start)
		emit(models.StreamChunk{Type: "final", Response: resp, Confidence: resp.Confidence})
	}()

	return out
}

type phaseCallback func(phase models.Phase, results []models.UnifiedResult)

// executePlan runs phases in plan order. A phase may only start once
// every phase in its dependency set has completed; the planner emits
// dependencies in order, so a missing or later dependency is a fatal
// planning error.
func (o *Orchestrator) executePlan(ctx context.Context, plan *models.ExecutionPlan, reqCtx *models.Context, onPhase phaseCallback) ([]models.UnifiedResult, error) {
	completed := make(map[string]bool, len(plan.Phases))
	var all []models.UnifiedResult

	for _, phase := range plan.Phases {
		for _, dep := range phase.DependsOn {
			if !completed[dep] {
				metrics.PhasesExecuted.WithLabelValues("dependency_error").Inc()
				return nil, fmt.Errorf("%w: phase %s requires %s", ErrDependenciesNotMet, phase.ID, dep)
			}
		}

		phaseStart := time.Now()
		results, err := o.executePhase(ctx, phase, reqCtx)
		metrics.PhaseDuration.Observe(time.Since(phaseStart).Seconds())
		if err != nil {
			metrics.PhasesExecuted.WithLabelValues("failed").Inc()
			return nil, err
		}
		metrics.PhasesExecuted.WithLabelValues("ok").Inc()

		completed[phase.ID] = true
		all = append(all, results...)
		if onPhase != nil {
			onPhase(phase, results)
		}
	}
	return all, nil
}

// executePhase dispatches the phase's queries. Parallel phases issue
// every query concurrently and await all of them before judging
// failures; sequential phases stop at the first error. A missing
// adapter fails the phase under either failure policy, since no later
// retry can succeed.
func (o *Orchestrator) executePhase(ctx context.Context, phase models.Phase, reqCtx *models.Context) ([]models.UnifiedResult, error) {
	if len(phase.Queries) == 0 {
		return nil, nil
	}
	ctx, span := tracing.StartPhaseSpan(ctx, phase.ID, phase.Parallel)
	defer span.End()
	if !phase.Parallel {
		var results []models.UnifiedResult
		for _, q := range phase.Queries {
			res, err := o.callAdapter(ctx, q, reqCtx)
			if err != nil {
				return nil, err
			}
			results = append(results, *res)
		}
		return results, nil
	}

	type outcome struct {
		result *models.UnifiedResult
		err    error
	}
	outcomes := make([]outcome, len(phase.Queries))
	var wg sync.WaitGroup
	for i, q := range phase.Queries {
		wg.Add(1)
		go func(i int, q models.DomainQuery) {
			defer wg.Done()
			res, err := o.callAdapter(ctx, q, reqCtx)
			outcomes[i] = outcome{result: res, err: err}
		}(i, q)
	}
	wg.Wait()

	var results []models.UnifiedResult
	var failures []error
	for i, oc := range outcomes {
		if oc.err != nil {
			if errors.Is(oc.err, adapters.ErrNoAdapter) {
				return nil, oc.err
			}
			if o.policy == config.FailFast {
				return nil, oc.err
			}
			failures = append(failures, fmt.Errorf("%s: %w", phase.Queries[i].Domain, oc.err))
			continue
		}
		results = append(results, *oc.result)
	}
	if len(results) == 0 && len(failures) > 0 {
		return nil, failures[0]
	}
	// partial_results: surviving results carry the sibling failures as
	// warnings so the aggregate discloses what is missing
	for _, f := range failures {
		for i := range results {
			results[i].Warnings = append(results[i].Warnings, "partial results: "+f.Error())
		}
	}
	return results, nil
}

func (o *Orchestrator) callAdapter(ctx context.Context, q models.DomainQuery, reqCtx *models.Context) (*models.UnifiedResult, error) {
	adapter, err := o.registry.Get(q.Domain)
	if err != nil {
		metrics.AdapterCalls.WithLabelValues(q.Domain, q.Operation, "missing").Inc()
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	callCtx, span := tracing.StartAdapterSpan(callCtx, q.Domain, q.Operation)
	defer span.End()

	res, err := adapter.Query(callCtx, q, reqCtx)
	if err != nil {
		span.RecordError(err)
		metrics.AdapterCalls.WithLabelValues(q.Domain, q.Operation, "error").Inc()
		return nil, fmt.Errorf("adapter %s: %w", q.Domain, err)
	}
	metrics.AdapterCalls.WithLabelValues(q.Domain, q.Operation, "ok").Inc()
	return res, nil
}

func (o *Orchestrator) buildResponse(queryID string, reqCtx *models.Context, intent *models.Intent, results []models.UnifiedResult, start time.Time) *models.UnifiedResponse {
	resp := &models.UnifiedResponse{
		ID:            uuid.NewString(),
		QueryID:       queryID,
		TotalDuration: time.Since(start),
		Timestamp:     time.Now(),
	}
	if reqCtx != nil {
		resp.ConversationID = reqCtx.Session.SessionID
	}
	if intent != nil {
		resp.IntentType = intent.Type
	}
	if len(results) == 0 {
		resp.FollowUps = []string{"I could not find anything for that. Try adding a customer name or work order number."}
		return resp
	}

	resp.UnifiedResult = aggregate(intent, results)
	for _, r := range results {
		resp.Domains = append(resp.Domains, r.Domain)
	}
	return resp
}

func (o *Orchestrator) failureResponse(queryID string, reqCtx *models.Context, intent *models.Intent, code string, cause error, start time.Time) *models.UnifiedResponse {
	resp := &models.UnifiedResponse{
		ID:            uuid.NewString(),
		QueryID:       queryID,
		TotalDuration: time.Since(start),
		Timestamp:     time.Now(),
		ErrorCode:     code,
		Recoverable:   true,
	}
	if reqCtx != nil {
		resp.ConversationID = reqCtx.Session.SessionID
	}
	resp.Errors = []string{cause.Error()}
	resp.FollowUps = []string{
		"Try rephrasing the request",
		"Include a customer name, ticket number, or work order number",
	}
	if intent != nil {
		resp.IntentType = intent.Type
		resp.Domain = intent.Domain
		resp.Operation = intent.Operation
	}
	return resp
}
