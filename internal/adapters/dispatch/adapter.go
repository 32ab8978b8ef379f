// Package dispatch serves work-order and technician queries and
// executes assignment actions against the dispatch backing service.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/adapters"
	"github.com/fieldline/copilot/internal/metrics"
	"github.com/fieldline/copilot/internal/models"
)

const (
	domain  = "dispatch"
	version = "1.2.0"
)

var (
	ErrWorkOrderIDRequired  = errors.New("Work order ID required")
	ErrTechnicianIDRequired = errors.New("Technician ID required")
)

// Adapter implements the dispatch domain. When the backing client is
// nil or the service is unreachable the adapter degrades to synthesized
// work-order data instead of failing the query.
type Adapter struct {
	client *adapters.BackingClient
	logger *zap.Logger
}

func New(client *adapters.BackingClient, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: client, logger: logger.With(zap.String("adapter", domain))}
}

func (a *Adapter) Domain() string  { return domain }
func (a *Adapter) Version() string { return version }

func (a *Adapter) Capabilities() []adapters.Capability {
	return []adapters.Capability{
		adapters.CapabilityQuery,
		adapters.CapabilityAction,
		adapters.CapabilityOptimization,
		adapters.CapabilityRecommendation,
	}
}

type workOrder struct {
	ID         string  `json:"id"`
	Customer   string  `json:"customer"`
	Service    string  `json:"service"`
	Status     string  `json:"status"`
	Technician string  `json:"technician,omitempty"`
	Urgency    float64 `json:"urgency"` // backing service scores 0-10
	Location   string  `json:"location"`
	ScheduledAt string `json:"scheduled_at,omitempty"`
}

func (a *Adapter) Query(ctx context.Context, q models.DomainQuery, reqCtx *models.Context) (*models.UnifiedResult, error) {
	start := time.Now()
	defer func() {
		metrics.AdapterCallDuration.WithLabelValues(domain, q.Operation).Observe(time.Since(start).Seconds())
	}()

	switch q.Operation {
	case "get", "status":
		return a.getWorkOrder(ctx, q, reqCtx)
	case "technicians", "list_technicians":
		return a.listTechnicians(ctx, q)
	default:
		// search, list, and free-form operations all resolve to a
		// work-order search.
		return a.searchWorkOrders(ctx, q, reqCtx)
	}
}

func (a *Adapter) searchWorkOrders(ctx context.Context, q models.DomainQuery, reqCtx *models.Context) (*models.UnifiedResult, error) {
	orders, demo := a.fetchWorkOrders(ctx, q.Parameters)

	b := adapters.NewResult(domain, q.Operation).
		Primary(orders).
		DataSource("work_orders")
	if demo {
		b.Demo()
		metrics.AdapterDemoDataServed.WithLabelValues(domain).Inc()
	}

	unassigned := 0
	maxUrgency := 0.0
	for _, wo := range orders {
		if wo.Technician == "" {
			unassigned++
		}
		if wo.Urgency > maxUrgency {
			maxUrgency = wo.Urgency
		}
	}
	b.NativeConfidence(adapters.ScaleScore10, maxUrgency)
	if unassigned > 0 {
		b.Insight(fmt.Sprintf("%d work orders have no technician assigned", unassigned))
		b.SuggestAction(models.SuggestedAction{
			Type:        "assign",
			Domain:      domain,
			Operation:   "assign",
			Description: "Assign a technician to the unassigned work orders",
			Confidence:  0.8,
		})
	}
	if reqCtx != nil && reqCtx.App.CurrentEntity != nil && reqCtx.App.CurrentEntity.Type == "work_order" {
		b.ContextUsed("current_entity")
	}
	b.FollowUp("Do you want these filtered by technician or by date?")
	return b.Build(), nil
}

func (a *Adapter) getWorkOrder(ctx context.Context, q models.DomainQuery, reqCtx *models.Context) (*models.UnifiedResult, error) {
	id := paramString(q.Parameters, "work_order_id", "work_order", "id")
	if id == "" && reqCtx != nil && reqCtx.App.CurrentEntity != nil && reqCtx.App.CurrentEntity.Type == "work_order" {
		id = reqCtx.App.CurrentEntity.ID
	}
	if id == "" {
		return nil, ErrWorkOrderIDRequired
	}

	var wo workOrder
	demo := false
	if err := a.fetch(ctx, "/work-orders/"+url.PathEscape(id), nil, &wo); err != nil {
		a.logger.Warn("Backing service unavailable, serving demo work order",
			zap.String("work_order", id), zap.Error(err))
		wo = demoWorkOrder(id)
		demo = true
	}

	b := adapters.NewResult(domain, q.Operation).
		Primary(wo).
		NativeConfidence(adapters.ScaleScore10, wo.Urgency).
		DataSource("work_orders")
	if demo {
		b.Demo()
		metrics.AdapterDemoDataServed.WithLabelValues(domain).Inc()
	}
	if wo.Technician == "" {
		b.Insight("this work order has no technician assigned")
	}
	if wo.Status == "overdue" {
		b.Insight("this work order is past its scheduled window")
		b.SuggestAction(models.SuggestedAction{
			Type:        "reschedule",
			Domain:      "schedule",
			Operation:   "reschedule",
			Description: "Reschedule the overdue work order",
			Confidence:  0.7,
		})
	}
	return b.Build(), nil
}

func (a *Adapter) listTechnicians(ctx context.Context, q models.DomainQuery) (*models.UnifiedResult, error) {
	var techs []technician
	demo := false
	if err := a.fetch(ctx, "/technicians", nil, &techs); err != nil {
		a.logger.Warn("Backing service unavailable, serving demo technicians", zap.Error(err))
		techs = demoTechnicians()
		demo = true
	}

	available := 0
	for _, t := range techs {
		if t.Available {
			available++
		}
	}
	b := adapters.NewResult(domain, q.Operation).
		Primary(techs).
		Confidence(0.9).
		Insight(fmt.Sprintf("%d of %d technicians are available now", available, len(techs))).
		DataSource("technicians")
	if demo {
		b.Demo()
		metrics.AdapterDemoDataServed.WithLabelValues(domain).Inc()
	}
	return b.Build(), nil
}

// fetchWorkOrders queries the backing service with optional filters,
// falling back to demo data on any transport failure.
func (a *Adapter) fetchWorkOrders(ctx context.Context, params map[string]interface{}) ([]workOrder, bool) {
	values := url.Values{}
	for _, key := range []string{"customer", "technician", "status", "location"} {
		if v := paramString(params, key); v != "" {
			values.Set(key, v)
		}
	}
	var orders []workOrder
	if err := a.fetch(ctx, "/work-orders", values, &orders); err != nil {
		a.logger.Warn("Backing service unavailable, serving demo work orders", zap.Error(err))
		return demoWorkOrders(), true
	}
	return orders, false
}

func (a *Adapter) fetch(ctx context.Context, path string, params url.Values, out interface{}) error {
	if a.client == nil {
		return errors.New("no backing service configured")
	}
	return a.client.Get(ctx, path, params, out)
}

func (a *Adapter) Validate(q models.DomainQuery) error {
	switch q.Operation {
	case "get", "status":
		if paramString(q.Parameters, "work_order_id", "work_order", "id") == "" {
			return ErrWorkOrderIDRequired
		}
	}
	return nil
}

func (a *Adapter) Schema() map[string]interface{} {
	return map[string]interface{}{
		"search":      map[string]string{"customer": "optional", "technician": "optional", "status": "optional", "location": "optional"},
		"get":         map[string]string{"work_order_id": "required"},
		"technicians": map[string]string{},
		"assign":      map[string]string{"work_order_id": "required", "technician_id": "required"},
	}
}

func (a *Adapter) Examples() []string {
	return []string{
		"show today's work orders",
		"what is the status of WO-1042",
		"which technicians are available",
		"assign Dana Reyes to work order 1042",
	}
}

func (a *Adapter) HealthCheck(ctx context.Context) models.HealthStatus {
	start := time.Now()
	if a.client == nil {
		return models.HealthStatus{
			Healthy:   true,
			Status:    "degraded",
			Message:   "no backing service configured, serving demo data",
			Latency:   time.Since(start),
			CheckedAt: time.Now(),
		}
	}
	if err := a.client.Ping(ctx); err != nil {
		return models.HealthStatus{
			Healthy:   false,
			Status:    "unhealthy",
			Message:   err.Error(),
			Latency:   time.Since(start),
			CheckedAt: time.Now(),
		}
	}
	return models.HealthStatus{Healthy: true, Status: "healthy", Latency: time.Since(start), CheckedAt: time.Now()}
}

// Execute applies dispatch actions. Only assignment is supported; other
// operations are routed to their owning domains by the planner.
func (a *Adapter) Execute(ctx context.Context, action models.Action, reqCtx *models.Context) (*models.ActionResult, error) {
	start := time.Now()
	switch {
	case action.Type == models.ActionAssign || strings.Contains(action.Operation, "assign"):
		return a.executeAssign(ctx, action, start)
	default:
		return nil, fmt.Errorf("dispatch does not handle operation %q", action.Operation)
	}
}

func (a *Adapter) executeAssign(ctx context.Context, action models.Action, start time.Time) (*models.ActionResult, error) {
	woID := paramString(action.Payload, "work_order_id", "work_order")
	techID := paramString(action.Payload, "technician_id", "technician")
	if woID == "" {
		return nil, ErrWorkOrderIDRequired
	}
	if techID == "" {
		return nil, ErrTechnicianIDRequired
	}

	if a.client != nil {
		if err := a.client.Post(ctx, "/work-orders/"+url.PathEscape(woID)+"/assign",
			map[string]string{"technician_id": techID}, nil); err != nil {
			return nil, fmt.Errorf("assign technician: %w", err)
		}
	}

	return &models.ActionResult{
		ActionID: action.ID,
		Success:  true,
		Result:   map[string]string{"work_order_id": woID, "technician_id": techID},
		Duration: time.Since(start),
		AffectedEntities: []models.EntityRef{
			{Type: "work_order", ID: woID},
			{Type: "technician", ID: techID},
		},
		RollbackAvailable: true,
		Timestamp:         time.Now(),
	}, nil
}

// CurrentState captures the assignment state of the targeted work order
// so a rollback can restore it.
func (a *Adapter) CurrentState(ctx context.Context, action models.Action) (map[string]interface{}, error) {
	woID := paramString(action.Payload, "work_order_id", "work_order")
	if woID == "" {
		return nil, ErrWorkOrderIDRequired
	}
	var wo workOrder
	if err := a.fetch(ctx, "/work-orders/"+url.PathEscape(woID), nil, &wo); err != nil {
		wo = demoWorkOrder(woID)
	}
	return map[string]interface{}{
		"work_order_id": wo.ID,
		"technician":    wo.Technician,
		"status":        wo.Status,
	}, nil
}

// Rollback restores the technician assignment recorded in the
// snapshot. An empty prior technician unassigns the work order.
func (a *Adapter) Rollback(ctx context.Context, original models.Action, snapshot map[string]interface{}) (*models.ActionResult, error) {
	start := time.Now()
	woID, _ := snapshot["work_order_id"].(string)
	if woID == "" {
		return nil, ErrWorkOrderIDRequired
	}
	prevTech, _ := snapshot["technician"].(string)

	if a.client != nil {
		if err := a.client.Post(ctx, "/work-orders/"+url.PathEscape(woID)+"/assign",
			map[string]string{"technician_id": prevTech}, nil); err != nil {
			return nil, fmt.Errorf("restore assignment: %w", err)
		}
	}

	return &models.ActionResult{
		ActionID:          original.ID,
		Success:           true,
		Result:            map[string]string{"work_order_id": woID, "technician_id": prevTech},
		Duration:          time.Since(start),
		AffectedEntities:  []models.EntityRef{{Type: "work_order", ID: woID}},
		RollbackAvailable: false,
		Timestamp:         time.Now(),
	}, nil
}

func paramString(params map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
