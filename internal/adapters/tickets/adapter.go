// Package tickets serves support-ticket queries and executes ticket
// lifecycle actions against the ticketing backing service.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/adapters"
	"github.com/fieldline/copilot/internal/metrics"
	"github.com/fieldline/copilot/internal/models"
)

const (
	domain  = "tickets"
	version = "1.1.0"

	minDescriptionLength = 10
)

var (
	ErrCustomerIDRequired  = errors.New("Customer ID required")
	ErrTicketIDRequired    = errors.New("Ticket ID required")
	ErrDescriptionTooShort = fmt.Errorf("ticket description must be at least %d characters", minDescriptionLength)
)

// Adapter implements the tickets domain.
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
		adapters.CapabilityClassification,
		adapters.CapabilitySummarization,
	}
}

type ticket struct {
	ID          string  `json:"id"`
	CustomerID  string  `json:"customer_id"`
	Subject     string  `json:"subject"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Confidence  float64 `json:"confidence"` // classifier confidence, already [0,1]
	CreatedAt   string  `json:"created_at"`
}

func (a *Adapter) Query(ctx context.Context, q models.DomainQuery, reqCtx *models.Context) (*models.UnifiedResult, error) {
	start := time.Now()
	defer func() {
		metrics.AdapterCallDuration.WithLabelValues(domain, q.Operation).Observe(time.Since(start).Seconds())
	}()

	switch q.Operation {
	case "get", "status":
		return a.getTicket(ctx, q)
	default:
		return a.searchTickets(ctx, q, reqCtx)
	}
}

func (a *Adapter) searchTickets(ctx context.Context, q models.DomainQuery, reqCtx *models.Context) (*models.UnifiedResult, error) {
	values := url.Values{}
	customerID := paramString(q.Parameters, "customer_id", "customer")
	if customerID == "" && reqCtx != nil && reqCtx.App.CurrentEntity != nil && reqCtx.App.CurrentEntity.Type == "customer" {
		customerID = reqCtx.App.CurrentEntity.ID
	}
	if customerID != "" {
		values.Set("customer_id", customerID)
	}
	if status := paramString(q.Parameters, "status"); status != "" {
		values.Set("status", status)
	}

	var list []ticket
	demo := false
	if err := a.fetch(ctx, "/tickets", values, &list); err != nil {
		a.logger.Warn("Backing service unavailable, serving demo tickets", zap.Error(err))
		list = demoTickets(customerID)
		demo = true
	}

	open, urgent := 0, 0
	best := 0.0
	for _, tk := range list {
		if tk.Status == "open" {
			open++
		}
		if tk.Priority == "urgent" {
			urgent++
		}
		if tk.Confidence > best {
			best = tk.Confidence
		}
	}

	b := adapters.NewResult(domain, q.Operation).
		Primary(list).
		NativeConfidence(adapters.ScaleUnit, best).
		DataSource("tickets")
	if demo {
		b.Demo()
		metrics.AdapterDemoDataServed.WithLabelValues(domain).Inc()
	}
	if customerID != "" {
		b.ContextUsed("customer_id")
	}
	if urgent > 0 {
		b.Insight(fmt.Sprintf("%d urgent tickets need attention", urgent))
		b.SuggestAction(models.SuggestedAction{
			Type:        "notify",
			Domain:      domain,
			Operation:   "notify",
			Description: "Notify the on-call operator about urgent tickets",
			Confidence:  0.75,
		})
	}
	if open > 0 {
		b.Insight(fmt.Sprintf("%d tickets are still open", open))
	}
	b.FollowUp("Should I open a new ticket for this customer?")
	return b.Build(), nil
}

func (a *Adapter) getTicket(ctx context.Context, q models.DomainQuery) (*models.UnifiedResult, error) {
	id := paramString(q.Parameters, "ticket_id", "id")
	if id == "" {
		return nil, ErrTicketIDRequired
	}
	var tk ticket
	demo := false
	if err := a.fetch(ctx, "/tickets/"+url.PathEscape(id), nil, &tk); err != nil {
		a.logger.Warn("Backing service unavailable, serving demo ticket", zap.String("ticket", id), zap.Error(err))
		tk = demoTicket(id)
		demo = true
	}

	b := adapters.NewResult(domain, q.Operation).
		Primary(tk).
		NativeConfidence(adapters.ScaleUnit, tk.Confidence).
		DataSource("tickets")
	if demo {
		b.Demo()
		metrics.AdapterDemoDataServed.WithLabelValues(domain).Inc()
	}
	if tk.Status == "open" && tk.Priority == "urgent" {
		b.Insight("urgent ticket is still unresolved")
	}
	return b.Build(), nil
}

func (a *Adapter) fetch(ctx context.Context, path string, params url.Values, out interface{}) error {
	if a.client == nil {
		return errors.New("no backing service configured")
	}
	return a.client.Get(ctx, path, params, out)
}

func (a *Adapter) Validate(q models.DomainQuery) error {
	if q.Operation == "get" || q.Operation == "status" {
		if paramString(q.Parameters, "ticket_id", "id") == "" {
			return ErrTicketIDRequired
		}
	}
	return nil
}

func (a *Adapter) Schema() map[string]interface{} {
	return map[string]interface{}{
		"search": map[string]string{"customer_id": "optional", "status": "optional"},
		"get":    map[string]string{"ticket_id": "required"},
		"create": map[string]string{"customer_id": "required", "description": "required"},
		"update": map[string]string{"ticket_id": "required"},
	}
}

func (a *Adapter) Examples() []string {
	return []string{
		"show open tickets for John Smith",
		"create a ticket for a heating issue",
		"what is the status of ticket TK-204",
	}
}

func (a *Adapter) HealthCheck(ctx context.Context) models.HealthStatus {
	start := time.Now()
	if a.client == nil {
		return models.HealthStatus{Healthy: true, Status: "degraded", Message: "no backing service configured, serving demo data", Latency: time.Since(start), CheckedAt: time.Now()}
	}
	if err := a.client.Ping(ctx); err != nil {
		return models.HealthStatus{Healthy: false, Status: "unhealthy", Message: err.Error(), Latency: time.Since(start), CheckedAt: time.Now()}
	}
	return models.HealthStatus{Healthy: true, Status: "healthy", Latency: time.Since(start), CheckedAt: time.Now()}
}

// Execute applies ticket actions: create, update, close.
func (a *Adapter) Execute(ctx context.Context, action models.Action, reqCtx *models.Context) (*models.ActionResult, error) {
	start := time.Now()
	switch {
	case strings.Contains(action.Operation, "create"):
		return a.executeCreate(ctx, action, start)
	case strings.Contains(action.Operation, "update"), strings.Contains(action.Operation, "close"):
		return a.executeUpdate(ctx, action, start)
	default:
		return nil, fmt.Errorf("tickets does not handle operation %q", action.Operation)
	}
}

func (a *Adapter) executeCreate(ctx context.Context, action models.Action, start time.Time) (*models.ActionResult, error) {
	customerID := paramString(action.Payload, "customer_id", "customerId")
	if customerID == "" {
		return nil, ErrCustomerIDRequired
	}
	description := paramString(action.Payload, "description")
	if len(description) < minDescriptionLength {
		return nil, ErrDescriptionTooShort
	}

	created := ticket{
		ID:          "TK-" + uuid.NewString()[:8],
		CustomerID:  customerID,
		Subject:     paramString(action.Payload, "subject"),
		Description: description,
		Status:      "open",
		Priority:    priorityOrDefault(action.Payload),
		Confidence:  1.0,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if a.client != nil {
		if err := a.client.Post(ctx, "/tickets", created, &created); err != nil {
			return nil, fmt.Errorf("create ticket: %w", err)
		}
	}
	// remember the created id on the shared payload map so a later
	// rollback knows which ticket to delete
	action.Payload["created_ticket_id"] = created.ID

	return &models.ActionResult{
		ActionID:          action.ID,
		Success:           true,
		Result:            created,
		Duration:          time.Since(start),
		AffectedEntities:  []models.EntityRef{{Type: "ticket", ID: created.ID}, {Type: "customer", ID: customerID}},
		RollbackAvailable: true,
		Timestamp:         time.Now(),
	}, nil
}

func (a *Adapter) executeUpdate(ctx context.Context, action models.Action, start time.Time) (*models.ActionResult, error) {
	id := paramString(action.Payload, "ticket_id", "id")
	if id == "" {
		return nil, ErrTicketIDRequired
	}
	if a.client != nil {
		if err := a.client.Post(ctx, "/tickets/"+url.PathEscape(id), action.Payload, nil); err != nil {
			return nil, fmt.Errorf("update ticket: %w", err)
		}
	}
	return &models.ActionResult{
		ActionID:          action.ID,
		Success:           true,
		Result:            map[string]string{"ticket_id": id},
		Duration:          time.Since(start),
		AffectedEntities:  []models.EntityRef{{Type: "ticket", ID: id}},
		RollbackAvailable: true,
		Timestamp:         time.Now(),
	}, nil
}

// CurrentState snapshots the ticket targeted by an update, or records
// that a create has no prior state (rollback deletes the ticket).
func (a *Adapter) CurrentState(ctx context.Context, action models.Action) (map[string]interface{}, error) {
	if strings.Contains(action.Operation, "create") {
		return map[string]interface{}{"exists": false}, nil
	}
	id := paramString(action.Payload, "ticket_id", "id")
	if id == "" {
		return nil, ErrTicketIDRequired
	}
	var tk ticket
	if err := a.fetch(ctx, "/tickets/"+url.PathEscape(id), nil, &tk); err != nil {
		tk = demoTicket(id)
	}
	return map[string]interface{}{
		"exists":    true,
		"ticket_id": tk.ID,
		"status":    tk.Status,
		"priority":  tk.Priority,
	}, nil
}

// Rollback undoes a ticket action. A created ticket (snapshot says it
// did not exist) is deleted; an updated ticket has its snapshotted
// fields written back.
func (a *Adapter) Rollback(ctx context.Context, original models.Action, snapshot map[string]interface{}) (*models.ActionResult, error) {
	start := time.Now()
	existed, _ := snapshot["exists"].(bool)

	if !existed {
		createdID := createdTicketID(original)
		if createdID == "" {
			return nil, ErrTicketIDRequired
		}
		if a.client != nil {
			if err := a.client.Delete(ctx, "/tickets/"+url.PathEscape(createdID)); err != nil {
				return nil, fmt.Errorf("delete created ticket: %w", err)
			}
		}
		return &models.ActionResult{
			ActionID:          original.ID,
			Success:           true,
			Result:            map[string]string{"deleted_ticket": createdID},
			Duration:          time.Since(start),
			AffectedEntities:  []models.EntityRef{{Type: "ticket", ID: createdID}},
			RollbackAvailable: false,
			Timestamp:         time.Now(),
		}, nil
	}

	id, _ := snapshot["ticket_id"].(string)
	if id == "" {
		return nil, ErrTicketIDRequired
	}
	if a.client != nil {
		if err := a.client.Post(ctx, "/tickets/"+url.PathEscape(id), snapshot, nil); err != nil {
			return nil, fmt.Errorf("restore ticket: %w", err)
		}
	}
	return &models.ActionResult{
		ActionID:          original.ID,
		Success:           true,
		Result:            map[string]string{"restored_ticket": id},
		Duration:          time.Since(start),
		AffectedEntities:  []models.EntityRef{{Type: "ticket", ID: id}},
		RollbackAvailable: false,
		Timestamp:         time.Now(),
	}, nil
}

// createdTicketID finds the id recorded on the payload when the create
// executed.
func createdTicketID(original models.Action) string {
	return paramString(original.Payload, "created_ticket_id")
}

func priorityOrDefault(payload map[string]interface{}) string {
	if p := paramString(payload, "priority"); p != "" {
		return p
	}
	return "medium"
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
