// Package customers serves customer profile and activity queries.
// Read-only: customer writes go through the CRM proper, not the
// assistant.
package customers

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
	domain  = "customers"
	version = "1.0.3"
)

var ErrCustomerIDRequired = errors.New("Customer ID required")

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
		adapters.CapabilitySummarization,
		adapters.CapabilityAnalysis,
		adapters.CapabilityRecommendation,
	}
}

type customer struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Phone        string   `json:"phone,omitempty"`
	Email        string   `json:"email,omitempty"`
	Address      string   `json:"address,omitempty"`
	AccountGrade string   `json:"account_grade"` // backing service grades data quality A-F
	OpenTickets  int      `json:"open_tickets"`
	LastService  string   `json:"last_service,omitempty"`
	Activity     []string `json:"activity,omitempty"`
}

func (a *Adapter) Query(ctx context.Context, q models.DomainQuery, reqCtx *models.Context) (*models.UnifiedResult, error) {
	start := time.Now()
	defer func() {
		metrics.AdapterCallDuration.WithLabelValues(domain, q.Operation).Observe(time.Since(start).Seconds())
	}()

	switch q.Operation {
	case "get", "activity", "summary":
		return a.getCustomer(ctx, q, reqCtx)
	default:
		return a.searchCustomers(ctx, q)
	}
}

func (a *Adapter) getCustomer(ctx context.Context, q models.DomainQuery, reqCtx *models.Context) (*models.UnifiedResult, error) {
	id := paramString(q.Parameters, "customer_id", "customer", "id")
	usedContext := false
	if id == "" && reqCtx != nil && reqCtx.App.CurrentEntity != nil && reqCtx.App.CurrentEntity.Type == "customer" {
		id = reqCtx.App.CurrentEntity.ID
		usedContext = true
	}
	if id == "" {
		return nil, ErrCustomerIDRequired
	}

	var c customer
	demo := false
	if err := a.fetch(ctx, "/customers/"+url.PathEscape(id), nil, &c); err != nil {
		a.logger.Warn("Backing service unavailable, serving demo customer",
			zap.String("customer", id), zap.Error(err))
		c = demoCustomer(id)
		demo = true
	}
	return a.buildCustomerResult(q.Operation, c, demo, usedContext), nil
}

func (a *Adapter) searchCustomers(ctx context.Context, q models.DomainQuery) (*models.UnifiedResult, error) {
	name := paramString(q.Parameters, "customer", "name", "query")
	values := url.Values{}
	if name != "" {
		values.Set("name", name)
	}

	var list []customer
	demo := false
	if err := a.fetch(ctx, "/customers", values, &list); err != nil {
		a.logger.Warn("Backing service unavailable, serving demo customers", zap.Error(err))
		list = demoSearch(name)
		demo = true
	}

	// a single match is answered like a direct lookup so the caller
	// gets the richer summary shape
	if len(list) == 1 {
		return a.buildCustomerResult(q.Operation, list[0], demo, false), nil
	}

	grade := ""
	for _, c := range list {
		if grade == "" || c.AccountGrade < grade {
			grade = c.AccountGrade
		}
	}
	b := adapters.NewResult(domain, q.Operation).
		Primary(list).
		NativeConfidence(adapters.ScaleGrade, grade).
		DataSource("customers")
	if demo {
		b.Demo()
		metrics.AdapterDemoDataServed.WithLabelValues(domain).Inc()
	}
	if len(list) == 0 {
		b.Warning(fmt.Sprintf("no customers matched %q", name))
		b.FollowUp("Try a different spelling or a customer ID")
	} else {
		b.FollowUp("Which customer did you mean?")
	}
	return b.Build(), nil
}

func (a *Adapter) buildCustomerResult(operation string, c customer, demo, usedContext bool) *models.UnifiedResult {
	fields := map[string]interface{}{
		"phone": c.Phone, "email": c.Email, "address": c.Address, "last_service": c.LastService,
	}
	b := adapters.NewResult(domain, operation).
		Primary(c).
		NativeConfidence(adapters.ScaleGrade, c.AccountGrade).
		Completeness(adapters.MapCompleteness(fields)).
		DataSource("customers")
	if demo {
		b.Demo()
		metrics.AdapterDemoDataServed.WithLabelValues(domain).Inc()
	}
	if usedContext {
		b.ContextUsed("current_entity")
	}
	if c.OpenTickets > 0 {
		b.Insight(fmt.Sprintf("%s has %d open tickets", c.Name, c.OpenTickets))
		b.SuggestAction(models.SuggestedAction{
			Type:        "review",
			Domain:      "tickets",
			Operation:   "search",
			Description: "Review the customer's open tickets",
			Confidence:  0.85,
		})
	}
	if c.LastService != "" {
		b.Insight("last service visit: " + c.LastService)
	}
	b.FollowUp("Want the full service history for this customer?")
	return b.Build()
}

func (a *Adapter) fetch(ctx context.Context, path string, params url.Values, out interface{}) error {
	if a.client == nil {
		return errors.New("no backing service configured")
	}
	return a.client.Get(ctx, path, params, out)
}

func (a *Adapter) Validate(q models.DomainQuery) error {
	switch q.Operation {
	case "get", "activity", "summary":
		if paramString(q.Parameters, "customer_id", "customer", "id") == "" {
			return ErrCustomerIDRequired
		}
	}
	return nil
}

func (a *Adapter) Schema() map[string]interface{} {
	return map[string]interface{}{
		"search":   map[string]string{"name": "optional"},
		"get":      map[string]string{"customer_id": "required"},
		"activity": map[string]string{"customer_id": "required"},
	}
}

func (a *Adapter) Examples() []string {
	return []string{
		"show me John Smith's activity summary",
		"find customers named Lopez",
		"when was customer C-1001 last serviced",
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

func paramString(params map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}
