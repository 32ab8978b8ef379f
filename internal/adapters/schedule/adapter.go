// Package schedule serves technician-calendar queries and executes
// scheduling and rescheduling actions.
package schedule

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
	domain  = "schedule"
	version = "1.0.0"
)

var (
	ErrDateTimeRequired  = errors.New("scheduling requires both a date and a time")
	ErrWorkOrderRequired = errors.New("Work order ID required")
	ErrSlotConflict      = errors.New("requested slot conflicts with an existing appointment")
)

type Adapter struct {
	client *adapters.BackingClient
	logger *zap.Logger
	now    func() time.Time
}

func New(client *adapters.BackingClient, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: client, logger: logger.With(zap.String("adapter", domain)), now: time.Now}
}

func (a *Adapter) Domain() string  { return domain }
func (a *Adapter) Version() string { return version }

func (a *Adapter) Capabilities() []adapters.Capability {
	return []adapters.Capability{
		adapters.CapabilityQuery,
		adapters.CapabilityAction,
		adapters.CapabilityOptimization,
		adapters.CapabilityPrediction,
	}
}

type slot struct {
	Date       string `json:"date"` // YYYY-MM-DD
	Time       string `json:"time"` // HH:MM
	Technician string `json:"technician"`
	WorkOrder  string `json:"work_order,omitempty"`
	Free       bool   `json:"free"`
}

func (a *Adapter) Query(ctx context.Context, q models.DomainQuery, reqCtx *models.Context) (*models.UnifiedResult, error) {
	start := time.Now()
	defer func() {
		metrics.AdapterCallDuration.WithLabelValues(domain, q.Operation).Observe(time.Since(start).Seconds())
	}()

	date := paramString(q.Parameters, "date")
	if date == "" {
		date = a.now().Format("2006-01-02")
	}

	values := url.Values{"date": {date}}
	if tech := paramString(q.Parameters, "technician", "technician_id"); tech != "" {
		values.Set("technician", tech)
	}

	var slots []slot
	demo := false
	if err := a.fetch(ctx, "/slots", values, &slots); err != nil {
		a.logger.Warn("Backing service unavailable, serving demo schedule", zap.Error(err))
		slots = demoSlots(date)
		demo = true
	}

	free := 0
	for _, s := range slots {
		if s.Free {
			free++
		}
	}

	b := adapters.NewResult(domain, q.Operation).
		Primary(slots).
		Confidence(0.85).
		Insight(fmt.Sprintf("%d of %d slots on %s are free", free, len(slots), date)).
		DataSource("calendar")
	if demo {
		b.Demo()
		metrics.AdapterDemoDataServed.WithLabelValues(domain).Inc()
	}
	if free == 0 {
		b.Warning("no free slots on the requested date")
		b.FollowUp("Should I look at the next day instead?")
	} else {
		b.SuggestAction(models.SuggestedAction{
			Type:        "schedule",
			Domain:      domain,
			Operation:   "schedule",
			Description: "Book one of the free slots",
			Confidence:  0.8,
		})
	}
	return b.Build(), nil
}

func (a *Adapter) fetch(ctx context.Context, path string, params url.Values, out interface{}) error {
	if a.client == nil {
		return errors.New("no backing service configured")
	}
	return a.client.Get(ctx, path, params, out)
}

func (a *Adapter) Validate(q models.DomainQuery) error { return nil }

func (a *Adapter) Schema() map[string]interface{} {
	return map[string]interface{}{
		"search":     map[string]string{"date": "optional", "technician": "optional"},
		"schedule":   map[string]string{"work_order_id": "required", "date": "required", "time": "required"},
		"reschedule": map[string]string{"work_order_id": "required", "date": "required", "time": "required"},
	}
}

func (a *Adapter) Examples() []string {
	return []string{
		"what does tomorrow's schedule look like",
		"schedule work order 1042 for Friday at 9am",
		"reschedule WO-1003 to next Monday",
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

// Execute books or moves an appointment. The slot must be free; date
// and time are both required.
func (a *Adapter) Execute(ctx context.Context, action models.Action, reqCtx *models.Context) (*models.ActionResult, error) {
	start := time.Now()
	if !strings.Contains(action.Operation, "schedule") {
		return nil, fmt.Errorf("schedule does not handle operation %q", action.Operation)
	}

	woID := paramString(action.Payload, "work_order_id", "work_order")
	if woID == "" {
		return nil, ErrWorkOrderRequired
	}
	date := paramString(action.Payload, "date")
	timeOfDay := paramString(action.Payload, "time")
	if date == "" || timeOfDay == "" {
		return nil, ErrDateTimeRequired
	}
	if a.hasConflict(ctx, date, timeOfDay) {
		return nil, fmt.Errorf("%w: %s %s", ErrSlotConflict, date, timeOfDay)
	}

	if a.client != nil {
		if err := a.client.Post(ctx, "/slots/book", map[string]string{
			"work_order_id": woID, "date": date, "time": timeOfDay,
		}, nil); err != nil {
			return nil, fmt.Errorf("book slot: %w", err)
		}
	}

	return &models.ActionResult{
		ActionID:          action.ID,
		Success:           true,
		Result:            map[string]string{"work_order_id": woID, "date": date, "time": timeOfDay},
		Duration:          time.Since(start),
		AffectedEntities:  []models.EntityRef{{Type: "work_order", ID: woID}},
		RollbackAvailable: true,
		Timestamp:         time.Now(),
	}, nil
}

func (a *Adapter) hasConflict(ctx context.Context, date, timeOfDay string) bool {
	var slots []slot
	if err := a.fetch(ctx, "/slots", url.Values{"date": {date}}, &slots); err != nil {
		slots = demoSlots(date)
	}
	for _, s := range slots {
		if s.Date == date && s.Time == timeOfDay && !s.Free {
			return true
		}
	}
	return false
}

// CurrentState snapshots the work order's existing appointment so a
// reschedule can be reverted.
func (a *Adapter) CurrentState(ctx context.Context, action models.Action) (map[string]interface{}, error) {
	woID := paramString(action.Payload, "work_order_id", "work_order")
	if woID == "" {
		return nil, ErrWorkOrderRequired
	}
	var slots []slot
	if err := a.fetch(ctx, "/slots", url.Values{"work_order": {woID}}, &slots); err != nil {
		slots = demoSlots(a.now().Format("2006-01-02"))
	}
	for _, s := range slots {
		if s.WorkOrder == woID {
			return map[string]interface{}{
				"work_order_id": woID, "date": s.Date, "time": s.Time, "scheduled": true,
			}, nil
		}
	}
	return map[string]interface{}{"work_order_id": woID, "scheduled": false}, nil
}

// Rollback re-books the appointment recorded in the snapshot, or
// clears the booking when the work order was previously unscheduled.
func (a *Adapter) Rollback(ctx context.Context, original models.Action, snapshot map[string]interface{}) (*models.ActionResult, error) {
	start := time.Now()
	woID, _ := snapshot["work_order_id"].(string)
	if woID == "" {
		return nil, ErrWorkOrderRequired
	}

	wasScheduled, _ := snapshot["scheduled"].(bool)
	if a.client != nil {
		if !wasScheduled {
			if err := a.client.Delete(ctx, "/slots/book/"+url.PathEscape(woID)); err != nil {
				return nil, fmt.Errorf("clear booking: %w", err)
			}
		} else {
			date, _ := snapshot["date"].(string)
			timeOfDay, _ := snapshot["time"].(string)
			if err := a.client.Post(ctx, "/slots/book", map[string]string{
				"work_order_id": woID, "date": date, "time": timeOfDay,
			}, nil); err != nil {
				return nil, fmt.Errorf("restore booking: %w", err)
			}
		}
	}

	return &models.ActionResult{
		ActionID:          original.ID,
		Success:           true,
		Result:            snapshot,
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
