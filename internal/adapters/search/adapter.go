// Package search serves free-text lookups across every indexed record
// type: customers, work orders, tickets, and technicians.
package search

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/adapters"
	"github.com/fieldline/copilot/internal/metrics"
	"github.com/fieldline/copilot/internal/models"
)

const (
	domain  = "search"
	version = "2.0.1"
)

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
		adapters.CapabilityClassification,
	}
}

type hit struct {
	Type      string  `json:"type"`
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet,omitempty"`
	Relevance float64 `json:"relevance"` // index scores relevance as a percentage
}

func (a *Adapter) Query(ctx context.Context, q models.DomainQuery, reqCtx *models.Context) (*models.UnifiedResult, error) {
	start := time.Now()
	defer func() {
		metrics.AdapterCallDuration.WithLabelValues(domain, q.Operation).Observe(time.Since(start).Seconds())
	}()

	terms := searchTerms(q.Parameters)

	var hits []hit
	demo := false
	if err := a.fetch(ctx, terms, &hits); err != nil {
		a.logger.Warn("Backing index unavailable, searching demo records", zap.Error(err))
		hits = demoSearch(terms)
		demo = true
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Relevance > hits[j].Relevance })

	top := 0.0
	if len(hits) > 0 {
		top = hits[0].Relevance
	}

	b := adapters.NewResult(domain, q.Operation).
		Primary(hits).
		NativeConfidence(adapters.ScalePercent, top).
		DataSource("search_index")
	if demo {
		b.Demo()
		metrics.AdapterDemoDataServed.WithLabelValues(domain).Inc()
	}
	if len(hits) == 0 {
		b.Warning("no records matched the search")
		b.FollowUp("Try different keywords or a record ID")
	} else {
		byType := map[string]int{}
		for _, h := range hits {
			byType[h.Type]++
		}
		for typ, n := range byType {
			if n > 1 {
				b.Insight(strings.ToLower(typ) + " records dominate the matches")
				break
			}
		}
	}
	return b.Build(), nil
}

func (a *Adapter) fetch(ctx context.Context, terms []string, out *[]hit) error {
	if a.client == nil {
		return errors.New("no backing index configured")
	}
	return a.client.Get(ctx, "/search", url.Values{"q": {strings.Join(terms, " ")}}, out)
}

func (a *Adapter) Validate(q models.DomainQuery) error { return nil }

func (a *Adapter) Schema() map[string]interface{} {
	return map[string]interface{}{
		"search": map[string]string{"query": "optional", "customer": "optional", "work_order": "optional"},
	}
}

func (a *Adapter) Examples() []string {
	return []string{
		"find everything about John Smith",
		"search for water heater jobs",
	}
}

func (a *Adapter) HealthCheck(ctx context.Context) models.HealthStatus {
	start := time.Now()
	if a.client == nil {
		return models.HealthStatus{Healthy: true, Status: "degraded", Message: "no backing index configured, searching demo records", Latency: time.Since(start), CheckedAt: time.Now()}
	}
	if err := a.client.Ping(ctx); err != nil {
		return models.HealthStatus{Healthy: false, Status: "unhealthy", Message: err.Error(), Latency: time.Since(start), CheckedAt: time.Now()}
	}
	return models.HealthStatus{Healthy: true, Status: "healthy", Latency: time.Since(start), CheckedAt: time.Now()}
}

// searchTerms collects every string parameter as a search term so
// entity values extracted upstream (customer names, work order ids)
// all contribute to the lookup.
func searchTerms(params map[string]interface{}) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var terms []string
	for _, k := range keys {
		if s, ok := params[k].(string); ok && strings.TrimSpace(s) != "" {
			terms = append(terms, s)
		}
	}
	return terms
}
