package health

import (
	"context"
	"time"

	"github.com/fieldline/copilot/internal/adapters"
	"github.com/fieldline/copilot/internal/circuitbreaker"
)

const degradedLatency = 100 * time.Millisecond

// RedisChecker probes the session store through its circuit breaker.
type RedisChecker struct {
	wrapper *circuitbreaker.RedisWrapper
	timeout time.Duration
}

func NewRedisChecker(wrapper *circuitbreaker.RedisWrapper) *RedisChecker {
	return &RedisChecker{wrapper: wrapper, timeout: 5 * time.Second}
}

func (r *RedisChecker) Name() string           { return "redis" }
func (r *RedisChecker) IsCritical() bool       { return true }
func (r *RedisChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Component: "redis", Critical: true}

	if r.wrapper.State() == circuitbreaker.StateOpen {
		result.Status = StatusUnhealthy
		result.Message = "redis circuit breaker is open"
		return result
	}

	start := time.Now()
	err := r.wrapper.Ping(ctx).Err()
	latency := time.Since(start)
	result.Details = map[string]interface{}{"latency_ms": latency.Milliseconds()}

	switch {
	case err != nil:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "redis ping failed"
	case latency > degradedLatency:
		result.Status = StatusDegraded
		result.Message = "redis responding with high latency"
	default:
		result.Status = StatusHealthy
		result.Message = "redis healthy"
	}
	return result
}

// DatabaseChecker probes the audit database through its circuit
// breaker.
type DatabaseChecker struct {
	wrapper *circuitbreaker.DatabaseWrapper
	timeout time.Duration
}

func NewDatabaseChecker(wrapper *circuitbreaker.DatabaseWrapper) *DatabaseChecker {
	return &DatabaseChecker{wrapper: wrapper, timeout: 5 * time.Second}
}

func (d *DatabaseChecker) Name() string           { return "database" }
func (d *DatabaseChecker) IsCritical() bool       { return false } // audit is best-effort
func (d *DatabaseChecker) Timeout() time.Duration { return d.timeout }

func (d *DatabaseChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Component: "database"}

	if d.wrapper.State() == circuitbreaker.StateOpen {
		result.Status = StatusUnhealthy
		result.Message = "database circuit breaker is open"
		return result
	}

	start := time.Now()
	err := d.wrapper.PingContext(ctx)
	latency := time.Since(start)
	result.Details = map[string]interface{}{"latency_ms": latency.Milliseconds()}

	switch {
	case err != nil:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "database ping failed"
	case latency > degradedLatency:
		result.Status = StatusDegraded
		result.Message = "database responding with high latency"
	default:
		result.Status = StatusHealthy
		result.Message = "database healthy"
	}
	return result
}

// AdapterChecker aggregates the per-domain adapter health probes.
// Adapters degrade to demo data on backing failures, so a sick adapter
// never makes the service unready.
type AdapterChecker struct {
	registry *adapters.Registry
	timeout  time.Duration
}

func NewAdapterChecker(registry *adapters.Registry) *AdapterChecker {
	return &AdapterChecker{registry: registry, timeout: 10 * time.Second}
}

func (a *AdapterChecker) Name() string           { return "adapters" }
func (a *AdapterChecker) IsCritical() bool       { return false }
func (a *AdapterChecker) Timeout() time.Duration { return a.timeout }

func (a *AdapterChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Component: "adapters"}

	statuses := a.registry.Health(ctx)
	healthy := 0
	details := make(map[string]interface{}, len(statuses))
	for domain, status := range statuses {
		details[domain] = status.Status
		if status.Healthy {
			healthy++
		}
	}
	result.Details = details

	switch {
	case len(statuses) == 0:
		result.Status = StatusUnhealthy
		result.Message = "no adapters registered"
	case healthy == len(statuses):
		result.Status = StatusHealthy
		result.Message = "all adapters healthy"
	default:
		result.Status = StatusDegraded
		result.Message = "some adapters degraded, demo data in use"
	}
	return result
}

// CheckFunc adapts a bare function into a Checker.
type CheckFunc struct {
	ComponentName string
	Critical      bool
	CheckTimeout  time.Duration
	Fn            func(ctx context.Context) CheckResult
}

func (c CheckFunc) Name() string                          { return c.ComponentName }
func (c CheckFunc) IsCritical() bool                      { return c.Critical }
func (c CheckFunc) Timeout() time.Duration                { return c.CheckTimeout }
func (c CheckFunc) Check(ctx context.Context) CheckResult { return c.Fn(ctx) }
