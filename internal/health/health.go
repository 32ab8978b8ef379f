// Package health runs liveness and readiness checks over the service's
// backing dependencies and exposes them on /healthz and /readyz.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status is the outcome of a single check.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", s.String())), nil
}

// CheckResult is one component's probe outcome.
type CheckResult struct {
	Component string                 `json:"component"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Timestamp time.Time              `json:"timestamp"`
	Critical  bool                   `json:"critical"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	// IsCritical marks checks whose failure makes the service not ready.
	IsCritical() bool
	Timeout() time.Duration
}

// Report is the full readiness picture.
type Report struct {
	Status     Status                 `json:"status"`
	Message    string                 `json:"message"`
	Ready      bool                   `json:"ready"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Manager owns the registered checkers and runs them concurrently.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	last     map[string]CheckResult
}

func NewManager() *Manager {
	return &Manager{
		checkers: make(map[string]Checker),
		last:     make(map[string]CheckResult),
	}
}

func (m *Manager) Register(checker Checker) error {
	name := checker.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}
	m.checkers[name] = checker
	return nil
}

// Run executes every registered check concurrently and builds the
// readiness report.
func (m *Manager) Run(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	report := Report{
		Components: make(map[string]CheckResult, len(checkers)),
		Timestamp:  time.Now().UTC(),
	}
	if len(checkers) == 0 {
		report.Status = StatusUnknown
		report.Message = "no health checks registered"
		return report
	}

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func(i int, checker Checker) {
			defer wg.Done()
			results[i] = runCheck(ctx, checker)
		}(i, checker)
	}
	wg.Wait()

	criticalFailures, degraded := 0, 0
	for _, r := range results {
		report.Components[r.Component] = r
		switch r.Status {
		case StatusUnhealthy:
			if r.Critical {
				criticalFailures++
			} else {
				degraded++
			}
		case StatusDegraded:
			degraded++
		}
	}

	m.mu.Lock()
	for _, r := range results {
		m.last[r.Component] = r
	}
	m.mu.Unlock()

	switch {
	case criticalFailures > 0:
		report.Status = StatusUnhealthy
		report.Message = fmt.Sprintf("%d critical component(s) failing", criticalFailures)
	case degraded > 0:
		report.Status = StatusDegraded
		report.Ready = true
		report.Message = fmt.Sprintf("%d component(s) degraded", degraded)
	default:
		report.Status = StatusHealthy
		report.Ready = true
		report.Message = fmt.Sprintf("all %d components healthy", len(results))
	}
	return report
}

// IsReady reports whether every critical dependency is up.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.Run(ctx).Ready
}

// LastResults returns the most recent results without probing again.
func (m *Manager) LastResults() map[string]CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]CheckResult, len(m.last))
	for name, r := range m.last {
		out[name] = r
	}
	return out
}

func runCheck(ctx context.Context, checker Checker) CheckResult {
	timeout := checker.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := checker.Check(checkCtx)
	result.Component = checker.Name()
	result.Critical = checker.IsCritical()
	result.Duration = time.Since(start)
	result.Timestamp = start.UTC()
	return result
}
