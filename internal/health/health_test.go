package health

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/circuitbreaker"
)

func staticChecker(name string, status Status, critical bool) CheckFunc {
	return CheckFunc{
		ComponentName: name,
		Critical:      critical,
		CheckTimeout:  time.Second,
		Fn: func(ctx context.Context) CheckResult {
			return CheckResult{Status: status}
		},
	}
}

func TestRunAllHealthy(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(staticChecker("redis", StatusHealthy, true)))
	require.NoError(t, m.Register(staticChecker("database", StatusHealthy, false)))

	report := m.Run(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.True(t, report.Ready)
	assert.Len(t, report.Components, 2)
	assert.True(t, report.Components["redis"].Critical)
}

func TestCriticalFailureNotReady(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(staticChecker("redis", StatusUnhealthy, true)))
	require.NoError(t, m.Register(staticChecker("database", StatusHealthy, false)))

	report := m.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.False(t, report.Ready)
}

func TestNonCriticalFailureDegrades(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(staticChecker("redis", StatusHealthy, true)))
	require.NoError(t, m.Register(staticChecker("database", StatusUnhealthy, false)))

	report := m.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.True(t, report.Ready)
}

func TestNoCheckersUnknown(t *testing.T) {
	report := NewManager().Run(context.Background())
	assert.Equal(t, StatusUnknown, report.Status)
	assert.False(t, report.Ready)
}

func TestDuplicateRegistration(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(staticChecker("redis", StatusHealthy, true)))
	assert.Error(t, m.Register(staticChecker("redis", StatusHealthy, true)))
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewRedisChecker(circuitbreaker.NewRedisWrapper(client, zap.NewNop()))
	result := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)

	mr.Close()
	result = checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
}

func TestHandlerReadiness(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(staticChecker("redis", StatusUnhealthy, true)))
	handler := NewHandler(m, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Readiness(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, 503, rec.Code)
	assert.Contains(t, rec.Body.String(), "critical")

	rec = httptest.NewRecorder()
	handler.Liveness(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, rec.Code)
}
