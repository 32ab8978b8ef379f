package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/config"
	"github.com/fieldline/copilot/internal/models"
)

const testPolicy = `package copilot.actions

deny[reason] {
	contains(input.operation, "delete")
	input.role != "admin"
	reason := "delete operations require the admin role"
}

decision = {"allow": false, "reason": concat("; ", deny)} {
	count(deny) > 0
}

decision = {"allow": true, "reason": "no restriction matched"} {
	count(deny) == 0
}
`

func writePolicyDir(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "actions.rego"), []byte(content), 0o644))
	return dir
}

func newTestEngine(t *testing.T, cfg config.PolicyConfig) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg, zap.NewNop())
	require.NoError(t, err)
	return engine
}

func TestEvaluateAllowAndDeny(t *testing.T) {
	engine := newTestEngine(t, config.PolicyConfig{
		Enabled: true,
		Path:    writePolicyDir(t, testPolicy),
		Mode:    "enforce",
	})
	require.True(t, engine.IsEnabled())

	decision, err := engine.Evaluate(context.Background(), &Input{
		UserID:    "u1",
		Role:      "operator",
		Domain:    "tickets",
		Operation: "create ticket",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allow)

	decision, err = engine.Evaluate(context.Background(), &Input{
		UserID:    "u1",
		Role:      "operator",
		Domain:    "tickets",
		Operation: "delete ticket",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allow)
	assert.Contains(t, decision.Reason, "admin role")
}

func TestCheckEnforceDenies(t *testing.T) {
	engine := newTestEngine(t, config.PolicyConfig{
		Enabled: true,
		Path:    writePolicyDir(t, testPolicy),
		Mode:    "enforce",
	})

	action := models.Action{ID: "a1", Domain: "tickets", Operation: "delete ticket"}
	user := models.UserContext{ID: "u1", Role: "operator"}

	err := engine.Check(context.Background(), action, user)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeniedByPolicy)
}

func TestCheckDryRunAllowsDeniedAction(t *testing.T) {
	engine := newTestEngine(t, config.PolicyConfig{
		Enabled: true,
		Path:    writePolicyDir(t, testPolicy),
		Mode:    "dry-run",
	})

	action := models.Action{ID: "a1", Domain: "tickets", Operation: "delete ticket"}
	user := models.UserContext{ID: "u1", Role: "operator"}

	assert.NoError(t, engine.Check(context.Background(), action, user))
}

func TestDisabledEngineAllowsEverything(t *testing.T) {
	engine := newTestEngine(t, config.PolicyConfig{Enabled: false})
	require.False(t, engine.IsEnabled())

	decision, err := engine.Evaluate(context.Background(), &Input{Role: "operator", Operation: "delete ticket"})
	require.NoError(t, err)
	assert.True(t, decision.Allow)
}

func TestFailClosedRequiresPolicies(t *testing.T) {
	_, err := NewEngine(config.PolicyConfig{
		Enabled:    true,
		Path:       t.TempDir(),
		Mode:       "enforce",
		FailClosed: true,
	}, zap.NewNop())
	require.Error(t, err)
}

func TestMissingPoliciesFailOpen(t *testing.T) {
	engine := newTestEngine(t, config.PolicyConfig{
		Enabled: true,
		Path:    t.TempDir(),
		Mode:    "enforce",
	})
	assert.False(t, engine.IsEnabled())

	decision, err := engine.Evaluate(context.Background(), &Input{Role: "operator", Operation: "delete ticket"})
	require.NoError(t, err)
	assert.True(t, decision.Allow)
}

func TestDecisionCache(t *testing.T) {
	cache := newDecisionCache(2, time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	a := &Input{UserID: "u1", Role: "operator", Domain: "tickets", Operation: "create"}
	b := &Input{UserID: "u1", Role: "operator", Domain: "tickets", Operation: "delete"}

	cache.set(a, &Decision{Allow: true})
	got, ok := cache.get(a)
	require.True(t, ok)
	assert.True(t, got.Allow)

	_, ok = cache.get(b)
	assert.False(t, ok)

	// Expired entries are dropped on access.
	cache.set(b, &Decision{Allow: false})
	now = now.Add(2 * time.Minute)
	_, ok = cache.get(b)
	assert.False(t, ok)
}

func TestDecisionCacheEviction(t *testing.T) {
	cache := newDecisionCache(2, time.Minute)

	first := &Input{UserID: "u1", Operation: "a"}
	cache.set(first, &Decision{Allow: true})
	cache.set(&Input{UserID: "u2", Operation: "b"}, &Decision{Allow: true})
	cache.set(&Input{UserID: "u3", Operation: "c"}, &Decision{Allow: true})

	_, ok := cache.get(first)
	assert.False(t, ok)
	assert.Equal(t, 2, cache.order.Len())
}

func TestEvaluateCachesDecisions(t *testing.T) {
	engine := newTestEngine(t, config.PolicyConfig{
		Enabled: true,
		Path:    writePolicyDir(t, testPolicy),
		Mode:    "enforce",
	})

	input := &Input{UserID: "u1", Role: "operator", Domain: "tickets", Operation: "delete ticket"}
	first, err := engine.Evaluate(context.Background(), input)
	require.NoError(t, err)

	cached, ok := engine.cache.get(input)
	require.True(t, ok)
	assert.Equal(t, first, cached)
}
