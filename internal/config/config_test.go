package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Server.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.Cache.ContextTTL)
	assert.Equal(t, FailFast, cfg.Orchestrator.FailurePolicy)
	assert.Equal(t, "dry-run", cfg.Policy.Mode)
	assert.Equal(t, 1000, cfg.Actions.RollbackCapacity)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copilot.yaml")
	content := []byte(`
server:
  listen_addr: ":9999"
cache:
  context_ttl: 45s
orchestrator:
  failure_policy: partial_results
  adapter_timeout: 2s
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
	assert.Equal(t, 45*time.Second, cfg.Cache.ContextTTL)
	assert.Equal(t, PartialResults, cfg.Orchestrator.FailurePolicy)
	assert.Equal(t, 2*time.Second, cfg.Orchestrator.AdapterTimeout)
	// untouched keys keep defaults
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
}

func TestLoadRejectsInvalidFailurePolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("orchestrator:\n  failure_policy: sometimes\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure_policy")
}

func TestValidate(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	cfg.Policy.Mode = "maybe"
	assert.Error(t, cfg.Validate())

	cfg.Policy.Mode = "enforce"
	cfg.Cache.ContextTTL = 0
	assert.Error(t, cfg.Validate())

	cfg.Cache.ContextTTL = time.Second
	assert.NoError(t, cfg.Validate())
}
