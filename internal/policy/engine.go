// Package policy evaluates rego policies against proposed actions.
// It sits behind the built-in authorization rules as a deployable
// extension point: operators can ship new restrictions without a code
// change.
package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/config"
	"github.com/fieldline/copilot/internal/metrics"
	"github.com/fieldline/copilot/internal/models"
)

// Mode is the enforcement mode.
type Mode string

const (
	// ModeOff skips evaluation entirely.
	ModeOff Mode = "off"
	// ModeDryRun evaluates and logs denials but allows everything.
	ModeDryRun Mode = "dry-run"
	// ModeEnforce denies actions the policy rejects.
	ModeEnforce Mode = "enforce"
)

// ErrDeniedByPolicy marks an enforcement denial.
var ErrDeniedByPolicy = errors.New("denied by policy")

const decisionQuery = "data.copilot.actions.decision"

// Input is the document handed to rego for one action.
type Input struct {
	ActionID    string                 `json:"action_id"`
	UserID      string                 `json:"user_id"`
	Role        string                 `json:"role"`
	Permissions []string               `json:"permissions,omitempty"`
	Domain      string                 `json:"domain"`
	Operation   string                 `json:"operation"`
	ActionType  string                 `json:"action_type"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Decision is the policy verdict.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Engine compiles the rego policies once and evaluates them per
// action, with a small decision cache in front.
type Engine struct {
	cfg      config.PolicyConfig
	mode     Mode
	logger   *zap.Logger
	compiled *rego.PreparedEvalQuery
	enabled  bool
	cache    *decisionCache
}

func NewEngine(cfg config.PolicyConfig, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := Mode(cfg.Mode)
	if mode == "" {
		mode = ModeDryRun
	}

	e := &Engine{
		cfg:     cfg,
		mode:    mode,
		logger:  logger,
		enabled: cfg.Enabled && mode != ModeOff,
		cache:   newDecisionCache(1000, 5*time.Minute),
	}

	if e.enabled {
		if err := e.LoadPolicies(); err != nil {
			if cfg.FailClosed {
				return nil, fmt.Errorf("load policies in fail-closed mode: %w", err)
			}
			logger.Warn("Failed to load policies, policy checks disabled", zap.Error(err))
			e.enabled = false
		}
	}
	return e, nil
}

// LoadPolicies reads and compiles every .rego file under the configured
// directory.
func (e *Engine) LoadPolicies() error {
	modules := make(map[string]string)
	err := filepath.Walk(e.cfg.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".rego") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read policy %s: %w", path, err)
		}
		rel, _ := filepath.Rel(e.cfg.Path, path)
		modules[strings.TrimSuffix(rel, ".rego")] = string(content)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk policy directory: %w", err)
	}
	if len(modules) == 0 {
		if e.cfg.FailClosed {
			return fmt.Errorf("no policies found under %s", e.cfg.Path)
		}
		e.logger.Warn("No policy files found", zap.String("path", e.cfg.Path))
		return nil
	}

	opts := []func(*rego.Rego){rego.Query(decisionQuery)}
	for name, content := range modules {
		opts = append(opts, rego.Module(name, content))
	}
	compiled, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("compile policies: %w", err)
	}
	e.compiled = &compiled

	e.logger.Info("Policies loaded",
		zap.Int("modules", len(modules)),
		zap.String("mode", string(e.mode)),
	)
	return nil
}

// IsEnabled reports whether evaluations will actually run.
func (e *Engine) IsEnabled() bool { return e.enabled && e.compiled != nil }

// Mode returns the enforcement mode.
func (e *Engine) Mode() Mode { return e.mode }

// Evaluate runs the compiled policies against the input.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Decision, error) {
	fallback := &Decision{Allow: !e.cfg.FailClosed, Reason: "policy engine disabled or no policies loaded"}
	if !e.IsEnabled() {
		return fallback, nil
	}

	if d, ok := e.cache.get(input); ok {
		metrics.PolicyCacheHits.Inc()
		return d, nil
	}

	results, err := e.compiled.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		e.logger.Error("Policy evaluation failed", zap.Error(err))
		metrics.PolicyEvaluations.WithLabelValues("error", string(e.mode)).Inc()
		if e.cfg.FailClosed {
			return &Decision{Allow: false, Reason: "policy evaluation error"}, err
		}
		return fallback, nil
	}

	decision := parseResults(results)
	verdict := "deny"
	if decision.Allow {
		verdict = "allow"
	}
	metrics.PolicyEvaluations.WithLabelValues(verdict, string(e.mode)).Inc()

	e.cache.set(input, decision)
	return decision, nil
}

// Check implements the action orchestrator's policy hook. Dry-run
// logs what enforcement would have denied but lets it pass.
func (e *Engine) Check(ctx context.Context, action models.Action, user models.UserContext) error {
	decision, err := e.Evaluate(ctx, &Input{
		ActionID:    action.ID,
		UserID:      user.ID,
		Role:        user.Role,
		Permissions: user.Permissions,
		Domain:      action.Domain,
		Operation:   action.Operation,
		ActionType:  string(action.Type),
		Payload:     action.Payload,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil && e.cfg.FailClosed {
		return fmt.Errorf("%w: %s", ErrDeniedByPolicy, decision.Reason)
	}
	if decision.Allow {
		return nil
	}

	if e.mode == ModeDryRun {
		e.logger.Warn("Policy would deny action (dry-run)",
			zap.String("action_id", action.ID),
			zap.String("domain", action.Domain),
			zap.String("reason", decision.Reason),
		)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDeniedByPolicy, decision.Reason)
}

func parseResults(results rego.ResultSet) *Decision {
	decision := &Decision{Allow: false, Reason: "no matching policy rules"}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return decision
	}

	switch value := results[0].Expressions[0].Value.(type) {
	case map[string]interface{}:
		if allow, ok := value["allow"].(bool); ok {
			decision.Allow = allow
		}
		if reason, ok := value["reason"].(string); ok {
			decision.Reason = reason
		}
	case bool:
		decision.Allow = value
		if value {
			decision.Reason = "allowed by policy"
		} else {
			decision.Reason = "denied by policy"
		}
	}
	return decision
}
