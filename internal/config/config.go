package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FailurePolicy controls how a parallel phase handles adapter errors.
type FailurePolicy string

const (
	// FailFast surfaces the first adapter error as the phase's failure.
	FailFast FailurePolicy = "fail_fast"
	// PartialResults folds failed queries into per-domain error results
	// and lets aggregation proceed over the successes.
	PartialResults FailurePolicy = "partial_results"
)

// Config is the full service configuration loaded from copilot.yaml
// with COPILOT_* environment overrides.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Adapters     AdaptersConfig     `mapstructure:"adapters"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Actions      ActionsConfig      `mapstructure:"actions"`
	Policy       PolicyConfig       `mapstructure:"policy"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type ServerConfig struct {
	ListenAddr      string  `mapstructure:"listen_addr"`
	MetricsPort     int     `mapstructure:"metrics_port"`
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst  int     `mapstructure:"rate_limit_burst"`
	JWTSecret       string  `mapstructure:"jwt_secret"`
	// DevSkipAuth runs every request as a default admin operator.
	// Development only.
	DevSkipAuth bool `mapstructure:"dev_skip_auth"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN returns the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// AdaptersConfig maps domain names to backing service base URLs. A
// domain with no entry (or an empty URL) serves demo data only.
type AdaptersConfig struct {
	Backends map[string]string `mapstructure:"backends"`
}

type CacheConfig struct {
	ContextTTL time.Duration `mapstructure:"context_ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type OrchestratorConfig struct {
	AdapterTimeout time.Duration `mapstructure:"adapter_timeout"`
	FailurePolicy  FailurePolicy `mapstructure:"failure_policy"`
	StreamBuffer   int           `mapstructure:"stream_buffer"`
}

type ActionsConfig struct {
	RollbackCapacity    int           `mapstructure:"rollback_capacity"`
	RollbackTTL         time.Duration `mapstructure:"rollback_ttl"`
	HistoryLimit        int           `mapstructure:"history_limit"`
	PaymentAdminAmount  float64       `mapstructure:"payment_admin_amount"`
	ScheduleHorizonDays int           `mapstructure:"schedule_horizon_days"`
}

type PolicyConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	Mode       string `mapstructure:"mode"` // off, dry-run, enforce
	FailClosed bool   `mapstructure:"fail_closed"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8081")
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.rate_limit_per_sec", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "copilot")
	v.SetDefault("database.database", "copilot")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("cache.context_ttl", 30*time.Second)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.session_ttl", 24*time.Hour)
	v.SetDefault("orchestrator.adapter_timeout", 10*time.Second)
	v.SetDefault("orchestrator.failure_policy", string(FailFast))
	v.SetDefault("orchestrator.stream_buffer", 16)
	v.SetDefault("actions.rollback_capacity", 1000)
	v.SetDefault("actions.rollback_ttl", time.Hour)
	v.SetDefault("actions.history_limit", 5000)
	v.SetDefault("actions.payment_admin_amount", 1000)
	v.SetDefault("actions.schedule_horizon_days", 30)
	v.SetDefault("policy.enabled", false)
	v.SetDefault("policy.path", "./config/policies")
	v.SetDefault("policy.mode", "dry-run")
	v.SetDefault("policy.fail_closed", false)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "copilot-orchestrator")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration from path, falling back to CONFIG_PATH and
// then ./config/copilot.yaml. A missing file is not an error; defaults
// and environment overrides still apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "./config/copilot.yaml"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("COPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail at an awkward time.
func (c *Config) Validate() error {
	switch c.Orchestrator.FailurePolicy {
	case FailFast, PartialResults:
	default:
		return fmt.Errorf("invalid failure_policy %q", c.Orchestrator.FailurePolicy)
	}
	switch c.Policy.Mode {
	case "off", "dry-run", "enforce":
	default:
		return fmt.Errorf("invalid policy mode %q", c.Policy.Mode)
	}
	if c.Cache.ContextTTL <= 0 {
		return fmt.Errorf("cache.context_ttl must be positive")
	}
	if c.Orchestrator.AdapterTimeout <= 0 {
		return fmt.Errorf("orchestrator.adapter_timeout must be positive")
	}
	if c.Actions.RollbackCapacity <= 0 {
		return fmt.Errorf("actions.rollback_capacity must be positive")
	}
	return nil
}

// Watcher reloads configuration when the underlying file changes and
// hands the new snapshot to subscribers. Tunables that can change at
// runtime (failure policy, rate limits, policy mode) are read through
// the watcher rather than the startup Config.
type Watcher struct {
	mu      sync.RWMutex
	current *Config
	v       *viper.Viper
	logger  *zap.Logger
	onLoad  []func(*Config)
}

// NewWatcher starts watching the file cfg was loaded from.
func NewWatcher(path string, cfg *Config, logger *zap.Logger) *Watcher {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "./config/copilot.yaml"
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("COPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	w := &Watcher{current: cfg, v: v, logger: logger}

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := v.ReadInConfig(); err != nil {
			logger.Warn("Config reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		var next Config
		if err := v.Unmarshal(&next); err != nil {
			logger.Warn("Config reload unmarshal failed", zap.Error(err))
			return
		}
		if err := next.Validate(); err != nil {
			logger.Warn("Config reload rejected", zap.Error(err))
			return
		}
		w.mu.Lock()
		w.current = &next
		subs := append([]func(*Config){}, w.onLoad...)
		w.mu.Unlock()
		logger.Info("Configuration reloaded", zap.String("file", e.Name))
		for _, fn := range subs {
			fn(&next)
		}
	})
	v.WatchConfig()

	return w
}

// Current returns the latest valid configuration snapshot.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe registers a callback invoked after each successful reload.
func (w *Watcher) Subscribe(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onLoad = append(w.onLoad, fn)
}
