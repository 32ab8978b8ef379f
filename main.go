package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fieldline/copilot/internal/actions"
	"github.com/fieldline/copilot/internal/adapters"
	"github.com/fieldline/copilot/internal/adapters/customers"
	"github.com/fieldline/copilot/internal/adapters/dispatch"
	"github.com/fieldline/copilot/internal/adapters/schedule"
	"github.com/fieldline/copilot/internal/adapters/search"
	"github.com/fieldline/copilot/internal/adapters/tickets"
	"github.com/fieldline/copilot/internal/audit"
	"github.com/fieldline/copilot/internal/auth"
	"github.com/fieldline/copilot/internal/config"
	"github.com/fieldline/copilot/internal/contextmgr"
	"github.com/fieldline/copilot/internal/health"
	"github.com/fieldline/copilot/internal/httpapi"
	"github.com/fieldline/copilot/internal/nlp"
	"github.com/fieldline/copilot/internal/orchestrator"
	"github.com/fieldline/copilot/internal/policy"
	"github.com/fieldline/copilot/internal/session"
	"github.com/fieldline/copilot/internal/streaming"
	"github.com/fieldline/copilot/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to copilot.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Fatal("Service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, configPath string, logger *zap.Logger) error {
	ctx := context.Background()

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}

	watcher := config.NewWatcher(configPath, cfg, logger)

	sessions, err := session.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Cache.SessionTTL, logger)
	if err != nil {
		return fmt.Errorf("connect session store: %w", err)
	}
	defer sessions.Close()

	contexts := contextmgr.NewManager(sessions, cfg.Cache.ContextTTL, cfg.Cache.MaxEntries, logger)

	processor, err := nlp.NewProcessor(logger)
	if err != nil {
		return fmt.Errorf("load nlp patterns: %w", err)
	}

	registry := adapters.NewRegistry(logger)
	if err := registerAdapters(registry, cfg.Adapters, cfg.Orchestrator.AdapterTimeout, logger); err != nil {
		return err
	}

	var sink audit.Sink
	var auditWriter *audit.Writer
	if cfg.Database.Enabled {
		db, err := sqlx.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		auditWriter = audit.NewWriter(db, 256, logger)
		sink = auditWriter
		defer auditWriter.Close()
	} else {
		logger.Warn("Audit database disabled, action audit records are discarded")
		sink = audit.NopSink{}
	}

	policyEngine, err := policy.NewEngine(cfg.Policy, logger)
	if err != nil {
		return fmt.Errorf("initialize policy engine: %w", err)
	}
	var policyChecker actions.PolicyChecker
	if policyEngine.IsEnabled() {
		policyChecker = policyEngine
	}

	queries := orchestrator.New(processor, registry, cfg.Orchestrator, logger)
	actionOrch := actions.NewOrchestrator(registry, cfg.Actions, policyChecker, sink, logger)
	streams := streaming.NewManager(256)

	healthMgr := health.NewManager()
	if err := healthMgr.Register(health.NewRedisChecker(sessions.Redis())); err != nil {
		return err
	}
	if auditWriter != nil {
		if err := healthMgr.Register(health.NewDatabaseChecker(auditWriter.DB())); err != nil {
			return err
		}
	}
	if err := healthMgr.Register(health.NewAdapterChecker(registry)); err != nil {
		return err
	}

	jwtManager := auth.NewJWTManager(cfg.Server.JWTSecret, 12*time.Hour)
	if cfg.Server.DevSkipAuth {
		logger.Warn("Authentication disabled, all requests run as a development admin")
	}
	authmw := auth.NewMiddleware(jwtManager, cfg.Server.DevSkipAuth, logger)

	api := httpapi.NewServer(
		queries,
		actionOrch,
		contexts,
		streams,
		authmw,
		health.NewHandler(healthMgr, logger),
		cfg.Server,
		logger,
	)

	watcher.Subscribe(func(next *config.Config) {
		api.ApplyConfig(next.Server)
	})

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      api.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses manage their own lifetime
		IdleTimeout:  120 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP API listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("Metrics listening", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics shutdown failed", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Error("Tracing shutdown failed", zap.Error(err))
	}
	return nil
}

// registerAdapters wires every business domain. Domains without a
// configured backend run on demo data.
func registerAdapters(registry *adapters.Registry, cfg config.AdaptersConfig, timeout time.Duration, logger *zap.Logger) error {
	client := func(domain string) *adapters.BackingClient {
		return adapters.NewBackingClient(domain, cfg.Backends[domain], timeout, logger)
	}
	all := []adapters.Adapter{
		customers.New(client("customers"), logger),
		tickets.New(client("tickets"), logger),
		dispatch.New(client("dispatch"), logger),
		schedule.New(client("schedule"), logger),
		search.New(client("search"), logger),
	}
	for _, a := range all {
		if err := registry.Register(a); err != nil {
			return fmt.Errorf("register %s adapter: %w", a.Domain(), err)
		}
	}
	return nil
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
