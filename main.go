package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chatflow/orchestrator/internal/activities"
	cfg "github.com/chatflow/orchestrator/internal/config"
	"github.com/chatflow/orchestrator/internal/db"
	"github.com/chatflow/orchestrator/internal/health"
	"github.com/chatflow/orchestrator/internal/httpapi"
	"github.com/chatflow/orchestrator/internal/policy"
	"github.com/chatflow/orchestrator/internal/registry"
	"github.com/chatflow/orchestrator/internal/streaming"
	"github.com/chatflow/orchestrator/internal/temporal"
	"github.com/chatflow/orchestrator/internal/tools"
	"github.com/chatflow/orchestrator/internal/tracing"
	"github.com/chatflow/orchestrator/internal/workflows"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := newLogger(config)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := tracing.Initialize(tracing.Config{
		Enabled:      config.Observability.Tracing.Enabled,
		ServiceName:  config.Observability.Tracing.ServiceName,
		OTLPEndpoint: config.Observability.Tracing.OTLPEndpoint,
	}, logger)
	if err != nil {
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	}

	// ------------------------------------------------------------------
	// Health and metrics come up first so probes answer while Temporal
	// is still being dialed.
	// ------------------------------------------------------------------
	hm := health.NewManager(logger)
	adminMux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(adminMux)
	adminServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", config.HTTP.Port),
		Handler:     adminMux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", config.HTTP.Port))
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	var metricsServer *http.Server
	if config.Observability.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", config.MetricsPort(2112)), Handler: metricsMux}
		go func() {
			logger.Info("Metrics server listening", zap.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	// Persistence is best-effort: chats still complete without a database.
	var store activities.Store
	dbStore, err := db.Open(ctx, db.Config{
		Driver:   config.Database.Driver,
		Host:     config.Database.Host,
		Port:     config.Database.Port,
		User:     config.Database.User,
		Password: config.Database.Password,
		Database: config.Database.Name,
		SSLMode:  config.Database.SSLMode,
		Path:     config.Database.Path,
	}, logger)
	if err != nil {
		logger.Warn("Database unavailable, conversations will not be persisted", zap.Error(err))
	} else {
		defer dbStore.Close()
		if err := dbStore.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		store = dbStore
		_ = hm.RegisterChecker(health.NewDatabaseHealthChecker(dbStore))
	}

	// Without Redis, notifications stay in-process.
	var rdb redis.UniversalClient
	if config.Redis.Addr != "" {
		rc := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		defer rc.Close()
		rdb = rc
		_ = hm.RegisterChecker(health.NewRedisHealthChecker(rc))
		logger.Info("Initialized streaming manager with Redis Streams", zap.String("addr", config.Redis.Addr))
	}
	events := streaming.NewManager(rdb, config.Redis.StreamMaxLen, logger)

	engine, err := policy.NewOPAEngine(&policy.Config{
		Enabled:     config.Policy.Enabled,
		Mode:        policy.ParseMode(config.Policy.Mode),
		Path:        config.Policy.Path,
		FailClosed:  config.Policy.FailClosed,
		Environment: config.Policy.Environment,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize policy engine", zap.Error(err))
	}

	// Hot reload of approval rules and .rego files.
	policyDir := ""
	if engine.IsEnabled() {
		policyDir = config.Policy.Path
	}
	watcher := cfg.NewWatcher(config.Approval.RulesFile, policyDir, logger)
	watcher.RegisterPolicyHandler(func() error {
		logger.Info("Reloading policy engine due to .rego file change")
		return engine.LoadPolicies()
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("Config watcher start failed", zap.Error(err))
	}
	defer watcher.Stop()

	tc, err := temporal.Dial(ctx, temporal.Options{
		HostPort:     config.Temporal.Host,
		Namespace:    config.Temporal.Namespace,
		CallTimeout:  config.Temporal.ClientTimeout,
		DialAttempts: config.Temporal.DialAttempts,
		Tracing:      config.Observability.Tracing.Enabled,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer tc.Close()
	_ = hm.RegisterChecker(health.NewTemporalHealthChecker(tc.SDK()))

	api := httpapi.NewServer(httpapi.Options{
		Engine:   tc,
		Events:   events,
		Rules:    watcher,
		HTTP:     config.HTTP,
		Approval: config.Approval,
		Logger:   logger,
	})
	api.RegisterRoutes(adminMux)
	logger.Info("Workflow API registered on admin HTTP server", zap.Int("port", config.HTTP.Port))

	var workers map[string]worker.Worker
	if config.Worker.Enabled {
		workers, err = startWorkers(tc, config, store, events, engine, logger)
		if err != nil {
			logger.Fatal("Failed to start workers", zap.Error(err))
		}
	}

	<-ctx.Done()
	logger.Info("Shutting down orchestrator")

	for queue, w := range workers {
		w.Stop()
		logger.Info("Temporal worker stopped", zap.String("queue", queue))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin HTTP server shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}
}

func startWorkers(tc *temporal.Client, config *cfg.Config, store activities.Store, events *streaming.Manager,
	engine policy.Engine, logger *zap.Logger) (map[string]worker.Worker, error) {
	catalog := tools.NewDefaultRegistry()
	acts := activities.New(activities.Config{
		WorkspaceRoot:     config.Tools.WorkspaceRoot,
		SimulateProviders: config.Tools.SimulateProviders,
		BashTimeout:       config.Tools.BashTimeout,
		Shell:             config.Tools.Shell,
		TokenLimit:        config.Tools.TokenLimit,
	}, activities.Deps{
		Logger:   logger,
		Notifier: events,
		Store:    store,
		Policy:   engine,
		Registry: catalog,
	})
	reg := registry.NewChatflowRegistry(workflows.New(catalog), acts, logger)

	var interceptors []interceptor.WorkerInterceptor
	if config.Observability.Tracing.Enabled {
		tracer, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
		if err != nil {
			return nil, fmt.Errorf("configure worker tracing: %w", err)
		}
		interceptors = append(interceptors, tracer)
	}

	workers, err := registry.NewWorkers(tc.SDK(), config, reg, interceptors, logger)
	if err != nil {
		return nil, err
	}
	for queue, w := range workers {
		if err := w.Start(); err != nil {
			for _, started := range workers {
				started.Stop()
			}
			return nil, fmt.Errorf("start worker %s: %w", queue, err)
		}
		logger.Info("Temporal worker started", zap.String("queue", queue))
	}
	return workers, nil
}

func newLogger(config *cfg.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if config.Observability.Logging.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(config.Observability.Logging.Level); err == nil {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		if lvl, err := zapcore.ParseLevel(env); err == nil {
			zc.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	return zc.Build()
}
