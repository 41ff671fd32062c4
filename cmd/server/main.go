package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/pasfoto/api"
	"github.com/benvon/pasfoto/internal/config"
	"github.com/benvon/pasfoto/internal/database"
	"github.com/benvon/pasfoto/internal/handlers"
	"github.com/benvon/pasfoto/internal/logger"
	"github.com/benvon/pasfoto/internal/ratelimit"
	"github.com/benvon/pasfoto/internal/storage"
	"github.com/benvon/pasfoto/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	metricsNamespace   = "pasfoto"
	dbConnectMaxWait   = 2 * time.Minute
	shutdownTimeout    = 30 * time.Second
	telemetryFlushWait = 5 * time.Second
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(cfg.IsDevelopment(), debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	if err := cfg.Validate(); err != nil {
		zapLogger.Fatal("invalid_configuration", zap.Error(err))
	}

	zapLogger.Info("starting_server",
		zap.String("app_env", cfg.AppEnv),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("branch_id", cfg.BranchID),
		zap.Int("ratelimit_max_requests", cfg.RateLimit.MaxRequests),
		zap.Duration("ratelimit_window", cfg.RateLimit.Window),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracing := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), telemetry.Config{
				ServiceName: telemetry.ServiceName,
				Environment: cfg.AppEnv,
				Endpoint:    cfg.OTELEndpoint,
				Insecure:    cfg.IsDevelopment(),
			})
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracing = true
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), telemetryFlushWait)
					defer cancel()
					if err := telemetry.Shutdown(ctx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), dbConnectMaxWait)
	db, err := database.Connect(connectCtx, cfg.DatabaseURL, dbConnectMaxWait, zapLogger)
	connectCancel()
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	store, err := storage.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, cfg.Supabase.Bucket)
	if err != nil {
		zapLogger.Fatal("failed_to_create_storage_client", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rateMetrics := ratelimit.NewMetricsCollector(metricsNamespace)
	rateMetrics.MustRegister(registry)

	limiter, err := ratelimit.Build(ratelimit.Settings{
		Policy:     ratelimit.Policy{MaxRequests: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window},
		RedisURL:   cfg.RateLimit.RedisURL,
		RedisToken: cfg.RateLimit.RedisToken,
		Driver:     cfg.RateLimit.DurableDriver,
		Timeout:    cfg.RateLimit.DurableTimeout,
	}, zapLogger, ratelimit.WithMetrics(rateMetrics))
	if err != nil {
		zapLogger.Fatal("failed_to_build_rate_limiter", zap.Error(err))
	}
	defer func() {
		if err := limiter.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rate_limit_store", zap.Error(err))
		}
	}()
	zapLogger.Info("rate_limiter_ready", zap.String("backend", limiter.Backend()))

	// The memory backend also serves durable fallbacks, so it is swept either way
	sweeper, err := ratelimit.NewSweeper(limiter.Memory(), cfg.RateLimit.SweepInterval, zapLogger,
		ratelimit.WithSweeperMetrics(rateMetrics))
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_sweeper", zap.Error(err))
	}

	openAPIHandler, err := handlers.NewOpenAPIHandler(api.OpenAPIYAML)
	if err != nil {
		zapLogger.Fatal("failed_to_load_openapi_document", zap.Error(err))
	}

	r := newRouter(routerDeps{
		log:         zapLogger,
		frontendURL: cfg.FrontendURL,
		enableHSTS:  cfg.EnableHSTS,
		tracing:     tracing,
		limiter:     limiter,
		uploads:     handlers.NewUploadHandler(store, database.NewOrderRepository(db), cfg.BranchID, zapLogger),
		health:      handlers.NewHealthChecker(db, limiter.Store(), limiter.Backend(), zapLogger),
		openAPI:     openAPIHandler,
		metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      150 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go func() {
		if err := sweeper.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("rate_limit_sweeper_stopped_with_error", zap.Error(err))
		}
	}()

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	zapLogger.Info("server_exited")
}
