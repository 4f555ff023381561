package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-pipeline/internal/api/router"
	"github.com/wolfman30/medspa-pipeline/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medspa-pipeline/internal/config"
	httpmiddleware "github.com/wolfman30/medspa-pipeline/internal/http/middleware"
	"github.com/wolfman30/medspa-pipeline/internal/leads"
	"github.com/wolfman30/medspa-pipeline/internal/livestats"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting medspa-pipeline API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// app holds the wired server and what must be released on exit.
type app struct {
	handler http.Handler
	store   *bootstrap.LeadStore
	redis   *redis.Client
	hub     *livestats.Hub
}

func (a *app) Close() {
	a.store.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	if cfg.StaffJWTSecret == "" {
		return nil, fmt.Errorf("STAFF_JWT_SECRET is required")
	}
	board, err := bootstrap.Board(cfg)
	if err != nil {
		return nil, err
	}

	store, err := bootstrap.BuildLeadStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	opts := store.HandlerOptions()
	assigner, err := bootstrap.BuildAssigner(cfg, redisClient, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	if assigner != nil {
		opts = append(opts, leads.WithAssigner(assigner))
	}
	exporter, err := bootstrap.BuildExporter(ctx, cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	if exporter != nil {
		opts = append(opts, leads.WithExporter(exporter))
	}

	var hub *livestats.Hub
	if redisClient != nil {
		opts = append(opts, leads.WithPublisher(livestats.NewPublisher(redisClient, logger)))
		hub = livestats.NewHub(cfg.StaffJWTSecret, redisClient, logger)
	} else {
		logger.Warn("redis unavailable; live stats disabled")
	}

	metricsHandler := setupMetrics(hub)
	routerCfg := &router.Config{
		Logger:         logger,
		LeadsHandler:   leads.NewHandler(store.Repo, board, logger, opts...),
		StatsHub:       hub,
		AuthSecret:     cfg.StaffJWTSecret,
		RateLimiter:    buildRateLimiter(cfg, redisClient),
		MetricsHandler: metricsHandler,
		ReadyCheck:     store.Ping,
	}

	return &app{
		handler: router.New(routerCfg),
		store:   store,
		redis:   redisClient,
		hub:     hub,
	}, nil
}

// buildRateLimiter prefers the shared redis window so replicas agree.
func buildRateLimiter(cfg *appconfig.Config, redisClient *redis.Client) httpmiddleware.Limiter {
	if cfg.RateLimitPerMinute <= 0 {
		return nil
	}
	if redisClient != nil {
		return httpmiddleware.NewRedisLimiter(redisClient, cfg.RateLimitPerMinute, time.Minute)
	}
	return httpmiddleware.NewMemoryLimiter(float64(cfg.RateLimitPerMinute)/60, cfg.RateLimitPerMinute)
}

func setupMetrics(hub *livestats.Hub) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if hub != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "medspa",
			Subsystem: "pipeline",
			Name:      "stats_subscribers",
			Help:      "Live stats sockets currently subscribed",
		}, func() float64 { return float64(hub.Sessions("")) }))
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
