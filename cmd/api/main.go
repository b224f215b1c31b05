package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/medspa-booking-assistant/internal/api/router"
	"github.com/wolfman30/medspa-booking-assistant/internal/app/bootstrap"
	"github.com/wolfman30/medspa-booking-assistant/internal/bookings"
	appconfig "github.com/wolfman30/medspa-booking-assistant/internal/config"
	"github.com/wolfman30/medspa-booking-assistant/internal/contacts"
	httpmiddleware "github.com/wolfman30/medspa-booking-assistant/internal/http/middleware"
	"github.com/wolfman30/medspa-booking-assistant/internal/messaging"
	"github.com/wolfman30/medspa-booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking-assistant/internal/reminders"
	"github.com/wolfman30/medspa-booking-assistant/internal/reporting"
	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"timezone", cfg.Location().String(),
	)

	ctx := context.Background()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	reportingDB, err := bootstrap.OpenReportingDB(cfg)
	if err != nil {
		logger.Error("failed to open reporting database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = reportingDB.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required for webhook deduplication", "addr", cfg.RedisAddr)
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	whatsapp, err := bootstrap.BuildWhatsAppClient(cfg, logger)
	if err != nil {
		logger.Error("failed to configure whatsapp client", "error", err)
		os.Exit(1)
	}

	metricsHandler, appMetrics := setupMetrics()

	registry := contacts.NewRegistry(pool)
	tenants, err := bootstrap.BuildTenantResolver(cfg, registry, logger)
	if err != nil {
		logger.Error("failed to configure tenant routing", "error", err)
		os.Exit(1)
	}

	bookingRepo := bookings.NewRepository(pool)
	slotEngine := bootstrap.BuildSlotEngine(cfg, bookingRepo, logger)
	machine := bootstrap.BuildDialogue(cfg, slotEngine, bookingRepo, appMetrics, logger)

	inbound := messaging.NewService(
		messaging.NewRedisProcessedStore(redisClient, cfg.WebhookDedupeTTL),
		tenants,
		registry,
		machine,
		whatsapp,
		logger,
	).WithRecorder(appMetrics)

	dispatcher := bootstrap.BuildDispatcher(cfg, reminders.NewStore(pool), whatsapp, redisClient, appMetrics, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		WhatsAppWebhook:    messaging.NewHandler(cfg.WhatsAppVerifyToken, inbound, logger).WithLatencyObserver(appMetrics),
		Appointments:       bookings.NewHandler(slotEngine, logger),
		Messages:           contacts.NewHandler(registry, whatsapp, logger),
		Reporting:          reporting.NewHandler(reporting.NewRepository(reportingDB), logger),
		Scheduler:          reminders.NewHandler(dispatcher, logger),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookLimiter:     httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func setupMetrics() (http.Handler, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.New(reg)
}
