package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfman30/medspa-booking-assistant/internal/app/bootstrap"
	"github.com/wolfman30/medspa-booking-assistant/internal/config"
	"github.com/wolfman30/medspa-booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking-assistant/internal/reminders"
	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg)
	if err != nil {
		logger.Error("reminder worker requires postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	whatsapp, err := bootstrap.BuildWhatsAppClient(cfg, logger)
	if err != nil {
		logger.Error("failed to create whatsapp client", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	dispatcher := bootstrap.BuildDispatcher(cfg, reminders.NewStore(pool), whatsapp, redisClient, metrics.New(nil), logger)
	runner := reminders.NewRunner(dispatcher, cfg.ReminderSweepInterval, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run(ctx)
	}()
	logger.Info("reminder worker started", "interval", cfg.ReminderSweepInterval.String())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("reminder worker shutting down")
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("reminder worker did not stop in time")
	}
}
