package bootstrap

import (
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-booking-assistant/internal/bookings"
	appconfig "github.com/wolfman30/medspa-booking-assistant/internal/config"
	"github.com/wolfman30/medspa-booking-assistant/internal/dialogue"
	"github.com/wolfman30/medspa-booking-assistant/internal/reminders"
	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

const sweepLockKey = "reminders:sweep:lock"

// BuildSlotEngine wires availability and booking from config.
func BuildSlotEngine(cfg *appconfig.Config, repo *bookings.Repository, logger *logging.Logger) *bookings.Engine {
	return bookings.NewEngine(repo, bookings.Options{
		Hours: bookings.Hours{
			Open:  cfg.BusinessOpenHour,
			Close: cfg.BusinessCloseHour,
			Step:  cfg.SlotStep,
		},
		ReminderLeadTime: cfg.ReminderLeadTime,
		Location:         cfg.Location(),
	}, logger)
}

// BuildDialogue wires the booking conversation with the default catalog.
func BuildDialogue(cfg *appconfig.Config, engine *bookings.Engine, repo *bookings.Repository, recorder dialogue.TurnRecorder, logger *logging.Logger) *dialogue.Machine {
	m := dialogue.NewMachine(engine, repo, dialogue.Config{Location: cfg.Location()}, logger)
	if recorder != nil {
		m.WithRecorder(recorder)
	}
	return m
}

// BuildDispatcher wires the reminder sweep. A nil Redis client disables the
// cross-process lock.
func BuildDispatcher(cfg *appconfig.Config, store *reminders.Store, sender reminders.Sender, redisClient *redis.Client, recorder reminders.ResultRecorder, logger *logging.Logger) *reminders.Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	d := reminders.NewDispatcher(store, sender, logger).
		WithLocation(cfg.Location()).
		WithMaxAttempts(cfg.ReminderMaxAttempts).
		WithBaseDelay(cfg.ReminderRetryBaseDelay).
		WithConcurrency(cfg.ReminderConcurrency).
		WithBatchSize(cfg.ReminderBatchSize)
	if redisClient != nil {
		d.WithLock(reminders.NewRedisLock(redisClient, sweepLockKey, 2*cfg.ReminderSweepInterval))
	} else {
		logger.Warn("redis unavailable; reminder sweeps are not locked across processes")
	}
	if recorder != nil {
		d.WithRecorder(recorder)
	}
	return d
}
