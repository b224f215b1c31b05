package reminders

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

type sweeper interface {
	RunDue(ctx context.Context) (Summary, error)
}

// Runner sweeps on a fixed interval until its context ends.
type Runner struct {
	dispatcher sweeper
	interval   time.Duration
	logger     *logging.Logger
}

// NewRunner creates a periodic sweep loop.
func NewRunner(d sweeper, interval time.Duration, logger *logging.Logger) *Runner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{dispatcher: d, interval: interval, logger: logger}
}

// Run blocks, sweeping once immediately and then on every tick.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	if _, err := r.dispatcher.RunDue(ctx); err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			r.logger.Debug("reminders: sweep skipped, lock held elsewhere")
			return
		}
		r.logger.Error("reminders: sweep failed", "error", err)
	}
}
