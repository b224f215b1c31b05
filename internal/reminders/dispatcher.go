package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

var remindersTracer = otel.Tracer("medspa.internal.reminders")

const maxRetryDelay = 24 * time.Hour

type reminderStore interface {
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]Reminder, error)
	LoadRecipient(ctx context.Context, appointmentID uuid.UUID) (*Recipient, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, lastErr string, nextAttemptAt time.Time, status string) error
}

// Sender delivers one reminder text.
type Sender interface {
	Deliver(ctx context.Context, to, body string) DeliveryResult
}

// Locker guards a sweep against concurrent sweeps in other processes.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// ResultRecorder observes per-reminder outcomes.
type ResultRecorder interface {
	RecordReminder(result string)
}

// Dispatcher sends due appointment reminders.
type Dispatcher struct {
	store       reminderStore
	sender      Sender
	lock        Locker
	recorder    ResultRecorder
	logger      *logging.Logger
	now         func() time.Time
	loc         *time.Location
	maxAttempts int
	baseDelay   time.Duration
	concurrency int
	batchSize   int
}

// NewDispatcher creates a dispatcher with default retry policy.
func NewDispatcher(store reminderStore, sender Sender, logger *logging.Logger) *Dispatcher {
	if store == nil || sender == nil {
		panic("reminders: store and sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		store:       store,
		sender:      sender,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		loc:         time.UTC,
		maxAttempts: 5,
		baseDelay:   5 * time.Minute,
		concurrency: 4,
		batchSize:   100,
	}
}

func (d *Dispatcher) WithLock(l Locker) *Dispatcher {
	d.lock = l
	return d
}

func (d *Dispatcher) WithRecorder(r ResultRecorder) *Dispatcher {
	d.recorder = r
	return d
}

func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	if now != nil {
		d.now = now
	}
	return d
}

func (d *Dispatcher) WithLocation(loc *time.Location) *Dispatcher {
	if loc != nil {
		d.loc = loc
	}
	return d
}

func (d *Dispatcher) WithMaxAttempts(n int) *Dispatcher {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

func (d *Dispatcher) WithBaseDelay(delay time.Duration) *Dispatcher {
	if delay > 0 {
		d.baseDelay = delay
	}
	return d
}

func (d *Dispatcher) WithConcurrency(n int) *Dispatcher {
	if n > 0 {
		d.concurrency = n
	}
	return d
}

func (d *Dispatcher) WithBatchSize(n int) *Dispatcher {
	if n > 0 {
		d.batchSize = n
	}
	return d
}

// RunDue performs one sweep and waits for every send before returning.
func (d *Dispatcher) RunDue(ctx context.Context) (Summary, error) {
	ctx, span := remindersTracer.Start(ctx, "reminders.run_due")
	defer span.End()

	if d.lock != nil {
		release, err := d.lock.Acquire(ctx)
		if err != nil {
			if !errors.Is(err, ErrSweepInProgress) {
				span.RecordError(err)
			}
			return Summary{}, err
		}
		defer release()
	}

	sweepStart := d.now()
	due, err := d.store.ListDue(ctx, sweepStart, d.batchSize)
	if err != nil {
		span.RecordError(err)
		return Summary{}, fmt.Errorf("reminders: run due: %w", err)
	}
	if len(due) == 0 {
		return Summary{}, nil
	}
	d.logger.Info("reminders: processing due reminders", "count", len(due))

	var (
		mu      sync.Mutex
		summary Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, r := range due {
		g.Go(func() error {
			outcome := d.processOne(gctx, r, sweepStart)
			mu.Lock()
			switch outcome {
			case StatusSent:
				summary.Sent++
			case StatusFailed:
				summary.Failed++
			default:
				summary.Skipped++
			}
			mu.Unlock()
			if d.recorder != nil {
				d.recorder.RecordReminder(outcome)
			}
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("medspa.reminders.sent", summary.Sent),
		attribute.Int("medspa.reminders.failed", summary.Failed),
		attribute.Int("medspa.reminders.skipped", summary.Skipped),
	)
	d.logger.Info("reminders: sweep complete", "sent", summary.Sent, "failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}

const outcomeSkipped = "skipped"

func (d *Dispatcher) processOne(ctx context.Context, r Reminder, sweepStart time.Time) string {
	rec, err := d.store.LoadRecipient(ctx, r.AppointmentID)
	if err != nil {
		d.logger.Error("reminders: load recipient failed", "reminder_id", r.ID, "error", err)
		return outcomeSkipped
	}
	if rec == nil || rec.ContactID == nil || rec.Phone == "" {
		d.logger.Warn("reminders: no reachable contact, skipping", "reminder_id", r.ID, "appointment_id", r.AppointmentID)
		return outcomeSkipped
	}

	result := d.sender.Deliver(ctx, rec.Phone, MessageTemplate(rec, d.loc))
	if result.Status == Delivered {
		ok, err := d.store.MarkSent(ctx, r.ID, sweepStart)
		if err != nil {
			d.logger.Error("reminders: mark sent failed", "reminder_id", r.ID, "error", err)
			return outcomeSkipped
		}
		if !ok {
			return outcomeSkipped
		}
		d.logger.Info("reminders: reminder sent", "reminder_id", r.ID, "clinic_id", r.ClinicID, "provider_message_id", result.ProviderMessageID)
		return StatusSent
	}

	attempts := r.Attempts + 1
	status := StatusScheduled
	if attempts >= d.maxAttempts {
		status = StatusFailed
	}
	lastErr := "delivery failed"
	if result.Err != nil {
		lastErr = result.Err.Error()
	}
	next := d.now().Add(d.nextDelay(r.Attempts))
	if err := d.store.RecordFailure(ctx, r.ID, lastErr, next, status); err != nil {
		d.logger.Error("reminders: record failure failed", "reminder_id", r.ID, "error", err)
	}
	d.logger.Warn("reminders: delivery failed", "reminder_id", r.ID, "attempts", attempts, "status", status, "error", lastErr)
	return StatusFailed
}

func (d *Dispatcher) nextDelay(attempts int) time.Duration {
	if attempts > 16 {
		return maxRetryDelay
	}
	delay := d.baseDelay * time.Duration(1<<attempts)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
