package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

var bookingsTracer = otel.Tracer("medspa.internal.bookings")

type slotStore interface {
	GetService(ctx context.Context, serviceID uuid.UUID) (*Service, error)
	ClinicSettings(ctx context.Context, clinicID uuid.UUID) (*ClinicSettings, error)
	HasOverlap(ctx context.Context, clinicID uuid.UUID, start, end time.Time) (bool, error)
	CreateAppointment(ctx context.Context, req BookingRequest, remindAt time.Time) (*Appointment, error)
}

// Hours is the daily booking window and the spacing between candidate starts.
type Hours struct {
	Open  int
	Close int
	Step  time.Duration
}

// DefaultHours is 09:00-19:00 with hourly starts.
func DefaultHours() Hours {
	return Hours{Open: 9, Close: 19, Step: time.Hour}
}

func (h Hours) normalized() Hours {
	def := DefaultHours()
	if h.Open < 0 || h.Open > 23 || h.Close <= h.Open || h.Close > 24 {
		h.Open, h.Close = def.Open, def.Close
	}
	if h.Step <= 0 {
		h.Step = def.Step
	}
	return h
}

// Options tunes the engine.
type Options struct {
	Hours Hours
	// ReminderLeadTime is subtracted from the appointment start to schedule its reminder.
	ReminderLeadTime time.Duration
	// Location is the clinic's wall-clock zone; dates are interpreted in it.
	Location *time.Location
}

// Engine computes availability and commits bookings.
type Engine struct {
	store    slotStore
	hours    Hours
	leadTime time.Duration
	loc      *time.Location
	logger   *logging.Logger
}

// NewEngine constructs the slot engine.
func NewEngine(store slotStore, opts Options, logger *logging.Logger) *Engine {
	if store == nil {
		panic("bookings: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	lead := opts.ReminderLeadTime
	if lead < 0 {
		lead = 0
	}
	return &Engine{
		store:    store,
		hours:    opts.Hours.normalized(),
		leadTime: lead,
		loc:      loc,
		logger:   logger,
	}
}

// Location returns the clinic time zone used for dates.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// ComputeSlots lists the free start times for a service on the given calendar
// date, earliest first. Only the date part of day is used.
func (e *Engine) ComputeSlots(ctx context.Context, clinicID, serviceID uuid.UUID, day time.Time) ([]Slot, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.compute_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("medspa.clinic_id", clinicID.String()),
		attribute.String("medspa.service_id", serviceID.String()),
		attribute.String("medspa.date", day.Format(time.DateOnly)),
	)

	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if svc.DurationMin <= 0 {
		err := fmt.Errorf("bookings: service %s has no duration: %w", serviceID, ErrDependency)
		span.RecordError(err)
		return nil, err
	}
	if _, err := e.store.ClinicSettings(ctx, clinicID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	y, m, d := day.Date()
	open := time.Date(y, m, d, e.hours.Open, 0, 0, 0, e.loc)
	closeAt := time.Date(y, m, d, 0, 0, 0, 0, e.loc).Add(time.Duration(e.hours.Close) * time.Hour)
	dur := svc.Duration()

	slots := make([]Slot, 0)
	for cur := open; !cur.Add(dur).After(closeAt); cur = cur.Add(e.hours.Step) {
		end := cur.Add(dur)
		overlap, err := e.store.HasOverlap(ctx, clinicID, cur, end)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if !overlap {
			slots = append(slots, Slot{StartAt: cur, EndAt: end})
		}
	}
	span.SetAttributes(attribute.Int("medspa.slot_count", len(slots)))
	return slots, nil
}

// BookAppointment commits a confirmed appointment and schedules its reminder.
func (e *Engine) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.book")
	defer span.End()

	if err := req.validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("medspa.clinic_id", req.ClinicID.String()),
		attribute.String("medspa.contact_id", req.ContactID.String()),
		attribute.String("medspa.service_id", req.ServiceID.String()),
	)

	remindAt := req.StartAt.Add(-e.leadTime)
	appt, err := e.store.CreateAppointment(ctx, req, remindAt)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	e.logger.Info("appointment confirmed",
		"clinic_id", req.ClinicID,
		"contact_id", req.ContactID,
		"appointment_id", appt.ID,
		"start_at", req.StartAt.Format(time.RFC3339),
		"remind_at", remindAt.Format(time.RFC3339),
	)
	return appt, nil
}
