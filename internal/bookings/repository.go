package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx pool so tests can substitute pgxmock.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// exclusion_violation, raised by the appointments overlap constraint.
const pgExclusionViolation = "23P01"

// Repository provides persistence helpers for services, appointments and reminders.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("bookings: pgx pool required")
	}
	return &Repository{db: db}
}

// GetService loads a service by id. Missing rows yield ErrDependency.
func (r *Repository) GetService(ctx context.Context, serviceID uuid.UUID) (*Service, error) {
	var svc Service
	err := r.db.QueryRow(ctx, `
		SELECT id, clinic_id, name, duration_min, price
		FROM services
		WHERE id = $1`, serviceID,
	).Scan(&svc.ID, &svc.ClinicID, &svc.Name, &svc.DurationMin, &svc.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bookings: service %s: %w", serviceID, ErrDependency)
		}
		return nil, fmt.Errorf("bookings: load service: %w", err)
	}
	return &svc, nil
}

// FindServiceByName returns the first clinic service whose name contains
// name, case-insensitively. Returns nil when nothing matches.
func (r *Repository) FindServiceByName(ctx context.Context, clinicID uuid.UUID, name string) (*Service, error) {
	var svc Service
	err := r.db.QueryRow(ctx, `
		SELECT id, clinic_id, name, duration_min, price
		FROM services
		WHERE clinic_id = $1 AND name ILIKE '%' || $2 || '%'
		ORDER BY created_at ASC
		LIMIT 1`, clinicID, name,
	).Scan(&svc.ID, &svc.ClinicID, &svc.Name, &svc.DurationMin, &svc.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("bookings: find service by name: %w", err)
	}
	return &svc, nil
}

// ClinicSettings loads the clinic's settings row. Missing rows yield ErrDependency.
func (r *Repository) ClinicSettings(ctx context.Context, clinicID uuid.UUID) (*ClinicSettings, error) {
	settings := ClinicSettings{ClinicID: clinicID}
	err := r.db.QueryRow(ctx, `
		SELECT business_hours, booking_window_days
		FROM clinic_settings
		WHERE clinic_id = $1`, clinicID,
	).Scan(&settings.BusinessHours, &settings.BookingWindowDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bookings: clinic settings %s: %w", clinicID, ErrDependency)
		}
		return nil, fmt.Errorf("bookings: load clinic settings: %w", err)
	}
	return &settings, nil
}

// HasOverlap asks the server-side overlap predicate whether [start, end)
// intersects a confirmed appointment of the clinic.
func (r *Repository) HasOverlap(ctx context.Context, clinicID uuid.UUID, start, end time.Time) (bool, error) {
	var overlap bool
	if err := r.db.QueryRow(ctx, `SELECT fn_check_overlap($1, $2, $3)`, clinicID, start, end).Scan(&overlap); err != nil {
		return false, fmt.Errorf("bookings: check overlap: %w", err)
	}
	return overlap, nil
}

// CreateAppointment inserts the confirmed appointment and its reminder in one
// transaction. The clinic is serialized with an advisory lock and the overlap
// is re-checked before the insert.
func (r *Repository) CreateAppointment(ctx context.Context, req BookingRequest, remindAt time.Time) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.ClinicID.String()); err != nil {
		return nil, fmt.Errorf("bookings: lock clinic: %w", err)
	}

	var overlap bool
	if err := tx.QueryRow(ctx, `SELECT fn_check_overlap($1, $2, $3)`, req.ClinicID, req.StartAt, req.EndAt).Scan(&overlap); err != nil {
		return nil, fmt.Errorf("bookings: recheck overlap: %w", err)
	}
	if overlap {
		return nil, ErrSlotUnavailable
	}

	appt := Appointment{
		ClinicID:  req.ClinicID,
		ContactID: req.ContactID,
		ServiceID: req.ServiceID,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		Status:    AppointmentStatusConfirmed,
		Source:    SourceWhatsApp,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (clinic_id, contact_id, service_id, start_at, end_at, status, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		appt.ClinicID, appt.ContactID, appt.ServiceID, appt.StartAt, appt.EndAt, appt.Status, appt.Source,
	).Scan(&appt.ID, &appt.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("bookings: insert appointment: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO appointment_reminders (clinic_id, appointment_id, channel, scheduled_at, status)
		VALUES ($1, $2, $3, $4, $5)`,
		appt.ClinicID, appt.ID, ChannelWhatsApp, remindAt, ReminderStatusScheduled,
	); err != nil {
		return nil, fmt.Errorf("bookings: insert reminder: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bookings: commit: %w", err)
	}
	return &appt, nil
}
