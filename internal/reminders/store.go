package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and transitions appointment_reminders.
type Store struct {
	db DB
}

// NewStore creates a reminder store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("reminders: pgx pool required")
	}
	return &Store{db: db}
}

// ListDue returns scheduled, unsent reminders due at asOf whose retry
// backoff (if any) has elapsed.
func (s *Store) ListDue(ctx context.Context, asOf time.Time, limit int) ([]Reminder, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, clinic_id, appointment_id, channel, scheduled_at, attempts
		FROM appointment_reminders
		WHERE status = 'scheduled'
		  AND sent_at IS NULL
		  AND scheduled_at <= $1
		  AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		ORDER BY scheduled_at ASC
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("reminders: list due: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.ClinicID, &r.AppointmentID, &r.Channel, &r.ScheduledAt, &r.Attempts); err != nil {
			return nil, fmt.Errorf("reminders: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminders: iterate: %w", err)
	}
	return out, nil
}

// LoadRecipient resolves the appointment's contact and service. It returns
// nil when the appointment itself is gone.
func (s *Store) LoadRecipient(ctx context.Context, appointmentID uuid.UUID) (*Recipient, error) {
	var rec Recipient
	err := s.db.QueryRow(ctx, `
		SELECT a.start_at, c.id, COALESCE(c.phone, ''), COALESCE(c.full_name, ''), COALESCE(sv.name, '')
		FROM appointments a
		LEFT JOIN contacts c ON c.id = a.contact_id
		LEFT JOIN services sv ON sv.id = a.service_id
		WHERE a.id = $1`, appointmentID,
	).Scan(&rec.StartAt, &rec.ContactID, &rec.Phone, &rec.Name, &rec.ServiceName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reminders: load recipient: %w", err)
	}
	return &rec, nil
}

// MarkSent transitions scheduled → sent exactly once. It reports false when
// another sweep already sent the reminder.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders
		SET status = 'sent', sent_at = $2, last_error = NULL, next_attempt_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'scheduled' AND sent_at IS NULL`, id, sentAt)
	if err != nil {
		return false, fmt.Errorf("reminders: mark sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordFailure counts a failed attempt and schedules the next one. status
// is scheduled while attempts remain, failed once they are exhausted.
func (s *Store) RecordFailure(ctx context.Context, id uuid.UUID, lastErr string, nextAttemptAt time.Time, status string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders
		SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3, status = $4, updated_at = now()
		WHERE id = $1 AND status = 'scheduled'`, id, lastErr, nextAttemptAt, status)
	if err != nil {
		return fmt.Errorf("reminders: record failure: %w", err)
	}
	return nil
}
