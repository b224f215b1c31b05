package bookings

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	AppointmentStatusConfirmed = "confirmed"
	SourceWhatsApp             = "whatsapp"
	ReminderStatusScheduled    = "scheduled"
	ChannelWhatsApp            = "whatsapp"
)

// Service is a catalog row; read-only from this package's perspective.
type Service struct {
	ID          uuid.UUID `json:"id"`
	ClinicID    uuid.UUID `json:"clinic_id"`
	Name        string    `json:"name"`
	DurationMin int       `json:"duration_min"`
	Price       string    `json:"price"`
}

// Duration returns the service length.
func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMin) * time.Minute
}

// ClinicSettings mirrors clinic_settings. BusinessHours is loaded but slot
// generation uses the configured Hours window.
type ClinicSettings struct {
	ClinicID          uuid.UUID       `json:"clinic_id"`
	BusinessHours     json.RawMessage `json:"business_hours"`
	BookingWindowDays int             `json:"booking_window_days"`
}

// Slot is a derived, never-persisted candidate interval.
type Slot struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// Appointment is a confirmed booking.
type Appointment struct {
	ID        uuid.UUID `json:"id"`
	ClinicID  uuid.UUID `json:"clinic_id"`
	ContactID uuid.UUID `json:"contact_id"`
	ServiceID uuid.UUID `json:"service_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// BookingRequest carries every field bookAppointment requires.
type BookingRequest struct {
	ClinicID  uuid.UUID `json:"clinic_id"`
	ContactID uuid.UUID `json:"contact_id"`
	ServiceID uuid.UUID `json:"service_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
}

func (r BookingRequest) validate() error {
	if r.ClinicID == uuid.Nil || r.ContactID == uuid.Nil || r.ServiceID == uuid.Nil {
		return ErrInvalidBooking
	}
	if r.StartAt.IsZero() || r.EndAt.IsZero() || !r.EndAt.After(r.StartAt) {
		return ErrInvalidBooking
	}
	return nil
}
