package reminders

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled = "scheduled"
	StatusSent      = "sent"
	StatusFailed    = "failed"
)

// Reminder is a due appointment_reminders row.
type Reminder struct {
	ID            uuid.UUID
	ClinicID      uuid.UUID
	AppointmentID uuid.UUID
	Channel       string
	ScheduledAt   time.Time
	Attempts      int
}

// Recipient is everything needed to address and render one reminder.
// ContactID is nil when the appointment's contact no longer exists.
type Recipient struct {
	ContactID   *uuid.UUID
	Phone       string
	Name        string
	ServiceName string
	StartAt     time.Time
}

// DeliveryStatus is the outcome of one send.
type DeliveryStatus string

const (
	Delivered DeliveryStatus = "delivered"
	Failed    DeliveryStatus = "failed"
)

// DeliveryResult is returned by a Sender instead of an error so the
// dispatcher always branches on the outcome.
type DeliveryResult struct {
	Status            DeliveryStatus
	ProviderMessageID string
	Err               error
}

// Summary counts the outcomes of one sweep. Sent is the processed count.
type Summary struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}
