package bookings

import "errors"

var (
	// ErrDependency is returned when a required catalog row (service, clinic settings) is missing.
	ErrDependency = errors.New("bookings: required catalog row missing")
	// ErrInvalidBooking is returned when a booking request lacks required fields.
	ErrInvalidBooking = errors.New("bookings: clinic, contact, service, start and end are required")
	// ErrSlotUnavailable is returned when the interval overlaps a confirmed appointment at commit time.
	ErrSlotUnavailable = errors.New("bookings: slot no longer available")
)
