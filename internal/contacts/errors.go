package contacts

import "errors"

var (
	// ErrNoTenant is returned when no clinic can be resolved for an inbound message.
	ErrNoTenant = errors.New("contacts: no clinic resolved")

	// ErrInvalidPhone is returned when a phone number has no digits.
	ErrInvalidPhone = errors.New("contacts: invalid phone")

	// ErrInvalidMessage is returned when a message is missing required fields.
	ErrInvalidMessage = errors.New("contacts: invalid message")

	// ErrNotFound is returned when a contact or conversation does not exist.
	ErrNotFound = errors.New("contacts: not found")
)
