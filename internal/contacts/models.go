package contacts

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ChannelWhatsApp = "whatsapp"

	ContactStatusActive = "active"
	SourceWhatsApp      = "whatsapp"

	ConversationOpen   = "open"
	ConversationClosed = "closed"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	MessageStatusDelivered = "delivered"
	MessageStatusSent      = "sent"
	MessageStatusFailed    = "failed"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// Contact is a person who has written to a clinic.
type Contact struct {
	ID             uuid.UUID `json:"id"`
	ClinicID       uuid.UUID `json:"clinic_id"`
	Phone          string    `json:"phone"`
	FullName       string    `json:"full_name"`
	Source         string    `json:"source"`
	Status         string    `json:"status"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	// Created is true when ResolveContact inserted the row.
	Created bool `json:"-"`
}

// Conversation is a dialogue session for one contact on one channel.
type Conversation struct {
	ID            uuid.UUID       `json:"id"`
	ClinicID      uuid.UUID       `json:"clinic_id"`
	ContactID     uuid.UUID       `json:"contact_id"`
	Channel       string          `json:"channel"`
	Status        string          `json:"status"`
	Context       json.RawMessage `json:"context_data,omitempty"`
	MessageCount  int             `json:"message_count"`
	LastMessageAt time.Time       `json:"last_message_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Message is an immutable conversation turn.
type Message struct {
	ID                uuid.UUID  `json:"id"`
	ClinicID          uuid.UUID  `json:"clinic_id"`
	ConversationID    uuid.UUID  `json:"conversation_id"`
	ContactID         uuid.UUID  `json:"contact_id"`
	StaffID           *uuid.UUID `json:"staff_id,omitempty"`
	Direction         string     `json:"direction"`
	Channel           string     `json:"channel"`
	Content           string     `json:"content"`
	Status            string     `json:"status"`
	ExternalMessageID string     `json:"external_message_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (m Message) validate() error {
	if m.ClinicID == uuid.Nil || m.ConversationID == uuid.Nil {
		return ErrInvalidMessage
	}
	if m.Direction != DirectionInbound && m.Direction != DirectionOutbound {
		return ErrInvalidMessage
	}
	if strings.TrimSpace(m.Channel) == "" || m.Status == "" {
		return ErrInvalidMessage
	}
	return nil
}

// NormalizePhone keeps only the digits of a phone number, dropping spaces,
// hyphens and the leading plus sign.
func NormalizePhone(raw string) string {
	return strings.Join(phoneDigitsRe.FindAllString(raw, -1), "")
}

func placeholderName(phone string) string {
	last4 := phone
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	return "Cliente WhatsApp " + last4
}
