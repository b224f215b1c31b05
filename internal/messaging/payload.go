package messaging

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WebhookPayload is the Cloud API change notification envelope.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		From      string `json:"from"`
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Text      *struct {
			Body string `json:"body"`
		} `json:"text,omitempty"`
	} `json:"messages"`
}

// InboundMessage is one text message received from a patient.
type InboundMessage struct {
	ExternalID    string
	From          string
	PhoneNumberID string
	ProfileName   string
	Text          string
	ReceivedAt    time.Time
}

// ParseWebhook decodes a Cloud API payload.
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("messaging: decode webhook: %w", err)
	}
	return &p, nil
}

// TextMessages flattens the payload into inbound text messages. Status
// callbacks and non-text message types are dropped.
func (p *WebhookPayload) TextMessages() []InboundMessage {
	var out []InboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			names := make(map[string]string, len(v.Contacts))
			for _, c := range v.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range v.Messages {
				if m.Type != "text" || m.Text == nil || strings.TrimSpace(m.Text.Body) == "" {
					continue
				}
				out = append(out, InboundMessage{
					ExternalID:    m.ID,
					From:          m.From,
					PhoneNumberID: v.Metadata.PhoneNumberID,
					ProfileName:   names[m.From],
					Text:          m.Text.Body,
					ReceivedAt:    parseUnix(m.Timestamp),
				})
			}
		}
	}
	return out
}

func parseUnix(raw string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
