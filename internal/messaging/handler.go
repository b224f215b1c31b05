package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-booking-assistant/internal/contacts"
	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

const maxWebhookBody = 1 << 20

type inboundProcessor interface {
	Process(ctx context.Context, msg InboundMessage) error
}

type latencyObserver interface {
	ObserveWebhookLatency(seconds float64)
}

// Handler serves the WhatsApp webhook endpoints.
type Handler struct {
	verifyToken string
	processor   inboundProcessor
	latency     latencyObserver
	logger      *logging.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(verifyToken string, processor inboundProcessor, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("messaging: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{verifyToken: verifyToken, processor: processor, logger: logger}
}

// WithLatencyObserver records how long each inbound notification takes.
func (h *Handler) WithLatencyObserver(o latencyObserver) *Handler {
	h.latency = o
	return h
}

// Verify handles GET /webhooks/whatsapp subscription handshakes.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		h.logger.Warn("whatsapp webhook verification rejected", "mode", q.Get("hub.mode"))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

// Inbound handles POST /webhooks/whatsapp notifications. Once the payload
// parses it always answers 200 so the provider does not redeliver for
// failures on our side.
func (h *Handler) Inbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := messagingTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	payload, err := ParseWebhook(body)
	if err != nil {
		h.logger.Warn("invalid whatsapp payload", "error", err)
		span.RecordError(err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	msgs := payload.TextMessages()
	span.SetAttributes(attribute.Int("medspa.whatsapp.text_messages", len(msgs)))
	for _, msg := range msgs {
		if err := h.processor.Process(ctx, msg); err != nil {
			if errors.Is(err, contacts.ErrNoTenant) {
				h.logger.Warn("whatsapp message for unknown clinic", "phone_number_id", msg.PhoneNumberID, "message_id", msg.ExternalID)
				continue
			}
			span.RecordError(err)
			h.logger.Error("whatsapp message processing failed", "message_id", msg.ExternalID, "error", err)
		}
	}

	if h.latency != nil {
		h.latency.ObserveWebhookLatency(time.Since(start).Seconds())
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
