package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

const defaultCloseReason = "closed_by_staff"

type conversationStore interface {
	GetConversation(ctx context.Context, conversationID uuid.UUID) (*Conversation, error)
	GetContact(ctx context.Context, contactID uuid.UUID) (*Contact, error)
	ListConversations(ctx context.Context, contactID uuid.UUID, status string) ([]Conversation, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]Message, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
	AppendMessage(ctx context.Context, msg Message) (*Message, error)
	CloseConversation(ctx context.Context, conversationID uuid.UUID, reason string) error
	LoadContext(ctx context.Context, conversationID uuid.UUID) (json.RawMessage, error)
}

// TextSender delivers a staff-authored message and returns the provider id.
type TextSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Handler serves conversation history and manual sends.
type Handler struct {
	store  conversationStore
	sender TextSender
	logger *logging.Logger
}

// NewHandler creates a messages handler.
func NewHandler(store conversationStore, sender TextSender, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, sender: sender, logger: logger}
}

// ListMessagesResponse is returned by ListConversationMessages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// ListConversationMessages handles GET /conversations/{conversationID}.
func (h *Handler) ListConversationMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	limit, offset := defaultListLimit, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= maxListLimit {
			limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}

	msgs, err := h.store.ListMessages(r.Context(), conversationID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list messages", "error", err, "conversation_id", conversationID)
		http.Error(w, "failed to list messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ListMessagesResponse{Messages: msgs, Count: len(msgs), Limit: limit, Offset: offset})
}

// RecentConversationMessages handles GET /conversations/{conversationID}/recent:
// the last messages in chronological order.
func (h *Handler) RecentConversationMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= maxListLimit {
			limit = v
		}
	}

	msgs, err := h.store.RecentMessages(r.Context(), conversationID, limit)
	if err != nil {
		h.logger.Error("failed to load recent messages", "error", err, "conversation_id", conversationID)
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

// ConversationContext handles GET /conversations/{conversationID}/context.
func (h *Handler) ConversationContext(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	raw, err := h.store.LoadContext(r.Context(), conversationID)
	if err != nil {
		h.writeLookupError(w, "conversation", err)
		return
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": conversationID, "context": raw})
}

// CloseRequest is the body of a conversation close.
type CloseRequest struct {
	Reason string `json:"reason"`
}

// Close handles POST /conversations/{conversationID}/close. Closing an
// already closed conversation is a 404.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	var req CloseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultCloseReason
	}

	if err := h.store.CloseConversation(r.Context(), conversationID, reason); err != nil {
		h.writeLookupError(w, "open conversation", err)
		return
	}
	h.logger.Info("conversation closed", "conversation_id", conversationID, "reason", reason)
	w.WriteHeader(http.StatusNoContent)
}

// ListContactConversations handles GET /contacts/{contactID}/conversations.
func (h *Handler) ListContactConversations(w http.ResponseWriter, r *http.Request) {
	contactID, err := uuid.Parse(chi.URLParam(r, "contactID"))
	if err != nil {
		http.Error(w, "invalid contact id", http.StatusBadRequest)
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && status != ConversationOpen && status != ConversationClosed {
		http.Error(w, "status must be open or closed", http.StatusBadRequest)
		return
	}

	convs, err := h.store.ListConversations(r.Context(), contactID, status)
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err, "contact_id", contactID)
		http.Error(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs, "count": len(convs)})
}

// SendRequest is the body of a manual send.
type SendRequest struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	Content        string     `json:"content"`
	Channel        string     `json:"channel"`
	StaffID        *uuid.UUID `json:"staff_id,omitempty"`
}

// Send handles POST /send: deliver a staff message and record it.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.ConversationID == uuid.Nil || req.Content == "" || strings.TrimSpace(req.Channel) == "" {
		http.Error(w, "conversation_id, content and channel are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	conv, err := h.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		h.writeLookupError(w, "conversation", err)
		return
	}
	contact, err := h.store.GetContact(ctx, conv.ContactID)
	if err != nil {
		h.writeLookupError(w, "contact", err)
		return
	}

	msg := Message{
		ClinicID:       conv.ClinicID,
		ConversationID: conv.ID,
		ContactID:      contact.ID,
		StaffID:        req.StaffID,
		Direction:      DirectionOutbound,
		Channel:        req.Channel,
		Content:        req.Content,
		Status:         MessageStatusSent,
	}
	status := http.StatusCreated
	externalID, sendErr := h.sender.SendText(ctx, contact.Phone, req.Content)
	if sendErr != nil {
		h.logger.Warn("manual send failed", "error", sendErr, "conversation_id", conv.ID)
		msg.Status = MessageStatusFailed
		status = http.StatusBadGateway
	}
	msg.ExternalMessageID = externalID

	saved, err := h.store.AppendMessage(ctx, msg)
	if err != nil {
		h.logger.Error("failed to store manual message", "error", err, "conversation_id", conv.ID)
		http.Error(w, "failed to store message", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, saved)
}

func (h *Handler) writeLookupError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, what+" not found", http.StatusNotFound)
		return
	}
	h.logger.Error("lookup failed", "error", err, "entity", what)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
