package contacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

type fakeStore struct {
	conversations map[uuid.UUID]*Conversation
	contacts      map[uuid.UUID]*Contact
	appended      []Message
	listStatus    string
	listLimit     int
	closeReason   string
}

func newFakeStore() *fakeStore {
	return &fakeStore{conversations: map[uuid.UUID]*Conversation{}, contacts: map[uuid.UUID]*Contact{}}
}

func (f *fakeStore) GetConversation(_ context.Context, id uuid.UUID) (*Conversation, error) {
	if c, ok := f.conversations[id]; ok {
		return c, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) GetContact(_ context.Context, id uuid.UUID) (*Contact, error) {
	if c, ok := f.contacts[id]; ok {
		return c, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) ListConversations(_ context.Context, contactID uuid.UUID, status string) ([]Conversation, error) {
	f.listStatus = status
	out := []Conversation{}
	for _, c := range f.conversations {
		if c.ContactID == contactID && (status == "" || c.Status == status) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) ListMessages(_ context.Context, conversationID uuid.UUID, limit, _ int) ([]Message, error) {
	f.listLimit = limit
	out := []Message{}
	for _, m := range f.appended {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) RecentMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	f.listLimit = limit
	out := []Message{}
	for _, m := range f.appended {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) CloseConversation(_ context.Context, id uuid.UUID, reason string) error {
	c, ok := f.conversations[id]
	if !ok || c.Status != ConversationOpen {
		return ErrNotFound
	}
	c.Status = ConversationClosed
	f.closeReason = reason
	return nil
}

func (f *fakeStore) LoadContext(_ context.Context, id uuid.UUID) (json.RawMessage, error) {
	c, ok := f.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Context, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, msg Message) (*Message, error) {
	msg.ID = uuid.New()
	f.appended = append(f.appended, msg)
	return &msg, nil
}

type fakeSender struct {
	to, body string
	err      error
}

func (s *fakeSender) SendText(_ context.Context, to, body string) (string, error) {
	s.to, s.body = to, body
	if s.err != nil {
		return "", s.err
	}
	return "wamid.out", nil
}

func seedConversation(store *fakeStore) *Conversation {
	contact := &Contact{ID: uuid.New(), ClinicID: uuid.New(), Phone: "56912345678"}
	conv := &Conversation{ID: uuid.New(), ClinicID: contact.ClinicID, ContactID: contact.ID, Channel: ChannelWhatsApp, Status: ConversationOpen}
	store.contacts[contact.ID] = contact
	store.conversations[conv.ID] = conv
	return conv
}

func routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/conversations/{conversationID}", h.ListConversationMessages)
	r.Get("/contacts/{contactID}/conversations", h.ListContactConversations)
	r.Get("/conversations/{conversationID}/recent", h.RecentConversationMessages)
	r.Get("/conversations/{conversationID}/context", h.ConversationContext)
	r.Post("/conversations/{conversationID}/close", h.Close)
	r.Post("/send", h.Send)
	return r
}

func TestSendDeliversAndStoresOutbound(t *testing.T) {
	store := newFakeStore()
	conv := seedConversation(store)
	sender := &fakeSender{}
	h := NewHandler(store, sender, logging.Discard())

	body, _ := json.Marshal(SendRequest{ConversationID: conv.ID, Content: " Hola, te esperamos ", Channel: "whatsapp"})
	rec := httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/send", bytes.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "56912345678", sender.to)
	assert.Equal(t, "Hola, te esperamos", sender.body)
	require.Len(t, store.appended, 1)
	assert.Equal(t, DirectionOutbound, store.appended[0].Direction)
	assert.Equal(t, MessageStatusSent, store.appended[0].Status)
	assert.Equal(t, "wamid.out", store.appended[0].ExternalMessageID)
}

func TestSendRecordsFailure(t *testing.T) {
	store := newFakeStore()
	conv := seedConversation(store)
	h := NewHandler(store, &fakeSender{err: errors.New("boom")}, logging.Discard())

	body, _ := json.Marshal(SendRequest{ConversationID: conv.ID, Content: "hola", Channel: "whatsapp"})
	rec := httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/send", bytes.NewReader(body)))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	require.Len(t, store.appended, 1)
	assert.Equal(t, MessageStatusFailed, store.appended[0].Status)
}

func TestSendValidation(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store, &fakeSender{}, logging.Discard())

	body, _ := json.Marshal(SendRequest{ConversationID: uuid.New(), Content: "", Channel: "whatsapp"})
	rec := httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/send", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ = json.Marshal(SendRequest{ConversationID: uuid.New(), Content: "hola", Channel: "whatsapp"})
	rec = httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/send", bytes.NewReader(body)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListContactConversationsFiltersStatus(t *testing.T) {
	store := newFakeStore()
	conv := seedConversation(store)
	h := NewHandler(store, &fakeSender{}, logging.Discard())

	rec := httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/contacts/"+conv.ContactID.String()+"/conversations?status=open", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "open", store.listStatus)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)

	rec = httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/contacts/"+conv.ContactID.String()+"/conversations?status=archived", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListConversationMessagesClampsLimit(t *testing.T) {
	store := newFakeStore()
	conv := seedConversation(store)
	h := NewHandler(store, &fakeSender{}, logging.Discard())

	rec := httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/"+conv.ID.String()+"?limit=500", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultListLimit, store.listLimit)

	rec = httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/"+conv.ID.String()+"?limit=20", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, store.listLimit)
}

func TestRecentConversationMessagesReturnsTail(t *testing.T) {
	store := newFakeStore()
	conv := seedConversation(store)
	for _, text := range []string{"uno", "dos", "tres"} {
		store.appended = append(store.appended, Message{ConversationID: conv.ID, Content: text})
	}
	h := NewHandler(store, &fakeSender{}, logging.Discard())

	rec := httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/"+conv.ID.String()+"/recent?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "dos", resp.Messages[0].Content)
	assert.Equal(t, "tres", resp.Messages[1].Content)

	rec = httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/"+conv.ID.String()+"/recent", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultRecentLimit, store.listLimit)
}

func TestConversationContext(t *testing.T) {
	store := newFakeStore()
	conv := seedConversation(store)
	conv.Context = json.RawMessage(`{"state":"awaiting_service"}`)
	h := NewHandler(store, &fakeSender{}, logging.Discard())

	rec := httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/"+conv.ID.String()+"/context", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"conversation_id":"`+conv.ID.String()+`","context":{"state":"awaiting_service"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/"+uuid.NewString()+"/context", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCloseConversationHandler(t *testing.T) {
	store := newFakeStore()
	conv := seedConversation(store)
	h := NewHandler(store, &fakeSender{}, logging.Discard())

	rec := httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/"+conv.ID.String()+"/close", bytes.NewReader([]byte(`{"reason":"resuelto"}`))))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, ConversationClosed, conv.Status)
	assert.Equal(t, "resuelto", store.closeReason)

	rec = httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/"+conv.ID.String()+"/close", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	other := seedConversation(store)
	rec = httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/"+other.ID.String()+"/close", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, defaultCloseReason, store.closeReason)
}
