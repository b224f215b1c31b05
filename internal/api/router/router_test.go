package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking-assistant/internal/bookings"
	"github.com/wolfman30/medspa-booking-assistant/internal/contacts"
	httpmiddleware "github.com/wolfman30/medspa-booking-assistant/internal/http/middleware"
	"github.com/wolfman30/medspa-booking-assistant/internal/messaging"
	"github.com/wolfman30/medspa-booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking-assistant/internal/reminders"
	"github.com/wolfman30/medspa-booking-assistant/internal/reporting"
	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

type noopProcessor struct{ calls int }

func (p *noopProcessor) Process(context.Context, messaging.InboundMessage) error {
	p.calls++
	return nil
}

type fixedSweeper struct{}

func (fixedSweeper) RunDue(context.Context) (reminders.Summary, error) {
	return reminders.Summary{Sent: 2, Skipped: 1}, nil
}

type emptyStats struct{}

func (emptyStats) Stats(_ context.Context, q reporting.StatsQuery) (*reporting.Stats, error) {
	return &reporting.Stats{PeriodDays: q.Days, ByChannel: map[string]int{}, ByDay: map[string]int{}}, nil
}

type closedEngine struct{}

func (closedEngine) ComputeSlots(context.Context, uuid.UUID, uuid.UUID, time.Time) ([]bookings.Slot, error) {
	return []bookings.Slot{}, nil
}

func (closedEngine) BookAppointment(context.Context, bookings.BookingRequest) (*bookings.Appointment, error) {
	return nil, bookings.ErrSlotUnavailable
}

func (closedEngine) Location() *time.Location { return time.UTC }

type noConversations struct{}

func (noConversations) GetConversation(context.Context, uuid.UUID) (*contacts.Conversation, error) {
	return nil, contacts.ErrNotFound
}
func (noConversations) GetContact(context.Context, uuid.UUID) (*contacts.Contact, error) {
	return nil, contacts.ErrNotFound
}
func (noConversations) ListConversations(context.Context, uuid.UUID, string) ([]contacts.Conversation, error) {
	return []contacts.Conversation{}, nil
}
func (noConversations) ListMessages(context.Context, uuid.UUID, int, int) ([]contacts.Message, error) {
	return []contacts.Message{}, nil
}
func (noConversations) RecentMessages(context.Context, uuid.UUID, int) ([]contacts.Message, error) {
	return []contacts.Message{}, nil
}
func (noConversations) CloseConversation(context.Context, uuid.UUID, string) error {
	return contacts.ErrNotFound
}
func (noConversations) LoadContext(context.Context, uuid.UUID) (json.RawMessage, error) {
	return nil, contacts.ErrNotFound
}
func (noConversations) AppendMessage(_ context.Context, m contacts.Message) (*contacts.Message, error) {
	return &m, nil
}

type noSender struct{}

func (noSender) SendText(context.Context, string, string) (string, error) { return "", nil }

func newTestRouter(t *testing.T, proc *noopProcessor) http.Handler {
	t.Helper()
	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	return New(&Config{
		Logger:          logger,
		WhatsAppWebhook: messaging.NewHandler("verify-me", proc, logger).WithLatencyObserver(m),
		Appointments:    bookings.NewHandler(closedEngine{}, logger),
		Messages:        contacts.NewHandler(noConversations{}, noSender{}, logger),
		Reporting:       reporting.NewHandler(emptyStats{}, logger),
		Scheduler:       reminders.NewHandler(fixedSweeper{}, logger),
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		WebhookLimiter:  httpmiddleware.NewRateLimiter(100, 100),
	})
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoint(t *testing.T) {
	rec := serve(newTestRouter(t, &noopProcessor{}), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouterWebhookRoutes(t *testing.T) {
	proc := &noopProcessor{}
	h := newTestRouter(t, proc)

	rec := serve(h, http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Body.String())

	body := `{"entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"1"},"messages":[{"from":"569","id":"wamid.1","type":"text","text":{"body":"hola"}}]}}]}]}`
	rec = serve(h, http.MethodPost, "/webhooks/whatsapp", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, proc.calls)

	rec = serve(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "medspa_messaging_webhook_latency_seconds")
}

func TestRouterAPIRoutes(t *testing.T) {
	h := newTestRouter(t, &noopProcessor{})

	rec := serve(h, http.MethodPost, "/internal/scheduler/run", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sent":2,"failed":0,"skipped":1}`, rec.Body.String())

	rec = serve(h, http.MethodGet, "/api/messages/stats?days=14", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"period_days":14`)

	rec = serve(h, http.MethodGet, "/api/messages/conversations/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodGet, "/api/messages/conversations/"+uuid.NewString()+"/recent", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodGet, "/api/messages/conversations/"+uuid.NewString()+"/context", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodPost, "/api/messages/conversations/"+uuid.NewString()+"/close", `{"reason":"resolved"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodPost, "/api/messages/send", `{"conversation_id":"`+uuid.NewString()+`","content":"hola","channel":"whatsapp"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodGet, "/api/messages/contacts/"+uuid.NewString()+"/conversations", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	target := "/api/appointments/availability?clinic_id=" + uuid.NewString() + "&service_id=" + uuid.NewString() + "&date=2026-10-20"
	rec = serve(h, http.MethodGet, target, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterOmitsUnconfiguredRoutes(t *testing.T) {
	h := New(&Config{Logger: logging.Discard()})
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodPost, "/internal/scheduler/run", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health", "").Code)
}
