package reminders

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

type failure struct {
	lastErr string
	next    time.Time
	status  string
}

type memStore struct {
	mu         sync.Mutex
	due        []Reminder
	recipients map[uuid.UUID]*Recipient
	sent       map[uuid.UUID]time.Time
	failures   map[uuid.UUID]failure
	listAsOf   time.Time
	listErr    error
}

func newMemStore() *memStore {
	return &memStore{recipients: map[uuid.UUID]*Recipient{}, sent: map[uuid.UUID]time.Time{}, failures: map[uuid.UUID]failure{}}
}

func (m *memStore) ListDue(_ context.Context, asOf time.Time, limit int) ([]Reminder, error) {
	m.listAsOf = asOf
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := m.due
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) LoadRecipient(_ context.Context, appointmentID uuid.UUID) (*Recipient, error) {
	return m.recipients[appointmentID], nil
}

func (m *memStore) MarkSent(_ context.Context, id uuid.UUID, sentAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sent[id]; ok {
		return false, nil
	}
	m.sent[id] = sentAt
	return true, nil
}

func (m *memStore) RecordFailure(_ context.Context, id uuid.UUID, lastErr string, next time.Time, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = failure{lastErr: lastErr, next: next, status: status}
	return nil
}

func (m *memStore) addDue(phone string, attempts int) Reminder {
	contactID := uuid.New()
	r := Reminder{ID: uuid.New(), ClinicID: uuid.New(), AppointmentID: uuid.New(), Channel: "whatsapp", Attempts: attempts}
	m.due = append(m.due, r)
	m.recipients[r.AppointmentID] = &Recipient{
		ContactID: &contactID, Phone: phone, ServiceName: "Botox Facial",
		StartAt: time.Date(2026, 10, 20, 13, 0, 0, 0, time.UTC),
	}
	return r
}

type scriptedSender struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (s *scriptedSender) Deliver(_ context.Context, to, _ string) DeliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, to)
	if s.fail[to] {
		return DeliveryResult{Status: Failed, Err: errors.New("provider 503")}
	}
	return DeliveryResult{Status: Delivered, ProviderMessageID: "wamid." + to}
}

var sweepTime = time.Date(2026, 10, 20, 13, 0, 5, 0, time.UTC)

func newTestDispatcher(store *memStore, sender Sender) *Dispatcher {
	return NewDispatcher(store, sender, logging.Discard()).
		WithClock(func() time.Time { return sweepTime }).
		WithBaseDelay(time.Minute).
		WithMaxAttempts(3)
}

func TestRunDueSkipsContactWithoutPhone(t *testing.T) {
	store := newMemStore()
	r := store.addDue("", 0)
	sender := &scriptedSender{}

	summary, err := newTestDispatcher(store, sender).RunDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, sender.calls)
	assert.NotContains(t, store.sent, r.ID)
	assert.NotContains(t, store.failures, r.ID)
}

func TestRunDueSkipsMissingContact(t *testing.T) {
	store := newMemStore()
	r := store.addDue("56911112222", 0)
	store.recipients[r.AppointmentID].ContactID = nil

	summary, err := newTestDispatcher(store, &scriptedSender{}).RunDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 1}, summary)
}

func TestRunDueMarksDeliveredWithSweepStart(t *testing.T) {
	store := newMemStore()
	a := store.addDue("56911112222", 0)
	b := store.addDue("56933334444", 0)

	summary, err := newTestDispatcher(store, &scriptedSender{}).RunDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, sweepTime, store.listAsOf)
	assert.Equal(t, sweepTime, store.sent[a.ID])
	assert.Equal(t, sweepTime, store.sent[b.ID])
}

func TestRunDueFailedDeliveryStaysScheduledWithBackoff(t *testing.T) {
	store := newMemStore()
	r := store.addDue("56911112222", 1)
	sender := &scriptedSender{fail: map[string]bool{"56911112222": true}}

	summary, err := newTestDispatcher(store, sender).RunDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Failed: 1}, summary)
	assert.NotContains(t, store.sent, r.ID)

	f := store.failures[r.ID]
	assert.Equal(t, StatusScheduled, f.status)
	assert.Equal(t, "provider 503", f.lastErr)
	assert.Equal(t, sweepTime.Add(2*time.Minute), f.next)
}

func TestRunDueExhaustedAttemptsFail(t *testing.T) {
	store := newMemStore()
	r := store.addDue("56911112222", 2)
	sender := &scriptedSender{fail: map[string]bool{"56911112222": true}}

	_, err := newTestDispatcher(store, sender).RunDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, store.failures[r.ID].status)
}

func TestRunDueMixedOutcomes(t *testing.T) {
	store := newMemStore()
	store.addDue("1", 0)
	store.addDue("2", 0)
	store.addDue("", 0)
	store.addDue("4", 0)
	sender := &scriptedSender{fail: map[string]bool{"2": true}}

	summary, err := newTestDispatcher(store, sender).WithConcurrency(2).RunDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Sent: 2, Failed: 1, Skipped: 1}, summary)
	assert.Len(t, sender.calls, 3)
}

func TestRunDueListError(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("db down")
	_, err := newTestDispatcher(store, &scriptedSender{}).RunDue(context.Background())
	assert.Error(t, err)
}

type heldLock struct{}

func (heldLock) Acquire(context.Context) (func(), error) { return nil, ErrSweepInProgress }

func TestRunDueRespectsLock(t *testing.T) {
	store := newMemStore()
	store.addDue("1", 0)
	sender := &scriptedSender{}

	_, err := newTestDispatcher(store, sender).WithLock(heldLock{}).RunDue(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)
	assert.Empty(t, sender.calls)
}

func TestNextDelayIsCapped(t *testing.T) {
	d := NewDispatcher(newMemStore(), &scriptedSender{}, logging.Discard()).WithBaseDelay(5 * time.Minute)
	assert.Equal(t, 5*time.Minute, d.nextDelay(0))
	assert.Equal(t, 20*time.Minute, d.nextDelay(2))
	assert.Equal(t, 24*time.Hour, d.nextDelay(12))
	assert.Equal(t, 24*time.Hour, d.nextDelay(40))
}

type countingRecorder struct {
	mu      sync.Mutex
	results map[string]int
}

func (c *countingRecorder) RecordReminder(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = map[string]int{}
	}
	c.results[result]++
}

func TestRunDueRecordsOutcomes(t *testing.T) {
	store := newMemStore()
	store.addDue("1", 0)
	store.addDue("", 0)
	rec := &countingRecorder{}

	_, err := newTestDispatcher(store, &scriptedSender{}).WithRecorder(rec).RunDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.results["sent"])
	assert.Equal(t, 1, rec.results["skipped"])
}

func TestHandlerRun(t *testing.T) {
	store := newMemStore()
	store.addDue("1", 0)
	h := NewHandler(newTestDispatcher(store, &scriptedSender{}), logging.Discard())

	rec := httptest.NewRecorder()
	h.Run(rec, httptest.NewRequest(http.MethodPost, "/internal/scheduler/run", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sent":1,"failed":0,"skipped":0}`, rec.Body.String())

	h = NewHandler(newTestDispatcher(newMemStore(), &scriptedSender{}).WithLock(heldLock{}), logging.Discard())
	rec = httptest.NewRecorder()
	h.Run(rec, httptest.NewRequest(http.MethodPost, "/internal/scheduler/run", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMessageTemplate(t *testing.T) {
	loc := time.FixedZone("CLT", -3*3600)
	rec := &Recipient{ServiceName: "Botox Facial", StartAt: time.Date(2026, 10, 20, 13, 0, 0, 0, time.UTC)}
	assert.Equal(t,
		"👋 Recordatorio: tienes una cita de Botox Facial el martes 20 de octubre a las 10:00. Responde 'CONFIRMAR' o 'REAGENDAR'.",
		MessageTemplate(rec, loc))

	rec.ServiceName = ""
	assert.Contains(t, MessageTemplate(rec, loc), "tienes una cita el martes")
}
