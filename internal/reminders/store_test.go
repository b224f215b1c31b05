package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreListDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	asOf := time.Now().UTC()
	id, clinicID, apptID := uuid.New(), uuid.New(), uuid.New()
	mock.ExpectQuery("FROM appointment_reminders").
		WithArgs(asOf, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "appointment_id", "channel", "scheduled_at", "attempts"}).
			AddRow(id, clinicID, apptID, "whatsapp", asOf.Add(-time.Minute), 2))

	due, err := NewStore(mock).ListDue(context.Background(), asOf, 50)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, apptID, due[0].AppointmentID)
	assert.Equal(t, 2, due[0].Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLoadRecipient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	apptID, contactID := uuid.New(), uuid.New()
	start := time.Date(2026, 10, 20, 13, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM appointments a").
		WithArgs(apptID).
		WillReturnRows(pgxmock.NewRows([]string{"start_at", "id", "phone", "full_name", "name"}).
			AddRow(start, &contactID, "56911112222", "Ana", "Botox Facial"))

	rec, err := NewStore(mock).LoadRecipient(context.Background(), apptID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "56911112222", rec.Phone)
	assert.Equal(t, "Botox Facial", rec.ServiceName)
	require.NotNil(t, rec.ContactID)
	assert.Equal(t, contactID, *rec.ContactID)
}

func TestStoreMarkSentIsConditional(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	sentAt := time.Now().UTC()
	mock.ExpectExec("UPDATE appointment_reminders").
		WithArgs(id, sentAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE appointment_reminders").
		WithArgs(id, sentAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	s := NewStore(mock)
	ok, err := s.MarkSent(context.Background(), id, sentAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkSent(context.Background(), id, sentAt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreRecordFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	next := time.Now().Add(5 * time.Minute)
	mock.ExpectExec("SET attempts = attempts \\+ 1").
		WithArgs(id, "provider 503", next, "scheduled").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewStore(mock).RecordFailure(context.Background(), id, "provider 503", next, StatusScheduled))
	assert.NoError(t, mock.ExpectationsWereMet())
}
