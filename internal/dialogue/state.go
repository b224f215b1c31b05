package dialogue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medspa-booking-assistant/internal/bookings"
)

// StateName is the persisted discriminator of a conversation context.
type StateName string

const (
	StateInitial            StateName = "initial"
	StateAwaitingService    StateName = "awaiting_service"
	StateServiceSelected    StateName = "service_selected"
	StateDateSelected       StateName = "date_selected"
	StateAppointmentPending StateName = "appointment_pending"
)

var (
	// ErrContextCorrupted means the stored context lacks fields its state requires.
	ErrContextCorrupted = errors.New("dialogue: context corrupted")
	// ErrUnknownState means the stored context names a state this machine does not know.
	ErrUnknownState = errors.New("dialogue: unknown state")
)

// State is one conversation context. Each state carries exactly the fields
// it needs, so a decoded State is always internally consistent.
type State interface {
	Name() StateName
	isState()
}

type Initial struct{}

type AwaitingService struct{}

type ServiceSelected struct {
	Slug      string
	ServiceID uuid.UUID
}

type DateSelected struct {
	Slug      string
	ServiceID uuid.UUID
	// Date is midnight of the chosen day in the clinic's time zone.
	Date time.Time
}

type AppointmentPending struct {
	Slug      string
	ServiceID uuid.UUID
	Date      time.Time
	Slot      bookings.Slot
}

func (Initial) Name() StateName            { return StateInitial }
func (AwaitingService) Name() StateName    { return StateAwaitingService }
func (ServiceSelected) Name() StateName    { return StateServiceSelected }
func (DateSelected) Name() StateName       { return StateDateSelected }
func (AppointmentPending) Name() StateName { return StateAppointmentPending }

func (Initial) isState()            {}
func (AwaitingService) isState()    {}
func (ServiceSelected) isState()    {}
func (DateSelected) isState()       {}
func (AppointmentPending) isState() {}

type wireContext struct {
	State           StateName      `json:"state"`
	SelectedService string         `json:"selected_service,omitempty"`
	ServiceID       string         `json:"service_id,omitempty"`
	SelectedDate    string         `json:"selected_date,omitempty"`
	SelectedSlot    *bookings.Slot `json:"selected_slot,omitempty"`
}

// Encode serializes a state into the conversation's context_data document.
func Encode(s State) (json.RawMessage, error) {
	if s == nil {
		s = Initial{}
	}
	w := wireContext{State: s.Name()}
	switch st := s.(type) {
	case ServiceSelected:
		w.SelectedService, w.ServiceID = st.Slug, st.ServiceID.String()
	case DateSelected:
		w.SelectedService, w.ServiceID = st.Slug, st.ServiceID.String()
		w.SelectedDate = st.Date.Format(time.DateOnly)
	case AppointmentPending:
		w.SelectedService, w.ServiceID = st.Slug, st.ServiceID.String()
		w.SelectedDate = st.Date.Format(time.DateOnly)
		slot := st.Slot
		w.SelectedSlot = &slot
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("dialogue: encode context: %w", err)
	}
	return data, nil
}

// Decode parses stored context. Empty input is Initial. Dates are read as
// calendar days in loc.
func Decode(raw []byte, loc *time.Location) (State, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Initial{}, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	var w wireContext
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextCorrupted, err)
	}

	switch w.State {
	case "", StateInitial:
		return Initial{}, nil
	case StateAwaitingService:
		return AwaitingService{}, nil
	case StateServiceSelected:
		id, err := parseServiceID(w.ServiceID)
		if err != nil {
			return nil, err
		}
		return ServiceSelected{Slug: w.SelectedService, ServiceID: id}, nil
	case StateDateSelected:
		id, err := parseServiceID(w.ServiceID)
		if err != nil {
			return nil, err
		}
		day, err := parseStoredDate(w.SelectedDate, loc)
		if err != nil {
			return nil, err
		}
		return DateSelected{Slug: w.SelectedService, ServiceID: id, Date: day}, nil
	case StateAppointmentPending:
		id, err := parseServiceID(w.ServiceID)
		if err != nil {
			return nil, err
		}
		if w.SelectedSlot == nil || w.SelectedSlot.StartAt.IsZero() || !w.SelectedSlot.EndAt.After(w.SelectedSlot.StartAt) {
			return nil, fmt.Errorf("%w: selected_slot missing", ErrContextCorrupted)
		}
		day, err := parseStoredDate(w.SelectedDate, loc)
		if err != nil {
			start := w.SelectedSlot.StartAt.In(loc)
			day = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		}
		return AppointmentPending{Slug: w.SelectedService, ServiceID: id, Date: day, Slot: *w.SelectedSlot}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, w.State)
	}
}

func parseServiceID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: service_id missing", ErrContextCorrupted)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: service_id: %v", ErrContextCorrupted, err)
	}
	return id, nil
}

// parseStoredDate accepts YYYY-MM-DD and the older YYYY-MM-DDTHH:MM:SS form.
func parseStoredDate(raw string, loc *time.Location) (time.Time, error) {
	if len(raw) < len(time.DateOnly) {
		return time.Time{}, fmt.Errorf("%w: selected_date missing", ErrContextCorrupted)
	}
	day, err := time.ParseInLocation(time.DateOnly, raw[:len(time.DateOnly)], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: selected_date: %v", ErrContextCorrupted, err)
	}
	return day, nil
}
