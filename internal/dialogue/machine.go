package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-booking-assistant/internal/bookings"
	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

var dialogueTracer = otel.Tracer("medspa.internal.dialogue")

// Turn outcomes reported to the TurnRecorder.
const (
	OutcomeReply  = "reply"
	OutcomeBooked = "booked"
	OutcomeReset  = "reset"
	OutcomeError  = "error"
)

const defaultMaxSlotOptions = 5

type slotService interface {
	ComputeSlots(ctx context.Context, clinicID, serviceID uuid.UUID, day time.Time) ([]bookings.Slot, error)
	BookAppointment(ctx context.Context, req bookings.BookingRequest) (*bookings.Appointment, error)
}

type serviceFinder interface {
	FindServiceByName(ctx context.Context, clinicID uuid.UUID, name string) (*bookings.Service, error)
}

// TurnRecorder observes each handled turn.
type TurnRecorder interface {
	RecordTurn(state, outcome string)
}

// Config holds the machine's static inputs.
type Config struct {
	Catalog        Catalog
	FAQs           []FAQ
	Location       *time.Location
	Now            func() time.Time
	MaxSlotOptions int
}

// Machine decides replies and context transitions for inbound text.
type Machine struct {
	slots    slotService
	services serviceFinder
	catalog  Catalog
	faqs     []FAQ
	loc      *time.Location
	now      func() time.Time
	maxSlots int
	recorder TurnRecorder
	logger   *logging.Logger
}

// NewMachine wires the state machine. Zero Config fields take defaults.
func NewMachine(slots slotService, services serviceFinder, cfg Config, logger *logging.Logger) *Machine {
	if slots == nil || services == nil {
		panic("dialogue: slot engine and service finder required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.FAQs == nil {
		cfg.FAQs = DefaultFAQs()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxSlotOptions <= 0 {
		cfg.MaxSlotOptions = defaultMaxSlotOptions
	}
	return &Machine{
		slots:    slots,
		services: services,
		catalog:  cfg.Catalog,
		faqs:     cfg.FAQs,
		loc:      cfg.Location,
		now:      cfg.Now,
		maxSlots: cfg.MaxSlotOptions,
		logger:   logger,
	}
}

// WithRecorder attaches a turn recorder.
func (m *Machine) WithRecorder(r TurnRecorder) *Machine {
	m.recorder = r
	return m
}

// Turn is one inbound message with the conversation's stored context.
type Turn struct {
	ClinicID  uuid.UUID
	ContactID uuid.UUID
	Text      string
	Context   json.RawMessage
}

// Result is the reply to send and the context to store.
type Result struct {
	Reply       string
	Next        State
	Appointment *bookings.Appointment
	outcome     string
}

// Handle runs one turn. It never fails: collaborator errors reset the
// conversation to Initial with an apology.
func (m *Machine) Handle(ctx context.Context, turn Turn) Result {
	ctx, span := dialogueTracer.Start(ctx, "dialogue.handle")
	defer span.End()

	text := normalizeText(turn.Text)
	state, err := Decode(turn.Context, m.loc)
	var res Result
	switch {
	case errors.Is(err, ErrUnknownState):
		m.logger.Warn("dialogue: unknown stored state, restarting", "clinic_id", turn.ClinicID, "contact_id", turn.ContactID, "error", err)
		res = m.dispatch(ctx, turn, text, Initial{})
		state = Initial{}
	case err != nil:
		m.logger.Warn("dialogue: corrupted context, restarting", "clinic_id", turn.ClinicID, "contact_id", turn.ContactID, "error", err)
		span.RecordError(err)
		res = Result{Reply: replyContextError, Next: Initial{}, outcome: OutcomeReset}
		state = nil
	default:
		res = m.dispatch(ctx, turn, text, state)
	}

	from := "corrupted"
	if state != nil {
		from = string(state.Name())
	}
	span.SetAttributes(
		attribute.String("medspa.clinic_id", turn.ClinicID.String()),
		attribute.String("medspa.dialogue.from", from),
		attribute.String("medspa.dialogue.to", string(res.Next.Name())),
		attribute.String("medspa.dialogue.outcome", res.outcome),
	)
	if m.recorder != nil {
		m.recorder.RecordTurn(from, res.outcome)
	}
	return res
}

func (m *Machine) dispatch(ctx context.Context, turn Turn, text string, state State) Result {
	if confirmIntent.MatchString(text) {
		if pending, ok := state.(AppointmentPending); ok {
			return m.confirm(ctx, turn, pending)
		}
		return reply(replyAck, state)
	}

	if cancelIntent.MatchString(text) {
		switch state.(type) {
		case ServiceSelected, AppointmentPending:
			return Result{Reply: replyCancelled, Next: Initial{}, outcome: OutcomeReset}
		}
		return reply(replyNothingToCancel, state)
	}

	switch st := state.(type) {
	case Initial:
		return m.handleInitial(text)
	case AwaitingService:
		return m.handleServiceSelection(ctx, turn, text)
	case ServiceSelected:
		return m.handleDateSelection(text, st)
	case DateSelected:
		return m.handleTimeSelection(ctx, turn, text, st)
	default:
		// A pending appointment answered with neither confirm nor cancel
		// starts over.
		return m.handleInitial(text)
	}
}

func (m *Machine) handleInitial(text string) Result {
	if bookingIntent.MatchString(text) {
		return reply(catalogReply(m.catalog), AwaitingService{})
	}
	for _, faq := range m.faqs {
		if faq.Pattern.MatchString(text) {
			return reply(faq.Answer, Initial{})
		}
	}
	if greetingIntent.MatchString(text) {
		return reply(replyGreeting, Initial{})
	}
	return reply(replyFallback, Initial{})
}

func (m *Machine) handleServiceSelection(ctx context.Context, turn Turn, text string) Result {
	entry, ok := m.catalog.Match(text)
	if !ok {
		return reply(unknownServiceReply(m.catalog), AwaitingService{})
	}

	svc, err := m.services.FindServiceByName(ctx, turn.ClinicID, entry.Name)
	if err != nil {
		m.logger.Error("dialogue: service lookup failed", "clinic_id", turn.ClinicID, "slug", entry.Slug, "error", err)
		return Result{Reply: replyServiceLookupErr, Next: Initial{}, outcome: OutcomeError}
	}
	if svc == nil {
		return reply(replyUnavailable, AwaitingService{})
	}
	return reply(serviceChosenReply(entry), ServiceSelected{Slug: entry.Slug, ServiceID: svc.ID})
}

func (m *Machine) handleDateSelection(text string, st ServiceSelected) Result {
	day, ok := ParseDate(text, m.now().In(m.loc))
	if !ok {
		return reply(replyDateNotParsed, st)
	}
	return reply(dateChosenReply(day), DateSelected{Slug: st.Slug, ServiceID: st.ServiceID, Date: day})
}

func (m *Machine) handleTimeSelection(ctx context.Context, turn Turn, text string, st DateSelected) Result {
	slots, err := m.slots.ComputeSlots(ctx, turn.ClinicID, st.ServiceID, st.Date)
	if err != nil {
		m.logger.Error("dialogue: compute slots failed", "clinic_id", turn.ClinicID, "service_id", st.ServiceID, "error", err)
		return Result{Reply: replySlotsError, Next: Initial{}, outcome: OutcomeError}
	}
	if len(slots) == 0 {
		return reply(replyNoSlots, st)
	}

	if pref, ok := ParseTimePreference(text); ok {
		for _, slot := range slots {
			start := slot.StartAt.In(m.loc)
			if math.Abs(float64(start.Hour()-pref)) <= 1 {
				next := AppointmentPending{Slug: st.Slug, ServiceID: st.ServiceID, Date: st.Date, Slot: slot}
				return reply(summaryReply(m.serviceName(st.Slug), start), next)
			}
		}
	}

	shown := slots
	if len(shown) > m.maxSlots {
		shown = shown[:m.maxSlots]
	}
	return reply(slotOptionsReply(shown, m.loc), st)
}

func (m *Machine) confirm(ctx context.Context, turn Turn, st AppointmentPending) Result {
	appt, err := m.slots.BookAppointment(ctx, bookings.BookingRequest{
		ClinicID:  turn.ClinicID,
		ContactID: turn.ContactID,
		ServiceID: st.ServiceID,
		StartAt:   st.Slot.StartAt,
		EndAt:     st.Slot.EndAt,
	})
	if err != nil {
		msg := replyBookingError
		if errors.Is(err, bookings.ErrSlotUnavailable) {
			msg = replySlotTaken
		} else {
			m.logger.Error("dialogue: booking failed", "clinic_id", turn.ClinicID, "contact_id", turn.ContactID, "error", err)
		}
		return Result{Reply: msg, Next: Initial{}, outcome: OutcomeError}
	}
	return Result{
		Reply:       confirmedReply(m.serviceName(st.Slug), st.Slot.StartAt.In(m.loc)),
		Next:        Initial{},
		Appointment: appt,
		outcome:     OutcomeBooked,
	}
}

func (m *Machine) serviceName(slug string) string {
	if e, ok := m.catalog.Lookup(slug); ok {
		return e.Name
	}
	return slug
}

func reply(text string, next State) Result {
	return Result{Reply: text, Next: next, outcome: OutcomeReply}
}
