package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

type slotBooker interface {
	ComputeSlots(ctx context.Context, clinicID, serviceID uuid.UUID, day time.Time) ([]Slot, error)
	BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error)
	Location() *time.Location
}

// Handler exposes availability and booking over HTTP.
type Handler struct {
	engine slotBooker
	logger *logging.Logger
}

// NewHandler creates an appointments HTTP handler.
func NewHandler(engine slotBooker, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// Routes mounts under /api/appointments.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/availability", h.Availability)
	r.Post("/", h.Create)
	return r
}

// Availability handles GET /availability?clinic_id=&service_id=&date=.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clinicID, err := uuid.Parse(q.Get("clinic_id"))
	if err != nil {
		http.Error(w, "invalid clinic_id", http.StatusBadRequest)
		return
	}
	serviceID, err := uuid.Parse(q.Get("service_id"))
	if err != nil {
		http.Error(w, "invalid service_id", http.StatusBadRequest)
		return
	}
	day, err := parseDay(q.Get("date"), h.engine.Location())
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	slots, err := h.engine.ComputeSlots(r.Context(), clinicID, serviceID, day)
	if err != nil {
		h.writeError(w, "compute slots", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// Create handles POST / with a BookingRequest body.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	appt, err := h.engine.BookAppointment(r.Context(), req)
	if err != nil {
		h.writeError(w, "book appointment", err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidBooking):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrDependency):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrSlotUnavailable):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("appointments handler: "+op, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// parseDay accepts YYYY-MM-DD or an RFC3339 timestamp.
func parseDay(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
