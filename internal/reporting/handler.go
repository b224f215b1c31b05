package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

type statsReader interface {
	Stats(ctx context.Context, q StatsQuery) (*Stats, error)
}

// Handler serves dashboard reporting endpoints.
type Handler struct {
	repo   statsReader
	logger *logging.Logger
}

func NewHandler(repo statsReader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// MessageStats handles GET /api/messages/stats.
func (h *Handler) MessageStats(w http.ResponseWriter, r *http.Request) {
	q := StatsQuery{Days: DefaultDays}
	params := r.URL.Query()

	if raw := strings.TrimSpace(params.Get("clinic_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid clinic_id", http.StatusBadRequest)
			return
		}
		q.ClinicID = &id
	}
	if raw := strings.TrimSpace(params.Get("days")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 || days > MaxDays {
			http.Error(w, ErrInvalidRange.Error(), http.StatusBadRequest)
			return
		}
		q.Days = days
	}
	for _, ch := range params["channel"] {
		if ch = strings.TrimSpace(ch); ch != "" {
			q.Channels = append(q.Channels, ch)
		}
	}

	stats, err := h.repo.Stats(r.Context(), q)
	if err != nil {
		if errors.Is(err, ErrInvalidRange) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("message stats failed", "error", err)
		http.Error(w, "stats unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
