package reminders

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

// Handler exposes a manual sweep trigger for external schedulers.
type Handler struct {
	dispatcher sweeper
	logger     *logging.Logger
}

// NewHandler creates a scheduler handler.
func NewHandler(d sweeper, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{dispatcher: d, logger: logger}
}

// Run handles POST /internal/scheduler/run.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dispatcher.RunDue(r.Context())
	if err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("scheduler run failed", "error", err)
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}
