package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/medspa-booking-assistant/internal/bookings"
	"github.com/wolfman30/medspa-booking-assistant/internal/contacts"
	httpmiddleware "github.com/wolfman30/medspa-booking-assistant/internal/http/middleware"
	"github.com/wolfman30/medspa-booking-assistant/internal/messaging"
	"github.com/wolfman30/medspa-booking-assistant/internal/reminders"
	"github.com/wolfman30/medspa-booking-assistant/internal/reporting"
	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger             *logging.Logger
	WhatsAppWebhook    *messaging.Handler
	Appointments       *bookings.Handler
	Messages           *contacts.Handler
	Reporting          *reporting.Handler
	Scheduler          *reminders.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	WebhookLimiter     *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.WhatsAppWebhook != nil {
		r.Route("/webhooks/whatsapp", func(wh chi.Router) {
			wh.Get("/", cfg.WhatsAppWebhook.Verify)
			wh.With(httpmiddleware.RateLimit(cfg.WebhookLimiter)).Post("/", cfg.WhatsAppWebhook.Inbound)
		})
	}

	if cfg.Appointments != nil {
		r.Mount("/api/appointments", cfg.Appointments.Routes())
	}

	r.Route("/api/messages", func(api chi.Router) {
		if cfg.Messages != nil {
			api.Get("/conversations/{conversationID}", cfg.Messages.ListConversationMessages)
			api.Get("/conversations/{conversationID}/recent", cfg.Messages.RecentConversationMessages)
			api.Get("/conversations/{conversationID}/context", cfg.Messages.ConversationContext)
			api.Post("/conversations/{conversationID}/close", cfg.Messages.Close)
			api.Get("/contacts/{contactID}/conversations", cfg.Messages.ListContactConversations)
			api.Post("/send", cfg.Messages.Send)
		}
		if cfg.Reporting != nil {
			api.Get("/stats", cfg.Reporting.MessageStats)
		}
	})

	if cfg.Scheduler != nil {
		r.Post("/internal/scheduler/run", cfg.Scheduler.Run)
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
