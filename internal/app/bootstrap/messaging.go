package bootstrap

import (
	"fmt"

	appconfig "github.com/wolfman30/medspa-booking-assistant/internal/config"
	"github.com/wolfman30/medspa-booking-assistant/internal/messaging/whatsappclient"
	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

// BuildWhatsAppClient creates the Cloud API client shared by replies,
// staff sends and reminders.
func BuildWhatsAppClient(cfg *appconfig.Config, logger *logging.Logger) (*whatsappclient.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	client, err := whatsappclient.New(whatsappclient.Config{
		BaseURL:    cfg.WhatsAppAPIBaseURL,
		PhoneID:    cfg.WhatsAppPhoneID,
		Token:      cfg.WhatsAppToken,
		MaxRetries: 3,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return client, nil
}
