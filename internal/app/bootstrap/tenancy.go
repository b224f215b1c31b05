package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	appconfig "github.com/wolfman30/medspa-booking-assistant/internal/config"
	"github.com/wolfman30/medspa-booking-assistant/internal/contacts"
	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

type clinicLister interface {
	FirstClinic(ctx context.Context) (uuid.UUID, error)
}

// BuildTenantResolver maps WhatsApp phone-number ids to clinics. The
// first-clinic fallback is only used when SINGLE_TENANT_MODE is set and no
// explicit mapping or default clinic is configured.
func BuildTenantResolver(cfg *appconfig.Config, clinics clinicLister, logger *logging.Logger) (contacts.TenantResolver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	mapping, err := contacts.ParseTenantMap(cfg.WhatsAppTenantMapJSON)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	var fallback uuid.UUID
	if raw := strings.TrimSpace(cfg.DefaultClinicID); raw != "" {
		fallback, err = uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: invalid DEFAULT_CLINIC_ID: %w", err)
		}
	}

	if len(mapping) == 0 && fallback == uuid.Nil {
		if cfg.SingleTenantMode && clinics != nil {
			logger.Warn("single tenant mode: routing every message to the first clinic")
			return contacts.NewFirstClinicResolver(clinics), nil
		}
		logger.Warn("no whatsapp tenant mapping configured; inbound messages will be rejected")
	}
	return contacts.NewStaticTenantResolver(mapping, fallback), nil
}
