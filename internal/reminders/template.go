package reminders

import (
	"fmt"
	"time"

	"github.com/wolfman30/medspa-booking-assistant/internal/dialogue"
)

// MessageTemplate renders the reminder text in the clinic's time zone.
func MessageTemplate(rec *Recipient, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	start := rec.StartAt.In(loc)
	when := fmt.Sprintf("el %s a las %s", dialogue.FormatDay(start), start.Format("15:04"))
	if rec.ServiceName != "" {
		return fmt.Sprintf("👋 Recordatorio: tienes una cita de %s %s. Responde 'CONFIRMAR' o 'REAGENDAR'.", rec.ServiceName, when)
	}
	return fmt.Sprintf("👋 Recordatorio: tienes una cita %s. Responde 'CONFIRMAR' o 'REAGENDAR'.", when)
}
