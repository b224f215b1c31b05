package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/medspa-booking-assistant/internal/bookings"
)

const (
	replyAck              = "¡Perfecto! ¿En qué más puedo ayudarte?"
	replyCancelled        = "No hay problema. ¿Te gustaría agendar otro tratamiento o necesitas algo más?"
	replyNothingToCancel  = "Entendido. ¿En qué puedo ayudarte?"
	replyGreeting         = "¡Hola! 👋 Soy el asistente de la clínica. Puedo ayudarte con información sobre tratamientos, precios y agendar citas. ¿En qué puedo ayudarte?"
	replyFallback         = "Puedo ayudarte con información sobre tratamientos, precios y agendar citas. ¿Qué necesitas?"
	replyUnavailable      = "Lo siento, ese tratamiento no está disponible actualmente. ¿Te interesa algún otro de nuestra lista?"
	replyServiceLookupErr = "Hubo un error al verificar la disponibilidad. Comencemos de nuevo. ¿En qué puedo ayudarte?"
	replyDateNotParsed    = "No pude entender la fecha. ¿Podrías especificar? Por ejemplo: 'mañana', 'lunes próximo', o '2024-01-15'"
	replyContextError     = "Hubo un error. Comencemos de nuevo. ¿Qué tratamiento te interesa?"
	replyNoSlots          = "Lo siento, no hay horarios disponibles para esa fecha. ¿Te gustaría elegir otra fecha?"
	replySlotsError       = "Hubo un error al consultar los horarios. Comencemos de nuevo. ¿En qué puedo ayudarte?"
	replyBookingError     = "Hubo un error al confirmar la cita. Por favor intenta de nuevo o contacta directamente a la clínica."
	replySlotTaken        = "Lo siento, ese horario acaba de ser reservado por otra persona. ¿Te gustaría agendar otro?"
)

// ReplyTurnFailed is sent when a turn could not be saved and the
// conversation starts over.
const ReplyTurnFailed = "Lo siento, tuvimos un problema al procesar tu mensaje. Comencemos de nuevo. ¿En qué puedo ayudarte?"

var (
	weekdayNames = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	monthNames   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// FormatDay renders a date as "martes 20 de octubre".
func FormatDay(t time.Time) string {
	return fmt.Sprintf("%s %02d de %s", weekdayNames[t.Weekday()], t.Day(), monthNames[t.Month()-1])
}

func catalogReply(c Catalog) string {
	lines := make([]string, len(c))
	for i, e := range c {
		lines[i] = fmt.Sprintf("• %s - %s", e.Name, e.Price)
	}
	return "¡Perfecto! 🙌 Estos son nuestros tratamientos disponibles:\n\n" + strings.Join(lines, "\n") + "\n\n¿Cuál te interesa?"
}

func unknownServiceReply(c Catalog) string {
	lines := make([]string, len(c))
	for i, e := range c {
		lines[i] = "• " + e.Name
	}
	return "No reconocí ese tratamiento. Por favor elige uno de la lista:\n" + strings.Join(lines, "\n")
}

func serviceChosenReply(e CatalogEntry) string {
	return fmt.Sprintf("Excelente elección: %s 💫\n\n¿Para qué fecha te gustaría agendar? (Por ejemplo: 'mañana', 'lunes', o '2024-01-15')", e.Name)
}

func dateChosenReply(day time.Time) string {
	return fmt.Sprintf("Perfecto, para el %s 📅\n\n¿Qué horario prefieres? (Por ejemplo: '10:00', 'mañana', 'tarde')", FormatDay(day))
}

func summaryReply(serviceName string, start time.Time) string {
	return fmt.Sprintf("¡Perfecto! 🎉\n\nResumen de tu cita:\n• Tratamiento: %s\n• Fecha: %s\n• Hora: %s\n\n¿Confirmas la cita? (Responde 'confirmar' o 'cancelar')",
		serviceName, FormatDay(start), start.Format("15:04"))
}

func slotOptionsReply(slots []bookings.Slot, loc *time.Location) string {
	lines := make([]string, len(slots))
	for i, s := range slots {
		lines[i] = "• " + s.StartAt.In(loc).Format("15:04")
	}
	return "Estos son los horarios disponibles:\n\n" + strings.Join(lines, "\n") + "\n\n¿Cuál prefieres?"
}

func confirmedReply(serviceName string, start time.Time) string {
	return fmt.Sprintf("¡Cita confirmada! ✅\n\n📋 Detalles:\n• Tratamiento: %s\n• Fecha: %s\n• Hora: %s\n\nTe enviaremos un recordatorio antes de tu cita. ¡Nos vemos pronto! 😊",
		serviceName, FormatDay(start), start.Format("15:04"))
}
