package dialogue

import (
	"regexp"
	"strings"
)

// wordPattern matches any of words as a whole word. \b is ASCII-only in
// RE2, so accented letters need an explicit letter class.
func wordPattern(words ...string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}])`)
}

var (
	confirmIntent  = wordPattern("confirmar", "confirmo", "sí", "si", "ok", "vale")
	cancelIntent   = wordPattern("cancelar", "no", "cambiar", "reagendar")
	bookingIntent  = wordPattern("reservar", "agendar", "cita", "hora")
	greetingIntent = wordPattern("hola", "buenos", "buenas", "saludos")
)

// normalizeText lowercases and trims user input.
func normalizeText(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
