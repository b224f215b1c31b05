package dialogue

import (
	"regexp"
	"strconv"
	"time"
)

var (
	tomorrowWord  = wordPattern("mañana", "manana")
	dayAfterWord  = regexp.MustCompile(`pasado\s+ma[ñn]ana`)
	todayWord     = wordPattern("hoy")
	isoDateRe     = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	morningWord   = wordPattern("mañana", "manana")
	afternoonWord = wordPattern("tarde")
	noonRe        = regexp.MustCompile(`medio\s*d[ií]a|mediod[ií]a`)
	clockRe       = regexp.MustCompile(`(\d{1,2}):?(\d{2})?`)
)

var weekdayWords = []struct {
	re  *regexp.Regexp
	day time.Weekday
}{
	{wordPattern("lunes"), time.Monday},
	{wordPattern("martes"), time.Tuesday},
	{wordPattern("miércoles", "miercoles"), time.Wednesday},
	{wordPattern("jueves"), time.Thursday},
	{wordPattern("viernes"), time.Friday},
	{wordPattern("sábado", "sabado"), time.Saturday},
	{wordPattern("domingo"), time.Sunday},
}

const (
	earliestPreferredHour = 8
	latestPreferredHour   = 19
)

// ParseDate extracts a calendar day from free text relative to now. The
// result is midnight in now's location.
func ParseDate(text string, now time.Time) (time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case dayAfterWord.MatchString(text):
		return today.AddDate(0, 0, 2), true
	case tomorrowWord.MatchString(text):
		return today.AddDate(0, 0, 1), true
	case todayWord.MatchString(text):
		return today, true
	}

	for _, wd := range weekdayWords {
		if wd.re.MatchString(text) {
			return today.AddDate(0, 0, daysUntil(today.Weekday(), wd.day)), true
		}
	}

	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		day, err := time.ParseInLocation(time.DateOnly, m[1], now.Location())
		if err == nil {
			return day, true
		}
	}
	return time.Time{}, false
}

// daysUntil returns 1..7: the named weekday today means next week.
func daysUntil(today, target time.Weekday) int {
	ahead := int(target) - int(today)
	if ahead <= 0 {
		ahead += 7
	}
	return ahead
}

// ParseTimePreference extracts a preferred hour of day.
func ParseTimePreference(text string) (int, bool) {
	switch {
	case morningWord.MatchString(text):
		return 10, true
	case afternoonWord.MatchString(text):
		return 15, true
	case noonRe.MatchString(text):
		return 12, true
	}
	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour < earliestPreferredHour || hour > latestPreferredHour {
		return 0, false
	}
	return hour, true
}
