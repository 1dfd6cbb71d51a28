package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/orderbot/internal/model"
)

var (
	peopleRe     = regexp.MustCompile(`(?i)\b(?:table for|reserve for|party of|for)\s+(\d{1,2}|one|two|three|four|five|six|seven|eight|nine|ten)\b`)
	timeRe       = regexp.MustCompile(`(?i)(?:\bat|@)\s*(\d{1,2})(?:[:.]?(\d{2}))?\s*(am|pm)?\b`)
	isoDateRe    = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	relativeRe   = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow)\b`)
	preferenceRe = regexp.MustCompile(`(?i)\b(near (?:the )?window|window|outdoors?|outside|patio|inside|indoors?|corner|terrace|quiet)\b`)
)

var preferenceCanon = map[string]string{
	"outdoors": "outdoor",
	"outside":  "outdoor",
	"patio":    "outdoor",
	"inside":   "indoor",
	"indoors":  "indoor",
}

// Booking извлекает параметры бронирования: число гостей ("for N"), время ("at HH[:MM][am|pm]"
// в формате 24 часов), дату (только ISO "YYYY-MM-DD") и предпочтение по месту.
// Относительные даты не вычисляются, а лишь отмечаются в RelativeDate.
func Booking(text string) model.BookingDetails {
	var b model.BookingDetails
	if strings.TrimSpace(text) == "" {
		return b
	}

	if m := peopleRe.FindStringSubmatch(text); m != nil {
		if n, ok := NumberWord(m[1]); ok && n >= 1 {
			b.People = &n
		}
	}

	if t, ok := bookingTime(text); ok {
		b.Time = &t
	}

	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		if _, err := time.Parse(time.DateOnly, m[1]); err == nil {
			d := m[1]
			b.Date = &d
		}
	}

	if m := relativeRe.FindStringSubmatch(text); m != nil {
		rel := strings.ToLower(m[1])
		if rel == "tonight" {
			rel = "today"
		}
		b.RelativeDate = rel
	}

	if m := preferenceRe.FindStringSubmatch(text); m != nil {
		p := strings.ToLower(m[1])
		if strings.HasPrefix(p, "near") {
			p = "window"
		}
		if canon, ok := preferenceCanon[p]; ok {
			p = canon
		}
		b.Preference = &p
	}

	return b
}

func bookingTime(text string) (string, bool) {
	for _, idx := range timeRe.FindAllStringSubmatchIndex(text, -1) {
		// После "at 2026" идёт дата, а не время.
		if end := idx[1]; end < len(text) && (text[end] == '-' || (text[end] >= '0' && text[end] <= '9')) {
			continue
		}

		hh, err := strconv.Atoi(text[idx[2]:idx[3]])
		if err != nil {
			continue
		}
		mm := 0
		if idx[4] >= 0 {
			mm, _ = strconv.Atoi(text[idx[4]:idx[5]])
		}
		ampm := ""
		if idx[6] >= 0 {
			ampm = strings.ToLower(text[idx[6]:idx[7]])
		}

		if ampm != "" && (hh < 1 || hh > 12) {
			continue
		}
		if ampm == "pm" && hh < 12 {
			hh += 12
		}
		if ampm == "am" && hh == 12 {
			hh = 0
		}
		if hh > 23 || mm > 59 {
			continue
		}

		return fmt.Sprintf("%02d:%02d", hh, mm), true
	}
	return "", false
}
