package agenda

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// defaultGuardWindow rejects resolutions that land in the immediate past.
const defaultGuardWindow = 5 * time.Minute

// ResolveOptions controls how partial phrases are completed.
type ResolveOptions struct {
	// AllowDateOnly accepts a date without a clock time, resolving to the
	// start of that day. It also lets a bare clock time assume today.
	AllowDateOnly bool
}

// Resolver turns loosely-structured natural-language date/time phrases into
// absolute timestamps. Pure logic, no I/O; safe on garbage input.
type Resolver struct {
	loc   *time.Location
	guard time.Duration
	now   func() time.Time
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithGuardWindow overrides the rejection window for near-past results.
func WithGuardWindow(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.guard = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver builds a resolver anchored to the given location.
func NewResolver(loc *time.Location, opts ...ResolverOption) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	r := &Resolver{
		loc:   loc,
		guard: defaultGuardWindow,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type clockTime struct {
	hour   int
	minute int
}

var weekdayNames = map[string]time.Weekday{
	"domingo": time.Sunday, "sunday": time.Sunday,
	"lunes": time.Monday, "monday": time.Monday,
	"martes": time.Tuesday, "tuesday": time.Tuesday,
	"miercoles": time.Wednesday, "wednesday": time.Wednesday,
	"jueves": time.Thursday, "thursday": time.Thursday,
	"viernes": time.Friday, "friday": time.Friday,
	"sabado": time.Saturday, "saturday": time.Saturday,
}

var monthNames = map[string]time.Month{
	"enero": time.January, "january": time.January,
	"febrero": time.February, "february": time.February,
	"marzo": time.March, "march": time.March,
	"abril": time.April, "april": time.April,
	"mayo": time.May, "may": time.May,
	"junio": time.June, "june": time.June,
	"julio": time.July, "july": time.July,
	"agosto": time.August, "august": time.August,
	"septiembre": time.September, "september": time.September,
	"octubre": time.October, "october": time.October,
	"noviembre": time.November, "november": time.November,
	"diciembre": time.December, "december": time.December,
}

var (
	// 12h/24h clock: "3pm", "3:30 pm", "15:30", "a las 4"
	clockRE = regexp.MustCompile(`(?:a\s+las?\s+)?\b(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?|hrs?\.?)?\b`)
	// "12 de marzo", "12 de marzo de 2026"
	dayOfMonthRE = regexp.MustCompile(`\b(\d{1,2})\s+de\s+([a-z]+)(?:\s+del?\s+(\d{4}))?\b`)
	// "march 12", "march 12 2026"
	monthDayRE = regexp.MustCompile(`\b([a-z]+)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	// "12/03", "12/03/2026"
	slashDateRE = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	// morning references that are day-parts, not the word "tomorrow"
	morningRefRE = regexp.MustCompile(`(?:por|en|de)\s+la\s+mañana`)
)

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "ñ",
)

// Resolve extracts a date and an optional clock time from free text and
// combines them into an absolute timestamp. The second return value is false
// when the phrase cannot be resolved unambiguously; it never panics.
func (r *Resolver) Resolve(text string, opts ResolveOptions) (time.Time, bool) {
	normalized := normalizePhrase(text)
	if normalized == "" {
		return time.Time{}, false
	}

	now := r.now().In(r.loc)

	// Strip explicit date expressions first so their digits are not taken
	// for a clock time ("12 de marzo" is not 12:00).
	timePhrase := stripDateExpressions(normalized)

	ct, hasTime := extractClockTime(timePhrase)
	date, weekdayUsed, hasDate := r.extractDate(normalized, now)

	switch {
	case !hasDate && !hasTime:
		return time.Time{}, false
	case hasTime && !hasDate:
		if !opts.AllowDateOnly {
			// Ambiguous: the caller must supply a date.
			return time.Time{}, false
		}
		date = now
	case hasDate && !hasTime:
		if !opts.AllowDateOnly {
			return time.Time{}, false
		}
		candidate := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, r.loc)
		if candidate.Before(startOfDay(now)) {
			return time.Time{}, false
		}
		return candidate, true
	}

	candidate := time.Date(date.Year(), date.Month(), date.Day(), ct.hour, ct.minute, 0, 0, r.loc)

	// A weekday resolving to today whose time already passed means next week.
	if weekdayUsed && candidate.Before(now.Add(r.guard)) {
		candidate = candidate.AddDate(0, 0, 7)
	}

	// Likely meant a future time; reject anything already past the guard.
	if !candidate.After(now.Add(-r.guard)) {
		return time.Time{}, false
	}
	return candidate, true
}

// stripDateExpressions blanks out explicit date expressions so a later clock
// scan does not mistake their digits for an hour.
func stripDateExpressions(phrase string) string {
	out := dayOfMonthRE.ReplaceAllStringFunc(phrase, func(m string) string {
		sub := dayOfMonthRE.FindStringSubmatch(m)
		if _, ok := monthNames[sub[2]]; ok {
			return " "
		}
		return m
	})
	out = monthDayRE.ReplaceAllStringFunc(out, func(m string) string {
		sub := monthDayRE.FindStringSubmatch(m)
		if _, ok := monthNames[sub[1]]; ok {
			return " "
		}
		return m
	})
	return slashDateRE.ReplaceAllString(out, " ")
}

func normalizePhrase(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	return accentReplacer.Replace(lowered)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// extractClockTime pulls an explicit clock time out of the phrase, applying
// am/pm markers or day-part words (mañana/tarde/noche) to bare hours.
func extractClockTime(phrase string) (clockTime, bool) {
	m := clockRE.FindStringSubmatch(phrase)
	if m == nil {
		return clockTime{}, false
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return clockTime{}, false
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return clockTime{}, false
		}
	}

	meridiem := strings.ReplaceAll(strings.TrimSpace(m[3]), ".", "")
	switch {
	case strings.HasPrefix(meridiem, "p"):
		if hour < 12 {
			hour += 12
		}
	case strings.HasPrefix(meridiem, "a") && meridiem != "":
		if hour == 12 {
			hour = 0
		}
	case strings.HasPrefix(meridiem, "h"):
		// 24h marker ("15 hrs"), hour taken as-is.
	default:
		// No meridiem: fall back to day-part words.
		if hour <= 12 {
			switch {
			case strings.Contains(phrase, "tarde") || strings.Contains(phrase, "afternoon") || strings.Contains(phrase, "evening"):
				if hour < 12 {
					hour += 12
				}
			case strings.Contains(phrase, "noche") || strings.Contains(phrase, "night"):
				if hour < 12 {
					hour += 12
				}
			case morningRefRE.MatchString(phrase) || strings.Contains(phrase, "morning"):
				if hour == 12 {
					hour = 0
				}
			}
		}
	}

	if hour > 23 {
		return clockTime{}, false
	}

	// A bare small number with no meridiem and no date words is more likely a
	// slot index or a count than a time; require a colon or marker for 1-6.
	if m[2] == "" && meridiem == "" && hour >= 1 && hour <= 6 &&
		!strings.Contains(phrase, "tarde") && !strings.Contains(phrase, "noche") &&
		!strings.Contains(phrase, "a las") && !strings.Contains(phrase, "a la ") &&
		!strings.Contains(phrase, "at ") {
		return clockTime{}, false
	}

	return clockTime{hour: hour, minute: minute}, true
}

// extractDate finds an explicit or relative date. The weekday flag reports
// that the date came from a weekday word so callers can roll it a week
// forward when today's occurrence already passed.
func (r *Resolver) extractDate(phrase string, now time.Time) (date time.Time, weekday bool, ok bool) {
	if strings.Contains(phrase, "pasado mañana") || strings.Contains(phrase, "day after tomorrow") {
		return now.AddDate(0, 0, 2), false, true
	}
	if strings.Contains(phrase, "hoy") || strings.Contains(phrase, "today") {
		return now, false, true
	}
	if strings.Contains(phrase, "tomorrow") {
		return now.AddDate(0, 0, 1), false, true
	}
	// "mañana" is tomorrow unless used as a day-part ("por la mañana").
	if strings.Contains(phrase, "mañana") && !morningRefRE.MatchString(phrase) {
		return now.AddDate(0, 0, 1), false, true
	}

	for name, wd := range weekdayNames {
		if !containsWord(phrase, name) {
			continue
		}
		delta := (int(wd) - int(now.Weekday()) + 7) % 7
		return now.AddDate(0, 0, delta), true, true
	}

	if m := dayOfMonthRE.FindStringSubmatch(phrase); m != nil {
		if d, ok := buildExplicitDate(m[2], m[1], m[3], now, r.loc); ok {
			return d, false, true
		}
	}
	if m := monthDayRE.FindStringSubmatch(phrase); m != nil {
		if d, ok := buildExplicitDate(m[1], m[2], m[3], now, r.loc); ok {
			return d, false, true
		}
	}
	if m := slashDateRE.FindStringSubmatch(phrase); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if day >= 1 && day <= 31 && month >= 1 && month <= 12 {
			year := now.Year()
			if m[3] != "" {
				if y, err := strconv.Atoi(m[3]); err == nil {
					if y < 100 {
						y += 2000
					}
					year = y
				}
			}
			d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, r.loc)
			if m[3] == "" && d.Before(startOfDay(now)) {
				d = d.AddDate(1, 0, 0)
			}
			return d, false, true
		}
	}

	return time.Time{}, false, false
}

func buildExplicitDate(monthWord, dayStr, yearStr string, now time.Time, loc *time.Location) (time.Time, bool) {
	month, ok := monthNames[monthWord]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	year := now.Year()
	if yearStr != "" {
		if y, err := strconv.Atoi(yearStr); err == nil {
			year = y
		}
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if yearStr == "" && d.Before(startOfDay(now)) {
		d = d.AddDate(1, 0, 0)
	}
	return d, true
}

func containsWord(phrase, word string) bool {
	idx := strings.Index(phrase, word)
	for idx >= 0 {
		before := idx == 0 || !isLetter(phrase[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(phrase) || !isLetter(phrase[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(phrase[idx+1:], word)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
