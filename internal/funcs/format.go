package funcs

import (
	"fmt"
	"strings"
	"time"
)

var spanishWeekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

var spanishMonths = [...]string{"", "enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}

// formatSlot renders a timestamp the way the assistant speaks about it,
// e.g. "viernes 13 de marzo a las 15:00".
func formatSlot(t time.Time) string {
	return fmt.Sprintf("%s %d de %s a las %s",
		spanishWeekdays[int(t.Weekday())], t.Day(), spanishMonths[int(t.Month())], t.Format("15:04"))
}

// formatMoney renders cents as a currency amount, e.g. "$1500.00 MXN".
// Grouping is omitted; the assistant's amounts are small.
func formatMoney(cents int64, currency string) string {
	if currency == "" {
		currency = "MXN"
	}
	return fmt.Sprintf("$%d.%02d %s", cents/100, cents%100, strings.ToUpper(currency))
}

// joinSpanish joins items with commas and a final "y", the way a person
// would list them: "nombre, correo y teléfono".
func joinSpanish(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " y " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + " y " + items[len(items)-1]
}
