package agenda

import (
	"testing"
	"time"
)

// Wednesday, 11 March 2026, 15:00.
var testNow = time.Date(2026, time.March, 11, 15, 0, 0, 0, time.UTC)

func testResolver() *Resolver {
	return NewResolver(time.UTC, WithClock(func() time.Time { return testNow }))
}

func TestResolveRelativeDays(t *testing.T) {
	r := testResolver()

	cases := []struct {
		phrase string
		want   time.Time
	}{
		{"mañana a las 3pm", time.Date(2026, time.March, 12, 15, 0, 0, 0, time.UTC)},
		{"tomorrow at 10am", time.Date(2026, time.March, 12, 10, 0, 0, 0, time.UTC)},
		{"pasado mañana a las 9am", time.Date(2026, time.March, 13, 9, 0, 0, 0, time.UTC)},
		{"hoy a las 5 de la tarde", time.Date(2026, time.March, 11, 17, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, ok := r.Resolve(tc.phrase, ResolveOptions{})
		if !ok {
			t.Errorf("Resolve(%q) failed, want %s", tc.phrase, tc.want)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("Resolve(%q) = %s, want %s", tc.phrase, got, tc.want)
		}
	}
}

func TestResolveWeekdayAlwaysFuture(t *testing.T) {
	r := testResolver()

	// Friday is two days out.
	got, ok := r.Resolve("el viernes a las 10:30", ResolveOptions{})
	if !ok {
		t.Fatal("expected viernes to resolve")
	}
	want := time.Date(2026, time.March, 13, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("viernes = %s, want %s", got, want)
	}

	// Today is Wednesday and 2pm already passed: roll to next week.
	got, ok = r.Resolve("miércoles a las 2pm", ResolveOptions{})
	if !ok {
		t.Fatal("expected miércoles to resolve")
	}
	want = time.Date(2026, time.March, 18, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("miércoles 2pm = %s, want next week %s", got, want)
	}

	// 5pm today is still ahead of the guard window: stays today.
	got, ok = r.Resolve("miercoles a las 5pm", ResolveOptions{})
	if !ok {
		t.Fatal("expected miercoles 5pm to resolve")
	}
	want = time.Date(2026, time.March, 11, 17, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("miercoles 5pm = %s, want today %s", got, want)
	}
}

func TestResolveExplicitDates(t *testing.T) {
	r := testResolver()

	got, ok := r.Resolve("el 12 de marzo a las 5pm", ResolveOptions{})
	if !ok {
		t.Fatal("expected 12 de marzo to resolve")
	}
	want := time.Date(2026, time.March, 12, 17, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("12 de marzo 5pm = %s, want %s", got, want)
	}

	// A month/day already past this year rolls to next year.
	got, ok = r.Resolve("10 de enero a las 11am", ResolveOptions{})
	if !ok {
		t.Fatal("expected 10 de enero to resolve")
	}
	if got.Year() != 2027 {
		t.Errorf("10 de enero resolved to year %d, want 2027", got.Year())
	}

	got, ok = r.Resolve("15/03 a las 9:00", ResolveOptions{})
	if !ok {
		t.Fatal("expected 15/03 to resolve")
	}
	want = time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("15/03 9:00 = %s, want %s", got, want)
	}
}

func TestResolveDateOnlyPolicy(t *testing.T) {
	r := testResolver()

	if _, ok := r.Resolve("el viernes", ResolveOptions{}); ok {
		t.Error("date without time must fail when AllowDateOnly is false")
	}

	got, ok := r.Resolve("el viernes", ResolveOptions{AllowDateOnly: true})
	if !ok {
		t.Fatal("date-only should resolve when AllowDateOnly is true")
	}
	want := time.Date(2026, time.March, 13, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("viernes date-only = %s, want start of day %s", got, want)
	}
}

func TestResolveTimeOnlyPolicy(t *testing.T) {
	r := testResolver()

	if _, ok := r.Resolve("a las 4pm", ResolveOptions{}); ok {
		t.Error("time without date must fail when AllowDateOnly is false")
	}

	got, ok := r.Resolve("a las 4pm", ResolveOptions{AllowDateOnly: true})
	if !ok {
		t.Fatal("time-only should assume today when AllowDateOnly is true")
	}
	want := time.Date(2026, time.March, 11, 16, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("a las 4pm = %s, want %s", got, want)
	}

	// Assumed-today time already past still fails.
	if _, ok := r.Resolve("a las 9am", ResolveOptions{AllowDateOnly: true}); ok {
		t.Error("past time-only should fail even with AllowDateOnly")
	}
}

func TestResolveRejectsPast(t *testing.T) {
	r := testResolver()

	if _, ok := r.Resolve("hoy a las 9am", ResolveOptions{}); ok {
		t.Error("past timestamp must be rejected")
	}
}

func TestResolveNeverPanicsOnGarbage(t *testing.T) {
	r := testResolver()

	garbage := []string{
		"",
		"   ",
		"asdf qwerty zxcv",
		"quiero información del servicio",
		"99:99",
		"el 45 de otromes",
		"????",
		"no sé todavía",
	}
	for _, phrase := range garbage {
		if got, ok := r.Resolve(phrase, ResolveOptions{AllowDateOnly: true}); ok {
			t.Errorf("Resolve(%q) = %s, want failure", phrase, got)
		}
	}
}

func TestResolveAlwaysFuture(t *testing.T) {
	r := testResolver()

	phrases := []string{
		"mañana a las 9am",
		"el lunes a las 1pm",
		"el sábado a las 10am",
		"domingo a las 11:00",
	}
	for _, phrase := range phrases {
		got, ok := r.Resolve(phrase, ResolveOptions{})
		if !ok {
			t.Errorf("Resolve(%q) failed", phrase)
			continue
		}
		if !got.After(testNow) {
			t.Errorf("Resolve(%q) = %s, not after now %s", phrase, got, testNow)
		}
	}
}
