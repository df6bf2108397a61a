package funcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/israelwong/promediamx-sub002/internal/agenda"
)

// appointmentMatch is one candidate found by the identify step of the
// cancel/reschedule flows.
type appointmentMatch struct {
	appt        agenda.Appointment
	serviceName string
}

func (m appointmentMatch) describe() string {
	name := m.serviceName
	if name == "" {
		name = m.appt.Subject
	}
	return fmt.Sprintf("%s el %s", name, formatSlot(m.appt.Start))
}

// searchAppointments identifies which upcoming appointment the user means:
// by explicit id, by free-text detail against subject or service name, or
// by date. No filter at all returns every upcoming appointment, letting the
// caller disambiguate.
func searchAppointments(ctx context.Context, store AgendaStore, resolver DateTimeResolver, merged map[string]any, ec ExecutionContext) ([]appointmentMatch, error) {
	if id := uuidArg(merged, argCitaID); id != uuid.Nil {
		appt, err := store.GetAppointment(ctx, ec.BusinessID, id)
		if err != nil {
			if errors.Is(err, agenda.ErrAppointmentNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("funcs: load appointment: %w", err)
		}
		if appt.LeadID != ec.LeadID || appt.Status.Terminal() {
			return nil, nil
		}
		return []appointmentMatch{{appt: *appt, serviceName: lookupServiceName(ctx, store, ec, appt.ServiceTypeID)}}, nil
	}

	upcoming, err := store.ListUpcomingByLead(ctx, ec.BusinessID, ec.LeadID, ec.Now)
	if err != nil {
		return nil, fmt.Errorf("funcs: list upcoming appointments: %w", err)
	}
	if len(upcoming) == 0 {
		return nil, nil
	}

	names := make(map[uuid.UUID]string)
	if services, err := store.ListServiceTypes(ctx, ec.BusinessID); err == nil {
		for _, svc := range services {
			names[svc.ID] = svc.Name
		}
	}

	detail := stringArg(merged, "detalle")
	if detail == "" {
		detail = stringArg(merged, argServicio)
	}
	day, hasDay := resolveSearchDay(merged, resolver)

	var out []appointmentMatch
	for _, appt := range upcoming {
		if detail != "" && !matchesDetail(appt, names[appt.ServiceTypeID], detail) {
			continue
		}
		if hasDay && !sameDay(appt.Start, day) {
			continue
		}
		out = append(out, appointmentMatch{appt: appt, serviceName: names[appt.ServiceTypeID]})
	}
	return out, nil
}

func lookupServiceName(ctx context.Context, store AgendaStore, ec ExecutionContext, id uuid.UUID) string {
	svc, err := store.GetServiceType(ctx, ec.BusinessID, id)
	if err != nil {
		return ""
	}
	return svc.Name
}

// resolveSearchDay interprets the fechaHora argument as a date filter.
// Date-only phrases are fine here; the user is pointing at a day, not
// booking a slot.
func resolveSearchDay(merged map[string]any, resolver DateTimeResolver) (time.Time, bool) {
	phrase := stringArg(merged, argFechaHora)
	if phrase == "" {
		return time.Time{}, false
	}
	return resolver.Resolve(phrase, agenda.ResolveOptions{AllowDateOnly: true})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func matchesDetail(appt agenda.Appointment, serviceName, detail string) bool {
	needle := strings.ToLower(detail)
	return strings.Contains(strings.ToLower(appt.Subject), needle) ||
		(serviceName != "" && strings.Contains(strings.ToLower(serviceName), needle))
}
