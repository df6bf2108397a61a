package funcs

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/israelwong/promediamx-sub002/internal/agenda"
	"github.com/israelwong/promediamx-sub002/internal/conversation"
	"github.com/israelwong/promediamx-sub002/internal/leads"
	"github.com/israelwong/promediamx-sub002/internal/notify"
	"github.com/israelwong/promediamx-sub002/internal/offers"
)

// Wednesday, so "mañana" lands on a serviced Thursday.
var testNow = time.Date(2026, time.March, 11, 15, 0, 0, 0, time.UTC)

var (
	testBusinessID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testAssistantID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	testLeadID      = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	testConvID      = uuid.MustParse("44444444-4444-4444-4444-444444444444")
	testServiceID   = uuid.MustParse("55555555-5555-5555-5555-555555555555")
)

func testContext() ExecutionContext {
	return ExecutionContext{
		TaskID:         uuid.New(),
		ConversationID: testConvID,
		BusinessID:     testBusinessID,
		AssistantID:    testAssistantID,
		LeadID:         testLeadID,
		Channel:        "webchat",
		Destination:    "webchat:abc",
		Locale:         "es-MX",
		Currency:       "MXN",
		Now:            testNow,
	}
}

func testService() agenda.ServiceType {
	return agenda.ServiceType{
		ID:              testServiceID,
		BusinessID:      testBusinessID,
		Name:            "Corte de cabello",
		DurationMinutes: 60,
		ConcurrencyCap:  1,
		Modalities:      []string{"presencial"},
		Active:          true,
	}
}

func testSchedule() *agenda.ScheduleConfig {
	cfg := &agenda.ScheduleConfig{
		BusinessID:    testBusinessID,
		Timezone:      "UTC",
		RequiresName:  true,
		RequiresEmail: true,
	}
	for d := time.Monday; d <= time.Friday; d++ {
		cfg.Windows = append(cfg.Windows, agenda.WeeklyWindow{Weekday: d, OpenTime: "09:00", CloseTime: "18:00"})
	}
	return cfg
}

func testResolver() *agenda.Resolver {
	return agenda.NewResolver(time.UTC, agenda.WithClock(func() time.Time { return testNow }))
}

type statusUpdate struct {
	id       uuid.UUID
	status   agenda.AppointmentStatus
	newStart *time.Time
	entry    *agenda.HistoryEntry
}

// stubAgenda is an in-memory AgendaStore. Created appointments count
// against slot occupancy so back-to-back bookings behave like the real
// repository.
type stubAgenda struct {
	services     []agenda.ServiceType
	schedule     *agenda.ScheduleConfig
	appointments map[uuid.UUID]agenda.Appointment
	created      []agenda.Appointment
	histories    []agenda.HistoryEntry
	updates      []statusUpdate
}

func newStubAgenda() *stubAgenda {
	return &stubAgenda{
		services:     []agenda.ServiceType{testService()},
		schedule:     testSchedule(),
		appointments: make(map[uuid.UUID]agenda.Appointment),
	}
}

func (s *stubAgenda) GetServiceType(_ context.Context, _, id uuid.UUID) (*agenda.ServiceType, error) {
	for _, svc := range s.services {
		if svc.ID == id {
			out := svc
			return &out, nil
		}
	}
	return nil, agenda.ErrServiceTypeNotFound
}

func (s *stubAgenda) FindServiceTypeByName(_ context.Context, _ uuid.UUID, name string) (*agenda.ServiceType, error) {
	for _, svc := range s.services {
		if containsFold(svc.Name, name) {
			out := svc
			return &out, nil
		}
	}
	return nil, agenda.ErrServiceTypeNotFound
}

func (s *stubAgenda) ListServiceTypes(context.Context, uuid.UUID) ([]agenda.ServiceType, error) {
	return s.services, nil
}

func (s *stubAgenda) GetScheduleConfig(context.Context, uuid.UUID) (*agenda.ScheduleConfig, error) {
	if s.schedule == nil {
		return nil, agenda.ErrScheduleNotConfigured
	}
	return s.schedule, nil
}

func (s *stubAgenda) GetAppointment(_ context.Context, _, id uuid.UUID) (*agenda.Appointment, error) {
	appt, ok := s.appointments[id]
	if !ok {
		return nil, agenda.ErrAppointmentNotFound
	}
	out := appt
	return &out, nil
}

func (s *stubAgenda) ListUpcomingByLead(_ context.Context, _, leadID uuid.UUID, now time.Time) ([]agenda.Appointment, error) {
	var out []agenda.Appointment
	for _, appt := range s.appointments {
		if appt.LeadID == leadID && !appt.Status.Terminal() && !appt.Start.Before(now) {
			out = append(out, appt)
		}
	}
	return out, nil
}

func (s *stubAgenda) CreateWithHistory(_ context.Context, appt *agenda.Appointment, entry *agenda.HistoryEntry) error {
	s.appointments[appt.ID] = *appt
	s.created = append(s.created, *appt)
	s.histories = append(s.histories, *entry)
	return nil
}

func (s *stubAgenda) UpdateStatusWithHistory(_ context.Context, _, id uuid.UUID, status agenda.AppointmentStatus, newStart *time.Time, entry *agenda.HistoryEntry) error {
	appt, ok := s.appointments[id]
	if !ok {
		return agenda.ErrAppointmentNotFound
	}
	appt.Status = status
	if newStart != nil {
		appt.Start = *newStart
	}
	s.appointments[id] = appt
	s.updates = append(s.updates, statusUpdate{id: id, status: status, newStart: newStart, entry: entry})
	s.histories = append(s.histories, *entry)
	return nil
}

// CountActiveAtSlot lets the stub double as the arbiter's counter.
func (s *stubAgenda) CountActiveAtSlot(_ context.Context, _, serviceTypeID uuid.UUID, start time.Time) (int, error) {
	count := 0
	for _, appt := range s.appointments {
		if appt.ServiceTypeID == serviceTypeID && appt.Start.Equal(start) && !appt.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

// ExceptionFor lets the stub double as the arbiter's exception finder.
func (s *stubAgenda) ExceptionFor(context.Context, uuid.UUID, time.Time) (*agenda.ScheduleException, error) {
	return nil, nil
}

func containsFold(haystack, needle string) bool {
	return needle != "" && strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// passthroughAssembler returns the current args unchanged, optionally
// merged over a fixed prior context. The fold itself is covered by the
// conversation package tests.
type passthroughAssembler struct {
	prior map[string]any
}

func (a passthroughAssembler) Assemble(_ context.Context, _ uuid.UUID, _ conversation.ActionFamily, current map[string]any) (map[string]any, error) {
	merged := make(map[string]any)
	for k, v := range a.prior {
		merged[k] = v
	}
	for k, v := range current {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		merged[k] = v
	}
	return merged, nil
}

type stubLeads struct {
	lead    *leads.Lead
	updates []leads.ContactUpdate
}

func (s *stubLeads) GetByID(context.Context, uuid.UUID, uuid.UUID) (*leads.Lead, error) {
	if s.lead == nil {
		return nil, leads.ErrLeadNotFound
	}
	out := *s.lead
	return &out, nil
}

func (s *stubLeads) UpdateContact(_ context.Context, _, _ uuid.UUID, update leads.ContactUpdate) error {
	s.updates = append(s.updates, update)
	return nil
}

type stubNotifier struct {
	sent []notify.EmailMessage
}

func (s *stubNotifier) Send(_ context.Context, msg notify.EmailMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}

type stubOffers struct {
	offers []offers.Offer
}

func (s *stubOffers) ListActive(context.Context, uuid.UUID, time.Time) ([]offers.Offer, error) {
	return s.offers, nil
}

func (s *stubOffers) FindByName(_ context.Context, _ uuid.UUID, name string) (*offers.Offer, error) {
	for _, o := range s.offers {
		if containsFold(o.Name, name) {
			out := o
			return &out, nil
		}
	}
	return nil, offers.ErrOfferNotFound
}
