package funcs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/israelwong/promediamx-sub002/internal/agenda"
	"github.com/israelwong/promediamx-sub002/internal/conversation"
	"github.com/israelwong/promediamx-sub002/internal/leads"
	"github.com/israelwong/promediamx-sub002/internal/offers"
)

// AgendaStore is the slice of agenda persistence the executors need.
// Satisfied by *agenda.Repository.
type AgendaStore interface {
	GetServiceType(ctx context.Context, businessID, id uuid.UUID) (*agenda.ServiceType, error)
	FindServiceTypeByName(ctx context.Context, businessID uuid.UUID, name string) (*agenda.ServiceType, error)
	ListServiceTypes(ctx context.Context, businessID uuid.UUID) ([]agenda.ServiceType, error)
	GetScheduleConfig(ctx context.Context, businessID uuid.UUID) (*agenda.ScheduleConfig, error)
	GetAppointment(ctx context.Context, businessID, id uuid.UUID) (*agenda.Appointment, error)
	ListUpcomingByLead(ctx context.Context, businessID, leadID uuid.UUID, now time.Time) ([]agenda.Appointment, error)
	CreateWithHistory(ctx context.Context, appt *agenda.Appointment, entry *agenda.HistoryEntry) error
	UpdateStatusWithHistory(ctx context.Context, businessID, id uuid.UUID, status agenda.AppointmentStatus, newStart *time.Time, entry *agenda.HistoryEntry) error
}

// SlotChecker decides slot availability. Satisfied by *agenda.Arbiter.
type SlotChecker interface {
	CheckSlot(ctx context.Context, svc agenda.ServiceType, desiredStart time.Time, cfg agenda.ScheduleConfig) (agenda.SlotDecision, error)
}

// DateTimeResolver turns free-text phrases into timestamps. Satisfied by
// *agenda.Resolver.
type DateTimeResolver interface {
	Resolve(text string, opts agenda.ResolveOptions) (time.Time, bool)
}

// ContextAssembler reconstructs accumulated multi-turn arguments. Satisfied
// by *conversation.Assembler.
type ContextAssembler interface {
	Assemble(ctx context.Context, conversationID uuid.UUID, family conversation.ActionFamily, current map[string]any) (map[string]any, error)
}

// LeadStore reads and updates lead contact details. Satisfied by
// *leads.Repository.
type LeadStore interface {
	GetByID(ctx context.Context, businessID, id uuid.UUID) (*leads.Lead, error)
	UpdateContact(ctx context.Context, businessID, id uuid.UUID, update leads.ContactUpdate) error
}

// OfferStore reads the business's promotional offers. Satisfied by
// *offers.Repository.
type OfferStore interface {
	ListActive(ctx context.Context, businessID uuid.UUID, now time.Time) ([]offers.Offer, error)
	FindByName(ctx context.Context, businessID uuid.UUID, name string) (*offers.Offer, error)
}
