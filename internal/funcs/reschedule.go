package funcs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/israelwong/promediamx-sub002/internal/agenda"
	"github.com/israelwong/promediamx-sub002/internal/conversation"
	"github.com/israelwong/promediamx-sub002/internal/notify"
	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

// RescheduleFamily groups the reschedule collector with its terminal.
var RescheduleFamily = conversation.ActionFamily{
	Collector: FnReagendarCita,
	Terminals: []string{FnConfirmarReagendamiento},
}

// RescheduleAppointment is the reschedule collector: identify the
// appointment, resolve the new slot, verify availability, hand off.
type RescheduleAppointment struct {
	store     AgendaStore
	assembler ContextAssembler
	resolver  DateTimeResolver
	arbiter   SlotChecker
	logger    *logging.Logger
}

// NewRescheduleAppointment builds the reschedule collector.
func NewRescheduleAppointment(store AgendaStore, assembler ContextAssembler, resolver DateTimeResolver, arbiter SlotChecker, logger *logging.Logger) *RescheduleAppointment {
	if store == nil || assembler == nil || resolver == nil || arbiter == nil {
		panic("funcs: reschedule collector requires store, assembler, resolver and arbiter")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RescheduleAppointment{store: store, assembler: assembler, resolver: resolver, arbiter: arbiter, logger: logger}
}

func (e *RescheduleAppointment) Name() string { return FnReagendarCita }

func (e *RescheduleAppointment) Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (*Result, error) {
	merged, err := e.assembler.Assemble(ctx, ec.ConversationID, RescheduleFamily, args)
	if err != nil {
		return nil, fmt.Errorf("funcs: assemble reschedule context: %w", err)
	}

	matches, err := searchAppointments(ctx, e.store, e.resolver, merged, ec)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return &Result{
			Content: "No encontré citas próximas a tu nombre para reagendar. ¿Me das más detalles, como el servicio o la fecha original?",
		}, nil
	case 1:
		// fall through with the single match
	default:
		return disambiguate(matches, "¿Cuál de tus citas deseas reagendar?"), nil
	}
	m := matches[0]

	phrase := stringArg(merged, argNuevaFecha)
	if phrase == "" {
		return &Result{
			Content:       fmt.Sprintf("Tu cita actual es %s. ¿Para qué día y hora quieres moverla?", m.describe()),
			AIContextData: map[string]any{argCitaID: m.appt.ID.String()},
		}, nil
	}
	newStart, ok := e.resolver.Resolve(phrase, agenda.ResolveOptions{})
	if !ok {
		return &Result{
			Content:       "No logré entender la nueva fecha y hora. ¿Me la repites? Por ejemplo: \"el lunes a las 10am\".",
			AIContextData: map[string]any{argCitaID: m.appt.ID.String()},
		}, nil
	}

	svc, err := e.store.GetServiceType(ctx, ec.BusinessID, m.appt.ServiceTypeID)
	if err != nil {
		return nil, fmt.Errorf("funcs: load service: %w", err)
	}
	cfg, err := e.store.GetScheduleConfig(ctx, ec.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("funcs: load schedule config: %w", err)
	}
	decision, err := e.arbiter.CheckSlot(ctx, *svc, newStart, *cfg)
	if err != nil {
		return nil, fmt.Errorf("funcs: check slot: %w", err)
	}
	if !decision.Available {
		return &Result{
			Content:       decision.Reason + " ¿Probamos con otro horario?",
			AIContextData: map[string]any{argCitaID: m.appt.ID.String()},
		}, nil
	}

	return &Result{
		Content: fmt.Sprintf("Quedaría así: %s pasa del %s al %s. ¿Confirmamos el cambio?",
			svc.Name, formatSlot(m.appt.Start), formatSlot(newStart)),
		AIContextData: HandOff(FnConfirmarReagendamiento, map[string]any{
			argCitaID:     m.appt.ID.String(),
			argNuevaFecha: newStart.Format(time.RFC3339),
		}),
	}, nil
}

// ConfirmReschedule is the terminal step of the reschedule flow. The
// hand-off is advisory, so the slot is re-validated before the write.
type ConfirmReschedule struct {
	store    AgendaStore
	leads    LeadStore
	resolver DateTimeResolver
	arbiter  SlotChecker
	notifier notify.EmailSender
	logger   *logging.Logger
}

// NewConfirmReschedule builds the confirming executor. notifier may be nil.
func NewConfirmReschedule(store AgendaStore, leadStore LeadStore, resolver DateTimeResolver, arbiter SlotChecker, notifier notify.EmailSender, logger *logging.Logger) *ConfirmReschedule {
	if store == nil || leadStore == nil || resolver == nil || arbiter == nil {
		panic("funcs: reschedule confirm requires store, leads, resolver and arbiter")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfirmReschedule{store: store, leads: leadStore, resolver: resolver, arbiter: arbiter, notifier: notifier, logger: logger}
}

func (e *ConfirmReschedule) Name() string { return FnConfirmarReagendamiento }

func (e *ConfirmReschedule) Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (*Result, error) {
	id := uuidArg(args, argCitaID)
	if id == uuid.Nil {
		return &Result{Content: "¿Cuál de tus citas deseas reagendar? Dame el servicio o la fecha y la busco."}, nil
	}

	appt, err := e.store.GetAppointment(ctx, ec.BusinessID, id)
	if err != nil {
		if errors.Is(err, agenda.ErrAppointmentNotFound) {
			return &Result{Content: "No encontré esa cita. ¿Me das más detalles para buscarla?"}, nil
		}
		return nil, fmt.Errorf("funcs: load appointment: %w", err)
	}
	if appt.LeadID != ec.LeadID {
		return &Result{Content: "No encontré esa cita. ¿Me das más detalles para buscarla?"}, nil
	}
	if appt.Status.Terminal() {
		return &Result{Content: "Esa cita ya no está activa. ¿Quieres agendar una nueva?"}, nil
	}

	newStart, ok := parseHandoffTime(stringArg(args, argNuevaFecha), e.resolver)
	if !ok {
		return &Result{
			Content:       "Me falta la nueva fecha y hora. ¿Para cuándo movemos la cita?",
			AIContextData: map[string]any{argCitaID: appt.ID.String()},
		}, nil
	}
	if !newStart.After(ec.Now) {
		return &Result{
			Content:       "Esa fecha ya pasó. ¿Buscamos un horario futuro?",
			AIContextData: map[string]any{argCitaID: appt.ID.String()},
		}, nil
	}

	svc, err := e.store.GetServiceType(ctx, ec.BusinessID, appt.ServiceTypeID)
	if err != nil {
		return nil, fmt.Errorf("funcs: load service: %w", err)
	}
	cfg, err := e.store.GetScheduleConfig(ctx, ec.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("funcs: load schedule config: %w", err)
	}
	decision, err := e.arbiter.CheckSlot(ctx, *svc, newStart, *cfg)
	if err != nil {
		return nil, fmt.Errorf("funcs: check slot: %w", err)
	}
	if !decision.Available {
		return &Result{
			Content:       decision.Reason + " ¿Probamos con otro horario?",
			AIContextData: map[string]any{argCitaID: appt.ID.String()},
		}, nil
	}

	entry := &agenda.HistoryEntry{
		Action:    agenda.ActionReagendada,
		ActorType: agenda.ActorLead,
		ActorID:   ec.LeadID.String(),
		Reason:    fmt.Sprintf("Reagendada del %s al %s", appt.Start.Format("02/01/2006 15:04"), newStart.Format("02/01/2006 15:04")),
	}
	if err := e.store.UpdateStatusWithHistory(ctx, ec.BusinessID, appt.ID, agenda.StatusReagendada, &newStart, entry); err != nil {
		if errors.Is(err, agenda.ErrAppointmentNotFound) {
			return &Result{Content: "No encontré esa cita. ¿Me das más detalles para buscarla?"}, nil
		}
		return nil, fmt.Errorf("funcs: reschedule appointment: %w", err)
	}

	e.notifyReschedule(ctx, ec, svc.Name, newStart)

	return &Result{
		Content: fmt.Sprintf("¡Hecho! Tu cita de %s quedó reagendada para el %s.", svc.Name, formatSlot(newStart)),
		AIContextData: map[string]any{
			argCitaID:    appt.ID.String(),
			argFechaHora: newStart.Format(time.RFC3339),
			"estadoCita": string(agenda.StatusReagendada),
		},
	}, nil
}

func (e *ConfirmReschedule) notifyReschedule(ctx context.Context, ec ExecutionContext, serviceName string, newStart time.Time) {
	if e.notifier == nil {
		return
	}
	lead, err := e.leads.GetByID(ctx, ec.BusinessID, ec.LeadID)
	if err != nil || lead.Email == "" {
		return
	}
	msg := notify.EmailMessage{
		To:      lead.Email,
		ToName:  lead.Name,
		Subject: "Tu cita fue reagendada",
		Body: fmt.Sprintf("Hola %s,\n\nTu cita de %s quedó reagendada para el %s.\n\n¡Te esperamos!",
			lead.Name, serviceName, formatSlot(newStart)),
	}
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.logger.Warn("reschedule email failed", "error", err, "to", lead.Email)
	}
}
