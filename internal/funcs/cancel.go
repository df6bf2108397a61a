package funcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/israelwong/promediamx-sub002/internal/agenda"
	"github.com/israelwong/promediamx-sub002/internal/conversation"
	"github.com/israelwong/promediamx-sub002/internal/notify"
	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

// CancelFamily groups the cancellation collector with its terminal.
var CancelFamily = conversation.ActionFamily{
	Collector: FnCancelarCita,
	Terminals: []string{FnConfirmarCancelacion},
}

// CancelAppointment is the cancellation collector: identify which upcoming
// appointment the user means, then hand off to the confirming step.
type CancelAppointment struct {
	store     AgendaStore
	assembler ContextAssembler
	resolver  DateTimeResolver
	logger    *logging.Logger
}

// NewCancelAppointment builds the cancellation collector.
func NewCancelAppointment(store AgendaStore, assembler ContextAssembler, resolver DateTimeResolver, logger *logging.Logger) *CancelAppointment {
	if store == nil || assembler == nil || resolver == nil {
		panic("funcs: cancel collector requires store, assembler and resolver")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CancelAppointment{store: store, assembler: assembler, resolver: resolver, logger: logger}
}

func (e *CancelAppointment) Name() string { return FnCancelarCita }

func (e *CancelAppointment) Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (*Result, error) {
	merged, err := e.assembler.Assemble(ctx, ec.ConversationID, CancelFamily, args)
	if err != nil {
		return nil, fmt.Errorf("funcs: assemble cancel context: %w", err)
	}

	matches, err := searchAppointments(ctx, e.store, e.resolver, merged, ec)
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return &Result{
			Content: "No encontré citas próximas a tu nombre que se puedan cancelar. ¿Puedes darme más detalles, como el servicio o la fecha?",
		}, nil
	case 1:
		m := matches[0]
		handoffArgs := map[string]any{argCitaID: m.appt.ID.String()}
		if motivo := stringArg(merged, argMotivo); motivo != "" {
			handoffArgs[argMotivo] = motivo
		}
		return &Result{
			Content:       fmt.Sprintf("Encontré tu cita de %s. ¿Confirmas que deseas cancelarla?", m.describe()),
			AIContextData: HandOff(FnConfirmarCancelacion, handoffArgs),
		}, nil
	default:
		return disambiguate(matches, "¿Cuál de tus citas deseas cancelar?"), nil
	}
}

// disambiguate renders a numbered list so the user can pick an appointment.
// The candidate ids ride along in the AI context for the next turn.
func disambiguate(matches []appointmentMatch, question string) *Result {
	var b strings.Builder
	b.WriteString(question + "\n")
	candidates := make([]map[string]any, 0, len(matches))
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. %s\n", i+1, m.describe())
		candidates = append(candidates, map[string]any{
			argCitaID:    m.appt.ID.String(),
			argServicio:  m.serviceName,
			argFechaHora: m.appt.Start.Format(time.RFC3339),
		})
	}
	return &Result{
		Content:       strings.TrimRight(b.String(), "\n"),
		AIContextData: map[string]any{"citasEncontradas": candidates},
	}
}

// ConfirmCancellation is the terminal step: status change plus audit row
// plus best-effort notification.
type ConfirmCancellation struct {
	store    AgendaStore
	leads    LeadStore
	notifier notify.EmailSender
	logger   *logging.Logger
}

// NewConfirmCancellation builds the confirming executor. notifier may be nil.
func NewConfirmCancellation(store AgendaStore, leadStore LeadStore, notifier notify.EmailSender, logger *logging.Logger) *ConfirmCancellation {
	if store == nil || leadStore == nil {
		panic("funcs: cancel confirm requires store and leads")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfirmCancellation{store: store, leads: leadStore, notifier: notifier, logger: logger}
}

func (e *ConfirmCancellation) Name() string { return FnConfirmarCancelacion }

func (e *ConfirmCancellation) Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (*Result, error) {
	id := uuidArg(args, argCitaID)
	if id == uuid.Nil {
		return &Result{Content: "¿Cuál de tus citas deseas cancelar? Dame el servicio o la fecha y la busco."}, nil
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
		return &Result{Content: "Esa cita ya no está activa, no hay nada que cancelar."}, nil
	}

	motivo := stringArg(args, argMotivo)
	entry := &agenda.HistoryEntry{
		Action:    agenda.ActionCancelada,
		ActorType: agenda.ActorLead,
		ActorID:   ec.LeadID.String(),
		Reason:    motivo,
	}
	if err := e.store.UpdateStatusWithHistory(ctx, ec.BusinessID, appt.ID, agenda.StatusCancelada, nil, entry); err != nil {
		if errors.Is(err, agenda.ErrAppointmentNotFound) {
			return &Result{Content: "No encontré esa cita. ¿Me das más detalles para buscarla?"}, nil
		}
		return nil, fmt.Errorf("funcs: cancel appointment: %w", err)
	}

	e.notifyCancellation(ctx, ec, appt)

	return &Result{
		Content: fmt.Sprintf("Tu cita del %s quedó cancelada. Si quieres agendar de nuevo, aquí estoy.", formatSlot(appt.Start)),
		AIContextData: map[string]any{
			argCitaID:    appt.ID.String(),
			"estadoCita": string(agenda.StatusCancelada),
		},
	}, nil
}

func (e *ConfirmCancellation) notifyCancellation(ctx context.Context, ec ExecutionContext, appt *agenda.Appointment) {
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
		Subject: "Tu cita fue cancelada",
		Body: fmt.Sprintf("Hola %s,\n\nTu cita del %s fue cancelada. Puedes agendar una nueva cuando gustes.",
			lead.Name, formatSlot(appt.Start)),
	}
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.logger.Warn("cancellation email failed", "error", err, "to", lead.Email)
	}
}
