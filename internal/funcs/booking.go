package funcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/israelwong/promediamx-sub002/internal/agenda"
	"github.com/israelwong/promediamx-sub002/internal/conversation"
	"github.com/israelwong/promediamx-sub002/internal/leads"
	"github.com/israelwong/promediamx-sub002/internal/notify"
	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

// BookingFamily groups the booking collector with its confirming terminal.
var BookingFamily = conversation.ActionFamily{
	Collector: FnAgendarCita,
	Terminals: []string{FnConfirmarCita},
}

// BookAppointment is the multi-turn booking collector. It is a state
// machine over the assembled argument set: the state is which required
// fields are still missing, nothing is persisted between turns.
type BookAppointment struct {
	store     AgendaStore
	leads     LeadStore
	assembler ContextAssembler
	resolver  DateTimeResolver
	arbiter   SlotChecker
	logger    *logging.Logger
}

// NewBookAppointment builds the booking collector.
func NewBookAppointment(store AgendaStore, leadStore LeadStore, assembler ContextAssembler, resolver DateTimeResolver, arbiter SlotChecker, logger *logging.Logger) *BookAppointment {
	if store == nil || leadStore == nil || assembler == nil || resolver == nil || arbiter == nil {
		panic("funcs: booking collector requires store, leads, assembler, resolver and arbiter")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookAppointment{
		store:     store,
		leads:     leadStore,
		assembler: assembler,
		resolver:  resolver,
		arbiter:   arbiter,
		logger:    logger,
	}
}

func (e *BookAppointment) Name() string { return FnAgendarCita }

func (e *BookAppointment) Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (*Result, error) {
	merged, err := e.assembler.Assemble(ctx, ec.ConversationID, BookingFamily, args)
	if err != nil {
		return nil, fmt.Errorf("funcs: assemble booking context: %w", err)
	}

	serviceName := stringArg(merged, argServicio)
	if serviceName == "" {
		return e.askForService(ctx, ec, "¡Con gusto te agendo! ¿Qué servicio te interesa?")
	}
	svc, err := e.store.FindServiceTypeByName(ctx, ec.BusinessID, serviceName)
	if err != nil {
		if errors.Is(err, agenda.ErrServiceTypeNotFound) {
			return e.askForService(ctx, ec,
				fmt.Sprintf("No encontré el servicio \"%s\". ¿Me confirmas cuál de estos quieres?", serviceName))
		}
		return nil, fmt.Errorf("funcs: resolve service: %w", err)
	}

	phrase := stringArg(merged, argFechaHora)
	if phrase == "" {
		return &Result{
			Content:       fmt.Sprintf("Perfecto, %s. ¿Qué día y hora te gustaría?", svc.Name),
			AIContextData: map[string]any{argServicio: svc.Name},
		}, nil
	}
	start, parsed := e.resolver.Resolve(phrase, agenda.ResolveOptions{})
	if !parsed {
		return &Result{
			Content:       "No logré entender la fecha y hora. ¿Me la indicas de nuevo? Por ejemplo: \"mañana a las 3pm\" o \"viernes a las 10:00\".",
			AIContextData: map[string]any{argServicio: svc.Name},
		}, nil
	}

	cfg, err := e.store.GetScheduleConfig(ctx, ec.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("funcs: load schedule config: %w", err)
	}
	decision, err := e.arbiter.CheckSlot(ctx, *svc, start, *cfg)
	if err != nil {
		return nil, fmt.Errorf("funcs: check slot: %w", err)
	}
	if !decision.Available {
		return &Result{
			Content:       decision.Reason + " ¿Te propongo buscar otro horario?",
			AIContextData: map[string]any{argServicio: svc.Name},
		}, nil
	}

	name, email, phone := e.contactFields(ctx, merged, ec)
	if missing := missingContactLabels(cfg, ec, name, email, phone); len(missing) > 0 {
		return &Result{
			Content: fmt.Sprintf("Ya casi: %s el %s. Para confirmar solo me falta tu %s.",
				svc.Name, formatSlot(start), joinSpanish(missing)),
			AIContextData: map[string]any{
				argServicio:  svc.Name,
				argFechaHora: start.Format(time.RFC3339),
			},
		}, nil
	}

	handoffArgs := map[string]any{
		"servicioId": svc.ID.String(),
		argServicio:  svc.Name,
		argFechaHora: start.Format(time.RFC3339),
		argNombre:    name,
		argEmail:     email,
		argTelefono:  phone,
	}
	if subject := stringArg(merged, argAsunto); subject != "" {
		handoffArgs[argAsunto] = subject
	}
	if modality := stringArg(merged, argModalidad); modality != "" {
		handoffArgs[argModalidad] = modality
	}

	return &Result{
		Content: fmt.Sprintf("Resumen de tu cita:\n• Servicio: %s\n• Fecha: %s\n• Nombre: %s\n¿Confirmamos?",
			svc.Name, formatSlot(start), name),
		AIContextData: HandOff(FnConfirmarCita, handoffArgs),
	}, nil
}

func (e *BookAppointment) askForService(ctx context.Context, ec ExecutionContext, lead string) (*Result, error) {
	services, err := e.store.ListServiceTypes(ctx, ec.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("funcs: list services: %w", err)
	}
	var b strings.Builder
	b.WriteString(lead)
	if len(services) > 0 {
		b.WriteString("\n")
		for _, svc := range services {
			fmt.Fprintf(&b, "• %s\n", svc.Name)
		}
	}
	return &Result{Content: strings.TrimRight(b.String(), "\n")}, nil
}

// contactFields resolves name/email/phone from the assembled args, falling
// back to what the lead record already holds so returning customers are not
// asked again.
func (e *BookAppointment) contactFields(ctx context.Context, merged map[string]any, ec ExecutionContext) (name, email, phone string) {
	name = stringArg(merged, argNombre)
	email = stringArg(merged, argEmail)
	phone = stringArg(merged, argTelefono)
	if name != "" && email != "" && phone != "" {
		return name, email, phone
	}
	lead, err := e.leads.GetByID(ctx, ec.BusinessID, ec.LeadID)
	if err != nil {
		if !errors.Is(err, leads.ErrLeadNotFound) {
			e.logger.Warn("lead lookup failed during booking", "error", err, "lead_id", ec.LeadID)
		}
		return name, email, phone
	}
	if name == "" {
		name = lead.Name
	}
	if email == "" {
		email = lead.Email
	}
	if phone == "" {
		phone = lead.Phone
	}
	return name, email, phone
}

// missingContactLabels returns the human labels of required contact fields
// still missing, so they can be asked in a single batched question. The
// phone requirement is waived on channels that carry a verified phone.
func missingContactLabels(cfg *agenda.ScheduleConfig, ec ExecutionContext, name, email, phone string) []string {
	var missing []string
	if cfg.RequiresName && name == "" {
		missing = append(missing, "nombre")
	}
	if cfg.RequiresEmail && email == "" {
		missing = append(missing, "correo electrónico")
	}
	if cfg.RequiresPhone && phone == "" && !ec.ChannelCarriesPhone() {
		missing = append(missing, "teléfono")
	}
	return missing
}

// ConfirmAppointment is the terminal write step of the booking flow. The
// hand-off arguments are advisory only, so every field is re-validated here
// before anything is persisted.
type ConfirmAppointment struct {
	store    AgendaStore
	leads    LeadStore
	resolver DateTimeResolver
	arbiter  SlotChecker
	notifier notify.EmailSender
	tracer   trace.Tracer
	logger   *logging.Logger
}

// NewConfirmAppointment builds the confirming executor. notifier may be nil
// when email is not configured.
func NewConfirmAppointment(store AgendaStore, leadStore LeadStore, resolver DateTimeResolver, arbiter SlotChecker, notifier notify.EmailSender, logger *logging.Logger) *ConfirmAppointment {
	if store == nil || leadStore == nil || resolver == nil || arbiter == nil {
		panic("funcs: confirm executor requires store, leads, resolver and arbiter")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfirmAppointment{
		store:    store,
		leads:    leadStore,
		resolver: resolver,
		arbiter:  arbiter,
		notifier: notifier,
		tracer:   otel.Tracer("funcs"),
		logger:   logger,
	}
}

func (e *ConfirmAppointment) Name() string { return FnConfirmarCita }

func (e *ConfirmAppointment) Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (*Result, error) {
	svc, res, err := e.resolveService(ctx, args, ec)
	if res != nil || err != nil {
		return res, err
	}

	start, ok := parseHandoffTime(stringArg(args, argFechaHora), e.resolver)
	if !ok {
		return &Result{
			Content:       "Me falta la fecha y hora de la cita. ¿Me la confirmas? Por ejemplo: \"mañana a las 3pm\".",
			AIContextData: map[string]any{argServicio: svc.Name},
		}, nil
	}
	if !start.After(ec.Now) {
		return &Result{
			Content:       "Esa fecha ya pasó. ¿Buscamos un horario futuro?",
			AIContextData: map[string]any{argServicio: svc.Name},
		}, nil
	}

	cfg, err := e.store.GetScheduleConfig(ctx, ec.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("funcs: load schedule config: %w", err)
	}
	decision, err := e.arbiter.CheckSlot(ctx, *svc, start, *cfg)
	if err != nil {
		return nil, fmt.Errorf("funcs: check slot: %w", err)
	}
	if !decision.Available {
		return &Result{
			Content:       decision.Reason + " ¿Te gustaría elegir otro horario?",
			AIContextData: map[string]any{argServicio: svc.Name},
		}, nil
	}

	name := stringArg(args, argNombre)
	email := stringArg(args, argEmail)
	phone := stringArg(args, argTelefono)
	if missing := missingContactLabels(cfg, ec, name, email, phone); len(missing) > 0 {
		return &Result{
			Content: fmt.Sprintf("Antes de confirmar necesito tu %s, por favor.", joinSpanish(missing)),
			AIContextData: map[string]any{
				argServicio:  svc.Name,
				argFechaHora: start.Format(time.RFC3339),
			},
		}, nil
	}

	update := leads.ContactUpdate{Name: name, Email: email, Phone: phone}
	if err := e.leads.UpdateContact(ctx, ec.BusinessID, ec.LeadID, update); err != nil && !errors.Is(err, leads.ErrLeadNotFound) {
		return nil, fmt.Errorf("funcs: update lead contact: %w", err)
	}

	subject := stringArg(args, argAsunto)
	if subject == "" {
		subject = "Cita de " + svc.Name
	}
	modality := stringArg(args, argModalidad)
	if modality == "" && len(svc.Modalities) > 0 {
		modality = svc.Modalities[0]
	}

	appt := &agenda.Appointment{
		ID:            uuid.New(),
		BusinessID:    ec.BusinessID,
		LeadID:        ec.LeadID,
		ServiceTypeID: svc.ID,
		Start:         start,
		Subject:       subject,
		Modality:      modality,
		Status:        agenda.StatusPendiente,
	}
	entry := &agenda.HistoryEntry{
		Action:    agenda.ActionCreada,
		ActorType: agenda.ActorAsistente,
		ActorID:   ec.AssistantID.String(),
		Reason:    "Cita agendada en conversación",
	}
	writeCtx, span := e.tracer.Start(ctx, "funcs.ConfirmAppointment.write",
		trace.WithAttributes(
			attribute.String("appointment.id", appt.ID.String()),
			attribute.String("service.id", svc.ID.String()),
		))
	err = e.store.CreateWithHistory(writeCtx, appt, entry)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	if err != nil {
		return nil, fmt.Errorf("funcs: create appointment: %w", err)
	}

	e.sendConfirmation(ctx, name, email, svc.Name, start)

	return &Result{
		Content: fmt.Sprintf("¡Listo, %s! Tu cita de %s quedó agendada para el %s. Te esperamos.",
			name, svc.Name, formatSlot(start)),
		AIContextData: map[string]any{
			argCitaID:    appt.ID.String(),
			argServicio:  svc.Name,
			argFechaHora: start.Format(time.RFC3339),
			"estadoCita": string(agenda.StatusPendiente),
		},
	}, nil
}

func (e *ConfirmAppointment) resolveService(ctx context.Context, args map[string]any, ec ExecutionContext) (*agenda.ServiceType, *Result, error) {
	if id := uuidArg(args, "servicioId"); id != uuid.Nil {
		svc, err := e.store.GetServiceType(ctx, ec.BusinessID, id)
		if err == nil {
			return svc, nil, nil
		}
		if !errors.Is(err, agenda.ErrServiceTypeNotFound) {
			return nil, nil, fmt.Errorf("funcs: load service: %w", err)
		}
	}
	if name := stringArg(args, argServicio); name != "" {
		svc, err := e.store.FindServiceTypeByName(ctx, ec.BusinessID, name)
		if err == nil {
			return svc, nil, nil
		}
		if !errors.Is(err, agenda.ErrServiceTypeNotFound) {
			return nil, nil, fmt.Errorf("funcs: resolve service: %w", err)
		}
	}
	return nil, &Result{
		Content: "Me falta saber qué servicio deseas agendar. ¿Cuál te interesa?",
	}, nil
}

func (e *ConfirmAppointment) sendConfirmation(ctx context.Context, name, email, serviceName string, start time.Time) {
	if e.notifier == nil || email == "" {
		return
	}
	msg := notify.EmailMessage{
		To:      email,
		ToName:  name,
		Subject: "Confirmación de tu cita",
		Body: fmt.Sprintf("Hola %s,\n\nTu cita de %s quedó agendada para el %s.\n\n¡Te esperamos!",
			name, serviceName, formatSlot(start)),
	}
	if err := e.notifier.Send(ctx, msg); err != nil {
		// Email is best-effort; the booking already succeeded.
		e.logger.Warn("confirmation email failed", "error", err, "to", email)
	}
}

// parseHandoffTime accepts the RFC3339 timestamp a well-behaved hand-off
// carries, falling back to free-text resolution when the caller sent the
// user's phrase instead.
func parseHandoffTime(value string, resolver DateTimeResolver) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	return resolver.Resolve(value, agenda.ResolveOptions{})
}
