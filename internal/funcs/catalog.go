package funcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/israelwong/promediamx-sub002/internal/agenda"
	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

// ListServices answers "what can I book?". Single turn, read-only.
type ListServices struct {
	store  AgendaStore
	logger *logging.Logger
}

// NewListServices builds the catalog executor.
func NewListServices(store AgendaStore, logger *logging.Logger) *ListServices {
	if store == nil {
		panic("funcs: agenda store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ListServices{store: store, logger: logger}
}

func (e *ListServices) Name() string { return FnListarServicios }

func (e *ListServices) Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (*Result, error) {
	services, err := e.store.ListServiceTypes(ctx, ec.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("funcs: list services: %w", err)
	}
	if len(services) == 0 {
		return &Result{
			Content: "Por el momento no tenemos servicios disponibles para agendar.",
		}, nil
	}

	var b strings.Builder
	b.WriteString("Estos son nuestros servicios:\n")
	names := make([]string, 0, len(services))
	for _, svc := range services {
		fmt.Fprintf(&b, "• %s (%d min)\n", svc.Name, svc.DurationMinutes)
		names = append(names, svc.Name)
	}
	b.WriteString("¿Cuál te interesa agendar?")

	return &Result{
		Content:       b.String(),
		AIContextData: map[string]any{"serviciosDisponibles": names},
	}, nil
}

// CheckAvailability answers "is there room on <date> for <service>?" without
// committing anything.
type CheckAvailability struct {
	store    AgendaStore
	resolver DateTimeResolver
	arbiter  SlotChecker
	logger   *logging.Logger
}

// NewCheckAvailability builds the availability executor.
func NewCheckAvailability(store AgendaStore, resolver DateTimeResolver, arbiter SlotChecker, logger *logging.Logger) *CheckAvailability {
	if store == nil {
		panic("funcs: agenda store required")
	}
	if resolver == nil {
		panic("funcs: datetime resolver required")
	}
	if arbiter == nil {
		panic("funcs: slot checker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CheckAvailability{store: store, resolver: resolver, arbiter: arbiter, logger: logger}
}

func (e *CheckAvailability) Name() string { return FnVerificarDisponibilidad }

func (e *CheckAvailability) Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (*Result, error) {
	serviceName := stringArg(args, argServicio)
	if serviceName == "" {
		return &Result{Content: "¿Para qué servicio quieres verificar disponibilidad?"}, nil
	}

	svc, err := e.store.FindServiceTypeByName(ctx, ec.BusinessID, serviceName)
	if err != nil {
		if errors.Is(err, agenda.ErrServiceTypeNotFound) {
			return &Result{
				Content: fmt.Sprintf("No encontré el servicio \"%s\". ¿Me confirmas el nombre tal como aparece en nuestro catálogo?", serviceName),
			}, nil
		}
		return nil, fmt.Errorf("funcs: resolve service: %w", err)
	}

	phrase := stringArg(args, argFechaHora)
	if phrase == "" {
		return &Result{
			Content:       fmt.Sprintf("¿Qué día y hora te gustaría para %s?", svc.Name),
			AIContextData: map[string]any{argServicio: svc.Name},
		}, nil
	}
	start, ok := e.resolver.Resolve(phrase, agenda.ResolveOptions{})
	if !ok {
		return &Result{
			Content:       "No logré entender la fecha y hora. ¿Me la repites? Por ejemplo: \"mañana a las 3pm\".",
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
			Content:       decision.Reason + " ¿Te gustaría intentar con otro horario?",
			AIContextData: map[string]any{argServicio: svc.Name},
		}, nil
	}

	return &Result{
		Content: fmt.Sprintf("¡Sí hay disponibilidad para %s el %s! ¿Quieres que la agendemos?", svc.Name, formatSlot(start)),
		AIContextData: map[string]any{
			argServicio:  svc.Name,
			argFechaHora: start.Format(time.RFC3339),
		},
	}, nil
}
