package agenda

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/israelwong/promediamx-sub002/internal/observability/metrics"
	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

// SlotDecision is the outcome of an availability check. Reason carries a
// human-readable explanation when the slot is not available.
type SlotDecision struct {
	Available bool
	Reason    string
}

// AppointmentCounter counts non-terminal appointments occupying a slot.
type AppointmentCounter interface {
	CountActiveAtSlot(ctx context.Context, businessID, serviceTypeID uuid.UUID, start time.Time) (int, error)
}

// ExceptionFinder looks up a per-date schedule override. A nil exception
// with nil error means the weekly schedule governs the date.
type ExceptionFinder interface {
	ExceptionFor(ctx context.Context, businessID uuid.UUID, date time.Time) (*ScheduleException, error)
}

// Arbiter decides whether a desired appointment window can be booked under
// the business schedule and per-service concurrency caps.
//
// The occupancy check and the eventual appointment insert are separate
// operations with no lock between them: two concurrent bookings can both
// pass this check for the last slot. Callers sequence dispatches per task,
// which keeps the window small but not zero.
type Arbiter struct {
	counter    AppointmentCounter
	exceptions ExceptionFinder
	metrics    *metrics.DispatchMetrics
	logger     *logging.Logger
}

// ArbiterOption customizes the arbiter.
type ArbiterOption func(*Arbiter)

// WithArbiterMetrics wires slot-check metrics.
func WithArbiterMetrics(m *metrics.DispatchMetrics) ArbiterOption {
	return func(a *Arbiter) {
		a.metrics = m
	}
}

// NewArbiter builds an availability arbiter.
func NewArbiter(counter AppointmentCounter, exceptions ExceptionFinder, logger *logging.Logger, opts ...ArbiterOption) *Arbiter {
	if counter == nil {
		panic("agenda: appointment counter required")
	}
	if exceptions == nil {
		panic("agenda: exception finder required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &Arbiter{
		counter:    counter,
		exceptions: exceptions,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CheckSlot verifies that [desiredStart, desiredStart+duration) fits inside
// the governing open window for that date and that the slot's concurrency
// cap is not exhausted. A false decision is not an error; errors are
// reserved for storage or configuration failures.
func (a *Arbiter) CheckSlot(ctx context.Context, svc ServiceType, desiredStart time.Time, cfg ScheduleConfig) (SlotDecision, error) {
	openTime, closeTime, decision, err := a.governingWindow(ctx, desiredStart, cfg)
	if err != nil {
		return SlotDecision{}, err
	}
	if decision != nil {
		a.observe(*decision, "dia_sin_servicio")
		return *decision, nil
	}

	openMin, err := parseClock(openTime)
	if err != nil {
		return SlotDecision{}, fmt.Errorf("agenda: malformed open time %q for business %s: %w", openTime, cfg.BusinessID, err)
	}
	closeMin, err := parseClock(closeTime)
	if err != nil {
		return SlotDecision{}, fmt.Errorf("agenda: malformed close time %q for business %s: %w", closeTime, cfg.BusinessID, err)
	}

	startMin := desiredStart.Hour()*60 + desiredStart.Minute()
	endMin := startMin + int(svc.Duration().Minutes())
	if startMin < openMin || endMin > closeMin {
		d := SlotDecision{
			Available: false,
			Reason: fmt.Sprintf("El horario de atención de ese día es de %s a %s y la cita de %s requiere %d minutos.",
				openTime, closeTime, svc.Name, svc.DurationMinutes),
		}
		a.observe(d, "fuera_de_horario")
		return d, nil
	}
	count, err := a.counter.CountActiveAtSlot(ctx, cfg.BusinessID, svc.ID, desiredStart)
	if err != nil {
		return SlotDecision{}, fmt.Errorf("agenda: slot occupancy count failed: %w", err)
	}
	limit := svc.ConcurrencyCap
	if limit <= 0 {
		limit = 1
	}
	if count >= limit {
		d := SlotDecision{
			Available: false,
			Reason: fmt.Sprintf("El horario de las %s del %s para %s ya está ocupado.",
				desiredStart.Format("15:04"), desiredStart.Format("02/01/2006"), svc.Name),
		}
		a.observe(d, "cupo_lleno")
		return d, nil
	}

	d := SlotDecision{Available: true}
	a.observe(d, "")
	return d, nil
}

// governingWindow resolves which open interval applies to the date:
// exception hours > weekly config > unserviced day.
func (a *Arbiter) governingWindow(ctx context.Context, desiredStart time.Time, cfg ScheduleConfig) (openTime, closeTime string, decided *SlotDecision, err error) {
	exc, err := a.exceptions.ExceptionFor(ctx, cfg.BusinessID, desiredStart)
	if err != nil {
		return "", "", nil, fmt.Errorf("agenda: exception lookup failed: %w", err)
	}

	if exc != nil {
		if exc.Closed {
			reason := fmt.Sprintf("El día %s no hay servicio.", desiredStart.Format("02/01/2006"))
			if strings.TrimSpace(exc.Reason) != "" {
				reason = fmt.Sprintf("El día %s no hay servicio: %s.", desiredStart.Format("02/01/2006"), exc.Reason)
			}
			return "", "", &SlotDecision{Available: false, Reason: reason}, nil
		}
		if exc.OpenTime != "" && exc.CloseTime != "" {
			return exc.OpenTime, exc.CloseTime, nil, nil
		}
	}

	window, ok := cfg.WindowFor(desiredStart.Weekday())
	if !ok {
		return "", "", &SlotDecision{
			Available: false,
			Reason:    fmt.Sprintf("No hay horario de atención los %s.", spanishWeekday(desiredStart.Weekday())),
		}, nil
	}
	return window.OpenTime, window.CloseTime, nil, nil
}

func (a *Arbiter) observe(d SlotDecision, reason string) {
	a.metrics.ObserveSlotCheck(d.Available, reason)
}

func parseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("bad hour in %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("bad minute in %q", value)
	}
	return hours*60 + minutes, nil
}

func spanishWeekday(d time.Weekday) string {
	switch d {
	case time.Sunday:
		return "domingos"
	case time.Monday:
		return "lunes"
	case time.Tuesday:
		return "martes"
	case time.Wednesday:
		return "miércoles"
	case time.Thursday:
		return "jueves"
	case time.Friday:
		return "viernes"
	case time.Saturday:
		return "sábados"
	}
	return d.String()
}
