package funcs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/israelwong/promediamx-sub002/internal/messaging"
)

// Function names as the upstream assistant invokes them. The wire contract
// is Spanish; it predates this service and is shared with the assistant's
// tool definitions.
const (
	FnListarServicios         = "listarServicios"
	FnVerificarDisponibilidad = "verificarDisponibilidad"
	FnAgendarCita             = "agendarCita"
	FnConfirmarCita           = "confirmarCita"
	FnCancelarCita            = "cancelarCita"
	FnConfirmarCancelacion    = "confirmarCancelacion"
	FnReagendarCita           = "reagendarCita"
	FnConfirmarReagendamiento = "confirmarReagendamiento"
	FnMostrarOferta           = "mostrarOferta"
	FnAceptarOferta           = "aceptarOferta"
	FnIniciarPago             = "iniciarPago"
)

// ExecutionContext carries the per-dispatch identity an executor needs.
// Built by the dispatcher from the task's metadata.
type ExecutionContext struct {
	TaskID         uuid.UUID
	ConversationID uuid.UUID
	BusinessID     uuid.UUID
	AssistantID    uuid.UUID
	LeadID         uuid.UUID
	Channel        string
	Destination    string
	Locale         string
	Currency       string
	Now            time.Time
}

// ChannelCarriesPhone reports whether the delivery channel already carries a
// verified phone identity, which waives the phone requirement for bookings.
func (ec ExecutionContext) ChannelCarriesPhone() bool {
	switch ec.Channel {
	case "whatsapp", "WhatsApp", "WHATSAPP":
		return true
	}
	return false
}

// Result is the structured outcome of one executor invocation. A clarifying
// question back to the user is a successful Result, not an error; errors are
// reserved for configuration and infrastructure failures.
type Result struct {
	Content       string
	Media         []messaging.MediaItem
	UIPayload     map[string]any
	AIContextData map[string]any
}

// Empty reports whether the result carries nothing to deliver.
func (r *Result) Empty() bool {
	return r == nil || (r.Content == "" && len(r.Media) == 0 && len(r.UIPayload) == 0)
}

// Executor implements one assistant-invokable action. Implementations must
// treat args as untrusted: the upstream model forgets, contradicts and
// duplicates prior turns, so every field is re-derived or re-validated.
type Executor interface {
	Name() string
	Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (*Result, error)
}

// UserError is an executor failure that carries a message safe to show the
// end user. The dispatcher unwraps it; anything else gets a generic apology.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *UserError) Unwrap() error { return e.Err }

// AsUserError extracts the user-safe message from an error chain, if any.
func AsUserError(err error) (string, bool) {
	var ue *UserError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message, true
	}
	return "", false
}

// HandOff builds the advisory next-action payload a collector hands back so
// the upstream model can invoke the confirming action with fully resolved
// arguments. The confirming executor still re-validates everything; this is
// a hint carried over an untrusted channel, not a control-flow guarantee.
func HandOff(nextAction string, nextArgs map[string]any) map[string]any {
	return map[string]any{
		"nextActionName": nextAction,
		"nextActionArgs": nextArgs,
	}
}
