package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/israelwong/promediamx-sub002/internal/conversation"
	"github.com/israelwong/promediamx-sub002/internal/funcs"
	"github.com/israelwong/promediamx-sub002/internal/messaging"
	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

var (
	taskID      = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	assistantID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
	convID      = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000003")
	leadID      = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000004")
	businessID  = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000005")
)

type stubTasks struct {
	task       *Task
	getErr     error
	completed  []completion
	completErr error
}

type completion struct {
	id       uuid.UUID
	status   TaskStatus
	metadata []byte
}

func (s *stubTasks) GetTask(context.Context, uuid.UUID) (*Task, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	out := *s.task
	return &out, nil
}

func (s *stubTasks) Complete(_ context.Context, id uuid.UUID, status TaskStatus, metadata []byte) error {
	if s.completErr != nil {
		return s.completErr
	}
	s.completed = append(s.completed, completion{id: id, status: status, metadata: metadata})
	return nil
}

type stubAssistants struct {
	assistant *Assistant
	err       error
}

func (s *stubAssistants) GetAssistant(context.Context, uuid.UUID) (*Assistant, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *s.assistant
	return &out, nil
}

type stubSender struct {
	sent    []messaging.OutboundMessage
	sendErr error
}

func (s *stubSender) Send(_ context.Context, msg messaging.OutboundMessage) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

type stubTurns struct {
	turns []conversation.Interaction
}

func (s *stubTurns) Append(_ context.Context, in *conversation.Interaction) error {
	s.turns = append(s.turns, *in)
	return nil
}

type scriptedExecutor struct {
	name    string
	result  *funcs.Result
	err     error
	panicy  bool
	calls   int
	lastECX funcs.ExecutionContext
}

func (e *scriptedExecutor) Name() string { return e.name }

func (e *scriptedExecutor) Execute(_ context.Context, _ map[string]any, ec funcs.ExecutionContext) (*funcs.Result, error) {
	e.calls++
	e.lastECX = ec
	if e.panicy {
		panic("boom")
	}
	return e.result, e.err
}

func validMetadata(function string) []byte {
	meta := map[string]any{
		"funcionLlamada":     function,
		"argumentos":         map[string]any{"servicio": "corte"},
		"conversacionId":     convID.String(),
		"leadId":             leadID.String(),
		"asistenteVirtualId": assistantID.String(),
		"canalNombre":        "webchat",
		"destinatarioId":     "webchat:abc",
	}
	raw, _ := json.Marshal(meta)
	return raw
}

func pendingTask(metadata []byte) *Task {
	return &Task{ID: taskID, Status: TaskPending, Metadata: metadata}
}

func newTestDispatcher(tasks *stubTasks, assistants *stubAssistants, sender *stubSender, turns *stubTurns, executors ...funcs.Executor) *Dispatcher {
	return NewDispatcher(tasks, assistants, funcs.NewRegistry(executors...), sender, turns, logging.New("error"),
		WithClock(func() time.Time { return time.Date(2026, time.March, 11, 15, 0, 0, 0, time.UTC) }))
}

func decodeResult(t *testing.T, metadata []byte) DispatchResult {
	t.Helper()
	var doc struct {
		Result DispatchResult `json:"resultadoDespacho"`
	}
	require.NoError(t, json.Unmarshal(metadata, &doc))
	return doc.Result
}

func TestDispatchSuccessSendsAndCompletes(t *testing.T) {
	exec := &scriptedExecutor{
		name: "listarServicios",
		result: &funcs.Result{
			Content:       "Estos son nuestros servicios",
			AIContextData: map[string]any{"serviciosDisponibles": []string{"Corte"}},
		},
	}
	tasks := &stubTasks{task: pendingTask(validMetadata("listarServicios"))}
	assistants := &stubAssistants{assistant: &Assistant{ID: assistantID, BusinessID: businessID, Active: true}}
	sender := &stubSender{}
	turns := &stubTurns{}
	d := newTestDispatcher(tasks, assistants, sender, turns, exec)

	require.NoError(t, d.Dispatch(context.Background(), taskID))

	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, businessID, exec.lastECX.BusinessID)
	assert.Equal(t, leadID, exec.lastECX.LeadID)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Estos son nuestros servicios", sender.sent[0].Content)
	assert.Equal(t, "webchat:abc", sender.sent[0].Destination)

	require.Len(t, tasks.completed, 1)
	assert.Equal(t, TaskCompleted, tasks.completed[0].status)
	result := decodeResult(t, tasks.completed[0].metadata)
	assert.True(t, result.Success)
	assert.True(t, result.MessageSent)
	assert.Equal(t, "texto", result.ContentType)

	// The turn lands in the conversation log with AI context merged in.
	require.Len(t, turns.turns, 1)
	assert.Equal(t, "listarServicios", turns.turns[0].FunctionName)
	assert.Equal(t, "corte", turns.turns[0].FunctionArgs["servicio"])
	assert.NotNil(t, turns.turns[0].FunctionArgs["serviciosDisponibles"])
}

// Scenario: an unknown function name is a recoverable condition. The task
// completes with an "action not configured" message and no executor runs.
func TestDispatchUnknownFunctionCompletes(t *testing.T) {
	exec := &scriptedExecutor{name: "otraCosa", result: &funcs.Result{Content: "x"}}
	tasks := &stubTasks{task: pendingTask(validMetadata("funcionInexistente"))}
	assistants := &stubAssistants{assistant: &Assistant{ID: assistantID, BusinessID: businessID, Active: true}}
	sender := &stubSender{}
	d := newTestDispatcher(tasks, assistants, sender, &stubTurns{}, exec)

	require.NoError(t, d.Dispatch(context.Background(), taskID))

	assert.Equal(t, 0, exec.calls, "no executor may run for an unknown function")
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Content, "no está disponible")

	require.Len(t, tasks.completed, 1)
	assert.Equal(t, TaskCompleted, tasks.completed[0].status)
	assert.True(t, decodeResult(t, tasks.completed[0].metadata).Success)
}

func TestDispatchMissingMetadataFailsWithoutMessage(t *testing.T) {
	tasks := &stubTasks{task: pendingTask(nil)}
	sender := &stubSender{}
	d := newTestDispatcher(tasks, &stubAssistants{}, sender, &stubTurns{})

	require.NoError(t, d.Dispatch(context.Background(), taskID))

	assert.Empty(t, sender.sent)
	require.Len(t, tasks.completed, 1)
	assert.Equal(t, TaskFailed, tasks.completed[0].status)
	assert.Equal(t, "METADATA_MISSING", decodeResult(t, tasks.completed[0].metadata).Error)
}

func TestDispatchValidationErrorsAreAudited(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"funcionLlamada": "listarServicios",
		"canalNombre":    "webchat",
		"destinatarioId": "webchat:abc",
	})
	tasks := &stubTasks{task: pendingTask(raw)}
	sender := &stubSender{}
	d := newTestDispatcher(tasks, &stubAssistants{}, sender, &stubTurns{})

	require.NoError(t, d.Dispatch(context.Background(), taskID))

	// The user gets a generic apology; field detail stays in the audit trail.
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Content, "problema técnico")

	require.Len(t, tasks.completed, 1)
	result := decodeResult(t, tasks.completed[0].metadata)
	assert.Equal(t, TaskFailed, tasks.completed[0].status)
	assert.Len(t, result.ValidationErrors, 3)
}

func TestDispatchExecutorPanicIsContained(t *testing.T) {
	exec := &scriptedExecutor{name: "agendarCita", panicy: true}
	tasks := &stubTasks{task: pendingTask(validMetadata("agendarCita"))}
	assistants := &stubAssistants{assistant: &Assistant{ID: assistantID, BusinessID: businessID, Active: true}}
	sender := &stubSender{}
	d := newTestDispatcher(tasks, assistants, sender, &stubTurns{}, exec)

	require.NoError(t, d.Dispatch(context.Background(), taskID))

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Content, "problema técnico")
	assert.NotContains(t, sender.sent[0].Content, "boom", "panic detail must never reach the user")

	require.Len(t, tasks.completed, 1)
	result := decodeResult(t, tasks.completed[0].metadata)
	assert.Equal(t, TaskFailed, tasks.completed[0].status)
	assert.Contains(t, result.Error, "boom")
}

func TestDispatchExecutorUserErrorMessageWins(t *testing.T) {
	exec := &scriptedExecutor{
		name: "iniciarPago",
		err: &funcs.UserError{
			Message: "No pude generar tu liga de pago.",
			Err:     fmt.Errorf("gateway down"),
		},
	}
	tasks := &stubTasks{task: pendingTask(validMetadata("iniciarPago"))}
	assistants := &stubAssistants{assistant: &Assistant{ID: assistantID, BusinessID: businessID, Active: true}}
	sender := &stubSender{}
	d := newTestDispatcher(tasks, assistants, sender, &stubTurns{}, exec)

	require.NoError(t, d.Dispatch(context.Background(), taskID))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "No pude generar tu liga de pago.", sender.sent[0].Content)
	assert.Equal(t, TaskFailed, tasks.completed[0].status)
}

func TestDispatchInactiveAssistantIsFatal(t *testing.T) {
	exec := &scriptedExecutor{name: "listarServicios", result: &funcs.Result{Content: "x"}}
	tasks := &stubTasks{task: pendingTask(validMetadata("listarServicios"))}
	assistants := &stubAssistants{assistant: &Assistant{ID: assistantID, BusinessID: businessID, Active: false}}
	sender := &stubSender{}
	d := newTestDispatcher(tasks, assistants, sender, &stubTurns{}, exec)

	require.NoError(t, d.Dispatch(context.Background(), taskID))

	assert.Equal(t, 0, exec.calls)
	assert.Equal(t, TaskFailed, tasks.completed[0].status)
}

func TestDispatchRefusesTerminalTask(t *testing.T) {
	tasks := &stubTasks{task: &Task{ID: taskID, Status: TaskCompleted, Metadata: validMetadata("listarServicios")}}
	d := newTestDispatcher(tasks, &stubAssistants{}, &stubSender{}, &stubTurns{})

	err := d.Dispatch(context.Background(), taskID)

	require.ErrorIs(t, err, ErrTaskAlreadyDispatched)
	assert.Empty(t, tasks.completed, "a terminal task must never be written again")
}

func TestDispatchRefusesTaskWithExistingResult(t *testing.T) {
	meta := map[string]any{
		"funcionLlamada":     "listarServicios",
		"conversacionId":     convID.String(),
		"leadId":             leadID.String(),
		"asistenteVirtualId": assistantID.String(),
		"resultadoDespacho":  map[string]any{"exito": true},
	}
	raw, _ := json.Marshal(meta)
	tasks := &stubTasks{task: pendingTask(raw)}
	sender := &stubSender{}
	d := newTestDispatcher(tasks, &stubAssistants{}, sender, &stubTurns{})

	err := d.Dispatch(context.Background(), taskID)

	require.ErrorIs(t, err, ErrTaskAlreadyDispatched)
	assert.Empty(t, sender.sent)
	assert.Empty(t, tasks.completed)
}

func TestDispatchTaskNotFound(t *testing.T) {
	tasks := &stubTasks{getErr: ErrTaskNotFound}
	d := newTestDispatcher(tasks, &stubAssistants{}, &stubSender{}, &stubTurns{})

	err := d.Dispatch(context.Background(), taskID)

	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestDispatchDeliveryFailureIsRecorded(t *testing.T) {
	exec := &scriptedExecutor{name: "listarServicios", result: &funcs.Result{Content: "hola"}}
	tasks := &stubTasks{task: pendingTask(validMetadata("listarServicios"))}
	assistants := &stubAssistants{assistant: &Assistant{ID: assistantID, BusinessID: businessID, Active: true}}
	sender := &stubSender{sendErr: errors.New("channel down")}
	d := newTestDispatcher(tasks, assistants, sender, &stubTurns{}, exec)

	require.NoError(t, d.Dispatch(context.Background(), taskID))

	require.Len(t, tasks.completed, 1)
	result := decodeResult(t, tasks.completed[0].metadata)
	assert.True(t, result.Success, "executor outcome stands even when delivery fails")
	assert.False(t, result.MessageSent)
}

func TestDispatchEmptyResultSendsNothing(t *testing.T) {
	exec := &scriptedExecutor{name: "listarServicios", result: &funcs.Result{}}
	tasks := &stubTasks{task: pendingTask(validMetadata("listarServicios"))}
	assistants := &stubAssistants{assistant: &Assistant{ID: assistantID, BusinessID: businessID, Active: true}}
	sender := &stubSender{}
	d := newTestDispatcher(tasks, assistants, sender, &stubTurns{}, exec)

	require.NoError(t, d.Dispatch(context.Background(), taskID))

	assert.Empty(t, sender.sent)
	result := decodeResult(t, tasks.completed[0].metadata)
	assert.True(t, result.Success)
	assert.False(t, result.MessageSent)
}
