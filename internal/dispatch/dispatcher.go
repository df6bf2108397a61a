package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/israelwong/promediamx-sub002/internal/conversation"
	"github.com/israelwong/promediamx-sub002/internal/funcs"
	"github.com/israelwong/promediamx-sub002/internal/messaging"
	"github.com/israelwong/promediamx-sub002/internal/observability/metrics"
	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

const (
	genericFailureMessage = "Lo siento, tuvimos un problema técnico. Un administrador ya fue notificado; intenta de nuevo en unos minutos."
	notConfiguredMessage  = "Esa acción aún no está disponible con este asistente. ¿Te ayudo con algo más?"
)

// TaskStore is the task persistence the dispatcher needs.
type TaskStore interface {
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	Complete(ctx context.Context, id uuid.UUID, status TaskStatus, metadata []byte) error
}

// AssistantStore resolves assistants to their owning business.
type AssistantStore interface {
	GetAssistant(ctx context.Context, id uuid.UUID) (*Assistant, error)
}

// TurnRecorder appends the dispatched function call to the conversation log
// so future context assembly can replay it.
type TurnRecorder interface {
	Append(ctx context.Context, in *conversation.Interaction) error
}

// Dispatcher is the orchestration entry point: load the task, resolve the
// executor, run it behind a panic boundary, deliver the outcome, and write
// the task's single terminal update.
type Dispatcher struct {
	tasks      TaskStore
	assistants AssistantStore
	registry   *funcs.Registry
	sender     messaging.Sender
	turns      TurnRecorder
	metrics    *metrics.DispatchMetrics
	tracer     trace.Tracer
	logger     *logging.Logger
	locale     string
	currency   string
	now        func() time.Time
}

// DispatcherOption customizes the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchMetrics wires prometheus metrics.
func WithDispatchMetrics(m *metrics.DispatchMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLocale overrides the locale/currency stamped into execution contexts.
func WithLocale(locale, currency string) DispatcherOption {
	return func(d *Dispatcher) {
		if locale != "" {
			d.locale = locale
		}
		if currency != "" {
			d.currency = currency
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher builds a dispatcher. sender and turns may be nil in tools
// that only need terminal bookkeeping; everything else is required.
func NewDispatcher(tasks TaskStore, assistants AssistantStore, registry *funcs.Registry, sender messaging.Sender, turns TurnRecorder, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if tasks == nil {
		panic("dispatch: task store required")
	}
	if assistants == nil {
		panic("dispatch: assistant store required")
	}
	if registry == nil {
		panic("dispatch: registry required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		tasks:      tasks,
		assistants: assistants,
		registry:   registry,
		sender:     sender,
		turns:      turns,
		tracer:     otel.Tracer("dispatch"),
		logger:     logger,
		locale:     "es-MX",
		currency:   "MXN",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one task end to end. A failed task is terminal; retry, if
// desired, means enqueueing a new task.
func (d *Dispatcher) Dispatch(ctx context.Context, taskID uuid.UUID) error {
	started := d.now()
	ctx, span := d.tracer.Start(ctx, "dispatch.Task",
		trace.WithAttributes(attribute.String("task.id", taskID.String())))
	defer span.End()

	task, err := d.tasks.GetTask(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		d.logger.Error("task load failed", "error", err, "task_id", taskID)
		return err
	}
	if task.Status.Terminal() {
		d.logger.Warn("refusing to re-dispatch terminal task", "task_id", taskID, "status", task.Status)
		return ErrTaskAlreadyDispatched
	}

	meta, res, outcome, refused := d.process(ctx, task)
	if refused {
		d.logger.Warn("refusing task with existing dispatch result", "task_id", taskID)
		return ErrTaskAlreadyDispatched
	}

	outcome.MessageSent, outcome.ContentType = d.deliver(ctx, meta, res)
	d.recordTurn(ctx, meta, res)

	status := TaskFailed
	if outcome.Success {
		status = TaskCompleted
	}
	merged, mergeErr := mergeResult(task.Metadata, outcome)
	if mergeErr != nil {
		d.logger.Error("metadata merge failed", "error", mergeErr, "task_id", taskID)
		merged = task.Metadata
	}
	if err := d.tasks.Complete(ctx, task.ID, status, merged); err != nil {
		span.RecordError(err)
		d.logger.Error("terminal task update failed", "error", err, "task_id", taskID)
		return err
	}

	function := "unknown"
	if meta != nil && meta.FunctionName != "" {
		function = meta.FunctionName
	}
	label := "failure"
	if outcome.Success {
		label = "success"
	}
	span.SetAttributes(
		attribute.String("dispatch.function", function),
		attribute.String("dispatch.outcome", label),
		attribute.Bool("dispatch.message_sent", outcome.MessageSent),
	)
	d.metrics.ObserveDispatch(function, label, d.now().Sub(started).Seconds())
	d.logger.Info("task dispatched",
		"task_id", taskID,
		"function", function,
		"outcome", label,
		"message_sent", outcome.MessageSent)
	return nil
}

// process runs everything up to, but not including, delivery and the
// terminal write. It never writes to the task.
func (d *Dispatcher) process(ctx context.Context, task *Task) (*TaskMetadata, *funcs.Result, DispatchResult, bool) {
	outcome := DispatchResult{Timestamp: d.now().UTC()}

	if len(task.Metadata) == 0 {
		outcome.Error = "METADATA_MISSING"
		return nil, nil, outcome, false
	}
	var meta TaskMetadata
	if err := json.Unmarshal(task.Metadata, &meta); err != nil {
		outcome.Error = "METADATA_MALFORMED: " + err.Error()
		return nil, nil, outcome, false
	}
	if meta.DispatchResult != nil {
		return &meta, nil, outcome, true
	}

	if problems := meta.Validate(); len(problems) > 0 {
		outcome.Error = "METADATA_INVALID"
		outcome.ValidationErrors = problems
		return &meta, &funcs.Result{Content: genericFailureMessage}, outcome, false
	}

	assistantID := uuid.MustParse(meta.AssistantID)
	assistant, err := d.assistants.GetAssistant(ctx, assistantID)
	if err != nil {
		outcome.Error = fmt.Sprintf("assistant resolution failed: %v", err)
		return &meta, &funcs.Result{Content: genericFailureMessage}, outcome, false
	}
	if !assistant.Active {
		outcome.Error = "assistant is inactive"
		return &meta, &funcs.Result{Content: genericFailureMessage}, outcome, false
	}

	exec, ok := d.registry.Lookup(meta.FunctionName)
	if !ok {
		// An unconfigured action is a recoverable condition, not a failure.
		d.logger.Info("function not configured", "function", meta.FunctionName, "task_id", task.ID)
		outcome.Success = true
		return &meta, &funcs.Result{Content: notConfiguredMessage}, outcome, false
	}

	ec := funcs.ExecutionContext{
		TaskID:         task.ID,
		ConversationID: uuid.MustParse(meta.ConversationID),
		BusinessID:     assistant.BusinessID,
		AssistantID:    assistant.ID,
		LeadID:         uuid.MustParse(meta.LeadID),
		Channel:        meta.Channel,
		Destination:    meta.Destination,
		Locale:         d.locale,
		Currency:       d.currency,
		Now:            d.now(),
	}
	res, execErr := d.safeExecute(ctx, exec, meta.Arguments, ec)
	if execErr != nil {
		// Never leak executor detail to the user; keep it in the audit trail.
		outcome.Error = execErr.Error()
		msg := genericFailureMessage
		if userMsg, ok := funcs.AsUserError(execErr); ok {
			msg = userMsg
		}
		d.logger.Error("executor failed", "error", execErr, "function", meta.FunctionName, "task_id", task.ID)
		return &meta, &funcs.Result{Content: msg}, outcome, false
	}

	outcome.Success = true
	return &meta, res, outcome, false
}

// safeExecute is the panic boundary around executors. A panicking executor
// must never take the dispatch loop down or leak into the outbound channel.
func (d *Dispatcher) safeExecute(ctx context.Context, exec funcs.Executor, args map[string]any, ec funcs.ExecutionContext) (res *funcs.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("dispatch: executor %s panicked: %v", exec.Name(), r)
		}
	}()
	return exec.Execute(ctx, args, ec)
}

func (d *Dispatcher) deliver(ctx context.Context, meta *TaskMetadata, res *funcs.Result) (sent bool, contentType string) {
	if res.Empty() {
		d.logger.Info("no outbound content produced")
		return false, ""
	}
	if d.sender == nil || meta == nil || meta.Destination == "" {
		d.logger.Warn("outbound content dropped: no delivery route",
			"has_sender", d.sender != nil)
		return false, ""
	}

	msg := messaging.OutboundMessage{
		ConversationID: meta.ConversationID,
		Channel:        meta.Channel,
		Destination:    meta.Destination,
		Content:        res.Content,
		Media:          res.Media,
		UIPayload:      res.UIPayload,
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		d.logger.Error("outbound delivery failed", "error", err, "conversation_id", meta.ConversationID)
		return false, ""
	}

	switch {
	case len(res.UIPayload) > 0:
		return true, "ui"
	case len(res.Media) > 0:
		return true, "media"
	default:
		return true, "texto"
	}
}

// recordTurn appends the function call to the conversation log. The AI
// context data is merged into the stored arguments so residual context
// (say, a service name kept after a full slot) survives into future folds.
func (d *Dispatcher) recordTurn(ctx context.Context, meta *TaskMetadata, res *funcs.Result) {
	if d.turns == nil || meta == nil {
		return
	}
	conversationID, err := uuid.Parse(meta.ConversationID)
	if err != nil {
		return
	}

	args := make(map[string]any, len(meta.Arguments))
	for k, v := range meta.Arguments {
		args[k] = v
	}
	if res != nil {
		for k, v := range res.AIContextData {
			args[k] = v
		}
	}
	content := ""
	if res != nil {
		content = res.Content
	}

	turn := &conversation.Interaction{
		ConversationID: conversationID,
		Role:           conversation.RoleAssistant,
		Content:        content,
		FunctionName:   meta.FunctionName,
		FunctionArgs:   args,
	}
	if err := d.turns.Append(ctx, turn); err != nil {
		d.logger.Warn("failed to record conversation turn", "error", err, "conversation_id", meta.ConversationID)
	}
}
