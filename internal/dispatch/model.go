package dispatch

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrTaskNotFound indicates the task does not exist.
var ErrTaskNotFound = errors.New("dispatch: task not found")

// ErrTaskAlreadyDispatched indicates the task already has a terminal
// outcome. Re-dispatching is refused so a completed booking is never
// replayed into a second write.
var ErrTaskAlreadyDispatched = errors.New("dispatch: task already dispatched")

// ErrAssistantNotFound indicates the assistant cannot be resolved.
var ErrAssistantNotFound = errors.New("dispatch: assistant not found")

// TaskStatus is the lifecycle state of a dispatch task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
)

// Terminal reports whether the task reached its single terminal update.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is a persisted unit of deferred function-call work. Metadata is the
// raw JSON document written by the upstream caller; unknown channel fields
// are preserved through the terminal merge.
type Task struct {
	ID        uuid.UUID
	Status    TaskStatus
	Metadata  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskMetadata is the parsed view of a task's metadata document. Keys are
// the Spanish wire contract shared with the upstream assistant.
type TaskMetadata struct {
	FunctionName   string          `json:"funcionLlamada"`
	Arguments      map[string]any  `json:"argumentos"`
	ConversationID string          `json:"conversacionId"`
	LeadID         string          `json:"leadId"`
	AssistantID    string          `json:"asistenteVirtualId"`
	Channel        string          `json:"canalNombre"`
	Destination    string          `json:"destinatarioId"`
	DispatchResult *DispatchResult `json:"resultadoDespacho,omitempty"`
}

// Validate collects the field-level problems that make a task fatally
// malformed. The messages go to the audit trail, not to the end user.
func (m *TaskMetadata) Validate() []string {
	var problems []string
	if m.FunctionName == "" {
		problems = append(problems, "funcionLlamada is required")
	}
	if _, err := uuid.Parse(m.ConversationID); err != nil {
		problems = append(problems, "conversacionId is missing or not a valid id")
	}
	if _, err := uuid.Parse(m.AssistantID); err != nil {
		problems = append(problems, "asistenteVirtualId is missing or not a valid id")
	}
	if _, err := uuid.Parse(m.LeadID); err != nil {
		problems = append(problems, "leadId is missing or not a valid id")
	}
	return problems
}

// DispatchResult is the outcome block merged into the task's metadata by
// its single terminal update.
type DispatchResult struct {
	Timestamp        time.Time `json:"timestamp"`
	Success          bool      `json:"exito"`
	Error            string    `json:"error,omitempty"`
	ValidationErrors []string  `json:"erroresValidacion,omitempty"`
	MessageSent      bool      `json:"mensajeEnviado"`
	ContentType      string    `json:"tipoContenido,omitempty"`
}

// mergeResult folds the dispatch result into the original metadata document
// without disturbing fields this service does not model.
func mergeResult(raw []byte, result DispatchResult) ([]byte, error) {
	doc := make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			// Malformed metadata still gets an auditable outcome.
			doc = map[string]any{"metadataOriginal": string(raw)}
		}
	}
	doc["resultadoDespacho"] = result
	return json.Marshal(doc)
}

// Assistant is the resolved virtual assistant and its owning business.
type Assistant struct {
	ID         uuid.UUID
	BusinessID uuid.UUID
	Name       string
	Active     bool
}
