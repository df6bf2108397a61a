package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of an interaction.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Interaction is one turn of a conversation. Append-only, ordered by
// creation time. Assistant turns may carry a function call.
type Interaction struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           Role
	Content        string
	FunctionName   string
	FunctionArgs   map[string]any
	CreatedAt      time.Time
}

// ActionFamily groups a collector action with the terminal action(s) that
// complete it. The assembler folds collector turns and resets on terminals.
type ActionFamily struct {
	Collector string
	Terminals []string
}

// Names returns every function name in the family, collector first.
func (f ActionFamily) Names() []string {
	out := make([]string, 0, len(f.Terminals)+1)
	out = append(out, f.Collector)
	out = append(out, f.Terminals...)
	return out
}

// IsTerminal reports whether name completes the family's task.
func (f ActionFamily) IsTerminal(name string) bool {
	for _, t := range f.Terminals {
		if t == name {
			return true
		}
	}
	return false
}
