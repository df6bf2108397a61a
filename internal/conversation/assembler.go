package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

// TurnSource lists a conversation's function-call turns in chronological
// order, restricted to the given function names.
type TurnSource interface {
	ListFunctionCalls(ctx context.Context, conversationID uuid.UUID, names []string, since time.Time) ([]Interaction, error)
}

// Assembler reconstructs the accumulated argument set of a multi-turn action
// by replaying the conversation's function-call history. The upstream model
// has no durable memory, so state is re-derived on every turn.
type Assembler struct {
	source   TurnSource
	lookback time.Duration
	logger   *logging.Logger
}

// AssemblerOption customizes the assembler.
type AssemblerOption func(*Assembler)

// WithLookback caps how far back turns are replayed. Zero means the whole
// conversation. Capping trades correctness on very old context for cost.
func WithLookback(d time.Duration) AssemblerOption {
	return func(a *Assembler) {
		if d > 0 {
			a.lookback = d
		}
	}
}

// NewAssembler builds a context assembler over the given turn source.
func NewAssembler(source TurnSource, logger *logging.Logger, opts ...AssemblerOption) *Assembler {
	if source == nil {
		panic("conversation: turn source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &Assembler{source: source, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble returns the best-effort accumulated argument set for the family's
// collector action as of now: prior collector turns after the last terminal
// turn are folded left-to-right, and the current turn's arguments win on
// conflicting keys.
func (a *Assembler) Assemble(ctx context.Context, conversationID uuid.UUID, family ActionFamily, current map[string]any) (map[string]any, error) {
	var since time.Time
	if a.lookback > 0 {
		since = time.Now().Add(-a.lookback)
	}

	turns, err := a.source.ListFunctionCalls(ctx, conversationID, family.Names(), since)
	if err != nil {
		return nil, fmt.Errorf("conversation: list function calls: %w", err)
	}

	merged := FoldTurns(turns, family, current)
	a.logger.Debug("context assembled",
		"conversation_id", conversationID,
		"collector", family.Collector,
		"turns", len(turns),
		"keys", len(merged))
	return merged, nil
}

// FoldTurns is the pure fold at the heart of context assembly. Turns must be
// in chronological order. The most recent terminal turn is the reset point:
// collector turns at or before it are excluded, so a completed or abandoned
// attempt never contaminates the next one. No terminal turn means the whole
// history folds.
func FoldTurns(turns []Interaction, family ActionFamily, current map[string]any) map[string]any {
	resetIdx := -1
	for i, turn := range turns {
		if family.IsTerminal(turn.FunctionName) {
			resetIdx = i
		}
	}

	merged := make(map[string]any)
	for i, turn := range turns {
		if i <= resetIdx {
			continue
		}
		if turn.FunctionName != family.Collector {
			continue
		}
		mergeArgs(merged, turn.FunctionArgs)
	}
	mergeArgs(merged, current)
	return merged
}

// mergeArgs is a shallow merge: later keys overwrite earlier ones.
func mergeArgs(dst map[string]any, src map[string]any) {
	for k, v := range src {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		dst[k] = v
	}
}
