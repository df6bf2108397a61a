package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Store persists interactions to PostgreSQL.
type Store struct {
	db db
}

// NewStore creates an interaction store backed by a pgx pool.
func NewStore(conn db) *Store {
	if conn == nil {
		panic("conversation: db connection required")
	}
	return &Store{db: conn}
}

// Append inserts one interaction turn.
func (s *Store) Append(ctx context.Context, in *Interaction) error {
	if in == nil {
		return errors.New("conversation: interaction required")
	}
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO interactions (id, conversation_id, role, content, function_name, function_args)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`, id, in.ConversationID, in.Role, in.Content, in.FunctionName, in.FunctionArgs); err != nil {
		return fmt.Errorf("conversation: insert interaction: %w", err)
	}
	return nil
}

// ListFunctionCalls returns assistant-authored function-call turns for the
// conversation, restricted to the given function names, in chronological
// order. A zero since means no lower bound.
func (s *Store) ListFunctionCalls(ctx context.Context, conversationID uuid.UUID, names []string, since time.Time) ([]Interaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, role, content, COALESCE(function_name, ''), function_args, created_at
		FROM interactions
		WHERE conversation_id = $1
		  AND role = 'assistant'
		  AND function_name = ANY($2)
		  AND created_at >= $3
		ORDER BY created_at
	`, conversationID, names, since)
	if err != nil {
		return nil, fmt.Errorf("conversation: list function calls: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		if err := rows.Scan(&in.ID, &in.ConversationID, &in.Role, &in.Content, &in.FunctionName, &in.FunctionArgs, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan interaction: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
