package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Repository persists dispatch tasks and resolves assistants.
type Repository struct {
	db db
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(conn db) *Repository {
	if conn == nil {
		panic("dispatch: db connection required")
	}
	return &Repository{db: conn}
}

// GetTask loads a task by id.
func (r *Repository) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, status, metadata, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`, id)

	var task Task
	if err := row.Scan(&task.ID, &task.Status, &task.Metadata, &task.CreatedAt, &task.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("dispatch: select task: %w", err)
	}
	return &task, nil
}

// CreateTask inserts a pending task with the given metadata document.
func (r *Repository) CreateTask(ctx context.Context, id uuid.UUID, metadata []byte) error {
	if id == uuid.Nil {
		id = uuid.New()
	}
	if _, err := r.db.Exec(ctx, `
		INSERT INTO tasks (id, status, metadata)
		VALUES ($1, $2, $3)
	`, id, TaskPending, metadata); err != nil {
		return fmt.Errorf("dispatch: insert task: %w", err)
	}
	return nil
}

// Complete writes the task's single terminal update: merged metadata plus
// terminal status. The status guard makes a second dispatch of the same
// task a no-op at the storage layer too.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, status TaskStatus, metadata []byte) error {
	if !status.Terminal() {
		return fmt.Errorf("dispatch: %q is not a terminal status", status)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE tasks
		SET status = $1, metadata = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, status, metadata, id, TaskPending)
	if err != nil {
		return fmt.Errorf("dispatch: complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskAlreadyDispatched
	}
	return nil
}

// GetAssistant resolves a virtual assistant and its owning business.
func (r *Repository) GetAssistant(ctx context.Context, id uuid.UUID) (*Assistant, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, business_id, name, active
		FROM assistants
		WHERE id = $1
	`, id)

	var a Assistant
	if err := row.Scan(&a.ID, &a.BusinessID, &a.Name, &a.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssistantNotFound
		}
		return nil, fmt.Errorf("dispatch: select assistant: %w", err)
	}
	return &a, nil
}
