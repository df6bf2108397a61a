package leads

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Repository stores leads in the relational database.
type Repository struct {
	db db
}

// NewRepository initializes a repo backed by a pgx pool.
func NewRepository(conn db) *Repository {
	if conn == nil {
		panic("leads: db connection required")
	}
	return &Repository{db: conn}
}

// GetByID fetches a lead scoped to the business.
func (r *Repository) GetByID(ctx context.Context, businessID, id uuid.UUID) (*Lead, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, business_id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, ''), created_at, updated_at
		FROM leads
		WHERE id = $1 AND business_id = $2
	`, id, businessID)

	var lead Lead
	if err := row.Scan(&lead.ID, &lead.BusinessID, &lead.Name, &lead.Email, &lead.Phone, &lead.CreatedAt, &lead.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return &lead, nil
}

// UpdateContact overwrites the lead's contact details with the confirmed
// values. Empty fields keep their stored value.
func (r *Repository) UpdateContact(ctx context.Context, businessID, id uuid.UUID, update ContactUpdate) error {
	if update.Empty() {
		return nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE leads
		SET name = COALESCE(NULLIF($1, ''), name),
		    email = COALESCE(NULLIF($2, ''), email),
		    phone = COALESCE(NULLIF($3, ''), phone),
		    updated_at = now()
		WHERE id = $4 AND business_id = $5
	`, update.Name, update.Email, update.Phone, id, businessID)
	if err != nil {
		return fmt.Errorf("leads: update contact failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}
