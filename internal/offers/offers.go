package offers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrOfferNotFound indicates no matching active offer exists.
var ErrOfferNotFound = errors.New("offers: offer not found")

// Offer is a promotional item the assistant can present. Read-only here;
// offer content management lives elsewhere.
type Offer struct {
	ID          uuid.UUID
	BusinessID  uuid.UUID
	Name        string
	Description string
	PriceCents  int64
	Currency    string
	ImageURL    string
	ValidUntil  *time.Time
	Active      bool
}

type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads offers from the relational database.
type Repository struct {
	db db
}

// NewRepository initializes a repo backed by a pgx pool.
func NewRepository(conn db) *Repository {
	if conn == nil {
		panic("offers: db connection required")
	}
	return &Repository{db: conn}
}

const offerColumns = `id, business_id, name, COALESCE(description, ''), price_cents, currency, COALESCE(image_url, ''), valid_until, active`

// ListActive returns the business's offers still valid as of now.
func (r *Repository) ListActive(ctx context.Context, businessID uuid.UUID, now time.Time) ([]Offer, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE business_id = $1 AND active AND (valid_until IS NULL OR valid_until >= $2)
		ORDER BY name
	`, businessID, now)
	if err != nil {
		return nil, fmt.Errorf("offers: list active failed: %w", err)
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		var o Offer
		if err := rows.Scan(&o.ID, &o.BusinessID, &o.Name, &o.Description, &o.PriceCents, &o.Currency, &o.ImageURL, &o.ValidUntil, &o.Active); err != nil {
			return nil, fmt.Errorf("offers: scan offer failed: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// FindByName resolves an active offer by case-insensitive name match.
func (r *Repository) FindByName(ctx context.Context, businessID uuid.UUID, name string) (*Offer, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE business_id = $1 AND active AND name ILIKE '%' || $2 || '%'
		ORDER BY length(name)
		LIMIT 1
	`, businessID, name)

	var o Offer
	if err := row.Scan(&o.ID, &o.BusinessID, &o.Name, &o.Description, &o.PriceCents, &o.Currency, &o.ImageURL, &o.ValidUntil, &o.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("offers: select failed: %w", err)
	}
	return &o, nil
}
