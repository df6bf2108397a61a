package offers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListActiveFiltersByValidity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	businessID := uuid.New()
	now := time.Date(2026, time.March, 11, 15, 0, 0, 0, time.UTC)
	until := now.AddDate(0, 1, 0)
	rows := pgxmock.NewRows([]string{"id", "business_id", "name", "description", "price_cents", "currency", "image_url", "valid_until", "active"}).
		AddRow(uuid.New(), businessID, "Paquete facial", "Tres sesiones", int64(150000), "MXN", "", &until, true)
	mock.ExpectQuery("SELECT id, business_id, name").
		WithArgs(businessID, now).
		WillReturnRows(rows)

	repo := NewRepository(mock)
	active, err := repo.ListActive(context.Background(), businessID, now)

	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Paquete facial", active[0].Name)
	assert.Equal(t, int64(150000), active[0].PriceCents)
}

func TestFindByNameNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, business_id, name").
		WithArgs(pgxmock.AnyArg(), "promo inexistente").
		WillReturnError(pgx.ErrNoRows)

	repo := NewRepository(mock)
	_, findErr := repo.FindByName(context.Background(), uuid.New(), "promo inexistente")
	assert.ErrorIs(t, findErr, ErrOfferNotFound)
}
