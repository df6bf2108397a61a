package leads

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

func TestGetByIDScopedToBusiness(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	businessID, leadID := uuid.New(), uuid.New()
	now := time.Now()
	rows := pgxmock.NewRows([]string{"id", "business_id", "name", "email", "phone", "created_at", "updated_at"}).
		AddRow(leadID, businessID, "Ana Torres", "ana@example.com", "", now, now)
	mock.ExpectQuery("SELECT id, business_id").
		WithArgs(leadID, businessID).
		WillReturnRows(rows)

	repo := NewRepository(mock)
	lead, err := repo.GetByID(context.Background(), businessID, leadID)

	require.NoError(t, err)
	assert.Equal(t, "Ana Torres", lead.Name)
	assert.Empty(t, lead.Phone)
}

func TestGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, business_id").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	repo := NewRepository(mock)
	_, getErr := repo.GetByID(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, getErr, ErrLeadNotFound)
}

func TestUpdateContactKeepsStoredValuesForEmptyFields(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	businessID, leadID := uuid.New(), uuid.New()
	mock.ExpectExec("UPDATE leads").
		WithArgs("Ana Torres", "ana@example.com", "", leadID, businessID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewRepository(mock)
	update := ContactUpdate{Name: "Ana Torres", Email: "ana@example.com"}
	require.NoError(t, repo.UpdateContact(context.Background(), businessID, leadID, update))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateContactEmptyUpdateIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	require.NoError(t, repo.UpdateContact(context.Background(), uuid.New(), uuid.New(), ContactUpdate{}))
	require.NoError(t, mock.ExpectationsWereMet())
}
