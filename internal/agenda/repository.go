package agenda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrServiceTypeNotFound indicates the requested catalog entry does not exist.
var ErrServiceTypeNotFound = errors.New("agenda: service type not found")

// ErrScheduleNotConfigured indicates the business has no schedule configuration.
var ErrScheduleNotConfigured = errors.New("agenda: schedule not configured")

// ErrAppointmentNotFound indicates the appointment does not exist.
var ErrAppointmentNotFound = errors.New("agenda: appointment not found")

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Repository provides persistence for appointments, their audit history and
// the read-only schedule/catalog entities.
type Repository struct {
	db db
}

// NewRepository creates a repository backed by a pgx pool (or a mock in tests).
func NewRepository(conn db) *Repository {
	if conn == nil {
		panic("agenda: db connection required")
	}
	return &Repository{db: conn}
}

// GetServiceType loads a catalog entry by id, scoped to the business.
func (r *Repository) GetServiceType(ctx context.Context, businessID, id uuid.UUID) (*ServiceType, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, business_id, name, duration_minutes, concurrency_cap, modalities, active
		FROM service_types
		WHERE id = $1 AND business_id = $2
	`, id, businessID)
	return scanServiceType(row)
}

// FindServiceTypeByName resolves a catalog entry by case-insensitive name match.
func (r *Repository) FindServiceTypeByName(ctx context.Context, businessID uuid.UUID, name string) (*ServiceType, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, business_id, name, duration_minutes, concurrency_cap, modalities, active
		FROM service_types
		WHERE business_id = $1 AND active AND lower(name) = lower($2)
	`, businessID, name)
	svc, err := scanServiceType(row)
	if err == nil || !errors.Is(err, ErrServiceTypeNotFound) {
		return svc, err
	}

	// Fall back to a containment match so "corte" finds "Corte de cabello".
	row = r.db.QueryRow(ctx, `
		SELECT id, business_id, name, duration_minutes, concurrency_cap, modalities, active
		FROM service_types
		WHERE business_id = $1 AND active AND name ILIKE '%' || $2 || '%'
		ORDER BY length(name)
		LIMIT 1
	`, businessID, name)
	return scanServiceType(row)
}

// ListServiceTypes returns the active catalog for a business, name-ordered.
func (r *Repository) ListServiceTypes(ctx context.Context, businessID uuid.UUID) ([]ServiceType, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, business_id, name, duration_minutes, concurrency_cap, modalities, active
		FROM service_types
		WHERE business_id = $1 AND active
		ORDER BY name
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("agenda: list service types failed: %w", err)
	}
	defer rows.Close()

	var out []ServiceType
	for rows.Next() {
		var svc ServiceType
		if err := rows.Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMinutes, &svc.ConcurrencyCap, &svc.Modalities, &svc.Active); err != nil {
			return nil, fmt.Errorf("agenda: scan service type failed: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// GetScheduleConfig loads the weekly schedule and booking policy for a business.
func (r *Repository) GetScheduleConfig(ctx context.Context, businessID uuid.UUID) (*ScheduleConfig, error) {
	cfg := ScheduleConfig{BusinessID: businessID}
	row := r.db.QueryRow(ctx, `
		SELECT timezone, requires_name, requires_email, requires_phone, buffer_minutes
		FROM schedule_configs
		WHERE business_id = $1
	`, businessID)
	if err := row.Scan(&cfg.Timezone, &cfg.RequiresName, &cfg.RequiresEmail, &cfg.RequiresPhone, &cfg.BufferMinutes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotConfigured
		}
		return nil, fmt.Errorf("agenda: load schedule config failed: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT weekday, open_time, close_time
		FROM schedule_windows
		WHERE business_id = $1
		ORDER BY weekday
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("agenda: load schedule windows failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var w WeeklyWindow
		var weekday int
		if err := rows.Scan(&weekday, &w.OpenTime, &w.CloseTime); err != nil {
			return nil, fmt.Errorf("agenda: scan schedule window failed: %w", err)
		}
		w.Weekday = time.Weekday(weekday)
		cfg.Windows = append(cfg.Windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agenda: schedule windows rows: %w", err)
	}
	return &cfg, nil
}

// ExceptionFor returns the per-date schedule override, or nil when the weekly
// schedule governs the date.
func (r *Repository) ExceptionFor(ctx context.Context, businessID uuid.UUID, date time.Time) (*ScheduleException, error) {
	var exc ScheduleException
	row := r.db.QueryRow(ctx, `
		SELECT business_id, date, closed, COALESCE(open_time, ''), COALESCE(close_time, ''), COALESCE(reason, '')
		FROM schedule_exceptions
		WHERE business_id = $1 AND date = $2
	`, businessID, date.Format("2006-01-02"))
	if err := row.Scan(&exc.BusinessID, &exc.Date, &exc.Closed, &exc.OpenTime, &exc.CloseTime, &exc.Reason); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("agenda: exception lookup failed: %w", err)
	}
	return &exc, nil
}

// CountActiveAtSlot counts non-terminal appointments of the service type that
// start at exactly the desired instant.
func (r *Repository) CountActiveAtSlot(ctx context.Context, businessID, serviceTypeID uuid.UUID, start time.Time) (int, error) {
	var count int
	row := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE business_id = $1
		  AND service_type_id = $2
		  AND start_at = $3
		  AND status NOT IN ('CANCELADA', 'COMPLETADA', 'NO_ASISTIO')
	`, businessID, serviceTypeID, start)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("agenda: slot count failed: %w", err)
	}
	return count, nil
}

// GetAppointment loads an appointment scoped to the business.
func (r *Repository) GetAppointment(ctx context.Context, businessID, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, business_id, lead_id, service_type_id, start_at, subject, modality, status, created_at, updated_at
		FROM appointments
		WHERE id = $1 AND business_id = $2
	`, id, businessID)
	return scanAppointment(row)
}

// ListUpcomingByLead returns the lead's non-terminal appointments from now on,
// soonest first. Used by the cancel/reschedule search step.
func (r *Repository) ListUpcomingByLead(ctx context.Context, businessID, leadID uuid.UUID, now time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, business_id, lead_id, service_type_id, start_at, subject, modality, status, created_at, updated_at
		FROM appointments
		WHERE business_id = $1
		  AND lead_id = $2
		  AND start_at >= $3
		  AND status NOT IN ('CANCELADA', 'COMPLETADA', 'NO_ASISTIO')
		ORDER BY start_at
	`, businessID, leadID, now)
	if err != nil {
		return nil, fmt.Errorf("agenda: list upcoming failed: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var appt Appointment
		if err := rows.Scan(&appt.ID, &appt.BusinessID, &appt.LeadID, &appt.ServiceTypeID, &appt.Start,
			&appt.Subject, &appt.Modality, &appt.Status, &appt.CreatedAt, &appt.UpdatedAt); err != nil {
			return nil, fmt.Errorf("agenda: scan appointment failed: %w", err)
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

// CreateWithHistory inserts the appointment and its CREADA audit row in one
// transaction. A partial write is a correctness violation, so both land or
// neither does.
func (r *Repository) CreateWithHistory(ctx context.Context, appt *Appointment, entry *HistoryEntry) error {
	if appt == nil || entry == nil {
		return errors.New("agenda: appointment and history entry required")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("agenda: begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO appointments (id, business_id, lead_id, service_type_id, start_at, subject, modality, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, appt.ID, appt.BusinessID, appt.LeadID, appt.ServiceTypeID, appt.Start, appt.Subject, appt.Modality, appt.Status); err != nil {
		return fmt.Errorf("agenda: insert appointment: %w", err)
	}

	if err := insertHistory(ctx, tx, appt.ID, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("agenda: commit create tx: %w", err)
	}
	return nil
}

// UpdateStatusWithHistory applies a status transition (and optionally a new
// start time for reschedules) together with its audit row, atomically.
func (r *Repository) UpdateStatusWithHistory(ctx context.Context, businessID, id uuid.UUID, status AppointmentStatus, newStart *time.Time, entry *HistoryEntry) error {
	if entry == nil {
		return errors.New("agenda: history entry required")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("agenda: begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var tag pgconn.CommandTag
	if newStart != nil {
		tag, err = tx.Exec(ctx, `
			UPDATE appointments
			SET status = $1, start_at = $2, updated_at = now()
			WHERE id = $3 AND business_id = $4
		`, status, *newStart, id, businessID)
	} else {
		tag, err = tx.Exec(ctx, `
			UPDATE appointments
			SET status = $1, updated_at = now()
			WHERE id = $2 AND business_id = $3
		`, status, id, businessID)
	}
	if err != nil {
		return fmt.Errorf("agenda: update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	if err := insertHistory(ctx, tx, id, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("agenda: commit update tx: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID, entry *HistoryEntry) error {
	entryID := entry.ID
	if entryID == uuid.Nil {
		entryID = uuid.New()
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO appointment_history (id, appointment_id, action, actor_type, actor_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entryID, appointmentID, entry.Action, entry.ActorType, entry.ActorID, entry.Reason); err != nil {
		return fmt.Errorf("agenda: insert history: %w", err)
	}
	return nil
}

func scanServiceType(row pgx.Row) (*ServiceType, error) {
	var svc ServiceType
	if err := row.Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMinutes, &svc.ConcurrencyCap, &svc.Modalities, &svc.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceTypeNotFound
		}
		return nil, fmt.Errorf("agenda: scan service type: %w", err)
	}
	return &svc, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var appt Appointment
	if err := row.Scan(&appt.ID, &appt.BusinessID, &appt.LeadID, &appt.ServiceTypeID, &appt.Start,
		&appt.Subject, &appt.Modality, &appt.Status, &appt.CreatedAt, &appt.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("agenda: scan appointment: %w", err)
	}
	return &appt, nil
}
