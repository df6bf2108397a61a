package agenda

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPendiente  AppointmentStatus = "PENDIENTE"
	StatusReagendada AppointmentStatus = "REAGENDADA"
	StatusCancelada  AppointmentStatus = "CANCELADA"
	StatusCompletada AppointmentStatus = "COMPLETADA"
	StatusNoAsistio  AppointmentStatus = "NO_ASISTIO"
)

// Terminal reports whether the status no longer occupies a slot.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCancelada, StatusCompletada, StatusNoAsistio:
		return true
	}
	return false
}

// HistoryAction identifies the audited transition on an appointment.
type HistoryAction string

const (
	ActionCreada     HistoryAction = "CREADA"
	ActionReagendada HistoryAction = "REAGENDADA"
	ActionCancelada  HistoryAction = "CANCELADA"
	ActionCompletada HistoryAction = "COMPLETADA"
	ActionNoAsistio  HistoryAction = "NO_ASISTIO"
)

// ActorType identifies who drove an appointment transition.
type ActorType string

const (
	ActorAsistente ActorType = "asistente"
	ActorLead      ActorType = "lead"
	ActorAgente    ActorType = "agente"
)

// Appointment is a booked slot for a lead at a business.
type Appointment struct {
	ID            uuid.UUID
	BusinessID    uuid.UUID
	LeadID        uuid.UUID
	ServiceTypeID uuid.UUID
	Start         time.Time
	Subject       string
	Modality      string
	Status        AppointmentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HistoryEntry is one append-only audit row paired with a status transition.
type HistoryEntry struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Action        HistoryAction
	ActorType     ActorType
	ActorID       string
	Reason        string
	CreatedAt     time.Time
}

// ServiceType is a bookable catalog entry. Read-only for this engine.
type ServiceType struct {
	ID              uuid.UUID
	BusinessID      uuid.UUID
	Name            string
	DurationMinutes int
	ConcurrencyCap  int
	Modalities      []string
	Active          bool
}

// Duration returns the service duration as a time.Duration.
func (s ServiceType) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// WeeklyWindow is an open interval for one weekday, times as "HH:MM".
type WeeklyWindow struct {
	Weekday   time.Weekday
	OpenTime  string
	CloseTime string
}

// ScheduleConfig is the per-business weekly schedule plus booking policy.
type ScheduleConfig struct {
	BusinessID    uuid.UUID
	Timezone      string
	Windows       []WeeklyWindow
	RequiresName  bool
	RequiresEmail bool
	RequiresPhone bool
	BufferMinutes int
}

// WindowFor returns the weekly window for a weekday, if one exists.
func (c ScheduleConfig) WindowFor(day time.Weekday) (WeeklyWindow, bool) {
	for _, w := range c.Windows {
		if w.Weekday == day {
			return w, true
		}
	}
	return WeeklyWindow{}, false
}

// ScheduleException overrides the weekly schedule for a single date.
// Keyed uniquely by (business, date).
type ScheduleException struct {
	BusinessID uuid.UUID
	Date       time.Time
	Closed     bool
	OpenTime   string
	CloseTime  string
	Reason     string
}
