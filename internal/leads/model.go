package leads

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLeadNotFound indicates the requested lead does not exist.
var ErrLeadNotFound = errors.New("leads: lead not found")

// Lead is a prospect or customer tied to a business.
type Lead struct {
	ID         uuid.UUID
	BusinessID uuid.UUID
	Name       string
	Email      string
	Phone      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ContactUpdate carries the confirmed contact details gathered during a
// conversation. Empty fields are left untouched.
type ContactUpdate struct {
	Name  string
	Email string
	Phone string
}

// Empty reports whether the update would change nothing.
func (u ContactUpdate) Empty() bool {
	return u.Name == "" && u.Email == "" && u.Phone == ""
}
