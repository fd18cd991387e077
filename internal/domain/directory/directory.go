package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a patient or professional id does not resolve.
var ErrNotFound = errors.New("directory: not found")

// Patient is the directory view of a patient: just enough identity to
// validate grant parties and address notifications. The full patient record
// lives elsewhere in the system.
type Patient struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	GivenName  string     `db:"given_name" json:"given_name"`
	FamilyName string     `db:"family_name" json:"family_name"`
	Email      string     `db:"email" json:"email"`
	Phone      string     `db:"phone" json:"phone"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Professional is the directory view of a healthcare professional.
type Professional struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	GivenName  string     `db:"given_name" json:"given_name"`
	FamilyName string     `db:"family_name" json:"family_name"`
	Specialty  string     `db:"specialty" json:"specialty"`
	Email      string     `db:"email" json:"email"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

func (p *Patient) FullName() string {
	return p.GivenName + " " + p.FamilyName
}

func (p *Professional) FullName() string {
	return p.GivenName + " " + p.FamilyName
}

type PatientDirectory interface {
	FindPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
}

type ProfessionalDirectory interface {
	FindProfessional(ctx context.Context, id uuid.UUID) (*Professional, error)
}
