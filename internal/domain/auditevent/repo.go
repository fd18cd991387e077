package auditevent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SearchFilter narrows audit history queries. Zero values mean "no filter".
type SearchFilter struct {
	PatientID      *uuid.UUID
	ProfessionalID *uuid.UUID
	Action         string
	Outcome        string
	From           *time.Time
	To             *time.Time
}

type Repository interface {
	Insert(ctx context.Context, ev *AccessEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*AccessEvent, error)
	Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*AccessEvent, int, error)
}
