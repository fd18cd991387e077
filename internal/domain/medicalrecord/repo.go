package medicalrecord

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence boundary for record entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID, category string, limit, offset int) ([]*Entry, int, error)
}
