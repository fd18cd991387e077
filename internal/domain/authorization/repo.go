package authorization

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists authorizations. Create must be atomic with the
// "one live standard request per (professional, patient) pair" check: two
// concurrent creates for the same pair must not both succeed. Transition
// applies an update guarded by the expected current status so that
// concurrent transitions cannot race into an inconsistent view.
type Repository interface {
	// Create inserts a new authorization. Returns ErrConflict when a live
	// (pending or active) standard authorization already exists for the
	// pair. Override authorizations are never blocked.
	Create(ctx context.Context, a *Authorization) error

	// GetByID returns the authorization or ErrNotFound. Tombstoned rows are
	// excluded.
	GetByID(ctx context.Context, id uuid.UUID) (*Authorization, error)

	// Transition persists a state change guarded by the expected current
	// status. Returns ErrInvalidState when the row exists but is no longer
	// in the expected status, ErrNotFound when it does not exist.
	Transition(ctx context.Context, a *Authorization, from Status) error

	ListPendingForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Authorization, int, error)
	ListActiveForPatient(ctx context.Context, patientID uuid.UUID, now time.Time, limit, offset int) ([]*Authorization, int, error)
	ListActiveForProfessional(ctx context.Context, professionalID uuid.UUID, now time.Time, limit, offset int) ([]*Authorization, int, error)
}
