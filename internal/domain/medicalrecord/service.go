package medicalrecord

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/platform/actor"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListEntries returns a page of a patient's record entries, newest first.
// Authorization has already been decided by the access gate.
func (s *Service) ListEntries(ctx context.Context, patientID uuid.UUID, category string, limit, offset int) ([]*Entry, int, error) {
	return s.repo.ListForPatient(ctx, patientID, category, limit, offset)
}

// GetEntry returns a single entry, scoped to the patient whose record was
// opened. An entry id belonging to another patient reads as not found.
func (s *Service) GetEntry(ctx context.Context, patientID, entryID uuid.UUID) (*Entry, error) {
	e, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.PatientID != patientID {
		return nil, ErrNotFound
	}
	return e, nil
}

// AddEntry appends a new entry to a patient's record, attributed to the
// acting professional.
func (s *Service) AddEntry(ctx context.Context, patientID uuid.UUID, author actor.Actor, category, title, body string, recordedAt time.Time) (*Entry, error) {
	e, err := NewEntry(patientID, category, title, body, author.Ref(), recordedAt)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("add record entry: %w", err)
	}
	return e, nil
}
