package medicalrecord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/platform/actor"
)

type mockEntryRepo struct {
	entries map[uuid.UUID]*Entry
}

func newMockEntryRepo() *mockEntryRepo {
	return &mockEntryRepo{entries: make(map[uuid.UUID]*Entry)}
}

func (m *mockEntryRepo) Create(_ context.Context, e *Entry) error {
	m.entries[e.ID] = e
	return nil
}

func (m *mockEntryRepo) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *mockEntryRepo) ListForPatient(_ context.Context, patientID uuid.UUID, category string, _, _ int) ([]*Entry, int, error) {
	var out []*Entry
	for _, e := range m.entries {
		if e.PatientID != patientID {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func TestAddEntry(t *testing.T) {
	svc := NewService(newMockEntryRepo())
	patID := uuid.New()
	author := actor.Professional(uuid.New())

	e, err := svc.AddEntry(context.Background(), patID, author, CategoryConsultation, "Cardiology consult", "stable", time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if e.AuthorRef != author.Ref() {
		t.Errorf("expected author ref %s, got %s", author.Ref(), e.AuthorRef)
	}
	if e.RecordedAt.IsZero() {
		t.Error("expected recorded_at to be defaulted")
	}
}

func TestAddEntry_CategoryAndTitleRequired(t *testing.T) {
	svc := NewService(newMockEntryRepo())

	_, err := svc.AddEntry(context.Background(), uuid.New(), actor.Professional(uuid.New()), "", "title", "", time.Time{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for missing category, got %v", err)
	}
	_, err = svc.AddEntry(context.Background(), uuid.New(), actor.Professional(uuid.New()), CategoryNote, "", "", time.Time{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for missing title, got %v", err)
	}
}

func TestGetEntry_ScopedToPatient(t *testing.T) {
	repo := newMockEntryRepo()
	svc := NewService(repo)
	patID := uuid.New()

	e, err := svc.AddEntry(context.Background(), patID, actor.Professional(uuid.New()), CategoryLabResult, "CBC", "", time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.GetEntry(context.Background(), patID, e.ID); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	// The same entry id under another patient's record reads as not found.
	if _, err := svc.GetEntry(context.Background(), uuid.New(), e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a foreign record, got %v", err)
	}
}

func TestListEntries_CategoryFilter(t *testing.T) {
	repo := newMockEntryRepo()
	svc := NewService(repo)
	patID := uuid.New()
	author := actor.Professional(uuid.New())

	svc.AddEntry(context.Background(), patID, author, CategoryNote, "note 1", "", time.Time{})
	svc.AddEntry(context.Background(), patID, author, CategoryNote, "note 2", "", time.Time{})
	svc.AddEntry(context.Background(), patID, author, CategoryImaging, "chest x-ray", "", time.Time{})

	_, total, err := svc.ListEntries(context.Background(), patID, CategoryNote, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 notes, got %d", total)
	}

	_, total, err = svc.ListEntries(context.Background(), patID, "", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 entries, got %d", total)
	}
}
