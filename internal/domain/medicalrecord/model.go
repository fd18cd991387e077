// Package medicalrecord holds the patient record entries that the access
// gate protects. Every read of a record flows through the gate first; this
// package never re-checks authorization itself.
package medicalrecord

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("medicalrecord: not found")
	ErrInvalidArgument = errors.New("medicalrecord: invalid argument")
)

// Entry categories. Free-form text is allowed but these cover the common
// cases and are what the UI filters on.
const (
	CategoryConsultation = "consultation"
	CategoryPrescription = "prescription"
	CategoryLabResult    = "lab_result"
	CategoryImaging      = "imaging"
	CategoryNote         = "note"
)

// Entry is a single dated item in a patient's medical record.
type Entry struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patient_id"`
	Category   string     `db:"category" json:"category"`
	Title      string     `db:"title" json:"title"`
	Body       string     `db:"body" json:"body"`
	AuthorRef  string     `db:"author_ref" json:"author_ref"`
	RecordedAt time.Time  `db:"recorded_at" json:"recorded_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// NewEntry validates and builds a record entry.
func NewEntry(patientID uuid.UUID, category, title, body, authorRef string, recordedAt time.Time) (*Entry, error) {
	if patientID == uuid.Nil {
		return nil, ErrInvalidArgument
	}
	if category == "" || title == "" {
		return nil, ErrInvalidArgument
	}
	now := time.Now().UTC()
	if recordedAt.IsZero() {
		recordedAt = now
	}
	return &Entry{
		ID:         uuid.New(),
		PatientID:  patientID,
		Category:   category,
		Title:      title,
		Body:       body,
		AuthorRef:  authorRef,
		RecordedAt: recordedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
