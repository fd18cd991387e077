package authorization

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/platform/actor"
)

// Status is the lifecycle state of an Authorization. The workflow engine
// writes pending, active and denied; inactive is reserved for administrative
// deactivation and expired is a read-time classification, never stored by the
// consent workflow itself.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusDenied   Status = "denied"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired"
)

// AccessType distinguishes the three trust paths to a patient record.
type AccessType string

const (
	AccessStandard  AccessType = "read_standard"
	AccessEmergency AccessType = "read_emergency"
	AccessSecret    AccessType = "read_secret"
)

// Authorization is one grant (or grant attempt) of a professional's right to
// read one patient's record.
type Authorization struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ProfessionalID uuid.UUID  `db:"professional_id" json:"professional_id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	AccessType     AccessType `db:"access_type" json:"access_type"`
	Status         Status     `db:"status" json:"status"`

	// StartAt defaults to creation time. EndAt is nil for open-ended
	// standard grants; override grants always carry a fixed end.
	StartAt time.Time  `db:"start_at" json:"start_at"`
	EndAt   *time.Time `db:"end_at" json:"end_at,omitempty"`

	RequestedReason  string     `db:"requested_reason" json:"requested_reason,omitempty"`
	RevocationReason string     `db:"revocation_reason" json:"revocation_reason,omitempty"`
	RevokedAt        *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`

	// GrantedBy records who created the grant, ValidatedBy who actioned the
	// pending transition. Both are actor references ("patient/<uuid>",
	// "professional/<uuid>", "system").
	GrantedBy   string     `db:"granted_by" json:"granted_by,omitempty"`
	ValidatedBy string     `db:"validated_by" json:"validated_by,omitempty"`
	ValidatedAt *time.Time `db:"validated_at" json:"validated_at,omitempty"`

	Conditions *Conditions `db:"conditions" json:"conditions,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// Authorised is the live validity check: a stored authorization is in force
// when it is active and the instant falls inside its window. It is evaluated
// fresh at token issuance and at every enforced read; expiry is a read-time
// computation, not a background sweep.
func Authorised(a *Authorization, now time.Time) bool {
	if a == nil || a.Status != StatusActive {
		return false
	}
	if !a.StartAt.IsZero() && now.Before(a.StartAt) {
		return false
	}
	if a.EndAt != nil && now.After(*a.EndAt) {
		return false
	}
	return true
}

// Classify returns the read-time status: an active authorization past its
// window reads as expired without any stored mutation.
func Classify(a *Authorization, now time.Time) Status {
	if a.Status == StatusActive && a.EndAt != nil && now.After(*a.EndAt) {
		return StatusExpired
	}
	return a.Status
}

// NewPendingRequest builds a standard consent request awaiting the patient's
// response. The requested reason is mandatory.
func NewPendingRequest(professionalID, patientID uuid.UUID, reason string, now time.Time) (*Authorization, error) {
	if professionalID == uuid.Nil || patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: professional and patient ids are required", ErrInvalidArgument)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: requested reason is required", ErrInvalidArgument)
	}
	return &Authorization{
		ID:              uuid.New(),
		ProfessionalID:  professionalID,
		PatientID:       patientID,
		AccessType:      AccessStandard,
		Status:          StatusPending,
		StartAt:         now,
		RequestedReason: strings.TrimSpace(reason),
		GrantedBy:       actor.Professional(professionalID).Ref(),
	}, nil
}

// ActivateGrant computes the pending -> active transition actioned by the
// patient. It returns a new value and leaves the input untouched; callers
// persist the result with an optimistic status guard. Standard activations
// stay open-ended pending explicit revocation.
func ActivateGrant(a *Authorization, by actor.Actor, now time.Time) (*Authorization, error) {
	if a.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot activate authorization in status %q", ErrInvalidState, a.Status)
	}
	out := *a
	out.Status = StatusActive
	out.ValidatedBy = by.Ref()
	validatedAt := now
	out.ValidatedAt = &validatedAt
	out.UpdatedAt = now
	return &out, nil
}

// DenyGrant computes the transition to denied, used both for a patient
// refusal of a pending request and for revocation of an active grant.
func DenyGrant(a *Authorization, by actor.Actor, reason string, now time.Time) (*Authorization, error) {
	if a.Status != StatusPending && a.Status != StatusActive {
		return nil, fmt.Errorf("%w: cannot deny authorization in status %q", ErrInvalidState, a.Status)
	}
	out := *a
	out.Status = StatusDenied
	out.RevocationReason = reason
	revokedAt := now
	out.RevokedAt = &revokedAt
	out.ValidatedBy = by.Ref()
	out.UpdatedAt = now
	return &out, nil
}

// NewEmergencyGrant builds an immediately active emergency authorization with
// a fixed window. No pending phase exists for overrides.
func NewEmergencyGrant(professionalID, patientID uuid.UUID, justification string, window time.Duration, now time.Time) (*Authorization, error) {
	if strings.TrimSpace(justification) == "" {
		return nil, fmt.Errorf("%w: emergency access requires a justification", ErrInvalidArgument)
	}
	end := now.Add(window)
	validatedAt := now
	return &Authorization{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		PatientID:      patientID,
		AccessType:     AccessEmergency,
		Status:         StatusActive,
		StartAt:        now,
		EndAt:          &end,
		GrantedBy:      actor.System().Ref(),
		ValidatedBy:    actor.System().Ref(),
		ValidatedAt:    &validatedAt,
		Conditions: &Conditions{
			Type:      ConditionEmergency,
			Emergency: &EmergencyConditions{Justification: strings.TrimSpace(justification)},
		},
	}, nil
}

// NewSecretGrant builds an immediately active confidential authorization.
// The patient-facing notification is suppressed by policy; the audit trail is
// not.
func NewSecretGrant(professionalID, patientID uuid.UUID, reason string, window time.Duration, now time.Time) (*Authorization, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: secret access requires a reason", ErrInvalidArgument)
	}
	end := now.Add(window)
	validatedAt := now
	return &Authorization{
		ID:              uuid.New(),
		ProfessionalID:  professionalID,
		PatientID:       patientID,
		AccessType:      AccessSecret,
		Status:          StatusActive,
		StartAt:         now,
		EndAt:           &end,
		RequestedReason: strings.TrimSpace(reason),
		GrantedBy:       actor.System().Ref(),
		ValidatedBy:     actor.System().Ref(),
		ValidatedAt:     &validatedAt,
		Conditions: &Conditions{
			Type:   ConditionSecret,
			Secret: &SecretConditions{NotifyDisabled: true},
		},
	}, nil
}
