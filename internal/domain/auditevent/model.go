package auditevent

import (
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the access audit trail. Every consent transition,
// override grant, and enforced record read produces exactly one event.
const (
	ActionRequestStandard = "request_standard"
	ActionPatientAccept   = "patient_accept"
	ActionPatientRefuse   = "patient_refuse"
	ActionRevoke          = "revoke"
	ActionGrantEmergency  = "grant_emergency"
	ActionGrantSecret     = "grant_secret"
	ActionTokenIssue      = "token_issue"
	ActionRecordRead      = "record_read"
	ActionRecordReadSelf  = "record_read_self"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Error codes stored alongside failure outcomes. The professional-facing
// response never distinguishes these; the audit trail always does.
const (
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeInvalidState    = "invalid_state"
	CodeForbidden       = "forbidden"
	CodeInvalidArgument = "invalid_argument"
	CodeTokenInvalid    = "token_invalid"
	CodeGrantMissing    = "grant_missing"
	CodeGrantMismatch   = "grant_mismatch"
	CodeGrantRevoked    = "grant_revoked"
	CodeGrantExpired    = "grant_expired"
	CodeGrantInactive   = "grant_inactive"
)

// AccessEvent is one immutable row of the access audit trail. Rows are
// created once and never updated; soft deletion exists only for retention
// policy enforcement.
type AccessEvent struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Recorded       time.Time  `db:"recorded" json:"recorded"`
	Action         string     `db:"action" json:"action"`
	Outcome        string     `db:"outcome" json:"outcome"`
	ErrorCode      string     `db:"error_code" json:"error_code,omitempty"`
	OutcomeDesc    string     `db:"outcome_desc" json:"outcome_desc,omitempty"`
	ResourceType   string     `db:"resource_type" json:"resource_type"`
	ResourceID     *uuid.UUID `db:"resource_id" json:"resource_id,omitempty"`
	PatientID      *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	ProfessionalID *uuid.UUID `db:"professional_id" json:"professional_id,omitempty"`
	ActorRef       string     `db:"actor_ref" json:"actor_ref"`
	IPAddress      string     `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent      string     `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	DeletedAt      *time.Time `db:"deleted_at" json:"-"`
}
