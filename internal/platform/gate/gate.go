// Package gate is the enforcement chokepoint for patient record access.
// Every record-serving code path calls CheckAndLog before returning data.
// The gate validates the presented capability token, re-runs the live
// validity check against the authorization store, and writes exactly one
// audit event per call regardless of outcome. All denials collapse to the
// same caller-facing error so a professional cannot probe a patient's
// authorization posture; the audit trail keeps the precise reason.
package gate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/domain/auditevent"
	"github.com/carevault/carevault/internal/domain/authorization"
	"github.com/carevault/carevault/internal/platform/actor"
	"github.com/carevault/carevault/internal/platform/token"
)

// ErrDenied is the only error the gate returns to callers. The reason behind
// a denial is recorded in the audit trail, never surfaced.
var ErrDenied = errors.New("access denied")

// AuthorizationStore resolves the live authorization behind a token's
// claims. Satisfied by the authorization repository.
type AuthorizationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*authorization.Authorization, error)
}

// Validator checks a capability token's signature and expiry. Satisfied by
// the token service.
type Validator interface {
	Validate(raw string) (*token.Claims, error)
}

// Recorder appends audit events. Satisfied by auditevent.Recorder.
type Recorder interface {
	Record(ev *auditevent.AccessEvent)
}

// RequestMeta carries network context into the audit trail.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type Gate struct {
	tokens   Validator
	store    AuthorizationStore
	recorder Recorder
	now      func() time.Time
}

func New(tokens Validator, store AuthorizationStore, recorder Recorder) *Gate {
	return &Gate{tokens: tokens, store: store, recorder: recorder, now: time.Now}
}

// SetClock overrides the gate clock. Used by tests.
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

// CheckAndLog decides whether act may read patientID's record, presenting
// rawToken when act is not the patient themselves. A patient reading their
// own record is always allowed without any authorization lookup; everything
// else requires a professional presenter, a structurally valid token bound
// to that professional, AND a live authorization behind it. Exactly one
// audit event is written per call.
func (g *Gate) CheckAndLog(ctx context.Context, act actor.Actor, rawToken string, patientID uuid.UUID, meta RequestMeta) error {
	ev := &auditevent.AccessEvent{
		Recorded:     g.now().UTC(),
		Action:       auditevent.ActionRecordRead,
		ResourceType: "medical_record",
		ResourceID:   &patientID,
		PatientID:    &patientID,
		ActorRef:     act.Ref(),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	}
	defer g.recorder.Record(ev)

	// Ownership alone suffices for a patient's own record; it is still
	// audited independently of the token paths.
	if act.Kind == actor.KindPatient && act.ID == patientID {
		ev.Action = auditevent.ActionRecordReadSelf
		ev.Outcome = auditevent.OutcomeSuccess
		return nil
	}

	// Capability tokens are minted for professionals only. A patient
	// reaching for another patient's record, or a system actor presenting
	// a token, has no legitimate path here no matter whose token it is.
	if act.Kind != actor.KindProfessional {
		return deny(ev, auditevent.CodeForbidden, "presenter cannot hold a capability token")
	}

	claims, err := g.tokens.Validate(rawToken)
	if err != nil {
		return deny(ev, auditevent.CodeTokenInvalid, "capability token rejected")
	}
	ev.ProfessionalID = &claims.ProfessionalID

	if claims.PatientID != patientID {
		return deny(ev, auditevent.CodeGrantMismatch, "token is scoped to a different patient")
	}
	if claims.ProfessionalID != act.ID {
		return deny(ev, auditevent.CodeGrantMismatch, "token is scoped to a different professional")
	}

	a, err := g.store.GetByID(ctx, claims.AuthorizationID)
	if err != nil {
		return deny(ev, auditevent.CodeGrantMissing, "authorization behind the token no longer resolves")
	}

	now := g.now()
	if !authorization.Authorised(a, now) {
		switch {
		case a.Status == authorization.StatusDenied:
			return deny(ev, auditevent.CodeGrantRevoked, "authorization was revoked")
		case authorization.Classify(a, now) == authorization.StatusExpired:
			return deny(ev, auditevent.CodeGrantExpired, "authorization window has elapsed")
		default:
			return deny(ev, auditevent.CodeGrantInactive, "authorization is not active")
		}
	}

	ev.Outcome = auditevent.OutcomeSuccess
	return nil
}

func deny(ev *auditevent.AccessEvent, code, desc string) error {
	ev.Outcome = auditevent.OutcomeFailure
	ev.ErrorCode = code
	ev.OutcomeDesc = desc
	return ErrDenied
}
