package authorization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/domain/auditevent"
	"github.com/carevault/carevault/internal/domain/directory"
	"github.com/carevault/carevault/internal/platform/actor"
)

// Decision is a patient's answer to a pending consent request.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionRefuse Decision = "refuse"
)

// Notification templates emitted by the consent workflow.
const (
	TemplateAccessRequest   = "access-request"
	TemplateRequestAccepted = "access-request-accepted"
	TemplateRequestRefused  = "access-request-refused"
	TemplateGrantRevoked    = "access-grant-revoked"
	TemplateEmergencyNotice = "emergency-access-notice"
)

// TokenIssuer mints a capability token for an active authorization.
// Satisfied by the platform token service.
type TokenIssuer interface {
	Issue(a *Authorization) (token string, ttl time.Duration, err error)
}

// GrantCredential is the capability token handed back when a grant activates
// or is re-minted.
type GrantCredential struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// OverridePolicy configures one override path. Window and patient
// notification are deliberately independent knobs: they are the entire
// behavioral difference between the emergency and secret paths.
type OverridePolicy struct {
	Window        time.Duration
	NotifyPatient bool
}

// Service is the consent workflow engine and override issuer. All state
// transitions go through explicit constructor functions and are persisted
// with optimistic status guards; side effects (audit, notifications) are
// collected as effects and dispatched after the write commits.
type Service struct {
	repo          Repository
	patients      directory.PatientDirectory
	professionals directory.ProfessionalDirectory
	issuer        TokenIssuer
	dispatcher    *Dispatcher
	emergency     OverridePolicy
	secret        OverridePolicy
	now           func() time.Time
}

func NewService(
	repo Repository,
	patients directory.PatientDirectory,
	professionals directory.ProfessionalDirectory,
	issuer TokenIssuer,
	dispatcher *Dispatcher,
	emergency, secret OverridePolicy,
) *Service {
	return &Service{
		repo:          repo,
		patients:      patients,
		professionals: professionals,
		issuer:        issuer,
		dispatcher:    dispatcher,
		emergency:     emergency,
		secret:        secret,
		now:           time.Now,
	}
}

// SetClock overrides the service clock. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// RequestAccess opens a standard consent request: a pending authorization
// awaiting the patient's response. Fails with ErrNotFound when either party
// does not resolve and ErrConflict when a live standard authorization already
// exists for the pair.
func (s *Service) RequestAccess(ctx context.Context, professionalID, patientID uuid.UUID, reason string, meta Meta) (*Authorization, error) {
	act := actor.Professional(professionalID)

	prof, err := s.professionals.FindProfessional(ctx, professionalID)
	if err != nil {
		return nil, s.fail(ctx, auditevent.ActionRequestStandard, act, nil, &professionalID, &patientID, meta,
			fmt.Errorf("professional %s: %w", professionalID, mapDirectoryErr(err)))
	}
	patient, err := s.patients.FindPatient(ctx, patientID)
	if err != nil {
		return nil, s.fail(ctx, auditevent.ActionRequestStandard, act, nil, &professionalID, &patientID, meta,
			fmt.Errorf("patient %s: %w", patientID, mapDirectoryErr(err)))
	}

	a, err := NewPendingRequest(professionalID, patientID, reason, s.now())
	if err != nil {
		return nil, s.fail(ctx, auditevent.ActionRequestStandard, act, nil, &professionalID, &patientID, meta, err)
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, s.fail(ctx, auditevent.ActionRequestStandard, act, &a.ID, &professionalID, &patientID, meta, err)
	}

	var fx Effects
	fx.audit(s.event(auditevent.ActionRequestStandard, auditevent.OutcomeSuccess, "", "", a, act, meta))
	fx.notify(actor.Patient(patientID), TemplateAccessRequest, map[string]string{
		"patient_name":      patient.FullName(),
		"professional_name": prof.FullName(),
		"reason":            a.RequestedReason,
	})
	s.dispatcher.Dispatch(ctx, fx)

	return a, nil
}

// RespondToRequest records the patient's decision on a pending request. The
// ownership check is folded into the lookup: a patient answering someone
// else's request sees ErrNotFound, not ErrForbidden, so the existence of the
// request is not leaked. On accept, a capability token is minted and returned
// alongside the activated grant.
func (s *Service) RespondToRequest(ctx context.Context, authorizationID, patientID uuid.UUID, decision Decision, comment string, meta Meta) (*Authorization, *GrantCredential, error) {
	act := actor.Patient(patientID)

	if decision != DecisionAccept && decision != DecisionRefuse {
		err := fmt.Errorf("%w: decision must be %q or %q", ErrInvalidArgument, DecisionAccept, DecisionRefuse)
		return nil, nil, s.fail(ctx, actionForDecision(decision), act, &authorizationID, nil, &patientID, meta, err)
	}

	a, err := s.repo.GetByID(ctx, authorizationID)
	if err != nil {
		return nil, nil, s.fail(ctx, actionForDecision(decision), act, &authorizationID, nil, &patientID, meta, err)
	}
	if a.PatientID != patientID {
		return nil, nil, s.fail(ctx, actionForDecision(decision), act, &authorizationID, &a.ProfessionalID, &patientID, meta, ErrNotFound)
	}
	if a.Status != StatusPending {
		err := fmt.Errorf("%w: authorization is %q", ErrInvalidState, a.Status)
		return nil, nil, s.fail(ctx, actionForDecision(decision), act, &a.ID, &a.ProfessionalID, &a.PatientID, meta, err)
	}

	now := s.now()
	var updated *Authorization
	if decision == DecisionAccept {
		updated, err = ActivateGrant(a, act, now)
	} else {
		updated, err = DenyGrant(a, act, comment, now)
	}
	if err != nil {
		return nil, nil, s.fail(ctx, actionForDecision(decision), act, &a.ID, &a.ProfessionalID, &a.PatientID, meta, err)
	}

	if err := s.repo.Transition(ctx, updated, StatusPending); err != nil {
		return nil, nil, s.fail(ctx, actionForDecision(decision), act, &a.ID, &a.ProfessionalID, &a.PatientID, meta, err)
	}

	var fx Effects
	fx.audit(s.event(actionForDecision(decision), auditevent.OutcomeSuccess, "", "", updated, act, meta))

	var cred *GrantCredential
	if decision == DecisionAccept {
		token, ttl, issueErr := s.issuer.Issue(updated)
		if issueErr != nil {
			// The grant is active regardless; the professional re-mints via
			// IssueToken. The failed mint still reaches the audit trail.
			fx.audit(s.event(auditevent.ActionTokenIssue, auditevent.OutcomeFailure,
				errorCode(issueErr), issueErr.Error(), updated, act, meta))
		} else {
			cred = &GrantCredential{Token: token, ExpiresIn: int64(ttl.Seconds())}
			fx.audit(s.event(auditevent.ActionTokenIssue, auditevent.OutcomeSuccess, "", "", updated, act, meta))
		}
		fx.notify(actor.Professional(updated.ProfessionalID), TemplateRequestAccepted, map[string]string{
			"authorization_id": updated.ID.String(),
		})
	} else {
		fx.notify(actor.Professional(updated.ProfessionalID), TemplateRequestRefused, map[string]string{
			"authorization_id": updated.ID.String(),
		})
	}
	s.dispatcher.Dispatch(ctx, fx)

	return updated, cred, nil
}

// RevokeAuthorization moves a pending or active authorization to denied.
// Only the requesting professional, the owning patient, or an administrative
// system actor may revoke.
func (s *Service) RevokeAuthorization(ctx context.Context, authorizationID uuid.UUID, act actor.Actor, reason string, meta Meta) (*Authorization, error) {
	a, err := s.repo.GetByID(ctx, authorizationID)
	if err != nil {
		return nil, s.fail(ctx, auditevent.ActionRevoke, act, &authorizationID, nil, nil, meta, err)
	}

	if err := revocationPermitted(a, act); err != nil {
		return nil, s.fail(ctx, auditevent.ActionRevoke, act, &a.ID, &a.ProfessionalID, &a.PatientID, meta, err)
	}

	from := a.Status
	updated, err := DenyGrant(a, act, reason, s.now())
	if err != nil {
		return nil, s.fail(ctx, auditevent.ActionRevoke, act, &a.ID, &a.ProfessionalID, &a.PatientID, meta, err)
	}

	if err := s.repo.Transition(ctx, updated, from); err != nil {
		return nil, s.fail(ctx, auditevent.ActionRevoke, act, &a.ID, &a.ProfessionalID, &a.PatientID, meta, err)
	}

	var fx Effects
	fx.audit(s.event(auditevent.ActionRevoke, auditevent.OutcomeSuccess, "", "", updated, act, meta))
	// The counterpart learns the grant is gone; the revoking party already
	// knows.
	switch act.Kind {
	case actor.KindPatient:
		fx.notify(actor.Professional(updated.ProfessionalID), TemplateGrantRevoked, map[string]string{
			"authorization_id": updated.ID.String(),
		})
	case actor.KindProfessional, actor.KindSystem:
		fx.notify(actor.Patient(updated.PatientID), TemplateGrantRevoked, map[string]string{
			"authorization_id": updated.ID.String(),
		})
	}
	s.dispatcher.Dispatch(ctx, fx)

	return updated, nil
}

// IssueToken re-mints a capability token for an active grant. Tokens are
// deliberately shorter-lived than the grant itself, so professionals re-mint
// over the grant's lifetime.
func (s *Service) IssueToken(ctx context.Context, authorizationID uuid.UUID, act actor.Actor, meta Meta) (*GrantCredential, error) {
	a, err := s.repo.GetByID(ctx, authorizationID)
	if err != nil {
		return nil, s.fail(ctx, auditevent.ActionTokenIssue, act, &authorizationID, nil, nil, meta, err)
	}

	switch act.Kind {
	case actor.KindProfessional:
		if act.ID != a.ProfessionalID {
			return nil, s.fail(ctx, auditevent.ActionTokenIssue, act, &a.ID, &a.ProfessionalID, &a.PatientID, meta, ErrForbidden)
		}
	case actor.KindSystem:
	case actor.KindPatient:
		return nil, s.fail(ctx, auditevent.ActionTokenIssue, act, &a.ID, &a.ProfessionalID, &a.PatientID, meta, ErrForbidden)
	}

	token, ttl, err := s.issuer.Issue(a)
	if err != nil {
		// The issuer refusing a non-live grant wraps ErrInvalidState;
		// anything else is a signing-layer failure and stays internal.
		if !errors.Is(err, ErrInvalidState) {
			err = fmt.Errorf("issue capability token: %w", err)
		}
		return nil, s.fail(ctx, auditevent.ActionTokenIssue, act, &a.ID, &a.ProfessionalID, &a.PatientID, meta, err)
	}

	var fx Effects
	fx.audit(s.event(auditevent.ActionTokenIssue, auditevent.OutcomeSuccess, "", "", a, act, meta))
	s.dispatcher.Dispatch(ctx, fx)

	return &GrantCredential{Token: token, ExpiresIn: int64(ttl.Seconds())}, nil
}

// GetAuthorization returns a single authorization, restricted to its own
// parties and system actors.
func (s *Service) GetAuthorization(ctx context.Context, id uuid.UUID, act actor.Actor) (*Authorization, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch act.Kind {
	case actor.KindSystem:
	case actor.KindPatient:
		if act.ID != a.PatientID {
			return nil, ErrNotFound
		}
	case actor.KindProfessional:
		if act.ID != a.ProfessionalID {
			return nil, ErrNotFound
		}
	}
	return a, nil
}

func (s *Service) ListPendingForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Authorization, int, error) {
	return s.repo.ListPendingForPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListActiveForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Authorization, int, error) {
	return s.repo.ListActiveForPatient(ctx, patientID, s.now(), limit, offset)
}

func (s *Service) ListActiveForProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]*Authorization, int, error) {
	return s.repo.ListActiveForProfessional(ctx, professionalID, s.now(), limit, offset)
}

// -- helpers --

func actionForDecision(d Decision) string {
	if d == DecisionAccept {
		return auditevent.ActionPatientAccept
	}
	return auditevent.ActionPatientRefuse
}

func revocationPermitted(a *Authorization, act actor.Actor) error {
	switch act.Kind {
	case actor.KindProfessional:
		if act.ID != a.ProfessionalID {
			return ErrForbidden
		}
	case actor.KindPatient:
		if act.ID != a.PatientID {
			return ErrForbidden
		}
	case actor.KindSystem:
		// Administrative deactivation path.
	default:
		return ErrForbidden
	}
	return nil
}

func mapDirectoryErr(err error) error {
	if errors.Is(err, directory.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// event builds an audit row for a transition on a known authorization.
func (s *Service) event(action, outcome, code, desc string, a *Authorization, act actor.Actor, meta Meta) *auditevent.AccessEvent {
	id := a.ID
	profID := a.ProfessionalID
	patID := a.PatientID
	return &auditevent.AccessEvent{
		Recorded:       s.now().UTC(),
		Action:         action,
		Outcome:        outcome,
		ErrorCode:      code,
		OutcomeDesc:    desc,
		ResourceType:   "authorization",
		ResourceID:     &id,
		ProfessionalID: &profID,
		PatientID:      &patID,
		ActorRef:       act.Ref(),
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	}
}

// fail records a failed attempt in the audit trail and passes the error
// through unchanged. The audit write itself can never veto the outcome.
func (s *Service) fail(ctx context.Context, action string, act actor.Actor, resourceID, professionalID, patientID *uuid.UUID, meta Meta, err error) error {
	var fx Effects
	fx.audit(&auditevent.AccessEvent{
		Recorded:       s.now().UTC(),
		Action:         action,
		Outcome:        auditevent.OutcomeFailure,
		ErrorCode:      errorCode(err),
		OutcomeDesc:    err.Error(),
		ResourceType:   "authorization",
		ResourceID:     resourceID,
		ProfessionalID: professionalID,
		PatientID:      patientID,
		ActorRef:       act.Ref(),
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	})
	s.dispatcher.Dispatch(ctx, fx)
	return err
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return auditevent.CodeNotFound
	case errors.Is(err, ErrConflict):
		return auditevent.CodeConflict
	case errors.Is(err, ErrInvalidState):
		return auditevent.CodeInvalidState
	case errors.Is(err, ErrForbidden):
		return auditevent.CodeForbidden
	case errors.Is(err, ErrInvalidArgument):
		return auditevent.CodeInvalidArgument
	default:
		return "internal"
	}
}
