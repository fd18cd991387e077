package authorization

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/domain/auditevent"
	"github.com/carevault/carevault/internal/platform/actor"
)

// GrantEmergencyAccess creates an immediately active emergency authorization.
// Consent is not solicited, but the fact of access is not hidden: the patient
// is notified and the grant is audited. A pending standard request for the
// same pair never blocks an override.
func (s *Service) GrantEmergencyAccess(ctx context.Context, professionalID, patientID uuid.UUID, justification string, meta Meta) (*Authorization, error) {
	return s.grantOverride(ctx, professionalID, patientID, justification,
		auditevent.ActionGrantEmergency, s.emergency,
		func() (*Authorization, error) {
			return NewEmergencyGrant(professionalID, patientID, justification, s.emergency.Window, s.now())
		}, meta)
}

// GrantSecretAccess creates an immediately active confidential authorization.
// The patient-facing notification is suppressed by policy; the audit trail
// still records the grant. Secrecy is from the patient's UI, never from the
// audit log.
func (s *Service) GrantSecretAccess(ctx context.Context, professionalID, patientID uuid.UUID, reason string, meta Meta) (*Authorization, error) {
	return s.grantOverride(ctx, professionalID, patientID, reason,
		auditevent.ActionGrantSecret, s.secret,
		func() (*Authorization, error) {
			return NewSecretGrant(professionalID, patientID, reason, s.secret.Window, s.now())
		}, meta)
}

// grantOverride is the shared shape of the two override paths. The policy's
// window and notification flag are the only knobs that differ.
func (s *Service) grantOverride(ctx context.Context, professionalID, patientID uuid.UUID, reason, action string, policy OverridePolicy, build func() (*Authorization, error), meta Meta) (*Authorization, error) {
	act := actor.Professional(professionalID)

	prof, err := s.professionals.FindProfessional(ctx, professionalID)
	if err != nil {
		return nil, s.fail(ctx, action, act, nil, &professionalID, &patientID, meta,
			fmt.Errorf("professional %s: %w", professionalID, mapDirectoryErr(err)))
	}
	patient, err := s.patients.FindPatient(ctx, patientID)
	if err != nil {
		return nil, s.fail(ctx, action, act, nil, &professionalID, &patientID, meta,
			fmt.Errorf("patient %s: %w", patientID, mapDirectoryErr(err)))
	}

	a, err := build()
	if err != nil {
		return nil, s.fail(ctx, action, act, nil, &professionalID, &patientID, meta, err)
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, s.fail(ctx, action, act, &a.ID, &professionalID, &patientID, meta, err)
	}

	var fx Effects
	fx.audit(s.event(action, auditevent.OutcomeSuccess, "", reason, a, act, meta))
	if policy.NotifyPatient {
		fx.notify(actor.Patient(patientID), TemplateEmergencyNotice, map[string]string{
			"patient_name":      patient.FullName(),
			"professional_name": prof.FullName(),
			"end_at":            a.EndAt.Format("2006-01-02 15:04"),
		})
	}
	s.dispatcher.Dispatch(ctx, fx)

	return a, nil
}
