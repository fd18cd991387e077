package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/domain/auditevent"
	"github.com/carevault/carevault/internal/domain/authorization"
	"github.com/carevault/carevault/internal/platform/actor"
	"github.com/carevault/carevault/internal/platform/token"
)

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type mockStore struct {
	auths map[uuid.UUID]*authorization.Authorization
}

func newMockStore() *mockStore {
	return &mockStore{auths: make(map[uuid.UUID]*authorization.Authorization)}
}

func (m *mockStore) GetByID(_ context.Context, id uuid.UUID) (*authorization.Authorization, error) {
	a, ok := m.auths[id]
	if !ok {
		return nil, authorization.ErrNotFound
	}
	return a, nil
}

type captureRecorder struct {
	events []*auditevent.AccessEvent
}

func (c *captureRecorder) Record(ev *auditevent.AccessEvent) {
	c.events = append(c.events, ev)
}

type gateFixture struct {
	gate     *Gate
	tokens   *token.Service
	store    *mockStore
	recorder *captureRecorder
}

func newGateFixture() *gateFixture {
	tokens := token.NewService([]byte("gate-test-key"), token.TTLs{
		Standard:  8 * time.Hour,
		Emergency: time.Hour,
		Secret:    2 * time.Hour,
	})
	tokens.SetClock(func() time.Time { return testNow })

	store := newMockStore()
	recorder := &captureRecorder{}

	g := New(tokens, store, recorder)
	g.SetClock(func() time.Time { return testNow })

	return &gateFixture{gate: g, tokens: tokens, store: store, recorder: recorder}
}

// activeGrant stores an active authorization and mints a matching token.
func (f *gateFixture) activeGrant(t *testing.T) (*authorization.Authorization, string) {
	t.Helper()
	a := &authorization.Authorization{
		ID:             uuid.New(),
		ProfessionalID: uuid.New(),
		PatientID:      uuid.New(),
		AccessType:     authorization.AccessStandard,
		Status:         authorization.StatusActive,
		StartAt:        testNow.Add(-time.Hour),
	}
	f.store.auths[a.ID] = a

	raw, _, err := f.tokens.Issue(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return a, raw
}

func (f *gateFixture) singleEvent(t *testing.T) *auditevent.AccessEvent {
	t.Helper()
	if len(f.recorder.events) != 1 {
		t.Fatalf("expected exactly one audit event, got %d", len(f.recorder.events))
	}
	return f.recorder.events[0]
}

func TestCheckAndLog_PatientSelf(t *testing.T) {
	f := newGateFixture()
	patID := uuid.New()

	err := f.gate.CheckAndLog(context.Background(), actor.Patient(patID), "", patID, RequestMeta{})
	if err != nil {
		t.Fatalf("a patient must always read their own record: %v", err)
	}
	ev := f.singleEvent(t)
	if ev.Action != auditevent.ActionRecordReadSelf || ev.Outcome != auditevent.OutcomeSuccess {
		t.Errorf("unexpected event %s/%s", ev.Action, ev.Outcome)
	}
}

func TestCheckAndLog_ValidGrant(t *testing.T) {
	f := newGateFixture()
	a, raw := f.activeGrant(t)

	err := f.gate.CheckAndLog(context.Background(), actor.Professional(a.ProfessionalID), raw, a.PatientID, RequestMeta{IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev := f.singleEvent(t)
	if ev.Action != auditevent.ActionRecordRead || ev.Outcome != auditevent.OutcomeSuccess {
		t.Errorf("unexpected event %s/%s", ev.Action, ev.Outcome)
	}
	if ev.ProfessionalID == nil || *ev.ProfessionalID != a.ProfessionalID {
		t.Error("expected the professional on the audit event")
	}
	if ev.IPAddress != "10.0.0.1" {
		t.Errorf("expected request metadata on the event, got %q", ev.IPAddress)
	}
}

func TestCheckAndLog_MissingToken(t *testing.T) {
	f := newGateFixture()

	err := f.gate.CheckAndLog(context.Background(), actor.Professional(uuid.New()), "", uuid.New(), RequestMeta{})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	ev := f.singleEvent(t)
	if ev.ErrorCode != auditevent.CodeTokenInvalid {
		t.Errorf("expected token_invalid code, got %s", ev.ErrorCode)
	}
}

func TestCheckAndLog_PatientMismatch(t *testing.T) {
	f := newGateFixture()
	a, raw := f.activeGrant(t)

	err := f.gate.CheckAndLog(context.Background(), actor.Professional(a.ProfessionalID), raw, uuid.New(), RequestMeta{})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	ev := f.singleEvent(t)
	if ev.ErrorCode != auditevent.CodeGrantMismatch {
		t.Errorf("expected grant_mismatch code, got %s", ev.ErrorCode)
	}
}

func TestCheckAndLog_ProfessionalMismatch(t *testing.T) {
	f := newGateFixture()
	a, raw := f.activeGrant(t)

	// Another professional presenting a stolen but structurally valid token.
	err := f.gate.CheckAndLog(context.Background(), actor.Professional(uuid.New()), raw, a.PatientID, RequestMeta{})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	ev := f.singleEvent(t)
	if ev.ErrorCode != auditevent.CodeGrantMismatch {
		t.Errorf("expected grant_mismatch code, got %s", ev.ErrorCode)
	}
}

func TestCheckAndLog_ForeignPatientWithProfessionalToken(t *testing.T) {
	f := newGateFixture()
	a, raw := f.activeGrant(t)

	// A patient who obtained a professional's live token must not reach
	// another patient's record with it.
	err := f.gate.CheckAndLog(context.Background(), actor.Patient(uuid.New()), raw, a.PatientID, RequestMeta{})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	ev := f.singleEvent(t)
	if ev.ErrorCode != auditevent.CodeForbidden {
		t.Errorf("expected forbidden code, got %s", ev.ErrorCode)
	}
	if ev.Outcome != auditevent.OutcomeFailure {
		t.Errorf("expected failure outcome, got %s", ev.Outcome)
	}
}

func TestCheckAndLog_SystemActorDenied(t *testing.T) {
	f := newGateFixture()
	a, raw := f.activeGrant(t)

	err := f.gate.CheckAndLog(context.Background(), actor.System(), raw, a.PatientID, RequestMeta{})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	ev := f.singleEvent(t)
	if ev.ErrorCode != auditevent.CodeForbidden {
		t.Errorf("expected forbidden code, got %s", ev.ErrorCode)
	}
}

func TestCheckAndLog_GrantMissing(t *testing.T) {
	f := newGateFixture()
	a, raw := f.activeGrant(t)
	delete(f.store.auths, a.ID)

	err := f.gate.CheckAndLog(context.Background(), actor.Professional(a.ProfessionalID), raw, a.PatientID, RequestMeta{})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	ev := f.singleEvent(t)
	if ev.ErrorCode != auditevent.CodeGrantMissing {
		t.Errorf("expected grant_missing code, got %s", ev.ErrorCode)
	}
}

func TestCheckAndLog_RevokedGrantWithLiveToken(t *testing.T) {
	f := newGateFixture()
	a, raw := f.activeGrant(t)

	// Revocation between mint and use: the token is still cryptographically
	// valid but the read must be refused.
	a.Status = authorization.StatusDenied

	err := f.gate.CheckAndLog(context.Background(), actor.Professional(a.ProfessionalID), raw, a.PatientID, RequestMeta{})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	ev := f.singleEvent(t)
	if ev.ErrorCode != auditevent.CodeGrantRevoked {
		t.Errorf("expected grant_revoked code, got %s", ev.ErrorCode)
	}
}

func TestCheckAndLog_ExpiredWindow(t *testing.T) {
	f := newGateFixture()
	a, raw := f.activeGrant(t)
	end := testNow.Add(30 * time.Minute)
	a.EndAt = &end

	// The token outlives the window here: validation succeeds, the live
	// check fails.
	later := testNow.Add(time.Hour)
	f.gate.SetClock(func() time.Time { return later })
	f.tokens.SetClock(func() time.Time { return later })

	err := f.gate.CheckAndLog(context.Background(), actor.Professional(a.ProfessionalID), raw, a.PatientID, RequestMeta{})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	ev := f.singleEvent(t)
	if ev.ErrorCode != auditevent.CodeGrantExpired {
		t.Errorf("expected grant_expired code, got %s", ev.ErrorCode)
	}
}

func TestCheckAndLog_OneEventPerCall(t *testing.T) {
	f := newGateFixture()
	a, raw := f.activeGrant(t)
	prof := actor.Professional(a.ProfessionalID)

	for i := 0; i < 3; i++ {
		if err := f.gate.CheckAndLog(context.Background(), prof, raw, a.PatientID, RequestMeta{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	f.gate.CheckAndLog(context.Background(), prof, "", a.PatientID, RequestMeta{})

	if len(f.recorder.events) != 4 {
		t.Fatalf("expected four audit events for four calls, got %d", len(f.recorder.events))
	}
}
