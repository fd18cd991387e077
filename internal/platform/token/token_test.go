package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/domain/authorization"
)

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestService() *Service {
	s := NewService([]byte("test-signing-key"), TTLs{
		Standard:  8 * time.Hour,
		Emergency: time.Hour,
		Secret:    2 * time.Hour,
	})
	s.SetClock(func() time.Time { return testNow })
	return s
}

func activeAuthorization(accessType authorization.AccessType) *authorization.Authorization {
	return &authorization.Authorization{
		ID:             uuid.New(),
		ProfessionalID: uuid.New(),
		PatientID:      uuid.New(),
		AccessType:     accessType,
		Status:         authorization.StatusActive,
		StartAt:        testNow.Add(-time.Hour),
	}
}

func TestIssueAndValidate(t *testing.T) {
	s := newTestService()
	a := activeAuthorization(authorization.AccessStandard)

	raw, ttl, err := s.Issue(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl != 8*time.Hour {
		t.Errorf("expected standard TTL 8h, got %v", ttl)
	}

	claims, err := s.Validate(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.AuthorizationID != a.ID {
		t.Errorf("expected authorization id %s, got %s", a.ID, claims.AuthorizationID)
	}
	if claims.ProfessionalID != a.ProfessionalID || claims.PatientID != a.PatientID {
		t.Error("claims must carry the grant parties")
	}
	if claims.AccessType != string(authorization.AccessStandard) {
		t.Errorf("unexpected access type %s", claims.AccessType)
	}
}

func TestIssue_TTLPerAccessType(t *testing.T) {
	s := newTestService()

	cases := []struct {
		accessType authorization.AccessType
		want       time.Duration
	}{
		{authorization.AccessStandard, 8 * time.Hour},
		{authorization.AccessEmergency, time.Hour},
		{authorization.AccessSecret, 2 * time.Hour},
	}
	for _, tc := range cases {
		_, ttl, err := s.Issue(activeAuthorization(tc.accessType))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.accessType, err)
		}
		if ttl != tc.want {
			t.Errorf("%s: expected TTL %v, got %v", tc.accessType, tc.want, ttl)
		}
	}
}

func TestIssue_RefusesInactiveAuthorization(t *testing.T) {
	s := newTestService()
	a := activeAuthorization(authorization.AccessStandard)
	a.Status = authorization.StatusPending

	_, _, err := s.Issue(a)
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestIssue_RefusesExpiredWindow(t *testing.T) {
	s := newTestService()
	a := activeAuthorization(authorization.AccessEmergency)
	end := testNow.Add(-time.Minute)
	a.EndAt = &end

	_, _, err := s.Issue(a)
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	s := newTestService()
	raw, _, err := s.Issue(activeAuthorization(authorization.AccessStandard))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.SetClock(func() time.Time { return testNow.Add(8*time.Hour + time.Second) })
	if _, err := s.Validate(raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after expiry, got %v", err)
	}
}

func TestValidate_Tampered(t *testing.T) {
	s := newTestService()
	raw, _, err := s.Issue(activeAuthorization(authorization.AccessStandard))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parts := strings.Split(raw, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := s.Validate(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for a tampered signature, got %v", err)
	}
}

func TestValidate_WrongKey(t *testing.T) {
	s := newTestService()
	raw, _, err := s.Issue(activeAuthorization(authorization.AccessStandard))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := NewService([]byte("a-different-key"), TTLs{Standard: 8 * time.Hour})
	other.SetClock(func() time.Time { return testNow })
	if _, err := other.Validate(raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid under a different key, got %v", err)
	}
}

func TestValidate_Garbage(t *testing.T) {
	s := newTestService()
	if _, err := s.Validate("not.a.token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := s.Validate(""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for empty input, got %v", err)
	}
}
