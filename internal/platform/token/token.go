// Package token mints and validates the short-lived capability tokens that
// accompany every enforced record read. A token is a narrower, re-mintable
// credential layered over the longer-lived authorization: its TTL depends on
// the access type and is always shorter than or equal to the grant window.
// A structurally valid token proves nothing on its own; the access gate
// re-resolves the authorization from the claims and re-runs the live
// validity check, which is what makes revocation effective before token
// expiry.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/domain/authorization"
)

var (
	// ErrTokenInvalid covers bad signatures, malformed tokens and expired
	// tokens alike; the caller-facing distinction is never finer than
	// "unauthorized".
	ErrTokenInvalid = errors.New("capability token is invalid or expired")

	// ErrNotActive is returned when minting is attempted for an
	// authorization that fails the live validity check. It wraps
	// authorization.ErrInvalidState so the workflow layer can classify
	// it without importing this package.
	ErrNotActive = fmt.Errorf("%w: authorization fails the live validity check", authorization.ErrInvalidState)
)

const issuer = "carevault"

// Claims scope one token to one (professional, patient, authorization)
// tuple.
type Claims struct {
	jwt.RegisteredClaims
	AuthorizationID uuid.UUID `json:"authorization_id"`
	ProfessionalID  uuid.UUID `json:"professional_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	AccessType      string    `json:"access_type"`
}

// TTLs are the per-access-type token lifetimes.
type TTLs struct {
	Standard  time.Duration
	Emergency time.Duration
	Secret    time.Duration
}

type Service struct {
	key  []byte
	ttls TTLs
	now  func() time.Time
}

func NewService(signingKey []byte, ttls TTLs) *Service {
	return &Service{key: signingKey, ttls: ttls, now: time.Now}
}

// SetClock overrides the service clock. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) ttlFor(t authorization.AccessType) time.Duration {
	switch t {
	case authorization.AccessEmergency:
		return s.ttls.Emergency
	case authorization.AccessSecret:
		return s.ttls.Secret
	default:
		return s.ttls.Standard
	}
}

// Issue mints a signed token for an authorization that passes the live
// validity check right now.
func (s *Service) Issue(a *authorization.Authorization) (string, time.Duration, error) {
	now := s.now()
	if !authorization.Authorised(a, now) {
		return "", 0, ErrNotActive
	}

	ttl := s.ttlFor(a.AccessType)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   a.ProfessionalID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		AuthorizationID: a.ID,
		ProfessionalID:  a.ProfessionalID,
		PatientID:       a.PatientID,
		AccessType:      string(a.AccessType),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", 0, fmt.Errorf("sign capability token: %w", err)
	}
	return signed, ttl, nil
}

// Validate checks signature and expiry and returns the claims. A valid
// return is necessary but not sufficient for access: the gate still
// re-checks the live authorization state.
func (s *Service) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil || !tok.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.AuthorizationID == uuid.Nil || claims.ProfessionalID == uuid.Nil || claims.PatientID == uuid.Nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
