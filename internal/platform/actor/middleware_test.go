package actor

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testKey = []byte("identity-test-key")

func identityToken(t *testing.T, kind Kind, subject string) string {
	t.Helper()
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Kind: string(kind),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return signed
}

func runMiddleware(t *testing.T, authHeader string) (Actor, bool, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var got Actor
	var ok bool
	h := Middleware(testKey)(func(c echo.Context) error {
		got, ok = FromContext(c.Request().Context())
		return nil
	})
	err := h(c)
	return got, ok, err
}

func TestMiddleware_ValidToken(t *testing.T) {
	id := uuid.New()
	raw := identityToken(t, KindProfessional, id.String())

	got, ok, err := runMiddleware(t, "Bearer "+raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected an actor in the handler context")
	}
	if got.Kind != KindProfessional || got.ID != id {
		t.Errorf("unexpected actor %v", got)
	}
}

func TestMiddleware_SystemToken(t *testing.T) {
	raw := identityToken(t, KindSystem, "compliance-console")

	got, ok, err := runMiddleware(t, "Bearer "+raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || got.Kind != KindSystem {
		t.Errorf("expected a system actor, got %v", got)
	}
}

func TestMiddleware_MissingHeader(t *testing.T) {
	_, _, err := runMiddleware(t, "")
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestMiddleware_WrongKey(t *testing.T) {
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Kind: string(KindPatient),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, mwErr := runMiddleware(t, "Bearer "+raw)
	var httpErr *echo.HTTPError
	if !errors.As(mwErr, &httpErr) || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", mwErr)
	}
}

func TestMiddleware_UnknownKind(t *testing.T) {
	raw := identityToken(t, Kind("superuser"), uuid.NewString())

	_, _, err := runMiddleware(t, "Bearer "+raw)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRequireKind(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithActor(req.Context(), Patient(uuid.New())))
	c := e.NewContext(req, httptest.NewRecorder())

	allowed := RequireKind(KindPatient, KindSystem)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := allowed(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	denied := RequireKind(KindProfessional)(func(c echo.Context) error {
		t.Fatal("handler must not run")
		return nil
	})
	err := denied(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestRequireKind_Unauthenticated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	h := RequireKind(KindSystem)(func(c echo.Context) error { return nil })
	err := h(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
