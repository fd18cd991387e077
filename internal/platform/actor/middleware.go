package actor

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// IdentityClaims is the claim set of identity tokens issued by the external
// credential subsystem once two-factor verification completes. The subject is
// the actor's UUID and Kind tags the actor category.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

// Middleware returns echo middleware that authenticates requests from the
// Authorization bearer token and places the resulting Actor in the request
// context. Tokens are verified against the process-wide identity signing key.
func Middleware(signingKey []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &IdentityClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return signingKey, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			act, err := actorFromClaims(claims)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := WithActor(c.Request().Context(), act)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func actorFromClaims(claims *IdentityClaims) (Actor, error) {
	kind := Kind(claims.Kind)
	if !kind.Valid() {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "unknown actor kind")
	}
	if kind == KindSystem {
		return System(), nil
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, err
	}
	return Actor{Kind: kind, ID: id}, nil
}

// RequireKind returns middleware that rejects requests whose authenticated
// actor is not one of the allowed kinds.
func RequireKind(kinds ...Kind) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			act, ok := FromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			for _, k := range kinds {
				if act.Kind == k {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient privileges")
		}
	}
}
