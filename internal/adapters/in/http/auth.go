package http

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin = "Admin"

	principalKey = "principal"

	// Claim names issued by the user service alongside the registered ones.
	claimNameID   = "nameid"
	claimRole     = "role"
	claimRoleLong = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
)

var ErrNoSubject = errors.New("token has no subject")

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Roles  []string
}

func (p Principal) IsAdmin() bool {
	return slices.Contains(p.Roles, RoleAdmin)
}

type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// Authenticate verifies an HS256 bearer token and stores the Principal on the context.
func Authenticate(cfg AuthConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(cfg.Secret)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || raw == "" {
				return unauthorized(c, "invalid_request", "missing bearer token")
			}

			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
				return key, nil
			}); err != nil {
				return unauthorized(c, "invalid_token", "invalid jwt")
			}

			principal, err := principalFromClaims(claims)
			if err != nil {
				return unauthorized(c, "invalid_token", err.Error())
			}

			c.Set(principalKey, principal)
			return next(c)
		}
	}
}

// RequireRole rejects callers without role with 403.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, ok := PrincipalFrom(c)
			if !ok {
				return unauthorized(c, "invalid_request", "missing bearer token")
			}
			if !slices.Contains(principal.Roles, role) {
				return c.JSON(http.StatusForbidden, Error{Code: http.StatusForbidden, Message: "insufficient role"})
			}
			return next(c)
		}
	}
}

func PrincipalFrom(c echo.Context) (Principal, bool) {
	p, ok := c.Get(principalKey).(Principal)
	return p, ok
}

func principalFromClaims(claims jwt.MapClaims) (Principal, error) {
	subject, _ := claims.GetSubject()
	if subject == "" {
		subject, _ = claims[claimNameID].(string)
	}
	if subject == "" {
		return Principal{}, ErrNoSubject
	}

	var roles []string
	for _, name := range []string{claimRole, claimRoleLong} {
		switch v := claims[name].(type) {
		case string:
			roles = append(roles, v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					roles = append(roles, s)
				}
			}
		}
	}

	return Principal{UserID: subject, Roles: roles}, nil
}

func unauthorized(c echo.Context, code, desc string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="`+code+`", error_description="`+desc+`"`)
	return c.JSON(http.StatusUnauthorized, Error{Code: http.StatusUnauthorized, Message: desc})
}
