package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/shr/shr/internal/platform/access"
)

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey (HS256) takes precedence over JWKSURL. Development and tests.
	SigningKey []byte
	Skipper    func(echo.Context) bool
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, *echo.HTTPError) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return token, nil
}

// JWTMiddleware authenticates the bearer token and stores the caller's
// Identity on the request context. A valid token that maps to no SHR role is
// forbidden rather than unauthorized.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	keyFunc := func(context.Context) jwt.Keyfunc {
		return func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	}
	methods := []string{jwt.SigningMethodHS256.Alg()}
	if len(cfg.SigningKey) == 0 {
		keys := NewKeySet(cfg.JWKSURL, defaultKeySetTTL)
		keyFunc = keys.Keyfunc
		methods = []string{jwt.SigningMethodRS256.Alg()}
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			req := c.Request()
			raw, herr := bearerToken(req)
			if herr != nil {
				return herr
			}

			claims := &Claims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFunc(req.Context())); err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			id := claims.Identity()
			if len(id.Roles) == 0 {
				return echo.NewHTTPError(http.StatusForbidden, "token carries no SHR role")
			}

			c.SetRequest(req.WithContext(WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development. Requests
// without an Authorization header run as a system administrator; requests
// with one are authenticated with the development signing key.
func DevAuthMiddleware(signingKey []byte) echo.MiddlewareFunc {
	jwtMW := JWTMiddleware(JWTConfig{SigningKey: signingKey, Skipper: AuthSkipper})
	dev := access.Identity{
		ID:    "dev-user",
		Name:  "Development User",
		Roles: []access.Role{{Kind: access.RoleSystemAdmin}},
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withToken := jwtMW(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" && len(signingKey) > 0 {
				return withToken(c)
			}
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), dev)))
			return next(c)
		}
	}
}
