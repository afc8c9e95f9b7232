package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hms/hms/internal/platform/apperr"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
)

type JWTConfig struct {
	Issuer *TokenIssuer
	// Skipper bypasses authentication (login, health).
	Skipper middleware.Skipper
}

// JWTMiddleware authenticates `Authorization: Bearer <token>` and stores the
// caller's id and role on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = middleware.DefaultSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return apperr.Unauthorized("missing authorization header")
			}
			scheme, tokenStr, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
				return apperr.Unauthorized("invalid authorization format")
			}

			claims, err := cfg.Issuer.Verify(strings.TrimSpace(tokenStr))
			if err != nil {
				return apperr.Unauthorized("invalid token")
			}

			setIdentity(c, claims.Subject, claims.Role)
			return next(c)
		}
	}
}

// DevAuthMiddleware treats requests without a bearer token as an admin.
// Requests carrying a token are still verified when an issuer is supplied.
func DevAuthMiddleware(issuer *TokenIssuer) echo.MiddlewareFunc {
	verify := JWTMiddleware(JWTConfig{Issuer: issuer})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := verify(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" || issuer == nil {
				setIdentity(c, "00000000-0000-0000-0000-000000000000", RoleAdmin)
				return next(c)
			}
			return verified(c)
		}
	}
}

func setIdentity(c echo.Context, userID, role string) {
	c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), userID, role)))
	c.Set(string(UserIDKey), userID)
	c.Set(string(UserRoleKey), role)
}

// WithIdentity returns ctx carrying the caller identity.
func WithIdentity(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRoleKey, role)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(UserRoleKey).(string)
	return role
}
