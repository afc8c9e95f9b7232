package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/hms/hms/internal/platform/apperr"
)

// Staff roles. A user's role is fixed at creation.
const (
	RoleDoctor       = "doctor"
	RoleReceptionist = "receptionist"
	RoleNurse        = "nurse"
	RolePharmacist   = "pharmacist"
	RoleAccountant   = "accountant"
	RoleAdmin        = "admin"
	RoleSuperAdmin   = "super_admin"
)

// AllRoles lists every assignable role.
var AllRoles = []string{
	RoleDoctor, RoleReceptionist, RoleNurse, RolePharmacist, RoleAccountant, RoleAdmin, RoleSuperAdmin,
}

func IsAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// HasRole reports whether the caller in ctx holds one of roles. Admins hold
// every role.
func HasRole(ctx context.Context, roles ...string) bool {
	role := RoleFromContext(ctx)
	if role == "" {
		return false
	}
	return IsAdminRole(role) || lo.Contains(roles, role)
}

// RequireRole rejects callers without one of the given roles with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if RoleFromContext(ctx) == "" {
				return apperr.Unauthorized("authentication required")
			}
			if !HasRole(ctx, roles...) {
				return apperr.Forbidden("required role: " + strings.Join(roles, " or "))
			}
			return next(c)
		}
	}
}

// RequireSelfOrRole allows the user named by the :param path parameter, or any
// caller holding one of roles.
func RequireSelfOrRole(param string, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if RoleFromContext(ctx) == "" {
				return apperr.Unauthorized("authentication required")
			}
			if UserIDFromContext(ctx) == c.Param(param) || HasRole(ctx, roles...) {
				return next(c)
			}
			return apperr.Forbidden("not permitted for this user")
		}
	}
}
