// Package identity carries the caller's email and role through a request
// context and enforces who may mutate audit state.
package identity

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/tally/pkg/errorbank"
)

// Role names a dashboard role.
type Role string

const (
	RoleSuperAdmin Role = "Super Admin"
	RoleAdmin      Role = "Admin"
	RoleOperator   Role = "Operator"
)

// Header names set by the upstream gateway after authentication.
const (
	HeaderEmail = "X-User-Email"
	HeaderRole  = "X-User-Role"
)

var mutators = []Role{RoleSuperAdmin, RoleAdmin, RoleOperator}

// ParseRole maps s onto a known role, ignoring case and surrounding space.
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	for _, r := range mutators {
		if strings.EqualFold(s, string(r)) {
			return r, true
		}
	}
	return Role(s), false
}

// Principal is the authenticated caller.
type Principal struct {
	Email string
	Role  Role
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored on ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// CurrentUserEmail returns the caller's email, if any.
func CurrentUserEmail(ctx context.Context) (string, bool) {
	p, ok := FromContext(ctx)
	if !ok || p.Email == "" {
		return "", false
	}
	return p.Email, true
}

// CurrentUserRole returns the caller's role, if any.
func CurrentUserRole(ctx context.Context) (Role, bool) {
	p, ok := FromContext(ctx)
	if !ok || p.Role == "" {
		return "", false
	}
	return p.Role, true
}

// RequireMutator returns the caller when they may change audit flags. A
// missing email or role, or any role outside Super Admin, Admin and Operator,
// is a forbidden error.
func RequireMutator(ctx context.Context) (Principal, error) {
	email, ok := CurrentUserEmail(ctx)
	if !ok {
		return Principal{}, errorbank.Forbidden("user email is required to update devices")
	}
	role, ok := CurrentUserRole(ctx)
	if !ok {
		return Principal{}, errorbank.Forbidden("user role is required to update devices")
	}
	for _, r := range mutators {
		if role == r {
			return Principal{Email: email, Role: role}, nil
		}
	}
	return Principal{}, errorbank.Forbidden("role is not allowed to update devices",
		errorbank.WithDetail("role", string(role)))
}

// Middleware copies gateway identity headers onto the request context.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			email := strings.TrimSpace(c.Request().Header.Get(HeaderEmail))
			rawRole := c.Request().Header.Get(HeaderRole)
			if email == "" && strings.TrimSpace(rawRole) == "" {
				return next(c)
			}
			role, _ := ParseRole(rawRole)
			req := c.Request()
			c.SetRequest(req.WithContext(WithPrincipal(req.Context(), Principal{Email: email, Role: role})))
			return next(c)
		}
	}
}
