package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/shared"
)

type permissionsContextKey struct{}

// ContextWithPermissions stores the resolved permission set for the request.
func ContextWithPermissions(ctx context.Context, set Set) context.Context {
	return context.WithValue(ctx, permissionsContextKey{}, set)
}

// PermissionsFromContext returns the permission set resolved for the request.
func PermissionsFromContext(ctx context.Context) (Set, bool) {
	set, ok := ctx.Value(permissionsContextKey{}).(Set)
	return set, ok
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// Attach resolves the principal's permissions once and stores them in the request context.
// It must run after authentication.
func (m Middleware) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		set, err := m.resolve(r)
		if err != nil {
			httpx.RespondError(w, m.Logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPermissions(r.Context(), set)))
	})
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			set, err := m.resolve(r)
			if err != nil {
				httpx.RespondError(w, m.Logger, err)
				return
			}
			for _, p := range perms {
				if set.Has(p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.RespondError(w, m.Logger, shared.ErrPermissionDenied)
		})
	}
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			set, err := m.resolve(r)
			if err != nil {
				httpx.RespondError(w, m.Logger, err)
				return
			}
			for _, p := range perms {
				if !set.Has(p) {
					httpx.RespondError(w, m.Logger, shared.ErrPermissionDenied)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) resolve(r *http.Request) (Set, error) {
	if set, ok := PermissionsFromContext(r.Context()); ok {
		return set, nil
	}
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		return nil, shared.ErrMissingToken
	}
	set, err := m.Resolver.Permissions(r.Context(), principal.Role)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac resolve", slog.String("role", principal.Role), slog.Any("error", err))
		}
		return nil, err
	}
	return set, nil
}

// Authorize returns ErrPermissionDenied unless role holds perm. The set
// attached to ctx by Attach is reused when present.
func (r *Resolver) Authorize(ctx context.Context, role string, perm Permission) error {
	set, ok := PermissionsFromContext(ctx)
	if !ok {
		var err error
		if set, err = r.Permissions(ctx, role); err != nil {
			return err
		}
	}
	if !set.Has(perm) {
		return shared.ErrPermissionDenied
	}
	return nil
}
