package shared

import (
	"context"
	"slices"
)

// Principal describes the authenticated actor of a request.
type Principal struct {
	UserID    int64
	Username  string
	Name      string
	Role      string
	Locations []string
}

// HasLocation reports whether the principal is assigned to location.
func (p Principal) HasLocation(location string) bool {
	return location != "" && slices.Contains(p.Locations, location)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
