package shared

import (
	"errors"

	"github.com/assettrack/assettrack/internal/platform/httpx"
)

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = httpx.NewError(httpx.ErrUnauthorized, "Invalid credentials")
	// ErrMissingToken occurs when no bearer token was supplied.
	ErrMissingToken = httpx.NewError(httpx.ErrUnauthorized, "Missing token")
	// ErrInvalidToken occurs when the bearer token fails verification or has expired.
	ErrInvalidToken = httpx.NewError(httpx.ErrUnauthorized, "Invalid token")
	// ErrInactiveUser indicates the account exists but has been deactivated.
	ErrInactiveUser = httpx.NewError(httpx.ErrForbidden, "Account disabled")
	// ErrPermissionDenied indicates the caller's role lacks a permission.
	ErrPermissionDenied = httpx.NewError(httpx.ErrForbidden, "Permission denied")
)

// IsAuthError reports whether err belongs to the authentication/authorization class.
func IsAuthError(err error) bool {
	return errors.Is(err, httpx.ErrUnauthorized) || errors.Is(err, httpx.ErrForbidden)
}
