package users

import (
	"time"

	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/shared"
)

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = httpx.NewError(httpx.ErrNotFound, "User not found")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = httpx.NewError(httpx.ErrConflict, "Username already exists")
	// ErrUnknownRole indicates the role has no permission entry.
	ErrUnknownRole = httpx.NewError(httpx.ErrValidation, "Unknown role")
	// ErrSelfModification blocks users from deleting or deactivating their own account.
	ErrSelfModification = httpx.NewError(httpx.ErrValidation, "You cannot remove or deactivate your own account")
	// ErrUsersExist is returned by bootstrap once any account exists.
	ErrUsersExist = httpx.NewError(httpx.ErrForbidden, "Users already exist")
)

// User represents an account.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	Locations    []string  `json:"locations"`
	IsActive     bool      `json:"isActive"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Principal converts the account into the request actor.
func (u User) Principal() shared.Principal {
	return shared.Principal{
		UserID:    u.ID,
		Username:  u.Username,
		Name:      u.Name,
		Role:      u.Role,
		Locations: u.Locations,
	}
}

// CreateInput carries the fields for a new account.
type CreateInput struct {
	Name      string   `json:"name" validate:"required,max=120"`
	Username  string   `json:"username" validate:"required,email"`
	Password  string   `json:"password" validate:"required,min=8,max=72"`
	Role      string   `json:"role" validate:"required"`
	Locations []string `json:"locations" validate:"omitempty,dive,required"`
}
