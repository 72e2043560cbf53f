package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/assettrack/assettrack/internal/audit"
	"github.com/assettrack/assettrack/internal/rbac"
	"github.com/assettrack/assettrack/internal/shared"
)

// RoleCatalog exposes the roles known to the permission resolver.
type RoleCatalog interface {
	Load(ctx context.Context) (rbac.Snapshot, error)
}

// Service implements user administration.
type Service struct {
	repo   Repository
	roles  RoleCatalog
	audit  audit.Recorder
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, roles RoleCatalog, recorder audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, audit: recorder, logger: logger}
}

// HashPassword derives the stored bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("users: hash password: %w", err)
	}
	return string(hash), nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// CreateUser registers a new active account.
func (s *Service) CreateUser(ctx context.Context, actor shared.Principal, in CreateInput) (User, error) {
	snap, err := s.roles.Load(ctx)
	if err != nil {
		return User{}, err
	}
	role, ok := snap.Lookup(in.Role)
	if !ok {
		return User{}, ErrUnknownRole
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.Create(ctx, User{
		Name:         strings.TrimSpace(in.Name),
		Username:     normalizeUsername(in.Username),
		Role:         role,
		Locations:    cleanLocations(in.Locations),
		IsActive:     true,
		PasswordHash: hash,
	})
	if err != nil {
		return User{}, err
	}
	s.audit.Record(ctx, audit.NewEntry(actor, audit.ActionCreateUser, "Created "+user.Username))
	return user, nil
}

// DeleteUser removes an account other than the actor's own.
func (s *Service) DeleteUser(ctx context.Context, actor shared.Principal, id int64) error {
	if id == actor.UserID {
		return ErrSelfModification
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.NewEntry(actor, audit.ActionRemoveUser, fmt.Sprintf("Removed user %d", id)))
	return nil
}

// SetUserStatus activates or deactivates an account. Deactivated accounts
// cannot log in and their tokens stop working.
func (s *Service) SetUserStatus(ctx context.Context, actor shared.Principal, id int64, active bool) (User, error) {
	if id == actor.UserID && !active {
		return User{}, ErrSelfModification
	}
	user, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return User{}, err
	}
	state := "inactive"
	if active {
		state = "active"
	}
	s.audit.Record(ctx, audit.NewEntry(actor, audit.ActionToggleUserStatus, fmt.Sprintf("%s: %s", user.Username, state)))
	return user, nil
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func cleanLocations(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, loc := range raw {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			continue
		}
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		out = append(out, loc)
	}
	return out
}
