package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/assettrack/assettrack/internal/audit"
	"github.com/assettrack/assettrack/internal/rbac"
	"github.com/assettrack/assettrack/internal/shared"
	"github.com/assettrack/assettrack/internal/users"
)

// Session is returned after bootstrap and login.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      users.User `json:"user"`
}

// Profile is the current user with everything the client needs to gate its UI.
type Profile struct {
	User         users.User        `json:"user"`
	Permissions  []rbac.Permission `json:"permissions"`
	Capabilities map[string]bool   `json:"capabilities"`
	Policy       rbac.Policy       `json:"policy"`
}

// BootstrapInput creates the first administrator.
type BootstrapInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Username string `json:"username" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginInput carries credentials.
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Service wraps authentication business rules.
type Service struct {
	users    users.Repository
	tokens   *Tokens
	resolver *rbac.Resolver
	audit    audit.Recorder
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo users.Repository, tokens *Tokens, resolver *rbac.Resolver, recorder audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: repo, tokens: tokens, resolver: resolver, audit: recorder, logger: logger}
}

// Bootstrap creates the first, active Admin account. It fails once any user exists.
func (s *Service) Bootstrap(ctx context.Context, in BootstrapInput) (Session, error) {
	hash, err := users.HashPassword(in.Password)
	if err != nil {
		return Session{}, err
	}
	user, err := s.users.CreateFirst(ctx, users.User{
		Name:         strings.TrimSpace(in.Name),
		Username:     strings.ToLower(strings.TrimSpace(in.Username)),
		Role:         rbac.RoleAdmin,
		Locations:    []string{},
		IsActive:     true,
		PasswordHash: hash,
	})
	if err != nil {
		return Session{}, err
	}
	s.audit.Record(ctx, audit.NewEntry(user.Principal(), audit.ActionBootstrapAdmin, "Created admin "+user.Username))
	return s.session(user)
}

// Login verifies credentials and issues a token. Unknown users and wrong
// passwords are indistinguishable; deactivated accounts are refused after the
// password matches.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	user, err := s.users.FindByUsername(ctx, strings.ToLower(strings.TrimSpace(in.Username)))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Session{}, shared.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return Session{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return Session{}, shared.ErrInactiveUser
	}
	s.audit.Record(ctx, audit.NewEntry(user.Principal(), audit.ActionLogin, "Login "+user.Username))
	return s.session(user)
}

// Me loads the profile of principal together with its effective permissions.
func (s *Service) Me(ctx context.Context, principal shared.Principal) (Profile, error) {
	var (
		user users.User
		set  rbac.Set
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.users.Get(gctx, principal.UserID)
		return err
	})
	g.Go(func() error {
		if existing, ok := rbac.PermissionsFromContext(ctx); ok {
			set = existing
			return nil
		}
		var err error
		set, err = s.resolver.Permissions(gctx, principal.Role)
		return err
	})
	if err := g.Wait(); err != nil {
		return Profile{}, err
	}
	return Profile{
		User:         user,
		Permissions:  set.Sorted(),
		Capabilities: rbac.Evaluate(rbac.Capabilities(), set),
		Policy:       s.resolver.Policy(),
	}, nil
}

func (s *Service) session(user users.User) (Session, error) {
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, User: user}, nil
}
