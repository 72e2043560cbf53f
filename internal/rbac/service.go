package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/assettrack/assettrack/internal/audit"
	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/shared"
)

// RolePermissionsView is the role permission listing returned to administrators.
type RolePermissionsView struct {
	Roles         map[string][]Permission `json:"roles"`
	Catalog       []Node                  `json:"catalog"`
	Policy        Policy                  `json:"policy"`
	LegacyVersion int                     `json:"legacyVersion"`
}

// Service orchestrates role permission reads and updates.
type Service struct {
	repo     Repository
	resolver *Resolver
	audit    audit.Recorder
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, resolver *Resolver, recorder audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, resolver: resolver, audit: recorder, logger: logger}
}

// RolePermissions returns the merged explicit grants of every role.
func (s *Service) RolePermissions(ctx context.Context) (RolePermissionsView, error) {
	snap, err := s.resolver.Load(ctx)
	if err != nil {
		return RolePermissionsView{}, err
	}
	roles := make(map[string][]Permission, len(snap.Roles))
	for _, role := range snap.RoleNames() {
		perms := snap.Explicit(role)
		if perms == nil {
			perms = []Permission{}
		}
		roles[role] = perms
	}
	return RolePermissionsView{
		Roles:         roles,
		Catalog:       s.resolver.Hierarchy().Nodes(),
		Policy:        s.resolver.Policy(),
		LegacyVersion: LegacyVersion(),
	}, nil
}

// RoleGrant is the stored explicit grant list of one role.
type RoleGrant struct {
	Role        string       `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// UpdateRolePermissions replaces the explicit grants of role. Names are
// normalised and migrated; any name outside the catalog, or one the active
// policy would leave without effect, rejects the update. An existing role is
// matched case-insensitively and keeps its stored name.
func (s *Service) UpdateRolePermissions(ctx context.Context, actor shared.Principal, rawRole string, raw []string) (RoleGrant, error) {
	role := CanonicalRole(rawRole)
	if role == "" {
		return RoleGrant{}, httpx.NewError(httpx.ErrValidation, "role is required")
	}
	h := s.resolver.Hierarchy()
	perms := MigrateGrants(h, raw)
	var unknown []string
	for _, p := range perms {
		if !h.Known(p) {
			unknown = append(unknown, string(p))
		}
	}
	if len(unknown) > 0 {
		return RoleGrant{}, httpx.Errorf(httpx.ErrValidation, "unknown permissions: %s", strings.Join(unknown, ", "))
	}
	if ineffective := s.resolver.Policy().Ineffective(h, perms); len(ineffective) > 0 {
		missing := make([]string, len(ineffective))
		for i, p := range ineffective {
			missing[i] = fmt.Sprintf("%s (needs %s)", p, joinPermissions(h.Ancestors(p)))
		}
		return RoleGrant{}, httpx.Errorf(httpx.ErrValidation, "permissions without their parents have no effect: %s", strings.Join(missing, "; "))
	}
	snap, err := s.resolver.Load(ctx)
	if err != nil {
		return RoleGrant{}, err
	}
	if existing, ok := snap.Lookup(role); ok {
		role = existing
	}
	if err := s.repo.UpsertRolePermissions(ctx, role, perms); err != nil {
		return RoleGrant{}, err
	}
	if err := s.resolver.Invalidate(ctx); err != nil {
		// The local snapshot is already dropped; peers catch up after their TTL.
		s.logger.Warn("rbac invalidate", slog.String("role", role), slog.Any("error", err))
	}
	s.audit.Record(ctx, audit.NewEntry(actor, audit.ActionUpdateRolePermissions,
		fmt.Sprintf("%s: %s", role, joinPermissions(perms))))
	return RoleGrant{Role: role, Permissions: perms}, nil
}

func joinPermissions(perms []Permission) string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
