package rbac

import (
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

var builtinRoles = []string{RoleAdmin, RoleSupervisor, RoleOperator, RoleViewer}

// CanonicalRole trims a role label and collapses inner whitespace. Built-in
// roles match case-insensitively ("ADMIN" is "Admin"); custom roles keep the
// caller's casing.
func CanonicalRole(raw string) string {
	role := strings.Join(strings.Fields(raw), " ")
	for _, builtin := range builtinRoles {
		if sameRole(role, builtin) {
			return builtin
		}
	}
	return role
}

func sameRole(a, b string) bool {
	// Casers carry state and cannot be shared between goroutines.
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}

// DefaultRolePermissions returns the built-in role grants. Each list carries
// the ancestors of its permissions so the grants hold under every policy.
func DefaultRolePermissions() map[string][]Permission {
	h := DefaultHierarchy()
	return map[string][]Permission{
		RoleAdmin: withAncestors(h,
			PermDevicesRegister, PermDevicesStatus,
			PermIssuingPersonal, PermIssuingShared, PermIssuingBulk,
			PermReturns,
			PermLocationsList, PermOpsScan,
			PermUsersManage, PermRolesManage,
			PermAuditView, PermAuditClear,
		),
		RoleSupervisor: withAncestors(h,
			PermDevicesRegister, PermDevicesStatus,
			PermIssuingPersonal, PermIssuingShared, PermIssuingBulk,
			PermReturns,
			PermLocationsList, PermOpsScan,
			PermAuditView,
		),
		RoleOperator: withAncestors(h,
			PermIssuingPersonal, PermIssuingShared,
			PermReturns,
			PermLocationsList, PermOpsScan,
		),
		RoleViewer: {},
	}
}

func withAncestors(h *Hierarchy, perms ...Permission) []Permission {
	out := slices.Clone(perms)
	for _, p := range perms {
		out = append(out, h.Ancestors(p)...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Snapshot is a point-in-time role → explicit permission mapping.
type Snapshot struct {
	Roles map[string][]Permission `json:"roles"`
	// Version is the shared cache version the snapshot was read at; zero when uncached.
	Version int64 `json:"version"`
}

// MergeSnapshot overlays stored grants on the defaults. A stored role replaces
// its default list entirely; roles missing from stored keep their defaults.
// Stored names pass through the legacy rename table and unknown names are dropped.
// Stored rows naming the same role in different casing are merged into one
// grant list under the first name in lexical order.
func MergeSnapshot(h *Hierarchy, defaults map[string][]Permission, stored map[string][]string) Snapshot {
	roles := make(map[string][]Permission, len(defaults)+len(stored))
	for role, perms := range defaults {
		roles[role] = slices.Clone(perms)
	}
	merged := make(map[string][]Permission, len(stored))
	var names []string
	for _, rawRole := range slices.Sorted(maps.Keys(stored)) {
		role := CanonicalRole(rawRole)
		if role == "" {
			continue
		}
		if i := slices.IndexFunc(names, func(n string) bool { return sameRole(n, role) }); i >= 0 {
			role = names[i]
		} else {
			names = append(names, role)
		}
		for _, p := range MigrateGrants(h, stored[rawRole]) {
			if h.Known(p) {
				merged[role] = append(merged[role], p)
			}
		}
		if merged[role] == nil {
			merged[role] = []Permission{}
		}
	}
	for role, perms := range merged {
		slices.Sort(perms)
		roles[role] = slices.Compact(perms)
	}
	return Snapshot{Roles: roles}
}

// HasRole reports whether the role exists in the snapshot.
func (s Snapshot) HasRole(role string) bool {
	_, ok := s.Roles[role]
	return ok
}

// Explicit returns the explicit grants of role.
func (s Snapshot) Explicit(role string) []Permission {
	return slices.Clone(s.Roles[role])
}

// Lookup finds the snapshot's name for raw, matching case-insensitively.
func (s Snapshot) Lookup(raw string) (string, bool) {
	role := CanonicalRole(raw)
	if s.HasRole(role) {
		return role, true
	}
	for _, name := range s.RoleNames() {
		if sameRole(name, role) {
			return name, true
		}
	}
	return "", false
}

// RoleNames returns the roles in lexical order.
func (s Snapshot) RoleNames() []string {
	return slices.Sorted(maps.Keys(s.Roles))
}
