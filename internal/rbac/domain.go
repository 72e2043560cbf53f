package rbac

import (
	"slices"
	"strings"
)

// Permission is an atomic capability token. Dotted names express the
// hierarchy only by convention; parents are declared in the catalog.
type Permission string

// Permissions known to the system.
const (
	PermDevices         Permission = "devices"
	PermDevicesRegister Permission = "devices.register"
	PermDevicesStatus   Permission = "devices.status"

	PermIssuing         Permission = "issuing"
	PermIssuingPersonal Permission = "issuing.personal"
	PermIssuingShared   Permission = "issuing.shared"
	PermIssuingBulk     Permission = "issuing.bulk"

	PermReturns Permission = "returns"

	PermLocations     Permission = "locations"
	PermLocationsList Permission = "locations.list"
	PermOpsScan       Permission = "ops.scan"

	PermUsers       Permission = "users"
	PermUsersManage Permission = "users.manage"
	PermRolesManage Permission = "roles.manage"

	PermAudit      Permission = "audit"
	PermAuditView  Permission = "audit.view"
	PermAuditClear Permission = "audit.clear"
)

// Built-in roles. Further roles may be created through role permission updates.
const (
	RoleAdmin      = "Admin"
	RoleSupervisor = "Supervisor"
	RoleOperator   = "Operator"
	RoleViewer     = "Viewer"
)

// Node declares a permission and its direct parents.
type Node struct {
	Name        Permission   `json:"name"`
	Parents     []Permission `json:"parents,omitempty"`
	Description string       `json:"description"`
}

var catalog = []Node{
	{Name: PermDevices, Description: "Device registry"},
	{Name: PermDevicesRegister, Parents: []Permission{PermDevices}, Description: "Register and edit devices"},
	{Name: PermDevicesStatus, Parents: []Permission{PermDevices}, Description: "Change device status labels"},
	{Name: PermIssuing, Description: "Device issuing"},
	{Name: PermIssuingPersonal, Parents: []Permission{PermIssuing}, Description: "Issue devices to a person"},
	{Name: PermIssuingShared, Parents: []Permission{PermIssuing}, Description: "Issue shared devices"},
	{Name: PermIssuingBulk, Parents: []Permission{PermIssuingPersonal, PermIssuingShared}, Description: "Issue many devices at once"},
	{Name: PermReturns, Description: "Return issued devices"},
	{Name: PermLocations, Description: "Locations"},
	{Name: PermLocationsList, Parents: []Permission{PermLocations}, Description: "View devices held per location"},
	{Name: PermOpsScan, Parents: []Permission{PermLocations}, Description: "Scan devices into ops holding"},
	{Name: PermUsers, Description: "User administration"},
	{Name: PermUsersManage, Parents: []Permission{PermUsers}, Description: "Create, remove and deactivate users"},
	{Name: PermRolesManage, Parents: []Permission{PermUsers}, Description: "Edit role permissions"},
	{Name: PermAudit, Description: "Audit trail"},
	{Name: PermAuditView, Parents: []Permission{PermAudit}, Description: "View the audit trail"},
	{Name: PermAuditClear, Parents: []Permission{PermAuditView}, Description: "Clear the audit trail"},
}

// Hierarchy is the fixed parent graph over the permission catalog.
type Hierarchy struct {
	nodes   []Node
	parents map[Permission][]Permission
}

// NewHierarchy builds a hierarchy from catalog nodes.
func NewHierarchy(nodes []Node) *Hierarchy {
	h := &Hierarchy{
		nodes:   slices.Clone(nodes),
		parents: make(map[Permission][]Permission, len(nodes)),
	}
	for _, n := range nodes {
		h.parents[n.Name] = slices.Clone(n.Parents)
	}
	return h
}

// DefaultHierarchy returns the built-in permission hierarchy.
func DefaultHierarchy() *Hierarchy {
	return NewHierarchy(catalog)
}

// Nodes returns the catalog in declaration order.
func (h *Hierarchy) Nodes() []Node {
	return slices.Clone(h.nodes)
}

// Known reports whether p is declared in the catalog.
func (h *Hierarchy) Known(p Permission) bool {
	_, ok := h.parents[p]
	return ok
}

// Ancestors returns every transitive parent of p, nearest first, without duplicates.
func (h *Hierarchy) Ancestors(p Permission) []Permission {
	seen := map[Permission]struct{}{p: {}}
	var out []Permission
	queue := slices.Clone(h.parents[p])
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
		queue = append(queue, h.parents[next]...)
	}
	return out
}

// Leaves returns permissions that are nobody's parent.
func (h *Hierarchy) Leaves() []Permission {
	isParent := make(map[Permission]bool)
	for _, n := range h.nodes {
		for _, p := range n.Parents {
			isParent[p] = true
		}
	}
	var out []Permission
	for _, n := range h.nodes {
		if !isParent[n.Name] {
			out = append(out, n.Name)
		}
	}
	return out
}

// NormalizePermission trims and lowercases a raw permission string.
func NormalizePermission(raw string) Permission {
	return Permission(strings.ToLower(strings.TrimSpace(raw)))
}

// Set is a resolved set of permissions.
type Set map[Permission]struct{}

// NewSet builds a set from the given permissions.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
