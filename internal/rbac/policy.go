package rbac

import (
	"fmt"
	"slices"
	"strings"
)

// Policy decides how the hierarchy affects a role's explicit grants.
// A process runs with exactly one policy.
type Policy string

const (
	// PolicyImplied grants every ancestor of an explicitly granted permission.
	PolicyImplied Policy = "implied"
	// PolicyRequired grants a permission only when it and all its ancestors are explicit.
	PolicyRequired Policy = "required"
)

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case PolicyImplied, PolicyRequired:
		return p, nil
	case "":
		return PolicyImplied, nil
	default:
		return "", fmt.Errorf("rbac: unknown permission policy %q", raw)
	}
}

// Expand resolves explicit grants into the effective set under the policy.
func (p Policy) Expand(h *Hierarchy, explicit []Permission) Set {
	granted := NewSet(explicit...)
	switch p {
	case PolicyRequired:
		out := make(Set, len(granted))
		for perm := range granted {
			if hasAll(granted, h.Ancestors(perm)) {
				out[perm] = struct{}{}
			}
		}
		return out
	default:
		out := make(Set, len(granted))
		for perm := range granted {
			out[perm] = struct{}{}
			for _, a := range h.Ancestors(perm) {
				out[a] = struct{}{}
			}
		}
		return out
	}
}

// Ineffective lists the explicit grants the policy would leave out of the
// effective set, in lexical order.
func (p Policy) Ineffective(h *Hierarchy, explicit []Permission) []Permission {
	effective := p.Expand(h, explicit)
	var out []Permission
	for _, perm := range explicit {
		if !effective.Has(perm) {
			out = append(out, perm)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func hasAll(s Set, perms []Permission) bool {
	for _, p := range perms {
		if !s.Has(p) {
			return false
		}
	}
	return true
}
