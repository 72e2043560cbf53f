package rbac

import "slices"

// RenameSet is one version of the legacy permission rename table.
type RenameSet struct {
	Version int
	Renames map[Permission]Permission
}

// legacyRenames must stay ordered by Version; each set applies to the output of the previous.
var legacyRenames = []RenameSet{
	{
		Version: 1,
		Renames: map[Permission]Permission{
			"register_device":  PermDevicesRegister,
			"issuing_personal": PermIssuingPersonal,
			"issuing_shared":   PermIssuingShared,
			"bulk_issuing":     PermIssuingBulk,
			"returning":        PermReturns,
			"location_list":    PermLocationsList,
			"user_management":  PermUsersManage,
		},
	},
}

// LegacyVersion is the newest rename table version.
func LegacyVersion() int {
	return legacyRenames[len(legacyRenames)-1].Version
}

// MigrateName maps a single stored name through every rename version once.
func MigrateName(p Permission) Permission {
	for _, set := range legacyRenames {
		if renamed, ok := set.Renames[p]; ok {
			p = renamed
		}
	}
	return p
}

// MigratePermissions normalises raw stored names, applies the rename table and
// returns a sorted, deduplicated list. Empty entries are dropped.
func MigratePermissions(raw []string) []Permission {
	seen := make(map[Permission]struct{}, len(raw))
	out := make([]Permission, 0, len(raw))
	for _, r := range raw {
		p := NormalizePermission(r)
		if p == "" {
			continue
		}
		p = MigrateName(p)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// MigrateGrants migrates raw stored names like MigratePermissions. A name taken
// from the flat legacy table also brings its ancestors, so an old grant stays
// in effect under PolicyRequired.
func MigrateGrants(h *Hierarchy, raw []string) []Permission {
	out := make([]Permission, 0, len(raw))
	for _, r := range raw {
		p := NormalizePermission(r)
		if p == "" {
			continue
		}
		renamed := MigrateName(p)
		out = append(out, renamed)
		if renamed != p {
			out = append(out, h.Ancestors(renamed)...)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
